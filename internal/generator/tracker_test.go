package generator

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ghostarr/ghostarr/internal/events"
	"github.com/ghostarr/ghostarr/internal/models"
)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestBus() *events.Bus {
	return events.NewBus(testLogger(), time.Minute)
}

func TestTrackerWeightConservation(t *testing.T) {
	tests := []struct {
		name    string
		enabled []string
	}{
		{
			name:    "all steps",
			enabled: []string{StepFetchTautulli, StepEnrichTMDB, StepFetchRomm, StepFetchKomga, StepFetchAudiobookshelf, StepFetchTunarr, StepFetchStatistics, StepRenderTemplate, StepPublishGhost},
		},
		{
			name:    "primary only",
			enabled: []string{StepFetchTautulli, StepEnrichTMDB, StepRenderTemplate, StepPublishGhost},
		},
		{
			name:    "odd weights",
			enabled: []string{StepFetchTautulli, StepFetchRomm, StepRenderTemplate},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTracker(newTestBus(), testLogger(), "gen-weights", tt.enabled)

			for _, step := range tt.enabled {
				tracker.StartStep(step, "")
				tracker.CompleteStep(step, "", 1)
			}

			if got := tracker.Progress(); got != 100 {
				t.Errorf("progress after completing every step = %d, want 100", got)
			}
		})
	}
}

func TestTrackerSkippedStepsCountTowardProgress(t *testing.T) {
	enabled := []string{StepFetchTautulli, StepFetchRomm, StepRenderTemplate, StepPublishGhost}
	tracker := NewTracker(newTestBus(), testLogger(), "gen-skip", enabled)

	tracker.StartStep(StepFetchTautulli, "")
	tracker.CompleteStep(StepFetchTautulli, "", 3)
	tracker.SkipStep(StepFetchRomm, "not configured")
	tracker.StartStep(StepRenderTemplate, "")
	tracker.CompleteStep(StepRenderTemplate, "", -1)
	tracker.StartStep(StepPublishGhost, "")
	tracker.CompleteStep(StepPublishGhost, "", -1)

	if got := tracker.Progress(); got != 100 {
		t.Errorf("progress with skipped step = %d, want 100", got)
	}
}

func TestTrackerFailedStepAddsNoWeight(t *testing.T) {
	enabled := []string{StepFetchTautulli, StepRenderTemplate}
	tracker := NewTracker(newTestBus(), testLogger(), "gen-fail", enabled)

	// fetch_tautulli=15, render_template=10, total 25
	tracker.StartStep(StepFetchTautulli, "")
	tracker.CompleteStep(StepFetchTautulli, "", 2)
	tracker.StartStep(StepRenderTemplate, "")
	tracker.FailStep(StepRenderTemplate, "template not found")

	if got := tracker.Progress(); got != 60 {
		t.Errorf("progress after failed step = %d, want 60", got)
	}

	log := tracker.ProgressLog()
	if log[1].Status != models.StepFailed {
		t.Errorf("failed step status = %q, want %q", log[1].Status, models.StepFailed)
	}
	if log[1].Error != "template not found" {
		t.Errorf("failed step error = %q", log[1].Error)
	}
}

func TestTrackerProgressZeroWithoutSteps(t *testing.T) {
	tracker := NewTracker(newTestBus(), testLogger(), "gen-empty", []string{})
	if got := tracker.Progress(); got != 0 {
		t.Errorf("progress with no enabled steps = %d, want 0", got)
	}
}

func TestTrackerNoOpsAfterCancel(t *testing.T) {
	enabled := []string{StepFetchTautulli, StepRenderTemplate}
	tracker := NewTracker(newTestBus(), testLogger(), "gen-cancel", enabled)

	tracker.StartStep(StepFetchTautulli, "")
	tracker.CancelGeneration("Cancelled by user")

	tracker.CompleteStep(StepFetchTautulli, "", 5)
	tracker.StartStep(StepRenderTemplate, "")
	tracker.SkipStep(StepRenderTemplate, "ignored")

	if got := tracker.Progress(); got != 0 {
		t.Errorf("progress advanced after cancel: %d", got)
	}

	log := tracker.ProgressLog()
	if log[0].Status != models.StepFailed || log[0].Error != "Cancelled" {
		t.Errorf("in-flight step after cancel = %+v, want failed/Cancelled", log[0])
	}
	if log[1].Status != models.StepPending {
		t.Errorf("later step mutated after cancel: %+v", log[1])
	}
}

func TestTrackerFailStepRunsAfterCancel(t *testing.T) {
	enabled := []string{StepFetchTautulli}
	tracker := NewTracker(newTestBus(), testLogger(), "gen-cancel-fail", enabled)

	tracker.CancelGeneration("Cancelled by user")
	tracker.FailStep(StepFetchTautulli, "connection refused")

	log := tracker.ProgressLog()
	if log[0].Status != models.StepFailed || log[0].Error != "connection refused" {
		t.Errorf("fail after cancel not recorded: %+v", log[0])
	}
}

func TestTrackerCancelPublishesSentinelProgress(t *testing.T) {
	bus := newTestBus()
	id := "gen-sentinel"
	ch := bus.Subscribe(context.Background(), id)

	tracker := NewTracker(bus, testLogger(), id, []string{StepFetchTautulli})
	tracker.CancelGeneration("Cancelled by user")

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatal("stream closed before cancellation event")
			}
			if ev.Type == events.TypeGenerationCancelled {
				if ev.Progress != events.ProgressUnchanged {
					t.Errorf("cancellation progress = %d, want %d", ev.Progress, events.ProgressUnchanged)
				}
				if ev.Message != "Cancelled by user" {
					t.Errorf("cancellation message = %q", ev.Message)
				}
				return
			}
		case <-timeout:
			t.Fatal("cancellation event not received")
		}
	}
}

func TestTrackerEventSequenceForRun(t *testing.T) {
	bus := newTestBus()
	id := "gen-sequence"
	ch := bus.Subscribe(context.Background(), id)

	enabled := []string{StepFetchTautulli, StepRenderTemplate, StepPublishGhost}
	tracker := NewTracker(bus, testLogger(), id, enabled)

	tracker.BroadcastStarted()
	tracker.StartStep(StepFetchTautulli, "")
	tracker.CompleteStep(StepFetchTautulli, "", 4)
	tracker.StartStep(StepRenderTemplate, "")
	tracker.CompleteStep(StepRenderTemplate, "", -1)
	tracker.StartStep(StepPublishGhost, "")
	tracker.CompleteStep(StepPublishGhost, "", -1)
	tracker.CompleteGeneration("", "https://blog.example.com/p/1")

	wantTypes := []string{
		events.TypeGenerationStarted,
		events.TypeStepStart, events.TypeStepComplete,
		events.TypeStepStart, events.TypeStepComplete,
		events.TypeStepStart, events.TypeStepComplete,
		events.TypeGenerationComplete,
	}

	timeout := time.After(2 * time.Second)
	for i, want := range wantTypes {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("stream closed at event %d", i)
			}
			if ev.Type != want {
				t.Fatalf("event %d type = %q, want %q", i, ev.Type, want)
			}
			if i == len(wantTypes)-1 && ev.Progress != 100 {
				t.Errorf("terminal progress = %d, want 100", ev.Progress)
			}
		case <-timeout:
			t.Fatalf("timed out waiting for event %d (%s)", i, want)
		}
	}

	if got := tracker.TotalItems(); got != 4 {
		t.Errorf("total items = %d, want 4", got)
	}
}
