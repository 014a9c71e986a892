package events

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func collect(t *testing.T, ch <-chan ProgressEvent, want int) []ProgressEvent {
	t.Helper()

	var got []ProgressEvent
	timeout := time.After(2 * time.Second)
	for len(got) < want {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed after %d events, want %d", len(got), want)
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out after %d events, want %d", len(got), want)
		}
	}
	return got
}

func waitClosed(t *testing.T, ch <-chan ProgressEvent) {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("channel did not close")
		}
	}
}

func TestSubscribeReplaysHistoryInOrder(t *testing.T) {
	bus := NewBus(testLogger(), time.Minute)
	id := "gen-1"

	published := []ProgressEvent{
		{Type: TypeGenerationStarted, Progress: 0},
		{Type: TypeStepStart, Step: "fetch_tautulli", Progress: 0},
		{Type: TypeStepComplete, Step: "fetch_tautulli", Progress: 25},
	}
	for _, ev := range published {
		bus.Publish(id, ev)
	}

	ch := bus.Subscribe(context.Background(), id)
	got := collect(t, ch, len(published))

	for i, ev := range got {
		if ev.Type != published[i].Type || ev.Step != published[i].Step || ev.Progress != published[i].Progress {
			t.Errorf("event %d = %+v, want %+v", i, ev, published[i])
		}
	}
}

func TestSubscribeAfterTerminalReplaysThenCloses(t *testing.T) {
	terminals := []string{TypeGenerationComplete, TypeGenerationCancelled, TypeGenerationError}

	for _, terminal := range terminals {
		t.Run(terminal, func(t *testing.T) {
			bus := NewBus(testLogger(), time.Minute)
			id := "gen-terminal"

			bus.Publish(id, ProgressEvent{Type: TypeGenerationStarted})
			bus.Publish(id, ProgressEvent{Type: terminal, Progress: 100})

			ch := bus.Subscribe(context.Background(), id)
			got := collect(t, ch, 2)

			if got[1].Type != terminal {
				t.Errorf("last replayed event = %q, want %q", got[1].Type, terminal)
			}
			waitClosed(t, ch)
		})
	}
}

func TestLiveTerminalEventClosesSubscriber(t *testing.T) {
	bus := NewBus(testLogger(), time.Minute)
	id := "gen-live"

	ch := bus.Subscribe(context.Background(), id)

	bus.Publish(id, ProgressEvent{Type: TypeStepComplete, Step: "render_template", Progress: 95})
	bus.Publish(id, ProgressEvent{Type: TypeGenerationComplete, Progress: 100})

	got := collect(t, ch, 2)
	if got[1].Type != TypeGenerationComplete {
		t.Errorf("last event = %q, want %q", got[1].Type, TypeGenerationComplete)
	}
	waitClosed(t, ch)
}

func TestMixedReplayAndLiveEventsStayOrdered(t *testing.T) {
	bus := NewBus(testLogger(), time.Minute)
	id := "gen-mixed"

	bus.Publish(id, ProgressEvent{Type: TypeGenerationStarted, Progress: 0})
	bus.Publish(id, ProgressEvent{Type: TypeStepComplete, Step: "fetch_tautulli", Progress: 30})

	ch := bus.Subscribe(context.Background(), id)

	bus.Publish(id, ProgressEvent{Type: TypeStepComplete, Step: "render_template", Progress: 90})
	bus.Publish(id, ProgressEvent{Type: TypeGenerationComplete, Progress: 100})

	got := collect(t, ch, 4)
	wantTypes := []string{TypeGenerationStarted, TypeStepComplete, TypeStepComplete, TypeGenerationComplete}
	for i, ev := range got {
		if ev.Type != wantTypes[i] {
			t.Errorf("event %d type = %q, want %q", i, ev.Type, wantTypes[i])
		}
	}
}

func TestMultipleSubscribersEachReceiveEvents(t *testing.T) {
	bus := NewBus(testLogger(), time.Minute)
	id := "gen-fanout"

	ch1 := bus.Subscribe(context.Background(), id)
	ch2 := bus.Subscribe(context.Background(), id)

	bus.Publish(id, ProgressEvent{Type: TypeStepStart, Step: "fetch_tautulli"})
	bus.Publish(id, ProgressEvent{Type: TypeGenerationComplete, Progress: 100})

	for i, ch := range []<-chan ProgressEvent{ch1, ch2} {
		got := collect(t, ch, 2)
		if got[1].Type != TypeGenerationComplete {
			t.Errorf("subscriber %d last event = %q, want %q", i, got[1].Type, TypeGenerationComplete)
		}
	}
}

func TestContextCancelUnsubscribes(t *testing.T) {
	bus := NewBus(testLogger(), time.Minute)
	id := "gen-ctx"

	ctx, cancel := context.WithCancel(context.Background())
	ch := bus.Subscribe(ctx, id)
	cancel()

	waitClosed(t, ch)

	// Publishing after the subscriber left must not panic or block.
	bus.Publish(id, ProgressEvent{Type: TypeStepStart, Step: "fetch_tautulli"})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		bus.mu.Lock()
		n := len(bus.subscribers[id])
		bus.mu.Unlock()
		if n == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("subscriber was not removed after context cancel")
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	bus := NewBus(testLogger(), time.Minute)
	bus.pollInterval = 50 * time.Millisecond
	id := "gen-slow"

	ch := bus.Subscribe(context.Background(), id)

	done := make(chan struct{})
	go func() {
		// Overflow the subscriber queue without draining it; the final
		// terminal event is dropped from the queue but kept in history.
		for i := 0; i < subscriberBuffer+1; i++ {
			bus.Publish(id, ProgressEvent{Type: TypeStepComplete, Progress: i % 100})
		}
		bus.Publish(id, ProgressEvent{Type: TypeGenerationComplete, Progress: 100})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// The idle poll must notice the generation completed and close the
	// channel even though the terminal event never reached this queue.
	waitClosed(t, ch)
}

func TestHistoryCleanupAfterTTL(t *testing.T) {
	bus := NewBus(testLogger(), 50*time.Millisecond)
	id := "gen-cleanup"

	bus.Publish(id, ProgressEvent{Type: TypeGenerationComplete, Progress: 100})

	if got := len(bus.History(id)); got != 1 {
		t.Fatalf("history length before cleanup = %d, want 1", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(bus.History(id)) == 0 && !bus.isCompleted(id) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("history was not cleaned up after TTL")
}
