package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ghostarr/ghostarr/internal/generator"
	"github.com/ghostarr/ghostarr/internal/integrations"
	"github.com/ghostarr/ghostarr/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeScheduleStore struct {
	mu   sync.Mutex
	due  []*models.Schedule
	runs []struct {
		id   string
		next time.Time
	}
	markErr error
}

func (f *fakeScheduleStore) ListDue(now time.Time) ([]*models.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.due, nil
}

func (f *fakeScheduleStore) MarkRun(id string, ranAt, nextRun time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.runs = append(f.runs, struct {
		id   string
		next time.Time
	}{id, nextRun})
	return nil
}

type fakeStarter struct {
	mu      sync.Mutex
	started []string
	err     error
}

func (f *fakeStarter) StartGeneration(cfg models.GenerationConfig, scheduleID string) (*models.History, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.started = append(f.started, scheduleID)
	return &models.History{ID: "gen-" + scheduleID, Status: models.StatusPending}, nil
}

func TestNextRun(t *testing.T) {
	from := time.Date(2026, 8, 28, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		expr string
		want time.Time
	}{
		{"0 8 * * 1", time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)},  // next Monday 08:00
		{"*/15 * * * *", time.Date(2026, 8, 28, 9, 45, 0, 0, time.UTC)},
		{"0 0 1 * *", time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tc := range tests {
		got, err := NextRun(tc.expr, from)
		if err != nil {
			t.Fatalf("NextRun(%q): %v", tc.expr, err)
		}
		if !got.Equal(tc.want) {
			t.Errorf("NextRun(%q) = %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestValidateCron(t *testing.T) {
	if err := ValidateCron("0 8 * * 1"); err != nil {
		t.Errorf("valid expression rejected: %v", err)
	}
	if err := ValidateCron("not a cron"); err == nil {
		t.Error("invalid expression accepted")
	}
	if err := ValidateCron("0 8 * *"); err == nil {
		t.Error("four-field expression accepted")
	}
}

func TestDueSchedulesAreStartedAndAdvanced(t *testing.T) {
	store := &fakeScheduleStore{due: []*models.Schedule{
		{ID: "sched-1", Name: "weekly", CronExpr: "0 8 * * 1", Enabled: true, Config: models.DefaultGenerationConfig()},
		{ID: "sched-2", Name: "monthly", CronExpr: "0 0 1 * *", Enabled: true, Config: models.DefaultGenerationConfig()},
	}}
	starter := &fakeStarter{}

	s := NewScheduler(store, starter, testLogger())
	s.checkAndRun(context.Background())

	starter.mu.Lock()
	started := append([]string(nil), starter.started...)
	starter.mu.Unlock()
	if len(started) != 2 {
		t.Fatalf("expected 2 generations started, got %d", len(started))
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.runs) != 2 {
		t.Fatalf("expected 2 schedules advanced, got %d", len(store.runs))
	}
	for _, run := range store.runs {
		if !run.next.After(time.Now()) {
			t.Errorf("schedule %s advanced to a past time %v", run.id, run.next)
		}
	}
}

func TestScheduleAdvancedBeforeGenerationStarts(t *testing.T) {
	store := &fakeScheduleStore{
		due: []*models.Schedule{
			{ID: "sched-1", CronExpr: "0 8 * * 1", Enabled: true},
		},
		markErr: errors.New("db down"),
	}
	starter := &fakeStarter{}

	s := NewScheduler(store, starter, testLogger())
	s.checkAndRun(context.Background())

	starter.mu.Lock()
	defer starter.mu.Unlock()
	if len(starter.started) != 0 {
		t.Error("generation must not start when the schedule cannot be advanced")
	}
}

func TestBrokenCronExpressionIsParked(t *testing.T) {
	store := &fakeScheduleStore{due: []*models.Schedule{
		{ID: "sched-1", CronExpr: "garbage", Enabled: true},
	}}
	starter := &fakeStarter{}

	s := NewScheduler(store, starter, testLogger())
	s.checkAndRun(context.Background())

	starter.mu.Lock()
	started := len(starter.started)
	starter.mu.Unlock()
	if started != 0 {
		t.Error("generation must not start for a broken cron expression")
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.runs) != 1 {
		t.Fatalf("broken schedule should still be advanced, got %d marks", len(store.runs))
	}
	if store.runs[0].next.Before(time.Now().AddDate(0, 11, 0)) {
		t.Errorf("broken schedule should be parked far in the future, got %v", store.runs[0].next)
	}
}

func TestStartGenerationFailureDoesNotBlockOthers(t *testing.T) {
	store := &fakeScheduleStore{due: []*models.Schedule{
		{ID: "sched-1", CronExpr: "0 8 * * 1", Enabled: true},
		{ID: "sched-2", CronExpr: "0 8 * * 1", Enabled: true},
	}}
	starter := &fakeStarter{err: errors.New("too many active runs")}

	s := NewScheduler(store, starter, testLogger())
	s.checkAndRun(context.Background())

	store.mu.Lock()
	defer store.mu.Unlock()
	// Both schedules advance even though neither generation started.
	if len(store.runs) != 2 {
		t.Errorf("expected both schedules advanced, got %d", len(store.runs))
	}
}

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	postIDs []string
}

func (f *fakePruner) DeleteOlderThan(cutoff time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.postIDs, nil
}

type fakeSettings map[models.ServiceName]models.ServiceConfig

func (f fakeSettings) GetServiceConfig(service models.ServiceName) (models.ServiceConfig, error) {
	return f[service], nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	deleted []string
}

func (p *recordingPublisher) CreatePost(ctx context.Context, title, html string, opts integrations.PublishOptions) (*integrations.Post, error) {
	return nil, errors.New("not used")
}

func (p *recordingPublisher) DeletePost(ctx context.Context, postID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, postID)
	return nil
}

func (p *recordingPublisher) factory() func(cfg models.ServiceConfig) generator.Publisher {
	return func(models.ServiceConfig) generator.Publisher { return p }
}

func TestRetentionDeletesPrunedPosts(t *testing.T) {
	pruner := &fakePruner{postIDs: []string{"post-1", "", "post-2"}}
	settings := fakeSettings{
		models.ServiceGhost: {URL: "https://blog.example", APIKey: "abc:def"},
	}
	deleter := &recordingPublisher{}

	r := NewRetention(pruner, settings, deleter.factory(), testLogger(), 90)
	r.DeletePosts = true
	r.prune(context.Background())

	pruner.mu.Lock()
	if len(pruner.cutoffs) != 1 {
		t.Fatalf("expected one prune call, got %d", len(pruner.cutoffs))
	}
	wantCutoff := time.Now().AddDate(0, 0, -90)
	if diff := pruner.cutoffs[0].Sub(wantCutoff); diff < -time.Minute || diff > time.Minute {
		t.Errorf("cutoff %v not ~90 days ago", pruner.cutoffs[0])
	}
	pruner.mu.Unlock()

	deleter.mu.Lock()
	defer deleter.mu.Unlock()
	if len(deleter.deleted) != 2 {
		t.Fatalf("expected 2 post deletions, got %d (%v)", len(deleter.deleted), deleter.deleted)
	}
}

func TestRetentionKeepsPostsByDefault(t *testing.T) {
	pruner := &fakePruner{postIDs: []string{"post-1"}}
	deleter := &recordingPublisher{}

	r := NewRetention(pruner, fakeSettings{}, deleter.factory(), testLogger(), 90)
	r.prune(context.Background())

	deleter.mu.Lock()
	defer deleter.mu.Unlock()
	if len(deleter.deleted) != 0 {
		t.Errorf("posts must survive pruning unless DeletePosts is set, deleted %v", deleter.deleted)
	}
}
