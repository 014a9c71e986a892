package generator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ghostarr/ghostarr/internal/database"
	"github.com/ghostarr/ghostarr/internal/events"
	"github.com/ghostarr/ghostarr/internal/metrics"
	"github.com/ghostarr/ghostarr/internal/models"
	"github.com/ghostarr/ghostarr/internal/template"
)

// HistoryStore is the persistence surface the pipeline needs for runs.
type HistoryStore interface {
	Create(h *models.History) (string, error)
	MarkRunning(id string) error
	Complete(id string, p database.CompleteParams) error
}

// SettingsStore resolves service credentials at step time, so changed
// settings apply to the next run without a restart.
type SettingsStore interface {
	GetServiceConfig(service models.ServiceName) (models.ServiceConfig, error)
}

// TemplateStore loads newsletter templates.
type TemplateStore interface {
	Get(id string) (*models.Template, error)
	GetDefault() (*models.Template, error)
}

// Service owns the active-generation registry and runs pipelines in the
// background. StartGeneration returns as soon as the history row exists;
// progress streams over the event bus.
type Service struct {
	bus       *events.Bus
	logger    *slog.Logger
	history   HistoryStore
	settings  SettingsStore
	templates TemplateStore
	sources   Sources
	metrics   *metrics.GenerationCollector

	mu     sync.Mutex
	active map[string]*Tracker
}

func NewService(
	bus *events.Bus,
	logger *slog.Logger,
	history HistoryStore,
	settings SettingsStore,
	templates TemplateStore,
	sources Sources,
	collector *metrics.GenerationCollector,
) *Service {
	return &Service{
		bus:       bus,
		logger:    logger.With("component", "generator"),
		history:   history,
		settings:  settings,
		templates: templates,
		sources:   sources,
		metrics:   collector,
		active:    make(map[string]*Tracker),
	}
}

// enabledSteps derives the step list from the config. TMDB enrichment
// only makes sense when the primary fetch runs; render and publish are
// always part of a run.
func enabledSteps(cfg models.GenerationConfig) []string {
	var steps []string
	if cfg.Tautulli.Enabled {
		steps = append(steps, StepFetchTautulli, StepEnrichTMDB)
	}
	if cfg.Romm.Enabled {
		steps = append(steps, StepFetchRomm)
	}
	if cfg.Komga.Enabled {
		steps = append(steps, StepFetchKomga)
	}
	if cfg.Audiobookshelf.Enabled {
		steps = append(steps, StepFetchAudiobookshelf)
	}
	if cfg.Tunarr.Enabled {
		steps = append(steps, StepFetchTunarr)
	}
	if cfg.Statistics.Enabled {
		steps = append(steps, StepFetchStatistics)
	}
	steps = append(steps, StepRenderTemplate, StepPublishGhost)
	return steps
}

// StartGeneration creates the history row, registers the run and kicks
// off the pipeline goroutine. The returned history row is still pending.
func (s *Service) StartGeneration(cfg models.GenerationConfig, scheduleID string) (*models.History, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	h := &models.History{
		Status:     models.StatusPending,
		Title:      cfg.Title,
		Mode:       cfg.Mode,
		TemplateID: cfg.TemplateID,
		Config:     cfg,
	}
	if scheduleID != "" {
		h.ScheduleID = &scheduleID
	}

	id, err := s.history.Create(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create generation: %w", err)
	}
	h.ID = id

	tracker := NewTracker(s.bus, s.logger, id, enabledSteps(cfg))

	s.mu.Lock()
	s.active[id] = tracker
	s.mu.Unlock()
	s.metrics.SetActive(s.activeCount())

	go s.run(id, cfg, tracker)

	return h, nil
}

// Cancel requests cooperative cancellation of an active run. Returns
// false when the generation is not active.
func (s *Service) Cancel(generationID string) bool {
	s.mu.Lock()
	tracker, ok := s.active[generationID]
	s.mu.Unlock()

	if !ok {
		return false
	}
	tracker.CancelGeneration("Generation cancelled by user")
	return true
}

// IsActive reports whether a generation is currently running.
func (s *Service) IsActive(generationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[generationID]
	return ok
}

// ActiveIDs lists the currently running generations.
func (s *Service) ActiveIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	return ids
}

func (s *Service) activeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Service) removeActive(generationID string) {
	s.mu.Lock()
	delete(s.active, generationID)
	s.mu.Unlock()
	s.metrics.SetActive(s.activeCount())
}

// Preview renders a template against mock content for the editor.
func (s *Service) Preview(templateID string) (string, error) {
	var tmpl *models.Template
	var err error
	if templateID != "" {
		tmpl, err = s.templates.Get(templateID)
	} else {
		tmpl, err = s.templates.GetDefault()
	}
	if err != nil {
		return "", fmt.Errorf("failed to load template: %w", err)
	}

	html, err := template.Render(tmpl.Body, template.MockContext(time.Now()))
	if err != nil {
		return "", err
	}
	return html, nil
}

// run executes the pipeline for one generation. Runs in its own
// goroutine; all outcomes, including panics in integrations, end in a
// finalized history row.
func (s *Service) run(id string, cfg models.GenerationConfig, tracker *Tracker) {
	defer s.removeActive(id)

	started := time.Now()
	if err := s.history.MarkRunning(id); err != nil {
		s.logger.Error("failed to mark generation running", "generation_id", id, "error", err)
	}

	r := &run{
		svc:     s,
		id:      id,
		cfg:     cfg,
		tracker: tracker,
		logger:  s.logger.With("generation_id", id),
		date:    template.NewDateContext(time.Now(), cfg.Tautulli.Days),
	}
	// The title is rendered once and shared by render and publish.
	r.title = template.RenderTitle(cfg.Title, r.date)

	status := r.execute(context.Background())
	s.metrics.ObserveRun(string(status), time.Since(started))
}
