package generator

import (
	"context"
	"errors"
	"fmt"

	"github.com/ghostarr/ghostarr/internal/database"
	"github.com/ghostarr/ghostarr/internal/integrations"
	"github.com/ghostarr/ghostarr/internal/models"
	"github.com/ghostarr/ghostarr/internal/template"

	"log/slog"
)

// run carries the state of one pipeline execution.
type run struct {
	svc     *Service
	id      string
	cfg     models.GenerationConfig
	tracker *Tracker
	logger  *slog.Logger

	date  template.DateContext
	title string

	movies     []integrations.MediaItem
	episodes   []integrations.MediaItem
	games      []integrations.GameItem
	books      []integrations.BookItem
	audiobooks []integrations.AudiobookItem
	programs   []integrations.Program
	stats      *integrations.Statistics

	postID  string
	postURL string
}

// execute drives the pipeline: primary fetch, enrichment, secondary
// fetches, statistics, render, publish. Cancellation is cooperative and
// checked between steps; fatal step errors abort, non-fatal steps
// degrade to empty results. Whatever happens, the history row is
// finalized.
func (r *run) execute(ctx context.Context) models.GenerationStatus {
	r.tracker.BroadcastStarted()

	steps := []func(context.Context) error{
		r.fetchTautulli,
		r.enrichTMDB,
		r.fetchRomm,
		r.fetchKomga,
		r.fetchAudiobookshelf,
		r.fetchTunarr,
		r.fetchStatistics,
	}

	for _, step := range steps {
		if err := step(ctx); err != nil {
			return r.fail(err)
		}
		if r.tracker.Cancelled() {
			return r.cancelled()
		}
	}

	if r.cfg.SkipIfEmpty && r.totalItems() == 0 {
		r.logger.Info("no new content, skipping newsletter")
		r.tracker.CompleteGeneration("Skipped: no new content", "")
		return r.finalize(models.StatusSuccess, "Skipped: no new content")
	}

	html, err := r.renderTemplate(ctx)
	if err != nil {
		return r.fail(err)
	}
	if r.tracker.Cancelled() {
		return r.cancelled()
	}

	if err := r.publishGhost(ctx, html); err != nil {
		return r.fail(err)
	}
	if r.tracker.Cancelled() {
		return r.cancelled()
	}

	r.tracker.CompleteGeneration("Newsletter generated successfully", r.postURL)
	return r.finalize(models.StatusSuccess, "")
}

func (r *run) fail(err error) models.GenerationStatus {
	r.logger.Error("generation failed", "error", err)

	var genErr *GenerationError
	step := ""
	if errors.As(err, &genErr) {
		step = genErr.Step
	}
	r.tracker.FailGeneration(step, err.Error())
	return r.finalize(models.StatusError, err.Error())
}

func (r *run) cancelled() models.GenerationStatus {
	r.logger.Info("generation cancelled, cleaning up")
	return r.finalize(models.StatusCancelled, "Cancelled by user")
}

// finalize always writes the terminal history state: status, final
// progress, the full progress log and the run duration.
func (r *run) finalize(status models.GenerationStatus, errorMessage string) models.GenerationStatus {
	params := database.CompleteParams{
		Status:       status,
		Title:        r.title,
		Progress:     r.tracker.Progress(),
		ProgressLog:  r.tracker.ProgressLog(),
		ItemCount:    r.totalItems(),
		PostID:       r.postID,
		PostURL:      r.postURL,
		ErrorMessage: errorMessage,
		Duration:     r.tracker.Duration(),
	}
	if err := r.svc.history.Complete(r.id, params); err != nil {
		r.logger.Error("failed to finalize history row", "error", err)
	}
	return status
}

func (r *run) totalItems() int {
	return len(r.movies) + len(r.episodes) + len(r.games) +
		len(r.books) + len(r.audiobooks) + len(r.programs)
}

// fetchTautulli is the primary content fetch. It is fatal: without
// media there is no newsletter to build.
func (r *run) fetchTautulli(ctx context.Context) error {
	if !r.cfg.Tautulli.Enabled {
		r.tracker.SkipStep(StepFetchTautulli, "Disabled")
		return nil
	}
	r.tracker.StartStep(StepFetchTautulli, "Fetching media from Tautulli...")

	creds, err := r.svc.settings.GetServiceConfig(models.ServiceTautulli)
	if err != nil {
		r.tracker.FailStep(StepFetchTautulli, err.Error())
		return newGenerationError(StepFetchTautulli, "failed to load credentials", err)
	}
	if !creds.Configured(models.ServiceTautulli) {
		r.tracker.SkipStep(StepFetchTautulli, "Not configured")
		return nil
	}

	source := r.svc.sources.Tautulli(creds)
	items, err := source.RecentlyAdded(ctx, r.cfg.Tautulli.Days, r.maxItemsHint(r.cfg.Tautulli))
	if err != nil {
		r.tracker.FailStep(StepFetchTautulli, err.Error())
		return newGenerationError(StepFetchTautulli, "fetch failed", err)
	}

	for _, item := range items {
		if item.MediaType == "episode" {
			r.episodes = append(r.episodes, item)
		} else {
			r.movies = append(r.movies, item)
		}
	}

	r.tracker.CompleteStep(StepFetchTautulli,
		fmt.Sprintf("Found %d movies, %d episodes", len(r.movies), len(r.episodes)),
		len(items))
	return nil
}

// enrichTMDB is non-fatal: any failure completes the step with zero
// enriched items and the pipeline continues with bare metadata.
func (r *run) enrichTMDB(ctx context.Context) error {
	if !r.cfg.Tautulli.Enabled {
		return nil
	}
	if len(r.movies)+len(r.episodes) == 0 {
		r.tracker.SkipStep(StepEnrichTMDB, "No media to enrich")
		return nil
	}
	r.tracker.StartStep(StepEnrichTMDB, "Enriching with TMDB metadata...")

	creds, err := r.svc.settings.GetServiceConfig(models.ServiceTMDB)
	if err != nil || !creds.Configured(models.ServiceTMDB) {
		r.tracker.SkipStep(StepEnrichTMDB, "TMDB not configured")
		return nil
	}

	enricher := r.svc.sources.TMDB(creds)
	enriched := 0
	if n, err := enricher.EnrichAll(ctx, r.movies); err != nil {
		r.logger.Warn("movie enrichment failed", "error", err)
	} else {
		enriched += n
	}
	if n, err := enricher.EnrichAll(ctx, r.episodes); err != nil {
		r.logger.Warn("episode enrichment failed", "error", err)
		if enriched == 0 {
			r.tracker.CompleteStep(StepEnrichTMDB, "Enrichment failed, continuing", 0)
			return nil
		}
	} else {
		enriched += n
	}

	r.tracker.CompleteStep(StepEnrichTMDB,
		fmt.Sprintf("Enriched %d items", enriched), enriched)
	return nil
}

func (r *run) fetchRomm(ctx context.Context) error {
	if !r.cfg.Romm.Enabled {
		r.tracker.SkipStep(StepFetchRomm, "Disabled")
		return nil
	}
	r.tracker.StartStep(StepFetchRomm, "Fetching games from ROMM...")

	creds, err := r.svc.settings.GetServiceConfig(models.ServiceRomm)
	if err != nil || !creds.Configured(models.ServiceRomm) {
		r.tracker.SkipStep(StepFetchRomm, "Not configured")
		return nil
	}

	games, err := r.svc.sources.Romm(creds).RecentlyAdded(ctx, r.cfg.Romm.Days, r.maxItemsHint(r.cfg.Romm))
	if err != nil {
		r.logger.Warn("romm fetch failed", "error", err)
		r.tracker.CompleteStep(StepFetchRomm, "Fetch failed, continuing", 0)
		return nil
	}

	r.games = games
	r.tracker.CompleteStep(StepFetchRomm,
		fmt.Sprintf("Found %d games", len(games)), len(games))
	return nil
}

func (r *run) fetchKomga(ctx context.Context) error {
	if !r.cfg.Komga.Enabled {
		r.tracker.SkipStep(StepFetchKomga, "Disabled")
		return nil
	}
	r.tracker.StartStep(StepFetchKomga, "Fetching books from Komga...")

	creds, err := r.svc.settings.GetServiceConfig(models.ServiceKomga)
	if err != nil || !creds.Configured(models.ServiceKomga) {
		r.tracker.SkipStep(StepFetchKomga, "Not configured")
		return nil
	}

	books, err := r.svc.sources.Komga(creds).RecentlyAdded(ctx, r.cfg.Komga.Days, r.maxItemsHint(r.cfg.Komga))
	if err != nil {
		r.logger.Warn("komga fetch failed", "error", err)
		r.tracker.CompleteStep(StepFetchKomga, "Fetch failed, continuing", 0)
		return nil
	}

	r.books = books
	r.tracker.CompleteStep(StepFetchKomga,
		fmt.Sprintf("Found %d books", len(books)), len(books))
	return nil
}

func (r *run) fetchAudiobookshelf(ctx context.Context) error {
	if !r.cfg.Audiobookshelf.Enabled {
		r.tracker.SkipStep(StepFetchAudiobookshelf, "Disabled")
		return nil
	}
	r.tracker.StartStep(StepFetchAudiobookshelf, "Fetching audiobooks...")

	creds, err := r.svc.settings.GetServiceConfig(models.ServiceAudiobookshelf)
	if err != nil || !creds.Configured(models.ServiceAudiobookshelf) {
		r.tracker.SkipStep(StepFetchAudiobookshelf, "Not configured")
		return nil
	}

	audiobooks, err := r.svc.sources.Audiobookshelf(creds).RecentlyAdded(ctx, r.cfg.Audiobookshelf.Days, r.maxItemsHint(r.cfg.Audiobookshelf))
	if err != nil {
		r.logger.Warn("audiobookshelf fetch failed", "error", err)
		r.tracker.CompleteStep(StepFetchAudiobookshelf, "Fetch failed, continuing", 0)
		return nil
	}

	r.audiobooks = audiobooks
	r.tracker.CompleteStep(StepFetchAudiobookshelf,
		fmt.Sprintf("Found %d audiobooks", len(audiobooks)), len(audiobooks))
	return nil
}

func (r *run) fetchTunarr(ctx context.Context) error {
	if !r.cfg.Tunarr.Enabled {
		r.tracker.SkipStep(StepFetchTunarr, "Disabled")
		return nil
	}
	r.tracker.StartStep(StepFetchTunarr, "Fetching TV programming...")

	creds, err := r.svc.settings.GetServiceConfig(models.ServiceTunarr)
	if err != nil || !creds.Configured(models.ServiceTunarr) {
		r.tracker.SkipStep(StepFetchTunarr, "Not configured")
		return nil
	}

	programs, err := r.svc.sources.Tunarr(creds).UpcomingPrograms(ctx, r.cfg.Tunarr.Days, r.cfg.Tunarr.Channels)
	if err != nil {
		r.logger.Warn("tunarr fetch failed", "error", err)
		r.tracker.CompleteStep(StepFetchTunarr, "Fetch failed, continuing", 0)
		return nil
	}

	r.programs = programs
	r.tracker.CompleteStep(StepFetchTunarr,
		fmt.Sprintf("Found %d programs", len(programs)), len(programs))
	return nil
}

func (r *run) fetchStatistics(ctx context.Context) error {
	if !r.cfg.Statistics.Enabled {
		r.tracker.SkipStep(StepFetchStatistics, "Disabled")
		return nil
	}
	r.tracker.StartStep(StepFetchStatistics, "Fetching statistics...")

	creds, err := r.svc.settings.GetServiceConfig(models.ServiceTautulli)
	if err != nil || !creds.Configured(models.ServiceTautulli) {
		r.tracker.SkipStep(StepFetchStatistics, "Tautulli not configured")
		return nil
	}

	stats, err := r.svc.sources.Tautulli(creds).Statistics(ctx, r.cfg.Statistics.Days, r.cfg.Statistics.IncludeComparison)
	if err != nil {
		r.logger.Warn("statistics fetch failed", "error", err)
		r.tracker.CompleteStep(StepFetchStatistics, "Fetch failed, continuing", 0)
		return nil
	}

	r.stats = stats
	r.tracker.CompleteStep(StepFetchStatistics,
		fmt.Sprintf("Collected statistics for %d days", r.cfg.Statistics.Days),
		stats.TotalPlays)
	return nil
}

// renderTemplate is fatal: a run without HTML has nothing to publish.
func (r *run) renderTemplate(ctx context.Context) (string, error) {
	r.tracker.StartStep(StepRenderTemplate, "Rendering newsletter...")

	var tmpl *models.Template
	var err error
	if r.cfg.TemplateID != "" {
		tmpl, err = r.svc.templates.Get(r.cfg.TemplateID)
	} else {
		tmpl, err = r.svc.templates.GetDefault()
	}
	if err != nil {
		r.tracker.FailStep(StepRenderTemplate, "Template not found")
		return "", newGenerationError(StepRenderTemplate, "template not found", err)
	}

	tctx := template.Context{
		Title:      r.title,
		Date:       r.date,
		Movies:     r.movies,
		Episodes:   r.episodes,
		Games:      r.games,
		Books:      r.books,
		Audiobooks: r.audiobooks,
		Programs:   r.programs,
		Statistics: r.stats,
		TotalItems: r.totalItems(),
	}

	html, err := template.Render(tmpl.Body, tctx)
	if err != nil {
		r.tracker.FailStep(StepRenderTemplate, err.Error())
		return "", newGenerationError(StepRenderTemplate, "render failed", err)
	}

	r.tracker.CompleteStep(StepRenderTemplate, "Newsletter rendered", -1)
	return html, nil
}

// publishGhost is fatal when Ghost rejects the post; an unconfigured
// Ghost just skips publication.
func (r *run) publishGhost(ctx context.Context, html string) error {
	r.tracker.StartStep(StepPublishGhost, "Publishing to Ghost...")

	creds, err := r.svc.settings.GetServiceConfig(models.ServiceGhost)
	if err != nil {
		r.tracker.FailStep(StepPublishGhost, err.Error())
		return newGenerationError(StepPublishGhost, "failed to load credentials", err)
	}
	if !creds.Configured(models.ServiceGhost) {
		r.tracker.SkipStep(StepPublishGhost, "Ghost not configured")
		return nil
	}

	opts := integrations.PublishOptions{NewsletterID: r.cfg.GhostNewsletterID}
	switch r.cfg.Mode {
	case models.ModePublish:
		opts.Publish = true
	case models.ModeEmail:
		opts.SendEmail = true
		opts.EmailOnly = true
	case models.ModeEmailPublish:
		opts.SendEmail = true
		opts.Publish = true
	}

	post, err := r.svc.sources.Ghost(creds).CreatePost(ctx, r.title, html, opts)
	if err != nil {
		r.tracker.FailStep(StepPublishGhost, err.Error())
		return newGenerationError(StepPublishGhost, "publish failed", err)
	}

	r.postID = post.ID
	r.postURL = post.URL
	r.tracker.CompleteStep(StepPublishGhost,
		fmt.Sprintf("Published as %s", post.Status), 1)
	return nil
}

// maxItemsHint combines the per-source and global item caps. It is a
// hint handed to fetchers, never enforced by truncating collected data.
func (r *run) maxItemsHint(src models.ContentSourceConfig) int {
	max := src.MaxItems
	if r.cfg.MaxTotalItems > 0 && (max <= 0 || r.cfg.MaxTotalItems < max) {
		max = r.cfg.MaxTotalItems
	}
	return max
}
