package generator

import (
	"context"
	"log/slog"

	"github.com/ghostarr/ghostarr/internal/integrations"
	"github.com/ghostarr/ghostarr/internal/models"
)

// MediaSource is the primary content fetcher (Tautulli).
type MediaSource interface {
	RecentlyAdded(ctx context.Context, days, maxItems int) ([]integrations.MediaItem, error)
	Statistics(ctx context.Context, days int, includeComparison bool) (*integrations.Statistics, error)
}

// Enricher fills media metadata in place and reports how many items it
// enriched.
type Enricher interface {
	EnrichAll(ctx context.Context, items []integrations.MediaItem) (int, error)
}

type GameSource interface {
	RecentlyAdded(ctx context.Context, days, maxItems int) ([]integrations.GameItem, error)
}

type BookSource interface {
	RecentlyAdded(ctx context.Context, days, maxItems int) ([]integrations.BookItem, error)
}

type AudiobookSource interface {
	RecentlyAdded(ctx context.Context, days, maxItems int) ([]integrations.AudiobookItem, error)
}

type ProgramSource interface {
	UpcomingPrograms(ctx context.Context, days int, channels []string) ([]integrations.Program, error)
}

// Publisher is the Ghost CMS client surface the pipeline needs.
type Publisher interface {
	CreatePost(ctx context.Context, title, html string, opts integrations.PublishOptions) (*integrations.Post, error)
	DeletePost(ctx context.Context, postID string) error
}

// Sources builds per-run integration clients from stored credentials.
// Tests swap individual constructors for fakes.
type Sources struct {
	Tautulli       func(cfg models.ServiceConfig) MediaSource
	TMDB           func(cfg models.ServiceConfig) Enricher
	Romm           func(cfg models.ServiceConfig) GameSource
	Komga          func(cfg models.ServiceConfig) BookSource
	Audiobookshelf func(cfg models.ServiceConfig) AudiobookSource
	Tunarr         func(cfg models.ServiceConfig) ProgramSource
	Ghost          func(cfg models.ServiceConfig) Publisher
}

// DefaultSources wires the real integration clients.
func DefaultSources(logger *slog.Logger) Sources {
	return Sources{
		Tautulli: func(cfg models.ServiceConfig) MediaSource {
			return integrations.NewTautulli(cfg.URL, cfg.APIKey, logger)
		},
		TMDB: func(cfg models.ServiceConfig) Enricher {
			return integrations.NewTMDB(cfg.APIKey, logger)
		},
		Romm: func(cfg models.ServiceConfig) GameSource {
			return integrations.NewRomm(cfg.URL, cfg.APIKey, cfg.Username, cfg.Password, logger)
		},
		Komga: func(cfg models.ServiceConfig) BookSource {
			return integrations.NewKomga(cfg.URL, cfg.APIKey, cfg.Username, cfg.Password, logger)
		},
		Audiobookshelf: func(cfg models.ServiceConfig) AudiobookSource {
			return integrations.NewAudiobookshelf(cfg.URL, cfg.APIKey, logger)
		},
		Tunarr: func(cfg models.ServiceConfig) ProgramSource {
			return integrations.NewTunarr(cfg.URL, logger)
		},
		Ghost: func(cfg models.ServiceConfig) Publisher {
			return integrations.NewGhost(cfg.URL, cfg.APIKey, logger)
		},
	}
}
