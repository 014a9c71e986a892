package models

import "fmt"

// PublicationMode controls what happens to the rendered newsletter in Ghost.
type PublicationMode string

const (
	ModeDraft        PublicationMode = "draft"
	ModePublish      PublicationMode = "publish"
	ModeEmail        PublicationMode = "email"
	ModeEmailPublish PublicationMode = "email+publish"
)

// ContentSourceConfig is the per-source fetch window shared by all
// content integrations.
type ContentSourceConfig struct {
	Enabled  bool `json:"enabled"`
	Days     int  `json:"days"`      // lookback window, 1-90
	MaxItems int  `json:"max_items"` // -1 means unlimited
}

// TunarrConfig adds channel selection on top of the common source fields.
type TunarrConfig struct {
	ContentSourceConfig
	Channels      []string `json:"channels,omitempty"`
	DisplayFormat string   `json:"display_format,omitempty"`
}

type StatisticsConfig struct {
	Enabled           bool `json:"enabled"`
	Days              int  `json:"days"`
	IncludeComparison bool `json:"include_comparison"`
}

// GenerationConfig describes a single newsletter run. Schedules persist
// one of these as JSON and replay it on every trigger.
type GenerationConfig struct {
	TemplateID        string              `json:"template_id"`
	Title             string              `json:"title"`
	Mode              PublicationMode     `json:"mode"`
	GhostNewsletterID string              `json:"ghost_newsletter_id,omitempty"`
	Tautulli          ContentSourceConfig `json:"tautulli"`
	Romm              ContentSourceConfig `json:"romm"`
	Komga             ContentSourceConfig `json:"komga"`
	Audiobookshelf    ContentSourceConfig `json:"audiobookshelf"`
	Tunarr            TunarrConfig        `json:"tunarr"`
	Statistics        StatisticsConfig    `json:"statistics"`
	MaxTotalItems     int                 `json:"max_total_items"` // advisory hint for fetchers
	SkipIfEmpty       bool                `json:"skip_if_empty"`
}

// DefaultGenerationConfig returns a config with the defaults applied to
// every field a caller is allowed to omit.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Title:          "Newsletter {{date.week}}",
		Mode:           ModeDraft,
		Tautulli:       ContentSourceConfig{Enabled: true, Days: 7, MaxItems: -1},
		Romm:           ContentSourceConfig{Days: 7, MaxItems: -1},
		Komga:          ContentSourceConfig{Days: 7, MaxItems: -1},
		Audiobookshelf: ContentSourceConfig{Days: 7, MaxItems: -1},
		Tunarr: TunarrConfig{
			ContentSourceConfig: ContentSourceConfig{Days: 7, MaxItems: -1},
			DisplayFormat:       "timeline",
		},
		Statistics:    StatisticsConfig{Days: 30},
		MaxTotalItems: -1,
	}
}

// Normalize fills zero values with defaults and clamps windows to the
// accepted 1-90 day range.
func (c *GenerationConfig) Normalize() {
	if c.Title == "" {
		c.Title = "Newsletter {{date.week}}"
	}
	if c.Mode == "" {
		c.Mode = ModeDraft
	}
	if c.MaxTotalItems == 0 {
		c.MaxTotalItems = -1
	}
	normalizeSource(&c.Tautulli)
	normalizeSource(&c.Romm)
	normalizeSource(&c.Komga)
	normalizeSource(&c.Audiobookshelf)
	normalizeSource(&c.Tunarr.ContentSourceConfig)
	if c.Tunarr.DisplayFormat == "" {
		c.Tunarr.DisplayFormat = "timeline"
	}
	if c.Statistics.Days <= 0 {
		c.Statistics.Days = 30
	} else if c.Statistics.Days > 90 {
		c.Statistics.Days = 90
	}
}

func normalizeSource(s *ContentSourceConfig) {
	if s.Days <= 0 {
		s.Days = 7
	} else if s.Days > 90 {
		s.Days = 90
	}
	if s.MaxItems == 0 {
		s.MaxItems = -1
	}
}

// Validate rejects configs that cannot produce a run.
func (c *GenerationConfig) Validate() error {
	switch c.Mode {
	case ModeDraft, ModePublish, ModeEmail, ModeEmailPublish:
	default:
		return fmt.Errorf("invalid publication mode %q", c.Mode)
	}
	return nil
}
