package models

import "time"

// ServiceName identifies an external integration in the settings store.
type ServiceName string

const (
	ServiceTautulli       ServiceName = "tautulli"
	ServiceTMDB           ServiceName = "tmdb"
	ServiceRomm           ServiceName = "romm"
	ServiceKomga          ServiceName = "komga"
	ServiceAudiobookshelf ServiceName = "audiobookshelf"
	ServiceTunarr         ServiceName = "tunarr"
	ServiceGhost          ServiceName = "ghost"
)

// AllServices lists every service key the settings API accepts.
var AllServices = []ServiceName{
	ServiceTautulli,
	ServiceTMDB,
	ServiceRomm,
	ServiceKomga,
	ServiceAudiobookshelf,
	ServiceTunarr,
	ServiceGhost,
}

// ServiceConfig holds the credentials for one external service.
// APIKey and Password are encrypted at rest.
type ServiceConfig struct {
	Enabled  bool   `json:"enabled"`
	URL      string `json:"url,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// Configured reports whether the service has enough credentials to be
// called. TMDB only needs a key; RoMM accepts either an API key or a
// username/password pair.
func (c ServiceConfig) Configured(service ServiceName) bool {
	switch service {
	case ServiceTMDB:
		return c.APIKey != ""
	case ServiceRomm:
		return c.URL != "" && (c.APIKey != "" || (c.Username != "" && c.Password != ""))
	case ServiceKomga, ServiceAudiobookshelf:
		return c.URL != "" && (c.APIKey != "" || (c.Username != "" && c.Password != ""))
	case ServiceTunarr:
		return c.URL != ""
	default:
		return c.URL != "" && c.APIKey != ""
	}
}

// Setting is one row of the key/value settings table. Values are JSON
// documents; service credentials live under "services.<name>".
type Setting struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
