package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"log/slog"

	"github.com/ghostarr/ghostarr/internal/integrations"
	"github.com/ghostarr/ghostarr/internal/models"
)

// secretPlaceholder is returned in place of stored secrets. Clients
// send it back unchanged to mean "keep the current value".
const secretPlaceholder = "********"

// SettingsStore persists service credentials.
type SettingsStore interface {
	GetServiceConfig(service models.ServiceName) (models.ServiceConfig, error)
	SetServiceConfig(service models.ServiceName, cfg models.ServiceConfig) error
}

// ConnectionTester probes an external service with stored credentials.
type ConnectionTester interface {
	TestConnection(ctx context.Context) integrations.ConnectionStatus
}

// NewsletterLister lists the active Ghost newsletters.
type NewsletterLister interface {
	Newsletters(ctx context.Context) ([]integrations.Newsletter, error)
}

// SettingsHandler manages per-service credentials and connection tests.
type SettingsHandler struct {
	store   SettingsStore
	testers map[models.ServiceName]func(cfg models.ServiceConfig) ConnectionTester
	ghost   func(cfg models.ServiceConfig) NewsletterLister
	logger  *slog.Logger
}

func NewSettingsHandler(store SettingsStore, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{
		store: store,
		testers: map[models.ServiceName]func(cfg models.ServiceConfig) ConnectionTester{
			models.ServiceTautulli: func(cfg models.ServiceConfig) ConnectionTester {
				return integrations.NewTautulli(cfg.URL, cfg.APIKey, logger)
			},
			models.ServiceTMDB: func(cfg models.ServiceConfig) ConnectionTester {
				return integrations.NewTMDB(cfg.APIKey, logger)
			},
			models.ServiceRomm: func(cfg models.ServiceConfig) ConnectionTester {
				return integrations.NewRomm(cfg.URL, cfg.APIKey, cfg.Username, cfg.Password, logger)
			},
			models.ServiceKomga: func(cfg models.ServiceConfig) ConnectionTester {
				return integrations.NewKomga(cfg.URL, cfg.APIKey, cfg.Username, cfg.Password, logger)
			},
			models.ServiceAudiobookshelf: func(cfg models.ServiceConfig) ConnectionTester {
				return integrations.NewAudiobookshelf(cfg.URL, cfg.APIKey, logger)
			},
			models.ServiceTunarr: func(cfg models.ServiceConfig) ConnectionTester {
				return integrations.NewTunarr(cfg.URL, logger)
			},
			models.ServiceGhost: func(cfg models.ServiceConfig) ConnectionTester {
				return integrations.NewGhost(cfg.URL, cfg.APIKey, logger)
			},
		},
		ghost: func(cfg models.ServiceConfig) NewsletterLister {
			return integrations.NewGhost(cfg.URL, cfg.APIKey, logger)
		},
		logger: logger,
	}
}

// ListServices handles GET /api/settings/services.
func (h *SettingsHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	services := make(map[models.ServiceName]models.ServiceConfig, len(models.AllServices))
	for _, service := range models.AllServices {
		cfg, err := h.store.GetServiceConfig(service)
		if err != nil {
			h.logger.Error("failed to load service config", "service", service, "error", err)
			writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
			return
		}
		services[service] = redact(cfg)
	}

	writeJSON(w, h.logger, http.StatusOK, services)
}

// ServiceByName handles GET and PUT on /api/settings/services/:service,
// plus POST on /api/settings/services/:service/test.
func (h *SettingsHandler) ServiceByName(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 5 || parts[4] == "" {
		writeError(w, h.logger, http.StatusBadRequest, "Service name required")
		return
	}
	service := models.ServiceName(parts[4])
	if !knownService(service) {
		writeError(w, h.logger, http.StatusNotFound, "Unknown service")
		return
	}

	if len(parts) >= 6 && parts[5] == "test" {
		h.testService(w, r, service)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getService(w, service)
	case http.MethodPut:
		h.updateService(w, r, service)
	default:
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *SettingsHandler) getService(w http.ResponseWriter, service models.ServiceName) {
	cfg, err := h.store.GetServiceConfig(service)
	if err != nil {
		h.logger.Error("failed to load service config", "service", service, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, redact(cfg))
}

func (h *SettingsHandler) updateService(w http.ResponseWriter, r *http.Request, service models.ServiceName) {
	var cfg models.ServiceConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Placeholder secrets mean the client did not change them.
	if cfg.APIKey == secretPlaceholder || cfg.Password == secretPlaceholder {
		current, err := h.store.GetServiceConfig(service)
		if err != nil {
			h.logger.Error("failed to load current config", "service", service, "error", err)
			writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
			return
		}
		if cfg.APIKey == secretPlaceholder {
			cfg.APIKey = current.APIKey
		}
		if cfg.Password == secretPlaceholder {
			cfg.Password = current.Password
		}
	}

	if err := h.store.SetServiceConfig(service, cfg); err != nil {
		h.logger.Error("failed to save service config", "service", service, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.logger.Info("service config updated", "service", service, "enabled", cfg.Enabled)
	writeJSON(w, h.logger, http.StatusOK, redact(cfg))
}

func (h *SettingsHandler) testService(w http.ResponseWriter, r *http.Request, service models.ServiceName) {
	if r.Method != http.MethodPost {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	cfg, err := h.store.GetServiceConfig(service)
	if err != nil {
		h.logger.Error("failed to load service config", "service", service, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}
	if !cfg.Configured(service) {
		writeJSON(w, h.logger, http.StatusOK, integrations.ConnectionStatus{
			OK:      false,
			Message: "Not configured",
		})
		return
	}

	status := h.testers[service](cfg).TestConnection(r.Context())
	writeJSON(w, h.logger, http.StatusOK, status)
}

// GhostNewsletters handles GET /api/settings/ghost/newsletters so the
// UI can offer a newsletter picker for email sends.
func (h *SettingsHandler) GhostNewsletters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	cfg, err := h.store.GetServiceConfig(models.ServiceGhost)
	if err != nil {
		h.logger.Error("failed to load ghost config", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}
	if !cfg.Configured(models.ServiceGhost) {
		writeError(w, h.logger, http.StatusUnprocessableEntity, "Ghost is not configured")
		return
	}

	newsletters, err := h.ghost(cfg).Newsletters(r.Context())
	if err != nil {
		h.logger.Error("failed to list ghost newsletters", "error", err)
		writeError(w, h.logger, http.StatusBadGateway, "Failed to reach Ghost")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"newsletters": newsletters,
		"count":       len(newsletters),
	})
}

func redact(cfg models.ServiceConfig) models.ServiceConfig {
	if cfg.APIKey != "" {
		cfg.APIKey = secretPlaceholder
	}
	if cfg.Password != "" {
		cfg.Password = secretPlaceholder
	}
	return cfg
}

func knownService(service models.ServiceName) bool {
	for _, s := range models.AllServices {
		if s == service {
			return true
		}
	}
	return false
}
