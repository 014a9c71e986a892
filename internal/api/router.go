package api

import (
	"net/http"
	"strings"

	"log/slog"

	"github.com/ghostarr/ghostarr/internal/database"
	"github.com/ghostarr/ghostarr/internal/events"
	"github.com/ghostarr/ghostarr/internal/generator"
)

// SetupRoutes configures all API routes
func SetupRoutes(
	mux *http.ServeMux,
	service *generator.Service,
	bus *events.Bus,
	historyRepo *database.HistoryRepository,
	settingRepo *database.SettingRepository,
	templateRepo *database.TemplateRepository,
	scheduleRepo *database.ScheduleRepository,
	logger *slog.Logger,
) {
	generationHandler := NewGenerationHandler(service, logger)
	progressHandler := NewProgressHandler(bus, logger)
	historyHandler := NewHistoryHandler(historyRepo, service, logger)
	settingsHandler := NewSettingsHandler(settingRepo, logger)
	templateHandler := NewTemplateHandler(templateRepo, logger)
	scheduleHandler := NewScheduleHandler(scheduleRepo, service, logger)

	// Newsletter generation routes
	mux.HandleFunc("/api/newsletters/generate", generationHandler.Generate)
	mux.HandleFunc("/api/newsletters/preview", generationHandler.Preview)
	mux.HandleFunc("/api/newsletters/active", generationHandler.Active)
	mux.HandleFunc("/api/newsletters/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/cancel") {
			generationHandler.Cancel(w, r)
			return
		}
		if strings.HasSuffix(r.URL.Path, "/progress") {
			progressHandler.Stream(w, r)
			return
		}
		http.NotFound(w, r)
	})

	// History routes
	mux.HandleFunc("/api/history", historyHandler.List)
	mux.HandleFunc("/api/history/", historyHandler.ByID)

	// Settings routes
	mux.HandleFunc("/api/settings/services", settingsHandler.ListServices)
	mux.HandleFunc("/api/settings/services/", settingsHandler.ServiceByName)
	mux.HandleFunc("/api/settings/ghost/newsletters", settingsHandler.GhostNewsletters)

	// Template routes
	mux.HandleFunc("/api/templates", templateHandler.Collection)
	mux.HandleFunc("/api/templates/preview", templateHandler.Preview)
	mux.HandleFunc("/api/templates/", templateHandler.ByID)

	// Schedule routes
	mux.HandleFunc("/api/schedules", scheduleHandler.Collection)
	mux.HandleFunc("/api/schedules/", scheduleHandler.ByID)

	// CORS preflight
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	})
}
