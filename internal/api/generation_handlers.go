package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"log/slog"

	"github.com/ghostarr/ghostarr/internal/generator"
	"github.com/ghostarr/ghostarr/internal/models"
)

// GenerationHandler exposes newsletter runs: start, preview, cancel and
// the active-run listing.
type GenerationHandler struct {
	service *generator.Service
	logger  *slog.Logger
}

func NewGenerationHandler(service *generator.Service, logger *slog.Logger) *GenerationHandler {
	return &GenerationHandler{service: service, logger: logger}
}

// Generate handles POST /api/newsletters/generate. The body is a
// partial GenerationConfig; omitted fields keep their defaults.
func (h *GenerationHandler) Generate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	cfg := models.DefaultGenerationConfig()
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, h.logger, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	history, err := h.service.StartGeneration(cfg, "")
	if err != nil {
		h.logger.Error("failed to start generation", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info("generation started", "generation_id", history.ID, "mode", cfg.Mode)
	writeJSON(w, h.logger, http.StatusAccepted, history)
}

// Preview handles POST /api/newsletters/preview: renders a template
// against mock content so the editor can show the result.
func (h *GenerationHandler) Preview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req struct {
		TemplateID string `json:"template_id"`
	}
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, h.logger, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	html, err := h.service.Preview(req.TemplateID)
	if err != nil {
		h.logger.Error("preview failed", "template_id", req.TemplateID, "error", err)
		writeError(w, h.logger, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]string{"html": html})
}

// Active handles GET /api/newsletters/active.
func (h *GenerationHandler) Active(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ids := h.service.ActiveIDs()
	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"active": ids,
		"count":  len(ids),
	})
}

// Cancel handles POST /api/newsletters/:id/cancel.
func (h *GenerationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 5 {
		writeError(w, h.logger, http.StatusBadRequest, "Generation ID required")
		return
	}
	generationID := parts[3]

	if !h.service.Cancel(generationID) {
		writeError(w, h.logger, http.StatusNotFound, "No active generation with that ID")
		return
	}

	h.logger.Info("generation cancellation requested", "generation_id", generationID)
	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"success":       true,
		"generation_id": generationID,
	})
}
