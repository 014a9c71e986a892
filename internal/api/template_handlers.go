package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/ghostarr/ghostarr/internal/models"
	"github.com/ghostarr/ghostarr/internal/template"
)

// TemplateStore persists newsletter templates.
type TemplateStore interface {
	Create(t *models.Template) error
	Get(id string) (*models.Template, error)
	List() ([]*models.Template, error)
	Update(t *models.Template) error
	Delete(id string) error
}

// TemplateHandler serves template CRUD and raw-body previews.
type TemplateHandler struct {
	store  TemplateStore
	logger *slog.Logger
}

func NewTemplateHandler(store TemplateStore, logger *slog.Logger) *TemplateHandler {
	return &TemplateHandler{store: store, logger: logger}
}

// Collection handles GET and POST on /api/templates.
func (h *TemplateHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w)
	case http.MethodPost:
		h.create(w, r)
	default:
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// ByID handles GET, PUT and DELETE on /api/templates/:id.
func (h *TemplateHandler) ByID(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 4 || parts[3] == "" {
		writeError(w, h.logger, http.StatusBadRequest, "Template ID required")
		return
	}
	id := parts[3]

	switch r.Method {
	case http.MethodGet:
		h.get(w, id)
	case http.MethodPut:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, id)
	default:
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// Preview handles POST /api/templates/preview: renders a raw template
// body against mock content without saving it.
func (h *TemplateHandler) Preview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Body == "" {
		writeError(w, h.logger, http.StatusBadRequest, "Template body required")
		return
	}

	html, err := template.Render(req.Body, template.MockContext(time.Now()))
	if err != nil {
		writeError(w, h.logger, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]string{"html": html})
}

func (h *TemplateHandler) list(w http.ResponseWriter) {
	templates, err := h.store.List()
	if err != nil {
		h.logger.Error("failed to list templates", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"templates": templates,
		"count":     len(templates),
	})
}

func (h *TemplateHandler) create(w http.ResponseWriter, r *http.Request) {
	var tmpl models.Template
	if err := json.NewDecoder(r.Body).Decode(&tmpl); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if tmpl.Name == "" || tmpl.Body == "" {
		writeError(w, h.logger, http.StatusBadRequest, "Missing required fields: name, body")
		return
	}
	if err := validateTemplateBody(tmpl.Body); err != nil {
		writeError(w, h.logger, http.StatusUnprocessableEntity, err.Error())
		return
	}

	tmpl.IsBuiltin = false
	if err := h.store.Create(&tmpl); err != nil {
		h.logger.Error("failed to create template", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.logger.Info("template created", "template_id", tmpl.ID, "name", tmpl.Name)
	writeJSON(w, h.logger, http.StatusCreated, tmpl)
}

func (h *TemplateHandler) get(w http.ResponseWriter, id string) {
	tmpl, err := h.store.Get(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, h.logger, http.StatusNotFound, "Template not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get template", "id", id, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, tmpl)
}

func (h *TemplateHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	var tmpl models.Template
	if err := json.NewDecoder(r.Body).Decode(&tmpl); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validateTemplateBody(tmpl.Body); err != nil {
		writeError(w, h.logger, http.StatusUnprocessableEntity, err.Error())
		return
	}

	tmpl.ID = id
	err := h.store.Update(&tmpl)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, h.logger, http.StatusNotFound, "Template not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to update template", "id", id, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, tmpl)
}

func (h *TemplateHandler) delete(w http.ResponseWriter, id string) {
	err := h.store.Delete(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, h.logger, http.StatusNotFound, "Template not found or builtin")
		return
	}
	if err != nil {
		h.logger.Error("failed to delete template", "id", id, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusNoContent)
}

// validateTemplateBody rejects bodies that cannot render, so broken
// templates fail at save time instead of during a run.
func validateTemplateBody(body string) error {
	_, err := template.Render(body, template.MockContext(time.Now()))
	return err
}
