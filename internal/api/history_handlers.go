package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/ghostarr/ghostarr/internal/models"
)

// HistoryStore is the persistence surface the history API needs.
type HistoryStore interface {
	Get(id string) (*models.History, error)
	List(filter models.HistoryFilter) ([]*models.History, error)
	Delete(id string) error
}

// ActiveChecker reports whether a generation is still running.
type ActiveChecker interface {
	IsActive(generationID string) bool
}

// HistoryHandler serves past generation runs.
type HistoryHandler struct {
	store  HistoryStore
	active ActiveChecker
	logger *slog.Logger
}

func NewHistoryHandler(store HistoryStore, active ActiveChecker, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{store: store, active: active, logger: logger}
}

// List handles GET /api/history.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	filter := h.parseFilter(r)
	runs, err := h.store.List(filter)
	if err != nil {
		h.logger.Error("failed to list history", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"history": runs,
		"count":   len(runs),
	})
}

// ByID handles GET and DELETE on /api/history/:id.
func (h *HistoryHandler) ByID(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 4 || parts[3] == "" {
		writeError(w, h.logger, http.StatusBadRequest, "History ID required")
		return
	}
	id := parts[3]

	switch r.Method {
	case http.MethodGet:
		h.get(w, id)
	case http.MethodDelete:
		h.delete(w, id)
	default:
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *HistoryHandler) get(w http.ResponseWriter, id string) {
	run, err := h.store.Get(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, h.logger, http.StatusNotFound, "History entry not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get history entry", "id", id, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, run)
}

func (h *HistoryHandler) delete(w http.ResponseWriter, id string) {
	if h.active.IsActive(id) {
		writeError(w, h.logger, http.StatusConflict, "Cannot delete a running generation, cancel it first")
		return
	}

	err := h.store.Delete(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, h.logger, http.StatusNotFound, "History entry not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to delete history entry", "id", id, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusNoContent)
}

func (h *HistoryHandler) parseFilter(r *http.Request) models.HistoryFilter {
	q := r.URL.Query()
	filter := models.HistoryFilter{}

	if status := q.Get("status"); status != "" {
		filter.Status = models.GenerationStatus(status)
	}
	if scheduleID := q.Get("schedule_id"); scheduleID != "" {
		filter.ScheduleID = scheduleID
	}
	if since := q.Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			filter.Since = &t
		}
	}
	if until := q.Get("until"); until != "" {
		if t, err := time.Parse(time.RFC3339, until); err == nil {
			filter.Until = &t
		}
	}
	if limit := q.Get("limit"); limit != "" {
		if val, err := strconv.Atoi(limit); err == nil {
			filter.Limit = val
		}
	}
	if offset := q.Get("offset"); offset != "" {
		if val, err := strconv.Atoi(offset); err == nil {
			filter.Offset = val
		}
	}

	return filter
}
