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
	"github.com/ghostarr/ghostarr/internal/scheduler"
)

// ScheduleStore persists generation schedules.
type ScheduleStore interface {
	Create(s *models.Schedule) error
	Get(id string) (*models.Schedule, error)
	List() ([]*models.Schedule, error)
	Update(s *models.Schedule) error
	Delete(id string) error
}

// GenerationStarter triggers a run from a schedule's stored config.
type GenerationStarter interface {
	StartGeneration(cfg models.GenerationConfig, scheduleID string) (*models.History, error)
}

// ScheduleHandler serves schedule CRUD plus manual run triggers.
type ScheduleHandler struct {
	store     ScheduleStore
	generator GenerationStarter
	logger    *slog.Logger
}

func NewScheduleHandler(store ScheduleStore, generator GenerationStarter, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{store: store, generator: generator, logger: logger}
}

// Collection handles GET and POST on /api/schedules.
func (h *ScheduleHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w)
	case http.MethodPost:
		h.create(w, r)
	default:
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// ByID handles /api/schedules/:id and /api/schedules/:id/run.
func (h *ScheduleHandler) ByID(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 4 || parts[3] == "" {
		writeError(w, h.logger, http.StatusBadRequest, "Schedule ID required")
		return
	}
	id := parts[3]

	if len(parts) >= 5 && parts[4] == "run" {
		h.runNow(w, r, id)
		return
	}

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

func (h *ScheduleHandler) list(w http.ResponseWriter) {
	schedules, err := h.store.List()
	if err != nil {
		h.logger.Error("failed to list schedules", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"schedules": schedules,
		"count":     len(schedules),
	})
}

func (h *ScheduleHandler) create(w http.ResponseWriter, r *http.Request) {
	var schedule models.Schedule
	if err := json.NewDecoder(r.Body).Decode(&schedule); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if schedule.Name == "" || schedule.CronExpr == "" {
		writeError(w, h.logger, http.StatusBadRequest, "Missing required fields: name, cron_expr")
		return
	}
	if err := scheduler.ValidateCron(schedule.CronExpr); err != nil {
		writeError(w, h.logger, http.StatusUnprocessableEntity, "Invalid cron expression: "+err.Error())
		return
	}

	schedule.Config.Normalize()
	if err := schedule.Config.Validate(); err != nil {
		writeError(w, h.logger, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if schedule.Enabled {
		next, err := scheduler.NextRun(schedule.CronExpr, time.Now())
		if err == nil {
			schedule.NextRunAt = &next
		}
	}

	if err := h.store.Create(&schedule); err != nil {
		h.logger.Error("failed to create schedule", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.logger.Info("schedule created", "schedule_id", schedule.ID, "name", schedule.Name, "cron_expr", schedule.CronExpr)
	writeJSON(w, h.logger, http.StatusCreated, schedule)
}

func (h *ScheduleHandler) get(w http.ResponseWriter, id string) {
	schedule, err := h.store.Get(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, h.logger, http.StatusNotFound, "Schedule not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get schedule", "id", id, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, schedule)
}

func (h *ScheduleHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	var schedule models.Schedule
	if err := json.NewDecoder(r.Body).Decode(&schedule); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := scheduler.ValidateCron(schedule.CronExpr); err != nil {
		writeError(w, h.logger, http.StatusUnprocessableEntity, "Invalid cron expression: "+err.Error())
		return
	}

	schedule.Config.Normalize()
	if err := schedule.Config.Validate(); err != nil {
		writeError(w, h.logger, http.StatusUnprocessableEntity, err.Error())
		return
	}

	schedule.ID = id
	schedule.NextRunAt = nil
	if schedule.Enabled {
		next, err := scheduler.NextRun(schedule.CronExpr, time.Now())
		if err == nil {
			schedule.NextRunAt = &next
		}
	}

	err := h.store.Update(&schedule)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, h.logger, http.StatusNotFound, "Schedule not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to update schedule", "id", id, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, schedule)
}

func (h *ScheduleHandler) delete(w http.ResponseWriter, id string) {
	err := h.store.Delete(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, h.logger, http.StatusNotFound, "Schedule not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to delete schedule", "id", id, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusNoContent)
}

// runNow handles POST /api/schedules/:id/run: fires the schedule's
// config immediately without touching its cron timing.
func (h *ScheduleHandler) runNow(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	schedule, err := h.store.Get(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, h.logger, http.StatusNotFound, "Schedule not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get schedule", "id", id, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	history, err := h.generator.StartGeneration(schedule.Config, schedule.ID)
	if err != nil {
		h.logger.Error("failed to start manual schedule run", "schedule_id", id, "error", err)
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info("manual schedule run started", "schedule_id", id, "generation_id", history.ID)
	writeJSON(w, h.logger, http.StatusAccepted, history)
}
