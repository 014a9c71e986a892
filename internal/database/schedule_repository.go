package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ghostarr/ghostarr/internal/models"
)

// ScheduleRepository persists generation schedules.
type ScheduleRepository struct {
	db *sql.DB
}

func NewScheduleRepository(db *sql.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

const scheduleColumns = "id, name, cron_expr, config, enabled, last_run_at, next_run_at, created_at, updated_at"

func scanSchedule(scanner interface{ Scan(...interface{}) error }) (*models.Schedule, error) {
	var s models.Schedule
	var config models.ScheduleConfig

	err := scanner.Scan(&s.ID, &s.Name, &s.CronExpr, &config, &s.Enabled,
		&s.LastRunAt, &s.NextRunAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Config = models.GenerationConfig(config)
	return &s, nil
}

func (r *ScheduleRepository) Create(s *models.Schedule) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}

	err := r.db.QueryRow(`
		INSERT INTO schedules (id, name, cron_expr, config, enabled, next_run_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, s.ID, s.Name, s.CronExpr, models.ScheduleConfig(s.Config), s.Enabled, s.NextRunAt).
		Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}
	return nil
}

func (r *ScheduleRepository) Get(id string) (*models.Schedule, error) {
	row := r.db.QueryRow("SELECT "+scheduleColumns+" FROM schedules WHERE id = $1", id)
	s, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return s, nil
}

func (r *ScheduleRepository) List() ([]*models.Schedule, error) {
	rows, err := r.db.Query("SELECT " + scheduleColumns + " FROM schedules ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*models.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

// ListDue returns enabled schedules whose next run is at or before now.
func (r *ScheduleRepository) ListDue(now time.Time) ([]*models.Schedule, error) {
	rows, err := r.db.Query(`
		SELECT `+scheduleColumns+` FROM schedules
		WHERE enabled AND next_run_at IS NOT NULL AND next_run_at <= $1
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*models.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

func (r *ScheduleRepository) Update(s *models.Schedule) error {
	result, err := r.db.Exec(`
		UPDATE schedules
		SET name = $2, cron_expr = $3, config = $4, enabled = $5, next_run_at = $6, updated_at = NOW()
		WHERE id = $1
	`, s.ID, s.Name, s.CronExpr, models.ScheduleConfig(s.Config), s.Enabled, s.NextRunAt)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkRun records a trigger and the next due time.
func (r *ScheduleRepository) MarkRun(id string, ranAt, nextRun time.Time) error {
	_, err := r.db.Exec(`
		UPDATE schedules SET last_run_at = $2, next_run_at = $3, updated_at = NOW() WHERE id = $1
	`, id, ranAt, nextRun)
	if err != nil {
		return fmt.Errorf("failed to mark schedule run: %w", err)
	}
	return nil
}

func (r *ScheduleRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM schedules WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
