package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/ghostarr/ghostarr/internal/models"
)

// HistoryRepository persists generation runs.
type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Create inserts a pending run and returns its ID.
func (r *HistoryRepository) Create(h *models.History) (string, error) {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	if h.Status == "" {
		h.Status = models.StatusPending
	}

	configJSON, err := json.Marshal(h.Config)
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	err = r.db.QueryRow(`
		INSERT INTO history (id, status, title, mode, template_id, schedule_id, config, progress, progress_log)
		VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid, $6, $7, 0, '[]')
		RETURNING created_at
	`, h.ID, h.Status, h.Title, h.Mode, h.TemplateID, h.ScheduleID, configJSON).Scan(&h.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("failed to create history row: %w", err)
	}

	return h.ID, nil
}

// MarkRunning transitions a pending run to running.
func (r *HistoryRepository) MarkRunning(id string) error {
	_, err := r.db.Exec(`
		UPDATE history SET status = $2, started_at = NOW() WHERE id = $1
	`, id, models.StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to mark history running: %w", err)
	}
	return nil
}

// CompleteParams is the terminal state written by the pipeline's
// finalizer, success or not.
type CompleteParams struct {
	Status       models.GenerationStatus
	Title        string
	Progress     int
	ProgressLog  models.ProgressLog
	ItemCount    int
	PostID       string
	PostURL      string
	ErrorMessage string
	Duration     time.Duration
}

// Complete finalizes a run. It always records completed_at and the
// final progress log.
func (r *HistoryRepository) Complete(id string, p CompleteParams) error {
	_, err := r.db.Exec(`
		UPDATE history
		SET status = $2,
		    title = COALESCE(NULLIF($3, ''), title),
		    progress = $4,
		    progress_log = $5,
		    item_count = $6,
		    post_id = NULLIF($7, ''),
		    post_url = NULLIF($8, ''),
		    error_message = NULLIF($9, ''),
		    completed_at = NOW(),
		    duration_ms = $10
		WHERE id = $1
	`, id, p.Status, p.Title, p.Progress, p.ProgressLog, p.ItemCount,
		p.PostID, p.PostURL, p.ErrorMessage, p.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to complete history row: %w", err)
	}
	return nil
}

const historyColumns = `id, status, title, mode, COALESCE(template_id::text, ''), schedule_id,
	config, progress, progress_log, item_count, post_id, post_url, error_message,
	created_at, started_at, completed_at, duration_ms`

func scanHistory(scanner interface{ Scan(...interface{}) error }) (*models.History, error) {
	var h models.History
	var configJSON []byte

	err := scanner.Scan(
		&h.ID, &h.Status, &h.Title, &h.Mode, &h.TemplateID, &h.ScheduleID,
		&configJSON, &h.Progress, &h.ProgressLog, &h.ItemCount,
		&h.PostID, &h.PostURL, &h.ErrorMessage,
		&h.CreatedAt, &h.StartedAt, &h.CompletedAt, &h.DurationMS,
	)
	if err != nil {
		return nil, err
	}

	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &h.Config); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	}
	return &h, nil
}

// Get returns one run, or sql.ErrNoRows.
func (r *HistoryRepository) Get(id string) (*models.History, error) {
	row := r.db.QueryRow("SELECT "+historyColumns+" FROM history WHERE id = $1", id)
	h, err := scanHistory(row)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get history row: %w", err)
	}
	return h, nil
}

// List returns runs matching the filter, newest first.
func (r *HistoryRepository) List(filter models.HistoryFilter) ([]*models.History, error) {
	query := psql.Select(historyColumns).From("history").OrderBy("created_at DESC")

	if filter.Status != "" {
		query = query.Where(sq.Eq{"status": filter.Status})
	}
	if filter.ScheduleID != "" {
		query = query.Where(sq.Eq{"schedule_id": filter.ScheduleID})
	}
	if filter.Since != nil {
		query = query.Where(sq.GtOrEq{"created_at": *filter.Since})
	}
	if filter.Until != nil {
		query = query.Where(sq.LtOrEq{"created_at": *filter.Until})
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query = query.Limit(uint64(limit))
	if filter.Offset > 0 {
		query = query.Offset(uint64(filter.Offset))
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build history query: %w", err)
	}

	rows, err := r.db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var items []*models.History
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		items = append(items, h)
	}
	return items, rows.Err()
}

// Delete removes one run.
func (r *HistoryRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM history WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete history row: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteOlderThan removes terminal runs older than the cutoff and
// returns their post IDs so the caller can delete the Ghost posts too.
func (r *HistoryRepository) DeleteOlderThan(cutoff time.Time) ([]string, error) {
	rows, err := r.db.Query(`
		DELETE FROM history
		WHERE created_at < $1 AND status IN ($2, $3, $4)
		RETURNING COALESCE(post_id, '')
	`, cutoff, models.StatusSuccess, models.StatusError, models.StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to delete old history: %w", err)
	}
	defer rows.Close()

	var postIDs []string
	for rows.Next() {
		var postID string
		if err := rows.Scan(&postID); err != nil {
			return nil, fmt.Errorf("failed to scan deleted row: %w", err)
		}
		if postID != "" {
			postIDs = append(postIDs, postID)
		}
	}
	return postIDs, rows.Err()
}

// ActiveCount returns how many runs are pending or running.
func (r *HistoryRepository) ActiveCount() (int, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM history WHERE status IN ($1, $2)
	`, models.StatusPending, models.StatusRunning).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active runs: %w", err)
	}
	return count, nil
}
