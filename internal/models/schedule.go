package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Schedule triggers a generation on a cron expression, replaying its
// stored GenerationConfig on every run.
type Schedule struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	CronExpr  string           `json:"cron_expr"`
	Config    GenerationConfig `json:"config"`
	Enabled   bool             `json:"enabled"`
	LastRunAt *time.Time       `json:"last_run_at,omitempty"`
	NextRunAt *time.Time       `json:"next_run_at,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// ScheduleConfig wraps GenerationConfig for the JSONB column.
type ScheduleConfig GenerationConfig

func (c ScheduleConfig) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *ScheduleConfig) Scan(value interface{}) error {
	if value == nil {
		*c = ScheduleConfig(DefaultGenerationConfig())
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, c)
}
