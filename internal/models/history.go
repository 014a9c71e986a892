package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

type GenerationStatus string

const (
	StatusPending   GenerationStatus = "pending"
	StatusRunning   GenerationStatus = "running"
	StatusSuccess   GenerationStatus = "success"
	StatusError     GenerationStatus = "error"
	StatusCancelled GenerationStatus = "cancelled"
)

type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// StepRecord is one entry of a generation's progress log: the current
// state of a pipeline step. The log holds one record per enabled step,
// in catalog order, updated in place as the run advances.
type StepRecord struct {
	Step        string     `json:"step"`
	Status      StepStatus `json:"status"`
	Message     string     `json:"message,omitempty"`
	ItemsCount  *int       `json:"items_count,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMS  *int64     `json:"duration_ms,omitempty"`
}

// ProgressLog is stored as a JSONB column on the history row.
type ProgressLog []StepRecord

func (p ProgressLog) Value() (driver.Value, error) {
	if p == nil {
		p = ProgressLog{}
	}
	return json.Marshal(p)
}

func (p *ProgressLog) Scan(value interface{}) error {
	if value == nil {
		*p = ProgressLog{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, p)
}

// History is one generation run, pending through terminal.
type History struct {
	ID           string           `json:"id"`
	Status       GenerationStatus `json:"status"`
	Title        string           `json:"title"`
	Mode         PublicationMode  `json:"mode"`
	TemplateID   string           `json:"template_id"`
	ScheduleID   *string          `json:"schedule_id,omitempty"`
	Config       GenerationConfig `json:"config"`
	Progress     int              `json:"progress"`
	ProgressLog  ProgressLog      `json:"progress_log"`
	ItemCount    int              `json:"item_count"`
	PostID       *string          `json:"post_id,omitempty"`
	PostURL      *string          `json:"post_url,omitempty"`
	ErrorMessage *string          `json:"error_message,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	DurationMS   *int64           `json:"duration_ms,omitempty"`
}

// HistoryFilter narrows List queries; zero values mean "no filter".
type HistoryFilter struct {
	Status     GenerationStatus
	ScheduleID string
	Since      *time.Time
	Until      *time.Time
	Limit      int
	Offset     int
}
