package events

import "time"

// Event type vocabulary published during a generation run.
const (
	TypeGenerationStarted   = "generation_started"
	TypeStepStart           = "step_start"
	TypeStepComplete        = "step_complete"
	TypeStepSkipped         = "step_skipped"
	TypeStepError           = "step_error"
	TypeGenerationComplete  = "generation_complete"
	TypeGenerationCancelled = "generation_cancelled"
	TypeGenerationError     = "generation_error"
)

// ProgressUnchanged is the Progress value of events that do not move the
// bar, such as cancellation notices.
const ProgressUnchanged = -1

// ProgressEvent is the unit pushed through the bus and out over SSE.
type ProgressEvent struct {
	Type      string                 `json:"type"`
	Step      string                 `json:"step,omitempty"`
	Progress  int                    `json:"progress"`
	Message   string                 `json:"message,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Terminal reports whether the event ends its generation's stream.
func (e ProgressEvent) Terminal() bool {
	switch e.Type {
	case TypeGenerationComplete, TypeGenerationCancelled, TypeGenerationError:
		return true
	}
	return false
}
