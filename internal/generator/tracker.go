package generator

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ghostarr/ghostarr/internal/events"
	"github.com/ghostarr/ghostarr/internal/models"
)

// Tracker records per-step state for one generation run and broadcasts
// every transition on the event bus. Progress is weighted: completed and
// skipped steps contribute their catalog weight, failed steps do not.
//
// Cancel may be called from another goroutine; all methods lock.
type Tracker struct {
	generationID string
	bus          *events.Bus
	logger       *slog.Logger

	mu              sync.Mutex
	steps           []*models.StepRecord
	currentStep     string
	cancelled       bool
	startTime       time.Time
	stepStart       time.Time
	totalWeight     int
	completedWeight int
}

// NewTracker builds a tracker for the enabled subset of the step
// catalog. Steps keep catalog order regardless of the order given.
func NewTracker(bus *events.Bus, logger *slog.Logger, generationID string, enabledSteps []string) *Tracker {
	enabled := make(map[string]bool, len(enabledSteps))
	for _, id := range enabledSteps {
		enabled[id] = true
	}

	t := &Tracker{
		generationID: generationID,
		bus:          bus,
		logger:       logger.With("component", "progress_tracker", "generation_id", generationID),
		startTime:    time.Now().UTC(),
	}

	for _, def := range generationSteps {
		if !enabled[def.id] {
			continue
		}
		t.totalWeight += def.weight
		t.steps = append(t.steps, &models.StepRecord{
			Step:    def.id,
			Status:  models.StepPending,
			Message: def.name,
		})
	}

	return t
}

// BroadcastStarted announces the run and its enabled steps.
func (t *Tracker) BroadcastStarted() {
	t.mu.Lock()
	steps := make([]map[string]interface{}, 0, len(t.steps))
	for _, s := range t.steps {
		steps = append(steps, map[string]interface{}{"step": s.Step, "message": s.Message})
	}
	t.mu.Unlock()

	t.bus.Publish(t.generationID, events.ProgressEvent{
		Type:     events.TypeGenerationStarted,
		Progress: 0,
		Message:  "Generation started",
		Data:     map[string]interface{}{"steps": steps},
	})
	t.logger.Info("generation started", "steps", len(steps))
}

func (t *Tracker) progressLocked() int {
	if t.totalWeight == 0 {
		return 0
	}
	p := t.completedWeight * 100 / t.totalWeight
	if p > 100 {
		p = 100
	}
	return p
}

// Progress returns the weighted completion percentage, 0-100.
func (t *Tracker) Progress() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progressLocked()
}

func (t *Tracker) findStep(stepID string) *models.StepRecord {
	for _, s := range t.steps {
		if s.Step == stepID {
			return s
		}
	}
	return nil
}

// StartStep marks a step running. No-op after cancellation or for steps
// outside the enabled set.
func (t *Tracker) StartStep(stepID, message string) {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	step := t.findStep(stepID)
	if step == nil {
		t.mu.Unlock()
		return
	}

	now := time.Now().UTC()
	t.currentStep = stepID
	t.stepStart = now

	step.Status = models.StepRunning
	step.StartedAt = &now
	if message != "" {
		step.Message = message
	}
	progress := t.progressLocked()
	msg := step.Message
	t.mu.Unlock()

	t.logger.Info("starting step", "step", stepID)
	t.bus.Publish(t.generationID, events.ProgressEvent{
		Type:     events.TypeStepStart,
		Step:     stepID,
		Progress: progress,
		Message:  msg,
	})
}

// CompleteStep marks a step done and adds its weight. itemsCount < 0
// means the step has no item count (render, publish).
func (t *Tracker) CompleteStep(stepID, message string, itemsCount int) {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	step := t.findStep(stepID)
	if step == nil {
		t.mu.Unlock()
		return
	}

	now := time.Now().UTC()
	step.Status = models.StepCompleted
	step.CompletedAt = &now
	if !t.stepStart.IsZero() {
		d := now.Sub(t.stepStart).Milliseconds()
		step.DurationMS = &d
	}
	if itemsCount >= 0 {
		count := itemsCount
		step.ItemsCount = &count
	}
	if message != "" {
		step.Message = message
	}

	t.completedWeight += stepWeight(stepID)
	progress := t.progressLocked()
	msg := step.Message
	t.mu.Unlock()

	t.logger.Info("completed step", "step", stepID, "items", itemsCount)

	data := map[string]interface{}{}
	if itemsCount >= 0 {
		data["items_count"] = itemsCount
	}
	t.bus.Publish(t.generationID, events.ProgressEvent{
		Type:     events.TypeStepComplete,
		Step:     stepID,
		Progress: progress,
		Message:  msg,
		Data:     data,
	})
}

// SkipStep marks a step skipped. Skipped weight still counts toward
// progress so a fully skipped run reaches 100.
func (t *Tracker) SkipStep(stepID, message string) {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	step := t.findStep(stepID)
	if step == nil {
		t.mu.Unlock()
		return
	}

	if message == "" {
		message = "Skipped"
	}
	step.Status = models.StepSkipped
	step.Message = message

	t.completedWeight += stepWeight(stepID)
	progress := t.progressLocked()
	t.mu.Unlock()

	t.logger.Info("skipped step", "step", stepID, "reason", message)
	t.bus.Publish(t.generationID, events.ProgressEvent{
		Type:     events.TypeStepSkipped,
		Step:     stepID,
		Progress: progress,
		Message:  message,
	})
}

// FailStep marks a step failed. Unlike the other transitions it also
// runs after cancellation, so a cancelled in-flight step is recorded.
// Failed weight is not added.
func (t *Tracker) FailStep(stepID, errMsg string) {
	t.mu.Lock()
	step := t.findStep(stepID)
	if step == nil {
		t.mu.Unlock()
		return
	}

	now := time.Now().UTC()
	step.Status = models.StepFailed
	step.CompletedAt = &now
	step.Error = errMsg
	if !t.stepStart.IsZero() {
		d := now.Sub(t.stepStart).Milliseconds()
		step.DurationMS = &d
	}
	progress := t.progressLocked()
	msg := step.Message
	t.mu.Unlock()

	t.logger.Error("step failed", "step", stepID, "error", errMsg)
	t.bus.Publish(t.generationID, events.ProgressEvent{
		Type:     events.TypeStepError,
		Step:     stepID,
		Progress: progress,
		Message:  msg,
		Data:     map[string]interface{}{"error": errMsg},
	})
}

// CompleteGeneration broadcasts the terminal success event.
func (t *Tracker) CompleteGeneration(message, postURL string) {
	if message == "" {
		message = "Generation complete"
	}
	data := map[string]interface{}{}
	if postURL != "" {
		data["ghost_post_url"] = postURL
	}

	t.logger.Info("generation complete")
	t.bus.Publish(t.generationID, events.ProgressEvent{
		Type:     events.TypeGenerationComplete,
		Step:     "complete",
		Progress: 100,
		Message:  message,
		Data:     data,
	})
}

// FailGeneration broadcasts the terminal error event.
func (t *Tracker) FailGeneration(step, message string) {
	t.bus.Publish(t.generationID, events.ProgressEvent{
		Type:     events.TypeGenerationError,
		Step:     step,
		Progress: events.ProgressUnchanged,
		Message:  message,
		Data:     map[string]interface{}{"error": message},
	})
}

// CancelGeneration flips the cancel flag, force-fails the in-flight step
// and broadcasts the terminal cancelled event with the unchanged-progress
// sentinel. Later Start/Complete/Skip calls become no-ops.
func (t *Tracker) CancelGeneration(message string) {
	if message == "" {
		message = "Generation cancelled"
	}

	t.mu.Lock()
	t.cancelled = true
	if t.currentStep != "" {
		if step := t.findStep(t.currentStep); step != nil && step.Status == models.StepRunning {
			step.Status = models.StepFailed
			step.Error = "Cancelled"
		}
	}
	t.mu.Unlock()

	t.logger.Info("generation cancelled")
	t.bus.Publish(t.generationID, events.ProgressEvent{
		Type:     events.TypeGenerationCancelled,
		Step:     "cancelled",
		Progress: events.ProgressUnchanged,
		Message:  message,
	})
}

// Cancelled reports whether the run was cancelled. The pipeline checks
// this between steps.
func (t *Tracker) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// ProgressLog returns a copy of the per-step records in catalog order.
func (t *Tracker) ProgressLog() models.ProgressLog {
	t.mu.Lock()
	defer t.mu.Unlock()

	log := make(models.ProgressLog, 0, len(t.steps))
	for _, s := range t.steps {
		log = append(log, *s)
	}
	return log
}

// TotalItems sums the item counts across all steps.
func (t *Tracker) TotalItems() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := 0
	for _, s := range t.steps {
		if s.ItemsCount != nil {
			total += *s.ItemsCount
		}
	}
	return total
}

// Duration is the wall time since the tracker was created.
func (t *Tracker) Duration() time.Duration {
	return time.Since(t.startTime)
}
