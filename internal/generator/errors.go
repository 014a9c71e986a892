package generator

import "fmt"

// GenerationError aborts a run. It is returned by fatal steps; non-fatal
// steps log and continue with empty data instead.
type GenerationError struct {
	Step    string
	Message string
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Step, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Step, e.Message)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func newGenerationError(step, message string, err error) *GenerationError {
	return &GenerationError{Step: step, Message: message, Err: err}
}
