package predict

import "fmt"

// InferenceError reports a failed model invocation. Row is -1 for single
// predictions.
type InferenceError struct {
	Row int
	Err error
}

func (e *InferenceError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("inference failed at row %d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("inference failed: %v", e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}
