package domain

import "errors"

var (
	// ErrImageNotFound is returned when the job names a file missing from the image folder
	ErrImageNotFound = errors.New("image not found")

	// ErrMaxAttemptsExceeded marks a job moved to the dead-letter queue
	ErrMaxAttemptsExceeded = errors.New("max attempts exceeded")
)

// ProcessingError wraps a failure with the stage and file it happened on
type ProcessingError struct {
	Stage    string
	FileName string
	Err      error
}

func (e *ProcessingError) Error() string {
	if e.FileName == "" {
		return e.Stage + ": " + e.Err.Error()
	}
	return e.Stage + " " + e.FileName + ": " + e.Err.Error()
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// NewProcessingError creates a new processing error
func NewProcessingError(stage, fileName string, err error) error {
	return &ProcessingError{Stage: stage, FileName: fileName, Err: err}
}
