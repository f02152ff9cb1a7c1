package models

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a batch or record that failed its required-key check.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks an unknown mode name or missing sink setting.
	ErrConfiguration = errors.New("configuration error")
)

// SinkError is a delivery failure reported by a sink that is not retried.
type SinkError struct {
	Mode   OutputMode
	Status string
	Err    error
}

func (e *SinkError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s sink failed (status %s): %v", e.Mode, e.Status, e.Err)
	}
	return fmt.Sprintf("%s sink failed: %v", e.Mode, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// TransientSinkError is a retried failure whose attempts were exhausted.
type TransientSinkError struct {
	Mode     OutputMode
	Attempts int
	Err      error
}

func (e *TransientSinkError) Error() string {
	return fmt.Sprintf("%s sink failed after %d attempts: %v", e.Mode, e.Attempts, e.Err)
}

func (e *TransientSinkError) Unwrap() error { return e.Err }
