// Package errors provides centralized error definitions for the application.
// Errors are organized by domain to avoid duplication and provide consistent naming.
//
// Naming conventions:
//   - Exported errors (Err*): Use for errors that callers need to check with errors.Is
//   - Typed errors (*Error): Carry context and unwrap to their sentinel
//   - Use fmt.Errorf with %w to wrap sentinel errors with context
package errors

import (
	"errors"
	"fmt"
)

// Collection errors.
var (
	// ErrSourceUnavailable indicates a provider could not be reached after retries.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrMalformedRecord indicates a raw record lacks its identifier or title.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrMergeConflict indicates identifier and title matching disagree about the entity.
	ErrMergeConflict = errors.New("merge conflict")

	// ErrAllSourcesFailed indicates every adapter failed during a run.
	ErrAllSourcesFailed = errors.New("all sources failed")
)

// Orchestration errors.
var (
	// ErrAlreadyRunning indicates a collection run is already in progress.
	ErrAlreadyRunning = errors.New("collection already running")

	// ErrRunCancelled indicates a run was cancelled at a checkpoint.
	ErrRunCancelled = errors.New("run cancelled")
)

// Lookup errors.
var (
	// ErrNotFound is a generic not found error.
	ErrNotFound = errors.New("not found")
)

// Validation errors.
var (
	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")
)

// SourceUnavailableError carries the failing source.
type SourceUnavailableError struct {
	Source string
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Source, ErrSourceUnavailable)
	}

	return fmt.Sprintf("%s: %s: %v", e.Source, ErrSourceUnavailable, e.Err)
}

// Unwrap exposes both the sentinel and the cause.
func (e *SourceUnavailableError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSourceUnavailable}
	}

	return []error{ErrSourceUnavailable, e.Err}
}

// MalformedRecordError names the missing field.
type MalformedRecordError struct {
	Source string
	Field  string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("%s: %s: missing %s", e.Source, ErrMalformedRecord, e.Field)
}

// Unwrap returns ErrMalformedRecord.
func (e *MalformedRecordError) Unwrap() error {
	return ErrMalformedRecord
}

// Is is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
