package taskwire

import (
	"errors"
	"fmt"
)

// Common errors returned by the Taskwire client.
var (
	// ErrTaskNotFound is returned when a task is not in the projection.
	ErrTaskNotFound = errors.New("task not found")

	// ErrEmptyName is returned when a task name is empty.
	ErrEmptyName = errors.New("task name cannot be empty")

	// ErrNameTooLong is returned when a task name exceeds MaxTaskNameLength.
	ErrNameTooLong = errors.New("task name exceeds maximum length")

	// ErrStoreClosed is returned when operating on a closed log store.
	ErrStoreClosed = errors.New("log store is closed")

	// ErrOffline is returned when a network operation is attempted while
	// the engine believes it is offline.
	ErrOffline = errors.New("operation unavailable while offline")

	// ErrSyncInFlight is returned when a sync is requested while one is
	// already running.
	ErrSyncInFlight = errors.New("a sync request is already in flight")

	// ErrAllLoaded is returned when loading more from an exhausted
	// paginator.
	ErrAllLoaded = errors.New("all pages already loaded")

	// ErrLoadInFlight is returned when a page load is requested while one
	// is already running.
	ErrLoadInFlight = errors.New("a page load is already in flight")

	// ErrEngineHalted is returned for local mutations while the engine is
	// parked in the failed-changes modal state.
	ErrEngineHalted = errors.New("engine halted: failed changes need to be discarded")
)

// ErrorClass buckets sync failures for the retry policy. Network and server
// failures look transient and are auto-retried; unknown failures are
// surfaced with their raw payload and wait for an explicit retry.
type ErrorClass string

const (
	ErrorClassNetwork ErrorClass = "network"
	ErrorClassServer  ErrorClass = "server"
	ErrorClassUnknown ErrorClass = "unknown"
)

// ValidationError is returned when configuration validation fails.
// Extractable via errors.As().
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// SyncError is returned when a sync request fails as a whole. Class drives
// the engine's passive-error state; StatusCode is zero when no response was
// received. Extractable via errors.As(). Supports Unwrap().
type SyncError struct {
	Class      ErrorClass
	StatusCode int
	Err        error
}

func (e *SyncError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("sync: %s failure (status %d): %v", e.Class, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("sync: %s failure: %v", e.Class, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// Classify maps an error from the transport to its ErrorClass. Errors that
// already carry a class keep it; anything unrecognized is unknown.
func Classify(err error) ErrorClass {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Class
	}
	return ErrorClassUnknown
}
