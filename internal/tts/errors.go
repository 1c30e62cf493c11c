package tts

import (
	"errors"
	"fmt"
)

// Common errors for the announcement system.
var (
	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("required configuration missing")

	// Request errors
	ErrEmptyMessage   = errors.New("message cannot be empty")
	ErrInvalidRequest = errors.New("invalid announcement request")

	// Scheduler errors
	ErrSchedulerStopped = errors.New("scheduler has been stopped")
	ErrWorkerPanic      = errors.New("announcement worker panicked")

	// Registry errors
	ErrUnknownInstance = errors.New("unknown instance")
)

// ConfigError reports a configuration value that prevents an instance from
// starting.
type ConfigError struct {
	Instance string // Instance name, if known
	Field    string // Configuration key
	Value    any    // Offending value
	Err      error  // Underlying reason
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	prefix := e.Field
	if e.Instance != "" {
		prefix = e.Instance + "." + e.Field
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: invalid value %v: %v", prefix, e.Value, e.Err)
	}
	return fmt.Sprintf("%s: invalid value %v", prefix, e.Value)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is makes every ConfigError match ErrInvalidConfig.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func configErr(instance, field string, value any, format string, args ...any) *ConfigError {
	return &ConfigError{
		Instance: instance,
		Field:    field,
		Value:    value,
		Err:      fmt.Errorf(format, args...),
	}
}

// OutputError is a failed call against an output. It never propagates past
// the announcement that caused it.
type OutputError struct {
	Op     string // speak, set_volume, stop, play_media, read_state
	Target string // Output the call was made against
	Err    error  // The underlying error
}

// Error implements the error interface.
func (e *OutputError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
}

// Unwrap returns the underlying error.
func (e *OutputError) Unwrap() error {
	return e.Err
}

// IsRecoverableError checks if an error leaves the instance usable.
func IsRecoverableError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, ErrInvalidConfig) || errors.Is(err, ErrMissingConfig) || errors.Is(err, ErrSchedulerStopped) {
		return false
	}
	// Most errors are recoverable
	return true
}
