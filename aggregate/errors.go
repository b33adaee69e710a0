package aggregate

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is the base error for configuration errors.
	ErrInvalidConfig = errors.New("aggregate: invalid config")

	// ErrInvalidCorrelationKey is returned when the correlation expression yields an empty key.
	ErrInvalidCorrelationKey = errors.New("aggregate: invalid correlation key")

	// ErrClosedCorrelationKey is returned for units whose correlation key was closed on completion.
	ErrClosedCorrelationKey = errors.New("aggregate: correlation key closed")

	// ErrAlreadyStarted is returned when Start is called more than once.
	ErrAlreadyStarted = errors.New("aggregate: already started")

	// ErrNotStarted is returned when units are processed before Start.
	ErrNotStarted = errors.New("aggregate: not started")

	// ErrStopped is returned when units are processed after Stop.
	ErrStopped = errors.New("aggregate: stopped")
)

// ConfigError reports an invalid configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("aggregate: invalid config: %s %s", e.Field, e.Reason)
}

// Unwrap returns ErrInvalidConfig.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// ExchangeError reports a failure to aggregate a single exchange.
type ExchangeError struct {
	ExchangeID string
	Key        string
	Err        error
}

func (e *ExchangeError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("aggregate: exchange %s: %v", e.ExchangeID, e.Err)
	}
	return fmt.Sprintf("aggregate: exchange %s (key %q): %v", e.ExchangeID, e.Key, e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}
