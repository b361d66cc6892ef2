package phasesignal

import (
	"errors"
	"fmt"
)

// ErrorCode represents specific error conditions of a signal
type ErrorCode int

const (
	// No error occurred
	ErrCodeNone ErrorCode = iota
	// Start was called on a signal that is already running
	ErrCodeAlreadyStarted
	// Configuration is invalid
	ErrCodeInvalidConfiguration
	// An observer panicked while being notified
	ErrCodeObserverPanic
)

// String returns a short name for the code
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeNone:
		return "none"
	case ErrCodeAlreadyStarted:
		return "already_started"
	case ErrCodeInvalidConfiguration:
		return "invalid_configuration"
	case ErrCodeObserverPanic:
		return "observer_panic"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// SignalError represents signal operation errors
type SignalError struct {
	Code      ErrorCode
	Signal    string
	Operation string
	Message   string
}

func (e *SignalError) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("signal error [%s] during %s: %s", e.Signal, e.Operation, e.Message)
	}
	return fmt.Sprintf("signal error during %s: %s", e.Operation, e.Message)
}

// NewSignalError creates a new signal error
func NewSignalError(code ErrorCode, signal, operation, message string) *SignalError {
	return &SignalError{
		Code:      code,
		Signal:    signal,
		Operation: operation,
		Message:   message,
	}
}

// NewAlreadyStartedError creates the error raised by a second Start
func NewAlreadyStartedError(signal string) *SignalError {
	return &SignalError{
		Code:      ErrCodeAlreadyStarted,
		Signal:    signal,
		Operation: "Start",
		Message:   "signal is already started; Start must be called at most once",
	}
}

// ConfigurationError represents configuration issues
type ConfigurationError struct {
	Component string
	Issue     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Issue)
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(component, issue string) *ConfigurationError {
	return &ConfigurationError{
		Component: component,
		Issue:     issue,
	}
}

// IsSignalError checks if err is or wraps a SignalError
func IsSignalError(err error) bool {
	var e *SignalError
	return errors.As(err, &e)
}

// IsConfigurationError checks if err is or wraps a ConfigurationError
func IsConfigurationError(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}

// GetErrorCode returns the error code for known error types
func GetErrorCode(err error) ErrorCode {
	var signalErr *SignalError
	if errors.As(err, &signalErr) {
		return signalErr.Code
	}
	var configErr *ConfigurationError
	if errors.As(err, &configErr) {
		return ErrCodeInvalidConfiguration
	}
	return ErrCodeNone
}
