package stepflow

import (
	"errors"
	"fmt"
)

// RuntimeError represents an operational fault during execution that should
// lead to exit code 2. Examples include planning failures and panics.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// ScenarioFailureError represents scenarios that ran and failed (exit code 1)
type ScenarioFailureError struct {
	Message string
}

func (e *ScenarioFailureError) Error() string {
	return fmt.Sprintf("scenario failure: %s", e.Message)
}

// NewScenarioFailureError creates a new ScenarioFailureError
func NewScenarioFailureError(message string) *ScenarioFailureError {
	return &ScenarioFailureError{Message: message}
}

// IsScenarioFailureError checks if the error is or wraps a ScenarioFailureError
func IsScenarioFailureError(err error) bool {
	var failErr *ScenarioFailureError
	return err != nil && errors.As(err, &failErr)
}

// ConfigurationError is fatal and aborts the run before planning (exit code 3)
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NewConfigurationError creates a new ConfigurationError
func NewConfigurationError(err error) *ConfigurationError {
	return &ConfigurationError{Err: err}
}

// IsConfigurationError checks if the error is or wraps a ConfigurationError
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return err != nil && errors.As(err, &cfgErr)
}

// DiscoveryError is fatal: no plan is produced (exit code 4). The run still
// emits a minimal valid summary so reporting has something to render.
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// NewDiscoveryError creates a new DiscoveryError
func NewDiscoveryError(err error) *DiscoveryError {
	return &DiscoveryError{Err: err}
}

// IsDiscoveryError checks if the error is or wraps a DiscoveryError
func IsDiscoveryError(err error) bool {
	var discErr *DiscoveryError
	return err != nil && errors.As(err, &discErr)
}
