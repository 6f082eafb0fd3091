// Package errors defines the typed errors shared across the risk engines.
// Invalid input and invalid configuration are rejected at the boundary;
// numerically degenerate inputs (zero variance, zero volume) are legitimate
// edge cases handled by the engines themselves and are never errors.
package errors

import (
	"errors"
	"fmt"
)

// InvalidInputError reports input rejected at an engine boundary, such as an
// empty return series, a NaN value, or a non-positive price.
type InvalidInputError struct {
	Op     string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("%s: invalid input: %s", e.Op, e.Reason)
}

// NewInvalidInput creates an InvalidInputError for the given operation.
func NewInvalidInput(op, format string, args ...interface{}) *InvalidInputError {
	return &InvalidInputError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// IsInvalidInput checks whether err is an InvalidInputError.
func IsInvalidInput(err error) bool {
	var target *InvalidInputError
	return errors.As(err, &target)
}

// ConfigError reports configuration rejected at construction time, before any
// trade can be evaluated.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

// NewConfigError creates a ConfigError for the given field.
func NewConfigError(field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsConfigError checks whether err is a ConfigError.
func IsConfigError(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}
