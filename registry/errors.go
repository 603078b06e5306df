package registry

import (
	"errors"
	"fmt"
	"strings"
)

// UndefinedStepError reports a step text with no registered pattern.
// It fails the owning step only, never the run.
type UndefinedStepError struct {
	Text string
}

func (e *UndefinedStepError) Error() string {
	return fmt.Sprintf("undefined step: no registered pattern matches %q", e.Text)
}

// IsUndefinedStepError checks if the error is or wraps an UndefinedStepError.
func IsUndefinedStepError(err error) bool {
	var target *UndefinedStepError
	return err != nil && errors.As(err, &target)
}

// AmbiguousStepError reports a step text matched by more than one pattern.
// It fails the owning step only, never the run.
type AmbiguousStepError struct {
	Text     string
	Patterns []string
}

func (e *AmbiguousStepError) Error() string {
	return fmt.Sprintf("ambiguous step: %q matches %d patterns: %s",
		e.Text, len(e.Patterns), strings.Join(e.Patterns, ", "))
}

// IsAmbiguousStepError checks if the error is or wraps an AmbiguousStepError.
func IsAmbiguousStepError(err error) bool {
	var target *AmbiguousStepError
	return err != nil && errors.As(err, &target)
}
