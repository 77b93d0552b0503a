package validator

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a single failed rule on a named field.
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is the collection returned by Apply.
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}

	parts := make([]string, 0, len(ve))
	for _, err := range ve {
		parts = append(parts, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether any error was recorded for the given field.
func (ve ValidationErrors) Has(field string) bool {
	for _, err := range ve {
		if err.Field == field {
			return true
		}
	}
	return false
}

// Rule pairs a check with the error to record when the check fails.
type Rule struct {
	Check func() bool
	Error ValidationError
}

// Apply executes all rules and returns the collected failures, or nil when
// every rule passes.
func Apply(rules ...Rule) error {
	var failures ValidationErrors

	for _, rule := range rules {
		if !rule.Check() {
			failures = append(failures, rule.Error)
		}
	}

	if len(failures) == 0 {
		return nil
	}
	return failures
}

// Extract pulls ValidationErrors out of an error chain, or nil if absent.
func Extract(err error) ValidationErrors {
	if err == nil {
		return nil
	}

	var ve ValidationErrors
	if errors.As(err, &ve) {
		return ve
	}
	return nil
}

// IsValidationError reports whether err carries ValidationErrors.
func IsValidationError(err error) bool {
	return Extract(err) != nil
}
