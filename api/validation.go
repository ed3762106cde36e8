// Package api provides the gin HTTP boundary of an autocomplete replica.
package api

import (
	"strconv"

	"github.com/gcbaptista/go-autocomplete/config"
)

// ValidationError represents a validation error with field context
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult holds the result of validation operations
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// AddError adds a validation error to the result
func (vr *ValidationResult) AddError(field, message string) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, ValidationError{
		Field:   field,
		Message: message,
	})
}

// HasErrors returns true if there are validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// ValidateTopK parses the k query parameter. An absent value yields the
// default and values above the maximum are capped.
func ValidateTopK(raw string, settings config.SearchSettings) (int, *ValidationResult) {
	result := &ValidationResult{Valid: true}

	if raw == "" {
		return settings.DefaultTopK, result
	}

	k, err := strconv.Atoi(raw)
	if err != nil {
		result.AddError("k", "k must be an integer")
		return 0, result
	}
	if k < 1 {
		result.AddError("k", "k must be at least 1")
		return 0, result
	}

	return min(k, settings.MaxTopK), result
}

// ValidatePhrase validates a submitted phrase
func ValidatePhrase(phrase string) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if phrase == "" {
		result.AddError("phrase", "Missing phrase")
	}

	return result
}
