// Package types provides shared response types used by the voicebox web surface.
package types

import "strings"

// FieldError is a validation failure of one request field.
type FieldError struct {
	Field   string `json:"field"` // JSON name, e.g. "playback[audio/wav]"
	Message string `json:"message"`
	Value   any    `json:"value"`
}

// ValidationError collects the field errors of one request. It is sent to the
// client as is, so the page can point at the offending field.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

// NewValidationError creates a new empty ValidationError.
func NewValidationError() *ValidationError {
	return &ValidationError{
		Errors: make([]FieldError, 0),
	}
}

// Add adds a field error to the collection.
func (v *ValidationError) Add(field, message string, value any) {
	v.Errors = append(v.Errors, FieldError{
		Field:   field,
		Message: message,
		Value:   value,
	})
}

// Error implements error.
func (v *ValidationError) Error() string {
	parts := make([]string, 0, len(v.Errors))
	for _, e := range v.Errors {
		if e.Field == "" {
			parts = append(parts, e.Message)
			continue
		}
		parts = append(parts, e.Field+" "+e.Message)
	}
	return "invalid request: " + strings.Join(parts, "; ")
}
