// Package server handles recorder connections: WebSocket commands, audio
// fragments and request validation.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/oszuidwest/zwfm-voicebox/internal/config"
	"github.com/oszuidwest/zwfm-voicebox/internal/types"
)

// validate is the shared validator instance for request validation.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Use JSON tag names in error messages instead of struct field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})

	if err := validate.RegisterValidation("folder", func(fl validator.FieldLevel) bool {
		return config.IsValidFolder(fl.Field().String())
	}); err != nil {
		panic(err)
	}
}

// DecodeAndValidate decodes the command data into data and validates it. An
// empty payload leaves data at its zero value. It returns false after sending
// the error result.
func DecodeAndValidate[T any](cmd WSCommand, send chan<- any, data *T) bool {
	if len(cmd.Data) > 0 {
		if err := json.Unmarshal(cmd.Data, data); err != nil {
			SendError(send, cmd.Type, fmt.Errorf("invalid JSON: %w", err))
			return false
		}
	}

	if verr := ValidateStruct(data); verr != nil {
		SendError(send, cmd.Type, verr)
		return false
	}

	return true
}

// ValidateStruct validates v with the shared request validator and converts
// failures to a ValidationError.
func ValidateStruct(v any) *types.ValidationError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	return toValidationError(err)
}

// HandleActionAsync runs a command action asynchronously with panic recovery.
func HandleActionAsync(cmd WSCommand, send chan<- any, action func() (any, error)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in async handler", "command", cmd.Type, "panic", r)
				SendError(send, cmd.Type, fmt.Errorf("internal error"))
			}
		}()

		result, err := action()
		if err != nil {
			SendError(send, cmd.Type, err)
			return
		}
		SendSuccess(send, cmd.Type, result)
	}()
}

// --- Response helpers ---

// SendSuccess sends a success response for a command.
func SendSuccess(send chan<- any, cmdType string, data any) {
	result := map[string]any{
		"type":    cmdType + "_result",
		"success": true,
	}
	if data != nil {
		result["data"] = data
	}
	trySend(send, cmdType, result)
}

// SendError sends an error response for a command. Validation errors are sent
// with their field details, anything else as its message.
func SendError(send chan<- any, cmdType string, err error) {
	result := map[string]any{
		"type":    cmdType + "_result",
		"success": false,
		"error":   err.Error(),
	}
	var verr *types.ValidationError
	if errors.As(err, &verr) {
		result["error"] = verr
	}
	trySend(send, cmdType, result)
}

// toValidationError converts validator errors to our format.
func toValidationError(err error) *types.ValidationError {
	verr := types.NewValidationError()

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		verr.Add("", err.Error(), nil)
		return verr
	}
	for _, e := range fieldErrors {
		verr.Add(e.Field(), formatValidationMessage(e), e.Value())
	}
	return verr
}

// trySend queues msg without blocking. A full queue means the writer is stuck
// on a slow client, so the message is dropped.
func trySend(send chan<- any, cmdType string, msg any) {
	select {
	case send <- msg:
	default:
		slog.Warn("dropped response: send queue full", "type", cmdType)
	}
}

// formatValidationMessage creates a human-readable message from a validator error.
func formatValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", e.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "folder":
		return "must be a single folder name"
	case "printascii":
		return "must contain printable ASCII only"
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}
