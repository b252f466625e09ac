package handler

// RESPONSE HELPERS:
// Every JSON body this package writes has the same shape:
//
//	{"success": false, "error": "duplicate_email", "message": "Email já está em uso."}
//
// The register endpoint's API clients, /healthz and any future JSON route
// all parse the same fields.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/newsroom/internal/apperror"
)

// Response is the JSON envelope returned by the JSON endpoints.
type Response struct {
	Success bool              `json:"success"`
	Error   string            `json:"error,omitempty"`   // Machine-readable error type (e.g., "duplicate_email")
	Message string            `json:"message,omitempty"` // Human-readable description
	Errors  map[string]string `json:"errors,omitempty"`  // Per-field validation messages
}

// writeJSON sends a JSON response with the given status code.
//
// Headers and status must be set BEFORE the body: once Encode writes, any
// header change is silently ignored.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorStatus maps a domain error to an HTTP status, a machine-readable type
// and a message that is safe to show.
//
// errors.Is walks the whole chain, so a service error like
//
//	fmt.Errorf("service/auth: creating user: %w", apperror.StoreUnavailable(...))
//
// still maps to 500. Anything unrecognised is a generic 500; raw messages
// may carry SQL or file paths and are never exposed.
func errorStatus(err error) (int, string, string) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError, "internal_error", msgServerError
	}

	switch {
	case errors.Is(err, apperror.ErrStoreUnavailable):
		return http.StatusInternalServerError, "internal_error", msgServerError
	case errors.Is(err, apperror.ErrDuplicateEmail):
		return http.StatusConflict, "duplicate_email", msgDuplicateEmail
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error", appErr.Message
	case errors.Is(err, apperror.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", appErr.Message
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found", appErr.Message
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden", appErr.Message
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict", appErr.Message
	}
	return http.StatusInternalServerError, "internal_error", msgServerError
}

// writeError sends err as a JSON Response.
func writeError(w http.ResponseWriter, err error) {
	status, errorType, message := errorStatus(err)
	writeJSON(w, status, Response{
		Success: false,
		Error:   errorType,
		Message: message,
	})
}

// wantsJSON reports whether the client sent or asked for JSON. Browsers
// submitting the HTML form get HTML back; fetch() clients get JSON.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Content-Type"), "application/json") ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}
