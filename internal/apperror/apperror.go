// Package apperror defines the application's error taxonomy.
//
// Every error that crosses a layer boundary is either one of the sentinels
// below (checked with errors.Is) or an *AppError wrapping one of them. The
// route layer is the only place that turns them into redirects, status codes
// or fallback content.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("Validation Error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	// Identity and session errors.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateEmail     = errors.New("duplicate email")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrOAuthProvider      = errors.New("oauth provider error")

	// Collaborator errors.
	ErrUpstreamFeed = errors.New("upstream feed unavailable")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: lower-level error, kept for logs only
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the underlying cause, so errors.Is
// matches ErrStoreUnavailable as well as, say, context.Canceled.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict reports a uniqueness violation. field names the violated key
// ("email", "google_id", ...) so callers can tell which constraint fired.
func Conflict(field, value string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with value %s", field, value),
		Field:   field,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// InvalidCredentials is returned for every local login failure. The message
// is identical whatever the reason so callers cannot probe for accounts;
// reason is kept in Field for server-side logging only.
func InvalidCredentials(reason string) *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: "invalid email or password",
		Field:   reason,
	}
}

func DuplicateEmail(email string) *AppError {
	return &AppError{
		Err:     ErrDuplicateEmail,
		Message: "email is already in use",
		Field:   "email",
	}
}

// StoreUnavailable wraps a storage failure. op describes what was attempted.
func StoreUnavailable(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrStoreUnavailable,
		Message: fmt.Sprintf("store unavailable while %s", op),
		Cause:   cause,
	}
}

func OAuthProvider(provider string, cause error) *AppError {
	return &AppError{
		Err:     ErrOAuthProvider,
		Message: fmt.Sprintf("%s authentication failed", provider),
		Cause:   cause,
	}
}

func UpstreamFeed(cause error) *AppError {
	return &AppError{
		Err:     ErrUpstreamFeed,
		Message: "news feed unavailable",
		Cause:   cause,
	}
}

// IsConflictOn reports whether err is a uniqueness violation on field.
func IsConflictOn(err error, field string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && errors.Is(appErr.Err, ErrConflict) && appErr.Field == field
}
