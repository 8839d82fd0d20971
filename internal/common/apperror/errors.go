// internal/common/apperror/errors.go
// Error taxonomy shared by REST handlers and realtime events

package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping
type Kind string

const (
	KindAuth             Kind = "auth"
	KindValidation       Kind = "validation"
	KindNotFound         Kind = "not_found"
	KindForbidden        Kind = "forbidden"
	KindConflict         Kind = "conflict"
	KindRecipientOffline Kind = "recipient_offline"
	KindServer           Kind = "server"
)

// AppError is a classified error carrying a stable machine code
type AppError struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches on kind and code so that a wrapped copy of a sentinel
// still satisfies errors.Is against the sentinel.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// Status returns the HTTP status for the error kind
func (e *AppError) Status() int {
	switch e.Kind {
	case KindAuth:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict, KindRecipientOffline:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WithCause returns a copy of e wrapping err
func (e *AppError) WithCause(err error) *AppError {
	cp := *e
	cp.Err = err
	return &cp
}

// WithMessage returns a copy of e with a different human message
func (e *AppError) WithMessage(message string) *AppError {
	cp := *e
	cp.Message = message
	return &cp
}

func New(kind Kind, code, message string) *AppError {
	return &AppError{Kind: kind, Code: code, Message: message}
}

func Auth(message string) *AppError {
	return New(KindAuth, "AUTH_ERROR", message)
}

func Validation(code, message string) *AppError {
	return New(KindValidation, code, message)
}

func NotFound(code, message string) *AppError {
	return New(KindNotFound, code, message)
}

func Forbidden(code, message string) *AppError {
	return New(KindForbidden, code, message)
}

func Conflict(code, message string) *AppError {
	return New(KindConflict, code, message)
}

func RecipientOffline(message string) *AppError {
	return New(KindRecipientOffline, "RECIPIENT_OFFLINE", message)
}

// Internal wraps an unexpected failure. The cause is kept for logs and
// never shown to clients.
func Internal(message string, err error) *AppError {
	return &AppError{Kind: KindServer, Code: "SERVER_ERROR", Message: message, Err: err}
}

// From extracts an AppError from err, classifying anything unknown as a
// server error.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("internal server error", err)
}

// KindOf reports the kind of err
func KindOf(err error) Kind {
	return From(err).Kind
}

// IsKind reports whether err is an AppError of the given kind
func IsKind(err error, kind Kind) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// HTTPStatus maps err to a response status
func HTTPStatus(err error) int {
	return From(err).Status()
}
