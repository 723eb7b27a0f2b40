// Package gwerrors defines the error taxonomy shared by the gateway's
// WebSocket and HTTP surfaces.
package gwerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the purpose of surface translation
// (HTTP status codes, WS error frames).
type Kind string

const (
	InvalidArgument    Kind = "InvalidArgument"
	InvalidPath        Kind = "InvalidPath"
	NotFound           Kind = "NotFound"
	PermissionDenied   Kind = "PermissionDenied"
	Conflict           Kind = "Conflict"
	SpawnFailed        Kind = "SpawnFailed"
	ChildExitedNonZero Kind = "ChildExitedNonZero"
	Internal           Kind = "Internal"
)

// Error wraps a Kind with a message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind of err, defaulting to Internal for anything
// that isn't a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// HTTPStatus maps a Kind to the status code the sibling HTTP surface
// should return.
func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidArgument, InvalidPath:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case PermissionDenied:
		return http.StatusForbidden
	case Conflict:
		return http.StatusConflict
	case Internal, SpawnFailed, ChildExitedNonZero:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
