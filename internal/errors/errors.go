// Package errors defines the error taxonomy of the HTTP surface and
// maps each kind to a status code and a JSON response body.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for status mapping and metrics labels.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindRateLimited Kind = "rate_limited"
	KindInternal    Kind = "internal"
)

var statusByKind = map[Kind]int{
	KindValidation:  http.StatusBadRequest,
	KindNotFound:    http.StatusNotFound,
	KindRateLimited: http.StatusTooManyRequests,
	KindInternal:    http.StatusInternalServerError,
}

// Error carries a kind, a client-safe message and optional diagnostic
// fields. The cause, if any, is logged but never sent to the client.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Fields  map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus maps the kind to its response status code.
func (e *Error) HTTPStatus() int {
	if status, ok := statusByKind[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WithContext attaches a diagnostic field. Chainable.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

func ValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func NotFoundError(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func RateLimitedError(message string) *Error {
	return &Error{Kind: KindRateLimited, Message: message}
}

func InternalError(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, Cause: cause}
}

// From coerces any error into a typed *Error, wrapping unclassified
// errors as internal.
func From(err error) *Error {
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return InternalError("internal server error", err)
}

// body is the JSON shape written to clients.
type body struct {
	Error  string         `json:"error"`
	Type   Kind           `json:"type"`
	Fields map[string]any `json:"context,omitempty"`
}

func (e *Error) response() body {
	return body{Error: e.Message, Type: e.Kind, Fields: e.Fields}
}
