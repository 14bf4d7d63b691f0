// Package apperr defines the error taxonomy shared by the domain services and
// the HTTP layer. Services return *Error values; handlers translate them into
// status codes with ToHTTP.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind classifies an application error.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindPrecondition Kind = "precondition"
	KindDependency   Kind = "dependency"
)

// Error is the concrete error type returned by the domain layer.
type Error struct {
	Kind    Kind
	Field   string // set for validation errors
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Field != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Field, e.Message, e.Err)
	case e.Field != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports a malformed or missing field.
func Validation(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: msg}
}

// NotFound reports an entity that is absent or not owned by the caller. The
// two cases are deliberately indistinguishable.
func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Message: entity + " not found"}
}

// Precondition reports a valid request that the entity's state forbids.
func Precondition(msg string) *Error {
	return &Error{Kind: KindPrecondition, Message: msg}
}

// Dependency wraps a storage or notification collaborator failure.
func Dependency(op string, err error) *Error {
	return &Error{Kind: KindDependency, Message: op, Err: err}
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps an error to a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindPrecondition:
		return http.StatusConflict
	case KindDependency:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// ToHTTP converts err into an echo.HTTPError. Dependency and unknown errors
// are reported with a generic message so storage details never leak.
func ToHTTP(err error) *echo.HTTPError {
	status := HTTPStatus(err)
	var ae *Error
	if !errors.As(err, &ae) {
		return echo.NewHTTPError(status, "internal server error").SetInternal(err)
	}
	switch ae.Kind {
	case KindDependency:
		return echo.NewHTTPError(status, "service temporarily unavailable").SetInternal(err)
	case KindValidation:
		return echo.NewHTTPError(status, map[string]string{
			"error": ae.Message,
			"field": ae.Field,
		})
	}
	return echo.NewHTTPError(status, ae.Message)
}

// RetryOnce runs fn and, if it fails with a dependency error, runs it one more
// time. Only idempotent reads may use it.
func RetryOnce[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	v, err := fn(ctx)
	if err == nil || !Is(err, KindDependency) || ctx.Err() != nil {
		return v, err
	}
	return fn(ctx)
}
