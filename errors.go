package vecserve

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/vecserve/backend"
	"github.com/hupe1980/vecserve/resource"
)

// Code is the stable, client-visible classification of an error.
type Code string

// Error codes.
const (
	CodeLoadFailed         Code = "LOAD_FAILED"
	CodeUnsupportedBackend Code = "UNSUPPORTED_BACKEND"
	CodeNoIndex            Code = "NO_INDEX"
	CodeDimensionMismatch  Code = "DIMENSION_MISMATCH"
	CodeInvalidValue       Code = "INVALID_VALUE"
	CodeInvalidField       Code = "INVALID_FIELD"
	CodeInvalidJSON        Code = "INVALID_JSON"
	CodeMissingField       Code = "MISSING_FIELD"
	CodeCanceled           Code = "CANCELED"
	CodeInternal           Code = "INTERNAL_ERROR"
)

var (
	// ErrNoIndexLoaded is returned by Query before the first successful Load.
	ErrNoIndexLoaded = errors.New("no index loaded")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrUnsupportedBackend is returned for backend names without a
	// constructor.
	ErrUnsupportedBackend = backend.ErrUnsupportedBackend

	// ErrInvalidField is returned for malformed input values.
	ErrInvalidField = errors.New("invalid field")

	// ErrMissingField is returned when a required input is absent.
	ErrMissingField = errors.New("missing field")

	// ErrLoadFailed wraps every snapshot loading failure.
	ErrLoadFailed = errors.New("load failed")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("service closed")

	// ErrCanceled is returned when the caller's context ends before a query
	// runs.
	ErrCanceled = errors.New("request canceled")
)

// ErrDimensionMismatch indicates a query whose length differs from the
// active dimension.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Error pairs a code with a message. Transport layers build it with
// NewError or WrapError; CodeOf understands it.
//
// The underlying error (if any) can be accessed via errors.Unwrap.
type Error struct {
	Code    Code
	Message string
	cause   error
}

// NewError returns an *Error with the given code.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError is NewError with err kept as the cause.
func WrapError(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

// CodeOf maps err onto the code taxonomy. Unknown errors are internal.
func CodeOf(err error) Code {
	var ce *Error
	var dm *ErrDimensionMismatch
	var ml *resource.ErrMemoryLimit

	switch {
	case err == nil:
		return ""
	case errors.As(err, &ce):
		return ce.Code
	case errors.Is(err, ErrNoIndexLoaded):
		return CodeNoIndex
	case errors.As(err, &dm):
		return CodeDimensionMismatch
	case errors.Is(err, ErrInvalidK):
		return CodeInvalidValue
	case errors.Is(err, ErrUnsupportedBackend):
		return CodeUnsupportedBackend
	case errors.Is(err, ErrMissingField):
		return CodeMissingField
	case errors.Is(err, ErrInvalidField):
		return CodeInvalidField
	case errors.Is(err, ErrLoadFailed), errors.As(err, &ml):
		return CodeLoadFailed
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCanceled
	default:
		return CodeInternal
	}
}
