package models

import (
	"errors"
	"net/http"
)

type Kind string

const (
	KindInvalidArgument Kind = "invalid-argument"
	KindInternal        Kind = "internal"
)

// Error is the only error type a callable returns to its caller.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func InvalidArgument(message string) *Error {
	return &Error{Kind: KindInvalidArgument, Message: message}
}

func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// AsError converts any error into an *Error; unknown errors become internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err.Error(), err)
}

func KindOf(err error) Kind {
	if e := AsError(err); e != nil {
		return e.Kind
	}
	return ""
}

// Status is the callable protocol status name for the kind.
func (k Kind) Status() string {
	switch k {
	case KindInvalidArgument:
		return "INVALID_ARGUMENT"
	default:
		return "INTERNAL"
	}
}

func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
