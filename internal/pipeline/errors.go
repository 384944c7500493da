package pipeline

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
)

// Error is a request failure carrying the HTTP status to respond with and the
// stack at the point it was raised.
type Error struct {
	Status int
	Err    error
	Stack  string
}

// NewError wraps err with an HTTP status.
func NewError(status int, err error) *Error {
	return &Error{Status: status, Err: err, Stack: string(debug.Stack())}
}

// Errorf builds an Error from a format string.
func Errorf(status int, format string, args ...any) *Error {
	return &Error{Status: status, Err: fmt.Errorf(format, args...), Stack: string(debug.Stack())}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return http.StatusText(e.Status)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// StatusOf returns the status carried by err, or 500 when none is carried or
// the carried value is not an error status.
func StatusOf(err error) int {
	var pe *Error
	if errors.As(err, &pe) && pe.Status >= 400 && pe.Status <= 599 {
		return pe.Status
	}
	return http.StatusInternalServerError
}

// StackOf returns the stack carried by err, or "" when none was captured.
func StackOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Stack
	}
	return ""
}
