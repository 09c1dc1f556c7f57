// Package erruser separates what a failure means for the user from what
// caused it: Error() returns only the user-facing message, while the cause
// stays reachable via Unwrap() for verbose output and logs.
package erruser

import (
	"errors"
	"fmt"
)

// Err pairs a user-facing message with an optional cause. The primary error
// line never leaks command names, exit codes, or HTTP details; those live in
// the wrapped cause.
type Err struct {
	Msg string
	Err error
}

// Error returns the user-facing message only.
func (e *Err) Error() string {
	if e == nil {
		return ""
	}
	return e.Msg
}

// Unwrap returns the underlying cause, or nil.
func (e *Err) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New returns an error whose message is msg. A non-nil err is wrapped and
// reachable via Unwrap; a nil err yields a plain error.
func New(msg string, err error) error {
	if err == nil {
		return errors.New(msg)
	}
	return &Err{Msg: msg, Err: err}
}

// Newf is New with a formatted message.
func Newf(err error, format string, args ...any) error {
	return New(fmt.Sprintf(format, args...), err)
}
