// Package errx provides coded errors for the simulation core.
//
// Consistency errors mark invariant violations (a data-table or network
// desync bug). Request errors mark a client request the host refused.
// errors.Is compares codes only, so callers match on the exported
// sentinels regardless of message, data or cause.
package errx

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code is the stable identifier of an error.
type Code string

type kind uint8

const (
	kindConsistency kind = iota
	kindRequest
)

// Error is a coded error with optional context data and cause.
type Error struct {
	code  Code
	msg   string
	data  map[string]any
	cause error
	kind  kind
}

// NewConsistency creates an invariant-violation error.
func NewConsistency(code Code, msg string) *Error {
	return &Error{code: code, msg: msg, kind: kindConsistency}
}

// NewRequest creates a refused-request error.
func NewRequest(code Code, msg string) *Error {
	return &Error{code: code, msg: msg, kind: kindRequest}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(string(e.code))
	if e.msg != "" {
		b.WriteString(": ")
		b.WriteString(e.msg)
	}
	if len(e.data) > 0 {
		keys := make([]string, 0, len(e.data))
		for k := range e.data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.data[k])
		}
		b.WriteString("]")
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

// Unwrap exposes the cause to errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches on code only.
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok || t == nil {
		return false
	}
	return e.code == t.code
}

// Code returns the error code.
func (e *Error) Code() Code {
	if e == nil {
		return ""
	}
	return e.code
}

// Data returns a copy of the context data.
func (e *Error) Data() map[string]any {
	if e == nil || e.data == nil {
		return nil
	}
	out := make(map[string]any, len(e.data))
	for k, v := range e.data {
		out[k] = v
	}
	return out
}

// With returns a copy of e carrying an extra context value.
func (e *Error) With(key string, value any) *Error {
	next := e.clone()
	if next.data == nil {
		next.data = make(map[string]any, 1)
	}
	next.data[key] = value
	return next
}

// Wrap returns a copy of e with cause attached.
func (e *Error) Wrap(cause error) *Error {
	next := e.clone()
	next.cause = cause
	return next
}

func (e *Error) clone() *Error {
	next := &Error{code: e.code, msg: e.msg, cause: e.cause, kind: e.kind}
	if e.data != nil {
		next.data = make(map[string]any, len(e.data)+1)
		for k, v := range e.data {
			next.data[k] = v
		}
	}
	return next
}

// IsConsistency reports whether err carries an invariant violation.
func IsConsistency(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.kind == kindConsistency
}

// IsRequest reports whether err is a refused client request.
func IsRequest(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.kind == kindRequest
}
