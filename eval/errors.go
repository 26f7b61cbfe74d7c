package eval

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrInfiniteRecursion is returned when a thunk is forced while it is
// already being forced.
var ErrInfiniteRecursion = errors.New("infinite recursion encountered")

// Error is an evaluation error with an optional stack of trace lines,
// innermost first.
type Error struct {
	Msg    string
	Traces []string
	Err    error
}

// Errorf returns a new evaluation error.
func Errorf(format string, args ...any) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if len(e.Traces) == 0 {
		return e.Msg
	}
	var b strings.Builder
	for i := len(e.Traces) - 1; i >= 0; i-- {
		b.WriteString(e.Traces[i])
		b.WriteString(": ")
	}
	b.WriteString(e.Msg)
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// AddTrace returns err with a trace line attached. err itself is left
// untouched and stays reachable through Unwrap.
func AddTrace(err error, format string, args ...any) error {
	line := fmt.Sprintf(format, args...)
	e, ok := err.(*Error)
	if !ok {
		return &Error{Msg: err.Error(), Traces: []string{line}, Err: err}
	}
	traces := append(slices.Clone(e.Traces), line)
	return &Error{Msg: e.Msg, Traces: traces, Err: e}
}

// TypeError reports a value of the wrong dynamic type.
type TypeError struct {
	Expected Type
	Actual   Type
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("expected %s but found %s", e.Expected, e.Actual)
}

func typeError(expected Type, v *Value) error {
	return &TypeError{Expected: expected, Actual: v.typ}
}
