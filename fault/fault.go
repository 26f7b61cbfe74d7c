// Package fault classifies the errors that can end or degrade a guest call.
//
// Host functions return a *[Error] whose [Kind] decides how it propagates:
// effect failures are swallowed into a sentinel result, everything else is
// raised as a trap that unwinds the guest. The entry point wraps whatever
// escapes in an [InvokeError] naming the module and export.
package fault

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the category of a fault.
type Kind int

const (
	// KindMarshalling covers invalid handles, out-of-bounds guest memory,
	// unsupported types and bad indexes.
	KindMarshalling Kind = iota + 1
	// KindEvaluation is a host evaluation error raised while forcing,
	// coercing or applying a value.
	KindEvaluation
	// KindPanic is an abort requested by the guest itself.
	KindPanic
	// KindEffect is a failed fetch, store or lookup.
	KindEffect
	// KindLink is a module that does not fit the host ABI.
	KindLink
	// KindInterrupted is a call cancelled through its context.
	KindInterrupted
	// KindCompile is a module that failed to load or compile.
	KindCompile
)

func (k Kind) String() string {
	switch k {
	case KindMarshalling:
		return "marshalling"
	case KindEvaluation:
		return "evaluation"
	case KindPanic:
		return "panic"
	case KindEffect:
		return "effect"
	case KindLink:
		return "link"
	case KindInterrupted:
		return "interrupted"
	case KindCompile:
		return "compile"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ErrInterrupted is the cause of every KindInterrupted fault.
var ErrInterrupted = errors.New("evaluation interrupted")

// Error is a classified fault raised by operation Op.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a fault of the given kind wrapping err.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Marshallingf returns a marshalling fault.
func Marshallingf(op, format string, args ...any) *Error {
	return New(KindMarshalling, op, fmt.Errorf(format, args...))
}

// Linkf returns a link fault.
func Linkf(op, format string, args ...any) *Error {
	return New(KindLink, op, fmt.Errorf(format, args...))
}

// Panicf returns a guest-requested abort.
func Panicf(op, format string, args ...any) *Error {
	return New(KindPanic, op, fmt.Errorf(format, args...))
}

// Effect wraps a failed effectful operation.
func Effect(op string, err error) *Error {
	return New(KindEffect, op, err)
}

// Classify returns err as a fault. Errors that already carry a kind keep
// it; context cancellation becomes KindInterrupted; anything else is
// treated as an evaluation error, the default for errors raised by the
// host evaluator.
func Classify(op string, err error) *Error {
	if err == nil {
		return nil
	}
	var f *Error
	if errors.As(err, &f) {
		return f
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return New(KindInterrupted, op, fmt.Errorf("%w: %w", ErrInterrupted, err))
	}
	return New(KindEvaluation, op, err)
}

// KindOf reports the kind of the first fault in err's chain.
func KindOf(err error) (Kind, bool) {
	var f *Error
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries a fault of kind k.
func IsKind(err error, k Kind) bool {
	got, ok := KindOf(err)
	return ok && got == k
}

// InvokeError is returned by a guest invocation. It names the module and
// export that failed.
type InvokeError struct {
	Module string
	Export string
	Err    error
}

func (e *InvokeError) Error() string {
	return fmt.Sprintf("while executing the WASM function '%s' from '%s': %v", e.Export, e.Module, e.Err)
}

func (e *InvokeError) Unwrap() error { return e.Err }
