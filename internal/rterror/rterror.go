// Package rterror defines the fatal runtime error kinds. None of them are
// recovered internally; a worker that produces one stops the run and the
// host (internal/runtime, cmd/hvmc) reports it.
package rterror

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the exit-status classification.
type Kind int

const (
	KindNone Kind = iota
	KindHeapExhausted
	KindDivisionByZero
	KindInvalidInteraction
	KindStackOverflow
	KindBookMalformed
	KindNumericOverflow
)

// RuntimeError wraps a Kind with a stack trace captured at the point of
// detection, via github.com/pkg/errors.
type RuntimeError struct {
	Kind Kind
	msg  string
	err  error
}

func (e *RuntimeError) Error() string { return e.msg }
func (e *RuntimeError) Unwrap() error { return e.err }

func newError(kind Kind, msg string) *RuntimeError {
	return &RuntimeError{Kind: kind, msg: msg, err: errors.New(msg)}
}

// HeapExhausted reports that no node can be allocated.
func HeapExhausted(capacity int) error {
	return newError(KindHeapExhausted, fmt.Sprintf("heap exhausted: capacity %d nodes", capacity))
}

// DivisionByZero reports integer / or % with a zero divisor.
func DivisionByZero() error {
	return newError(KindDivisionByZero, "integer division or modulo by zero")
}

// InvalidInteraction reports a dispatch-table pair the caller proved
// impossible. Tags are passed as fmt.Stringer, so this package does not
// import internal/port; callers pass port.Tag values, which satisfy this.
func InvalidInteraction(a, b fmt.Stringer) error {
	return newError(KindInvalidInteraction, fmt.Sprintf("invalid interaction: %s ~ %s", a, b))
}

// StackOverflow reports rule recursion exceeding the configured guard.
func StackOverflow(depth int) error {
	return newError(KindStackOverflow, fmt.Sprintf("stack guard exceeded at depth %d", depth))
}

// BookMalformed reports a template with unbalanced Var references, detected
// at book build time rather than at run time.
func BookMalformed(def, reason string) error {
	return newError(KindBookMalformed, fmt.Sprintf("malformed definition %q: %s", def, reason))
}

// InvalidOperator reports an OP2/OP1 sub-tag that does not name a known
// operator (a corrupted book, since the compiler only ever emits valid
// operator codes).
func InvalidOperator(code uint8) error {
	return newError(KindInvalidInteraction, fmt.Sprintf("invalid operator code: %d", code))
}

// NumericOverflow reports an integer operation whose result does not fit in
// 24 bits when internal/config.NumericOverflow is "trap".
func NumericOverflow() error {
	return newError(KindNumericOverflow, "numeric overflow")
}

// KindOf extracts the Kind from an error produced by this package, or
// KindNone if err is nil or not a *RuntimeError.
func KindOf(err error) Kind {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindNone
}

// ExitCode maps a Kind to the process exit status.
func (k Kind) ExitCode() int {
	switch k {
	case KindNone:
		return 0
	default:
		return int(k)
	}
}
