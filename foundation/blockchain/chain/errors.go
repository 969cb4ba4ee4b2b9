// Package chain implements the chain activation state machine: the block
// index, block connection and disconnection against the UTXO view with
// interest-aware conservation, reorgs, and the startup reconsideration
// pass.
package chain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a validation failure. The kind decides how the
// block is treated afterward: context-free failures are permanent,
// context-dependent ones are eligible for startup reconsideration,
// I/O failures stop the node, and cancellation is not a failure at all.
type ErrorKind int

// The set of validation failure kinds.
const (
	BadPow ErrorKind = iota + 1
	BadStructure
	MissingInputs
	BadConservation
	BadScript
	IoFailure
	Canceled
)

// String implements the fmt.Stringer interface.
func (k ErrorKind) String() string {
	switch k {
	case BadPow:
		return "bad-pow"
	case BadStructure:
		return "bad-structure"
	case MissingInputs:
		return "missing-inputs"
	case BadConservation:
		return "bad-conservation"
	case BadScript:
		return "bad-script"
	case IoFailure:
		return "io-failure"
	case Canceled:
		return "canceled"
	}
	return "unknown"
}

// ContextFree reports whether the kind describes a failure that no change
// of chain context can ever repair.
func (k ErrorKind) ContextFree() bool {
	return k == BadPow || k == BadStructure
}

// ValidationError carries the failure kind and a human readable context
// string.
type ValidationError struct {
	Kind    ErrorKind
	Context string
}

// Errorf constructs a ValidationError with a formatted context.
func Errorf(kind ErrorKind, format string, args ...any) error {
	return &ValidationError{
		Kind:    kind,
		Context: fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface.
func (ve *ValidationError) Error() string {
	if ve.Context == "" {
		return ve.Kind.String()
	}
	return fmt.Sprintf("%s: %s", ve.Kind, ve.Context)
}

// IsKind reports whether the error is a ValidationError of the specified
// kind.
func IsKind(err error, kind ErrorKind) bool {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	return ve.Kind == kind
}

// KindOf extracts the failure kind, or zero when the error is not a
// ValidationError.
func KindOf(err error) ErrorKind {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return 0
	}
	return ve.Kind
}
