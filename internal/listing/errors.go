package listing

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("listing not found")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("listing changed concurrently")
	ErrStoreUnavailable   = errors.New("listing store unavailable")
	ErrInvalidInput       = errors.New("invalid input")

	// ErrStale is returned by a Repository when a conditional update matched no row.
	ErrStale = errors.New("stale listing state")
	// ErrDuplicateReference is returned by a Repository when an insert violates
	// the reference number uniqueness constraint.
	ErrDuplicateReference = errors.New("duplicate reference number")
)

// TransitionError is the typed rejection produced by Validate.
// Kind is one of ErrInvalidTransition, ErrPreconditionFailed or ErrForbidden.
type TransitionError struct {
	Kind   error
	From   Status
	To     Status
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %s -> %s", e.Kind, e.From, e.To)
	}

	return fmt.Sprintf("%s: %s -> %s: %s", e.Kind, e.From, e.To, e.Reason)
}

func (e *TransitionError) Unwrap() error {
	return e.Kind
}

func reject(kind error, from, to Status, reason string) *TransitionError {
	return &TransitionError{Kind: kind, From: from, To: to, Reason: reason}
}
