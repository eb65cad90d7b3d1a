package order

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrConflict          = errors.New("order was modified concurrently")
	ErrForbidden         = errors.New("forbidden")

	ErrEmptyOrder     = errors.New("order has no items")
	ErrInvalidItem    = errors.New("invalid order item")
	ErrInvalidMethod  = errors.New("unsupported payment method")
	ErrTotalMismatch  = errors.New("order total does not match server price")
	ErrMissingAddress = errors.New("shipping address is required")
)

// TransitionError explains why a change was refused. It matches
// ErrInvalidTransition with errors.Is.
type TransitionError struct {
	From   Status
	To     Status
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s: %s", e.From, e.To, e.Reason)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
