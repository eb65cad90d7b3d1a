package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart      = errors.New("cart is empty")
	ErrMissingAddress = errors.New("shipping address is required")
	ErrInvalidMethod  = errors.New("unsupported payment method")
	ErrInvalidState   = errors.New("checkout step not allowed")
	ErrAlreadyPaid    = errors.New("order is already paid")
)

// StateError reports a step attempted from the wrong state. It matches
// ErrInvalidState with errors.Is.
type StateError struct {
	Step  string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s not allowed in state %s", e.Step, e.State)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}
