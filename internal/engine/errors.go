// Package engine defines the error taxonomy shared across the scheduling and
// settlement packages. Handlers map these classes onto HTTP status codes.
package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input, rejected before any I/O.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an unknown appointment, trainer, service or pack.
	ErrNotFound = errors.New("not found")
	// ErrPrecondition marks an entity in the wrong state for the operation.
	ErrPrecondition = errors.New("precondition failed")
	// ErrNoPaymentMethod marks a client with no stored payment method where
	// one is required (checkout's card path only; the fee path falls back to
	// a ledger debit instead).
	ErrNoPaymentMethod = errors.New("no payment method on file")
	// ErrPaymentDeclined marks a processor failure on checkout's card path.
	ErrPaymentDeclined = errors.New("payment declined")
)

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

func Preconditionf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrPrecondition)
}
