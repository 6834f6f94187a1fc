package orders

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrItemNotFound  = fmt.Errorf("item %w", ErrNotFound)
	ErrOrderNotFound = fmt.Errorf("order %w", ErrNotFound)

	ErrForbidden     = errors.New("forbidden")
	ErrRoleForbidden = fmt.Errorf("role %w", ErrForbidden)

	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyOrder      = fmt.Errorf("%w: order must contain items", ErrInvalidInput)
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)

	ErrItemInactive      = errors.New("item is not available")
	ErrInsufficientStock = errors.New("insufficient stock")

	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTerminalState     = fmt.Errorf("%w: terminal state", ErrInvalidTransition)

	// ErrContention is the only retryable kind: a lock could not be acquired
	// within the configured wait.
	ErrContention = errors.New("transient contention, retry")

	// ErrInvariantViolation means stock would have gone negative. Seeing it
	// outside of tests points at a coordination bug.
	ErrInvariantViolation = errors.New("stock invariant violation")
)

// StockError reports which line could not be reserved.
type StockError struct {
	ItemID    string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s: requested %d, available %d", e.ItemID, e.Requested, e.Available)
}

func (e *StockError) Is(target error) bool { return target == ErrInsufficientStock }

func Retryable(err error) bool { return errors.Is(err, ErrContention) }
