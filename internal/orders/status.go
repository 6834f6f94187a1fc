package orders

import (
	"fmt"
	"strings"
)

type Status uint8

const (
	StatusPending Status = iota + 1
	StatusPreparing
	StatusDelivered
	StatusCancelled
)

// Pending -> Preparing -> Delivered, Pending -> Cancelled. Skips are not legal.
var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusPreparing: true, StatusCancelled: true},
	StatusPreparing: {StatusDelivered: true},
	StatusDelivered: {},
	StatusCancelled: {},
}

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusPreparing:
		return "Preparing"
	case StatusDelivered:
		return "Delivered"
	case StatusCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPreparing, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	switch s {
	case StatusDelivered, StatusCancelled:
		return true
	case StatusPending, StatusPreparing:
		return false
	}
	return false
}

// ParseStatus is case-insensitive.
func ParseStatus(v string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "pending":
		return StatusPending, nil
	case "preparing":
		return StatusPreparing, nil
	case "delivered":
		return StatusDelivered, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	}
	return 0, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, v)
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// CheckTransition reports why from -> to is illegal, or nil. Terminal states
// reject every target, including themselves.
func CheckTransition(from, to Status) error {
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if from.Terminal() {
		return fmt.Errorf("%w: order is %s", ErrTerminalState, from)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
