package order

import (
	"fmt"
	"slices"

	"github.com/go-faster/errors"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusPreparing Status = "preparing"
	StatusOnTheWay  Status = "on_the_way"
	StatusDelivered Status = "delivered"
	StatusCanceled  Status = "canceled"
)

// InitialStatus is the status of a freshly placed order.
const InitialStatus = StatusPending

// statusOrder is the canonical display order.
var statusOrder = []Status{
	StatusPending,
	StatusAccepted,
	StatusPreparing,
	StatusOnTheWay,
	StatusDelivered,
	StatusCanceled,
}

var transitions = map[Status][]Status{
	StatusPending:   {StatusAccepted, StatusCanceled},
	StatusAccepted:  {StatusPreparing, StatusCanceled},
	StatusPreparing: {StatusOnTheWay, StatusCanceled},
	StatusOnTheWay:  {StatusDelivered, StatusCanceled},
	StatusDelivered: nil,
	StatusCanceled:  nil,
}

// ErrUnknownStatus is returned for status values outside the lifecycle.
var ErrUnknownStatus = errors.New("unknown order status")

// InvalidTransitionError is returned when To is not a successor of From.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.To)
}

// Statuses returns all statuses in canonical order.
func Statuses() []Status {
	return slices.Clone(statusOrder)
}

// ParseStatus validates a raw status value.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", errors.Wrapf(ErrUnknownStatus, "%q", s)
	}
	return st, nil
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether s has no outgoing transitions.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// CanTransition reports whether an order in from may move to to. Staying in
// the same status is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return from.Valid()
	}
	return slices.Contains(transitions[from], to)
}

// ValidateTransition distinguishes unknown targets from disallowed moves.
func ValidateTransition(from, to Status) error {
	if !to.Valid() {
		return errors.Wrapf(ErrUnknownStatus, "%q", to)
	}
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

// Choices lists current followed by its allowed successors in canonical
// order, for status pickers.
func Choices(current Status) []Status {
	out := []Status{current}
	for _, s := range statusOrder {
		if s != current && CanTransition(current, s) {
			out = append(out, s)
		}
	}
	return out
}
