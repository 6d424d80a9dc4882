package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("order_not_found")
	ErrInvalidQuantity = errors.New("invalid_quantity")
	ErrInvalidParty    = errors.New("invalid_cancel_party")
	ErrVersionConflict = errors.New("order_version_conflict")
)

// InvalidTransitionError rejects an illegal status change, naming both the
// current and the attempted state.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid_transition: %s -> %s", e.From, e.To)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var ite *InvalidTransitionError
	return errors.As(err, &ite)
}
