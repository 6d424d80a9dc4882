package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateMessage short-circuits processing; the caller still gets
	// the normal ACK shape.
	ErrDuplicateMessage = errors.New("duplicate_message")

	ErrUnknownAction      = errors.New("unknown_action")
	ErrQueueFull          = errors.New("worker_queue_full")
	ErrInsufficientFunds  = errors.New("insufficient_funds")
	ErrCapacityExceeded   = errors.New("buyer_capacity_exceeded")
	ErrTransactionUnknown = errors.New("transaction_unknown")
)

// ValidationError rejects a malformed request on the synchronous path.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// UpstreamDeliveryError reports a failed callback POST. Logged and recorded,
// never retried by this engine; the caller's protocol-level retries plus
// dedup provide eventual delivery.
type UpstreamDeliveryError struct {
	URI        string
	Action     string
	StatusCode int
	Err        error
}

func (e *UpstreamDeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("callback %s to %s failed: %v", e.Action, e.URI, e.Err)
	}
	return fmt.Sprintf("callback %s to %s failed: status %d", e.Action, e.URI, e.StatusCode)
}

func (e *UpstreamDeliveryError) Unwrap() error { return e.Err }
