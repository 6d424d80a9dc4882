package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// EventRepository is the append-only protocol event log.
type EventRepository interface {
	// Insert appends one event. A (message_id, direction) collision returns
	// ErrDuplicateMessage.
	Insert(ctx context.Context, db *gorm.DB, event *Event) error

	// Delete unwinds an event whose work was never scheduled, keeping the
	// message retryable.
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	// ExistsInbound is the durable dedup fallback for cache misses.
	ExistsInbound(ctx context.Context, db *gorm.DB, messageID string) (bool, error)

	ListByTransaction(ctx context.Context, db *gorm.DB, transactionID string) ([]Event, error)
}

// Driver runs the protocol handshake: dedup, immediate ack, asynchronous
// processing, callback delivery.
type Driver interface {
	// Handle acknowledges env synchronously and schedules the work. The
	// returned Ack is identical for first deliveries and duplicates.
	Handle(ctx context.Context, env Envelope, authToken string) (*Ack, error)

	// TransactionStatus reports the transaction's order, event trail and
	// last asynchronous failure.
	TransactionStatus(ctx context.Context, transactionID string) (*TransactionStatus, error)
}
