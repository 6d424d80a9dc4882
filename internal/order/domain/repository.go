package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the storage surface for orders. Status updates carry the
// observed version so racing writers lose cleanly.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindByTransactionID(ctx context.Context, db *gorm.DB, transactionID string) (*Order, error)

	// UpdateStatus moves id from→to iff the stored status and version still
	// match. Returns rows affected; 0 means the precondition failed.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to OrderStatus, version int64, at time.Time) (int64, error)

	// MarkCancelled is UpdateStatus to CANCELLED plus the cancellation
	// audit fields, in one statement.
	MarkCancelled(ctx context.Context, db *gorm.DB, id snowflake.ID, from OrderStatus, version int64, party CancelParty, at time.Time) (int64, error)
}

// Service governs the order lifecycle.
type Service interface {
	// Create opens an ACTIVE order for already-claimed blocks.
	Create(ctx context.Context, in CreateInput) (*Order, error)

	Get(ctx context.Context, id snowflake.ID) (*Order, error)
	GetByTransaction(ctx context.Context, transactionID string) (*Order, error)

	// Transition applies one legal status change with an optimistic version
	// precondition.
	Transition(ctx context.Context, id snowflake.ID, to OrderStatus) (*Order, error)

	// Cancel applies the asymmetric cancellation rules and releases the
	// order's RESERVED blocks in the same transaction as the status change.
	Cancel(ctx context.Context, in CancelInput) (*CancelResult, error)

	// CompleteWithVerification marks a DELIVERED order COMPLETED and feeds
	// delivered-vs-expected quantities to the trust engine.
	CompleteWithVerification(ctx context.Context, id snowflake.ID, delivered, expected float64) (*CompletionResult, error)
}
