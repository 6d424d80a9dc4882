package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Ledger is the only component authorized to mutate block status.
type Ledger interface {
	// Materialize creates MaxQty AVAILABLE blocks for a newly synchronized
	// offer. Idempotent: a second call for the same offer is a no-op.
	Materialize(ctx context.Context, in MaterializeInput) (int, error)

	// Claim atomically reserves quantity blocks for an order, oldest
	// first. Retries version conflicts up to the configured bound, then
	// reports ErrInsufficientBlocks.
	Claim(ctx context.Context, offerID snowflake.ID, quantity int, orderID snowflake.ID, transactionID string) ([]snowflake.ID, error)

	// Finalize transitions the order's RESERVED blocks to SOLD.
	Finalize(ctx context.Context, blockIDs []snowflake.ID, orderID snowflake.ID) error

	// Release returns RESERVED blocks to the claimable pool.
	Release(ctx context.Context, blockIDs []snowflake.ID) error
	ReleaseOrder(ctx context.Context, orderID snowflake.ID) (int, error)

	// SyncStatuses applies a bulk provider-side status report. Entries
	// already in their target status count as unchanged, so replaying the
	// same batch is harmless. Only RESERVED blocks may move, to SOLD or
	// back to AVAILABLE; anything else is ErrInvalidBlockState and the
	// whole batch rolls back.
	SyncStatuses(ctx context.Context, updates []StatusUpdate) (SyncOutcome, error)

	AvailableCount(ctx context.Context, offerID snowflake.ID) (int, error)
	Counts(ctx context.Context, offerID snowflake.ID) (StatusCounts, error)
	BlocksForOrder(ctx context.Context, orderID snowflake.ID) ([]OfferBlock, error)
}
