package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the storage surface for offer blocks. Callers pass the
// *gorm.DB (or transaction handle) explicitly so multi-row operations can be
// composed under one transaction.
type Repository interface {
	InsertBlocks(ctx context.Context, db *gorm.DB, blocks []OfferBlock) error
	ExistsForOffer(ctx context.Context, db *gorm.DB, offerID snowflake.ID) (bool, error)

	// AvailableForClaim returns up to limit AVAILABLE (id, version) pairs
	// for the offer, oldest-created first.
	AvailableForClaim(ctx context.Context, db *gorm.DB, offerID snowflake.ID, limit int) ([]BlockRef, error)

	// ReserveBatch transitions the referenced blocks AVAILABLE→RESERVED in
	// one statement, each row guarded by its observed version. Returns the
	// number of rows that matched; fewer than len(refs) means another
	// claimer won a race on at least one block.
	ReserveBatch(ctx context.Context, db *gorm.DB, refs []BlockRef, orderID snowflake.ID, transactionID string, at time.Time) (int64, error)

	// MarkSold transitions RESERVED→SOLD for blocks held by orderID.
	MarkSold(ctx context.Context, db *gorm.DB, blockIDs []snowflake.ID, orderID snowflake.ID, at time.Time) (int64, error)

	// ReleaseBatch transitions RESERVED→AVAILABLE, clearing order linkage.
	ReleaseBatch(ctx context.Context, db *gorm.DB, blockIDs []snowflake.ID) (int64, error)
	ReleaseByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (int64, error)

	CountByStatus(ctx context.Context, db *gorm.DB, offerID snowflake.ID) (StatusCounts, error)
	CountAvailableByOffers(ctx context.Context, db *gorm.DB, offerIDs []snowflake.ID) (map[snowflake.ID]int, error)
	ListByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]OfferBlock, error)
	ListByIDs(ctx context.Context, db *gorm.DB, blockIDs []snowflake.ID) ([]OfferBlock, error)

	// RefreshAvailableSnapshot rewrites the price snapshot on AVAILABLE
	// blocks only; reserved and sold blocks keep the price they were
	// committed at.
	RefreshAvailableSnapshot(ctx context.Context, db *gorm.DB, offerID snowflake.ID, priceAmount int64, currency string, windowStart, windowEnd time.Time) error

	DeleteAvailableByOffer(ctx context.Context, db *gorm.DB, offerID snowflake.ID) (int64, error)
	CountCommittedByOffer(ctx context.Context, db *gorm.DB, offerID snowflake.ID) (int64, error)
}
