package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// BlockStatus is the allocation state of a single energy block.
type BlockStatus string

const (
	BlockStatusAvailable BlockStatus = "AVAILABLE"
	BlockStatusReserved  BlockStatus = "RESERVED"
	BlockStatusSold      BlockStatus = "SOLD"
)

// OfferBlock is the atomic allocation unit: one row per tradable unit of
// energy. Status moves AVAILABLE→RESERVED→SOLD, or back to AVAILABLE on
// release. Price and window are snapshots taken at materialization; later
// offer edits do not rewrite them unless the offer is explicitly re-synced.
type OfferBlock struct {
	ID            snowflake.ID  `gorm:"primaryKey"`
	OfferID       snowflake.ID  `gorm:"not null;index"`
	ItemID        snowflake.ID  `gorm:"not null;index"`
	ProviderID    snowflake.ID  `gorm:"not null;index"`
	Status        BlockStatus   `gorm:"type:text;not null;index"`
	OrderID       *snowflake.ID `gorm:"index"`
	TransactionID *string       `gorm:"type:text"`
	Version       int64         `gorm:"not null;default:1"`
	PriceAmount   int64         `gorm:"not null"`
	Currency      string        `gorm:"type:text;not null"`
	WindowStart   time.Time     `gorm:"not null"`
	WindowEnd     time.Time     `gorm:"not null"`
	ReservedAt    *time.Time
	SoldAt        *time.Time
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (OfferBlock) TableName() string { return "offer_blocks" }

// BlockRef is an (id, observed version) pair used as an optimistic
// precondition during a batched claim.
type BlockRef struct {
	ID      snowflake.ID
	Version int64
}

// MaterializeInput carries the offer attributes snapshotted onto each block.
type MaterializeInput struct {
	OfferID     snowflake.ID
	ItemID      snowflake.ID
	ProviderID  snowflake.ID
	MaxQty      int
	PriceAmount int64
	Currency    string
	WindowStart time.Time
	WindowEnd   time.Time
}

// StatusUpdate is one entry of a bulk provider-side status report.
type StatusUpdate struct {
	BlockID snowflake.ID
	Status  BlockStatus
}

// SyncOutcome reports how a bulk status sync landed.
type SyncOutcome struct {
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
}

// StatusCounts is the per-offer allocation breakdown. Conservation:
// Available+Reserved+Sold always equals the materialized count.
type StatusCounts struct {
	Available int
	Reserved  int
	Sold      int
}

func (c StatusCounts) Total() int { return c.Available + c.Reserved + c.Sold }
