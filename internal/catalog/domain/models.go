package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SourceType classifies how a catalog item's energy is produced.
type SourceType string

const (
	SourceSolar   SourceType = "SOLAR"
	SourceWind    SourceType = "WIND"
	SourceHydro   SourceType = "HYDRO"
	SourceBiomass SourceType = "BIOMASS"
	SourceOther   SourceType = "OTHER"
)

// ValidSourceType reports whether s is one of the known source types.
func ValidSourceType(s SourceType) bool {
	switch s {
	case SourceSolar, SourceWind, SourceHydro, SourceBiomass, SourceOther:
		return true
	}
	return false
}

// Provider is a selling party. TrustScore and the order counters are
// mutated only through ApplyTrustUpdate after order-terminal events.
type Provider struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	Name             string       `json:"name" gorm:"type:text;not null"`
	TrustScore       float64      `json:"trust_score" gorm:"not null;default:0.5"`
	DeclaredCapacity int          `json:"declared_capacity" gorm:"not null;default:0"`
	TotalOrders      int64        `json:"total_orders" gorm:"not null;default:0"`
	SuccessfulOrders int64        `json:"successful_orders" gorm:"not null;default:0"`
	CreatedAt        time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time    `json:"updated_at" gorm:"not null"`
}

func (Provider) TableName() string { return "providers" }

// CatalogItem is a production source pushed by the provider side. The
// transaction engine only reads it.
type CatalogItem struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	ProviderID   snowflake.ID `json:"provider_id" gorm:"not null;index"`
	SourceType   SourceType   `json:"source_type" gorm:"type:text;not null"`
	AvailableQty int          `json:"available_qty" gorm:"not null;default:0"`
	WindowStart  time.Time    `json:"window_start" gorm:"not null"`
	WindowEnd    time.Time    `json:"window_end" gorm:"not null"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"not null"`
}

func (CatalogItem) TableName() string { return "catalog_items" }

// Offer prices a slice of an item. MaxQty is descriptive only; the
// authoritative remaining quantity is the AVAILABLE block count.
type Offer struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	ItemID         snowflake.ID `json:"item_id" gorm:"not null;index"`
	ProviderID     snowflake.ID `json:"provider_id" gorm:"not null;index"`
	PriceAmount    int64        `json:"price_amount" gorm:"not null"`
	Currency       string       `json:"currency" gorm:"type:text;not null"`
	MaxQty         int          `json:"max_qty" gorm:"not null"`
	WindowStart    time.Time    `json:"window_start" gorm:"not null"`
	WindowEnd      time.Time    `json:"window_end" gorm:"not null"`
	SettlementType string       `json:"settlement_type,omitempty" gorm:"type:text"`
	Active         bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"not null"`
}

func (Offer) TableName() string { return "offers" }

// OfferView is an offer as exposed by GetCatalog: MaxQuantity is the live
// AVAILABLE block count, not the stored max_qty.
type OfferView struct {
	ID             snowflake.ID `json:"id"`
	ItemID         snowflake.ID `json:"item_id"`
	ProviderID     snowflake.ID `json:"provider_id"`
	PriceAmount    int64        `json:"price_amount"`
	Currency       string       `json:"currency"`
	MaxQuantity    int          `json:"max_quantity"`
	WindowStart    time.Time    `json:"window_start"`
	WindowEnd      time.Time    `json:"window_end"`
	SettlementType string       `json:"settlement_type,omitempty"`
	Active         bool         `json:"active"`
}

// ItemView nests the item's offers.
type ItemView struct {
	ID           snowflake.ID `json:"id"`
	SourceType   SourceType   `json:"source_type"`
	AvailableQty int          `json:"available_qty"`
	WindowStart  time.Time    `json:"window_start"`
	WindowEnd    time.Time    `json:"window_end"`
	Offers       []OfferView  `json:"offers"`
}

// ProviderView is the top of the catalog tree.
type ProviderView struct {
	ID         snowflake.ID `json:"id"`
	Name       string       `json:"name"`
	TrustScore float64      `json:"trust_score"`
	Items      []ItemView   `json:"items"`
}

// Catalog is the full provider→item→offer snapshot handed to matching.
type Catalog struct {
	Providers []ProviderView `json:"providers"`
}

// SyncProviderRequest, SyncItemRequest and SyncOfferRequest are the
// provider-side push payloads. IDs arrive as strings on the wire.
type SyncProviderRequest struct {
	ID               string   `json:"id" binding:"required"`
	Name             string   `json:"name" binding:"required"`
	TrustScore       *float64 `json:"trust_score,omitempty"`
	DeclaredCapacity *int     `json:"declared_capacity,omitempty"`
}

type SyncItemRequest struct {
	ID           string    `json:"id" binding:"required"`
	ProviderID   string    `json:"provider_id" binding:"required"`
	SourceType   string    `json:"source_type" binding:"required"`
	AvailableQty int       `json:"available_qty"`
	WindowStart  time.Time `json:"window_start" binding:"required"`
	WindowEnd    time.Time `json:"window_end" binding:"required"`
}

type SyncOfferRequest struct {
	ID             string    `json:"id" binding:"required"`
	ItemID         string    `json:"item_id" binding:"required"`
	ProviderID     string    `json:"provider_id" binding:"required"`
	PriceAmount    int64     `json:"price_amount" binding:"required"`
	Currency       string    `json:"currency" binding:"required"`
	MaxQty         int       `json:"max_qty" binding:"required"`
	WindowStart    time.Time `json:"window_start" binding:"required"`
	WindowEnd      time.Time `json:"window_end" binding:"required"`
	SettlementType string    `json:"settlement_type,omitempty"`

	// RefreshBlocks re-snapshots price and window on the offer's AVAILABLE
	// blocks. Blocks already committed to an order keep their snapshot.
	RefreshBlocks bool `json:"refresh_blocks,omitempty"`
}

// TrustUpdate carries a trust engine outcome onto the provider row.
type TrustUpdate struct {
	NewScore    float64
	NewLimitPct float64
	Delivered   bool
}
