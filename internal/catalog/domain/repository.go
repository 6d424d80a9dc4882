package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the storage surface for catalog entities. Upserts are keyed
// by id so provider-side re-syncs are idempotent.
type Repository interface {
	UpsertProvider(ctx context.Context, db *gorm.DB, p *Provider) error
	UpsertItem(ctx context.Context, db *gorm.DB, item *CatalogItem) error
	UpsertOffer(ctx context.Context, db *gorm.DB, offer *Offer) error

	FindProvider(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Provider, error)
	FindItem(ctx context.Context, db *gorm.DB, id snowflake.ID) (*CatalogItem, error)
	FindOffer(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Offer, error)

	ListProviders(ctx context.Context, db *gorm.DB) ([]Provider, error)
	ListItemsByProviders(ctx context.Context, db *gorm.DB, providerIDs []snowflake.ID) ([]CatalogItem, error)
	ListOffersByItems(ctx context.Context, db *gorm.DB, itemIDs []snowflake.ID) ([]Offer, error)

	SetOfferActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool) error
	DeleteOffer(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	// UpdateProviderTrust persists a trust engine outcome. delivered bumps
	// both counters, a non-delivery terminal only bumps total.
	UpdateProviderTrust(ctx context.Context, db *gorm.DB, id snowflake.ID, score float64, delivered bool) error
}
