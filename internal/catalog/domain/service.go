package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Service assembles the catalog view consumed by matching and accepts
// idempotent synchronization pushes from the provider side.
type Service interface {
	// GetCatalog returns the provider→item→offer tree with every offer's
	// MaxQuantity recomputed as its live AVAILABLE block count.
	GetCatalog(ctx context.Context) (*Catalog, error)

	SyncProvider(ctx context.Context, req SyncProviderRequest) (*Provider, error)
	SyncItem(ctx context.Context, req SyncItemRequest) (*CatalogItem, error)

	// SyncOffer upserts the offer; a brand-new offer id materializes its
	// blocks in the ledger.
	SyncOffer(ctx context.Context, req SyncOfferRequest) (*Offer, error)

	// DeleteOffer removes the offer and its AVAILABLE blocks. Rejected with
	// ErrOfferHasCommitments while any block is RESERVED or SOLD.
	DeleteOffer(ctx context.Context, id snowflake.ID) error

	// DisableOffer hides the offer from discovery without touching blocks.
	DisableOffer(ctx context.Context, id snowflake.ID) error

	GetOffer(ctx context.Context, id snowflake.ID) (*Offer, error)
	GetProvider(ctx context.Context, id snowflake.ID) (*Provider, error)

	// ApplyTrustUpdate persists a trust engine outcome onto the provider.
	ApplyTrustUpdate(ctx context.Context, providerID snowflake.ID, update TrustUpdate) error
}
