package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/voltra-energy/voltra/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() catalogdomain.Repository {
	return &repo{}
}

func (r *repo) UpsertProvider(ctx context.Context, db *gorm.DB, p *catalogdomain.Provider) error {
	exists, err := rowExists(ctx, db, "providers", p.ID)
	if err != nil {
		return err
	}
	if !exists {
		return db.WithContext(ctx).Exec(
			`INSERT INTO providers
			 (id, name, trust_score, declared_capacity, total_orders, successful_orders, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.Name, p.TrustScore, p.DeclaredCapacity,
			p.TotalOrders, p.SuccessfulOrders, p.CreatedAt, p.UpdatedAt,
		).Error
	}
	// Re-sync never touches trust or order counters; those belong to the
	// trust engine.
	return db.WithContext(ctx).Exec(
		`UPDATE providers SET name = ?, declared_capacity = ?, updated_at = ? WHERE id = ?`,
		p.Name, p.DeclaredCapacity, p.UpdatedAt, p.ID,
	).Error
}

func (r *repo) UpsertItem(ctx context.Context, db *gorm.DB, item *catalogdomain.CatalogItem) error {
	exists, err := rowExists(ctx, db, "catalog_items", item.ID)
	if err != nil {
		return err
	}
	if !exists {
		return db.WithContext(ctx).Exec(
			`INSERT INTO catalog_items
			 (id, provider_id, source_type, available_qty, window_start, window_end, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, item.ProviderID, item.SourceType, item.AvailableQty,
			item.WindowStart, item.WindowEnd, item.CreatedAt, item.UpdatedAt,
		).Error
	}
	return db.WithContext(ctx).Exec(
		`UPDATE catalog_items
		 SET provider_id = ?, source_type = ?, available_qty = ?, window_start = ?, window_end = ?, updated_at = ?
		 WHERE id = ?`,
		item.ProviderID, item.SourceType, item.AvailableQty,
		item.WindowStart, item.WindowEnd, item.UpdatedAt, item.ID,
	).Error
}

func (r *repo) UpsertOffer(ctx context.Context, db *gorm.DB, offer *catalogdomain.Offer) error {
	exists, err := rowExists(ctx, db, "offers", offer.ID)
	if err != nil {
		return err
	}
	if !exists {
		return db.WithContext(ctx).Exec(
			`INSERT INTO offers
			 (id, item_id, provider_id, price_amount, currency, max_qty,
			  window_start, window_end, settlement_type, active, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			offer.ID, offer.ItemID, offer.ProviderID, offer.PriceAmount, offer.Currency,
			offer.MaxQty, offer.WindowStart, offer.WindowEnd, offer.SettlementType,
			offer.Active, offer.CreatedAt, offer.UpdatedAt,
		).Error
	}
	return db.WithContext(ctx).Exec(
		`UPDATE offers
		 SET item_id = ?, provider_id = ?, price_amount = ?, currency = ?, max_qty = ?,
		     window_start = ?, window_end = ?, settlement_type = ?, updated_at = ?
		 WHERE id = ?`,
		offer.ItemID, offer.ProviderID, offer.PriceAmount, offer.Currency, offer.MaxQty,
		offer.WindowStart, offer.WindowEnd, offer.SettlementType, offer.UpdatedAt, offer.ID,
	).Error
}

func (r *repo) FindProvider(ctx context.Context, db *gorm.DB, id snowflake.ID) (*catalogdomain.Provider, error) {
	var rows []catalogdomain.Provider
	err := db.WithContext(ctx).Raw(`SELECT * FROM providers WHERE id = ?`, id).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repo) FindItem(ctx context.Context, db *gorm.DB, id snowflake.ID) (*catalogdomain.CatalogItem, error) {
	var rows []catalogdomain.CatalogItem
	err := db.WithContext(ctx).Raw(`SELECT * FROM catalog_items WHERE id = ?`, id).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repo) FindOffer(ctx context.Context, db *gorm.DB, id snowflake.ID) (*catalogdomain.Offer, error) {
	var rows []catalogdomain.Offer
	err := db.WithContext(ctx).Raw(`SELECT * FROM offers WHERE id = ?`, id).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repo) ListProviders(ctx context.Context, db *gorm.DB) ([]catalogdomain.Provider, error) {
	var rows []catalogdomain.Provider
	err := db.WithContext(ctx).Raw(`SELECT * FROM providers ORDER BY id ASC`).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) ListItemsByProviders(ctx context.Context, db *gorm.DB, providerIDs []snowflake.ID) ([]catalogdomain.CatalogItem, error) {
	if len(providerIDs) == 0 {
		return nil, nil
	}
	var rows []catalogdomain.CatalogItem
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM catalog_items WHERE provider_id IN ? ORDER BY id ASC`,
		providerIDs,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) ListOffersByItems(ctx context.Context, db *gorm.DB, itemIDs []snowflake.ID) ([]catalogdomain.Offer, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	var rows []catalogdomain.Offer
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM offers WHERE item_id IN ? ORDER BY id ASC`,
		itemIDs,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) SetOfferActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE offers SET active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UTC(), id,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return catalogdomain.ErrOfferNotFound
	}
	return nil
}

func (r *repo) DeleteOffer(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM offers WHERE id = ?`, id).Error
}

func (r *repo) UpdateProviderTrust(ctx context.Context, db *gorm.DB, id snowflake.ID, score float64, delivered bool) error {
	successful := 0
	if delivered {
		successful = 1
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE providers
		 SET trust_score = ?, total_orders = total_orders + 1,
		     successful_orders = successful_orders + ?, updated_at = ?
		 WHERE id = ?`,
		score, successful, time.Now().UTC(), id,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return catalogdomain.ErrProviderNotFound
	}
	return nil
}

func rowExists(ctx context.Context, db *gorm.DB, table string, id snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		"SELECT COUNT(1) FROM "+table+" WHERE id = ?", id,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
