package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	blockdomain "github.com/voltra-energy/voltra/internal/block/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() blockdomain.Repository {
	return &repo{}
}

func (r *repo) InsertBlocks(ctx context.Context, db *gorm.DB, blocks []blockdomain.OfferBlock) error {
	if len(blocks) == 0 {
		return nil
	}

	for _, b := range blocks {
		if err := db.WithContext(ctx).Exec(
			`INSERT INTO offer_blocks (
				id, offer_id, item_id, provider_id, status, order_id, transaction_id,
				version, price_amount, currency, window_start, window_end,
				reserved_at, sold_at, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID,
			b.OfferID,
			b.ItemID,
			b.ProviderID,
			b.Status,
			b.OrderID,
			b.TransactionID,
			b.Version,
			b.PriceAmount,
			b.Currency,
			b.WindowStart,
			b.WindowEnd,
			b.ReservedAt,
			b.SoldAt,
			b.CreatedAt,
			b.UpdatedAt,
		).Error; err != nil {
			return err
		}
	}

	return nil
}

func (r *repo) ExistsForOffer(ctx context.Context, db *gorm.DB, offerID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM offer_blocks WHERE offer_id = ?`,
		offerID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) AvailableForClaim(ctx context.Context, db *gorm.DB, offerID snowflake.ID, limit int) ([]blockdomain.BlockRef, error) {
	var refs []blockdomain.BlockRef
	err := db.WithContext(ctx).Raw(
		`SELECT id, version FROM offer_blocks
		 WHERE offer_id = ? AND status = ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		offerID,
		blockdomain.BlockStatusAvailable,
		limit,
	).Scan(&refs).Error
	if err != nil {
		return nil, err
	}
	return refs, nil
}

// ReserveBatch issues one UPDATE covering every requested block, with a
// per-row version precondition, so the race window is a single statement
// rather than N read-modify-write round trips.
func (r *repo) ReserveBatch(ctx context.Context, db *gorm.DB, refs []blockdomain.BlockRef, orderID snowflake.ID, transactionID string, at time.Time) (int64, error) {
	if len(refs) == 0 {
		return 0, nil
	}

	var sb strings.Builder
	args := make([]any, 0, len(refs)*2+4)
	args = append(args, blockdomain.BlockStatusReserved, orderID, transactionID, at, at)

	sb.WriteString(
		`UPDATE offer_blocks
		 SET status = ?, order_id = ?, transaction_id = ?, reserved_at = ?,
		     version = version + 1, updated_at = ?
		 WHERE status = ? AND (`)
	args = append(args, blockdomain.BlockStatusAvailable)

	for i, ref := range refs {
		if i > 0 {
			sb.WriteString(" OR ")
		}
		sb.WriteString("(id = ? AND version = ?)")
		args = append(args, ref.ID, ref.Version)
	}
	sb.WriteString(")")

	result := db.WithContext(ctx).Exec(sb.String(), args...)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) MarkSold(ctx context.Context, db *gorm.DB, blockIDs []snowflake.ID, orderID snowflake.ID, at time.Time) (int64, error) {
	if len(blockIDs) == 0 {
		return 0, nil
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE offer_blocks
		 SET status = ?, sold_at = ?, version = version + 1, updated_at = ?
		 WHERE id IN ? AND order_id = ? AND status = ?`,
		blockdomain.BlockStatusSold,
		at,
		at,
		blockIDs,
		orderID,
		blockdomain.BlockStatusReserved,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) ReleaseBatch(ctx context.Context, db *gorm.DB, blockIDs []snowflake.ID) (int64, error) {
	if len(blockIDs) == 0 {
		return 0, nil
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE offer_blocks
		 SET status = ?, order_id = NULL, transaction_id = NULL, reserved_at = NULL,
		     version = version + 1, updated_at = ?
		 WHERE id IN ? AND status = ?`,
		blockdomain.BlockStatusAvailable,
		time.Now().UTC(),
		blockIDs,
		blockdomain.BlockStatusReserved,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) ReleaseByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE offer_blocks
		 SET status = ?, order_id = NULL, transaction_id = NULL, reserved_at = NULL,
		     version = version + 1, updated_at = ?
		 WHERE order_id = ? AND status = ?`,
		blockdomain.BlockStatusAvailable,
		time.Now().UTC(),
		orderID,
		blockdomain.BlockStatusReserved,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) CountByStatus(ctx context.Context, db *gorm.DB, offerID snowflake.ID) (blockdomain.StatusCounts, error) {
	var rows []struct {
		Status blockdomain.BlockStatus
		Total  int
	}
	err := db.WithContext(ctx).Raw(
		`SELECT status, COUNT(1) AS total FROM offer_blocks
		 WHERE offer_id = ? GROUP BY status`,
		offerID,
	).Scan(&rows).Error
	if err != nil {
		return blockdomain.StatusCounts{}, err
	}

	var counts blockdomain.StatusCounts
	for _, row := range rows {
		switch row.Status {
		case blockdomain.BlockStatusAvailable:
			counts.Available = row.Total
		case blockdomain.BlockStatusReserved:
			counts.Reserved = row.Total
		case blockdomain.BlockStatusSold:
			counts.Sold = row.Total
		}
	}
	return counts, nil
}

func (r *repo) CountAvailableByOffers(ctx context.Context, db *gorm.DB, offerIDs []snowflake.ID) (map[snowflake.ID]int, error) {
	out := make(map[snowflake.ID]int, len(offerIDs))
	if len(offerIDs) == 0 {
		return out, nil
	}

	var rows []struct {
		OfferID snowflake.ID
		Total   int
	}
	err := db.WithContext(ctx).Raw(
		`SELECT offer_id, COUNT(1) AS total FROM offer_blocks
		 WHERE offer_id IN ? AND status = ?
		 GROUP BY offer_id`,
		offerIDs,
		blockdomain.BlockStatusAvailable,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		out[row.OfferID] = row.Total
	}
	return out, nil
}

func (r *repo) ListByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]blockdomain.OfferBlock, error) {
	var blocks []blockdomain.OfferBlock
	err := db.WithContext(ctx).Raw(
		`SELECT id, offer_id, item_id, provider_id, status, order_id, transaction_id,
		 version, price_amount, currency, window_start, window_end,
		 reserved_at, sold_at, created_at, updated_at
		 FROM offer_blocks WHERE order_id = ?
		 ORDER BY created_at ASC, id ASC`,
		orderID,
	).Scan(&blocks).Error
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

func (r *repo) ListByIDs(ctx context.Context, db *gorm.DB, blockIDs []snowflake.ID) ([]blockdomain.OfferBlock, error) {
	if len(blockIDs) == 0 {
		return nil, nil
	}
	var blocks []blockdomain.OfferBlock
	err := db.WithContext(ctx).Raw(
		`SELECT id, offer_id, item_id, provider_id, status, order_id, transaction_id,
		 version, price_amount, currency, window_start, window_end,
		 reserved_at, sold_at, created_at, updated_at
		 FROM offer_blocks WHERE id IN ?`,
		blockIDs,
	).Scan(&blocks).Error
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

func (r *repo) RefreshAvailableSnapshot(ctx context.Context, db *gorm.DB, offerID snowflake.ID, priceAmount int64, currency string, windowStart, windowEnd time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE offer_blocks
		 SET price_amount = ?, currency = ?, window_start = ?, window_end = ?,
		     version = version + 1, updated_at = ?
		 WHERE offer_id = ? AND status = ?`,
		priceAmount,
		currency,
		windowStart,
		windowEnd,
		time.Now().UTC(),
		offerID,
		blockdomain.BlockStatusAvailable,
	).Error
}

func (r *repo) DeleteAvailableByOffer(ctx context.Context, db *gorm.DB, offerID snowflake.ID) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM offer_blocks WHERE offer_id = ? AND status = ?`,
		offerID,
		blockdomain.BlockStatusAvailable,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) CountCommittedByOffer(ctx context.Context, db *gorm.DB, offerID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM offer_blocks WHERE offer_id = ? AND status <> ?`,
		offerID,
		blockdomain.BlockStatusAvailable,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
