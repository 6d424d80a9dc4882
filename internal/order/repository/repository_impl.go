package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/voltra-energy/voltra/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() orderdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *orderdomain.Order) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO orders
		 (id, buyer_id, provider_id, offer_id, transaction_id, quantity, total_price,
		  currency, status, version, delivery_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.BuyerID, order.ProviderID, order.OfferID, order.TransactionID,
		order.Quantity, order.TotalPrice, order.Currency, order.Status, order.Version,
		order.DeliveryAt, order.CreatedAt, order.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*orderdomain.Order, error) {
	var rows []orderdomain.Order
	err := db.WithContext(ctx).Raw(`SELECT * FROM orders WHERE id = ?`, id).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repo) FindByTransactionID(ctx context.Context, db *gorm.DB, transactionID string) (*orderdomain.Order, error) {
	var rows []orderdomain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM orders WHERE transaction_id = ? ORDER BY created_at DESC LIMIT 1`,
		transactionID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to orderdomain.OrderStatus, version int64, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND status = ? AND version = ?`,
		to, at, id, from, version,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) MarkCancelled(ctx context.Context, db *gorm.DB, id snowflake.ID, from orderdomain.OrderStatus, version int64, party orderdomain.CancelParty, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, cancelled_at = ?, cancelled_by = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND status = ? AND version = ?`,
		orderdomain.StatusCancelled, at, party, at, id, from, version,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
