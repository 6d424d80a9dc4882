package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	protocoldomain "github.com/voltra-energy/voltra/internal/protocol/domain"
	"github.com/voltra-energy/voltra/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() protocoldomain.EventRepository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, event *protocoldomain.Event) error {
	err := tx.WithContext(ctx).Exec(
		`INSERT INTO events (id, transaction_id, message_id, action, direction, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.TransactionID, event.MessageID, event.Action,
		event.Direction, event.Payload, event.CreatedAt,
	).Error
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return protocoldomain.ErrDuplicateMessage
		}
		return err
	}
	return nil
}

func (r *repo) Delete(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	return tx.WithContext(ctx).Exec(`DELETE FROM events WHERE id = ?`, id).Error
}

func (r *repo) ExistsInbound(ctx context.Context, tx *gorm.DB, messageID string) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM events WHERE message_id = ? AND direction = ?`,
		messageID, protocoldomain.DirectionInbound,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) ListByTransaction(ctx context.Context, tx *gorm.DB, transactionID string) ([]protocoldomain.Event, error) {
	var rows []protocoldomain.Event
	err := tx.WithContext(ctx).Raw(
		`SELECT * FROM events WHERE transaction_id = ? ORDER BY created_at ASC, id ASC`,
		transactionID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
