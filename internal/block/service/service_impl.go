package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	blockdomain "github.com/voltra-energy/voltra/internal/block/domain"
	"github.com/voltra-energy/voltra/internal/config"
	"github.com/voltra-energy/voltra/internal/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    blockdomain.Repository
	Trading *config.TradingConfigHolder
	Metrics *metrics.Metrics `optional:"true"`
}

type Ledger struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    blockdomain.Repository
	trading *config.TradingConfigHolder
	metrics *metrics.Metrics
}

func NewLedger(p Params) blockdomain.Ledger {
	return &Ledger{
		db:      p.DB,
		log:     p.Log.Named("block.ledger"),
		genID:   p.GenID,
		repo:    p.Repo,
		trading: p.Trading,
		metrics: p.Metrics,
	}
}

func (l *Ledger) Materialize(ctx context.Context, in blockdomain.MaterializeInput) (int, error) {
	if in.MaxQty <= 0 {
		return 0, blockdomain.ErrInvalidQuantity
	}

	created := 0
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := l.repo.ExistsForOffer(ctx, tx, in.OfferID)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}

		now := time.Now().UTC()
		blocks := make([]blockdomain.OfferBlock, 0, in.MaxQty)
		for i := 0; i < in.MaxQty; i++ {
			blocks = append(blocks, blockdomain.OfferBlock{
				ID:          l.genID.Generate(),
				OfferID:     in.OfferID,
				ItemID:      in.ItemID,
				ProviderID:  in.ProviderID,
				Status:      blockdomain.BlockStatusAvailable,
				Version:     1,
				PriceAmount: in.PriceAmount,
				Currency:    in.Currency,
				WindowStart: in.WindowStart,
				WindowEnd:   in.WindowEnd,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
		}
		if err := l.repo.InsertBlocks(ctx, tx, blocks); err != nil {
			return err
		}
		created = len(blocks)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if created > 0 {
		l.metrics.RecordMaterialized(created)
		l.log.Info("materialized offer blocks",
			zap.String("offer_id", in.OfferID.String()),
			zap.Int("count", created),
		)
	}
	return created, nil
}

func (l *Ledger) Claim(ctx context.Context, offerID snowflake.ID, quantity int, orderID snowflake.ID, transactionID string) ([]snowflake.ID, error) {
	if quantity <= 0 {
		return nil, blockdomain.ErrInvalidQuantity
	}

	retries := l.trading.Get().Blocks.ClaimRetries
	for attempt := 0; attempt < retries; attempt++ {
		ids, err := l.tryClaim(ctx, offerID, quantity, orderID, transactionID)
		if err == nil {
			l.metrics.RecordClaim("ok")
			return ids, nil
		}
		if errors.Is(err, blockdomain.ErrClaimConflict) {
			l.metrics.RecordClaim("conflict")
			l.log.Debug("claim conflict, retrying with fresh read",
				zap.String("offer_id", offerID.String()),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		if errors.Is(err, blockdomain.ErrInsufficientBlocks) {
			l.metrics.RecordClaim("insufficient")
		}
		return nil, err
	}

	// Retries exhausted under sustained contention: from the caller's
	// perspective the inventory could not satisfy the claim.
	l.metrics.RecordClaim("insufficient")
	return nil, blockdomain.ErrInsufficientBlocks
}

// tryClaim performs one read-then-reserve round. The reserve is a single
// batched UPDATE guarded by each block's observed version: either every
// requested block transitions or the transaction rolls back.
func (l *Ledger) tryClaim(ctx context.Context, offerID snowflake.ID, quantity int, orderID snowflake.ID, transactionID string) ([]snowflake.ID, error) {
	refs, err := l.repo.AvailableForClaim(ctx, l.db, offerID, quantity)
	if err != nil {
		return nil, err
	}
	if len(refs) < quantity {
		return nil, blockdomain.ErrInsufficientBlocks
	}

	now := time.Now().UTC()
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		affected, err := l.repo.ReserveBatch(ctx, tx, refs, orderID, transactionID, now)
		if err != nil {
			return err
		}
		if affected != int64(len(refs)) {
			// Partial success is not a valid outcome; rolling back keeps
			// the batch all-or-nothing.
			return blockdomain.ErrClaimConflict
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ids := make([]snowflake.ID, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.ID)
	}
	return ids, nil
}

func (l *Ledger) Finalize(ctx context.Context, blockIDs []snowflake.ID, orderID snowflake.ID) error {
	if len(blockIDs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		affected, err := l.repo.MarkSold(ctx, tx, blockIDs, orderID, now)
		if err != nil {
			return err
		}
		if affected != int64(len(blockIDs)) {
			return blockdomain.ErrInvalidBlockState
		}
		return nil
	})
}

func (l *Ledger) Release(ctx context.Context, blockIDs []snowflake.ID) error {
	if len(blockIDs) == 0 {
		return nil
	}
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		affected, err := l.repo.ReleaseBatch(ctx, tx, blockIDs)
		if err != nil {
			return err
		}
		if affected != int64(len(blockIDs)) {
			return blockdomain.ErrInvalidBlockState
		}
		return nil
	})
}

func (l *Ledger) ReleaseOrder(ctx context.Context, orderID snowflake.ID) (int, error) {
	var released int64
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		released, err = l.repo.ReleaseByOrder(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return int(released), nil
}

func (l *Ledger) SyncStatuses(ctx context.Context, updates []blockdomain.StatusUpdate) (blockdomain.SyncOutcome, error) {
	var out blockdomain.SyncOutcome
	if len(updates) == 0 {
		return out, nil
	}

	now := time.Now().UTC()
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := make([]snowflake.ID, 0, len(updates))
		for _, u := range updates {
			ids = append(ids, u.BlockID)
		}
		blocks, err := l.repo.ListByIDs(ctx, tx, ids)
		if err != nil {
			return err
		}
		byID := make(map[snowflake.ID]blockdomain.OfferBlock, len(blocks))
		for _, b := range blocks {
			byID[b.ID] = b
		}

		sellByOrder := make(map[snowflake.ID][]snowflake.ID)
		var release []snowflake.ID
		for _, u := range updates {
			block, ok := byID[u.BlockID]
			if !ok {
				return blockdomain.ErrNotFound
			}
			if block.Status == u.Status {
				out.Unchanged++
				continue
			}
			if block.Status != blockdomain.BlockStatusReserved {
				return blockdomain.ErrInvalidBlockState
			}
			switch u.Status {
			case blockdomain.BlockStatusSold:
				if block.OrderID == nil {
					return blockdomain.ErrInvalidBlockState
				}
				sellByOrder[*block.OrderID] = append(sellByOrder[*block.OrderID], block.ID)
			case blockdomain.BlockStatusAvailable:
				release = append(release, block.ID)
			default:
				return blockdomain.ErrInvalidBlockState
			}
		}

		for orderID, blockIDs := range sellByOrder {
			affected, err := l.repo.MarkSold(ctx, tx, blockIDs, orderID, now)
			if err != nil {
				return err
			}
			if affected != int64(len(blockIDs)) {
				return blockdomain.ErrInvalidBlockState
			}
			out.Updated += len(blockIDs)
		}
		if len(release) > 0 {
			affected, err := l.repo.ReleaseBatch(ctx, tx, release)
			if err != nil {
				return err
			}
			if affected != int64(len(release)) {
				return blockdomain.ErrInvalidBlockState
			}
			out.Updated += len(release)
		}
		return nil
	})
	if err != nil {
		return blockdomain.SyncOutcome{}, err
	}

	if out.Updated > 0 {
		l.log.Info("applied block status sync",
			zap.Int("updated", out.Updated),
			zap.Int("unchanged", out.Unchanged),
		)
	}
	return out, nil
}

func (l *Ledger) AvailableCount(ctx context.Context, offerID snowflake.ID) (int, error) {
	counts, err := l.repo.CountByStatus(ctx, l.db, offerID)
	if err != nil {
		return 0, err
	}
	return counts.Available, nil
}

func (l *Ledger) Counts(ctx context.Context, offerID snowflake.ID) (blockdomain.StatusCounts, error) {
	return l.repo.CountByStatus(ctx, l.db, offerID)
}

func (l *Ledger) BlocksForOrder(ctx context.Context, orderID snowflake.ID) ([]blockdomain.OfferBlock, error) {
	return l.repo.ListByOrder(ctx, l.db, orderID)
}
