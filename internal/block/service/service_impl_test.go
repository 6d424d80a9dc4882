package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	blockdomain "github.com/voltra-energy/voltra/internal/block/domain"
	"github.com/voltra-energy/voltra/internal/block/repository"
	"github.com/voltra-energy/voltra/internal/config"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestLedger(t *testing.T, name string) (blockdomain.Ledger, *gorm.DB, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(10000)", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&blockdomain.OfferBlock{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	holder, err := config.NewTradingConfigHolder()
	require.NoError(t, err)

	ledger := NewLedger(Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Repo:    repository.Provide(),
		Trading: holder,
	})
	return ledger, db, node
}

func materializeOffer(t *testing.T, ledger blockdomain.Ledger, node *snowflake.Node, qty int) snowflake.ID {
	t.Helper()

	offerID := node.Generate()
	now := time.Now().UTC()
	created, err := ledger.Materialize(context.Background(), blockdomain.MaterializeInput{
		OfferID:     offerID,
		ItemID:      node.Generate(),
		ProviderID:  node.Generate(),
		MaxQty:      qty,
		PriceAmount: 600,
		Currency:    "EUR",
		WindowStart: now,
		WindowEnd:   now.Add(8 * time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, qty, created)
	return offerID
}

func TestMaterialize_Idempotent(t *testing.T) {
	ledger, _, node := newTestLedger(t, "mat_idem")
	ctx := context.Background()

	offerID := node.Generate()
	now := time.Now().UTC()
	in := blockdomain.MaterializeInput{
		OfferID:     offerID,
		ItemID:      node.Generate(),
		ProviderID:  node.Generate(),
		MaxQty:      10,
		PriceAmount: 600,
		Currency:    "EUR",
		WindowStart: now,
		WindowEnd:   now.Add(time.Hour),
	}

	created, err := ledger.Materialize(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 10, created)

	again, err := ledger.Materialize(ctx, in)
	require.NoError(t, err)
	assert.Zero(t, again)

	counts, err := ledger.Counts(ctx, offerID)
	require.NoError(t, err)
	assert.Equal(t, 10, counts.Available)
	assert.Equal(t, 10, counts.Total())
}

func TestMaterialize_RejectsZeroQuantity(t *testing.T) {
	ledger, _, node := newTestLedger(t, "mat_zero")

	_, err := ledger.Materialize(context.Background(), blockdomain.MaterializeInput{
		OfferID: node.Generate(),
		MaxQty:  0,
	})
	assert.ErrorIs(t, err, blockdomain.ErrInvalidQuantity)
}

func TestClaim_HappyPath(t *testing.T) {
	ledger, _, node := newTestLedger(t, "claim_happy")
	ctx := context.Background()

	offerID := materializeOffer(t, ledger, node, 100)
	orderID := node.Generate()

	ids, err := ledger.Claim(ctx, offerID, 10, orderID, "txn-1")
	require.NoError(t, err)
	assert.Len(t, ids, 10)

	counts, err := ledger.Counts(ctx, offerID)
	require.NoError(t, err)
	assert.Equal(t, 90, counts.Available)
	assert.Equal(t, 10, counts.Reserved)
	assert.Equal(t, 100, counts.Total())

	blocks, err := ledger.BlocksForOrder(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, blocks, 10)
	for _, b := range blocks {
		assert.Equal(t, blockdomain.BlockStatusReserved, b.Status)
		require.NotNil(t, b.OrderID)
		assert.Equal(t, orderID, *b.OrderID)
		require.NotNil(t, b.TransactionID)
		assert.Equal(t, "txn-1", *b.TransactionID)
		assert.NotNil(t, b.ReservedAt)
		assert.Equal(t, int64(2), b.Version)
	}
}

func TestClaim_OldestFirst(t *testing.T) {
	ledger, db, node := newTestLedger(t, "claim_fifo")
	ctx := context.Background()

	offerID := materializeOffer(t, ledger, node, 5)

	var oldest []snowflake.ID
	err := db.Raw(
		`SELECT id FROM offer_blocks WHERE offer_id = ? ORDER BY created_at ASC, id ASC LIMIT 2`,
		offerID,
	).Scan(&oldest).Error
	require.NoError(t, err)

	ids, err := ledger.Claim(ctx, offerID, 2, node.Generate(), "txn-fifo")
	require.NoError(t, err)
	assert.Equal(t, oldest, ids)
}

func TestClaim_Insufficient(t *testing.T) {
	ledger, _, node := newTestLedger(t, "claim_short")
	ctx := context.Background()

	offerID := materializeOffer(t, ledger, node, 5)

	_, err := ledger.Claim(ctx, offerID, 6, node.Generate(), "txn-1")
	assert.ErrorIs(t, err, blockdomain.ErrInsufficientBlocks)

	// Nothing was reserved by the failed claim.
	counts, err := ledger.Counts(ctx, offerID)
	require.NoError(t, err)
	assert.Equal(t, 5, counts.Available)
}

func TestClaim_Exhaustion_TwoFullClaims(t *testing.T) {
	ledger, _, node := newTestLedger(t, "claim_exhaust")
	ctx := context.Background()

	offerID := materializeOffer(t, ledger, node, 5)

	_, err := ledger.Claim(ctx, offerID, 5, node.Generate(), "txn-1")
	require.NoError(t, err)

	_, err = ledger.Claim(ctx, offerID, 5, node.Generate(), "txn-2")
	assert.ErrorIs(t, err, blockdomain.ErrInsufficientBlocks)

	counts, err := ledger.Counts(ctx, offerID)
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Available)
	assert.Equal(t, 5, counts.Reserved)
	assert.Equal(t, 5, counts.Total())
}

func TestClaim_Concurrent_NoDoubleAllocation(t *testing.T) {
	ledger, _, node := newTestLedger(t, "claim_race")
	ctx := context.Background()

	const available = 4
	const claimers = 8

	offerID := materializeOffer(t, ledger, node, available)

	type outcome struct {
		ids []snowflake.ID
		err error
	}
	results := make([]outcome, claimers)

	var wg sync.WaitGroup
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids, err := ledger.Claim(ctx, offerID, 1, node.Generate(), fmt.Sprintf("txn-%d", i))
			results[i] = outcome{ids: ids, err: err}
		}(i)
	}
	wg.Wait()

	seen := map[snowflake.ID]bool{}
	succeeded := 0
	for _, res := range results {
		if res.err != nil {
			assert.ErrorIs(t, res.err, blockdomain.ErrInsufficientBlocks)
			continue
		}
		succeeded++
		for _, id := range res.ids {
			assert.False(t, seen[id], "block %s allocated twice", id)
			seen[id] = true
		}
	}
	assert.LessOrEqual(t, succeeded, available)

	counts, err := ledger.Counts(ctx, offerID)
	require.NoError(t, err)
	assert.Equal(t, available, counts.Total())
	assert.Equal(t, succeeded, counts.Reserved)
}

func TestFinalize_ThenConservation(t *testing.T) {
	ledger, _, node := newTestLedger(t, "finalize")
	ctx := context.Background()

	offerID := materializeOffer(t, ledger, node, 10)
	orderID := node.Generate()

	ids, err := ledger.Claim(ctx, offerID, 4, orderID, "txn-1")
	require.NoError(t, err)

	require.NoError(t, ledger.Finalize(ctx, ids, orderID))

	counts, err := ledger.Counts(ctx, offerID)
	require.NoError(t, err)
	assert.Equal(t, 6, counts.Available)
	assert.Equal(t, 0, counts.Reserved)
	assert.Equal(t, 4, counts.Sold)
	assert.Equal(t, 10, counts.Total())

	blocks, err := ledger.BlocksForOrder(ctx, orderID)
	require.NoError(t, err)
	for _, b := range blocks {
		assert.Equal(t, blockdomain.BlockStatusSold, b.Status)
		assert.NotNil(t, b.SoldAt)
	}
}

func TestFinalize_RejectsUnreservedBlocks(t *testing.T) {
	ledger, _, node := newTestLedger(t, "finalize_bad")
	ctx := context.Background()

	offerID := materializeOffer(t, ledger, node, 2)
	orderID := node.Generate()

	ids, err := ledger.Claim(ctx, offerID, 1, orderID, "txn-1")
	require.NoError(t, err)

	// A different order cannot finalize blocks it does not hold.
	err = ledger.Finalize(ctx, ids, node.Generate())
	assert.ErrorIs(t, err, blockdomain.ErrInvalidBlockState)
}

func TestRelease_MakesBlocksClaimableAgain(t *testing.T) {
	ledger, _, node := newTestLedger(t, "release")
	ctx := context.Background()

	offerID := materializeOffer(t, ledger, node, 3)
	orderID := node.Generate()

	ids, err := ledger.Claim(ctx, offerID, 3, orderID, "txn-1")
	require.NoError(t, err)

	require.NoError(t, ledger.Release(ctx, ids))

	counts, err := ledger.Counts(ctx, offerID)
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Available)

	// Released blocks carry no stale order linkage.
	blocks, err := ledger.BlocksForOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Empty(t, blocks)

	_, err = ledger.Claim(ctx, offerID, 3, node.Generate(), "txn-2")
	assert.NoError(t, err)
}

func TestReleaseOrder(t *testing.T) {
	ledger, _, node := newTestLedger(t, "release_order")
	ctx := context.Background()

	offerID := materializeOffer(t, ledger, node, 5)
	orderID := node.Generate()

	_, err := ledger.Claim(ctx, offerID, 2, orderID, "txn-1")
	require.NoError(t, err)

	released, err := ledger.ReleaseOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, 2, released)

	counts, err := ledger.Counts(ctx, offerID)
	require.NoError(t, err)
	assert.Equal(t, 5, counts.Available)
}

func TestSyncStatuses_SellsAndReleasesReservedBlocks(t *testing.T) {
	ledger, _, node := newTestLedger(t, "sync_statuses")
	ctx := context.Background()

	offerID := materializeOffer(t, ledger, node, 4)
	orderID := node.Generate()

	ids, err := ledger.Claim(ctx, offerID, 3, orderID, "txn-1")
	require.NoError(t, err)

	outcome, err := ledger.SyncStatuses(ctx, []blockdomain.StatusUpdate{
		{BlockID: ids[0], Status: blockdomain.BlockStatusSold},
		{BlockID: ids[1], Status: blockdomain.BlockStatusSold},
		{BlockID: ids[2], Status: blockdomain.BlockStatusAvailable},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.Updated)
	assert.Zero(t, outcome.Unchanged)

	counts, err := ledger.Counts(ctx, offerID)
	require.NoError(t, err)
	assert.Equal(t, blockdomain.StatusCounts{Available: 2, Reserved: 0, Sold: 2}, counts)
}

func TestSyncStatuses_ReplayIsUnchanged(t *testing.T) {
	ledger, _, node := newTestLedger(t, "sync_replay")
	ctx := context.Background()

	offerID := materializeOffer(t, ledger, node, 2)
	orderID := node.Generate()

	ids, err := ledger.Claim(ctx, offerID, 2, orderID, "txn-1")
	require.NoError(t, err)

	batch := []blockdomain.StatusUpdate{
		{BlockID: ids[0], Status: blockdomain.BlockStatusSold},
		{BlockID: ids[1], Status: blockdomain.BlockStatusSold},
	}

	first, err := ledger.SyncStatuses(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Updated)

	second, err := ledger.SyncStatuses(ctx, batch)
	require.NoError(t, err)
	assert.Zero(t, second.Updated)
	assert.Equal(t, 2, second.Unchanged)
}

func TestSyncStatuses_RejectsAvailableToSold(t *testing.T) {
	ledger, db, node := newTestLedger(t, "sync_invalid")
	ctx := context.Background()

	offerID := materializeOffer(t, ledger, node, 1)

	var block blockdomain.OfferBlock
	require.NoError(t, db.Where("offer_id = ?", offerID).First(&block).Error)

	_, err := ledger.SyncStatuses(ctx, []blockdomain.StatusUpdate{
		{BlockID: block.ID, Status: blockdomain.BlockStatusSold},
	})
	assert.ErrorIs(t, err, blockdomain.ErrInvalidBlockState)

	counts, err := ledger.Counts(ctx, offerID)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Available)
}

func TestSyncStatuses_UnknownBlock(t *testing.T) {
	ledger, _, node := newTestLedger(t, "sync_unknown")

	_, err := ledger.SyncStatuses(context.Background(), []blockdomain.StatusUpdate{
		{BlockID: node.Generate(), Status: blockdomain.BlockStatusSold},
	})
	assert.ErrorIs(t, err, blockdomain.ErrNotFound)
}
