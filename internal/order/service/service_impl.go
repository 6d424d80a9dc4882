package service

import (
	"context"
	"math"

	"github.com/bwmarrin/snowflake"
	blockdomain "github.com/voltra-energy/voltra/internal/block/domain"
	catalogdomain "github.com/voltra-energy/voltra/internal/catalog/domain"
	"github.com/voltra-energy/voltra/internal/clock"
	"github.com/voltra-energy/voltra/internal/config"
	orderdomain "github.com/voltra-energy/voltra/internal/order/domain"
	"github.com/voltra-energy/voltra/internal/trust"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    orderdomain.Repository
	Blocks  blockdomain.Repository
	Catalog catalogdomain.Service
	Trust   *trust.Engine
	Trading *config.TradingConfigHolder
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    orderdomain.Repository
	blocks  blockdomain.Repository
	catalog catalogdomain.Service
	trust   *trust.Engine
	trading *config.TradingConfigHolder
}

func New(p Params) orderdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("order.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		blocks:  p.Blocks,
		catalog: p.Catalog,
		trust:   p.Trust,
		trading: p.Trading,
	}
}

func (s *Service) Create(ctx context.Context, in orderdomain.CreateInput) (*orderdomain.Order, error) {
	if in.Quantity <= 0 {
		return nil, orderdomain.ErrInvalidQuantity
	}

	id := in.ID
	if id == 0 {
		id = s.genID.Generate()
	}

	now := s.clock.Now().UTC()
	order := &orderdomain.Order{
		ID:            id,
		BuyerID:       in.BuyerID,
		ProviderID:    in.ProviderID,
		OfferID:       in.OfferID,
		TransactionID: in.TransactionID,
		Quantity:      in.Quantity,
		TotalPrice:    in.TotalPrice,
		Currency:      in.Currency,
		Status:        orderdomain.StatusActive,
		Version:       1,
		DeliveryAt:    in.DeliveryAt.UTC(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Insert(ctx, s.db, order); err != nil {
		return nil, err
	}

	s.log.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("transaction_id", order.TransactionID),
		zap.Int("quantity", order.Quantity),
		zap.Int64("total_price", order.TotalPrice))
	return order, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*orderdomain.Order, error) {
	order, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrNotFound
	}
	return order, nil
}

func (s *Service) GetByTransaction(ctx context.Context, transactionID string) (*orderdomain.Order, error) {
	order, err := s.repo.FindByTransactionID(ctx, s.db, transactionID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrNotFound
	}
	return order, nil
}

func (s *Service) Transition(ctx context.Context, id snowflake.ID, to orderdomain.OrderStatus) (*orderdomain.Order, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !orderdomain.CanTransition(order.Status, to) {
		return nil, &orderdomain.InvalidTransitionError{From: order.Status, To: to}
	}

	affected, err := s.repo.UpdateStatus(ctx, s.db, id, order.Status, to, order.Version, s.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, orderdomain.ErrVersionConflict
	}
	return s.Get(ctx, id)
}

// Cancel enforces the asymmetric rules: a buyer cancelling outside the
// cancellation window pays nothing; inside the window the buyer pays
// BuyerCancelPenaltyPct of the total to the seller and takes a trust hit
// proportional to the abandoned share. A seller cancellation always costs the
// seller SellerCancelPenaltyPct and refunds the buyer in full.
func (s *Service) Cancel(ctx context.Context, in orderdomain.CancelInput) (*orderdomain.CancelResult, error) {
	if in.Party != orderdomain.CancelByBuyer && in.Party != orderdomain.CancelBySeller {
		return nil, orderdomain.ErrInvalidParty
	}

	order, err := s.Get(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if !orderdomain.CanTransition(order.Status, orderdomain.StatusCancelled) {
		return nil, &orderdomain.InvalidTransitionError{From: order.Status, To: orderdomain.StatusCancelled}
	}

	now := s.clock.Now().UTC()
	cfg := s.trading.Get().Orders
	withinWindow := now.After(order.DeliveryAt.Add(-cfg.CancelWindow))

	var released int64
	err = s.db.Transaction(func(tx *gorm.DB) error {
		affected, err := s.repo.MarkCancelled(ctx, tx, order.ID, order.Status, order.Version, in.Party, now)
		if err != nil {
			return err
		}
		if affected == 0 {
			return orderdomain.ErrVersionConflict
		}
		released, err = s.blocks.ReleaseByOrder(ctx, tx, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &orderdomain.CancelResult{
		WithinWindow:   withinWindow,
		PenaltyPaidBy:  in.Party,
		ReleasedBlocks: int(released),
	}

	qty := float64(order.Quantity)
	switch in.Party {
	case orderdomain.CancelByBuyer:
		if withinWindow {
			result.PenaltyAmount = roundPct(order.TotalPrice, cfg.BuyerCancelPenaltyPct)
		}
		result.RefundAmount = order.TotalPrice - result.PenaltyAmount
		update := s.trust.AfterCancel(in.BuyerTrustScore, qty, qty, withinWindow)
		result.BuyerTrustScore = update.NewScore
		result.TrustImpact = update.Impact

		provider, err := s.catalog.GetProvider(ctx, order.ProviderID)
		if err != nil {
			return nil, err
		}
		// Seller keeps its score but the terminal order still counts.
		if err := s.catalog.ApplyTrustUpdate(ctx, order.ProviderID, catalogdomain.TrustUpdate{
			NewScore:  provider.TrustScore,
			Delivered: false,
		}); err != nil {
			return nil, err
		}
		result.SellerTrustScore = provider.TrustScore

	case orderdomain.CancelBySeller:
		result.PenaltyAmount = roundPct(order.TotalPrice, cfg.SellerCancelPenaltyPct)
		result.RefundAmount = order.TotalPrice
		result.BuyerTrustScore = in.BuyerTrustScore

		provider, err := s.catalog.GetProvider(ctx, order.ProviderID)
		if err != nil {
			return nil, err
		}
		update := s.trust.AfterCancel(provider.TrustScore, qty, qty, true)
		if err := s.catalog.ApplyTrustUpdate(ctx, order.ProviderID, catalogdomain.TrustUpdate{
			NewScore:  update.NewScore,
			Delivered: false,
		}); err != nil {
			return nil, err
		}
		result.SellerTrustScore = update.NewScore
		result.TrustImpact = update.Impact
	}

	cancelled, err := s.Get(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	result.Order = cancelled

	s.log.Info("order cancelled",
		zap.String("order_id", order.ID.String()),
		zap.String("party", string(in.Party)),
		zap.Bool("within_window", withinWindow),
		zap.Int64("penalty", result.PenaltyAmount),
		zap.Int("released_blocks", result.ReleasedBlocks))
	return result, nil
}

func (s *Service) CompleteWithVerification(ctx context.Context, id snowflake.ID, delivered, expected float64) (*orderdomain.CompletionResult, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !orderdomain.CanTransition(order.Status, orderdomain.StatusCompleted) {
		return nil, &orderdomain.InvalidTransitionError{From: order.Status, To: orderdomain.StatusCompleted}
	}

	affected, err := s.repo.UpdateStatus(ctx, s.db, id, order.Status, orderdomain.StatusCompleted, order.Version, s.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, orderdomain.ErrVersionConflict
	}

	provider, err := s.catalog.GetProvider(ctx, order.ProviderID)
	if err != nil {
		return nil, err
	}
	update := s.trust.AfterDelivery(provider.TrustScore, delivered, expected)
	fullDelivery := expected > 0 && delivered >= expected
	if err := s.catalog.ApplyTrustUpdate(ctx, order.ProviderID, catalogdomain.TrustUpdate{
		NewScore:  update.NewScore,
		Delivered: fullDelivery,
	}); err != nil {
		return nil, err
	}

	completed, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.log.Info("order completed",
		zap.String("order_id", id.String()),
		zap.Float64("delivered", delivered),
		zap.Float64("expected", expected),
		zap.Float64("trust_impact", update.Impact))
	return &orderdomain.CompletionResult{
		Order:            completed,
		SellerTrustScore: update.NewScore,
		TrustImpact:      update.Impact,
	}, nil
}

func roundPct(amount int64, pct float64) int64 {
	return int64(math.Round(float64(amount) * pct))
}
