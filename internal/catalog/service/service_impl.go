package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	blockdomain "github.com/voltra-energy/voltra/internal/block/domain"
	catalogdomain "github.com/voltra-energy/voltra/internal/catalog/domain"
	"github.com/voltra-energy/voltra/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    catalogdomain.Repository
	Blocks  blockdomain.Repository
	Ledger  blockdomain.Ledger
	Trading *config.TradingConfigHolder
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    catalogdomain.Repository
	blocks  blockdomain.Repository
	ledger  blockdomain.Ledger
	trading *config.TradingConfigHolder
}

func New(p Params) catalogdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("catalog.service"),
		repo:    p.Repo,
		blocks:  p.Blocks,
		ledger:  p.Ledger,
		trading: p.Trading,
	}
}

func (s *Service) GetCatalog(ctx context.Context) (*catalogdomain.Catalog, error) {
	providers, err := s.repo.ListProviders(ctx, s.db)
	if err != nil {
		return nil, err
	}

	providerIDs := make([]snowflake.ID, 0, len(providers))
	for _, p := range providers {
		providerIDs = append(providerIDs, p.ID)
	}

	items, err := s.repo.ListItemsByProviders(ctx, s.db, providerIDs)
	if err != nil {
		return nil, err
	}

	itemIDs := make([]snowflake.ID, 0, len(items))
	for _, item := range items {
		itemIDs = append(itemIDs, item.ID)
	}

	offers, err := s.repo.ListOffersByItems(ctx, s.db, itemIDs)
	if err != nil {
		return nil, err
	}

	offerIDs := make([]snowflake.ID, 0, len(offers))
	for _, o := range offers {
		if o.Active {
			offerIDs = append(offerIDs, o.ID)
		}
	}
	available, err := s.blocks.CountAvailableByOffers(ctx, s.db, offerIDs)
	if err != nil {
		return nil, err
	}

	offersByItem := make(map[snowflake.ID][]catalogdomain.OfferView, len(items))
	for _, o := range offers {
		if !o.Active {
			continue
		}
		offersByItem[o.ItemID] = append(offersByItem[o.ItemID], catalogdomain.OfferView{
			ID:             o.ID,
			ItemID:         o.ItemID,
			ProviderID:     o.ProviderID,
			PriceAmount:    o.PriceAmount,
			Currency:       o.Currency,
			MaxQuantity:    available[o.ID],
			WindowStart:    o.WindowStart,
			WindowEnd:      o.WindowEnd,
			SettlementType: o.SettlementType,
			Active:         o.Active,
		})
	}

	itemsByProvider := make(map[snowflake.ID][]catalogdomain.ItemView, len(providers))
	for _, item := range items {
		itemsByProvider[item.ProviderID] = append(itemsByProvider[item.ProviderID], catalogdomain.ItemView{
			ID:           item.ID,
			SourceType:   item.SourceType,
			AvailableQty: item.AvailableQty,
			WindowStart:  item.WindowStart,
			WindowEnd:    item.WindowEnd,
			Offers:       offersByItem[item.ID],
		})
	}

	catalog := &catalogdomain.Catalog{Providers: make([]catalogdomain.ProviderView, 0, len(providers))}
	for _, p := range providers {
		catalog.Providers = append(catalog.Providers, catalogdomain.ProviderView{
			ID:         p.ID,
			Name:       p.Name,
			TrustScore: p.TrustScore,
			Items:      itemsByProvider[p.ID],
		})
	}
	return catalog, nil
}

func (s *Service) SyncProvider(ctx context.Context, req catalogdomain.SyncProviderRequest) (*catalogdomain.Provider, error) {
	id, err := parseID(req.ID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, catalogdomain.ErrInvalidName
	}

	now := time.Now().UTC()
	p := &catalogdomain.Provider{
		ID:         id,
		Name:       name,
		TrustScore: s.trading.Get().Trust.DefaultScore,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if req.TrustScore != nil {
		p.TrustScore = clamp01(*req.TrustScore)
	}
	if req.DeclaredCapacity != nil {
		p.DeclaredCapacity = *req.DeclaredCapacity
	}

	if err := s.repo.UpsertProvider(ctx, s.db, p); err != nil {
		return nil, err
	}
	return s.repo.FindProvider(ctx, s.db, id)
}

func (s *Service) SyncItem(ctx context.Context, req catalogdomain.SyncItemRequest) (*catalogdomain.CatalogItem, error) {
	id, err := parseID(req.ID)
	if err != nil {
		return nil, err
	}
	providerID, err := parseID(req.ProviderID)
	if err != nil {
		return nil, err
	}
	sourceType := catalogdomain.SourceType(strings.ToUpper(strings.TrimSpace(req.SourceType)))
	if !catalogdomain.ValidSourceType(sourceType) {
		return nil, catalogdomain.ErrInvalidSourceType
	}
	if !req.WindowEnd.After(req.WindowStart) {
		return nil, catalogdomain.ErrInvalidWindow
	}

	provider, err := s.repo.FindProvider(ctx, s.db, providerID)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, catalogdomain.ErrProviderNotFound
	}

	now := time.Now().UTC()
	item := &catalogdomain.CatalogItem{
		ID:           id,
		ProviderID:   providerID,
		SourceType:   sourceType,
		AvailableQty: req.AvailableQty,
		WindowStart:  req.WindowStart.UTC(),
		WindowEnd:    req.WindowEnd.UTC(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.UpsertItem(ctx, s.db, item); err != nil {
		return nil, err
	}
	return s.repo.FindItem(ctx, s.db, id)
}

func (s *Service) SyncOffer(ctx context.Context, req catalogdomain.SyncOfferRequest) (*catalogdomain.Offer, error) {
	id, err := parseID(req.ID)
	if err != nil {
		return nil, err
	}
	itemID, err := parseID(req.ItemID)
	if err != nil {
		return nil, err
	}
	providerID, err := parseID(req.ProviderID)
	if err != nil {
		return nil, err
	}
	if req.PriceAmount <= 0 {
		return nil, catalogdomain.ErrInvalidPrice
	}
	if req.MaxQty <= 0 {
		return nil, catalogdomain.ErrInvalidQuantity
	}
	if !req.WindowEnd.After(req.WindowStart) {
		return nil, catalogdomain.ErrInvalidWindow
	}

	item, err := s.repo.FindItem(ctx, s.db, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, catalogdomain.ErrItemNotFound
	}
	if item.ProviderID != providerID {
		return nil, catalogdomain.ErrProviderNotFound
	}

	now := time.Now().UTC()
	offer := &catalogdomain.Offer{
		ID:             id,
		ItemID:         itemID,
		ProviderID:     providerID,
		PriceAmount:    req.PriceAmount,
		Currency:       strings.ToUpper(strings.TrimSpace(req.Currency)),
		MaxQty:         req.MaxQty,
		WindowStart:    req.WindowStart.UTC(),
		WindowEnd:      req.WindowEnd.UTC(),
		SettlementType: req.SettlementType,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.UpsertOffer(ctx, s.db, offer); err != nil {
		return nil, err
	}

	// Materialize is idempotent per offer id, so a retried first sync is
	// safe even when the earlier attempt failed between upsert and here.
	created, err := s.ledger.Materialize(ctx, blockdomain.MaterializeInput{
		OfferID:     offer.ID,
		ItemID:      offer.ItemID,
		ProviderID:  offer.ProviderID,
		MaxQty:      offer.MaxQty,
		PriceAmount: offer.PriceAmount,
		Currency:    offer.Currency,
		WindowStart: offer.WindowStart,
		WindowEnd:   offer.WindowEnd,
	})
	if err != nil {
		return nil, err
	}

	if created == 0 && req.RefreshBlocks {
		err := s.blocks.RefreshAvailableSnapshot(ctx, s.db, offer.ID,
			offer.PriceAmount, offer.Currency, offer.WindowStart, offer.WindowEnd)
		if err != nil {
			return nil, err
		}
		s.log.Info("offer blocks re-snapshotted",
			zap.String("offer_id", offer.ID.String()),
			zap.Int64("price_amount", offer.PriceAmount))
	}

	return s.repo.FindOffer(ctx, s.db, id)
}

func (s *Service) DeleteOffer(ctx context.Context, id snowflake.ID) error {
	offer, err := s.repo.FindOffer(ctx, s.db, id)
	if err != nil {
		return err
	}
	if offer == nil {
		return catalogdomain.ErrOfferNotFound
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		committed, err := s.blocks.CountCommittedByOffer(ctx, tx, id)
		if err != nil {
			return err
		}
		if committed > 0 {
			return catalogdomain.ErrOfferHasCommitments
		}
		if _, err := s.blocks.DeleteAvailableByOffer(ctx, tx, id); err != nil {
			return err
		}
		return s.repo.DeleteOffer(ctx, tx, id)
	})
}

func (s *Service) DisableOffer(ctx context.Context, id snowflake.ID) error {
	return s.repo.SetOfferActive(ctx, s.db, id, false)
}

func (s *Service) GetOffer(ctx context.Context, id snowflake.ID) (*catalogdomain.Offer, error) {
	offer, err := s.repo.FindOffer(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if offer == nil {
		return nil, catalogdomain.ErrOfferNotFound
	}
	return offer, nil
}

func (s *Service) GetProvider(ctx context.Context, id snowflake.ID) (*catalogdomain.Provider, error) {
	provider, err := s.repo.FindProvider(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, catalogdomain.ErrProviderNotFound
	}
	return provider, nil
}

func (s *Service) ApplyTrustUpdate(ctx context.Context, providerID snowflake.ID, update catalogdomain.TrustUpdate) error {
	if err := s.repo.UpdateProviderTrust(ctx, s.db, providerID, clamp01(update.NewScore), update.Delivered); err != nil {
		return err
	}
	s.log.Info("provider trust updated",
		zap.String("provider_id", providerID.String()),
		zap.Float64("score", update.NewScore),
		zap.Bool("delivered", update.Delivered))
	return nil
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, catalogdomain.ErrInvalidID
	}
	return id, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
