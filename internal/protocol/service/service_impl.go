package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	blockdomain "github.com/voltra-energy/voltra/internal/block/domain"
	catalogdomain "github.com/voltra-energy/voltra/internal/catalog/domain"
	"github.com/voltra-energy/voltra/internal/clock"
	"github.com/voltra-energy/voltra/internal/config"
	"github.com/voltra-energy/voltra/internal/matching"
	"github.com/voltra-energy/voltra/internal/metrics"
	orderdomain "github.com/voltra-energy/voltra/internal/order/domain"
	"github.com/voltra-energy/voltra/internal/party"
	"github.com/voltra-energy/voltra/internal/protocol/callback"
	"github.com/voltra-energy/voltra/internal/protocol/dedup"
	protocoldomain "github.com/voltra-energy/voltra/internal/protocol/domain"
	"github.com/voltra-energy/voltra/internal/protocol/filter"
	"github.com/voltra-energy/voltra/internal/protocol/worker"
	"github.com/voltra-energy/voltra/internal/trust"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	Trading    *config.TradingConfigHolder
	Events     protocoldomain.EventRepository
	Dedup      *dedup.Deduper
	Callbacks  *callback.Client
	Workers    *worker.Dispatcher
	Catalog    catalogdomain.Service
	Ledger     blockdomain.Ledger
	Orders     orderdomain.Service
	Trust      *trust.Engine
	Principals party.PrincipalLookup
	Wallet     party.Wallet
	Metrics    *metrics.Metrics `optional:"true"`
}

type Driver struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	cfg        config.ProtocolConfig
	trading    *config.TradingConfigHolder
	events     protocoldomain.EventRepository
	dedup      *dedup.Deduper
	callbacks  *callback.Client
	workers    *worker.Dispatcher
	catalog    catalogdomain.Service
	ledger     blockdomain.Ledger
	orders     orderdomain.Service
	trust      *trust.Engine
	principals party.PrincipalLookup
	wallet     party.Wallet
	metrics    *metrics.Metrics
}

func New(p Params) protocoldomain.Driver {
	return &Driver{
		db:         p.DB,
		log:        p.Log.Named("protocol.driver"),
		genID:      p.GenID,
		clock:      p.Clock,
		cfg:        p.Config.Protocol,
		trading:    p.Trading,
		events:     p.Events,
		dedup:      p.Dedup,
		callbacks:  p.Callbacks,
		workers:    p.Workers,
		catalog:    p.Catalog,
		ledger:     p.Ledger,
		orders:     p.Orders,
		trust:      p.Trust,
		principals: p.Principals,
		wallet:     p.Wallet,
		metrics:    p.Metrics,
	}
}

// Handle validates and acknowledges env, then hands the real work to the
// dispatcher. Duplicates are detected before any side effect and receive the
// same ACK as the first delivery.
func (d *Driver) Handle(ctx context.Context, env protocoldomain.Envelope, authToken string) (*protocoldomain.Ack, error) {
	if err := validateContext(env.Context); err != nil {
		return nil, err
	}

	seen, err := d.dedup.Seen(ctx, env.Context.MessageID)
	if err != nil {
		return nil, err
	}
	if seen {
		d.log.Info("duplicate message short-circuited",
			zap.String("message_id", env.Context.MessageID),
			zap.String("action", string(env.Context.Action)))
		return d.ack(env), nil
	}

	principal, err := d.validatePayload(ctx, env, authToken)
	if err != nil {
		return nil, err
	}

	event := &protocoldomain.Event{
		ID:            d.genID.Generate(),
		TransactionID: env.Context.TransactionID,
		MessageID:     env.Context.MessageID,
		Action:        string(env.Context.Action),
		Direction:     protocoldomain.DirectionInbound,
		Payload:       []byte(env.Message),
		CreatedAt:     d.clock.Now().UTC(),
	}
	if err := d.events.Insert(ctx, d.db, event); err != nil {
		if errors.Is(err, protocoldomain.ErrDuplicateMessage) {
			// Lost the race against a concurrent redelivery; same ACK.
			return d.ack(env), nil
		}
		return nil, err
	}
	d.dedup.Remember(env.Context.MessageID)

	task := worker.Task{
		Name: string(env.Context.Action),
		Run: func(taskCtx context.Context) error {
			return d.process(taskCtx, env, principal)
		},
	}
	if err := d.workers.Submit(task); err != nil {
		// The work never entered the queue. Unwind the durable record and
		// the dedup key so the sender's retry is processed instead of
		// short-circuiting at the duplicate check.
		if delErr := d.events.Delete(ctx, d.db, event.ID); delErr != nil {
			d.log.Error("failed to unwind inbound event after queue rejection",
				zap.String("message_id", env.Context.MessageID),
				zap.Error(delErr))
		}
		d.dedup.Forget(env.Context.MessageID)
		return nil, err
	}

	return d.ack(env), nil
}

func (d *Driver) ack(env protocoldomain.Envelope) *protocoldomain.Ack {
	return &protocoldomain.Ack{
		TransactionID: env.Context.TransactionID,
		MessageID:     env.Context.MessageID,
		Status:        protocoldomain.StatusAck,
	}
}

func validateContext(c protocoldomain.Context) error {
	if strings.TrimSpace(c.TransactionID) == "" {
		return protocoldomain.NewValidationError("context.transaction_id", "is required")
	}
	if strings.TrimSpace(c.MessageID) == "" {
		return protocoldomain.NewValidationError("context.message_id", "is required")
	}
	if !protocoldomain.ValidAction(c.Action) {
		return protocoldomain.ErrUnknownAction
	}
	if strings.TrimSpace(c.CallbackURI) == "" {
		return protocoldomain.NewValidationError("context.callback_uri", "is required")
	}
	return nil
}

// validatePayload runs the synchronous checks: malformed payloads,
// unparseable filters and unknown principals must fail before the ACK, not
// inside the async path.
func (d *Driver) validatePayload(ctx context.Context, env protocoldomain.Envelope, authToken string) (*party.Principal, error) {
	switch env.Context.Action {
	case protocoldomain.ActionDiscover:
		var intent protocoldomain.DiscoverIntent
		if err := json.Unmarshal(env.Message, &intent); err != nil {
			return nil, protocoldomain.NewValidationError("message", "malformed discover intent")
		}
		if _, err := filter.Parse(intent.Filter); err != nil {
			return nil, err
		}
		if !intent.WindowEnd.After(intent.WindowStart) {
			return nil, protocoldomain.NewValidationError("message.window", "end must be after start")
		}
		if intent.Quantity <= 0 {
			return nil, protocoldomain.NewValidationError("message.quantity", "must be positive")
		}
		return nil, nil

	case protocoldomain.ActionSelect:
		var payload protocoldomain.SelectPayload
		if err := parseOfferPayload(env.Message, &payload.OfferID, &payload.Quantity); err != nil {
			return nil, err
		}
		return nil, nil

	case protocoldomain.ActionInit, protocoldomain.ActionConfirm:
		var offerID string
		var qty int
		if err := parseOfferPayload(env.Message, &offerID, &qty); err != nil {
			return nil, err
		}
		principal, err := d.principals.Lookup(ctx, authToken)
		if err != nil {
			return nil, err
		}
		return principal, nil

	case protocoldomain.ActionCancel:
		var payload protocoldomain.CancelPayload
		if err := json.Unmarshal(env.Message, &payload); err != nil {
			return nil, protocoldomain.NewValidationError("message", "malformed cancel payload")
		}
		switch orderdomain.CancelParty(strings.ToUpper(payload.Party)) {
		case orderdomain.CancelByBuyer, orderdomain.CancelBySeller:
		default:
			return nil, protocoldomain.NewValidationError("message.party", "must be BUYER or SELLER")
		}
		principal, err := d.principals.Lookup(ctx, authToken)
		if err != nil {
			return nil, err
		}
		return principal, nil

	case protocoldomain.ActionStatus:
		return nil, nil
	}
	return nil, protocoldomain.ErrUnknownAction
}

func parseOfferPayload(raw json.RawMessage, offerID *string, qty *int) error {
	var payload struct {
		OfferID  string `json:"offer_id"`
		Quantity int    `json:"quantity"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return protocoldomain.NewValidationError("message", "malformed payload")
	}
	if _, err := snowflake.ParseString(strings.TrimSpace(payload.OfferID)); err != nil {
		return protocoldomain.NewValidationError("message.offer_id", "is required")
	}
	if payload.Quantity <= 0 {
		return protocoldomain.NewValidationError("message.quantity", "must be positive")
	}
	*offerID = payload.OfferID
	*qty = payload.Quantity
	return nil
}

// process is the asynchronous half: do the work, persist the OUTBOUND event,
// deliver the callback. Failures become on_status error events so polling
// observes them.
func (d *Driver) process(ctx context.Context, env protocoldomain.Envelope, principal *party.Principal) error {
	if d.cfg.CallbackDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.cfg.CallbackDelay):
		}
	}

	payload, err := d.dispatch(ctx, env, principal)
	if err != nil {
		d.recordFailure(ctx, env, err)
		return err
	}

	out, err := d.recordOutbound(ctx, env.Context.TransactionID, protocoldomain.CallbackAction(env.Context.Action), payload)
	if err != nil {
		return err
	}

	if err := d.callbacks.Deliver(ctx, env.Context.CallbackURI, out); err != nil {
		d.recordFailure(ctx, env, err)
		return err
	}
	return nil
}

func (d *Driver) dispatch(ctx context.Context, env protocoldomain.Envelope, principal *party.Principal) (any, error) {
	switch env.Context.Action {
	case protocoldomain.ActionDiscover:
		return d.discover(ctx, env)
	case protocoldomain.ActionSelect:
		return d.selectQuote(ctx, env)
	case protocoldomain.ActionInit:
		return d.initQuote(ctx, env, principal)
	case protocoldomain.ActionConfirm:
		return d.confirm(ctx, env, principal)
	case protocoldomain.ActionCancel:
		return d.cancel(ctx, env, principal)
	case protocoldomain.ActionStatus:
		return d.TransactionStatus(ctx, env.Context.TransactionID)
	}
	return nil, protocoldomain.ErrUnknownAction
}

func (d *Driver) discover(ctx context.Context, env protocoldomain.Envelope) (any, error) {
	var intent protocoldomain.DiscoverIntent
	if err := json.Unmarshal(env.Message, &intent); err != nil {
		return nil, protocoldomain.NewValidationError("message", "malformed discover intent")
	}
	expr, err := filter.Parse(intent.Filter)
	if err != nil {
		return nil, err
	}

	snapshot, err := d.catalog.GetCatalog(ctx)
	if err != nil {
		return nil, err
	}

	wantSource := catalogdomain.SourceType(strings.ToUpper(strings.TrimSpace(intent.SourceType)))

	var offers []matching.ScorableOffer
	providerTrust := make(map[snowflake.ID]float64)
	for _, provider := range snapshot.Providers {
		providerTrust[provider.ID] = provider.TrustScore
		for _, item := range provider.Items {
			if wantSource != "" && item.SourceType != wantSource {
				continue
			}
			if !expr.MatchItem(item.SourceType) {
				continue
			}
			for _, offer := range item.Offers {
				if !expr.MatchAvailability(offer.MaxQuantity) {
					continue
				}
				offers = append(offers, matching.ScorableOffer{
					ID:              offer.ID,
					ProviderID:      offer.ProviderID,
					PriceAmount:     offer.PriceAmount,
					Currency:        offer.Currency,
					AvailableBlocks: offer.MaxQuantity,
					Window:          matching.TimeWindow{Start: offer.WindowStart, End: offer.WindowEnd},
				})
			}
		}
	}

	criteria := matching.Criteria{
		RequestedQuantity: intent.Quantity,
		RequestedWindow:   matching.TimeWindow{Start: intent.WindowStart, End: intent.WindowEnd},
		MaxPrice:          intent.MaxPrice,
	}
	result := matching.Match(offers, providerTrust, criteria, d.trading.Get().Matching)

	return &protocoldomain.DiscoverResult{
		Offers:        result.AllOffers,
		EligibleCount: result.EligibleCount,
	}, nil
}

// quote re-reads the live AVAILABLE count; the static max_qty is never
// trusted for availability.
func (d *Driver) quote(ctx context.Context, offerID string, qty int) (*catalogdomain.Offer, *protocoldomain.Quote, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(offerID))
	if err != nil {
		return nil, nil, protocoldomain.NewValidationError("message.offer_id", "is required")
	}

	offer, err := d.catalog.GetOffer(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !offer.Active {
		return nil, nil, catalogdomain.ErrOfferInactive
	}

	available, err := d.ledger.AvailableCount(ctx, offer.ID)
	if err != nil {
		return nil, nil, err
	}
	if qty > available {
		return nil, nil, blockdomain.ErrInsufficientBlocks
	}

	return offer, &protocoldomain.Quote{
		OfferID:    offer.ID.String(),
		Quantity:   qty,
		UnitPrice:  offer.PriceAmount,
		TotalPrice: offer.PriceAmount * int64(qty),
		Currency:   offer.Currency,
		Available:  available,
	}, nil
}

func (d *Driver) selectQuote(ctx context.Context, env protocoldomain.Envelope) (any, error) {
	var payload protocoldomain.SelectPayload
	if err := json.Unmarshal(env.Message, &payload); err != nil {
		return nil, protocoldomain.NewValidationError("message", "malformed select payload")
	}
	_, quote, err := d.quote(ctx, payload.OfferID, payload.Quantity)
	if err != nil {
		return nil, err
	}
	return quote, nil
}

// initQuote re-validates availability plus the buyer-side constraints: trust
// tier capacity headroom and wallet sufficiency.
func (d *Driver) initQuote(ctx context.Context, env protocoldomain.Envelope, principal *party.Principal) (any, error) {
	var payload protocoldomain.InitPayload
	if err := json.Unmarshal(env.Message, &payload); err != nil {
		return nil, protocoldomain.NewValidationError("message", "malformed init payload")
	}

	_, quote, err := d.quote(ctx, payload.OfferID, payload.Quantity)
	if err != nil {
		return nil, err
	}

	limitPct := trust.AllowedLimit(principal.TrustScore)
	allowedQty := principal.DeclaredCapacity * limitPct / 100
	if payload.Quantity > allowedQty {
		return nil, protocoldomain.ErrCapacityExceeded
	}

	sufficient, err := d.wallet.SufficientFunds(ctx, principal.ID, quote.TotalPrice)
	if err != nil {
		return nil, err
	}
	if !sufficient {
		return nil, protocoldomain.ErrInsufficientFunds
	}
	return quote, nil
}

func (d *Driver) confirm(ctx context.Context, env protocoldomain.Envelope, principal *party.Principal) (any, error) {
	var payload protocoldomain.ConfirmPayload
	if err := json.Unmarshal(env.Message, &payload); err != nil {
		return nil, protocoldomain.NewValidationError("message", "malformed confirm payload")
	}

	offer, quote, err := d.quote(ctx, payload.OfferID, payload.Quantity)
	if err != nil {
		return nil, err
	}

	orderID := d.genID.Generate()
	blockIDs, err := d.ledger.Claim(ctx, offer.ID, payload.Quantity, orderID, env.Context.TransactionID)
	if err != nil {
		return nil, err
	}

	deliveryAt := payload.DeliveryAt
	if deliveryAt.IsZero() {
		deliveryAt = offer.WindowEnd
	}

	order, err := d.orders.Create(ctx, orderdomain.CreateInput{
		ID:            orderID,
		BuyerID:       principal.ID,
		ProviderID:    offer.ProviderID,
		OfferID:       offer.ID,
		TransactionID: env.Context.TransactionID,
		Quantity:      payload.Quantity,
		TotalPrice:    quote.TotalPrice,
		Currency:      quote.Currency,
		DeliveryAt:    deliveryAt,
	})
	if err != nil {
		// Claimed blocks must not stay orphaned behind a failed insert.
		if relErr := d.ledger.Release(ctx, blockIDs); relErr != nil {
			d.log.Error("failed to release blocks after order insert failure",
				zap.String("order_id", orderID.String()),
				zap.Error(relErr))
		}
		return nil, err
	}

	return &protocoldomain.ConfirmResult{
		OrderID: order.ID.String(),
		Status:  string(order.Status),
		Quote:   *quote,
	}, nil
}

func (d *Driver) cancel(ctx context.Context, env protocoldomain.Envelope, principal *party.Principal) (any, error) {
	var payload protocoldomain.CancelPayload
	if err := json.Unmarshal(env.Message, &payload); err != nil {
		return nil, protocoldomain.NewValidationError("message", "malformed cancel payload")
	}

	var order *orderdomain.Order
	var err error
	if strings.TrimSpace(payload.OrderID) != "" {
		id, parseErr := snowflake.ParseString(strings.TrimSpace(payload.OrderID))
		if parseErr != nil {
			return nil, protocoldomain.NewValidationError("message.order_id", "malformed id")
		}
		order, err = d.orders.Get(ctx, id)
	} else {
		order, err = d.orders.GetByTransaction(ctx, env.Context.TransactionID)
	}
	if err != nil {
		return nil, err
	}

	result, err := d.orders.Cancel(ctx, orderdomain.CancelInput{
		OrderID:         order.ID,
		Party:           orderdomain.CancelParty(strings.ToUpper(payload.Party)),
		BuyerTrustScore: principal.TrustScore,
	})
	if err != nil {
		return nil, err
	}

	return &protocoldomain.CancelResult{
		OrderID:       result.Order.ID.String(),
		Status:        string(result.Order.Status),
		WithinWindow:  result.WithinWindow,
		PenaltyAmount: result.PenaltyAmount,
		PenaltyPaidBy: string(result.PenaltyPaidBy),
		RefundAmount:  result.RefundAmount,
		TrustImpact:   result.TrustImpact,
	}, nil
}

// TransactionStatus assembles the order, the event trail and the latest
// asynchronous failure for a transaction.
func (d *Driver) TransactionStatus(ctx context.Context, transactionID string) (*protocoldomain.TransactionStatus, error) {
	events, err := d.events.ListByTransaction(ctx, d.db, transactionID)
	if err != nil {
		return nil, err
	}

	order, err := d.orders.GetByTransaction(ctx, transactionID)
	if err != nil && !errors.Is(err, orderdomain.ErrNotFound) {
		return nil, err
	}
	if len(events) == 0 && order == nil {
		return nil, protocoldomain.ErrTransactionUnknown
	}

	status := &protocoldomain.TransactionStatus{
		TransactionID: transactionID,
		Order:         order,
		Events:        make([]protocoldomain.EventSummary, 0, len(events)),
	}
	for _, e := range events {
		status.Events = append(status.Events, protocoldomain.EventSummary{
			Action:    e.Action,
			Direction: e.Direction,
			CreatedAt: e.CreatedAt,
		})
	}

	// The newest on_status error payload, if any, is the last failure.
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		if e.Direction != protocoldomain.DirectionOutbound || e.Action != "on_status" {
			continue
		}
		var failure struct {
			Error *protocoldomain.AckError `json:"error"`
		}
		if json.Unmarshal(e.Payload, &failure) == nil && failure.Error != nil {
			status.LastError = failure.Error
			break
		}
	}
	return status, nil
}

// recordOutbound persists the outbound envelope before delivery so the audit
// trail never shows a callback the log does not.
func (d *Driver) recordOutbound(ctx context.Context, transactionID, action string, payload any) (protocoldomain.Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return protocoldomain.Envelope{}, err
	}

	out := protocoldomain.Envelope{
		Context: protocoldomain.Context{
			TransactionID: transactionID,
			MessageID:     uuid.NewString(),
			Action:        protocoldomain.Action(action),
			Timestamp:     d.clock.Now().UTC(),
		},
		Message: body,
	}

	event := &protocoldomain.Event{
		ID:            d.genID.Generate(),
		TransactionID: transactionID,
		MessageID:     out.Context.MessageID,
		Action:        action,
		Direction:     protocoldomain.DirectionOutbound,
		Payload:       body,
		CreatedAt:     d.clock.Now().UTC(),
	}
	if err := d.events.Insert(ctx, d.db, event); err != nil {
		return protocoldomain.Envelope{}, err
	}
	return out, nil
}

// recordFailure writes an on_status error event so status polling observes
// asynchronous failures.
func (d *Driver) recordFailure(ctx context.Context, env protocoldomain.Envelope, cause error) {
	payload := map[string]any{
		"action": string(env.Context.Action),
		"error": &protocoldomain.AckError{
			Type:    errorType(cause),
			Code:    errorCode(cause),
			Message: cause.Error(),
		},
	}
	if _, err := d.recordOutbound(ctx, env.Context.TransactionID, "on_status", payload); err != nil {
		d.log.Error("failed to record async failure",
			zap.String("transaction_id", env.Context.TransactionID),
			zap.NamedError("cause", cause),
			zap.Error(err))
	}
}

func errorType(err error) string {
	var ve *protocoldomain.ValidationError
	var ite *orderdomain.InvalidTransitionError
	var ude *protocoldomain.UpstreamDeliveryError
	switch {
	case errors.As(err, &ve):
		return "VALIDATION"
	case errors.Is(err, blockdomain.ErrInsufficientBlocks):
		return "INSUFFICIENT_AVAILABLE"
	case errors.Is(err, blockdomain.ErrClaimConflict):
		return "CONFLICT"
	case errors.Is(err, protocoldomain.ErrCapacityExceeded):
		return "CAPACITY_EXCEEDED"
	case errors.Is(err, protocoldomain.ErrInsufficientFunds):
		return "INSUFFICIENT_FUNDS"
	case errors.Is(err, catalogdomain.ErrOfferInactive):
		return "OFFER_INACTIVE"
	case errors.Is(err, catalogdomain.ErrOfferNotFound), errors.Is(err, orderdomain.ErrNotFound):
		return "NOT_FOUND"
	case errors.As(err, &ite):
		return "INVALID_TRANSITION"
	case errors.As(err, &ude):
		return "UPSTREAM_DELIVERY"
	default:
		return "INTERNAL"
	}
}

func errorCode(err error) string {
	var ude *protocoldomain.UpstreamDeliveryError
	if errors.As(err, &ude) {
		return "callback_delivery_failed"
	}
	return strings.SplitN(err.Error(), ":", 2)[0]
}
