package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/voltra-energy/voltra/internal/matching"
	orderdomain "github.com/voltra-energy/voltra/internal/order/domain"
	"gorm.io/datatypes"
)

// Action is a protocol verb. Each inbound action has a matching outbound
// callback named on_<action>.
type Action string

const (
	ActionDiscover Action = "discover"
	ActionSelect   Action = "select"
	ActionInit     Action = "init"
	ActionConfirm  Action = "confirm"
	ActionCancel   Action = "cancel"
	ActionStatus   Action = "status"
)

// ValidAction reports whether a is a known protocol verb.
func ValidAction(a Action) bool {
	switch a {
	case ActionDiscover, ActionSelect, ActionInit, ActionConfirm, ActionCancel, ActionStatus:
		return true
	}
	return false
}

// CallbackAction names the outbound counterpart of an inbound action.
func CallbackAction(a Action) string { return "on_" + string(a) }

// Context routes a protocol message. MessageID is globally unique per
// logical message and drives deduplication; retries reuse it.
type Context struct {
	TransactionID string    `json:"transaction_id" binding:"required"`
	MessageID     string    `json:"message_id" binding:"required"`
	Action        Action    `json:"action" binding:"required"`
	CallbackURI   string    `json:"callback_uri"`
	Timestamp     time.Time `json:"timestamp"`
}

// Envelope is the wire shape of every inbound and outbound message.
type Envelope struct {
	Context Context         `json:"context"`
	Message json.RawMessage `json:"message"`
}

// AckStatus values for the synchronous response.
const (
	StatusAck  = "ACK"
	StatusNack = "NACK"
)

// Ack is the immediate synchronous response to an inbound message. A
// duplicate message receives the same ACK shape as a first-time success.
type Ack struct {
	TransactionID string    `json:"transaction_id"`
	MessageID     string    `json:"message_id"`
	Status        string    `json:"status"`
	Error         *AckError `json:"error,omitempty"`
}

// AckError is the structured failure payload on a NACK.
type AckError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Direction of a persisted protocol event.
type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

// Event is the append-only audit and dedup log. The UNIQUE(message_id,
// direction) index is load-bearing: it is the durable dedup layer, and it
// keys INBOUND and OUTBOUND separately because they share no causality.
type Event struct {
	ID            snowflake.ID   `json:"id" gorm:"primaryKey"`
	TransactionID string         `json:"transaction_id" gorm:"type:text;not null;index"`
	MessageID     string         `json:"message_id" gorm:"type:text;not null;uniqueIndex:ux_events_message_direction,priority:1"`
	Action        string         `json:"action" gorm:"type:text;not null"`
	Direction     Direction      `json:"direction" gorm:"type:text;not null;uniqueIndex:ux_events_message_direction,priority:2"`
	Payload       datatypes.JSON `json:"payload,omitempty"`
	CreatedAt     time.Time      `json:"created_at" gorm:"not null"`
}

func (Event) TableName() string { return "events" }

// DiscoverIntent is the discover message body. Structured fields are used
// directly; Filter, when present, is a best-effort textual refinement.
type DiscoverIntent struct {
	SourceType  string    `json:"source_type,omitempty"`
	Quantity    int       `json:"quantity"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	MaxPrice    *int64    `json:"max_price,omitempty"`
	Filter      string    `json:"filter,omitempty"`
}

// SelectPayload asks for a quote on a concrete offer.
type SelectPayload struct {
	OfferID  string `json:"offer_id" binding:"required"`
	Quantity int    `json:"quantity" binding:"required"`
}

// InitPayload re-validates a selection against buyer capacity and funds.
type InitPayload struct {
	OfferID  string `json:"offer_id" binding:"required"`
	Quantity int    `json:"quantity" binding:"required"`
}

// ConfirmPayload commits the purchase: claims blocks and opens the order.
type ConfirmPayload struct {
	OfferID    string    `json:"offer_id" binding:"required"`
	Quantity   int       `json:"quantity" binding:"required"`
	DeliveryAt time.Time `json:"delivery_at"`
}

// CancelPayload cancels the order attached to the transaction.
type CancelPayload struct {
	OrderID string `json:"order_id,omitempty"`
	Party   string `json:"party" binding:"required"`
}

// Quote is the priced answer to select/init/confirm.
type Quote struct {
	OfferID    string `json:"offer_id"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
	TotalPrice int64  `json:"total_price"`
	Currency   string `json:"currency"`
	Available  int    `json:"available"`
}

// DiscoverResult is the on_discover callback body: the ranked snapshot.
type DiscoverResult struct {
	Offers        []matching.ScoredOffer `json:"offers"`
	EligibleCount int                    `json:"eligible_count"`
}

// ConfirmResult is the on_confirm callback body.
type ConfirmResult struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Quote   Quote  `json:"quote"`
}

// CancelResult is the on_cancel callback body.
type CancelResult struct {
	OrderID       string  `json:"order_id"`
	Status        string  `json:"status"`
	WithinWindow  bool    `json:"within_window"`
	PenaltyAmount int64   `json:"penalty_amount"`
	PenaltyPaidBy string  `json:"penalty_paid_by"`
	RefundAmount  int64   `json:"refund_amount"`
	TrustImpact   float64 `json:"trust_impact"`
}

// EventSummary is one audit line in a status response.
type EventSummary struct {
	Action    string    `json:"action"`
	Direction Direction `json:"direction"`
	CreatedAt time.Time `json:"created_at"`
}

// TransactionStatus answers status polling: the order (when one exists),
// the event trail, and the latest asynchronous failure if any.
type TransactionStatus struct {
	TransactionID string             `json:"transaction_id"`
	Order         *orderdomain.Order `json:"order,omitempty"`
	Events        []EventSummary     `json:"events"`
	LastError     *AckError          `json:"last_error,omitempty"`
}
