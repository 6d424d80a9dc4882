package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusDraft      OrderStatus = "DRAFT"
	StatusPending    OrderStatus = "PENDING"
	StatusActive     OrderStatus = "ACTIVE"
	StatusDelivering OrderStatus = "DELIVERING"
	StatusDelivered  OrderStatus = "DELIVERED"
	StatusCompleted  OrderStatus = "COMPLETED"
	StatusCancelled  OrderStatus = "CANCELLED"
)

// Statuses lists every order status, for exhaustiveness checks.
var Statuses = []OrderStatus{
	StatusDraft, StatusPending, StatusActive, StatusDelivering,
	StatusDelivered, StatusCompleted, StatusCancelled,
}

// transitions is the single authority on legal status changes. Cancellation
// is only reachable from ACTIVE and DELIVERING.
var transitions = map[OrderStatus][]OrderStatus{
	StatusDraft:      {StatusPending, StatusActive},
	StatusPending:    {StatusActive},
	StatusActive:     {StatusDelivering, StatusCancelled},
	StatusDelivering: {StatusDelivered, StatusCancelled},
	StatusDelivered:  {StatusCompleted},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// CanTransition reports whether from→to is a legal status change.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition leaves the status.
func Terminal(s OrderStatus) bool { return len(transitions[s]) == 0 }

// CancelParty identifies who initiated a cancellation.
type CancelParty string

const (
	CancelByBuyer  CancelParty = "BUYER"
	CancelBySeller CancelParty = "SELLER"
)

// Order is created when a buyer confirms a selection. Version is bumped on
// every mutation and guards optimistic status updates.
type Order struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	BuyerID       snowflake.ID `json:"buyer_id" gorm:"not null;index"`
	ProviderID    snowflake.ID `json:"provider_id" gorm:"not null;index"`
	OfferID       snowflake.ID `json:"offer_id" gorm:"not null;index"`
	TransactionID string       `json:"transaction_id" gorm:"type:text;not null;index"`
	Quantity      int          `json:"quantity" gorm:"not null"`
	TotalPrice    int64        `json:"total_price" gorm:"not null"`
	Currency      string       `json:"currency" gorm:"type:text;not null"`
	Status        OrderStatus  `json:"status" gorm:"type:text;not null;index"`
	Version       int64        `json:"version" gorm:"not null;default:1"`
	DeliveryAt    time.Time    `json:"delivery_at" gorm:"not null"`
	CancelledAt   *time.Time   `json:"cancelled_at,omitempty"`
	CancelledBy   *CancelParty `json:"cancelled_by,omitempty" gorm:"type:text"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time    `json:"updated_at" gorm:"not null"`
}

func (Order) TableName() string { return "orders" }

// CreateInput carries everything needed to open an ACTIVE order once blocks
// are claimed. ID may be pre-generated so blocks can be claimed against the
// order id before the row exists; zero means generate one.
type CreateInput struct {
	ID            snowflake.ID
	BuyerID       snowflake.ID
	ProviderID    snowflake.ID
	OfferID       snowflake.ID
	TransactionID string
	Quantity      int
	TotalPrice    int64
	Currency      string
	DeliveryAt    time.Time
}

// CancelInput identifies the order, the initiating party and, for
// buyer-initiated cancellations, the buyer's current trust score.
type CancelInput struct {
	OrderID         snowflake.ID
	Party           CancelParty
	BuyerTrustScore float64
}

// CancelResult reports the financial and trust consequences of a
// cancellation. PenaltyAmount is owed by PenaltyPaidBy to the counterparty;
// RefundAmount is returned to the buyer.
type CancelResult struct {
	Order            *Order
	WithinWindow     bool
	PenaltyAmount    int64
	PenaltyPaidBy    CancelParty
	RefundAmount     int64
	BuyerTrustScore  float64
	SellerTrustScore float64
	TrustImpact      float64
	ReleasedBlocks   int
}

// CompletionResult reports the trust consequence of delivery verification.
type CompletionResult struct {
	Order            *Order
	SellerTrustScore float64
	TrustImpact      float64
}
