// Package party declares the collaborator surfaces the engine consumes as
// black boxes: principal lookup, wallet checks and the delivery verification
// feed. Production deployments plug in real clients through fx.
package party

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/voltra-energy/voltra/internal/trust"
)

var (
	ErrUnknownPrincipal  = errors.New("unknown_principal")
	ErrWalletUnavailable = errors.New("wallet_unavailable")
)

// Principal is an authenticated party as reported by the identity side.
type Principal struct {
	ID               snowflake.ID
	TrustScore       float64
	DeclaredCapacity int
	// ProviderID is set when the principal acts for a selling provider.
	ProviderID *snowflake.ID
}

// PrincipalLookup resolves an opaque credential to a principal.
type PrincipalLookup interface {
	Lookup(ctx context.Context, token string) (*Principal, error)
}

// Wallet answers sufficient-funds checks. Amounts are minor units.
type Wallet interface {
	SufficientFunds(ctx context.Context, partyID snowflake.ID, amount int64) (bool, error)
}

// VerificationEvent reports delivered-vs-expected quantities for an order,
// pushed by the metering side after delivery.
type VerificationEvent struct {
	OrderID   snowflake.ID              `json:"order_id"`
	Expected  float64                   `json:"expected"`
	Delivered float64                   `json:"delivered"`
	Quality   trust.VerificationQuality `json:"quality,omitempty"`
}
