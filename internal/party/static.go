package party

import (
	"context"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

// StaticLookup resolves principals from an in-process table keyed by token.
// Suitable for tests and single-tenant deployments without an identity
// provider.
type StaticLookup struct {
	mu         sync.RWMutex
	principals map[string]Principal
}

func NewStaticLookup() *StaticLookup {
	return &StaticLookup{principals: make(map[string]Principal)}
}

func (s *StaticLookup) Register(token string, p Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principals[strings.TrimSpace(token)] = p
}

func (s *StaticLookup) Lookup(_ context.Context, token string) (*Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.principals[strings.TrimSpace(token)]
	if !ok {
		return nil, ErrUnknownPrincipal
	}
	return &p, nil
}

// UnlimitedWallet approves every sufficient-funds check. Stands in until the
// settlement integration lands.
type UnlimitedWallet struct{}

func (UnlimitedWallet) SufficientFunds(context.Context, snowflake.ID, int64) (bool, error) {
	return true, nil
}

// FixedWallet caps each party at a configured balance.
type FixedWallet struct {
	mu       sync.RWMutex
	balances map[snowflake.ID]int64
}

func NewFixedWallet() *FixedWallet {
	return &FixedWallet{balances: make(map[snowflake.ID]int64)}
}

func (w *FixedWallet) SetBalance(partyID snowflake.ID, amount int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[partyID] = amount
}

func (w *FixedWallet) SufficientFunds(_ context.Context, partyID snowflake.ID, amount int64) (bool, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	balance, ok := w.balances[partyID]
	if !ok {
		return false, nil
	}
	return balance >= amount, nil
}

// Module wires the static collaborators as the default implementations.
var Module = fx.Module("party",
	fx.Provide(
		fx.Annotate(NewStaticLookup, fx.As(new(PrincipalLookup))),
		func() Wallet { return UnlimitedWallet{} },
	),
)
