// Package exchange defines the venue adapter contract and the two concrete
// venue adapters (Venue A: HMAC-SHA256 REST + ed25519 WS-API; Venue B:
// HMAC-SHA512 REST + WS login), plus the shared caches and transport they
// both build on.
package exchange

import (
	"context"

	"hedgearb/internal/models"
)

// Adapter is the uniform venue contract every concrete exchange satisfies.
// Implementations hold no back-pointer to the trader; emit_bbo/emit_order
// are plain function-valued fields the trader registers through
// SetEmitBBO/SetEmitOrder, breaking the adapter<->trader reference cycle (see ExchangeError below for the shared
// wrapped-error convention).
type Adapter interface {
	Name() string

	// Init idempotently configures margin mode (cross) and position mode
	// (hedge/dual-side) for symbols.
	Init(ctx context.Context, symbols []string) error

	// ListenPublic, ListenPrivate and ListenWSAPI are long-running
	// subscriptions; they block until ctx is cancelled, reconnecting
	// internally on transport failure.
	ListenPublic(ctx context.Context, symbol string) error
	ListenPrivate(ctx context.Context) error
	ListenWSAPI(ctx context.Context, count int) error

	// GetRules is a one-shot REST call returning every tradable symbol's
	// ContractRule, numeric strings coerced to the invariant types.
	GetRules(ctx context.Context) (map[string]models.ContractRule, error)

	// CreateOrder submits via the WS-API pool. A non-empty err implies an
	// empty id.
	CreateOrder(ctx context.Context, symbol string, side models.Side, tradeSide models.TradeSide, orderType models.OrderType, amount, price float64) (id string, err error)
	CancelOrder(ctx context.Context, id, symbol string) error
	CancelAll(ctx context.Context, symbol string) error

	// GetOrders and GetPositions are REST snapshots that replace the local
	// caches wholesale. The trader calls GetPositions after each executed
	// signal; neither is called when a private stream reconnects.
	GetOrders(ctx context.Context) (map[string]models.Order, error)
	GetPositions(ctx context.Context) (map[string]models.Position, error)

	SetLeverage(ctx context.Context, symbol string, leverage int) error
	SetMarginMode(ctx context.Context, symbol string) error
	SetPositionMode(ctx context.Context, symbol string) error

	UpdateBalance(ctx context.Context) error
	GetAccount() models.Account

	// GetLastBBO is a local lookup with 1000X reconciliation already
	// applied. GetRule is a local lookup by the venue's native symbol, with
	// no reconciliation.
	GetRule(symbol string) (models.ContractRule, bool)
	GetLastBBO(symbol string) (models.BBO, bool)

	// GetPosition is a local cache lookup (kept current by the private
	// stream and by GetPositions' full REST refetch), distinct from the
	// bulk REST snapshot GetPositions above. The hedge strategy reads
	// inventory through this, never through the REST call, so a decision
	// never blocks on network round-trip.
	GetPosition(symbol string, side models.Side) (models.Position, bool)

	// SetEmitBBO / SetEmitOrder register the trader's callbacks, invoked
	// from whichever internal task produced the event.
	SetEmitBBO(func(models.BBO))
	SetEmitOrder(func(models.Order))

	Close() error
}

// ExchangeError wraps a venue-reported failure with enough context for
// errors.Is/errors.As chains to still reach the underlying transport error.
type ExchangeError struct {
	Venue   string
	Code    string
	Message string
	Cause   error
}

func (e *ExchangeError) Error() string {
	if e.Code != "" {
		return e.Venue + ": [" + e.Code + "] " + e.Message
	}
	return e.Venue + ": " + e.Message
}

func (e *ExchangeError) Unwrap() error { return e.Cause }
