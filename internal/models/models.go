// Package models defines the wire- and venue-agnostic domain types shared by
// every adapter, the hedge strategy, and the trader.
package models

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// TradeSide distinguishes an order that opens inventory from one that
// closes it, independent of Side (a hedge account can be long or short on
// either leg).
type TradeSide string

const (
	TradeSideOpen  TradeSide = "OPEN"
	TradeSideClose TradeSide = "CLOSE"
)

// OrderType is the execution style requested at submission time. Hedge
// signals always use Market; the other values exist for the venue adapters'
// generic create_order contract.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeIOC    OrderType = "IOC"
	OrderTypeFOK    OrderType = "FOK"
	OrderTypeGTC    OrderType = "GTC"
)

// OrderStatus is the venue-agnostic normalized order status. Every
// venue-specific terminal string (rejected, expired, liquidated,
// reduce-only closure, self-trade prevention, position-close) collapses to
// Canceled.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
)

// IsTerminal reports whether the status ends the order's lifecycle in the
// local cache. PARTIALLY_FILLED is explicitly non-terminal: it is retained
// and upserted like NEW until a later update fills or cancels it.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCanceled
}

// BBO is an immutable best-bid/best-offer snapshot for one symbol on one
// venue. Replaced atomically per symbol; never mutated in place.
type BBO struct {
	Symbol    string
	Bid       float64
	BidAmount float64
	Ask       float64
	AskAmount float64
	TimeMs    int64
}

// ContractRule describes a venue's tradable-symbol metadata.
type ContractRule struct {
	Symbol        string
	PricePrec     int
	AmountPrec    int
	MaxAmount     float64
	MinAmount     float64
	MaxLeverage   int
	TradeLeverage int // resolved leverage after startup negotiation
	ContractSize  float64
}

// Order is a venue order as tracked in the local cache.
type Order struct {
	Venue      string
	Symbol     string
	ID         string
	Status     OrderStatus
	Side       Side
	TradeSide  TradeSide
	Price      float64
	Amount     float64
	DealPrice  float64
	DealAmount float64
	CTimeMs    int64
}

// Position is a venue position as tracked in the local cache. ID is
// Symbol+Side so a hedge-mode account may carry both a LONG and a SHORT
// position for one symbol at once.
type Position struct {
	Symbol  string
	ID      string
	Side    Side
	Price   float64 // entry price
	Amount  float64 // |size|, always >= 0
	CTimeMs int64
}

// PositionID builds the Symbol+Side composite key used by the positions
// cache.
func PositionID(symbol string, side Side) string {
	return symbol + "|" + string(side)
}

// Account is the venue-level balance snapshot.
type Account struct {
	UserID        string
	InDualMode    bool
	SwapBalance   float64
	SwapAvailable float64
}

// ExchangeSignal is one leg of a paired Signal.
type ExchangeSignal struct {
	Venue     string
	TradeSide TradeSide
	Side      Side
	Price     float64
	Amount    float64
	TimeMs    int64
}

// Signal is the hedge strategy's output: a (possibly paired) set of orders
// to submit concurrently.
type Signal struct {
	Symbol string
	Type   OrderType
	Spread float64
	Legs   []ExchangeSignal
}

// Secret is an at-rest encrypted credential blob. Plaintext never appears in
// this struct. Secrets produced by secretstore.Seal carry the nonce inside
// Ciphertext and leave Nonce empty.
type Secret struct {
	Label      string `json:"label"`
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
}
