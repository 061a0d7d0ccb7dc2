package bot

import (
	"context"
	"sync"

	"hedgearb/internal/models"
)

// fakeAdapter is a minimal exchange.Adapter stand-in: plain map lookups for
// the local caches, a recorded CreateOrder call list, and no network I/O.
// It exists for this package's tests; the real adapters live in
// internal/exchange.
type fakeAdapter struct {
	name string

	mu        sync.Mutex
	rules     map[string]models.ContractRule
	bbos      map[string]models.BBO
	positions map[string]models.Position
	account   models.Account
	orders    []createOrderCall

	createOrderErr error
	createOrderID  string
}

type createOrderCall struct {
	Symbol    string
	Side      models.Side
	TradeSide models.TradeSide
	Type      models.OrderType
	Amount    float64
	Price     float64
}

func newFakeAdapter(name string) *fakeAdapter {
	return &fakeAdapter{
		name:      name,
		rules:     make(map[string]models.ContractRule),
		bbos:      make(map[string]models.BBO),
		positions: make(map[string]models.Position),
		createOrderID: "fake-order",
	}
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Init(ctx context.Context, symbols []string) error { return nil }

func (f *fakeAdapter) ListenPublic(ctx context.Context, symbol string) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeAdapter) ListenPrivate(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeAdapter) ListenWSAPI(ctx context.Context, count int) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeAdapter) GetRules(ctx context.Context) (map[string]models.ContractRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]models.ContractRule, len(f.rules))
	for k, v := range f.rules {
		out[k] = v
	}
	return out, nil
}

func (f *fakeAdapter) CreateOrder(ctx context.Context, symbol string, side models.Side, tradeSide models.TradeSide, orderType models.OrderType, amount, price float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, createOrderCall{Symbol: symbol, Side: side, TradeSide: tradeSide, Type: orderType, Amount: amount, Price: price})
	if f.createOrderErr != nil {
		return "", f.createOrderErr
	}
	return f.createOrderID, nil
}

func (f *fakeAdapter) CancelOrder(ctx context.Context, id, symbol string) error { return nil }
func (f *fakeAdapter) CancelAll(ctx context.Context, symbol string) error      { return nil }

func (f *fakeAdapter) GetOrders(ctx context.Context) (map[string]models.Order, error) {
	return map[string]models.Order{}, nil
}

func (f *fakeAdapter) GetPositions(ctx context.Context) (map[string]models.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]models.Position, len(f.positions))
	for k, v := range f.positions {
		out[k] = v
	}
	return out, nil
}

func (f *fakeAdapter) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return nil
}
func (f *fakeAdapter) SetMarginMode(ctx context.Context, symbol string) error   { return nil }
func (f *fakeAdapter) SetPositionMode(ctx context.Context, symbol string) error { return nil }

func (f *fakeAdapter) UpdateBalance(ctx context.Context) error { return nil }

func (f *fakeAdapter) GetAccount() models.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.account
}

func (f *fakeAdapter) GetRule(symbol string) (models.ContractRule, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rules[symbol]
	return r, ok
}

func (f *fakeAdapter) GetLastBBO(symbol string) (models.BBO, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bbos[symbol]
	return b, ok
}

func (f *fakeAdapter) GetPosition(symbol string, side models.Side) (models.Position, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.positions[models.PositionID(symbol, side)]
	return p, ok
}

func (f *fakeAdapter) SetEmitBBO(fn func(models.BBO))     {}
func (f *fakeAdapter) SetEmitOrder(fn func(models.Order)) {}

func (f *fakeAdapter) Close() error { return nil }

func (f *fakeAdapter) setRule(symbol string, r models.ContractRule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[symbol] = r
}

func (f *fakeAdapter) setBBO(b models.BBO) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bbos[b.Symbol] = b
}

func (f *fakeAdapter) setPosition(p models.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions[models.PositionID(p.Symbol, p.Side)] = p
}

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}
