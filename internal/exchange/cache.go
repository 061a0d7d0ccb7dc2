package exchange

import (
	"sort"
	"sync"

	"hedgearb/internal/models"
)

// maxOrders/trimToOrders implement the order-cache eviction policy: the
// orders map retains at most maxOrders entries; on overflow the oldest
// entries are dropped down to trimToOrders (newest retained).
const (
	maxOrders   = 500
	trimToOrders = 100
)

// OrderCache is the per-adapter local view of orders, mutated only by that
// adapter's own private-stream handler. PARTIALLY_FILLED is explicitly
// non-terminal and is upserted, not evicted, alongside NEW.
type OrderCache struct {
	mu   sync.RWMutex
	byID map[string]models.Order
}

func NewOrderCache() *OrderCache {
	return &OrderCache{byID: make(map[string]models.Order)}
}

// Upsert applies a private-stream order update: non-terminal statuses are
// stored/replaced, terminal statuses are removed. After insertion, if the
// map exceeds maxOrders, the oldest entries (by CTimeMs) are trimmed down to
// trimToOrders.
func (c *OrderCache) Upsert(o models.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if o.Status.IsTerminal() {
		delete(c.byID, o.ID)
		return
	}

	c.byID[o.ID] = o
	if len(c.byID) > maxOrders {
		c.trimLocked()
	}
}

func (c *OrderCache) trimLocked() {
	type entry struct {
		id   string
		tsMs int64
	}
	entries := make([]entry, 0, len(c.byID))
	for id, o := range c.byID {
		entries = append(entries, entry{id, o.CTimeMs})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tsMs > entries[j].tsMs })
	if len(entries) <= trimToOrders {
		return
	}
	for _, e := range entries[trimToOrders:] {
		delete(c.byID, e.id)
	}
}

// Replace wholesale-replaces the cache, used after a REST snapshot fetch on
// (re)connect so local state equals the venue's view.
func (c *OrderCache) Replace(orders map[string]models.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = make(map[string]models.Order, len(orders))
	for id, o := range orders {
		c.byID[id] = o
	}
}

// Snapshot returns a defensive copy of the current cache contents.
func (c *OrderCache) Snapshot() map[string]models.Order {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]models.Order, len(c.byID))
	for id, o := range c.byID {
		out[id] = o
	}
	return out
}

// Len returns the current number of cached orders.
func (c *OrderCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// PositionCache is the per-adapter local view of positions, keyed by
// Symbol+Side. Invariant: it never retains an entry with Amount == 0.
type PositionCache struct {
	mu   sync.RWMutex
	byID map[string]models.Position
}

func NewPositionCache() *PositionCache {
	return &PositionCache{byID: make(map[string]models.Position)}
}

// Upsert stores p if its amount is non-zero, else removes any existing
// entry for the same id.
func (c *PositionCache) Upsert(p models.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.Amount == 0 {
		delete(c.byID, p.ID)
		return
	}
	c.byID[p.ID] = p
}

func (c *PositionCache) Replace(positions map[string]models.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = make(map[string]models.Position, len(positions))
	for id, p := range positions {
		if p.Amount == 0 {
			continue
		}
		c.byID[id] = p
	}
}

func (c *PositionCache) Get(id string) (models.Position, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.byID[id]
	return p, ok
}

func (c *PositionCache) Snapshot() map[string]models.Position {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]models.Position, len(c.byID))
	for id, p := range c.byID {
		out[id] = p
	}
	return out
}

// BBOCache holds the last BBO per symbol, with 1000X reconciliation applied
// at write time so readers always see the canonical symbol key.
type BBOCache struct {
	mu  sync.RWMutex
	byS map[string]models.BBO
}

func NewBBOCache() *BBOCache {
	return &BBOCache{byS: make(map[string]models.BBO)}
}

func (c *BBOCache) Set(b models.BBO) models.BBO {
	norm := models.NormalizeBBO(b)
	c.mu.Lock()
	c.byS[norm.Symbol] = norm
	c.mu.Unlock()
	return norm
}

func (c *BBOCache) Get(symbol string) (models.BBO, bool) {
	canonical, _, _ := models.ReconcileSymbol(symbol)
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.byS[canonical]
	return b, ok
}

// RuleCache holds the last fetched ContractRule per symbol.
type RuleCache struct {
	mu  sync.RWMutex
	byS map[string]models.ContractRule
}

func NewRuleCache() *RuleCache {
	return &RuleCache{byS: make(map[string]models.ContractRule)}
}

func (c *RuleCache) Replace(rules map[string]models.ContractRule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byS = make(map[string]models.ContractRule, len(rules))
	for s, r := range rules {
		c.byS[s] = r
	}
}

func (c *RuleCache) Get(symbol string) (models.ContractRule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.byS[symbol]
	return r, ok
}

func (c *RuleCache) Snapshot() map[string]models.ContractRule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]models.ContractRule, len(c.byS))
	for s, r := range c.byS {
		out[s] = r
	}
	return out
}
