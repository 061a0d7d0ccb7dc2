package bot

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"hedgearb/internal/exchange"
	"hedgearb/internal/metrics"
	"hedgearb/internal/models"
	"hedgearb/pkg/clock"
)

// postTradeCooldown is the pause between execution completing and the
// symbol lock releasing, absorbing exchange-side propagation delay before
// the next decision is allowed.
const postTradeCooldown = 2 * time.Second

// TraderConfig holds the startup-orchestration and runtime-loop settings
// that are not already owned by HedgeStrategy.
type TraderConfig struct {
	Quote          string
	RangeStart     int // 0-based, inclusive; 0 means "from the start"
	RangeEnd       int // exclusive; 0 means "to the end"
	Blacklist      map[string]struct{}
	TargetLeverage int
	WSAPIPoolSize  int
}

// Trader owns one master/slave venue pair, the strategy evaluated against
// them, and the per-symbol single-flight order lock. It has no knowledge of
// any venue beyond the Adapter interface.
type Trader struct {
	cfg      TraderConfig
	master   exchange.Adapter
	slave    exchange.Adapter
	strategy *HedgeStrategy
	metrics  *metrics.Metrics
	log      *zap.Logger

	bboCh chan models.BBO

	keysMu sync.RWMutex
	keys   map[string]SymbolKey // canonical symbol -> native spellings

	lockMu sync.Mutex
	locked map[string]int64 // canonical symbol -> acquired-at ms
}

// NewTrader constructs a Trader. Call Run to start it; Run blocks until ctx
// is cancelled.
func NewTrader(cfg TraderConfig, master, slave exchange.Adapter, strategy *HedgeStrategy, m *metrics.Metrics, log *zap.Logger) *Trader {
	return &Trader{
		cfg:      cfg,
		master:   master,
		slave:    slave,
		strategy: strategy,
		metrics:  m,
		log:      log,
		bboCh:    make(chan models.BBO, 4096),
		keys:     make(map[string]SymbolKey),
		locked:   make(map[string]int64),
	}
}

// Run executes the startup sequence and then blocks, driving the runtime
// loop off emit_bbo fan-in from both venues, until ctx is cancelled.
func (t *Trader) Run(ctx context.Context) error {
	masterRules, err := t.master.GetRules(ctx)
	if err != nil {
		return err
	}
	slaveRules, err := t.slave.GetRules(ctx)
	if err != nil {
		return err
	}

	keys := t.matchSymbols(masterRules, slaveRules)
	if len(keys) == 0 {
		return errNoSymbolsMatched
	}
	t.keysMu.Lock()
	t.keys = keys
	t.keysMu.Unlock()

	t.log.Info("matched symbols", zap.Int("count", len(keys)))

	masterSymbols := make([]string, 0, len(keys))
	slaveSymbols := make([]string, 0, len(keys))
	for _, k := range keys {
		masterSymbols = append(masterSymbols, k.Master)
		slaveSymbols = append(slaveSymbols, k.Slave)
	}

	if err := t.master.Init(ctx, masterSymbols); err != nil {
		return err
	}
	if err := t.slave.Init(ctx, slaveSymbols); err != nil {
		return err
	}

	if err := t.master.UpdateBalance(ctx); err != nil {
		t.log.Warn("initial balance refresh failed", zap.String("venue", t.master.Name()), zap.Error(err))
	}
	if err := t.slave.UpdateBalance(ctx); err != nil {
		t.log.Warn("initial balance refresh failed", zap.String("venue", t.slave.Name()), zap.Error(err))
	}
	t.log.Info("account balances refreshed",
		zap.Float64("master_swap", t.master.GetAccount().SwapBalance),
		zap.Float64("slave_swap", t.slave.GetAccount().SwapBalance))

	t.negotiateLeverage(ctx, keys, masterRules, slaveRules)

	t.master.SetEmitBBO(t.publishBBO)
	t.slave.SetEmitBBO(t.publishBBO)

	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); _ = t.master.ListenPrivate(ctx) }()
	go func() { defer wg.Done(); _ = t.slave.ListenPrivate(ctx) }()
	go func() { defer wg.Done(); _ = t.master.ListenWSAPI(ctx, t.cfg.WSAPIPoolSize) }()
	go func() { defer wg.Done(); _ = t.slave.ListenWSAPI(ctx, t.cfg.WSAPIPoolSize) }()

	i := 0
	for _, k := range keys {
		k := k
		idx := i
		i++
		go func() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(idx) * 100 * time.Millisecond):
			}
			_ = t.master.ListenPublic(ctx, k.Master)
		}()
		go func() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(idx) * 100 * time.Millisecond):
			}
			_ = t.slave.ListenPublic(ctx, k.Slave)
		}()
	}

	go t.runLoop(ctx)

	<-ctx.Done()
	wg.Wait()
	return nil
}

// errNoSymbolsMatched is a sentinel for the startup failure path; the
// process exits non-zero on it per the configured exit-code contract.
var errNoSymbolsMatched = errSentinel("no tradable symbols matched across venues")

type errSentinel string

func (e errSentinel) Error() string { return string(e) }

// matchSymbols intersects master's tradable symbols with slave's under
// 1000X-equivalence, filters to the configured quote asset, drops
// blacklisted symbols, and applies the optional [start, end) slice. The
// result maps each canonical symbol to the native spelling each venue uses.
func (t *Trader) matchSymbols(masterRules, slaveRules map[string]models.ContractRule) map[string]SymbolKey {
	type candidate struct {
		canonical string
		master    string
		slave     string
	}

	slaveByCanonical := make(map[string]string, len(slaveRules))
	for sym := range slaveRules {
		canonical, _, _ := models.ReconcileSymbol(sym)
		slaveByCanonical[canonical] = sym
	}

	candidates := make([]candidate, 0, len(masterRules))
	for sym := range masterRules {
		if !strings.HasSuffix(sym, t.cfg.Quote) {
			continue
		}
		canonical, _, _ := models.ReconcileSymbol(sym)
		if _, blocked := t.cfg.Blacklist[canonical]; blocked {
			continue
		}
		slaveSym, ok := slaveByCanonical[canonical]
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{canonical: canonical, master: sym, slave: slaveSym})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].canonical < candidates[j].canonical })

	start := t.cfg.RangeStart
	end := t.cfg.RangeEnd
	if end <= 0 || end > len(candidates) {
		end = len(candidates)
	}
	if start < 0 {
		start = 0
	}
	if start > end {
		start = end
	}
	candidates = candidates[start:end]

	out := make(map[string]SymbolKey, len(candidates))
	for _, c := range candidates {
		out[c.canonical] = SymbolKey{Canonical: c.canonical, Master: c.master, Slave: c.slave}
	}
	return out
}

// negotiateLeverage computes, per symbol, min(configured target, the
// smaller of the two venues' max leverage), then calls SetLeverage on both
// venues for every symbol, spaced 100ms apart.
func (t *Trader) negotiateLeverage(ctx context.Context, keys map[string]SymbolKey, masterRules, slaveRules map[string]models.ContractRule) {
	for _, k := range keys {
		lev := t.cfg.TargetLeverage
		if mr, ok := masterRules[k.Master]; ok && mr.MaxLeverage > 0 && mr.MaxLeverage < lev {
			lev = mr.MaxLeverage
		}
		if sr, ok := slaveRules[k.Slave]; ok && sr.MaxLeverage > 0 && sr.MaxLeverage < lev {
			lev = sr.MaxLeverage
		}
		if err := t.master.SetLeverage(ctx, k.Master, lev); err != nil {
			t.log.Warn("set leverage failed", zap.String("venue", t.master.Name()), zap.String("symbol", k.Master), zap.Error(err))
		}
		if err := t.slave.SetLeverage(ctx, k.Slave, lev); err != nil {
			t.log.Warn("set leverage failed", zap.String("venue", t.slave.Name()), zap.String("symbol", k.Slave), zap.Error(err))
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// publishBBO is registered as both adapters' emit_bbo callback. It never
// blocks the caller's WS read loop: a full channel drops the tick, matching
// the public streams' fire-and-forget backpressure contract.
func (t *Trader) publishBBO(b models.BBO) {
	select {
	case t.bboCh <- b:
	default:
	}
}

func (t *Trader) runLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-t.bboCh:
			t.onBBO(b)
		}
	}
}

// onBBO implements the runtime loop's lock-check / evaluate / lock-acquire
// sequence. The lock is checked twice: once before the (possibly
// non-trivial) strategy evaluation to drop already-locked symbols cheaply,
// and again right before acquiring it, closing the race where two ticks for
// the same symbol evaluate concurrently.
func (t *Trader) onBBO(b models.BBO) {
	canonical, _, _ := models.ReconcileSymbol(b.Symbol)

	t.keysMu.RLock()
	key, ok := t.keys[canonical]
	t.keysMu.RUnlock()
	if !ok {
		return
	}

	if t.isLocked(key.Canonical) {
		return
	}

	sig, ok := t.strategy.Evaluate(clock.NowMs(), key, t.master, t.slave)
	if !ok {
		return
	}

	if !t.tryLock(key.Canonical) {
		return
	}

	go t.executeAndRelease(key, sig)
}

func (t *Trader) isLocked(canonical string) bool {
	t.lockMu.Lock()
	defer t.lockMu.Unlock()
	_, locked := t.locked[canonical]
	return locked
}

func (t *Trader) tryLock(canonical string) bool {
	t.lockMu.Lock()
	defer t.lockMu.Unlock()
	if _, locked := t.locked[canonical]; locked {
		return false
	}
	t.locked[canonical] = clock.NowMs()
	t.metrics.ActiveLocks.Inc()
	return true
}

func (t *Trader) unlock(canonical string) {
	t.lockMu.Lock()
	delete(t.locked, canonical)
	t.metrics.ActiveLocks.Dec()
	t.lockMu.Unlock()
}

// executeAndRelease runs one locked decision to completion: paired order
// submission, a reconciliation refresh of both venues, then the 2s
// post-trade cooldown before the lock is released.
func (t *Trader) executeAndRelease(key SymbolKey, sig models.Signal) {
	defer time.AfterFunc(postTradeCooldown, func() { t.unlock(key.Canonical) })

	ctx := context.Background()
	t.executeSignal(ctx, key, sig)
	t.reconcile(ctx)
}

// executeSignal spawns a concurrent create_order per leg and awaits all of
// them. It never auto-unwinds a partial failure: a failed leg is logged
// and the inconsistency is left for human review.
func (t *Trader) executeSignal(ctx context.Context, key SymbolKey, sig models.Signal) {
	var wg sync.WaitGroup
	wg.Add(len(sig.Legs))
	for _, leg := range sig.Legs {
		leg := leg
		go func() {
			defer wg.Done()

			adapter, native := t.resolveLeg(key, leg.Venue)
			if adapter == nil {
				return
			}

			id, err := adapter.CreateOrder(ctx, native, leg.Side, leg.TradeSide, sig.Type, leg.Amount, leg.Price)
			outcome := "ok"
			if err != nil || id == "" {
				outcome = "failed"
				t.log.Error("order leg failed",
					zap.String("venue", leg.Venue),
					zap.String("symbol", sig.Symbol),
					zap.String("side", string(leg.Side)),
					zap.Error(err))
			}
			t.metrics.OrdersTotal.WithLabelValues(leg.Venue, outcome).Inc()
		}()
	}
	wg.Wait()
}

func (t *Trader) resolveLeg(key SymbolKey, venueName string) (exchange.Adapter, string) {
	if venueName == t.master.Name() {
		return t.master, key.Master
	}
	if venueName == t.slave.Name() {
		return t.slave, key.Slave
	}
	return nil, ""
}

// reconcile refetches balances and positions from both venues via REST,
// which replaces each adapter's local caches wholesale.
func (t *Trader) reconcile(ctx context.Context) {
	for _, a := range [2]exchange.Adapter{t.master, t.slave} {
		if err := a.UpdateBalance(ctx); err != nil {
			t.log.Warn("balance reconcile failed", zap.String("venue", a.Name()), zap.Error(err))
		}
		if _, err := a.GetPositions(ctx); err != nil {
			t.log.Warn("position reconcile failed", zap.String("venue", a.Name()), zap.Error(err))
		}
	}
}
