package bot

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"hedgearb/internal/metrics"
	"hedgearb/internal/models"

	"github.com/prometheus/client_golang/prometheus"
)

func newTestTrader(t *testing.T, master, slave *fakeAdapter) *Trader {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	strategy := NewHedgeStrategy(testConfig(), zap.NewNop())
	return NewTrader(TraderConfig{
		Quote:          "USDT",
		TargetLeverage: 20,
		WSAPIPoolSize:  1,
	}, master, slave, strategy, m, zap.NewNop())
}

func TestTrader_LockRoundTrip(t *testing.T) {
	tr := newTestTrader(t, newFakeAdapter("venue-a"), newFakeAdapter("venue-b"))

	if tr.isLocked("BTCUSDT") {
		t.Fatal("expected unlocked at start")
	}
	if !tr.tryLock("BTCUSDT") {
		t.Fatal("expected first tryLock to succeed")
	}
	if !tr.isLocked("BTCUSDT") {
		t.Fatal("expected locked after tryLock")
	}
	if tr.tryLock("BTCUSDT") {
		t.Fatal("expected second tryLock to fail while held")
	}
	tr.unlock("BTCUSDT")
	if tr.isLocked("BTCUSDT") {
		t.Fatal("expected unlocked after unlock")
	}
	if !tr.tryLock("BTCUSDT") {
		t.Fatal("expected tryLock to succeed again after unlock")
	}
}

func TestTrader_MatchSymbols(t *testing.T) {
	tr := newTestTrader(t, newFakeAdapter("venue-a"), newFakeAdapter("venue-b"))
	tr.cfg.Blacklist = map[string]struct{}{"DOGEUSDT": {}}

	masterRules := map[string]models.ContractRule{
		"BTCUSDT":      {ContractSize: 1},
		"1000PEPEUSDT": {ContractSize: 1000},
		"DOGEUSDT":     {ContractSize: 1},
		"ETHUSDC":      {ContractSize: 1}, // wrong quote, dropped
	}
	slaveRules := map[string]models.ContractRule{
		"BTCUSDT":  {ContractSize: 1},
		"PEPEUSDT": {ContractSize: 1}, // reconciles with 1000PEPEUSDT
		"DOGEUSDT": {ContractSize: 1},
		// no ETHUSDT on slave
	}

	keys := tr.matchSymbols(masterRules, slaveRules)

	if _, ok := keys["DOGEUSDT"]; ok {
		t.Error("expected blacklisted symbol to be dropped")
	}
	if _, ok := keys["ETHUSDC"]; ok {
		t.Error("expected wrong-quote symbol to be dropped")
	}
	btc, ok := keys["BTCUSDT"]
	if !ok {
		t.Fatal("expected BTCUSDT to match")
	}
	if btc.Master != "BTCUSDT" || btc.Slave != "BTCUSDT" {
		t.Errorf("unexpected BTCUSDT key: %+v", btc)
	}
	pepe, ok := keys["PEPEUSDT"]
	if !ok {
		t.Fatal("expected 1000PEPEUSDT/PEPEUSDT to reconcile under canonical PEPEUSDT")
	}
	if pepe.Master != "1000PEPEUSDT" || pepe.Slave != "PEPEUSDT" {
		t.Errorf("unexpected PEPE key: %+v", pepe)
	}
}

func TestTrader_OnBBOSingleFlight(t *testing.T) {
	master := newFakeAdapter("venue-a")
	slave := newFakeAdapter("venue-b")
	flushAccounts(master, slave, 100000)

	rule := models.ContractRule{ContractSize: 1, AmountPrec: 3, MaxAmount: 1e9, MinAmount: 0.001, MaxLeverage: 20, TradeLeverage: 20}
	master.setRule("BTCUSDT", rule)
	slave.setRule("BTCUSDT", rule)

	tr := newTestTrader(t, master, slave)
	tr.keys["BTCUSDT"] = SymbolKey{Canonical: "BTCUSDT", Master: "BTCUSDT", Slave: "BTCUSDT"}

	now := time.Now().UnixMilli()
	bbo := models.BBO{Symbol: "BTCUSDT", Bid: 101, BidAmount: 1000, Ask: 102, AskAmount: 1000, TimeMs: now}
	master.setBBO(bbo)
	slave.setBBO(models.BBO{Symbol: "BTCUSDT", Bid: 95, BidAmount: 1000, Ask: 100, AskAmount: 1000, TimeMs: now})

	tr.strategy = NewHedgeStrategy(StrategyConfig{
		SpreadOpen: 0.005, MaxDelayMs: 60_000, PosRate: 0.3, ReserveMargin: 0.1,
		BBOVolumeRate: 0.1, MinNominal: 5, TakerFeeRate: 0.0005,
	}, zap.NewNop())

	// Two ticks for the same symbol arrive back to back. The first should
	// acquire the lock and dispatch; the second must see it held.
	tr.onBBO(bbo)
	tr.onBBO(bbo)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if master.callCount() > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if got := master.callCount(); got != 1 {
		t.Fatalf("expected exactly 1 CreateOrder call on master from the first tick, got %d", got)
	}
	if got := slave.callCount(); got != 1 {
		t.Fatalf("expected exactly 1 CreateOrder call on slave from the first tick, got %d", got)
	}
}

func TestTrader_ExecuteSignalDoesNotAutoUnwindOnPartialFailure(t *testing.T) {
	master := newFakeAdapter("venue-a")
	slave := newFakeAdapter("venue-b")
	master.createOrderErr = context.DeadlineExceeded

	tr := newTestTrader(t, master, slave)
	key := SymbolKey{Canonical: "BTCUSDT", Master: "BTCUSDT", Slave: "BTCUSDT"}
	sig := models.Signal{
		Symbol: "BTCUSDT",
		Type:   models.OrderTypeMarket,
		Legs: []models.ExchangeSignal{
			{Venue: "venue-a", Side: models.SideSell, TradeSide: models.TradeSideOpen, Price: 101, Amount: 1},
			{Venue: "venue-b", Side: models.SideBuy, TradeSide: models.TradeSideOpen, Price: 100, Amount: 1},
		},
	}

	tr.executeSignal(context.Background(), key, sig)

	if master.callCount() != 1 {
		t.Fatalf("expected master CreateOrder to have been attempted once, got %d", master.callCount())
	}
	if slave.callCount() != 1 {
		t.Fatalf("expected the slave leg to still submit despite the master leg failing, got %d", slave.callCount())
	}
}
