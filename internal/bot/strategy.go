// Package bot implements the hedge strategy and the trader event loop: the
// two subsystems that turn a pair of live BBO feeds into paired, hedged
// orders across two venues.
package bot

import (
	"go.uber.org/zap"

	"hedgearb/internal/exchange"
	"hedgearb/internal/models"
	"hedgearb/pkg/mathutil"
)

// StrategyConfig holds the operator-tunable thresholds the hedge strategy
// evaluates against (open spread, max BBO staleness, capital and reserve
// gating, BBO-volume sizing, minimum order nominal) plus the taker fee
// rate needed for the close-profitability check.
type StrategyConfig struct {
	SpreadOpen    float64
	MaxDelayMs    int64
	PosRate       float64
	ReserveMargin float64
	BBOVolumeRate float64
	MinNominal    float64
	TakerFeeRate  float64
}

// minCloseProfitRate is the sub-20bps floor a close must clear after fees,
// expressed as profit / (entry_master + entry_slave).
const minCloseProfitRate = 0.002

// SymbolKey carries the three symbol spellings one tradable pair needs:
// BBOCache normalizes 1000X-scaled listings to Canonical at write time, but
// rule and position caches are keyed by each venue's own native symbol
// string (a venue may call the same coin "1000PEPEUSDT" while the other
// calls it "PEPEUSDT"). Order submission always uses the native spelling.
type SymbolKey struct {
	Canonical string
	Master    string
	Slave     string
}

// HedgeStrategy generates open/close Signals for one symbol across exactly
// two venues, designated master and slave by configuration order. It holds
// no per-symbol state of its own. Every input is read fresh from the
// adapters' caches each call, so Evaluate is safe to call concurrently for
// different symbols.
type HedgeStrategy struct {
	cfg StrategyConfig
	log *zap.Logger
}

// NewHedgeStrategy constructs a HedgeStrategy.
func NewHedgeStrategy(cfg StrategyConfig, log *zap.Logger) *HedgeStrategy {
	return &HedgeStrategy{cfg: cfg, log: log}
}

// Evaluate computes a signal (or none) for symbol at nowMs, given the
// master/slave adapter pair. Guards short-circuit to no signal in order:
// missing BBO, staleness, then the open/close/no-signal inventory split.
func (s *HedgeStrategy) Evaluate(nowMs int64, key SymbolKey, master, slave exchange.Adapter) (models.Signal, bool) {
	mBBO, ok := master.GetLastBBO(key.Canonical)
	if !ok {
		return models.Signal{}, false
	}
	sBBO, ok := slave.GetLastBBO(key.Canonical)
	if !ok {
		return models.Signal{}, false
	}
	if nowMs-mBBO.TimeMs > s.cfg.MaxDelayMs || nowMs-sBBO.TimeMs > s.cfg.MaxDelayMs {
		return models.Signal{}, false
	}

	mRule, ok := master.GetRule(key.Master)
	if !ok {
		return models.Signal{}, false
	}
	sRule, ok := slave.GetRule(key.Slave)
	if !ok {
		return models.Signal{}, false
	}

	mLong, mLongOK := master.GetPosition(key.Master, models.SideBuy)
	mShort, mShortOK := master.GetPosition(key.Master, models.SideSell)
	sLong, sLongOK := slave.GetPosition(key.Slave, models.SideBuy)
	sShort, sShortOK := slave.GetPosition(key.Slave, models.SideSell)

	mHasPos := mLongOK || mShortOK
	sHasPos := sLongOK || sShortOK

	switch {
	case mHasPos && sHasPos:
		return s.evaluateClose(nowMs, key.Canonical, master, slave, mRule, sRule, mBBO, sBBO,
			mLong, mLongOK, mShort, mShortOK, sLong, sLongOK, sShort, sShortOK)
	case !mHasPos && !sHasPos:
		return s.evaluateOpen(nowMs, key.Canonical, master, slave, mRule, sRule, mBBO, sBBO)
	default:
		// One-sided inventory: a leg failed to pair up. No signal until a
		// human or the reconciliation pass resolves it.
		return models.Signal{}, false
	}
}

// evaluateOpen checks both spread directions against the open threshold,
// sizes the trade off available capital and BBO depth, and normalizes the
// two legs' amounts to each venue's contract size and precision.
func (s *HedgeStrategy) evaluateOpen(nowMs int64, symbol string, master, slave exchange.Adapter,
	mRule, sRule models.ContractRule, mBBO, sBBO models.BBO) (models.Signal, bool) {

	s1 := mathutil.Spread(mBBO.Bid, sBBO.Ask) // short master / long slave
	s2 := mathutil.Spread(sBBO.Bid, mBBO.Ask) // long master / short slave

	var (
		spread                  float64
		masterSide, slaveSide   models.Side
		masterPrice, slavePrice float64
	)
	switch {
	case s1 > s.cfg.SpreadOpen:
		spread = s1
		masterSide, masterPrice = models.SideSell, mBBO.Bid
		slaveSide, slavePrice = models.SideBuy, sBBO.Ask
	case s2 > s.cfg.SpreadOpen:
		spread = s2
		masterSide, masterPrice = models.SideBuy, mBBO.Ask
		slaveSide, slavePrice = models.SideSell, sBBO.Bid
	default:
		return models.Signal{}, false
	}

	mAccount := master.GetAccount()
	sAccount := slave.GetAccount()

	capital, ok := s.availableCapital(mAccount, sAccount)
	if !ok {
		return models.Signal{}, false
	}

	mBBOAmount := mBBO.BidAmount
	if masterSide == models.SideBuy {
		mBBOAmount = mBBO.AskAmount
	}
	sBBOAmount := sBBO.BidAmount
	if slaveSide == models.SideBuy {
		sBBOAmount = sBBO.AskAmount
	}

	coinCount := minOf(
		minOf(mBBOAmount*mRule.ContractSize, sBBOAmount*sRule.ContractSize)*s.cfg.BBOVolumeRate,
		capital*float64(mRule.TradeLeverage)/masterPrice,
		capital*float64(mRule.TradeLeverage)/slavePrice,
		mRule.MaxAmount*mRule.ContractSize,
		sRule.MaxAmount*sRule.ContractSize,
	)
	if coinCount <= 0 {
		return models.Signal{}, false
	}

	nMaster := coinCount / mRule.ContractSize
	nSlave := coinCount / sRule.ContractSize
	nMaster, nSlave = normalizePrecision(nMaster, nSlave, mRule, sRule)

	if nMaster == 0 || nSlave == 0 {
		return models.Signal{}, false
	}
	if nMaster < mRule.MinAmount || nSlave < sRule.MinAmount {
		return models.Signal{}, false
	}
	if nMaster*masterPrice*mRule.ContractSize < s.cfg.MinNominal || nSlave*slavePrice*sRule.ContractSize < s.cfg.MinNominal {
		return models.Signal{}, false
	}

	return models.Signal{
		Symbol: symbol,
		Type:   models.OrderTypeMarket,
		Spread: mathutil.Floor(spread, 4),
		Legs: []models.ExchangeSignal{
			{Venue: master.Name(), TradeSide: models.TradeSideOpen, Side: masterSide, Price: masterPrice, Amount: nMaster, TimeMs: nowMs},
			{Venue: slave.Name(), TradeSide: models.TradeSideOpen, Side: slaveSide, Price: slavePrice, Amount: nSlave, TimeMs: nowMs},
		},
	}, true
}

// availableCapital applies the pos_rate/reserve_margin gate to both venues'
// balances and returns the lesser. Ok is false if either venue fails its
// own reserve gate or the resulting capital is zero.
func (s *HedgeStrategy) availableCapital(mAcct, sAcct models.Account) (float64, bool) {
	mAva := mAcct.SwapBalance * s.cfg.PosRate
	sAva := sAcct.SwapBalance * s.cfg.PosRate
	if mAcct.SwapAvailable-mAva < mAcct.SwapBalance*s.cfg.ReserveMargin {
		return 0, false
	}
	if sAcct.SwapAvailable-sAva < sAcct.SwapBalance*s.cfg.ReserveMargin {
		return 0, false
	}
	capital := minOf(mAva, sAva)
	if capital <= 0 {
		return 0, false
	}
	return capital, true
}

// evaluateClose checks whether unwinding the held hedge pair clears the
// minimum profit floor after fees. The direction (which venue is long,
// which is short) is read directly off the live position sides rather than
// from spread signs. If master short / slave long is held, that pairing is
// used even when master long / slave short is also held; if neither
// complementary pairing is held, there is no signal.
func (s *HedgeStrategy) evaluateClose(nowMs int64, symbol string, master, slave exchange.Adapter,
	mRule, sRule models.ContractRule, mBBO, sBBO models.BBO,
	mLong models.Position, mLongOK bool, mShort models.Position, mShortOK bool,
	sLong models.Position, sLongOK bool, sShort models.Position, sShortOK bool) (models.Signal, bool) {

	var shortVenue, longVenue exchange.Adapter
	var shortPos, longPos models.Position
	var shortAsk, longBid float64
	var shortRule, longRule models.ContractRule
	var masterIsShort bool

	switch {
	case mShortOK && sLongOK:
		shortVenue, longVenue = master, slave
		shortPos, longPos = mShort, sLong
		shortAsk, longBid = mBBO.Ask, sBBO.Bid
		shortRule, longRule = mRule, sRule
		masterIsShort = true
	case mLongOK && sShortOK:
		shortVenue, longVenue = slave, master
		shortPos, longPos = sShort, mLong
		shortAsk, longBid = sBBO.Ask, mBBO.Bid
		shortRule, longRule = sRule, mRule
		masterIsShort = false
	default:
		// Both venues hold positions but not in complementary directions
		// (e.g. both long) -- not a hedge pair, nothing to close.
		return models.Signal{}, false
	}

	closeSpread := mathutil.Spread(shortAsk, longBid)
	if closeSpread > 0 {
		return models.Signal{}, false
	}

	pnlShort := shortPos.Price - shortAsk
	pnlLong := longBid - longPos.Price
	grossProfit := pnlShort + pnlLong

	fees := (shortPos.Price+shortAsk)*s.cfg.TakerFeeRate + (longPos.Price+longBid)*s.cfg.TakerFeeRate
	profit := grossProfit - fees
	if profit <= 0 {
		return models.Signal{}, false
	}

	costBasis := shortPos.Price + longPos.Price
	if costBasis <= 0 || profit/costBasis < minCloseProfitRate {
		return models.Signal{}, false
	}

	coinCount := minOf(
		mBBO.BidAmount*mRule.ContractSize, mBBO.AskAmount*mRule.ContractSize,
		sBBO.BidAmount*sRule.ContractSize, sBBO.AskAmount*sRule.ContractSize,
		shortPos.Amount*shortRule.ContractSize, longPos.Amount*longRule.ContractSize,
	)
	if coinCount <= 0 {
		return models.Signal{}, false
	}

	nShort := coinCount / shortRule.ContractSize
	nLong := coinCount / longRule.ContractSize
	nShort, nLong = normalizePrecision(nShort, nLong, shortRule, longRule)
	if nShort == 0 || nLong == 0 {
		return models.Signal{}, false
	}

	var legs []models.ExchangeSignal
	shortLeg := models.ExchangeSignal{Venue: shortVenue.Name(), TradeSide: models.TradeSideClose, Side: models.SideBuy, Price: shortAsk, Amount: nShort, TimeMs: nowMs}
	longLeg := models.ExchangeSignal{Venue: longVenue.Name(), TradeSide: models.TradeSideClose, Side: models.SideSell, Price: longBid, Amount: nLong, TimeMs: nowMs}
	if masterIsShort {
		legs = []models.ExchangeSignal{shortLeg, longLeg}
	} else {
		legs = []models.ExchangeSignal{longLeg, shortLeg}
	}

	return models.Signal{
		Symbol: symbol,
		Type:   models.OrderTypeMarket,
		Spread: mathutil.Floor(closeSpread, 4),
		Legs:   legs,
	}, true
}

// normalizePrecision applies contract-size-aware flooring: equal contract
// sizes floor both independently; a size mismatch floors the coarser side
// and derives the other from the coin-equal relationship so
// n_m * m.ContractSize == n_s * s.ContractSize holds exactly.
func normalizePrecision(nMaster, nSlave float64, mRule, sRule models.ContractRule) (float64, float64) {
	p := mRule.AmountPrec
	if sRule.AmountPrec < p {
		p = sRule.AmountPrec
	}

	switch {
	case mRule.ContractSize == sRule.ContractSize:
		return mathutil.Floor(nMaster, p), mathutil.Floor(nSlave, p)
	case mRule.ContractSize < sRule.ContractSize:
		nSlave = mathutil.Floor(nSlave, p)
		nMaster = (nSlave * sRule.ContractSize) / mRule.ContractSize
		return nMaster, nSlave
	default:
		nMaster = mathutil.Floor(nMaster, p)
		nSlave = (nMaster * mRule.ContractSize) / sRule.ContractSize
		return nMaster, nSlave
	}
}

func minOf(values ...float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
