package models

import "testing"

func TestOrderStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status   OrderStatus
		terminal bool
	}{
		{OrderStatusNew, false},
		{OrderStatusPartiallyFilled, false},
		{OrderStatusFilled, true},
		{OrderStatusCanceled, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.terminal {
				t.Errorf("%s.IsTerminal() = %v, want %v", tt.status, got, tt.terminal)
			}
		})
	}
}

func TestPositionID(t *testing.T) {
	id := PositionID("BTCUSDT", SideBuy)
	if id != "BTCUSDT|BUY" {
		t.Errorf("PositionID = %q, want %q", id, "BTCUSDT|BUY")
	}
}

func TestReconcileSymbol(t *testing.T) {
	tests := []struct {
		name          string
		symbol        string
		wantCanonical string
		wantPriceDiv  float64
		wantAmountMul float64
	}{
		{"scaled meme coin", "1000PEPEUSDT", "PEPEUSDT", 1000, 1000},
		{"plain symbol", "BTCUSDT", "BTCUSDT", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			canonical, priceDiv, amountMul := ReconcileSymbol(tt.symbol)
			if canonical != tt.wantCanonical || priceDiv != tt.wantPriceDiv || amountMul != tt.wantAmountMul {
				t.Errorf("ReconcileSymbol(%q) = (%q, %v, %v), want (%q, %v, %v)",
					tt.symbol, canonical, priceDiv, amountMul, tt.wantCanonical, tt.wantPriceDiv, tt.wantAmountMul)
			}
		})
	}
}

func TestNormalizeBBOMatchesAcrossVenues(t *testing.T) {
	scaled := BBO{Symbol: "1000PEPEUSDT", Bid: 12.0, BidAmount: 5, Ask: 12.1, AskAmount: 5, TimeMs: 1}
	plain := BBO{Symbol: "PEPEUSDT", Bid: 0.012, BidAmount: 5000, Ask: 0.0121, AskAmount: 5000, TimeMs: 1}

	normScaled := NormalizeBBO(scaled)
	normPlain := NormalizeBBO(plain)

	if normScaled.Symbol != normPlain.Symbol {
		t.Fatalf("symbols did not reconcile: %q vs %q", normScaled.Symbol, normPlain.Symbol)
	}
	if normScaled.Bid != normPlain.Bid || normScaled.Ask != normPlain.Ask {
		t.Errorf("prices did not reconcile: %+v vs %+v", normScaled, normPlain)
	}
}
