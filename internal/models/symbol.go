package models

import "strings"

const scaledSymbolPrefix = "1000"

// ReconcileSymbol unifies a venue's "1000X" scaled meme-coin listing with a
// plain "X" listing elsewhere: it returns the canonical (unscaled) symbol key
// and the price/amount multiplier to apply when reading a quote so both
// venues compare in the same unit. Trading itself stays in the native units
// of whichever venue holds the contract. This only affects the lookup key
// and BBO normalization.
func ReconcileSymbol(symbol string) (canonical string, priceDiv, amountMul float64) {
	if strings.HasPrefix(symbol, scaledSymbolPrefix) && len(symbol) > len(scaledSymbolPrefix) {
		rest := symbol[len(scaledSymbolPrefix):]
		if rest != "" && rest[0] >= 'A' && rest[0] <= 'Z' {
			return rest, 1000, 1000
		}
	}
	return symbol, 1, 1
}

// NormalizeBBO applies ReconcileSymbol's scaling to a BBO snapshot, returning
// a new BBO keyed by the canonical symbol.
func NormalizeBBO(b BBO) BBO {
	canonical, priceDiv, amountMul := ReconcileSymbol(b.Symbol)
	if canonical == b.Symbol {
		return b
	}
	return BBO{
		Symbol:    canonical,
		Bid:       b.Bid / priceDiv,
		BidAmount: b.BidAmount * amountMul,
		Ask:       b.Ask / priceDiv,
		AskAmount: b.AskAmount * amountMul,
		TimeMs:    b.TimeMs,
	}
}
