package domain

import "math/big"

// ArbitrageOpportunity is a swap the pool imbalance suggests. Recomputed every round.
type ArbitrageOpportunity struct {
	SourceToken Token
	DestToken   Token
	Amount      *big.Int // source token units
}

func (o ArbitrageOpportunity) SourceSymbol() string { return o.SourceToken.Symbol() }
func (o ArbitrageOpportunity) DestSymbol() string   { return o.DestToken.Symbol() }

// Trade labels the direction relative to the native asset.
func (o ArbitrageOpportunity) Trade() string {
	if o.SourceToken == RBTC || o.SourceToken == WRBTC {
		return TradeSellBTC
	}
	return TradeBuyBTC
}

const (
	TradeBuyBTC  = "buy btc"
	TradeSellBTC = "sell btc"
)
