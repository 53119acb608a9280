package arbitrage

import (
	"log/slog"
	"math/big"

	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/domain"
)

// PoolReading is one pool's bookkeeping and actual balances for both sides.
type PoolReading struct {
	Token          domain.Token
	TokenStaked    *big.Int
	TokenContract  *big.Int
	NativeStaked   *big.Int
	NativeContract *big.Int
}

// FindOpportunity sells the side whose staked balance exceeds its contract
// balance, by exactly that excess. The WRBTC side is sold and bought as native
// RBTC. ok is false when neither side is in excess, or when both are.
func FindOpportunity(r PoolReading) (domain.ArbitrageOpportunity, bool) {
	tokenDelta := new(big.Int).Sub(r.TokenStaked, r.TokenContract)
	nativeDelta := new(big.Int).Sub(r.NativeStaked, r.NativeContract)

	switch {
	case tokenDelta.Sign() > 0 && nativeDelta.Sign() > 0:
		slog.Warn("arbitrage: both pool sides in excess, ignoring",
			"token", r.Token,
			"token_delta", tokenDelta.String(),
			"native_delta", nativeDelta.String(),
		)
		return domain.ArbitrageOpportunity{}, false
	case tokenDelta.Sign() > 0:
		return domain.ArbitrageOpportunity{SourceToken: r.Token, DestToken: domain.RBTC, Amount: tokenDelta}, true
	case nativeDelta.Sign() > 0:
		return domain.ArbitrageOpportunity{SourceToken: domain.RBTC, DestToken: r.Token, Amount: nativeDelta}, true
	default:
		return domain.ArbitrageOpportunity{}, false
	}
}

// CapAmount bounds amount by the spendable balance and, when set, by max.
// The result is zero when nothing can be spent.
func CapAmount(amount, balance, max *big.Int) *big.Int {
	if balance == nil || balance.Sign() <= 0 || amount == nil || amount.Sign() <= 0 {
		return domain.Zero()
	}
	out := domain.MinInt(amount, balance)
	if max != nil && max.Sign() > 0 {
		out = domain.MinInt(out, max)
	}
	return out
}

// ArbPercent is amm/feed*100 - 100. ok is false when the feed quote is not positive.
func ArbPercent(amm, feed *big.Int) (float64, bool) {
	if amm == nil || feed == nil || feed.Sign() <= 0 {
		return 0, false
	}
	r := new(big.Rat).SetFrac(amm, feed)
	r.Mul(r, big.NewRat(100, 1))
	r.Sub(r, big.NewRat(100, 1))
	pct, _ := r.Float64()
	return pct, true
}
