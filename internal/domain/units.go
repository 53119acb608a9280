package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals is the fixed-point precision of every supported token.
const Decimals = 18

// FormatUnits renders a base-unit amount as a human readable decimal.
func FormatUnits(v *big.Int, places int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -Decimals).StringFixed(places)
}

// MinInt returns the smaller of a and b.
func MinInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Zero returns a fresh zero amount.
func Zero() *big.Int { return new(big.Int) }
