package domain

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToken(t *testing.T) {
	tok, err := ParseToken(" DoC ")
	require.NoError(t, err)
	assert.Equal(t, DOC, tok)

	_, err = ParseToken("eth")
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestTokenRegistry(t *testing.T) {
	r, err := NewTokenRegistry(map[string]string{
		"doc":   "0xE700691dA7b9851F2F35f8b8182c69c53CcaD9Db",
		"wrbtc": "0x542fDA317318eBF1d3DEAf76E0b632741A7e677d",
	})
	require.NoError(t, err)

	addr, ok := r.Address(DOC)
	require.True(t, ok)
	back, ok := r.ByAddress(addr)
	require.True(t, ok)
	assert.Equal(t, DOC, back)

	_, ok = r.Address(USDT)
	assert.False(t, ok)
}

func TestTokenRegistry_RejectsNativeAndUnknown(t *testing.T) {
	_, err := NewTokenRegistry(map[string]string{"rbtc": "0x542fDA317318eBF1d3DEAf76E0b632741A7e677d"})
	assert.Error(t, err)

	_, err = NewTokenRegistry(map[string]string{"weth": "0x542fDA317318eBF1d3DEAf76E0b632741A7e677d"})
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestPaymentToken(t *testing.T) {
	assert.Equal(t, RBTC, PaymentToken(WRBTC))
	assert.Equal(t, DOC, PaymentToken(DOC))
}

func TestLoanID(t *testing.T) {
	id, err := ParseLoanID("0x" + "ab" + "00000000000000000000000000000000000000000000000000000000000000")
	require.NoError(t, err)
	assert.False(t, id.IsZero())
	assert.Equal(t, byte(0xab), id[0])
	assert.True(t, LoanID{}.IsZero())

	_, err = ParseLoanID("0x1234")
	assert.Error(t, err)
}

func TestPosition_ShouldLiquidateAndExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	p := Position{MaxLiquidatable: big.NewInt(0), EndTimestamp: now.Unix()}
	assert.False(t, p.ShouldLiquidate())
	assert.True(t, p.Expired(now))
	assert.False(t, p.Expired(now.Add(-time.Second)))

	p.MaxLiquidatable = big.NewInt(1)
	assert.True(t, p.ShouldLiquidate())
}

func TestFormatUnits(t *testing.T) {
	v, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, "1.5000", FormatUnits(v, 4))
	assert.Equal(t, "0", FormatUnits(nil, 4))
}

func TestArbitrageOpportunity_Trade(t *testing.T) {
	assert.Equal(t, TradeSellBTC, ArbitrageOpportunity{SourceToken: RBTC, DestToken: DOC}.Trade())
	assert.Equal(t, TradeBuyBTC, ArbitrageOpportunity{SourceToken: DOC, DestToken: RBTC}.Trade())
}
