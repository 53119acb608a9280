package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Token is the closed set of assets the node knows how to trade, lend or repay.
type Token int

const (
	TokenUnknown Token = iota
	RBTC               // native chain asset
	WRBTC
	DOC
	USDT
	BPRO
	XUSD
	SOV
)

var tokenSymbols = map[Token]string{
	RBTC:  "rbtc",
	WRBTC: "wrbtc",
	DOC:   "doc",
	USDT:  "usdt",
	BPRO:  "bpro",
	XUSD:  "xusd",
	SOV:   "sov",
}

// AllTokens lists every known token in a stable order.
func AllTokens() []Token {
	return []Token{RBTC, WRBTC, DOC, USDT, BPRO, XUSD, SOV}
}

// ParseToken resolves a symbol to a Token. Unknown symbols are rejected.
func ParseToken(symbol string) (Token, error) {
	s := strings.ToLower(strings.TrimSpace(symbol))
	for t, sym := range tokenSymbols {
		if sym == s {
			return t, nil
		}
	}
	return TokenUnknown, fmt.Errorf("%w: %q", ErrUnknownToken, symbol)
}

// Symbol returns the lower-case symbol stored in result records.
func (t Token) Symbol() string {
	if s, ok := tokenSymbols[t]; ok {
		return s
	}
	return "unknown"
}

func (t Token) String() string { return t.Symbol() }

// IsNative reports whether t is the chain's native asset (no token contract).
func (t Token) IsNative() bool { return t == RBTC }

// TokenRegistry maps tokens to their contract addresses on the configured network.
type TokenRegistry struct {
	byToken   map[Token]common.Address
	byAddress map[common.Address]Token
}

// NewTokenRegistry builds a registry from symbol → address pairs.
// RBTC must not be given an address; every other symbol must parse.
func NewTokenRegistry(addresses map[string]string) (*TokenRegistry, error) {
	r := &TokenRegistry{
		byToken:   make(map[Token]common.Address, len(addresses)),
		byAddress: make(map[common.Address]Token, len(addresses)),
	}
	for sym, hex := range addresses {
		t, err := ParseToken(sym)
		if err != nil {
			return nil, err
		}
		if t.IsNative() {
			return nil, fmt.Errorf("token registry: %s is native and has no contract address", sym)
		}
		if !common.IsHexAddress(hex) {
			return nil, fmt.Errorf("token registry: invalid address %q for %s", hex, sym)
		}
		addr := common.HexToAddress(hex)
		r.byToken[t] = addr
		r.byAddress[addr] = t
	}
	return r, nil
}

// Address returns the contract address of t.
func (r *TokenRegistry) Address(t Token) (common.Address, bool) {
	addr, ok := r.byToken[t]
	return addr, ok
}

// ByAddress resolves a contract address back to its Token.
func (r *TokenRegistry) ByAddress(addr common.Address) (Token, bool) {
	t, ok := r.byAddress[addr]
	return t, ok
}

// PaymentToken is the asset a wallet spends to deliver t. Wrapped RBTC is
// paid with native RBTC and wrapped by the protocol.
func PaymentToken(t Token) Token {
	if t == WRBTC {
		return RBTC
	}
	return t
}
