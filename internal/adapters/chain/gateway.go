package chain

// gateway.go: read side of the RSK node client.
//
// Every read goes through the rate limiter and returns (value, error). A failed
// read always wraps domain.ErrUnavailable so callers never mistake "unknown"
// for zero.

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"

	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/domain"
)

const (
	defaultReceiptPoll = 3 * time.Second
	gasPriceTTL        = 30 * time.Second
)

// Backend is the subset of *ethclient.Client the gateway uses.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Config holds node and contract settings.
type Config struct {
	RPCURL                string
	ChainID               int64 // 0 accepts whatever the node reports
	GasPriceBufferPercent float64
	RatePerSecond         float64 // 0 disables throttling
	ReceiptPoll           time.Duration

	Protocol    common.Address
	SwapNetwork common.Address
	PriceFeeds  common.Address
}

// Gateway implements ports.Chain on top of an RSK/EVM JSON-RPC node.
type Gateway struct {
	backend Backend
	cfg     Config
	chainID *big.Int
	tokens  *domain.TokenRegistry
	keys    *KeyRing
	limiter *rate.Limiter

	mu           sync.RWMutex
	cachedGasWei *big.Int
	gasUpdatedAt time.Time
}

// Dial connects to cfg.RPCURL and checks the chain id. Failing here is fatal for the process.
func Dial(ctx context.Context, cfg Config, tokens *domain.TokenRegistry, keys *KeyRing) (*Gateway, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain.Dial: dial rpc: %w", err)
	}
	id, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("chain.Dial: chain id: %w", err)
	}
	if cfg.ChainID != 0 && id.Int64() != cfg.ChainID {
		client.Close()
		return nil, fmt.Errorf("chain.Dial: node reports chain id %s, configured %d", id, cfg.ChainID)
	}
	slog.Info("chain: connected", "chain_id", id)
	return New(client, id, cfg, tokens, keys), nil
}

// New wraps an existing backend.
func New(backend Backend, chainID *big.Int, cfg Config, tokens *domain.TokenRegistry, keys *KeyRing) *Gateway {
	if cfg.ReceiptPoll <= 0 {
		cfg.ReceiptPoll = defaultReceiptPoll
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &Gateway{
		backend: backend,
		cfg:     cfg,
		chainID: chainID,
		tokens:  tokens,
		keys:    keys,
		limiter: rate.NewLimiter(limit, 5),
	}
}

// BufferedGasPrice returns suggested * (1 + bufferPercent/100), rounded half up.
func BufferedGasPrice(suggested *big.Int, bufferPercent float64) *big.Int {
	factor := new(big.Rat).SetFloat64(1 + bufferPercent/100)
	if factor == nil || factor.Sign() <= 0 {
		return new(big.Int).Set(suggested)
	}
	v := new(big.Rat).Mul(new(big.Rat).SetInt(suggested), factor)
	num := new(big.Int).Mul(v.Num(), big.NewInt(2))
	num.Add(num, v.Denom())
	den := new(big.Int).Mul(v.Denom(), big.NewInt(2))
	return num.Quo(num, den)
}

// Balance returns the native balance for RBTC and the ERC20 balance for any other token.
func (g *Gateway) Balance(ctx context.Context, token domain.Token, owner common.Address) (*big.Int, error) {
	if token.IsNative() {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, unavailable("Balance", err)
		}
		bal, err := g.backend.BalanceAt(ctx, owner, nil)
		if err != nil {
			return nil, unavailable("Balance", err)
		}
		return bal, nil
	}
	addr, err := g.tokenAddress(token)
	if err != nil {
		return nil, err
	}
	vals, err := g.call(ctx, addr, erc20ABI, "balanceOf", owner)
	if err != nil {
		return nil, unavailable("Balance", fmt.Errorf("%s balanceOf: %w", token, err))
	}
	return firstInt(vals)
}

// ActiveLoans pages through the protocol's open loans.
func (g *Gateway) ActiveLoans(ctx context.Context, start, count uint64) ([]domain.Position, error) {
	vals, err := g.call(ctx, g.cfg.Protocol, protocolABI, "getActiveLoans",
		new(big.Int).SetUint64(start), new(big.Int).SetUint64(count), false)
	if err != nil {
		return nil, unavailable("ActiveLoans", err)
	}
	if len(vals) == 0 {
		return nil, unavailable("ActiveLoans", fmt.Errorf("empty output"))
	}
	loans := *abi.ConvertType(vals[0], new([]loanData)).(*[]loanData)

	out := make([]domain.Position, 0, len(loans))
	for _, l := range loans {
		out = append(out, l.position())
	}
	return out, nil
}

// Loan re-reads one loan.
func (g *Gateway) Loan(ctx context.Context, id domain.LoanID) (domain.Position, error) {
	vals, err := g.call(ctx, g.cfg.Protocol, protocolABI, "getLoan", [32]byte(id))
	if err != nil {
		return domain.Position{}, unavailable("Loan", err)
	}
	if len(vals) == 0 {
		return domain.Position{}, unavailable("Loan", fmt.Errorf("empty output"))
	}
	l := *abi.ConvertType(vals[0], new(loanData)).(*loanData)
	return l.position(), nil
}

// StakedBalance reads the converter's virtual reserve for token.
func (g *Gateway) StakedBalance(ctx context.Context, pool common.Address, token domain.Token) (*big.Int, error) {
	addr, err := g.tokenAddress(token)
	if err != nil {
		return nil, err
	}
	vals, err := g.call(ctx, pool, converterABI, "reserveStakedBalance", addr)
	if err != nil {
		return nil, unavailable("StakedBalance", err)
	}
	return firstInt(vals)
}

// AmmReturn resolves the conversion path and quotes it.
func (g *Gateway) AmmReturn(ctx context.Context, src, dst domain.Token, amount *big.Int) (*big.Int, error) {
	path, err := g.conversionPath(ctx, src, dst)
	if err != nil {
		return nil, err
	}
	vals, err := g.call(ctx, g.cfg.SwapNetwork, swapABI, "rateByPath", path, amount)
	if err != nil {
		return nil, unavailable("AmmReturn", err)
	}
	return firstInt(vals)
}

// OracleReturn asks the price feed how much dst amount of src is worth.
func (g *Gateway) OracleReturn(ctx context.Context, src, dst domain.Token, amount *big.Int) (*big.Int, error) {
	srcAddr, err := g.tokenAddress(src)
	if err != nil {
		return nil, err
	}
	dstAddr, err := g.tokenAddress(dst)
	if err != nil {
		return nil, err
	}
	vals, err := g.call(ctx, g.cfg.PriceFeeds, priceFeedsABI, "queryReturn", srcAddr, dstAddr, amount)
	if err != nil {
		return nil, unavailable("OracleReturn", err)
	}
	return firstInt(vals)
}

// PendingNonce returns the account's pending transaction count.
func (g *Gateway) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return 0, unavailable("PendingNonce", err)
	}
	n, err := g.backend.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, unavailable("PendingNonce", err)
	}
	return n, nil
}

// GasPrice returns the buffered node suggestion, cached briefly.
// A failed refresh falls back to the last known price.
func (g *Gateway) GasPrice(ctx context.Context) (*big.Int, error) {
	g.mu.RLock()
	cached := g.cachedGasWei
	updatedAt := g.gasUpdatedAt
	g.mu.RUnlock()

	if cached != nil && time.Since(updatedAt) < gasPriceTTL {
		return new(big.Int).Set(cached), nil
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, unavailable("GasPrice", err)
	}
	suggested, err := g.backend.SuggestGasPrice(ctx)
	if err != nil {
		if cached != nil {
			slog.Warn("chain: gas price refresh failed, using cached", "err", err)
			return new(big.Int).Set(cached), nil
		}
		return nil, unavailable("GasPrice", err)
	}

	price := BufferedGasPrice(suggested, g.cfg.GasPriceBufferPercent)

	g.mu.Lock()
	g.cachedGasWei = price
	g.gasUpdatedAt = time.Now()
	g.mu.Unlock()

	return new(big.Int).Set(price), nil
}

func (g *Gateway) conversionPath(ctx context.Context, src, dst domain.Token) ([]common.Address, error) {
	srcAddr, err := g.tokenAddress(src)
	if err != nil {
		return nil, err
	}
	dstAddr, err := g.tokenAddress(dst)
	if err != nil {
		return nil, err
	}
	vals, err := g.call(ctx, g.cfg.SwapNetwork, swapABI, "conversionPath", srcAddr, dstAddr)
	if err != nil {
		return nil, unavailable("conversionPath", err)
	}
	if len(vals) == 0 {
		return nil, unavailable("conversionPath", fmt.Errorf("empty output"))
	}
	path, ok := vals[0].([]common.Address)
	if !ok || len(path) == 0 {
		return nil, unavailable("conversionPath", fmt.Errorf("no path %s -> %s", src, dst))
	}
	return path, nil
}

// tokenAddress maps a token to its contract. Native RBTC resolves to WRBTC,
// which is how pools, the swap network and the oracle refer to it.
func (g *Gateway) tokenAddress(t domain.Token) (common.Address, error) {
	if t.IsNative() {
		t = domain.WRBTC
	}
	addr, ok := g.tokens.Address(t)
	if !ok {
		return common.Address{}, fmt.Errorf("chain: %w: no address configured for %s", domain.ErrUnknownToken, t)
	}
	return addr, nil
}

func (g *Gateway) call(ctx context.Context, to common.Address, contract abi.ABI, method string, args ...any) ([]any, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := g.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("rpc call %s: %w", method, err)
	}
	vals, err := contract.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return vals, nil
}

func (l loanData) position() domain.Position {
	var end int64
	if l.EndTimestamp != nil {
		end = l.EndTimestamp.Int64()
	}
	return domain.Position{
		LoanID:            domain.LoanID(l.LoanId),
		LoanToken:         l.LoanToken,
		CollateralToken:   l.CollateralToken,
		Principal:         orZero(l.Principal),
		Collateral:        orZero(l.Collateral),
		CurrentMargin:     orZero(l.CurrentMargin),
		MaintenanceMargin: orZero(l.MaintenanceMargin),
		MaxLiquidatable:   orZero(l.MaxLiquidatable),
		MaxSeizable:       orZero(l.MaxSeizable),
		EndTimestamp:      end,
	}
}

func firstInt(vals []any) (*big.Int, error) {
	if len(vals) == 0 {
		return nil, fmt.Errorf("chain: %w: empty output", domain.ErrUnavailable)
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: %w: unexpected output type %T", domain.ErrUnavailable, vals[0])
	}
	return v, nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func unavailable(op string, err error) error {
	return fmt.Errorf("chain.%s: %w: %w", op, domain.ErrUnavailable, err)
}
