package arbitrage

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/adapters/metrics"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/application/engine"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/domain"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/ports"
)

const name = "arbitrage"

// Pair is a token pooled against WRBTC.
type Pair struct {
	Token domain.Token
	Pool  common.Address
	Max   *big.Int // per-trade cap in source units; nil uses Config.DefaultMax
}

// Config holds arbitrage engine settings.
type Config struct {
	Interval         time.Duration
	GasLimit         uint64
	ThresholdPercent float64
	NativeReserve    *big.Int // kept back from native balances on top of gas
	DefaultMax       *big.Int
	Pairs            []Pair
}

// RoundResult summarises one arbitrage round.
type RoundResult struct {
	Pairs         int
	Opportunities int
	Skipped       int
	Succeeded     int
	Failed        int
}

// Engine trades pool imbalances back towards the oracle price.
type Engine struct {
	cfg     Config
	chain   ports.Chain
	wallets engine.WalletPool
	exec    *engine.Executor
	store   ports.ResultStore
	metrics *metrics.Collector
}

// New creates an arbitrage engine.
func New(cfg Config, chain ports.Chain, wallets engine.WalletPool, store ports.ResultStore, m *metrics.Collector) *Engine {
	return &Engine{
		cfg:     cfg,
		chain:   chain,
		wallets: wallets,
		exec:    &engine.Executor{Chain: chain, Wallets: wallets},
		store:   store,
		metrics: m,
	}
}

// Run loops RunOnce every cfg.Interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	return engine.Loop(ctx, name, e.cfg.Interval, func(ctx context.Context) error {
		res := e.RunOnce(ctx)
		if res.Opportunities > 0 {
			slog.Info("arbitrage: round", "pairs", res.Pairs, "opportunities", res.Opportunities,
				"ok", res.Succeeded, "failed", res.Failed, "skipped", res.Skipped)
		}
		return nil
	})
}

// RunOnce checks every configured pair sequentially.
func (e *Engine) RunOnce(ctx context.Context) RoundResult {
	res := RoundResult{Pairs: len(e.cfg.Pairs)}
	for _, pair := range e.cfg.Pairs {
		if ctx.Err() != nil {
			break
		}
		opp, ok := e.Detect(ctx, pair)
		if !ok {
			continue
		}
		res.Opportunities++
		switch e.execute(ctx, pair, opp) {
		case outcomeSucceeded:
			res.Succeeded++
		case outcomeFailed:
			res.Failed++
		default:
			res.Skipped++
		}
	}
	return res
}

// Detect reads both sides of the pair's pool and returns the raw opportunity.
func (e *Engine) Detect(ctx context.Context, pair Pair) (domain.ArbitrageOpportunity, bool) {
	log := slog.With("token", pair.Token, "pool", pair.Pool.Hex())

	tokenStaked, err := e.chain.StakedBalance(ctx, pair.Pool, pair.Token)
	if err != nil {
		log.Warn("arbitrage: staked balance unavailable", "err", err)
		return domain.ArbitrageOpportunity{}, false
	}
	tokenContract, err := e.chain.Balance(ctx, pair.Token, pair.Pool)
	if err != nil {
		log.Warn("arbitrage: pool balance unavailable", "err", err)
		return domain.ArbitrageOpportunity{}, false
	}
	nativeStaked, err := e.chain.StakedBalance(ctx, pair.Pool, domain.WRBTC)
	if err != nil {
		log.Warn("arbitrage: staked balance unavailable", "side", domain.WRBTC, "err", err)
		return domain.ArbitrageOpportunity{}, false
	}
	nativeContract, err := e.chain.Balance(ctx, domain.WRBTC, pair.Pool)
	if err != nil {
		log.Warn("arbitrage: pool balance unavailable", "side", domain.WRBTC, "err", err)
		return domain.ArbitrageOpportunity{}, false
	}

	return FindOpportunity(PoolReading{
		Token:          pair.Token,
		TokenStaked:    tokenStaked,
		TokenContract:  tokenContract,
		NativeStaked:   nativeStaked,
		NativeContract: nativeContract,
	})
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSucceeded
	outcomeFailed
)

func (e *Engine) execute(ctx context.Context, pair Pair, opp domain.ArbitrageOpportunity) outcome {
	log := slog.With("from", opp.SourceSymbol(), "to", opp.DestSymbol())

	slot, balance, ok := e.wallets.Acquire(ctx, domain.RoleArbitrage, opp.Amount, opp.SourceToken)
	if !ok {
		log.Info("arbitrage: no wallet available")
		return e.skip("no_wallet")
	}

	gasPrice, err := e.chain.GasPrice(ctx)
	if err != nil {
		log.Warn("arbitrage: gas price unavailable", "err", err)
		return e.skip("unavailable")
	}
	gasCost := engine.GasCost(e.cfg.GasLimit, gasPrice)

	spendable := balance
	if opp.SourceToken.IsNative() {
		reserve := gasCost
		if e.cfg.NativeReserve != nil && e.cfg.NativeReserve.Cmp(reserve) > 0 {
			reserve = e.cfg.NativeReserve
		}
		spendable = new(big.Int).Sub(balance, reserve)
	} else {
		native, err := e.chain.Balance(ctx, domain.RBTC, slot.Address)
		if err != nil {
			log.Warn("arbitrage: native balance unavailable", "wallet", slot.Address.Hex(), "err", err)
			return e.skip("unavailable")
		}
		if native.Cmp(gasCost) < 0 {
			log.Info("arbitrage: not enough rbtc for gas", "wallet", slot.Address.Hex())
			return e.skip("gas")
		}
	}

	limit := pair.Max
	if limit == nil {
		limit = e.cfg.DefaultMax
	}
	amount := CapAmount(opp.Amount, spendable, limit)
	if amount.Sign() <= 0 {
		log.Info("arbitrage: nothing to spend", "wallet", slot.Address.Hex())
		return e.skip("balance")
	}
	opp.Amount = amount

	amm, err := e.chain.AmmReturn(ctx, opp.SourceToken, opp.DestToken, amount)
	if err != nil {
		log.Warn("arbitrage: amm quote unavailable", "err", err)
		return e.skip("unavailable")
	}
	feed, err := e.chain.OracleReturn(ctx, opp.SourceToken, opp.DestToken, amount)
	if err != nil {
		log.Warn("arbitrage: oracle quote unavailable", "err", err)
		return e.skip("unavailable")
	}
	pct, ok := ArbPercent(amm, feed)
	if !ok || pct < e.cfg.ThresholdPercent {
		log.Debug("arbitrage: below threshold",
			"amount", domain.FormatUnits(amount, 6),
			"amm", domain.FormatUnits(amm, 6),
			"feed", domain.FormatUnits(feed, 6),
			"pct", pct,
		)
		return e.skip("threshold")
	}

	call, err := e.chain.SwapCall(ctx, opp.SourceToken, opp.DestToken, amount, feed, slot.Address)
	if err != nil {
		log.Warn("arbitrage: build swap", "err", err)
		return e.skip("call")
	}
	var value *big.Int
	if opp.SourceToken.IsNative() {
		value = amount
	}

	log.Info("arbitrage: sending",
		"wallet", slot.Address.Hex(),
		"trade", opp.Trade(),
		"amount", domain.FormatUnits(amount, 6),
		"amm", domain.FormatUnits(amm, 6),
		"feed", domain.FormatUnits(feed, 6),
		"pct", pct,
	)
	receipt, err := e.exec.Execute(ctx, engine.Tx{
		Slot:     slot,
		ID:       "arb-" + uuid.NewString(),
		Call:     call,
		GasLimit: e.cfg.GasLimit,
		GasPrice: gasPrice,
		Value:    value,
	})
	if errors.Is(err, engine.ErrNotSent) {
		log.Warn("arbitrage: not sent", "err", err)
		return e.skip("not_sent")
	}
	if errors.Is(err, engine.ErrOutcomeUnknown) {
		log.Warn("arbitrage: shutdown before receipt, outcome unknown", "tx", receipt.TxHash.Hex(), "err", err)
		return e.skip("outcome_unknown")
	}

	rec := domain.ArbitrageRecord{
		Wallet:    slot.Address.Hex(),
		FromToken: opp.SourceSymbol(),
		ToToken:   opp.DestSymbol(),
		Trade:     opp.Trade(),
		TxHash:    receipt.TxHash.Hex(),
	}
	if err != nil {
		log.Warn("arbitrage: swap failed", "tx", rec.TxHash, "err", err)
		rec.Status = domain.StatusFailed
		rec.FromAmount = domain.Zero()
		rec.ToAmount = domain.Zero()
		rec.Profit = domain.Zero()
		e.persist(ctx, rec)
		e.metrics.Attempt(name, string(domain.StatusFailed))
		return outcomeFailed
	}

	rec.Status = domain.StatusSuccessful
	rec.FromAmount = amount
	rec.ToAmount = amm
	if ev := receipt.Conversion; ev != nil {
		rec.FromAmount = ev.FromAmount
		rec.ToAmount = ev.ToAmount
	} else {
		log.Warn("arbitrage: receipt has no Conversion event, using quote", "tx", rec.TxHash)
	}
	rec.Profit = e.profit(ctx, opp, amount, feed, rec.FromAmount, rec.ToAmount)

	log.Info("arbitrage: success",
		"tx", rec.TxHash,
		"received", domain.FormatUnits(rec.ToAmount, 6),
		"profit", domain.FormatUnits(rec.Profit, 6),
	)
	e.persist(ctx, rec)
	e.metrics.Attempt(name, string(domain.StatusSuccessful))
	return outcomeSucceeded
}

// profit values what was received against the feed price of what was actually sold.
func (e *Engine) profit(ctx context.Context, opp domain.ArbitrageOpportunity, quoted, feed, sold, received *big.Int) *big.Int {
	if sold != nil && sold.Cmp(quoted) != 0 {
		requoted, err := e.chain.OracleReturn(ctx, opp.SourceToken, opp.DestToken, sold)
		if err != nil {
			slog.Warn("arbitrage: oracle unavailable for sold amount, profit recorded as zero", "err", err)
			return domain.Zero()
		}
		feed = requoted
	}
	return new(big.Int).Sub(received, feed)
}

func (e *Engine) persist(ctx context.Context, rec domain.ArbitrageRecord) {
	if _, err := e.store.InsertArbitrage(context.WithoutCancel(ctx), rec); err != nil {
		slog.Error("arbitrage: persist record", "trade", rec.Trade, "err", err)
	}
}

func (e *Engine) skip(reason string) outcome {
	e.metrics.Skip(name, reason)
	return outcomeSkipped
}
