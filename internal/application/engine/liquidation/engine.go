package liquidation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/adapters/metrics"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/application/engine"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/domain"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/ports"
)

const name = "liquidation"

// Config holds liquidation engine settings.
type Config struct {
	Interval time.Duration
	GasLimit uint64
}

// Book is the part of the position book the engine reads and amends.
type Book interface {
	Liquidations() []domain.Position
	RemoveLiquidation(id domain.LoanID)
}

// RoundResult summarises one pass over the liquidations map.
type RoundResult struct {
	Candidates int
	Skipped    int
	Succeeded  int
	Failed     int
	Dropped    int // stale entries removed after a failed attempt
}

// Engine liquidates flagged positions one at a time.
type Engine struct {
	cfg     Config
	chain   ports.Chain
	book    Book
	wallets engine.WalletPool
	exec    *engine.Executor
	tokens  *domain.TokenRegistry
	store   ports.ResultStore
	alerter ports.Alerter
	metrics *metrics.Collector

	mu     sync.Mutex
	errors map[domain.LoanID]int
}

// New creates a liquidation engine.
func New(cfg Config, chain ports.Chain, book Book, wallets engine.WalletPool, tokens *domain.TokenRegistry,
	store ports.ResultStore, alerter ports.Alerter, m *metrics.Collector) *Engine {
	return &Engine{
		cfg:     cfg,
		chain:   chain,
		book:    book,
		wallets: wallets,
		exec:    &engine.Executor{Chain: chain, Wallets: wallets},
		tokens:  tokens,
		store:   store,
		alerter: alerter,
		metrics: m,
		errors:  make(map[domain.LoanID]int),
	}
}

// Run loops RunOnce every cfg.Interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	return engine.Loop(ctx, name, e.cfg.Interval, func(ctx context.Context) error {
		res := e.RunOnce(ctx)
		if res.Candidates > 0 {
			slog.Info("liquidation: round",
				"candidates", res.Candidates,
				"ok", res.Succeeded,
				"failed", res.Failed,
				"dropped", res.Dropped,
				"skipped", res.Skipped,
			)
		}
		return nil
	})
}

// ErrorCount returns how many escalated failures id has had since its last success.
func (e *Engine) ErrorCount(id domain.LoanID) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errors[id]
}

// RunOnce processes every flagged position sequentially.
func (e *Engine) RunOnce(ctx context.Context) RoundResult {
	candidates := e.book.Liquidations()
	e.pruneErrors(candidates)
	res := RoundResult{Candidates: len(candidates)}
	for _, p := range candidates {
		if ctx.Err() != nil {
			break
		}
		switch e.process(ctx, p) {
		case outcomeSkipped:
			res.Skipped++
		case outcomeSucceeded:
			res.Succeeded++
		case outcomeFailed:
			res.Failed++
		case outcomeDropped:
			res.Failed++
			res.Dropped++
		}
	}
	return res
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSucceeded
	outcomeFailed
	outcomeDropped
)

func (e *Engine) process(ctx context.Context, p domain.Position) outcome {
	id := p.LoanID.String()
	log := slog.With("loan", p.LoanID.Short())

	if e.wallets.HasPendingID(domain.RoleLiquidator, id) {
		log.Debug("liquidation: already pending")
		return e.skip("pending")
	}

	loanToken, ok := e.tokens.ByAddress(p.LoanToken)
	if !ok {
		log.Warn("liquidation: unknown loan token", "address", p.LoanToken.Hex())
		return e.skip("unknown_token")
	}
	collToken, ok := e.tokens.ByAddress(p.CollateralToken)
	if !ok {
		log.Warn("liquidation: unknown collateral token", "address", p.CollateralToken.Hex())
		return e.skip("unknown_token")
	}
	pay := domain.PaymentToken(loanToken)

	slot, balance, ok := e.wallets.Acquire(ctx, domain.RoleLiquidator, domain.Zero(), pay)
	if !ok {
		log.Info("liquidation: no wallet available", "token", pay)
		return e.skip("no_wallet")
	}

	gasPrice, err := e.chain.GasPrice(ctx)
	if err != nil {
		log.Warn("liquidation: gas price unavailable", "err", err)
		return e.skip("unavailable")
	}
	gasCost := engine.GasCost(e.cfg.GasLimit, gasPrice)

	var amount *big.Int
	if pay.IsNative() {
		// Repayment and gas come out of the same native balance.
		spendable := new(big.Int).Sub(balance, gasCost)
		amount = domain.MinInt(p.MaxLiquidatable, spendable)
	} else {
		native, err := e.chain.Balance(ctx, domain.RBTC, slot.Address)
		if err != nil {
			log.Warn("liquidation: native balance unavailable", "wallet", slot.Address.Hex(), "err", err)
			return e.skip("unavailable")
		}
		if native.Cmp(gasCost) < 0 {
			log.Info("liquidation: not enough rbtc for gas",
				"wallet", slot.Address.Hex(),
				"balance", domain.FormatUnits(native, 6),
				"gas_cost", domain.FormatUnits(gasCost, 6),
			)
			return e.skip("gas")
		}
		amount = domain.MinInt(p.MaxLiquidatable, balance)
	}
	if amount.Sign() <= 0 {
		log.Info("liquidation: nothing affordable", "wallet", slot.Address.Hex(), "token", pay)
		return e.skip("balance")
	}

	call, err := e.chain.LiquidateCall(p.LoanID, slot.Address, amount)
	if err != nil {
		log.Error("liquidation: build call", "err", err)
		return e.skip("call")
	}
	var value *big.Int
	if pay.IsNative() {
		value = amount
	}

	log.Info("liquidation: sending",
		"wallet", slot.Address.Hex(),
		"amount", domain.FormatUnits(amount, 6),
		"token", pay,
		"max", domain.FormatUnits(p.MaxLiquidatable, 6),
	)
	receipt, err := e.exec.Execute(ctx, engine.Tx{
		Slot:     slot,
		ID:       id,
		Call:     call,
		GasLimit: e.cfg.GasLimit,
		GasPrice: gasPrice,
		Value:    value,
	})
	if errors.Is(err, engine.ErrNotSent) {
		log.Warn("liquidation: not sent, retrying next round", "err", err)
		return e.skip("not_sent")
	}
	if errors.Is(err, engine.ErrOutcomeUnknown) {
		log.Warn("liquidation: shutdown before receipt, outcome unknown", "tx", receipt.TxHash.Hex(), "err", err)
		return e.skip("outcome_unknown")
	}

	rec := domain.LiquidationRecord{
		Liquidator:  slot.Address.Hex(),
		LoanID:      id,
		Amount:      amount,
		AmountToken: loanToken.Symbol(),
		SeizedToken: collToken.Symbol(),
		TxHash:      receipt.TxHash.Hex(),
	}
	if err != nil {
		return e.onFailure(ctx, p, rec, err)
	}
	return e.onSuccess(ctx, p, loanToken, collToken, rec, receipt)
}

func (e *Engine) onSuccess(ctx context.Context, p domain.Position, loanToken, collToken domain.Token,
	rec domain.LiquidationRecord, receipt domain.Receipt) outcome {
	e.book.RemoveLiquidation(p.LoanID)
	e.mu.Lock()
	delete(e.errors, p.LoanID)
	e.mu.Unlock()

	rec.Status = domain.StatusSuccessful
	rec.Seized = domain.Zero()
	rec.Profit = domain.Zero()
	if ev := receipt.Liquidation; ev != nil {
		rec.Liquidatee = ev.User.Hex()
		rec.Amount = ev.RepayAmount
		rec.Seized = ev.CollateralOut
		rec.Profit = e.profit(ctx, loanToken, collToken, ev.RepayAmount, ev.CollateralOut)
	} else {
		slog.Warn("liquidation: receipt has no Liquidate event", "tx", rec.TxHash)
	}

	slog.Info("liquidation: success",
		"loan", p.LoanID.Short(),
		"tx", rec.TxHash,
		"seized", domain.FormatUnits(rec.Seized, 6),
		"profit", domain.FormatUnits(rec.Profit, 6),
		"token", collToken,
	)
	e.persist(ctx, rec)
	e.metrics.Attempt(name, string(domain.StatusSuccessful))
	return outcomeSucceeded
}

// onFailure re-reads the loan before touching the book: only a confirmed zero
// maxLiquidatable drops the entry.
func (e *Engine) onFailure(ctx context.Context, p domain.Position, rec domain.LiquidationRecord, cause error) outcome {
	rec.Status = domain.StatusFailed
	rec.Seized = domain.Zero()
	rec.Profit = domain.Zero()
	defer func() {
		e.persist(ctx, rec)
		e.metrics.Attempt(name, string(domain.StatusFailed))
	}()

	log := slog.With("loan", p.LoanID.Short(), "tx", rec.TxHash)
	current, err := e.chain.Loan(ctx, p.LoanID)
	if err != nil {
		log.Warn("liquidation: failed, re-check unavailable, keeping entry", "cause", cause, "err", err)
		return outcomeFailed
	}
	if !current.ShouldLiquidate() {
		log.Info("liquidation: failed, loan no longer liquidatable, dropping", "cause", cause)
		e.book.RemoveLiquidation(p.LoanID)
		return outcomeDropped
	}

	e.mu.Lock()
	e.errors[p.LoanID]++
	count := e.errors[p.LoanID]
	e.mu.Unlock()

	log.Error("liquidation: failed, loan still liquidatable", "cause", cause, "errors", count)
	e.alerter.Notify(ctx, fmt.Sprintf(
		"Liquidation of loan %s failed (%d in a row): %v. maxLiquidatable is still %s, manual intervention may be needed. tx %s",
		p.LoanID, count, cause, domain.FormatUnits(current.MaxLiquidatable, 6), rec.TxHash))
	return outcomeFailed
}

// pruneErrors forgets counters of loans that are no longer flagged.
func (e *Engine) pruneErrors(current []domain.Position) {
	flagged := make(map[domain.LoanID]struct{}, len(current))
	for _, p := range current {
		flagged[p.LoanID] = struct{}{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for id := range e.errors {
		if _, ok := flagged[id]; !ok {
			delete(e.errors, id)
		}
	}
}

// profit is seized collateral minus the repayment valued in collateral at the oracle rate.
func (e *Engine) profit(ctx context.Context, loanToken, collToken domain.Token, repaid, seized *big.Int) *big.Int {
	if repaid == nil || seized == nil {
		return domain.Zero()
	}
	cost := repaid
	if domain.PaymentToken(loanToken) != domain.PaymentToken(collToken) {
		quoted, err := e.chain.OracleReturn(ctx, loanToken, collToken, repaid)
		if err != nil {
			slog.Warn("liquidation: oracle unavailable, profit recorded as zero", "err", err)
			return domain.Zero()
		}
		cost = quoted
	}
	return new(big.Int).Sub(seized, cost)
}

func (e *Engine) persist(ctx context.Context, rec domain.LiquidationRecord) {
	if _, err := e.store.InsertLiquidation(context.WithoutCancel(ctx), rec); err != nil {
		slog.Error("liquidation: persist record", "loan", rec.LoanID, "err", err)
	}
}

func (e *Engine) skip(reason string) outcome {
	e.metrics.Skip(name, reason)
	return outcomeSkipped
}
