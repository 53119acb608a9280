package rollover

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/adapters/metrics"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/application/engine"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/domain"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/ports"
)

const name = "rollover"

// Config holds rollover engine settings.
type Config struct {
	Interval time.Duration
	GasLimit uint64
	// Dust is the principal, per loan token, at or below which a loan is not worth rolling.
	Dust map[domain.Token]*big.Int
}

// Positions is the read side of the position book.
type Positions interface {
	Positions() []domain.Position
}

// RoundResult summarises one rollover round.
type RoundResult struct {
	Expired   int
	Skipped   int
	Succeeded int
	Failed    int
}

// Engine rolls over expired loans.
type Engine struct {
	cfg       Config
	chain     ports.Chain
	positions Positions
	wallets   engine.WalletPool
	exec      *engine.Executor
	tokens    *domain.TokenRegistry
	store     ports.ResultStore
	metrics   *metrics.Collector
	now       func() time.Time

	mu     sync.Mutex
	rolled map[domain.LoanID]int64 // endTimestamp seen when the rollover succeeded
}

// New creates a rollover engine.
func New(cfg Config, chain ports.Chain, positions Positions, wallets engine.WalletPool, tokens *domain.TokenRegistry,
	store ports.ResultStore, m *metrics.Collector) *Engine {
	return &Engine{
		cfg:       cfg,
		chain:     chain,
		positions: positions,
		wallets:   wallets,
		exec:      &engine.Executor{Chain: chain, Wallets: wallets},
		tokens:    tokens,
		store:     store,
		metrics:   m,
		now:       time.Now,
		rolled:    make(map[domain.LoanID]int64),
	}
}

// SetClock replaces the engine's time source. Tests only.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Run loops RunOnce every cfg.Interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	return engine.Loop(ctx, name, e.cfg.Interval, func(ctx context.Context) error {
		res := e.RunOnce(ctx)
		if res.Expired > 0 {
			slog.Info("rollover: round", "expired", res.Expired, "ok", res.Succeeded, "failed", res.Failed, "skipped", res.Skipped)
		}
		return nil
	})
}

// RunOnce rolls over every expired, non-dust position in the book.
func (e *Engine) RunOnce(ctx context.Context) RoundResult {
	now := e.now()
	all := e.positions.Positions()
	e.pruneMemo(all)

	var res RoundResult
	for _, p := range all {
		if ctx.Err() != nil {
			break
		}
		if !p.Expired(now) {
			continue
		}
		if !e.aboveDust(p) {
			continue
		}
		res.Expired++
		switch e.process(ctx, p) {
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

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSucceeded
	outcomeFailed
)

func (e *Engine) aboveDust(p domain.Position) bool {
	if p.Principal == nil {
		return false
	}
	token, ok := e.tokens.ByAddress(p.LoanToken)
	if !ok {
		slog.Warn("rollover: unknown loan token", "loan", p.LoanID.Short(), "address", p.LoanToken.Hex())
		return false
	}
	dust := e.cfg.Dust[token]
	if dust == nil {
		dust = domain.Zero()
	}
	return p.Principal.Cmp(dust) > 0
}

func (e *Engine) process(ctx context.Context, p domain.Position) outcome {
	id := p.LoanID.String()
	log := slog.With("loan", p.LoanID.Short())

	e.mu.Lock()
	end, done := e.rolled[p.LoanID]
	e.mu.Unlock()
	if done && end == p.EndTimestamp {
		log.Debug("rollover: already rolled, waiting for scanner refresh")
		return e.skip("already_rolled")
	}
	if e.wallets.HasPendingID(domain.RoleRollover, id) {
		return e.skip("pending")
	}

	gasPrice, err := e.chain.GasPrice(ctx)
	if err != nil {
		log.Warn("rollover: gas price unavailable", "err", err)
		return e.skip("unavailable")
	}
	gasCost := engine.GasCost(e.cfg.GasLimit, gasPrice)

	slot, balance, ok := e.wallets.Acquire(ctx, domain.RoleRollover, gasCost, domain.RBTC)
	if !ok {
		log.Info("rollover: no wallet available")
		return e.skip("no_wallet")
	}
	if balance.Cmp(gasCost) < 0 {
		log.Info("rollover: not enough rbtc for gas", "wallet", slot.Address.Hex(), "balance", domain.FormatUnits(balance, 6))
		return e.skip("gas")
	}

	call, err := e.chain.RolloverCall(p.LoanID)
	if err != nil {
		log.Error("rollover: build call", "err", err)
		return e.skip("call")
	}

	receipt, err := e.exec.Execute(ctx, engine.Tx{
		Slot:     slot,
		ID:       id,
		Call:     call,
		GasLimit: e.cfg.GasLimit,
		GasPrice: gasPrice,
	})
	if errors.Is(err, engine.ErrNotSent) {
		log.Warn("rollover: not sent, retrying next round", "err", err)
		return e.skip("not_sent")
	}
	if errors.Is(err, engine.ErrOutcomeUnknown) {
		log.Warn("rollover: shutdown before receipt, outcome unknown", "tx", receipt.TxHash.Hex(), "err", err)
		return e.skip("outcome_unknown")
	}

	rec := domain.RolloverRecord{
		Rollover: slot.Address.Hex(),
		LoanID:   id,
		TxHash:   receipt.TxHash.Hex(),
	}
	if err != nil {
		// The loan stays open and is retried next round.
		log.Warn("rollover: failed", "wallet", slot.Address.Hex(), "tx", rec.TxHash, "err", err)
		rec.Status = domain.StatusFailed
		e.persist(ctx, rec)
		e.metrics.Attempt(name, string(domain.StatusFailed))
		return outcomeFailed
	}

	rec.Status = domain.StatusSuccessful
	if ev := receipt.Rollover; ev != nil {
		rec.Borrower = ev.User.Hex()
	} else {
		log.Warn("rollover: receipt has no Rollover event", "tx", rec.TxHash)
	}
	e.mu.Lock()
	e.rolled[p.LoanID] = p.EndTimestamp
	e.mu.Unlock()

	log.Info("rollover: success", "wallet", slot.Address.Hex(), "borrower", rec.Borrower, "tx", rec.TxHash)
	e.persist(ctx, rec)
	e.metrics.Attempt(name, string(domain.StatusSuccessful))
	return outcomeSucceeded
}

// pruneMemo forgets loans that left the book or whose term moved on.
func (e *Engine) pruneMemo(current []domain.Position) {
	ends := make(map[domain.LoanID]int64, len(current))
	for _, p := range current {
		ends[p.LoanID] = p.EndTimestamp
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, end := range e.rolled {
		if cur, ok := ends[id]; !ok || cur != end {
			delete(e.rolled, id)
		}
	}
}

func (e *Engine) persist(ctx context.Context, rec domain.RolloverRecord) {
	if _, err := e.store.InsertRollover(context.WithoutCancel(ctx), rec); err != nil {
		slog.Error("rollover: persist record", "loan", rec.LoanID, "err", err)
	}
}

func (e *Engine) skip(reason string) outcome {
	e.metrics.Skip(name, reason)
	return outcomeSkipped
}
