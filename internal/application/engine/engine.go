package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/domain"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/ports"
)

// ErrNotSent marks a failure that happened before the transaction reached the
// node. Nothing changed on chain, so callers simply retry next round.
var ErrNotSent = errors.New("transaction not sent")

// ErrOutcomeUnknown marks a broadcast transaction whose receipt wait was cut
// short by shutdown. It may still be mined, so callers must not record it.
var ErrOutcomeUnknown = errors.New("transaction outcome unknown")

// WalletPool is the part of *wallet.Manager the engines use.
type WalletPool interface {
	Acquire(ctx context.Context, role domain.Role, minBalance *big.Int, token domain.Token) (domain.WalletSlot, *big.Int, bool)
	Enqueue(role domain.Role, addr common.Address, id string) error
	Release(role domain.Role, addr common.Address, id string)
	HasPendingID(role domain.Role, id string) bool
}

// Loop runs round every interval until ctx is cancelled. A failing round is
// logged and does not stop the loop.
func Loop(ctx context.Context, name string, interval time.Duration, round func(context.Context) error) error {
	slog.Info(name+": starting", "interval", interval)
	for {
		start := time.Now()
		if err := round(ctx); err != nil && ctx.Err() == nil {
			slog.Error(name+": round failed", "err", err)
		}
		slog.Debug(name+": round done", "duration", time.Since(start).Round(time.Millisecond))

		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			slog.Info(name + ": stopped")
			return nil
		case <-t.C:
		}
	}
}

// Executor runs the enqueue → nonce → submit → receipt → release sequence for one transaction.
type Executor struct {
	Chain   ports.TxSender
	Wallets WalletPool
}

// Tx describes one transaction for Execute.
type Tx struct {
	Slot     domain.WalletSlot
	ID       string // loan id or opaque tag held in the wallet queue
	Call     domain.ContractCall
	GasLimit uint64
	GasPrice *big.Int
	Value    *big.Int
}

// Execute reserves the wallet slot, fetches a fresh nonce, submits and waits
// for the receipt. The slot is always released before returning.
//
// Errors wrapping ErrNotSent mean the transaction never left the process.
// A mined but failed transaction returns its receipt and an error wrapping
// domain.ErrReverted. Errors wrapping ErrOutcomeUnknown mean the transaction
// was broadcast but ctx ended before its receipt arrived. Any other error means
// the submission was rejected or the receipt could not be read.
func (e *Executor) Execute(ctx context.Context, tx Tx) (domain.Receipt, error) {
	role, addr := tx.Slot.Role, tx.Slot.Address

	if err := e.Wallets.Enqueue(role, addr, tx.ID); err != nil {
		return domain.Receipt{}, fmt.Errorf("%w: %w", ErrNotSent, err)
	}
	defer e.Wallets.Release(role, addr, tx.ID)

	nonce, err := e.Chain.PendingNonce(ctx, addr)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("%w: nonce: %w", ErrNotSent, err)
	}

	hash, err := e.Chain.Submit(ctx, domain.TxRequest{
		From:     addr,
		Call:     tx.Call,
		Nonce:    nonce,
		GasLimit: tx.GasLimit,
		GasPrice: tx.GasPrice,
		Value:    tx.Value,
	})
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("submit: %w", err)
	}
	slog.Info("engine: tx sent", "role", role, "wallet", addr.Hex(), "id", tx.ID, "nonce", nonce, "tx", hash.Hex())

	receipt, err := e.Chain.WaitReceipt(ctx, hash)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Receipt{TxHash: hash}, fmt.Errorf("%w: tx %s: %w", ErrOutcomeUnknown, hash.Hex(), err)
		}
		return domain.Receipt{TxHash: hash}, fmt.Errorf("wait receipt %s: %w", hash.Hex(), err)
	}
	if !receipt.Success {
		return receipt, fmt.Errorf("tx %s: %w", hash.Hex(), domain.ErrReverted)
	}
	return receipt, nil
}

// GasCost returns gasLimit * gasPrice.
func GasCost(gasLimit uint64, gasPrice *big.Int) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(gasLimit), gasPrice)
}
