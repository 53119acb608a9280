package engine_test

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/application/engine"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/application/engine/enginetest"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/domain"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/wallet"
)

var signer = common.HexToAddress("0x1000000000000000000000000000000000000001")

func newExecutor() (*engine.Executor, *enginetest.Chain, *wallet.Manager) {
	chain := enginetest.NewChain()
	wallets := wallet.NewManager(chain, map[domain.Role][]common.Address{domain.RoleRollover: {signer}}, nil)
	return &engine.Executor{Chain: chain, Wallets: wallets}, chain, wallets
}

func testTx(id string) engine.Tx {
	return engine.Tx{
		Slot:     domain.WalletSlot{Role: domain.RoleRollover, Address: signer},
		ID:       id,
		Call:     domain.ContractCall{To: enginetest.ProtocolAddr, Data: []byte{1}},
		GasLimit: 21000,
		GasPrice: big.NewInt(1),
	}
}

func TestExecutor_UsesFreshNonceAndReleases(t *testing.T) {
	exec, chain, wallets := newExecutor()
	chain.Nonce = 42

	receipt, err := exec.Execute(context.Background(), testTx("a"))
	require.NoError(t, err)
	assert.True(t, receipt.Success)
	assert.NotEqual(t, common.Hash{}, receipt.TxHash)

	require.Len(t, chain.Submitted, 1)
	assert.Equal(t, uint64(42), chain.Submitted[0].Nonce)
	assert.Equal(t, signer, chain.Submitted[0].From)
	assert.Zero(t, wallets.QueueLen(domain.RoleRollover, signer))
}

func TestExecutor_RevertedReceipt(t *testing.T) {
	exec, chain, wallets := newExecutor()
	chain.Receipt = domain.Receipt{Success: false}

	receipt, err := exec.Execute(context.Background(), testTx("a"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrReverted)
	assert.NotErrorIs(t, err, engine.ErrNotSent)
	assert.NotEqual(t, common.Hash{}, receipt.TxHash)
	assert.Zero(t, wallets.QueueLen(domain.RoleRollover, signer))
}

func TestExecutor_SubmitRejected(t *testing.T) {
	exec, chain, wallets := newExecutor()
	chain.SubmitErr = errors.New("insufficient funds for gas")

	_, err := exec.Execute(context.Background(), testTx("a"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, engine.ErrNotSent)
	assert.Zero(t, wallets.QueueLen(domain.RoleRollover, signer))
}

func TestExecutor_ShutdownDuringWaitIsOutcomeUnknown(t *testing.T) {
	exec, chain, wallets := newExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	chain.OnSubmit = func(domain.TxRequest) { cancel() }
	chain.WaitErr = context.Canceled

	receipt, err := exec.Execute(ctx, testTx("a"))
	assert.ErrorIs(t, err, engine.ErrOutcomeUnknown)
	assert.NotErrorIs(t, err, engine.ErrNotSent)
	assert.NotEqual(t, common.Hash{}, receipt.TxHash)
	assert.Equal(t, 1, chain.SubmittedCount())
	assert.Zero(t, wallets.QueueLen(domain.RoleRollover, signer))
}

func TestExecutor_WaitErrorWithLiveContextIsFailure(t *testing.T) {
	exec, chain, _ := newExecutor()
	chain.WaitErr = domain.ErrUnavailable

	_, err := exec.Execute(context.Background(), testTx("a"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, engine.ErrOutcomeUnknown)
	assert.NotErrorIs(t, err, engine.ErrNotSent)
}

func TestExecutor_NonceFailureIsNotSent(t *testing.T) {
	exec, chain, wallets := newExecutor()
	chain.NonceErr = domain.ErrUnavailable

	_, err := exec.Execute(context.Background(), testTx("a"))
	assert.ErrorIs(t, err, engine.ErrNotSent)
	assert.Zero(t, chain.SubmittedCount())
	assert.Zero(t, wallets.QueueLen(domain.RoleRollover, signer))
}

func TestExecutor_FullQueueIsNotSent(t *testing.T) {
	exec, chain, wallets := newExecutor()
	for i := 0; i < domain.MaxPending; i++ {
		require.NoError(t, wallets.Enqueue(domain.RoleRollover, signer, string(rune('a'+i))))
	}

	_, err := exec.Execute(context.Background(), testTx("z"))
	assert.ErrorIs(t, err, engine.ErrNotSent)
	assert.ErrorIs(t, err, domain.ErrQueueFull)
	assert.Zero(t, chain.SubmittedCount())
	assert.Equal(t, domain.MaxPending, wallets.QueueLen(domain.RoleRollover, signer))
}

func TestGasCost(t *testing.T) {
	assert.Equal(t, "65000000000000", engine.GasCost(1_000_000, big.NewInt(65_000_000)).String())
}

func TestLoop_RunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var rounds atomic.Int32

	done := make(chan error, 1)
	go func() {
		done <- engine.Loop(ctx, "test", time.Millisecond, func(context.Context) error {
			if rounds.Add(1) == 3 {
				cancel()
			}
			return errors.New("round errors are logged, not fatal")
		})
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
	assert.GreaterOrEqual(t, rounds.Load(), int32(3))
}
