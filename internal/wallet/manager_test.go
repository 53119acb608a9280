package wallet_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/domain"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/wallet"
)

// --- mocks ---

type mockBalances struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	failing  map[common.Address]bool
}

func (m *mockBalances) Balance(_ context.Context, _ domain.Token, owner common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing[owner] {
		return nil, fmt.Errorf("rpc: %w", domain.ErrUnavailable)
	}
	if b, ok := m.balances[owner]; ok {
		return b, nil
	}
	return new(big.Int), nil
}

// --- helpers ---

var (
	w1 = common.HexToAddress("0x1000000000000000000000000000000000000001")
	w2 = common.HexToAddress("0x2000000000000000000000000000000000000002")
	w3 = common.HexToAddress("0x3000000000000000000000000000000000000003")
)

func newManager(balances map[common.Address]*big.Int, addrs ...common.Address) (*wallet.Manager, *mockBalances) {
	mb := &mockBalances{balances: balances, failing: map[common.Address]bool{}}
	return wallet.NewManager(mb, map[domain.Role][]common.Address{domain.RoleLiquidator: addrs}, nil), mb
}

func fill(t *testing.T, m *wallet.Manager, addr common.Address, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, m.Enqueue(domain.RoleLiquidator, addr, fmt.Sprintf("id-%s-%d", addr.Hex()[:6], i)))
	}
}

// --- tests ---

func TestManager_Acquire_FullQueueNotSelectable(t *testing.T) {
	m, _ := newManager(map[common.Address]*big.Int{w1: big.NewInt(1_000_000)}, w1)
	fill(t, m, w1, domain.MaxPending)

	_, _, ok := m.Acquire(context.Background(), domain.RoleLiquidator, big.NewInt(0), domain.RBTC)
	assert.False(t, ok)
}

func TestManager_Acquire_PriorityOrder(t *testing.T) {
	m, _ := newManager(map[common.Address]*big.Int{
		w1: big.NewInt(50),
		w2: big.NewInt(200),
		w3: big.NewInt(300),
	}, w1, w2, w3)

	slot, bal, ok := m.Acquire(context.Background(), domain.RoleLiquidator, big.NewInt(100), domain.DOC)
	require.True(t, ok)
	assert.Equal(t, w2, slot.Address)
	assert.Equal(t, domain.RoleLiquidator, slot.Role)
	assert.Equal(t, "200", bal.String())
}

func TestManager_Acquire_FallsBackToAnyPositiveBalance(t *testing.T) {
	m, _ := newManager(map[common.Address]*big.Int{
		w1: big.NewInt(0),
		w2: big.NewInt(10),
	}, w1, w2)

	slot, bal, ok := m.Acquire(context.Background(), domain.RoleLiquidator, big.NewInt(1000), domain.DOC)
	require.True(t, ok)
	assert.Equal(t, w2, slot.Address)
	assert.Equal(t, "10", bal.String())
}

func TestManager_Acquire_AllEmpty(t *testing.T) {
	m, _ := newManager(nil, w1, w2)
	_, _, ok := m.Acquire(context.Background(), domain.RoleLiquidator, big.NewInt(1), domain.DOC)
	assert.False(t, ok)
}

func TestManager_Acquire_ZeroMinimumReturnsFirstEligible(t *testing.T) {
	m, _ := newManager(map[common.Address]*big.Int{w2: big.NewInt(5)}, w1, w2)

	slot, bal, ok := m.Acquire(context.Background(), domain.RoleLiquidator, big.NewInt(0), domain.DOC)
	require.True(t, ok)
	assert.Equal(t, w1, slot.Address)
	assert.Equal(t, 0, bal.Sign())
}

func TestManager_Acquire_SkipsUnreadableWallet(t *testing.T) {
	m, mb := newManager(map[common.Address]*big.Int{
		w1: big.NewInt(1000),
		w2: big.NewInt(1000),
	}, w1, w2)
	mb.failing[w1] = true

	slot, _, ok := m.Acquire(context.Background(), domain.RoleLiquidator, big.NewInt(1), domain.DOC)
	require.True(t, ok)
	assert.Equal(t, w2, slot.Address)
}

func TestManager_Acquire_UnknownRole(t *testing.T) {
	m, _ := newManager(map[common.Address]*big.Int{w1: big.NewInt(1)}, w1)
	_, _, ok := m.Acquire(context.Background(), domain.RoleArbitrage, big.NewInt(0), domain.RBTC)
	assert.False(t, ok)
}

func TestManager_Enqueue_RefusesFifth(t *testing.T) {
	m, _ := newManager(nil, w1)
	fill(t, m, w1, domain.MaxPending)

	err := m.Enqueue(domain.RoleLiquidator, w1, "one-too-many")
	assert.True(t, errors.Is(err, domain.ErrQueueFull))
	assert.Equal(t, domain.MaxPending, m.QueueLen(domain.RoleLiquidator, w1))
}

func TestManager_Enqueue_UnknownWallet(t *testing.T) {
	m, _ := newManager(nil, w1)
	assert.Error(t, m.Enqueue(domain.RoleLiquidator, w2, "x"))
	assert.Error(t, m.Enqueue(domain.RoleRollover, w1, "x"))
}

func TestManager_Release_IsIdempotent(t *testing.T) {
	m, _ := newManager(nil, w1)
	require.NoError(t, m.Enqueue(domain.RoleLiquidator, w1, "a"))
	require.NoError(t, m.Enqueue(domain.RoleLiquidator, w1, "b"))

	m.Release(domain.RoleLiquidator, w1, "a")
	assert.Equal(t, 1, m.QueueLen(domain.RoleLiquidator, w1))

	m.Release(domain.RoleLiquidator, w1, "a")
	assert.Equal(t, 1, m.QueueLen(domain.RoleLiquidator, w1))
	assert.True(t, m.HasPendingID(domain.RoleLiquidator, "b"))
}

func TestManager_Release_FirstMatchOnly(t *testing.T) {
	m, _ := newManager(nil, w1)
	require.NoError(t, m.Enqueue(domain.RoleLiquidator, w1, "dup"))
	require.NoError(t, m.Enqueue(domain.RoleLiquidator, w1, "dup"))

	m.Release(domain.RoleLiquidator, w1, "dup")
	assert.Equal(t, 1, m.QueueLen(domain.RoleLiquidator, w1))
	assert.True(t, m.HasPendingID(domain.RoleLiquidator, "dup"))
}

func TestManager_HasPendingID(t *testing.T) {
	m, _ := newManager(nil, w1, w2)
	assert.False(t, m.HasPendingID(domain.RoleLiquidator, "loan"))

	require.NoError(t, m.Enqueue(domain.RoleLiquidator, w2, "loan"))
	assert.True(t, m.HasPendingID(domain.RoleLiquidator, "loan"))
	assert.False(t, m.HasPendingID(domain.RoleRollover, "loan"))

	m.Release(domain.RoleLiquidator, w2, "loan")
	assert.False(t, m.HasPendingID(domain.RoleLiquidator, "loan"))
}

func TestManager_Snapshot(t *testing.T) {
	m, _ := newManager(nil, w1, w2)
	require.NoError(t, m.Enqueue(domain.RoleLiquidator, w2, "x"))

	snap := m.Snapshot()
	assert.Equal(t, 0, snap[domain.RoleLiquidator][w1.Hex()])
	assert.Equal(t, 1, snap[domain.RoleLiquidator][w2.Hex()])
}

func TestManager_QueueNeverExceedsCeilingUnderContention(t *testing.T) {
	m, _ := newManager(map[common.Address]*big.Int{w1: big.NewInt(1)}, w1)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := m.Enqueue(domain.RoleLiquidator, w1, fmt.Sprintf("id-%d", i)); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
			assert.LessOrEqual(t, m.QueueLen(domain.RoleLiquidator, w1), domain.MaxPending)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, domain.MaxPending, accepted)
	assert.Equal(t, domain.MaxPending, m.QueueLen(domain.RoleLiquidator, w1))
}
