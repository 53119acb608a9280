// Package wallet hands out signing wallets per role and keeps each wallet
// under the chain's limit of in-flight transactions.
package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/adapters/metrics"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/domain"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/ports"
)

// Manager owns the per-role wallet lists and their pending queues.
type Manager struct {
	balances ports.BalanceReader
	metrics  *metrics.Collector
	wallets  map[domain.Role][]domain.WalletSlot

	mu     sync.Mutex
	queues map[domain.Role]map[common.Address][]string
}

// NewManager registers wallets in priority order per role, each with an empty queue.
func NewManager(balances ports.BalanceReader, wallets map[domain.Role][]common.Address, m *metrics.Collector) *Manager {
	mgr := &Manager{
		balances: balances,
		metrics:  m,
		wallets:  make(map[domain.Role][]domain.WalletSlot, len(wallets)),
		queues:   make(map[domain.Role]map[common.Address][]string, len(wallets)),
	}
	for role, addrs := range wallets {
		mgr.queues[role] = make(map[common.Address][]string, len(addrs))
		for _, a := range addrs {
			mgr.wallets[role] = append(mgr.wallets[role], domain.WalletSlot{Role: role, Address: a})
			mgr.queues[role][a] = nil
		}
	}
	return mgr
}

// Wallets returns the configured wallets of role in priority order.
func (m *Manager) Wallets(role domain.Role) []domain.WalletSlot {
	return append([]domain.WalletSlot(nil), m.wallets[role]...)
}

// Acquire picks a wallet of role that has queue capacity. It prefers the first
// wallet holding at least minBalance of token and otherwise falls back to the
// first one holding any. The returned balance is the one the decision was made on.
// ok is false when every wallet is busy or empty; that is not an error.
//
// A wallet whose balance cannot be read is skipped for this call.
func (m *Manager) Acquire(ctx context.Context, role domain.Role, minBalance *big.Int, token domain.Token) (domain.WalletSlot, *big.Int, bool) {
	if minBalance == nil {
		minBalance = new(big.Int)
	}

	type candidate struct {
		slot    domain.WalletSlot
		balance *big.Int
	}
	var eligible []candidate
	for _, w := range m.wallets[role] {
		if m.QueueLen(role, w.Address) >= domain.MaxPending {
			continue
		}
		bal, err := m.balances.Balance(ctx, token, w.Address)
		if err != nil {
			slog.Warn("wallet: balance unavailable, skipping", "role", role, "address", w.Address.Hex(), "token", token, "err", err)
			continue
		}
		eligible = append(eligible, candidate{slot: w, balance: bal})
	}

	for _, c := range eligible {
		if c.balance.Cmp(minBalance) >= 0 {
			return c.slot, c.balance, true
		}
	}
	for _, c := range eligible {
		if c.balance.Sign() > 0 {
			return c.slot, c.balance, true
		}
	}
	return domain.WalletSlot{}, nil, false
}

// Enqueue records id as in flight for the wallet. It must be called before the
// transaction is submitted. It refuses to exceed domain.MaxPending.
func (m *Manager) Enqueue(role domain.Role, addr common.Address, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byAddr, ok := m.queues[role]
	if !ok {
		return fmt.Errorf("wallet.Enqueue: unknown role %q", role)
	}
	q, ok := byAddr[addr]
	if !ok {
		return fmt.Errorf("wallet.Enqueue: %s is not a %s wallet", addr.Hex(), role)
	}
	if len(q) >= domain.MaxPending {
		return fmt.Errorf("wallet.Enqueue: %s: %w", addr.Hex(), domain.ErrQueueFull)
	}
	byAddr[addr] = append(q, id)
	m.metrics.SetQueue(string(role), addr.Hex(), len(byAddr[addr]))
	return nil
}

// Release removes the first occurrence of id. Releasing an absent id is a no-op.
func (m *Manager) Release(role domain.Role, addr common.Address, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queues[role][addr]
	for i, v := range q {
		if v == id {
			m.queues[role][addr] = append(q[:i:i], q[i+1:]...)
			m.metrics.SetQueue(string(role), addr.Hex(), len(m.queues[role][addr]))
			return
		}
	}
}

// HasPendingID reports whether any wallet of role has id in flight.
func (m *Manager) HasPendingID(role domain.Role, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, q := range m.queues[role] {
		for _, v := range q {
			if v == id {
				return true
			}
		}
	}
	return false
}

// QueueLen returns the number of in-flight transactions of a wallet.
func (m *Manager) QueueLen(role domain.Role, addr common.Address) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[role][addr])
}

// Snapshot returns queue lengths per role and wallet address.
func (m *Manager) Snapshot() map[domain.Role]map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[domain.Role]map[string]int, len(m.queues))
	for role, byAddr := range m.queues {
		out[role] = make(map[string]int, len(byAddr))
		for addr, q := range byAddr {
			out[role][addr.Hex()] = len(q)
		}
	}
	return out
}
