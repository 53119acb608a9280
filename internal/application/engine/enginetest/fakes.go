// Package enginetest provides in-memory fakes of the chain, result store and
// alerter for engine tests.
package enginetest

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/domain"
)

var (
	ProtocolAddr = common.HexToAddress("0x5A0D867e0D70Fcc6Ade25C3F1B89d618b5B4Eaa7")
	SwapAddr     = common.HexToAddress("0x98aCE08D2b759a265ae326F010496bcD63C15afc")
)

// Chain is a scriptable ports.Chain.
type Chain struct {
	mu sync.Mutex

	Balances   map[common.Address]map[domain.Token]*big.Int
	BalanceErr error
	Staked     map[common.Address]map[domain.Token]*big.Int
	Loans      map[domain.LoanID]domain.Position
	LoanErr    error
	AmmOut     *big.Int
	OracleOut  *big.Int
	QuoteErr   error
	// OracleFor overrides OracleOut for specific input amounts, keyed by amount.String().
	OracleFor  map[string]*big.Int
	Gas        *big.Int
	Nonce      uint64
	NonceErr   error
	SubmitErr  error
	Receipt    domain.Receipt
	WaitErr    error

	// OnSubmit runs before Submit returns, e.g. to inspect wallet queues.
	OnSubmit func(domain.TxRequest)

	Submitted []domain.TxRequest
	LoanReads int
}

// NewChain returns a chain with a 1 gwei gas price and a successful receipt.
func NewChain() *Chain {
	return &Chain{
		Balances: make(map[common.Address]map[domain.Token]*big.Int),
		Staked:   make(map[common.Address]map[domain.Token]*big.Int),
		Loans:    make(map[domain.LoanID]domain.Position),
		Gas:      big.NewInt(1_000_000_000),
		Receipt:  domain.Receipt{Success: true},
	}
}

// SetBalance sets owner's balance of token.
func (c *Chain) SetBalance(owner common.Address, token domain.Token, v *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Balances[owner] == nil {
		c.Balances[owner] = make(map[domain.Token]*big.Int)
	}
	c.Balances[owner][token] = v
}

// SetStaked sets a pool's staked balance of token.
func (c *Chain) SetStaked(pool common.Address, token domain.Token, v *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Staked[pool] == nil {
		c.Staked[pool] = make(map[domain.Token]*big.Int)
	}
	c.Staked[pool][token] = v
}

func (c *Chain) Balance(_ context.Context, token domain.Token, owner common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.BalanceErr != nil {
		return nil, c.BalanceErr
	}
	if v, ok := c.Balances[owner][token]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (c *Chain) ActiveLoans(_ context.Context, _, _ uint64) ([]domain.Position, error) {
	return nil, nil
}

func (c *Chain) Loan(_ context.Context, id domain.LoanID) (domain.Position, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LoanReads++
	if c.LoanErr != nil {
		return domain.Position{}, c.LoanErr
	}
	p, ok := c.Loans[id]
	if !ok {
		return domain.Position{LoanID: id, MaxLiquidatable: new(big.Int)}, nil
	}
	return p, nil
}

func (c *Chain) StakedBalance(_ context.Context, pool common.Address, token domain.Token) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.BalanceErr != nil {
		return nil, c.BalanceErr
	}
	if v, ok := c.Staked[pool][token]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (c *Chain) AmmReturn(_ context.Context, _, _ domain.Token, _ *big.Int) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.QuoteErr != nil {
		return nil, c.QuoteErr
	}
	return c.AmmOut, nil
}

func (c *Chain) OracleReturn(_ context.Context, _, _ domain.Token, amount *big.Int) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.QuoteErr != nil {
		return nil, c.QuoteErr
	}
	if v, ok := c.OracleFor[amount.String()]; ok {
		return v, nil
	}
	return c.OracleOut, nil
}

func (c *Chain) PendingNonce(_ context.Context, _ common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Nonce, c.NonceErr
}

func (c *Chain) GasPrice(_ context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.Gas), nil
}

func (c *Chain) LiquidateCall(id domain.LoanID, receiver common.Address, amount *big.Int) (domain.ContractCall, error) {
	return domain.ContractCall{To: ProtocolAddr, Data: []byte(fmt.Sprintf("liquidate:%s:%s:%s", id, receiver.Hex(), amount))}, nil
}

func (c *Chain) RolloverCall(id domain.LoanID) (domain.ContractCall, error) {
	return domain.ContractCall{To: ProtocolAddr, Data: []byte("rollover:" + id.String())}, nil
}

func (c *Chain) SwapCall(_ context.Context, src, dst domain.Token, amount, minReturn *big.Int, _ common.Address) (domain.ContractCall, error) {
	return domain.ContractCall{To: SwapAddr, Data: []byte(fmt.Sprintf("swap:%s:%s:%s:%s", src, dst, amount, minReturn))}, nil
}

func (c *Chain) Submit(_ context.Context, req domain.TxRequest) (common.Hash, error) {
	if c.OnSubmit != nil {
		c.OnSubmit(req)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Submitted = append(c.Submitted, req)
	if c.SubmitErr != nil {
		return common.Hash{}, c.SubmitErr
	}
	return common.BigToHash(big.NewInt(int64(len(c.Submitted)))), nil
}

func (c *Chain) WaitReceipt(_ context.Context, hash common.Hash) (domain.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.WaitErr != nil {
		return domain.Receipt{}, c.WaitErr
	}
	r := c.Receipt
	r.TxHash = hash
	return r, nil
}

// SubmittedCount returns how many transactions were submitted.
func (c *Chain) SubmittedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Submitted)
}

// Store is an in-memory ports.ResultStore.
type Store struct {
	mu           sync.Mutex
	nextID       int64
	liquidations []domain.LiquidationRecord
	rollovers    []domain.RolloverRecord
	arbitrages   []domain.ArbitrageRecord
}

func (s *Store) InsertLiquidation(_ context.Context, rec domain.LiquidationRecord) (domain.LiquidationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec.ID = s.nextID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	s.liquidations = append(s.liquidations, rec)
	return rec, nil
}

func (s *Store) InsertRollover(_ context.Context, rec domain.RolloverRecord) (domain.RolloverRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec.ID = s.nextID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	s.rollovers = append(s.rollovers, rec)
	return rec, nil
}

func (s *Store) InsertArbitrage(_ context.Context, rec domain.ArbitrageRecord) (domain.ArbitrageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec.ID = s.nextID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	s.arbitrages = append(s.arbitrages, rec)
	return rec, nil
}

func (s *Store) Liquidations(_ context.Context, since time.Time) ([]domain.LiquidationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.LiquidationRecord
	for _, r := range s.liquidations {
		if !r.CreatedAt.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) Rollovers(_ context.Context, since time.Time) ([]domain.RolloverRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.RolloverRecord
	for _, r := range s.rollovers {
		if !r.CreatedAt.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) Arbitrages(_ context.Context, since time.Time) ([]domain.ArbitrageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ArbitrageRecord
	for _, r := range s.arbitrages {
		if !r.CreatedAt.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) Close() error { return nil }

// Alerter records alerts synchronously.
type Alerter struct {
	mu       sync.Mutex
	messages []string
}

func (a *Alerter) Notify(_ context.Context, msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, msg)
}

// Messages returns the alerts received so far.
func (a *Alerter) Messages() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.messages...)
}
