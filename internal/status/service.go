// Package status is the read-only operator surface: current book counts,
// profit totals from the result store, and wallet balances and queues.
package status

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/domain"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/ports"
)

const (
	EngineLiquidation = "liquidation"
	EngineRollover    = "rollover"
	EngineArbitrage   = "arbitrage"
)

// Book is the read side of the position book.
type Book interface {
	Counts() (positions, liquidations int)
	Positions() []domain.Position
	Liquidations() []domain.Position
}

// Wallets is the read side of the wallet manager.
type Wallets interface {
	Wallets(role domain.Role) []domain.WalletSlot
	Snapshot() map[domain.Role]map[string]int
}

// Service derives operator views. It never mutates engine state.
type Service struct {
	book     Book
	wallets  Wallets
	balances ports.BalanceReader
	store    ports.ResultStore
	ready    func() bool
	now      func() time.Time
}

// NewService creates a Service. ready may be nil.
func NewService(book Book, wallets Wallets, balances ports.BalanceReader, store ports.ResultStore, ready func() bool) *Service {
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Service{
		book:     book,
		wallets:  wallets,
		balances: balances,
		store:    store,
		ready:    ready,
		now:      time.Now,
	}
}

// Overview is the /api/status payload.
type Overview struct {
	Ready               bool      `json:"ready"`
	OpenPositions       int       `json:"open_positions"`
	PendingLiquidations int       `json:"pending_liquidations"`
	Time                time.Time `json:"time"`
}

// Overview returns the book counts.
func (s *Service) Overview() Overview {
	positions, liquidations := s.book.Counts()
	return Overview{
		Ready:               s.ready(),
		OpenPositions:       positions,
		PendingLiquidations: liquidations,
		Time:                s.now().UTC(),
	}
}

// OpenPositions returns the number of tracked open loans.
func (s *Service) OpenPositions() int {
	n, _ := s.book.Counts()
	return n
}

// PendingLiquidations returns the number of flagged loans.
func (s *Service) PendingLiquidations() int {
	_, n := s.book.Counts()
	return n
}

// PositionView is one tracked loan with amounts in token units.
type PositionView struct {
	LoanID          string `json:"loan_id"`
	LoanToken       string `json:"loan_token"`
	CollateralToken string `json:"collateral_token"`
	Principal       string `json:"principal"`
	Collateral      string `json:"collateral"`
	MaxLiquidatable string `json:"max_liquidatable"`
	EndTimestamp    int64  `json:"end_timestamp"`
	Liquidatable    bool   `json:"liquidatable"`
}

// Positions returns every tracked position, or only the flagged ones.
func (s *Service) Positions(onlyLiquidatable bool) []PositionView {
	src := s.book.Positions()
	if onlyLiquidatable {
		src = s.book.Liquidations()
	}
	out := make([]PositionView, 0, len(src))
	for _, p := range src {
		out = append(out, PositionView{
			LoanID:          p.LoanID.String(),
			LoanToken:       p.LoanToken.Hex(),
			CollateralToken: p.CollateralToken.Hex(),
			Principal:       domain.FormatUnits(p.Principal, 6),
			Collateral:      domain.FormatUnits(p.Collateral, 6),
			MaxLiquidatable: domain.FormatUnits(p.MaxLiquidatable, 6),
			EndTimestamp:    p.EndTimestamp,
			Liquidatable:    p.ShouldLiquidate(),
		})
	}
	return out
}

// ProfitLine aggregates one engine's attempts in one token.
type ProfitLine struct {
	Engine    string `json:"engine"`
	Token     string `json:"token,omitempty"`
	Attempts  int    `json:"attempts"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Volume    string `json:"volume"`
	Profit    string `json:"profit"`
}

// Profits holds totals over all time and over the trailing 24 hours.
type Profits struct {
	AllTime []ProfitLine `json:"all_time"`
	Last24h []ProfitLine `json:"last_24h"`
}

// Profits aggregates the result store.
func (s *Service) Profits(ctx context.Context) (Profits, error) {
	all, err := s.totals(ctx, time.Time{})
	if err != nil {
		return Profits{}, err
	}
	day, err := s.totals(ctx, s.now().Add(-24*time.Hour))
	if err != nil {
		return Profits{}, err
	}
	return Profits{AllTime: all, Last24h: day}, nil
}

type tally struct {
	attempts, succeeded, failed int
	volume, profit              *big.Int
}

func (t *tally) add(status domain.Status, volume, profit *big.Int) {
	t.attempts++
	if status != domain.StatusSuccessful {
		t.failed++
		return
	}
	t.succeeded++
	if volume != nil {
		t.volume.Add(t.volume, volume)
	}
	if profit != nil {
		t.profit.Add(t.profit, profit)
	}
}

func (s *Service) totals(ctx context.Context, since time.Time) ([]ProfitLine, error) {
	type key struct{ engine, token string }
	tallies := make(map[key]*tally)
	get := func(k key) *tally {
		t, ok := tallies[k]
		if !ok {
			t = &tally{volume: new(big.Int), profit: new(big.Int)}
			tallies[k] = t
		}
		return t
	}

	liqs, err := s.store.Liquidations(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("status: liquidations: %w", err)
	}
	for _, r := range liqs {
		get(key{EngineLiquidation, r.SeizedToken}).add(r.Status, r.Seized, r.Profit)
	}

	arbs, err := s.store.Arbitrages(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("status: arbitrages: %w", err)
	}
	for _, r := range arbs {
		get(key{EngineArbitrage, r.ToToken}).add(r.Status, r.ToAmount, r.Profit)
	}

	rolls, err := s.store.Rollovers(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("status: rollovers: %w", err)
	}
	for _, r := range rolls {
		get(key{EngineRollover, ""}).add(r.Status, nil, nil)
	}

	out := make([]ProfitLine, 0, len(tallies))
	for k, t := range tallies {
		out = append(out, ProfitLine{
			Engine:    k.engine,
			Token:     k.token,
			Attempts:  t.attempts,
			Succeeded: t.succeeded,
			Failed:    t.failed,
			Volume:    domain.FormatUnits(t.volume, 6),
			Profit:    domain.FormatUnits(t.profit, 6),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Engine != out[j].Engine {
			return out[i].Engine < out[j].Engine
		}
		return out[i].Token < out[j].Token
	})
	return out, nil
}

// WalletView is one configured wallet. Balance is empty when it could not be read.
type WalletView struct {
	Role    domain.Role `json:"role"`
	Address string      `json:"address"`
	Balance string      `json:"rbtc_balance"`
	Pending int         `json:"pending"`
}

// Wallets returns the native balance and queue depth of every configured wallet.
func (s *Service) Wallets(ctx context.Context) []WalletView {
	queues := s.wallets.Snapshot()
	var out []WalletView
	for _, role := range domain.Roles() {
		for _, w := range s.wallets.Wallets(role) {
			v := WalletView{Role: role, Address: w.Address.Hex(), Pending: queues[role][w.Address.Hex()]}
			if bal, err := s.balances.Balance(ctx, domain.RBTC, w.Address); err == nil {
				v.Balance = domain.FormatUnits(bal, 6)
			}
			out = append(out, v)
		}
	}
	return out
}
