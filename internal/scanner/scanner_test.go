package scanner_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/domain"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/scanner"
)

// --- mocks ---

// mockLoans serves pages keyed by start index. failures[start] makes the first
// N reads of that window fail.
type mockLoans struct {
	mu       sync.Mutex
	pages    map[uint64][]domain.Position
	failures map[uint64]int
	reads    []uint64
}

func (m *mockLoans) ActiveLoans(_ context.Context, start, _ uint64) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads = append(m.reads, start)
	if m.failures[start] > 0 {
		m.failures[start]--
		return nil, errors.New("node timeout")
	}
	return m.pages[start], nil
}

func (m *mockLoans) Loan(_ context.Context, _ domain.LoanID) (domain.Position, error) {
	return domain.Position{}, domain.ErrUnavailable
}

func (m *mockLoans) setPages(pages map[uint64][]domain.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages = pages
}

// --- helpers ---

func pos(id byte, maxLiq int64) domain.Position {
	return domain.Position{
		LoanID:          domain.LoanID{id},
		Principal:       big.NewInt(1000),
		MaxLiquidatable: big.NewInt(maxLiq),
	}
}

func newTestScanner(loans *mockLoans, pageSize uint64) (*scanner.Scanner, *scanner.PositionBook) {
	book := scanner.NewPositionBook()
	cfg := scanner.Config{PageSize: pageSize, RetryPause: time.Millisecond}
	return scanner.New(cfg, loans, book, nil), book
}

func ids(ps []domain.Position) []domain.LoanID {
	out := make([]domain.LoanID, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.LoanID)
	}
	return out
}

func assertSubset(t *testing.T, book *scanner.PositionBook) {
	t.Helper()
	for _, l := range book.Liquidations() {
		_, ok := book.Position(l.LoanID)
		assert.True(t, ok, "liquidation %s missing from positions", l.LoanID)
		assert.True(t, l.ShouldLiquidate())
	}
}

// --- tests ---

func TestScanner_Sweep_BuildsPositionsAndLiquidations(t *testing.T) {
	loanA, loanB := pos(0xa, 100), pos(0xb, 0)
	loans := &mockLoans{pages: map[uint64][]domain.Position{0: {loanA, loanB}}}
	s, book := newTestScanner(loans, 2)

	require.NoError(t, s.Sweep(context.Background()))

	assert.ElementsMatch(t, []domain.LoanID{loanA.LoanID, loanB.LoanID}, ids(book.Positions()))
	assert.Equal(t, []domain.LoanID{loanA.LoanID}, ids(book.Liquidations()))
	assert.Equal(t, []uint64{0, 2}, loans.reads)
	assert.True(t, s.Ready())
	assertSubset(t, book)
}

func TestScanner_Sweep_PagesUntilEmpty(t *testing.T) {
	loans := &mockLoans{pages: map[uint64][]domain.Position{
		0: {pos(1, 0), pos(2, 0)},
		2: {pos(3, 0), pos(4, 5)},
		4: {pos(5, 0)},
	}}
	s, book := newTestScanner(loans, 2)

	require.NoError(t, s.Sweep(context.Background()))

	n, l := book.Counts()
	assert.Equal(t, 5, n)
	assert.Equal(t, 1, l)
	assert.Equal(t, []uint64{0, 2, 4, 6}, loans.reads)
}

func TestScanner_Sweep_RetriesSameWindow(t *testing.T) {
	loans := &mockLoans{
		pages: map[uint64][]domain.Position{
			0: {pos(1, 0), pos(2, 0)},
			2: {pos(3, 7)},
		},
		failures: map[uint64]int{2: 2},
	}
	s, book := newTestScanner(loans, 2)

	require.NoError(t, s.Sweep(context.Background()))

	assert.Equal(t, []uint64{0, 2, 2, 2, 4}, loans.reads)
	n, l := book.Counts()
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, l)
}

func TestScanner_Sweep_SkipsZeroLoanID(t *testing.T) {
	padding := domain.Position{MaxLiquidatable: big.NewInt(9)}
	loans := &mockLoans{pages: map[uint64][]domain.Position{0: {pos(1, 0), padding}}}
	s, book := newTestScanner(loans, 2)

	require.NoError(t, s.Sweep(context.Background()))

	n, l := book.Counts()
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, l)
}

func TestScanner_Sweep_RebuildsEveryCycle(t *testing.T) {
	loans := &mockLoans{pages: map[uint64][]domain.Position{0: {pos(1, 10), pos(2, 0)}}}
	s, book := newTestScanner(loans, 10)
	require.NoError(t, s.Sweep(context.Background()))

	// loan 1 repaid and closed, loan 2 became liquidatable
	loans.setPages(map[uint64][]domain.Position{0: {pos(2, 40)}})
	require.NoError(t, s.Sweep(context.Background()))

	assert.Equal(t, []domain.LoanID{{2}}, ids(book.Positions()))
	assert.Equal(t, []domain.LoanID{{2}}, ids(book.Liquidations()))
	assert.Equal(t, int64(2), s.Cycles())
	assertSubset(t, book)
}

func TestScanner_Sweep_UnflagsHealthyPosition(t *testing.T) {
	loans := &mockLoans{pages: map[uint64][]domain.Position{0: {pos(1, 10)}}}
	s, book := newTestScanner(loans, 10)
	require.NoError(t, s.Sweep(context.Background()))
	require.True(t, book.IsFlagged(domain.LoanID{1}))

	loans.setPages(map[uint64][]domain.Position{0: {pos(1, 0)}})
	require.NoError(t, s.Sweep(context.Background()))

	assert.False(t, book.IsFlagged(domain.LoanID{1}))
	_, ok := book.Position(domain.LoanID{1})
	assert.True(t, ok)
}

func TestScanner_Sweep_CancelledDuringRetry(t *testing.T) {
	loans := &mockLoans{failures: map[uint64]int{0: 1_000_000}}
	book := scanner.NewPositionBook()
	s := scanner.New(scanner.Config{PageSize: 5, RetryPause: 10 * time.Millisecond}, loans, book, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := s.Sweep(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, s.Ready())
}

func TestScanner_Run_StopsOnCancel(t *testing.T) {
	loans := &mockLoans{pages: map[uint64][]domain.Position{0: {pos(1, 0)}}}
	book := scanner.NewPositionBook()
	s := scanner.New(scanner.Config{PageSize: 5, WaitBetweenRounds: time.Hour}, loans, book, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, s.Ready, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scanner did not stop")
	}
}

func TestPositionBook_RemoveLiquidationKeepsPosition(t *testing.T) {
	book := scanner.NewPositionBook()
	book.Upsert([]domain.Position{pos(1, 5)})

	book.RemoveLiquidation(domain.LoanID{1})

	n, l := book.Counts()
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, l)
}
