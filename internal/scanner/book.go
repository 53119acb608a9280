package scanner

import (
	"bytes"
	"slices"
	"sync"

	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/domain"
)

// PositionBook owns the open-position and liquidation maps shared between the
// scanner (writer) and the engines (readers). Liquidations is always a subset
// of positions.
type PositionBook struct {
	mu           sync.RWMutex
	positions    map[domain.LoanID]domain.Position
	liquidations map[domain.LoanID]domain.Position
}

func NewPositionBook() *PositionBook {
	return &PositionBook{
		positions:    make(map[domain.LoanID]domain.Position),
		liquidations: make(map[domain.LoanID]domain.Position),
	}
}

// Upsert overwrites every position of page. A position is flagged for
// liquidation exactly when its maxLiquidatable is positive. Zero ids are
// padding and are ignored. Returns the ids written.
func (b *PositionBook) Upsert(page []domain.Position) []domain.LoanID {
	b.mu.Lock()
	defer b.mu.Unlock()

	written := make([]domain.LoanID, 0, len(page))
	for _, p := range page {
		if p.LoanID.IsZero() {
			continue
		}
		b.positions[p.LoanID] = p
		if p.ShouldLiquidate() {
			b.liquidations[p.LoanID] = p
		} else {
			delete(b.liquidations, p.LoanID)
		}
		written = append(written, p.LoanID)
	}
	return written
}

// Prune drops every position not in seen, together with its liquidation entry.
func (b *PositionBook) Prune(seen map[domain.LoanID]struct{}) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for id := range b.positions {
		if _, ok := seen[id]; ok {
			continue
		}
		delete(b.positions, id)
		delete(b.liquidations, id)
		removed++
	}
	return removed
}

// RemoveLiquidation unflags a loan after the liquidation engine confirmed its outcome.
func (b *PositionBook) RemoveLiquidation(id domain.LoanID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.liquidations, id)
}

// Position returns the latest read of one loan.
func (b *PositionBook) Position(id domain.LoanID) (domain.Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.positions[id]
	return p, ok
}

// IsFlagged reports whether id is in the liquidation map.
func (b *PositionBook) IsFlagged(id domain.LoanID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.liquidations[id]
	return ok
}

// Positions returns a snapshot of all open positions ordered by loan id.
func (b *PositionBook) Positions() []domain.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sorted(b.positions)
}

// Liquidations returns a snapshot of the flagged positions ordered by loan id.
func (b *PositionBook) Liquidations() []domain.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sorted(b.liquidations)
}

// Counts returns the sizes of both maps.
func (b *PositionBook) Counts() (positions, liquidations int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.positions), len(b.liquidations)
}

func sorted(m map[domain.LoanID]domain.Position) []domain.Position {
	out := make([]domain.Position, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.Position) int {
		return bytes.Compare(a.LoanID[:], b.LoanID[:])
	})
	return out
}
