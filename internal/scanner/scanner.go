package scanner

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/adapters/metrics"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/domain"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/ports"
)

// Config controls paging and pacing of the sweep.
type Config struct {
	PageSize          uint64
	WaitBetweenRounds time.Duration
	RetryPause        time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		PageSize:          50,
		WaitBetweenRounds: 60 * time.Second,
		RetryPause:        time.Second,
	}
}

// Scanner pages through the protocol's open loans and keeps the PositionBook
// in line with chain state.
//
// Paging restarts at 0 every cycle and the protocol may reorder loans between
// reads, so a loan can move pages or be missed if it opens and closes within
// one cycle. Consumers re-validate on chain before acting.
type Scanner struct {
	cfg     Config
	loans   ports.LoanReader
	book    *PositionBook
	metrics *metrics.Collector

	cycles atomic.Int64
}

// New creates a Scanner writing into book.
func New(cfg Config, loans ports.LoanReader, book *PositionBook, m *metrics.Collector) *Scanner {
	if cfg.PageSize == 0 {
		cfg.PageSize = DefaultConfig().PageSize
	}
	return &Scanner{cfg: cfg, loans: loans, book: book, metrics: m}
}

// Run sweeps until ctx is cancelled, pausing WaitBetweenRounds after each full cycle.
func (s *Scanner) Run(ctx context.Context) error {
	slog.Info("scanner: starting", "page_size", s.cfg.PageSize, "wait", s.cfg.WaitBetweenRounds)

	for {
		if err := s.Sweep(ctx); err != nil {
			if ctx.Err() != nil {
				slog.Info("scanner: stopped")
				return nil
			}
			slog.Error("scanner: sweep failed", "err", err)
		}
		if !sleep(ctx, s.cfg.WaitBetweenRounds) {
			slog.Info("scanner: stopped")
			return nil
		}
	}
}

// Sweep runs one full cycle from index 0 to the first empty page. A failed page
// read is retried with the same window. When the cycle completes, positions not
// seen during it are dropped, so the book is rebuilt every cycle without ever
// being empty mid-sweep.
func (s *Scanner) Sweep(ctx context.Context) error {
	start := time.Now()
	seen := make(map[domain.LoanID]struct{})
	from := uint64(0)

	for {
		to := from + s.cfg.PageSize
		page, err := s.loans.ActiveLoans(ctx, from, s.cfg.PageSize)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("scanner: page read failed, retrying", "from", from, "to", to, "err", err)
			s.metrics.PageRetry()
			if !sleep(ctx, s.cfg.RetryPause) {
				return ctx.Err()
			}
			continue
		}
		if len(page) == 0 {
			break
		}

		for _, id := range s.book.Upsert(page) {
			seen[id] = struct{}{}
		}
		from = to
	}

	removed := s.book.Prune(seen)
	positions, liquidations := s.book.Counts()
	s.cycles.Add(1)
	s.metrics.CycleDone()
	s.metrics.SetBook(positions, liquidations)

	slog.Info("scanner: cycle complete",
		"positions", positions,
		"liquidations", liquidations,
		"removed", removed,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// Cycles returns the number of completed sweeps.
func (s *Scanner) Cycles() int64 { return s.cycles.Load() }

// Ready reports whether at least one full sweep completed.
func (s *Scanner) Ready() bool { return s.Cycles() > 0 }

// sleep waits d or until ctx is done. It returns false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
