package storage

// sqlite.go: append-only record of every liquidation, rollover and arbitrage attempt.
//
// Amounts are stored as base-10 TEXT so 18-decimal values survive untouched.
// Timestamps are unix seconds.

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/domain"
	_ "modernc.org/sqlite"
)

// Table names.
const (
	TableLiquidator = "liquidator"
	TableArbitrage  = "arbitrage"
	TableRollover   = "rollover"
)

const schema = `
CREATE TABLE IF NOT EXISTS liquidator (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    status       TEXT    NOT NULL,
    liquidator   TEXT    NOT NULL,
    liquidatee   TEXT    NOT NULL DEFAULT '',
    loan_id      TEXT    NOT NULL,
    amount       TEXT    NOT NULL DEFAULT '0',
    amount_token TEXT    NOT NULL DEFAULT '',
    seized       TEXT    NOT NULL DEFAULT '0',
    seized_token TEXT    NOT NULL DEFAULT '',
    profit       TEXT    NOT NULL DEFAULT '0',
    tx_hash      TEXT    NOT NULL DEFAULT '',
    created_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS arbitrage (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    status      TEXT    NOT NULL,
    wallet      TEXT    NOT NULL,
    from_token  TEXT    NOT NULL,
    to_token    TEXT    NOT NULL,
    from_amount TEXT    NOT NULL DEFAULT '0',
    to_amount   TEXT    NOT NULL DEFAULT '0',
    profit      TEXT    NOT NULL DEFAULT '0',
    trade       TEXT    NOT NULL DEFAULT '',
    tx_hash     TEXT    NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS rollover (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    status     TEXT    NOT NULL,
    rollover   TEXT    NOT NULL,
    borrower   TEXT    NOT NULL DEFAULT '',
    loan_id    TEXT    NOT NULL,
    tx_hash    TEXT    NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_liquidator_at ON liquidator(created_at);
CREATE INDEX IF NOT EXISTS idx_arbitrage_at  ON arbitrage(created_at);
CREATE INDEX IF NOT EXISTS idx_rollover_at   ON rollover(created_at);
`

// SQLiteStore implements ports.ResultStore using SQLite (pure Go, no CGo).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and applies the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InsertLiquidation appends a liquidation attempt.
func (s *SQLiteStore) InsertLiquidation(ctx context.Context, rec domain.LiquidationRecord) (domain.LiquidationRecord, error) {
	rec.CreatedAt = stamp(rec.CreatedAt)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO liquidator
			(status, liquidator, liquidatee, loan_id, amount, amount_token,
			 seized, seized_token, profit, tx_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(rec.Status), rec.Liquidator, rec.Liquidatee, rec.LoanID,
		amountText(rec.Amount), rec.AmountToken, amountText(rec.Seized), rec.SeizedToken,
		amountText(rec.Profit), rec.TxHash, rec.CreatedAt.Unix(),
	)
	if err != nil {
		return rec, fmt.Errorf("storage.InsertLiquidation: %w", err)
	}
	rec.ID, err = res.LastInsertId()
	if err != nil {
		return rec, fmt.Errorf("storage.InsertLiquidation: last id: %w", err)
	}
	return rec, nil
}

// InsertRollover appends a rollover attempt.
func (s *SQLiteStore) InsertRollover(ctx context.Context, rec domain.RolloverRecord) (domain.RolloverRecord, error) {
	rec.CreatedAt = stamp(rec.CreatedAt)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO rollover (status, rollover, borrower, loan_id, tx_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(rec.Status), rec.Rollover, rec.Borrower, rec.LoanID, rec.TxHash, rec.CreatedAt.Unix(),
	)
	if err != nil {
		return rec, fmt.Errorf("storage.InsertRollover: %w", err)
	}
	rec.ID, err = res.LastInsertId()
	if err != nil {
		return rec, fmt.Errorf("storage.InsertRollover: last id: %w", err)
	}
	return rec, nil
}

// InsertArbitrage appends an arbitrage attempt.
func (s *SQLiteStore) InsertArbitrage(ctx context.Context, rec domain.ArbitrageRecord) (domain.ArbitrageRecord, error) {
	rec.CreatedAt = stamp(rec.CreatedAt)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO arbitrage
			(status, wallet, from_token, to_token, from_amount, to_amount, profit, trade, tx_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(rec.Status), rec.Wallet, rec.FromToken, rec.ToToken,
		amountText(rec.FromAmount), amountText(rec.ToAmount), amountText(rec.Profit),
		rec.Trade, rec.TxHash, rec.CreatedAt.Unix(),
	)
	if err != nil {
		return rec, fmt.Errorf("storage.InsertArbitrage: %w", err)
	}
	rec.ID, err = res.LastInsertId()
	if err != nil {
		return rec, fmt.Errorf("storage.InsertArbitrage: last id: %w", err)
	}
	return rec, nil
}

// Liquidations returns liquidation records created at or after since, oldest first.
func (s *SQLiteStore) Liquidations(ctx context.Context, since time.Time) ([]domain.LiquidationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, liquidator, liquidatee, loan_id, amount, amount_token,
		       seized, seized_token, profit, tx_hash, created_at
		FROM liquidator WHERE created_at >= ? ORDER BY id`, sinceUnix(since))
	if err != nil {
		return nil, fmt.Errorf("storage.Liquidations: %w", err)
	}
	defer rows.Close()

	var out []domain.LiquidationRecord
	for rows.Next() {
		var (
			rec                    domain.LiquidationRecord
			status                 string
			amount, seized, profit string
			createdAt              int64
		)
		if err := rows.Scan(&rec.ID, &status, &rec.Liquidator, &rec.Liquidatee, &rec.LoanID,
			&amount, &rec.AmountToken, &seized, &rec.SeizedToken, &profit, &rec.TxHash, &createdAt); err != nil {
			return nil, fmt.Errorf("storage.Liquidations: scan: %w", err)
		}
		rec.Status = domain.Status(status)
		if rec.Amount, err = parseAmount(amount); err != nil {
			return nil, fmt.Errorf("storage.Liquidations: row %d: %w", rec.ID, err)
		}
		if rec.Seized, err = parseAmount(seized); err != nil {
			return nil, fmt.Errorf("storage.Liquidations: row %d: %w", rec.ID, err)
		}
		if rec.Profit, err = parseAmount(profit); err != nil {
			return nil, fmt.Errorf("storage.Liquidations: row %d: %w", rec.ID, err)
		}
		rec.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Rollovers returns rollover records created at or after since, oldest first.
func (s *SQLiteStore) Rollovers(ctx context.Context, since time.Time) ([]domain.RolloverRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, rollover, borrower, loan_id, tx_hash, created_at
		FROM rollover WHERE created_at >= ? ORDER BY id`, sinceUnix(since))
	if err != nil {
		return nil, fmt.Errorf("storage.Rollovers: %w", err)
	}
	defer rows.Close()

	var out []domain.RolloverRecord
	for rows.Next() {
		var (
			rec       domain.RolloverRecord
			status    string
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &status, &rec.Rollover, &rec.Borrower, &rec.LoanID, &rec.TxHash, &createdAt); err != nil {
			return nil, fmt.Errorf("storage.Rollovers: scan: %w", err)
		}
		rec.Status = domain.Status(status)
		rec.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Arbitrages returns arbitrage records created at or after since, oldest first.
func (s *SQLiteStore) Arbitrages(ctx context.Context, since time.Time) ([]domain.ArbitrageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, wallet, from_token, to_token, from_amount, to_amount, profit, trade, tx_hash, created_at
		FROM arbitrage WHERE created_at >= ? ORDER BY id`, sinceUnix(since))
	if err != nil {
		return nil, fmt.Errorf("storage.Arbitrages: %w", err)
	}
	defer rows.Close()

	var out []domain.ArbitrageRecord
	for rows.Next() {
		var (
			rec                    domain.ArbitrageRecord
			status                 string
			fromAmt, toAmt, profit string
			createdAt              int64
		)
		if err := rows.Scan(&rec.ID, &status, &rec.Wallet, &rec.FromToken, &rec.ToToken,
			&fromAmt, &toAmt, &profit, &rec.Trade, &rec.TxHash, &createdAt); err != nil {
			return nil, fmt.Errorf("storage.Arbitrages: scan: %w", err)
		}
		rec.Status = domain.Status(status)
		if rec.FromAmount, err = parseAmount(fromAmt); err != nil {
			return nil, fmt.Errorf("storage.Arbitrages: row %d: %w", rec.ID, err)
		}
		if rec.ToAmount, err = parseAmount(toAmt); err != nil {
			return nil, fmt.Errorf("storage.Arbitrages: row %d: %w", rec.ID, err)
		}
		if rec.Profit, err = parseAmount(profit); err != nil {
			return nil, fmt.Errorf("storage.Arbitrages: row %d: %w", rec.ID, err)
		}
		rec.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// stamp defaults to now and drops sub-second precision so a read returns the same value.
func stamp(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Truncate(time.Second)
}

func sinceUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func amountText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}
