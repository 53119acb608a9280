package ports

import (
	"context"
	"time"

	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/domain"
)

// ResultStore persists one record per liquidation, rollover and arbitrage attempt.
type ResultStore interface {
	// Insert* store the record and return it with its assigned ID.
	InsertLiquidation(ctx context.Context, rec domain.LiquidationRecord) (domain.LiquidationRecord, error)
	InsertRollover(ctx context.Context, rec domain.RolloverRecord) (domain.RolloverRecord, error)
	InsertArbitrage(ctx context.Context, rec domain.ArbitrageRecord) (domain.ArbitrageRecord, error)

	// Queries return every record created at or after since. A zero since returns all.
	Liquidations(ctx context.Context, since time.Time) ([]domain.LiquidationRecord, error)
	Rollovers(ctx context.Context, since time.Time) ([]domain.RolloverRecord, error)
	Arbitrages(ctx context.Context, since time.Time) ([]domain.ArbitrageRecord, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
