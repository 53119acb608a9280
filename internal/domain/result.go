package domain

import (
	"math/big"
	"time"
)

// Status is the outcome of one attempt.
type Status string

const (
	StatusSuccessful Status = "successful"
	StatusFailed     Status = "failed"
)

// LiquidationRecord is one row of the liquidator table.
type LiquidationRecord struct {
	ID          int64
	Status      Status
	Liquidator  string // wallet address
	Liquidatee  string // borrower address, empty when unknown
	LoanID      string
	Amount      *big.Int // repaid, loan token units
	AmountToken string
	Seized      *big.Int // collateral token units
	SeizedToken string
	Profit      *big.Int // collateral token units
	TxHash      string
	CreatedAt   time.Time
}

// RolloverRecord is one row of the rollover table.
type RolloverRecord struct {
	ID        int64
	Status    Status
	Rollover  string // wallet address
	Borrower  string
	LoanID    string
	TxHash    string
	CreatedAt time.Time
}

// ArbitrageRecord is one row of the arbitrage table.
type ArbitrageRecord struct {
	ID         int64
	Status     Status
	Wallet     string
	FromToken  string
	ToToken    string
	FromAmount *big.Int
	ToAmount   *big.Int
	Profit     *big.Int // to-token units, against the oracle quote
	Trade      string
	TxHash     string
	CreatedAt  time.Time
}
