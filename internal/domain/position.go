package domain

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// LoanID is the protocol's 32-byte loan identifier.
type LoanID [32]byte

// ParseLoanID decodes a 0x-prefixed 64 hex character string.
func ParseLoanID(s string) (LoanID, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 64 {
		return LoanID{}, fmt.Errorf("expected 64 hex chars, got %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return LoanID{}, err
	}
	var id LoanID
	copy(id[:], b)
	return id, nil
}

// IsZero reports whether id is the all-zero padding value.
func (id LoanID) IsZero() bool { return id == LoanID{} }

func (id LoanID) String() string { return "0x" + hex.EncodeToString(id[:]) }

// Short is a log-friendly prefix of the id.
func (id LoanID) Short() string { return id.String()[:12] + "..." }

// Position is the scanner's latest read of one open loan.
type Position struct {
	LoanID            LoanID
	LoanToken         common.Address
	CollateralToken   common.Address
	Principal         *big.Int
	Collateral        *big.Int
	CurrentMargin     *big.Int
	MaintenanceMargin *big.Int
	MaxLiquidatable   *big.Int
	MaxSeizable       *big.Int
	EndTimestamp      int64 // unix seconds
}

// ShouldLiquidate is true when the protocol allows closing any part of the loan.
func (p Position) ShouldLiquidate() bool {
	return p.MaxLiquidatable != nil && p.MaxLiquidatable.Sign() > 0
}

// Expired reports whether the loan term is over at now.
func (p Position) Expired(now time.Time) bool {
	return now.Unix() >= p.EndTimestamp
}
