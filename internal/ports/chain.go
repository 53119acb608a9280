package ports

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/domain"
)

// BalanceReader reads account balances.
type BalanceReader interface {
	// Balance returns the native balance for domain.RBTC and the ERC20 balance otherwise.
	// Failures wrap domain.ErrUnavailable.
	Balance(ctx context.Context, token domain.Token, owner common.Address) (*big.Int, error)
}

// LoanReader reads loan state from the lending protocol.
type LoanReader interface {
	// ActiveLoans returns up to count open loans starting at index start.
	// An empty slice means the end of the list was reached.
	ActiveLoans(ctx context.Context, start, count uint64) ([]domain.Position, error)

	// Loan re-reads a single loan.
	Loan(ctx context.Context, id domain.LoanID) (domain.Position, error)
}

// PriceReader quotes the AMM and the oracle.
type PriceReader interface {
	// StakedBalance returns the pool's virtual reserve for token.
	StakedBalance(ctx context.Context, pool common.Address, token domain.Token) (*big.Int, error)

	// AmmReturn is what the swap network would pay out for amount of src.
	AmmReturn(ctx context.Context, src, dst domain.Token, amount *big.Int) (*big.Int, error)

	// OracleReturn is what the price feed values amount of src at, in dst units.
	OracleReturn(ctx context.Context, src, dst domain.Token, amount *big.Int) (*big.Int, error)
}

// TxSender builds, signs and tracks transactions.
type TxSender interface {
	PendingNonce(ctx context.Context, account common.Address) (uint64, error)

	// GasPrice is the node suggestion with the configured buffer applied.
	GasPrice(ctx context.Context) (*big.Int, error)

	LiquidateCall(id domain.LoanID, receiver common.Address, amount *big.Int) (domain.ContractCall, error)
	RolloverCall(id domain.LoanID) (domain.ContractCall, error)
	SwapCall(ctx context.Context, src, dst domain.Token, amount, minReturn *big.Int, beneficiary common.Address) (domain.ContractCall, error)

	// Submit signs req with the key of req.From and broadcasts it.
	Submit(ctx context.Context, req domain.TxRequest) (common.Hash, error)

	// WaitReceipt blocks until the transaction is mined or ctx is done.
	WaitReceipt(ctx context.Context, hash common.Hash) (domain.Receipt, error)
}

// Chain is the full gateway the engines run against.
type Chain interface {
	BalanceReader
	LoanReader
	PriceReader
	TxSender
}
