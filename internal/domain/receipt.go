package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ContractCall is an encoded call ready to be signed.
type ContractCall struct {
	To   common.Address
	Data []byte
}

// TxRequest carries everything needed to sign and send one transaction.
type TxRequest struct {
	From     common.Address
	Call     ContractCall
	Nonce    uint64
	GasLimit uint64
	GasPrice *big.Int
	Value    *big.Int
}

// Receipt is a mined transaction with the protocol events we care about decoded.
type Receipt struct {
	TxHash      common.Hash
	Success     bool
	GasUsed     uint64
	BlockNumber uint64

	Liquidation *LiquidationEvent
	Rollover    *RolloverEvent
	Conversion  *ConversionEvent
}

// LiquidationEvent is the protocol's Liquidate log.
type LiquidationEvent struct {
	User            common.Address
	Liquidator      common.Address
	LoanID          LoanID
	LoanToken       common.Address
	CollateralToken common.Address
	RepayAmount     *big.Int
	CollateralOut   *big.Int
}

// RolloverEvent is the protocol's Rollover log.
type RolloverEvent struct {
	User         common.Address
	Caller       common.Address
	LoanID       LoanID
	EndTimestamp *big.Int
	Reward       *big.Int
}

// ConversionEvent is the swap network's Conversion log.
type ConversionEvent struct {
	FromToken  common.Address
	ToToken    common.Address
	FromAmount *big.Int
	ToAmount   *big.Int
	Trader     common.Address
}
