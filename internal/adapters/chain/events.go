package chain

import (
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/domain"
)

// decodeReceipt converts a node receipt and picks out the first Liquidate,
// Rollover and Conversion logs emitted by the configured contracts.
func (g *Gateway) decodeReceipt(r *types.Receipt) domain.Receipt {
	out := domain.Receipt{
		TxHash:  r.TxHash,
		Success: r.Status == types.ReceiptStatusSuccessful,
		GasUsed: r.GasUsed,
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}

	for _, lg := range r.Logs {
		if lg == nil || len(lg.Topics) == 0 {
			continue
		}
		switch {
		case lg.Address == g.cfg.Protocol && lg.Topics[0] == protocolABI.Events["Liquidate"].ID && out.Liquidation == nil:
			ev, err := decodeLiquidate(lg)
			if err != nil {
				slog.Warn("chain: decode Liquidate", "tx", r.TxHash.Hex(), "err", err)
				continue
			}
			out.Liquidation = ev
		case lg.Address == g.cfg.Protocol && lg.Topics[0] == protocolABI.Events["Rollover"].ID && out.Rollover == nil:
			ev, err := decodeRollover(lg)
			if err != nil {
				slog.Warn("chain: decode Rollover", "tx", r.TxHash.Hex(), "err", err)
				continue
			}
			out.Rollover = ev
		case lg.Address == g.cfg.SwapNetwork && lg.Topics[0] == swapABI.Events["Conversion"].ID && out.Conversion == nil:
			ev, err := decodeConversion(lg)
			if err != nil {
				slog.Warn("chain: decode Conversion", "tx", r.TxHash.Hex(), "err", err)
				continue
			}
			out.Conversion = ev
		}
	}
	return out
}

func decodeLiquidate(lg *types.Log) (*domain.LiquidationEvent, error) {
	vals, err := unpackEvent(protocolABI, "Liquidate", lg, 3)
	if err != nil {
		return nil, err
	}
	// lender, loanToken, collateralToken, repayAmount, collateralWithdrawAmount, rate, margin
	return &domain.LiquidationEvent{
		User:            topicAddress(lg.Topics[1]),
		Liquidator:      topicAddress(lg.Topics[2]),
		LoanID:          domain.LoanID(lg.Topics[3]),
		LoanToken:       vals[1].(common.Address),
		CollateralToken: vals[2].(common.Address),
		RepayAmount:     vals[3].(*big.Int),
		CollateralOut:   vals[4].(*big.Int),
	}, nil
}

func decodeRollover(lg *types.Log) (*domain.RolloverEvent, error) {
	vals, err := unpackEvent(protocolABI, "Rollover", lg, 3)
	if err != nil {
		return nil, err
	}
	// lender, loanToken, collateralToken, collateral, endTimestamp, rewardReceiver, reward
	end, ok := vals[4].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("Rollover: endTimestamp is %T", vals[4])
	}
	reward, ok := vals[6].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("Rollover: reward is %T", vals[6])
	}
	return &domain.RolloverEvent{
		User:         topicAddress(lg.Topics[1]),
		Caller:       topicAddress(lg.Topics[2]),
		LoanID:       domain.LoanID(lg.Topics[3]),
		EndTimestamp: end,
		Reward:       reward,
	}, nil
}

func decodeConversion(lg *types.Log) (*domain.ConversionEvent, error) {
	vals, err := unpackEvent(swapABI, "Conversion", lg, 3)
	if err != nil {
		return nil, err
	}
	return &domain.ConversionEvent{
		FromToken:  topicAddress(lg.Topics[2]),
		ToToken:    topicAddress(lg.Topics[3]),
		FromAmount: vals[0].(*big.Int),
		ToAmount:   vals[1].(*big.Int),
		Trader:     vals[2].(common.Address),
	}, nil
}

func unpackEvent(contract abi.ABI, name string, lg *types.Log, indexed int) ([]any, error) {
	if len(lg.Topics) != indexed+1 {
		return nil, errTopics(name, len(lg.Topics))
	}
	vals, err := contract.Unpack(name, lg.Data)
	if err != nil {
		return nil, err
	}
	if want := len(contract.Events[name].Inputs.NonIndexed()); len(vals) != want {
		return nil, errFields(name, len(vals), want)
	}
	return vals, nil
}

func topicAddress(h common.Hash) common.Address {
	return common.BytesToAddress(h.Bytes())
}

func errTopics(name string, got int) error {
	return fmt.Errorf("%s: unexpected topic count %d", name, got)
}

func errFields(name string, got, want int) error {
	return fmt.Errorf("%s: got %d fields, want %d", name, got, want)
}
