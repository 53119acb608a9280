package chain

// tx.go: write side of the client (calldata, signing, broadcast, receipts).

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/domain"
)

const approvalGasLimit = uint64(80_000)

// LiquidateCall encodes protocol.liquidate(loanId, receiver, closeAmount).
func (g *Gateway) LiquidateCall(id domain.LoanID, receiver common.Address, amount *big.Int) (domain.ContractCall, error) {
	data, err := protocolABI.Pack("liquidate", [32]byte(id), receiver, amount)
	if err != nil {
		return domain.ContractCall{}, fmt.Errorf("chain.LiquidateCall: pack: %w", err)
	}
	return domain.ContractCall{To: g.cfg.Protocol, Data: data}, nil
}

// RolloverCall encodes protocol.rollover(loanId, "") with empty auxiliary data.
func (g *Gateway) RolloverCall(id domain.LoanID) (domain.ContractCall, error) {
	data, err := protocolABI.Pack("rollover", [32]byte(id), []byte{})
	if err != nil {
		return domain.ContractCall{}, fmt.Errorf("chain.RolloverCall: pack: %w", err)
	}
	return domain.ContractCall{To: g.cfg.Protocol, Data: data}, nil
}

// SwapCall resolves the conversion path and encodes convertByPath. A native
// source must be sent as the transaction value by the caller.
func (g *Gateway) SwapCall(ctx context.Context, src, dst domain.Token, amount, minReturn *big.Int, beneficiary common.Address) (domain.ContractCall, error) {
	path, err := g.conversionPath(ctx, src, dst)
	if err != nil {
		return domain.ContractCall{}, err
	}
	data, err := swapABI.Pack("convertByPath", path, amount, minReturn, beneficiary, common.Address{}, big.NewInt(0))
	if err != nil {
		return domain.ContractCall{}, fmt.Errorf("chain.SwapCall: pack: %w", err)
	}
	return domain.ContractCall{To: g.cfg.SwapNetwork, Data: data}, nil
}

// Submit signs req with the key registered for req.From and broadcasts it.
func (g *Gateway) Submit(ctx context.Context, req domain.TxRequest) (common.Hash, error) {
	key, ok := g.keys.key(req.From)
	if !ok {
		return common.Hash{}, fmt.Errorf("chain.Submit: no key for %s", req.From.Hex())
	}
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	to := req.Call.To
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    req.Nonce,
		To:       &to,
		Value:    value,
		Gas:      req.GasLimit,
		GasPrice: req.GasPrice,
		Data:     req.Call.Data,
	})

	signed, err := types.SignTx(tx, types.NewEIP155Signer(g.chainID), key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain.Submit: sign tx: %w", err)
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return common.Hash{}, fmt.Errorf("chain.Submit: %w", err)
	}
	if err := g.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("chain.Submit: send tx: %w", err)
	}

	slog.Debug("chain: transaction sent", "from", req.From.Hex(), "nonce", req.Nonce, "tx", signed.Hash().Hex())
	return signed.Hash(), nil
}

// WaitReceipt polls until the transaction is mined. There is no timeout other than ctx.
func (g *Gateway) WaitReceipt(ctx context.Context, hash common.Hash) (domain.Receipt, error) {
	ticker := time.NewTicker(g.cfg.ReceiptPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return domain.Receipt{}, ctx.Err()
		case <-ticker.C:
			if err := g.limiter.Wait(ctx); err != nil {
				return domain.Receipt{}, err
			}
			receipt, err := g.backend.TransactionReceipt(ctx, hash)
			if err != nil {
				if !errors.Is(err, ethereum.NotFound) {
					slog.Debug("chain: receipt poll failed", "tx", hash.Hex(), "err", err)
				}
				continue // not yet mined
			}
			return g.decodeReceipt(receipt), nil
		}
	}
}

// EnsureApprovals grants spender an unlimited allowance of every configured
// ERC20 token from owner, skipping tokens already approved. Runs before the
// engines start so its nonces never race with theirs.
func (g *Gateway) EnsureApprovals(ctx context.Context, owner, spender common.Address) error {
	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	threshold := new(big.Int).Rsh(maxUint256, 1)

	for _, t := range domain.AllTokens() {
		addr, ok := g.tokens.Address(t)
		if !ok || t.IsNative() {
			continue
		}
		vals, err := g.call(ctx, addr, erc20ABI, "allowance", owner, spender)
		if err != nil {
			return fmt.Errorf("chain.EnsureApprovals: %s allowance: %w", t, err)
		}
		allowance, err := firstInt(vals)
		if err != nil {
			return fmt.Errorf("chain.EnsureApprovals: %s allowance: %w", t, err)
		}
		if allowance.Cmp(threshold) >= 0 {
			slog.Debug("chain: allowance sufficient", "token", t, "owner", owner.Hex())
			continue
		}

		data, err := erc20ABI.Pack("approve", spender, maxUint256)
		if err != nil {
			return fmt.Errorf("chain.EnsureApprovals: pack: %w", err)
		}
		nonce, err := g.PendingNonce(ctx, owner)
		if err != nil {
			return fmt.Errorf("chain.EnsureApprovals: %w", err)
		}
		gasPrice, err := g.GasPrice(ctx)
		if err != nil {
			return fmt.Errorf("chain.EnsureApprovals: %w", err)
		}
		hash, err := g.Submit(ctx, domain.TxRequest{
			From:     owner,
			Call:     domain.ContractCall{To: addr, Data: data},
			Nonce:    nonce,
			GasLimit: approvalGasLimit,
			GasPrice: gasPrice,
		})
		if err != nil {
			return fmt.Errorf("chain.EnsureApprovals: %s approve: %w", t, err)
		}
		receipt, err := g.WaitReceipt(ctx, hash)
		if err != nil {
			return fmt.Errorf("chain.EnsureApprovals: wait receipt: %w", err)
		}
		if !receipt.Success {
			return fmt.Errorf("chain.EnsureApprovals: %s approve %s: %w", t, hash.Hex(), domain.ErrReverted)
		}
		slog.Info("chain: approval set", "token", t, "owner", owner.Hex(), "spender", spender.Hex())
	}
	return nil
}
