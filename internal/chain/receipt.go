package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Receipt is the mined outcome of a submitted transaction.
type Receipt struct {
	TxHash  string
	Success bool
	Logs    []*types.Log
}

// WaitMined polls for the transaction receipt until it appears or the bounded
// wait elapses. A timeout means the outcome is unknown, not that the
// transaction failed; callers must treat it as ambiguous and reconcile later.
func (c *Client) WaitMined(ctx context.Context, txHash string) (*Receipt, error) {
	hash := common.HexToHash(txHash)

	ctx, cancel := context.WithTimeout(ctx, c.waitTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			return &Receipt{
				TxHash:  txHash,
				Success: receipt.Status == types.ReceiptStatusSuccessful,
				Logs:    receipt.Logs,
			}, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("%w: receipt: %v", ErrWalletUnavailable, err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrConfirmationTimeout, txHash)
		case <-ticker.C:
		}
	}
}

// DepositInfo is parsed from the lending contract's DepositCreated event:
// the on-chain contract id and the repayment deadline.
type DepositInfo struct {
	ContractID string
	Deadline   time.Time
}

// ParseDepositCreated extracts the DepositCreated event from a deposit
// receipt.
func ParseDepositCreated(r *Receipt) (*DepositInfo, error) {
	ev := lendingABI.Events["DepositCreated"]
	for _, l := range r.Logs {
		if len(l.Topics) == 0 || l.Topics[0] != ev.ID {
			continue
		}
		var out struct {
			DepositId [32]byte
			Deadline  uint64
		}
		if err := lendingABI.UnpackIntoInterface(&out, "DepositCreated", l.Data); err != nil {
			return nil, fmt.Errorf("unpack DepositCreated: %w", err)
		}
		return &DepositInfo{
			ContractID: common.Hash(out.DepositId).Hex(),
			Deadline:   time.Unix(int64(out.Deadline), 0).UTC(),
		}, nil
	}
	return nil, fmt.Errorf("receipt %s carries no DepositCreated event", r.TxHash)
}

// LoanInfo is parsed from the borrow contract's LoanCreated event.
type LoanInfo struct {
	ContractID string
	DueDate    time.Time
}

// ParseLoanCreated extracts the LoanCreated event from a borrow receipt.
func ParseLoanCreated(r *Receipt) (*LoanInfo, error) {
	ev := borrowABI.Events["LoanCreated"]
	for _, l := range r.Logs {
		if len(l.Topics) == 0 || l.Topics[0] != ev.ID {
			continue
		}
		var out struct {
			ContractId [32]byte
			DueDate    uint64
		}
		if err := borrowABI.UnpackIntoInterface(&out, "LoanCreated", l.Data); err != nil {
			return nil, fmt.Errorf("unpack LoanCreated: %w", err)
		}
		return &LoanInfo{
			ContractID: common.Hash(out.ContractId).Hex(),
			DueDate:    time.Unix(int64(out.DueDate), 0).UTC(),
		}, nil
	}
	return nil, fmt.Errorf("receipt %s carries no LoanCreated event", r.TxHash)
}
