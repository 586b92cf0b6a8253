// Package ledger defines the capability the mint pipeline needs from the
// external system of record. The gateway never talks to the chain except
// through this interface.
package ledger

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Sentinel fault classes. Implementations wrap these so the pipeline can
// classify failures with errors.Is without depending on client internals.
var (
	ErrUnavailable         = errors.New("ledger unavailable")
	ErrWouldReject         = errors.New("ledger would reject instruction")
	ErrRejected            = errors.New("submission rejected")
	ErrInsufficientFunds   = errors.New("insufficient funds for submission")
	ErrReverted            = errors.New("execution reverted")
	ErrConfirmationTimeout = errors.New("confirmation timed out")
)

// Supply is a point-in-time read of the on-chain counters. Amounts are
// uint256 on chain, so both sides stay big.Int end to end.
type Supply struct {
	TotalIssued *big.Int
	MaxSupply   *big.Int
}

// Remaining returns max(0, MaxSupply - TotalIssued).
func (s Supply) Remaining() *big.Int {
	rem := new(big.Int).Sub(s.MaxSupply, s.TotalIssued)
	if rem.Sign() < 0 {
		return big.NewInt(0)
	}
	return rem
}

type FeeBudget struct {
	GasLimit uint64
	GasPrice *big.Int
}

// PendingHandle identifies a submitted-but-unconfirmed instruction.
type PendingHandle struct {
	TxHash common.Hash
	Amount *big.Int
}

type Receipt struct {
	TxHash       common.Hash
	AmountIssued *big.Int
	GasUsed      uint64
}

type Ledger interface {
	// ReadSupply fails with ErrUnavailable.
	ReadSupply(ctx context.Context) (Supply, error)
	// EstimateResources fails with ErrWouldReject when the node predicts the
	// instruction cannot execute, or ErrUnavailable on transport faults.
	EstimateResources(ctx context.Context, amount *big.Int, recipient common.Address) (FeeBudget, error)
	// Submit fires the instruction and returns without waiting for
	// confirmation. Fails with ErrRejected or ErrInsufficientFunds.
	Submit(ctx context.Context, amount *big.Int, recipient common.Address, budget FeeBudget) (PendingHandle, error)
	// AwaitConfirmation blocks until the handle confirms, the execution
	// reverts (ErrReverted), or the timeout elapses (ErrConfirmationTimeout).
	AwaitConfirmation(ctx context.Context, handle PendingHandle, timeout time.Duration) (Receipt, error)
}
