package mint

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pythonsolidity/mindmint/internal/ledger"
)

// gas margin over the raw estimate, in percent
const feeMarginPct = 20

// ResourceEstimator is the slice of the ledger capability fee estimation needs.
type ResourceEstimator interface {
	EstimateResources(ctx context.Context, amount *big.Int, recipient common.Address) (ledger.FeeBudget, error)
}

type FeeEstimator struct {
	ledger ResourceEstimator
}

func NewFeeEstimator(l ResourceEstimator) *FeeEstimator {
	return &FeeEstimator{ledger: l}
}

// Estimate returns the raw ledger estimate padded by a fixed safety margin.
// A would-reject from the node is a deterministic rejection and surfaces as
// ErrEstimationFailed; it must not be retried.
func (f *FeeEstimator) Estimate(ctx context.Context, req IssuanceRequest) (ledger.FeeBudget, error) {
	budget, err := f.ledger.EstimateResources(ctx, req.Amount, req.Recipient)
	if err != nil {
		if errors.Is(err, ledger.ErrWouldReject) {
			return ledger.FeeBudget{}, fmt.Errorf("%w: %v", ErrEstimationFailed, err)
		}
		return ledger.FeeBudget{}, err
	}
	budget.GasLimit = budget.GasLimit * (100 + feeMarginPct) / 100
	return budget, nil
}
