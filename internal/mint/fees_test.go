package mint

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pythonsolidity/mindmint/internal/ledger"
)

type fakeEstimator struct {
	budget ledger.FeeBudget
	err    error
	calls  int
}

func (f *fakeEstimator) EstimateResources(ctx context.Context, amount *big.Int, recipient common.Address) (ledger.FeeBudget, error) {
	f.calls++
	return f.budget, f.err
}

func TestEstimateAppliesSafetyMargin(t *testing.T) {
	est := NewFeeEstimator(&fakeEstimator{budget: ledger.FeeBudget{GasLimit: 100_000, GasPrice: big.NewInt(30)}})
	budget, err := est.Estimate(context.Background(), IssuanceRequest{Amount: big.NewInt(10)})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if budget.GasLimit != 120_000 {
		t.Fatalf("expected 20%% margin (120000), got %d", budget.GasLimit)
	}
	if budget.GasPrice.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("gas price must pass through, got %s", budget.GasPrice)
	}
}

func TestEstimateWouldRejectIsEstimationFailed(t *testing.T) {
	fake := &fakeEstimator{err: fmt.Errorf("%w: execution reverted", ledger.ErrWouldReject)}
	est := NewFeeEstimator(fake)
	_, err := est.Estimate(context.Background(), IssuanceRequest{Amount: big.NewInt(10)})
	if !errors.Is(err, ErrEstimationFailed) {
		t.Fatalf("expected ErrEstimationFailed, got %v", err)
	}
	if fake.calls != 1 {
		t.Fatalf("deterministic rejection must not be retried, got %d calls", fake.calls)
	}
}

func TestEstimateTransientFaultPassesThrough(t *testing.T) {
	est := NewFeeEstimator(&fakeEstimator{err: fmt.Errorf("%w: rpc down", ledger.ErrUnavailable)})
	_, err := est.Estimate(context.Background(), IssuanceRequest{Amount: big.NewInt(10)})
	if !errors.Is(err, ledger.ErrUnavailable) {
		t.Fatalf("expected ledger.ErrUnavailable, got %v", err)
	}
	if errors.Is(err, ErrEstimationFailed) {
		t.Fatal("transient fault must not classify as EstimationFailed")
	}
}
