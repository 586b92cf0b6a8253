package mint

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pythonsolidity/mindmint/internal/ledger"
)

type fakeLedger struct {
	*fakeSupply

	mu            sync.Mutex
	estimateErr   error
	submitErr     error
	confirmErr    error
	panicOnSubmit bool
	submits       int
	estimates     int
}

func newFakeLedger(issued, max int64) *fakeLedger {
	return &fakeLedger{fakeSupply: newFakeSupply(issued, max)}
}

func (f *fakeLedger) EstimateResources(ctx context.Context, amount *big.Int, recipient common.Address) (ledger.FeeBudget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.estimates++
	if f.estimateErr != nil {
		return ledger.FeeBudget{}, f.estimateErr
	}
	return ledger.FeeBudget{GasLimit: 60_000, GasPrice: big.NewInt(25)}, nil
}

func (f *fakeLedger) Submit(ctx context.Context, amount *big.Int, recipient common.Address, budget ledger.FeeBudget) (ledger.PendingHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOnSubmit {
		panic("ledger client blew up")
	}
	f.submits++
	if f.submitErr != nil {
		return ledger.PendingHandle{}, f.submitErr
	}
	var h common.Hash
	h[31] = byte(f.submits)
	return ledger.PendingHandle{TxHash: h, Amount: amount}, nil
}

func (f *fakeLedger) AwaitConfirmation(ctx context.Context, handle ledger.PendingHandle, timeout time.Duration) (ledger.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.confirmErr != nil {
		return ledger.Receipt{}, f.confirmErr
	}
	return ledger.Receipt{TxHash: handle.TxHash, AmountIssued: handle.Amount, GasUsed: 52_000}, nil
}

type fakeRecorder struct {
	mu     sync.Mutex
	states []AttemptState
}

func (f *fakeRecorder) RecordTransition(ctx context.Context, requestID string, state AttemptState, txHash, errorKind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, state)
}

func (f *fakeRecorder) saw(state AttemptState) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.states {
		if s == state {
			return true
		}
	}
	return false
}

func newTestSubmitter(l *fakeLedger, rec TransitionRecorder) (*Submitter, *Admission) {
	adm := NewAdmission(l)
	return NewSubmitter(l, adm, NewFeeEstimator(l), rec, time.Second), adm
}

func testRequest(amount int64) IssuanceRequest {
	return IssuanceRequest{
		RequestID: "req_test",
		Amount:    big.NewInt(amount),
		Recipient: common.HexToAddress(goodAddr),
	}
}

func TestIssueHappyPath(t *testing.T) {
	l := newFakeLedger(0, 10_000)
	rec := &fakeRecorder{}
	sub, adm := newTestSubmitter(l, rec)

	out := sub.Issue(context.Background(), testRequest(500))
	if !out.Success {
		t.Fatalf("expected success, got %s: %s", out.ErrorKind, out.Message)
	}
	if out.TxHash == "" {
		t.Fatal("expected tx hash")
	}
	if out.AmountIssued.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("unexpected amount issued: %s", out.AmountIssued)
	}
	if out.GasUsed != 52_000 {
		t.Fatalf("unexpected gas used: %d", out.GasUsed)
	}
	if adm.OutstandingCount() != 0 {
		t.Fatalf("reservation leaked: %d outstanding", adm.OutstandingCount())
	}
	for _, state := range []AttemptState{StateReserved, StateFeeEstimated, StateSubmitted, StateConfirmed} {
		if !rec.saw(state) {
			t.Fatalf("missing %s transition, saw %v", state, rec.states)
		}
	}
}

func TestIssueCapacityExceededIsTerminal(t *testing.T) {
	l := newFakeLedger(950, 1000)
	sub, adm := newTestSubmitter(l, nil)

	out := sub.Issue(context.Background(), testRequest(51))
	if out.Success || out.ErrorKind != KindCapacityExceeded {
		t.Fatalf("expected CAPACITY_EXCEEDED, got %+v", out)
	}
	if l.estimates != 0 || l.submits != 0 {
		t.Fatal("rejected request must not reach the ledger write path")
	}
	if adm.OutstandingCount() != 0 {
		t.Fatal("reservation leaked")
	}
}

func TestIssueEstimationFailureReleasesReservation(t *testing.T) {
	l := newFakeLedger(0, 1000)
	l.estimateErr = fmt.Errorf("%w: would revert", ledger.ErrWouldReject)
	sub, adm := newTestSubmitter(l, nil)

	out := sub.Issue(context.Background(), testRequest(100))
	if out.Success || out.ErrorKind != KindEstimationFailed {
		t.Fatalf("expected ESTIMATION_FAILED, got %+v", out)
	}
	if l.submits != 0 {
		t.Fatal("must not submit after failed estimation")
	}
	if adm.OutstandingCount() != 0 {
		t.Fatal("reservation leaked")
	}
}

func TestIssueSubmissionFailures(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{fmt.Errorf("%w: nonce too low", ledger.ErrRejected), KindSubmissionRejected},
		{fmt.Errorf("%w: 0 wei", ledger.ErrInsufficientFunds), KindInsufficientFunds},
	}
	for _, c := range cases {
		l := newFakeLedger(0, 1000)
		l.submitErr = c.err
		sub, adm := newTestSubmitter(l, nil)

		out := sub.Issue(context.Background(), testRequest(100))
		if out.Success || out.ErrorKind != c.want {
			t.Fatalf("expected %s, got %+v", c.want, out)
		}
		if adm.OutstandingCount() != 0 {
			t.Fatalf("%s: reservation leaked", c.want)
		}
	}
}

func TestIssueRevertedConfirmation(t *testing.T) {
	l := newFakeLedger(0, 1000)
	l.confirmErr = fmt.Errorf("%w: tx 0x01", ledger.ErrReverted)
	sub, adm := newTestSubmitter(l, nil)

	out := sub.Issue(context.Background(), testRequest(100))
	if out.Success || out.ErrorKind != KindReverted {
		t.Fatalf("expected REVERTED, got %+v", out)
	}
	if adm.OutstandingCount() != 0 {
		t.Fatal("reservation leaked")
	}
}

func TestIssueConfirmationTimeoutReleasesHeadroom(t *testing.T) {
	l := newFakeLedger(950, 1000)
	l.confirmErr = fmt.Errorf("%w: tx 0x01", ledger.ErrConfirmationTimeout)
	rec := &fakeRecorder{}
	sub, adm := newTestSubmitter(l, rec)

	out := sub.Issue(context.Background(), testRequest(50))
	if out.Success || out.ErrorKind != KindConfirmationTimeout {
		t.Fatalf("expected CONFIRMATION_TIMEOUT, got %+v", out)
	}
	if !rec.saw(StateTimedOut) {
		t.Fatalf("expected TIMED_OUT transition, saw %v", rec.states)
	}
	// the released amount must be reservable again
	if _, err := adm.Reserve(context.Background(), "req_after", big.NewInt(50)); err != nil {
		t.Fatalf("timeout must restore headroom: %v", err)
	}
}

func TestIssueReleasesReservationOnPanic(t *testing.T) {
	l := newFakeLedger(0, 1000)
	l.panicOnSubmit = true
	sub, adm := newTestSubmitter(l, nil)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		sub.Issue(context.Background(), testRequest(100))
	}()

	if adm.OutstandingCount() != 0 {
		t.Fatal("reservation leaked across panic")
	}
}

func TestIssueConcurrentRequestsRespectCap(t *testing.T) {
	// scenario from the admission design: 950/1000 with two 40s in flight
	l := newFakeLedger(950, 1000)
	sub, adm := newTestSubmitter(l, nil)

	var wg sync.WaitGroup
	outs := make([]Outcome, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := testRequest(40)
			req.RequestID = fmt.Sprintf("req_%d", i)
			outs[i] = sub.Issue(context.Background(), req)
		}(i)
	}
	wg.Wait()

	succeeded, capped := 0, 0
	for _, out := range outs {
		if out.Success {
			succeeded++
		} else if out.ErrorKind == KindCapacityExceeded {
			capped++
		} else {
			t.Fatalf("unexpected outcome: %+v", out)
		}
	}
	if succeeded != 1 || capped != 1 {
		t.Fatalf("expected one success and one CAPACITY_EXCEEDED, got %d/%d", succeeded, capped)
	}
	if adm.OutstandingCount() != 0 {
		t.Fatal("reservation leaked")
	}
}
