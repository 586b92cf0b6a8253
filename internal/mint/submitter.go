package mint

import (
	"context"
	"errors"
	"time"

	"github.com/pythonsolidity/mindmint/internal/ledger"
)

// AttemptState tracks one request through the pipeline.
type AttemptState string

const (
	StateValidated    AttemptState = "VALIDATED"
	StateReserved     AttemptState = "RESERVED"
	StateFeeEstimated AttemptState = "FEE_ESTIMATED"
	StateSubmitted    AttemptState = "SUBMITTED"
	StateConfirmed    AttemptState = "CONFIRMED"
	StateFailed       AttemptState = "FAILED"
	// TIMED_OUT is distinct from FAILED: the reservation was released but the
	// transaction may still confirm; the reconciliation sweep re-checks these.
	StateTimedOut AttemptState = "TIMED_OUT"
)

// TransitionRecorder receives state transitions for the audit trail.
// Recording is best-effort and never fails the pipeline.
type TransitionRecorder interface {
	RecordTransition(ctx context.Context, requestID string, state AttemptState, txHash string, errorKind string)
}

type Submitter struct {
	ledger         ledger.Ledger
	admission      *Admission
	fees           *FeeEstimator
	recorder       TransitionRecorder
	confirmTimeout time.Duration
}

func NewSubmitter(l ledger.Ledger, adm *Admission, fees *FeeEstimator, rec TransitionRecorder, confirmTimeout time.Duration) *Submitter {
	return &Submitter{
		ledger:         l,
		admission:      adm,
		fees:           fees,
		recorder:       rec,
		confirmTimeout: confirmTimeout,
	}
}

// Issue drives a validated request through reserve, estimate, submit and
// confirmation. Every failure resolves to an Outcome; nothing here is fatal.
//
// Exactly one of settle/release runs per reservation: the deferred guard
// releases on every exit path, including panics, unless the success path
// settled first.
func (s *Submitter) Issue(ctx context.Context, req IssuanceRequest) Outcome {
	res, err := s.admission.Reserve(ctx, req.RequestID, req.Amount)
	if err != nil {
		return s.fail(ctx, req, "", err)
	}
	settled := false
	defer func() {
		if !settled {
			s.admission.Release(res)
		}
	}()
	s.record(ctx, req.RequestID, StateReserved, "", "")

	budget, err := s.fees.Estimate(ctx, req)
	if err != nil {
		return s.fail(ctx, req, "", err)
	}
	s.record(ctx, req.RequestID, StateFeeEstimated, "", "")

	handle, err := s.ledger.Submit(ctx, req.Amount, req.Recipient, budget)
	if err != nil {
		return s.fail(ctx, req, "", err)
	}
	txHash := handle.TxHash.Hex()
	s.record(ctx, req.RequestID, StateSubmitted, txHash, "")

	receipt, err := s.ledger.AwaitConfirmation(ctx, handle, s.confirmTimeout)
	if err != nil {
		if errors.Is(err, ledger.ErrConfirmationTimeout) {
			s.record(ctx, req.RequestID, StateTimedOut, txHash, string(KindConfirmationTimeout))
			return FailureOutcome(err)
		}
		return s.fail(ctx, req, txHash, err)
	}

	s.admission.Settle(res)
	settled = true
	s.record(ctx, req.RequestID, StateConfirmed, txHash, "")

	return Outcome{
		Success:      true,
		TxHash:       receipt.TxHash.Hex(),
		AmountIssued: receipt.AmountIssued,
		GasUsed:      receipt.GasUsed,
	}
}

func (s *Submitter) fail(ctx context.Context, req IssuanceRequest, txHash string, err error) Outcome {
	out := FailureOutcome(err)
	s.record(ctx, req.RequestID, StateFailed, txHash, string(out.ErrorKind))
	return out
}

func (s *Submitter) record(ctx context.Context, requestID string, state AttemptState, txHash, errorKind string) {
	if s.recorder == nil {
		return
	}
	s.recorder.RecordTransition(ctx, requestID, state, txHash, errorKind)
}
