// Package reconcile runs the out-of-band sweep for the one case where local
// and ledger state can diverge: a submission released on confirmation
// timeout whose transaction later confirmed anyway.
package reconcile

import (
	"context"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pythonsolidity/mindmint/internal/store"
)

const sweepBatchSize = 50

type AttemptSource interface {
	ListTimedOut(ctx context.Context, limit int) ([]store.Attempt, error)
	MarkConfirmedLate(ctx context.Context, requestID string) error
	AddEvent(ctx context.Context, requestID, eventType, detail string) error
}

type ReceiptChecker interface {
	ConfirmationStatus(ctx context.Context, txHash common.Hash) (confirmed bool, gasUsed uint64, err error)
}

type Sweeper struct {
	attempts AttemptSource
	receipts ReceiptChecker
	interval time.Duration
}

func NewSweeper(attempts AttemptSource, receipts ReceiptChecker, interval time.Duration) *Sweeper {
	return &Sweeper{attempts: attempts, receipts: receipts, interval: interval}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				log.Printf("reconcile: sweep failed: %v", err)
			}
		}
	}
}

// SweepOnce re-checks timed-out attempts against the ledger and records the
// ones that confirmed after their reservation was released.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	attempts, err := s.attempts.ListTimedOut(ctx, sweepBatchSize)
	if err != nil {
		return err
	}
	for _, a := range attempts {
		confirmed, _, err := s.receipts.ConfirmationStatus(ctx, common.HexToHash(a.TxHash))
		if err != nil {
			// transient; the next sweep retries
			continue
		}
		if !confirmed {
			continue
		}
		if err := s.attempts.MarkConfirmedLate(ctx, a.RequestID); err != nil {
			return err
		}
		_ = s.attempts.AddEvent(ctx, a.RequestID, "CONFIRMED_LATE", a.TxHash)
		log.Printf("reconcile: %s confirmed after timeout (tx %s, amount %s)", a.RequestID, a.TxHash, a.Amount)
	}
	return nil
}
