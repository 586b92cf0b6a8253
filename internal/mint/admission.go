package mint

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pythonsolidity/mindmint/internal/ledger"
)

// SupplyReader is the slice of the ledger capability admission needs.
type SupplyReader interface {
	ReadSupply(ctx context.Context) (ledger.Supply, error)
}

// Reservation is a provisional claim against remaining headroom, held from
// admission until the ledger confirms or the submission fails.
type Reservation struct {
	ID        string
	RequestID string
	Amount    *big.Int
	CreatedAt time.Time
}

// Admission enforces the issuance ceiling under concurrent callers. It is
// the only mutator of the outstanding reservation set, and Reserve is the
// only place an admission decision is made.
type Admission struct {
	supply SupplyReader

	mu          sync.Mutex
	outstanding map[string]*big.Int // reservation id -> amount
}

func NewAdmission(supply SupplyReader) *Admission {
	return &Admission{
		supply:      supply,
		outstanding: make(map[string]*big.Int),
	}
}

// Reserve admits amount against the ceiling or fails with
// ErrCapacityExceeded. The supply read, the outstanding sum and the
// registration happen under one critical section: two concurrent calls can
// never both see headroom that only covers one of them.
func (a *Admission) Reserve(ctx context.Context, requestID string, amount *big.Int) (Reservation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sup, err := a.supply.ReadSupply(ctx)
	if err != nil {
		return Reservation{}, err
	}

	projected := new(big.Int).Set(sup.TotalIssued)
	for _, r := range a.outstanding {
		projected.Add(projected, r)
	}
	projected.Add(projected, amount)
	if projected.Cmp(sup.MaxSupply) > 0 {
		return Reservation{}, fmt.Errorf("%w: amount %s over remaining supply", ErrCapacityExceeded, amount.String())
	}

	res := Reservation{
		ID:        "rsv_" + uuid.NewString(),
		RequestID: requestID,
		Amount:    new(big.Int).Set(amount),
		CreatedAt: time.Now().UTC(),
	}
	a.outstanding[res.ID] = res.Amount
	return res, nil
}

// Settle retires a reservation after ledger confirmation. The next supply
// read already reflects the minted amount.
func (a *Admission) Settle(res Reservation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.outstanding, res.ID)
}

// Release retires a reservation without a confirmed mint, restoring headroom.
func (a *Admission) Release(res Reservation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.outstanding, res.ID)
}

// Outstanding returns the sum of reserved-but-unconfirmed amounts.
func (a *Admission) Outstanding() *big.Int {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := new(big.Int)
	for _, r := range a.outstanding {
		total.Add(total, r)
	}
	return total
}

// OutstandingCount reports the number of live reservations.
func (a *Admission) OutstandingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.outstanding)
}
