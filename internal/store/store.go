package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pythonsolidity/mindmint/internal/mint"
)

type Store struct{ DB *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

var schema = []string{`
CREATE TABLE IF NOT EXISTS mint_attempts (
  request_id   text PRIMARY KEY,
  amount       numeric NOT NULL,
  recipient    text NOT NULL,
  state        text NOT NULL,
  tx_hash      text,
  error_kind   text,
  created_at   timestamptz NOT NULL DEFAULT now(),
  updated_at   timestamptz NOT NULL DEFAULT now()
)`, `
CREATE INDEX IF NOT EXISTS mint_attempts_state_idx ON mint_attempts(state)`, `
CREATE TABLE IF NOT EXISTS mint_idempotency_records (
  idempotency_key  text NOT NULL,
  endpoint         text NOT NULL,
  response_status  int NOT NULL,
  response_body    jsonb NOT NULL,
  created_at       timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY (idempotency_key, endpoint)
)`, `
CREATE TABLE IF NOT EXISTS mint_events (
  id          bigserial PRIMARY KEY,
  request_id  text NOT NULL,
  event_type  text NOT NULL,
  detail      text,
  created_at  timestamptz NOT NULL DEFAULT now()
)`}

func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.DB.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

type Attempt struct {
	RequestID string    `json:"request_id"`
	Amount    string    `json:"amount"`
	Recipient string    `json:"recipient"`
	State     string    `json:"state"`
	TxHash    string    `json:"tx_hash,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Store) CreateAttempt(ctx context.Context, requestID, amount, recipient, state string) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO mint_attempts(request_id,amount,recipient,state)
VALUES($1,$2::numeric,$3,$4)
`, requestID, amount, recipient, state)
	return err
}

func (s *Store) UpdateAttempt(ctx context.Context, requestID, state, txHash, errorKind string) error {
	_, err := s.DB.Exec(ctx, `
UPDATE mint_attempts
SET state=$2, tx_hash=COALESCE(NULLIF($3,''),tx_hash), error_kind=NULLIF($4,''), updated_at=now()
WHERE request_id=$1
`, requestID, state, txHash, errorKind)
	return err
}

func (s *Store) GetAttempt(ctx context.Context, requestID string) (Attempt, error) {
	var a Attempt
	var txHash, errorKind *string
	err := s.DB.QueryRow(ctx, `
SELECT request_id,amount::text,recipient,state,tx_hash,error_kind,created_at,updated_at
FROM mint_attempts
WHERE request_id=$1
`, requestID).Scan(&a.RequestID, &a.Amount, &a.Recipient, &a.State, &txHash, &errorKind, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Attempt{}, err
	}
	if txHash != nil {
		a.TxHash = *txHash
	}
	if errorKind != nil {
		a.ErrorKind = *errorKind
	}
	return a, nil
}

// ListTimedOut returns attempts released on confirmation timeout that still
// carry a transaction hash; the reconciliation sweep re-checks these.
func (s *Store) ListTimedOut(ctx context.Context, limit int) ([]Attempt, error) {
	rows, err := s.DB.Query(ctx, `
SELECT request_id,amount::text,recipient,state,tx_hash,error_kind,created_at,updated_at
FROM mint_attempts
WHERE state='TIMED_OUT' AND tx_hash IS NOT NULL
ORDER BY updated_at ASC
LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var txHash, errorKind *string
		if err := rows.Scan(&a.RequestID, &a.Amount, &a.Recipient, &a.State, &txHash, &errorKind, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		if txHash != nil {
			a.TxHash = *txHash
		}
		if errorKind != nil {
			a.ErrorKind = *errorKind
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) MarkConfirmedLate(ctx context.Context, requestID string) error {
	_, err := s.DB.Exec(ctx, `
UPDATE mint_attempts SET state='CONFIRMED_LATE', updated_at=now()
WHERE request_id=$1 AND state='TIMED_OUT'
`, requestID)
	return err
}

func (s *Store) GetIdempotencyRecord(ctx context.Context, key, endpoint string) (int, []byte, bool, error) {
	var status int
	var body []byte
	err := s.DB.QueryRow(ctx, `
SELECT response_status,response_body
FROM mint_idempotency_records
WHERE idempotency_key=$1 AND endpoint=$2
`, key, endpoint).Scan(&status, &body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil, false, nil
		}
		return 0, nil, false, err
	}
	return status, body, true, nil
}

func (s *Store) SaveIdempotencyRecord(ctx context.Context, key, endpoint string, status int, body []byte) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO mint_idempotency_records(idempotency_key,endpoint,response_status,response_body)
VALUES($1,$2,$3,$4::jsonb)
ON CONFLICT (idempotency_key,endpoint) DO NOTHING
`, key, endpoint, status, string(body))
	return err
}

func (s *Store) AddEvent(ctx context.Context, requestID, eventType, detail string) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO mint_events(request_id,event_type,detail)
VALUES($1,$2,$3)
`, requestID, eventType, nullable(detail))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// RecordTransition implements the pipeline's audit hook. Best effort: store
// failures must not affect the mint path.
func (s *Store) RecordTransition(ctx context.Context, requestID string, state mint.AttemptState, txHash, errorKind string) {
	_ = s.UpdateAttempt(ctx, requestID, string(state), txHash, errorKind)
	_ = s.AddEvent(ctx, requestID, string(state), txHash)
}
