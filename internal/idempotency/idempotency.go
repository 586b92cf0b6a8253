package idempotency

import "context"

// Store persists recorded responses keyed by (idempotency key, endpoint).
type Store interface {
	GetIdempotencyRecord(ctx context.Context, key, endpoint string) (int, []byte, bool, error)
	SaveIdempotencyRecord(ctx context.Context, key, endpoint string, status int, body []byte) error
}

// Replay returns a previously recorded response for the key, if any.
// Without a key or a store it is a no-op.
func Replay(ctx context.Context, st Store, key, endpoint string) (int, []byte, bool, error) {
	if st == nil || key == "" {
		return 0, nil, false, nil
	}
	status, body, found, err := st.GetIdempotencyRecord(ctx, key, endpoint)
	if err != nil {
		return 0, nil, false, err
	}
	if !found {
		return 0, nil, false, nil
	}
	return status, body, true, nil
}

// Save records a response for later replay. First write wins; the store
// keeps the original record on conflict.
func Save(ctx context.Context, st Store, key, endpoint string, status int, body []byte) error {
	if st == nil || key == "" {
		return nil
	}
	return st.SaveIdempotencyRecord(ctx, key, endpoint, status, body)
}
