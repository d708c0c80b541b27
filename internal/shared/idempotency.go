package shared

import (
	"context"
	"strings"
	"time"

	"github.com/tutti-stock/tutti-stock/internal/platform/db"
)

const idempotencyKeyConstraint = "idempotency_keys_pkey"

// IdempotencyStore remembers request keys of postings that already committed.
type IdempotencyStore struct {
	conn Execer
	now  func() time.Time
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(conn Execer) *IdempotencyStore {
	return &IdempotencyStore{conn: conn, now: time.Now}
}

var (
	// ErrIdempotencyConflict means the request key was already used.
	ErrIdempotencyConflict = NewError(KindStateConflict, "duplicate_request", "This request was already processed")
	errIdempotencyKey      = NewError(KindValidation, "idempotency_key_required", "A request key and module are required")
)

// CheckAndInsert claims key for module, failing when it was claimed before.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s == nil {
		return nil
	}
	key, module = strings.TrimSpace(key), strings.TrimSpace(module)
	if key == "" || module == "" {
		return errIdempotencyKey
	}
	_, err := s.conn.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`, key, module, s.now().UTC())
	if db.IsUniqueViolation(err, idempotencyKeyConstraint) {
		return ErrIdempotencyConflict.Withf("Request %s was already processed", key)
	}
	return Dependency(err)
}

// Delete releases a claimed key after the guarded write failed.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	if s == nil || strings.TrimSpace(key) == "" {
		return nil
	}
	_, err := s.conn.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1`, strings.TrimSpace(key))
	return Dependency(err)
}

// Cleanup removes keys older than maxAge and reports how many went.
func (s *IdempotencyStore) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	if s == nil {
		return 0, nil
	}
	if maxAge <= 0 {
		return 0, Validation("cleanup age must be positive")
	}
	tag, err := s.conn.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, s.now().Add(-maxAge).UTC())
	if err != nil {
		return 0, Dependency(err)
	}
	return tag.RowsAffected(), nil
}
