package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "stock_counts_location_week_key"}
	wrapped := fmt.Errorf("insert: %w", pgErr)

	require.True(t, IsUniqueViolation(wrapped))
	require.True(t, IsUniqueViolation(wrapped, "stock_counts_location_week_key"))
	require.False(t, IsUniqueViolation(wrapped, "other_key"))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	require.False(t, IsUniqueViolation(errors.New("boom")))
}

func TestLockKeyStable(t *testing.T) {
	a := LockKey("plan", "item")
	require.Equal(t, a, LockKey("plan", "item"))
	require.NotEqual(t, a, LockKey("planitem"))
	require.NotEqual(t, a, LockKey("item", "plan"))
}
