package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/dbspec/internal/database"
	"github.com/koustreak/dbspec/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind errs.ErrKind
	}{
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout},
		{"canceled", fmt.Errorf("wrapped: %w", context.Canceled), errs.ErrKindTimeout},
		{"no rows", pgx.ErrNoRows, errs.ErrKindNotFound},
		{"privilege", &pgconn.PgError{Code: "42501", Message: "permission denied for schema app"}, errs.ErrKindPermissionDenied},
		{"duplicate", &pgconn.PgError{Code: "42P07", Message: "relation already exists"}, errs.ErrKindDuplicateObject},
		{"syntax", &pgconn.PgError{Code: "42601", Message: "syntax error"}, errs.ErrKindQueryFailed},
		{"connection class", &pgconn.PgError{Code: "08006"}, errs.ErrKindConnectionFailed},
		{"auth class", &pgconn.PgError{Code: "28P01"}, errs.ErrKindPermissionDenied},
		{"statement timeout", &pgconn.PgError{Code: "57014"}, errs.ErrKindTimeout},
		{"network", errors.New("dial tcp: connection refused"), errs.ErrKindConnectionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError(tt.err, "op")
			require.Error(t, err)
			assert.Equal(t, tt.kind, errs.KindOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
	assert.NoError(t, mapError(nil, "op"))
}

func TestMapErrorMessage(t *testing.T) {
	err := mapError(&pgconn.PgError{Code: "42601", Message: "syntax error at or near \"TABEL\""}, "exec failed")
	assert.Contains(t, err.Error(), `exec failed: syntax error at or near "TABEL"`)
}

func TestBuildDSN(t *testing.T) {
	assert.Equal(t, "postgres://u@h/db", buildDSN(&database.Config{DSN: "postgres://u@h/db", Host: "ignored"}))

	got := buildDSN(&database.Config{Host: "db.local", Database: "shop", User: "admin", Password: "it's secret"})
	assert.Equal(t, `host=db.local port=5432 dbname=shop sslmode=prefer user=admin password='it\'s secret'`, got)

	got = buildDSN(&database.Config{Host: "h", Port: 6543, Database: "x", SSLMode: "disable"})
	assert.Equal(t, "host=h port=6543 dbname=x sslmode=disable", got)
}

func TestBuildPoolValidates(t *testing.T) {
	_, err := buildPool(context.Background(), &database.Config{})
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}

// TestDriver runs against a live server when DBSPEC_TEST_DSN is set.
func TestDriver(t *testing.T) {
	dsn := os.Getenv("DBSPEC_TEST_DSN")
	if dsn == "" {
		t.Skip("DBSPEC_TEST_DSN not set")
	}
	ctx := context.Background()
	cfg := database.DefaultConfig()
	cfg.DSN = dsn

	d, err := New(ctx, cfg)
	require.NoError(t, err)
	defer d.Close()

	rows, err := d.Query(ctx, "SELECT 1 AS one, 'x'::text AS two")
	require.NoError(t, err)
	got, err := database.ScanRows(rows)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "x", got[0]["two"])

	tx, err := d.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, "CREATE TEMP TABLE dbspec_scratch (a int)")
	require.NoError(t, err)
	_, err = tx.Exec(ctx, "CREATE TEMP TABLE dbspec_scratch (a int)")
	require.Error(t, err)
	assert.True(t, errs.IsDuplicateObject(err))
	require.NoError(t, tx.Rollback(ctx))
	require.NoError(t, tx.Rollback(ctx))
}
