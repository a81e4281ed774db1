package database

import (
	"errors"
	"testing"

	"github.com/koustreak/dbspec/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRows struct {
	cols    []string
	data    [][]any
	pos     int
	scanErr error
	closed  bool
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	for i, v := range r.data[r.pos-1] {
		*(dest[i].(*any)) = v
	}
	return nil
}

func (r *fakeRows) Columns() ([]string, error) { return r.cols, nil }
func (r *fakeRows) Close()                     { r.closed = true }
func (r *fakeRows) Err() error                 { return nil }

func TestScanRows(t *testing.T) {
	rows := &fakeRows{
		cols: []string{"name", "owner"},
		data: [][]any{{"public", "postgres"}, {"app", nil}},
	}
	got, err := ScanRows(rows)
	require.NoError(t, err)
	assert.True(t, rows.closed)
	assert.Equal(t, []map[string]any{
		{"name": "public", "owner": "postgres"},
		{"name": "app", "owner": nil},
	}, got)
}

func TestScanRowsEmpty(t *testing.T) {
	got, err := ScanRows(&fakeRows{cols: []string{"a"}})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestScanRowsError(t *testing.T) {
	cause := errors.New("bad oid")
	rows := &fakeRows{cols: []string{"a"}, data: [][]any{{1}}, scanErr: cause}
	_, err := ScanRows(rows)
	require.Error(t, err)
	assert.True(t, errs.IsQueryFailed(err))
	assert.ErrorIs(t, err, cause)
	assert.True(t, rows.closed)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.Validate())

	cfg.Database = "shop"
	assert.NoError(t, cfg.Validate())

	cfg.Port = 70000
	assert.True(t, errs.IsInvalidInput(cfg.Validate()))

	cfg = DefaultConfig()
	cfg.DSN = "postgres://localhost/shop"
	cfg.MinConns = 10
	assert.Error(t, cfg.Validate())
}
