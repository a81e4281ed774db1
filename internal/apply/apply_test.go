package apply

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/koustreak/dbspec/internal/database"
	"github.com/koustreak/dbspec/internal/ddl"
	"github.com/koustreak/dbspec/internal/errs"
	"github.com/koustreak/dbspec/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	failOn     string
	executed   []string
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Query(context.Context, string, ...any) (database.Rows, error) {
	return nil, errors.New("not used")
}
func (f *fakeTx) QueryRow(context.Context, string, ...any) database.Row { return nil }

func (f *fakeTx) Exec(_ context.Context, sql string, _ ...any) (int64, error) {
	if sql == f.failOn {
		return 0, errs.New(errs.ErrKindQueryFailed, "syntax error")
	}
	f.executed = append(f.executed, sql)
	return 0, nil
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolledBack = true
	return nil
}

func (f *fakeTx) Ping(context.Context) error                  { return nil }
func (f *fakeTx) Begin(context.Context) (database.Tx, error) { return f, nil }
func (f *fakeTx) Close()                                      {}

func stmts(sql ...string) []ddl.Statement {
	out := make([]ddl.Statement, len(sql))
	for i, s := range sql {
		out[i] = ddl.Statement{SQL: s, Key: model.SchemaKey("app")}
	}
	return out
}

func TestRun(t *testing.T) {
	db := &fakeTx{}
	res, err := Run(context.Background(), db, stmts("CREATE SCHEMA app", "COMMENT ON SCHEMA app IS 'x'"), Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Executed)
	assert.Equal(t, []string{"CREATE SCHEMA app", "COMMENT ON SCHEMA app IS 'x'"}, db.executed)
	assert.True(t, db.committed)
	assert.False(t, db.rolledBack)
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	db := &fakeTx{failOn: "CREATE TABEL t ()"}
	res, err := Run(context.Background(), db, stmts("CREATE SCHEMA app", "CREATE TABEL t ()", "DROP TABLE u"), Options{})
	require.Error(t, err)
	assert.Equal(t, 1, res.Executed)
	assert.Equal(t, []string{"CREATE SCHEMA app"}, db.executed)
	assert.True(t, db.rolledBack)
	assert.False(t, db.committed)

	var se *StatementError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 1, se.Index)
	assert.Equal(t, "CREATE TABEL t ()", se.Statement.SQL)
	assert.True(t, errs.IsQueryFailed(err))
	assert.Contains(t, err.Error(), "statement 2 failed")
}

func TestRunDryRun(t *testing.T) {
	db := &fakeTx{}
	var out bytes.Buffer
	_, err := Run(context.Background(), db, stmts("CREATE SCHEMA app", "SET check_function_bodies = false"),
		Options{DryRun: true, Out: &out})
	require.NoError(t, err)
	assert.Equal(t, "CREATE SCHEMA app;\nSET check_function_bodies = false;\n", out.String())
	assert.Empty(t, db.executed)

	_, err = Run(context.Background(), db, nil, Options{DryRun: true})
	assert.True(t, errs.IsInvalidInput(err))
}

func TestRunNothing(t *testing.T) {
	db := &fakeTx{}
	res, err := Run(context.Background(), db, nil, Options{})
	require.NoError(t, err)
	assert.Zero(t, res.Executed)
	assert.False(t, db.committed)
}
