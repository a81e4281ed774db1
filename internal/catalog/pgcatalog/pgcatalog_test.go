package pgcatalog

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/koustreak/dbspec/internal/catalog"
	"github.com/koustreak/dbspec/internal/database"
	"github.com/koustreak/dbspec/internal/database/postgres"
	"github.com/koustreak/dbspec/internal/diff"
	"github.com/koustreak/dbspec/internal/errs"
	"github.com/koustreak/dbspec/internal/model"
	"github.com/koustreak/dbspec/internal/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRows struct {
	cols []string
	data [][]any
	pos  int
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	for i, v := range r.data[r.pos-1] {
		*(dest[i].(*any)) = v
	}
	return nil
}

func (r *fakeRows) Columns() ([]string, error) { return r.cols, nil }
func (r *fakeRows) Close()                     {}
func (r *fakeRows) Err() error                 { return nil }

type intRow int

func (v intRow) Scan(dest ...any) error {
	*(dest[0].(*int)) = int(v)
	return nil
}

// fakeDB answers catalog queries from canned results keyed by kind.
type fakeDB struct {
	results    map[model.Kind]*fakeRows
	version    int
	fail       model.Kind
	execs      []string
	rolledBack bool
}

func (f *fakeDB) Query(_ context.Context, sql string, _ ...any) (database.Rows, error) {
	for kind, q := range queries {
		if q != sql {
			continue
		}
		if kind == f.fail {
			return nil, errs.New(errs.ErrKindPermissionDenied, "permission denied for table pg_authid")
		}
		if r, ok := f.results[kind]; ok {
			return r, nil
		}
		return &fakeRows{}, nil
	}
	return nil, errs.New(errs.ErrKindQueryFailed, "unexpected query")
}

func (f *fakeDB) QueryRow(context.Context, string, ...any) database.Row { return intRow(f.version) }

func (f *fakeDB) Exec(_ context.Context, sql string, _ ...any) (int64, error) {
	f.execs = append(f.execs, sql)
	return 0, nil
}

func (f *fakeDB) Ping(context.Context) error                  { return nil }
func (f *fakeDB) Begin(context.Context) (database.Tx, error) { return f, nil }
func (f *fakeDB) Close()                                      {}
func (f *fakeDB) Commit(context.Context) error                { return nil }
func (f *fakeDB) Rollback(context.Context) error {
	f.rolledBack = true
	return nil
}

func TestQueriesCoverEveryKind(t *testing.T) {
	for _, kind := range model.Kinds() {
		q, ok := queries[kind]
		require.True(t, ok, kind.String())
		assert.NotContains(t, q, "%!", kind.String())
		assert.True(t, strings.HasPrefix(strings.TrimSpace(q), "SELECT"), kind.String())
	}
}

func TestDump(t *testing.T) {
	db := &fakeDB{
		version: 160002,
		results: map[model.Kind]*fakeRows{
			model.KindSchema: {
				cols: []string{"name", "owner", "privileges", "description"},
				data: [][]any{{"public", "postgres", nil, "standard public schema"}},
			},
			model.KindTable: {
				cols: []string{"schema", "name", "owner", "parent_schemas", "parent_names", "unlogged"},
				data: [][]any{{"public", "films", "postgres", []any{}, []any{}, false}},
			},
			model.KindColumn: {
				cols: []string{"schema", "table", "relkind", "name", "type", "not_null", "statistics"},
				data: [][]any{
					{"public", "films", "r", "id", "integer", true, nil},
					{"public", "films", "r", "title", "text", false, int16(-1)},
				},
			},
			model.KindConstraint: {
				cols: []string{"schema", "table", "relkind", "name", "type", "columns"},
				data: [][]any{{"public", "films", "r", "films_pkey", "p", []any{"id"}}},
			},
		},
	}

	got, err := Dump(context.Background(), db, catalog.Options{})
	require.NoError(t, err)
	assert.True(t, db.rolledBack)
	assert.Equal(t, []string{"SET TRANSACTION ISOLATION LEVEL REPEATABLE READ READ ONLY"}, db.execs)

	films := model.RelationKey(model.KindTable, "public", "films")
	assert.Len(t, got.Children(films, model.KindColumn), 2)
	pk, ok := got.Get(model.ChildKey(model.KindConstraint, films, "films_pkey"))
	require.True(t, ok)
	assert.Equal(t, "id", pk.(*model.Constraint).Columns[0].Name)
}

func TestDumpErrors(t *testing.T) {
	t.Run("old server", func(t *testing.T) {
		db := &fakeDB{version: 100012}
		_, err := Dump(context.Background(), db, catalog.Options{})
		require.Error(t, err)
		assert.True(t, errs.IsUnsupportedObject(err))
		assert.True(t, db.rolledBack)
	})
	t.Run("query failure keeps kind", func(t *testing.T) {
		db := &fakeDB{version: 150000, fail: model.KindFunction}
		_, err := Dump(context.Background(), db, catalog.Options{})
		require.Error(t, err)
		assert.True(t, errs.IsPermissionDenied(err))
		assert.Contains(t, err.Error(), "reading function catalog")
	})
}

// TestLiveRoundTrip creates a few objects on a scratch server, dumps them,
// and checks the dump re-reads without differences. Needs DBSPEC_TEST_DSN.
func TestLiveRoundTrip(t *testing.T) {
	dsn := os.Getenv("DBSPEC_TEST_DSN")
	if dsn == "" {
		t.Skip("DBSPEC_TEST_DSN not set")
	}
	ctx := context.Background()
	cfg := database.DefaultConfig()
	cfg.DSN = dsn
	db, err := postgres.New(ctx, cfg)
	require.NoError(t, err)
	defer db.Close()

	setup := []string{
		"DROP SCHEMA IF EXISTS dbspec_it CASCADE",
		"CREATE SCHEMA dbspec_it",
		"CREATE TYPE dbspec_it.mood AS ENUM ('sad', 'ok', 'happy')",
		"CREATE TABLE dbspec_it.parent (id serial PRIMARY KEY, feeling dbspec_it.mood, CHECK (id > 0))",
		"CREATE TABLE dbspec_it.child (note text) INHERITS (dbspec_it.parent)",
		"CREATE INDEX child_note_ix ON dbspec_it.child (lower(note) DESC)",
		"COMMENT ON TABLE dbspec_it.parent IS 'root'",
	}
	for _, s := range setup {
		_, err := db.Exec(ctx, s)
		require.NoError(t, err, s)
	}
	defer db.Exec(ctx, "DROP SCHEMA dbspec_it CASCADE")

	cur, err := Dump(ctx, db, catalog.Options{Schemas: []string{"dbspec_it"}})
	require.NoError(t, err)
	assert.True(t, cur.Has(model.RelationKey(model.KindTable, "dbspec_it", "child")))

	text, err := spec.Marshal(cur, spec.Options{})
	require.NoError(t, err)
	back, err := spec.Unmarshal(text, nil)
	require.NoError(t, err, string(text))
	assert.True(t, diff.Compute(cur, back).Empty(), string(text))
}
