package catalog

import (
	"context"
	"testing"

	"github.com/koustreak/dbspec/internal/diff"
	"github.com/koustreak/dbspec/internal/errs"
	"github.com/koustreak/dbspec/internal/model"
	"github.com/koustreak/dbspec/internal/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shopRows is a small catalog: two schemas, an inheritance pair, a sequence
// owned by a column and a foreign key across schemas.
func shopRows() []Batch {
	return []Batch{
		// deliberately out of kind order
		{Kind: model.KindColumn, Rows: []Row{
			{"schema": "sales", "table": "orders", "relkind": "r", "name": "id", "type": "integer",
				"not_null": true, "default": "nextval('sales.orders_id_seq'::regclass)", "statistics": int16(-1)},
			{"schema": "sales", "table": "orders", "relkind": "r", "name": "placed", "type": "date", "statistics": int16(200)},
			{"schema": "sales", "table": "rush_orders", "relkind": "r", "name": "id", "type": "integer",
				"not_null": true, "default": "nextval('sales.orders_id_seq'::regclass)", "inherited": true},
			{"schema": "sales", "table": "rush_orders", "relkind": "r", "name": "placed", "type": "date", "inherited": true},
			{"schema": "sales", "table": "rush_orders", "relkind": "r", "name": "courier", "type": "text"},
			{"schema": "audit", "table": "log", "relkind": "r", "name": "order_id", "type": "integer"},
		}},
		{Kind: model.KindSchema, Rows: []Row{
			{"name": "pg_catalog", "owner": "postgres"},
			{"name": "information_schema", "owner": "postgres"},
			{"name": "pg_toast_temp_1", "owner": "postgres"},
			{"name": "public", "owner": "postgres", "privileges": "{postgres=UC/postgres,=UC/postgres}",
				"description": "standard public schema"},
			{"name": "sales", "owner": "admin", "privileges": "admin=UC/admin,clerk=U/admin"},
			{"name": "audit", "owner": "admin"},
		}},
		{Kind: model.KindTable, Rows: []Row{
			{"schema": "pg_catalog", "name": "pg_class", "owner": "postgres"},
			{"schema": "sales", "name": "orders", "owner": "admin", "description": "customer orders",
				"privileges": "admin=arwdDxt/admin,clerk=ar/admin"},
			{"schema": "sales", "name": "rush_orders", "owner": "admin",
				"parent_schemas": []string{"sales"}, "parent_names": []string{"orders"}},
			{"schema": "audit", "name": "log", "owner": "admin", "options": []string{"fillfactor=70"}},
		}},
		{Kind: model.KindSequence, Rows: []Row{
			{"schema": "sales", "name": "orders_id_seq", "owner": "admin", "start_value": int64(1),
				"increment_by": int64(1), "cache_value": int64(1), "owner_table": "orders", "owner_column": "id"},
		}},
		{Kind: model.KindConstraint, Rows: []Row{
			{"schema": "sales", "table": "orders", "relkind": "r", "name": "orders_pkey", "type": "p",
				"columns": []string{"id"}},
			{"schema": "sales", "table": "orders", "relkind": "r", "name": "orders_placed_check", "type": "c",
				"expression": "(placed > '2000-01-01'::date)", "columns": []string{"placed"}},
			{"schema": "sales", "table": "rush_orders", "relkind": "r", "name": "orders_placed_check", "type": "c",
				"expression": "(placed > '2000-01-01'::date)", "inherited": true},
			{"schema": "audit", "table": "log", "relkind": "r", "name": "log_order_fk", "type": "f",
				"columns": []string{"order_id"}, "ref_schema": "sales", "ref_table": "orders",
				"ref_columns": []string{"id"}, "match": "s", "on_update": "a", "on_delete": "c"},
			{"schema": "audit", "table": "log", "relkind": "r", "name": "log_excl", "type": "x"},
		}},
		{Kind: model.KindIndex, Rows: []Row{
			{"schema": "sales", "table": "orders", "relkind": "r", "name": "orders_placed_ix",
				"access_method": "btree", "key_columns": []string{"placed", ""},
				"key_exprs": []string{"", "(id + 1)"}, "key_orders": []string{"desc", ""}},
		}},
		{Kind: model.KindTrigger, Rows: []Row{
			{"schema": "sales", "table": "orders", "relkind": "r", "name": "orders_stamp",
				"tgtype": int16(triggerRow | triggerBefore | triggerInsert | triggerUpdate), "procedure": "sales.stamp()"},
		}},
		{Kind: model.KindFunction, Rows: []Row{
			{"schema": "sales", "name": "stamp", "owner": "admin", "arguments": "", "allargs": "",
				"returns": "trigger", "language": "plpgsql", "source": "BEGIN RETURN NEW; END",
				"volatility": "v", "cost": float32(100), "rows": float32(0)},
		}},
	}
}

func TestMaterialize(t *testing.T) {
	db, err := Materialize(shopRows(), Options{})
	require.NoError(t, err)

	assert.False(t, db.Has(model.SchemaKey("pg_catalog")))
	assert.False(t, db.Has(model.SchemaKey("information_schema")))
	assert.False(t, db.Has(model.SchemaKey("pg_toast_temp_1")))
	require.True(t, db.Has(model.SchemaKey("public")))

	pub, _ := db.Get(model.SchemaKey("public"))
	assert.Equal(t, []model.Grant{{Grantee: "PUBLIC", Privileges: []string{"usage", "create"}}}, pub.Meta().Privileges)
	require.NotNil(t, pub.Meta().Comment)
	assert.Equal(t, "standard public schema", *pub.Meta().Comment)

	orders := model.RelationKey(model.KindTable, "sales", "orders")
	o, ok := db.Get(orders)
	require.True(t, ok)
	assert.Equal(t, []model.Grant{{Grantee: "clerk", Privileges: []string{"insert", "select"}}}, o.Meta().Privileges)

	cols := db.Children(orders, model.KindColumn)
	require.Len(t, cols, 2)
	id := cols[0].(*model.Column)
	assert.Nil(t, id.Statistics)
	placed := cols[1].(*model.Column)
	require.NotNil(t, placed.Statistics)
	assert.Equal(t, 200, *placed.Statistics)

	check := db.Children(orders, model.KindConstraint)
	require.Len(t, check, 2)
	for _, c := range check {
		if c.(*model.Constraint).Type == model.ConstraintCheck {
			assert.Nil(t, c.(*model.Constraint).Columns)
		}
	}

	rush := model.RelationKey(model.KindTable, "sales", "rush_orders")
	assert.Equal(t, []model.Key{orders}, db.Parents(rush))
	for _, c := range db.Children(rush, model.KindColumn) {
		col := c.(*model.Column)
		assert.Equal(t, col.Name.Name != "courier", col.Inherited, col.Name.Name)
	}

	fk, ok := db.Get(model.ChildKey(model.KindConstraint, model.RelationKey(model.KindTable, "audit", "log"), "log_order_fk"))
	require.True(t, ok)
	assert.Equal(t, "", fk.(*model.Constraint).Match)
	assert.Equal(t, "", fk.(*model.Constraint).OnUpdate)
	assert.Equal(t, "cascade", fk.(*model.Constraint).OnDelete)
	assert.False(t, db.Has(model.ChildKey(model.KindConstraint, model.RelationKey(model.KindTable, "audit", "log"), "log_excl")))

	ix := db.Children(orders, model.KindIndex)
	require.Len(t, ix, 1)
	index := ix[0].(*model.Index)
	assert.Equal(t, "", index.AccessMethod)
	require.Len(t, index.Keys, 2)
	assert.Equal(t, "placed", index.Keys[0].Column.Name)
	assert.Equal(t, "desc", index.Keys[0].Order)
	assert.Equal(t, "(id + 1)", index.Keys[1].Expression)

	tr := db.Children(orders, model.KindTrigger)
	require.Len(t, tr, 1)
	trig := tr[0].(*model.Trigger)
	assert.Equal(t, "before", trig.Timing)
	assert.Equal(t, []string{"insert", "update"}, trig.Events)
	assert.Equal(t, "row", trig.Level)

	fns := db.Objects(model.KindFunction)
	require.Len(t, fns, 1)
	fn := fns[0].(*model.Function)
	assert.Zero(t, fn.Cost)
	assert.Equal(t, "", fn.Volatility)
	assert.Equal(t, "()", fn.Signature())
}

func TestMaterializeRoundTrip(t *testing.T) {
	db, err := Materialize(shopRows(), Options{})
	require.NoError(t, err)

	text, err := spec.Marshal(db, spec.Options{})
	require.NoError(t, err)
	back, err := spec.Unmarshal(text, nil)
	require.NoError(t, err, string(text))

	cs := diff.Compute(db, back)
	assert.True(t, cs.Empty(), "%v\n%s", cs.Changes, text)
}

func TestMaterializeIgnoresRowEstimate(t *testing.T) {
	batch := func(estimate float32) []Batch {
		return []Batch{
			{Kind: model.KindSchema, Rows: []Row{{"name": "app", "owner": "admin"}}},
			{Kind: model.KindTable, Rows: []Row{{"schema": "app", "name": "t", "owner": "admin", "row_estimate": estimate}}},
		}
	}
	before, err := Materialize(batch(0), Options{})
	require.NoError(t, err)
	after, err := Materialize(batch(125000), Options{})
	require.NoError(t, err)
	assert.True(t, diff.Compute(before, after).Empty())
}

func TestMaterializeWithoutPublic(t *testing.T) {
	db, err := Materialize([]Batch{
		{Kind: model.KindSchema, Rows: []Row{{"name": "app", "owner": "admin"}}},
		{Kind: model.KindTable, Rows: []Row{{"schema": "app", "name": "t", "owner": "admin"}}},
	}, Options{})
	require.NoError(t, err)
	assert.False(t, db.Has(model.SchemaKey("public")))
	assert.Equal(t, 2, db.Len())
}

func TestMaterializeExclude(t *testing.T) {
	db, err := Materialize(shopRows(), Options{ExcludeSchemas: []string{"audit"}})
	require.NoError(t, err)
	assert.False(t, db.Has(model.SchemaKey("audit")))
	assert.Empty(t, db.Edges(model.RelReferences))
	assert.True(t, db.Has(model.RelationKey(model.KindTable, "sales", "orders")))
}

func TestMaterializeSelectionPrunesReferences(t *testing.T) {
	db, err := Materialize(shopRows(), Options{Schemas: []string{"audit"}})
	require.NoError(t, err)

	logKey := model.RelationKey(model.KindTable, "audit", "log")
	require.True(t, db.Has(logKey))
	assert.False(t, db.Has(model.SchemaKey("sales")))
	assert.False(t, db.Has(model.SchemaKey("public")))
	assert.Empty(t, db.Children(logKey, model.KindConstraint))
	assert.Len(t, db.Children(logKey, model.KindColumn), 1)
}

func TestMaterializeSkipsOrphans(t *testing.T) {
	db, err := Materialize([]Batch{
		{Kind: model.KindSchema, Rows: []Row{{"name": "app"}}},
		{Kind: model.KindColumn, Rows: []Row{
			{"schema": "app", "table": "ext_owned", "relkind": "r", "name": "a", "type": "int"},
		}},
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, db.Len())
}

func TestMaterializeErrors(t *testing.T) {
	t.Run("duplicate", func(t *testing.T) {
		_, err := Materialize([]Batch{
			{Kind: model.KindSchema, Rows: []Row{{"name": "app"}, {"name": "app"}}},
		}, Options{})
		require.Error(t, err)
		assert.True(t, errs.IsDuplicateObject(err))
	})
	t.Run("dangling inheritance", func(t *testing.T) {
		_, err := Materialize([]Batch{
			{Kind: model.KindSchema, Rows: []Row{{"name": "app"}}},
			{Kind: model.KindTable, Rows: []Row{
				{"schema": "app", "name": "child", "parent_schemas": []string{"app"}, "parent_names": []string{"gone"}},
			}},
		}, Options{})
		require.Error(t, err)
		assert.True(t, errs.IsDanglingReference(err))
	})
	t.Run("ragged arrays", func(t *testing.T) {
		_, err := Materialize([]Batch{
			{Kind: model.KindSchema, Rows: []Row{{"name": "app"}}},
			{Kind: model.KindDomain, Rows: []Row{
				{"schema": "app", "name": "d", "type": "int", "check_names": []string{"a", "b"}, "check_exprs": []string{"x"}},
			}},
		}, Options{})
		require.Error(t, err)
		assert.True(t, errs.IsInvalidInput(err))
		assert.Equal(t, "domain app.d", errs.KeyOf(err))
	})
}

func TestMaterializeDatabaseObjects(t *testing.T) {
	db, err := Materialize([]Batch{
		{Kind: model.KindCast, Rows: []Row{
			{"source": "text", "target": "app.mood", "method": "i", "context": "a", "description": "lenient"},
		}},
		{Kind: model.KindForeignDataWrapper, Rows: []Row{{"name": "file_fdw", "owner": "postgres", "handler": "file_fdw_handler"}}},
		{Kind: model.KindForeignServer, Rows: []Row{{"name": "files", "owner": "postgres", "wrapper": "file_fdw"}}},
		{Kind: model.KindUserMapping, Rows: []Row{
			{"server": "files", "name": "public", "options": []string{"user=reader"}},
		}},
		{Kind: model.KindEventTrigger, Rows: []Row{
			{"name": "ddl_log", "owner": "postgres", "event": "ddl_command_end", "procedure": "log_ddl", "enabled": "O"},
			{"name": "ddl_off", "owner": "postgres", "event": "sql_drop", "procedure": "log_ddl", "enabled": "D"},
		}},
		{Kind: model.KindExtension, Rows: []Row{{"name": "hstore", "schema": "public", "version": "1.8", "owner": "postgres"}}},
	}, Options{})
	require.NoError(t, err)

	casts := db.Objects(model.KindCast)
	require.Len(t, casts, 1)
	c := casts[0].(*model.Cast)
	assert.Equal(t, "(text AS app.mood)", c.Name.Name)
	assert.Equal(t, "inout", c.Method)
	assert.Equal(t, "assignment", c.Context)

	server := model.Key{Kind: model.KindForeignServer, Name: "files"}
	um := db.Children(server, model.KindUserMapping)
	require.Len(t, um, 1)
	assert.Equal(t, "PUBLIC", um[0].Meta().Name.Name)

	ets := db.Objects(model.KindEventTrigger)
	require.Len(t, ets, 2)
	assert.Equal(t, "", ets[0].(*model.EventTrigger).Enabled)
	assert.Equal(t, "disabled", ets[1].(*model.EventTrigger).Enabled)

	ext := db.Objects(model.KindExtension)
	require.Len(t, ext, 1)
	assert.Equal(t, "public", ext[0].(*model.Extension).InSchema)
	assert.Empty(t, ext[0].Meta().Owner)
}

type fakeSource map[model.Kind][]Row

func (f fakeSource) Rows(_ context.Context, kind model.Kind) ([]Row, error) {
	if rows, ok := f[kind]; ok && rows == nil {
		return nil, errs.New(errs.ErrKindQueryFailed, "boom")
	}
	return f[kind], nil
}

func TestLoad(t *testing.T) {
	src := fakeSource{
		model.KindSchema: {{"name": "app", "owner": "admin"}},
		model.KindTable:  {{"schema": "app", "name": "t", "owner": "admin"}},
	}
	db, err := Load(context.Background(), src, Options{})
	require.NoError(t, err)
	assert.True(t, db.Has(model.RelationKey(model.KindTable, "app", "t")))

	src[model.KindView] = nil
	_, err = Load(context.Background(), src, Options{})
	require.Error(t, err)
	assert.True(t, errs.IsQueryFailed(err))
}

func TestParseACL(t *testing.T) {
	tests := []struct {
		name  string
		acl   string
		owner string
		want  []model.Grant
	}{
		{name: "empty", acl: "", want: nil},
		{name: "public", acl: "=r/admin", owner: "admin",
			want: []model.Grant{{Grantee: "PUBLIC", Privileges: []string{"select"}}}},
		{name: "owner skipped", acl: "{admin=arwdDxt/admin,bob=r*w/admin}", owner: "admin",
			want: []model.Grant{{Grantee: "bob", Privileges: []string{"select", "update"}}}},
		{name: "quoted role", acl: `"Sales Team"=X/admin,"a=b,c"=U/admin`, owner: "admin",
			want: []model.Grant{
				{Grantee: "Sales Team", Privileges: []string{"execute"}},
				{Grantee: "a=b,c", Privileges: []string{"usage"}},
			}},
		{name: "no grantor", acl: "carol=C", want: []model.Grant{{Grantee: "carol", Privileges: []string{"create"}}}},
		{name: "garbage", acl: "nonsense", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseACL(tt.acl, tt.owner))
		})
	}
}

func TestDecodeTrigger(t *testing.T) {
	timing, events, level := decodeTrigger(triggerDelete | triggerTruncate)
	assert.Equal(t, "after", timing)
	assert.Equal(t, []string{"delete", "truncate"}, events)
	assert.Equal(t, "statement", level)

	timing, events, level = decodeTrigger(triggerInstead | triggerRow | triggerInsert)
	assert.Equal(t, "instead of", timing)
	assert.Equal(t, []string{"insert"}, events)
	assert.Equal(t, "row", level)
}

func TestSystemSchema(t *testing.T) {
	for name, want := range map[string]bool{
		"pg_catalog": true, "information_schema": true, "pg_toast": true,
		"pg_temp_3": true, "pg_toast_temp_3": true, "public": false, "pg_app": false,
	} {
		assert.Equal(t, want, SystemSchema(name), name)
	}
}

func TestRowAccessors(t *testing.T) {
	r := Row{"s": []byte("x"), "b": "t", "i": "42", "f": float32(1.5), "a": []any{"p", nil, 3}, "n": nil}
	assert.Equal(t, "x", r.Str("s"))
	assert.True(t, r.Bool("b"))
	assert.Equal(t, int64(42), r.Int("i"))
	assert.Equal(t, 1.5, r.Float("f"))
	assert.Equal(t, []string{"p", "", "3"}, r.Strs("a"))
	assert.Nil(t, r.OptStr("n"))
	assert.Nil(t, r.OptInt("missing"))
}
