package spec

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/koustreak/dbspec/internal/errs"
	"github.com/koustreak/dbspec/internal/filestore"
	"github.com/koustreak/dbspec/internal/filestore/local"
	"github.com/koustreak/dbspec/internal/ident"
	"github.com/koustreak/dbspec/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
schema public:
  owner: postgres
  description: standard public schema
  privileges:
  - PUBLIC: [usage]
  table Orders:
    columns:
    - id:
        type: integer
        not_null: true
        default: nextval('orders_id_seq'::regclass)
    - Order Date: date
    - customer_id:
        type: integer
        statistics: 200
    primary_key:
      orders_pkey:
        columns: [id]
    foreign_keys:
      orders_customer_fk:
        columns: [customer_id]
        references:
          schema: sales
          table: customers
          columns: [id]
        on_delete: cascade
        deferrable: true
    indexes:
      orders_date_ix:
        keys:
        - Order Date
        - {expression: (id + 1)}
        - customer_id: {order: desc}
        predicate: (id > 0)
  sequence orders_id_seq:
    start_value: 1
    increment_by: 1
    cache_value: 1
    owner_table: Orders
    owner_column: id
  view recent:
    definition: |
      SELECT id
        FROM "Orders"
       WHERE id > 10;
  function touch(integer):
    returns: integer
    language: plpgsql
    leakproof: true
    source: |
      BEGIN
        RETURN $1;
      END;
schema sales:
  table customers:
    columns:
    - id: {type: integer, not_null: true}
    primary_key:
      customers_pkey:
        columns: [id]
extension plpgsql:
  schema: pg_catalog
  description: PL/pgSQL procedural language
cast (text AS integer):
  context: explicit
  method: inout
foreign data wrapper files:
  handler: file_fdw_handler
  server local_files:
    options: [root=/tmp]
    user mappings:
      PUBLIC:
        options: [user=nobody]
`

func TestUnmarshal_Sample(t *testing.T) {
	db, err := Unmarshal([]byte(sample), ident.DefaultPolicy())
	require.NoError(t, err)

	tk := model.RelationKey(model.KindTable, "public", "Orders")
	tbl, ok := db.Get(tk)
	require.True(t, ok)
	assert.True(t, tbl.Meta().Name.Quoted)

	var cols []string
	for _, c := range db.Children(tk, model.KindColumn) {
		cols = append(cols, c.Meta().Name.Name)
	}
	assert.Equal(t, []string{"id", "Order Date", "customer_id"}, cols)

	od, _ := db.Get(model.ChildKey(model.KindColumn, tk, "Order Date"))
	assert.True(t, od.Meta().Name.Quoted)
	assert.Equal(t, "date", od.(*model.Column).Type)

	fk, _ := db.Get(model.ChildKey(model.KindConstraint, tk, "orders_customer_fk"))
	con := fk.(*model.Constraint)
	assert.Equal(t, model.ConstraintForeignKey, con.Type)
	assert.Equal(t, "sales", con.Ref.Schema.Name)
	assert.Equal(t, "cascade", con.OnDelete)

	ix, _ := db.Get(model.ChildKey(model.KindIndex, tk, "orders_date_ix"))
	keys := ix.(*model.Index).Keys
	require.Len(t, keys, 3)
	assert.Equal(t, "(id + 1)", keys[1].Expression)
	assert.Equal(t, "desc", keys[2].Order)

	v, _ := db.Get(model.RelationKey(model.KindView, "public", "recent"))
	assert.Equal(t, "SELECT id\n  FROM \"Orders\"\n WHERE id > 10;\n", v.(*model.View).Definition)

	fn, ok := db.Get(model.Key{Kind: model.KindFunction, Schema: "public", Name: "touch(integer)"})
	require.True(t, ok)
	assert.True(t, fn.(*model.Function).LeakProof)

	_, ok = db.Get(model.Key{Kind: model.KindCast, Name: "(text AS integer)"})
	assert.True(t, ok)
	assert.Len(t, db.Objects(model.KindUserMapping), 1)
	assert.Len(t, db.Edges(model.RelOwnedBy), 1)
}

func TestMarshal_RoundTrip(t *testing.T) {
	first, err := Unmarshal([]byte(sample), ident.DefaultPolicy())
	require.NoError(t, err)

	out, err := Marshal(first, Options{})
	require.NoError(t, err)
	second, err := Unmarshal(out, ident.DefaultPolicy())
	require.NoError(t, err, string(out))

	assertSameModel(t, first, second)

	again, err := Marshal(second, Options{})
	require.NoError(t, err)
	assert.Equal(t, string(out), string(again), "serialization must be deterministic")
}

func TestMarshal_LiteralBlocks(t *testing.T) {
	db, err := Unmarshal([]byte(sample), ident.DefaultPolicy())
	require.NoError(t, err)
	out, err := Marshal(db, Options{})
	require.NoError(t, err)

	assert.Contains(t, string(out), "definition: |\n")
	assert.Contains(t, string(out), "      RETURN $1;\n")
}

func TestMarshal_NoOwnerNoPrivileges(t *testing.T) {
	db, err := Unmarshal([]byte(sample), ident.DefaultPolicy())
	require.NoError(t, err)
	out, err := Marshal(db, Options{NoOwner: true, NoPrivileges: true})
	require.NoError(t, err)

	assert.NotContains(t, string(out), "owner: postgres")
	assert.NotContains(t, string(out), "privileges:")
}

func TestUnmarshal_SyntaxErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown kind", "widget w1: {}\n"},
		{"table at top level", "table t1: {}\n"},
		{"schema inside schema", "schema a:\n  schema b: {}\n"},
		{"unknown attribute", "schema a:\n  table t:\n    colour: red\n"},
		{"columns not a list", "schema a:\n  table t:\n    columns: {c1: integer}\n"},
		{"bad signature", "schema a:\n  function f: {}\n"},
		{"bad yaml", "schema a: [\n"},
		{"not a mapping", "- a\n- b\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.doc), nil)
			require.Error(t, err)
			assert.True(t, errs.IsSpecSyntax(err), err.Error())
		})
	}
}

func TestUnmarshal_SemanticErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		key     string
		dangles bool
	}{
		{
			name:    "index on missing column",
			doc:     "schema public:\n  table t:\n    columns:\n    - c1: integer\n    indexes:\n      ix:\n        keys: [c9]\n",
			key:     "index public.t.ix",
			dangles: true,
		},
		{
			name:    "foreign key to missing table",
			doc:     "schema public:\n  table t:\n    columns:\n    - c1: integer\n    foreign_keys:\n      fk:\n        columns: [c1]\n        references: {table: nope, columns: [id]}\n",
			key:     "constraint public.t.fk",
			dangles: true,
		},
		{
			name: "bad foreign key action",
			doc:  "schema public:\n  table t:\n    columns:\n    - c1: integer\n    foreign_keys:\n      fk:\n        columns: [c1]\n        references: {table: t, columns: [c1]}\n        on_delete: explode\n",
			key:  "constraint public.t.fk",
		},
		{
			name: "function without body",
			doc:  "schema public:\n  function f():\n    returns: integer\n    language: sql\n",
			key:  "function public.f()",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := Unmarshal([]byte(tt.doc), nil)
			assert.Nil(t, db)
			require.Error(t, err)
			assert.True(t, errs.IsSpecSemantic(err), err.Error())
			assert.Equal(t, tt.dangles, errs.IsDanglingReference(err))
			assert.Equal(t, tt.key, errs.KeyOf(err))
		})
	}
}

func TestUnmarshal_Duplicate(t *testing.T) {
	doc := "schema public:\n  table t:\n    columns:\n    - c1: integer\n    - c1: text\n"
	_, err := Unmarshal([]byte(doc), nil)
	assert.True(t, errs.IsDuplicateObject(err))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "orders", FileName("orders"))
	assert.Equal(t, "%4Frders", FileName("Orders"))
	assert.Equal(t, "order%20date", FileName("order date"))
	assert.Equal(t, "f%28integer%29", FileName("f(integer)"))
	assert.NotEqual(t, FileName("T1"), FileName("t1"))
}

func TestWriteFiles_SplitAndCleanup(t *testing.T) {
	ctx := context.Background()
	store, err := local.New(ctx, filestore.LocalConfig(t.TempDir()))
	require.NoError(t, err)

	db, err := Unmarshal([]byte(sample), ident.DefaultPolicy())
	require.NoError(t, err)

	l := Layout{Bucket: ".", Dir: "prod", DBName: "app", Split: SplitObject}
	written, err := WriteFiles(ctx, store, db, l)
	require.NoError(t, err)
	assert.Equal(t, "prod/database.app.yaml", written[0])
	assert.Contains(t, written, "prod/schema.public.yaml")
	assert.Contains(t, written, "prod/schema.public/table.%4Frders.yaml")
	assert.Contains(t, written, "prod/schema.public/function.touch%28integer%29.yaml")

	back, err := ReadFiles(ctx, store, l, ident.DefaultPolicy())
	require.NoError(t, err)
	assertSameModel(t, db, back)

	// second dump without the view: its file must go away
	smaller := strings.Replace(sample, "  view recent:\n    definition: |\n      SELECT id\n        FROM \"Orders\"\n       WHERE id > 10;\n", "", 1)
	db2, err := Unmarshal([]byte(smaller), ident.DefaultPolicy())
	require.NoError(t, err)
	_, err = WriteFiles(ctx, store, db2, l)
	require.NoError(t, err)

	_, err = store.StatObject(ctx, ".", "prod/schema.public/view.recent.yaml")
	assert.True(t, errs.IsNotFound(err))
	objs, err := store.ListObjects(ctx, ".", filestore.ListOptions{Prefix: "prod/", Recursive: true})
	require.NoError(t, err)
	for _, o := range objs {
		assert.NotContains(t, o.Key, "view.")
	}
}

func TestWriteFiles_SchemaSplitIsDeterministic(t *testing.T) {
	ctx := context.Background()
	store, err := local.New(ctx, filestore.LocalConfig(t.TempDir()))
	require.NoError(t, err)
	db, err := Unmarshal([]byte(sample), ident.DefaultPolicy())
	require.NoError(t, err)

	l := Layout{Bucket: ".", DBName: "app", Split: SplitSchema}
	first, err := WriteFiles(ctx, store, db, l)
	require.NoError(t, err)
	before, err := filestore.ReadAll(ctx, store, ".", "schema.public.yaml")
	require.NoError(t, err)

	second, err := WriteFiles(ctx, store, db, l)
	require.NoError(t, err)
	after, err := filestore.ReadAll(ctx, store, ".", "schema.public.yaml")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, string(before), string(after))
}

func TestReadFiles_RejectsEscapingReference(t *testing.T) {
	ctx := context.Background()
	store, err := local.New(ctx, filestore.LocalConfig(t.TempDir()))
	require.NoError(t, err)
	root := "schema public: ../outside.yaml\n"
	_, err = store.PutObject(ctx, ".", "database.app.yaml", strings.NewReader(root), int64(len(root)), filestore.ContentTypeYAML)
	require.NoError(t, err)

	_, err = ReadFiles(ctx, store, Layout{Bucket: ".", DBName: "app"}, nil)
	assert.True(t, errs.IsSpecSyntax(err))
}

func TestReadFiles_MissingRoot(t *testing.T) {
	ctx := context.Background()
	store, err := local.New(ctx, filestore.LocalConfig(t.TempDir()))
	require.NoError(t, err)

	_, err = ReadFiles(ctx, store, Layout{Bucket: ".", Dir: "prod", DBName: "app"}, nil)
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
	assert.Equal(t, "prod/database.app.yaml", errs.KeyOf(err))

	// a first dump into an empty store has nothing to clean up
	db, err := Unmarshal([]byte(sample), ident.DefaultPolicy())
	require.NoError(t, err)
	_, err = WriteFiles(ctx, store, db, Layout{Bucket: ".", Dir: "prod", DBName: "app"})
	require.NoError(t, err)
}

// assertSameModel compares two models by identity key and attributes.
func assertSameModel(t *testing.T, a, b *model.Database) {
	t.Helper()
	require.Equal(t, a.Len(), b.Len())
	for _, k := range a.Keys() {
		ao, _ := a.Get(k)
		bo, ok := b.Get(k)
		if !assert.True(t, ok, "missing %s", k) {
			continue
		}
		diff := cmp.Diff(ao, bo, cmp.AllowUnexported(model.Base{}), cmpopts.EquateEmpty())
		assert.Empty(t, diff, "%s differs", k)
	}
	var ac, bc []string
	for _, c := range a.Objects(model.KindColumn) {
		ac = append(ac, c.Key().String())
	}
	for _, c := range b.Objects(model.KindColumn) {
		bc = append(bc, c.Key().String())
	}
	assert.Equal(t, ac, bc, "column order")
}
