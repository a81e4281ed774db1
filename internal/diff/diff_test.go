package diff

import (
	"testing"

	"github.com/koustreak/dbspec/internal/ident"
	"github.com/koustreak/dbspec/internal/model"
	"github.com/koustreak/dbspec/internal/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const inventory = `
schema public:
  table parent:
    columns:
    - id: {type: integer, not_null: true}
    - note: text
    check_constraints:
      positive_id:
        expression: (id > 0)
  table child:
    inherits: [parent]
    columns:
    - id: {type: integer, not_null: true}
    - note: text
    - extra: text
    check_constraints:
      positive_id:
        expression: (id > 0)
  table items:
    columns:
    - id: {type: integer, not_null: true}
    - name: {type: text, default: "'x'::text"}
    primary_key:
      items_pkey:
        columns: [id]
    indexes:
      items_name_ix:
        keys: [name]
  function add_one(integer):
    returns: integer
    language: sql
    source: SELECT $1 + 1
schema audit:
  table log:
    columns:
    - item_id: integer
    foreign_keys:
      log_item_fk:
        columns: [item_id]
        references: {schema: public, table: items, columns: [id]}
`

func load(t *testing.T, doc string) *model.Database {
	t.Helper()
	db, err := spec.Unmarshal([]byte(doc), ident.DefaultPolicy())
	require.NoError(t, err)
	return db
}

func keysOf(cs *ChangeSet, op Op) []model.Key {
	var out []model.Key
	for _, c := range cs.Changes {
		if c.Op == op {
			out = append(out, c.Key)
		}
	}
	return out
}

func local(db *model.Database) int {
	n := 0
	for _, k := range db.Keys() {
		o, _ := db.Get(k)
		if !inherited(o) {
			n++
		}
	}
	return n
}

func TestCompute_Identity(t *testing.T) {
	m := load(t, inventory)
	cs := Compute(m, m)
	assert.True(t, cs.Empty())
	assert.Empty(t, cs.Reordered)

	// a second, independently built copy compares equal too
	cs = Compute(m, load(t, inventory))
	assert.True(t, cs.Empty(), "%v", cs.Changes)
}

func TestCompute_Symmetry(t *testing.T) {
	m := load(t, inventory)
	empty := model.Empty(nil)

	up := Compute(empty, m)
	assert.Equal(t, local(m), up.Count(OpCreate))
	assert.Equal(t, len(up.Changes), up.Count(OpCreate))

	down := Compute(m, empty)
	assert.Equal(t, local(m), down.Count(OpDrop))
	assert.Equal(t, len(down.Changes), down.Count(OpDrop))

	creates := keysOf(up, OpCreate)
	drops := keysOf(down, OpDrop)
	require.Len(t, drops, len(creates))
	for i := range creates {
		assert.Equal(t, creates[i], drops[len(drops)-1-i], "drops mirror creates")
	}
}

func TestCompute_InheritedSuppressed(t *testing.T) {
	m := load(t, inventory)
	child := model.RelationKey(model.KindTable, "public", "child")

	up := Compute(model.Empty(nil), m)
	_, found := up.Find(model.ChildKey(model.KindConstraint, child, "positive_id"))
	assert.False(t, found, "inherited check must not be created on the child")
	_, found = up.Find(model.ChildKey(model.KindColumn, child, "id"))
	assert.False(t, found)
	_, found = up.Find(model.ChildKey(model.KindColumn, child, "extra"))
	assert.True(t, found)
}

func TestCompute_ColumnReorder(t *testing.T) {
	cur := load(t, "schema public:\n  table t:\n    columns:\n    - a: integer\n    - b: integer\n    - c: integer\n")
	tgt := load(t, "schema public:\n  table t:\n    columns:\n    - a: integer\n    - c: integer\n    - b: integer\n    - d: integer\n")

	cs := Compute(cur, tgt)
	require.Len(t, cs.Changes, 1)
	c := cs.Changes[0]
	assert.Equal(t, OpCreate, c.Op)
	assert.Equal(t, model.ChildKey(model.KindColumn, model.RelationKey(model.KindTable, "public", "t"), "d"), c.Key)
	assert.Equal(t, []model.Key{model.RelationKey(model.KindTable, "public", "t")}, cs.Reordered)
}

func TestCompute_ColumnInsertedInMiddle(t *testing.T) {
	cur := load(t, "schema public:\n  table t:\n    columns:\n    - a: integer\n    - b: integer\n    - c: integer\n")
	tgt := load(t, "schema public:\n  table t:\n    columns:\n    - a: integer\n    - x: text\n    - c: integer\n")

	cs := Compute(cur, tgt)
	tk := model.RelationKey(model.KindTable, "public", "t")
	assert.Equal(t, []model.Key{model.ChildKey(model.KindColumn, tk, "x")}, keysOf(cs, OpCreate))
	assert.Equal(t, []model.Key{model.ChildKey(model.KindColumn, tk, "b")}, keysOf(cs, OpDrop))
	assert.Empty(t, cs.Reordered)
}

func TestCompute_Rename(t *testing.T) {
	cur := load(t, "schema public:\n  table Acct:\n    columns:\n    - id: integer\n    - balance: numeric\n")
	tgt := load(t, "schema public:\n  table Accounts:\n    oldname: Acct\n    columns:\n    - id: integer\n    - balance: numeric\n")

	cs := Compute(cur, tgt)
	require.Len(t, cs.Changes, 1)
	c := cs.Changes[0]
	assert.Equal(t, OpRename, c.Op)
	assert.Equal(t, "Accounts", c.Key.Name)
	assert.Equal(t, "Acct", c.From.Name)
	assert.Empty(t, c.Attrs)
}

func TestCompute_RenameThenAlter(t *testing.T) {
	cur := load(t, "schema public:\n  table acct:\n    columns:\n    - id: integer\n    - bal: numeric\n")
	tgt := load(t, "schema public:\n  table accounts:\n    oldname: acct\n    options: [fillfactor=70]\n"+
		"    columns:\n    - id: integer\n    - balance:\n        type: numeric(12,2)\n        oldname: bal\n")

	cs := Compute(cur, tgt)
	var ops []Op
	for _, c := range cs.Changes {
		ops = append(ops, c.Op)
	}
	assert.Equal(t, []Op{OpRename, OpRename, OpAlter, OpAlter}, ops)

	alter, ok := cs.Find(model.RelationKey(model.KindTable, "public", "accounts"))
	require.True(t, ok)
	assert.Equal(t, OpRename, alter.Op, "rename comes first")
	assert.True(t, alter.Has("options"))

	col := cs.Changes[3]
	assert.Equal(t, "balance", col.Key.Name)
	assert.Equal(t, []string{"type"}, col.Attrs)
}

func TestCompute_StaleRenameHint(t *testing.T) {
	m := load(t, "schema public:\n  table accounts:\n    oldname: acct\n    columns:\n    - id: integer\n")
	assert.True(t, Compute(m, m).Empty())
}

func TestCompute_RenameHintToDeclaredName(t *testing.T) {
	cur := load(t, "schema public:\n  table acct:\n    columns:\n    - id: integer\n")
	tgt := load(t, "schema public:\n  table acct:\n    columns:\n    - id: integer\n"+
		"  table accounts:\n    oldname: acct\n    columns:\n    - id: integer\n")

	cs := Compute(cur, tgt)
	assert.Zero(t, cs.Count(OpRename))
	assert.Contains(t, keysOf(cs, OpCreate), model.RelationKey(model.KindTable, "public", "accounts"))
	assert.Empty(t, keysOf(cs, OpDrop))

	_, ok := cs.Find(model.RelationKey(model.KindTable, "public", "acct"))
	assert.False(t, ok, "acct is unchanged")
}

func TestCompute_Alter(t *testing.T) {
	cur := load(t, inventory)
	changed := `
schema public:
  owner: app
  table items:
    options: [fillfactor=70]
    columns:
    - id: {type: integer, not_null: true}
    - name: {type: text}
    primary_key:
      items_pkey:
        columns: [id]
    indexes:
      items_name_ix:
        keys: [name]
        unique: true
  function add_one(integer):
    returns: integer
    language: sql
    leakproof: true
    source: SELECT $1 + 1
`
	cs := Options{Schemas: []string{"public"}}.Compute(cur, load(t, changed))

	items := model.RelationKey(model.KindTable, "public", "items")
	tests := []struct {
		key   model.Key
		attrs []string
	}{
		{model.SchemaKey("public"), []string{"owner"}},
		{items, []string{"options"}},
		{model.ChildKey(model.KindColumn, items, "name"), []string{"default"}},
		{model.ChildKey(model.KindIndex, items, "items_name_ix"), []string{"unique"}},
		{model.Key{Kind: model.KindFunction, Schema: "public", Name: "add_one(integer)"}, []string{"leakproof"}},
	}
	for _, tt := range tests {
		c, ok := cs.Find(tt.key)
		if assert.True(t, ok, tt.key.String()) {
			assert.Equal(t, OpAlter, c.Op)
			assert.Equal(t, tt.attrs, c.Attrs, tt.key.String())
		}
	}

	// audit is outside the selection and untouched
	for _, c := range cs.Changes {
		assert.NotEqual(t, "audit", c.Key.Schema)
		assert.NotEqual(t, model.SchemaKey("audit"), c.Key)
	}
	assert.Zero(t, cs.Count(OpCreate))
	_, dropped := cs.Find(model.RelationKey(model.KindTable, "public", "child"))
	assert.True(t, dropped)
}

func TestCompute_OwnerOnlyWhenDeclared(t *testing.T) {
	cur := load(t, "schema public:\n  owner: postgres\n")
	tgt := load(t, "schema public: {}\n")
	assert.True(t, Compute(cur, tgt).Empty())
}

func TestGrantDelta(t *testing.T) {
	a := []model.Grant{{Grantee: "bob", Privileges: []string{"select", "update"}}, {Grantee: "alice", Privileges: []string{"select"}}}
	b := []model.Grant{{Grantee: "bob", Privileges: []string{"select"}}}

	assert.Equal(t, []model.Grant{
		{Grantee: "alice", Privileges: []string{"select"}},
		{Grantee: "bob", Privileges: []string{"update"}},
	}, GrantDelta(a, b))
	assert.Empty(t, GrantDelta(b, a))
}

func TestCompare_ConstraintReferences(t *testing.T) {
	cur := load(t, inventory)
	tgt := load(t, `
schema public:
  table items:
    columns:
    - id: {type: integer, not_null: true}
    - name: {type: text, default: "'x'::text"}
schema audit:
  table log:
    columns:
    - item_id: integer
    foreign_keys:
      log_item_fk:
        columns: [item_id]
        references: {schema: public, table: items, columns: [id]}
        on_delete: cascade
`)
	cs := Options{Schemas: []string{"audit"}}.Compute(cur, tgt)
	require.Len(t, cs.Changes, 1)
	assert.Equal(t, []string{"on_delete"}, cs.Changes[0].Attrs)
}
