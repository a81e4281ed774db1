// Package model is the in-memory representation of a database schema.
//
// A Database is produced once by a Builder, from either a specification
// document or catalog rows, and is read-only afterwards. Objects are stored
// in an arena keyed by identity; relationships (inheritance, sequence
// ownership, foreign-key targets) are key-to-key edges rather than pointers.
package model

import (
	"sort"
	"strings"

	"github.com/koustreak/dbspec/internal/errs"
	"github.com/koustreak/dbspec/internal/ident"
)

// Rel labels an edge between two objects.
type Rel uint8

const (
	RelInherits   Rel = iota + 1 // child table -> parent table
	RelOwnedBy                   // sequence -> owning column
	RelReferences                // foreign key -> referenced table, server -> wrapper, foreign table -> server
)

// Edge is a directed relation between two keys.
type Edge struct {
	From Key
	To   Key
	Rel  Rel
}

// Builder assembles a Database. It is not safe for concurrent use.
type Builder struct {
	policy   *ident.Policy
	objects  map[Key]Object
	order    []Key
	children map[Key][]Key
	built    bool
}

// NewBuilder returns an empty Builder. A nil policy means ident.DefaultPolicy.
func NewBuilder(policy *ident.Policy) *Builder {
	if policy == nil {
		policy = ident.DefaultPolicy()
	}
	return &Builder{
		policy:   policy,
		objects:  make(map[Key]Object),
		children: make(map[Key][]Key),
	}
}

// Policy returns the quoting policy used by this builder.
func (b *Builder) Policy() *ident.Policy { return b.policy }

// Ident computes an identifier and its quoting flag under the builder policy.
func (b *Builder) Ident(name string) ident.Ident { return b.policy.Ident(name) }

// Has reports whether an object with key k was already added.
func (b *Builder) Has(k Key) bool {
	_, ok := b.objects[k]
	return ok
}

// Get returns a previously added object.
func (b *Builder) Get(k Key) (Object, bool) {
	o, ok := b.objects[k]
	return o, ok
}

// Add registers obj. The builder takes ownership of it. The owning schema or
// parent must already be present and must support the object's kind.
func (b *Builder) Add(obj Object) error {
	if b.built {
		return errs.New(errs.ErrKindInvalidInput, "builder already built")
	}
	m := obj.Meta()
	if !m.Kind.valid() {
		return errs.Keyed(errs.ErrKindUnsupportedObject, m.Name.Name, "unknown object kind")
	}
	if m.Name.Name == "" {
		return errs.Newf(errs.ErrKindInvalidInput, "%s without a name", m.Kind)
	}
	m.sig = signature(obj)
	key := obj.Key()

	if m.Kind.Scope() == ScopeChild && m.ParentKind == KindUnknown {
		return errs.Keyed(errs.ErrKindInvalidInput, key.String(), "child object without an owner")
	}
	if _, dup := b.objects[key]; dup {
		return errs.Keyed(errs.ErrKindDuplicateObject, key.String(), "object already defined")
	}
	if parent, ok := key.ParentKey(); ok {
		if _, exists := b.objects[parent]; !exists {
			return errs.Keyedf(errs.ErrKindDanglingReference, key.String(), "owner %s does not exist", parent)
		}
		if parent.Kind != KindSchema && !parent.Kind.Supports(m.Kind) {
			return errs.Keyedf(errs.ErrKindUnsupportedObject, key.String(), "%s cannot own a %s", parent.Kind, m.Kind)
		}
		b.children[parent] = append(b.children[parent], key)
	}

	b.objects[key] = obj
	b.order = append(b.order, key)
	return nil
}

// Build validates cross-object references, marks inherited columns and
// constraints, and returns the finished Database. On error no Database is
// returned.
func (b *Builder) Build() (*Database, error) {
	if b.built {
		return nil, errs.New(errs.ErrKindInvalidInput, "builder already built")
	}
	b.built = true

	db := &Database{
		policy:   b.policy,
		objects:  b.objects,
		order:    b.order,
		children: b.children,
		byKind:   make(map[Kind][]Key),
	}
	for _, k := range b.order {
		db.byKind[k.Kind] = append(db.byKind[k.Kind], k)
	}

	if err := db.link(); err != nil {
		return nil, err
	}
	db.markInherited()
	if err := db.validate(); err != nil {
		return nil, err
	}
	return db, nil
}

// signature is the key suffix that disambiguates overloaded objects.
func signature(obj Object) string {
	switch o := obj.(type) {
	case *Function:
		return "(" + o.Arguments + ")"
	case *Aggregate:
		return "(" + o.Arguments + ")"
	case *Operator:
		return "(" + orNone(o.LeftArg) + ", " + orNone(o.RightArg) + ")"
	case *OperatorClass:
		return " using " + o.IndexMethod
	case *OperatorFamily:
		return " using " + o.IndexMethod
	}
	return ""
}

func orNone(s string) string {
	if s == "" {
		return "NONE"
	}
	return s
}

// Database is an immutable model instance.
type Database struct {
	policy   *ident.Policy
	objects  map[Key]Object
	order    []Key
	children map[Key][]Key
	byKind   map[Kind][]Key
	edges    []Edge
	parents  map[Key][]Key
}

// Empty returns a Database with no objects.
func Empty(policy *ident.Policy) *Database {
	db, _ := NewBuilder(policy).Build()
	return db
}

// Policy returns the quoting policy the model was built with.
func (d *Database) Policy() *ident.Policy { return d.policy }

// Len returns the number of objects.
func (d *Database) Len() int { return len(d.order) }

// Get looks up an object by key.
func (d *Database) Get(k Key) (Object, bool) {
	o, ok := d.objects[k]
	return o, ok
}

// Has reports whether k exists.
func (d *Database) Has(k Key) bool {
	_, ok := d.objects[k]
	return ok
}

// Keys returns every key in creation order.
func (d *Database) Keys() []Key {
	return append([]Key(nil), d.order...)
}

// Objects returns all objects of kind in creation order.
func (d *Database) Objects(kind Kind) []Object {
	keys := d.byKind[kind]
	out := make([]Object, len(keys))
	for i, k := range keys {
		out[i] = d.objects[k]
	}
	return out
}

// Children returns the objects of kind owned by parent in creation order.
// For a column this is the column position order.
func (d *Database) Children(parent Key, kind Kind) []Object {
	var out []Object
	for _, k := range d.children[parent] {
		if k.Kind == kind {
			out = append(out, d.objects[k])
		}
	}
	return out
}

// Schemas returns the schemas ordered by name.
func (d *Database) Schemas() []*Schema {
	objs := d.Objects(KindSchema)
	out := make([]*Schema, 0, len(objs))
	for _, o := range objs {
		out = append(out, o.(*Schema))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name.Name < out[j].Name.Name })
	return out
}

// Edges returns the edges of rel, or all edges when rel is zero.
func (d *Database) Edges(rel Rel) []Edge {
	var out []Edge
	for _, e := range d.edges {
		if rel == 0 || e.Rel == rel {
			out = append(out, e)
		}
	}
	return out
}

// Parents returns the direct inheritance parents of a table.
func (d *Database) Parents(table Key) []Key {
	return d.parents[table]
}

// link resolves the named references carried by objects into edges.
func (d *Database) link() error {
	d.parents = make(map[Key][]Key)
	for _, k := range d.order {
		switch o := d.objects[k].(type) {
		case *Table:
			for _, p := range o.Inherits {
				pk := p.Key(KindTable)
				if !d.Has(pk) {
					return errs.Keyedf(errs.ErrKindDanglingReference, k.String(), "inherits from missing %s", pk)
				}
				d.parents[k] = append(d.parents[k], pk)
				d.edges = append(d.edges, Edge{From: k, To: pk, Rel: RelInherits})
			}
		case *Constraint:
			if o.Type != ConstraintForeignKey {
				continue
			}
			rk := o.Ref.Key(KindTable)
			if !d.Has(rk) {
				return errs.Keyedf(errs.ErrKindDanglingReference, k.String(), "references missing %s", rk)
			}
			d.edges = append(d.edges, Edge{From: k, To: rk, Rel: RelReferences})
		case *Sequence:
			if o.OwnerTable.IsZero() {
				continue
			}
			tk := RelationKey(KindTable, o.Schema.Name, o.OwnerTable.Name)
			ck := ChildKey(KindColumn, tk, o.OwnerColumn.Name)
			if !d.Has(ck) {
				return errs.Keyedf(errs.ErrKindDanglingReference, k.String(), "owned by missing %s", ck)
			}
			d.edges = append(d.edges, Edge{From: k, To: ck, Rel: RelOwnedBy})
		case *ForeignServer:
			wk := Key{Kind: KindForeignDataWrapper, Name: o.Wrapper.Name}
			if !d.Has(wk) {
				return errs.Keyedf(errs.ErrKindDanglingReference, k.String(), "uses missing %s", wk)
			}
			d.edges = append(d.edges, Edge{From: k, To: wk, Rel: RelReferences})
		case *ForeignTable:
			sk := Key{Kind: KindForeignServer, Name: o.Server.Name}
			if !d.Has(sk) {
				return errs.Keyedf(errs.ErrKindDanglingReference, k.String(), "uses missing %s", sk)
			}
			d.edges = append(d.edges, Edge{From: k, To: sk, Rel: RelReferences})
		}
	}
	return nil
}

// markInherited tags child columns and check constraints that also exist on
// a parent. Tables are visited in creation order, and parents must precede
// their children for multi-level chains; ancestors are walked explicitly so
// the result does not depend on that.
func (d *Database) markInherited() {
	for _, k := range d.byKind[KindTable] {
		ancestors := d.ancestors(k)
		if len(ancestors) == 0 {
			continue
		}
		for _, c := range d.Children(k, KindColumn) {
			col := c.(*Column)
			for _, a := range ancestors {
				if d.Has(ChildKey(KindColumn, a, col.Name.Name)) {
					col.Inherited = true
					break
				}
			}
		}
		for _, c := range d.Children(k, KindConstraint) {
			con := c.(*Constraint)
			if con.Type != ConstraintCheck {
				continue
			}
			for _, a := range ancestors {
				if d.Has(ChildKey(KindConstraint, a, con.Name.Name)) {
					con.Inherited = true
					break
				}
			}
		}
	}
}

func (d *Database) ancestors(k Key) []Key {
	var out []Key
	seen := map[Key]bool{k: true}
	queue := append([]Key(nil), d.parents[k]...)
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
		queue = append(queue, d.parents[p]...)
	}
	return out
}

// validate checks column references of constraints and indexes.
func (d *Database) validate() error {
	for _, k := range d.order {
		switch o := d.objects[k].(type) {
		case *Constraint:
			parent, _ := k.ParentKey()
			for _, c := range o.Columns {
				if !d.Has(ChildKey(KindColumn, parent, c.Name)) {
					return errs.Keyedf(errs.ErrKindDanglingReference, k.String(), "column %s does not exist", c.Name)
				}
			}
			if o.Type == ConstraintForeignKey {
				rk := o.Ref.Key(KindTable)
				if len(o.RefColumns) != len(o.Columns) {
					return errs.Keyedf(errs.ErrKindDanglingReference, k.String(),
						"%d columns reference %d columns of %s", len(o.Columns), len(o.RefColumns), rk)
				}
				for _, c := range o.RefColumns {
					if !d.Has(ChildKey(KindColumn, rk, c.Name)) {
						return errs.Keyedf(errs.ErrKindDanglingReference, k.String(),
							"referenced column %s of %s does not exist", c.Name, rk)
					}
				}
			}
		case *Index:
			parent, _ := k.ParentKey()
			if parent.Kind != KindTable {
				continue
			}
			for _, ik := range o.Keys {
				if ik.Column.IsZero() {
					continue
				}
				if !d.Has(ChildKey(KindColumn, parent, ik.Column.Name)) {
					return errs.Keyedf(errs.ErrKindDanglingReference, k.String(), "column %s does not exist", ik.Column.Name)
				}
			}
		}
	}
	return nil
}

// QualifiedName writes schema.name for schema-scoped objects, leaving the
// default schema implicit.
func QualifiedName(o Object) string {
	m := o.Meta()
	if m.Kind.Scope() == ScopeSchema {
		return ident.Qualify(m.Schema, m.Name)
	}
	return m.Name.SQL()
}

// KeyLess orders keys by kind, then by their string form.
func KeyLess(a, b Key) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	return strings.Compare(a.String(), b.String()) < 0
}
