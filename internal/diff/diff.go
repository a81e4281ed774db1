// Package diff compares two object models and produces a change-set: one
// Create, Drop, Alter or Rename entry per differing object.
//
// Compute is total over any two built models and never mutates them.
// Objects are matched by identity key; an explicit rename hint (oldname) on a
// target object matches it against the current object under its previous
// name instead. Inherited columns and check constraints are skipped on both
// sides: they are created and dropped with the parent that defines them.
package diff

import (
	"github.com/koustreak/dbspec/internal/logger"
	"github.com/koustreak/dbspec/internal/model"
)

// Op is the kind of change.
type Op uint8

const (
	OpCreate Op = iota + 1
	OpDrop
	OpAlter
	OpRename
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpDrop:
		return "drop"
	case OpAlter:
		return "alter"
	case OpRename:
		return "rename"
	}
	return "unknown"
}

// Change is a single object-level difference.
//
// Key is the target key for Create, Alter and Rename and the current key for
// Drop. From is the current key of a renamed object. Old is nil for Create
// and New is nil for Drop. Attrs lists the differing attributes of an Alter
// (or of a Rename whose object also changed).
type Change struct {
	Op    Op
	Key   model.Key
	From  model.Key
	Old   model.Object
	New   model.Object
	Attrs []string
}

// Has reports whether attr is among the differing attributes.
func (c Change) Has(attr string) bool {
	for _, a := range c.Attrs {
		if a == attr {
			return true
		}
	}
	return false
}

// ChangeSet is the result of Compute. Changes holds drops first, in reverse
// dependency order, then renames, creates and alters in dependency order.
type ChangeSet struct {
	Changes []Change

	// Reordered lists relations whose shared columns appear in a different
	// order. Column order cannot be altered in place, so these produce no
	// statements, but they are reported rather than lost.
	Reordered []model.Key

	// Current and Target are the compared models, kept for the synthesizer
	// to resolve references.
	Current *model.Database
	Target  *model.Database
}

// Empty reports whether there are no changes.
func (cs *ChangeSet) Empty() bool { return len(cs.Changes) == 0 }

// Count returns the number of changes with op.
func (cs *ChangeSet) Count(op Op) int {
	n := 0
	for _, c := range cs.Changes {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Find returns the first change for key.
func (cs *ChangeSet) Find(key model.Key) (Change, bool) {
	for _, c := range cs.Changes {
		if c.Key == key {
			return c, true
		}
	}
	return Change{}, false
}

// Options tune Compute.
type Options struct {
	// Schemas restricts the comparison to these schemas (database-wide
	// objects are always compared). Empty means every schema.
	Schemas []string
	Logger  *logger.Logger
}

// Compute diffs current against target with default options.
func Compute(current, target *model.Database) *ChangeSet {
	return Options{}.Compute(current, target)
}

// Compute diffs current against target. Either side may be empty.
func (o Options) Compute(current, target *model.Database) *ChangeSet {
	m := &matcher{
		cur:     current,
		tgt:     target,
		scope:   scopeFilter(o.Schemas),
		renamed: make(map[model.Key]model.Key),
		matched: make(map[model.Key]bool),
	}
	cs := &ChangeSet{Current: current, Target: target}

	var forward, renames []Change
	for _, kind := range model.Kinds() {
		for _, obj := range target.Objects(kind) {
			tk := obj.Key()
			if !m.scope(tk) {
				continue
			}
			ck, explicit := m.resolve(obj)
			old, exists := current.Get(ck)
			if exists {
				m.matched[ck] = true
			}
			if inherited(obj) || (exists && inherited(old)) {
				continue
			}
			if !exists {
				forward = append(forward, Change{Op: OpCreate, Key: tk, New: obj})
				continue
			}
			attrs := Compare(old, obj)
			if explicit {
				renames = append(renames, Change{Op: OpRename, Key: tk, From: ck, Old: old, New: obj, Attrs: attrs})
			}
			if len(attrs) > 0 {
				forward = append(forward, Change{Op: OpAlter, Key: tk, Old: old, New: obj, Attrs: attrs})
			}
			if kind.IsRelation() && m.reordered(ck, tk) {
				cs.Reordered = append(cs.Reordered, tk)
			}
		}
	}

	var drops []Change
	for _, kind := range model.Kinds() {
		for _, obj := range current.Objects(kind) {
			ck := obj.Key()
			if !m.scope(ck) || m.matched[ck] || inherited(obj) {
				continue
			}
			drops = append(drops, Change{Op: OpDrop, Key: ck, Old: obj})
		}
	}
	for i, j := 0, len(drops)-1; i < j; i, j = i+1, j-1 {
		drops[i], drops[j] = drops[j], drops[i]
	}

	cs.Changes = append(append(drops, renames...), forward...)
	o.Logger.DebugWith("change-set computed", map[string]interface{}{
		"create":    cs.Count(OpCreate),
		"drop":      cs.Count(OpDrop),
		"alter":     cs.Count(OpAlter),
		"rename":    cs.Count(OpRename),
		"reordered": len(cs.Reordered),
	})
	return cs
}

type matcher struct {
	cur, tgt *model.Database
	scope    func(model.Key) bool
	renamed  map[model.Key]model.Key // target key -> current key, explicit renames only
	matched  map[model.Key]bool      // current keys paired with a target object
}

// resolve returns the key obj has in the current model. Objects inside a
// renamed schema or owned by a renamed parent are looked up under the old
// owner name; an object's own oldname hint is honoured only when the object
// is not already present under its new name and the target does not still
// declare the old name.
func (m *matcher) resolve(obj model.Object) (model.Key, bool) {
	tk := obj.Key()
	ck := m.moved(tk)
	meta := obj.Meta()
	if meta.OldName == "" || m.cur.Has(ck) {
		return ck, false
	}
	old := ck
	old.Name = meta.OldName + meta.Signature()
	kept := tk
	kept.Name = old.Name
	if !m.cur.Has(old) || m.tgt.Has(kept) {
		return ck, false
	}
	m.renamed[tk] = old
	return old, true
}

// moved rewrites the schema and owner parts of a target key after renames
// of the enclosing schema or parent relation.
func (m *matcher) moved(tk model.Key) model.Key {
	ck := tk
	if tk.Schema != "" {
		if old, ok := m.renamed[model.SchemaKey(tk.Schema)]; ok {
			ck.Schema = old.Name
		}
	}
	if tk.ParentKind != model.KindUnknown {
		pk, _ := tk.ParentKey()
		if old, ok := m.renamed[pk]; ok {
			ck.Schema = old.Schema
			ck.Parent = old.Name
		}
	}
	return ck
}

// reordered reports whether the columns both sides share appear in a
// different relative order.
func (m *matcher) reordered(ck, tk model.Key) bool {
	shared := make(map[string]bool)
	for _, c := range m.cur.Children(ck, model.KindColumn) {
		shared[c.Meta().Name.Name] = true
	}
	var tgtOrder []string
	inTarget := make(map[string]bool)
	for _, c := range m.tgt.Children(tk, model.KindColumn) {
		name := c.Meta().Name.Name
		inTarget[name] = true
		if shared[name] {
			tgtOrder = append(tgtOrder, name)
		}
	}
	i := 0
	for _, c := range m.cur.Children(ck, model.KindColumn) {
		name := c.Meta().Name.Name
		if !inTarget[name] {
			continue
		}
		if tgtOrder[i] != name {
			return true
		}
		i++
	}
	return false
}

func inherited(o model.Object) bool {
	switch v := o.(type) {
	case *model.Column:
		return v.Inherited
	case *model.Constraint:
		return v.Inherited
	}
	return false
}

func scopeFilter(schemas []string) func(model.Key) bool {
	if len(schemas) == 0 {
		return func(model.Key) bool { return true }
	}
	set := make(map[string]bool, len(schemas))
	for _, s := range schemas {
		set[s] = true
	}
	return func(k model.Key) bool {
		switch {
		case k.Kind == model.KindSchema:
			return set[k.Name]
		case k.Schema != "":
			return set[k.Schema]
		}
		return true
	}
}
