package spec

import (
	"bytes"
	"sort"
	"strings"

	"github.com/koustreak/dbspec/internal/errs"
	"github.com/koustreak/dbspec/internal/ident"
	"github.com/koustreak/dbspec/internal/model"
	"go.yaml.in/yaml/v3"
)

// Options controls what the writer emits.
type Options struct {
	NoOwner      bool // omit owner entries
	NoPrivileges bool // omit privileges entries
}

// Entry is one keyed object of a mapping level, e.g. "table t1" and its body.
type Entry struct {
	Key  string
	Kind model.Kind
	Name string
	Node *yaml.Node
}

// Marshal serializes db as a single document.
func Marshal(db *model.Database, opts Options) ([]byte, error) {
	return Encode(Document(db, opts))
}

// Encode renders a node tree with two-space indentation.
func Encode(n *yaml.Node) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(n); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to encode specification", err)
	}
	if err := enc.Close(); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to encode specification", err)
	}
	return buf.Bytes(), nil
}

// Document builds the mapping-of-mappings tree for db.
func Document(db *model.Database, opts Options) *yaml.Node {
	root := mapNode()
	for _, e := range TopEntries(db, opts) {
		put(root, e.Key, e.Node)
	}
	return root
}

// TopEntries returns the database-level entries sorted by key: schemas with
// their full contents plus database-wide objects.
func TopEntries(db *model.Database, opts Options) []Entry {
	w := &writer{db: db, opts: opts}
	var out []Entry
	for _, s := range db.Schemas() {
		node := w.schemaNode(s)
		for _, e := range w.SchemaEntries(s) {
			put(node, e.Key, e.Node)
		}
		out = append(out, Entry{Key: entryKey(s), Kind: model.KindSchema, Name: s.Name.Name, Node: node})
	}
	for _, kind := range []model.Kind{model.KindExtension, model.KindLanguage, model.KindCast,
		model.KindForeignDataWrapper, model.KindEventTrigger} {
		for _, o := range db.Objects(kind) {
			out = append(out, Entry{Key: entryKey(o), Kind: kind, Name: o.Meta().Name.Name, Node: w.objectNode(o)})
		}
	}
	sortEntries(out)
	return out
}

// SchemaHeader returns the schema's own attributes without its objects.
func SchemaHeader(db *model.Database, s *model.Schema, opts Options) *yaml.Node {
	w := &writer{db: db, opts: opts}
	return w.schemaNode(s)
}

// SchemaEntries returns the objects of a schema sorted by key.
func SchemaEntries(db *model.Database, s *model.Schema, opts Options) []Entry {
	w := &writer{db: db, opts: opts}
	return w.SchemaEntries(s)
}

type writer struct {
	db   *model.Database
	opts Options
}

func (w *writer) SchemaEntries(s *model.Schema) []Entry {
	var out []Entry
	for _, kind := range model.Kinds() {
		if kind.Scope() != model.ScopeSchema {
			continue
		}
		for _, o := range w.db.Objects(kind) {
			if o.Meta().Schema.Name != s.Name.Name {
				continue
			}
			out = append(out, Entry{Key: entryKey(o), Kind: kind, Name: o.Meta().Name.Name, Node: w.objectNode(o)})
		}
	}
	sortEntries(out)
	return out
}

func sortEntries(es []Entry) {
	sort.SliceStable(es, func(i, j int) bool { return es[i].Key < es[j].Key })
}

// entryKey is the document key of an object, e.g. "function f1(integer)".
func entryKey(o model.Object) string {
	return o.Meta().Kind.String() + " " + o.Key().Name
}

func (w *writer) schemaNode(s *model.Schema) *yaml.Node {
	n := mapNode()
	w.common(n, &s.Base)
	return n
}

// common writes owner, privileges, description and rename hint.
func (w *writer) common(n *yaml.Node, b *model.Base) {
	if !w.opts.NoOwner {
		putStr(n, "owner", b.Owner)
	}
	if !w.opts.NoPrivileges && len(b.Privileges) > 0 {
		put(n, "privileges", grantsNode(b.Privileges))
	}
	if b.Comment != nil {
		put(n, "description", strNode(*b.Comment))
	}
	putStr(n, "oldname", b.OldName)
}

func grantsNode(gs []model.Grant) *yaml.Node {
	seq := seqNode()
	for _, g := range gs {
		m := mapNode()
		put(m, g.Grantee, strSeq(g.Privileges))
		seq.Content = append(seq.Content, m)
	}
	return seq
}

func (w *writer) objectNode(obj model.Object) *yaml.Node {
	n := mapNode()
	switch o := obj.(type) {
	case *model.Extension:
		putStr(n, "schema", o.InSchema)
		putStr(n, "version", o.Version)
	case *model.Language:
		putBool(n, "trusted", o.Trusted)
	case *model.Cast:
		putStr(n, "function", o.Function)
		putStr(n, "context", o.Context)
		putStr(n, "method", o.Method)
	case *model.Collation:
		putStr(n, "lc_collate", o.LcCollate)
		putStr(n, "lc_ctype", o.LcCtype)
	case *model.Conversion:
		putStr(n, "source_encoding", o.SourceEncoding)
		putStr(n, "dest_encoding", o.DestEncoding)
		putStr(n, "function", o.Function)
		putBool(n, "default", o.Default)
	case *model.Type:
		w.typeNode(n, o)
	case *model.Domain:
		putStr(n, "type", o.BaseType)
		putBool(n, "not_null", o.NotNull)
		putStr(n, "default", o.Default)
		putStr(n, "collation", o.Collation)
		if len(o.Checks) > 0 {
			checks := mapNode()
			for _, c := range o.Checks {
				cm := mapNode()
				putStr(cm, "expression", c.Expression)
				put(checks, c.Name.Name, cm)
			}
			put(n, "check_constraints", checks)
		}
	case *model.Function:
		putStr(n, "allargs", o.AllArgs)
		putStr(n, "returns", o.Returns)
		putStr(n, "language", o.Language)
		putStr(n, "source", o.Source)
		putStr(n, "obj_file", o.ObjFile)
		putStr(n, "link_symbol", o.LinkSymbol)
		putStr(n, "volatility", o.Volatility)
		putBool(n, "strict", o.Strict)
		putBool(n, "leakproof", o.LeakProof)
		putBool(n, "security_definer", o.SecurityDefiner)
		if o.Cost != 0 {
			put(n, "cost", floatNode(o.Cost))
		}
		if o.Rows != 0 {
			put(n, "rows", floatNode(o.Rows))
		}
		putStrs(n, "configuration", o.Configuration)
	case *model.Aggregate:
		putStr(n, "sfunc", o.SFunc)
		putStr(n, "stype", o.SType)
		putStr(n, "finalfunc", o.FinalFunc)
		if o.InitCond != nil {
			put(n, "initcond", strNode(*o.InitCond))
		}
		putStr(n, "sortop", o.SortOp)
	case *model.Operator:
		putStr(n, "procedure", o.Procedure)
		putStr(n, "commutator", o.Commutator)
		putStr(n, "negator", o.Negator)
		putStr(n, "restrict", o.Restrict)
		putStr(n, "join", o.Join)
		putBool(n, "hashes", o.Hashes)
		putBool(n, "merges", o.Merges)
	case *model.OperatorFamily:
	case *model.OperatorClass:
		putStr(n, "type", o.Type)
		putStr(n, "family", o.Family)
		putBool(n, "default", o.Default)
		putStr(n, "storage", o.Storage)
		putStrs(n, "operators", o.Operators)
		putStrs(n, "functions", o.Functions)
	case *model.Sequence:
		put(n, "start_value", intNode(o.Start))
		put(n, "increment_by", intNode(o.Increment))
		if o.MinValue != nil {
			put(n, "min_value", intNode(*o.MinValue))
		}
		if o.MaxValue != nil {
			put(n, "max_value", intNode(*o.MaxValue))
		}
		put(n, "cache_value", intNode(o.Cache))
		putBool(n, "cycle", o.Cycle)
		putStr(n, "owner_table", o.OwnerTable.Name)
		putStr(n, "owner_column", o.OwnerColumn.Name)
	case *model.Table:
		w.tableNode(n, o)
	case *model.ForeignTable:
		w.columnsInto(n, o.Key())
		w.constraintsInto(n, o.Key())
		putStr(n, "server", o.Server.Name)
		putStrs(n, "options", o.Options)
	case *model.View:
		putStr(n, "definition", o.Definition)
		w.triggersInto(n, o.Key())
		w.rulesInto(n, o.Key())
	case *model.MaterializedView:
		putStr(n, "definition", o.Definition)
		putBool(n, "with_data", o.WithData)
		w.indexesInto(n, o.Key())
	case *model.TSParser:
		putStr(n, "start", o.Start)
		putStr(n, "gettoken", o.GetToken)
		putStr(n, "end", o.End)
		putStr(n, "lextypes", o.Lextypes)
		putStr(n, "headline", o.Headline)
	case *model.TSTemplate:
		putStr(n, "init", o.Init)
		putStr(n, "lexize", o.Lexize)
	case *model.TSDictionary:
		putStr(n, "template", o.Template)
		putStr(n, "options", o.Options)
	case *model.TSConfiguration:
		putStr(n, "parser", o.Parser)
	case *model.ForeignDataWrapper:
		putStr(n, "handler", o.Handler)
		putStr(n, "validator", o.Validator)
		putStrs(n, "options", o.Options)
		w.serversInto(n, o)
	case *model.EventTrigger:
		putStr(n, "event", o.Event)
		putStr(n, "procedure", o.Procedure)
		putStr(n, "enabled", o.Enabled)
		putStrs(n, "tags", o.Tags)
	}
	w.common(n, obj.Meta())
	return n
}

func (w *writer) typeNode(n *yaml.Node, o *model.Type) {
	switch o.Form {
	case model.TypeComposite:
		seq := seqNode()
		for _, a := range o.Attributes {
			am := mapNode()
			putStr(am, "type", a.Type)
			putStr(am, "collation", a.Collation)
			entry := mapNode()
			put(entry, a.Name.Name, am)
			seq.Content = append(seq.Content, entry)
		}
		put(n, "attributes", seq)
	case model.TypeEnum:
		put(n, "labels", strSeq(o.Labels))
	case model.TypeRange:
		putStr(n, "subtype", o.Subtype)
	default:
		putStr(n, "input", o.Input)
		putStr(n, "output", o.Output)
		putStr(n, "receive", o.Receive)
		putStr(n, "send", o.Send)
		putStr(n, "typmod_in", o.TypmodIn)
		putStr(n, "typmod_out", o.TypmodOut)
		putStr(n, "analyze", o.Analyze)
		putStr(n, "internallength", o.InternalLength)
		putStr(n, "alignment", o.Alignment)
		putStr(n, "storage", o.Storage)
		putStr(n, "category", o.Category)
		putStr(n, "delimiter", o.Delimiter)
		putBool(n, "preferred", o.Preferred)
	}
}

func (w *writer) tableNode(n *yaml.Node, t *model.Table) {
	key := t.Key()
	w.columnsInto(n, key)
	w.constraintsInto(n, key)
	w.indexesInto(n, key)
	w.triggersInto(n, key)
	w.rulesInto(n, key)
	if len(t.Inherits) > 0 {
		names := make([]string, len(t.Inherits))
		for i, p := range t.Inherits {
			names[i] = relName(t.Schema.Name, p)
		}
		put(n, "inherits", strSeq(names))
	}
	putStrs(n, "options", t.Options)
	putStr(n, "tablespace", t.Tablespace)
	putBool(n, "unlogged", t.Unlogged)
}

// relName writes a relation reference relative to the referring schema.
func relName(from string, r model.RelRef) string {
	if r.Schema.Name == from {
		return r.Name.Name
	}
	return r.Schema.Name + "." + r.Name.Name
}

func (w *writer) columnsInto(n *yaml.Node, parent model.Key) {
	cols := w.db.Children(parent, model.KindColumn)
	if len(cols) == 0 {
		return
	}
	seq := seqNode()
	for _, c := range cols {
		col := c.(*model.Column)
		cm := mapNode()
		putStr(cm, "type", col.Type)
		putBool(cm, "not_null", col.NotNull)
		putStr(cm, "default", col.Default)
		if col.Statistics != nil {
			put(cm, "statistics", intNode(int64(*col.Statistics)))
		}
		putStr(cm, "collation", col.Collation)
		putBool(cm, "inherited", col.Inherited)
		w.common(cm, &col.Base)
		entry := mapNode()
		put(entry, col.Name.Name, cm)
		seq.Content = append(seq.Content, entry)
	}
	put(n, "columns", seq)
}

func identNames(ids []ident.Ident) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Name
	}
	return out
}

var constraintSections = []struct {
	key string
	typ model.ConstraintType
}{
	{"check_constraints", model.ConstraintCheck},
	{"foreign_keys", model.ConstraintForeignKey},
	{"primary_key", model.ConstraintPrimaryKey},
	{"unique_constraints", model.ConstraintUnique},
}

func (w *writer) constraintsInto(n *yaml.Node, parent model.Key) {
	cons := w.db.Children(parent, model.KindConstraint)
	for _, sec := range constraintSections {
		section := mapNode()
		var named []*model.Constraint
		for _, c := range cons {
			if con := c.(*model.Constraint); con.Type == sec.typ {
				named = append(named, con)
			}
		}
		sort.Slice(named, func(i, j int) bool { return named[i].Name.Name < named[j].Name.Name })
		for _, con := range named {
			put(section, con.Name.Name, w.constraintNode(parent, con))
		}
		if len(section.Content) > 0 {
			put(n, sec.key, section)
		}
	}
}

func (w *writer) constraintNode(parent model.Key, c *model.Constraint) *yaml.Node {
	n := mapNode()
	putStrs(n, "columns", identNames(c.Columns))
	putStr(n, "expression", c.Expression)
	if c.Type == model.ConstraintForeignKey {
		ref := mapNode()
		put(ref, "schema", strNode(c.Ref.Schema.Name))
		put(ref, "table", strNode(c.Ref.Name.Name))
		put(ref, "columns", strSeq(identNames(c.RefColumns)))
		put(n, "references", ref)
		putStr(n, "match", c.Match)
		putStr(n, "on_update", c.OnUpdate)
		putStr(n, "on_delete", c.OnDelete)
	}
	putBool(n, "deferrable", c.Deferrable)
	putBool(n, "deferred", c.Deferred)
	putBool(n, "inherited", c.Inherited)
	putStr(n, "tablespace", c.Tablespace)
	w.common(n, &c.Base)
	return n
}

func (w *writer) indexesInto(n *yaml.Node, parent model.Key) {
	idxs := w.db.Children(parent, model.KindIndex)
	if len(idxs) == 0 {
		return
	}
	sort.Slice(idxs, func(i, j int) bool { return idxs[i].Meta().Name.Name < idxs[j].Meta().Name.Name })
	section := mapNode()
	for _, o := range idxs {
		ix := o.(*model.Index)
		m := mapNode()
		keys := seqNode()
		for _, k := range ix.Keys {
			keys.Content = append(keys.Content, indexKeyNode(k))
		}
		put(m, "keys", keys)
		putStr(m, "access_method", ix.AccessMethod)
		putBool(m, "unique", ix.Unique)
		putStr(m, "predicate", ix.Predicate)
		putStr(m, "tablespace", ix.Tablespace)
		w.common(m, &ix.Base)
		put(section, ix.Name.Name, m)
	}
	put(n, "indexes", section)
}

// indexKeyNode writes a plain column as a scalar and anything richer as a
// mapping.
func indexKeyNode(k model.IndexKey) *yaml.Node {
	if k.Expression == "" && k.OpClass == "" && k.Order == "" {
		return strNode(k.Column.Name)
	}
	if k.Expression != "" {
		m := mapNode()
		put(m, "expression", strNode(k.Expression))
		putStr(m, "opclass", k.OpClass)
		putStr(m, "order", k.Order)
		return m
	}
	opts := mapNode()
	putStr(opts, "opclass", k.OpClass)
	putStr(opts, "order", k.Order)
	m := mapNode()
	put(m, k.Column.Name, opts)
	return m
}

func (w *writer) triggersInto(n *yaml.Node, parent model.Key) {
	trgs := w.db.Children(parent, model.KindTrigger)
	if len(trgs) == 0 {
		return
	}
	sort.Slice(trgs, func(i, j int) bool { return trgs[i].Meta().Name.Name < trgs[j].Meta().Name.Name })
	section := mapNode()
	for _, o := range trgs {
		t := o.(*model.Trigger)
		m := mapNode()
		putStr(m, "timing", t.Timing)
		putStrs(m, "events", t.Events)
		putStr(m, "level", t.Level)
		putStr(m, "procedure", t.Procedure)
		putStr(m, "condition", t.Condition)
		putBool(m, "constraint", t.Constraint)
		putBool(m, "deferrable", t.Deferrable)
		putBool(m, "deferred", t.Deferred)
		w.common(m, &t.Base)
		put(section, t.Name.Name, m)
	}
	put(n, "triggers", section)
}

func (w *writer) rulesInto(n *yaml.Node, parent model.Key) {
	rules := w.db.Children(parent, model.KindRule)
	if len(rules) == 0 {
		return
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Meta().Name.Name < rules[j].Meta().Name.Name })
	section := mapNode()
	for _, o := range rules {
		r := o.(*model.Rule)
		m := mapNode()
		putStr(m, "event", r.Event)
		putStr(m, "condition", r.Condition)
		putBool(m, "instead", r.Instead)
		putStr(m, "actions", r.Actions)
		w.common(m, &r.Base)
		put(section, r.Name.Name, m)
	}
	put(n, "rules", section)
}

func (w *writer) serversInto(n *yaml.Node, fdw *model.ForeignDataWrapper) {
	for _, o := range w.db.Objects(model.KindForeignServer) {
		srv := o.(*model.ForeignServer)
		if srv.Wrapper.Name != fdw.Name.Name {
			continue
		}
		m := mapNode()
		putStr(m, "type", srv.Type)
		putStr(m, "version", srv.Version)
		putStrs(m, "options", srv.Options)
		if ums := w.db.Children(srv.Key(), model.KindUserMapping); len(ums) > 0 {
			section := mapNode()
			for _, u := range ums {
				um := u.(*model.UserMapping)
				um2 := mapNode()
				putStrs(um2, "options", um.Options)
				w.common(um2, &um.Base)
				put(section, um.Name.Name, um2)
			}
			put(m, "user mappings", section)
		}
		w.common(m, &srv.Base)
		put(n, entryKey(srv), m)
	}
}

// splitQualified splits "schema.name"; a bare name is in defSchema.
func splitQualified(s, defSchema string) (string, string) {
	if i := strings.IndexByte(s, '.'); i > 0 {
		return s[:i], s[i+1:]
	}
	return defSchema, s
}
