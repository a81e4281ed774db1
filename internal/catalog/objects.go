package catalog

import (
	"strings"

	"github.com/koustreak/dbspec/internal/ident"
	"github.com/koustreak/dbspec/internal/model"
)

// tgtype bits, from pg_trigger.h.
const (
	triggerRow      = 1 << 0
	triggerBefore   = 1 << 1
	triggerInsert   = 1 << 2
	triggerDelete   = 1 << 3
	triggerUpdate   = 1 << 4
	triggerTruncate = 1 << 5
	triggerInstead  = 1 << 6
)

var (
	volatilities = map[string]string{"i": "immutable", "s": "stable"}
	castContexts = map[string]string{"e": "explicit", "a": "assignment", "i": "implicit"}
	castMethods  = map[string]string{"f": "function", "i": "inout", "b": "binary"}
	typeForms    = map[string]model.TypeForm{"c": model.TypeComposite, "e": model.TypeEnum, "r": model.TypeRange}
	fkMatches    = map[string]string{"f": "full", "p": "partial"}
	fkActions    = map[string]string{"r": "restrict", "c": "cascade", "n": "set null", "d": "set default"}
	ruleEvents   = map[string]string{"1": "select", "2": "update", "3": "insert", "4": "delete"}
	triggerState = map[string]string{"D": "disabled", "R": "replica", "A": "always"}

	constraintTypes = map[string]model.ConstraintType{
		"c": model.ConstraintCheck,
		"p": model.ConstraintPrimaryKey,
		"u": model.ConstraintUnique,
		"f": model.ConstraintForeignKey,
	}
)

// relKind maps pg_class.relkind to the kind owning a child row.
func relKind(relkind string) model.Kind {
	switch relkind {
	case "f":
		return model.KindForeignTable
	case "v":
		return model.KindView
	case "m":
		return model.KindMaterializedView
	}
	return model.KindTable
}

// decodeTrigger splits a tgtype bitmask into timing, events and level.
func decodeTrigger(tgtype int64) (timing string, events []string, level string) {
	switch {
	case tgtype&triggerInstead != 0:
		timing = "instead of"
	case tgtype&triggerBefore != 0:
		timing = "before"
	default:
		timing = "after"
	}
	for _, ev := range []struct {
		bit  int64
		name string
	}{{triggerInsert, "insert"}, {triggerUpdate, "update"}, {triggerDelete, "delete"}, {triggerTruncate, "truncate"}} {
		if tgtype&ev.bit != 0 {
			events = append(events, ev.name)
		}
	}
	level = "statement"
	if tgtype&triggerRow != 0 {
		level = "row"
	}
	return timing, events, level
}

func (m *materializer) base(kind model.Kind, r Row) model.Base {
	b := model.Base{
		Kind:    kind,
		Name:    m.id(r.Str("name")),
		Owner:   r.Str("owner"),
		Comment: r.OptStr("description"),
	}
	if kind.Scope() != model.ScopeDatabase {
		b.Schema = m.id(r.Str("schema"))
	}
	if acl := r.Str("privileges"); acl != "" {
		b.Privileges = ParseACL(acl, b.Owner)
	}
	return b
}

// child builds the Base of a row owned by the relation in its "table" column.
func (m *materializer) child(kind model.Kind, r Row) model.Base {
	b := m.base(kind, r)
	b.ParentKind = relKind(r.Str("relkind"))
	b.Parent = m.id(r.Str("table"))
	return b
}

func (m *materializer) idents(names []string) []ident.Ident {
	if len(names) == 0 {
		return nil
	}
	out := make([]ident.Ident, len(names))
	for i, n := range names {
		out[i] = m.id(n)
	}
	return out
}

// object converts one row. A nil object with a nil error means the row is
// filtered out.
func (m *materializer) object(kind model.Kind, r Row) (model.Object, error) {
	switch kind.Scope() {
	case model.ScopeSchema:
		if !m.filter.keep(r.Str("schema")) {
			return nil, nil
		}
	case model.ScopeChild:
		if kind != model.KindUserMapping && !m.filter.keep(r.Str("schema")) {
			return nil, nil
		}
	}

	switch kind {
	case model.KindSchema:
		if !m.filter.keep(r.Str("name")) {
			return nil, nil
		}
		return &model.Schema{Base: m.base(kind, r)}, nil
	case model.KindExtension:
		o := &model.Extension{Base: m.base(kind, r), InSchema: r.Str("schema"), Version: r.Str("version")}
		o.Owner = ""
		return o, nil
	case model.KindLanguage:
		return &model.Language{Base: m.base(kind, r), Trusted: r.Bool("trusted")}, nil
	case model.KindCollation:
		return &model.Collation{Base: m.base(kind, r), LcCollate: r.Str("lc_collate"), LcCtype: r.Str("lc_ctype")}, nil
	case model.KindType:
		return m.dbType(r)
	case model.KindDomain:
		o := &model.Domain{
			Base: m.base(kind, r), BaseType: r.Str("type"), NotNull: r.Bool("not_null"),
			Default: r.Str("default"), Collation: r.Str("collation"),
		}
		names, exprs := r.Strs("check_names"), r.Strs("check_exprs")
		if len(names) != len(exprs) {
			return nil, rowErr(kind, r, "check_names and check_exprs differ in length")
		}
		for i := range names {
			o.Checks = append(o.Checks, model.DomainCheck{Name: m.id(names[i]), Expression: exprs[i]})
		}
		return o, nil
	case model.KindFunction:
		return m.function(r), nil
	case model.KindAggregate:
		o := &model.Aggregate{
			Base: m.base(kind, r), Arguments: r.Str("arguments"), SFunc: r.Str("sfunc"),
			SType: r.Str("stype"), FinalFunc: noDash(r.Str("finalfunc")), InitCond: r.OptStr("initcond"),
			SortOp: noDash(r.Str("sortop")),
		}
		return o, nil
	case model.KindOperator:
		o := &model.Operator{
			Base: m.base(kind, r), LeftArg: r.Str("leftarg"), RightArg: r.Str("rightarg"),
			Procedure: r.Str("procedure"), Commutator: noDash(r.Str("commutator")), Negator: noDash(r.Str("negator")),
			Restrict: noDash(r.Str("restrict")), Join: noDash(r.Str("join")),
			Hashes: r.Bool("hashes"), Merges: r.Bool("merges"),
		}
		o.Name = ident.Ident{Name: r.Str("name")}
		return o, nil
	case model.KindOperatorFamily:
		return &model.OperatorFamily{Base: m.base(kind, r), IndexMethod: r.Str("index_method")}, nil
	case model.KindOperatorClass:
		o := &model.OperatorClass{
			Base: m.base(kind, r), IndexMethod: r.Str("index_method"), Type: r.Str("type"),
			Family: r.Str("family"), Default: r.Bool("default"), Storage: r.Str("storage"),
			Operators: r.Strs("operators"), Functions: r.Strs("functions"),
		}
		if o.Family == o.Name.Name {
			o.Family = ""
		}
		return o, nil
	case model.KindConversion:
		return &model.Conversion{
			Base: m.base(kind, r), SourceEncoding: r.Str("source_encoding"), DestEncoding: r.Str("dest_encoding"),
			Function: r.Str("function"), Default: r.Bool("default"),
		}, nil
	case model.KindCast:
		o := &model.Cast{
			Source: r.Str("source"), Target: r.Str("target"), Function: r.Str("function"),
			Context: castContexts[r.Str("context")], Method: castMethods[r.Str("method")],
		}
		o.Base = model.Base{
			Kind:    kind,
			Name:    ident.Ident{Name: model.CastName(o.Source, o.Target)},
			Comment: r.OptStr("description"),
		}
		return o, nil
	case model.KindTSParser:
		return &model.TSParser{
			Base: m.base(kind, r), Start: r.Str("start"), GetToken: r.Str("gettoken"), End: r.Str("end"),
			Lextypes: r.Str("lextypes"), Headline: noDash(r.Str("headline")),
		}, nil
	case model.KindTSTemplate:
		return &model.TSTemplate{Base: m.base(kind, r), Init: noDash(r.Str("init")), Lexize: r.Str("lexize")}, nil
	case model.KindTSDictionary:
		return &model.TSDictionary{Base: m.base(kind, r), Template: r.Str("template"), Options: r.Str("options")}, nil
	case model.KindTSConfiguration:
		return &model.TSConfiguration{Base: m.base(kind, r), Parser: r.Str("parser")}, nil
	case model.KindForeignDataWrapper:
		return &model.ForeignDataWrapper{
			Base: m.base(kind, r), Handler: r.Str("handler"), Validator: r.Str("validator"), Options: r.Strs("options"),
		}, nil
	case model.KindForeignServer:
		return &model.ForeignServer{
			Base: m.base(kind, r), Wrapper: m.id(r.Str("wrapper")), Type: r.Str("type"),
			Version: r.Str("version"), Options: r.Strs("options"),
		}, nil
	case model.KindUserMapping:
		o := &model.UserMapping{Base: m.base(kind, r), Options: r.Strs("options")}
		if o.Name.Name == "public" || o.Name.Name == "" {
			o.Name = ident.Ident{Name: "PUBLIC"}
		}
		o.Schema = ident.Ident{}
		o.ParentKind = model.KindForeignServer
		o.Parent = m.id(r.Str("server"))
		return o, nil
	case model.KindSequence:
		o := &model.Sequence{
			Base: m.base(kind, r), Start: r.Int("start_value"), Increment: r.Int("increment_by"),
			MinValue: r.OptInt("min_value"), MaxValue: r.OptInt("max_value"),
			Cache: r.Int("cache_value"), Cycle: r.Bool("cycle"),
		}
		if t := r.Str("owner_table"); t != "" {
			o.OwnerTable = m.id(t)
			o.OwnerColumn = m.id(r.Str("owner_column"))
		}
		return o, nil
	case model.KindTable:
		return m.table(r), nil
	case model.KindForeignTable:
		return &model.ForeignTable{Base: m.base(kind, r), Server: m.id(r.Str("server")), Options: r.Strs("options")}, nil
	case model.KindView:
		return &model.View{Base: m.base(kind, r), Definition: r.Str("definition")}, nil
	case model.KindMaterializedView:
		return &model.MaterializedView{Base: m.base(kind, r), Definition: r.Str("definition"), WithData: r.Bool("with_data")}, nil
	case model.KindEventTrigger:
		return &model.EventTrigger{
			Base: m.base(kind, r), Event: r.Str("event"), Procedure: r.Str("procedure"),
			Enabled: triggerState[r.Str("enabled")], Tags: r.Strs("tags"),
		}, nil
	case model.KindColumn:
		return m.column(r), nil
	case model.KindConstraint:
		return m.constraint(r)
	case model.KindIndex:
		return m.index(r)
	case model.KindTrigger:
		o := &model.Trigger{
			Base: m.child(kind, r), Procedure: r.Str("procedure"), Condition: r.Str("condition"),
			Constraint: r.Bool("constraint"), Deferrable: r.Bool("deferrable"), Deferred: r.Bool("deferred"),
		}
		o.Timing, o.Events, o.Level = decodeTrigger(r.Int("tgtype"))
		return o, nil
	case model.KindRule:
		o := &model.Rule{
			Base: m.child(kind, r), Condition: r.Str("condition"),
			Instead: r.Bool("instead"), Actions: r.Str("actions"),
		}
		o.Event = ruleEvents[r.Str("event")]
		if o.Event == "" {
			o.Event = strings.ToLower(r.Str("event"))
		}
		return o, nil
	}
	return nil, rowErr(kind, r, "no catalog mapping for %s", kind)
}

func (m *materializer) dbType(r Row) (model.Object, error) {
	o := &model.Type{Base: m.base(model.KindType, r), Form: model.TypeBase}
	if f, ok := typeForms[r.Str("form")]; ok {
		o.Form = f
	}
	switch o.Form {
	case model.TypeComposite:
		names, types, colls := r.Strs("attnames"), r.Strs("atttypes"), r.Strs("attcollations")
		if len(names) != len(types) {
			return nil, rowErr(model.KindType, r, "attnames and atttypes differ in length")
		}
		for i := range names {
			a := model.Attribute{Name: m.id(names[i]), Type: types[i]}
			if i < len(colls) {
				a.Collation = colls[i]
			}
			o.Attributes = append(o.Attributes, a)
		}
	case model.TypeEnum:
		o.Labels = r.Strs("labels")
		if o.Labels == nil {
			o.Labels = []string{}
		}
	case model.TypeRange:
		o.Subtype = r.Str("subtype")
	default:
		o.Input, o.Output = r.Str("input"), r.Str("output")
		o.Receive, o.Send = noDash(r.Str("receive")), noDash(r.Str("send"))
		o.TypmodIn, o.TypmodOut = noDash(r.Str("typmod_in")), noDash(r.Str("typmod_out"))
		o.Analyze = noDash(r.Str("analyze"))
		o.InternalLength = r.Str("internallength")
		o.Alignment, o.Storage = r.Str("alignment"), r.Str("storage")
		o.Category, o.Delimiter = r.Str("category"), r.Str("delimiter")
		o.Preferred = r.Bool("preferred")
	}
	return o, nil
}

func (m *materializer) function(r Row) *model.Function {
	o := &model.Function{
		Base:            m.base(model.KindFunction, r),
		Arguments:       r.Str("arguments"),
		AllArgs:         r.Str("allargs"),
		Returns:         r.Str("returns"),
		Language:        r.Str("language"),
		Source:          r.Str("source"),
		ObjFile:         r.Str("obj_file"),
		LinkSymbol:      r.Str("link_symbol"),
		Volatility:      volatilities[r.Str("volatility")],
		Strict:          r.Bool("strict"),
		LeakProof:       r.Bool("leakproof"),
		SecurityDefiner: r.Bool("security_definer"),
		Cost:            r.Float("cost"),
		Rows:            r.Float("rows"),
		Configuration:   r.Strs("configuration"),
	}
	if o.AllArgs == o.Arguments {
		o.AllArgs = ""
	}
	// default costs are left implicit
	switch o.Language {
	case "c", "internal":
		if o.Cost == 1 {
			o.Cost = 0
		}
	default:
		if o.Cost == 100 {
			o.Cost = 0
		}
	}
	if o.Rows == 1000 {
		o.Rows = 0
	}
	return o
}

// table ignores a row_estimate column: row counts are statistics, not schema.
func (m *materializer) table(r Row) *model.Table {
	o := &model.Table{
		Base: m.base(model.KindTable, r), Options: r.Strs("options"),
		Tablespace: r.Str("tablespace"), Unlogged: r.Bool("unlogged"),
	}
	schemas, names := r.Strs("parent_schemas"), r.Strs("parent_names")
	for i := range names {
		if i >= len(schemas) {
			break
		}
		if !m.filter.keep(schemas[i]) {
			m.log.With().Str("table", model.QualifiedName(o)).Str("parent", schemas[i]+"."+names[i]).
				Logger().Warn("dropping inheritance from unselected schema")
			continue
		}
		o.Inherits = append(o.Inherits, model.RelRef{Schema: m.id(schemas[i]), Name: m.id(names[i])})
	}
	return o
}

func (m *materializer) column(r Row) *model.Column {
	o := &model.Column{
		Base: m.child(model.KindColumn, r), Type: r.Str("type"), NotNull: r.Bool("not_null"),
		Default: r.Str("default"), Collation: r.Str("collation"), Inherited: r.Bool("inherited"),
	}
	if s := r.OptInt("statistics"); s != nil && *s >= 0 {
		n := int(*s)
		o.Statistics = &n
	}
	return o
}

func (m *materializer) constraint(r Row) (model.Object, error) {
	typ, ok := constraintTypes[r.Str("type")]
	if !ok {
		// exclusion and trigger constraints are not modeled
		return nil, nil
	}
	o := &model.Constraint{
		Base: m.child(model.KindConstraint, r), Type: typ, Columns: m.idents(r.Strs("columns")),
		Expression: r.Str("expression"), Deferrable: r.Bool("deferrable"), Deferred: r.Bool("deferred"),
		Inherited: r.Bool("inherited"), Tablespace: r.Str("tablespace"),
	}
	if typ == model.ConstraintCheck {
		o.Columns = nil
	}
	if typ == model.ConstraintForeignKey {
		schema := r.Str("ref_schema")
		if !m.filter.keep(schema) {
			m.log.With().Str("constraint", o.Key().String()).Str("references", schema+"."+r.Str("ref_table")).
				Logger().Warn("dropping foreign key into unselected schema")
			return nil, nil
		}
		o.Ref = model.RelRef{Schema: m.id(schema), Name: m.id(r.Str("ref_table"))}
		o.RefColumns = m.idents(r.Strs("ref_columns"))
		o.Match = fkMatches[r.Str("match")]
		o.OnUpdate = fkActions[r.Str("on_update")]
		o.OnDelete = fkActions[r.Str("on_delete")]
	}
	return o, nil
}

func (m *materializer) index(r Row) (model.Object, error) {
	o := &model.Index{
		Base: m.child(model.KindIndex, r), AccessMethod: r.Str("access_method"),
		Unique: r.Bool("unique"), Predicate: r.Str("predicate"), Tablespace: r.Str("tablespace"),
	}
	if o.AccessMethod == "btree" {
		o.AccessMethod = ""
	}
	cols, exprs := r.Strs("key_columns"), r.Strs("key_exprs")
	opclasses, orders := r.Strs("key_opclasses"), r.Strs("key_orders")
	if len(exprs) > 0 && len(exprs) != len(cols) {
		return nil, rowErr(model.KindIndex, r, "key_columns and key_exprs differ in length")
	}
	for i, c := range cols {
		k := model.IndexKey{}
		if c != "" {
			k.Column = m.id(c)
		} else if i < len(exprs) {
			k.Expression = exprs[i]
		}
		if i < len(opclasses) {
			k.OpClass = opclasses[i]
		}
		if i < len(orders) {
			k.Order = orders[i]
		}
		o.Keys = append(o.Keys, k)
	}
	return o, nil
}

// noDash maps the catalog's "-" placeholder for an unset regproc to "".
func noDash(s string) string {
	if s == "-" || s == "0" {
		return ""
	}
	return s
}
