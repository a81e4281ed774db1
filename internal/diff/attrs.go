package diff

import (
	"sort"

	"github.com/koustreak/dbspec/internal/ident"
	"github.com/koustreak/dbspec/internal/model"
)

// Attribute names reported in Change.Attrs. They match the keys of the
// specification document.
const (
	AttrOwner       = "owner"
	AttrDescription = "description"
	AttrPrivileges  = "privileges"
)

// Compare lists the attributes that differ between two objects of the same
// kind. The per-kind lists below are the complete definition of "changed":
// anything not compared here never produces an Alter.
func Compare(from, to model.Object) []string {
	c := &comparer{}
	c.common(from.Meta(), to.Meta())

	switch n := to.(type) {
	case *model.Schema:
	case *model.Extension:
		o := from.(*model.Extension)
		c.str("schema", o.InSchema, n.InSchema)
		c.str("version", o.Version, n.Version)
	case *model.Language:
		o := from.(*model.Language)
		c.flag("trusted", o.Trusted, n.Trusted)
	case *model.Cast:
		o := from.(*model.Cast)
		c.str("function", o.Function, n.Function)
		c.str("context", o.Context, n.Context)
		c.str("method", o.Method, n.Method)
	case *model.Collation:
		o := from.(*model.Collation)
		c.str("lc_collate", o.LcCollate, n.LcCollate)
		c.str("lc_ctype", o.LcCtype, n.LcCtype)
	case *model.Conversion:
		o := from.(*model.Conversion)
		c.str("source_encoding", o.SourceEncoding, n.SourceEncoding)
		c.str("dest_encoding", o.DestEncoding, n.DestEncoding)
		c.str("function", o.Function, n.Function)
		c.flag("default", o.Default, n.Default)
	case *model.Type:
		compareType(c, from.(*model.Type), n)
	case *model.Domain:
		o := from.(*model.Domain)
		c.str("type", o.BaseType, n.BaseType)
		c.flag("not_null", o.NotNull, n.NotNull)
		c.str("default", o.Default, n.Default)
		c.str("collation", o.Collation, n.Collation)
		c.same("check_constraints", sameChecks(o.Checks, n.Checks))
	case *model.Function:
		o := from.(*model.Function)
		c.str("returns", o.Returns, n.Returns)
		c.str("allargs", o.AllArgs, n.AllArgs)
		c.str("language", o.Language, n.Language)
		c.str("source", o.Source, n.Source)
		c.str("obj_file", o.ObjFile, n.ObjFile)
		c.str("link_symbol", o.LinkSymbol, n.LinkSymbol)
		c.str("volatility", o.Volatility, n.Volatility)
		c.flag("strict", o.Strict, n.Strict)
		c.flag("leakproof", o.LeakProof, n.LeakProof)
		c.flag("security_definer", o.SecurityDefiner, n.SecurityDefiner)
		c.same("cost", o.Cost == n.Cost)
		c.same("rows", o.Rows == n.Rows)
		c.strs("configuration", o.Configuration, n.Configuration)
	case *model.Aggregate:
		o := from.(*model.Aggregate)
		c.str("sfunc", o.SFunc, n.SFunc)
		c.str("stype", o.SType, n.SType)
		c.str("finalfunc", o.FinalFunc, n.FinalFunc)
		c.same("initcond", sameOptStr(o.InitCond, n.InitCond))
		c.str("sortop", o.SortOp, n.SortOp)
	case *model.Operator:
		o := from.(*model.Operator)
		c.str("procedure", o.Procedure, n.Procedure)
		c.str("commutator", o.Commutator, n.Commutator)
		c.str("negator", o.Negator, n.Negator)
		c.str("restrict", o.Restrict, n.Restrict)
		c.str("join", o.Join, n.Join)
		c.flag("hashes", o.Hashes, n.Hashes)
		c.flag("merges", o.Merges, n.Merges)
	case *model.OperatorFamily:
	case *model.OperatorClass:
		o := from.(*model.OperatorClass)
		c.str("type", o.Type, n.Type)
		c.str("family", o.Family, n.Family)
		c.flag("default", o.Default, n.Default)
		c.str("storage", o.Storage, n.Storage)
		c.strs("operators", o.Operators, n.Operators)
		c.strs("functions", o.Functions, n.Functions)
	case *model.Sequence:
		o := from.(*model.Sequence)
		c.same("start_value", o.Start == n.Start)
		c.same("increment_by", o.Increment == n.Increment)
		c.same("min_value", sameOptInt(o.MinValue, n.MinValue))
		c.same("max_value", sameOptInt(o.MaxValue, n.MaxValue))
		c.same("cache_value", o.Cache == n.Cache)
		c.flag("cycle", o.Cycle, n.Cycle)
		c.same("owned_by", o.OwnerTable.Name == n.OwnerTable.Name && o.OwnerColumn.Name == n.OwnerColumn.Name)
	case *model.Table:
		o := from.(*model.Table)
		c.same("inherits", sameRefs(o.Inherits, n.Inherits))
		c.strs("options", o.Options, n.Options)
		c.str("tablespace", o.Tablespace, n.Tablespace)
		c.flag("unlogged", o.Unlogged, n.Unlogged)
	case *model.Column:
		o := from.(*model.Column)
		c.str("type", o.Type, n.Type)
		c.flag("not_null", o.NotNull, n.NotNull)
		c.str("default", o.Default, n.Default)
		c.same("statistics", sameOptInt(o.Statistics, n.Statistics))
		c.str("collation", o.Collation, n.Collation)
	case *model.Constraint:
		compareConstraint(c, from.(*model.Constraint), n)
	case *model.Index:
		o := from.(*model.Index)
		c.same("keys", sameIndexKeys(o.Keys, n.Keys))
		c.str("access_method", orBtree(o.AccessMethod), orBtree(n.AccessMethod))
		c.flag("unique", o.Unique, n.Unique)
		c.str("predicate", o.Predicate, n.Predicate)
		c.str("tablespace", o.Tablespace, n.Tablespace)
	case *model.Trigger:
		o := from.(*model.Trigger)
		c.str("timing", o.Timing, n.Timing)
		c.same("events", sameSet(o.Events, n.Events))
		c.str("level", o.Level, n.Level)
		c.str("procedure", o.Procedure, n.Procedure)
		c.str("condition", o.Condition, n.Condition)
		c.flag("constraint", o.Constraint, n.Constraint)
		c.flag("deferrable", o.Deferrable, n.Deferrable)
		c.flag("deferred", o.Deferred, n.Deferred)
	case *model.Rule:
		o := from.(*model.Rule)
		c.str("event", o.Event, n.Event)
		c.str("condition", o.Condition, n.Condition)
		c.flag("instead", o.Instead, n.Instead)
		c.str("actions", o.Actions, n.Actions)
	case *model.View:
		o := from.(*model.View)
		c.str("definition", o.Definition, n.Definition)
	case *model.MaterializedView:
		o := from.(*model.MaterializedView)
		c.str("definition", o.Definition, n.Definition)
		c.flag("with_data", o.WithData, n.WithData)
	case *model.TSParser:
		o := from.(*model.TSParser)
		c.str("start", o.Start, n.Start)
		c.str("gettoken", o.GetToken, n.GetToken)
		c.str("end", o.End, n.End)
		c.str("lextypes", o.Lextypes, n.Lextypes)
		c.str("headline", o.Headline, n.Headline)
	case *model.TSTemplate:
		o := from.(*model.TSTemplate)
		c.str("init", o.Init, n.Init)
		c.str("lexize", o.Lexize, n.Lexize)
	case *model.TSDictionary:
		o := from.(*model.TSDictionary)
		c.str("template", o.Template, n.Template)
		c.str("options", o.Options, n.Options)
	case *model.TSConfiguration:
		o := from.(*model.TSConfiguration)
		c.str("parser", o.Parser, n.Parser)
	case *model.ForeignDataWrapper:
		o := from.(*model.ForeignDataWrapper)
		c.str("handler", o.Handler, n.Handler)
		c.str("validator", o.Validator, n.Validator)
		c.strs("options", o.Options, n.Options)
	case *model.ForeignServer:
		o := from.(*model.ForeignServer)
		c.str("wrapper", o.Wrapper.Name, n.Wrapper.Name)
		c.str("type", o.Type, n.Type)
		c.str("version", o.Version, n.Version)
		c.strs("options", o.Options, n.Options)
	case *model.UserMapping:
		o := from.(*model.UserMapping)
		c.strs("options", o.Options, n.Options)
	case *model.ForeignTable:
		o := from.(*model.ForeignTable)
		c.str("server", o.Server.Name, n.Server.Name)
		c.strs("options", o.Options, n.Options)
	case *model.EventTrigger:
		o := from.(*model.EventTrigger)
		c.str("event", o.Event, n.Event)
		c.str("procedure", o.Procedure, n.Procedure)
		c.str("enabled", o.Enabled, n.Enabled)
		c.same("tags", sameSet(o.Tags, n.Tags))
	}
	return c.out
}

type comparer struct {
	out []string
}

func (c *comparer) same(attr string, same bool) {
	if !same {
		c.out = append(c.out, attr)
	}
}

func (c *comparer) str(attr, a, b string) { c.same(attr, a == b) }

func (c *comparer) flag(attr string, a, b bool) { c.same(attr, a == b) }

func (c *comparer) strs(attr string, a, b []string) { c.same(attr, sameStrs(a, b)) }

// common compares owner, comment and privileges. An owner is only compared
// when the target declares one, so specifications dumped without owners do
// not reassign everything.
func (c *comparer) common(o, n *model.Base) {
	if n.Owner != "" {
		c.str(AttrOwner, o.Owner, n.Owner)
	}
	c.same(AttrDescription, sameOptStr(o.Comment, n.Comment))
	c.same(AttrPrivileges, len(GrantDelta(o.Privileges, n.Privileges))+len(GrantDelta(n.Privileges, o.Privileges)) == 0)
}

func compareType(c *comparer, o, n *model.Type) {
	c.same("form", o.Form == n.Form)
	switch n.Form {
	case model.TypeComposite:
		c.same("attributes", sameAttributes(o.Attributes, n.Attributes))
	case model.TypeEnum:
		c.strs("labels", o.Labels, n.Labels)
	case model.TypeRange:
		c.str("subtype", o.Subtype, n.Subtype)
	default:
		c.str("input", o.Input, n.Input)
		c.str("output", o.Output, n.Output)
		c.str("receive", o.Receive, n.Receive)
		c.str("send", o.Send, n.Send)
		c.str("typmod_in", o.TypmodIn, n.TypmodIn)
		c.str("typmod_out", o.TypmodOut, n.TypmodOut)
		c.str("analyze", o.Analyze, n.Analyze)
		c.str("internallength", o.InternalLength, n.InternalLength)
		c.str("alignment", o.Alignment, n.Alignment)
		c.str("storage", o.Storage, n.Storage)
		c.str("category", o.Category, n.Category)
		c.str("delimiter", o.Delimiter, n.Delimiter)
		c.flag("preferred", o.Preferred, n.Preferred)
	}
}

func compareConstraint(c *comparer, o, n *model.Constraint) {
	c.same("type", o.Type == n.Type)
	c.same("columns", sameIdents(o.Columns, n.Columns))
	c.str("expression", o.Expression, n.Expression)
	c.flag("deferrable", o.Deferrable, n.Deferrable)
	c.flag("deferred", o.Deferred, n.Deferred)
	c.str("tablespace", o.Tablespace, n.Tablespace)
	if n.Type == model.ConstraintForeignKey {
		c.same("references", o.Ref.Key(model.KindTable) == n.Ref.Key(model.KindTable) &&
			sameIdents(o.RefColumns, n.RefColumns))
		c.str("match", o.Match, n.Match)
		c.str("on_update", o.OnUpdate, n.OnUpdate)
		c.str("on_delete", o.OnDelete, n.OnDelete)
	}
}

// GrantDelta returns the (grantee, privilege) pairs present in a but not in
// b, sorted by grantee then privilege.
func GrantDelta(a, b []model.Grant) []model.Grant {
	have := make(map[string]bool)
	for _, g := range b {
		for _, p := range g.Privileges {
			have[g.Grantee+"\x00"+p] = true
		}
	}
	byGrantee := make(map[string][]string)
	var grantees []string
	for _, g := range a {
		for _, p := range g.Privileges {
			if have[g.Grantee+"\x00"+p] {
				continue
			}
			if _, ok := byGrantee[g.Grantee]; !ok {
				grantees = append(grantees, g.Grantee)
			}
			byGrantee[g.Grantee] = append(byGrantee[g.Grantee], p)
		}
	}
	sort.Strings(grantees)
	out := make([]model.Grant, 0, len(grantees))
	for _, g := range grantees {
		privs := byGrantee[g]
		sort.Strings(privs)
		out = append(out, model.Grant{Grantee: g, Privileges: privs})
	}
	return out
}

func sameStrs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	return sameStrs(x, y)
}

func sameIdents(a, b []ident.Ident) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name {
			return false
		}
	}
	return true
}

func sameRefs(a, b []model.RelRef) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key(model.KindTable) != b[i].Key(model.KindTable) {
			return false
		}
	}
	return true
}

func sameOptStr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameOptInt[T int | int64](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameChecks(a, b []model.DomainCheck) bool {
	if len(a) != len(b) {
		return false
	}
	m := make(map[string]string, len(a))
	for _, c := range a {
		m[c.Name.Name] = c.Expression
	}
	for _, c := range b {
		if e, ok := m[c.Name.Name]; !ok || e != c.Expression {
			return false
		}
	}
	return true
}

func sameAttributes(a, b []model.Attribute) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name.Name != b[i].Name.Name || a[i].Type != b[i].Type || a[i].Collation != b[i].Collation {
			return false
		}
	}
	return true
}

func sameIndexKeys(a, b []model.IndexKey) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Column.Name != b[i].Column.Name || a[i].Expression != b[i].Expression ||
			a[i].OpClass != b[i].OpClass || a[i].Order != b[i].Order {
			return false
		}
	}
	return true
}

func orBtree(m string) string {
	if m == "" {
		return "btree"
	}
	return m
}
