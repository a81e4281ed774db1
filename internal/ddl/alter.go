package ddl

import (
	"strconv"
	"strings"

	"github.com/koustreak/dbspec/internal/diff"
	"github.com/koustreak/dbspec/internal/ident"
	"github.com/koustreak/dbspec/internal/model"
)

// structural returns the differing attributes other than owner, comment and
// privileges.
func structural(c diff.Change) []string {
	var out []string
	for _, a := range c.Attrs {
		switch a {
		case diff.AttrOwner, diff.AttrDescription, diff.AttrPrivileges:
		default:
			out = append(out, a)
		}
	}
	return out
}

// rebuilds reports whether an alter has to drop and re-create the object.
func rebuilds(c diff.Change) bool {
	attrs := structural(c)
	if len(attrs) == 0 {
		return false
	}
	has := func(a string) bool { return c.Has(a) }
	switch n := c.New.(type) {
	case *model.Schema, *model.Extension, *model.Sequence, *model.Table, *model.Column,
		*model.View, *model.Rule, *model.ForeignDataWrapper, *model.UserMapping:
		return false
	case *model.Function:
		return has("returns") || has("allargs")
	case *model.Type:
		if has("form") {
			return true
		}
		switch n.Form {
		case model.TypeComposite:
			return false
		case model.TypeEnum:
			return !isSubsequence(c.Old.(*model.Type).Labels, n.Labels)
		}
		return true
	case *model.Domain:
		return has("type") || has("collation")
	case *model.ForeignServer:
		return has("type") || has("wrapper")
	case *model.ForeignTable:
		return has("server")
	case *model.EventTrigger:
		return len(attrs) > 1 || attrs[0] != "enabled"
	}
	return true
}

// isSubsequence reports whether every element of a appears in b in the same
// relative order.
func isSubsequence(a, b []string) bool {
	i := 0
	for _, x := range b {
		if i < len(a) && a[i] == x {
			i++
		}
	}
	return i == len(a)
}

// alter emits the statements turning c.Old into c.New.
func (p *plan) alter(c diff.Change) error {
	if rebuilds(c) {
		return p.rebuild(c)
	}
	p.alterMeta(c)
	if len(structural(c)) == 0 {
		return nil
	}

	phase, rank := slot(c.New)
	emit := func(sql string) { p.emit(phase, rank, c, sql) }
	s := p.s

	switch n := c.New.(type) {
	case *model.Extension:
		if c.Has("version") {
			sql := "ALTER EXTENSION " + n.Name.SQL() + " UPDATE"
			if n.Version != "" {
				sql += " TO " + ident.Literal(n.Version)
			}
			emit(sql)
		}
		if c.Has("schema") && n.InSchema != "" {
			emit("ALTER EXTENSION " + n.Name.SQL() + " SET SCHEMA " + s.policy.Quote(n.InSchema))
		}
	case *model.Function:
		o := c.Old.(*model.Function)
		if len(structural(c)) == 1 && c.Has("leakproof") {
			if n.LeakProof {
				emit("ALTER FUNCTION " + s.name(n) + " LEAKPROOF")
			} else {
				emit("ALTER FUNCTION " + s.name(n) + " NOT LEAKPROOF")
			}
			return nil
		}
		p.functionBodiesOff(c)
		emit(s.functionSQL(n, true))
		// CREATE OR REPLACE keeps settings the new definition leaves out
		for _, cfg := range o.Configuration {
			k, _ := splitOption(cfg)
			if !hasOption(n.Configuration, k) {
				emit("ALTER FUNCTION " + s.name(n) + " RESET " + k)
			}
		}
	case *model.Type:
		if n.Form == model.TypeEnum {
			p.addEnumLabels(c, c.Old.(*model.Type), n)
		} else if actions := alterAttributes(c.Old.(*model.Type).Attributes, n.Attributes); actions != "" {
			// attribute order cannot be changed in place
			emit("ALTER TYPE " + s.name(n) + " " + actions)
		}
	case *model.Domain:
		p.alterDomain(c, c.Old.(*model.Domain), n)
	case *model.Sequence:
		o := c.Old.(*model.Sequence)
		if clauses := sequenceClauses(o, n); clauses != "" {
			emit("ALTER SEQUENCE " + s.name(n) + clauses)
		}
		if c.Has("owned_by") {
			p.emit(PhaseColumn, 2, c, s.ownedBySQL(n))
		}
	case *model.Table:
		p.alterTable(c, c.Old.(*model.Table), n)
	case *model.Column:
		p.alterColumn(c, n)
	case *model.View:
		emit(s.viewSQL(n, true))
	case *model.Rule:
		emit(ruleSQL(n, true))
	case *model.ForeignDataWrapper:
		o := c.Old.(*model.ForeignDataWrapper)
		var parts []string
		if c.Has("handler") {
			parts = append(parts, orNo("HANDLER", n.Handler))
		}
		if c.Has("validator") {
			parts = append(parts, orNo("VALIDATOR", n.Validator))
		}
		if opts := alterOptions(o.Options, n.Options); opts != "" {
			parts = append(parts, opts)
		}
		emit("ALTER FOREIGN DATA WRAPPER " + n.Name.SQL() + " " + strings.Join(parts, " "))
	case *model.ForeignServer:
		o := c.Old.(*model.ForeignServer)
		var parts []string
		if c.Has("version") {
			if n.Version == "" {
				parts = append(parts, "VERSION NULL")
			} else {
				parts = append(parts, "VERSION "+ident.Literal(n.Version))
			}
		}
		if opts := alterOptions(o.Options, n.Options); opts != "" {
			parts = append(parts, opts)
		}
		emit("ALTER SERVER " + n.Name.SQL() + " " + strings.Join(parts, " "))
	case *model.UserMapping:
		emit("ALTER USER MAPPING " + s.name(n) + " " + alterOptions(c.Old.(*model.UserMapping).Options, n.Options))
	case *model.ForeignTable:
		emit("ALTER FOREIGN TABLE " + s.name(n) + " " + alterOptions(c.Old.(*model.ForeignTable).Options, n.Options))
	case *model.EventTrigger:
		emit("ALTER EVENT TRIGGER " + n.Name.SQL() + " " + enableClause(n.Enabled))
	}
	return nil
}

// rebuild drops the current object and creates the target one with all of
// its metadata.
func (p *plan) rebuild(c diff.Change) error {
	rank := 1
	if isForeignKey(c.Old) {
		rank = 0
	}
	p.emit(PhaseDrop, rank, c, p.s.dropSQL(c.Old))
	if err := p.create(c); err != nil {
		return err
	}
	p.createMeta(c)
	return nil
}

func orNo(clause, value string) string {
	if value == "" {
		return "NO " + clause
	}
	return clause + " " + value
}

func hasOption(opts []string, key string) bool {
	for _, o := range opts {
		if k, _ := splitOption(o); k == key {
			return true
		}
	}
	return false
}

// addEnumLabels adds the labels missing from the current type, each placed
// after its predecessor in the target order.
func (p *plan) addEnumLabels(c diff.Change, from, to *model.Type) {
	have := make(map[string]bool, len(from.Labels))
	for _, l := range from.Labels {
		have[l] = true
	}
	q := p.s.name(to)
	for i, l := range to.Labels {
		if have[l] {
			continue
		}
		sql := "ALTER TYPE " + q + " ADD VALUE " + ident.Literal(l)
		switch {
		case i > 0:
			sql += " AFTER " + ident.Literal(to.Labels[i-1])
		case len(to.Labels) > 1:
			sql += " BEFORE " + ident.Literal(to.Labels[1])
		}
		p.emit(PhaseType, kindRank(model.KindType), c, sql)
	}
}

// alterAttributes renders the ADD, DROP and ALTER ATTRIBUTE actions turning
// one composite type into another.
func alterAttributes(from, to []model.Attribute) string {
	old := make(map[string]model.Attribute, len(from))
	for _, a := range from {
		old[a.Name.Name] = a
	}
	var actions []string
	seen := make(map[string]bool, len(to))
	for _, a := range to {
		seen[a.Name.Name] = true
		prev, ok := old[a.Name.Name]
		switch {
		case !ok:
			act := "ADD ATTRIBUTE " + a.Name.SQL() + " " + a.Type
			if a.Collation != "" {
				act += " COLLATE " + collation(a.Collation)
			}
			actions = append(actions, act)
		case prev.Type != a.Type || prev.Collation != a.Collation:
			act := "ALTER ATTRIBUTE " + a.Name.SQL() + " TYPE " + a.Type
			if a.Collation != "" {
				act += " COLLATE " + collation(a.Collation)
			}
			actions = append(actions, act)
		}
	}
	for _, a := range from {
		if !seen[a.Name.Name] {
			actions = append(actions, "DROP ATTRIBUTE "+a.Name.SQL())
		}
	}
	return strings.Join(actions, ", ")
}

func (p *plan) alterDomain(c diff.Change, from, to *model.Domain) {
	q := "ALTER DOMAIN " + p.s.name(to)
	emit := func(sql string) { p.emit(PhaseType, kindRank(model.KindDomain), c, sql) }
	if c.Has("default") {
		if to.Default == "" {
			emit(q + " DROP DEFAULT")
		} else {
			emit(q + " SET DEFAULT " + to.Default)
		}
	}
	if c.Has("not_null") {
		if to.NotNull {
			emit(q + " SET NOT NULL")
		} else {
			emit(q + " DROP NOT NULL")
		}
	}
	if !c.Has("check_constraints") {
		return
	}
	want := make(map[string]string, len(to.Checks))
	for _, ck := range to.Checks {
		want[ck.Name.Name] = ck.Expression
	}
	have := make(map[string]string, len(from.Checks))
	for _, ck := range from.Checks {
		have[ck.Name.Name] = ck.Expression
		if expr, ok := want[ck.Name.Name]; !ok || expr != ck.Expression {
			emit(q + " DROP CONSTRAINT " + ck.Name.SQL())
		}
	}
	for _, ck := range to.Checks {
		if expr, ok := have[ck.Name.Name]; !ok || expr != ck.Expression {
			emit(q + " ADD CONSTRAINT " + ck.Name.SQL() + " CHECK " + paren(ck.Expression))
		}
	}
}

func (p *plan) alterTable(c diff.Change, from, to *model.Table) {
	q := "ALTER TABLE " + p.s.name(to)
	emit := func(sql string) { p.emit(PhaseTable, 1, c, sql) }
	if c.Has("options") {
		var set, reset []string
		for _, o := range to.Options {
			if !containsStr(from.Options, o) {
				set = append(set, o)
			}
		}
		for _, o := range from.Options {
			if k, _ := splitOption(o); !hasOption(to.Options, k) {
				reset = append(reset, k)
			}
		}
		if len(set) > 0 {
			emit(q + " SET (" + strings.Join(set, ", ") + ")")
		}
		if len(reset) > 0 {
			emit(q + " RESET (" + strings.Join(reset, ", ") + ")")
		}
	}
	if c.Has("tablespace") {
		ts := to.Tablespace
		if ts == "" {
			ts = "pg_default"
		}
		emit(q + " SET TABLESPACE " + p.s.policy.Quote(ts))
	}
	if c.Has("unlogged") {
		if to.Unlogged {
			emit(q + " SET UNLOGGED")
		} else {
			emit(q + " SET LOGGED")
		}
	}
	if c.Has("inherits") {
		// after column additions so the child carries every parent column
		for _, r := range to.Inherits {
			if !hasRef(from.Inherits, r) {
				p.emit(PhaseColumn, 1, c, q+" INHERIT "+relRef(r))
			}
		}
		for _, r := range from.Inherits {
			if !hasRef(to.Inherits, r) {
				p.emit(PhaseColumn, 1, c, q+" NO INHERIT "+relRef(r))
			}
		}
	}
}

func containsStr(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func hasRef(refs []model.RelRef, r model.RelRef) bool {
	for _, x := range refs {
		if x.Key(model.KindTable) == r.Key(model.KindTable) {
			return true
		}
	}
	return false
}

func (p *plan) alterColumn(c diff.Change, to *model.Column) {
	q := "ALTER " + to.ParentKind.SQL() + " " + parentName(&to.Base) + " ALTER COLUMN " + to.Name.SQL()
	emit := func(sql string) { p.emit(PhaseColumn, 0, c, sql) }
	if c.Has("type") || c.Has("collation") {
		sql := q + " TYPE " + to.Type
		if to.Collation != "" {
			sql += " COLLATE " + collation(to.Collation)
		}
		emit(sql)
	}
	if c.Has("not_null") {
		if to.NotNull {
			emit(q + " SET NOT NULL")
		} else {
			emit(q + " DROP NOT NULL")
		}
	}
	if c.Has("default") {
		if to.Default == "" {
			emit(q + " DROP DEFAULT")
		} else {
			emit(q + " SET DEFAULT " + to.Default)
		}
	}
	if c.Has("statistics") {
		n := -1
		if to.Statistics != nil {
			n = *to.Statistics
		}
		emit(q + " SET STATISTICS " + strconv.Itoa(n))
	}
}
