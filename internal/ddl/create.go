package ddl

import (
	"strconv"
	"strings"

	"github.com/koustreak/dbspec/internal/diff"
	"github.com/koustreak/dbspec/internal/errs"
	"github.com/koustreak/dbspec/internal/ident"
	"github.com/koustreak/dbspec/internal/model"
)

// slot is the phase and rank at which an object of o's kind is created.
func slot(o model.Object) (Phase, int) {
	k := o.Meta().Kind
	switch k {
	case model.KindSchema, model.KindExtension, model.KindLanguage, model.KindCollation:
		return PhaseNamespace, kindRank(k)
	case model.KindSequence:
		return PhaseTable, 0
	case model.KindTable:
		return PhaseTable, 1
	case model.KindForeignTable:
		return PhaseTable, 2
	case model.KindColumn:
		return PhaseColumn, 0
	case model.KindConstraint:
		switch o.(*model.Constraint).Type {
		case model.ConstraintCheck:
			return PhaseConstraint, 0
		case model.ConstraintPrimaryKey:
			return PhaseConstraint, 1
		case model.ConstraintUnique:
			return PhaseConstraint, 2
		}
		return PhaseConstraint, 3
	case model.KindView, model.KindMaterializedView:
		return PhaseDependent, 0
	case model.KindIndex:
		return PhaseDependent, 2
	case model.KindTrigger:
		return PhaseDependent, 3
	case model.KindRule:
		return PhaseDependent, 4
	case model.KindEventTrigger:
		return PhaseDependent, 5
	}
	return PhaseType, kindRank(k)
}

// create emits the statements creating c.New.
func (p *plan) create(c diff.Change) error {
	phase, rank := slot(c.New)
	emit := func(sql string) { p.emit(phase, rank, c, sql) }
	s := p.s

	switch o := c.New.(type) {
	case *model.Schema:
		// public exists in every database
		if o.Name.Name != ident.DefaultSchema {
			emit("CREATE SCHEMA " + o.Name.SQL())
		}
	case *model.Extension:
		sql := "CREATE EXTENSION " + o.Name.SQL()
		if o.InSchema != "" {
			sql += " SCHEMA " + s.policy.Quote(o.InSchema)
		}
		if o.Version != "" {
			sql += " VERSION " + ident.Literal(o.Version)
		}
		emit(sql)
	case *model.Language:
		if o.Trusted {
			emit("CREATE TRUSTED LANGUAGE " + o.Name.SQL())
		} else {
			emit("CREATE LANGUAGE " + o.Name.SQL())
		}
	case *model.Collation:
		emit("CREATE COLLATION " + s.name(o) + " (LC_COLLATE = " + ident.Literal(o.LcCollate) +
			", LC_CTYPE = " + ident.Literal(o.LcCtype) + ")")
	case *model.Type:
		p.createType(c, o)
	case *model.Domain:
		emit(s.domainSQL(o))
	case *model.Function:
		p.functionBodiesOff(c)
		emit(s.functionSQL(o, false))
	case *model.Aggregate:
		opts := []string{"SFUNC = " + o.SFunc, "STYPE = " + o.SType}
		if o.FinalFunc != "" {
			opts = append(opts, "FINALFUNC = "+o.FinalFunc)
		}
		if o.InitCond != nil {
			opts = append(opts, "INITCOND = "+ident.Literal(*o.InitCond))
		}
		if o.SortOp != "" {
			opts = append(opts, "SORTOP = "+o.SortOp)
		}
		emit("CREATE AGGREGATE " + s.name(o) + " (" + strings.Join(opts, ", ") + ")")
	case *model.Operator:
		emit(operatorSQL(o))
	case *model.OperatorFamily:
		emit("CREATE OPERATOR FAMILY " + s.name(o))
	case *model.OperatorClass:
		emit(s.operatorClassSQL(o))
	case *model.Conversion:
		sql := "CREATE "
		if o.Default {
			sql += "DEFAULT "
		}
		emit(sql + "CONVERSION " + s.name(o) + " FOR " + ident.Literal(o.SourceEncoding) +
			" TO " + ident.Literal(o.DestEncoding) + " FROM " + o.Function)
	case *model.Cast:
		emit(castSQL(o))
	case *model.TSParser:
		opts := []string{"START = " + o.Start, "GETTOKEN = " + o.GetToken, "END = " + o.End, "LEXTYPES = " + o.Lextypes}
		if o.Headline != "" {
			opts = append(opts, "HEADLINE = "+o.Headline)
		}
		emit("CREATE TEXT SEARCH PARSER " + s.name(o) + " (" + strings.Join(opts, ", ") + ")")
	case *model.TSTemplate:
		var opts []string
		if o.Init != "" {
			opts = append(opts, "INIT = "+o.Init)
		}
		opts = append(opts, "LEXIZE = "+o.Lexize)
		emit("CREATE TEXT SEARCH TEMPLATE " + s.name(o) + " (" + strings.Join(opts, ", ") + ")")
	case *model.TSDictionary:
		sql := "CREATE TEXT SEARCH DICTIONARY " + s.name(o) + " (TEMPLATE = " + o.Template
		if o.Options != "" {
			sql += ", " + o.Options
		}
		emit(sql + ")")
	case *model.TSConfiguration:
		emit("CREATE TEXT SEARCH CONFIGURATION " + s.name(o) + " (PARSER = " + o.Parser + ")")
	case *model.ForeignDataWrapper:
		sql := "CREATE FOREIGN DATA WRAPPER " + o.Name.SQL()
		if o.Handler != "" {
			sql += " HANDLER " + o.Handler
		}
		if o.Validator != "" {
			sql += " VALIDATOR " + o.Validator
		}
		emit(sql + optionsClause(o.Options))
	case *model.ForeignServer:
		sql := "CREATE SERVER " + o.Name.SQL()
		if o.Type != "" {
			sql += " TYPE " + ident.Literal(o.Type)
		}
		if o.Version != "" {
			sql += " VERSION " + ident.Literal(o.Version)
		}
		emit(sql + " FOREIGN DATA WRAPPER " + o.Wrapper.SQL() + optionsClause(o.Options))
	case *model.UserMapping:
		emit("CREATE USER MAPPING " + s.name(o) + optionsClause(o.Options))
	case *model.Sequence:
		emit("CREATE SEQUENCE " + s.name(o) + sequenceClauses(nil, o))
		if !o.OwnerTable.IsZero() {
			p.emit(PhaseColumn, 2, c, s.ownedBySQL(o))
		}
	case *model.Table:
		emit(p.tableSQL(o))
	case *model.ForeignTable:
		emit("CREATE FOREIGN TABLE " + s.name(o) + " (" + p.columnList(c.Key) + ") SERVER " +
			o.Server.SQL() + optionsClause(o.Options))
	case *model.Column:
		p.createColumn(c, o)
	case *model.Constraint:
		emit("ALTER " + o.ParentKind.SQL() + " " + parentName(&o.Base) + " ADD CONSTRAINT " +
			o.Name.SQL() + " " + s.constraintDef(o))
	case *model.Index:
		emit(s.indexSQL(o))
	case *model.Trigger:
		emit(triggerSQL(o))
	case *model.Rule:
		emit(ruleSQL(o, false))
	case *model.View:
		emit(s.viewSQL(o, false))
	case *model.MaterializedView:
		sql := "CREATE MATERIALIZED VIEW " + s.name(o) + " AS " + viewBody(o.Definition)
		if !o.WithData {
			sql += " WITH NO DATA"
		}
		emit(sql)
	case *model.EventTrigger:
		emit(eventTriggerSQL(o))
		if o.Enabled != "" && o.Enabled != "origin" {
			emit("ALTER EVENT TRIGGER " + o.Name.SQL() + " " + enableClause(o.Enabled))
		}
	default:
		return errs.Keyedf(errs.ErrKindUnsupportedObject, c.Key.String(), "cannot create a %s", c.Key.Kind)
	}
	return nil
}

// createType emits a base type as a shell followed by its definition once
// the I/O functions exist.
func (p *plan) createType(c diff.Change, t *model.Type) {
	q := p.s.name(t)
	switch t.Form {
	case model.TypeComposite:
		attrs := make([]string, len(t.Attributes))
		for i, a := range t.Attributes {
			attrs[i] = a.Name.SQL() + " " + a.Type
			if a.Collation != "" {
				attrs[i] += " COLLATE " + collation(a.Collation)
			}
		}
		p.emit(PhaseType, kindRank(model.KindType), c, "CREATE TYPE "+q+" AS ("+strings.Join(attrs, ", ")+")")
	case model.TypeEnum:
		labels := make([]string, len(t.Labels))
		for i, l := range t.Labels {
			labels[i] = ident.Literal(l)
		}
		p.emit(PhaseType, kindRank(model.KindType), c, "CREATE TYPE "+q+" AS ENUM ("+strings.Join(labels, ", ")+")")
	case model.TypeRange:
		p.emit(PhaseType, kindRank(model.KindType), c, "CREATE TYPE "+q+" AS RANGE (SUBTYPE = "+t.Subtype+")")
	default:
		p.emit(PhaseType, kindRank(model.KindType), c, "CREATE TYPE "+q)
		opts := []string{"INPUT = " + t.Input, "OUTPUT = " + t.Output}
		add := func(k, v string) {
			if v != "" {
				opts = append(opts, k+" = "+v)
			}
		}
		add("RECEIVE", t.Receive)
		add("SEND", t.Send)
		add("TYPMOD_IN", t.TypmodIn)
		add("TYPMOD_OUT", t.TypmodOut)
		add("ANALYZE", t.Analyze)
		add("INTERNALLENGTH", t.InternalLength)
		add("ALIGNMENT", t.Alignment)
		add("STORAGE", t.Storage)
		if t.Category != "" {
			opts = append(opts, "CATEGORY = "+ident.Literal(t.Category))
		}
		if t.Delimiter != "" {
			opts = append(opts, "DELIMITER = "+ident.Literal(t.Delimiter))
		}
		if t.Preferred {
			opts = append(opts, "PREFERRED = true")
		}
		p.emit(PhaseType, kindRank(model.KindFunction)+1, c, "CREATE TYPE "+q+" ("+strings.Join(opts, ", ")+")")
	}
}

func (s *Synthesizer) domainSQL(d *model.Domain) string {
	sql := "CREATE DOMAIN " + s.name(d) + " AS " + d.BaseType
	if d.Collation != "" {
		sql += " COLLATE " + collation(d.Collation)
	}
	if d.Default != "" {
		sql += " DEFAULT " + d.Default
	}
	if d.NotNull {
		sql += " NOT NULL"
	}
	for _, ck := range d.Checks {
		sql += " CONSTRAINT " + ck.Name.SQL() + " CHECK " + paren(ck.Expression)
	}
	return sql
}

func (s *Synthesizer) functionSQL(f *model.Function, replace bool) string {
	var b strings.Builder
	b.WriteString("CREATE ")
	if replace {
		b.WriteString("OR REPLACE ")
	}
	args := f.Arguments
	if f.AllArgs != "" {
		args = f.AllArgs
	}
	b.WriteString("FUNCTION " + ident.Qualify(f.Schema, f.Name) + "(" + args + ")")
	b.WriteString(" RETURNS " + f.Returns)
	b.WriteString(" LANGUAGE " + f.Language)
	if f.Volatility != "" {
		b.WriteString(" " + strings.ToUpper(f.Volatility))
	}
	if f.Strict {
		b.WriteString(" STRICT")
	}
	if f.LeakProof {
		b.WriteString(" LEAKPROOF")
	}
	if f.SecurityDefiner {
		b.WriteString(" SECURITY DEFINER")
	}
	if f.Cost != 0 {
		b.WriteString(" COST " + strconv.FormatFloat(f.Cost, 'f', -1, 64))
	}
	if f.Rows != 0 {
		b.WriteString(" ROWS " + strconv.FormatFloat(f.Rows, 'f', -1, 64))
	}
	for _, cfg := range f.Configuration {
		k, v := splitOption(cfg)
		b.WriteString(" SET " + k + " TO " + v)
	}
	if f.ObjFile != "" {
		b.WriteString(" AS " + ident.Literal(f.ObjFile) + ", " + ident.Literal(f.LinkSymbol))
	} else {
		b.WriteString(" AS " + dollarQuote(f.Source))
	}
	return b.String()
}

func operatorSQL(o *model.Operator) string {
	opts := []string{"PROCEDURE = " + o.Procedure}
	add := func(k, v string) {
		if v != "" {
			opts = append(opts, k+" = "+v)
		}
	}
	add("LEFTARG", o.LeftArg)
	add("RIGHTARG", o.RightArg)
	add("COMMUTATOR", o.Commutator)
	add("NEGATOR", o.Negator)
	add("RESTRICT", o.Restrict)
	add("JOIN", o.Join)
	if o.Hashes {
		opts = append(opts, "HASHES")
	}
	if o.Merges {
		opts = append(opts, "MERGES")
	}
	return "CREATE OPERATOR " + operatorName(o.Schema, o.Name.Name) + " (" + strings.Join(opts, ", ") + ")"
}

func (s *Synthesizer) operatorClassSQL(o *model.OperatorClass) string {
	sql := "CREATE OPERATOR CLASS " + ident.Qualify(o.Schema, o.Name)
	if o.Default {
		sql += " DEFAULT"
	}
	sql += " FOR TYPE " + o.Type + " USING " + o.IndexMethod
	if o.Family != "" {
		sql += " FAMILY " + o.Family
	}
	var items []string
	for _, op := range o.Operators {
		items = append(items, "OPERATOR "+op)
	}
	for _, fn := range o.Functions {
		items = append(items, "FUNCTION "+fn)
	}
	if o.Storage != "" {
		items = append(items, "STORAGE "+o.Storage)
	}
	return sql + " AS " + strings.Join(items, ", ")
}

func castSQL(c *model.Cast) string {
	sql := "CREATE CAST (" + c.Source + " AS " + c.Target + ")"
	switch {
	case c.Method == "inout":
		sql += " WITH INOUT"
	case c.Method == "binary" || c.Function == "":
		sql += " WITHOUT FUNCTION"
	default:
		sql += " WITH FUNCTION " + c.Function
	}
	switch c.Context {
	case "assignment":
		sql += " AS ASSIGNMENT"
	case "implicit":
		sql += " AS IMPLICIT"
	}
	return sql
}

// sequenceClauses renders the option clauses of s, or only those differing
// from old when old is non-nil.
func sequenceClauses(old, s *model.Sequence) string {
	var b strings.Builder
	if (old == nil && s.Start != 0) || (old != nil && old.Start != s.Start) {
		b.WriteString(" START WITH " + strconv.FormatInt(s.Start, 10))
	}
	if (old == nil && s.Increment != 0) || (old != nil && old.Increment != s.Increment) {
		b.WriteString(" INCREMENT BY " + strconv.FormatInt(s.Increment, 10))
	}
	if old == nil || !sameBound(old.MinValue, s.MinValue) {
		switch {
		case s.MinValue != nil:
			b.WriteString(" MINVALUE " + strconv.FormatInt(*s.MinValue, 10))
		case old != nil:
			b.WriteString(" NO MINVALUE")
		}
	}
	if old == nil || !sameBound(old.MaxValue, s.MaxValue) {
		switch {
		case s.MaxValue != nil:
			b.WriteString(" MAXVALUE " + strconv.FormatInt(*s.MaxValue, 10))
		case old != nil:
			b.WriteString(" NO MAXVALUE")
		}
	}
	if (old == nil && s.Cache > 1) || (old != nil && old.Cache != s.Cache) {
		b.WriteString(" CACHE " + strconv.FormatInt(max(s.Cache, 1), 10))
	}
	if (old == nil && s.Cycle) || (old != nil && old.Cycle != s.Cycle) {
		if s.Cycle {
			b.WriteString(" CYCLE")
		} else {
			b.WriteString(" NO CYCLE")
		}
	}
	return b.String()
}

func sameBound(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *Synthesizer) ownedBySQL(seq *model.Sequence) string {
	owner := "NONE"
	if !seq.OwnerTable.IsZero() {
		owner = ident.Qualify(seq.Schema, seq.OwnerTable) + "." + seq.OwnerColumn.SQL()
	}
	return "ALTER SEQUENCE " + s.name(seq) + " OWNED BY " + owner
}

func (p *plan) tableSQL(t *model.Table) string {
	var b strings.Builder
	b.WriteString("CREATE ")
	if t.Unlogged {
		b.WriteString("UNLOGGED ")
	}
	b.WriteString("TABLE " + p.s.name(t) + " (" + p.columnList(t.Key()) + ")")
	if len(t.Inherits) > 0 {
		parents := make([]string, len(t.Inherits))
		for i, r := range t.Inherits {
			parents[i] = relRef(r)
		}
		b.WriteString(" INHERITS (" + strings.Join(parents, ", ") + ")")
	}
	if len(t.Options) > 0 {
		b.WriteString(" WITH (" + strings.Join(t.Options, ", ") + ")")
	}
	if t.Tablespace != "" {
		b.WriteString(" TABLESPACE " + p.s.policy.Quote(t.Tablespace))
	}
	return b.String()
}

// columnList renders the local columns of a relation being created, one
// per line. Inherited columns come from the parents.
func (p *plan) columnList(rel model.Key) string {
	var defs []string
	for _, o := range p.cs.Target.Children(rel, model.KindColumn) {
		col := o.(*model.Column)
		if col.Inherited {
			continue
		}
		defs = append(defs, columnDef(col))
	}
	if len(defs) == 0 {
		return ""
	}
	return "\n    " + strings.Join(defs, ",\n    ") + "\n"
}

// columnDef renders a column definition. Sequence defaults are left out:
// the sequence may be created in the same run and is attached afterwards.
func columnDef(c *model.Column) string {
	def := c.Name.SQL() + " " + c.Type
	if c.Collation != "" {
		def += " COLLATE " + collation(c.Collation)
	}
	if c.NotNull {
		def += " NOT NULL"
	}
	if c.Default != "" && !isNextval(c.Default) {
		def += " DEFAULT " + c.Default
	}
	return def
}

func isNextval(expr string) bool {
	return strings.HasPrefix(strings.TrimSpace(expr), "nextval(")
}

func (p *plan) createColumn(c diff.Change, col *model.Column) {
	parent, _ := c.Key.ParentKey()
	alter := "ALTER " + col.ParentKind.SQL() + " " + parentName(&col.Base)
	if !p.created[parent] {
		p.emit(PhaseColumn, 0, c, alter+" ADD COLUMN "+columnDef(col))
	}
	if isNextval(col.Default) {
		p.emit(PhaseColumn, 1, c, alter+" ALTER COLUMN "+col.Name.SQL()+" SET DEFAULT "+col.Default)
	}
	if col.Statistics != nil {
		p.emit(PhaseColumn, 1, c, alter+" ALTER COLUMN "+col.Name.SQL()+" SET STATISTICS "+strconv.Itoa(*col.Statistics))
	}
}

func (s *Synthesizer) constraintDef(c *model.Constraint) string {
	switch c.Type {
	case model.ConstraintCheck:
		return "CHECK " + paren(c.Expression)
	case model.ConstraintPrimaryKey, model.ConstraintUnique:
		def := strings.ToUpper(string(c.Type)) + " (" + idents(c.Columns) + ")"
		if c.Tablespace != "" {
			def += " USING INDEX TABLESPACE " + s.policy.Quote(c.Tablespace)
		}
		return def + deferrable(c.Deferrable, c.Deferred)
	}
	def := "FOREIGN KEY (" + idents(c.Columns) + ") REFERENCES " + relRef(c.Ref) + " (" + idents(c.RefColumns) + ")"
	if c.Match != "" {
		def += " MATCH " + strings.ToUpper(c.Match)
	}
	if c.OnUpdate != "" {
		def += " ON UPDATE " + strings.ToUpper(c.OnUpdate)
	}
	if c.OnDelete != "" {
		def += " ON DELETE " + strings.ToUpper(c.OnDelete)
	}
	return def + deferrable(c.Deferrable, c.Deferred)
}

func deferrable(d, initially bool) string {
	switch {
	case d && initially:
		return " DEFERRABLE INITIALLY DEFERRED"
	case d:
		return " DEFERRABLE"
	}
	return ""
}

func (s *Synthesizer) indexSQL(x *model.Index) string {
	var b strings.Builder
	b.WriteString("CREATE ")
	if x.Unique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX " + x.Name.SQL() + " ON " + parentName(&x.Base))
	if x.AccessMethod != "" && x.AccessMethod != "btree" {
		b.WriteString(" USING " + x.AccessMethod)
	}
	keys := make([]string, len(x.Keys))
	for i, k := range x.Keys {
		if k.Expression != "" {
			keys[i] = paren(k.Expression)
		} else {
			keys[i] = k.Column.SQL()
		}
		if k.OpClass != "" {
			keys[i] += " " + k.OpClass
		}
		if k.Order != "" {
			keys[i] += " " + strings.ToUpper(k.Order)
		}
	}
	b.WriteString(" (" + strings.Join(keys, ", ") + ")")
	if x.Tablespace != "" {
		b.WriteString(" TABLESPACE " + s.policy.Quote(x.Tablespace))
	}
	if x.Predicate != "" {
		b.WriteString(" WHERE " + paren(x.Predicate))
	}
	return b.String()
}

func triggerSQL(t *model.Trigger) string {
	var b strings.Builder
	b.WriteString("CREATE ")
	if t.Constraint {
		b.WriteString("CONSTRAINT ")
	}
	events := make([]string, len(t.Events))
	for i, e := range t.Events {
		events[i] = strings.ToUpper(e)
	}
	b.WriteString("TRIGGER " + t.Name.SQL() + " " + strings.ToUpper(t.Timing) + " " +
		strings.Join(events, " OR ") + " ON " + parentName(&t.Base))
	if t.Constraint {
		b.WriteString(deferrable(t.Deferrable, t.Deferred))
	}
	level := t.Level
	if level == "" {
		level = "statement"
	}
	b.WriteString(" FOR EACH " + strings.ToUpper(level))
	if t.Condition != "" {
		b.WriteString(" WHEN " + paren(t.Condition))
	}
	b.WriteString(" EXECUTE PROCEDURE " + call(t.Procedure))
	return b.String()
}

// call appends an empty argument list to a bare function name.
func call(fn string) string {
	if strings.HasSuffix(strings.TrimSpace(fn), ")") {
		return fn
	}
	return fn + "()"
}

func ruleSQL(r *model.Rule, replace bool) string {
	sql := "CREATE "
	if replace {
		sql += "OR REPLACE "
	}
	sql += "RULE " + r.Name.SQL() + " AS ON " + strings.ToUpper(r.Event) + " TO " + parentName(&r.Base)
	if r.Condition != "" {
		sql += " WHERE " + r.Condition
	}
	sql += " DO "
	if r.Instead {
		sql += "INSTEAD "
	}
	actions := strings.TrimSuffix(strings.TrimSpace(r.Actions), ";")
	if actions == "" {
		actions = "NOTHING"
	}
	return sql + actions
}

func (s *Synthesizer) viewSQL(v *model.View, replace bool) string {
	sql := "CREATE "
	if replace {
		sql += "OR REPLACE "
	}
	return sql + "VIEW " + s.name(v) + " AS " + viewBody(v.Definition)
}

// viewBody trims the statement terminator the catalog keeps on view text.
func viewBody(def string) string {
	return strings.TrimSuffix(strings.TrimSpace(def), ";")
}

func eventTriggerSQL(e *model.EventTrigger) string {
	sql := "CREATE EVENT TRIGGER " + e.Name.SQL() + " ON " + e.Event
	if len(e.Tags) > 0 {
		tags := make([]string, len(e.Tags))
		for i, t := range e.Tags {
			tags[i] = ident.Literal(t)
		}
		sql += " WHEN TAG IN (" + strings.Join(tags, ", ") + ")"
	}
	return sql + " EXECUTE PROCEDURE " + call(e.Procedure)
}

func enableClause(state string) string {
	switch state {
	case "disabled":
		return "DISABLE"
	case "replica":
		return "ENABLE REPLICA"
	case "always":
		return "ENABLE ALWAYS"
	}
	return "ENABLE"
}
