package ddl

import (
	"strings"

	"github.com/koustreak/dbspec/internal/ident"
	"github.com/koustreak/dbspec/internal/model"
)

// name renders the identifying part of an object reference as used after
// the kind keyword: "s.t", "f(integer)", "FOR alice SERVER files".
func (s *Synthesizer) name(o model.Object) string {
	return s.nameAs(o, o.Meta().Name)
}

// nameAs is name with the object's own name replaced by id; renames use it
// to address the object under its previous name.
func (s *Synthesizer) nameAs(o model.Object, id ident.Ident) string {
	m := o.Meta()
	switch v := o.(type) {
	case *model.Function:
		return ident.Qualify(m.Schema, id) + "(" + v.Arguments + ")"
	case *model.Aggregate:
		return ident.Qualify(m.Schema, id) + "(" + v.Arguments + ")"
	case *model.Operator:
		return operatorName(m.Schema, id.Name) + " (" + orNone(v.LeftArg) + ", " + orNone(v.RightArg) + ")"
	case *model.OperatorClass:
		return ident.Qualify(m.Schema, id) + " USING " + v.IndexMethod
	case *model.OperatorFamily:
		return ident.Qualify(m.Schema, id) + " USING " + v.IndexMethod
	case *model.Cast:
		return "(" + v.Source + " AS " + v.Target + ")"
	case *model.UserMapping:
		return "FOR " + s.role(id.Name) + " SERVER " + m.Parent.SQL()
	case *model.Index:
		return ident.Qualify(m.Schema, id)
	}
	if m.Kind.Scope() == model.ScopeSchema {
		return ident.Qualify(m.Schema, id)
	}
	return id.SQL()
}

// target renders "KIND name" as accepted by COMMENT ON and ALTER ... OWNER.
// Children that live on a relation take the "name ON relation" form.
func (s *Synthesizer) target(o model.Object) string {
	m := o.Meta()
	switch m.Kind {
	case model.KindColumn:
		return "COLUMN " + parentName(m) + "." + m.Name.SQL()
	case model.KindConstraint, model.KindTrigger, model.KindRule:
		return m.Kind.SQL() + " " + m.Name.SQL() + " ON " + parentName(m)
	}
	return m.Kind.SQL() + " " + s.name(o)
}

// parentName is the qualified name of the relation (or server) owning a
// child object.
func parentName(m *model.Base) string {
	if m.ParentKind.Scope() == model.ScopeSchema {
		return ident.Qualify(m.Schema, m.Parent)
	}
	return m.Parent.SQL()
}

// operatorName schema-qualifies an operator symbol outside the default schema.
func operatorName(schema ident.Ident, sym string) string {
	if schema.IsZero() || schema.Name == ident.DefaultSchema {
		return sym
	}
	return schema.SQL() + "." + sym
}

func orNone(s string) string {
	if s == "" {
		return "NONE"
	}
	return s
}

// role quotes a role name; PUBLIC is a keyword, not a role.
func (s *Synthesizer) role(name string) string {
	if strings.EqualFold(name, "public") {
		return "PUBLIC"
	}
	return s.policy.Quote(name)
}

// collation quotes a bare collation name and leaves qualified or already
// quoted names alone.
func collation(c string) string {
	if strings.ContainsAny(c, `."`) {
		return c
	}
	return `"` + c + `"`
}

func idents(ids []ident.Ident) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.SQL()
	}
	return strings.Join(parts, ", ")
}

func relRef(r model.RelRef) string {
	return ident.Qualify(r.Schema, r.Name)
}

// paren wraps expr in parentheses unless one pair already encloses all of it.
func paren(expr string) string {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "(") && closingParen(expr) == len(expr)-1 {
		return expr
	}
	return "(" + expr + ")"
}

// closingParen returns the index of the parenthesis matching expr[0],
// skipping quoted strings and identifiers.
func closingParen(expr string) int {
	depth := 0
	var quote byte
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// dollarQuote wraps a function body in a dollar-quote tag the body does not
// contain.
func dollarQuote(body string) string {
	tag := "$_$"
	for strings.Contains(body, tag) {
		tag = tag[:len(tag)-1] + "_$"
	}
	return tag + body + tag
}

// optionsClause renders generic "k=v" options as OPTIONS (k 'v', ...).
func optionsClause(opts []string) string {
	if len(opts) == 0 {
		return ""
	}
	parts := make([]string, len(opts))
	for i, o := range opts {
		k, v := splitOption(o)
		parts[i] = k + " " + ident.Literal(v)
	}
	return " OPTIONS (" + strings.Join(parts, ", ") + ")"
}

// alterOptions renders the OPTIONS (ADD|SET|DROP ...) clause turning from
// into to, or "" when they agree.
func alterOptions(from, to []string) string {
	before := make(map[string]string, len(from))
	for _, o := range from {
		k, v := splitOption(o)
		before[k] = v
	}
	var parts []string
	seen := make(map[string]bool, len(to))
	for _, o := range to {
		k, v := splitOption(o)
		seen[k] = true
		prev, ok := before[k]
		switch {
		case !ok:
			parts = append(parts, "ADD "+k+" "+ident.Literal(v))
		case prev != v:
			parts = append(parts, "SET "+k+" "+ident.Literal(v))
		}
	}
	for _, o := range from {
		if k, _ := splitOption(o); !seen[k] {
			parts = append(parts, "DROP "+k)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "OPTIONS (" + strings.Join(parts, ", ") + ")"
}

func splitOption(o string) (string, string) {
	k, v, _ := strings.Cut(o, "=")
	return k, v
}

func upperList(words []string) string {
	return strings.ToUpper(strings.Join(words, ", "))
}
