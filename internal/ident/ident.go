// Package ident decides how SQL identifiers are written.
//
// A Policy is built once at startup from the reserved-word list and is
// passed explicitly to the specification mapper, the catalog materializer
// and the DDL synthesizer. It is never mutated after construction, so a
// single Policy may be shared by concurrent plan runs.
package ident

import (
	"sort"
	"strings"
)

// DefaultSchema is the schema on the default search path. Objects in it are
// written unqualified.
const DefaultSchema = "public"

// Ident is a name together with its quoting requirement, computed once when
// the model is built and honoured verbatim by every statement writer.
type Ident struct {
	Name   string
	Quoted bool
}

// SQL returns the identifier as it must appear in a statement.
func (i Ident) SQL() string {
	if i.Quoted {
		return `"` + strings.ReplaceAll(i.Name, `"`, `""`) + `"`
	}
	return i.Name
}

// String returns the raw name.
func (i Ident) String() string { return i.Name }

// IsZero reports whether the identifier is empty.
func (i Ident) IsZero() bool { return i.Name == "" }

// Policy is an immutable reserved-word table.
type Policy struct {
	reserved map[string]struct{}
}

// NewPolicy returns a Policy that treats the PostgreSQL reserved keywords
// and every word in extra as requiring quotes.
func NewPolicy(extra ...string) *Policy {
	p := &Policy{reserved: make(map[string]struct{}, len(reservedWords)+len(extra))}
	for _, w := range reservedWords {
		p.reserved[w] = struct{}{}
	}
	for _, w := range extra {
		p.reserved[strings.ToLower(w)] = struct{}{}
	}
	return p
}

var defaultPolicy = NewPolicy()

// DefaultPolicy returns the shared Policy built from the standard keyword list.
func DefaultPolicy() *Policy { return defaultPolicy }

// NeedsQuote reports whether name must be double-quoted: anything other than
// a lowercase identifier made of [a-z0-9_$] that does not start with a digit
// or $, or any reserved word.
func (p *Policy) NeedsQuote(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c == '_':
		case (c >= '0' && c <= '9') || c == '$':
			if i == 0 {
				return true
			}
		default:
			return true
		}
	}
	_, ok := p.reserved[name]
	return ok
}

// Ident builds an Ident for name under this policy.
func (p *Policy) Ident(name string) Ident {
	return Ident{Name: name, Quoted: p.NeedsQuote(name)}
}

// Quote returns name as it must appear in a statement.
func (p *Policy) Quote(name string) string {
	return p.Ident(name).SQL()
}

// Reserved returns the reserved words in sorted order.
func (p *Policy) Reserved() []string {
	words := make([]string, 0, len(p.reserved))
	for w := range p.reserved {
		words = append(words, w)
	}
	sort.Strings(words)
	return words
}

// Qualify writes schema.name, omitting the schema when it is the default one.
func Qualify(schema, name Ident) string {
	if schema.IsZero() || schema.Name == DefaultSchema {
		return name.SQL()
	}
	return schema.SQL() + "." + name.SQL()
}

// Literal returns s as a single-quoted SQL string literal.
func Literal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// reservedWords are the keywords PostgreSQL lists as reserved (category R)
// plus the type/function-name keywords that cannot be column names.
var reservedWords = []string{
	"all", "analyse", "analyze", "and", "any", "array", "as", "asc",
	"asymmetric", "authorization", "binary", "both", "case", "cast", "check",
	"collate", "collation", "column", "concurrently", "constraint", "create",
	"cross", "current_catalog", "current_date", "current_role",
	"current_schema", "current_time", "current_timestamp", "current_user",
	"default", "deferrable", "desc", "distinct", "do", "else", "end", "except",
	"false", "fetch", "for", "foreign", "freeze", "from", "full", "grant",
	"group", "having", "ilike", "in", "initially", "inner", "intersect", "into",
	"is", "isnull", "join", "lateral", "leading", "left", "like", "limit",
	"localtime", "localtimestamp", "natural", "not", "notnull", "null",
	"offset", "on", "only", "or", "order", "outer", "overlaps", "placing",
	"primary", "references", "returning", "right", "select", "session_user",
	"similar", "some", "symmetric", "system_user", "table", "tablesample",
	"then", "to", "trailing", "true", "union", "unique", "user", "using",
	"variadic", "verbose", "when", "where", "window", "with",
}
