package model

// Kind is the closed set of object kinds the model understands. The
// declaration order is the creation dependency order used by the diff
// engine and the DDL synthesizer.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindSchema
	KindExtension
	KindLanguage
	KindCollation
	KindType
	KindDomain
	KindFunction
	KindAggregate
	KindOperator
	KindOperatorFamily
	KindOperatorClass
	KindConversion
	KindCast
	KindTSParser
	KindTSTemplate
	KindTSDictionary
	KindTSConfiguration
	KindForeignDataWrapper
	KindForeignServer
	KindUserMapping
	KindSequence
	KindTable
	KindForeignTable
	KindColumn
	KindConstraint
	KindIndex
	KindView
	KindMaterializedView
	KindTrigger
	KindRule
	KindEventTrigger

	kindCount
)

// Scope says where an object of a kind lives.
type Scope uint8

const (
	ScopeDatabase Scope = iota // extensions, languages, casts, wrappers, ...
	ScopeSchema                // tables, types, functions, ...
	ScopeChild                 // columns, constraints, indexes, ...
)

type kindInfo struct {
	name     string // spec-document prefix and key label
	sql      string // keyword used in CREATE / DROP / COMMENT ON
	scope    Scope
	children []Kind
}

var kinds = [kindCount]kindInfo{
	KindUnknown:            {name: "unknown"},
	KindSchema:             {name: "schema", sql: "SCHEMA", scope: ScopeDatabase},
	KindExtension:          {name: "extension", sql: "EXTENSION", scope: ScopeDatabase},
	KindLanguage:           {name: "language", sql: "LANGUAGE", scope: ScopeDatabase},
	KindCollation:          {name: "collation", sql: "COLLATION", scope: ScopeSchema},
	KindType:               {name: "type", sql: "TYPE", scope: ScopeSchema},
	KindDomain:             {name: "domain", sql: "DOMAIN", scope: ScopeSchema},
	KindFunction:           {name: "function", sql: "FUNCTION", scope: ScopeSchema},
	KindAggregate:          {name: "aggregate", sql: "AGGREGATE", scope: ScopeSchema},
	KindOperator:           {name: "operator", sql: "OPERATOR", scope: ScopeSchema},
	KindOperatorFamily:     {name: "operator family", sql: "OPERATOR FAMILY", scope: ScopeSchema},
	KindOperatorClass:      {name: "operator class", sql: "OPERATOR CLASS", scope: ScopeSchema},
	KindConversion:         {name: "conversion", sql: "CONVERSION", scope: ScopeSchema},
	KindCast:               {name: "cast", sql: "CAST", scope: ScopeDatabase},
	KindTSParser:           {name: "text search parser", sql: "TEXT SEARCH PARSER", scope: ScopeSchema},
	KindTSTemplate:         {name: "text search template", sql: "TEXT SEARCH TEMPLATE", scope: ScopeSchema},
	KindTSDictionary:       {name: "text search dictionary", sql: "TEXT SEARCH DICTIONARY", scope: ScopeSchema},
	KindTSConfiguration:    {name: "text search configuration", sql: "TEXT SEARCH CONFIGURATION", scope: ScopeSchema},
	KindForeignDataWrapper: {name: "foreign data wrapper", sql: "FOREIGN DATA WRAPPER", scope: ScopeDatabase},
	KindForeignServer:      {name: "server", sql: "SERVER", scope: ScopeDatabase, children: []Kind{KindUserMapping}},
	KindUserMapping:        {name: "user mapping", sql: "USER MAPPING", scope: ScopeChild},
	KindSequence:           {name: "sequence", sql: "SEQUENCE", scope: ScopeSchema},
	KindTable: {name: "table", sql: "TABLE", scope: ScopeSchema,
		children: []Kind{KindColumn, KindConstraint, KindIndex, KindTrigger, KindRule}},
	KindForeignTable: {name: "foreign table", sql: "FOREIGN TABLE", scope: ScopeSchema,
		children: []Kind{KindColumn, KindConstraint}},
	KindColumn:     {name: "column", sql: "COLUMN", scope: ScopeChild},
	KindConstraint: {name: "constraint", sql: "CONSTRAINT", scope: ScopeChild},
	KindIndex:      {name: "index", sql: "INDEX", scope: ScopeChild},
	KindView: {name: "view", sql: "VIEW", scope: ScopeSchema,
		children: []Kind{KindTrigger, KindRule}},
	KindMaterializedView: {name: "materialized view", sql: "MATERIALIZED VIEW", scope: ScopeSchema,
		children: []Kind{KindIndex}},
	KindTrigger:      {name: "trigger", sql: "TRIGGER", scope: ScopeChild},
	KindRule:         {name: "rule", sql: "RULE", scope: ScopeChild},
	KindEventTrigger: {name: "event trigger", sql: "EVENT TRIGGER", scope: ScopeDatabase},
}

// Kinds returns every known kind in creation dependency order.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount-1)
	for k := KindSchema; k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

func (k Kind) valid() bool { return k > KindUnknown && k < kindCount }

func (k Kind) String() string {
	if !k.valid() {
		return "unknown"
	}
	return kinds[k].name
}

// SQL returns the statement keyword for the kind, e.g. "MATERIALIZED VIEW".
func (k Kind) SQL() string {
	if !k.valid() {
		return ""
	}
	return kinds[k].sql
}

// Scope reports where objects of this kind live.
func (k Kind) Scope() Scope {
	if !k.valid() {
		return ScopeDatabase
	}
	return kinds[k].scope
}

// Supports reports whether objects of kind k may own children of kind child.
func (k Kind) Supports(child Kind) bool {
	if !k.valid() {
		return false
	}
	for _, c := range kinds[k].children {
		if c == child {
			return true
		}
	}
	return false
}

// IsRelation reports whether the kind lives in the relation namespace of a schema.
func (k Kind) IsRelation() bool {
	switch k {
	case KindTable, KindForeignTable, KindView, KindMaterializedView, KindSequence:
		return true
	}
	return false
}

// KindByName resolves a spec-document prefix such as "materialized view".
func KindByName(name string) (Kind, bool) {
	for k := KindSchema; k < kindCount; k++ {
		if kinds[k].name == name {
			return k, true
		}
	}
	return KindUnknown, false
}
