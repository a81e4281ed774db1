package model

import "github.com/koustreak/dbspec/internal/ident"

// Schema is a namespace.
type Schema struct{ Base }

// Extension is an installed extension.
type Extension struct {
	Base
	InSchema string
	Version  string
}

// Language is a procedural language.
type Language struct {
	Base
	Trusted bool
}

// Cast converts between two types. Its name is "(source AS target)".
type Cast struct {
	Base
	Source   string
	Target   string
	Function string // empty for WITHOUT FUNCTION / WITH INOUT
	Context  string // explicit, assignment, implicit
	Method   string // function, inout, binary
}

// CastName builds the identity name of a cast.
func CastName(source, target string) string {
	return "(" + source + " AS " + target + ")"
}

type Collation struct {
	Base
	LcCollate string
	LcCtype   string
}

type Conversion struct {
	Base
	SourceEncoding string
	DestEncoding   string
	Function       string
	Default        bool
}

// TypeForm distinguishes the flavours of CREATE TYPE.
type TypeForm string

const (
	TypeBase      TypeForm = "base"
	TypeComposite TypeForm = "composite"
	TypeEnum      TypeForm = "enum"
	TypeRange     TypeForm = "range"
)

// Attribute is one member of a composite type.
type Attribute struct {
	Name      ident.Ident
	Type      string
	Collation string
}

// Type is a user-defined base, composite, enum or range type.
type Type struct {
	Base
	Form TypeForm

	// base types
	Input          string
	Output         string
	Receive        string
	Send           string
	TypmodIn       string
	TypmodOut      string
	Analyze        string
	InternalLength string
	Alignment      string
	Storage        string
	Category       string
	Delimiter      string
	Preferred      bool

	Attributes []Attribute // composite
	Labels     []string    // enum
	Subtype    string      // range
}

// DomainCheck is a named CHECK constraint on a domain.
type DomainCheck struct {
	Name       ident.Ident
	Expression string
}

type Domain struct {
	Base
	BaseType  string
	NotNull   bool
	Default   string
	Collation string
	Checks    []DomainCheck
}

// Function source text is carried as an opaque payload.
type Function struct {
	Base
	Arguments       string // identity arguments, part of the key
	AllArgs         string // full argument list with defaults, when different
	Returns         string
	Language        string
	Source          string
	ObjFile         string
	LinkSymbol      string
	Volatility      string // immutable, stable; empty means volatile
	Strict          bool
	LeakProof       bool
	SecurityDefiner bool
	Cost            float64
	Rows            float64
	Configuration   []string
}

type Aggregate struct {
	Base
	Arguments string
	SFunc     string
	SType     string
	FinalFunc string
	InitCond  *string
	SortOp    string
}

// Operator is identified by its symbol and operand types.
type Operator struct {
	Base
	LeftArg    string
	RightArg   string
	Procedure  string
	Commutator string
	Negator    string
	Restrict   string
	Join       string
	Hashes     bool
	Merges     bool
}

type OperatorFamily struct {
	Base
	IndexMethod string
}

type OperatorClass struct {
	Base
	IndexMethod string
	Type        string
	Family      string
	Default     bool
	Storage     string
	Operators   []string // "1 <(integer, integer)"
	Functions   []string // "1 btint4cmp(integer, integer)"
}

// Sequence may be owned by a column; the link is an OwnedBy edge.
type Sequence struct {
	Base
	Start       int64
	Increment   int64
	MinValue    *int64
	MaxValue    *int64
	Cache       int64
	Cycle       bool
	OwnerTable  ident.Ident
	OwnerColumn ident.Ident
}

// RelRef names a relation in some schema.
type RelRef struct {
	Schema ident.Ident
	Name   ident.Ident
}

// Key returns the key of the referenced relation of the given kind.
func (r RelRef) Key(kind Kind) Key {
	return RelationKey(kind, r.Schema.Name, r.Name.Name)
}

// Table columns, constraints, indexes, triggers and rules are children.
type Table struct {
	Base
	Inherits   []RelRef
	Options    []string // storage parameters, "fillfactor=70"
	Tablespace string
	Unlogged   bool
}

type Column struct {
	Base
	Type       string
	NotNull    bool
	Default    string
	Statistics *int
	Collation  string
	Inherited  bool
}

// ConstraintType enumerates table constraint flavours.
type ConstraintType string

const (
	ConstraintCheck      ConstraintType = "check"
	ConstraintPrimaryKey ConstraintType = "primary key"
	ConstraintForeignKey ConstraintType = "foreign key"
	ConstraintUnique     ConstraintType = "unique"
)

type Constraint struct {
	Base
	Type       ConstraintType
	Columns    []ident.Ident
	Expression string // check
	Deferrable bool
	Deferred   bool
	Inherited  bool
	Tablespace string

	// foreign keys
	Ref        RelRef
	RefColumns []ident.Ident
	Match      string // full, partial; empty is simple
	OnUpdate   string // restrict, cascade, set null, set default; empty is no action
	OnDelete   string
}

// IndexKey is a column or expression with optional operator class and order.
type IndexKey struct {
	Column     ident.Ident
	Expression string
	OpClass    string
	Order      string // desc, "desc nulls last", ...
}

type Index struct {
	Base
	Keys         []IndexKey
	AccessMethod string // empty is btree
	Unique       bool
	Predicate    string
	Tablespace   string
}

// Trigger timing, events and level come from the decoded tgtype.
type Trigger struct {
	Base
	Timing     string   // before, after, instead of
	Events     []string // insert, update, delete, truncate
	Level      string   // row, statement
	Procedure  string
	Condition  string
	Constraint bool
	Deferrable bool
	Deferred   bool
}

type Rule struct {
	Base
	Event     string // select, insert, update, delete
	Condition string
	Instead   bool
	Actions   string
}

type View struct {
	Base
	Definition string
}

type MaterializedView struct {
	Base
	Definition string
	WithData   bool
}

type TSParser struct {
	Base
	Start    string
	GetToken string
	End      string
	Lextypes string
	Headline string
}

type TSTemplate struct {
	Base
	Init   string
	Lexize string
}

type TSDictionary struct {
	Base
	Template string
	Options  string
}

type TSConfiguration struct {
	Base
	Parser string
}

type ForeignDataWrapper struct {
	Base
	Handler   string
	Validator string
	Options   []string
}

// ForeignServer references its wrapper through a References edge.
type ForeignServer struct {
	Base
	Wrapper ident.Ident
	Type    string
	Version string
	Options []string
}

// UserMapping is named after the mapped user; PUBLIC maps everyone.
type UserMapping struct {
	Base
	Options []string
}

type ForeignTable struct {
	Base
	Server  ident.Ident
	Options []string
}

type EventTrigger struct {
	Base
	Event     string
	Procedure string
	Enabled   string // origin, disabled, replica, always
	Tags      []string
}
