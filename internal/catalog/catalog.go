// Package catalog assembles an object model from catalog rows.
//
// The rows come in batches, one per object kind, from an introspection
// source such as pgcatalog. Each kind has a fixed column contract (see the
// builders in objects.go); relationships are rebuilt from the names the rows
// carry, e.g. a constraint row's "schema" and "table" columns name the
// relation that owns it. Objects in system and temporary schemas are always
// left out, as are schemas excluded by the caller.
package catalog

import (
	"context"
	"sort"
	"strings"

	"github.com/koustreak/dbspec/internal/errs"
	"github.com/koustreak/dbspec/internal/ident"
	"github.com/koustreak/dbspec/internal/logger"
	"github.com/koustreak/dbspec/internal/model"
)

// Batch is the rows of one kind, in catalog order.
type Batch struct {
	Kind model.Kind
	Rows []Row
}

// Source produces catalog rows per kind.
type Source interface {
	Rows(ctx context.Context, kind model.Kind) ([]Row, error)
}

// Options control materialization.
type Options struct {
	Policy *ident.Policy

	// Schemas, when set, keeps only the named schemas. References leading
	// out of the selection (foreign keys, inheritance) are dropped.
	Schemas []string

	// ExcludeSchemas drops the named schemas in addition to the system ones.
	ExcludeSchemas []string

	Logger *logger.Logger
}

// Load fetches every kind from src and materializes the result.
func Load(ctx context.Context, src Source, opts Options) (*model.Database, error) {
	var batches []Batch
	for _, kind := range model.Kinds() {
		rows, err := src.Rows(ctx, kind)
		if err != nil {
			return nil, err
		}
		batches = append(batches, Batch{Kind: kind, Rows: rows})
	}
	return Materialize(batches, opts)
}

// Materialize builds a model from batches. Batches may come in any order;
// owners are added before what they own: relations and other top-level
// kinds first, then columns, constraints, indexes, triggers and rules.
func Materialize(batches []Batch, opts Options) (*model.Database, error) {
	m := &materializer{
		b:      model.NewBuilder(opts.Policy),
		opts:   opts,
		log:    logger.OrNop(opts.Logger),
		filter: newFilter(opts.Schemas, opts.ExcludeSchemas),
	}
	sorted := append([]Batch(nil), batches...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ci, cj := sorted[i].Kind.Scope() == model.ScopeChild, sorted[j].Kind.Scope() == model.ScopeChild
		if ci != cj {
			return cj
		}
		return sorted[i].Kind < sorted[j].Kind
	})

	counts := make(map[string]interface{})
	for _, batch := range sorted {
		n := 0
		for _, row := range batch.Rows {
			obj, err := m.object(batch.Kind, row)
			if err != nil {
				return nil, err
			}
			if obj == nil {
				continue
			}
			if parent, ok := obj.Key().ParentKey(); ok && batch.Kind.Scope() == model.ScopeChild && !m.b.Has(parent) {
				// owned by something not materialized, e.g. an extension's table
				m.log.Debugf("skipping %s: owner %s not loaded", obj.Key(), parent)
				continue
			}
			if err := m.b.Add(obj); err != nil {
				return nil, err
			}
			n++
		}
		if n > 0 {
			counts[batch.Kind.String()] = n
		}
	}
	m.log.DebugWith("catalog materialized", counts)
	return m.b.Build()
}

// SystemSchema reports whether name is a PostgreSQL internal or temporary
// schema.
func SystemSchema(name string) bool {
	switch name {
	case "pg_catalog", "information_schema", "pg_toast":
		return true
	}
	return strings.HasPrefix(name, "pg_temp_") || strings.HasPrefix(name, "pg_toast_temp_")
}

type filter struct {
	include map[string]bool
	exclude map[string]bool
}

func newFilter(include, exclude []string) filter {
	f := filter{exclude: make(map[string]bool, len(exclude))}
	if len(include) > 0 {
		f.include = make(map[string]bool, len(include))
		for _, s := range include {
			f.include[s] = true
		}
	}
	for _, s := range exclude {
		f.exclude[s] = true
	}
	return f
}

// keep reports whether objects of the named schema are materialized.
func (f filter) keep(schema string) bool {
	if SystemSchema(schema) || f.exclude[schema] {
		return false
	}
	return f.include == nil || f.include[schema]
}

type materializer struct {
	b      *model.Builder
	opts   Options
	log    *logger.Logger
	filter filter
}

func (m *materializer) id(name string) ident.Ident { return m.b.Ident(name) }

// rowErr reports a row that cannot be turned into an object.
func rowErr(kind model.Kind, r Row, format string, args ...any) error {
	name := r.Str("name")
	if s := r.Str("schema"); s != "" {
		name = s + "." + name
	}
	return errs.Keyedf(errs.ErrKindInvalidInput, kind.String()+" "+name, format, args...)
}
