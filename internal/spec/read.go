package spec

import (
	"sort"
	"strings"

	"github.com/koustreak/dbspec/internal/errs"
	"github.com/koustreak/dbspec/internal/ident"
	"github.com/koustreak/dbspec/internal/model"
	"go.yaml.in/yaml/v3"
)

// Unmarshal parses a single specification document into a model.
// Structural problems are spec_syntax errors; unresolved references and
// inconsistent attributes found afterwards are spec_semantic errors.
func Unmarshal(data []byte, policy *ident.Policy) (*model.Database, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errs.Wrap(errs.ErrKindSpecSyntax, "invalid YAML", err)
	}
	return FromNode(&doc, policy)
}

// FromNode builds a model from an already parsed (possibly merged) tree.
func FromNode(root *yaml.Node, policy *ident.Policy) (*model.Database, error) {
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return model.Empty(policy), nil
		}
		root = root.Content[0]
	}
	r := &reader{b: model.NewBuilder(policy)}
	if err := r.top(root); err != nil {
		return nil, err
	}
	for _, check := range r.checks {
		if err := check(); err != nil {
			return nil, err
		}
	}
	db, err := r.b.Build()
	if err != nil {
		return nil, &errs.Error{
			Kind:    errs.ErrKindSpecSemantic,
			Key:     errs.KeyOf(err),
			Message: "specification failed validation",
			Cause:   err,
		}
	}
	return db, nil
}

type reader struct {
	b      *model.Builder
	checks []func() error // semantic checks run after parsing
}

func (r *reader) id(name string) ident.Ident { return r.b.Ident(name) }

func (r *reader) semantic(key model.Key, format string, args ...any) {
	r.checks = append(r.checks, func() error {
		return errs.Keyedf(errs.ErrKindSpecSemantic, key.String(), format, args...)
	})
}

// kindsByLength lists kinds longest name first so "operator class" wins
// over "operator".
var kindsByLength = func() []model.Kind {
	ks := model.Kinds()
	sort.SliceStable(ks, func(i, j int) bool { return len(ks[i].String()) > len(ks[j].String()) })
	return ks
}()

func parseKey(key string) (model.Kind, string, bool) {
	for _, k := range kindsByLength {
		prefix := k.String() + " "
		if strings.HasPrefix(key, prefix) && len(key) > len(prefix) {
			return k, key[len(prefix):], true
		}
	}
	return model.KindUnknown, "", false
}

func (r *reader) top(root *yaml.Node) error {
	ps, err := pairs(root, "")
	if err != nil {
		return err
	}
	// schemas first so database-wide objects may sit anywhere in the file
	sort.SliceStable(ps, func(i, j int) bool {
		return strings.HasPrefix(ps[i].key, "schema ") && !strings.HasPrefix(ps[j].key, "schema ")
	})
	for _, p := range ps {
		kind, name, ok := parseKey(p.key)
		if !ok {
			return syntaxErr(p.ctx, "unknown object kind")
		}
		switch kind {
		case model.KindSchema:
			err = r.schema(p, name)
		case model.KindExtension, model.KindLanguage, model.KindCast,
			model.KindForeignDataWrapper, model.KindEventTrigger:
			err = r.object(p, kind, "", name)
		default:
			err = syntaxErr(p.ctx, "%s is not allowed at the top level", kind)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *reader) schema(p pair, name string) error {
	s := &model.Schema{Base: model.Base{Kind: model.KindSchema, Name: r.id(name)}}
	rest, err := r.fill(p, &s.Base, nil, anyNested)
	if err != nil {
		return err
	}
	if err := r.b.Add(s); err != nil {
		return err
	}
	for _, q := range rest {
		kind, objName, ok := parseKey(q.key)
		if !ok {
			return syntaxErr(q.ctx, "unknown object kind")
		}
		if kind.Scope() != model.ScopeSchema {
			return syntaxErr(q.ctx, "%s is not allowed inside a schema", kind)
		}
		if err := r.object(q, kind, name, objName); err != nil {
			return err
		}
	}
	return nil
}

// --- attribute binding ---

type binder func(pair) error

func bindStr(dst *string) binder {
	return func(p pair) (err error) { *dst, err = scalar(p); return }
}

func bindBool(dst *bool) binder {
	return func(p pair) (err error) { *dst, err = boolean(p); return }
}

func bindInt(dst *int64) binder {
	return func(p pair) (err error) { *dst, err = integer(p); return }
}

func bindOptInt(dst **int64) binder {
	return func(p pair) error {
		i, err := integer(p)
		*dst = &i
		return err
	}
}

func bindOptStr(dst **string) binder {
	return func(p pair) error {
		s, err := scalar(p)
		*dst = &s
		return err
	}
}

func bindFloat(dst *float64) binder {
	return func(p pair) (err error) { *dst, err = number(p); return }
}

func bindStrs(dst *[]string) binder {
	return func(p pair) (err error) { *dst, err = strList(p); return }
}

func (r *reader) bindIdent(dst *ident.Ident) binder {
	return func(p pair) error {
		s, err := scalar(p)
		*dst = r.id(s)
		return err
	}
}

func (r *reader) bindIdents(dst *[]ident.Ident) binder {
	return func(p pair) error {
		names, err := strList(p)
		for _, n := range names {
			*dst = append(*dst, r.id(n))
		}
		return err
	}
}

// anyNested accepts any key not otherwise bound; used for schema bodies.
var anyNested = []string{"*"}

// fill binds the attributes of p into an object. Keys listed in nested are
// returned for the caller to process once the object itself has been added.
func (r *reader) fill(p pair, b *model.Base, fields map[string]binder, nested []string) ([]pair, error) {
	ps, err := pairs(p.val, p.ctx)
	if err != nil {
		return nil, err
	}
	var rest []pair
	for _, q := range ps {
		if bind, ok := fields[q.key]; ok {
			if err := bind(q); err != nil {
				return nil, err
			}
			continue
		}
		switch q.key {
		case "owner":
			if b.Owner, err = scalar(q); err != nil {
				return nil, err
			}
			continue
		case "description":
			s, err := scalar(q)
			if err != nil {
				return nil, err
			}
			b.Comment = &s
			continue
		case "oldname":
			if b.OldName, err = scalar(q); err != nil {
				return nil, err
			}
			continue
		case "privileges":
			if b.Privileges, err = grants(q); err != nil {
				return nil, err
			}
			continue
		}
		if accepts(nested, q.key) {
			rest = append(rest, q)
			continue
		}
		return nil, syntaxErr(q.ctx, "unknown attribute")
	}
	return rest, nil
}

func accepts(nested []string, key string) bool {
	for _, n := range nested {
		if n == "*" || n == key || (strings.HasSuffix(n, " ") && strings.HasPrefix(key, n)) {
			return true
		}
	}
	return false
}

func grants(p pair) ([]model.Grant, error) {
	list, err := items(p)
	if err != nil {
		return nil, err
	}
	out := make([]model.Grant, 0, len(list))
	for _, item := range list {
		g, err := singleKey(item, p.ctx)
		if err != nil {
			return nil, err
		}
		privs, err := strList(g)
		if err != nil {
			return nil, err
		}
		out = append(out, model.Grant{Grantee: g.key, Privileges: privs})
	}
	return out, nil
}

// --- objects ---

func (r *reader) base(kind model.Kind, schema, name string) model.Base {
	b := model.Base{Kind: kind, Name: r.id(name)}
	if kind.Scope() == model.ScopeSchema {
		b.Schema = r.id(schema)
	}
	return b
}

func (r *reader) childBase(kind model.Kind, parent model.Object, name string) model.Base {
	pm := parent.Meta()
	return model.Base{
		Kind:       kind,
		Schema:     pm.Schema,
		ParentKind: pm.Kind,
		Parent:     pm.Name,
		Name:       r.id(name),
	}
}

// splitSig splits "f(a, b)" into "f" and "a, b".
func splitSig(p pair, name string) (string, string, error) {
	open := strings.IndexByte(name, '(')
	if open <= 0 || !strings.HasSuffix(name, ")") {
		return "", "", syntaxErr(p.ctx, "invalid signature %q", name)
	}
	return name[:open], name[open+1 : len(name)-1], nil
}

func (r *reader) object(p pair, kind model.Kind, schema, name string) error {
	switch kind {
	case model.KindExtension:
		o := &model.Extension{Base: r.base(kind, schema, name)}
		return r.simple(p, o, map[string]binder{"schema": bindStr(&o.InSchema), "version": bindStr(&o.Version)})
	case model.KindLanguage:
		o := &model.Language{Base: r.base(kind, schema, name)}
		return r.simple(p, o, map[string]binder{"trusted": bindBool(&o.Trusted)})
	case model.KindCast:
		return r.cast(p, name)
	case model.KindCollation:
		o := &model.Collation{Base: r.base(kind, schema, name)}
		return r.simple(p, o, map[string]binder{"lc_collate": bindStr(&o.LcCollate), "lc_ctype": bindStr(&o.LcCtype)})
	case model.KindConversion:
		o := &model.Conversion{Base: r.base(kind, schema, name)}
		return r.simple(p, o, map[string]binder{
			"source_encoding": bindStr(&o.SourceEncoding), "dest_encoding": bindStr(&o.DestEncoding),
			"function": bindStr(&o.Function), "default": bindBool(&o.Default),
		})
	case model.KindType:
		return r.dbType(p, schema, name)
	case model.KindDomain:
		return r.domain(p, schema, name)
	case model.KindFunction:
		return r.function(p, schema, name)
	case model.KindAggregate:
		fn, args, err := splitSig(p, name)
		if err != nil {
			return err
		}
		o := &model.Aggregate{Base: r.base(kind, schema, fn), Arguments: args}
		return r.simple(p, o, map[string]binder{
			"sfunc": bindStr(&o.SFunc), "stype": bindStr(&o.SType), "finalfunc": bindStr(&o.FinalFunc),
			"initcond": bindOptStr(&o.InitCond), "sortop": bindStr(&o.SortOp),
		})
	case model.KindOperator:
		sym, args, err := splitSig(p, name)
		if err != nil {
			return err
		}
		left, right, ok := strings.Cut(args, ", ")
		if !ok {
			return syntaxErr(p.ctx, "operator needs two operand types")
		}
		o := &model.Operator{Base: r.base(kind, schema, sym), LeftArg: noneToEmpty(left), RightArg: noneToEmpty(right)}
		o.Name = ident.Ident{Name: sym}
		return r.simple(p, o, map[string]binder{
			"procedure": bindStr(&o.Procedure), "commutator": bindStr(&o.Commutator), "negator": bindStr(&o.Negator),
			"restrict": bindStr(&o.Restrict), "join": bindStr(&o.Join), "hashes": bindBool(&o.Hashes), "merges": bindBool(&o.Merges),
		})
	case model.KindOperatorFamily:
		n, method, ok := strings.Cut(name, " using ")
		if !ok {
			return syntaxErr(p.ctx, "operator family needs an index method")
		}
		o := &model.OperatorFamily{Base: r.base(kind, schema, n), IndexMethod: method}
		return r.simple(p, o, nil)
	case model.KindOperatorClass:
		n, method, ok := strings.Cut(name, " using ")
		if !ok {
			return syntaxErr(p.ctx, "operator class needs an index method")
		}
		o := &model.OperatorClass{Base: r.base(kind, schema, n), IndexMethod: method}
		return r.simple(p, o, map[string]binder{
			"type": bindStr(&o.Type), "family": bindStr(&o.Family), "default": bindBool(&o.Default),
			"storage": bindStr(&o.Storage), "operators": bindStrs(&o.Operators), "functions": bindStrs(&o.Functions),
		})
	case model.KindSequence:
		o := &model.Sequence{Base: r.base(kind, schema, name), Start: 1, Increment: 1, Cache: 1}
		return r.simple(p, o, map[string]binder{
			"start_value": bindInt(&o.Start), "increment_by": bindInt(&o.Increment),
			"min_value": bindOptInt(&o.MinValue), "max_value": bindOptInt(&o.MaxValue),
			"cache_value": bindInt(&o.Cache), "cycle": bindBool(&o.Cycle),
			"owner_table": r.bindIdent(&o.OwnerTable), "owner_column": r.bindIdent(&o.OwnerColumn),
		})
	case model.KindTable:
		return r.table(p, schema, name)
	case model.KindForeignTable:
		o := &model.ForeignTable{Base: r.base(kind, schema, name)}
		rest, err := r.fill(p, &o.Base, map[string]binder{
			"server": r.bindIdent(&o.Server), "options": bindStrs(&o.Options),
		}, []string{"columns", "check_constraints"})
		if err != nil {
			return err
		}
		return r.addWithChildren(o, rest)
	case model.KindView:
		o := &model.View{Base: r.base(kind, schema, name)}
		rest, err := r.fill(p, &o.Base, map[string]binder{"definition": bindStr(&o.Definition)},
			[]string{"triggers", "rules"})
		if err != nil {
			return err
		}
		return r.addWithChildren(o, rest)
	case model.KindMaterializedView:
		o := &model.MaterializedView{Base: r.base(kind, schema, name)}
		rest, err := r.fill(p, &o.Base, map[string]binder{
			"definition": bindStr(&o.Definition), "with_data": bindBool(&o.WithData),
		}, []string{"indexes"})
		if err != nil {
			return err
		}
		return r.addWithChildren(o, rest)
	case model.KindTSParser:
		o := &model.TSParser{Base: r.base(kind, schema, name)}
		return r.simple(p, o, map[string]binder{
			"start": bindStr(&o.Start), "gettoken": bindStr(&o.GetToken), "end": bindStr(&o.End),
			"lextypes": bindStr(&o.Lextypes), "headline": bindStr(&o.Headline),
		})
	case model.KindTSTemplate:
		o := &model.TSTemplate{Base: r.base(kind, schema, name)}
		return r.simple(p, o, map[string]binder{"init": bindStr(&o.Init), "lexize": bindStr(&o.Lexize)})
	case model.KindTSDictionary:
		o := &model.TSDictionary{Base: r.base(kind, schema, name)}
		return r.simple(p, o, map[string]binder{"template": bindStr(&o.Template), "options": bindStr(&o.Options)})
	case model.KindTSConfiguration:
		o := &model.TSConfiguration{Base: r.base(kind, schema, name)}
		return r.simple(p, o, map[string]binder{"parser": bindStr(&o.Parser)})
	case model.KindForeignDataWrapper:
		return r.wrapper(p, name)
	case model.KindEventTrigger:
		o := &model.EventTrigger{Base: r.base(kind, schema, name)}
		return r.simple(p, o, map[string]binder{
			"event": bindStr(&o.Event), "procedure": bindStr(&o.Procedure),
			"enabled": bindStr(&o.Enabled), "tags": bindStrs(&o.Tags),
		})
	}
	return errs.Keyedf(errs.ErrKindUnsupportedObject, p.ctx, "%s cannot be declared here", kind)
}

func noneToEmpty(s string) string {
	if s == "NONE" {
		return ""
	}
	return s
}

func (r *reader) simple(p pair, o model.Object, fields map[string]binder) error {
	if _, err := r.fill(p, o.Meta(), fields, nil); err != nil {
		return err
	}
	return r.b.Add(o)
}

func (r *reader) cast(p pair, name string) error {
	inner := strings.TrimSuffix(strings.TrimPrefix(name, "("), ")")
	src, tgt, ok := strings.Cut(inner, " AS ")
	if !ok || inner == name {
		return syntaxErr(p.ctx, "cast key must look like (source AS target)")
	}
	o := &model.Cast{Source: src, Target: tgt}
	o.Base = model.Base{Kind: model.KindCast, Name: ident.Ident{Name: model.CastName(src, tgt)}}
	return r.simple(p, o, map[string]binder{
		"function": bindStr(&o.Function), "context": bindStr(&o.Context), "method": bindStr(&o.Method),
	})
}

func (r *reader) function(p pair, schema, name string) error {
	fn, args, err := splitSig(p, name)
	if err != nil {
		return err
	}
	o := &model.Function{Base: r.base(model.KindFunction, schema, fn), Arguments: args}
	err = r.simple(p, o, map[string]binder{
		"allargs": bindStr(&o.AllArgs), "returns": bindStr(&o.Returns), "language": bindStr(&o.Language),
		"source": bindStr(&o.Source), "obj_file": bindStr(&o.ObjFile), "link_symbol": bindStr(&o.LinkSymbol),
		"volatility": bindStr(&o.Volatility), "strict": bindBool(&o.Strict), "leakproof": bindBool(&o.LeakProof),
		"security_definer": bindBool(&o.SecurityDefiner), "cost": bindFloat(&o.Cost), "rows": bindFloat(&o.Rows),
		"configuration": bindStrs(&o.Configuration),
	})
	if err != nil {
		return err
	}
	if (o.Source == "") == (o.ObjFile == "") {
		r.semantic(o.Key(), "either source or obj_file must be specified")
	}
	if o.Volatility == "volatile" {
		o.Volatility = ""
	}
	return nil
}

func (r *reader) dbType(p pair, schema, name string) error {
	o := &model.Type{Base: r.base(model.KindType, schema, name)}
	rest, err := r.fill(p, &o.Base, map[string]binder{
		"labels": bindStrs(&o.Labels), "subtype": bindStr(&o.Subtype),
		"input": bindStr(&o.Input), "output": bindStr(&o.Output), "receive": bindStr(&o.Receive),
		"send": bindStr(&o.Send), "typmod_in": bindStr(&o.TypmodIn), "typmod_out": bindStr(&o.TypmodOut),
		"analyze": bindStr(&o.Analyze), "internallength": bindStr(&o.InternalLength),
		"alignment": bindStr(&o.Alignment), "storage": bindStr(&o.Storage), "category": bindStr(&o.Category),
		"delimiter": bindStr(&o.Delimiter), "preferred": bindBool(&o.Preferred),
	}, []string{"attributes"})
	if err != nil {
		return err
	}
	for _, q := range rest {
		list, err := items(q)
		if err != nil {
			return err
		}
		for _, item := range list {
			a, err := singleKey(item, q.ctx)
			if err != nil {
				return err
			}
			attr := model.Attribute{Name: r.id(a.key)}
			if a.val.Kind == yaml.ScalarNode {
				attr.Type = a.val.Value
			} else if _, err := r.fill(a, &model.Base{}, map[string]binder{
				"type": bindStr(&attr.Type), "collation": bindStr(&attr.Collation),
			}, nil); err != nil {
				return err
			}
			o.Attributes = append(o.Attributes, attr)
		}
	}
	switch {
	case len(o.Attributes) > 0:
		o.Form = model.TypeComposite
	case o.Labels != nil:
		o.Form = model.TypeEnum
	case o.Subtype != "":
		o.Form = model.TypeRange
	default:
		o.Form = model.TypeBase
		if o.Input == "" || o.Output == "" {
			r.semantic(o.Key(), "base type needs input and output functions")
		}
	}
	return r.b.Add(o)
}

func (r *reader) domain(p pair, schema, name string) error {
	o := &model.Domain{Base: r.base(model.KindDomain, schema, name)}
	rest, err := r.fill(p, &o.Base, map[string]binder{
		"type": bindStr(&o.BaseType), "not_null": bindBool(&o.NotNull),
		"default": bindStr(&o.Default), "collation": bindStr(&o.Collation),
	}, []string{"check_constraints"})
	if err != nil {
		return err
	}
	for _, q := range rest {
		cs, err := pairs(q.val, q.ctx)
		if err != nil {
			return err
		}
		for _, c := range cs {
			chk := model.DomainCheck{Name: r.id(c.key)}
			if _, err := r.fill(c, &model.Base{}, map[string]binder{"expression": bindStr(&chk.Expression)}, nil); err != nil {
				return err
			}
			o.Checks = append(o.Checks, chk)
		}
	}
	if o.BaseType == "" {
		r.semantic(o.Key(), "domain needs a base type")
	}
	return r.b.Add(o)
}

func (r *reader) table(p pair, schema, name string) error {
	o := &model.Table{Base: r.base(model.KindTable, schema, name)}
	rest, err := r.fill(p, &o.Base, map[string]binder{
		"inherits": func(q pair) error {
			names, err := strList(q)
			for _, n := range names {
				s, t := splitQualified(n, schema)
				o.Inherits = append(o.Inherits, model.RelRef{Schema: r.id(s), Name: r.id(t)})
			}
			return err
		},
		"options":    bindStrs(&o.Options),
		"tablespace": bindStr(&o.Tablespace),
		"unlogged":   bindBool(&o.Unlogged),
	}, []string{"columns", "primary_key", "foreign_keys", "unique_constraints", "check_constraints",
		"indexes", "triggers", "rules"})
	if err != nil {
		return err
	}
	return r.addWithChildren(o, rest)
}

// addWithChildren adds a relation then its columns, constraints, indexes,
// triggers and rules in document order.
func (r *reader) addWithChildren(o model.Object, rest []pair) error {
	if err := r.b.Add(o); err != nil {
		return err
	}
	// columns first: constraints and indexes refer to them
	sort.SliceStable(rest, func(i, j int) bool { return rest[i].key == "columns" && rest[j].key != "columns" })
	for _, q := range rest {
		var err error
		switch q.key {
		case "columns":
			err = r.columns(o, q)
		case "primary_key":
			err = r.constraints(o, q, model.ConstraintPrimaryKey)
		case "foreign_keys":
			err = r.constraints(o, q, model.ConstraintForeignKey)
		case "unique_constraints":
			err = r.constraints(o, q, model.ConstraintUnique)
		case "check_constraints":
			err = r.constraints(o, q, model.ConstraintCheck)
		case "indexes":
			err = r.indexes(o, q)
		case "triggers":
			err = r.triggers(o, q)
		case "rules":
			err = r.rules(o, q)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *reader) columns(parent model.Object, p pair) error {
	list, err := items(p)
	if err != nil {
		return err
	}
	for _, item := range list {
		c, err := singleKey(item, p.ctx)
		if err != nil {
			return err
		}
		col := &model.Column{Base: r.childBase(model.KindColumn, parent, c.key)}
		if c.val.Kind == yaml.ScalarNode {
			col.Type = c.val.Value
		} else {
			var stats int64
			hasStats := false
			if _, err := r.fill(c, &col.Base, map[string]binder{
				"type": bindStr(&col.Type), "not_null": bindBool(&col.NotNull), "default": bindStr(&col.Default),
				"statistics": func(q pair) error { hasStats = true; return bindInt(&stats)(q) },
				"collation":  bindStr(&col.Collation), "inherited": bindBool(&col.Inherited),
			}, nil); err != nil {
				return err
			}
			if hasStats {
				s := int(stats)
				col.Statistics = &s
			}
		}
		if col.Type == "" {
			r.semantic(col.Key(), "column has no type")
		}
		if err := r.b.Add(col); err != nil {
			return err
		}
	}
	return nil
}

var (
	fkActions = map[string]string{"": "", "no action": "", "restrict": "restrict", "cascade": "cascade",
		"set null": "set null", "set default": "set default"}
	fkMatches = map[string]string{"": "", "simple": "", "full": "full", "partial": "partial"}
)

func (r *reader) constraints(parent model.Object, p pair, typ model.ConstraintType) error {
	cs, err := pairs(p.val, p.ctx)
	if err != nil {
		return err
	}
	for _, c := range cs {
		con := &model.Constraint{Base: r.childBase(model.KindConstraint, parent, c.key), Type: typ}
		rest, err := r.fill(c, &con.Base, map[string]binder{
			"columns": r.bindIdents(&con.Columns), "expression": bindStr(&con.Expression),
			"deferrable": bindBool(&con.Deferrable), "deferred": bindBool(&con.Deferred),
			"inherited": bindBool(&con.Inherited), "tablespace": bindStr(&con.Tablespace),
			"match": bindStr(&con.Match), "on_update": bindStr(&con.OnUpdate), "on_delete": bindStr(&con.OnDelete),
		}, []string{"references"})
		if err != nil {
			return err
		}
		for _, q := range rest {
			schema := parent.Meta().Schema.Name
			var table string
			if _, err := r.fill(q, &model.Base{}, map[string]binder{
				"schema": bindStr(&schema), "table": bindStr(&table), "columns": r.bindIdents(&con.RefColumns),
			}, nil); err != nil {
				return err
			}
			con.Ref = model.RelRef{Schema: r.id(schema), Name: r.id(table)}
		}
		key := con.Key()
		switch typ {
		case model.ConstraintForeignKey:
			if con.Ref.Name.IsZero() {
				r.semantic(key, "foreign key without references")
			}
			var ok bool
			if con.OnUpdate, ok = fkActions[con.OnUpdate]; !ok {
				r.semantic(key, "invalid on_update action")
			}
			if con.OnDelete, ok = fkActions[con.OnDelete]; !ok {
				r.semantic(key, "invalid on_delete action")
			}
			if con.Match, ok = fkMatches[con.Match]; !ok {
				r.semantic(key, "invalid match type")
			}
		case model.ConstraintCheck:
			if con.Expression == "" {
				r.semantic(key, "check constraint without expression")
			}
		default:
			if len(con.Columns) == 0 {
				r.semantic(key, "%s without columns", typ)
			}
		}
		if err := r.b.Add(con); err != nil {
			return err
		}
	}
	return nil
}

func (r *reader) indexes(parent model.Object, p pair) error {
	ixs, err := pairs(p.val, p.ctx)
	if err != nil {
		return err
	}
	for _, q := range ixs {
		ix := &model.Index{Base: r.childBase(model.KindIndex, parent, q.key)}
		rest, err := r.fill(q, &ix.Base, map[string]binder{
			"access_method": bindStr(&ix.AccessMethod), "unique": bindBool(&ix.Unique),
			"predicate": bindStr(&ix.Predicate), "tablespace": bindStr(&ix.Tablespace),
		}, []string{"keys", "columns"})
		if err != nil {
			return err
		}
		for _, k := range rest {
			list, err := items(k)
			if err != nil {
				return err
			}
			for _, item := range list {
				key, err := r.indexKey(item, k.ctx)
				if err != nil {
					return err
				}
				ix.Keys = append(ix.Keys, key)
			}
		}
		if len(ix.Keys) == 0 {
			r.semantic(ix.Key(), "index without keys")
		}
		if err := r.b.Add(ix); err != nil {
			return err
		}
	}
	return nil
}

func (r *reader) indexKey(n *yaml.Node, ctx string) (model.IndexKey, error) {
	var k model.IndexKey
	if n.Kind == yaml.ScalarNode {
		k.Column = r.id(n.Value)
		return k, nil
	}
	ps, err := pairs(n, ctx)
	if err != nil {
		return k, err
	}
	for _, q := range ps {
		if q.key == "expression" && q.val.Kind == yaml.ScalarNode {
			k.Expression = q.val.Value
			continue
		}
		switch q.key {
		case "opclass":
			k.OpClass, err = scalar(q)
		case "order":
			k.Order, err = scalar(q)
		default:
			if !k.Column.IsZero() || k.Expression != "" {
				return k, syntaxErr(q.ctx, "unknown index key attribute")
			}
			k.Column = r.id(q.key)
			_, err = r.fill(q, &model.Base{}, map[string]binder{
				"opclass": bindStr(&k.OpClass), "order": bindStr(&k.Order),
			}, nil)
		}
		if err != nil {
			return k, err
		}
	}
	return k, nil
}

func (r *reader) triggers(parent model.Object, p pair) error {
	ts, err := pairs(p.val, p.ctx)
	if err != nil {
		return err
	}
	for _, q := range ts {
		t := &model.Trigger{Base: r.childBase(model.KindTrigger, parent, q.key)}
		if _, err := r.fill(q, &t.Base, map[string]binder{
			"timing": bindStr(&t.Timing), "events": bindStrs(&t.Events), "level": bindStr(&t.Level),
			"procedure": bindStr(&t.Procedure), "condition": bindStr(&t.Condition),
			"constraint": bindBool(&t.Constraint), "deferrable": bindBool(&t.Deferrable), "deferred": bindBool(&t.Deferred),
		}, nil); err != nil {
			return err
		}
		if t.Level == "" {
			t.Level = "statement"
		}
		if t.Procedure == "" || len(t.Events) == 0 {
			r.semantic(t.Key(), "trigger needs events and a procedure")
		}
		if err := r.b.Add(t); err != nil {
			return err
		}
	}
	return nil
}

func (r *reader) rules(parent model.Object, p pair) error {
	rs, err := pairs(p.val, p.ctx)
	if err != nil {
		return err
	}
	for _, q := range rs {
		rule := &model.Rule{Base: r.childBase(model.KindRule, parent, q.key)}
		if _, err := r.fill(q, &rule.Base, map[string]binder{
			"event": bindStr(&rule.Event), "condition": bindStr(&rule.Condition),
			"instead": bindBool(&rule.Instead), "actions": bindStr(&rule.Actions),
		}, nil); err != nil {
			return err
		}
		if err := r.b.Add(rule); err != nil {
			return err
		}
	}
	return nil
}

func (r *reader) wrapper(p pair, name string) error {
	o := &model.ForeignDataWrapper{Base: r.base(model.KindForeignDataWrapper, "", name)}
	rest, err := r.fill(p, &o.Base, map[string]binder{
		"handler": bindStr(&o.Handler), "validator": bindStr(&o.Validator), "options": bindStrs(&o.Options),
	}, []string{"server "})
	if err != nil {
		return err
	}
	if err := r.b.Add(o); err != nil {
		return err
	}
	for _, q := range rest {
		srv := &model.ForeignServer{
			Base:    r.base(model.KindForeignServer, "", strings.TrimPrefix(q.key, "server ")),
			Wrapper: o.Name,
		}
		mappings, err := r.fill(q, &srv.Base, map[string]binder{
			"type": bindStr(&srv.Type), "version": bindStr(&srv.Version), "options": bindStrs(&srv.Options),
		}, []string{"user mappings"})
		if err != nil {
			return err
		}
		if err := r.b.Add(srv); err != nil {
			return err
		}
		for _, m := range mappings {
			users, err := pairs(m.val, m.ctx)
			if err != nil {
				return err
			}
			for _, u := range users {
				um := &model.UserMapping{Base: r.childBase(model.KindUserMapping, srv, u.key)}
				if _, err := r.fill(u, &um.Base, map[string]binder{"options": bindStrs(&um.Options)}, nil); err != nil {
					return err
				}
				if err := r.b.Add(um); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
