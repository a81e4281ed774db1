// Package ddl turns a change-set into an ordered list of PostgreSQL
// statements.
//
// Statements are produced in passes. Drops come first, mirroring the
// creation order (dependents before what they depend on, foreign keys before
// everything else), then renames, then creates and alters in seven phases:
// namespaces, types and routines, tables and sequences, columns, constraints,
// dependent objects (views, indexes, triggers, rules) and finally comments,
// owners and privileges.
//
// Synthesis is all or nothing: a change that cannot be expressed fails the
// whole run with an error naming the offending object.
package ddl

import (
	"regexp"
	"sort"
	"strings"

	"github.com/koustreak/dbspec/internal/diff"
	"github.com/koustreak/dbspec/internal/errs"
	"github.com/koustreak/dbspec/internal/ident"
	"github.com/koustreak/dbspec/internal/logger"
	"github.com/koustreak/dbspec/internal/model"
)

// Phase is a synthesis pass. Statements are ordered by phase.
type Phase uint8

const (
	PhaseDrop Phase = iota
	PhaseRename
	PhaseNamespace  // schemas, extensions, languages, collations
	PhaseType       // types, routines, casts, foreign data wrappers
	PhaseTable      // sequences, tables, foreign tables
	PhaseColumn     // added and altered columns, deferred defaults, sequence ownership
	PhaseConstraint // checks, primary and unique keys, then foreign keys
	PhaseDependent  // views, indexes, triggers, rules, event triggers
	PhaseMeta       // comments, owners, grants
)

var phaseNames = [...]string{"drop", "rename", "namespace", "type", "table", "column", "constraint", "dependent", "meta"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// Statement is one synthesized statement, without a trailing semicolon.
type Statement struct {
	SQL   string
	Key   model.Key
	Op    diff.Op
	Phase Phase

	rank int
}

// Options configure a Synthesizer.
type Options struct {
	// Policy quotes role names. Object names carry their own quoting flag.
	Policy *ident.Policy
	Logger *logger.Logger
}

// Synthesizer renders change-sets. It holds no per-run state and may be
// shared.
type Synthesizer struct {
	policy *ident.Policy
	log    *logger.Logger
}

// New returns a Synthesizer. A nil Policy means ident.DefaultPolicy.
func New(opts Options) *Synthesizer {
	if opts.Policy == nil {
		opts.Policy = ident.DefaultPolicy()
	}
	return &Synthesizer{policy: opts.Policy, log: opts.Logger}
}

// SQL extracts the statement texts.
func SQL(stmts []Statement) []string {
	out := make([]string, len(stmts))
	for i, st := range stmts {
		out[i] = st.SQL
	}
	return out
}

// Plan diffs current against target, limited to schemas when any are
// given, and synthesizes the change-set.
func (s *Synthesizer) Plan(current, target *model.Database, schemas []string) ([]Statement, *diff.ChangeSet, error) {
	cs := diff.Options{Schemas: schemas, Logger: s.log}.Compute(current, target)
	stmts, err := s.Synthesize(cs)
	if err != nil {
		return nil, cs, err
	}
	return stmts, cs, nil
}

// Synthesize orders and renders every change in cs.
func (s *Synthesizer) Synthesize(cs *diff.ChangeSet) ([]Statement, error) {
	p := &plan{
		s:       s,
		cs:      cs,
		created: make(map[model.Key]bool),
		dropped: make(map[model.Key]bool),
		alters:  make(map[model.Key]diff.Change),
	}
	for _, c := range cs.Changes {
		switch c.Op {
		case diff.OpCreate:
			p.created[c.Key] = true
		case diff.OpDrop:
			p.dropped[c.Key] = true
		case diff.OpAlter:
			p.alters[c.Key] = c
		}
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if err := p.drops(); err != nil {
		return nil, err
	}
	if err := p.renames(); err != nil {
		return nil, err
	}
	if err := p.forward(); err != nil {
		return nil, err
	}

	sort.SliceStable(p.out, func(i, j int) bool {
		if p.out[i].Phase != p.out[j].Phase {
			return p.out[i].Phase < p.out[j].Phase
		}
		return p.out[i].rank < p.out[j].rank
	})
	s.log.DebugWith("statements synthesized", map[string]interface{}{
		"changes":    len(cs.Changes),
		"statements": len(p.out),
	})
	return p.out, nil
}

// plan is the state of one Synthesize call.
type plan struct {
	s       *Synthesizer
	cs      *diff.ChangeSet
	created map[model.Key]bool
	dropped map[model.Key]bool
	alters  map[model.Key]diff.Change
	out     []Statement

	bodiesOff bool // SET check_function_bodies already emitted
}

func (p *plan) emit(phase Phase, rank int, c diff.Change, sql string) {
	p.out = append(p.out, Statement{SQL: sql, Key: c.Key, Op: c.Op, Phase: phase, rank: rank})
}

// kindRank orders kinds inside a phase by their dependency position.
func kindRank(k model.Kind) int { return int(k) * 2 }

// validate rejects target objects whose references cannot be satisfied.
func (p *plan) validate() error {
	for _, c := range p.cs.Changes {
		if c.Op == diff.OpDrop || c.New == nil {
			continue
		}
		con, ok := c.New.(*model.Constraint)
		if !ok || con.Type != model.ConstraintForeignKey {
			continue
		}
		ref := con.Ref.Key(model.KindTable)
		if p.cs.Target != nil && !p.cs.Target.Has(ref) {
			return errs.Keyedf(errs.ErrKindSynthesis, c.Key.String(), "references %s, which is not in the target", ref)
		}
		if p.dropped[ref] {
			return errs.Keyedf(errs.ErrKindSynthesis, c.Key.String(), "references %s, which is being dropped", ref)
		}
	}
	return nil
}

// --- drops ---

func (p *plan) drops() error {
	var drops []diff.Change
	for _, c := range p.cs.Changes {
		if c.Op == diff.OpDrop {
			drops = append(drops, c)
		}
	}
	drops, err := p.childTablesFirst(drops)
	if err != nil {
		return err
	}
	for _, c := range drops {
		if p.folded(c) {
			continue
		}
		rank := 2
		if isForeignKey(c.Old) {
			rank = 0
		}
		p.emit(PhaseDrop, rank, c, p.s.dropSQL(c.Old))
	}
	return nil
}

// folded reports whether a drop happens implicitly: children of a dropped
// relation or server go with it (foreign keys excepted), as do sequences
// owned by a dropped column or by a column of a dropped table. The public
// and pg_catalog schemas are never dropped.
func (p *plan) folded(c diff.Change) bool {
	m := c.Old.Meta()
	switch {
	case m.Kind == model.KindSchema:
		return m.Name.Name == ident.DefaultSchema || m.Name.Name == "pg_catalog"
	case m.Kind.Scope() == model.ScopeChild:
		if isForeignKey(c.Old) {
			return false
		}
		parent, _ := c.Key.ParentKey()
		return p.dropped[parent]
	case m.Kind == model.KindSequence:
		seq := c.Old.(*model.Sequence)
		if seq.OwnerTable.IsZero() {
			return false
		}
		table := model.RelationKey(model.KindTable, m.Schema.Name, seq.OwnerTable.Name)
		return p.dropped[table] || p.dropped[model.ChildKey(model.KindColumn, table, seq.OwnerColumn.Name)]
	}
	return false
}

// childTablesFirst reorders dropped tables so inheriting tables go before
// their parents. Other drops keep their positions.
func (p *plan) childTablesFirst(drops []diff.Change) ([]diff.Change, error) {
	var idx []int
	var keys []model.Key
	for i, c := range drops {
		if c.Key.Kind == model.KindTable {
			idx = append(idx, i)
			keys = append(keys, c.Key)
		}
	}
	if len(keys) < 2 || p.cs.Current == nil {
		return drops, nil
	}
	children := make(map[model.Key][]model.Key)
	for _, e := range p.cs.Current.Edges(model.RelInherits) {
		children[e.To] = append(children[e.To], e.From)
	}
	sorted, err := model.TopoSort(keys, func(k model.Key) []model.Key { return children[k] })
	if err != nil {
		return nil, err
	}
	byKey := make(map[model.Key]diff.Change, len(keys))
	for _, i := range idx {
		byKey[drops[i].Key] = drops[i]
	}
	out := append([]diff.Change(nil), drops...)
	for n, i := range idx {
		out[i] = byKey[sorted[n]]
	}
	return out, nil
}

func isForeignKey(o model.Object) bool {
	con, ok := o.(*model.Constraint)
	return ok && con.Type == model.ConstraintForeignKey
}

// --- renames ---

func (p *plan) renames() error {
	for _, c := range p.cs.Changes {
		if c.Op != diff.OpRename {
			continue
		}
		// a rebuilt object is dropped under its old name and created
		// under the new one
		if a, ok := p.alters[c.Key]; ok && rebuilds(a) {
			continue
		}
		sql, err := p.s.renameSQL(c)
		if err != nil {
			return err
		}
		p.emit(PhaseRename, 0, c, sql)
	}
	return nil
}

// --- creates and alters ---

func (p *plan) forward() error {
	var changes []diff.Change
	for _, c := range p.cs.Changes {
		if c.Op == diff.OpCreate || c.Op == diff.OpAlter {
			changes = append(changes, c)
		}
	}
	changes, err := p.parentTablesFirst(changes)
	if err != nil {
		return err
	}
	changes = p.viewsInDependencyOrder(changes)
	for _, c := range changes {
		switch c.Op {
		case diff.OpCreate:
			if err := p.create(c); err != nil {
				return err
			}
			p.createMeta(c)
		case diff.OpAlter:
			if err := p.alter(c); err != nil {
				return err
			}
		}
	}
	return nil
}

// parentTablesFirst orders created tables after the tables they inherit from.
func (p *plan) parentTablesFirst(changes []diff.Change) ([]diff.Change, error) {
	var idx []int
	var keys []model.Key
	for i, c := range changes {
		if c.Op == diff.OpCreate && c.Key.Kind == model.KindTable {
			idx = append(idx, i)
			keys = append(keys, c.Key)
		}
	}
	if len(keys) < 2 || p.cs.Target == nil {
		return changes, nil
	}
	sorted, err := model.TopoSort(keys, p.cs.Target.Parents)
	if err != nil {
		return nil, err
	}
	return permute(changes, idx, sorted), nil
}

// viewsInDependencyOrder orders created views and materialized views after
// the ones their definitions select from. Dependencies are found by name in
// the definition text; when that yields a cycle, target order is kept.
func (p *plan) viewsInDependencyOrder(changes []diff.Change) []diff.Change {
	var idx []int
	var keys []model.Key
	defs := make(map[model.Key]string)
	for i, c := range changes {
		if c.Op != diff.OpCreate {
			continue
		}
		switch o := c.New.(type) {
		case *model.View:
			defs[c.Key] = o.Definition
		case *model.MaterializedView:
			defs[c.Key] = o.Definition
		default:
			continue
		}
		idx = append(idx, i)
		keys = append(keys, c.Key)
	}
	if len(keys) < 2 {
		return changes
	}
	deps := func(k model.Key) []model.Key {
		var out []model.Key
		for _, other := range keys {
			if other != k && mentions(defs[k], p.s.policy.Quote(other.Name)) {
				out = append(out, other)
			}
		}
		return out
	}
	sorted, err := model.TopoSort(keys, deps)
	if err != nil {
		p.s.log.Debugf("keeping view order: %v", err)
		return changes
	}
	return permute(changes, idx, sorted)
}

// mentions reports whether name occurs in sql as a whole identifier.
// Unquoted names match case-insensitively.
func mentions(sql, name string) bool {
	pat := regexp.QuoteMeta(name)
	if !strings.HasPrefix(name, `"`) {
		pat = "(?i:" + pat + ")"
	}
	return regexp.MustCompile(`(?:^|[^\w$"])` + pat + `(?:$|[^\w$"])`).MatchString(sql)
}

// permute places the changes named by sorted into the positions idx.
func permute(changes []diff.Change, idx []int, sorted []model.Key) []diff.Change {
	byKey := make(map[model.Key]diff.Change, len(idx))
	for _, i := range idx {
		byKey[changes[i].Key] = changes[i]
	}
	out := append([]diff.Change(nil), changes...)
	for n, i := range idx {
		out[i] = byKey[sorted[n]]
	}
	return out
}

// functionBodiesOff disables body validation once, before the first
// function is created or replaced.
func (p *plan) functionBodiesOff(c diff.Change) {
	if p.bodiesOff {
		return
	}
	p.bodiesOff = true
	p.out = append(p.out, Statement{
		SQL:   "SET check_function_bodies = false",
		Op:    c.Op,
		Phase: PhaseType,
		rank:  -1,
	})
}
