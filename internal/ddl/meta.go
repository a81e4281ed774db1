package ddl

import (
	"strings"

	"github.com/koustreak/dbspec/internal/diff"
	"github.com/koustreak/dbspec/internal/ident"
	"github.com/koustreak/dbspec/internal/model"
)

const (
	rankComment = iota
	rankOwner
	rankGrant
)

// createMeta emits the comment, owner and grants of a newly created object.
func (p *plan) createMeta(c diff.Change) {
	o := c.New
	m := o.Meta()
	if m.Comment != nil && m.Kind != model.KindUserMapping {
		p.emit(PhaseMeta, rankComment, c, p.s.commentSQL(o, m.Comment))
	}
	if m.Owner != "" && ownable(m.Kind) {
		p.emit(PhaseMeta, rankOwner, c, p.s.ownerSQL(o))
	}
	for _, g := range m.Privileges {
		if sql, ok := p.s.grantSQL(o, g, false); ok {
			p.emit(PhaseMeta, rankGrant, c, sql)
		}
	}
}

// alterMeta emits the owner, comment and privilege changes of c.
func (p *plan) alterMeta(c diff.Change) {
	o := c.New
	m := o.Meta()
	if c.Has(diff.AttrOwner) && ownable(m.Kind) {
		p.emit(PhaseMeta, rankOwner, c, p.s.ownerSQL(o))
	}
	if c.Has(diff.AttrDescription) && m.Kind != model.KindUserMapping {
		p.emit(PhaseMeta, rankComment, c, p.s.commentSQL(o, m.Comment))
	}
	if !c.Has(diff.AttrPrivileges) {
		return
	}
	old := c.Old.Meta().Privileges
	for _, g := range diff.GrantDelta(old, m.Privileges) {
		if sql, ok := p.s.grantSQL(o, g, true); ok {
			p.emit(PhaseMeta, rankGrant, c, sql)
		}
	}
	for _, g := range diff.GrantDelta(m.Privileges, old) {
		if sql, ok := p.s.grantSQL(o, g, false); ok {
			p.emit(PhaseMeta, rankGrant, c, sql)
		}
	}
}

func (s *Synthesizer) commentSQL(o model.Object, text *string) string {
	value := "NULL"
	if text != nil {
		value = ident.Literal(*text)
	}
	return "COMMENT ON " + s.target(o) + " IS " + value
}

func (s *Synthesizer) ownerSQL(o model.Object) string {
	return "ALTER " + s.target(o) + " OWNER TO " + s.role(o.Meta().Owner)
}

// ownable reports whether objects of kind k have an owner that can be
// reassigned. Children follow their relation.
func ownable(k model.Kind) bool {
	switch k {
	case model.KindExtension, model.KindCast, model.KindTSParser, model.KindTSTemplate, model.KindUserMapping:
		return false
	}
	return k.Scope() != model.ScopeChild
}

// grantSQL renders a GRANT (or REVOKE) of g on o. Kinds without privileges
// report false.
func (s *Synthesizer) grantSQL(o model.Object, g model.Grant, revoke bool) (string, bool) {
	m := o.Meta()
	privs := upperList(g.Privileges)
	var on string
	switch m.Kind {
	case model.KindColumn:
		cols := make([]string, len(g.Privileges))
		for i, p := range g.Privileges {
			cols[i] = strings.ToUpper(p) + " (" + m.Name.SQL() + ")"
		}
		privs = strings.Join(cols, ", ")
		on = "TABLE " + parentName(m)
	case model.KindTable, model.KindView, model.KindMaterializedView, model.KindForeignTable:
		on = "TABLE " + s.name(o)
	case model.KindSequence, model.KindFunction, model.KindSchema, model.KindLanguage,
		model.KindType, model.KindDomain, model.KindForeignDataWrapper:
		on = m.Kind.SQL() + " " + s.name(o)
	case model.KindAggregate:
		on = "FUNCTION " + s.name(o)
	case model.KindForeignServer:
		on = "FOREIGN SERVER " + s.name(o)
	default:
		return "", false
	}
	if revoke {
		return "REVOKE " + privs + " ON " + on + " FROM " + s.role(g.Grantee), true
	}
	return "GRANT " + privs + " ON " + on + " TO " + s.role(g.Grantee), true
}
