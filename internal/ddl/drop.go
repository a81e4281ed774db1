package ddl

import (
	"github.com/koustreak/dbspec/internal/diff"
	"github.com/koustreak/dbspec/internal/errs"
	"github.com/koustreak/dbspec/internal/model"
)

// dropSQL renders the statement removing o.
func (s *Synthesizer) dropSQL(o model.Object) string {
	m := o.Meta()
	switch m.Kind {
	case model.KindColumn:
		return "ALTER " + m.ParentKind.SQL() + " " + parentName(m) + " DROP COLUMN " + m.Name.SQL()
	case model.KindConstraint:
		return "ALTER " + m.ParentKind.SQL() + " " + parentName(m) + " DROP CONSTRAINT " + m.Name.SQL()
	case model.KindTrigger, model.KindRule:
		return "DROP " + m.Kind.SQL() + " " + m.Name.SQL() + " ON " + parentName(m)
	}
	return "DROP " + m.Kind.SQL() + " " + s.name(o)
}

// renameSQL renders the statement giving c.Old the name of c.New. Renames
// run before any create, so owners already carry their new names.
func (s *Synthesizer) renameSQL(c diff.Change) (string, error) {
	m := c.New.Meta()
	old := c.Old.Meta().Name
	switch m.Kind {
	case model.KindColumn:
		return "ALTER " + m.ParentKind.SQL() + " " + parentName(m) + " RENAME COLUMN " + old.SQL() + " TO " + m.Name.SQL(), nil
	case model.KindConstraint:
		return "ALTER " + m.ParentKind.SQL() + " " + parentName(m) + " RENAME CONSTRAINT " + old.SQL() + " TO " + m.Name.SQL(), nil
	case model.KindTrigger, model.KindRule:
		return "ALTER " + m.Kind.SQL() + " " + old.SQL() + " ON " + parentName(m) + " RENAME TO " + m.Name.SQL(), nil
	case model.KindCast, model.KindUserMapping, model.KindExtension, model.KindOperator:
		return "", errs.Keyedf(errs.ErrKindUnsupportedObject, c.Key.String(), "a %s cannot be renamed", m.Kind)
	}
	return "ALTER " + m.Kind.SQL() + " " + s.nameAs(c.New, old) + " RENAME TO " + m.Name.SQL(), nil
}
