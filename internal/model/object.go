package model

import (
	"strings"

	"github.com/koustreak/dbspec/internal/ident"
)

// Key is the identity of an object inside one Database. Children carry the
// kind and name of the relation (or server) that owns them.
type Key struct {
	Kind       Kind
	Schema     string
	ParentKind Kind
	Parent     string
	Name       string
}

func (k Key) String() string {
	parts := make([]string, 0, 3)
	if k.Schema != "" {
		parts = append(parts, k.Schema)
	}
	if k.Parent != "" {
		parts = append(parts, k.Parent)
	}
	parts = append(parts, k.Name)
	return k.Kind.String() + " " + strings.Join(parts, ".")
}

// ParentKey returns the key of the owning object. Schema-scoped objects are
// owned by their schema; database-wide objects have no owner.
func (k Key) ParentKey() (Key, bool) {
	switch {
	case k.ParentKind != KindUnknown:
		pk := Key{Kind: k.ParentKind, Name: k.Parent}
		if k.ParentKind.Scope() == ScopeSchema {
			pk.Schema = k.Schema
		}
		return pk, true
	case k.Kind.Scope() == ScopeSchema:
		return SchemaKey(k.Schema), true
	}
	return Key{}, false
}

// SchemaKey is the key of the schema named name.
func SchemaKey(name string) Key {
	return Key{Kind: KindSchema, Name: name}
}

// RelationKey is the key of a schema-scoped object.
func RelationKey(kind Kind, schema, name string) Key {
	return Key{Kind: kind, Schema: schema, Name: name}
}

// ChildKey is the key of an object owned by parent.
func ChildKey(kind Kind, parent Key, name string) Key {
	return Key{Kind: kind, Schema: parent.Schema, ParentKind: parent.Kind, Parent: parent.Name, Name: name}
}

// Grant is one grantee's privileges on an object, e.g. {alice, [select, update]}.
type Grant struct {
	Grantee    string
	Privileges []string
}

// Base holds what every object has in common.
type Base struct {
	Kind       Kind
	Schema     ident.Ident
	ParentKind Kind
	Parent     ident.Ident
	Name       ident.Ident
	Owner      string
	Comment    *string
	Privileges []Grant
	OldName    string // rename hint, spec side only

	sig string
}

// Meta exposes the common fields of any object.
func (b *Base) Meta() *Base { return b }

// Key returns the identity key.
func (b *Base) Key() Key {
	return b.KeyNamed(b.Name.Name)
}

// KeyNamed returns the key this object would have under another name.
func (b *Base) KeyNamed(name string) Key {
	return Key{
		Kind:       b.Kind,
		Schema:     b.Schema.Name,
		ParentKind: b.ParentKind,
		Parent:     b.Parent.Name,
		Name:       name + b.sig,
	}
}

// Signature is the part of the key that follows the name, such as the
// argument list of a function.
func (b *Base) Signature() string { return b.sig }

// Object is implemented by every concrete object type through Base.
type Object interface {
	Key() Key
	Meta() *Base
}
