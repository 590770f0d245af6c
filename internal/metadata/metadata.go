// Package metadata holds the declarative description of domain objects that
// drives GraphQL schema generation: fields, filterable flags, and relations.
// Metadata is registered at startup and frozen into an immutable snapshot
// before schema synthesis; no runtime mutation happens afterwards.
package metadata

import "fmt"

// FieldType is the scalar type of a domain object field.
type FieldType string

const (
	FieldTypeID      FieldType = "ID"
	FieldTypeString  FieldType = "String"
	FieldTypeInt     FieldType = "Int"
	FieldTypeFloat   FieldType = "Float"
	FieldTypeBoolean FieldType = "Boolean"
)

// Cardinality describes how many related records a relation resolves to.
type Cardinality string

const (
	CardinalityOne  Cardinality = "one"
	CardinalityMany Cardinality = "many"
)

// PagingStrategy selects the pagination style exposed for a many relation.
type PagingStrategy string

const (
	PagingNone   PagingStrategy = "none"
	PagingOffset PagingStrategy = "offset"
	PagingCursor PagingStrategy = "cursor"
)

// Field describes one exposed field of a domain object.
type Field struct {
	Name       string
	Type       FieldType
	Nullable   bool
	Filterable bool
	Sortable   bool
}

// Relation describes a declared association between two domain object types.
// Target is a weak reference resolved by name against the registry.
type Relation struct {
	Name        string
	Target      string
	Cardinality Cardinality
	Paging      PagingStrategy
	Nullable    bool
	// PersistedName overrides the storage-layer relation name when the
	// exposed name differs from the persisted one.
	PersistedName string
	// EnableTotalCount exposes totalCount on the generated connection.
	EnableTotalCount bool
	DisableRead      bool
	DisableUpdate    bool
	DisableRemove    bool
}

// StorageName returns the relation name used when talking to the store.
func (r Relation) StorageName() string {
	if r.PersistedName != "" {
		return r.PersistedName
	}
	return r.Name
}

// Object describes one domain object: its name, ordered fields, and relations.
type Object struct {
	Name      string
	Fields    []Field
	Relations []Relation
}

// IDField returns the identifier field of the object. Objects default to a
// field named "id" when no field carries the ID type.
func (o Object) IDField() (Field, bool) {
	for _, f := range o.Fields {
		if f.Type == FieldTypeID {
			return f, true
		}
	}
	for _, f := range o.Fields {
		if f.Name == "id" {
			return f, true
		}
	}
	return Field{}, false
}

// FieldByName looks up a field by its exposed name.
func (o Object) FieldByName(name string) (Field, bool) {
	for _, f := range o.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// RelationByName looks up a relation by its exposed name.
func (o Object) RelationByName(name string) (Relation, bool) {
	for _, r := range o.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return Relation{}, false
}

func (o Object) validate() error {
	if o.Name == "" {
		return fmt.Errorf("object name must not be empty")
	}
	if len(o.Fields) == 0 {
		return fmt.Errorf("object %s must declare at least one field", o.Name)
	}
	seen := make(map[string]struct{}, len(o.Fields))
	for _, f := range o.Fields {
		if f.Name == "" {
			return fmt.Errorf("object %s has a field with an empty name", o.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("object %s declares field %s twice", o.Name, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	for _, rel := range o.Relations {
		if rel.Name == "" {
			return fmt.Errorf("object %s has a relation with an empty name", o.Name)
		}
		if rel.Target == "" {
			return fmt.Errorf("relation %s on %s has no target", rel.Name, o.Name)
		}
		if _, dup := seen[rel.Name]; dup {
			return fmt.Errorf("relation %s on %s collides with a field name", rel.Name, o.Name)
		}
		seen[rel.Name] = struct{}{}
		switch rel.Cardinality {
		case CardinalityOne, CardinalityMany:
		default:
			return fmt.Errorf("relation %s on %s has invalid cardinality %q", rel.Name, o.Name, rel.Cardinality)
		}
		switch rel.Paging {
		case PagingNone, PagingOffset, PagingCursor:
		case "":
			// normalized to none at registration
		default:
			return fmt.Errorf("relation %s on %s has invalid paging strategy %q", rel.Name, o.Name, rel.Paging)
		}
		if rel.Cardinality == CardinalityOne && rel.Paging != "" && rel.Paging != PagingNone {
			return fmt.Errorf("relation %s on %s: one-cardinality relations cannot be paged", rel.Name, o.Name)
		}
	}
	return nil
}
