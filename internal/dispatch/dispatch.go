// Package dispatch handles relation mutations: setting, adding, and removing
// associations between domain objects. It validates operation flags against
// metadata and delegates the actual writes to the store, which is responsible
// for per-call atomicity. Associations only are touched; related records are
// never deleted here.
package dispatch

import (
	"context"
	"fmt"

	"metagql/internal/metadata"
	"metagql/internal/storage"
)

// RelationNotFoundError reports a mutation against a relation that is not
// registered on the parent type.
type RelationNotFoundError struct {
	Parent   string
	Relation string
}

func (e *RelationNotFoundError) Error() string {
	return fmt.Sprintf("relation %q not found on %s", e.Relation, e.Parent)
}

// OperationDisabledError reports a mutation whose flag is disabled in
// metadata. Schema synthesis omits such mutations entirely, so hitting this
// means a caller bypassed the generated schema.
type OperationDisabledError struct {
	Parent    string
	Relation  string
	Operation string
}

func (e *OperationDisabledError) Error() string {
	return fmt.Sprintf("operation %s is disabled for relation %s on %s", e.Operation, e.Relation, e.Parent)
}

// Dispatcher translates relation mutations into store calls.
type Dispatcher struct {
	registry *metadata.Registry
	store    storage.Store
}

// New creates a dispatcher over a frozen registry.
func New(registry *metadata.Registry, store storage.Store) *Dispatcher {
	return &Dispatcher{registry: registry, store: store}
}

// SetRelation sets a one-cardinality relation to the given related id and
// returns the re-fetched parent so callers can chain field selection.
func (d *Dispatcher) SetRelation(ctx context.Context, parent, relationName string, parentID, relatedID interface{}) (storage.Record, error) {
	rel, ref, err := d.resolve(parent, relationName)
	if err != nil {
		return nil, err
	}
	if rel.DisableUpdate {
		return nil, &OperationDisabledError{Parent: parent, Relation: relationName, Operation: "update"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.store.WriteRelation(ctx, parentID, ref, []interface{}{relatedID}); err != nil {
		return nil, err
	}
	return d.refetch(ctx, parent, parentID)
}

// AddRelations associates the given related ids with a many-cardinality
// relation and returns the re-fetched parent.
func (d *Dispatcher) AddRelations(ctx context.Context, parent, relationName string, parentID interface{}, relatedIDs []interface{}) (storage.Record, error) {
	rel, ref, err := d.resolve(parent, relationName)
	if err != nil {
		return nil, err
	}
	if rel.DisableUpdate {
		return nil, &OperationDisabledError{Parent: parent, Relation: relationName, Operation: "update"}
	}
	if len(relatedIDs) == 0 {
		return nil, fmt.Errorf("no related ids given for %s.%s", parent, relationName)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.store.WriteRelation(ctx, parentID, ref, relatedIDs); err != nil {
		return nil, err
	}
	return d.refetch(ctx, parent, parentID)
}

// RemoveRelations clears the association for the given related ids (or the
// whole relation for one-cardinality when relatedIDs is nil) and returns the
// re-fetched parent. Related records themselves are untouched.
func (d *Dispatcher) RemoveRelations(ctx context.Context, parent, relationName string, parentID interface{}, relatedIDs []interface{}) (storage.Record, error) {
	rel, ref, err := d.resolve(parent, relationName)
	if err != nil {
		return nil, err
	}
	if rel.DisableRemove {
		return nil, &OperationDisabledError{Parent: parent, Relation: relationName, Operation: "remove"}
	}
	if rel.Cardinality == metadata.CardinalityMany && len(relatedIDs) == 0 {
		return nil, fmt.Errorf("no related ids given for %s.%s", parent, relationName)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.store.ClearRelation(ctx, parentID, ref, relatedIDs); err != nil {
		return nil, err
	}
	return d.refetch(ctx, parent, parentID)
}

func (d *Dispatcher) resolve(parent, relationName string) (metadata.Relation, storage.RelationRef, error) {
	obj, err := d.registry.Resolve(parent)
	if err != nil {
		return metadata.Relation{}, storage.RelationRef{}, err
	}
	rel, ok := obj.RelationByName(relationName)
	if !ok {
		return metadata.Relation{}, storage.RelationRef{}, &RelationNotFoundError{Parent: parent, Relation: relationName}
	}
	return rel, storage.RelationRef{
		Parent:      parent,
		Name:        rel.StorageName(),
		Target:      rel.Target,
		Cardinality: string(rel.Cardinality),
	}, nil
}

func (d *Dispatcher) refetch(ctx context.Context, parent string, parentID interface{}) (storage.Record, error) {
	record, err := d.store.FetchOne(ctx, parent, parentID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, &storage.NotFoundError{Object: parent, ID: parentID}
	}
	return record, nil
}
