// Package storage defines the contract between the generated resolvers and
// the persistence layer. The core never builds queries against a concrete
// engine; it hands the store a parsed sub-query shape and consumes records
// keyed by parent identifier.
package storage

import (
	"context"

	"metagql/internal/query"
)

// Record is one domain object instance keyed by exposed field name.
type Record = map[string]interface{}

// Store is the narrow persistence contract the core calls through.
//
// FetchRelated must group results per parent id; parents with no related
// records may be absent from the map (callers translate absence to an empty
// sequence). WriteRelation and ClearRelation operate on associations only and
// must fail atomically, leaving no partial association behind.
type Store interface {
	// FetchOne returns the record with the given id, or nil when absent.
	FetchOne(ctx context.Context, object string, id interface{}) (Record, error)
	// FetchMany returns records matching the sub-query in sort order.
	FetchMany(ctx context.Context, object string, sub query.SubQuery) ([]Record, error)
	// CountMany returns the number of records matching the filter,
	// ignoring the sub-query window.
	CountMany(ctx context.Context, object string, sub query.SubQuery) (int, error)

	// FetchRelated returns related records grouped by parent id. The
	// sub-query window applies per parent, not to the combined result.
	FetchRelated(ctx context.Context, parentIDs []interface{}, relation RelationRef, sub query.SubQuery) (map[string][]Record, error)
	// CountRelated returns per-parent counts of related records matching the
	// filter. Invoked only when a connection's totalCount is selected.
	CountRelated(ctx context.Context, parentIDs []interface{}, relation RelationRef, sub query.SubQuery) (map[string]int, error)

	// WriteRelation associates relatedIDs with the parent.
	WriteRelation(ctx context.Context, parentID interface{}, relation RelationRef, relatedIDs []interface{}) error
	// ClearRelation removes the association for the given relatedIDs. A nil
	// relatedIDs clears a one-cardinality relation.
	ClearRelation(ctx context.Context, parentID interface{}, relation RelationRef, relatedIDs []interface{}) error

	CreateOne(ctx context.Context, object string, values Record) (Record, error)
	UpdateOne(ctx context.Context, object string, id interface{}, values Record) (Record, error)
	DeleteOne(ctx context.Context, object string, id interface{}) (Record, error)
}

// RelationRef identifies a relation to the store using persisted names.
type RelationRef struct {
	Parent      string // parent object name
	Name        string // persisted relation name
	Target      string // target object name
	Cardinality string // "one" or "many"
}
