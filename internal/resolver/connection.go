package resolver

import (
	"context"
	"sync"

	"github.com/graphql-go/graphql"

	"metagql/internal/cursor"
	"metagql/internal/loader"
	"metagql/internal/metadata"
	"metagql/internal/query"
	"metagql/internal/storage"
)

const connectionResultKey = "__connectionResult"

// connectionWindow is the resolved paging shape of one connection read.
// offset/limit describe the page itself; fetch is what is asked of the store
// (forward reads probe one extra record to decide hasNextPage).
type connectionWindow struct {
	offset   int
	limit    int
	fetch    query.Window
	backward bool
	empty    bool // page is provably empty, skip the fetch
}

func makeConnectionWindow(typeName, relationName string, paging query.CursorPaging, defaultLimit int) (connectionWindow, error) {
	if paging.HasLast || paging.HasBefore {
		before, err := cursor.Decode(paging.Before, typeName, relationName)
		if err != nil {
			return connectionWindow{}, err
		}
		count := defaultLimit
		if paging.HasLast {
			count = paging.Last
		}
		start := before - count
		if start < 0 {
			start = 0
		}
		limit := before - start
		return connectionWindow{
			offset:   start,
			limit:    limit,
			fetch:    query.Window{Limit: limit, Offset: start},
			backward: true,
			empty:    limit == 0,
		}, nil
	}

	first := defaultLimit
	if paging.HasFirst {
		first = paging.First
	}
	start := 0
	if paging.HasAfter {
		after, err := cursor.Decode(paging.After, typeName, relationName)
		if err != nil {
			return connectionWindow{}, err
		}
		start = after + 1
	}
	return connectionWindow{
		offset: start,
		limit:  first,
		fetch:  query.Window{Limit: first + 1, Offset: start},
	}, nil
}

// connectionResult defers the totalCount store call until the field is
// actually selected. Counts batch across parents through the loader like
// relation reads do.
type connectionResult struct {
	ld       *loader.Loader
	countCtx context.Context
	setKey   string
	parentID interface{}
	ref      storage.RelationRef
	countSub query.SubQuery

	mu            sync.Mutex
	totalCountVal *int
}

func (cr *connectionResult) totalCount() (int, error) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if cr.totalCountVal != nil {
		return *cr.totalCountVal, nil
	}
	count, err := cr.ld.LoadCount(cr.countCtx, cr.setKey, cr.parentID, cr.ref, cr.countSub)
	if err != nil {
		return 0, err
	}
	cr.totalCountVal = &count
	return count, nil
}

func (r *Resolver) makeConnectionRelationResolver(parent metadata.Object, rel metadata.Relation) graphql.FieldResolveFn {
	ref := relationRef(parent, rel)
	return func(p graphql.ResolveParams) (interface{}, error) {
		target, err := r.registry.Resolve(rel.Target)
		if err != nil {
			return nil, err
		}
		sub, err := r.parseSubQuery(target, p.Args, false)
		if err != nil {
			return nil, err
		}
		paging, err := query.ParseCursorPaging(p.Args["paging"])
		if err != nil {
			return nil, err
		}
		cw, err := makeConnectionWindow(parent.Name, rel.Name, paging, r.defaultLimit)
		if err != nil {
			return nil, err
		}
		id, err := parentID(p, parent)
		if err != nil {
			return nil, err
		}
		ld := r.loaderFor(p)

		var records []storage.Record
		if !cw.empty {
			sub.Window = cw.fetch
			thunk := ld.Load(p.Context, parent.Name, id, ref, sub)
			records, err = thunk.Value()
			if err != nil {
				return nil, err
			}
		}

		hasPrev := cw.offset > 0
		hasNext := cw.backward
		if !cw.backward && len(records) > cw.limit {
			hasNext = true
			records = records[:cw.limit]
		}
		// Prime the edges' nodes so their own relations batch in turn.
		r.primeParents(p, target, records)

		return r.buildConnectionResult(p.Context, parent, rel, ld, id, records, cw, sub.Filter, hasNext, hasPrev), nil
	}
}

// buildConnectionResult shapes records into the map the connection type's
// field resolvers read from.
func (r *Resolver) buildConnectionResult(
	ctx context.Context,
	parent metadata.Object,
	rel metadata.Relation,
	ld *loader.Loader,
	parentID interface{},
	records []storage.Record,
	cw connectionWindow,
	filter query.Filter,
	hasNext, hasPrev bool,
) map[string]interface{} {
	edges := make([]map[string]interface{}, len(records))
	for i, record := range records {
		edges[i] = map[string]interface{}{
			"cursor": cursor.Encode(parent.Name, rel.Name, cw.offset+i),
			"node":   record,
		}
	}

	var startCursor, endCursor interface{}
	if len(edges) > 0 {
		startCursor = edges[0]["cursor"]
		endCursor = edges[len(edges)-1]["cursor"]
	}

	result := map[string]interface{}{
		"edges": edges,
		"pageInfo": map[string]interface{}{
			"hasNextPage":     hasNext,
			"hasPreviousPage": hasPrev,
			"startCursor":     startCursor,
			"endCursor":       endCursor,
		},
	}

	if rel.EnableTotalCount {
		if ctx == nil {
			ctx = context.Background()
		}
		// The count runs lazily, so it must survive the caller's context
		// being canceled after the rows were already materialized.
		result[connectionResultKey] = &connectionResult{
			ld:       ld,
			countCtx: context.WithoutCancel(ctx),
			setKey:   parent.Name,
			parentID: parentID,
			ref:      relationRef(parent, rel),
			countSub: query.SubQuery{Filter: filter},
		}
	}

	return result
}
