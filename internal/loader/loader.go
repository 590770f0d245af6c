// Package loader collapses the N individual relation reads issued while
// resolving one GraphQL request into one grouped fetch per (relation,
// sub-query) pair. A Loader lives for exactly one top-level request and is
// discarded afterwards, so results can never go stale across requests.
//
// List resolvers prime the loader with the parent ids they produced; relation
// resolvers then obtain a Thunk per parent. The first Thunk.Value call for a
// batch flushes it: a single store fetch with the union of primed and pending
// parent ids, demultiplexed back per parent. Flushing on first demand (rather
// than at a scheduler microtask boundary) matches Go's synchronous resolver
// execution. Parents that join a set after its batch has flushed (nested list
// resolvers prime mid-request) are picked up by a follow-up fetch covering
// only the ids the earlier flushes missed.
package loader

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"metagql/internal/query"
	"metagql/internal/storage"
)

// Fetcher is the subset of the store contract the loader needs.
type Fetcher interface {
	FetchRelated(ctx context.Context, parentIDs []interface{}, relation storage.RelationRef, sub query.SubQuery) (map[string][]storage.Record, error)
	CountRelated(ctx context.Context, parentIDs []interface{}, relation storage.RelationRef, sub query.SubQuery) (map[string]int, error)
}

// Loader batches relation reads within a single request.
type Loader struct {
	fetcher Fetcher

	mu          sync.Mutex
	parentSets  map[string][]interface{}
	parentSeen  map[string]map[string]struct{}
	batches     map[string]*batch
	counts      map[string]*countBatch
	hits        int64
	misses      int64
	flushErrors int64
}

// New creates a loader bound to one request.
func New(fetcher Fetcher) *Loader {
	return &Loader{
		fetcher:    fetcher,
		parentSets: make(map[string][]interface{}),
		parentSeen: make(map[string]map[string]struct{}),
		batches:    make(map[string]*batch),
		counts:     make(map[string]*countBatch),
	}
}

// Prime records the parent ids produced by a list resolver under the given
// set key. Subsequent relation loads against the same set batch over the
// union of primed ids. Duplicate ids are dropped.
func (l *Loader) Prime(setKey string, ids []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, id := range ids {
		l.addParentLocked(setKey, id)
	}
}

func (l *Loader) addParentLocked(setKey string, id interface{}) {
	seen := l.parentSeen[setKey]
	if seen == nil {
		seen = make(map[string]struct{})
		l.parentSeen[setKey] = seen
	}
	key := fmt.Sprint(id)
	if _, dup := seen[key]; dup {
		return
	}
	seen[key] = struct{}{}
	l.parentSets[setKey] = append(l.parentSets[setKey], id)
}

type batch struct {
	loader   *Loader
	setKey   string
	relation storage.RelationRef
	sub      query.SubQuery
	ctx      context.Context

	mu      sync.Mutex
	grouped map[string][]storage.Record
	fetched map[string]struct{}
	err     error
}

type countBatch struct {
	loader   *Loader
	setKey   string
	relation storage.RelationRef
	sub      query.SubQuery

	mu      sync.Mutex
	counts  map[string]int
	fetched map[string]struct{}
	err     error
}

// Thunk is a pending relation read for one parent.
type Thunk struct {
	batch    *batch
	parentID interface{}
}

// Load registers a relation read for one parent and returns its handle.
// Reads that share a set key, relation, and sub-query shape resolve from one
// store fetch. The context of the first Load call drives the eventual flush.
func (l *Loader) Load(ctx context.Context, setKey string, parentID interface{}, relation storage.RelationRef, sub query.SubQuery) *Thunk {
	batchKey := l.batchKey(setKey, relation, sub)

	l.mu.Lock()
	b, ok := l.batches[batchKey]
	if !ok {
		b = &batch{loader: l, setKey: setKey, relation: relation, sub: sub, ctx: ctx, fetched: make(map[string]struct{})}
		l.batches[batchKey] = b
		atomic.AddInt64(&l.misses, 1)
	} else {
		atomic.AddInt64(&l.hits, 1)
	}
	// The parent must be part of the flush even when it was never primed
	// (single by-id parents have no surrounding list).
	l.addParentLocked(setKey, parentID)
	l.mu.Unlock()

	return &Thunk{batch: b, parentID: parentID}
}

// Value resolves the thunk, flushing the batch on first demand. A parent the
// earlier flushes did not cover triggers a follow-up fetch for the set's
// still-unfetched ids. A parent with no related records yields an empty
// slice, never nil and never an error. A failed flush surfaces the same
// error to every thunk of the batch.
func (t *Thunk) Value() ([]storage.Record, error) {
	b := t.batch
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.err != nil {
		return nil, b.err
	}
	key := fmt.Sprint(t.parentID)
	if _, done := b.fetched[key]; !done {
		if err := b.flushLocked(); err != nil {
			return nil, err
		}
	}
	records := b.grouped[key]
	if records == nil {
		return []storage.Record{}, nil
	}
	return records, nil
}

// flushLocked fetches every parent of the set not covered by an earlier
// flush and merges the results. The first call sees the whole primed set.
func (b *batch) flushLocked() error {
	ids := b.loader.pendingParents(b.setKey, b.fetched)
	grouped, err := b.loader.fetcher.FetchRelated(b.ctx, ids, b.relation, b.sub)
	if err != nil {
		atomic.AddInt64(&b.loader.flushErrors, 1)
		b.err = err
		return err
	}
	if b.grouped == nil {
		b.grouped = make(map[string][]storage.Record, len(grouped))
	}
	for parent, records := range grouped {
		b.grouped[parent] = records
	}
	for _, id := range ids {
		b.fetched[fmt.Sprint(id)] = struct{}{}
	}
	return nil
}

// LoadCount batches per-parent related-record counts the same way Load
// batches reads. Resolvers call it only when totalCount is selected, keeping
// the count collaborator untouched otherwise.
func (l *Loader) LoadCount(ctx context.Context, setKey string, parentID interface{}, relation storage.RelationRef, sub query.SubQuery) (int, error) {
	countKey := "count|" + l.batchKey(setKey, relation, sub)

	l.mu.Lock()
	cb, ok := l.counts[countKey]
	if !ok {
		cb = &countBatch{loader: l, setKey: setKey, relation: relation, sub: sub, fetched: make(map[string]struct{})}
		l.counts[countKey] = cb
		atomic.AddInt64(&l.misses, 1)
	} else {
		atomic.AddInt64(&l.hits, 1)
	}
	l.addParentLocked(setKey, parentID)
	l.mu.Unlock()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.err != nil {
		return 0, cb.err
	}
	key := fmt.Sprint(parentID)
	if _, done := cb.fetched[key]; !done {
		ids := l.pendingParents(setKey, cb.fetched)
		counts, err := l.fetcher.CountRelated(ctx, ids, relation, sub)
		if err != nil {
			atomic.AddInt64(&l.flushErrors, 1)
			cb.err = err
			return 0, err
		}
		if cb.counts == nil {
			cb.counts = make(map[string]int, len(counts))
		}
		for parent, n := range counts {
			cb.counts[parent] = n
		}
		for _, id := range ids {
			cb.fetched[fmt.Sprint(id)] = struct{}{}
		}
	}
	return cb.counts[key], nil
}

// Stats reports batching effectiveness for this request.
type Stats struct {
	Hits        int64
	Misses      int64
	FlushErrors int64
}

// Stats returns the loader's counters.
func (l *Loader) Stats() Stats {
	return Stats{
		Hits:        atomic.LoadInt64(&l.hits),
		Misses:      atomic.LoadInt64(&l.misses),
		FlushErrors: atomic.LoadInt64(&l.flushErrors),
	}
}

func (l *Loader) batchKey(setKey string, relation storage.RelationRef, sub query.SubQuery) string {
	return fmt.Sprintf("%s|%s.%s|%s", setKey, relation.Parent, relation.Name, sub.Key())
}

// pendingParents returns the set's parent ids that no flush has covered yet.
// The fetched map belongs to a batch whose lock the caller already holds.
func (l *Loader) pendingParents(setKey string, fetched map[string]struct{}) []interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []interface{}
	for _, id := range l.parentSets[setKey] {
		if _, done := fetched[fmt.Sprint(id)]; !done {
			out = append(out, id)
		}
	}
	return out
}
