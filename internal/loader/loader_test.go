package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metagql/internal/query"
	"metagql/internal/storage"
)

type fakeFetcher struct {
	mu         sync.Mutex
	fetchCalls [][]interface{}
	countCalls [][]interface{}
	related    map[string][]storage.Record
	counts     map[string]int
	fetchErr   error
	countErr   error
}

// FetchRelated returns only the entries for the requested parent ids, the
// way a real store would.
func (f *fakeFetcher) FetchRelated(_ context.Context, parentIDs []interface{}, _ storage.RelationRef, _ query.SubQuery) (map[string][]storage.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls = append(f.fetchCalls, parentIDs)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	grouped := make(map[string][]storage.Record)
	for _, id := range parentIDs {
		key := fmt.Sprint(id)
		if records, ok := f.related[key]; ok {
			grouped[key] = records
		}
	}
	return grouped, nil
}

func (f *fakeFetcher) CountRelated(_ context.Context, parentIDs []interface{}, _ storage.RelationRef, _ query.SubQuery) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countCalls = append(f.countCalls, parentIDs)
	if f.countErr != nil {
		return nil, f.countErr
	}
	counts := make(map[string]int)
	for _, id := range parentIDs {
		key := fmt.Sprint(id)
		if n, ok := f.counts[key]; ok {
			counts[key] = n
		}
	}
	return counts, nil
}

var subTasksRel = storage.RelationRef{
	Parent:      "TodoItem",
	Name:        "subTasks",
	Target:      "SubTask",
	Cardinality: "many",
}

func TestLoaderBatchesIdenticalSubQueries(t *testing.T) {
	fetcher := &fakeFetcher{related: map[string][]storage.Record{
		"1": {{"id": "10"}},
		"2": {{"id": "20"}, {"id": "21"}},
	}}
	l := New(fetcher)
	ctx := context.Background()

	l.Prime("todoItems", []interface{}{"1", "2", "3"})

	sub := query.SubQuery{Window: query.Window{Limit: 10}}
	thunks := []*Thunk{
		l.Load(ctx, "todoItems", "1", subTasksRel, sub),
		l.Load(ctx, "todoItems", "2", subTasksRel, sub),
		l.Load(ctx, "todoItems", "3", subTasksRel, sub),
	}

	for _, th := range thunks {
		_, err := th.Value()
		require.NoError(t, err)
	}

	// Exactly one fetch with the union of parent ids.
	require.Len(t, fetcher.fetchCalls, 1)
	assert.ElementsMatch(t, []interface{}{"1", "2", "3"}, fetcher.fetchCalls[0])

	stats := l.Stats()
	assert.EqualValues(t, 2, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
}

func TestLoaderSeparatesDistinctSubQueries(t *testing.T) {
	fetcher := &fakeFetcher{related: map[string][]storage.Record{}}
	l := New(fetcher)
	ctx := context.Background()

	l.Prime("todoItems", []interface{}{"1", "2"})

	subA := query.SubQuery{Window: query.Window{Limit: 10}}
	subB := query.SubQuery{Window: query.Window{Limit: 20}}

	_, err := l.Load(ctx, "todoItems", "1", subTasksRel, subA).Value()
	require.NoError(t, err)
	_, err = l.Load(ctx, "todoItems", "1", subTasksRel, subB).Value()
	require.NoError(t, err)

	assert.Len(t, fetcher.fetchCalls, 2)
}

func TestLoaderEmptyParentResolvesEmpty(t *testing.T) {
	fetcher := &fakeFetcher{related: map[string][]storage.Record{
		"1": {{"id": "10"}},
	}}
	l := New(fetcher)

	l.Prime("todoItems", []interface{}{"1", "2"})
	sub := query.SubQuery{}

	records, err := l.Load(context.Background(), "todoItems", "2", subTasksRel, sub).Value()
	require.NoError(t, err)
	require.NotNil(t, records)
	assert.Empty(t, records)
}

func TestLoaderUnprimedParentIncludedInFlush(t *testing.T) {
	fetcher := &fakeFetcher{related: map[string][]storage.Record{}}
	l := New(fetcher)

	_, err := l.Load(context.Background(), "todoItem", "42", subTasksRel, query.SubQuery{}).Value()
	require.NoError(t, err)

	require.Len(t, fetcher.fetchCalls, 1)
	assert.Equal(t, []interface{}{"42"}, fetcher.fetchCalls[0])
}

func TestLoaderLateParentTriggersFollowUpFetch(t *testing.T) {
	fetcher := &fakeFetcher{related: map[string][]storage.Record{
		"a": {{"id": "t1"}},
		"b": {{"id": "t2"}},
	}}
	l := New(fetcher)
	ctx := context.Background()
	sub := query.SubQuery{}

	// First round of parents flushes normally.
	l.Prime("subTasks", []interface{}{"a"})
	records, err := l.Load(ctx, "subTasks", "a", subTasksRel, sub).Value()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "t1", records[0]["id"])

	// A parent primed after the flush gets its own follow-up fetch covering
	// only the ids the first flush missed, not an empty result.
	l.Prime("subTasks", []interface{}{"b"})
	records, err = l.Load(ctx, "subTasks", "b", subTasksRel, sub).Value()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "t2", records[0]["id"])

	require.Len(t, fetcher.fetchCalls, 2)
	assert.Equal(t, []interface{}{"a"}, fetcher.fetchCalls[0])
	assert.Equal(t, []interface{}{"b"}, fetcher.fetchCalls[1])

	// Already-fetched parents keep resolving without further fetches.
	records, err = l.Load(ctx, "subTasks", "a", subTasksRel, sub).Value()
	require.NoError(t, err)
	assert.Equal(t, "t1", records[0]["id"])
	assert.Len(t, fetcher.fetchCalls, 2)
}

func TestLoadCountLateParentFollowUp(t *testing.T) {
	fetcher := &fakeFetcher{counts: map[string]int{"1": 3, "2": 5}}
	l := New(fetcher)
	ctx := context.Background()
	sub := query.SubQuery{}

	l.Prime("todoItems", []interface{}{"1"})
	count, err := l.LoadCount(ctx, "todoItems", "1", subTasksRel, sub)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	l.Prime("todoItems", []interface{}{"2"})
	count, err = l.LoadCount(ctx, "todoItems", "2", subTasksRel, sub)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	require.Len(t, fetcher.countCalls, 2)
	assert.Equal(t, []interface{}{"2"}, fetcher.countCalls[1])
}

func TestLoaderFlushErrorRejectsAllCallers(t *testing.T) {
	boom := errors.New("storage unavailable")
	fetcher := &fakeFetcher{fetchErr: boom}
	l := New(fetcher)
	ctx := context.Background()

	l.Prime("todoItems", []interface{}{"1", "2"})
	sub := query.SubQuery{}

	t1 := l.Load(ctx, "todoItems", "1", subTasksRel, sub)
	t2 := l.Load(ctx, "todoItems", "2", subTasksRel, sub)

	_, err1 := t1.Value()
	_, err2 := t2.Value()
	require.ErrorIs(t, err1, boom)
	require.ErrorIs(t, err2, boom)

	// One flush attempt, both callers rejected.
	assert.Len(t, fetcher.fetchCalls, 1)
	assert.EqualValues(t, 1, l.Stats().FlushErrors)
}

func TestLoadCountBatches(t *testing.T) {
	fetcher := &fakeFetcher{counts: map[string]int{"1": 12, "2": 0}}
	l := New(fetcher)
	ctx := context.Background()

	l.Prime("todoItems", []interface{}{"1", "2"})
	sub := query.SubQuery{}

	count, err := l.LoadCount(ctx, "todoItems", "1", subTasksRel, sub)
	require.NoError(t, err)
	assert.Equal(t, 12, count)

	count, err = l.LoadCount(ctx, "todoItems", "2", subTasksRel, sub)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.Len(t, fetcher.countCalls, 1)
	assert.ElementsMatch(t, []interface{}{"1", "2"}, fetcher.countCalls[0])
	// Reads were never flushed, only counts.
	assert.Empty(t, fetcher.fetchCalls)
}

func TestLoaderConcurrentValue(t *testing.T) {
	fetcher := &fakeFetcher{related: map[string][]storage.Record{"1": {{"id": "x"}}}}
	l := New(fetcher)
	ctx := context.Background()

	l.Prime("todoItems", []interface{}{"1"})
	th := l.Load(ctx, "todoItems", "1", subTasksRel, query.SubQuery{})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			records, err := th.Value()
			assert.NoError(t, err)
			assert.Len(t, records, 1)
		}()
	}
	wg.Wait()

	assert.Len(t, fetcher.fetchCalls, 1)
}

func TestLoaderContext(t *testing.T) {
	l := New(&fakeFetcher{})
	ctx := NewContext(context.Background(), l)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, l, got)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}
