package resolver

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metagql/internal/cursor"
	"metagql/internal/metadata"
	"metagql/internal/query"
	"metagql/internal/storage"
)

func seedTodoStore(t *testing.T) *fakeStore {
	t.Helper()

	store := newFakeStore()
	store.addRecord("TodoItem", storage.Record{"id": "1", "title": "Plan trip", "completed": false})
	store.addRecord("TodoItem", storage.Record{"id": "2", "title": "Pack bags", "completed": false})
	for i := 1; i <= 3; i++ {
		store.addRelated("TodoItem", "subTasks", "1",
			storage.Record{"id": fmt.Sprint(10 + i), "title": fmt.Sprintf("step %d", i), "completed": false})
	}
	return store
}

func TestConnectionBatchesSiblingReads(t *testing.T) {
	store := seedTodoStore(t)
	schema := buildTestSchema(t, store)

	data := execute(t, schema, store, `{
		todoItems {
			id
			subTasks(paging: {first: 10}) {
				edges { node { id title } }
				pageInfo { hasNextPage }
			}
		}
	}`)

	// Two parents, one relation, one sub-query shape: exactly one fetch with
	// the union of parent ids.
	require.Len(t, store.fetchRelatedCalls, 1)
	call := store.fetchRelatedCalls[0]
	assert.ElementsMatch(t, []interface{}{"1", "2"}, call.parentIDs)
	assert.Equal(t, "subTasks", call.relation.Name)

	items, ok := data["todoItems"].([]interface{})
	require.True(t, ok)
	require.Len(t, items, 2)

	first := items[0].(map[string]interface{})["subTasks"].(map[string]interface{})
	assert.Len(t, first["edges"].([]interface{}), 3)

	// A parent with no related records gets an empty connection, not null.
	second := items[1].(map[string]interface{})["subTasks"].(map[string]interface{})
	assert.Empty(t, second["edges"].([]interface{}))
	pageInfo := second["pageInfo"].(map[string]interface{})
	assert.Equal(t, false, pageInfo["hasNextPage"])
}

func TestConnectionForwardPaging(t *testing.T) {
	store := seedTodoStore(t)
	schema := buildTestSchema(t, store)

	data := execute(t, schema, store, `{
		todoItem(id: "1") {
			subTasks(paging: {first: 2}) {
				edges { cursor node { id } }
				pageInfo { hasNextPage hasPreviousPage endCursor }
			}
		}
	}`)

	conn := data["todoItem"].(map[string]interface{})["subTasks"].(map[string]interface{})
	edges := conn["edges"].([]interface{})
	require.Len(t, edges, 2)
	pageInfo := conn["pageInfo"].(map[string]interface{})
	assert.Equal(t, true, pageInfo["hasNextPage"])
	assert.Equal(t, false, pageInfo["hasPreviousPage"])

	// Resume from the end cursor: one record remains.
	endCursor := pageInfo["endCursor"].(string)
	data = execute(t, schema, store, fmt.Sprintf(`{
		todoItem(id: "1") {
			subTasks(paging: {first: 2, after: %q}) {
				edges { node { id } }
				pageInfo { hasNextPage hasPreviousPage }
			}
		}
	}`, endCursor))

	conn = data["todoItem"].(map[string]interface{})["subTasks"].(map[string]interface{})
	edges = conn["edges"].([]interface{})
	require.Len(t, edges, 1)
	assert.Equal(t, "13", edges[0].(map[string]interface{})["node"].(map[string]interface{})["id"])
	pageInfo = conn["pageInfo"].(map[string]interface{})
	assert.Equal(t, false, pageInfo["hasNextPage"])
	assert.Equal(t, true, pageInfo["hasPreviousPage"])
}

func TestConnectionBackwardPaging(t *testing.T) {
	store := seedTodoStore(t)
	schema := buildTestSchema(t, store)

	before := cursor.Encode("TodoItem", "subTasks", 2)
	data := execute(t, schema, store, fmt.Sprintf(`{
		todoItem(id: "1") {
			subTasks(paging: {last: 1, before: %q}) {
				edges { node { id } }
				pageInfo { hasPreviousPage }
			}
		}
	}`, before))

	conn := data["todoItem"].(map[string]interface{})["subTasks"].(map[string]interface{})
	edges := conn["edges"].([]interface{})
	require.Len(t, edges, 1)
	assert.Equal(t, "12", edges[0].(map[string]interface{})["node"].(map[string]interface{})["id"])
	pageInfo := conn["pageInfo"].(map[string]interface{})
	assert.Equal(t, true, pageInfo["hasPreviousPage"])
}

func TestTotalCountLazy(t *testing.T) {
	t.Run("not selected, count collaborator untouched", func(t *testing.T) {
		store := seedTodoStore(t)
		schema := buildTestSchema(t, store)

		execute(t, schema, store, `{
			todoItem(id: "1") { subTasks { edges { node { id } } } }
		}`)
		assert.Zero(t, store.countRelatedCalls)
	})

	t.Run("selected, one count call for all parents", func(t *testing.T) {
		store := seedTodoStore(t)
		schema := buildTestSchema(t, store)

		data := execute(t, schema, store, `{
			todoItems { id subTasks { totalCount } }
		}`)
		assert.Equal(t, 1, store.countRelatedCalls)

		items := data["todoItems"].([]interface{})
		first := items[0].(map[string]interface{})["subTasks"].(map[string]interface{})
		assert.Equal(t, 3, first["totalCount"])
		second := items[1].(map[string]interface{})["subTasks"].(map[string]interface{})
		assert.Equal(t, 0, second["totalCount"])
	})
}

func TestOneRelationResolution(t *testing.T) {
	store := seedTodoStore(t)
	store.addRelated("TodoItem", "owner", "1", storage.Record{"id": "7", "name": "alice"})
	schema := buildTestSchema(t, store)

	data := execute(t, schema, store, `{
		todoItems { id owner { name } }
	}`)

	items := data["todoItems"].([]interface{})
	owner := items[0].(map[string]interface{})["owner"]
	require.NotNil(t, owner)
	assert.Equal(t, "alice", owner.(map[string]interface{})["name"])
	// No owner resolves to null, not an error.
	assert.Nil(t, items[1].(map[string]interface{})["owner"])
}

func TestOffsetRelationList(t *testing.T) {
	store := seedTodoStore(t)
	for i := 1; i <= 4; i++ {
		store.addRelated("TodoItem", "tags", "1", storage.Record{"id": fmt.Sprint(20 + i), "name": fmt.Sprintf("tag %d", i)})
	}
	schema := buildTestSchema(t, store)

	data := execute(t, schema, store, `{
		todoItem(id: "1") { tags(paging: {limit: 2, offset: 1}) { id } }
	}`)

	tags := data["todoItem"].(map[string]interface{})["tags"].([]interface{})
	require.Len(t, tags, 2)
	assert.Equal(t, "22", tags[0].(map[string]interface{})["id"])
}

// nestedRegistry wires three levels: TodoItem -> subTasks -> tags.
func nestedRegistry(t *testing.T) *metadata.Registry {
	t.Helper()

	reg := metadata.NewRegistry()
	require.NoError(t, reg.Register(metadata.Object{
		Name: "TodoItem",
		Fields: []metadata.Field{
			{Name: "id", Type: metadata.FieldTypeID},
			{Name: "title", Type: metadata.FieldTypeString},
		},
		Relations: []metadata.Relation{
			{Name: "subTasks", Target: "SubTask", Cardinality: metadata.CardinalityMany},
		},
	}))
	require.NoError(t, reg.Register(metadata.Object{
		Name: "SubTask",
		Fields: []metadata.Field{
			{Name: "id", Type: metadata.FieldTypeID},
			{Name: "title", Type: metadata.FieldTypeString},
		},
		Relations: []metadata.Relation{
			{Name: "tags", Target: "Tag", Cardinality: metadata.CardinalityMany},
		},
	}))
	require.NoError(t, reg.Register(metadata.Object{
		Name: "Tag",
		Fields: []metadata.Field{
			{Name: "id", Type: metadata.FieldTypeID},
			{Name: "name", Type: metadata.FieldTypeString},
		},
	}))
	_, err := reg.Freeze()
	require.NoError(t, err)
	return reg
}

func TestNestedRelationsKeepAllParents(t *testing.T) {
	store := newFakeStore()
	store.addRecord("TodoItem", storage.Record{"id": "1", "title": "Plan trip"})
	store.addRecord("TodoItem", storage.Record{"id": "2", "title": "Pack bags"})
	store.addRelated("TodoItem", "subTasks", "1",
		storage.Record{"id": "11", "title": "book flights"},
		storage.Record{"id": "12", "title": "book hotel"})
	store.addRelated("TodoItem", "subTasks", "2",
		storage.Record{"id": "21", "title": "find suitcase"})
	store.addRelated("SubTask", "tags", "11", storage.Record{"id": "101", "name": "travel"})
	store.addRelated("SubTask", "tags", "12", storage.Record{"id": "102", "name": "lodging"})
	store.addRelated("SubTask", "tags", "21", storage.Record{"id": "103", "name": "packing"})

	schema, err := New(nestedRegistry(t), store, 0).BuildSchema()
	require.NoError(t, err)

	data := execute(t, schema, store, `{
		todoItems { id subTasks { id tags { id name } } }
	}`)

	// Every sub-task keeps its tag, including sub-tasks of parents resolved
	// after the tags batch first flushed.
	items := data["todoItems"].([]interface{})
	require.Len(t, items, 2)
	wantTags := map[string]string{"11": "101", "12": "102", "21": "103"}
	for _, rawItem := range items {
		subTasks := rawItem.(map[string]interface{})["subTasks"].([]interface{})
		for _, rawSub := range subTasks {
			sub := rawSub.(map[string]interface{})
			tags := sub["tags"].([]interface{})
			require.Len(t, tags, 1, "sub-task %v lost its tag", sub["id"])
			assert.Equal(t, wantTags[sub["id"].(string)], tags[0].(map[string]interface{})["id"])
		}
	}

	// The tag reads batch per round: the first flush covers both of the
	// first item's sub-tasks, a follow-up covers the late one.
	var tagCalls []fetchRelatedCall
	for _, call := range store.fetchRelatedCalls {
		if call.relation.Name == "tags" {
			tagCalls = append(tagCalls, call)
		}
	}
	require.Len(t, tagCalls, 2)
	assert.ElementsMatch(t, []interface{}{"11", "12"}, tagCalls[0].parentIDs)
	assert.Equal(t, []interface{}{"21"}, tagCalls[1].parentIDs)
}

func TestMakeConnectionWindow(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cw, err := makeConnectionWindow("TodoItem", "subTasks", query.CursorPaging{}, 10)
		require.NoError(t, err)
		assert.Equal(t, 0, cw.offset)
		assert.Equal(t, 10, cw.limit)
		assert.Equal(t, query.Window{Limit: 11}, cw.fetch)
		assert.False(t, cw.backward)
	})

	t.Run("first and after", func(t *testing.T) {
		after := cursor.Encode("TodoItem", "subTasks", 4)
		cw, err := makeConnectionWindow("TodoItem", "subTasks", query.CursorPaging{
			First: 3, HasFirst: true, After: after, HasAfter: true,
		}, 10)
		require.NoError(t, err)
		assert.Equal(t, 5, cw.offset)
		assert.Equal(t, query.Window{Limit: 4, Offset: 5}, cw.fetch)
	})

	t.Run("last before start clamps to zero", func(t *testing.T) {
		before := cursor.Encode("TodoItem", "subTasks", 2)
		cw, err := makeConnectionWindow("TodoItem", "subTasks", query.CursorPaging{
			Last: 5, HasLast: true, Before: before, HasBefore: true,
		}, 10)
		require.NoError(t, err)
		assert.Equal(t, 0, cw.offset)
		assert.Equal(t, 2, cw.limit)
		assert.True(t, cw.backward)
		assert.False(t, cw.empty)
	})

	t.Run("before the first edge is provably empty", func(t *testing.T) {
		before := cursor.Encode("TodoItem", "subTasks", 0)
		cw, err := makeConnectionWindow("TodoItem", "subTasks", query.CursorPaging{
			Last: 5, HasLast: true, Before: before, HasBefore: true,
		}, 10)
		require.NoError(t, err)
		assert.True(t, cw.empty)
	})

	t.Run("cursor for another relation rejected", func(t *testing.T) {
		foreign := cursor.Encode("TodoItem", "tags", 1)
		_, err := makeConnectionWindow("TodoItem", "subTasks", query.CursorPaging{
			After: foreign, HasAfter: true,
		}, 10)
		require.Error(t, err)
	})
}
