package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metagql/internal/metadata"
	"metagql/internal/query"
	"metagql/internal/storage"
)

func testRegistry(t *testing.T) *metadata.Registry {
	t.Helper()

	reg := metadata.NewRegistry()
	require.NoError(t, reg.Register(metadata.Object{
		Name: "TodoItem",
		Fields: []metadata.Field{
			{Name: "id", Type: metadata.FieldTypeID},
			{Name: "title", Type: metadata.FieldTypeString, Filterable: true, Sortable: true},
			{Name: "priority", Type: metadata.FieldTypeInt, Filterable: true, Sortable: true},
		},
		Relations: []metadata.Relation{
			{Name: "subTasks", Target: "SubTask", Cardinality: metadata.CardinalityMany, Paging: metadata.PagingCursor},
			{Name: "owner", Target: "User", Cardinality: metadata.CardinalityOne, Nullable: true},
			{Name: "tags", Target: "Tag", Cardinality: metadata.CardinalityMany},
		},
	}))
	require.NoError(t, reg.Register(metadata.Object{
		Name: "SubTask",
		Fields: []metadata.Field{
			{Name: "id", Type: metadata.FieldTypeID},
			{Name: "title", Type: metadata.FieldTypeString, Filterable: true, Sortable: true},
			{Name: "completed", Type: metadata.FieldTypeBoolean, Filterable: true},
		},
	}))
	require.NoError(t, reg.Register(metadata.Object{
		Name: "User",
		Fields: []metadata.Field{
			{Name: "id", Type: metadata.FieldTypeID},
			{Name: "name", Type: metadata.FieldTypeString, Filterable: true},
		},
	}))
	require.NoError(t, reg.Register(metadata.Object{
		Name: "Tag",
		Fields: []metadata.Field{
			{Name: "id", Type: metadata.FieldTypeID},
			{Name: "name", Type: metadata.FieldTypeString, Filterable: true},
		},
	}))
	return reg
}

func testMapping(t *testing.T, reg *metadata.Registry) Mapping {
	t.Helper()

	return DefaultMapping(reg).Merge(Mapping{
		Relations: map[string]RelationMapping{
			"TodoItem.tags": {
				JunctionTable:        "todo_item_tags",
				JunctionLocalColumn:  "todo_item_id",
				JunctionRemoteColumn: "tag_id",
			},
		},
	})
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	reg := testRegistry(t)
	return New(db, reg, testMapping(t, reg)), mock, db
}

func subTasksRef() storage.RelationRef {
	return storage.RelationRef{Parent: "TodoItem", Name: "subTasks", Target: "SubTask", Cardinality: "many"}
}

func TestFetchOne(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	t.Run("returns record with byte columns as strings", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, title, priority FROM todo_items WHERE id = \? LIMIT 1`).
			WithArgs("1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "title", "priority"}).
				AddRow(1, []byte("Create one todo item"), 3))

		record, err := s.FetchOne(context.Background(), "TodoItem", "1")
		require.NoError(t, err)
		assert.Equal(t, "Create one todo item", record["title"])
		assert.Equal(t, 3, toInt(t, record["priority"]))
	})

	t.Run("returns nil for missing record", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, title, priority FROM todo_items WHERE id = \? LIMIT 1`).
			WithArgs("99").
			WillReturnRows(sqlmock.NewRows([]string{"id", "title", "priority"}))

		record, err := s.FetchOne(context.Background(), "TodoItem", "99")
		require.NoError(t, err)
		assert.Nil(t, record)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchMany(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	sub := query.SubQuery{
		Filter: query.Filter{Comparisons: []query.Comparison{
			{Field: "priority", Operator: query.OpGte, Value: 2},
		}},
		Sort:   []query.SortField{{Field: "title", Direction: query.SortDesc}},
		Window: query.Window{Limit: 10, Offset: 5},
	}

	mock.ExpectQuery(`SELECT id, title, priority FROM todo_items WHERE priority >= \? ORDER BY title DESC, id ASC LIMIT 10 OFFSET 5`).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "priority"}).
			AddRow(2, "Walk the dog", 3).
			AddRow(1, "Buy milk", 2))

	records, err := s.FetchMany(context.Background(), "TodoItem", sub)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Walk the dog", records[0]["title"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchManyEmptyResult(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT id, title, priority FROM todo_items ORDER BY id ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "priority"}))

	records, err := s.FetchMany(context.Background(), "TodoItem", query.SubQuery{})
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountMany(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM todo_items WHERE title LIKE \?`).
		WithArgs("%milk%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := s.CountMany(context.Background(), "TodoItem", query.SubQuery{
		Filter: query.Filter{Comparisons: []query.Comparison{
			{Field: "title", Operator: query.OpLike, Value: "%milk%"},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchRelatedManyWindowed(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	// One statement covers all parents; the window applies per parent.
	mock.ExpectQuery(`SELECT w.__parent, w.id, w.title, w.completed FROM \(SELECT t.todo_item_id AS __parent, t.id, t.title, t.completed, ROW_NUMBER\(\) OVER \(PARTITION BY t.todo_item_id ORDER BY t.title ASC, t.id ASC\) AS __rn FROM sub_tasks AS t WHERE t.todo_item_id IN \(\?,\?\)\) AS w WHERE w.__rn > \? AND w.__rn <= \? ORDER BY w.__parent, w.__rn`).
		WithArgs("1", "2", 0, 2).
		WillReturnRows(sqlmock.NewRows([]string{"__parent", "id", "title", "completed"}).
			AddRow(1, 10, "a", false).
			AddRow(1, 11, "b", true).
			AddRow(2, 12, "c", false))

	grouped, err := s.FetchRelated(context.Background(), []interface{}{"1", "2"}, subTasksRef(), query.SubQuery{
		Sort:   []query.SortField{{Field: "title", Direction: query.SortAsc}},
		Window: query.Window{Limit: 2},
	})
	require.NoError(t, err)
	require.Len(t, grouped["1"], 2)
	require.Len(t, grouped["2"], 1)
	assert.Equal(t, "c", grouped["2"][0]["title"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchRelatedManyUnwindowed(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT t.todo_item_id AS __parent, t.id, t.title, t.completed FROM sub_tasks AS t WHERE t.todo_item_id IN \(\?,\?\) AND t.completed = \? ORDER BY __parent, t.id ASC`).
		WithArgs("1", "2", false).
		WillReturnRows(sqlmock.NewRows([]string{"__parent", "id", "title", "completed"}).
			AddRow(1, 10, "a", false))

	grouped, err := s.FetchRelated(context.Background(), []interface{}{"1", "2"}, subTasksRef(), query.SubQuery{
		Filter: query.Filter{Comparisons: []query.Comparison{
			{Field: "completed", Operator: query.OpIs, Value: false},
		}},
	})
	require.NoError(t, err)
	require.Len(t, grouped["1"], 1)
	_, ok := grouped["2"]
	assert.False(t, ok, "parents without rows are absent from the map")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchRelatedOneCardinality(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT p.id AS __parent, t.id, t.name FROM todo_items AS p JOIN users AS t ON t.id = p.owner_id WHERE p.id IN \(\?,\?\)`).
		WithArgs("1", "2").
		WillReturnRows(sqlmock.NewRows([]string{"__parent", "id", "name"}).
			AddRow(1, 7, "alice").
			AddRow(2, 7, "alice"))

	ref := storage.RelationRef{Parent: "TodoItem", Name: "owner", Target: "User", Cardinality: "one"}
	grouped, err := s.FetchRelated(context.Background(), []interface{}{"1", "2"}, ref, query.SubQuery{})
	require.NoError(t, err)
	require.Len(t, grouped["1"], 1)
	assert.Equal(t, "alice", grouped["1"][0]["name"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchRelatedJunction(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT j.todo_item_id AS __parent, t.id, t.name FROM todo_item_tags AS j JOIN tags AS t ON t.id = j.tag_id WHERE j.todo_item_id IN \(\?\) ORDER BY __parent, t.id ASC`).
		WithArgs("1").
		WillReturnRows(sqlmock.NewRows([]string{"__parent", "id", "name"}).
			AddRow(1, 3, "home").
			AddRow(1, 4, "urgent"))

	ref := storage.RelationRef{Parent: "TodoItem", Name: "tags", Target: "Tag", Cardinality: "many"}
	grouped, err := s.FetchRelated(context.Background(), []interface{}{"1"}, ref, query.SubQuery{})
	require.NoError(t, err)
	require.Len(t, grouped["1"], 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchRelatedNoParents(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	grouped, err := s.FetchRelated(context.Background(), nil, subTasksRef(), query.SubQuery{})
	require.NoError(t, err)
	assert.Empty(t, grouped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountRelated(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT t.todo_item_id AS __parent, COUNT\(\*\) FROM sub_tasks AS t WHERE t.todo_item_id IN \(\?,\?\) GROUP BY t.todo_item_id`).
		WithArgs("1", "2").
		WillReturnRows(sqlmock.NewRows([]string{"__parent", "count"}).
			AddRow(1, 5).
			AddRow(2, 0))

	counts, err := s.CountRelated(context.Background(), []interface{}{"1", "2"}, subTasksRef(), query.SubQuery{})
	require.NoError(t, err)
	assert.Equal(t, 5, counts["1"])
	assert.Equal(t, 0, counts["2"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteRelationRemote(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sub_tasks WHERE id IN \(\?,\?\)`).
		WithArgs("10", "11").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectExec(`UPDATE sub_tasks SET todo_item_id = \? WHERE id IN \(\?,\?\)`).
		WithArgs("1", "10", "11").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := s.WriteRelation(context.Background(), "1", subTasksRef(), []interface{}{"10", "11"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteRelationUnknownRelated(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sub_tasks WHERE id IN \(\?,\?\)`).
		WithArgs("10", "99").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	err := s.WriteRelation(context.Background(), "1", subTasksRef(), []interface{}{"10", "99"})
	var writeErr *storage.RelationWriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "TodoItem", writeErr.Parent)
	assert.Equal(t, "subTasks", writeErr.Relation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteRelationLocal(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users WHERE id IN \(\?\)`).
		WithArgs("7").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM todo_items WHERE id = \?`).
		WithArgs("1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(`UPDATE todo_items SET owner_id = \? WHERE id = \?`).
		WithArgs("7", "1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ref := storage.RelationRef{Parent: "TodoItem", Name: "owner", Target: "User", Cardinality: "one"}
	err := s.WriteRelation(context.Background(), "1", ref, []interface{}{"7"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteRelationJunction(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM tags WHERE id IN \(\?,\?\)`).
		WithArgs("3", "4").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectExec(`INSERT INTO todo_item_tags \(todo_item_id,tag_id\) VALUES \(\?,\?\),\(\?,\?\)`).
		WithArgs("1", "3", "1", "4").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	ref := storage.RelationRef{Parent: "TodoItem", Name: "tags", Target: "Tag", Cardinality: "many"}
	err := s.WriteRelation(context.Background(), "1", ref, []interface{}{"3", "4"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClearRelationOneCardinality(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE todo_items SET owner_id = \? WHERE id = \?`).
		WithArgs(nil, "1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ref := storage.RelationRef{Parent: "TodoItem", Name: "owner", Target: "User", Cardinality: "one"}
	err := s.ClearRelation(context.Background(), "1", ref, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClearRelationRemote(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE sub_tasks SET todo_item_id = \? WHERE todo_item_id = \? AND id IN \(\?,\?\)`).
		WithArgs(nil, "1", "10", "11").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := s.ClearRelation(context.Background(), "1", subTasksRef(), []interface{}{"10", "11"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOne(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO todo_items \(title,priority\) VALUES \(\?,\?\)`).
		WithArgs("Buy milk", 2).
		WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectQuery(`SELECT id, title, priority FROM todo_items WHERE id = \? LIMIT 1`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "priority"}).
			AddRow(42, "Buy milk", 2))

	record, err := s.CreateOne(context.Background(), "TodoItem", storage.Record{
		"title":    "Buy milk",
		"priority": 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "Buy milk", record["title"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOne(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	t.Run("updates and refetches", func(t *testing.T) {
		mock.ExpectExec(`UPDATE todo_items SET title = \? WHERE id = \?`).
			WithArgs("Buy oat milk", "42").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`SELECT id, title, priority FROM todo_items WHERE id = \? LIMIT 1`).
			WithArgs("42").
			WillReturnRows(sqlmock.NewRows([]string{"id", "title", "priority"}).
				AddRow(42, "Buy oat milk", 2))

		record, err := s.UpdateOne(context.Background(), "TodoItem", "42", storage.Record{"title": "Buy oat milk"})
		require.NoError(t, err)
		assert.Equal(t, "Buy oat milk", record["title"])
	})

	t.Run("missing record is a typed error", func(t *testing.T) {
		mock.ExpectExec(`UPDATE todo_items SET title = \? WHERE id = \?`).
			WithArgs("x", "99").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT id, title, priority FROM todo_items WHERE id = \? LIMIT 1`).
			WithArgs("99").
			WillReturnRows(sqlmock.NewRows([]string{"id", "title", "priority"}))

		_, err := s.UpdateOne(context.Background(), "TodoItem", "99", storage.Record{"title": "x"})
		var notFound *storage.NotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "TodoItem", notFound.Object)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteOne(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	t.Run("returns the deleted record", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, title, priority FROM todo_items WHERE id = \? LIMIT 1`).
			WithArgs("42").
			WillReturnRows(sqlmock.NewRows([]string{"id", "title", "priority"}).
				AddRow(42, "Buy milk", 2))
		mock.ExpectExec(`DELETE FROM todo_items WHERE id = \?`).
			WithArgs("42").
			WillReturnResult(sqlmock.NewResult(0, 1))

		record, err := s.DeleteOne(context.Background(), "TodoItem", "42")
		require.NoError(t, err)
		assert.Equal(t, "Buy milk", record["title"])
	})

	t.Run("missing record is a typed error", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, title, priority FROM todo_items WHERE id = \? LIMIT 1`).
			WithArgs("99").
			WillReturnRows(sqlmock.NewRows([]string{"id", "title", "priority"}))

		_, err := s.DeleteOne(context.Background(), "TodoItem", "99")
		var notFound *storage.NotFoundError
		require.ErrorAs(t, err, &notFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryErrorSurfaced(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	boom := errors.New("connection reset")
	mock.ExpectQuery(`SELECT id, title, priority FROM todo_items`).WillReturnError(boom)

	_, err := s.FetchMany(context.Background(), "TodoItem", query.SubQuery{})
	require.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func toInt(t *testing.T, v interface{}) int {
	t.Helper()
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	}
	t.Fatalf("unexpected numeric type %T", v)
	return 0
}
