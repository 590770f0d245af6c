package metadata

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func todoItemObject() Object {
	return Object{
		Name: "TodoItem",
		Fields: []Field{
			{Name: "id", Type: FieldTypeID},
			{Name: "title", Type: FieldTypeString, Filterable: true, Sortable: true},
			{Name: "completed", Type: FieldTypeBoolean, Filterable: true},
		},
		Relations: []Relation{
			{
				Name:             "subTasks",
				Target:           "SubTask",
				Cardinality:      CardinalityMany,
				Paging:           PagingCursor,
				EnableTotalCount: true,
				DisableRemove:    true,
			},
			{Name: "owner", Target: "User", Cardinality: CardinalityOne, Nullable: true},
		},
	}
}

func subTaskObject() Object {
	return Object{
		Name: "SubTask",
		Fields: []Field{
			{Name: "id", Type: FieldTypeID},
			{Name: "title", Type: FieldTypeString, Filterable: true, Sortable: true},
		},
	}
}

func userObject() Object {
	return Object{
		Name: "User",
		Fields: []Field{
			{Name: "id", Type: FieldTypeID},
			{Name: "name", Type: FieldTypeString, Filterable: true},
		},
	}
}

func TestRegistryRegister(t *testing.T) {
	t.Run("registers and resolves objects", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Register(todoItemObject()))
		require.NoError(t, reg.Register(subTaskObject()))

		obj, err := reg.Resolve("TodoItem")
		require.NoError(t, err)
		assert.Equal(t, "TodoItem", obj.Name)
		assert.Len(t, obj.Relations, 2)
	})

	t.Run("duplicate registration fails", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Register(subTaskObject()))

		err := reg.Register(subTaskObject())
		var dup *DuplicateRegistrationError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "SubTask", dup.Name)
	})

	t.Run("duplicate field names rejected", func(t *testing.T) {
		reg := NewRegistry()
		err := reg.Register(Object{
			Name: "Broken",
			Fields: []Field{
				{Name: "id", Type: FieldTypeID},
				{Name: "id", Type: FieldTypeString},
			},
		})
		require.Error(t, err)
	})

	t.Run("relation colliding with field name rejected", func(t *testing.T) {
		reg := NewRegistry()
		err := reg.Register(Object{
			Name: "Broken",
			Fields: []Field{
				{Name: "id", Type: FieldTypeID},
				{Name: "owner", Type: FieldTypeString},
			},
			Relations: []Relation{
				{Name: "owner", Target: "User", Cardinality: CardinalityOne},
			},
		})
		require.Error(t, err)
	})

	t.Run("one-cardinality relation cannot be paged", func(t *testing.T) {
		reg := NewRegistry()
		err := reg.Register(Object{
			Name:   "Broken",
			Fields: []Field{{Name: "id", Type: FieldTypeID}},
			Relations: []Relation{
				{Name: "owner", Target: "User", Cardinality: CardinalityOne, Paging: PagingCursor},
			},
		})
		require.Error(t, err)
	})
}

func TestRegistryResolveUnknown(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Resolve("Missing")

	var unknown *UnknownTypeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "Missing", unknown.Name)
}

func TestRegistryValidate(t *testing.T) {
	t.Run("passes when all targets registered", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Register(todoItemObject()))
		require.NoError(t, reg.Register(subTaskObject()))
		require.NoError(t, reg.Register(userObject()))

		assert.NoError(t, reg.Validate())
	})

	t.Run("fails on unresolvable relation target", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Register(todoItemObject()))
		require.NoError(t, reg.Register(subTaskObject()))
		// User never registered

		err := reg.Validate()
		var unknown *UnknownTypeError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, "User", unknown.Name)
		assert.Equal(t, "TodoItem.owner", unknown.Referrer)
	})
}

func TestRegistryFreeze(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(subTaskObject()))

	frozen, err := reg.Freeze()
	require.NoError(t, err)
	assert.True(t, frozen.Frozen())

	err = reg.Register(userObject())
	require.Error(t, err)
	assert.False(t, errors.Is(err, nil))

	// Idempotent
	_, err = reg.Freeze()
	require.NoError(t, err)
}

func TestObjectAccessors(t *testing.T) {
	obj := todoItemObject()

	id, ok := obj.IDField()
	require.True(t, ok)
	assert.Equal(t, "id", id.Name)

	rel, ok := obj.RelationByName("subTasks")
	require.True(t, ok)
	assert.Equal(t, CardinalityMany, rel.Cardinality)
	assert.Equal(t, "subTasks", rel.StorageName())

	_, ok = obj.RelationByName("missing")
	assert.False(t, ok)

	renamed := Relation{Name: "subTasks", PersistedName: "sub_tasks"}
	assert.Equal(t, "sub_tasks", renamed.StorageName())
}

func TestRegistryObjectsOrder(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(userObject()))
	require.NoError(t, reg.Register(subTaskObject()))

	objs := reg.Objects()
	require.Len(t, objs, 2)
	assert.Equal(t, "User", objs[0].Name)
	assert.Equal(t, "SubTask", objs[1].Name)
}
