package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCaseConversion(t *testing.T) {
	tests := []struct {
		in     string
		pascal string
		camel  string
	}{
		{"todo_item", "TodoItem", "todoItem"},
		{"TodoItem", "TodoItem", "todoItem"},
		{"subTasks", "SubTasks", "subTasks"},
		{"user-profile", "UserProfile", "userProfile"},
		{"", "", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.pascal, ToPascalCase(tt.in), "pascal(%s)", tt.in)
		assert.Equal(t, tt.camel, ToCamelCase(tt.in), "camel(%s)", tt.in)
	}
}

func TestQueryNames(t *testing.T) {
	assert.Equal(t, "todoItems", QueryName("TodoItem"))
	assert.Equal(t, "people", QueryName("Person"))
	assert.Equal(t, "todoItem", SingleQueryName("TodoItem"))
}

func TestSchemaTypeNames(t *testing.T) {
	assert.Equal(t, "TodoItemFilter", FilterTypeName("TodoItem"))
	assert.Equal(t, "TodoItemSort", SortTypeName("TodoItem"))
	assert.Equal(t, "TodoItemSortFields", SortFieldsEnumName("TodoItem"))
	assert.Equal(t, "TodoItemSubTasksConnection", ConnectionTypeName("TodoItem", "subTasks"))
	assert.Equal(t, "TodoItemSubTasksEdge", EdgeTypeName("TodoItem", "subTasks"))
}

func TestStorageNames(t *testing.T) {
	assert.Equal(t, "todo_item", ToSnakeCase("TodoItem"))
	assert.Equal(t, "sub_tasks", ToSnakeCase("subTasks"))
	assert.Equal(t, "todo_items", TableName("TodoItem"))
	assert.Equal(t, "people", TableName("Person"))
	assert.Equal(t, "created_at", ColumnName("createdAt"))
}

func TestMutationNames(t *testing.T) {
	assert.Equal(t, "setOwnerOnTodoItem", SetRelationMutationName("TodoItem", "owner"))
	assert.Equal(t, "addSubTasksToTodoItem", AddRelationsMutationName("TodoItem", "subTasks"))
	assert.Equal(t, "removeSubTasksFromTodoItem", RemoveRelationMutationName("TodoItem", "subTasks"))
	assert.Equal(t, "createOneTodoItem", CreateMutationName("TodoItem"))
	assert.Equal(t, "updateOneTodoItem", UpdateMutationName("TodoItem"))
	assert.Equal(t, "deleteOneTodoItem", DeleteMutationName("TodoItem"))
}
