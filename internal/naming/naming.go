// Package naming derives GraphQL type, field, query, and mutation names from
// domain object metadata. Pluralization uses the inflection dictionary so
// irregular nouns ("Person" -> "people") come out right.
package naming

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// TypeName converts an object name to a GraphQL type name (PascalCase).
func TypeName(name string) string {
	return ToPascalCase(name)
}

// FieldName converts a name to a GraphQL field name (camelCase).
func FieldName(name string) string {
	return ToCamelCase(name)
}

// QueryName is the root list query field for an object, e.g. "todoItems".
func QueryName(objectName string) string {
	return ToCamelCase(inflection.Plural(objectName))
}

// SingleQueryName is the root by-id query field, e.g. "todoItem".
func SingleQueryName(objectName string) string {
	return ToCamelCase(objectName)
}

// FilterTypeName is the filter input type name, e.g. "TodoItemFilter".
func FilterTypeName(objectName string) string {
	return TypeName(objectName) + "Filter"
}

// SortTypeName is the sort input type name, e.g. "TodoItemSort".
func SortTypeName(objectName string) string {
	return TypeName(objectName) + "Sort"
}

// SortFieldsEnumName is the sortable-fields enum name, e.g. "TodoItemSortFields".
func SortFieldsEnumName(objectName string) string {
	return TypeName(objectName) + "SortFields"
}

// ConnectionTypeName names the connection wrapper for a relation,
// e.g. parent "TodoItem" + relation "subTasks" -> "TodoItemSubTasksConnection".
func ConnectionTypeName(parentName, relationName string) string {
	return TypeName(parentName) + ToPascalCase(relationName) + "Connection"
}

// EdgeTypeName names the edge type of a connection.
func EdgeTypeName(parentName, relationName string) string {
	return TypeName(parentName) + ToPascalCase(relationName) + "Edge"
}

// SetRelationMutationName names the set mutation for a one relation,
// e.g. relation "owner" on "TodoItem" -> "setOwnerOnTodoItem".
func SetRelationMutationName(parentName, relationName string) string {
	return "set" + ToPascalCase(relationName) + "On" + TypeName(parentName)
}

// AddRelationsMutationName names the add mutation for a many relation,
// e.g. relation "subTasks" on "TodoItem" -> "addSubTasksToTodoItem".
func AddRelationsMutationName(parentName, relationName string) string {
	return "add" + ToPascalCase(relationName) + "To" + TypeName(parentName)
}

// RemoveRelationMutationName names the remove mutation,
// e.g. "removeSubTasksFromTodoItem" or "removeOwnerFromTodoItem".
func RemoveRelationMutationName(parentName, relationName string) string {
	return "remove" + ToPascalCase(relationName) + "From" + TypeName(parentName)
}

// CreateMutationName names the root create mutation, e.g. "createOneTodoItem".
func CreateMutationName(objectName string) string {
	return "createOne" + TypeName(objectName)
}

// UpdateMutationName names the root update mutation, e.g. "updateOneTodoItem".
func UpdateMutationName(objectName string) string {
	return "updateOne" + TypeName(objectName)
}

// DeleteMutationName names the root delete mutation, e.g. "deleteOneTodoItem".
func DeleteMutationName(objectName string) string {
	return "deleteOne" + TypeName(objectName)
}

// ToPascalCase converts snake_case, kebab-case, or camelCase to PascalCase.
func ToPascalCase(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	upperNext := true
	for _, r := range s {
		switch {
		case r == '_' || r == '-' || r == ' ':
			upperNext = true
		case upperNext:
			b.WriteRune(unicode.ToUpper(r))
			upperNext = false
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ToSnakeCase converts PascalCase or camelCase to snake_case.
func ToSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if r == '-' || r == ' ' {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// TableName is the default storage table for an object, e.g. "todo_items".
func TableName(objectName string) string {
	return inflection.Plural(ToSnakeCase(objectName))
}

// ColumnName is the default storage column for a field, e.g. "createdAt" ->
// "created_at".
func ColumnName(fieldName string) string {
	return ToSnakeCase(fieldName)
}

// ToCamelCase converts a name to camelCase, lowering only the leading
// uppercase run so acronym-free names keep their interior casing.
func ToCamelCase(s string) string {
	pascal := ToPascalCase(s)
	if pascal == "" {
		return pascal
	}
	runes := []rune(pascal)
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}
