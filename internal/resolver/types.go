package resolver

import (
	"github.com/graphql-go/graphql"

	"metagql/internal/metadata"
	"metagql/internal/naming"
	"metagql/internal/query"
)

func scalarForFieldType(ft metadata.FieldType) *graphql.Scalar {
	switch ft {
	case metadata.FieldTypeID:
		return graphql.ID
	case metadata.FieldTypeInt:
		return graphql.Int
	case metadata.FieldTypeFloat:
		return graphql.Float
	case metadata.FieldTypeBoolean:
		return graphql.Boolean
	default:
		return graphql.String
	}
}

// comparisonInput builds the per-scalar comparison input (eq, neq, gt, gte,
// lt, lte, like, in, notIn, is, isNot), cached per scalar type.
func (r *Resolver) comparisonInput(ft metadata.FieldType) *graphql.InputObject {
	typeName := string(ft) + "FieldComparison"

	r.mu.RLock()
	cached, ok := r.comparisonCache[typeName]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	scalar := scalarForFieldType(ft)
	fields := graphql.InputObjectConfigFieldMap{
		"eq":    &graphql.InputObjectFieldConfig{Type: scalar},
		"neq":   &graphql.InputObjectFieldConfig{Type: scalar},
		"gt":    &graphql.InputObjectFieldConfig{Type: scalar},
		"gte":   &graphql.InputObjectFieldConfig{Type: scalar},
		"lt":    &graphql.InputObjectFieldConfig{Type: scalar},
		"lte":   &graphql.InputObjectFieldConfig{Type: scalar},
		"like":  &graphql.InputObjectFieldConfig{Type: graphql.String},
		"in":    &graphql.InputObjectFieldConfig{Type: graphql.NewList(graphql.NewNonNull(scalar))},
		"notIn": &graphql.InputObjectFieldConfig{Type: graphql.NewList(graphql.NewNonNull(scalar))},
		"is":    &graphql.InputObjectFieldConfig{Type: graphql.Boolean},
		"isNot": &graphql.InputObjectFieldConfig{Type: graphql.Boolean},
	}

	input := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   typeName,
		Fields: fields,
	})

	r.mu.Lock()
	if cached, ok := r.comparisonCache[typeName]; ok {
		r.mu.Unlock()
		return cached
	}
	r.comparisonCache[typeName] = input
	r.mu.Unlock()

	return input
}

// filterInput builds <Object>Filter: one comparison entry per filterable
// field plus self-referential and/or combinators. Returns nil when the object
// has no filterable fields.
func (r *Resolver) filterInput(obj metadata.Object) *graphql.InputObject {
	filterable := false
	for _, f := range obj.Fields {
		if f.Filterable {
			filterable = true
			break
		}
	}
	if !filterable {
		return nil
	}

	typeName := naming.FilterTypeName(obj.Name)

	r.mu.RLock()
	cached, ok := r.filterCache[typeName]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	var input *graphql.InputObject
	input = graphql.NewInputObject(graphql.InputObjectConfig{
		Name: typeName,
		// Thunk so and/or can reference the filter type itself.
		Fields: (graphql.InputObjectConfigFieldMapThunk)(func() graphql.InputObjectConfigFieldMap {
			fields := graphql.InputObjectConfigFieldMap{
				"and": &graphql.InputObjectFieldConfig{Type: graphql.NewList(graphql.NewNonNull(input))},
				"or":  &graphql.InputObjectFieldConfig{Type: graphql.NewList(graphql.NewNonNull(input))},
			}
			for _, f := range obj.Fields {
				if !f.Filterable {
					continue
				}
				fields[naming.FieldName(f.Name)] = &graphql.InputObjectFieldConfig{
					Type: r.comparisonInput(f.Type),
				}
			}
			return fields
		}),
	})

	r.mu.Lock()
	if cached, ok := r.filterCache[typeName]; ok {
		r.mu.Unlock()
		return cached
	}
	r.filterCache[typeName] = input
	r.mu.Unlock()

	return input
}

func (r *Resolver) sortDirectionEnum() *graphql.Enum {
	r.mu.RLock()
	cached := r.sortDirection
	r.mu.RUnlock()
	if cached != nil {
		return cached
	}

	enumValue := graphql.NewEnum(graphql.EnumConfig{
		Name: "SortDirection",
		Values: graphql.EnumValueConfigMap{
			string(query.SortAsc):  &graphql.EnumValueConfig{Value: string(query.SortAsc)},
			string(query.SortDesc): &graphql.EnumValueConfig{Value: string(query.SortDesc)},
		},
	})

	r.mu.Lock()
	if r.sortDirection == nil {
		r.sortDirection = enumValue
	}
	cached = r.sortDirection
	r.mu.Unlock()

	return cached
}

// sortFieldsEnum builds <Object>SortFields from the sortable fields. Returns
// nil when nothing is sortable.
func (r *Resolver) sortFieldsEnum(obj metadata.Object) *graphql.Enum {
	typeName := naming.SortFieldsEnumName(obj.Name)

	r.mu.RLock()
	cached, ok := r.sortEnumCache[typeName]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	values := graphql.EnumValueConfigMap{}
	for _, f := range obj.Fields {
		if !f.Sortable {
			continue
		}
		name := naming.FieldName(f.Name)
		values[name] = &graphql.EnumValueConfig{Value: f.Name}
	}
	if len(values) == 0 {
		return nil
	}

	enumValue := graphql.NewEnum(graphql.EnumConfig{
		Name:   typeName,
		Values: values,
	})

	r.mu.Lock()
	if cached, ok := r.sortEnumCache[typeName]; ok {
		r.mu.Unlock()
		return cached
	}
	r.sortEnumCache[typeName] = enumValue
	r.mu.Unlock()

	return enumValue
}

// sortInput builds <Object>Sort {field, direction}. Returns nil when the
// object has no sortable fields.
func (r *Resolver) sortInput(obj metadata.Object) graphql.Input {
	fieldsEnum := r.sortFieldsEnum(obj)
	if fieldsEnum == nil {
		return nil
	}

	typeName := naming.SortTypeName(obj.Name)

	r.mu.RLock()
	cached, ok := r.sortCache[typeName]
	r.mu.RUnlock()
	if ok {
		return graphql.NewList(graphql.NewNonNull(cached))
	}

	input := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: typeName,
		Fields: graphql.InputObjectConfigFieldMap{
			"field":     &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(fieldsEnum)},
			"direction": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(r.sortDirectionEnum())},
		},
	})

	r.mu.Lock()
	if cached, ok := r.sortCache[typeName]; ok {
		r.mu.Unlock()
		return graphql.NewList(graphql.NewNonNull(cached))
	}
	r.sortCache[typeName] = input
	r.mu.Unlock()

	return graphql.NewList(graphql.NewNonNull(input))
}

func (r *Resolver) limitOffsetPagingInput() *graphql.InputObject {
	r.mu.RLock()
	cached := r.offsetPaging
	r.mu.RUnlock()
	if cached != nil {
		return cached
	}

	input := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "LimitOffsetPaging",
		Fields: graphql.InputObjectConfigFieldMap{
			"limit":  &graphql.InputObjectFieldConfig{Type: graphql.Int},
			"offset": &graphql.InputObjectFieldConfig{Type: graphql.Int},
		},
	})

	r.mu.Lock()
	if r.offsetPaging == nil {
		r.offsetPaging = input
	}
	cached = r.offsetPaging
	r.mu.Unlock()

	return cached
}

func (r *Resolver) cursorPagingInput() *graphql.InputObject {
	r.mu.RLock()
	cached := r.cursorPaging
	r.mu.RUnlock()
	if cached != nil {
		return cached
	}

	input := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "CursorPaging",
		Fields: graphql.InputObjectConfigFieldMap{
			"first":  &graphql.InputObjectFieldConfig{Type: graphql.Int},
			"after":  &graphql.InputObjectFieldConfig{Type: graphql.String},
			"last":   &graphql.InputObjectFieldConfig{Type: graphql.Int},
			"before": &graphql.InputObjectFieldConfig{Type: graphql.String},
		},
	})

	r.mu.Lock()
	if r.cursorPaging == nil {
		r.cursorPaging = input
	}
	cached = r.cursorPaging
	r.mu.Unlock()

	return cached
}

func (r *Resolver) pageInfoType() *graphql.Object {
	r.mu.RLock()
	cached := r.pageInfo
	r.mu.RUnlock()
	if cached != nil {
		return cached
	}

	objType := graphql.NewObject(graphql.ObjectConfig{
		Name: "PageInfo",
		Fields: graphql.Fields{
			"hasNextPage":     &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
			"hasPreviousPage": &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
			"startCursor":     &graphql.Field{Type: graphql.String},
			"endCursor":       &graphql.Field{Type: graphql.String},
		},
	})

	r.mu.Lock()
	if r.pageInfo == nil {
		r.pageInfo = objType
	}
	cached = r.pageInfo
	r.mu.Unlock()

	return cached
}

// edgeType builds the <Parent><Relation>Edge type (cached per name).
func (r *Resolver) edgeType(typeName string, nodeType *graphql.Object) *graphql.Object {
	r.mu.RLock()
	cached, ok := r.edgeCache[typeName]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	objType := graphql.NewObject(graphql.ObjectConfig{
		Name: typeName,
		Fields: graphql.Fields{
			"cursor": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"node":   &graphql.Field{Type: graphql.NewNonNull(nodeType)},
		},
	})

	r.mu.Lock()
	if cached, ok := r.edgeCache[typeName]; ok {
		r.mu.Unlock()
		return cached
	}
	r.edgeCache[typeName] = objType
	r.mu.Unlock()

	return objType
}

// connectionType builds the connection wrapper for one relation. totalCount
// only exists when the relation enables it; its resolver defers the count
// until the field is actually selected.
func (r *Resolver) connectionType(typeName string, nodeType *graphql.Object, edgeName string, withTotalCount bool) *graphql.Object {
	r.mu.RLock()
	cached, ok := r.connectionCache[typeName]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	edge := r.edgeType(edgeName, nodeType)
	fields := graphql.Fields{
		"edges": &graphql.Field{
			Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(edge))),
		},
		"pageInfo": &graphql.Field{
			Type: graphql.NewNonNull(r.pageInfoType()),
		},
	}
	if withTotalCount {
		fields["totalCount"] = &graphql.Field{
			Type: graphql.NewNonNull(graphql.Int),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				source, ok := p.Source.(map[string]interface{})
				if !ok {
					return 0, nil
				}
				cr, ok := source[connectionResultKey].(*connectionResult)
				if !ok || cr == nil {
					return 0, nil
				}
				return cr.totalCount()
			},
		}
	}

	objType := graphql.NewObject(graphql.ObjectConfig{
		Name:   typeName,
		Fields: fields,
	})

	r.mu.Lock()
	if cached, ok := r.connectionCache[typeName]; ok {
		r.mu.Unlock()
		return cached
	}
	r.connectionCache[typeName] = objType
	r.mu.Unlock()

	return objType
}

func (r *Resolver) relationInputType() *graphql.InputObject {
	r.mu.RLock()
	cached := r.relationInput
	r.mu.RUnlock()
	if cached != nil {
		return cached
	}

	input := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "RelationInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"id":         &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.ID)},
			"relationId": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.ID)},
		},
	})

	r.mu.Lock()
	if r.relationInput == nil {
		r.relationInput = input
	}
	cached = r.relationInput
	r.mu.Unlock()

	return cached
}

func (r *Resolver) relationsInputType() *graphql.InputObject {
	r.mu.RLock()
	cached := r.relationsInput
	r.mu.RUnlock()
	if cached != nil {
		return cached
	}

	input := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "RelationsInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"id":          &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.ID)},
			"relationIds": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(graphql.ID)))},
		},
	})

	r.mu.Lock()
	if r.relationsInput == nil {
		r.relationsInput = input
	}
	cached = r.relationsInput
	r.mu.Unlock()

	return cached
}
