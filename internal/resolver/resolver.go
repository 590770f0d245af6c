// Package resolver synthesizes an executable GraphQL schema from a frozen
// metadata registry: one object type per domain object, filter/sort/paging
// inputs, relation fields per cardinality and paging strategy, and relation
// mutations gated by operation flags. Relation reads go through the
// request-scoped loader so sibling resolvers collapse into one store fetch.
package resolver

import (
	"fmt"
	"sync"

	"github.com/graphql-go/graphql"

	"metagql/internal/dispatch"
	"metagql/internal/loader"
	"metagql/internal/metadata"
	"metagql/internal/naming"
	"metagql/internal/query"
	"metagql/internal/storage"
)

// DefaultListLimit applies when neither configuration nor the request sets a
// page size.
const DefaultListLimit = 10

// Resolver builds the schema and carries the resolution collaborators.
type Resolver struct {
	registry     *metadata.Registry
	store        storage.Store
	dispatcher   *dispatch.Dispatcher
	defaultLimit int

	typeCache        map[string]*graphql.Object
	filterCache      map[string]*graphql.InputObject
	comparisonCache  map[string]*graphql.InputObject
	sortCache        map[string]*graphql.InputObject
	sortEnumCache    map[string]*graphql.Enum
	connectionCache  map[string]*graphql.Object
	edgeCache        map[string]*graphql.Object
	createInputCache map[string]*graphql.InputObject
	updateInputCache map[string]*graphql.InputObject
	sortDirection    *graphql.Enum
	pageInfo         *graphql.Object
	offsetPaging     *graphql.InputObject
	cursorPaging     *graphql.InputObject
	relationInput    *graphql.InputObject
	relationsInput   *graphql.InputObject
	mu               sync.RWMutex
}

// New creates a resolver over a registry and store. The registry should be
// frozen; BuildSchema validates it either way.
func New(registry *metadata.Registry, store storage.Store, defaultLimit int) *Resolver {
	if defaultLimit <= 0 {
		defaultLimit = DefaultListLimit
	}
	return &Resolver{
		registry:         registry,
		store:            store,
		dispatcher:       dispatch.New(registry, store),
		defaultLimit:     defaultLimit,
		typeCache:        make(map[string]*graphql.Object),
		filterCache:      make(map[string]*graphql.InputObject),
		comparisonCache:  make(map[string]*graphql.InputObject),
		sortCache:        make(map[string]*graphql.InputObject),
		sortEnumCache:    make(map[string]*graphql.Enum),
		connectionCache:  make(map[string]*graphql.Object),
		edgeCache:        make(map[string]*graphql.Object),
		createInputCache: make(map[string]*graphql.InputObject),
		updateInputCache: make(map[string]*graphql.InputObject),
	}
}

// claims tracks schema member names so two declarations synthesizing the same
// name fail loudly instead of silently shadowing each other.
type claims map[string]string

func (c claims) claim(name, source string) error {
	if first, ok := c[name]; ok {
		return &SchemaConflictError{Name: name, First: first, Second: source}
	}
	c[name] = source
	return nil
}

// BuildSchema validates the registry and synthesizes the executable schema.
func (r *Resolver) BuildSchema() (graphql.Schema, error) {
	if err := r.registry.Validate(); err != nil {
		return graphql.Schema{}, err
	}
	for _, obj := range r.registry.Objects() {
		if err := checkObjectFieldConflicts(obj); err != nil {
			return graphql.Schema{}, err
		}
	}

	queryNames := claims{}
	queryFields := graphql.Fields{}
	for _, obj := range r.registry.Objects() {
		if err := r.addRootQueries(queryFields, obj, queryNames); err != nil {
			return graphql.Schema{}, err
		}
	}

	mutationNames := claims{}
	mutationFields := graphql.Fields{}
	typeNames := claims{}
	for _, obj := range r.registry.Objects() {
		if err := r.addCrudMutations(mutationFields, obj, mutationNames); err != nil {
			return graphql.Schema{}, err
		}
		if err := r.addRelationMutations(mutationFields, obj, mutationNames); err != nil {
			return graphql.Schema{}, err
		}
		if err := claimRelationTypeNames(obj, typeNames); err != nil {
			return graphql.Schema{}, err
		}
	}

	schemaConfig := graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: queryFields,
		}),
	}
	if len(mutationFields) > 0 {
		schemaConfig.Mutation = graphql.NewObject(graphql.ObjectConfig{
			Name:   "Mutation",
			Fields: mutationFields,
		})
	}
	return graphql.NewSchema(schemaConfig)
}

// checkObjectFieldConflicts catches metadata names that are distinct as
// declared but collapse to the same GraphQL field name.
func checkObjectFieldConflicts(obj metadata.Object) error {
	fieldNames := claims{}
	for _, f := range obj.Fields {
		if err := fieldNames.claim(naming.FieldName(f.Name), obj.Name+"."+f.Name); err != nil {
			return err
		}
	}
	for _, rel := range obj.Relations {
		if rel.DisableRead {
			continue
		}
		if err := fieldNames.claim(naming.FieldName(rel.Name), obj.Name+"."+rel.Name); err != nil {
			return err
		}
	}
	return nil
}

// claimRelationTypeNames reserves connection and edge type names, which are
// derived per parent+relation and can collide across case-folded names.
func claimRelationTypeNames(obj metadata.Object, typeNames claims) error {
	for _, rel := range obj.Relations {
		if rel.DisableRead || rel.Cardinality != metadata.CardinalityMany || rel.Paging != metadata.PagingCursor {
			continue
		}
		source := obj.Name + "." + rel.Name
		if err := typeNames.claim(naming.ConnectionTypeName(obj.Name, rel.Name), source); err != nil {
			return err
		}
		if err := typeNames.claim(naming.EdgeTypeName(obj.Name, rel.Name), source); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) addRootQueries(fields graphql.Fields, obj metadata.Object, names claims) error {
	objType := r.objectType(obj)

	listName := naming.QueryName(obj.Name)
	if err := names.claim(listName, obj.Name); err != nil {
		return err
	}
	listField := &graphql.Field{
		Type:    graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(objType))),
		Args:    graphql.FieldConfigArgument{},
		Resolve: r.makeListResolver(obj),
	}
	if filterType := r.filterInput(obj); filterType != nil {
		listField.Args["filter"] = &graphql.ArgumentConfig{Type: filterType}
	}
	if sortType := r.sortInput(obj); sortType != nil {
		listField.Args["sorting"] = &graphql.ArgumentConfig{Type: sortType}
	}
	listField.Args["paging"] = &graphql.ArgumentConfig{Type: r.limitOffsetPagingInput()}
	fields[listName] = listField

	singleName := naming.SingleQueryName(obj.Name)
	if err := names.claim(singleName, obj.Name); err != nil {
		return err
	}
	fields[singleName] = &graphql.Field{
		Type: objType,
		Args: graphql.FieldConfigArgument{
			"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
		},
		Resolve: r.makeSingleResolver(obj),
	}
	return nil
}

// objectType builds (or returns the cached) GraphQL type for a domain object.
// Fields are built lazily through a thunk so mutually-referential relations
// resolve cleanly.
func (r *Resolver) objectType(obj metadata.Object) *graphql.Object {
	typeName := naming.TypeName(obj.Name)

	r.mu.RLock()
	cached, ok := r.typeCache[typeName]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	objType := graphql.NewObject(graphql.ObjectConfig{
		Name: typeName,
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return r.objectFields(obj)
		}),
	})

	r.mu.Lock()
	if cached, ok := r.typeCache[typeName]; ok {
		r.mu.Unlock()
		return cached
	}
	r.typeCache[typeName] = objType
	r.mu.Unlock()

	return objType
}

func (r *Resolver) objectFields(obj metadata.Object) graphql.Fields {
	fields := graphql.Fields{}

	for _, f := range obj.Fields {
		var fieldType graphql.Output = scalarForFieldType(f.Type)
		if !f.Nullable {
			fieldType = graphql.NewNonNull(fieldType)
		}
		fields[naming.FieldName(f.Name)] = &graphql.Field{Type: fieldType}
	}

	for _, rel := range obj.Relations {
		if rel.DisableRead {
			continue
		}
		target, err := r.registry.Resolve(rel.Target)
		if err != nil {
			// Unreachable after Validate; skipping keeps the thunk total.
			continue
		}
		targetType := r.objectType(target)
		fieldName := naming.FieldName(rel.Name)

		if rel.Cardinality == metadata.CardinalityOne {
			var fieldType graphql.Output = targetType
			if !rel.Nullable {
				fieldType = graphql.NewNonNull(targetType)
			}
			fields[fieldName] = &graphql.Field{
				Type:    fieldType,
				Resolve: r.makeOneRelationResolver(obj, rel),
			}
			continue
		}

		args := graphql.FieldConfigArgument{}
		if filterType := r.filterInput(target); filterType != nil {
			args["filter"] = &graphql.ArgumentConfig{Type: filterType}
		}
		if sortType := r.sortInput(target); sortType != nil {
			args["sorting"] = &graphql.ArgumentConfig{Type: sortType}
		}

		switch rel.Paging {
		case metadata.PagingCursor:
			args["paging"] = &graphql.ArgumentConfig{Type: r.cursorPagingInput()}
			connType := r.connectionType(
				naming.ConnectionTypeName(obj.Name, rel.Name),
				targetType,
				naming.EdgeTypeName(obj.Name, rel.Name),
				rel.EnableTotalCount,
			)
			fields[fieldName] = &graphql.Field{
				Type:    graphql.NewNonNull(connType),
				Args:    args,
				Resolve: r.makeConnectionRelationResolver(obj, rel),
			}
		case metadata.PagingOffset:
			args["paging"] = &graphql.ArgumentConfig{Type: r.limitOffsetPagingInput()}
			fields[fieldName] = &graphql.Field{
				Type:    graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(targetType))),
				Args:    args,
				Resolve: r.makeManyRelationResolver(obj, rel, true),
			}
		default:
			fields[fieldName] = &graphql.Field{
				Type:    graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(targetType))),
				Args:    args,
				Resolve: r.makeManyRelationResolver(obj, rel, false),
			}
		}
	}

	return fields
}

// loaderFor returns the request-scoped loader, or a throwaway one when no
// middleware injected it (library use outside the server).
func (r *Resolver) loaderFor(p graphql.ResolveParams) *loader.Loader {
	if ld, ok := loader.FromContext(p.Context); ok {
		return ld
	}
	return loader.New(r.store)
}

func relationRef(parent metadata.Object, rel metadata.Relation) storage.RelationRef {
	return storage.RelationRef{
		Parent:      parent.Name,
		Name:        rel.StorageName(),
		Target:      rel.Target,
		Cardinality: string(rel.Cardinality),
	}
}

func parentID(p graphql.ResolveParams, obj metadata.Object) (interface{}, error) {
	source, ok := p.Source.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected source type %T resolving %s", p.Source, obj.Name)
	}
	idField, ok := obj.IDField()
	if !ok {
		return nil, fmt.Errorf("object %s has no identifier field", obj.Name)
	}
	id, ok := source[idField.Name]
	if !ok {
		return nil, fmt.Errorf("record of %s is missing its %s field", obj.Name, idField.Name)
	}
	return id, nil
}

func (r *Resolver) makeListResolver(obj metadata.Object) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		sub, err := r.parseSubQuery(obj, p.Args, true)
		if err != nil {
			return nil, err
		}
		records, err := r.store.FetchMany(p.Context, obj.Name, sub)
		if err != nil {
			return nil, err
		}
		r.primeParents(p, obj, records)
		return records, nil
	}
}

func (r *Resolver) makeSingleResolver(obj metadata.Object) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		record, err := r.store.FetchOne(p.Context, obj.Name, p.Args["id"])
		if err != nil {
			return nil, err
		}
		if record == nil {
			return nil, nil
		}
		return record, nil
	}
}

// primeParents announces the produced parent ids to the loader so later
// relation reads flush in one batch.
func (r *Resolver) primeParents(p graphql.ResolveParams, obj metadata.Object, records []storage.Record) {
	ld, ok := loader.FromContext(p.Context)
	if !ok {
		return
	}
	idField, ok := obj.IDField()
	if !ok {
		return
	}
	ids := make([]interface{}, 0, len(records))
	for _, record := range records {
		if id, ok := record[idField.Name]; ok {
			ids = append(ids, id)
		}
	}
	ld.Prime(obj.Name, ids)
}

func (r *Resolver) parseSubQuery(obj metadata.Object, args map[string]interface{}, withWindow bool) (query.SubQuery, error) {
	var sub query.SubQuery

	if raw, ok := args["filter"].(map[string]interface{}); ok {
		filter, err := query.BuildFilter(obj, raw)
		if err != nil {
			return query.SubQuery{}, err
		}
		sub.Filter = filter
	}
	sorts, err := query.ParseSort(obj, args["sorting"])
	if err != nil {
		return query.SubQuery{}, err
	}
	sub.Sort = sorts

	if withWindow {
		window, err := query.ParseLimitOffset(args["paging"], r.defaultLimit)
		if err != nil {
			return query.SubQuery{}, err
		}
		sub.Window = window
	}
	return sub, nil
}

func (r *Resolver) makeOneRelationResolver(parent metadata.Object, rel metadata.Relation) graphql.FieldResolveFn {
	ref := relationRef(parent, rel)
	return func(p graphql.ResolveParams) (interface{}, error) {
		target, err := r.registry.Resolve(rel.Target)
		if err != nil {
			return nil, err
		}
		id, err := parentID(p, parent)
		if err != nil {
			return nil, err
		}
		thunk := r.loaderFor(p).Load(p.Context, parent.Name, id, ref, query.SubQuery{})
		records, err := thunk.Value()
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, nil
		}
		r.primeParents(p, target, records[:1])
		return records[0], nil
	}
}

func (r *Resolver) makeManyRelationResolver(parent metadata.Object, rel metadata.Relation, withWindow bool) graphql.FieldResolveFn {
	ref := relationRef(parent, rel)
	return func(p graphql.ResolveParams) (interface{}, error) {
		target, err := r.registry.Resolve(rel.Target)
		if err != nil {
			return nil, err
		}
		sub, err := r.parseSubQuery(target, p.Args, withWindow)
		if err != nil {
			return nil, err
		}
		id, err := parentID(p, parent)
		if err != nil {
			return nil, err
		}
		thunk := r.loaderFor(p).Load(p.Context, parent.Name, id, ref, sub)
		records, err := thunk.Value()
		if err != nil {
			return nil, err
		}
		// Prime the fetched records so their own relations batch in turn.
		r.primeParents(p, target, records)
		return records, nil
	}
}
