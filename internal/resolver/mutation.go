package resolver

import (
	"fmt"

	"github.com/graphql-go/graphql"

	"metagql/internal/metadata"
	"metagql/internal/naming"
	"metagql/internal/storage"
)

func (r *Resolver) addCrudMutations(fields graphql.Fields, obj metadata.Object, names claims) error {
	objType := r.objectType(obj)

	// An object whose only field is its identifier has nothing a create or
	// update input could carry, and GraphQL rejects empty input objects, so
	// those two mutations are omitted. Delete still applies.
	if hasWritableFields(obj) {
		createName := naming.CreateMutationName(obj.Name)
		if err := names.claim(createName, obj.Name); err != nil {
			return err
		}
		fields[createName] = &graphql.Field{
			Type: graphql.NewNonNull(objType),
			Args: graphql.FieldConfigArgument{
				"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(r.createInput(obj))},
			},
			Resolve: r.makeCreateResolver(obj),
		}

		updateName := naming.UpdateMutationName(obj.Name)
		if err := names.claim(updateName, obj.Name); err != nil {
			return err
		}
		fields[updateName] = &graphql.Field{
			Type: graphql.NewNonNull(objType),
			Args: graphql.FieldConfigArgument{
				"id":     &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				"update": &graphql.ArgumentConfig{Type: graphql.NewNonNull(r.updateInput(obj))},
			},
			Resolve: r.makeUpdateResolver(obj),
		}
	}

	deleteName := naming.DeleteMutationName(obj.Name)
	if err := names.claim(deleteName, obj.Name); err != nil {
		return err
	}
	fields[deleteName] = &graphql.Field{
		Type: graphql.NewNonNull(objType),
		Args: graphql.FieldConfigArgument{
			"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
		},
		Resolve: r.makeDeleteResolver(obj),
	}
	return nil
}

// addRelationMutations synthesizes set/add/remove mutations per relation.
// A disabled flag omits the mutation from the schema entirely; the dispatcher
// re-checks the flag anyway in case a caller reaches it another way.
func (r *Resolver) addRelationMutations(fields graphql.Fields, obj metadata.Object, names claims) error {
	objType := r.objectType(obj)

	for _, rel := range obj.Relations {
		rel := rel
		source := obj.Name + "." + rel.Name

		if !rel.DisableUpdate {
			if rel.Cardinality == metadata.CardinalityOne {
				name := naming.SetRelationMutationName(obj.Name, rel.Name)
				if err := names.claim(name, source); err != nil {
					return err
				}
				fields[name] = &graphql.Field{
					Type: graphql.NewNonNull(objType),
					Args: graphql.FieldConfigArgument{
						"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(r.relationInputType())},
					},
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						id, relatedID, err := relationInputArgs(p.Args)
						if err != nil {
							return nil, err
						}
						return r.dispatcher.SetRelation(p.Context, obj.Name, rel.Name, id, relatedID)
					},
				}
			} else {
				name := naming.AddRelationsMutationName(obj.Name, rel.Name)
				if err := names.claim(name, source); err != nil {
					return err
				}
				fields[name] = &graphql.Field{
					Type: graphql.NewNonNull(objType),
					Args: graphql.FieldConfigArgument{
						"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(r.relationsInputType())},
					},
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						id, relatedIDs, err := relationsInputArgs(p.Args)
						if err != nil {
							return nil, err
						}
						return r.dispatcher.AddRelations(p.Context, obj.Name, rel.Name, id, relatedIDs)
					},
				}
			}
		}

		if !rel.DisableRemove {
			name := naming.RemoveRelationMutationName(obj.Name, rel.Name)
			if err := names.claim(name, source); err != nil {
				return err
			}
			if rel.Cardinality == metadata.CardinalityOne {
				fields[name] = &graphql.Field{
					Type: graphql.NewNonNull(objType),
					Args: graphql.FieldConfigArgument{
						"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(r.relationInputType())},
					},
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						id, _, err := relationInputArgs(p.Args)
						if err != nil {
							return nil, err
						}
						// Clearing a one relation detaches whatever is set.
						return r.dispatcher.RemoveRelations(p.Context, obj.Name, rel.Name, id, nil)
					},
				}
			} else {
				fields[name] = &graphql.Field{
					Type: graphql.NewNonNull(objType),
					Args: graphql.FieldConfigArgument{
						"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(r.relationsInputType())},
					},
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						id, relatedIDs, err := relationsInputArgs(p.Args)
						if err != nil {
							return nil, err
						}
						return r.dispatcher.RemoveRelations(p.Context, obj.Name, rel.Name, id, relatedIDs)
					},
				}
			}
		}
	}
	return nil
}

func relationInputArgs(args map[string]interface{}) (id, relatedID interface{}, err error) {
	input, ok := args["input"].(map[string]interface{})
	if !ok {
		return nil, nil, fmt.Errorf("input must be an object")
	}
	return input["id"], input["relationId"], nil
}

func relationsInputArgs(args map[string]interface{}) (id interface{}, relatedIDs []interface{}, err error) {
	input, ok := args["input"].(map[string]interface{})
	if !ok {
		return nil, nil, fmt.Errorf("input must be an object")
	}
	raw, ok := input["relationIds"].([]interface{})
	if !ok {
		return nil, nil, fmt.Errorf("relationIds must be a list")
	}
	return input["id"], raw, nil
}

// hasWritableFields reports whether obj carries any non-identifier field.
func hasWritableFields(obj metadata.Object) bool {
	idField, _ := obj.IDField()
	for _, f := range obj.Fields {
		if f.Name != idField.Name {
			return true
		}
	}
	return false
}

// createInput builds Create<Object>Input: every non-identifier field,
// required unless nullable.
func (r *Resolver) createInput(obj metadata.Object) *graphql.InputObject {
	typeName := "Create" + naming.TypeName(obj.Name) + "Input"

	r.mu.RLock()
	cached, ok := r.createInputCache[typeName]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	idField, _ := obj.IDField()
	fields := graphql.InputObjectConfigFieldMap{}
	for _, f := range obj.Fields {
		if f.Name == idField.Name {
			continue
		}
		var fieldType graphql.Input = scalarForFieldType(f.Type)
		if !f.Nullable {
			fieldType = graphql.NewNonNull(fieldType)
		}
		fields[naming.FieldName(f.Name)] = &graphql.InputObjectFieldConfig{Type: fieldType}
	}

	input := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   typeName,
		Fields: fields,
	})

	r.mu.Lock()
	if cached, ok := r.createInputCache[typeName]; ok {
		r.mu.Unlock()
		return cached
	}
	r.createInputCache[typeName] = input
	r.mu.Unlock()

	return input
}

// updateInput builds Update<Object>Input: every non-identifier field,
// all optional.
func (r *Resolver) updateInput(obj metadata.Object) *graphql.InputObject {
	typeName := "Update" + naming.TypeName(obj.Name) + "Input"

	r.mu.RLock()
	cached, ok := r.updateInputCache[typeName]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	idField, _ := obj.IDField()
	fields := graphql.InputObjectConfigFieldMap{}
	for _, f := range obj.Fields {
		if f.Name == idField.Name {
			continue
		}
		fields[naming.FieldName(f.Name)] = &graphql.InputObjectFieldConfig{
			Type: scalarForFieldType(f.Type),
		}
	}

	input := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   typeName,
		Fields: fields,
	})

	r.mu.Lock()
	if cached, ok := r.updateInputCache[typeName]; ok {
		r.mu.Unlock()
		return cached
	}
	r.updateInputCache[typeName] = input
	r.mu.Unlock()

	return input
}

func recordFromInput(obj metadata.Object, input map[string]interface{}) storage.Record {
	record := storage.Record{}
	for _, f := range obj.Fields {
		if v, ok := input[naming.FieldName(f.Name)]; ok {
			record[f.Name] = v
		}
	}
	return record
}

func (r *Resolver) makeCreateResolver(obj metadata.Object) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		input, ok := p.Args["input"].(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("input must be an object")
		}
		return r.store.CreateOne(p.Context, obj.Name, recordFromInput(obj, input))
	}
}

func (r *Resolver) makeUpdateResolver(obj metadata.Object) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		update, ok := p.Args["update"].(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("update must be an object")
		}
		return r.store.UpdateOne(p.Context, obj.Name, p.Args["id"], recordFromInput(obj, update))
	}
}

func (r *Resolver) makeDeleteResolver(obj metadata.Object) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		return r.store.DeleteOne(p.Context, obj.Name, p.Args["id"])
	}
}
