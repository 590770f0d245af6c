package metadata

import (
	"fmt"
	"sort"
)

// Registry collects domain object metadata during startup. Register calls
// happen before the schema is synthesized; Freeze produces the immutable
// snapshot that all request-time code reads without locking.
type Registry struct {
	objects map[string]Object
	order   []string
	frozen  bool
}

// NewRegistry returns an empty registry ready for registration.
func NewRegistry() *Registry {
	return &Registry{objects: make(map[string]Object)}
}

// Register adds an object to the registry. It fails with
// DuplicateRegistrationError when the name was registered before, and rejects
// structurally invalid metadata (duplicate field names, bad cardinality).
func (r *Registry) Register(obj Object) error {
	if r.frozen {
		return fmt.Errorf("registry is frozen; register objects before schema synthesis")
	}
	if err := obj.validate(); err != nil {
		return err
	}
	if _, exists := r.objects[obj.Name]; exists {
		return &DuplicateRegistrationError{Name: obj.Name}
	}
	for i := range obj.Relations {
		if obj.Relations[i].Paging == "" {
			obj.Relations[i].Paging = PagingNone
		}
	}
	r.objects[obj.Name] = obj
	r.order = append(r.order, obj.Name)
	return nil
}

// Resolve looks up an object by name, failing with UnknownTypeError when the
// name was never registered.
func (r *Registry) Resolve(name string) (Object, error) {
	obj, ok := r.objects[name]
	if !ok {
		return Object{}, &UnknownTypeError{Name: name}
	}
	return obj, nil
}

// Objects returns all registered objects in registration order.
func (r *Registry) Objects() []Object {
	out := make([]Object, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.objects[name])
	}
	return out
}

// Validate confirms every relation target resolves to a registered object.
// Synthesis must not proceed when this fails.
func (r *Registry) Validate() error {
	names := make([]string, 0, len(r.objects))
	for name := range r.objects {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		obj := r.objects[name]
		for _, rel := range obj.Relations {
			if _, ok := r.objects[rel.Target]; !ok {
				return &UnknownTypeError{
					Name:     rel.Target,
					Referrer: fmt.Sprintf("%s.%s", obj.Name, rel.Name),
				}
			}
		}
	}
	return nil
}

// Freeze validates the registry and marks it immutable. The returned registry
// is the same instance; freezing is idempotent.
func (r *Registry) Freeze() (*Registry, error) {
	if r.frozen {
		return r, nil
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	r.frozen = true
	return r, nil
}

// Frozen reports whether the registry has been frozen.
func (r *Registry) Frozen() bool {
	return r.frozen
}
