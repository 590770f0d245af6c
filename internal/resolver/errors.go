package resolver

import "fmt"

// SchemaConflictError reports two metadata declarations synthesizing the same
// schema member name. Synthesis fails as a whole; a schema with a silently
// dropped field would be worse than no schema.
type SchemaConflictError struct {
	Name   string // conflicting field, type, or mutation name
	First  string // declaration that claimed the name, as "Object" or "Object.relation"
	Second string // declaration that collided with it
}

func (e *SchemaConflictError) Error() string {
	return fmt.Sprintf("schema conflict: %s and %s both synthesize %q", e.First, e.Second, e.Name)
}
