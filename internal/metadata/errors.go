package metadata

import "fmt"

// DuplicateRegistrationError reports a second registration of the same
// object name. Registration order is startup-only, so this is fatal.
type DuplicateRegistrationError struct {
	Name string
}

func (e *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("object %q is already registered", e.Name)
}

// UnknownTypeError reports a lookup of an object name that was never
// registered, including unresolvable relation targets.
type UnknownTypeError struct {
	Name string
	// Referrer names the relation that pointed at the missing type, when the
	// lookup came from target validation.
	Referrer string
}

func (e *UnknownTypeError) Error() string {
	if e.Referrer != "" {
		return fmt.Sprintf("unknown object type %q (referenced by %s)", e.Name, e.Referrer)
	}
	return fmt.Sprintf("unknown object type %q", e.Name)
}
