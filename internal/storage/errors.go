package storage

import "fmt"

// RelationWriteError reports a failed association write. Writes are atomic
// per call: when any related id is invalid the whole call fails and no
// association is left behind.
type RelationWriteError struct {
	Parent   string
	Relation string
	Reason   string
	Err      error
}

func (e *RelationWriteError) Error() string {
	msg := fmt.Sprintf("failed to write relation %s on %s", e.Relation, e.Parent)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RelationWriteError) Unwrap() error {
	return e.Err
}

// NotFoundError reports a missing record for a by-id operation.
type NotFoundError struct {
	Object string
	ID     interface{}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id %v not found", e.Object, e.ID)
}
