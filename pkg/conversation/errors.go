package conversation

import "fmt"

// NotFoundError is returned when an operation references a message id that
// is not present in the store.
type NotFoundError struct {
	ID NodeID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("message %s not found", e.ID)
}

// InvalidParentError is returned when a create or append would violate graph
// integrity by pointing at a parent that does not exist.
type InvalidParentError struct {
	ParentID NodeID
}

func (e *InvalidParentError) Error() string {
	return fmt.Sprintf("parent %s does not exist", e.ParentID)
}

// CorruptDataError is returned by the persistence codec when a loaded
// document fails referential-integrity checks. It is never produced by
// in-memory operations, which maintain integrity by construction.
type CorruptDataError struct {
	Reason string
}

func (e *CorruptDataError) Error() string {
	return fmt.Sprintf("corrupt conversation data: %s", e.Reason)
}
