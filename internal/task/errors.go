package task

import "fmt"

// The error taxonomy is deliberately small: every failure a caller can
// trigger is one of these four kinds, and the HTTP layer maps on the kind
// alone (NotFoundError → 404, everything else → 400).

// ValidationError reports a malformed or out-of-range input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports an operation targeting an unknown task ID.
type NotFoundError struct {
	ID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("task %d not found", e.ID)
}

// DependencyNotFoundError reports a dependency reference to a task that does
// not exist, or a self-reference on create.
type DependencyNotFoundError struct {
	ID int64
}

func (e *DependencyNotFoundError) Error() string {
	return fmt.Sprintf("dependency task %d not found", e.ID)
}

// BulkLimitExceededError reports a bulk create batch over the limit.
// The whole batch is rejected before anything is created.
type BulkLimitExceededError struct {
	Count int
	Limit int
}

func (e *BulkLimitExceededError) Error() string {
	return fmt.Sprintf("maximum %d tasks per bulk operation (got %d)", e.Limit, e.Count)
}

// BulkItemError reports a mid-batch creation failure. Items before Index
// were already created and remain in the store; CreatedIDs lists them.
type BulkItemError struct {
	Index      int
	CreatedIDs []int64
	Err        error
}

func (e *BulkItemError) Error() string {
	return fmt.Sprintf("bulk item %d: %v (%d earlier items created)", e.Index, e.Err, len(e.CreatedIDs))
}

func (e *BulkItemError) Unwrap() error { return e.Err }
