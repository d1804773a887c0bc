package core

import "fmt"

// ValidationError reports a memory item field that violates an invariant.
// It is raised at construction/classification time only; retrieval and
// compression operate on already-valid items.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// NotFoundError reports a session or item id absent from its container.
// Batch operations skip-and-continue on missing ids; only direct single
// lookups return this error.
type NotFoundError struct {
	Kind string // "session" or "memory"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// TriggerEvaluationError reports malformed compression configuration.
// It is returned at config load time, never mid-pass.
type TriggerEvaluationError struct {
	Field   string
	Message string
}

func (e *TriggerEvaluationError) Error() string {
	return fmt.Sprintf("invalid compression config %s: %s", e.Field, e.Message)
}
