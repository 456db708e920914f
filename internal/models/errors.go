package models

import "fmt"

// ConflictError indicates a pending or running job already exists for a
// source. Callers should treat it as "already in progress", not as a failure.
type ConflictError struct {
	SourceID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("scrape job already pending or running for source %s", e.SourceID)
}

// InvalidStateError indicates a state transition was attempted from the wrong
// state. This is always a programming or race error and must be logged loudly.
type InvalidStateError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid %s transition for %s: %s -> %s", e.Entity, e.ID, e.From, e.To)
}

// ValidationError indicates missing or malformed fields on a create call.
// Surfaced directly to the caller for correction; no retry semantics.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// RetryBudgetExhaustedError indicates a development workflow hit its
// maxTestRetries ceiling. Terminal for the workflow instance.
type RetryBudgetExhaustedError struct {
	RequestID string
	Retries   int
}

func (e *RetryBudgetExhaustedError) Error() string {
	return fmt.Sprintf("development request %s exhausted retry budget (%d test attempts)", e.RequestID, e.Retries)
}

// NotFoundError indicates a referenced record does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}
