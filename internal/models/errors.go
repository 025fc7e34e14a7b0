// -----------------------------------------------------------------------
// Error taxonomy for job orchestration
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"strings"
)

// ValidationError reports a malformed job or task definition. Never
// retried; surfaced to the caller immediately.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a validation error for a field
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// DependencyDeadlockError reports a cycle in a task graph: the ready set
// came up empty while tasks remained incomplete. Fatal for the run.
type DependencyDeadlockError struct {
	TaskIDs []string
}

func (e *DependencyDeadlockError) Error() string {
	return fmt.Sprintf("dependency deadlock: tasks %s cannot start because their dependencies never complete",
		strings.Join(e.TaskIDs, ", "))
}

// AgentExecutionError reports a failed agent call for one task. The
// pipeline run aborts unless the caller explicitly retries the task.
type AgentExecutionError struct {
	TaskID    string
	AgentName string
	Cause     error
}

func (e *AgentExecutionError) Error() string {
	return fmt.Sprintf("task %s failed: agent %s: %v", e.TaskID, e.AgentName, e.Cause)
}

func (e *AgentExecutionError) Unwrap() error {
	return e.Cause
}

// TransportError reports a failed write to one client connection. Local to
// the connection; never escalates to the job or pipeline.
type TransportError struct {
	ConnectionID string
	Cause        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure on connection %s: %v", e.ConnectionID, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// UnknownJobError reports an operation against a job id that does not
// exist. Hot-path operations return false instead of this error; it exists
// for paths that must carry a cause.
type UnknownJobError struct {
	JobID string
}

func (e *UnknownJobError) Error() string {
	return fmt.Sprintf("unknown job: %s", e.JobID)
}
