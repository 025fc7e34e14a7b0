// -----------------------------------------------------------------------
// Task - Single unit of work inside one pipeline run
// -----------------------------------------------------------------------

package models

import "time"

// TaskStatus represents the state of a task within a pipeline run
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Task is one node of a pipeline's dependency graph. Tasks are owned
// exclusively by the executor instance running one pipeline invocation and
// are not persisted individually - only the run's aggregate result survives.
type Task struct {
	ID          string                 `json:"id"`
	AgentName   string                 `json:"agent_name"`
	Description string                 `json:"description,omitempty"`
	Inputs      map[string]interface{} `json:"inputs,omitempty"`
	DependsOn   []string               `json:"depends_on,omitempty"`
	Status      TaskStatus             `json:"status"`
	Result      interface{}            `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// NewTask creates a pending task for an agent
func NewTask(id, agentName string, inputs map[string]interface{}, dependsOn []string) *Task {
	if inputs == nil {
		inputs = make(map[string]interface{})
	}
	return &Task{
		ID:        id,
		AgentName: agentName,
		Inputs:    inputs,
		DependsOn: dependsOn,
		Status:    TaskStatusPending,
	}
}

// MarkRunning stamps the task as started
func (t *Task) MarkRunning() {
	t.Status = TaskStatusRunning
	now := time.Now()
	t.StartedAt = &now
}

// MarkCompleted records the agent result
func (t *Task) MarkCompleted(result interface{}) {
	t.Status = TaskStatusCompleted
	t.Result = result
	now := time.Now()
	t.CompletedAt = &now
}

// MarkFailed records the agent error
func (t *Task) MarkFailed(errorMsg string) {
	t.Status = TaskStatusFailed
	t.Error = errorMsg
	now := time.Now()
	t.CompletedAt = &now
}

// DependencyResultKey derives the input key under which a dependency's
// result is injected into dependent tasks.
func DependencyResultKey(depID string) string {
	return depID + "_result"
}
