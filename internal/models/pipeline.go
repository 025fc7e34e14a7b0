// -----------------------------------------------------------------------
// PipelineDefinition - Configurable task graph for document analysis
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// TaskSpec declares one task of a pipeline definition. The executor turns
// each spec into a runtime Task when the pipeline runs for a document.
type TaskSpec struct {
	ID          string                 `json:"id" toml:"id" yaml:"id"`
	Agent       string                 `json:"agent" toml:"agent" yaml:"agent"`
	Description string                 `json:"description,omitempty" toml:"description,omitempty" yaml:"description,omitempty"`
	Inputs      map[string]interface{} `json:"inputs,omitempty" toml:"inputs,omitempty" yaml:"inputs,omitempty"`
	DependsOn   []string               `json:"depends_on,omitempty" toml:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// PipelineDefinition represents a configurable analysis pipeline: a task
// graph plus the stage labels used for progress reporting. Definitions are
// loaded from TOML/YAML files at startup and editable through the API.
//
// StageLabels maps task ids to the human-facing stage name shown in
// progress events (e.g. "ocr" -> "OCR"). It is pure configuration data;
// unlisted tasks fall back to their uppercased id.
type PipelineDefinition struct {
	ID          string            `json:"id" toml:"id" yaml:"id" badgerhold:"key"`
	Name        string            `json:"name" toml:"name" yaml:"name"`
	Description string            `json:"description,omitempty" toml:"description,omitempty" yaml:"description,omitempty"`
	Tasks       []TaskSpec        `json:"tasks" toml:"tasks" yaml:"tasks"`
	StageLabels map[string]string `json:"stage_labels,omitempty" toml:"stage_labels,omitempty" yaml:"stage_labels,omitempty"`
	Schedule    string            `json:"schedule,omitempty" toml:"schedule,omitempty" yaml:"schedule,omitempty"`
	Enabled     bool              `json:"enabled" toml:"enabled" yaml:"enabled"`
	AutoStart   bool              `json:"auto_start" toml:"auto_start" yaml:"auto_start"`
	CreatedAt   time.Time         `json:"created_at" toml:"-" yaml:"-"`
	UpdatedAt   time.Time         `json:"updated_at" toml:"-" yaml:"-"`
}

// Validate validates the pipeline definition. Task ids must be unique and
// every dependency must reference a task declared in the same definition.
// Schedule is optional; when present it must parse as a cron expression.
func (p *PipelineDefinition) Validate() error {
	if p.ID == "" {
		return errors.New("pipeline definition ID is required")
	}
	if p.Name == "" {
		return errors.New("pipeline definition name is required")
	}
	if len(p.Tasks) == 0 {
		return errors.New("pipeline definition must have at least one task")
	}

	seen := make(map[string]bool, len(p.Tasks))
	for i, task := range p.Tasks {
		if task.ID == "" {
			return fmt.Errorf("task %d: id is required", i)
		}
		if task.Agent == "" {
			return fmt.Errorf("task %s: agent is required", task.ID)
		}
		if seen[task.ID] {
			return fmt.Errorf("duplicate task id: %s", task.ID)
		}
		seen[task.ID] = true
	}

	for _, task := range p.Tasks {
		for _, dep := range task.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("task %s depends on unknown task: %s", task.ID, dep)
			}
			if dep == task.ID {
				return fmt.Errorf("task %s depends on itself", task.ID)
			}
		}
	}

	if p.Schedule != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(p.Schedule); err != nil {
			return fmt.Errorf("invalid cron schedule '%s': %w", p.Schedule, err)
		}
	}

	return nil
}

// StageFor resolves the progress stage label for a task id
func (p *PipelineDefinition) StageFor(taskID string) string {
	if label, ok := p.StageLabels[taskID]; ok {
		return label
	}
	return defaultStageLabel(taskID)
}

// BuildTasks materializes runtime tasks from the definition's specs,
// merging base inputs (document id, user id etc.) into every task.
func (p *PipelineDefinition) BuildTasks(baseInputs map[string]interface{}) []*Task {
	tasks := make([]*Task, 0, len(p.Tasks))
	for _, spec := range p.Tasks {
		inputs := make(map[string]interface{}, len(spec.Inputs)+len(baseInputs))
		for k, v := range baseInputs {
			inputs[k] = v
		}
		for k, v := range spec.Inputs {
			inputs[k] = v
		}
		task := NewTask(spec.ID, spec.Agent, inputs, spec.DependsOn)
		task.Description = spec.Description
		tasks = append(tasks, task)
	}
	return tasks
}

// MarshalTasks serializes the task specs to a JSON string for storage
func (p *PipelineDefinition) MarshalTasks() (string, error) {
	data, err := json.Marshal(p.Tasks)
	if err != nil {
		return "", fmt.Errorf("failed to marshal tasks: %w", err)
	}
	return string(data), nil
}

// UnmarshalTasks deserializes the task specs JSON string from storage
func (p *PipelineDefinition) UnmarshalTasks(data string) error {
	if err := json.Unmarshal([]byte(data), &p.Tasks); err != nil {
		return fmt.Errorf("failed to unmarshal tasks: %w", err)
	}
	return nil
}

func defaultStageLabel(taskID string) string {
	label := make([]rune, 0, len(taskID))
	for _, r := range taskID {
		if r >= 'a' && r <= 'z' {
			r = r - 'a' + 'A'
		}
		label = append(label, r)
	}
	return string(label)
}
