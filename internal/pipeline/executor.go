// -----------------------------------------------------------------------
// Executor - Dependency-aware task graph execution for one pipeline run
// -----------------------------------------------------------------------

package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

// Executor runs one document's task graph: it repeatedly computes the set
// of tasks whose dependencies have all completed, executes that set
// concurrently against the agent registry, and injects each dependency's
// result into its dependents' inputs.
//
// Failure policy is fail-fast: any task failure aborts the run and the
// caller sees no partial results. An empty ready set with tasks still
// incomplete means the graph has a cycle; the run fails with a dependency
// deadlock error rather than hanging.
type Executor struct {
	agentService interfaces.AgentService
	logger       arbor.ILogger
}

// NewExecutor creates a pipeline executor backed by the agent registry
func NewExecutor(agentService interfaces.AgentService, logger arbor.ILogger) interfaces.PipelineExecutor {
	return &Executor{
		agentService: agentService,
		logger:       logger,
	}
}

// taskOutcome carries one task's result across the batch WaitGroup
type taskOutcome struct {
	task   *models.Task
	result interface{}
	err    error
}

// Run executes the tasks respecting dependency order and returns the
// aggregate results keyed by task id.
//
// Cancellation is cooperative: ctx is checked between ready-set batches
// only. An in-flight agent call is never interrupted.
func (e *Executor) Run(ctx context.Context, tasks []*models.Task, stageFor func(taskID string) string, onProgress interfaces.ProgressFunc) (map[string]interface{}, error) {
	if err := Validate(tasks); err != nil {
		return nil, err
	}
	if stageFor == nil {
		stageFor = defaultStage
	}

	total := len(tasks)
	completed := make(map[string]interface{}, total)

	e.logger.Debug().Int("task_count", total).Msg("Starting pipeline run")

	// Each batch completes at least one task, so total iterations bound
	// the loop even on malformed graphs.
	for iteration := 0; len(completed) < total; iteration++ {
		if iteration > total {
			return nil, &models.DependencyDeadlockError{TaskIDs: incompleteIDs(tasks)}
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("pipeline run cancelled: %w", ctx.Err())
		default:
		}

		ready := readySet(tasks, completed)
		if len(ready) == 0 {
			stuck := incompleteIDs(tasks)
			e.logger.Warn().Strs("task_ids", stuck).Msg("Pipeline deadlocked: no runnable tasks remain")
			return nil, &models.DependencyDeadlockError{TaskIDs: stuck}
		}

		e.logger.Debug().
			Int("batch_size", len(ready)).
			Int("completed", len(completed)).
			Int("total", total).
			Msg("Executing ready set")

		outcomes := make([]taskOutcome, len(ready))
		var wg sync.WaitGroup
		for i, task := range ready {
			task.MarkRunning()
			wg.Add(1)
			go func(i int, task *models.Task) {
				defer wg.Done()
				result, err := e.executeTask(ctx, task, completed)
				outcomes[i] = taskOutcome{task: task, result: result, err: err}
			}(i, task)
		}
		wg.Wait()

		// Mark successes first so progress reflects the whole batch even
		// when a sibling failed
		var failed *taskOutcome
		for i := range outcomes {
			o := &outcomes[i]
			if o.err != nil {
				o.task.MarkFailed(o.err.Error())
				if failed == nil {
					failed = o
				}
				continue
			}
			o.task.MarkCompleted(o.result)
			completed[o.task.ID] = o.result
		}

		for i := range outcomes {
			o := &outcomes[i]
			if o.err != nil {
				continue
			}
			percent := float64(len(completed)) / float64(total) * 100
			if onProgress != nil {
				onProgress(stageFor(o.task.ID), percent)
			}
		}

		if failed != nil {
			e.logger.Warn().
				Str("task_id", failed.task.ID).
				Str("agent", failed.task.AgentName).
				Err(failed.err).
				Msg("Pipeline run aborted by task failure")
			return nil, &models.AgentExecutionError{
				TaskID:    failed.task.ID,
				AgentName: failed.task.AgentName,
				Cause:     failed.err,
			}
		}
	}

	e.logger.Debug().Int("task_count", total).Msg("Pipeline run completed")

	results := make(map[string]interface{}, total)
	for id, result := range completed {
		results[id] = result
	}
	return results, nil
}

// executeTask invokes the task's agent with its declared inputs plus every
// dependency result under "{depId}_result"
func (e *Executor) executeTask(ctx context.Context, task *models.Task, completed map[string]interface{}) (interface{}, error) {
	inputs := make(map[string]interface{}, len(task.Inputs)+len(task.DependsOn))
	for k, v := range task.Inputs {
		inputs[k] = v
	}
	for _, depID := range task.DependsOn {
		inputs[models.DependencyResultKey(depID)] = completed[depID]
	}

	return e.agentService.Execute(ctx, task.AgentName, task.ID, inputs)
}

// Validate pre-flights a task set: ids must be unique and non-empty, every
// agent must be named, and every dependency must reference a task inside
// the same set.
func Validate(tasks []*models.Task) error {
	if len(tasks) == 0 {
		return models.NewValidationError("tasks", "pipeline has no tasks")
	}

	ids := make(map[string]bool, len(tasks))
	for _, task := range tasks {
		if task.ID == "" {
			return models.NewValidationError("task.id", "task id is required")
		}
		if task.AgentName == "" {
			return models.NewValidationError("task.agent_name", fmt.Sprintf("task %s has no agent", task.ID))
		}
		if ids[task.ID] {
			return models.NewValidationError("task.id", fmt.Sprintf("duplicate task id: %s", task.ID))
		}
		ids[task.ID] = true
	}

	for _, task := range tasks {
		for _, dep := range task.DependsOn {
			if !ids[dep] {
				return models.NewValidationError("task.depends_on", fmt.Sprintf("task %s depends on unknown task: %s", task.ID, dep))
			}
		}
	}

	return nil
}

// readySet returns pending tasks whose entire dependency set has completed
func readySet(tasks []*models.Task, completed map[string]interface{}) []*models.Task {
	var ready []*models.Task
	for _, task := range tasks {
		if task.Status != models.TaskStatusPending {
			continue
		}
		runnable := true
		for _, dep := range task.DependsOn {
			if _, ok := completed[dep]; !ok {
				runnable = false
				break
			}
		}
		if runnable {
			ready = append(ready, task)
		}
	}
	return ready
}

func incompleteIDs(tasks []*models.Task) []string {
	var ids []string
	for _, task := range tasks {
		if task.Status != models.TaskStatusCompleted {
			ids = append(ids, task.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func defaultStage(taskID string) string {
	return taskID
}
