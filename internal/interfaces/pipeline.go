package interfaces

import (
	"context"

	"github.com/ternarybob/scrutor/internal/models"
)

// ProgressFunc receives one callback per completed task with the stage
// label and the overall completion percentage.
type ProgressFunc func(stage string, percent float64)

// PipelineExecutor runs one document's task graph: computing ready sets,
// executing ready tasks concurrently against the agent registry, and
// propagating failures fail-fast.
type PipelineExecutor interface {
	// Run executes the tasks respecting their dependency order and returns
	// the aggregate results keyed by task id. Any task failure aborts the
	// run. A graph whose ready set empties while tasks remain incomplete
	// fails with a dependency deadlock error instead of hanging.
	Run(ctx context.Context, tasks []*models.Task, stageFor func(taskID string) string, onProgress ProgressFunc) (map[string]interface{}, error)
}
