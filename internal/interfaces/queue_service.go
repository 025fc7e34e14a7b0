package interfaces

import (
	"context"

	"github.com/ternarybob/scrutor/internal/models"
)

// JobQueueManager owns the full job lifecycle: creation, priority queuing,
// progress/ETA tracking, retry, cancellation, and dispatch.
//
// Hot-path operations (UpdateProgress, CompleteJob, CancelJob) return a
// boolean rather than an error for unknown or terminal jobs.
type JobQueueManager interface {
	// CreateJob allocates a job in queued status, persists it, inserts it
	// into the priority queue and (re)starts the dispatch loop if idle.
	// Priority must fall in bands 1..4.
	CreateJob(ctx context.Context, documentID, userID string, priority int, metadata map[string]interface{}) (string, error)

	// UpdateProgress transitions queued->processing on first call, clamps
	// percent to [0,100], keeps it monotonic, recomputes the ETA, persists
	// and emits a progress event. Returns false for unknown/terminal jobs.
	UpdateProgress(ctx context.Context, jobID, stage string, percent float64, message string) bool

	// CompleteJob sets the terminal status, folds the duration into the
	// rolling statistics and emits a final event. Returns false for
	// unknown/terminal jobs.
	CompleteJob(ctx context.Context, jobID string, results map[string]interface{}, success bool, errorMessage string) bool

	// CancelJob is legal only from queued or processing; removes the job
	// from the queue and active set. Returns false otherwise. Cancelling a
	// processing job only prevents future dispatch - an in-flight pipeline
	// run is not interrupted.
	CancelJob(ctx context.Context, jobID, reason string) bool

	// RetryFailedTask re-executes a single failed task of a failed job with
	// exponential backoff (2^attempt seconds), capped at maxRetries.
	// Manual only - never triggered automatically.
	RetryFailedTask(ctx context.Context, jobID, taskID string, maxRetries int) (interface{}, error)

	// GetJob returns a job by id
	GetJob(ctx context.Context, jobID string) (*models.Job, bool)

	// ListJobs returns jobs matching the options
	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.Job, error)

	// Stats returns a point-in-time queue snapshot
	Stats(ctx context.Context) models.QueueStats

	// Stop halts the dispatch loop and waits for it to exit
	Stop()
}
