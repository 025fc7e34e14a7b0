// -----------------------------------------------------------------------
// Manager - Job lifecycle: creation, priority queuing, progress, ETA,
// cancellation and manual retry
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

// stageMark tracks when an active job entered its current stage, feeding
// the per-stage duration windows
type stageMark struct {
	stage string
	since time.Time
}

// Manager owns the job lifecycle end to end. It is the single writer of
// Job state: every transition is persisted before its event is emitted.
// The active set and stage marks are guarded by the manager's mutex; the
// priority queue carries its own lock. No other component touches either.
type Manager struct {
	jobStorage      interfaces.JobStorage
	jobLogStorage   interfaces.JobLogStorage
	pipelineStorage interfaces.PipelineStorage
	executor        interfaces.PipelineExecutor
	agents          interfaces.AgentService
	broadcaster     interfaces.StatusBroadcaster
	events          interfaces.EventService
	logger          arbor.ILogger
	config          *common.Config

	queue *PriorityQueue
	stats *JobStatistics

	mu     sync.Mutex
	active map[string]*models.Job
	stages map[string]*stageMark

	// dispatch loop state
	dispatchMu      sync.Mutex
	dispatchRunning bool
	stopCh          chan struct{}
	wg              sync.WaitGroup
}

// NewManager creates the job queue manager. The priority queue shares the
// storage manager's Badger database so queued jobs survive restarts.
func NewManager(storage interfaces.StorageManager, executor interfaces.PipelineExecutor, agents interfaces.AgentService, broadcaster interfaces.StatusBroadcaster, events interfaces.EventService, config *common.Config, logger arbor.ILogger) (*Manager, error) {
	store, ok := storage.DB().(*badgerhold.Store)
	if !ok {
		return nil, fmt.Errorf("storage manager does not expose a badgerhold store")
	}

	queue, err := NewPriorityQueue(store.Badger())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize priority queue: %w", err)
	}

	return &Manager{
		jobStorage:      storage.JobStorage(),
		jobLogStorage:   storage.JobLogStorage(),
		pipelineStorage: storage.PipelineStorage(),
		executor:        executor,
		agents:          agents,
		broadcaster:     broadcaster,
		events:          events,
		logger:          logger,
		config:          config,
		queue:           queue,
		stats:           NewJobStatistics(),
		active:          make(map[string]*models.Job),
		stages:          make(map[string]*stageMark),
	}, nil
}

// CreateJob allocates a job in queued status, persists it, enqueues it and
// makes sure the dispatch loop is running.
func (m *Manager) CreateJob(ctx context.Context, documentID, userID string, priority int, metadata map[string]interface{}) (string, error) {
	if documentID == "" {
		return "", models.NewValidationError("document_id", "document id is required")
	}
	if userID == "" {
		return "", models.NewValidationError("user_id", "user id is required")
	}
	if !models.IsValidPriority(priority) {
		return "", models.NewValidationError("priority", fmt.Sprintf("priority must be %d..%d, got %d", models.PriorityLow, models.PriorityCritical, priority))
	}

	job := models.NewJob(common.NewJobID(), documentID, userID, priority, metadata)
	if pipelineID, ok := job.GetMetadataString("pipeline_id"); ok {
		job.PipelineID = pipelineID
	}

	if err := m.jobStorage.SaveJob(ctx, job); err != nil {
		return "", fmt.Errorf("failed to persist job: %w", err)
	}
	if err := m.queue.Enqueue(job.ID, priority); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	m.logger.Info().
		Str("job_id", job.ID).
		Str("document_id", documentID).
		Str("user_id", userID).
		Int("priority", priority).
		Msg("Job created and queued")

	m.appendJobLog(ctx, job.ID, "info", "", "Job created and queued")
	m.emitJobEvent(ctx, job, interfaces.EventJobCreated)

	m.ensureDispatcher()

	return job.ID, nil
}

// UpdateProgress records a progress step for a job. The first call moves
// the job from queued to processing. Percent is clamped to [0,100] and
// never decreases while the job is non-terminal. Returns false for an
// unknown or already-terminal job.
func (m *Manager) UpdateProgress(ctx context.Context, jobID, stage string, percent float64, message string) bool {
	job, err := m.jobStorage.GetJob(ctx, jobID)
	if err != nil {
		m.logger.Warn().Str("job_id", jobID).Msg("Progress update for unknown job")
		return false
	}
	if job.IsTerminal() {
		return false
	}

	if job.Status == models.JobStatusQueued {
		job.MarkProcessing()
	}

	percent = math.Max(0, math.Min(100, percent))
	if percent > job.ProgressPercentage {
		job.ProgressPercentage = percent
	}
	job.CurrentStage = stage
	job.ProgressMessage = message
	job.EstimatedCompletion = m.estimateCompletion(job)

	if err := m.jobStorage.UpdateJob(ctx, job); err != nil {
		m.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to persist progress update")
		return false
	}

	m.trackStage(jobID, stage)

	m.mu.Lock()
	if _, ok := m.active[jobID]; ok {
		m.active[jobID] = job
	}
	m.mu.Unlock()

	m.appendJobLog(ctx, jobID, "info", stage, fmt.Sprintf("Progress %.0f%%: %s", job.ProgressPercentage, message))

	progress := models.ProgressEvent{
		JobID:      jobID,
		Stage:      stage,
		Percentage: job.ProgressPercentage,
		Message:    message,
		Timestamp:  time.Now(),
	}
	m.broadcaster.Publish(jobID, job.UserID, progress.ToStreamEvent())
	if m.events != nil {
		m.events.Publish(ctx, interfaces.Event{Type: interfaces.EventJobProgress, Payload: progress})
	}

	return true
}

// CompleteJob moves a job to its terminal status and folds its duration
// into the rolling statistics. Returns false for unknown or terminal jobs;
// a cancelled job's late pipeline completion lands here and is dropped.
func (m *Manager) CompleteJob(ctx context.Context, jobID string, results map[string]interface{}, success bool, errorMessage string) bool {
	job, err := m.jobStorage.GetJob(ctx, jobID)
	if err != nil {
		m.logger.Warn().Str("job_id", jobID).Msg("Completion for unknown job")
		return false
	}
	if job.IsTerminal() {
		return false
	}

	if success {
		job.MarkCompleted(results)
	} else {
		job.MarkFailed(errorMessage)
	}

	if err := m.jobStorage.UpdateJob(ctx, job); err != nil {
		m.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to persist job completion")
		return false
	}

	m.mu.Lock()
	delete(m.active, jobID)
	if mark, ok := m.stages[jobID]; ok {
		m.stats.RecordStage(mark.stage, time.Since(mark.since))
		delete(m.stages, jobID)
	}
	m.mu.Unlock()

	m.stats.RecordCompletion(job.Elapsed(), success)

	eventType := interfaces.EventJobCompleted
	level := "info"
	message := "Job completed"
	if !success {
		eventType = interfaces.EventJobFailed
		level = "error"
		message = fmt.Sprintf("Job failed: %s", errorMessage)
	}

	m.logger.Info().
		Str("job_id", jobID).
		Str("status", job.Status.String()).
		Dur("duration", job.Elapsed()).
		Msg(message)

	m.appendJobLog(ctx, jobID, level, job.CurrentStage, message)
	m.emitJobEvent(ctx, job, eventType)

	return true
}

// CancelJob is legal only from queued or processing. A queued job is
// removed from the priority queue and will never dispatch; a processing
// job is marked cancelled but its in-flight pipeline run is not
// interrupted - the run's completion finds the terminal state and is
// dropped.
func (m *Manager) CancelJob(ctx context.Context, jobID, reason string) bool {
	job, err := m.jobStorage.GetJob(ctx, jobID)
	if err != nil {
		return false
	}
	if job.IsTerminal() {
		return false
	}

	if removed, err := m.queue.Remove(jobID); err != nil {
		m.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to remove job from queue during cancel")
	} else if removed {
		m.logger.Debug().Str("job_id", jobID).Msg("Cancelled job removed from queue before dispatch")
	}

	job.MarkCancelled(reason)
	if err := m.jobStorage.UpdateJob(ctx, job); err != nil {
		m.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to persist job cancellation")
		return false
	}

	m.mu.Lock()
	delete(m.active, jobID)
	delete(m.stages, jobID)
	m.mu.Unlock()

	m.stats.RecordCancellation()

	m.logger.Info().Str("job_id", jobID).Str("reason", reason).Msg("Job cancelled")
	m.appendJobLog(ctx, jobID, "warn", job.CurrentStage, fmt.Sprintf("Job cancelled: %s", reason))
	m.emitJobEvent(ctx, job, interfaces.EventJobCancelled)

	return true
}

// RetryFailedTask re-executes one task of a failed job with exponential
// backoff: attempt n waits 2^n seconds first. Manual and single-task only;
// the job itself stays failed until resubmitted.
func (m *Manager) RetryFailedTask(ctx context.Context, jobID, taskID string, maxRetries int) (interface{}, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}

	job, err := m.jobStorage.GetJob(ctx, jobID)
	if err != nil {
		return nil, &models.UnknownJobError{JobID: jobID}
	}
	if job.Status != models.JobStatusFailed {
		return nil, fmt.Errorf("job %s is %s; only failed jobs can retry tasks", jobID, job.Status)
	}

	def, err := m.pipelineFor(ctx, job)
	if err != nil {
		return nil, err
	}

	var spec *models.TaskSpec
	for i := range def.Tasks {
		if def.Tasks[i].ID == taskID {
			spec = &def.Tasks[i]
			break
		}
	}
	if spec == nil {
		return nil, models.NewValidationError("task_id", fmt.Sprintf("pipeline %s has no task %s", def.ID, taskID))
	}

	inputs := make(map[string]interface{}, len(spec.Inputs)+len(spec.DependsOn)+2)
	inputs["document_id"] = job.DocumentID
	inputs["user_id"] = job.UserID
	for k, v := range spec.Inputs {
		inputs[k] = v
	}
	for _, dep := range spec.DependsOn {
		if result, ok := job.Results[dep]; ok {
			inputs[models.DependencyResultKey(dep)] = result
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		wait := time.Duration(1<<uint(attempt)) * time.Second
		m.logger.Info().
			Str("job_id", jobID).
			Str("task_id", taskID).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying failed task")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(wait):
		}

		result, err := m.agents.Execute(ctx, spec.Agent, taskID, inputs)
		if err == nil {
			if job.Results == nil {
				job.Results = make(map[string]interface{})
			}
			job.Results[taskID] = result
			job.RetryCount++
			if err := m.jobStorage.UpdateJob(ctx, job); err != nil {
				m.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to persist retry result")
			}
			m.appendJobLog(ctx, jobID, "info", def.StageFor(taskID), fmt.Sprintf("Task %s succeeded on retry attempt %d", taskID, attempt))
			return result, nil
		}
		lastErr = err
		m.appendJobLog(ctx, jobID, "warn", def.StageFor(taskID), fmt.Sprintf("Retry attempt %d failed: %v", attempt, err))
	}

	return nil, &models.AgentExecutionError{
		TaskID:    taskID,
		AgentName: spec.Agent,
		Cause:     fmt.Errorf("retries exhausted after %d attempts: %w", maxRetries, lastErr),
	}
}

// GetJob returns a job by id
func (m *Manager) GetJob(ctx context.Context, jobID string) (*models.Job, bool) {
	job, err := m.jobStorage.GetJob(ctx, jobID)
	if err != nil {
		return nil, false
	}
	return job, true
}

// ListJobs returns jobs matching the options
func (m *Manager) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, error) {
	return m.jobStorage.ListJobs(ctx, opts)
}

// Stats returns a point-in-time queue snapshot
func (m *Manager) Stats(ctx context.Context) models.QueueStats {
	queued, err := m.queue.CountByPriority()
	if err != nil {
		m.logger.Warn().Err(err).Msg("Failed to count queued jobs")
		queued = map[int]int{}
	}
	total := 0
	for _, n := range queued {
		total += n
	}

	m.mu.Lock()
	activeCount := len(m.active)
	m.mu.Unlock()

	completed, failed, cancelled := m.stats.Counts()

	return models.QueueStats{
		QueuedByPriority: queued,
		QueuedTotal:      total,
		ActiveCount:      activeCount,
		CompletedCount:   completed,
		FailedCount:      failed,
		CancelledCount:   cancelled,
		AverageDuration:  m.stats.AverageDuration(),
		StageAverages:    m.stats.StageAverages(),
		Timestamp:        time.Now(),
	}
}

// estimateCompletion extrapolates remaining time linearly from the current
// run: remaining = elapsed*(100/percent) - elapsed. Unknown (nil) at zero
// percent. Early in a run the historical average floors the estimate,
// which smooths the wild swings of the first few percent.
func (m *Manager) estimateCompletion(job *models.Job) *time.Time {
	if job.ProgressPercentage <= 0 || job.StartedAt == nil {
		return nil
	}

	elapsed := time.Since(*job.StartedAt)
	remaining := time.Duration(float64(elapsed)*(100/job.ProgressPercentage)) - elapsed

	if job.ProgressPercentage < 10 {
		if avg := m.stats.AverageDuration(); avg > 0 && avg-elapsed > remaining {
			remaining = avg - elapsed
		}
	}
	if remaining < 0 {
		remaining = 0
	}

	eta := time.Now().Add(remaining)
	return &eta
}

// trackStage records the per-stage duration when an active job changes
// stage
func (m *Manager) trackStage(jobID, stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mark, ok := m.stages[jobID]
	if !ok {
		m.stages[jobID] = &stageMark{stage: stage, since: time.Now()}
		return
	}
	if mark.stage != stage {
		m.stats.RecordStage(mark.stage, time.Since(mark.since))
		mark.stage = stage
		mark.since = time.Now()
	}
}

// pipelineFor resolves a job's pipeline definition, falling back to the
// configured default
func (m *Manager) pipelineFor(ctx context.Context, job *models.Job) (*models.PipelineDefinition, error) {
	pipelineID := job.PipelineID
	if pipelineID == "" {
		pipelineID = m.config.Pipelines.Default
	}

	def, err := m.pipelineStorage.GetPipeline(ctx, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("pipeline %s not found: %w", pipelineID, err)
	}
	return def, nil
}

// emitJobEvent pushes a job_update to the broadcaster and the event bus
func (m *Manager) emitJobEvent(ctx context.Context, job *models.Job, eventType interfaces.EventType) {
	event := models.NewStreamEvent(models.StreamEventJobUpdate, job.Snapshot())
	m.broadcaster.Publish(job.ID, job.UserID, event)
	if m.events != nil {
		m.events.Publish(ctx, interfaces.Event{Type: eventType, Payload: job.Snapshot()})
	}
}

// appendJobLog writes one per-job log line; failures are logged and
// swallowed so logging never blocks a transition
func (m *Manager) appendJobLog(ctx context.Context, jobID, level, stage, message string) {
	if m.jobLogStorage == nil {
		return
	}
	entry := &models.JobLogEntry{
		JobID:     jobID,
		Level:     level,
		Stage:     stage,
		Message:   message,
		Timestamp: time.Now(),
	}
	if err := m.jobLogStorage.AppendLog(ctx, entry); err != nil {
		m.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to append job log")
	}
}

var _ interfaces.JobQueueManager = (*Manager)(nil)
