// -----------------------------------------------------------------------
// Dispatcher - Background loop popping the priority queue into pipeline
// runs
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/scrutor/internal/common"
)

// drainTimeout is how long the dispatch loop idles on an empty queue
// before exiting. CreateJob restarts an exited loop, so draining is cheap
// and keeps an idle service from spinning.
const drainTimeout = 60 * time.Second

// ensureDispatcher starts the dispatch loop if it is not running. Called
// on startup and from every CreateJob so the loop is resumable after a
// drain exit.
func (m *Manager) ensureDispatcher() {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	if m.dispatchRunning {
		return
	}
	m.dispatchRunning = true
	m.stopCh = make(chan struct{})

	m.wg.Add(1)
	stopCh := m.stopCh
	common.SafeGo(m.logger, "queue.dispatch", func() {
		defer m.wg.Done()
		m.dispatchLoop(stopCh)
	})

	m.logger.Debug().Msg("Dispatch loop started")
}

// Start launches the dispatch loop explicitly (app wiring calls this once;
// afterwards CreateJob keeps it alive)
func (m *Manager) Start() {
	m.ensureDispatcher()
}

// Stop halts the dispatch loop and waits for it to exit. In-flight
// pipeline runs are not interrupted; their completions persist normally.
func (m *Manager) Stop() {
	m.dispatchMu.Lock()
	if !m.dispatchRunning {
		m.dispatchMu.Unlock()
		return
	}
	close(m.stopCh)
	m.dispatchMu.Unlock()

	m.wg.Wait()
	m.logger.Debug().Msg("Dispatch loop stopped")
}

// dispatchLoop pops the highest-priority job and launches its pipeline
// run, bounded by the configured concurrency. An empty queue idles at the
// poll interval and the loop exits after drainTimeout without work.
func (m *Manager) dispatchLoop(stopCh <-chan struct{}) {
	defer func() {
		m.dispatchMu.Lock()
		m.dispatchRunning = false
		m.dispatchMu.Unlock()
	}()

	pollInterval := 500 * time.Millisecond
	if d, err := time.ParseDuration(m.config.Queue.PollInterval); err == nil && d > 0 {
		pollInterval = d
	}

	concurrency := m.config.Queue.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	sem := make(chan struct{}, concurrency)

	idleSince := time.Now()
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		jobID, _, err := m.queue.Dequeue()
		if err != nil {
			if err != ErrQueueEmpty {
				m.logger.Error().Err(err).Msg("Queue dequeue failed")
			}
			if time.Since(idleSince) > drainTimeout {
				m.logger.Debug().Msg("Queue drained, dispatch loop exiting")
				return
			}
			select {
			case <-stopCh:
				return
			case <-time.After(pollInterval):
			}
			continue
		}
		idleSince = time.Now()

		// Claim a concurrency slot before launching the run
		select {
		case <-stopCh:
			// Shutting down with a popped job: put it back so it is not lost
			if job, ok := m.GetJob(context.Background(), jobID); ok && !job.IsTerminal() {
				if err := m.queue.Enqueue(jobID, job.Priority); err != nil {
					m.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to requeue job during shutdown")
				}
			}
			return
		case sem <- struct{}{}:
		}

		id := jobID
		m.wg.Add(1)
		common.SafeGo(m.logger, "queue.runJob", func() {
			defer m.wg.Done()
			defer func() { <-sem }()
			m.runJob(context.Background(), id)
		})
	}
}

// runJob executes one dispatched job's pipeline. A job cancelled between
// enqueue and dispatch is skipped here - cancellation removes the queue
// entry, but the dequeue can race the removal.
func (m *Manager) runJob(ctx context.Context, jobID string) {
	job, err := m.jobStorage.GetJob(ctx, jobID)
	if err != nil {
		m.logger.Warn().Str("job_id", jobID).Msg("Dispatched job no longer exists")
		return
	}
	if job.IsTerminal() {
		m.logger.Debug().Str("job_id", jobID).Str("status", job.Status.String()).Msg("Skipping dispatch of terminal job")
		return
	}

	def, err := m.pipelineFor(ctx, job)
	if err != nil {
		m.logger.Error().Err(err).Str("job_id", jobID).Msg("Job has no runnable pipeline")
		m.CompleteJob(ctx, jobID, nil, false, err.Error())
		return
	}

	m.mu.Lock()
	m.active[jobID] = job
	m.mu.Unlock()

	m.UpdateProgress(ctx, jobID, def.StageFor(def.Tasks[0].ID), 0, "Pipeline started")

	m.logger.Info().
		Str("job_id", jobID).
		Str("pipeline_id", def.ID).
		Int("task_count", len(def.Tasks)).
		Msg("Dispatching pipeline run")

	baseInputs := map[string]interface{}{
		"document_id": job.DocumentID,
		"user_id":     job.UserID,
		"job_id":      job.ID,
	}
	tasks := def.BuildTasks(baseInputs)

	onProgress := func(stage string, percent float64) {
		m.UpdateProgress(ctx, jobID, stage, percent, fmt.Sprintf("Stage %s", stage))
	}

	results, err := m.executor.Run(ctx, tasks, def.StageFor, onProgress)
	if err != nil {
		m.CompleteJob(ctx, jobID, nil, false, err.Error())
		return
	}

	m.CompleteJob(ctx, jobID, results, true, "")
}

// FailStaleJobs marks processing jobs idle beyond the configured threshold
// as failed. The app wiring runs this on a periodic sweep to recover jobs
// orphaned by a crash mid-run.
func (m *Manager) FailStaleJobs(ctx context.Context) int {
	minutes := m.config.Queue.StaleJobMinutes
	if minutes <= 0 {
		return 0
	}

	stale, err := m.jobStorage.GetStaleJobs(ctx, minutes)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Stale job sweep failed")
		return 0
	}

	failed := 0
	for _, job := range stale {
		// Jobs still in the active set are making progress; only orphans
		// from a previous process fail here
		m.mu.Lock()
		_, isActive := m.active[job.ID]
		m.mu.Unlock()
		if isActive {
			continue
		}

		msg := fmt.Sprintf("Job stalled: no progress for over %d minutes", minutes)
		if m.CompleteJob(ctx, job.ID, nil, false, msg) {
			failed++
		}
	}

	if failed > 0 {
		m.logger.Warn().Int("count", failed).Msg("Stale jobs failed by sweep")
	}
	return failed
}
