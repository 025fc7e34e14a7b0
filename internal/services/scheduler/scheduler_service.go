// -----------------------------------------------------------------------
// Scheduler Service - cron-driven pipeline runs over newly ingested
// documents
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

// schedulerUserID owns jobs created by scheduled runs.
const schedulerUserID = "scheduler"

// runBatchLimit caps how many documents one scheduled run can enqueue.
const runBatchLimit = 100

// entry tracks one scheduled pipeline registration.
type entry struct {
	pipelineID string
	schedule   string
	cronID     cron.EntryID
	lastRun    time.Time
	lastError  string
}

// Service runs enabled pipeline definitions on their cron schedules. Each
// fire enqueues a job per document ingested since the previous run, so a
// schedule acts as a standing order over new intake.
type Service struct {
	pipelines interfaces.PipelineStorage
	docs      interfaces.DocumentStorage
	queue     interfaces.JobQueueManager
	cron      *cron.Cron
	logger    arbor.ILogger

	mu      sync.Mutex
	entries map[string]*entry
	running bool
}

func NewService(
	pipelines interfaces.PipelineStorage,
	docs interfaces.DocumentStorage,
	queue interfaces.JobQueueManager,
	logger arbor.ILogger,
) *Service {
	return &Service{
		pipelines: pipelines,
		docs:      docs,
		queue:     queue,
		cron:      cron.New(),
		logger:    logger,
		entries:   make(map[string]*entry),
	}
}

// Start registers every enabled, scheduled pipeline definition and starts
// the cron runner.
func (s *Service) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	defs, err := s.pipelines.ListPipelines(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list pipeline definitions: %w", err)
	}

	registered := 0
	for _, def := range defs {
		if !def.Enabled || def.Schedule == "" {
			continue
		}
		if err := s.RegisterPipeline(def.ID, def.Schedule); err != nil {
			s.logger.Warn().Err(err).Str("pipeline_id", def.ID).Msg("Failed to register schedule")
			continue
		}
		registered++
	}

	s.cron.Start()
	s.logger.Info().
		Int("scheduled_pipelines", registered).
		Msg("Scheduler started")
	return nil
}

// RegisterPipeline adds or replaces the schedule for one pipeline. Called at
// startup and again whenever a definition is upserted through the API.
func (s *Service) RegisterPipeline(pipelineID, schedule string) error {
	if schedule == "" {
		return fmt.Errorf("pipeline %s has no schedule", pipelineID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[pipelineID]; ok {
		s.cron.Remove(existing.cronID)
		delete(s.entries, pipelineID)
	}

	e := &entry{
		pipelineID: pipelineID,
		schedule:   schedule,
		lastRun:    time.Now(),
	}
	cronID, err := s.cron.AddFunc(schedule, func() { s.fire(pipelineID) })
	if err != nil {
		return fmt.Errorf("invalid schedule '%s' for pipeline %s: %w", schedule, pipelineID, err)
	}
	e.cronID = cronID
	s.entries[pipelineID] = e

	s.logger.Info().
		Str("pipeline_id", pipelineID).
		Str("schedule", schedule).
		Msg("Pipeline schedule registered")
	return nil
}

// UnregisterPipeline removes a pipeline's schedule, if any.
func (s *Service) UnregisterPipeline(pipelineID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[pipelineID]; ok {
		s.cron.Remove(existing.cronID)
		delete(s.entries, pipelineID)
		s.logger.Info().Str("pipeline_id", pipelineID).Msg("Pipeline schedule removed")
	}
}

// IsRunning reports whether the cron runner is active.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// fire runs one scheduled tick: enqueue a job for each document ingested
// since the entry's last run.
func (s *Service) fire(pipelineID string) {
	ctx := context.Background()

	s.mu.Lock()
	e, ok := s.entries[pipelineID]
	if !ok {
		s.mu.Unlock()
		return
	}
	since := e.lastRun
	e.lastRun = time.Now()
	s.mu.Unlock()

	created, err := s.enqueueNewDocuments(ctx, pipelineID, since)

	s.mu.Lock()
	if e, ok := s.entries[pipelineID]; ok {
		if err != nil {
			e.lastError = err.Error()
		} else {
			e.lastError = ""
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn().Err(err).Str("pipeline_id", pipelineID).Msg("Scheduled run failed")
		return
	}
	if created > 0 {
		s.logger.Info().
			Str("pipeline_id", pipelineID).
			Int("jobs_created", created).
			Msg("Scheduled run enqueued jobs")
	}
}

func (s *Service) enqueueNewDocuments(ctx context.Context, pipelineID string, since time.Time) (int, error) {
	docs, err := s.docs.ListDocuments(ctx, runBatchLimit, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list documents: %w", err)
	}

	created := 0
	for _, doc := range docs {
		if !doc.CreatedAt.After(since) {
			continue
		}
		_, err := s.queue.CreateJob(ctx, doc.ID, schedulerUserID, models.PriorityLow, map[string]interface{}{
			"pipeline_id": pipelineID,
			"source":      "scheduler",
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("document_id", doc.ID).Msg("Failed to enqueue scheduled job")
			continue
		}
		created++
	}
	return created, nil
}

// GetStatuses returns the status of every registered schedule.
func (s *Service) GetStatuses() map[string]*interfaces.ScheduleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make(map[string]*interfaces.ScheduleStatus, len(s.entries))
	for id, e := range s.entries {
		status := &interfaces.ScheduleStatus{
			PipelineID: e.pipelineID,
			Schedule:   e.schedule,
			Enabled:    true,
			LastError:  e.lastError,
		}
		if !e.lastRun.IsZero() {
			lastRun := e.lastRun
			status.LastRun = &lastRun
		}
		if cronEntry := s.cron.Entry(e.cronID); !cronEntry.Next.IsZero() {
			nextRun := cronEntry.Next
			status.NextRun = &nextRun
		}
		statuses[id] = status
	}
	return statuses
}

// Stop halts the cron runner and waits for in-flight fires to finish.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

var _ interfaces.SchedulerService = (*Service)(nil)
