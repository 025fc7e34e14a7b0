package interfaces

import "time"

// ScheduleStatus represents the current status of a scheduled pipeline
type ScheduleStatus struct {
	PipelineID string
	Schedule   string
	Enabled    bool
	LastRun    *time.Time
	NextRun    *time.Time
	LastError  string
}

// SchedulerService runs pipeline definitions on their cron schedules
type SchedulerService interface {
	// Start begins the cron runner
	Start() error

	// Stop halts the cron runner
	Stop() error

	// RegisterPipeline schedules an enabled pipeline definition; replaces
	// any existing registration for the same pipeline id
	RegisterPipeline(pipelineID, schedule string) error

	// UnregisterPipeline removes a pipeline's schedule
	UnregisterPipeline(pipelineID string)

	// IsRunning returns true if the scheduler is active
	IsRunning() bool

	// GetStatuses returns the status of every registered schedule
	GetStatuses() map[string]*ScheduleStatus
}
