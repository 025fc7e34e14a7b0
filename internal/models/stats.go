package models

import "time"

// QueueStats is a point-in-time snapshot of queue state for the stats API
type QueueStats struct {
	QueuedByPriority map[int]int              `json:"queued_by_priority"`
	QueuedTotal      int                      `json:"queued_total"`
	ActiveCount      int                      `json:"active_count"`
	CompletedCount   int                      `json:"completed_count"`
	FailedCount      int                      `json:"failed_count"`
	CancelledCount   int                      `json:"cancelled_count"`
	AverageDuration  time.Duration            `json:"average_duration_ms"`
	StageAverages    map[string]time.Duration `json:"stage_averages_ms,omitempty"`
	Timestamp        time.Time                `json:"timestamp"`
}
