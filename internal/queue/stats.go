// -----------------------------------------------------------------------
// Job statistics - Rolling duration windows feeding ETA estimation
// -----------------------------------------------------------------------

package queue

import (
	"sync"
	"time"
)

const (
	// overallWindow bounds the rolling window of completed job durations
	overallWindow = 100
	// stageWindow bounds the per-stage duration window
	stageWindow = 50
)

// JobStatistics keeps bounded rolling windows of completed job and stage
// durations. The windows feed ETA refinement only - they are eventually
// consistent and never authoritative.
type JobStatistics struct {
	mu        sync.Mutex
	durations []time.Duration
	stages    map[string][]time.Duration
	completed int
	failed    int
	cancelled int
}

// NewJobStatistics creates empty statistics windows
func NewJobStatistics() *JobStatistics {
	return &JobStatistics{
		stages: make(map[string][]time.Duration),
	}
}

// RecordCompletion folds a finished job's duration into the window
func (s *JobStatistics) RecordCompletion(duration time.Duration, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if success {
		s.completed++
	} else {
		s.failed++
	}

	if duration <= 0 {
		return
	}
	s.durations = append(s.durations, duration)
	if len(s.durations) > overallWindow {
		s.durations = s.durations[len(s.durations)-overallWindow:]
	}
}

// RecordCancellation counts a cancelled job without touching durations
func (s *JobStatistics) RecordCancellation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled++
}

// RecordStage folds one stage's duration into its rolling window
func (s *JobStatistics) RecordStage(stage string, duration time.Duration) {
	if stage == "" || duration <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	window := append(s.stages[stage], duration)
	if len(window) > stageWindow {
		window = window[len(window)-stageWindow:]
	}
	s.stages[stage] = window
}

// AverageDuration returns the mean of the rolling job-duration window,
// zero when the window is empty
func (s *JobStatistics) AverageDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return average(s.durations)
}

// StageAverages returns the mean duration per stage window
func (s *JobStatistics) StageAverages() map[string]time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]time.Duration, len(s.stages))
	for stage, window := range s.stages {
		if avg := average(window); avg > 0 {
			out[stage] = avg
		}
	}
	return out
}

// Counts returns completed/failed/cancelled totals since startup
func (s *JobStatistics) Counts() (completed, failed, cancelled int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed, s.failed, s.cancelled
}

func average(window []time.Duration) time.Duration {
	if len(window) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range window {
		total += d
	}
	return total / time.Duration(len(window))
}
