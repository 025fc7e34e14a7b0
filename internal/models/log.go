package models

import "time"

// JobLogEntry represents a single append-only log line for a job.
// Entries are persisted per job and ordered by Sequence, a composite
// UnixNano+counter key that keeps ordering stable when timestamps collide.
//
// Log Levels: "debug", "info", "warn", "error"
type JobLogEntry struct {
	JobID     string    `json:"job_id" badgerhold:"index"`
	Level     string    `json:"level" badgerhold:"index"`
	Stage     string    `json:"stage,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`

	// Sequence is a composite sort key (UnixNano + counter) for stable
	// ordering when entries are written in rapid succession
	Sequence string `json:"sequence" badgerhold:"index"`
}
