// -----------------------------------------------------------------------
// Job - Document analysis job lifecycle model
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus represents the state of an analysis job
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsValid checks if the JobStatus is a known, valid status
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted,
		JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of the JobStatus
func (s JobStatus) String() string {
	return string(s)
}

// Priority bands for the job queue. Band 4 dispatches before band 3,
// and so on down to band 1. FIFO within a band.
const (
	PriorityLow      = 1
	PriorityNormal   = 2
	PriorityHigh     = 3
	PriorityCritical = 4
)

// IsValidPriority checks that a priority falls inside the supported bands
func IsValidPriority(p int) bool {
	return p >= PriorityLow && p <= PriorityCritical
}

// Job represents one document-processing request through its full lifecycle.
// Created in "queued" status, mutated only by the queue manager (single
// writer), persisted after every state transition. Terminal states
// (completed, failed, cancelled) are immutable once reached.
type Job struct {
	ID         string    `json:"id" badgerhold:"key"`
	DocumentID string    `json:"document_id" badgerhold:"index"`
	UserID     string    `json:"user_id" badgerhold:"index"`
	PipelineID string    `json:"pipeline_id,omitempty"`
	Priority   int       `json:"priority"`
	Status     JobStatus `json:"status" badgerhold:"index"`

	// Progress tracking
	CurrentStage       string  `json:"current_stage,omitempty"`
	ProgressPercentage float64 `json:"progress_percentage"`
	ProgressMessage    string  `json:"progress_message,omitempty"`

	// Timestamps
	CreatedAt           time.Time  `json:"created_at"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`

	// Failure and retry state
	Error      string `json:"error,omitempty"`
	RetryCount int    `json:"retry_count"`
	MaxRetries int    `json:"max_retries"`

	// Aggregate pipeline output, keyed by task id
	Results map[string]interface{} `json:"results,omitempty"`

	// Caller-supplied metadata, snapshot at creation time
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewJob creates a job in queued status for a document
func NewJob(id, documentID, userID string, priority int, metadata map[string]interface{}) *Job {
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	return &Job{
		ID:         id,
		DocumentID: documentID,
		UserID:     userID,
		Priority:   priority,
		Status:     JobStatusQueued,
		CreatedAt:  time.Now(),
		MaxRetries: 3,
		Metadata:   metadata,
	}
}

// IsTerminal returns true if the job has reached a terminal state
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted ||
		j.Status == JobStatusFailed ||
		j.Status == JobStatusCancelled
}

// MarkProcessing transitions the job out of the queue and stamps StartedAt
func (j *Job) MarkProcessing() {
	j.Status = JobStatusProcessing
	now := time.Now()
	j.StartedAt = &now
}

// MarkCompleted records a successful terminal state with the pipeline results
func (j *Job) MarkCompleted(results map[string]interface{}) {
	j.Status = JobStatusCompleted
	j.Results = results
	j.ProgressPercentage = 100
	j.EstimatedCompletion = nil
	now := time.Now()
	j.CompletedAt = &now
}

// MarkFailed records a failed terminal state with an error message
func (j *Job) MarkFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.Error = errorMsg
	j.EstimatedCompletion = nil
	now := time.Now()
	j.CompletedAt = &now
}

// MarkCancelled records a cancelled terminal state with the caller's reason
func (j *Job) MarkCancelled(reason string) {
	j.Status = JobStatusCancelled
	if reason != "" {
		j.Error = reason
	}
	j.EstimatedCompletion = nil
	now := time.Now()
	j.CompletedAt = &now
}

// Elapsed returns the running time of the job, zero before it starts
func (j *Job) Elapsed() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	if j.CompletedAt != nil {
		return j.CompletedAt.Sub(*j.StartedAt)
	}
	return time.Since(*j.StartedAt)
}

// GetMetadataString retrieves a string value from metadata
func (j *Job) GetMetadataString(key string) (string, bool) {
	val, ok := j.Metadata[key]
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// ToJSON serializes the job for queue storage
func (j *Job) ToJSON() ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	return data, nil
}

// JobFromJSON deserializes a job from JSON
func JobFromJSON(data []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// Snapshot returns the API representation of the job with ISO-8601
// timestamps. Pointer timestamps render as null when unset.
func (j *Job) Snapshot() map[string]interface{} {
	snap := map[string]interface{}{
		"id":                  j.ID,
		"document_id":         j.DocumentID,
		"user_id":             j.UserID,
		"priority":            j.Priority,
		"status":              string(j.Status),
		"current_stage":       j.CurrentStage,
		"progress_percentage": j.ProgressPercentage,
		"created_at":          j.CreatedAt.Format(time.RFC3339),
		"retry_count":         j.RetryCount,
		"max_retries":         j.MaxRetries,
	}
	if j.PipelineID != "" {
		snap["pipeline_id"] = j.PipelineID
	}
	if j.ProgressMessage != "" {
		snap["progress_message"] = j.ProgressMessage
	}
	if j.StartedAt != nil {
		snap["started_at"] = j.StartedAt.Format(time.RFC3339)
	}
	if j.CompletedAt != nil {
		snap["completed_at"] = j.CompletedAt.Format(time.RFC3339)
	}
	if j.EstimatedCompletion != nil {
		snap["estimated_completion"] = j.EstimatedCompletion.Format(time.RFC3339)
	}
	if j.Error != "" {
		snap["error"] = j.Error
	}
	if len(j.Results) > 0 {
		snap["results"] = j.Results
	}
	if len(j.Metadata) > 0 {
		snap["metadata"] = j.Metadata
	}
	return snap
}
