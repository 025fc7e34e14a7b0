package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

// JobHandler handles job-related API requests
type JobHandler struct {
	queue   interfaces.JobQueueManager
	jobLogs interfaces.JobLogStorage
	logger  arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(queue interfaces.JobQueueManager, jobLogs interfaces.JobLogStorage, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		queue:   queue,
		jobLogs: jobLogs,
		logger:  logger,
	}
}

// createJobRequest is the payload for job submission
type createJobRequest struct {
	DocumentID string                 `json:"document_id"`
	UserID     string                 `json:"user_id"`
	Priority   int                    `json:"priority"`
	PipelineID string                 `json:"pipeline_id,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// CreateJobHandler submits a document for analysis
// POST /api/jobs
func (h *JobHandler) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	defer r.Body.Close()

	if req.DocumentID == "" {
		WriteError(w, http.StatusBadRequest, "document_id is required")
		return
	}
	if req.UserID == "" {
		WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.Priority == 0 {
		req.Priority = models.PriorityNormal
	}
	if !models.IsValidPriority(req.Priority) {
		WriteError(w, http.StatusBadRequest, "priority must be between 1 and 4")
		return
	}

	metadata := req.Metadata
	if req.PipelineID != "" {
		if metadata == nil {
			metadata = make(map[string]interface{})
		}
		metadata["pipeline_id"] = req.PipelineID
	}

	jobID, err := h.queue.CreateJob(ctx, req.DocumentID, req.UserID, req.Priority, metadata)
	if err != nil {
		h.logger.Error().Err(err).Str("document_id", req.DocumentID).Msg("Failed to create job")
		WriteError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	h.logger.Info().
		Str("job_id", jobID).
		Str("document_id", req.DocumentID).
		Int("priority", req.Priority).
		Msg("Job created")

	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"job_id":      jobID,
		"document_id": req.DocumentID,
		"status":      string(models.JobStatusQueued),
	})
}

// ListJobsHandler returns a paginated list of jobs
// GET /api/jobs?limit=50&offset=0&status=completed&user_id=alice
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, offset := GetLimitOffset(r, 50)
	orderBy := r.URL.Query().Get("order_by")
	orderDir := r.URL.Query().Get("order_dir")
	if orderBy == "" {
		orderBy = "created_at"
	}
	if orderDir == "" {
		orderDir = "DESC"
	}

	opts := &interfaces.JobListOptions{
		Status:   r.URL.Query().Get("status"),
		UserID:   r.URL.Query().Get("user_id"),
		OrderBy:  orderBy,
		OrderDir: orderDir,
		Limit:    limit,
		Offset:   offset,
	}

	jobs, err := h.queue.ListJobs(ctx, opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	snapshots := make([]map[string]interface{}, 0, len(jobs))
	for _, job := range jobs {
		snapshots = append(snapshots, job.Snapshot())
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":   snapshots,
		"count":  len(snapshots),
		"limit":  limit,
		"offset": offset,
	})
}

// GetJobHandler returns a single job by ID
// GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID := PathSegment(r, 2)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	job, ok := h.queue.GetJob(ctx, jobID)
	if !ok {
		WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	WriteJSON(w, http.StatusOK, job.Snapshot())
}

// CancelJobHandler cancels a queued or processing job
// POST /api/jobs/{id}/cancel
func (h *JobHandler) CancelJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID := PathSegment(r, 2)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil {
		defer r.Body.Close()
		// Body is optional; a missing reason falls back to a default.
		json.NewDecoder(r.Body).Decode(&body)
	}
	if body.Reason == "" {
		body.Reason = "cancelled by user"
	}

	// Terminal or unknown jobs report cancelled=false rather than an error;
	// cancellation is an idempotent request, not a command that can fail
	cancelled := h.queue.CancelJob(ctx, jobID, body.Reason)
	if cancelled {
		h.logger.Info().Str("job_id", jobID).Str("reason", body.Reason).Msg("Job cancelled")
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":    jobID,
		"cancelled": cancelled,
	})
}

// RetryTaskHandler re-executes a single failed task of a failed job
// POST /api/jobs/{id}/retry
func (h *JobHandler) RetryTaskHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID := PathSegment(r, 2)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	var body struct {
		TaskID     string `json:"task_id"`
		MaxRetries int    `json:"max_retries"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	defer r.Body.Close()

	if body.TaskID == "" {
		WriteError(w, http.StatusBadRequest, "task_id is required")
		return
	}
	if body.MaxRetries <= 0 {
		body.MaxRetries = 3
	}

	result, err := h.queue.RetryFailedTask(ctx, jobID, body.TaskID, body.MaxRetries)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Str("task_id", body.TaskID).Msg("Task retry failed")
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	h.logger.Info().Str("job_id", jobID).Str("task_id", body.TaskID).Msg("Task retried")

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":  jobID,
		"task_id": body.TaskID,
		"result":  result,
	})
}

// GetJobLogsHandler returns the persisted log entries for a job
// GET /api/jobs/{id}/logs?limit=200
func (h *JobHandler) GetJobLogsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID := PathSegment(r, 2)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	limit := 200
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	logs, err := h.jobLogs.GetLogs(ctx, jobID, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job logs")
		WriteError(w, http.StatusInternalServerError, "Failed to get job logs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id": jobID,
		"logs":   logs,
		"count":  len(logs),
	})
}

// GetQueueStatsHandler returns a point-in-time queue snapshot
// GET /api/jobs/stats
func (h *JobHandler) GetQueueStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := h.queue.Stats(r.Context())
	WriteJSON(w, http.StatusOK, stats)
}
