package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

// PipelineHandler handles pipeline definition API requests. Upserts and
// deletes keep the scheduler's registrations in sync.
type PipelineHandler struct {
	pipelines interfaces.PipelineStorage
	scheduler interfaces.SchedulerService
	logger    arbor.ILogger
}

// NewPipelineHandler creates a new pipeline handler
func NewPipelineHandler(pipelines interfaces.PipelineStorage, scheduler interfaces.SchedulerService, logger arbor.ILogger) *PipelineHandler {
	return &PipelineHandler{
		pipelines: pipelines,
		scheduler: scheduler,
		logger:    logger,
	}
}

// ListPipelinesHandler returns all pipeline definitions
// GET /api/pipelines
func (h *PipelineHandler) ListPipelinesHandler(w http.ResponseWriter, r *http.Request) {
	defs, err := h.pipelines.ListPipelines(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list pipelines")
		WriteError(w, http.StatusInternalServerError, "Failed to list pipelines")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"pipelines": defs,
		"count":     len(defs),
	})
}

// GetPipelineHandler returns a single pipeline definition by ID
// GET /api/pipelines/{id}
func (h *PipelineHandler) GetPipelineHandler(w http.ResponseWriter, r *http.Request) {
	pipelineID := PathSegment(r, 2)
	if pipelineID == "" {
		WriteError(w, http.StatusBadRequest, "Pipeline ID is required")
		return
	}

	def, err := h.pipelines.GetPipeline(r.Context(), pipelineID)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Pipeline not found")
		return
	}

	WriteJSON(w, http.StatusOK, def)
}

// UpsertPipelineHandler creates or replaces a pipeline definition and
// updates its schedule registration
// PUT /api/pipelines/{id}
func (h *PipelineHandler) UpsertPipelineHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	pipelineID := PathSegment(r, 2)
	if pipelineID == "" {
		WriteError(w, http.StatusBadRequest, "Pipeline ID is required")
		return
	}

	var def models.PipelineDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	defer r.Body.Close()

	def.ID = pipelineID
	if err := def.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	existing, err := h.pipelines.GetPipeline(ctx, pipelineID)
	if err == nil && existing != nil {
		def.CreatedAt = existing.CreatedAt
	} else {
		def.CreatedAt = time.Now()
	}
	def.UpdatedAt = time.Now()

	if err := h.pipelines.SavePipeline(ctx, &def); err != nil {
		h.logger.Error().Err(err).Str("pipeline_id", pipelineID).Msg("Failed to save pipeline")
		WriteError(w, http.StatusInternalServerError, "Failed to save pipeline")
		return
	}

	if h.scheduler != nil {
		if def.Enabled && def.Schedule != "" {
			if err := h.scheduler.RegisterPipeline(def.ID, def.Schedule); err != nil {
				h.logger.Warn().Err(err).Str("pipeline_id", def.ID).Msg("Failed to register schedule")
			}
		} else {
			h.scheduler.UnregisterPipeline(def.ID)
		}
	}

	h.logger.Info().
		Str("pipeline_id", def.ID).
		Int("tasks", len(def.Tasks)).
		Msg("Pipeline saved")

	WriteJSON(w, http.StatusOK, &def)
}

// DeletePipelineHandler deletes a pipeline definition and removes any
// schedule registration
// DELETE /api/pipelines/{id}
func (h *PipelineHandler) DeletePipelineHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	pipelineID := PathSegment(r, 2)
	if pipelineID == "" {
		WriteError(w, http.StatusBadRequest, "Pipeline ID is required")
		return
	}

	if err := h.pipelines.DeletePipeline(ctx, pipelineID); err != nil {
		h.logger.Error().Err(err).Str("pipeline_id", pipelineID).Msg("Failed to delete pipeline")
		WriteError(w, http.StatusInternalServerError, "Failed to delete pipeline")
		return
	}

	if h.scheduler != nil {
		h.scheduler.UnregisterPipeline(pipelineID)
	}

	h.logger.Info().Str("pipeline_id", pipelineID).Msg("Pipeline deleted")

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"pipeline_id": pipelineID,
		"message":     "Pipeline deleted successfully",
	})
}
