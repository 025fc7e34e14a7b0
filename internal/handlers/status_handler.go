package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/interfaces"
)

// StatusHandler aggregates runtime state for the operator status endpoint
type StatusHandler struct {
	queue       interfaces.JobQueueManager
	docs        interfaces.DocumentStorage
	broadcaster interfaces.StatusBroadcaster
	scheduler   interfaces.SchedulerService
	startTime   time.Time
	logger      arbor.ILogger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(
	queue interfaces.JobQueueManager,
	docs interfaces.DocumentStorage,
	broadcaster interfaces.StatusBroadcaster,
	scheduler interfaces.SchedulerService,
	logger arbor.ILogger,
) *StatusHandler {
	return &StatusHandler{
		queue:       queue,
		docs:        docs,
		broadcaster: broadcaster,
		scheduler:   scheduler,
		startTime:   time.Now(),
		logger:      logger,
	}
}

// StatusHandler returns a point-in-time snapshot of the whole service
// GET /api/status
func (h *StatusHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	ctx := r.Context()

	status := map[string]interface{}{
		"version":        common.GetVersion(),
		"build":          common.GetBuild(),
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
		"goroutines":     common.GetGoroutineCount(),
		"queue":          h.queue.Stats(ctx),
		"connections":    h.broadcaster.ConnectionCount(),
	}

	if docStats, err := h.docs.GetStats(ctx); err == nil {
		status["documents"] = docStats
	} else {
		h.logger.Warn().Err(err).Msg("Failed to get document stats")
	}

	if h.scheduler != nil {
		status["scheduler"] = map[string]interface{}{
			"running":   h.scheduler.IsRunning(),
			"schedules": h.scheduler.GetStatuses(),
		}
	}

	WriteJSON(w, http.StatusOK, status)
}
