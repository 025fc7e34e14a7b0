package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

// StreamHandler serves real-time job events over Server-Sent Events.
// Each request opens one broadcaster connection scoped to a user's jobs or
// to a single job, and holds it until the client disconnects.
type StreamHandler struct {
	broadcaster interfaces.StatusBroadcaster
	logger      arbor.ILogger
}

// NewStreamHandler creates a new SSE stream handler
func NewStreamHandler(broadcaster interfaces.StatusBroadcaster, logger arbor.ILogger) *StreamHandler {
	return &StreamHandler{
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// StreamEventsHandler streams job events as SSE frames
// GET /api/stream?user_id=alice&job_id=job_123
func (h *StreamHandler) StreamEventsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	userID := r.URL.Query().Get("user_id")
	jobID := r.URL.Query().Get("job_id")
	if userID == "" {
		WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	conn, err := h.broadcaster.OpenConnection(userID, jobID, models.TransportSSE)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to open stream connection")
		WriteError(w, http.StatusServiceUnavailable, "Failed to open stream")
		return
	}
	defer h.broadcaster.CloseConnection(conn.ID())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Debug().
		Str("connection_id", conn.ID()).
		Str("user_id", userID).
		Str("job_id", jobID).
		Msg("SSE stream opened")

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug().Str("connection_id", conn.ID()).Msg("SSE client disconnected")
			return
		case event, open := <-conn.Events():
			if !open {
				return
			}
			if err := writeSSEEvent(w, event); err != nil {
				h.logger.Debug().Err(err).Str("connection_id", conn.ID()).Msg("SSE write failed")
				return
			}
			flusher.Flush()
			if event.Type == models.StreamEventPing {
				h.broadcaster.Touch(conn.ID())
			}
		}
	}
}

// writeSSEEvent frames one event as event/data/id lines. The id line
// carries the event timestamp in unix milliseconds so clients can resume
// from Last-Event-ID.
func writeSSEEvent(w http.ResponseWriter, event models.StreamEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	stamp := time.Now()
	if ts, err := time.Parse(time.RFC3339, event.Timestamp); err == nil {
		stamp = ts
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\nid: %d\n\n", event.Type, payload, stamp.UnixMilli())
	return err
}
