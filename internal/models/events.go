// -----------------------------------------------------------------------
// Stream events - Client-facing real-time event payloads
// -----------------------------------------------------------------------

package models

import "time"

// StreamEventType classifies events delivered over SSE/WebSocket streams
type StreamEventType string

const (
	StreamEventJobUpdate     StreamEventType = "job_update"
	StreamEventPing          StreamEventType = "ping"
	StreamEventSystemMessage StreamEventType = "system_message"
)

// StreamEvent is the wire schema for one real-time event. SSE frames it as
// event/data/id lines; WebSocket sends one JSON object per message.
type StreamEvent struct {
	Type         StreamEventType        `json:"type"`
	Data         map[string]interface{} `json:"data"`
	Timestamp    string                 `json:"timestamp"`
	ConnectionID string                 `json:"connection_id,omitempty"`
}

// NewStreamEvent creates a stream event stamped with the current time
func NewStreamEvent(eventType StreamEventType, data map[string]interface{}) StreamEvent {
	if data == nil {
		data = make(map[string]interface{})
	}
	return StreamEvent{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// ProgressEvent is an immutable, append-only fact derived from a job
// mutation. The broadcaster is its only consumer.
type ProgressEvent struct {
	JobID      string    `json:"job_id"`
	Stage      string    `json:"stage"`
	Percentage float64   `json:"percentage"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ToStreamEvent converts a progress event into its job_update wire form
func (e ProgressEvent) ToStreamEvent() StreamEvent {
	return StreamEvent{
		Type: StreamEventJobUpdate,
		Data: map[string]interface{}{
			"job_id":     e.JobID,
			"stage":      e.Stage,
			"percentage": e.Percentage,
			"message":    e.Message,
		},
		Timestamp: e.Timestamp.Format(time.RFC3339),
	}
}
