package interfaces

import (
	"context"
	"time"
)

// EventType represents different event types in the system
type EventType string

const (
	EventJobCreated    EventType = "job_created"
	EventJobProgress   EventType = "job_progress"
	EventJobCompleted  EventType = "job_completed"
	EventJobFailed     EventType = "job_failed"
	EventJobCancelled  EventType = "job_cancelled"
	EventJobStats      EventType = "job_stats"
	EventDocumentSaved EventType = "document_saved"
	EventSystemMessage EventType = "system_message"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// RecordedEvent is an Event annotated with its publish time, as kept in the
// recent-events ring
type RecordedEvent struct {
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages pub/sub event bus
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers asynchronously
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Recent returns the most recently published events, newest first
	Recent(limit int) []RecordedEvent

	// Close shuts down the event service
	Close() error
}
