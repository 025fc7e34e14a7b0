package interfaces

import "github.com/ternarybob/scrutor/internal/models"

// StreamConnection is one live client stream held by the broadcaster.
// Events() is the per-connection source the transport drains; the channel
// closes when the connection closes.
type StreamConnection interface {
	ID() string
	UserID() string
	JobID() string
	Events() <-chan models.StreamEvent
	Info() models.ConnectionInfo
}

// StatusBroadcaster manages live client connections and fans job events
// out to every connection subscribed to a job or its owning user.
// Delivery is at-most-once, best-effort: a full connection queue drops the
// event with a warning and never blocks the publisher.
type StatusBroadcaster interface {
	// OpenConnection registers a connection subscribed to all of a user's
	// jobs, or to a single job when jobID is non-empty.
	OpenConnection(userID, jobID string, transport models.ConnectionTransport) (StreamConnection, error)

	// Publish fans an event out to the union of the job's subscribers and
	// the owning user's subscribers.
	Publish(jobID, ownerUserID string, event models.StreamEvent)

	// PublishToUser delivers an event to every connection of one user
	PublishToUser(userID string, event models.StreamEvent)

	// CloseConnection removes a connection from both subscription indexes
	// and releases its queue. Safe to call twice.
	CloseConnection(connectionID string)

	// Touch records ping/pong activity so the stale sweep keeps the
	// connection alive
	Touch(connectionID string)

	// ConnectionCount returns the number of open connections
	ConnectionCount() int

	// Close shuts down every connection and stops the background sweep
	Close() error
}
