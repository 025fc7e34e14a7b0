// -----------------------------------------------------------------------
// Connection - Live client stream registration
// -----------------------------------------------------------------------

package models

import "time"

// ConnectionTransport identifies the transport a connection streams over
type ConnectionTransport string

const (
	TransportSSE       ConnectionTransport = "sse"
	TransportWebSocket ConnectionTransport = "websocket"
)

// ConnectionState tracks the per-connection lifecycle:
// open -> (active <-> idle) -> closed. Closed is terminal.
type ConnectionState string

const (
	ConnectionStateOpen   ConnectionState = "open"
	ConnectionStateActive ConnectionState = "active"
	ConnectionStateIdle   ConnectionState = "idle"
	ConnectionStateClosed ConnectionState = "closed"
)

// ConnectionInfo is the registry's record of one client stream. A
// connection subscribes either to a single job or to every job of a user;
// its id appears in exactly the subscription indexes implied by UserID and
// JobID.
type ConnectionInfo struct {
	ID        string              `json:"id"`
	UserID    string              `json:"user_id"`
	JobID     string              `json:"job_id,omitempty"`
	Transport ConnectionTransport `json:"transport"`
	State     ConnectionState     `json:"state"`
	CreatedAt time.Time           `json:"created_at"`
	LastPing  time.Time           `json:"last_ping"`
	LastEvent time.Time           `json:"last_event"`
}
