// -----------------------------------------------------------------------
// Connection - One live client stream held by the broadcaster
// -----------------------------------------------------------------------

package status

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ternarybob/scrutor/internal/models"
)

// connection is the broadcaster's registry entry for one client stream.
// The events channel is bounded; a full channel drops rather than blocks
// so one slow client never stalls the publisher.
type connection struct {
	info    models.ConnectionInfo
	events  chan models.StreamEvent
	limiter *rate.Limiter // nil = unlimited

	mu           sync.Mutex
	closed       bool
	cancelBridge context.CancelFunc
}

func (c *connection) ID() string     { return c.info.ID }
func (c *connection) UserID() string { return c.info.UserID }
func (c *connection) JobID() string  { return c.info.JobID }

func (c *connection) Events() <-chan models.StreamEvent { return c.events }

func (c *connection) Info() models.ConnectionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// send queues an event without blocking. Returns false when the event was
// dropped (closed connection, full queue, or rate limit).
func (c *connection) send(event models.StreamEvent, rateLimited bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	if rateLimited && c.limiter != nil && !c.limiter.Allow() {
		return false
	}

	event.ConnectionID = c.info.ID

	select {
	case c.events <- event:
		c.info.LastEvent = time.Now()
		c.info.State = models.ConnectionStateActive
		return true
	default:
		return false
	}
}

// touch records ping/pong activity from the client side
func (c *connection) touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.info.LastPing = time.Now()
	}
}

// setBridgeCancel pairs the connection with its persistence bridge. On a
// connection that already closed the bridge is cancelled immediately.
func (c *connection) setBridgeCancel(cancel context.CancelFunc) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return
	}
	c.cancelBridge = cancel
	c.mu.Unlock()
}

// close marks the connection closed, releases the channel, and cancels the
// paired bridge subscription if any. Idempotent; the transport sees the
// channel close and tears down.
func (c *connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.info.State = models.ConnectionStateClosed
	if c.cancelBridge != nil {
		c.cancelBridge()
		c.cancelBridge = nil
	}
	close(c.events)
}

// idleSince reports the last activity received FROM the client. Outbound
// sends never count: queueing a frame says nothing about whether anyone is
// still reading, and the sweep's own pings would otherwise keep a dead
// client alive forever.
func (c *connection) idleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	last := c.info.LastPing
	if last.IsZero() {
		last = c.info.CreatedAt
	}
	return last
}
