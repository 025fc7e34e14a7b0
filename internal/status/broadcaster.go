// -----------------------------------------------------------------------
// Broadcaster - Fan-out of job events to live SSE/WebSocket connections
// -----------------------------------------------------------------------

package status

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

const (
	defaultQueueCapacity = 100
	defaultPingInterval  = 30 * time.Second
	defaultStaleTimeout  = 5 * time.Minute
)

// Broadcaster is the connection registry. A single mutex guards the
// registry and both subscription indexes; publishing copies the target set
// under the lock and sends outside it.
type Broadcaster struct {
	logger arbor.ILogger

	queueCapacity int
	pingInterval  time.Duration
	staleTimeout  time.Duration
	ratePerSec    float64
	rateBurst     int

	mu                sync.Mutex
	connections       map[string]*connection
	userSubscriptions map[string]map[string]*connection
	jobSubscriptions  map[string]map[string]*connection
	closed            bool

	// set by AttachDocumentBridge; nil disables per-connection bridging
	persistence interfaces.Persistence
	resolveDoc  DocumentResolver

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// DocumentResolver maps a job id to the persisted document a job-scoped
// connection should watch
type DocumentResolver func(ctx context.Context, jobID string) (collection, docID string, ok bool)

var _ interfaces.StatusBroadcaster = (*Broadcaster)(nil)

func NewBroadcaster(config *common.StatusConfig, logger arbor.ILogger) *Broadcaster {
	b := &Broadcaster{
		logger:            logger,
		queueCapacity:     defaultQueueCapacity,
		pingInterval:      defaultPingInterval,
		staleTimeout:      defaultStaleTimeout,
		connections:       make(map[string]*connection),
		userSubscriptions: make(map[string]map[string]*connection),
		jobSubscriptions:  make(map[string]map[string]*connection),
		stopCh:            make(chan struct{}),
	}

	if config != nil {
		if config.QueueCapacity > 0 {
			b.queueCapacity = config.QueueCapacity
		}
		if d, err := time.ParseDuration(config.PingInterval); err == nil && d > 0 {
			b.pingInterval = d
		}
		if d, err := time.ParseDuration(config.StaleTimeout); err == nil && d > 0 {
			b.staleTimeout = d
		}
		b.ratePerSec = config.RatePerSecond
		b.rateBurst = config.RateBurst
	}

	b.wg.Add(1)
	common.SafeGo(logger, "status.sweep", func() {
		defer b.wg.Done()
		b.sweepLoop()
	})

	logger.Info().
		Int("queue_capacity", b.queueCapacity).
		Str("ping_interval", b.pingInterval.String()).
		Str("stale_timeout", b.staleTimeout.String()).
		Msg("Status broadcaster initialized")

	return b
}

// OpenConnection registers a stream subscribed to all of a user's jobs,
// or to a single job when jobID is non-empty.
func (b *Broadcaster) OpenConnection(userID, jobID string, transport models.ConnectionTransport) (interfaces.StreamConnection, error) {
	if userID == "" {
		return nil, &models.ValidationError{Field: "user_id", Reason: "user id is required"}
	}

	now := time.Now()
	conn := &connection{
		info: models.ConnectionInfo{
			ID:        common.NewConnectionID(),
			UserID:    userID,
			JobID:     jobID,
			Transport: transport,
			State:     models.ConnectionStateOpen,
			CreatedAt: now,
			LastPing:  now,
		},
		events: make(chan models.StreamEvent, b.queueCapacity),
	}
	if b.ratePerSec > 0 {
		burst := b.rateBurst
		if burst <= 0 {
			burst = 1
		}
		conn.limiter = rate.NewLimiter(rate.Limit(b.ratePerSec), burst)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("broadcaster is closed")
	}
	b.connections[conn.info.ID] = conn
	if b.userSubscriptions[userID] == nil {
		b.userSubscriptions[userID] = make(map[string]*connection)
	}
	b.userSubscriptions[userID][conn.info.ID] = conn
	if jobID != "" {
		if b.jobSubscriptions[jobID] == nil {
			b.jobSubscriptions[jobID] = make(map[string]*connection)
		}
		b.jobSubscriptions[jobID][conn.info.ID] = conn
	}
	total := len(b.connections)
	b.mu.Unlock()

	b.logger.Debug().
		Str("connection_id", conn.info.ID).
		Str("user_id", userID).
		Str("job_id", jobID).
		Str("transport", string(transport)).
		Int("total", total).
		Msg("Stream connection opened")

	if jobID != "" {
		b.startBridge(conn)
	}

	return conn, nil
}

// AttachDocumentBridge enables persistence bridging: every job-scoped
// connection opened afterwards also watches its job's document for external
// changes. Called once from app wiring.
func (b *Broadcaster) AttachDocumentBridge(persistence interfaces.Persistence, resolve DocumentResolver) {
	b.mu.Lock()
	b.persistence = persistence
	b.resolveDoc = resolve
	b.mu.Unlock()
}

// startBridge subscribes a job-scoped connection to its document's change
// feed. The subscription lives exactly as long as the connection: close
// cancels it.
func (b *Broadcaster) startBridge(conn *connection) {
	b.mu.Lock()
	persistence, resolve := b.persistence, b.resolveDoc
	b.mu.Unlock()
	if persistence == nil || resolve == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	collection, docID, ok := resolve(ctx, conn.info.JobID)
	if !ok {
		cancel()
		return
	}

	if err := b.BridgeDocumentUpdates(ctx, persistence, collection, docID, conn.info.JobID, conn.info.UserID); err != nil {
		cancel()
		b.logger.Warn().
			Err(err).
			Str("connection_id", conn.info.ID).
			Str("job_id", conn.info.JobID).
			Msg("Document bridge not started")
		return
	}
	conn.setBridgeCancel(cancel)
}

// Publish fans an event out to the union of the job's subscribers and the
// owning user's subscribers. Non-blocking; a full queue drops the event.
func (b *Broadcaster) Publish(jobID, ownerUserID string, event models.StreamEvent) {
	targets := b.collectTargets(jobID, ownerUserID)
	b.deliver(targets, event)
}

// PublishToUser delivers an event to every connection of one user
func (b *Broadcaster) PublishToUser(userID string, event models.StreamEvent) {
	targets := b.collectTargets("", userID)
	b.deliver(targets, event)
}

// BroadcastSystem delivers a system event to every open connection. Used
// for forwarded server logs and operator announcements.
func (b *Broadcaster) BroadcastSystem(event models.StreamEvent) {
	b.mu.Lock()
	targets := make([]*connection, 0, len(b.connections))
	for _, conn := range b.connections {
		targets = append(targets, conn)
	}
	b.mu.Unlock()

	b.deliver(targets, event)
}

// collectTargets snapshots the union of job and user subscribers under
// the lock, deduplicated by connection id
func (b *Broadcaster) collectTargets(jobID, userID string) []*connection {
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[string]bool)
	var targets []*connection
	if jobID != "" {
		for id, conn := range b.jobSubscriptions[jobID] {
			if !seen[id] {
				seen[id] = true
				targets = append(targets, conn)
			}
		}
	}
	if userID != "" {
		for id, conn := range b.userSubscriptions[userID] {
			// Job-scoped connections of the same user only receive events
			// for their own job
			if conn.info.JobID != "" && conn.info.JobID != jobID && jobID != "" {
				continue
			}
			if !seen[id] {
				seen[id] = true
				targets = append(targets, conn)
			}
		}
	}
	return targets
}

func (b *Broadcaster) deliver(targets []*connection, event models.StreamEvent) {
	// Only high-frequency job updates are rate limited; pings and system
	// messages always pass
	rateLimited := event.Type == models.StreamEventJobUpdate

	for _, conn := range targets {
		if !conn.send(event, rateLimited) {
			b.logger.Warn().
				Str("connection_id", conn.info.ID).
				Str("event_type", string(event.Type)).
				Msg("Event dropped for slow or closed connection")
		}
	}
}

// CloseConnection removes a connection from the registry and both indexes
// and closes its channel. Safe to call twice.
func (b *Broadcaster) CloseConnection(connectionID string) {
	b.mu.Lock()
	conn, ok := b.connections[connectionID]
	if ok {
		b.removeLocked(conn)
	}
	remaining := len(b.connections)
	b.mu.Unlock()

	if !ok {
		return
	}
	conn.close()
	b.logger.Debug().
		Str("connection_id", connectionID).
		Int("remaining", remaining).
		Msg("Stream connection closed")
}

// removeLocked unlinks a connection from the registry and both indexes.
// Caller holds b.mu.
func (b *Broadcaster) removeLocked(conn *connection) {
	delete(b.connections, conn.info.ID)
	if subs := b.userSubscriptions[conn.info.UserID]; subs != nil {
		delete(subs, conn.info.ID)
		if len(subs) == 0 {
			delete(b.userSubscriptions, conn.info.UserID)
		}
	}
	if conn.info.JobID != "" {
		if subs := b.jobSubscriptions[conn.info.JobID]; subs != nil {
			delete(subs, conn.info.ID)
			if len(subs) == 0 {
				delete(b.jobSubscriptions, conn.info.JobID)
			}
		}
	}
}

// Touch records ping/pong activity so the stale sweep keeps the
// connection alive
func (b *Broadcaster) Touch(connectionID string) {
	b.mu.Lock()
	conn, ok := b.connections[connectionID]
	b.mu.Unlock()
	if ok {
		conn.touch()
	}
}

// ConnectionCount returns the number of open connections
func (b *Broadcaster) ConnectionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.connections)
}

// BridgeDocumentUpdates feeds external document changes from a
// persistence subscription into the fan-out as job_update events. The
// bridge runs until ctx is cancelled or the subscription channel closes.
func (b *Broadcaster) BridgeDocumentUpdates(ctx context.Context, persistence interfaces.Persistence, collection, docID, jobID, userID string) error {
	updates, err := persistence.Subscribe(ctx, collection, docID)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s/%s: %w", collection, docID, err)
	}

	b.wg.Add(1)
	common.SafeGo(b.logger, "status.bridge."+docID, func() {
		defer b.wg.Done()
		for {
			select {
			case <-b.stopCh:
				return
			case <-ctx.Done():
				return
			case doc, ok := <-updates:
				if !ok {
					return
				}
				event := models.NewStreamEvent(models.StreamEventJobUpdate, map[string]interface{}{
					"job_id":     jobID,
					"collection": collection,
					"document":   doc,
				})
				b.Publish(jobID, userID, event)
			}
		}
	})
	return nil
}

// sweepLoop pings idle connections and closes stale ones. One ticker
// serves both duties; ping cadence bounds the sweep resolution.
func (b *Broadcaster) sweepLoop() {
	ticker := time.NewTicker(b.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.sweep()
		}
	}
}

func (b *Broadcaster) sweep() {
	now := time.Now()

	b.mu.Lock()
	var idle, stale []*connection
	for _, conn := range b.connections {
		since := now.Sub(conn.idleSince())
		switch {
		case since > b.staleTimeout:
			stale = append(stale, conn)
		case since > b.pingInterval:
			idle = append(idle, conn)
		}
	}
	for _, conn := range stale {
		b.removeLocked(conn)
	}
	b.mu.Unlock()

	for _, conn := range stale {
		conn.close()
		b.logger.Info().
			Str("connection_id", conn.info.ID).
			Str("user_id", conn.info.UserID).
			Msg("Stale connection closed")
	}

	ping := models.NewStreamEvent(models.StreamEventPing, nil)
	for _, conn := range idle {
		conn.send(ping, false)
	}
}

// Close shuts down every connection and stops the background sweep
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	conns := make([]*connection, 0, len(b.connections))
	for _, conn := range b.connections {
		conns = append(conns, conn)
	}
	b.connections = make(map[string]*connection)
	b.userSubscriptions = make(map[string]map[string]*connection)
	b.jobSubscriptions = make(map[string]map[string]*connection)
	b.mu.Unlock()

	close(b.stopCh)
	for _, conn := range conns {
		conn.close()
	}
	b.wg.Wait()

	b.logger.Info().Int("closed", len(conns)).Msg("Status broadcaster stopped")
	return nil
}
