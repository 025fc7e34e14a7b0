package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

const (
	// Time allowed to write a message to the peer
	wsWriteWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	wsPongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than wsPongWait)
	wsPingPeriod = 54 * time.Second

	// Maximum inbound message size (clients only send pings/acks)
	wsMaxMessageSize = 1024
)

// WebSocketHandler serves real-time job events over WebSocket. Each
// upgraded connection is registered with the broadcaster and drained by a
// dedicated write pump; a read pump keeps the connection's liveness fresh.
type WebSocketHandler struct {
	broadcaster interfaces.StatusBroadcaster
	upgrader    websocket.Upgrader
	logger      arbor.ILogger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(broadcaster interfaces.StatusBroadcaster, logger arbor.ILogger) *WebSocketHandler {
	return &WebSocketHandler{
		broadcaster: broadcaster,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins; API is same-host or proxied
			},
		},
		logger: logger,
	}
}

// ServeWS upgrades the request and streams events until the client closes
// GET /ws?user_id=alice&job_id=job_123
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	jobID := r.URL.Query().Get("job_id")
	if userID == "" {
		WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	conn, err := h.broadcaster.OpenConnection(userID, jobID, models.TransportWebSocket)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to open stream connection")
		wsConn.Close()
		return
	}

	h.logger.Debug().
		Str("connection_id", conn.ID()).
		Str("user_id", userID).
		Str("job_id", jobID).
		Msg("WebSocket client connected")

	var writeMu sync.Mutex
	done := make(chan struct{})

	common.SafeGo(h.logger, "websocket.read", func() {
		h.readPump(wsConn, conn.ID(), done)
	})
	h.writePump(wsConn, conn, &writeMu, done)

	h.broadcaster.CloseConnection(conn.ID())
	wsConn.Close()
	h.logger.Debug().Str("connection_id", conn.ID()).Msg("WebSocket client disconnected")
}

// readPump drains inbound messages. Clients send nothing meaningful; the
// pump exists to process pongs and detect the close.
func (h *WebSocketHandler) readPump(wsConn *websocket.Conn, connectionID string, done chan struct{}) {
	defer close(done)

	wsConn.SetReadLimit(wsMaxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(wsPongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(wsPongWait))
		h.broadcaster.Touch(connectionID)
		return nil
	})

	for {
		if _, _, err := wsConn.ReadMessage(); err != nil {
			return
		}
		h.broadcaster.Touch(connectionID)
	}
}

// writePump forwards broadcaster events to the peer and keeps the
// connection alive with protocol pings.
func (h *WebSocketHandler) writePump(wsConn *websocket.Conn, conn interfaces.StreamConnection, writeMu *sync.Mutex, done chan struct{}) {
	pingTicker := time.NewTicker(wsPingPeriod)
	defer pingTicker.Stop()

	for {
		select {
		case <-done:
			return
		case event, open := <-conn.Events():
			if !open {
				writeMu.Lock()
				wsConn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				writeMu.Unlock()
				return
			}
			writeMu.Lock()
			wsConn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			err := wsConn.WriteJSON(event)
			writeMu.Unlock()
			if err != nil {
				h.logger.Debug().Err(err).Str("connection_id", conn.ID()).Msg("WebSocket write failed")
				return
			}
		case <-pingTicker.C:
			writeMu.Lock()
			wsConn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			err := wsConn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
