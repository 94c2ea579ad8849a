package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"marketwatch/internal/logging"
	"marketwatch/internal/models"
)

const (
	maxHubConnections = 100
	hubWriteWait      = 5 * time.Second
)

// Hub tracks connected WebSocket clients and broadcasts alerts to them.
type Hub struct {
	mutex       sync.Mutex
	connections map[*websocket.Conn]bool
	logger      *logging.Logger
}

// NewHub returns an empty Hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		connections: make(map[*websocket.Conn]bool),
		logger:      logger,
	}
}

// AddConnection registers a client connection.
func (h *Hub) AddConnection(conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if len(h.connections) >= maxHubConnections {
		h.logger.Warnf("Max WebSocket connections reached, rejecting client")
		_ = conn.Close()
		return
	}
	h.connections[conn] = true
	h.logger.Infof("Added WebSocket connection (total: %d)", len(h.connections))
}

// RemoveConnection unregisters a client connection.
func (h *Hub) RemoveConnection(conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, exists := h.connections[conn]; exists {
		delete(h.connections, conn)
		h.logger.Infof("Removed WebSocket connection (remaining: %d)", len(h.connections))
	}
}

// wsAlert is the payload pushed to WebSocket clients.
type wsAlert struct {
	Event   models.AlertEvent `json:"event"`
	Message string            `json:"message"`
}

// Send broadcasts the alert to every connected client. It satisfies
// SendFunc so the hub can be registered as the "websocket" channel.
// Delivery succeeds if at least the broadcast itself did not fail
// wholesale; individual dead connections are dropped.
func (h *Hub) Send(ctx context.Context, event models.AlertEvent, message string, params models.ChannelParams) error {
	payload, err := json.Marshal(wsAlert{Event: event, Message: message})
	if err != nil {
		return fmt.Errorf("marshal websocket alert: %w", err)
	}

	// Every write carries a deadline so a client that stops reading fails
	// the write instead of blocking the broadcast (and, through the mutex,
	// every other sender) indefinitely.
	deadline := time.Now().Add(hubWriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for conn := range h.connections {
		_ = conn.SetWriteDeadline(deadline)
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Warnf("WebSocket write failed, dropping connection: %v", err)
			_ = conn.Close()
			delete(h.connections, conn)
		}
	}
	return nil
}
