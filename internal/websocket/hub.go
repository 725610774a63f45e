package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/lostpaws/lostpaws/internal/model"
)

// Message is a real-time frame pushed to connected devices.
type Message struct {
	Type         string              `json:"type"`
	Notification *model.Notification `json:"notification,omitempty"`
	Extra        map[string]any      `json:"extra,omitempty"`
}

// NotificationMessage wraps a stored notification for the wire.
func NotificationMessage(n *model.Notification) Message {
	return Message{Type: "notification", Notification: n}
}

// Hub tracks open WebSocket connections keyed by device id. One device may
// hold several connections (multiple tabs); Send fans out to all of them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client under its device id.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.clients[c.deviceID] == nil {
		h.clients[c.deviceID] = make(map[*Client]struct{})
	}
	h.clients[c.deviceID][c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if set, ok := h.clients[c.deviceID]; ok {
		if _, ok := set[c]; ok {
			delete(set, c)
			close(c.send)
		}
		if len(set) == 0 {
			delete(h.clients, c.deviceID)
		}
	}
	h.mu.Unlock()
}

// Send delivers a message to every open connection of one device.
func (h *Hub) Send(deviceID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal message", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[deviceID] {
		select {
		case c.send <- data:
		default:
			// Buffer full, drop rather than block the hub
		}
	}
}

// Broadcast sends a message to every connected device.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, set := range h.clients {
		for c := range set {
			select {
			case c.send <- data:
			default:
			}
		}
	}
}

// ClientCount returns the number of open connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}
