package http

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
	"live-quiz-service/internal/realtime"
)

type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Hub delivers events to websocket clients. Channel membership lives in
// realtime.Rooms; the hub only owns the per-connection send queues.
type Hub struct {
	rooms  *realtime.Rooms
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[string]*client
}

func NewHub(rooms *realtime.Rooms, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:   rooms,
		logger:  logger,
		clients: make(map[string]*client),
	}
}

func (h *Hub) Subscribe(channel, connID string) {
	h.rooms.Join(channel, connID)
}

func (h *Hub) Unsubscribe(channel, connID string) {
	h.rooms.Leave(channel, connID)
}

func (h *Hub) Close(channel string) {
	h.rooms.Drop(channel)
}

func (h *Hub) Broadcast(channel, event string, payload any) {
	data, err := encode(event, payload)
	if err != nil {
		h.logger.Error("encode broadcast", zap.String("event", event), zap.Error(err))
		return
	}
	for _, connID := range h.rooms.Members(channel) {
		h.deliver(connID, data)
	}
}

func (h *Hub) Send(connID, event string, payload any) {
	data, err := encode(event, payload)
	if err != nil {
		h.logger.Error("encode message", zap.String("event", event), zap.Error(err))
		return
	}
	h.deliver(connID, data)
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) deliver(connID string, data []byte) {
	h.mu.RLock()
	c, ok := h.clients[connID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	select {
	case c.send <- data:
		h.mu.RUnlock()
	default:
		h.mu.RUnlock()
		h.logger.Warn("send buffer full, dropping client", zap.String("connId", connID))
		h.unregister(c)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
}

// unregister closes the client's queue once and removes it from every channel.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	current, ok := h.clients[c.id]
	if ok && current == c {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
	if ok && current == c {
		h.rooms.LeaveAll(c.id)
	}
}

func encode(event string, payload any) ([]byte, error) {
	return json.Marshal(envelope{Type: event, Payload: payload})
}
