package hub

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Hub tracks currently connected clients. This service has no
// cross-instance command relay, so the registry is bookkeeping for
// graceful shutdown and connection counts only.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
	log     *zap.Logger
}

// NewHub builds an empty client registry.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]*Client),
		log:     log.Named("hub"),
	}
}

// Register adds c to the registry.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID()] = c
	h.log.Debug("client connected", zap.String("session", c.ID().String()))
}

// Unregister removes c from the registry.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c.ID())
	h.log.Debug("client disconnected", zap.String("session", c.ID().String()))
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
