package api

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/eqiva-core/internal/bridges/eqiva"
	"github.com/nerrad567/eqiva-core/internal/infrastructure/config"
	"github.com/nerrad567/eqiva-core/internal/infrastructure/logging"
)

// ChannelThermostatState carries every DeviceState the controller produces.
const ChannelThermostatState = "thermostat.state"

// Hub fans controller states out to WebSocket clients.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}

	dropped atomic.Uint64
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{cfg: cfg, logger: logger, clients: make(map[*WSClient]struct{})}
}

// Run blocks until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}

// Register adds c to the hub.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n, "subject", c.subject)
}

// Unregister removes c and closes its send queue. Repeated calls are no-ops.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.close()
		h.logger.Debug("websocket client disconnected", "clients", n, "subject", c.subject)
	}
}

// Broadcast sends an event on channel to every client subscribed to it.
// A client whose queue is full misses the event; see Dropped.
func (h *Hub) Broadcast(channel string, payload any) {
	h.publish(channel, "", payload)
}

// BroadcastState sends st on ChannelThermostatState, honouring each
// client's address filter.
func (h *Hub) BroadcastState(st eqiva.DeviceState) {
	h.publish(ChannelThermostatState, st.Address, st)
}

func (h *Hub) publish(channel, address string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("encoding websocket event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		if c.wants(channel, address) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(data) {
			h.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped counts events discarded because a client's queue was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
