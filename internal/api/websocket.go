package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/eqiva-core/internal/bridges/eqiva"
	"github.com/nerrad567/eqiva-core/internal/infrastructure/config"
)

// Message types exchanged with WebSocket clients.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

const (
	wsSendBufferSize = 256

	defaultWSMaxMessage   = 8192
	defaultWSPingInterval = 30 * time.Second
	defaultWSPongTimeout  = 10 * time.Second
)

// WSMessage is the envelope for every frame in either direction.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload selects channels and, optionally, thermostats. An
// empty Addresses list means every thermostat. Addresses accumulate across
// subscribe messages and are removed by unsubscribe.
type WSSubscribePayload struct {
	Channels  []string `json:"channels"`
	Addresses []string `json:"addresses,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// corsMiddleware has already vetted the origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsTimings fills unset websocket settings with defaults.
func wsTimings(cfg config.WebSocketConfig) (maxMessage int64, ping, pongWait time.Duration) {
	maxMessage, ping, pongWait = defaultWSMaxMessage, defaultWSPingInterval, defaultWSPongTimeout
	if cfg.MaxMessageSize > 0 {
		maxMessage = int64(cfg.MaxMessageSize)
	}
	if cfg.PingInterval > 0 {
		ping = time.Duration(cfg.PingInterval) * time.Second
	}
	if cfg.PongTimeout > 0 {
		pongWait = time.Duration(cfg.PongTimeout) * time.Second
	}
	return maxMessage, ping, pongWait
}

// WSClient is one WebSocket connection and its subscriptions.
type WSClient struct {
	hub     *Hub
	conn    *websocket.Conn
	subject string // token subject; empty when auth is disabled

	mu        sync.Mutex
	send      chan []byte
	closed    bool
	channels  map[string]struct{}
	addresses map[string]struct{}
}

func newWSClient(hub *Hub, conn *websocket.Conn, subject string) *WSClient {
	return &WSClient{
		hub:       hub,
		conn:      conn,
		subject:   subject,
		send:      make(chan []byte, wsSendBufferSize),
		channels:  make(map[string]struct{}),
		addresses: make(map[string]struct{}),
	}
}

// handleWebSocket upgrades the request. authMiddleware has already checked
// the token when auth is enabled.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "request_id", requestID(r))
		return
	}

	subject, _ := r.Context().Value(ctxKeySubject).(string) //nolint:errcheck // absent when auth is disabled
	c := newWSClient(s.hub, conn, subject)
	s.hub.Register(c)

	go c.writeLoop()
	go c.readLoop()
}

// enqueue queues data without blocking. It reports false when the client
// is closed or its queue is full.
func (c *WSClient) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close ends the write loop, which sends a close frame and drops the
// connection.
func (c *WSClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// wants reports whether an event on channel about address should reach c.
func (c *WSClient) wants(channel, address string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.channels[channel]; !ok {
		return false
	}
	if address == "" || len(c.addresses) == 0 {
		return true
	}
	_, ok := c.addresses[address]
	return ok
}

func (c *WSClient) readLoop() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	maxMessage, ping, pongWait := wsTimings(c.hub.cfg)
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(ping + pongWait)) }

	c.conn.SetReadLimit(maxMessage)
	extend() //nolint:errcheck // a failed deadline surfaces as a read error
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read failed", "error", err, "subject", c.subject)
			}
			return
		}
		// Browsers do not always answer protocol pings; any frame counts.
		extend() //nolint:errcheck // a failed deadline surfaces as a read error
		c.handle(data)
	}
}

func (c *WSClient) writeLoop() {
	_, ping, pongWait := wsTimings(c.hub.cfg)
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(pongWait)) //nolint:errcheck // a failed deadline surfaces as a write error
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // connection is closing anyway
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handle(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply("", WSTypeError, errorPayload("invalid JSON message"))
		return
	}

	switch msg.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var sel WSSubscribePayload
		if err := decodePayload(msg.Payload, &sel); err != nil || len(sel.Channels)+len(sel.Addresses) == 0 {
			c.reply(msg.ID, WSTypeError, errorPayload("payload must list channels or addresses"))
			return
		}
		addrs, ok := normalizeAddresses(sel.Addresses)
		if !ok {
			c.reply(msg.ID, WSTypeError, errorPayload("addresses must be thermostat MAC addresses"))
			return
		}
		if msg.Type == WSTypeSubscribe {
			c.subscribe(sel.Channels, addrs)
			c.hub.logger.Info("websocket client subscribed", "channels", sel.Channels, "addresses", addrs, "subject", c.subject)
			c.reply(msg.ID, WSTypeResponse, map[string]any{"subscribed": sel.Channels, "addresses": addrs})
			return
		}
		c.unsubscribe(sel.Channels, addrs)
		c.reply(msg.ID, WSTypeResponse, map[string]any{"unsubscribed": sel.Channels, "addresses": addrs})
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	default:
		c.reply(msg.ID, WSTypeError, errorPayload("unknown message type: "+msg.Type))
	}
}

func (c *WSClient) subscribe(channels, addresses []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		c.channels[ch] = struct{}{}
	}
	for _, a := range addresses {
		c.addresses[a] = struct{}{}
	}
}

func (c *WSClient) unsubscribe(channels, addresses []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		delete(c.channels, ch)
	}
	for _, a := range addresses {
		delete(c.addresses, a)
	}
}

func (c *WSClient) reply(id, kind string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      kind,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err == nil {
		c.enqueue(data)
	}
}

func errorPayload(msg string) map[string]string {
	return map[string]string{"message": msg}
}

// decodePayload re-decodes a generically unmarshalled payload into v.
func decodePayload(payload any, v any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// normalizeAddresses canonicalises addresses and rejects anything that is
// not an Eqiva MAC.
func normalizeAddresses(in []string) ([]string, bool) {
	out := make([]string, 0, len(in))
	for _, a := range in {
		a = eqiva.NormalizeAddress(a)
		if !eqiva.IsEqivaAddress(a) {
			return nil, false
		}
		out = append(out, a)
	}
	return out, true
}
