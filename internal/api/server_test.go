package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/eqiva-core/internal/bridges/eqiva"
	"github.com/nerrad567/eqiva-core/internal/infrastructure/config"
	"github.com/nerrad567/eqiva-core/internal/infrastructure/database"
	"github.com/nerrad567/eqiva-core/internal/infrastructure/logging"
	"github.com/nerrad567/eqiva-core/internal/thermostat"
	_ "github.com/nerrad567/eqiva-core/migrations" // registers the embedded schema
)

const (
	addrKitchen = "00:1A:22:0A:0B:01"
	addrOffice  = "00:1A:22:0A:0B:02"

	testSecret = "test-secret-key-at-least-32-characters-long"
)

// fakeExecutor stands in for eqiva.Controller. Execute records the request
// and returns the canned outcome; listeners are fired for its states.
type fakeExecutor struct {
	mu        sync.Mutex
	requests  []eqiva.Request
	outcome   eqiva.Outcome
	err       error
	stats     eqiva.ControllerStats
	listeners []func(eqiva.DeviceState)
}

func (f *fakeExecutor) Execute(_ context.Context, req eqiva.Request) (eqiva.Outcome, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	outcome, err := f.outcome, f.err
	listeners := slices.Clone(f.listeners)
	f.mu.Unlock()

	if err == nil {
		for _, st := range outcome.States {
			for _, fn := range listeners {
				fn(st)
			}
		}
	}
	return outcome, err
}

func (f *fakeExecutor) OnState(fn func(eqiva.DeviceState)) {
	f.mu.Lock()
	f.listeners = append(f.listeners, fn)
	f.mu.Unlock()
}

func (f *fakeExecutor) Stats() eqiva.ControllerStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *fakeExecutor) Requests() []eqiva.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]eqiva.Request(nil), f.requests...)
}

// succeed makes every request succeed for the given addresses.
func (f *fakeExecutor) succeed(states ...eqiva.DeviceState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcome = eqiva.Outcome{States: map[string]eqiva.DeviceState{}, Results: eqiva.Results{}}
	for _, st := range states {
		f.outcome.States[st.Address] = st
		f.outcome.Results[st.Address] = nil
	}
	f.err = nil
}

type fakeBroker struct{ connected bool }

func (b fakeBroker) IsConnected() bool { return b.connected }

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

// openTestDB opens a migrated database in a temporary directory.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "eqiva.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db.DB
}

// testRegistry creates a registry over a migrated SQLite database.
func testRegistry(t *testing.T) *thermostat.Registry {
	t.Helper()

	registry := thermostat.NewRegistry(thermostat.NewSQLiteRepository(openTestDB(t)))
	if err := registry.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}
	return registry
}

func testDeps(t *testing.T) Deps {
	t.Helper()
	return Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Limits:     TemperatureLimits{Min: 5, Max: 30},
		Logger:     testLogger(),
		Registry:   testRegistry(t),
		Controller: &fakeExecutor{},
		Version:    "test",
	}
}

// testServer creates a Server with auth disabled and a fake controller.
func testServer(t *testing.T) (*Server, *fakeExecutor) {
	t.Helper()
	return testServerWith(t, testDeps(t))
}

func testServerWith(t *testing.T, deps Deps) (*Server, *fakeExecutor) {
	t.Helper()
	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	exec, _ := deps.Controller.(*fakeExecutor)
	return srv, exec
}

func serve(t *testing.T, h http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decoding body %q: %v", w.Body.String(), err)
	}
}

func statusState(addr string, mode eqiva.Mode, valve uint8, celsius float64) eqiva.DeviceState {
	temp, err := eqiva.NewSetpoint(celsius)
	if err != nil {
		panic(err)
	}
	return eqiva.DeviceState{
		Address:     addr,
		Mode:        &mode,
		Valve:       &valve,
		Temperature: &temp,
		UpdatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// ─── Construction ──────────────────────────────────────────────────

func TestNew_RequiresDependencies(t *testing.T) {
	deps := testDeps(t)

	noLogger := deps
	noLogger.Logger = nil
	if _, err := New(noLogger); err == nil {
		t.Error("New() without logger should fail")
	}

	noRegistry := deps
	noRegistry.Registry = nil
	if _, err := New(noRegistry); err == nil {
		t.Error("New() without registry should fail")
	}

	noController := deps
	noController.Controller = nil
	if _, err := New(noController); err == nil {
		t.Error("New() without controller should fail")
	}
}

func TestNew_DefaultLimits(t *testing.T) {
	deps := testDeps(t)
	deps.Limits = TemperatureLimits{}
	srv, _ := testServerWith(t, deps)

	if srv.limits.Min != 5 || srv.limits.Max != 30 {
		t.Errorf("limits = %+v, want 5..30", srv.limits)
	}
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, exec := testServer(t)
	exec.stats = eqiva.ControllerStats{Requests: 3, Failed: 1}

	w := serve(t, srv.Handler(), http.MethodGet, "/api/v1/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp map[string]any
	decodeBody(t, w, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
	if resp["requests"] != float64(3) || resp["failed"] != float64(1) {
		t.Errorf("counters = %v/%v, want 3/1", resp["requests"], resp["failed"])
	}
	if _, ok := resp["mqtt_connected"]; ok {
		t.Error("mqtt_connected reported without a broker")
	}
}

func TestHealth_MQTTStatus(t *testing.T) {
	deps := testDeps(t)
	deps.MQTT = fakeBroker{connected: true}
	srv, _ := testServerWith(t, deps)

	w := serve(t, srv.Handler(), http.MethodGet, "/api/v1/health", nil)
	var resp map[string]any
	decodeBody(t, w, &resp)
	if resp["mqtt_connected"] != true {
		t.Errorf("mqtt_connected = %v, want true", resp["mqtt_connected"])
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	srv, _ := testServer(t)

	w := serve(t, srv.Handler(), http.MethodGet, "/api/v1/health", nil)
	if _, err := uuid.Parse(w.Header().Get("X-Request-ID")); err != nil {
		t.Errorf("X-Request-ID = %q, want a UUID: %v", w.Header().Get("X-Request-ID"), err)
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-id-123")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-id-123" {
		t.Errorf("X-Request-ID = %q, want client-id-123", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/thermostats", nil)
	req.Header.Set("Origin", "http://homebridge.local")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://homebridge.local" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	deps := testDeps(t)
	deps.Config.CORS.AllowedOrigins = []string{"http://panel.local"}
	srv, _ := testServerWith(t, deps)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q, want empty", got)
	}
}

func TestRecovery(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := serve(t, h, http.MethodGet, "/", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t)

	w := serve(t, srv.Handler(), http.MethodGet, "/api/v1/nonexistent", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestBodySizeLimit(t *testing.T) {
	srv, _ := testServer(t)

	body := `{"command":"on","parameters":{"pad":"` + strings.Repeat("x", maxRequestBodySize) + `"}}`
	w := serve(t, srv.Handler(), http.MethodPost, "/api/v1/thermostats/"+addrKitchen+"/commands", strings.NewReader(body))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// ─── WebSocket Hub Tests ───────────────────────────────────────────

func testHub() *Hub {
	return NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, testLogger())
}

// hubClient registers a connectionless client subscribed to channels.
func hubClient(hub *Hub, channels []string, addresses ...string) *WSClient {
	c := newWSClient(hub, nil, "")
	c.subscribe(channels, addresses)
	hub.Register(c)
	return c
}

func readEvent(t *testing.T, c *WSClient) (WSMessage, bool) {
	t.Helper()
	select {
	case data := <-c.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg, true
	case <-time.After(100 * time.Millisecond):
		return WSMessage{}, false
	}
}

func TestHub_BroadcastState(t *testing.T) {
	hub := testHub()
	client := hubClient(hub, []string{ChannelThermostatState})

	hub.BroadcastState(statusState(addrKitchen, eqiva.ModeManual, 40, 21.5))

	msg, ok := readEvent(t, client)
	if !ok {
		t.Fatal("no event delivered")
	}
	if msg.Type != WSTypeEvent || msg.EventType != ChannelThermostatState {
		t.Errorf("event = %+v", msg)
	}
	payload, _ := msg.Payload.(map[string]any)
	if payload["mac"] != addrKitchen {
		t.Errorf("payload mac = %v, want %s", payload["mac"], addrKitchen)
	}
}

func TestHub_ChannelFilter(t *testing.T) {
	hub := testHub()
	client := hubClient(hub, []string{"other.channel"})

	hub.BroadcastState(statusState(addrKitchen, eqiva.ModeAuto, 0, 20))
	if _, ok := readEvent(t, client); ok {
		t.Error("client not subscribed to thermostat.state received a state")
	}

	hub.Broadcast("other.channel", map[string]any{"note": "x"})
	if _, ok := readEvent(t, client); !ok {
		t.Error("subscribed channel not delivered")
	}
}

func TestHub_AddressFilter(t *testing.T) {
	hub := testHub()
	kitchenOnly := hubClient(hub, []string{ChannelThermostatState}, addrKitchen)
	everyone := hubClient(hub, []string{ChannelThermostatState})

	hub.BroadcastState(statusState(addrOffice, eqiva.ModeAuto, 0, 20))
	if _, ok := readEvent(t, kitchenOnly); ok {
		t.Error("address filter let another thermostat through")
	}
	if _, ok := readEvent(t, everyone); !ok {
		t.Error("unfiltered client missed the state")
	}

	hub.BroadcastState(statusState(addrKitchen, eqiva.ModeAuto, 0, 20))
	if _, ok := readEvent(t, kitchenOnly); !ok {
		t.Error("filtered client missed its thermostat")
	}
}

func TestHub_FullQueueCountsDrops(t *testing.T) {
	hub := testHub()
	client := hubClient(hub, []string{ChannelThermostatState})

	for range wsSendBufferSize + 3 {
		hub.BroadcastState(statusState(addrKitchen, eqiva.ModeAuto, 0, 20))
	}
	if got := hub.Dropped(); got != 3 {
		t.Errorf("Dropped() = %d, want 3", got)
	}
	if len(client.send) != wsSendBufferSize {
		t.Errorf("queued = %d, want %d", len(client.send), wsSendBufferSize)
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := testHub()
	if hub.ClientCount() != 0 {
		t.Fatalf("initial client count = %d", hub.ClientCount())
	}

	client := hubClient(hub, nil)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}
	if client.enqueue([]byte("late")) {
		t.Error("enqueue succeeded on a closed client")
	}
}

func TestHub_RunClosesClients(t *testing.T) {
	hub := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	client := hubClient(hub, nil)

	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if _, ok := <-client.send; ok {
		t.Error("send channel should be closed")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("client count = %d, want 0", hub.ClientCount())
	}
	hub.Unregister(client)
}

func TestWSTimings(t *testing.T) {
	maxMsg, ping, pong := wsTimings(config.WebSocketConfig{})
	if maxMsg != defaultWSMaxMessage || ping != defaultWSPingInterval || pong != defaultWSPongTimeout {
		t.Errorf("defaults = %d %v %v", maxMsg, ping, pong)
	}
	maxMsg, ping, pong = wsTimings(config.WebSocketConfig{MaxMessageSize: 1024, PingInterval: 5, PongTimeout: 2})
	if maxMsg != 1024 || ping != 5*time.Second || pong != 2*time.Second {
		t.Errorf("configured = %d %v %v", maxMsg, ping, pong)
	}
}

// ─── WebSocket Connection Tests ────────────────────────────────────

func dialWebSocket(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws" + query
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func subscribe(t *testing.T, ws *websocket.Conn, channels ...string) {
	t.Helper()
	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: channels},
	}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	var resp WSMessage
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read subscribe response: %v", err)
	}
	if resp.Type != WSTypeResponse || resp.ID != "sub-1" {
		t.Fatalf("subscribe response = %+v", resp)
	}
}

func TestWebSocket_StateBroadcast(t *testing.T) {
	srv, exec := testServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ws := dialWebSocket(t, ts, "")
	subscribe(t, ws, ChannelThermostatState)

	exec.succeed(statusState(addrKitchen, eqiva.ModeAuto, 10, 20))
	w := serve(t, srv.Handler(), http.MethodPost, "/api/v1/thermostats/"+addrKitchen+"/commands",
		strings.NewReader(`{"command":"status"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("command status = %d: %s", w.Code, w.Body.String())
	}

	var event WSMessage
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := ws.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if event.Type != WSTypeEvent || event.EventType != ChannelThermostatState {
		t.Fatalf("event = %+v", event)
	}
	payload, _ := event.Payload.(map[string]any)
	if payload["mac"] != addrKitchen {
		t.Errorf("payload mac = %v, want %s", payload["mac"], addrKitchen)
	}
}

func TestWebSocket_SubscribeUnsubscribe(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ws := dialWebSocket(t, ts, "")
	subscribe(t, ws, ChannelThermostatState, "other.channel")

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeUnsubscribe,
		ID:      "unsub-1",
		Payload: WSSubscribePayload{Channels: []string{"other.channel"}},
	}); err != nil {
		t.Fatalf("write unsubscribe: %v", err)
	}

	var resp WSMessage
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read unsubscribe response: %v", err)
	}
	if resp.Type != WSTypeResponse || resp.ID != "unsub-1" {
		t.Errorf("unsubscribe response = %+v", resp)
	}
}

func TestWebSocket_AddressSubscription(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ws := dialWebSocket(t, ts, "")
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-bad",
		Payload: WSSubscribePayload{Channels: []string{ChannelThermostatState}, Addresses: []string{"AA:BB:CC:DD:EE:FF"}},
	}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.Type != WSTypeError || resp.ID != "sub-bad" {
		t.Errorf("foreign address response = %+v", resp)
	}

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-2",
		Payload: WSSubscribePayload{Channels: []string{ChannelThermostatState}, Addresses: []string{"00-1a-22-0a-0b-01"}},
	}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	payload, _ := resp.Payload.(map[string]any)
	addrs, _ := payload["addresses"].([]any)
	if resp.Type != WSTypeResponse || len(addrs) != 1 || addrs[0] != addrKitchen {
		t.Errorf("subscribe response = %+v", resp)
	}

	srv.hub.BroadcastState(statusState(addrOffice, eqiva.ModeAuto, 0, 20))
	srv.hub.BroadcastState(statusState(addrKitchen, eqiva.ModeAuto, 0, 20))
	var event WSMessage
	if err := ws.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	payload, _ = event.Payload.(map[string]any)
	if payload["mac"] != addrKitchen {
		t.Errorf("first event mac = %v, want only %s", payload["mac"], addrKitchen)
	}
}

func TestWebSocket_PingAndErrors(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ws := dialWebSocket(t, ts, "")
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "ping-1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if resp.Type != WSTypePong || resp.ID != "ping-1" {
		t.Errorf("pong = %+v", resp)
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write invalid: %v", err)
	}
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read error: %v", err)
	}
	if resp.Type != WSTypeError {
		t.Errorf("invalid JSON response type = %s, want error", resp.Type)
	}

	if err := ws.WriteJSON(WSMessage{Type: "dance", ID: "x-1"}); err != nil {
		t.Fatalf("write unknown: %v", err)
	}
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read error: %v", err)
	}
	if resp.Type != WSTypeError || resp.ID != "x-1" {
		t.Errorf("unknown type response = %+v", resp)
	}
}

// ─── Lifecycle Tests ───────────────────────────────────────────────

func TestServer_StartAndClose(t *testing.T) {
	deps := testDeps(t)
	deps.Config.Port = 0
	srv, _ := testServerWith(t, deps)

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
	if srv.Addr() != "" {
		t.Errorf("Addr() before Start = %q, want empty", srv.Addr())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() after Start = %v", err)
	}

	base := "http://" + srv.Addr()
	resp, err := http.Get(base + "/api/v1/health")
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health check status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if _, err := http.Get(base + "/api/v1/health"); err == nil {
		t.Error("server still responding after Close()")
	}
}

func TestServer_StartPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	deps := testDeps(t)
	deps.Config.Port = ln.Addr().(*net.TCPAddr).Port
	srv, _ := testServerWith(t, deps)

	if err := srv.Start(context.Background()); err == nil {
		srv.Close() //nolint:errcheck // test cleanup
		t.Fatal("Start() on a bound port should fail")
	}
	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() after failed Start should fail")
	}
}

func TestServer_CloseBeforeStart(t *testing.T) {
	srv, _ := testServer(t)
	if err := srv.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}

func TestServer_HealthCheckCancelled(t *testing.T) {
	srv, _ := testServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := srv.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() with cancelled context should fail")
	}
}

func TestWriteProblem(t *testing.T) {
	tests := []struct {
		status int
		code   string
	}{
		{http.StatusBadRequest, "bad_request"},
		{http.StatusUnauthorized, "unauthorised"},
		{http.StatusNotFound, "not_found"},
		{http.StatusInternalServerError, "internal_error"},
		{http.StatusServiceUnavailable, "unavailable"},
		{http.StatusTeapot, "error"},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		writeProblem(w, tt.status, "nope")

		var body ErrorResponse
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if w.Code != tt.status || body.Status != tt.status || body.Code != tt.code || body.Message != "nope" {
			t.Errorf("writeProblem(%d) = %d %+v, want code %q", tt.status, w.Code, body, tt.code)
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
	}
}
