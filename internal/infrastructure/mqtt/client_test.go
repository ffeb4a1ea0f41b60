package mqtt

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/eqiva-core/internal/infrastructure/config"
)

// fakeToken is an already-completed paho token.
type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type sent struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakePaho records what the Client asks paho to do. Unused methods fall
// through to the nil embedded interface.
type fakePaho struct {
	pahomqtt.Client

	mu           sync.Mutex
	up           bool
	sent         []sent
	routes       map[string]pahomqtt.MessageHandler
	unsubscribed []string
	disconnected bool
	tok          *fakeToken
}

func newFakePaho() *fakePaho {
	return &fakePaho{up: true, routes: make(map[string]pahomqtt.MessageHandler), tok: &fakeToken{}}
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.up
}

func (f *fakePaho) setUp(v bool) {
	f.mu.Lock()
	f.up = v
	f.mu.Unlock()
}

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, _ := payload.([]byte) //nolint:errcheck // Client always passes []byte
	f.sent = append(f.sent, sent{topic: topic, qos: qos, retained: retained, payload: b})
	return f.tok
}

func (f *fakePaho) Subscribe(filter string, _ byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[filter] = cb
	return f.tok
}

func (f *fakePaho) Unsubscribe(filters ...string) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, filters...)
	return f.tok
}

func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
	f.up = false
}

// deliver routes a message through the handler registered for filter.
func (f *fakePaho) deliver(t *testing.T, filter, topic string, payload []byte) {
	t.Helper()
	f.mu.Lock()
	h := f.routes[filter]
	f.mu.Unlock()
	if h == nil {
		t.Fatalf("nothing subscribed to %q", filter)
	}
	h(f, fakeMessage{topic: topic, payload: payload})
}

type fakeMessage struct {
	pahomqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker:    config.MQTTBrokerConfig{Host: "127.0.0.1", Port: 1883, ClientID: "eqiva-test"},
		QoS:       1,
		Reconnect: config.MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 5},
	}
}

func newTestClient() (*Client, *fakePaho) {
	fake := newFakePaho()
	c := &Client{paho: fake, cfg: testConfig(), subs: make(map[string]subscription)}
	c.connected.Store(true)
	return c, fake
}

func noop(string, []byte) error { return nil }

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "eqiva", Password: "secret"}
	cfg.Reconnect.MaxDelay = 60

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "eqiva-test" || opts.Username != "eqiva" || opts.Password != "secret" {
		t.Errorf("identity = %q %q/%q", opts.ClientID, opts.Username, opts.Password)
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("want auto-reconnect with a clean session")
	}
	if opts.MaxReconnectInterval != time.Minute || opts.ConnectRetryInterval != time.Second {
		t.Errorf("reconnect = %v/%v", opts.ConnectRetryInterval, opts.MaxReconnectInterval)
	}
	if opts.TLSConfig != nil && opts.TLSConfig.MinVersion != 0 {
		t.Error("TLS configured for a tcp broker")
	}
}

func TestBuildClientOptions_Defaults(t *testing.T) {
	cfg := testConfig()
	cfg.Reconnect = config.MQTTReconnectConfig{}

	opts := buildClientOptions(cfg)

	if opts.ConnectRetryInterval != defaultRetryInterval || opts.MaxReconnectInterval != defaultMaxReconnect {
		t.Errorf("reconnect = %v/%v, want defaults", opts.ConnectRetryInterval, opts.MaxReconnectInterval)
	}
	if opts.Username != "" {
		t.Errorf("Username = %q without credentials", opts.Username)
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)

	if got := opts.Servers[0].String(); got != "ssl://127.0.0.1:8883" {
		t.Errorf("Servers[0] = %s", got)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion == 0 {
		t.Error("want a TLS config with a minimum version")
	}
}

func TestWillApply(t *testing.T) {
	opts := buildClientOptions(testConfig())

	var none *Will
	none.apply(opts)
	(&Will{Payload: []byte("x")}).apply(opts)
	if opts.WillEnabled {
		t.Fatal("a will without a topic must not be enabled")
	}

	(&Will{Topic: "eqiva/health", Payload: []byte(`{"status":"offline"}`), QoS: 1, Retained: true}).apply(opts)
	if !opts.WillEnabled || opts.WillTopic != "eqiva/health" || !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will = %v %q %v %d", opts.WillEnabled, opts.WillTopic, opts.WillRetained, opts.WillQos)
	}
	if string(opts.WillPayload) != `{"status":"offline"}` {
		t.Errorf("WillPayload = %s", opts.WillPayload)
	}
}

func TestPublish(t *testing.T) {
	c, fake := newTestClient()

	if err := c.Publish("eqiva/state/00-1A-22-0A-0B-01", []byte(`{"mode":"auto"}`), 1, true); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := c.Publish("eqiva/ack/kitchen", []byte("ok"), 0, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if len(fake.sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(fake.sent))
	}
	if s := fake.sent[0]; s.topic != "eqiva/state/00-1A-22-0A-0B-01" || !s.retained || s.qos != 1 {
		t.Errorf("sent[0] = %+v", s)
	}
	if s := fake.sent[1]; s.retained || s.qos != 0 || string(s.payload) != "ok" {
		t.Errorf("sent[1] = %+v", s)
	}
}

func TestPublish_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", nil, 1, ErrInvalidTopic},
		{"single-level wildcard", "eqiva/state/+", nil, 1, ErrInvalidTopic},
		{"multi-level wildcard", "eqiva/#", nil, 1, ErrInvalidTopic},
		{"topic too long", strings.Repeat("a", maxTopicLength+1), nil, 1, ErrInvalidTopic},
		{"qos 3", "eqiva/x", nil, 3, ErrInvalidQoS},
		{"payload too large", "eqiva/x", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fake := newTestClient()
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
			if len(fake.sent) != 0 {
				t.Error("rejected publish reached paho")
			}
		})
	}
}

func TestPublish_Disconnected(t *testing.T) {
	c, fake := newTestClient()
	fake.setUp(false)

	if err := c.Publish("eqiva/x", nil, 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestPublish_TokenFailures(t *testing.T) {
	c, fake := newTestClient()

	fake.tok = &fakeToken{timeout: true}
	err := c.Publish("eqiva/x", nil, 1, false)
	if !errors.Is(err, ErrPublishFailed) || !errors.Is(err, ErrTimeout) {
		t.Errorf("Publish() on timeout = %v", err)
	}

	refused := errors.New("not authorised")
	fake.tok = &fakeToken{err: refused}
	err = c.Publish("eqiva/x", nil, 1, false)
	if !errors.Is(err, ErrPublishFailed) || !errors.Is(err, refused) {
		t.Errorf("Publish() on broker error = %v", err)
	}
}

func TestSubscribe_Delivers(t *testing.T) {
	c, fake := newTestClient()

	var gotTopic, gotPayload string
	err := c.Subscribe("eqiva/command/#", 1, func(topic string, payload []byte) error {
		gotTopic, gotPayload = topic, string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if got := c.Filters(); !slices.Equal(got, []string{"eqiva/command/#"}) {
		t.Errorf("Filters() = %v", got)
	}

	fake.deliver(t, "eqiva/command/#", "eqiva/command/kitchen", []byte(`{"command":"status"}`))
	if gotTopic != "eqiva/command/kitchen" || gotPayload != `{"command":"status"}` {
		t.Errorf("handler got %q %q", gotTopic, gotPayload)
	}
}

func TestSubscribe_Rejected(t *testing.T) {
	c, fake := newTestClient()

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty filter: %v", err)
	}
	if err := c.Subscribe("eqiva/#", 5, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("qos 5: %v", err)
	}
	if err := c.Subscribe("eqiva/#", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler: %v", err)
	}
	fake.setUp(false)
	if err := c.Subscribe("eqiva/#", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected: %v", err)
	}
	if got := c.Filters(); len(got) != 0 {
		t.Errorf("Filters() = %v, want none", got)
	}
}

func TestSubscribe_RefusedIsForgotten(t *testing.T) {
	c, fake := newTestClient()
	fake.tok = &fakeToken{err: errors.New("not authorised")}

	if err := c.Subscribe("eqiva/command/#", 1, noop); !errors.Is(err, ErrSubscribeFailed) {
		t.Fatalf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
	if got := c.Filters(); len(got) != 0 {
		t.Errorf("Filters() = %v after refusal", got)
	}
}

func TestUnsubscribe(t *testing.T) {
	c, fake := newTestClient()
	for _, f := range []string{"eqiva/state/+", "eqiva/command/#"} {
		if err := c.Subscribe(f, 1, noop); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", f, err)
		}
	}
	if got := c.Filters(); !slices.Equal(got, []string{"eqiva/command/#", "eqiva/state/+"}) {
		t.Errorf("Filters() = %v, want sorted", got)
	}

	if err := c.Unsubscribe("eqiva/command/#"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if got := c.Filters(); !slices.Equal(got, []string{"eqiva/state/+"}) {
		t.Errorf("Filters() = %v", got)
	}
	if !slices.Equal(fake.unsubscribed, []string{"eqiva/command/#"}) {
		t.Errorf("paho unsubscribes = %v", fake.unsubscribed)
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty filter: %v", err)
	}
}

func TestUnsubscribe_Disconnected(t *testing.T) {
	c, fake := newTestClient()
	if err := c.Subscribe("eqiva/command/#", 1, noop); err != nil {
		t.Fatal(err)
	}
	fake.setUp(false)

	if err := c.Unsubscribe("eqiva/command/#"); err != nil {
		t.Errorf("Unsubscribe() while offline = %v", err)
	}
	if len(c.Filters()) != 0 || len(fake.unsubscribed) != 0 {
		t.Errorf("filters=%v paho=%v", c.Filters(), fake.unsubscribed)
	}
}

func TestReconnectRenewsSubscriptions(t *testing.T) {
	c, fake := newTestClient()

	delivered := 0
	if err := c.Subscribe("eqiva/command/#", 1, func(string, []byte) error {
		delivered++
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	connects := 0
	c.SetOnConnect(func() { connects++ })

	// The broker forgets subscriptions on a clean-session reconnect.
	delete(fake.routes, "eqiva/command/#")
	c.handleDisconnect(errors.New("connection reset"))
	if c.IsConnected() {
		t.Error("IsConnected() = true after connection lost")
	}
	c.handleConnect()

	if connects != 1 {
		t.Errorf("onConnect ran %d times", connects)
	}
	fake.deliver(t, "eqiva/command/#", "eqiva/command/x", nil)
	if delivered != 1 {
		t.Errorf("delivered = %d after reconnect", delivered)
	}
}

func TestOnDisconnect(t *testing.T) {
	c, _ := newTestClient()

	var got error
	c.SetOnDisconnect(func(err error) { got = err })

	lost := errors.New("keepalive timeout")
	c.handleDisconnect(lost)
	if !errors.Is(got, lost) {
		t.Errorf("onDisconnect got %v", got)
	}
}

func TestDispatch_LogsErrorsAndPanics(t *testing.T) {
	c, fake := newTestClient()
	logger := &recordingLogger{}
	c.SetLogger(logger)

	if err := c.Subscribe("eqiva/err", 1, func(string, []byte) error { return errors.New("bad payload") }); err != nil {
		t.Fatal(err)
	}
	if err := c.Subscribe("eqiva/panic", 1, func(string, []byte) error { panic("boom") }); err != nil {
		t.Fatal(err)
	}

	fake.deliver(t, "eqiva/err", "eqiva/err", nil)
	fake.deliver(t, "eqiva/panic", "eqiva/panic", nil)

	if len(logger.warns) != 1 || len(logger.errors) != 1 {
		t.Errorf("warns=%v errors=%v", logger.warns, logger.errors)
	}
}

func TestDispatch_NoLogger(t *testing.T) {
	c, fake := newTestClient()
	if err := c.Subscribe("eqiva/panic", 1, func(string, []byte) error { panic("boom") }); err != nil {
		t.Fatal(err)
	}
	fake.deliver(t, "eqiva/panic", "eqiva/panic", nil)
}

func TestHealthCheck(t *testing.T) {
	c, fake := newTestClient()

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) = %v", err)
	}

	fake.setUp(false)
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck(offline) = %v", err)
	}
}

func TestClose(t *testing.T) {
	c, fake := newTestClient()

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !fake.disconnected || c.IsConnected() {
		t.Errorf("disconnected=%v IsConnected=%v", fake.disconnected, c.IsConnected())
	}
	if len(fake.sent) != 0 {
		t.Errorf("Close published %d messages", len(fake.sent))
	}

	var zero Client
	if err := zero.Close(); err != nil || zero.IsConnected() {
		t.Errorf("zero Client: Close=%v IsConnected=%v", err, zero.IsConnected())
	}
}
