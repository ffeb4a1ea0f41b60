package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/eqiva-core/internal/infrastructure/config"
)

// Logger receives handler failures and reconnect notices. *logging.Logger
// and *slog.Logger both satisfy it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler processes one message. topic is the concrete topic the
// message arrived on, not the subscription filter. A returned error is
// logged and otherwise ignored.
type MessageHandler func(topic string, payload []byte) error

type subscription struct {
	filter  string
	qos     byte
	handler MessageHandler
}

// Client is a paho client that remembers its subscriptions across
// reconnects. All methods are safe for concurrent use.
type Client struct {
	paho    pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig

	connected atomic.Bool

	mu           sync.RWMutex
	subs         map[string]subscription
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Connect dials the broker from cfg and waits for the first CONNACK.
//
// Parameters:
//   - cfg: The mqtt section of config.yaml
//   - will: Optional last will, published by the broker if the daemon vanishes
//
// Returns:
//   - *Client: Connected client; paho reconnects it in the background
//   - error: ErrConnectionFailed wrapping the cause
func Connect(cfg config.MQTTConfig, will *Will) (*Client, error) {
	opts := buildClientOptions(cfg)
	will.apply(opts)

	c := &Client{
		options: opts,
		cfg:     cfg,
		subs:    make(map[string]subscription),
	}
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		if l := c.log(); l != nil {
			l.Warn("mqtt reconnecting", "broker", brokerURL(cfg.Broker))
		}
	})

	c.paho = pahomqtt.NewClient(opts)
	tok := c.paho.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, brokerURL(cfg.Broker), ErrTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, brokerURL(cfg.Broker), err)
	}

	// The OnConnect handler runs asynchronously; mark the client usable now.
	c.connected.Store(true)
	return c, nil
}

func (c *Client) handleConnect() {
	c.connected.Store(true)

	c.mu.RLock()
	subs := make([]subscription, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	cb := c.onConnect
	c.mu.RUnlock()

	for _, s := range subs {
		// Fire and forget: a failed renewal is retried on the next reconnect.
		c.paho.Subscribe(s.filter, s.qos, c.dispatch(s.handler))
	}
	if cb != nil {
		cb()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.connected.Store(false)

	c.mu.RLock()
	cb := c.onDisconnect
	c.mu.RUnlock()
	if cb != nil {
		cb(err)
	}
}

// Close disconnects, giving in-flight publishes a second to drain. Anything
// the caller wants the broker to see (the bridge's "stopping" health
// message) must be published first.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	c.paho.Disconnect(quiesceMillis)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected combines the client's own state with paho's.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.paho != nil && c.paho.IsConnected()
}

// SetOnConnect registers fn for the initial connect and every reconnect.
func (c *Client) SetOnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

// SetOnDisconnect registers fn for lost connections.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

// SetLogger sets where handler errors and panics are reported. Without a
// logger they are dropped.
func (c *Client) SetLogger(l Logger) {
	c.mu.Lock()
	c.logger = l
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// dispatch adapts h to paho and recovers handler panics.
func (c *Client) dispatch(h MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if l := c.log(); l != nil {
					l.Error("mqtt handler panic", "topic", msg.Topic(), "panic", r)
				}
			}
		}()
		if err := h(msg.Topic(), msg.Payload()); err != nil {
			if l := c.log(); l != nil {
				l.Warn("mqtt handler failed", "topic", msg.Topic(), "error", err)
			}
		}
	}
}
