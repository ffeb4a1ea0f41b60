package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/eqiva-core/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// pointWriter is the part of the non-blocking api.WriteAPI the client uses.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
	Errors() <-chan error
}

// pinger is the part of influxdb2.Client used for health checks.
type pinger interface {
	Ping(ctx context.Context) (bool, error)
	Close()
}

// Client writes thermostat telemetry to one InfluxDB bucket. Writes are
// batched and non-blocking; batch failures go to the SetOnError callback.
type Client struct {
	server pinger
	writer pointWriter

	connected atomic.Bool
	closeOnce sync.Once

	mu      sync.RWMutex
	onError func(err error)
}

// writeOptions maps the config onto client options. Non-positive batch and
// flush settings fall back to the defaults.
func writeOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}
	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds())).
		SetPrecision(time.Second)
}

// Connect pings the server and opens the bucket writer.
//
// Parameters:
//   - cfg: The influxdb section of config.yaml
//
// Returns:
//   - *Client: Client ready to record states and commands
//   - error: ErrDisabled when cfg.Enabled is false, ErrConnectionFailed when
//     the server is unreachable or unhealthy
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	server := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	healthy, err := server.Ping(ctx)
	if err != nil {
		server.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}
	if !healthy {
		server.Close()
		return nil, fmt.Errorf("%w: %s: server not healthy", ErrConnectionFailed, cfg.URL)
	}

	return newClient(server, server.WriteAPI(cfg.Org, cfg.Bucket)), nil
}

// newClient starts forwarding batch errors from writer.
func newClient(server pinger, writer pointWriter) *Client {
	c := &Client{server: server, writer: writer}
	c.connected.Store(true)
	if errs := writer.Errors(); errs != nil {
		go c.forwardErrors(errs)
	}
	return c
}

func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		fn := c.onError
		c.mu.RUnlock()
		if fn != nil {
			fn(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

// SetOnError sets the callback for asynchronous batch write failures.
func (c *Client) SetOnError(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// IsConnected reports whether the client is open. It does not ping; use
// HealthCheck for that.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// write queues p when the client is open.
func (c *Client) write(p *write.Point) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	c.writer.WritePoint(p)
	return nil
}

// Flush blocks until queued points are sent. No-op once closed.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writer.Flush()
	}
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := c.server.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check failed: server not healthy")
	}
	return nil
}

// Close flushes queued points and releases the client. Safe to call more
// than once and on a zero Client.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if !c.connected.Swap(false) {
			return
		}
		c.writer.Flush()
		c.server.Close()
	})
	return nil
}
