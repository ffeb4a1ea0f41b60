package eqiva

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// minTopicParts is the minimum number of parts in a valid command topic
// (eqiva/command/{target}).
const minTopicParts = 3

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// Unsubscribe drops a topic pattern registered with Subscribe.
	Unsubscribe(topic string) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// ID identifies this bridge in health messages.
	ID string

	// Version is reported in health messages.
	Version string

	// HealthInterval is how often health is published. Default: 30 seconds.
	HealthInterval time.Duration

	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// Controller runs the commands.
	Controller *Controller

	// Logger is optional structured logger.
	Logger Logger
}

// Bridge connects MQTT to the thermostats. It handles:
//   - Commands on eqiva/command/{target}, acknowledged per address on eqiva/ack/{address}
//   - Retained state on eqiva/state/{address} after every run
//   - Health reporting and graceful shutdown
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	id         string
	mqtt       MQTTClient
	controller *Controller
	health     *HealthReporter

	devicesMu sync.RWMutex
	devices   map[string]struct{}

	received  atomic.Uint64
	failed    atomic.Uint64
	published atomic.Uint64

	// stopMu orders wg.Add against Stop's wg.Wait.
	stopMu    sync.Mutex
	stopped   bool
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context    // Bridge-level context, cancelled on Stop()
	ctxCancel context.CancelFunc // Cancel function for ctx

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}
	if opts.ID == "" {
		opts.ID = Protocol
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		id:         opts.ID,
		mqtt:       opts.MQTTClient,
		controller: opts.Controller,
		devices:    make(map[string]struct{}),
		ctx:        ctx,
		ctxCancel:  ctxCancel,
		logger:     opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.ID,
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTTClient,
		Stats:     b.statistics,
	})
	b.health.SetLogger(opts.Logger)

	opts.Controller.OnState(b.publishState)

	return b, nil
}

// Start subscribes to command topics and starts health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	topic := CommandSubscribeTopic()
	if err := b.mqtt.Subscribe(topic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", topic)

	b.health.Start(ctx)

	b.logInfo("bridge started", "bridge_id", b.id)
	return nil
}

// Stop gracefully shuts down the bridge, cancelling in-flight commands.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.stopMu.Lock()
		b.stopped = true
		b.stopMu.Unlock()

		if err := b.mqtt.Unsubscribe(CommandSubscribeTopic()); err != nil {
			b.logError("failed to unsubscribe from commands", err)
		}
		b.ctxCancel()
		b.health.Stop()
		b.wg.Wait()
		b.logInfo("bridge stopped")
	})
}

// Health returns the bridge's health reporter.
func (b *Bridge) Health() *HealthReporter { return b.health }

// handleMQTTMessage routes incoming MQTT messages to appropriate handlers.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	parts := strings.Split(topic, "/")
	if len(parts) < minTopicParts || parts[1] != "command" {
		b.logError("invalid topic format", fmt.Errorf("topic: %s", topic))
		return
	}

	target := DecodeTopicAddress(strings.Join(parts[2:], "/"))

	b.stopMu.Lock()
	if b.stopped {
		b.stopMu.Unlock()
		return
	}
	b.wg.Add(1)
	b.stopMu.Unlock()

	// Runs take seconds; keep the MQTT callback free.
	go func() {
		defer b.wg.Done()
		b.handleCommand(target, payload)
	}()
}

// handleCommand decodes and executes one command message.
func (b *Bridge) handleCommand(target string, payload []byte) {
	b.received.Add(1)

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.failed.Add(1)
		b.publishAckError(cmd, target, fmt.Errorf("%w: %v", ErrValidation, err))
		return
	}

	targets := cmd.Targets
	if len(targets) == 0 {
		targets = []string{target}
	}
	source := cmd.Source
	if source == "" {
		source = "mqtt"
	}

	b.logInfo("received command",
		"command_id", cmd.ID,
		"command", cmd.Command,
		"targets", strings.Join(targets, ","))

	outcome, err := b.controller.Execute(b.ctx, Request{
		ID:         cmd.ID,
		Command:    cmd.Command,
		Parameters: cmd.Parameters,
		Targets:    targets,
		Source:     source,
	})
	if err != nil {
		b.failed.Add(1)
		for _, t := range targets {
			b.publishAckError(cmd, t, err)
		}
		return
	}

	if outcome.Results.Err() != nil {
		b.failed.Add(1)
	}
	for _, addr := range outcome.Results.Addresses() {
		if rerr := outcome.Results[addr]; rerr != nil {
			b.publishAckError(cmd, addr, rerr)
			continue
		}
		b.publishAck(cmd, addr)
	}
}

// publishAck publishes an accepted acknowledgment.
func (b *Bridge) publishAck(cmd CommandMessage, address string) {
	b.publishJSON(AckTopic(address), NewAckMessage(cmd, address), false)
}

// publishAckError publishes a failed command acknowledgment.
func (b *Bridge) publishAckError(cmd CommandMessage, address string, err error) {
	b.publishJSON(AckTopic(address), NewAckError(cmd, address, err), false)
	b.logError("command failed", fmt.Errorf("address=%s code=%s: %w", address, ErrorCode(err), err))
}

// publishState publishes a retained state message. Registered as a
// controller state listener, so states produced by the API and the poller
// are published too.
func (b *Bridge) publishState(state DeviceState) {
	b.devicesMu.Lock()
	b.devices[state.Address] = struct{}{}
	count := len(b.devices)
	b.devicesMu.Unlock()
	b.health.SetDeviceCount(count)

	if b.publishJSON(StateTopic(state.Address), NewStateMessage(state), true) {
		b.published.Add(1)
	}
}

func (b *Bridge) publishJSON(topic string, msg any, retained bool) bool {
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal message", err)
		return false
	}
	if err := b.mqtt.Publish(topic, payload, 1, retained); err != nil {
		if !errors.Is(err, context.Canceled) {
			b.logError("failed to publish", fmt.Errorf("topic=%s: %w", topic, err))
		}
		return false
	}
	return true
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	if b.health != nil {
		b.health.SetLogger(logger)
	}
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()
	logger.Info(msg, keysAndValues...)
}

func (b *Bridge) logError(msg string, err error) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()
	logger.Error(msg, "error", err)
}

// BridgeMetrics contains metrics data for the API metrics endpoint.
type BridgeMetrics struct {
	Connected        bool
	Status           string
	CommandsReceived uint64
	CommandsFailed   uint64
	StatesPublished  uint64
	DevicesManaged   int
}

// GetMetrics returns current bridge metrics.
func (b *Bridge) GetMetrics() BridgeMetrics {
	b.devicesMu.RLock()
	count := len(b.devices)
	b.devicesMu.RUnlock()

	connected := b.mqtt.IsConnected()
	status := string(HealthDegraded)
	if connected {
		status = string(HealthHealthy)
	}
	return BridgeMetrics{
		Connected:        connected,
		Status:           status,
		CommandsReceived: b.received.Load(),
		CommandsFailed:   b.failed.Load(),
		StatesPublished:  b.published.Load(),
		DevicesManaged:   count,
	}
}

func (b *Bridge) statistics() BridgeStatistics {
	return BridgeStatistics{
		CommandsReceived: b.received.Load(),
		CommandsFailed:   b.failed.Load(),
		StatesPublished:  b.published.Load(),
	}
}
