package eqiva

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultCommandTimeout bounds one Execute call: scan, connect, dispatch and
// disconnect.
const DefaultCommandTimeout = 90 * time.Second

// Request is a transport-neutral command request (MQTT, HTTP or poller).
type Request struct {
	// ID correlates logs and acks. Generated when empty.
	ID string

	// Command is one of the Command* names.
	Command string

	// Parameters are the JSON-decoded command parameters.
	Parameters map[string]any

	// Targets are MAC addresses, aliases or advertised names.
	Targets []string

	// Source records where the request came from ("mqtt", "api", "poller").
	Source string
}

// TargetResolver expands aliases into addresses. Unknown tokens are returned
// unchanged.
type TargetResolver interface {
	Resolve(tokens []string) []string
}

// StateRecorder persists thermostat state after every run.
type StateRecorder interface {
	RecordState(ctx context.Context, state DeviceState) error
}

// CommandRecord describes one executed request for the command log.
type CommandRecord struct {
	ID         string
	Source     string
	Command    string
	Parameters map[string]any
	Targets    []string
	Results    Results
	Err        error
	StartedAt  time.Time
	Duration   time.Duration
}

// CommandLogger stores CommandRecords.
type CommandLogger interface {
	LogCommand(ctx context.Context, rec CommandRecord) error
}

// CommandLoggers fans a record out to several loggers. Every logger is
// called; the errors are joined.
type CommandLoggers []CommandLogger

// LogCommand implements CommandLogger.
func (l CommandLoggers) LogCommand(ctx context.Context, rec CommandRecord) error {
	var errs []error
	for _, logger := range l {
		if err := logger.LogCommand(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	// Runner executes the BLE work. Required.
	Runner *Runner

	// Resolver expands aliases (optional).
	Resolver TargetResolver

	// Recorders receive every resulting DeviceState (optional).
	Recorders []StateRecorder

	// CommandLog stores every request (optional).
	CommandLog CommandLogger

	// Clock stamps requests. Default: SystemClock.
	Clock Clock

	// CommandTimeout bounds each Execute. Default: 90 seconds.
	CommandTimeout time.Duration

	// Logger receives controller events.
	Logger Logger
}

// ControllerStats are cumulative counters.
type ControllerStats struct {
	Requests       uint64
	Failed         uint64
	DevicesUpdated uint64
	LastSuccess    time.Time
}

// Controller is the single entry point the outer surfaces share: it resolves
// targets, builds commands, runs them, records the resulting state and
// notifies state listeners.
//
// Thread Safety: All methods are safe for concurrent use.
type Controller struct {
	runner     *Runner
	resolver   TargetResolver
	recorders  []StateRecorder
	commandLog CommandLogger
	clock      Clock
	timeout    time.Duration
	logger     Logger

	listenersMu sync.RWMutex
	listeners   []func(DeviceState)

	requests    atomic.Uint64
	failed      atomic.Uint64
	updated     atomic.Uint64
	lastSuccess atomic.Int64
}

// NewController creates a controller.
func NewController(opts ControllerOptions) (*Controller, error) {
	if opts.Runner == nil {
		return nil, errors.New("eqiva: runner is required")
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Controller{
		runner:     opts.Runner,
		resolver:   opts.Resolver,
		recorders:  opts.Recorders,
		commandLog: opts.CommandLog,
		clock:      opts.Clock,
		timeout:    opts.CommandTimeout,
		logger:     opts.Logger,
	}, nil
}

// OnState registers fn to be called with every DeviceState a run produces.
func (c *Controller) OnState(fn func(DeviceState)) {
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, fn)
	c.listenersMu.Unlock()
}

// Execute runs one request end to end.
//
// Parameters:
//   - ctx: Parent context; the run is additionally bounded by the command timeout
//   - req: The request to run
//
// Returns:
//   - Outcome: States and per-device results of the run
//   - error: ValidationError or ErrUnknownCommand for a bad request,
//     CapacityError or ResolutionError when the run was aborted
func (c *Controller) Execute(ctx context.Context, req Request) (Outcome, error) {
	c.requests.Add(1)
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	started := c.clock.Now()

	targets := req.Targets
	if c.resolver != nil {
		targets = c.resolver.Resolve(targets)
	}

	outcome, err := c.run(ctx, req, targets, started)

	rec := CommandRecord{
		ID:         req.ID,
		Source:     req.Source,
		Command:    req.Command,
		Parameters: req.Parameters,
		Targets:    targets,
		Results:    outcome.Results,
		Err:        err,
		StartedAt:  started,
		Duration:   c.clock.Now().Sub(started),
	}
	if err == nil {
		rec.Err = outcome.Results.Err()
	}
	if rec.Err != nil {
		c.failed.Add(1)
	} else {
		c.lastSuccess.Store(c.clock.Now().UnixNano())
	}
	if c.commandLog != nil {
		if lerr := c.commandLog.LogCommand(context.WithoutCancel(ctx), rec); lerr != nil {
			c.logger.Warn("failed to log command", "command_id", req.ID, "error", lerr)
		}
	}
	return outcome, err
}

func (c *Controller) run(ctx context.Context, req Request, targets []string, now time.Time) (Outcome, error) {
	cmds, err := ParseCommand(req.Command, req.Parameters, now)
	if err != nil {
		c.logger.Warn("rejected command", "command_id", req.ID, "command", req.Command, "error", err)
		return Outcome{}, err
	}

	c.logger.Info("executing command",
		"command_id", req.ID,
		"command", req.Command,
		"source", req.Source,
		"targets", len(targets))

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	outcome, err := c.runner.Run(runCtx, targets, cmds...)
	if err != nil {
		c.logger.Warn("command aborted", "command_id", req.ID, "error", err)
		return outcome, err
	}

	c.publish(context.WithoutCancel(ctx), outcome.States)
	return outcome, nil
}

// publish records and broadcasts every state of a run.
func (c *Controller) publish(ctx context.Context, states map[string]DeviceState) {
	c.listenersMu.RLock()
	listeners := slices.Clone(c.listeners)
	c.listenersMu.RUnlock()

	for _, addr := range sortedKeys(states) {
		st := states[addr]
		for _, r := range c.recorders {
			if err := r.RecordState(ctx, st); err != nil {
				c.logger.Warn("failed to record state", "address", addr, "error", err)
			}
		}
		for _, fn := range listeners {
			fn(st)
		}
		c.updated.Add(1)
	}
}

// Stats returns cumulative counters.
func (c *Controller) Stats() ControllerStats {
	s := ControllerStats{
		Requests:       c.requests.Load(),
		Failed:         c.failed.Load(),
		DevicesUpdated: c.updated.Load(),
	}
	if ns := c.lastSuccess.Load(); ns != 0 {
		s.LastSuccess = time.Unix(0, ns)
	}
	return s
}

func sortedKeys(states map[string]DeviceState) []string {
	out := make([]string, 0, len(states))
	for addr := range states {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}
