package eqiva

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Radio             Radio
	Clock             Clock
	ScanTimeout       time.Duration
	SettleDelay       time.Duration
	DisconnectTimeout time.Duration
	Listener          ScanListener
	Logger            Logger
}

// Runner executes one unit of work against a set of thermostats:
// connect, dispatch, snapshot and disconnect. All runs share one
// semaphore so concurrent callers (MQTT bridge, poller, HTTP API) never hold
// more than MaxConnections sessions in total.
type Runner struct {
	opts RunnerOptions
	sem  *semaphore.Weighted
}

// Outcome is the result of one run.
type Outcome struct {
	// States holds the final device state of every connected thermostat.
	States map[string]DeviceState

	// Results holds the connect or dispatch outcome per address. A device
	// that failed to connect keeps its connect error.
	Results Results
}

// NewRunner creates a runner.
func NewRunner(opts RunnerOptions) *Runner {
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = DefaultScanTimeout
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Runner{opts: opts, sem: semaphore.NewWeighted(MaxConnections)}
}

// Run connects to targets, sends cmds to each in order and disconnects.
//
// Parameters:
//   - ctx: Cancels the whole run; sessions are still closed
//   - targets: MAC addresses or advertised names
//   - cmds: Commands sent to every connected device, in order
//
// Returns:
//   - Outcome: States and per-device results
//   - error: ValidationError, CapacityError or ResolutionError that aborted
//     the run before any command was sent
func (r *Runner) Run(ctx context.Context, targets []string, cmds ...Command) (Outcome, error) {
	return r.RunFunc(ctx, targets, func(ctx context.Context, f *Fleet) Results {
		return f.Dispatch(ctx, cmds...)
	})
}

// RunFunc is Run with a caller-supplied dispatch step.
func (r *Runner) RunFunc(ctx context.Context, targets []string, dispatch func(ctx context.Context, f *Fleet) Results) (Outcome, error) {
	n := len(dedupeTokens(targets))
	if n == 0 {
		return Outcome{}, invalid("targets", targets, "at least one address or name required")
	}
	if err := CheckCapacity(n); err != nil {
		return Outcome{}, err
	}

	if err := r.sem.Acquire(ctx, int64(n)); err != nil {
		return Outcome{}, err
	}
	defer r.sem.Release(int64(n))

	fleet, err := NewFleet(FleetOptions{
		Radio:             r.opts.Radio,
		Clock:             r.opts.Clock,
		SettleDelay:       r.opts.SettleDelay,
		DisconnectTimeout: r.opts.DisconnectTimeout,
		Listener:          r.opts.Listener,
		Logger:            r.opts.Logger,
	})
	if err != nil {
		return Outcome{}, err
	}
	defer fleet.Disconnect(ctx)

	connected, err := fleet.Connect(ctx, targets, r.opts.ScanTimeout)
	if err != nil {
		return Outcome{}, err
	}

	results := make(Results, len(connected))
	for addr, cerr := range connected {
		results[addr] = cerr
	}
	for addr, derr := range dispatch(ctx, fleet) {
		results[addr] = derr
	}

	return Outcome{States: fleet.Snapshot(), Results: results}, nil
}
