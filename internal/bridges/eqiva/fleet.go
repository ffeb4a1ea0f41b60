package eqiva

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Fleet limits.
const (
	// MaxConnections is the most GATT sessions the BLE stack holds at once.
	MaxConnections = 8

	// DefaultDisconnectTimeout bounds each session teardown.
	DefaultDisconnectTimeout = 5 * time.Second
)

// Results maps each targeted address to the outcome of an operation (nil on
// success).
type Results map[string]error

// Err joins the per-device failures, or returns nil when every device
// succeeded.
func (r Results) Err() error {
	var errs []error
	for _, addr := range r.Addresses() {
		if err := r[addr]; err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Failed returns the addresses that failed, sorted.
func (r Results) Failed() []string {
	var out []string
	for _, addr := range r.Addresses() {
		if r[addr] != nil {
			out = append(out, addr)
		}
	}
	return out
}

// Addresses returns every address in the result, sorted.
func (r Results) Addresses() []string {
	out := make([]string, 0, len(r))
	for addr := range r {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// FleetOptions configures a Fleet.
type FleetOptions struct {
	// Radio scans for and dials thermostats. Required.
	Radio Radio

	// Clock drives scan budgets, settle delays and disconnect timeouts.
	Clock Clock

	// SettleDelay is passed to every session.
	SettleDelay time.Duration

	// DisconnectTimeout bounds each session teardown. Default: 5 seconds.
	DisconnectTimeout time.Duration

	// Listener observes scan progress (optional).
	Listener ScanListener

	// Logger receives fleet and session events.
	Logger Logger
}

// Fleet coordinates the sessions of one invocation: resolve, connect,
// fan out commands and disconnect.
type Fleet struct {
	radio             Radio
	scanner           *Scanner
	clock             Clock
	settle            time.Duration
	disconnectTimeout time.Duration
	logger            Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewFleet creates an empty fleet.
func NewFleet(opts FleetOptions) (*Fleet, error) {
	if opts.Radio == nil {
		return nil, fmt.Errorf("%w: radio is required", ErrValidation)
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.DisconnectTimeout <= 0 {
		opts.DisconnectTimeout = DefaultDisconnectTimeout
	}
	return &Fleet{
		radio: opts.Radio,
		scanner: NewScanner(ScannerOptions{
			Radio:    opts.Radio,
			Clock:    opts.Clock,
			Logger:   opts.Logger,
			Listener: opts.Listener,
		}),
		clock:             opts.Clock,
		settle:            opts.SettleDelay,
		disconnectTimeout: opts.DisconnectTimeout,
		logger:            opts.Logger,
		sessions:          make(map[string]*Session),
	}, nil
}

// CheckCapacity fails with CapacityError when n exceeds MaxConnections.
func CheckCapacity(n int) error {
	if n > MaxConnections {
		return &CapacityError{Requested: n, Max: MaxConnections}
	}
	return nil
}

// Connect resolves targets by scanning and opens one session per peripheral
// concurrently.
//
// Parameters:
//   - ctx: Cancels scanning and connecting
//   - targets: MAC addresses or advertised names (at most MaxConnections)
//   - timeout: Base scan budget (one second per target is added)
//
// Returns:
//   - Results: Connect outcome per resolved address
//   - error: CapacityError before any scan, ResolutionError if a target is
//     missing (no session is opened), or ctx.Err()
func (f *Fleet) Connect(ctx context.Context, targets []string, timeout time.Duration) (Results, error) {
	if err := CheckCapacity(f.Len() + len(dedupeTokens(targets))); err != nil {
		return nil, err
	}

	peripherals, err := f.scanner.Resolve(ctx, targets, timeout)
	if err != nil {
		return nil, err
	}

	results := make(Results, len(peripherals))
	var resultsMu sync.Mutex
	var g errgroup.Group
	for _, p := range peripherals {
		session := NewSession(p.Address, SessionOptions{
			Dialer:      f.radio,
			Clock:       f.clock,
			SettleDelay: f.settle,
			Logger:      f.logger,
		})
		g.Go(func() error {
			err := session.Connect(ctx)
			resultsMu.Lock()
			results[session.Address()] = err
			resultsMu.Unlock()
			if err != nil {
				f.logger.Warn("connect failed", "address", session.Address(), "error", err)
				return nil
			}
			f.register(session)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func (f *Fleet) register(s *Session) {
	f.mu.Lock()
	f.sessions[s.Address()] = s
	f.mu.Unlock()
}

func (f *Fleet) unregister(s *Session) {
	f.mu.Lock()
	if f.sessions[s.Address()] == s {
		delete(f.sessions, s.Address())
	}
	f.mu.Unlock()
}

// Len returns the number of registered sessions.
func (f *Fleet) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

// Sessions returns the registered sessions ordered by address.
func (f *Fleet) Sessions() []*Session {
	f.mu.Lock()
	out := make([]*Session, 0, len(f.sessions))
	for _, s := range f.sessions {
		out = append(out, s)
	}
	f.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Address() < out[j].Address() })
	return out
}

// connected returns the sessions still connected at call time.
func (f *Fleet) connected() []*Session {
	all := f.Sessions()
	out := all[:0]
	for _, s := range all {
		if s.IsConnected() {
			out = append(out, s)
		}
	}
	return out
}

// Dispatch sends cmds, in order, to every connected session concurrently.
// A failure on one device stops that device's sequence and never affects
// the others.
//
// Returns:
//   - Results: One entry per connected session
func (f *Fleet) Dispatch(ctx context.Context, cmds ...Command) Results {
	return f.Each(ctx, func(ctx context.Context, s *Session) error {
		for _, cmd := range cmds {
			if err := s.Send(ctx, cmd); err != nil {
				return err
			}
		}
		return nil
	})
}

// Each runs fn against every connected session concurrently and collects
// the outcomes.
func (f *Fleet) Each(ctx context.Context, fn func(ctx context.Context, s *Session) error) Results {
	sessions := f.connected()
	results := make(Results, len(sessions))
	var mu sync.Mutex
	var g errgroup.Group
	for _, s := range sessions {
		g.Go(func() error {
			err := fn(ctx, s)
			if err != nil {
				f.logger.Warn("device operation failed", "address", s.Address(), "error", err)
			}
			mu.Lock()
			results[s.Address()] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Snapshot returns the device state of every registered session.
func (f *Fleet) Snapshot() map[string]DeviceState {
	sessions := f.Sessions()
	out := make(map[string]DeviceState, len(sessions))
	for _, s := range sessions {
		out[s.Address()] = s.Snapshot()
	}
	return out
}

// Disconnect closes every session concurrently. Each teardown is bounded by
// the disconnect timeout; a session that does not finish in time is
// abandoned. Errors are logged, never returned.
func (f *Fleet) Disconnect(ctx context.Context) {
	sessions := f.Sessions()
	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.disconnectOne(ctx, s)
		}()
	}
	wg.Wait()
}

func (f *Fleet) disconnectOne(ctx context.Context, s *Session) {
	// Teardown must run even when the caller's context is already cancelled.
	dctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Disconnect(dctx) }()

	select {
	case err := <-done:
		if err != nil {
			f.logger.Warn("disconnect failed", "address", s.Address(), "error", err)
		}
		f.unregister(s)
	case <-f.clock.After(f.disconnectTimeout):
		f.logger.Warn("disconnect timed out, abandoning session",
			"address", s.Address(), "timeout", f.disconnectTimeout.String())
		f.unregister(s)
	}
}

// String lists the registered addresses.
func (f *Fleet) String() string {
	sessions := f.Sessions()
	addrs := make([]string, len(sessions))
	for i, s := range sessions {
		addrs[i] = s.Address()
	}
	return "Fleet(" + strings.Join(addrs, ", ") + ")"
}
