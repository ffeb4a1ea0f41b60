package eqiva

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// DefaultScanTimeout is the base scan budget for resolving targets.
const DefaultScanTimeout = 15 * time.Second

// Peripheral is a resolved thermostat.
type Peripheral struct {
	Address string
	Name    string
}

// ScanListener observes discovery progress. Both methods are optional to act
// on and are called from the scan goroutine.
type ScanListener interface {
	// Seen is called for every named advertisement with the vendor prefix.
	Seen(ad Advertisement)

	// Found is called once per newly resolved or discovered peripheral.
	Found(p Peripheral)
}

// Scanner discovers thermostats and resolves address or name tokens.
type Scanner struct {
	radio    Discoverer
	clock    Clock
	logger   Logger
	listener ScanListener
}

// ScannerOptions configures a Scanner.
type ScannerOptions struct {
	Radio    Discoverer
	Clock    Clock
	Logger   Logger
	Listener ScanListener
}

// NewScanner creates a scanner over radio.
func NewScanner(opts ScannerOptions) *Scanner {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Scanner{radio: opts.Radio, clock: opts.Clock, logger: opts.Logger, listener: opts.Listener}
}

// resolver tracks outstanding targets during one Resolve call.
type resolver struct {
	mu          sync.Mutex
	seen        map[string]bool
	outstanding []string
	found       []Peripheral
	done        chan struct{}
	closed      bool
}

// match consumes the first outstanding token equal to the address or name.
func (r *resolver) match(ad Advertisement) (Peripheral, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.seen[ad.Address] {
		return Peripheral{}, false
	}
	idx := -1
	for i, token := range r.outstanding {
		if token == ad.Address {
			idx = i
			break
		}
	}
	if idx < 0 {
		name := NormalizeAddress(ad.Name)
		for i, token := range r.outstanding {
			if token == name {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return Peripheral{}, false
	}
	r.seen[ad.Address] = true
	r.outstanding = append(r.outstanding[:idx], r.outstanding[idx+1:]...)
	p := Peripheral{Address: ad.Address, Name: ad.Name}
	r.found = append(r.found, p)
	if len(r.outstanding) == 0 {
		r.closed = true
		close(r.done)
	}
	return p, true
}

// Resolve scans until every target is found or the budget of
// timeout + one second per target runs out.
//
// Parameters:
//   - ctx: Cancels the scan
//   - targets: MAC addresses or advertised names
//   - timeout: Base scan budget
//
// Returns:
//   - []Peripheral: One peripheral per target, in discovery order
//   - error: ResolutionError if any target was not found
func (s *Scanner) Resolve(ctx context.Context, targets []string, timeout time.Duration) ([]Peripheral, error) {
	tokens := dedupeTokens(targets)
	if len(tokens) == 0 {
		return nil, invalid("targets", targets, "at least one address or name required")
	}
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	budget := timeout + time.Duration(len(tokens))*time.Second

	r := &resolver{
		seen:        make(map[string]bool),
		outstanding: append([]string(nil), tokens...),
		done:        make(chan struct{}),
	}
	deadline := s.clock.After(budget)

	s.logger.Info("scanning for thermostats", "targets", len(tokens), "budget", budget.String())
	err := s.scan(ctx, func(ad Advertisement) {
		if p, ok := r.match(ad); ok {
			s.logger.Debug("resolved thermostat", "address", p.Address, "name", p.Name)
			if s.listener != nil {
				s.listener.Found(p)
			}
		}
	}, r.done, deadline)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if len(r.outstanding) > 0 {
		return nil, &ResolutionError{Requested: tokens, Missing: append([]string(nil), r.outstanding...)}
	}
	return append([]Peripheral(nil), r.found...), nil
}

// Discover scans for duration and reports every thermostat seen. A zero
// duration scans until ctx is cancelled.
func (s *Scanner) Discover(ctx context.Context, duration time.Duration) ([]Peripheral, error) {
	var (
		mu    sync.Mutex
		seen  = make(map[string]bool)
		found []Peripheral
	)
	var deadline <-chan time.Time
	if duration > 0 {
		deadline = s.clock.After(duration)
	}

	err := s.scan(ctx, func(ad Advertisement) {
		mu.Lock()
		if seen[ad.Address] {
			mu.Unlock()
			return
		}
		seen[ad.Address] = true
		p := Peripheral{Address: ad.Address, Name: ad.Name}
		found = append(found, p)
		mu.Unlock()
		if s.listener != nil {
			s.listener.Found(p)
		}
	}, nil, deadline)
	if err != nil && !errors.Is(err, context.Canceled) {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	return append([]Peripheral(nil), found...), nil
}

// scan runs the radio until done closes, the deadline fires or ctx ends,
// passing named vendor advertisements to onMatch.
func (s *Scanner) scan(ctx context.Context, onMatch func(Advertisement), done <-chan struct{}, deadline <-chan time.Time) error {
	if s.radio == nil {
		return &TransportError{Op: "scan", Err: errors.New("no radio configured")}
	}
	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.radio.Scan(scanCtx, func(ad Advertisement) {
			if ad.Name == "" {
				return
			}
			ad.Address = NormalizeAddress(ad.Address)
			if !strings.HasPrefix(ad.Address, VendorPrefix) {
				return
			}
			if s.listener != nil {
				s.listener.Seen(ad)
			}
			onMatch(ad)
		})
	}()

	var stopErr error
	select {
	case <-done:
	case <-deadline:
		s.logger.Debug("scan budget elapsed")
	case <-ctx.Done():
		stopErr = ctx.Err()
	case err := <-errCh:
		if err != nil {
			return &TransportError{Op: "scan", Err: err}
		}
		return nil
	}

	cancel()
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("scan stopped with error", "error", err)
	}
	return stopErr
}

// dedupeTokens normalises tokens (addresses upper-cased, '-' accepted) and
// removes duplicates, keeping order. Names are matched case-insensitively.
func dedupeTokens(targets []string) []string {
	seen := make(map[string]bool, len(targets))
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		t = NormalizeAddress(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
