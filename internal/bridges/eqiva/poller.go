package eqiva

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultPollInterval is the status poll period.
const DefaultPollInterval = 30 * time.Second

// AddressSource lists the thermostats the poller should query.
type AddressSource interface {
	Addresses(ctx context.Context) ([]string, error)
}

// StaticAddresses is an AddressSource over a fixed list.
type StaticAddresses []string

// Addresses returns the list.
func (s StaticAddresses) Addresses(context.Context) ([]string, error) {
	return s, nil
}

// PollerOptions configures a Poller.
type PollerOptions struct {
	Controller *Controller
	Sources    []AddressSource
	Interval   time.Duration
	Logger     Logger
}

// Poller periodically requests status from every known thermostat. Known
// addresses are polled in batches of at most MaxConnections; a batch that
// cannot resolve some addresses is retried once without them.
type Poller struct {
	controller *Controller
	sources    []AddressSource
	interval   time.Duration
	logger     Logger

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewPoller creates a poller. Call Start to begin polling.
func NewPoller(opts PollerOptions) (*Poller, error) {
	if opts.Controller == nil {
		return nil, errors.New("eqiva: controller is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Poller{
		controller: opts.Controller,
		sources:    opts.Sources,
		interval:   opts.Interval,
		logger:     opts.Logger,
		done:       make(chan struct{}),
	}, nil
}

// Start polls immediately and then every interval until ctx ends or Stop is
// called.
func (p *Poller) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.loop(ctx)
}

// Stop ends polling and waits for an in-flight poll. Safe to call more than
// once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
	})
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.PollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce queries every known address once.
//
// Returns:
//   - Results: Outcome per polled address
func (p *Poller) PollOnce(ctx context.Context) Results {
	addrs := p.addresses(ctx)
	results := make(Results, len(addrs))
	if len(addrs) == 0 {
		return results
	}

	for start := 0; start < len(addrs); start += MaxConnections {
		end := min(start+MaxConnections, len(addrs))
		for addr, err := range p.pollBatch(ctx, addrs[start:end]) {
			results[addr] = err
		}
		if ctx.Err() != nil {
			break
		}
	}

	if failed := results.Failed(); len(failed) > 0 {
		p.logger.Warn("status poll incomplete", "polled", len(results), "failed", len(failed))
	} else {
		p.logger.Debug("status poll complete", "polled", len(results))
	}
	return results
}

func (p *Poller) pollBatch(ctx context.Context, batch []string) Results {
	outcome, err := p.controller.Execute(ctx, Request{
		Command: CommandStatus,
		Targets: batch,
		Source:  "poller",
	})

	var rerr *ResolutionError
	if errors.As(err, &rerr) {
		missing := make(map[string]bool, len(rerr.Missing))
		for _, m := range rerr.Missing {
			missing[m] = true
		}
		var retry []string
		for _, addr := range batch {
			if !missing[addr] {
				retry = append(retry, addr)
			}
		}
		results := make(Results, len(batch))
		for _, addr := range rerr.Missing {
			results[addr] = err
		}
		if len(retry) == 0 {
			return results
		}
		p.logger.Debug("retrying poll without missing thermostats", "missing", len(rerr.Missing))
		outcome, err = p.controller.Execute(ctx, Request{
			Command: CommandStatus,
			Targets: retry,
			Source:  "poller",
		})
		if err != nil {
			for _, addr := range retry {
				results[addr] = err
			}
			return results
		}
		for addr, e := range outcome.Results {
			results[addr] = e
		}
		return results
	}

	if err != nil {
		results := make(Results, len(batch))
		for _, addr := range batch {
			results[addr] = err
		}
		return results
	}
	return outcome.Results
}

// addresses merges every source, normalised and de-duplicated.
func (p *Poller) addresses(ctx context.Context) []string {
	var all []string
	for _, src := range p.sources {
		addrs, err := src.Addresses(ctx)
		if err != nil {
			p.logger.Warn("failed to list thermostats", "error", err)
			continue
		}
		all = append(all, addrs...)
	}
	out := dedupeTokens(all)
	kept := out[:0]
	for _, addr := range out {
		if IsEqivaAddress(addr) {
			kept = append(kept, addr)
		}
	}
	return kept
}
