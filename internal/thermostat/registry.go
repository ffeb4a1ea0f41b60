package thermostat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/eqiva-core/internal/bridges/eqiva"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry caches the thermostat catalogue over a Repository.
//
// The cache is loaded by RefreshCache and updated on every write, so reads
// never touch the database once it is warm.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Thermostat
	cacheMu sync.RWMutex
	logger  Logger
	now     func() time.Time
}

// NewRegistry creates a registry over repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Thermostat),
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// RefreshCache reloads every thermostat from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	list, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading thermostats: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	r.cache = make(map[string]*Thermostat, len(list))
	for i := range list {
		r.cache[list[i].Address] = list[i].DeepCopy()
	}

	r.logger.Info("thermostat cache refreshed", "count", len(list))
	return nil
}

// Get returns a copy of the thermostat at address.
// Returns ErrThermostatNotFound if it is not registered.
func (r *Registry) Get(ctx context.Context, address string) (*Thermostat, error) {
	addr := eqiva.NormalizeAddress(address)

	r.cacheMu.RLock()
	cached, ok := r.cache[addr]
	r.cacheMu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	t, err := r.repo.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	r.cacheMu.Lock()
	r.cache[addr] = t.DeepCopy()
	r.cacheMu.Unlock()
	return t, nil
}

// List returns copies of every thermostat, ordered by address.
func (r *Registry) List(_ context.Context) []Thermostat {
	r.cacheMu.RLock()
	out := make([]Thermostat, 0, len(r.cache))
	for _, t := range r.cache {
		out = append(out, *t.DeepCopy())
	}
	r.cacheMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Addresses lists every registered address. Implements eqiva.AddressSource.
func (r *Registry) Addresses(_ context.Context) ([]string, error) {
	r.cacheMu.RLock()
	out := make([]string, 0, len(r.cache))
	for addr := range r.cache {
		out = append(out, addr)
	}
	r.cacheMu.RUnlock()

	sort.Strings(out)
	return out, nil
}

// Register adds a thermostat, or updates the alias of a known one. An empty
// alias leaves the stored alias unchanged.
//
// Parameters:
//   - address: MAC address with the Eqiva prefix
//   - alias: Free-form alias text (optional)
//
// Returns:
//   - *Thermostat: The stored thermostat
//   - error: ErrInvalidAddress, or a repository error
func (r *Registry) Register(ctx context.Context, address, alias string) (*Thermostat, error) {
	addr := eqiva.NormalizeAddress(address)
	if !eqiva.IsEqivaAddress(addr) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	return r.update(ctx, addr, func(t *Thermostat) bool {
		if alias == "" || t.Alias == alias {
			return false
		}
		t.Alias = alias
		return true
	})
}

// RecordState stores a reported device state. Implements eqiva.StateRecorder.
func (r *Registry) RecordState(ctx context.Context, st eqiva.DeviceState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}
	at := st.UpdatedAt
	if at.IsZero() {
		at = r.now()
	}

	_, err = r.update(ctx, eqiva.NormalizeAddress(st.Address), func(t *Thermostat) bool {
		t.merge(st, raw, at.UTC())
		return true
	})
	if err != nil {
		return err
	}
	r.logger.Debug("thermostat state recorded", "address", st.Address)
	return nil
}

// HomeKit returns the HomeKit view of address. An unknown thermostat is
// registered, so the poller picks it up, and the defaults are returned.
func (r *Registry) HomeKit(ctx context.Context, address string) (HomeKitStatus, error) {
	t, err := r.Get(ctx, address)
	if errors.Is(err, ErrThermostatNotFound) {
		if _, err := r.Register(ctx, address, ""); err != nil {
			return HomeKitStatus{}, err
		}
		r.logger.Info("unknown thermostat registered", "address", address)
		return DefaultHomeKitStatus(), nil
	}
	if err != nil {
		return HomeKitStatus{}, err
	}
	return t.HomeKit(), nil
}

// Delete removes a thermostat.
func (r *Registry) Delete(ctx context.Context, address string) error {
	addr := eqiva.NormalizeAddress(address)
	if err := r.repo.Delete(ctx, addr); err != nil {
		return err
	}
	r.cacheMu.Lock()
	delete(r.cache, addr)
	r.cacheMu.Unlock()
	return nil
}

// update loads or creates the thermostat at addr, applies fn and saves it
// when fn reports a change. The write lock is held throughout so concurrent
// updates of one thermostat do not interleave.
func (r *Registry) update(ctx context.Context, addr string, fn func(t *Thermostat) bool) (*Thermostat, error) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	t, ok := r.cache[addr]
	created := false
	switch {
	case ok:
		t = t.DeepCopy()
	default:
		stored, err := r.repo.Get(ctx, addr)
		switch {
		case err == nil:
			t = stored
		case errors.Is(err, ErrThermostatNotFound):
			t = &Thermostat{Address: addr}
			created = true
		default:
			return nil, err
		}
	}

	if !fn(t) && !created {
		r.cache[addr] = t.DeepCopy()
		return t, nil
	}
	if err := r.repo.Save(ctx, t); err != nil {
		return nil, err
	}
	r.cache[addr] = t.DeepCopy()
	return t.DeepCopy(), nil
}
