//go:build linux

package ble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/nerrad567/eqiva-core/internal/bridges/eqiva"
)

var _ eqiva.Radio = (*Adapter)(nil)

// Adapter implements eqiva.Radio on the system Bluetooth controller.
//
// Thread Safety: All methods are safe for concurrent use. Scans are
// serialised.
type Adapter struct {
	adapter *bluetooth.Adapter

	scanMu sync.Mutex

	// seen maps normalised addresses to the controller address of the last
	// advertisement, so Dial can connect without platform-specific parsing.
	seen   map[string]bluetooth.Address
	seenMu sync.RWMutex

	logger Logger
}

// Open enables the default controller.
//
// Returns:
//   - *Adapter: Ready to scan and dial
//   - error: ErrAdapterUnavailable wrapping the controller error
func Open(logger Logger) (*Adapter, error) {
	a := bluetooth.DefaultAdapter
	if err := a.Enable(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAdapterUnavailable, err)
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Adapter{
		adapter: a,
		seen:    make(map[string]bluetooth.Address),
		logger:  logger,
	}, nil
}

// Scan reports advertisements until ctx is cancelled.
func (a *Adapter) Scan(ctx context.Context, found func(eqiva.Advertisement)) error {
	a.scanMu.Lock()
	defer a.scanMu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.adapter.Scan(func(_ *bluetooth.Adapter, res bluetooth.ScanResult) {
			addr := eqiva.NormalizeAddress(res.Address.String())
			a.remember(addr, res.Address)
			found(eqiva.Advertisement{
				Address: addr,
				Name:    localName(res.LocalName()),
				RSSI:    res.RSSI,
			})
		})
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if err := a.adapter.StopScan(); err != nil {
		a.logger.Warn("failed to stop scan", "error", err)
	}
	<-errCh
	return ctx.Err()
}

// Dial connects to a previously scanned peripheral and indexes its GATT
// characteristics.
func (a *Adapter) Dial(ctx context.Context, address string) (eqiva.Link, error) {
	addr := eqiva.NormalizeAddress(address)
	a.seenMu.RLock()
	target, ok := a.seen[addr]
	a.seenMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeripheral, addr)
	}

	type dialed struct {
		link *link
		err  error
	}
	done := make(chan dialed, 1)
	go func() {
		dev, err := a.adapter.Connect(target, bluetooth.ConnectionParams{})
		if err != nil {
			done <- dialed{err: err}
			return
		}
		l, err := newLink(addr, dev)
		if err != nil {
			_ = dev.Disconnect()
			done <- dialed{err: err}
			return
		}
		done <- dialed{link: l}
	}()

	select {
	case d := <-done:
		if d.err != nil {
			return nil, d.err
		}
		a.logger.Debug("connected", "address", addr, "characteristics", len(d.link.chars))
		return d.link, nil
	case <-ctx.Done():
		// A late connection is closed as soon as it completes.
		go func() {
			if d := <-done; d.err == nil {
				_ = d.link.Disconnect(context.Background())
			}
		}()
		return nil, ctx.Err()
	}
}

func (a *Adapter) remember(addr string, target bluetooth.Address) {
	a.seenMu.Lock()
	a.seen[addr] = target
	a.seenMu.Unlock()
}

// localName trims the NUL padding some firmware leaves in advertised names.
func localName(name string) string {
	return strings.TrimRight(name, "\x00 ")
}
