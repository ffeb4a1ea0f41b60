//go:build linux

package ble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"tinygo.org/x/bluetooth"
)

// readBufferSize fits every eqiva characteristic value.
const readBufferSize = 64

// characteristic is the subset of bluetooth.DeviceCharacteristic a link uses.
//
// On BlueZ, WriteWithoutResponse calls WriteValue without a "type" option.
// BlueZ then sends a write request (acknowledged) for any characteristic
// that has the write property, which the eqiva request characteristic does.
type characteristic interface {
	WriteWithoutResponse(p []byte) (int, error)
	Read(data []byte) (int, error)
	EnableNotifications(callback func(buf []byte)) error
}

var _ characteristic = bluetooth.DeviceCharacteristic{}

// link is one GATT connection. Calls into the controller are blocking, so
// each runs in its own goroutine and ctx bounds the wait.
type link struct {
	address    string
	disconnect func() error

	mu     sync.Mutex
	chars  map[string]characteristic
	closed bool
}

func newLink(address string, dev bluetooth.Device) (*link, error) {
	services, err := dev.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("discover services: %w", err)
	}
	chars := make(map[string]characteristic)
	for _, svc := range services {
		found, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("discover characteristics of %s: %w", svc.UUID().String(), err)
		}
		for _, c := range found {
			chars[uuidKey(c.UUID().String())] = c
		}
	}
	return &link{address: address, disconnect: dev.Disconnect, chars: chars}, nil
}

func uuidKey(uuid string) string {
	return strings.ToLower(uuid)
}

func (l *link) lookup(uuid string) (characteristic, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	c, ok := l.chars[uuidKey(uuid)]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrCharacteristicNotFound, uuid, l.address)
	}
	return c, nil
}

// Write writes data as a GATT write request and waits for the ATT response.
func (l *link) Write(ctx context.Context, uuid string, data []byte) error {
	c, err := l.lookup(uuid)
	if err != nil {
		return err
	}
	return await(ctx, func() error {
		_, err := c.WriteWithoutResponse(data)
		return err
	})
}

// Read returns the characteristic value.
func (l *link) Read(ctx context.Context, uuid string) ([]byte, error) {
	c, err := l.lookup(uuid)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, readBufferSize)
	var n int
	err = await(ctx, func() error {
		var rerr error
		n, rerr = c.Read(buf)
		return rerr
	})
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Subscribe enables notifications. Frames are copied before fn sees them.
func (l *link) Subscribe(uuid string, fn func(frame []byte)) error {
	c, err := l.lookup(uuid)
	if err != nil {
		return err
	}
	return c.EnableNotifications(func(buf []byte) {
		fn(append([]byte(nil), buf...))
	})
}

// Disconnect closes the connection once.
func (l *link) Disconnect(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()
	return await(ctx, l.disconnect)
}

// await runs fn and waits for it or ctx. fn keeps running after ctx ends;
// its result is then discarded.
func await(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
