package eqiva

import (
	"context"
	"strings"
	"time"
)

// VendorPrefix is the MAC prefix of Eqiva thermostats.
const VendorPrefix = "00:1A:22:"

// Advertisement is one BLE advertisement seen during a scan.
type Advertisement struct {
	Address string
	Name    string
	RSSI    int16
}

// Link is an open GATT connection to one peripheral.
type Link interface {
	// Write writes data to a characteristic and waits for the write response.
	Write(ctx context.Context, characteristic string, data []byte) error

	// Read reads the value of a characteristic.
	Read(ctx context.Context, characteristic string) ([]byte, error)

	// Subscribe enables notifications; fn is called with every frame.
	Subscribe(characteristic string, fn func(frame []byte)) error

	// Disconnect closes the connection.
	Disconnect(ctx context.Context) error
}

// Dialer opens links to peripherals by address.
type Dialer interface {
	Dial(ctx context.Context, address string) (Link, error)
}

// Discoverer reports advertisements until ctx is cancelled.
type Discoverer interface {
	Scan(ctx context.Context, found func(Advertisement)) error
}

// Radio is a BLE adapter able to scan and connect.
type Radio interface {
	Discoverer
	Dialer
}

// Clock abstracts time for settle delays, scan budgets and disconnect
// timeouts.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// After returns time.After(d).
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Logger is the logging interface used throughout the package.
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

// NormalizeAddress upper-cases a MAC address and accepts '-' separators.
func NormalizeAddress(address string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(address), "-", ":"))
}

// IsEqivaAddress reports whether address carries the vendor prefix.
func IsEqivaAddress(address string) bool {
	return strings.HasPrefix(NormalizeAddress(address), VendorPrefix)
}
