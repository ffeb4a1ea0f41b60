package eqiva

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// fakeClock fires waits up to instant immediately; longer waits fire on
// Advance.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	instant time.Duration
	waiters []clockWaiter
}

type clockWaiter struct {
	at time.Time
	ch chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:     time.Date(2024, 1, 8, 9, 0, 0, 0, time.Local),
		instant: 100 * time.Millisecond,
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	if d <= c.instant {
		ch <- c.now.Add(d)
		return ch
	}
	c.waiters = append(c.waiters, clockWaiter{at: c.now.Add(d), ch: ch})
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	kept := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.at.After(c.now) {
			w.ch <- c.now
			continue
		}
		kept = append(kept, w)
	}
	c.waiters = kept
}

func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// fakeLink records writes and answers them through responder.
type fakeLink struct {
	mu           sync.Mutex
	address      string
	writes       [][]byte
	writeErr     error
	subscribeErr error
	notify       func([]byte)
	responder    func(frame []byte) [][]byte
	values       map[string][]byte
	disconnects  int
	hang         bool
}

func (l *fakeLink) Write(_ context.Context, characteristic string, data []byte) error {
	l.mu.Lock()
	if characteristic != RequestCharacteristic {
		l.mu.Unlock()
		return fmt.Errorf("write to %s", characteristic)
	}
	if l.writeErr != nil {
		err := l.writeErr
		l.mu.Unlock()
		return err
	}
	l.writes = append(l.writes, append([]byte(nil), data...))
	notify, responder := l.notify, l.responder
	l.mu.Unlock()

	if notify != nil && responder != nil {
		for _, frame := range responder(data) {
			notify(frame)
		}
	}
	return nil
}

func (l *fakeLink) Read(_ context.Context, characteristic string) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.values[characteristic]
	if !ok {
		return nil, errors.New("characteristic not found")
	}
	return v, nil
}

func (l *fakeLink) Subscribe(characteristic string, fn func([]byte)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if characteristic != NotifyCharacteristic {
		return fmt.Errorf("subscribe to %s", characteristic)
	}
	if l.subscribeErr != nil {
		return l.subscribeErr
	}
	l.notify = fn
	return nil
}

func (l *fakeLink) Disconnect(ctx context.Context) error {
	l.mu.Lock()
	l.disconnects++
	hang := l.hang
	l.mu.Unlock()
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (l *fakeLink) Writes() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]byte(nil), l.writes...)
}

func (l *fakeLink) Disconnects() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.disconnects
}

// statusResponder answers every status or temperature write with a full
// status frame carrying the requested set point.
func statusResponder(frame []byte) [][]byte {
	status := append([]byte(nil), fullStatusFrame...)
	switch frame[0] {
	case opTemperature:
		status[2] = byte(ModeManual)
		status[5] = frame[1]
	case opStatus:
	default:
		return nil
	}
	return [][]byte{status}
}

// fakeRadio delivers a fixed advertisement list, advances the clock past any
// scan budget and then waits for cancellation.
type fakeRadio struct {
	mu      sync.Mutex
	clock   *fakeClock
	ads     []Advertisement
	links   map[string]*fakeLink
	dialErr map[string]error
	scanErr error
	scans   int
	dials   []string
}

func newFakeRadio(clock *fakeClock, addrs ...string) *fakeRadio {
	r := &fakeRadio{
		clock:   clock,
		links:   make(map[string]*fakeLink),
		dialErr: make(map[string]error),
	}
	for i, addr := range addrs {
		r.ads = append(r.ads, Advertisement{Address: addr, Name: fmt.Sprintf("CC-RT-BLE-%d", i)})
		r.links[addr] = &fakeLink{
			address:   addr,
			responder: statusResponder,
			values: map[string][]byte{
				NameCharacteristic:   []byte("CC-RT-BLE\x00"),
				VendorCharacteristic: []byte("eq-3"),
			},
		}
	}
	return r
}

func (r *fakeRadio) Scan(ctx context.Context, found func(Advertisement)) error {
	r.mu.Lock()
	r.scans++
	ads := append([]Advertisement(nil), r.ads...)
	scanErr := r.scanErr
	r.mu.Unlock()

	if scanErr != nil {
		return scanErr
	}
	for _, ad := range ads {
		found(ad)
	}
	if r.clock != nil {
		r.clock.Advance(time.Hour)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (r *fakeRadio) Dial(_ context.Context, address string) (Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dials = append(r.dials, address)
	if err := r.dialErr[address]; err != nil {
		return nil, err
	}
	l, ok := r.links[address]
	if !ok {
		return nil, errors.New("no such device")
	}
	return l, nil
}

func (r *fakeRadio) Scans() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scans
}

func (r *fakeRadio) Link(address string) *fakeLink {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.links[address]
}

// recordingLogger captures log messages by level.
type recordingLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *recordingLogger) log(level, msg string) {
	l.mu.Lock()
	l.entries = append(l.entries, level+" "+msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.log("DEBUG", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.log("INFO", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.log("WARN", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.log("ERROR", msg) }

func (l *recordingLogger) Count(entry string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e == entry {
			n++
		}
	}
	return n
}

const (
	addrA = "00:1A:22:00:00:0A"
	addrB = "00:1A:22:00:00:0B"
	addrC = "00:1A:22:00:00:0C"
)
