package eqiva

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Session timing defaults.
const (
	// DefaultSettleDelay is the wait after each write for the device to
	// push its confirming notification.
	DefaultSettleDelay = 2 * time.Second

	// inboxSize bounds buffered notification frames per session.
	inboxSize = 32
)

// SessionState is the lifecycle state of a Session.
type SessionState int

// Session lifecycle.
const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "disconnected"
	}
}

// SessionOptions configures a Session.
type SessionOptions struct {
	// Dialer opens the BLE link. Required.
	Dialer Dialer

	// Clock drives the settle delay. Default: SystemClock.
	Clock Clock

	// SettleDelay is the wait after each write. Default: 2 seconds.
	SettleDelay time.Duration

	// Logger receives session events. Default: discard.
	Logger Logger
}

// inbound is one item for the decode goroutine: a raw frame from the
// notification characteristic, or an already decoded value from a read.
// Barrier items carry applied, which receives the first decode error seen
// since the previous barrier.
type inbound struct {
	frame   []byte
	note    Notification
	applied chan error
}

// Session owns one BLE connection to a thermostat.
//
// Sends are serialised so commands reach the device in the order issued.
// Notification frames are queued on a channel and decoded by a single
// goroutine, the only writer of the session's DeviceState.
type Session struct {
	address string
	dialer  Dialer
	clock   Clock
	settle  time.Duration
	logger  Logger

	sendMu sync.Mutex

	mu       sync.RWMutex
	state    SessionState
	link     Link
	device   DeviceState
	degraded bool
	lastErr  error

	inbox    chan inbound
	decodeWG sync.WaitGroup

	// Owned by decodeLoop.
	legacyLogged bool
	decodeErr    error
}

// NewSession creates a disconnected session for address.
func NewSession(address string, opts SessionOptions) *Session {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	address = NormalizeAddress(address)
	return &Session{
		address: address,
		dialer:  opts.Dialer,
		clock:   opts.Clock,
		settle:  opts.SettleDelay,
		logger:  opts.Logger,
		device:  DeviceState{Address: address},
	}
}

// Address returns the peripheral address.
func (s *Session) Address() string { return s.address }

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsConnected reports whether the session can send commands.
func (s *Session) IsConnected() bool { return s.State() == StateConnected }

// Degraded reports whether notifications are unavailable, in which case
// command results are assumed after the settle delay.
func (s *Session) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// Err returns the error that ended the last connect attempt, if any.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Connect dials the device and subscribes to notifications. A failed
// subscription is logged once and leaves the session usable in degraded mode.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("eqiva: session %s is already %s", s.address, st)
	}
	if s.dialer == nil {
		s.mu.Unlock()
		return &TransportError{Address: s.address, Op: "connect", Err: fmt.Errorf("no dialer configured")}
	}
	s.state = StateConnecting
	s.mu.Unlock()

	s.logger.Debug("connecting", "address", s.address)
	link, err := s.dialer.Dial(ctx, s.address)
	if err != nil {
		terr := &TransportError{Address: s.address, Op: "connect", Err: err}
		s.mu.Lock()
		s.state = StateDisconnected
		s.lastErr = terr
		s.mu.Unlock()
		return terr
	}

	inbox := make(chan inbound, inboxSize)
	s.mu.Lock()
	s.inbox = inbox
	s.mu.Unlock()
	s.decodeErr = nil
	s.decodeWG.Add(1)
	go s.decodeLoop(inbox)

	degraded := false
	if err := link.Subscribe(NotifyCharacteristic, s.enqueue); err != nil {
		degraded = true
		s.logger.Warn("notifications unavailable, assuming results after settle delay",
			"address", s.address, "error", err)
	}

	s.mu.Lock()
	s.link = link
	s.degraded = degraded
	s.state = StateConnected
	s.lastErr = nil
	s.mu.Unlock()

	s.logger.Info("connected", "address", s.address)
	return nil
}

// enqueue is the notification callback handed to the transport.
func (s *Session) enqueue(frame []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateConnected && s.state != StateConnecting {
		return
	}
	select {
	case s.inbox <- inbound{frame: append([]byte(nil), frame...)}:
	default:
		s.logger.Warn("notification dropped, inbox full", "address", s.address)
	}
}

// decodeLoop is the single writer of s.device. A malformed frame leaves
// the state untouched and is reported to the next barrier.
func (s *Session) decodeLoop(inbox <-chan inbound) {
	defer s.decodeWG.Done()
	for item := range inbox {
		n := item.note
		if n == nil && item.frame != nil {
			var err error
			n, err = DecodeNotification(item.frame)
			if err != nil {
				var perr *ProtocolError
				if errors.As(err, &perr) {
					perr.Address = s.address
				}
				s.logger.Warn("malformed notification", "address", s.address, "error", err)
				if s.decodeErr == nil {
					s.decodeErr = err
				}
			}
		}
		if n != nil {
			s.logNotification(n)
			now := s.clock.Now()
			s.mu.Lock()
			s.device.Apply(n, now)
			s.mu.Unlock()
		}
		if item.applied != nil {
			item.applied <- s.decodeErr
			s.decodeErr = nil
		}
	}
}

func (s *Session) logNotification(n Notification) {
	switch v := n.(type) {
	case SerialReport:
		s.logger.Debug("received serial", "address", s.address, "serial", v.Serial, "firmware", v.Firmware)
	case LegacyStatus:
		if !s.legacyLogged {
			s.legacyLogged = true
			s.logger.Warn("outdated firmware, extended status not reported", "address", s.address)
		}
		s.logger.Debug("received status", "address", s.address, "mode", v.Mode.String(), "temperature", v.Temperature.String())
	case FullStatus:
		s.logger.Debug("received status", "address", s.address, "mode", v.Mode.String(), "temperature", v.Temperature.String())
	case ProgramReport:
		s.logger.Debug("received program", "address", s.address, "day", v.Day.LongName())
	case ProgramConfirm:
		s.logger.Info("program stored", "address", s.address, "day", v.Day.LongName())
	}
}

// Send issues one command and waits for it to settle. Notifications that
// arrived by then are applied before Send returns. Commands on the same
// session are applied in the order Send is called.
//
// Parameters:
//   - ctx: Cancels the write or the settle wait
//   - cmd: Command built by one of the package constructors
//
// Returns:
//   - error: TransportError if the link rejects the write or read,
//     ProtocolError if a notification received before the command settled
//     could not be decoded, ErrNotConnected if the session is not open,
//     or ctx.Err()
func (s *Session) Send(ctx context.Context, cmd Command) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.RLock()
	link, state := s.link, s.state
	s.mu.RUnlock()
	if state != StateConnected || link == nil {
		return fmt.Errorf("%w: %s", ErrNotConnected, s.address)
	}

	if ch := cmd.ReadCharacteristic(); ch != "" {
		return s.read(ctx, link, cmd, ch)
	}

	s.logger.Debug("sending command", "address", s.address, "command", string(cmd.Kind()))
	for _, frame := range cmd.frames {
		if err := link.Write(ctx, RequestCharacteristic, frame); err != nil {
			return &TransportError{Address: s.address, Op: string(cmd.Kind()), Err: err}
		}
	}

	select {
	case <-s.clock.After(s.settle):
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.barrier(ctx, nil)
}

func (s *Session) read(ctx context.Context, link Link, cmd Command, characteristic string) error {
	data, err := link.Read(ctx, characteristic)
	if err != nil {
		return &TransportError{Address: s.address, Op: string(cmd.Kind()), Err: err}
	}
	value := strings.TrimRight(string(data), "\x00")

	var n Notification
	if cmd.Kind() == KindVendor {
		n = VendorReport{Vendor: value}
	} else {
		n = NameReport{Name: value}
	}

	return s.barrier(ctx, n)
}

// barrier queues n (which may be nil) behind every frame received so far and
// waits until the decoder has applied it. It returns the first decode error
// since the previous barrier. The caller holds sendMu, so Disconnect cannot
// close the inbox underneath.
func (s *Session) barrier(ctx context.Context, n Notification) error {
	item := inbound{note: n, applied: make(chan error, 1)}
	select {
	case s.inbox <- item:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-item.applied:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a copy of the device state.
func (s *Session) Snapshot() DeviceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.device
}

// Disconnect closes the link. It is a no-op when no link is open, so it is
// safe after a failed connect, more than once, and again after a reconnect.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	link := s.link
	if link == nil || s.state != StateConnected {
		s.mu.Unlock()
		return nil
	}
	s.state = StateDisconnecting
	s.mu.Unlock()

	// Wait for an in-flight send before tearing down.
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	var err error
	if derr := link.Disconnect(ctx); derr != nil {
		err = &TransportError{Address: s.address, Op: "disconnect", Err: derr}
	}

	s.mu.Lock()
	s.state = StateDisconnected
	s.link = nil
	close(s.inbox)
	s.mu.Unlock()
	s.decodeWG.Wait()

	s.logger.Info("disconnected", "address", s.address)
	return err
}
