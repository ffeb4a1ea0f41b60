package eqiva

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Domain errors for the eqiva package.
//
// Each typed error below reports itself as the matching sentinel through
// errors.Is, so callers can branch on the class and use errors.As for detail.
var (
	// ErrValidation is returned for malformed command parameters.
	ErrValidation = errors.New("eqiva: invalid value")

	// ErrTransport is returned when the BLE link fails.
	ErrTransport = errors.New("eqiva: transport failure")

	// ErrProtocol is returned for unexpected or undecodable frames.
	ErrProtocol = errors.New("eqiva: protocol error")

	// ErrResolution is returned when a scan cannot find every target.
	ErrResolution = errors.New("eqiva: could not find all given addresses")

	// ErrCapacity is returned when a batch exceeds MaxConnections.
	ErrCapacity = errors.New("eqiva: too many simultaneous connections")

	// ErrNotConnected is returned when a session is used without an open link.
	ErrNotConnected = errors.New("eqiva: session not connected")

	// ErrUnknownCommand is returned by ParseCommand for unsupported names.
	ErrUnknownCommand = errors.New("eqiva: unknown command")
)

// Reason codes reported to MQTT and HTTP callers.
const (
	CodeInvalidParameters = "INVALID_PARAMETERS"
	CodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	CodeProtocolError     = "PROTOCOL_ERROR"
	CodeNotFound          = "DEVICE_NOT_FOUND"
	CodeCapacityExceeded  = "CAPACITY_EXCEEDED"
	CodeUnknownCommand    = "UNKNOWN_COMMAND"
	CodeTimeout           = "TIMEOUT"
	CodeInternal          = "INTERNAL_ERROR"
)

// ValidationError describes a value rejected before any I/O.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("eqiva: invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// Is reports ErrValidation as the class of this error.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field string, value any, format string, args ...any) error {
	return &ValidationError{Field: field, Value: value, Reason: fmt.Sprintf(format, args...)}
}

// TransportError wraps a BLE failure for one device.
type TransportError struct {
	Address string
	Op      string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("eqiva: %s %s: %v", e.Op, e.Address, e.Err)
}

// Is reports ErrTransport as the class of this error.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// Unwrap returns the underlying transport error.
func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError describes a frame that could not be decoded.
type ProtocolError struct {
	Address string
	Frame   []byte
	Reason  string
}

func (e *ProtocolError) Error() string {
	if e.Address == "" {
		return fmt.Sprintf("eqiva: bad frame % x: %s", e.Frame, e.Reason)
	}
	return fmt.Sprintf("eqiva: bad frame % x from %s: %s", e.Frame, e.Address, e.Reason)
}

// Is reports ErrProtocol as the class of this error.
func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

// ResolutionError lists the targets a scan failed to find.
type ResolutionError struct {
	Requested []string
	Missing   []string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("eqiva: could not find all given addresses (found %d of %d, missing %s)",
		len(e.Requested)-len(e.Missing), len(e.Requested), strings.Join(e.Missing, ", "))
}

// Is reports ErrResolution as the class of this error.
func (e *ResolutionError) Is(target error) bool { return target == ErrResolution }

// CapacityError reports a batch larger than the BLE stack allows.
type CapacityError struct {
	Requested int
	Max       int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("eqiva: too many simultaneous connections requested, max. %d but requested %d",
		e.Max, e.Requested)
}

// Is reports ErrCapacity as the class of this error.
func (e *CapacityError) Is(target error) bool { return target == ErrCapacity }

// ErrorCode maps an error to a stable reason code for ack and HTTP responses.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return CodeInvalidParameters
	case errors.Is(err, ErrUnknownCommand):
		return CodeUnknownCommand
	case errors.Is(err, ErrCapacity):
		return CodeCapacityExceeded
	case errors.Is(err, ErrResolution):
		return CodeNotFound
	case errors.Is(err, ErrProtocol):
		return CodeProtocolError
	case errors.Is(err, ErrTransport), errors.Is(err, ErrNotConnected):
		return CodeDeviceUnreachable
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	default:
		return CodeInternal
	}
}
