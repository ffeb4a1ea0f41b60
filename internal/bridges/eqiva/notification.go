package eqiva

import (
	"fmt"
)

// Notification frame layout.
const (
	notifySerial         byte = 0x01
	notifyStatusGroup    byte = 0x02
	notifyStatus         byte = 0x01
	notifyProgramConfirm byte = 0x02
	notifyProgramReport  byte = 0x21

	// serialDigitBias is subtracted from every serial number byte.
	serialDigitBias = 0x30

	statusMinLen      = 6
	statusVacationLen = 10
	statusFullLen     = 15
)

// Notification is a decoded frame from the notification characteristic:
// one of SerialReport, LegacyStatus, FullStatus, ProgramConfirm,
// ProgramReport, NameReport or VendorReport.
type Notification interface {
	notification()
}

// SerialReport carries the serial number and firmware version.
type SerialReport struct {
	Serial   string
	Firmware float64
}

// Status holds the fields every firmware reports.
type Status struct {
	Mode        Mode
	Valve       uint8
	Temperature Temperature
	Vacation    Vacation
}

// LegacyStatus is the short STATUS frame of older firmware. It carries no
// open-window, comfort, eco or offset values.
type LegacyStatus struct {
	Status
}

// FullStatus is the 15-byte STATUS frame.
type FullStatus struct {
	Status
	OpenWindow OpenWindowConfig
	Comfort    Temperature
	Eco        Temperature
	Offset     Temperature
}

// ProgramConfirm acknowledges a stored program.
type ProgramConfirm struct {
	Day Day
}

// ProgramReport carries the program of one device weekday (0 = Saturday).
type ProgramReport struct {
	Day     Day
	Program Program
}

// NameReport is the value read from the name characteristic.
type NameReport struct {
	Name string
}

// VendorReport is the value read from the vendor characteristic.
type VendorReport struct {
	Vendor string
}

func (SerialReport) notification()   {}
func (LegacyStatus) notification()   {}
func (FullStatus) notification()     {}
func (ProgramConfirm) notification() {}
func (ProgramReport) notification()  {}
func (NameReport) notification()     {}
func (VendorReport) notification()   {}

// DecodeNotification decodes one notification frame.
//
// Parameters:
//   - frame: Raw bytes pushed by the device
//
// Returns:
//   - Notification: Decoded frame, or nil for prefixes this package does not model
//   - error: ProtocolError if a known frame is truncated or malformed
func DecodeNotification(frame []byte) (Notification, error) {
	if len(frame) == 0 {
		return nil, nil //nolint:nilnil // empty frames carry nothing
	}
	switch {
	case frame[0] == notifySerial:
		return decodeSerial(frame)
	case frame[0] == notifyStatusGroup && len(frame) > 1 && frame[1] == notifyStatus:
		return decodeStatus(frame)
	case frame[0] == notifyStatusGroup && len(frame) > 1 && frame[1] == notifyProgramConfirm:
		return decodeProgramConfirm(frame)
	case frame[0] == notifyProgramReport:
		return decodeProgramReport(frame)
	default:
		return nil, nil //nolint:nilnil // unknown prefixes are ignored
	}
}

func malformed(frame []byte, format string, args ...any) error {
	return &ProtocolError{Frame: append([]byte(nil), frame...), Reason: fmt.Sprintf(format, args...)}
}

func decodeSerial(frame []byte) (Notification, error) {
	if len(frame) < 5 { //nolint:mnd // op, firmware, two unknown, terminator
		return nil, malformed(frame, "serial frame needs at least 5 bytes, got %d", len(frame))
	}
	digits := frame[4 : len(frame)-1]
	serial := make([]byte, len(digits))
	for i, b := range digits {
		serial[i] = b - serialDigitBias
	}
	return SerialReport{
		Serial:   string(serial),
		Firmware: float64(frame[1]) / 100, //nolint:mnd // firmware 120 = 1.20
	}, nil
}

func decodeStatus(frame []byte) (Notification, error) {
	if len(frame) < statusMinLen {
		return nil, malformed(frame, "status frame needs at least %d bytes, got %d", statusMinLen, len(frame))
	}
	base := Status{
		Mode:        Mode(frame[2]),
		Valve:       frame[3],
		Temperature: TemperatureFromByte(frame[5]),
	}
	if len(frame) >= statusVacationLen {
		v, err := VacationFromBytes(frame[6:10])
		if err != nil {
			return nil, malformed(frame, "vacation: %v", err)
		}
		base.Vacation = v
	}
	if len(frame) < statusFullLen {
		return LegacyStatus{Status: base}, nil
	}
	return FullStatus{
		Status:     base,
		OpenWindow: OpenWindowFromBytes(frame[10], frame[11]),
		Comfort:    TemperatureFromByte(frame[12]),
		Eco:        TemperatureFromByte(frame[13]),
		Offset:     TemperatureFromByte(frame[14] - offsetBias),
	}, nil
}

func decodeProgramConfirm(frame []byte) (Notification, error) {
	if len(frame) < 3 { //nolint:mnd // prefix + day
		return nil, malformed(frame, "program confirm needs 3 bytes, got %d", len(frame))
	}
	day := Day(frame[2])
	if !day.IsWeekday() {
		return nil, malformed(frame, "day index %d out of range", frame[2])
	}
	return ProgramConfirm{Day: day}, nil
}

func decodeProgramReport(frame []byte) (Notification, error) {
	if len(frame) < 2+ProgramSize { //nolint:mnd // op-code + day
		return nil, malformed(frame, "program report needs %d bytes, got %d", 2+ProgramSize, len(frame))
	}
	day := Day(frame[1])
	if !day.IsWeekday() {
		return nil, malformed(frame, "day index %d out of range", frame[1])
	}
	p, err := ProgramFromBytes(frame[2 : 2+ProgramSize])
	if err != nil {
		return nil, malformed(frame, "program: %v", err)
	}
	return ProgramReport{Day: day, Program: p}, nil
}
