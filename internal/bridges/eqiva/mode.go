package eqiva

import (
	"encoding/json"
	"strings"
)

// Mode is the status bitmask reported by the device.
//
// AUTO has no bit of its own: a device is in AUTO whenever the MANUAL bit is
// clear. Labels reports the decoded view; Has tests raw bits.
type Mode uint8

// Mode bits.
const (
	ModeAuto       Mode = 0x00
	ModeManual     Mode = 0x01
	ModeVacation   Mode = 0x02
	ModeBoost      Mode = 0x04
	ModeDST        Mode = 0x08
	ModeOpenWindow Mode = 0x10
	ModeLocked     Mode = 0x20
	ModeUnknown    Mode = 0x40
	ModeBatteryLow Mode = 0x80
)

// Mode labels.
const (
	LabelAuto       = "AUTO"
	LabelVacation   = "VACATION"
	LabelBoost      = "BOOST"
	LabelDST        = "DAYLIGHT_SUMMER_TIME"
	LabelOpenWindow = "OPEN_WINDOW"
	LabelLocked     = "LOCKED"
	LabelUnknown    = "UNKNOWN"
	LabelBatteryLow = "BATTERY_LOW"
)

var modeLabels = []struct {
	bit   Mode
	label string
}{
	{ModeVacation, LabelVacation},
	{ModeBoost, LabelBoost},
	{ModeDST, LabelDST},
	{ModeOpenWindow, LabelOpenWindow},
	{ModeLocked, LabelLocked},
	{ModeUnknown, LabelUnknown},
	{ModeBatteryLow, LabelBatteryLow},
}

// Has reports whether every bit of flag is set. ModeAuto tests for the
// absence of the MANUAL bit.
func (m Mode) Has(flag Mode) bool {
	if flag == ModeAuto {
		return m&ModeManual == 0
	}
	return m&flag == flag
}

// Labels decodes the bitmask: AUTO when MANUAL is clear, followed by one
// label per set flag bit. MANUAL itself is not labelled.
func (m Mode) Labels() []string {
	labels := make([]string, 0, len(modeLabels)+1)
	if m.Has(ModeAuto) {
		labels = append(labels, LabelAuto)
	}
	for _, ml := range modeLabels {
		if m&ml.bit != 0 {
			labels = append(labels, ml.label)
		}
	}
	return labels
}

func (m Mode) String() string {
	return strings.Join(m.Labels(), ", ")
}

// MarshalJSON renders the labels array.
func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Labels())
}

// UnmarshalJSON reads the labels array. A missing AUTO label sets MANUAL.
func (m *Mode) UnmarshalJSON(data []byte) error {
	var labels []string
	if err := json.Unmarshal(data, &labels); err != nil {
		return err
	}
	mode := ModeManual
	for _, label := range labels {
		if label == LabelAuto {
			mode &^= ModeManual
			continue
		}
		bit, ok := modeBit(label)
		if !ok {
			return invalid("mode", label, "unknown label")
		}
		mode |= bit
	}
	*m = mode
	return nil
}

func modeBit(label string) (Mode, bool) {
	for _, ml := range modeLabels {
		if ml.label == label {
			return ml.bit, true
		}
	}
	return 0, false
}
