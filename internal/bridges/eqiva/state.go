package eqiva

import (
	"encoding/json"
	"time"
)

// DeviceState is the live view of one thermostat, built from the frames its
// session has received. Optional fields are nil until reported.
//
// A DeviceState returned by Session.Snapshot is a copy; the values it points
// to are immutable and may be shared.
type DeviceState struct {
	Address     string
	Name        string
	Vendor      string
	Serial      string
	Firmware    float64
	Mode        *Mode
	Valve       *uint8
	Temperature *Temperature
	Vacation    Vacation
	OpenWindow  *OpenWindowConfig
	Comfort     *Temperature
	Eco         *Temperature
	Offset      *Temperature
	Programs    [daysPerWeek]*Program

	// Extended is true once a FullStatus frame has been received.
	Extended  bool
	UpdatedAt time.Time
}

// Apply folds a decoded notification into the state. A LegacyStatus leaves
// the extended fields at their previous values.
func (s *DeviceState) Apply(n Notification, at time.Time) {
	switch v := n.(type) {
	case SerialReport:
		s.Serial = v.Serial
		s.Firmware = v.Firmware
	case LegacyStatus:
		s.applyStatus(v.Status)
	case FullStatus:
		s.applyStatus(v.Status)
		ow, comfort, eco, offset := v.OpenWindow, v.Comfort, v.Eco, v.Offset
		s.OpenWindow = &ow
		s.Comfort = &comfort
		s.Eco = &eco
		s.Offset = &offset
		s.Extended = true
	case ProgramReport:
		if v.Day.IsWeekday() {
			p := v.Program
			s.Programs[v.Day] = &p
		}
	case NameReport:
		s.Name = v.Name
	case VendorReport:
		s.Vendor = v.Vendor
	case ProgramConfirm:
		// nothing to store
	default:
		return
	}
	s.UpdatedAt = at
}

func (s *DeviceState) applyStatus(st Status) {
	mode, valve, temp := st.Mode, st.Valve, st.Temperature
	s.Mode = &mode
	s.Valve = &valve
	s.Temperature = &temp
	s.Vacation = st.Vacation
}

// Program returns the stored program of a device weekday.
func (s DeviceState) Program(d Day) (Program, bool) {
	if !d.IsWeekday() || s.Programs[d] == nil {
		return Program{}, false
	}
	return *s.Programs[d], true
}

type deviceStateJSON struct {
	MAC         string             `json:"mac"`
	Name        *string            `json:"name"`
	Vendor      *string            `json:"vendor"`
	Serial      *string            `json:"serialNumber"`
	Firmware    *float64           `json:"firmware"`
	Mode        *Mode              `json:"mode"`
	Temperature *Temperature       `json:"temperature"`
	Valve       *uint8             `json:"valve"`
	Vacation    *Vacation          `json:"vacation"`
	Program     map[string]Program `json:"program"`
	Eco         *Temperature       `json:"ecoTemperature"`
	Comfort     *Temperature       `json:"comfortTemperature"`
	OpenWindow  *OpenWindowConfig  `json:"openWindowConfig"`
	Offset      *Temperature       `json:"offsetTemperature"`
}

// MarshalJSON renders the state with the keys used by the JSON output of the
// CLI (mac, name, vendor, serialNumber, firmware, mode, ...).
func (s DeviceState) MarshalJSON() ([]byte, error) {
	out := deviceStateJSON{
		MAC:         s.Address,
		Name:        optString(s.Name),
		Vendor:      optString(s.Vendor),
		Serial:      optString(s.Serial),
		Mode:        s.Mode,
		Temperature: s.Temperature,
		Valve:       s.Valve,
		Program:     make(map[string]Program),
		Eco:         s.Eco,
		Comfort:     s.Comfort,
		OpenWindow:  s.OpenWindow,
		Offset:      s.Offset,
	}
	if s.Firmware != 0 {
		fw := s.Firmware
		out.Firmware = &fw
	}
	if s.Mode != nil {
		v := s.Vacation
		out.Vacation = &v
	}
	for d, p := range s.Programs {
		if p != nil {
			out.Program[Day(d).String()] = *p
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the MarshalJSON form back. UpdatedAt is not part of
// the JSON and stays zero; Extended is set when any extended field is present.
func (s *DeviceState) UnmarshalJSON(data []byte) error {
	var in deviceStateJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	out := DeviceState{
		Address:     NormalizeAddress(in.MAC),
		Mode:        in.Mode,
		Valve:       in.Valve,
		Temperature: in.Temperature,
		OpenWindow:  in.OpenWindow,
		Comfort:     in.Comfort,
		Eco:         in.Eco,
		Offset:      in.Offset,
	}
	if in.Name != nil {
		out.Name = *in.Name
	}
	if in.Vendor != nil {
		out.Vendor = *in.Vendor
	}
	if in.Serial != nil {
		out.Serial = *in.Serial
	}
	if in.Firmware != nil {
		out.Firmware = *in.Firmware
	}
	if in.Vacation != nil {
		out.Vacation = *in.Vacation
	}
	for name, p := range in.Program {
		d, err := ParseDay(name)
		if err != nil || !d.IsWeekday() {
			return invalid("program", name, "not a weekday")
		}
		prog := p
		out.Programs[d] = &prog
	}
	out.Extended = in.OpenWindow != nil || in.Comfort != nil || in.Eco != nil || in.Offset != nil
	*s = out
	return nil
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
