package thermostat

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/eqiva-core/internal/bridges/eqiva"
)

// Thermostat is one known device and its last reported state.
type Thermostat struct {
	Address  string  `json:"address"`
	Alias    string  `json:"alias,omitempty"`
	Name     string  `json:"name,omitempty"`
	Vendor   string  `json:"vendor,omitempty"`
	Serial   string  `json:"serial,omitempty"`
	Firmware float64 `json:"firmware,omitempty"`

	// Mode, Valve and Temperature are nil until a status was received.
	Mode        *eqiva.Mode `json:"mode,omitempty"`
	Valve       *uint8      `json:"valve,omitempty"`
	Temperature *float64    `json:"temperature,omitempty"`

	// State is the full device state JSON as last reported.
	State          json.RawMessage `json:"state,omitempty"`
	StateUpdatedAt *time.Time      `json:"state_updated_at,omitempty"`
	LastSeen       *time.Time      `json:"last_seen,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy returns a copy sharing no memory with t.
func (t *Thermostat) DeepCopy() *Thermostat {
	if t == nil {
		return nil
	}
	c := *t
	if t.Mode != nil {
		m := *t.Mode
		c.Mode = &m
	}
	if t.Valve != nil {
		v := *t.Valve
		c.Valve = &v
	}
	if t.Temperature != nil {
		v := *t.Temperature
		c.Temperature = &v
	}
	if t.State != nil {
		c.State = append(json.RawMessage(nil), t.State...)
	}
	if t.StateUpdatedAt != nil {
		v := *t.StateUpdatedAt
		c.StateUpdatedAt = &v
	}
	if t.LastSeen != nil {
		v := *t.LastSeen
		c.LastSeen = &v
	}
	return &c
}

// merge folds a reported device state into t. Identity fields only change
// when the state carries them.
func (t *Thermostat) merge(st eqiva.DeviceState, raw json.RawMessage, at time.Time) {
	if st.Name != "" {
		t.Name = st.Name
	}
	if st.Vendor != "" {
		t.Vendor = st.Vendor
	}
	if st.Serial != "" {
		t.Serial = st.Serial
		t.Firmware = st.Firmware
	}
	if st.Mode != nil {
		m, v, temp := *st.Mode, *st.Valve, st.Temperature.Celsius()
		t.Mode = &m
		t.Valve = &v
		t.Temperature = &temp
	}
	t.State = raw
	t.StateUpdatedAt = &at
	t.LastSeen = &at
}

// HomeKit heating/cooling states.
const (
	HeatingCoolingOff  = 0
	HeatingCoolingHeat = 1
	HeatingCoolingCool = 2
	HeatingCoolingAuto = 3
)

// DefaultTemperature is reported for thermostats without a status.
const DefaultTemperature = 20.0

// HomeKitStatus is the view served to HomeKit bridges.
type HomeKitStatus struct {
	TargetHeatingCoolingState  int     `json:"targetHeatingCoolingState"`
	TargetTemperature          float64 `json:"targetTemperature"`
	CurrentHeatingCoolingState int     `json:"currentHeatingCoolingState"`
	CurrentTemperature         float64 `json:"currentTemperature"`
}

// DefaultHomeKitStatus is returned for a thermostat that never reported.
func DefaultHomeKitStatus() HomeKitStatus {
	return HomeKitStatus{
		TargetHeatingCoolingState:  HeatingCoolingOff,
		TargetTemperature:          DefaultTemperature,
		CurrentHeatingCoolingState: HeatingCoolingOff,
		CurrentTemperature:         DefaultTemperature,
	}
}

// HomeKit maps the last status. A set point at the OFF temperature is off;
// otherwise the target is auto or heat by mode, and the current state is
// heat while the valve is open and cool while it is closed.
func (t *Thermostat) HomeKit() HomeKitStatus {
	if t.Mode == nil || t.Temperature == nil {
		return DefaultHomeKitStatus()
	}
	temp := *t.Temperature
	s := HomeKitStatus{TargetTemperature: temp, CurrentTemperature: temp}

	if temp <= eqiva.MinSetpoint {
		return s
	}
	if t.Mode.Has(eqiva.ModeAuto) {
		s.TargetHeatingCoolingState = HeatingCoolingAuto
	} else {
		s.TargetHeatingCoolingState = HeatingCoolingHeat
	}
	switch {
	case t.Valve != nil && *t.Valve > 0:
		s.CurrentHeatingCoolingState = HeatingCoolingHeat
	case t.Valve != nil:
		s.CurrentHeatingCoolingState = HeatingCoolingCool
	default:
		s.CurrentHeatingCoolingState = s.TargetHeatingCoolingState
	}
	return s
}
