package eqiva

import (
	"encoding/json"
	"fmt"
	"math"
)

// Temperature limits accepted by the device.
const (
	// MinTemperature is the lowest encodable temperature (offsets go this low).
	MinTemperature = -4.5

	// MaxTemperature is the highest encodable temperature.
	MaxTemperature = 30.0

	// MinSetpoint is the lowest set point; the device treats it as OFF.
	MinSetpoint = 4.5

	// MaxSetpoint is the highest set point; the device treats it as ON.
	MaxSetpoint = 30.0

	// MaxOffset bounds the offset temperature in both directions.
	MaxOffset = 3.5

	// offsetBias is added to the offset byte on the wire.
	offsetBias = 7
)

// Temperature is a Celsius value quantised to half degrees.
//
// The zero value is 0.0°C. Construct with NewTemperature or NewSetpoint;
// values decoded from frames come from TemperatureFromByte.
type Temperature struct {
	half int8
}

// NewTemperature validates celsius and returns the matching Temperature.
//
// Parameters:
//   - celsius: Value in [-4.5, 30.0], a multiple of 0.5
//
// Returns:
//   - Temperature: Quantised value
//   - error: ValidationError if out of range or not a half-degree step
func NewTemperature(celsius float64) (Temperature, error) {
	return newTemperature("temperature", celsius, MinTemperature, MaxTemperature)
}

// NewSetpoint is NewTemperature restricted to the set-point range [4.5, 30.0].
func NewSetpoint(celsius float64) (Temperature, error) {
	return newTemperature("temperature", celsius, MinSetpoint, MaxSetpoint)
}

func newTemperature(field string, celsius, minC, maxC float64) (Temperature, error) {
	if math.IsNaN(celsius) || celsius < minC || celsius > maxC {
		return Temperature{}, invalid(field, celsius, "must be between %.1f and %.1f", minC, maxC)
	}
	halves := celsius * 2 //nolint:mnd // half-degree steps
	if halves != math.Trunc(halves) {
		return Temperature{}, invalid(field, celsius, "must be a multiple of 0.5")
	}
	return Temperature{half: int8(halves)}, nil
}

// TemperatureFromByte decodes the wire form (value = byte / 2).
func TemperatureFromByte(b byte) Temperature {
	return Temperature{half: int8(b)}
}

// Byte returns the wire form (celsius * 2 as a signed byte).
func (t Temperature) Byte() byte {
	return byte(t.half)
}

// Celsius returns the value in degrees Celsius.
func (t Temperature) Celsius() float64 {
	return float64(t.half) / 2 //nolint:mnd // half-degree steps
}

// Fahrenheit returns the value in degrees Fahrenheit.
func (t Temperature) Fahrenheit() float64 {
	return t.Celsius()*9/5 + 32 //nolint:mnd // unit conversion
}

// String renders the value as "21.5°C".
func (t Temperature) String() string {
	return fmt.Sprintf("%.1f°C", t.Celsius())
}

// MarshalJSON renders {"valueC": 21.5, "valueF": 70.7}.
func (t Temperature) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		C float64 `json:"valueC"`
		F float64 `json:"valueF"`
	}{t.Celsius(), t.Fahrenheit()})
}

// UnmarshalJSON reads the MarshalJSON form. Only valueC is used.
func (t *Temperature) UnmarshalJSON(data []byte) error {
	var v struct {
		C *float64 `json:"valueC"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.C == nil {
		return invalid("temperature", string(data), "valueC required")
	}
	halves := *v.C * 2 //nolint:mnd // half-degree steps
	if math.IsNaN(halves) || halves != math.Trunc(halves) || halves < math.MinInt8 || halves > math.MaxInt8 {
		return invalid("temperature", *v.C, "not a half-degree value")
	}
	t.half = int8(halves)
	return nil
}

// Well-known set points.
var (
	// TemperatureOff is the set point the device shows as OFF.
	TemperatureOff = Temperature{half: 9}

	// TemperatureOn is the set point the device shows as ON.
	TemperatureOn = Temperature{half: 60}
)
