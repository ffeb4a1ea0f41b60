package thermostat

import "errors"

// Domain errors for the thermostat package.
var (
	// ErrThermostatNotFound is returned when an address is not registered.
	ErrThermostatNotFound = errors.New("thermostat: not found")

	// ErrInvalidAddress is returned for an address without the Eqiva prefix.
	ErrInvalidAddress = errors.New("thermostat: invalid address")
)
