package ble

import "errors"

// Domain errors for the ble package.
var (
	// ErrAdapterUnavailable is returned when the controller cannot be enabled.
	ErrAdapterUnavailable = errors.New("ble: adapter unavailable")

	// ErrUnknownPeripheral is returned when dialling an address no scan has
	// reported.
	ErrUnknownPeripheral = errors.New("ble: peripheral not seen in scan")

	// ErrCharacteristicNotFound is returned when a GATT characteristic is
	// missing on the peripheral.
	ErrCharacteristicNotFound = errors.New("ble: characteristic not found")

	// ErrClosed is returned when a link is used after Disconnect.
	ErrClosed = errors.New("ble: link closed")
)
