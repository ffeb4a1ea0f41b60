// Package eqiva implements the Eqiva (eQ-3) Bluetooth radiator thermostat
// protocol and the fleet orchestration used by the eqiva bridge.
//
// Thermostats expose two GATT characteristics: a request characteristic
// (written with response) and a notification characteristic on which the
// device pushes status, serial and schedule frames. This package maps a typed
// domain model (Temperature, Program, Vacation, Mode, ...) onto those frames
// and coordinates several devices at once.
//
// # Architecture
//
//	┌──────────────┐  MQTT / HTTP  ┌─────────────────────────────┐   BLE
//	│  Automation  │◄─────────────►│ Bridge / Runner (this pkg)  │◄────────► Thermostats
//	└──────────────┘               │  Fleet ─► Session ─► Codec  │
//	                               └─────────────────────────────┘
//
// # Layers
//
//   - Value types: Temperature, Event, Program, Vacation, OpenWindowConfig, Mode
//   - Codec: Command constructors and DecodeNotification
//   - Session: one BLE link, ordered sends, a single decode goroutine
//   - Scanner: timed discovery and consuming address/name resolution
//   - Fleet: concurrent connect, fan-out, bounded disconnect
//   - Runner: connect → dispatch → snapshot → disconnect with a process-wide
//     cap of MaxConnections simultaneous sessions
//
// Example:
//
//	runner := eqiva.NewRunner(eqiva.RunnerOptions{Radio: radio})
//	states, results, err := runner.Run(ctx, []string{"00:1A:22:0A:0B:0C"},
//	    eqiva.SetTemperature(t))
//
// # Weekdays
//
// The device numbers weekdays from Saturday (0) to Friday (6). Day values in
// this package use the device numbering; convert with Day.Weekday.
//
// # Thread Safety
//
// Value types are immutable. Session, Scanner, Fleet and Runner are safe for
// concurrent use from multiple goroutines.
package eqiva
