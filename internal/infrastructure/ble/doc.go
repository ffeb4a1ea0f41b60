// Package ble adapts the host Bluetooth controller (via tinygo.org/x/bluetooth)
// to the eqiva Radio and Link interfaces.
//
// One Adapter wraps the system adapter. Scans are serialised because the
// controller runs a single discovery at a time; connections are only opened
// to addresses seen by a previous scan, which the eqiva runner guarantees.
//
// Only the BlueZ backend (Linux) is supported. On other platforms Open
// returns ErrAdapterUnavailable.
package ble
