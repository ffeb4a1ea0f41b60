// Package influxdb provides InfluxDB connectivity for thermostat telemetry.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health monitoring.
//
// # Purpose
//
// The Client is registered with the eqiva controller as a StateRecorder and
// a CommandLogger, so every run produces:
//   - a "thermostat" point per device status (temperature, valve, mode bits)
//   - an "eqiva_command" point per command (duration, failures)
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	controller, _ := eqiva.NewController(eqiva.ControllerOptions{
//	    Runner:    runner,
//	    Recorders: []eqiva.StateRecorder{registry, client},
//	})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via the
// SetOnError callback. Connection and health check errors are returned directly.
package influxdb
