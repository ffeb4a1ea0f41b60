package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/eqiva-core/internal/bridges/eqiva"
)

// Measurement names.
const (
	measurementThermostat = "thermostat"
	measurementCommand    = "eqiva_command"
)

// RecordState writes the status carried by a device state. States without a
// status report (name or vendor reads only) are skipped. Implements
// eqiva.StateRecorder.
//
// The write is non-blocking; errors surface through SetOnError.
func (c *Client) RecordState(_ context.Context, st eqiva.DeviceState) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if p := thermostatPoint(st, time.Now()); p != nil {
		return c.write(p)
	}
	return nil
}

// thermostatPoint builds the point for st, stamped with st.UpdatedAt or now.
// Returns nil when st carries no status.
func thermostatPoint(st eqiva.DeviceState, now time.Time) *write.Point {
	if st.Mode == nil || st.Valve == nil || st.Temperature == nil {
		return nil
	}
	mode := *st.Mode

	tags := map[string]string{"address": st.Address}
	if st.Name != "" {
		tags["name"] = st.Name
	}

	fields := map[string]interface{}{
		"temperature": st.Temperature.Celsius(),
		"valve":       int64(*st.Valve),
		"mode":        int64(mode),
		"auto":        mode.Has(eqiva.ModeAuto),
		"boost":       mode.Has(eqiva.ModeBoost),
		"vacation":    mode.Has(eqiva.ModeVacation),
		"open_window": mode.Has(eqiva.ModeOpenWindow),
		"locked":      mode.Has(eqiva.ModeLocked),
		"battery_low": mode.Has(eqiva.ModeBatteryLow),
	}
	if st.Comfort != nil {
		fields["comfort_temperature"] = st.Comfort.Celsius()
	}
	if st.Eco != nil {
		fields["eco_temperature"] = st.Eco.Celsius()
	}
	if st.Offset != nil {
		fields["offset_temperature"] = st.Offset.Celsius()
	}

	at := st.UpdatedAt
	if at.IsZero() {
		at = now
	}
	return write.NewPoint(measurementThermostat, tags, fields, at)
}

// LogCommand writes one point per executed command with its duration and
// failure count. Implements eqiva.CommandLogger so the daemon can chain it
// with the SQLite command log.
func (c *Client) LogCommand(_ context.Context, rec eqiva.CommandRecord) error {
	return c.write(commandPoint(rec, time.Now()))
}

func commandPoint(rec eqiva.CommandRecord, now time.Time) *write.Point {
	at := rec.StartedAt
	if at.IsZero() {
		at = now
	}
	return write.NewPoint(
		measurementCommand,
		map[string]string{
			"command": rec.Command,
			"source":  rec.Source,
		},
		map[string]interface{}{
			"duration_ms": rec.Duration.Milliseconds(),
			"targets":     int64(len(rec.Targets)),
			"failed":      int64(len(rec.Results.Failed())),
			"ok":          rec.Err == nil,
		},
		at,
	)
}
