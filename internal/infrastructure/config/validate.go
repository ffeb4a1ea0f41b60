package config

import (
	"errors"
	"fmt"
)

const (
	minJWTSecretLength = 32

	// Set point range the thermostat firmware accepts.
	deviceMinTemperature = 4.5
	deviceMaxTemperature = 30
)

// Validate reports every invalid setting at once, each as "<yaml key> <problem>",
// for example "database.path is required".
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, key, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%s "+format, append([]any{key}, args...)...))
		}
	}

	e := c.Eqiva
	check(e.ScanTimeout >= 1, "eqiva.scan_timeout", "must be at least 1 second")
	check(e.SettleDelay >= 0, "eqiva.settle_delay", "must not be negative")
	check(e.PollInterval >= 0, "eqiva.poll_interval", "must not be negative")
	check(e.MinTemperature >= deviceMinTemperature && e.MaxTemperature <= deviceMaxTemperature && e.MinTemperature < e.MaxTemperature,
		"eqiva.min_temperature", "and eqiva.max_temperature must satisfy %.1f <= min < max <= %d",
		deviceMinTemperature, deviceMaxTemperature)

	check(c.Database.Path != "", "database.path", "is required")

	check(c.MQTT.QoS >= 0 && c.MQTT.QoS <= 2, "mqtt.qos", "must be 0, 1 or 2")
	if c.MQTT.Enabled {
		check(c.MQTT.Broker.Host != "", "mqtt.broker.host", "is required when mqtt is enabled")
		check(validPort(c.MQTT.Broker.Port), "mqtt.broker.port", "must be between 1 and 65535")
	}

	check(validPort(c.API.Port), "api.port", "must be between 1 and 65535")
	if c.API.TLS.Enabled {
		check(c.API.TLS.CertFile != "" && c.API.TLS.KeyFile != "", "api.tls", "needs cert_file and key_file when enabled")
	}

	if c.InfluxDB.Enabled {
		check(c.InfluxDB.URL != "" && c.InfluxDB.Bucket != "", "influxdb.url", "and influxdb.bucket are required when influxdb is enabled")
	}

	if s := c.Security.JWT.Secret; s != "" {
		check(len(s) >= minJWTSecretLength, "security.jwt.secret", "must be at least %d characters", minJWTSecretLength)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("configuration errors: %w", errors.Join(errs...))
}

func validPort(p int) bool { return p >= 1 && p <= 65535 }
