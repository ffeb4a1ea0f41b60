package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads path over the built-in defaults, then applies EQIVA_*
// environment overrides and validates the result. Unknown keys in the file
// are rejected so that a misspelt setting does not silently keep its
// default.
//
// Parameters:
//   - path: YAML file, usually Path()
//
// Returns:
//   - *Config: Validated configuration
//   - error: Read, parse, override or validation failure
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("environment override: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Path returns EQIVA_CONFIG, or DefaultPath when it is unset.
func Path() string {
	if v := os.Getenv("EQIVA_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

func defaultConfig() *Config {
	return &Config{
		Eqiva: EqivaConfig{
			BridgeID:          "eqiva-bridge-01",
			ScanTimeout:       15,
			SettleDelay:       2000,
			DisconnectTimeout: 5,
			CommandTimeout:    90,
			PollInterval:      30,
			HealthInterval:    30,
			MinTemperature:    5,
			MaxTemperature:    30,
		},
		Database: DatabaseConfig{Path: "./data/eqiva.db", WALMode: true, BusyTimeout: 5},
		MQTT: MQTTConfig{
			Enabled:   true,
			Broker:    MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "eqiva-core"},
			QoS:       1,
			Reconnect: MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 60},
		},
		API: APIConfig{
			Host:     "0.0.0.0",
			Port:     8080,
			Timeouts: APITimeoutConfig{Read: 30, Write: 120, Idle: 60},
		},
		WebSocket: WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logging:   LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Security:  SecurityConfig{JWT: JWTConfig{AccessTokenTTL: 60}},
	}
}

// envVar binds one environment variable to a setting.
type envVar struct {
	name string
	set  func(c *Config, v string) error
}

func str(dst func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

func integer(dst func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func boolean(dst func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(c) = b
		return nil
	}
}

// envVars lists every supported override. Secrets belong here rather than
// in config.yaml.
var envVars = []envVar{
	{"EQIVA_ALIAS_FILE", str(func(c *Config) *string { return &c.Eqiva.AliasFile })},
	{"EQIVA_DEVICES", func(c *Config, v string) error {
		c.Eqiva.Devices = splitList(v)
		return nil
	}},
	{"EQIVA_POLL_INTERVAL", integer(func(c *Config) *int { return &c.Eqiva.PollInterval })},
	{"EQIVA_DATABASE_PATH", str(func(c *Config) *string { return &c.Database.Path })},
	{"EQIVA_MQTT_ENABLED", boolean(func(c *Config) *bool { return &c.MQTT.Enabled })},
	{"EQIVA_MQTT_HOST", str(func(c *Config) *string { return &c.MQTT.Broker.Host })},
	{"EQIVA_MQTT_PORT", integer(func(c *Config) *int { return &c.MQTT.Broker.Port })},
	{"EQIVA_MQTT_USERNAME", str(func(c *Config) *string { return &c.MQTT.Auth.Username })},
	{"EQIVA_MQTT_PASSWORD", str(func(c *Config) *string { return &c.MQTT.Auth.Password })},
	{"EQIVA_API_HOST", str(func(c *Config) *string { return &c.API.Host })},
	{"EQIVA_API_PORT", integer(func(c *Config) *int { return &c.API.Port })},
	{"EQIVA_INFLUXDB_URL", str(func(c *Config) *string { return &c.InfluxDB.URL })},
	{"EQIVA_INFLUXDB_TOKEN", str(func(c *Config) *string { return &c.InfluxDB.Token })},
	{"EQIVA_LOG_LEVEL", str(func(c *Config) *string { return &c.Logging.Level })},
	{"EQIVA_JWT_SECRET", str(func(c *Config) *string { return &c.Security.JWT.Secret })},
}

// applyEnv applies every non-empty variable in envVars.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error
	for _, ev := range envVars {
		v, ok := lookup(ev.name)
		if !ok || v == "" {
			continue
		}
		if err := ev.set(cfg, v); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", ev.name, v, err))
		}
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
