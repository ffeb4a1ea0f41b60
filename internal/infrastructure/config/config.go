package config

import "time"

// DefaultPath is used when EQIVA_CONFIG is not set.
const DefaultPath = "configs/config.yaml"

// Config mirrors config.yaml. Durations are plain integers in the unit
// named on each field; the *Duration helpers convert them.
type Config struct {
	Eqiva     EqivaConfig     `yaml:"eqiva"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// EqivaConfig holds the Bluetooth and thermostat settings.
type EqivaConfig struct {
	BridgeID string `yaml:"bridge_id"` // names this daemon in MQTT health messages

	ScanTimeout       int `yaml:"scan_timeout"`       // seconds per discovery scan
	SettleDelay       int `yaml:"settle_delay"`       // milliseconds after each written frame
	DisconnectTimeout int `yaml:"disconnect_timeout"` // seconds per device disconnect
	CommandTimeout    int `yaml:"command_timeout"`    // seconds from scan to last disconnect
	PollInterval      int `yaml:"poll_interval"`      // seconds; 0 disables polling
	HealthInterval    int `yaml:"health_interval"`    // seconds between MQTT health messages

	// AliasFile is the known-thermostats file. Empty means ~/.known_eqivas.
	AliasFile string `yaml:"alias_file"`

	// Devices are polled in addition to the registry.
	Devices []string `yaml:"devices"`

	// Set points requested over HTTP are clamped to this range.
	MinTemperature float64 `yaml:"min_temperature"`
	MaxTemperature float64 `yaml:"max_temperature"`
}

// ScanTimeoutDuration converts ScanTimeout.
func (e EqivaConfig) ScanTimeoutDuration() time.Duration { return secs(e.ScanTimeout) }

// SettleDelayDuration converts SettleDelay.
func (e EqivaConfig) SettleDelayDuration() time.Duration {
	return time.Duration(e.SettleDelay) * time.Millisecond
}

// DisconnectTimeoutDuration converts DisconnectTimeout.
func (e EqivaConfig) DisconnectTimeoutDuration() time.Duration { return secs(e.DisconnectTimeout) }

// CommandTimeoutDuration converts CommandTimeout.
func (e EqivaConfig) CommandTimeoutDuration() time.Duration { return secs(e.CommandTimeout) }

// PollIntervalDuration converts PollInterval.
func (e EqivaConfig) PollIntervalDuration() time.Duration { return secs(e.PollInterval) }

// HealthIntervalDuration converts HealthInterval.
func (e EqivaConfig) HealthIntervalDuration() time.Duration { return secs(e.HealthInterval) }

// DatabaseConfig locates the SQLite store.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"` // seconds
}

// MQTTConfig configures the broker connection used by the bridge.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// QoSLevel returns QoS as the byte paho expects. Validate guarantees 0-2.
func (m MQTTConfig) QoSLevel() byte {
	return byte(m.QoS) //nolint:gosec // range checked by Validate
}

type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig bounds paho's reconnect backoff, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig configures the HTTP listener.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig holds http.Server timeouts in seconds. Write must cover
// a full command run, which for a batch of thermostats exceeds a minute.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// ReadTimeout converts Read.
func (t APITimeoutConfig) ReadTimeout() time.Duration { return secs(t.Read) }

// WriteTimeout converts Write.
func (t APITimeoutConfig) WriteTimeout() time.Duration { return secs(t.Write) }

// IdleTimeout converts Idle.
func (t APITimeoutConfig) IdleTimeout() time.Duration { return secs(t.Idle) }

// CORSConfig lists browser origins allowed to call the API. Empty allows all.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"` // bytes
	PingInterval   int `yaml:"ping_interval"`    // seconds
	PongTimeout    int `yaml:"pong_timeout"`     // seconds
}

// InfluxDBConfig enables the optional telemetry sink.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"` // seconds
}

// LoggingConfig is consumed by the logging package.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig signs API bearer tokens. An empty Secret disables
// authentication.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// AuthEnabled reports whether the HTTP API requires bearer tokens.
func (c *Config) AuthEnabled() bool {
	return c.Security.JWT.Secret != ""
}

func secs(n int) time.Duration { return time.Duration(n) * time.Second }
