// Package config loads eqivad's config.yaml.
//
// Values come from three layers: built-in defaults, the YAML file (unknown
// keys are an error) and EQIVA_* environment variables. Secrets such as
// EQIVA_MQTT_PASSWORD, EQIVA_INFLUXDB_TOKEN and EQIVA_JWT_SECRET are best
// supplied through the environment. An empty JWT secret turns API
// authentication off.
//
// The eqiva CLI reads the same file through viper; see internal/cli.
package config
