// Package logging builds the slog loggers used by eqivad and the eqiva CLI.
//
// Entries are JSON by default and text when logging.format is "text". Every
// entry carries service="eqiva" and the build version; subsystems add a
// component field through Logger.Component.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr or a file path
//
// Thermostat addresses are logged; the JWT secret and MQTT password are not.
package logging
