// Package api implements the HTTP API and WebSocket server of the eqiva
// daemon.
//
// This package provides:
//   - HomeKit compatibility routes (/{mac}/status, /{mac}/targetTemperature,
//     /{mac}/targetHeatingCoolingState)
//   - REST endpoints for the thermostat registry, commands and the command log
//   - WebSocket hub broadcasting every thermostat state on "thermostat.state",
//     optionally filtered to a set of thermostat addresses
//   - Prometheus metrics on /metrics, including per-route request latency
//   - Optional HS256 bearer authentication
//   - Middleware: UUID request IDs, access log, panic recovery and CORS
//
// # Architecture
//
// Every route that talks to a thermostat goes through the shared
// eqiva.Controller, so HTTP, MQTT and the poller are serialised by the same
// connection budget. States produced by any caller are recorded in the
// registry and relayed to WebSocket clients.
//
// # Security
//
// When security.jwt.secret is set, every route except /api/v1/health and
// /metrics requires "Authorization: Bearer <token>". WebSocket clients may
// pass the token as the access_token query parameter instead. Tokens are
// issued with "eqiva token".
//
// # Lifecycle
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
