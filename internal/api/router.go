package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	metrics := newRequestMetrics()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.accessLogMiddleware(metrics))
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeProblem(w, http.StatusNotFound, "route not found")
	})

	// Prometheus scrape endpoint (no auth, like the health check)
	r.Handle("/metrics", s.metricsHandler(metrics.duration))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/thermostats", func(r chi.Router) {
				r.Get("/", s.handleListThermostats)
				r.Route("/{address}", func(r chi.Router) {
					r.Get("/", s.handleGetThermostat)
					r.Post("/commands", s.handleExecuteCommand)
				})
			})

			r.Get("/commands", s.handleListCommands)

			// WebSocket (bearer token in header or access_token query parameter)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	// HomeKit compatibility routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/{mac}/status", s.handleCompatStatus)
		r.Get("/{mac}/targetTemperature", s.handleCompatTargetTemperature)
		r.Get("/{mac}/targetTemperature/{value}", s.handleCompatTargetTemperature)
		r.Get("/{mac}/targetHeatingCoolingState", s.handleCompatTargetState)
		r.Get("/{mac}/targetHeatingCoolingState/{value}", s.handleCompatTargetState)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.controller.Stats()
	resp := map[string]any{
		"status":      "ok",
		"version":     s.version,
		"thermostats": len(s.registry.List(r.Context())),
		"requests":    stats.Requests,
		"failed":      stats.Failed,
	}
	if !stats.LastSuccess.IsZero() {
		resp["last_success"] = stats.LastSuccess.UTC().Format(time.RFC3339)
	}
	if s.mqtt != nil {
		resp["mqtt_connected"] = s.mqtt.IsConnected()
	}
	writeJSON(w, http.StatusOK, resp)
}
