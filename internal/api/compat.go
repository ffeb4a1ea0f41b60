package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/eqiva-core/internal/bridges/eqiva"
	"github.com/nerrad567/eqiva-core/internal/thermostat"
)

// SourceHomeKit tags requests made through the compatibility routes.
const SourceHomeKit = "homekit"

// compatResult is the body returned by the compatibility set routes.
type compatResult struct {
	Result  string `json:"result"`
	Message string `json:"message,omitempty"`
}

// compatMAC returns the normalised {mac} path segment.
func compatMAC(r *http.Request) string {
	return eqiva.NormalizeAddress(chi.URLParam(r, "mac"))
}

// compatValue returns the {value} path segment, or the value query parameter.
func compatValue(r *http.Request) string {
	if v := chi.URLParam(r, "value"); v != "" {
		return v
	}
	return r.URL.Query().Get("value")
}

func writeCompatInvalid(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request"})
}

// handleCompatStatus serves the HomeKit view of a thermostat. Unknown
// thermostats are registered and answered with defaults.
func (s *Server) handleCompatStatus(w http.ResponseWriter, r *http.Request) {
	mac := compatMAC(r)

	status, err := s.registry.HomeKit(r.Context(), mac)
	if err != nil {
		if errors.Is(err, thermostat.ErrInvalidAddress) {
			writeCompatInvalid(w)
			return
		}
		s.logger.Error("homekit status failed", "address", mac, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "No status available"})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleCompatTargetTemperature sets the target temperature. The value is
// clamped to the configured range and rounded to half degrees.
func (s *Server) handleCompatTargetTemperature(w http.ResponseWriter, r *http.Request) {
	mac := compatMAC(r)
	v, err := strconv.ParseFloat(compatValue(r), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		writeCompatInvalid(w)
		return
	}

	s.runCompat(w, r, mac, eqiva.CommandSetTemperature, map[string]any{
		"temperature": s.clampTemperature(v),
	})
}

// handleCompatTargetState maps HomeKit heating/cooling states: 0 turns the
// thermostat off, 1 and 2 select manual mode and 3 selects auto mode.
func (s *Server) handleCompatTargetState(w http.ResponseWriter, r *http.Request) {
	mac := compatMAC(r)

	switch compatValue(r) {
	case "0":
		s.runCompat(w, r, mac, eqiva.CommandOff, nil)
	case "1", "2":
		s.runCompat(w, r, mac, eqiva.CommandMode, map[string]any{"mode": "manual"})
	case "3":
		s.runCompat(w, r, mac, eqiva.CommandMode, map[string]any{"mode": "auto"})
	default:
		writeCompatInvalid(w)
	}
}

// runCompat executes one command and answers in the compatibility format.
// A thermostat that cannot be found is a 404; device errors are reported
// in the body with status 200.
func (s *Server) runCompat(w http.ResponseWriter, r *http.Request, mac, command string, params map[string]any) {
	if !eqiva.IsEqivaAddress(mac) {
		writeCompatInvalid(w)
		return
	}

	id := requestID(r)
	outcome, err := s.controller.Execute(r.Context(), eqiva.Request{
		ID:         id,
		Command:    command,
		Parameters: params,
		Targets:    []string{mac},
		Source:     SourceHomeKit,
	})
	if err == nil {
		err = outcome.Results.Err()
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, compatResult{Result: "ok"})
	case errors.Is(err, eqiva.ErrResolution):
		writeJSON(w, http.StatusNotFound, compatResult{
			Result:  "error",
			Message: fmt.Sprintf("Device with address %s was not found", mac),
		})
	case errors.Is(err, eqiva.ErrValidation):
		writeCompatInvalid(w)
	default:
		s.logger.Warn("homekit command failed", "address", mac, "command", command, "error", err)
		writeJSON(w, http.StatusOK, compatResult{Result: "error", Message: err.Error()})
	}
}

func (s *Server) clampTemperature(v float64) float64 {
	v = math.Max(s.limits.Min, math.Min(s.limits.Max, v))
	return math.Round(v*2) / 2 //nolint:mnd // half-degree steps
}
