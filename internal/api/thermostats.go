package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/eqiva-core/internal/bridges/eqiva"
	"github.com/nerrad567/eqiva-core/internal/thermostat"
)

// SourceAPI tags requests made through the REST routes.
const SourceAPI = "api"

// thermostatView is a registry entry plus its HomeKit mapping.
type thermostatView struct {
	thermostat.Thermostat
	HomeKit thermostat.HomeKitStatus `json:"homekit"`
}

// CommandRequest is the body of POST /thermostats/{address}/commands.
type CommandRequest struct {
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// CommandResponse reports the per-device outcome of one command.
type CommandResponse struct {
	ID      string              `json:"id"`
	Command string              `json:"command"`
	Status  string              `json:"status"`
	Results map[string]string   `json:"results"`
	States  []eqiva.DeviceState `json:"states"`
}

func (s *Server) handleListThermostats(w http.ResponseWriter, r *http.Request) {
	list := s.registry.List(r.Context())
	views := make([]thermostatView, 0, len(list))
	for i := range list {
		views = append(views, thermostatView{Thermostat: list[i], HomeKit: list[i].HomeKit()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"thermostats": views, "count": len(views)})
}

func (s *Server) handleGetThermostat(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	t, err := s.registry.Get(r.Context(), address)
	if err != nil {
		if errors.Is(err, thermostat.ErrThermostatNotFound) {
			writeProblem(w, http.StatusNotFound, "thermostat not found")
			return
		}
		writeProblem(w, http.StatusInternalServerError, "failed to get thermostat")
		return
	}
	writeJSON(w, http.StatusOK, thermostatView{Thermostat: *t, HomeKit: t.HomeKit()})
}

// handleExecuteCommand runs a command against one thermostat. The path
// segment may be a MAC address or an alias.
func (s *Server) handleExecuteCommand(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "address")

	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Command == "" {
		writeProblem(w, http.StatusBadRequest, "command field is required")
		return
	}

	id := requestID(r)
	outcome, err := s.controller.Execute(r.Context(), eqiva.Request{
		ID:         id,
		Command:    req.Command,
		Parameters: req.Parameters,
		Targets:    []string{target},
		Source:     SourceAPI,
	})
	if err != nil {
		writeCommandError(w, err)
		return
	}

	resp := CommandResponse{
		ID:      id,
		Command: req.Command,
		Status:  thermostat.StatusOK,
		Results: make(map[string]string, len(outcome.Results)),
		States:  make([]eqiva.DeviceState, 0, len(outcome.States)),
	}
	for _, addr := range outcome.Results.Addresses() {
		if rerr := outcome.Results[addr]; rerr != nil {
			resp.Results[addr] = eqiva.ErrorCode(rerr)
			continue
		}
		resp.Results[addr] = thermostat.StatusOK
	}
	for _, addr := range sortedStateKeys(outcome.States) {
		resp.States = append(resp.States, outcome.States[addr])
	}

	status := http.StatusOK
	if failed := outcome.Results.Failed(); len(failed) > 0 {
		resp.Status = thermostat.StatusFailed
		if len(failed) < len(outcome.Results) {
			resp.Status = thermostat.StatusPartial
		}
		status = http.StatusBadGateway
	}
	writeJSON(w, status, resp)
}

// handleListCommands pages through the command log.
// Query parameters: command, source, status, limit, offset.
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	if s.commandLog == nil {
		writeProblem(w, http.StatusServiceUnavailable, "command log not configured")
		return
	}

	q := r.URL.Query()
	filter := thermostat.CommandFilter{
		Command: q.Get("command"),
		Source:  q.Get("source"),
		Status:  q.Get("status"),
	}
	var err error
	if filter.Limit, err = intQuery(q.Get("limit")); err != nil {
		writeProblem(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	if filter.Offset, err = intQuery(q.Get("offset")); err != nil {
		writeProblem(w, http.StatusBadRequest, "offset must be an integer")
		return
	}

	result, err := s.commandLog.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list command log", "error", err)
		writeProblem(w, http.StatusInternalServerError, "failed to list command log")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func intQuery(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func sortedStateKeys(states map[string]eqiva.DeviceState) []string {
	keys := make([]string, 0, len(states))
	for addr := range states {
		keys = append(keys, addr)
	}
	sort.Strings(keys)
	return keys
}
