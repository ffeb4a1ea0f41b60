package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/eqiva-core/internal/bridges/eqiva"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusCodes names the generic failures. Command failures carry an eqiva
// reason code instead, see writeCommandError.
var statusCodes = map[int]string{
	http.StatusBadRequest:          "bad_request",
	http.StatusUnauthorized:        "unauthorised",
	http.StatusNotFound:            "not_found",
	http.StatusInternalServerError: "internal_error",
	http.StatusServiceUnavailable:  "unavailable",
}

func codeFor(status int) string {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	return "error"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	//nolint:errcheck // the client may already be gone
	json.NewEncoder(w).Encode(v)
}

// writeProblem replies with status and the generic code for it.
func writeProblem(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Status: status, Code: codeFor(status), Message: message})
}

// writeCommandError maps a controller error onto a reply. The code is the
// eqiva reason code so HTTP and MQTT callers share one vocabulary.
func writeCommandError(w http.ResponseWriter, err error) {
	status := commandErrorStatus(err)
	writeJSON(w, status, ErrorResponse{Status: status, Code: eqiva.ErrorCode(err), Message: err.Error()})
}

// commandErrorStatus:
//   - 400 for requests that can never succeed as written
//   - 404 when an address or alias did not resolve
//   - 502 when the radio or the device failed
//   - 504 when the deadline ran out first
func commandErrorStatus(err error) int {
	switch {
	case errors.Is(err, eqiva.ErrValidation),
		errors.Is(err, eqiva.ErrUnknownCommand),
		errors.Is(err, eqiva.ErrCapacity):
		return http.StatusBadRequest
	case errors.Is(err, eqiva.ErrResolution):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, eqiva.ErrTransport),
		errors.Is(err, eqiva.ErrProtocol),
		errors.Is(err, eqiva.ErrNotConnected):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
