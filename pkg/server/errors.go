package server

import (
	"encoding/json"
	"net/http"

	"github.com/matzehuels/chartcn/pkg/errors"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// StatusFor maps an error code to an HTTP status.
func StatusFor(code errors.Code) int {
	switch code {
	case errors.ErrCodeValidation, errors.ErrCodeUnsupportedFormat:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodePoolTimeout, errors.ErrCodePoolClosed:
		return http.StatusServiceUnavailable
	case errors.ErrCodeEngineTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	status := StatusFor(code)

	msg := errors.UserMessage(err)
	if status == http.StatusInternalServerError {
		// Backend details stay in the logs.
		msg = "an unexpected error occurred while rendering the chart"
	}
	if code == errors.ErrCodePoolTimeout {
		w.Header().Set("Retry-After", "1")
	}

	writeJSON(w, status, errorBody{
		Error:     http.StatusText(status),
		Code:      string(code),
		Message:   msg,
		RequestID: RequestID(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
