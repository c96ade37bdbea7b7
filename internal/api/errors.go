package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/divoom-bridge/internal/bridge"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeNotFound           = "not_found"
	ErrCodeInternal           = "internal_error"
	ErrCodeServiceUnavailable = "service_unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeUnavailable writes a 503 error response.
func writeUnavailable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// ackStatus returns the HTTP status for a command acknowledgement.
func ackStatus(ack bridge.AckMessage) int {
	if ack.Status == bridge.AckAccepted {
		return http.StatusOK
	}
	if ack.Status == bridge.AckTimeout {
		return http.StatusGatewayTimeout
	}

	code := ""
	if ack.Error != nil {
		code = ack.Error.Code
	}
	switch code {
	case bridge.ErrCodeInvalidParameters, bridge.ErrCodeInvalidMode, bridge.ErrCodeInvalidCommand:
		return http.StatusBadRequest
	case bridge.ErrCodeNotConfigured:
		return http.StatusNotFound
	case bridge.ErrCodeCancelled:
		return http.StatusConflict
	case bridge.ErrCodeCommandFailed:
		return http.StatusBadGateway
	case bridge.ErrCodeDeviceUnreachable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
