package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/nerrad567/divoom-bridge/internal/bridge"
	"github.com/nerrad567/divoom-bridge/internal/divoom"
	"github.com/nerrad567/divoom-bridge/internal/history"
)

// maxCommandIDLen limits client-supplied command IDs.
const maxCommandIDLen = 100

// CommandRequest is the body of POST /api/v1/device/commands.
type CommandRequest struct {
	// ID is optional; a UUID is generated when empty.
	ID         string         `json:"id"`
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// handleGetDevice returns the cached session snapshot and counters.
func (s *Server) handleGetDevice(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id":  s.bridge.DeviceID(),
		"state":      s.device.State(),
		"statistics": bridge.NewStatistics(s.device.Stats()),
	})
}

// handleDeviceCommand executes one command synchronously and answers with
// the same acknowledgement body MQTT clients receive.
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	req.Command = strings.TrimSpace(req.Command)
	if req.Command == "" {
		writeBadRequest(w, "command is required")
		return
	}
	if len(req.ID) > maxCommandIDLen {
		writeBadRequest(w, "id exceeds maximum length")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	cmd := bridge.CommandMessage{
		ID:         req.ID,
		DeviceID:   s.bridge.DeviceID(),
		Command:    req.Command,
		Parameters: req.Parameters,
		Source:     history.SourceAPI,
	}

	state, err := s.bridge.Execute(r.Context(), cmd)
	ack := bridge.NewAckMessage(cmd, state, err)
	writeJSON(w, ackStatus(ack), ack)
}

// handleListModes returns the accepted mode labels.
func (s *Server) handleListModes(w http.ResponseWriter, _ *http.Request) {
	modes := divoom.Modes()
	writeJSON(w, http.StatusOK, map[string]any{
		"modes": modes,
		"count": len(modes),
	})
}

// handleGetHistory returns recent state history for the device, newest first.
//
// Query parameters:
//   - limit: 1-200, default 50
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if s.history == nil {
		writeUnavailable(w, "state history unavailable")
		return
	}

	deviceID := s.bridge.DeviceID()
	entries, err := s.history.List(r.Context(), deviceID, limit)
	if err != nil {
		if errors.Is(err, history.ErrDeviceIDRequired) {
			writeBadRequest(w, err.Error())
			return
		}
		s.logger.Error("failed to load history", "error", err)
		writeInternalError(w, "failed to load device history")
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": deviceID,
		"history":   entries,
		"count":     len(entries),
	})
}

// parseHistoryLimit parses the limit query parameter. An empty value selects
// history.DefaultLimit.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return history.DefaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if limit > history.MaxLimit {
		return 0, fmt.Errorf("limit must not exceed %d", history.MaxLimit)
	}
	return limit, nil
}
