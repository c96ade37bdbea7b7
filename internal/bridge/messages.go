package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/divoom-bridge/internal/divoom"
)

// CommandMessage is received on {prefix}/command/{device_id}.
type CommandMessage struct {
	// ID correlates the command with its acknowledgement.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp,omitzero"`

	// DeviceID must match the configured device.id. When empty, the ID
	// from the topic is used.
	DeviceID string `json:"device_id"`

	// Command is one of the names listed in the package documentation.
	Command string `json:"command"`

	// Parameters holds command-specific values, e.g. {"level": 50}.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source records where the command came from ("mqtt", "api", "cli").
	Source string `json:"source,omitempty"`
}

// AckStatus is the outcome reported in an AckMessage.
type AckStatus string

const (
	// AckAccepted means the device accepted the command.
	AckAccepted AckStatus = "accepted"

	// AckFailed means the command was rejected or the write failed.
	AckFailed AckStatus = "failed"

	// AckTimeout means the connect or write did not finish in time.
	AckTimeout AckStatus = "timeout"
)

// Error codes carried in AckError.Code and API error bodies.
const (
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeCommandFailed     = "COMMAND_FAILED"
	ErrCodeInvalidMode       = "INVALID_MODE"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeCancelled         = "CANCELLED"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// AckMessage is published on {prefix}/ack/{device_id} once per command.
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Command   string    `json:"command"`
	Status    AckStatus `json:"status"`
	Error     *AckError `json:"error,omitempty"`

	// State is the snapshot after the command, present when accepted.
	State *divoom.State `json:"state,omitempty"`
}

// AckError describes why a command failed.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StateMessage is the retained snapshot on {prefix}/state/{device_id}.
type StateMessage struct {
	DeviceID  string       `json:"device_id"`
	Timestamp time.Time    `json:"timestamp"`
	State     divoom.State `json:"state"`

	// Brightness255 is State.Brightness on the 0-255 scale home-automation
	// light entities use.
	Brightness255 int `json:"brightness_255"`
}

// HealthStatus is the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthStarting  HealthStatus = "starting"
	HealthStopping  HealthStatus = "stopping"
)

// HealthMessage is the retained status on {prefix}/health.
type HealthMessage struct {
	Bridge        string        `json:"bridge"`
	Timestamp     time.Time     `json:"timestamp"`
	Status        HealthStatus  `json:"status"`
	Version       string        `json:"version"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	Device        *DeviceStatus `json:"device,omitempty"`
	Statistics    *Statistics   `json:"statistics,omitempty"`
	Reason        string        `json:"reason,omitempty"`
}

// DeviceStatus describes the display link.
type DeviceStatus struct {
	ID              string `json:"id"`
	Address         string `json:"address"`
	ConnectionState string `json:"connection_state"`
}

// Statistics holds session counters.
type Statistics struct {
	CommandsSent    uint64     `json:"commands_sent"`
	CommandsFailed  uint64     `json:"commands_failed"`
	ConnectAttempts uint64     `json:"connect_attempts"`
	ConnectFailures uint64     `json:"connect_failures"`
	LastError       string     `json:"last_error,omitempty"`
	LastCommandAt   *time.Time `json:"last_command_at,omitempty"`
}

// NewAckMessage builds the acknowledgement for cmd. A nil err yields an
// accepted ack carrying state.
func NewAckMessage(cmd CommandMessage, state divoom.State, err error) AckMessage {
	ack := AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Command:   cmd.Command,
		Status:    AckAccepted,
	}
	if err == nil {
		ack.State = &state
		return ack
	}

	ack.Status = AckFailed
	if isTimeout(err) {
		ack.Status = AckTimeout
	}
	ack.Error = &AckError{Code: ErrorCode(err), Message: err.Error()}
	return ack
}

// NewStateMessage wraps a snapshot for the state topic.
func NewStateMessage(deviceID string, state divoom.State) StateMessage {
	return StateMessage{
		DeviceID:      deviceID,
		Timestamp:     time.Now().UTC(),
		State:         state,
		Brightness255: divoom.ScaleTo255(state.Brightness),
	}
}

// NewStatistics converts session counters for a health message.
func NewStatistics(s divoom.Stats) *Statistics {
	st := &Statistics{
		CommandsSent:    s.CommandsSent,
		CommandsFailed:  s.CommandsFailed,
		ConnectAttempts: s.ConnectAttempts,
		ConnectFailures: s.ConnectFailures,
		LastError:       s.LastError,
	}
	if !s.LastCommandAt.IsZero() {
		at := s.LastCommandAt.UTC()
		st.LastCommandAt = &at
	}
	return st
}

// ErrorCode maps an Execute error to its wire code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownCommand):
		return ErrCodeInvalidCommand
	case errors.Is(err, ErrInvalidParameters):
		return ErrCodeInvalidParameters
	case errors.Is(err, ErrDeviceNotConfigured):
		return ErrCodeNotConfigured
	}

	switch divoom.KindOf(err) {
	case divoom.KindConnection:
		return ErrCodeDeviceUnreachable
	case divoom.KindCommand:
		return ErrCodeCommandFailed
	case divoom.KindInvalidMode:
		return ErrCodeInvalidMode
	case divoom.KindValidation:
		return ErrCodeInvalidParameters
	case divoom.KindCancelled:
		return ErrCodeCancelled
	default:
		return ErrCodeBridgeError
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, divoom.ErrConnectTimeout) ||
		errors.Is(err, divoom.ErrWriteTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}
