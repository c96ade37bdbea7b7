package divoom

import (
	"encoding/json"
	"time"
)

// ConnectionState is the position of a session in its connection lifecycle.
//
//	Disconnected ──connect──► Connecting ──ok──► Connected
//	     ▲                        │                  │
//	     │                        └──fail──► Failed ◄┘ write failure / link loss
//	     └──────── disconnect (from any state) ──────┘
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ParseConnectionState maps a String() value back to its state. Unknown
// values read as StateDisconnected.
func ParseConnectionState(s string) ConnectionState {
	switch s {
	case "connecting":
		return StateConnecting
	case "connected":
		return StateConnected
	case "failed":
		return StateFailed
	default:
		return StateDisconnected
	}
}

// Color is an RGB triple.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// White is the colour a fresh session assumes.
var White = Color{R: 255, G: 255, B: 255}

// State is a point-in-time copy of a session's cached device state.
//
// The device has no read-back channel, so these values describe the last
// request the device acknowledged at the transport level, not what the panel
// is necessarily showing.
type State struct {
	Address         string          `json:"address"`
	ConnectionState ConnectionState `json:"-"`
	Connection      string          `json:"connection_state"`
	Power           bool            `json:"power"`
	Brightness      int             `json:"brightness"`
	Color           Color           `json:"color"`
	Mode            string          `json:"mode"`
	Score1          int             `json:"score_1"`
	Score2          int             `json:"score_2"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// UnmarshalJSON restores ConnectionState from the connection_state label.
func (s *State) UnmarshalJSON(data []byte) error {
	type plain State
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	p.ConnectionState = ParseConnectionState(p.Connection)
	*s = State(p)
	return nil
}

// cache holds the mutable last-known values. Guarded by Session.mu.
type cache struct {
	power      bool
	brightness int
	color      Color
	mode       Mode
	scores     [2]int
	scoreSet   [2]bool
	updatedAt  time.Time
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
