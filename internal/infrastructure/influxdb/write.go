package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/divoom-bridge/internal/divoom"
)

// Measurement names.
const (
	MeasurementDisplayState = "display_state"
	MeasurementConnection   = "display_connection"
)

// WriteDisplayState records a state snapshot as one point: power,
// brightness, colour and scores as fields, mode and connection as tags.
//
// Example line protocol:
//
//	display_state,connection=connected,device_id=pixoo,mode=Light brightness=80i,power=true,...
func (c *Client) WriteDisplayState(deviceID string, state divoom.State) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(displayStatePoint(deviceID, state))
}

// WriteConnectionEvent records a connection-state transition.
func (c *Client) WriteConnectionEvent(deviceID, connectionState string) {
	c.WritePoint(MeasurementConnection,
		map[string]string{"device_id": deviceID},
		map[string]any{"state": connectionState},
	)
}

// WritePoint writes a custom point timestamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func displayStatePoint(deviceID string, state divoom.State) *write.Point {
	ts := state.UpdatedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	tags := map[string]string{"device_id": deviceID}
	if state.Mode != "" {
		tags["mode"] = state.Mode
	}
	if state.Connection != "" {
		tags["connection"] = state.Connection
	}

	return write.NewPoint(
		MeasurementDisplayState,
		tags,
		map[string]any{
			"power":      state.Power,
			"brightness": state.Brightness,
			"red":        int(state.Color.R),
			"green":      int(state.Color.G),
			"blue":       int(state.Color.B),
			"score_1":    state.Score1,
			"score_2":    state.Score2,
		},
		ts,
	)
}
