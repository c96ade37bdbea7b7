package bridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nerrad567/divoom-bridge/internal/divoom"
)

type stateDevice struct {
	recordingDevice
	state divoom.State
}

func (d *stateDevice) State() divoom.State { return d.state }

func TestHealthReporter_DetermineStatus(t *testing.T) {
	tests := []struct {
		name      string
		connected bool
		device    Device
		want      HealthStatus
	}{
		{"healthy", true, &stateDevice{}, HealthHealthy},
		{"mqtt down", false, &stateDevice{}, HealthDegraded},
		{"device failed", true, &stateDevice{state: divoom.State{ConnectionState: divoom.StateFailed}}, HealthDegraded},
		{"no device", true, nil, HealthUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := NewMockMQTTClient()
			pub.SetConnected(tt.connected)
			h := NewHealthReporter(HealthReporterConfig{BridgeID: "pixoo", Topic: "divoom/health", Publisher: pub, Device: tt.device})

			if got := h.Snapshot().Status; got != tt.want {
				t.Errorf("status = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHealthReporter_StartStop(t *testing.T) {
	pub := NewMockMQTTClient()
	dev := &stateDevice{state: divoom.State{Address: "11:75:58:AA:BB:CC", Connection: "connected"}}
	h := NewHealthReporter(HealthReporterConfig{
		BridgeID:  "pixoo",
		Version:   "1.2.3",
		Topic:     "divoom/health",
		Interval:  time.Hour,
		Publisher: pub,
		Device:    dev,
	})

	if err := h.PublishStarting(); err != nil {
		t.Fatalf("PublishStarting() error = %v", err)
	}
	h.Start(context.Background())
	h.Stop()
	h.Stop()

	published := pub.GetPublished()
	if len(published) != 3 {
		t.Fatalf("published %d messages, want 3 (starting, initial, stopping)", len(published))
	}

	var statuses []HealthStatus
	for _, p := range published {
		if p.Topic != "divoom/health" || !p.Retained {
			t.Errorf("publish = %s retained=%v", p.Topic, p.Retained)
		}
		var msg HealthMessage
		if err := json.Unmarshal(p.Payload, &msg); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		statuses = append(statuses, msg.Status)
		if msg.Version != "1.2.3" || msg.Device == nil || msg.Device.Address != "11:75:58:AA:BB:CC" {
			t.Errorf("message = %+v", msg)
		}
	}

	want := []HealthStatus{HealthStarting, HealthHealthy, HealthStopping}
	for i := range want {
		if statuses[i] != want[i] {
			t.Errorf("statuses = %v, want %v", statuses, want)
			break
		}
	}
}

func TestHealthReporter_NilPublisher(t *testing.T) {
	h := NewHealthReporter(HealthReporterConfig{BridgeID: "pixoo"})
	if err := h.PublishNow(); err != nil {
		t.Errorf("PublishNow() error = %v", err)
	}
}
