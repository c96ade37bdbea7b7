package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/divoom-bridge/internal/divoom"
	"github.com/nerrad567/divoom-bridge/internal/history"
	"github.com/nerrad567/divoom-bridge/internal/infrastructure/config"
	"github.com/nerrad567/divoom-bridge/internal/infrastructure/mqtt"
)

const testDeviceID = "pixoo"

type testRig struct {
	bridge    *Bridge
	mqtt      *MockMQTTClient
	transport *MockTransport
	dialer    *MockDialer
	history   *MockHistory
	telemetry *MockTelemetry
	session   *divoom.Session
	topics    mqtt.Topics
}

func newTestRig(t *testing.T, cfg config.BridgeConfig) *testRig {
	t.Helper()

	rig := &testRig{
		mqtt:      NewMockMQTTClient(),
		transport: &MockTransport{},
		history:   &MockHistory{},
		telemetry: &MockTelemetry{},
		topics:    mqtt.NewTopics("divoom"),
	}
	rig.dialer = &MockDialer{transport: rig.transport}

	var b *Bridge
	sess, err := divoom.NewSession("11:75:58:AA:BB:CC", rig.dialer, divoom.Options{
		WriteTimeout: time.Second,
		OnChange: func(st divoom.State) {
			if b != nil {
				b.HandleStateChange(st)
			}
		},
	})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	rig.session = sess

	b, err = New(Options{
		DeviceID:  testDeviceID,
		Version:   "test",
		Config:    cfg,
		Topics:    rig.topics,
		MQTT:      rig.mqtt,
		Device:    sess,
		History:   rig.history,
		Telemetry: rig.telemetry,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	rig.bridge = b

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(b.Stop)
	return rig
}

func (r *testRig) send(t *testing.T, payload string) {
	t.Helper()
	if err := r.mqtt.SimulateMessage(r.topics.Command(testDeviceID), []byte(payload)); err != nil {
		t.Fatalf("SimulateMessage() error = %v", err)
	}
}

func (r *testRig) lastState(t *testing.T) StateMessage {
	t.Helper()
	pubs := r.mqtt.PublishedOn(r.topics.State(testDeviceID))
	if len(pubs) == 0 {
		t.Fatal("no state published")
	}
	last := pubs[len(pubs)-1]
	if !last.Retained {
		t.Error("state should be retained")
	}
	var msg StateMessage
	if err := json.Unmarshal(last.Payload, &msg); err != nil {
		t.Fatalf("state is not JSON: %v", err)
	}
	return msg
}

func TestNew_Validation(t *testing.T) {
	mq := NewMockMQTTClient()
	sess, _ := divoom.NewSession("11:75:58:AA:BB:CC", &MockDialer{}, divoom.Options{})

	tests := []struct {
		name string
		opts Options
	}{
		{"missing device id", Options{MQTT: mq, Device: sess}},
		{"missing mqtt", Options{DeviceID: "x", Device: sess}},
		{"missing device", Options{DeviceID: "x", MQTT: mq}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opts); err == nil {
				t.Error("New() should fail")
			}
		})
	}
}

func TestStart_SubscribesAndPublishes(t *testing.T) {
	rig := newTestRig(t, config.BridgeConfig{})

	subs := rig.mqtt.GetSubscriptions()
	if len(subs) != 1 || subs[0] != "divoom/command/pixoo" {
		t.Errorf("subscriptions = %v", subs)
	}

	st := rig.lastState(t)
	if st.DeviceID != testDeviceID || st.State.Connection != "disconnected" {
		t.Errorf("initial state = %+v", st)
	}

	health := rig.mqtt.PublishedOn("divoom/health")
	if len(health) == 0 {
		t.Fatal("no health published")
	}
	var first HealthMessage
	if err := json.Unmarshal(health[0].Payload, &first); err != nil {
		t.Fatalf("health is not JSON: %v", err)
	}
	if first.Status != HealthStarting || !health[0].Retained {
		t.Errorf("first health = %+v retained=%v", first, health[0].Retained)
	}
}

func TestStart_Twice(t *testing.T) {
	rig := newTestRig(t, config.BridgeConfig{})

	if err := rig.bridge.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}
	if subs := rig.mqtt.GetSubscriptions(); len(subs) != 1 {
		t.Errorf("subscriptions = %v, want exactly one", subs)
	}
}

func TestStart_RetryAfterSubscribeFailure(t *testing.T) {
	mq := NewMockMQTTClient()
	mq.SetSubscribeError(errors.New("broker gone"))
	sess, err := divoom.NewSession("11:75:58:AA:BB:CC", &MockDialer{transport: &MockTransport{}}, divoom.Options{})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	b, err := New(Options{DeviceID: testDeviceID, Topics: mqtt.NewTopics("divoom"), MQTT: mq, Device: sess})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := b.Start(context.Background()); err == nil {
		t.Fatal("Start() should fail when subscribe fails")
	}

	mq.SetSubscribeError(nil)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() retry error = %v", err)
	}
	t.Cleanup(b.Stop)

	if subs := mq.GetSubscriptions(); len(subs) != 1 {
		t.Errorf("subscriptions = %v, want exactly one", subs)
	}
}

func TestCommand_On(t *testing.T) {
	rig := newTestRig(t, config.BridgeConfig{})

	rig.send(t, `{"id":"c1","command":"on"}`)
	acks := rig.mqtt.WaitForAcks(t, rig.topics.Ack(testDeviceID), 1)

	ack := acks[0]
	if ack.CommandID != "c1" || ack.Status != AckAccepted || ack.Error != nil {
		t.Fatalf("ack = %+v", ack)
	}
	if ack.DeviceID != testDeviceID || ack.State == nil || !ack.State.Power {
		t.Errorf("ack state = %+v", ack.State)
	}

	frames := rig.transport.Frames()
	if len(frames) != 1 || !bytes.Equal(frames[0], divoom.Codec{}.Brightness(100)) {
		t.Errorf("frames = %x", frames)
	}

	st := rig.lastState(t)
	if !st.State.Power || st.State.Connection != "connected" || st.State.ConnectionState != divoom.StateConnected {
		t.Errorf("retained state = %+v", st.State)
	}
	if st.Brightness255 != 255 {
		t.Errorf("brightness_255 = %d, want 255", st.Brightness255)
	}

	var sawMQTT bool
	for _, r := range rig.history.Records() {
		if r.Source == history.SourceMQTT && r.State.Power {
			sawMQTT = true
		}
	}
	if !sawMQTT {
		t.Errorf("history records = %+v, want one from mqtt", rig.history.Records())
	}
}

func TestCommand_Scoreboard(t *testing.T) {
	rig := newTestRig(t, config.BridgeConfig{})

	rig.send(t, `{"id":"s1","command":"scoreboard","parameters":{"score1":75,"score2":40}}`)
	acks := rig.mqtt.WaitForAcks(t, rig.topics.Ack(testDeviceID), 1)
	if acks[0].Status != AckAccepted {
		t.Fatalf("ack = %+v", acks[0])
	}

	frames := rig.transport.Frames()
	if len(frames) != 1 || !bytes.Equal(frames[0], divoom.Codec{}.Scoreboard(75, 40)) {
		t.Errorf("frames = %x", frames)
	}
	if st := rig.session.State(); st.Mode != "Score" || st.Score1 != 75 || st.Score2 != 40 {
		t.Errorf("state = %+v", st)
	}
}

func TestCommand_BrightnessScale255(t *testing.T) {
	rig := newTestRig(t, config.BridgeConfig{})

	rig.send(t, `{"id":"b1","command":"brightness","parameters":{"level":128,"scale":255}}`)
	rig.mqtt.WaitForAcks(t, rig.topics.Ack(testDeviceID), 1)

	if got := rig.session.Brightness(); got != 50 {
		t.Errorf("Brightness() = %d, want 50", got)
	}
}

func TestCommand_Failures(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		setup    func(*testRig)
		wantCode string
		wantStat AckStatus
	}{
		{"unknown command", `{"id":"x","command":"dance"}`, nil, ErrCodeInvalidCommand, AckFailed},
		{"missing level", `{"id":"x","command":"brightness"}`, nil, ErrCodeInvalidParameters, AckFailed},
		{"wrong type", `{"id":"x","command":"color","parameters":{"r":"red","g":0,"b":0}}`, nil, ErrCodeInvalidParameters, AckFailed},
		{"unknown mode", `{"id":"x","command":"mode","parameters":{"mode":"Disco"}}`, nil, ErrCodeInvalidMode, AckFailed},
		{"bad slot", `{"id":"x","command":"score","parameters":{"slot":3,"value":1}}`, nil, ErrCodeInvalidParameters, AckFailed},
		{"push before both set", `{"id":"x","command":"score","parameters":{"slot":1,"value":5}}`, nil, ErrCodeInvalidParameters, AckFailed},
		{"other device", `{"id":"x","device_id":"desk","command":"on"}`, nil, ErrCodeNotConfigured, AckFailed},
		{
			"unreachable",
			`{"id":"x","command":"on"}`,
			func(r *testRig) { r.dialer.SetError(errors.New("host is down")) },
			ErrCodeDeviceUnreachable, AckFailed,
		},
		{
			"write failure",
			`{"id":"x","command":"off"}`,
			func(r *testRig) { r.transport.SetWriteError(errors.New("broken pipe")) },
			ErrCodeCommandFailed, AckFailed,
		},
		{
			"write timeout",
			`{"id":"x","command":"off"}`,
			func(r *testRig) { r.transport.SetWriteError(context.DeadlineExceeded) },
			ErrCodeCommandFailed, AckTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := newTestRig(t, config.BridgeConfig{})
			if tt.setup != nil {
				tt.setup(rig)
			}

			rig.send(t, tt.payload)
			ack := rig.mqtt.WaitForAcks(t, rig.topics.Ack(testDeviceID), 1)[0]

			if ack.Status != tt.wantStat {
				t.Errorf("status = %q, want %q", ack.Status, tt.wantStat)
			}
			if ack.Error == nil || ack.Error.Code != tt.wantCode {
				t.Fatalf("error = %+v, want code %s", ack.Error, tt.wantCode)
			}
			if ack.State != nil {
				t.Error("failed ack should not carry state")
			}
		})
	}
}

func TestCommand_UnknownModeWritesNothing(t *testing.T) {
	rig := newTestRig(t, config.BridgeConfig{})

	rig.send(t, `{"id":"m","command":"mode","parameters":{"mode":"Disco"}}`)
	rig.mqtt.WaitForAcks(t, rig.topics.Ack(testDeviceID), 1)

	if rig.dialer.Dials() != 0 || len(rig.transport.Frames()) != 0 {
		t.Errorf("dials = %d, frames = %d, want none", rig.dialer.Dials(), len(rig.transport.Frames()))
	}
}

func TestCommand_WriteFailureDegradesHealth(t *testing.T) {
	rig := newTestRig(t, config.BridgeConfig{})
	rig.transport.SetWriteError(errors.New("broken pipe"))

	rig.send(t, `{"id":"x","command":"on"}`)
	rig.mqtt.WaitForAcks(t, rig.topics.Ack(testDeviceID), 1)

	h := rig.bridge.Health()
	if h.Status != HealthDegraded || h.Device == nil || h.Device.ConnectionState != "failed" {
		t.Errorf("health = %+v", h)
	}
	if h.Statistics == nil || h.Statistics.CommandsFailed != 1 {
		t.Errorf("statistics = %+v", h.Statistics)
	}
}

func TestCommand_InvalidJSON(t *testing.T) {
	rig := newTestRig(t, config.BridgeConfig{})

	err := rig.mqtt.SimulateMessage(rig.topics.Command(testDeviceID), []byte("{not json"))
	if err == nil {
		t.Error("handler should return a decode error")
	}
	time.Sleep(20 * time.Millisecond)
	if acks := rig.mqtt.PublishedOn(rig.topics.Ack(testDeviceID)); len(acks) != 0 {
		t.Errorf("acks = %d, want 0", len(acks))
	}
}

func TestCommands_ProcessedInOrder(t *testing.T) {
	rig := newTestRig(t, config.BridgeConfig{})

	for _, level := range []string{"10", "20", "30"} {
		rig.send(t, `{"id":"`+level+`","command":"brightness","parameters":{"level":`+level+`}}`)
	}
	acks := rig.mqtt.WaitForAcks(t, rig.topics.Ack(testDeviceID), 3)

	for i, want := range []string{"10", "20", "30"} {
		if acks[i].CommandID != want {
			t.Errorf("ack[%d] = %s, want %s", i, acks[i].CommandID, want)
		}
	}
	if got := rig.session.Brightness(); got != 30 {
		t.Errorf("Brightness() = %d, want 30", got)
	}
}

func TestExecute_RecordsSource(t *testing.T) {
	rig := newTestRig(t, config.BridgeConfig{})

	state, err := rig.bridge.Execute(context.Background(), CommandMessage{
		ID:         "api-1",
		Command:    CommandColor,
		Parameters: map[string]any{"r": 300, "g": 10, "b": -5},
		Source:     history.SourceAPI,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if state.Color != (divoom.Color{R: 255, G: 10, B: 0}) || state.Mode != "Light" {
		t.Errorf("state = %+v", state)
	}

	records := rig.history.Records()
	last := records[len(records)-1]
	if last.Source != history.SourceAPI || last.DeviceID != testDeviceID {
		t.Errorf("last record = %+v", last)
	}
}

func TestConnectionTransitions(t *testing.T) {
	rig := newTestRig(t, config.BridgeConfig{})

	if _, err := rig.bridge.Execute(context.Background(), CommandMessage{Command: CommandConnect}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := rig.bridge.Execute(context.Background(), CommandMessage{Command: CommandDisconnect}); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	got := strings.Join(rig.telemetry.Connections(), ",")
	if got != "disconnected,connecting,connected,disconnected" {
		t.Errorf("connection events = %s", got)
	}

	var sessionRecords int
	for _, r := range rig.history.Records() {
		if r.Source == history.SourceSession {
			sessionRecords++
		}
	}
	if sessionRecords != 4 {
		t.Errorf("session history records = %d, want 4", sessionRecords)
	}
}

func TestAutoConnect(t *testing.T) {
	rig := newTestRig(t, config.BridgeConfig{AutoConnect: true, AutoConnectAttempts: 1})

	deadline := time.Now().Add(2 * time.Second)
	for rig.session.ConnectionState() != divoom.StateConnected {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want connected", rig.session.ConnectionState())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if rig.dialer.Dials() != 1 {
		t.Errorf("dials = %d, want 1", rig.dialer.Dials())
	}
}

func TestAutoConnect_GivesUp(t *testing.T) {
	rig := newTestRig(t, config.BridgeConfig{AutoConnect: true, AutoConnectAttempts: 1})
	rig.dialer.SetError(errors.New("no route"))

	time.Sleep(50 * time.Millisecond)
	rig.bridge.Stop()

	if n := rig.dialer.Dials(); n > 1 {
		t.Errorf("dials = %d, want at most 1", n)
	}
}

func TestPruneLoop(t *testing.T) {
	rig := newTestRig(t, config.BridgeConfig{HistoryRetention: time.Hour})

	deadline := time.Now().Add(time.Second)
	for rig.history.Pruned() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("history was never pruned")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStop(t *testing.T) {
	rig := newTestRig(t, config.BridgeConfig{})
	if err := rig.session.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	rig.bridge.Stop()
	rig.bridge.Stop()

	if rig.session.ConnectionState() != divoom.StateDisconnected {
		t.Errorf("state = %s, want disconnected", rig.session.ConnectionState())
	}

	health := rig.mqtt.PublishedOn("divoom/health")
	var last HealthMessage
	if err := json.Unmarshal(health[len(health)-1].Payload, &last); err != nil {
		t.Fatalf("health is not JSON: %v", err)
	}
	if last.Status != HealthStopping {
		t.Errorf("final health = %s, want stopping", last.Status)
	}

	if err := rig.mqtt.SimulateMessage(rig.topics.Command(testDeviceID), []byte(`{"command":"on"}`)); err == nil {
		t.Error("command topic should be unsubscribed after Stop")
	}
}
