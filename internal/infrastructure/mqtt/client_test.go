package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/divoom-bridge/internal/infrastructure/config"
)

// mockLogger implements Logger for testing.
type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *mockLogger) Error(msg string, args ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, args ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name   string
		topics Topics
		got    func(Topics) string
		want   string
	}{
		{"command default prefix", Topics{}, func(t Topics) string { return t.Command("pixoo") }, "divoom/command/pixoo"},
		{"ack", NewTopics("home/pixel"), func(t Topics) string { return t.Ack("desk") }, "home/pixel/ack/desk"},
		{"state", NewTopics("/divoom/"), func(t Topics) string { return t.State("desk") }, "divoom/state/desk"},
		{"health", Topics{}, Topics.Health, "divoom/health"},
		{"status", NewTopics("x"), Topics.Status, "x/status"},
		{"all commands", Topics{}, Topics.AllCommands, "divoom/command/+"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.got(tt.topics); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeviceFromTopic(t *testing.T) {
	topics := NewTopics("divoom")

	tests := []struct {
		topic string
		want  string
	}{
		{"divoom/command/pixoo", "pixoo"},
		{"divoom/state/desk-1", "desk-1"},
		{"divoom/health", ""},
		{"other/command/pixoo", ""},
		{"divoom/command/a/b", ""},
	}

	for _, tt := range tests {
		if got := topics.DeviceFromTopic(tt.topic); got != tt.want {
			t.Errorf("DeviceFromTopic(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{Host: "broker.local", Port: 8883, TLS: true, ClientID: "bridge-1"},
		Auth:   config.MQTTAuthConfig{Username: "u", Password: "p"},
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 2,
			MaxDelay:     30,
		},
	}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://broker.local:8883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "bridge-1" || opts.Username != "u" || opts.Password != "p" {
		t.Errorf("identity = %q/%q/%q", opts.ClientID, opts.Username, opts.Password)
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("expected auto-reconnect and clean session")
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("expected TLS config with minimum version")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(config.MQTTConfig{Broker: config.MQTTBrokerConfig{Host: "h", Port: 1883}})
	configureLWT(opts, NewTopics("divoom"), "bridge-1")

	if !opts.WillEnabled || opts.WillTopic != "divoom/status" || !opts.WillRetained {
		t.Fatalf("will = %v %q retained=%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}

	var payload map[string]string
	if err := json.Unmarshal(opts.WillPayload, &payload); err != nil {
		t.Fatalf("LWT payload is not JSON: %v", err)
	}
	if payload["status"] != "offline" || payload["client_id"] != "bridge-1" || payload["reason"] != "unexpected_disconnect" {
		t.Errorf("LWT payload = %v", payload)
	}
}

func TestBuildStatusPayload(t *testing.T) {
	var payload map[string]string
	if err := json.Unmarshal([]byte(buildStatusPayload("online", `id"quoted`, "")), &payload); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if payload["status"] != "online" || payload["client_id"] != `id"quoted` {
		t.Errorf("payload = %v", payload)
	}
	if _, ok := payload["reason"]; ok {
		t.Error("empty reason should be omitted")
	}
}

func TestPublishValidation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}

	tests := []struct {
		name    string
		topic   string
		qos     byte
		payload []byte
		want    error
	}{
		{"empty topic", "", 1, nil, ErrInvalidTopic},
		{"invalid qos", "t", 3, nil, ErrInvalidQoS},
		{"oversized", "t", 1, make([]byte, maxPayloadSize+1), ErrPublishFailed},
		{"not connected", "t", 1, []byte("x"), ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPublishJSONMarshalError(t *testing.T) {
	c := &Client{}
	err := c.PublishJSON("t", func() {}, false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON() error = %v, want ErrPublishFailed", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: %v", err)
	}
	if err := c.Subscribe("t", 5, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("invalid qos: %v", err)
	}
	if err := c.Subscribe("t", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler: %v", err)
	}
	if err := c.Subscribe("t", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("not connected: %v", err)
	}
	if err := c.Unsubscribe("t"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("unsubscribe not connected: %v", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	c := &Client{}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); err == nil || errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck(cancelled) error = %v", err)
	}
}

func TestCloseNeverConnected(t *testing.T) {
	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestDispatchRecoversPanic(t *testing.T) {
	logger := &mockLogger{}
	c := &Client{}
	c.SetLogger(logger)

	c.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)
	c.dispatch(func(string, []byte) error { return errors.New("bad payload") }, "t", nil)

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.errors) != 1 || len(logger.warns) != 1 {
		t.Errorf("errors = %v, warns = %v", logger.errors, logger.warns)
	}
}

func TestCallbacks(t *testing.T) {
	c := &Client{client: nil}
	var connected, lost int
	c.SetOnConnect(func() { connected++ })
	c.SetOnDisconnect(func(error) { lost++ })

	c.handleDisconnect(errors.New("eof"))
	if lost != 1 || c.IsConnected() {
		t.Errorf("lost = %d, connected = %v", lost, c.IsConnected())
	}

	c.SetOnConnect(nil)
	c.SetOnDisconnect(nil)
	c.handleDisconnect(nil)
	if lost != 1 || connected != 0 {
		t.Errorf("callbacks fired after being cleared")
	}
}
