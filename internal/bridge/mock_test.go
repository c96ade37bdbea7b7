package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/divoom-bridge/internal/divoom"
	"github.com/nerrad567/divoom-bridge/internal/infrastructure/mqtt"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu            sync.Mutex
	published     []mockPublish
	subscriptions []string
	connected     bool
	handlers      map[string]mqtt.MessageHandler
	subscribeErr  error
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]mqtt.MessageHandler),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.subscriptions = append(m.subscriptions, topic)
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, topic)
	return nil
}

func (m *MockMQTTClient) SetSubscribeError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribeErr = err
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.published...)
}

func (m *MockMQTTClient) GetSubscriptions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.subscriptions...)
}

// SimulateMessage delivers payload to the handler subscribed on topic.
func (m *MockMQTTClient) SimulateMessage(topic string, payload []byte) error {
	m.mu.Lock()
	handler, ok := m.handlers[topic]
	m.mu.Unlock()
	if !ok {
		return errors.New("no handler for " + topic)
	}
	return handler(topic, payload)
}

// PublishedOn returns payloads published on topic, oldest first.
func (m *MockMQTTClient) PublishedOn(topic string) []mockPublish {
	var out []mockPublish
	for _, p := range m.GetPublished() {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// WaitForAcks polls until n acks have been published on topic.
func (m *MockMQTTClient) WaitForAcks(t *testing.T, topic string, n int) []AckMessage {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for {
		pubs := m.PublishedOn(topic)
		if len(pubs) >= n {
			acks := make([]AckMessage, len(pubs))
			for i, p := range pubs {
				if err := json.Unmarshal(p.Payload, &acks[i]); err != nil {
					t.Fatalf("ack is not JSON: %v", err)
				}
			}
			return acks
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d acks on %s, got %d", n, topic, len(pubs))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// MockTransport records frames written to the device.
type MockTransport struct {
	mu       sync.Mutex
	frames   [][]byte
	writeErr error
	closed   bool
}

func (t *MockTransport) Write(ctx context.Context, frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return t.writeErr
	}
	t.frames = append(t.frames, append([]byte(nil), frame...))
	return nil
}

func (t *MockTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *MockTransport) SetWriteError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeErr = err
}

func (t *MockTransport) Frames() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.frames...)
}

// MockDialer hands out one shared MockTransport.
type MockDialer struct {
	mu        sync.Mutex
	transport *MockTransport
	err       error
	dials     int
}

func (d *MockDialer) Dial(ctx context.Context, address string) (divoom.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	return d.transport, nil
}

func (d *MockDialer) SetError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *MockDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// MockHistory records Record calls.
type MockHistory struct {
	mu      sync.Mutex
	records []mockRecord
	pruned  int
}

type mockRecord struct {
	DeviceID string
	State    divoom.State
	Source   string
}

func (h *MockHistory) Record(_ context.Context, deviceID string, state divoom.State, source string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, mockRecord{DeviceID: deviceID, State: state, Source: source})
	return nil
}

func (h *MockHistory) Prune(context.Context, time.Duration) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pruned++
	return 0, nil
}

func (h *MockHistory) Records() []mockRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]mockRecord(nil), h.records...)
}

func (h *MockHistory) Pruned() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pruned
}

// MockTelemetry counts telemetry writes.
type MockTelemetry struct {
	mu          sync.Mutex
	states      int
	connections []string
}

func (m *MockTelemetry) WriteDisplayState(string, divoom.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states++
}

func (m *MockTelemetry) WriteConnectionEvent(_ string, state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections = append(m.connections, state)
}

func (m *MockTelemetry) Connections() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.connections...)
}
