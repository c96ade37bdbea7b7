// Package metrics exposes bridge and session counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/divoom-bridge/internal/divoom"
)

const namespace = "divoom"

// connectionStates lists every value the connection_state gauge can take.
var connectionStates = []divoom.ConnectionState{
	divoom.StateDisconnected,
	divoom.StateConnecting,
	divoom.StateConnected,
	divoom.StateFailed,
}

// Recorder implements divoom.Recorder on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	connects        *prometheus.CounterVec
	connectionState *prometheus.GaugeVec
	mqttMessages    *prometheus.CounterVec
}

var _ divoom.Recorder = (*Recorder)(nil)

// New creates a Recorder with Go runtime and process collectors registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Device commands by command and result.",
		}, []string{"command", "result"}),
		commandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time from command start to device write completion.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"command"}),
		connects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Bluetooth connect attempts by result.",
		}, []string{"result"}),
		connectionState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "1 for the current session connection state, 0 for the others.",
		}, []string{"state"}),
		mqttMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_messages_total",
			Help:      "MQTT messages handled by the bridge, by direction.",
		}, []string{"direction"}),
	}
}

// RecordCommand counts a finished command and observes its duration.
func (r *Recorder) RecordCommand(command, outcome string, seconds float64) {
	r.commands.WithLabelValues(command, outcome).Inc()
	r.commandDuration.WithLabelValues(command).Observe(seconds)
}

// RecordConnect counts a connect attempt.
func (r *Recorder) RecordConnect(outcome string) {
	r.connects.WithLabelValues(outcome).Inc()
}

// RecordConnectionState sets the gauge for state to 1 and the rest to 0.
func (r *Recorder) RecordConnectionState(state string) {
	for _, s := range connectionStates {
		v := 0.0
		if s.String() == state {
			v = 1
		}
		r.connectionState.WithLabelValues(s.String()).Set(v)
	}
}

// RecordMQTTMessage counts an inbound ("in") or outbound ("out") message.
func (r *Recorder) RecordMQTTMessage(direction string) {
	r.mqttMessages.WithLabelValues(direction).Inc()
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
