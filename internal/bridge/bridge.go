package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nerrad567/divoom-bridge/internal/divoom"
	"github.com/nerrad567/divoom-bridge/internal/history"
	"github.com/nerrad567/divoom-bridge/internal/infrastructure/config"
	"github.com/nerrad567/divoom-bridge/internal/infrastructure/mqtt"
)

const (
	defaultCommandTimeout      = 15 * time.Second
	defaultAutoConnectAttempts = 3

	// commandQueueSize bounds commands waiting behind the one in progress.
	commandQueueSize = 32

	pruneInterval  = time.Hour
	recordTimeout  = 5 * time.Second
	commandQoS     = 1
	autoConnectMax = 30 * time.Second
)

// MQTTClient is the broker surface the bridge needs. *mqtt.Client
// implements it.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// HistoryRecorder persists snapshots. *history.Repository implements it.
type HistoryRecorder interface {
	Record(ctx context.Context, deviceID string, state divoom.State, source string) error
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// TelemetryWriter receives state for time-series storage.
// *influxdb.Client implements it.
type TelemetryWriter interface {
	WriteDisplayState(deviceID string, state divoom.State)
	WriteConnectionEvent(deviceID, connectionState string)
}

// MessageCounter counts MQTT traffic. *metrics.Recorder implements it.
type MessageCounter interface {
	RecordMQTTMessage(direction string)
}

// Logger is the structured logger used by the bridge.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options holds everything needed to build a Bridge.
type Options struct {
	// DeviceID is the device.id from config; it names the MQTT topics.
	DeviceID string

	Version string
	Config  config.BridgeConfig
	Topics  mqtt.Topics

	MQTT   MQTTClient
	Device Device

	// Optional collaborators.
	History   HistoryRecorder
	Telemetry TelemetryWriter
	Metrics   MessageCounter
	Logger    Logger
}

// Bridge serves one display over MQTT.
//
// Commands are executed one at a time in arrival order by a single worker,
// so the MQTT client's delivery goroutine never blocks on Bluetooth I/O.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	deviceID string
	cfg      config.BridgeConfig
	topics   mqtt.Topics

	mqtt      MQTTClient
	device    Device
	history   HistoryRecorder
	telemetry TelemetryWriter
	metrics   MessageCounter
	health    *HealthReporter

	queue chan CommandMessage

	// lastConnection is the connection state last seen by HandleStateChange.
	lastConnection string
	lastMu         sync.Mutex

	ctx       context.Context
	ctxCancel context.CancelFunc
	wg        sync.WaitGroup
	startMu   sync.Mutex
	started   bool
	stopOnce  sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// New validates opts and creates a Bridge. Call Start to begin.
func New(opts Options) (*Bridge, error) {
	if opts.DeviceID == "" {
		return nil, fmt.Errorf("bridge: device id is required")
	}
	if opts.MQTT == nil {
		return nil, fmt.Errorf("bridge: MQTT client is required")
	}
	if opts.Device == nil {
		return nil, fmt.Errorf("bridge: device session is required")
	}

	cfg := opts.Config
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}
	if cfg.AutoConnectAttempts <= 0 {
		cfg.AutoConnectAttempts = defaultAutoConnectAttempts
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Bridge{
		deviceID:  opts.DeviceID,
		cfg:       cfg,
		topics:    opts.Topics,
		mqtt:      opts.MQTT,
		device:    opts.Device,
		history:   opts.History,
		telemetry: opts.Telemetry,
		metrics:   opts.Metrics,
		queue:     make(chan CommandMessage, commandQueueSize),
		ctx:       ctx,
		ctxCancel: cancel,
		logger:    opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.DeviceID,
		Version:   opts.Version,
		Topic:     opts.Topics.Health(),
		Interval:  cfg.HealthInterval,
		Publisher: opts.MQTT,
		Device:    opts.Device,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start subscribes to the device's command topic, publishes the current
// state and starts health reporting, the command worker, history pruning
// and (if configured) auto-connect.
//
// A second call returns an error. Start may be retried if the subscribe
// failed.
func (b *Bridge) Start(ctx context.Context) error {
	b.startMu.Lock()
	defer b.startMu.Unlock()

	if b.started {
		return fmt.Errorf("bridge: already started")
	}

	if err := b.health.PublishStarting(); err != nil {
		b.logWarn("failed to publish starting status", "error", err)
	}

	topic := b.topics.Command(b.deviceID)
	if err := b.mqtt.Subscribe(topic, commandQoS, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", topic)
	b.started = true

	b.wg.Add(1)
	go b.runCommands()

	if b.history != nil && b.cfg.HistoryRetention > 0 {
		b.wg.Add(1)
		go b.pruneLoop()
	}

	if b.cfg.AutoConnect {
		b.wg.Add(1)
		go b.autoConnect()
	}

	b.HandleStateChange(b.device.State())
	b.health.Start(ctx)

	b.logInfo("bridge started",
		"device_id", b.deviceID,
		"address", b.device.Address(),
		"auto_connect", b.cfg.AutoConnect)
	return nil
}

// Stop cancels pending work, disconnects the device and publishes a final
// "stopping" health message. Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()

		if err := b.mqtt.Unsubscribe(b.topics.Command(b.deviceID)); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
			b.logWarn("failed to unsubscribe", "error", err)
		}

		// Disconnect cancels any in-flight command, so the worker exits promptly.
		if err := b.device.Disconnect(); err != nil {
			b.logWarn("device disconnect failed", "error", err)
		}

		b.wg.Wait()
		b.health.Stop()

		b.logInfo("bridge stopped")
	})
}

// Health returns the current health message without publishing it.
func (b *Bridge) Health() HealthMessage {
	return b.health.Snapshot()
}

// DeviceID returns the configured device ID.
func (b *Bridge) DeviceID() string {
	return b.deviceID
}

// Execute runs cmd on the device with the configured command timeout and
// returns the resulting snapshot. Successful device intents are recorded
// in history with cmd.Source.
func (b *Bridge) Execute(ctx context.Context, cmd CommandMessage) (divoom.State, error) {
	if cmd.DeviceID != "" && cmd.DeviceID != b.deviceID {
		return b.device.State(), fmt.Errorf("%w: %s", ErrDeviceNotConfigured, cmd.DeviceID)
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.CommandTimeout)
	defer cancel()

	start := time.Now()
	err := Execute(ctx, b.device, cmd)
	state := b.device.State()

	if err != nil {
		b.logWarn("command failed",
			"command_id", cmd.ID,
			"command", cmd.Command,
			"source", cmd.Source,
			"code", ErrorCode(err),
			"error", err)
		return state, err
	}

	b.logInfo("command executed",
		"command_id", cmd.ID,
		"command", cmd.Command,
		"source", cmd.Source,
		"duration_ms", time.Since(start).Milliseconds())

	if cmd.Command != CommandConnect && cmd.Command != CommandDisconnect {
		b.record(state, cmd.Source)
	}
	return state, nil
}

// HandleStateChange publishes the retained state and telemetry for a
// snapshot. Connection transitions are also written to history.
// Wire it to divoom.Options.OnChange.
func (b *Bridge) HandleStateChange(state divoom.State) {
	b.lastMu.Lock()
	transition := state.Connection != b.lastConnection
	b.lastConnection = state.Connection
	b.lastMu.Unlock()

	b.publishJSON(b.topics.State(b.deviceID), NewStateMessage(b.deviceID, state), true)

	if b.telemetry != nil {
		b.telemetry.WriteDisplayState(b.deviceID, state)
		if transition {
			b.telemetry.WriteConnectionEvent(b.deviceID, state.Connection)
		}
	}
	if transition {
		b.record(state, history.SourceSession)
	}
}

// handleMQTTMessage decodes a command and queues it for the worker.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) error {
	b.countMessage("in")

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("decode command on %s: %w", topic, err)
	}
	if cmd.DeviceID == "" {
		cmd.DeviceID = b.topics.DeviceFromTopic(topic)
	}
	if cmd.Source == "" {
		cmd.Source = history.SourceMQTT
	}

	b.logDebug("received command",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"command", cmd.Command)

	select {
	case b.queue <- cmd:
		return nil
	case <-b.ctx.Done():
		return nil
	default:
		b.publishAck(NewAckMessage(cmd, divoom.State{}, fmt.Errorf("bridge busy: %d commands queued", commandQueueSize)))
		return nil
	}
}

func (b *Bridge) runCommands() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case cmd := <-b.queue:
			state, err := b.Execute(b.ctx, cmd)
			if cmd.DeviceID == "" {
				cmd.DeviceID = b.deviceID
			}
			b.publishAck(NewAckMessage(cmd, state, err))
		}
	}
}

// autoConnect retries the initial connect with exponential backoff.
func (b *Bridge) autoConnect() {
	defer b.wg.Done()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Second
	eb.MaxInterval = autoConnectMax
	eb.MaxElapsedTime = 0
	// #nosec G115 -- AutoConnectAttempts is positive after New
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(b.cfg.AutoConnectAttempts-1)), b.ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := b.device.Connect(b.ctx)
		if divoom.KindOf(err) == divoom.KindCancelled {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, next time.Duration) {
		b.logWarn("auto-connect attempt failed",
			"attempt", attempt,
			"retry_in", next.String(),
			"error", err)
	})

	switch {
	case err == nil:
		b.logInfo("auto-connect succeeded", "attempts", attempt)
	case b.ctx.Err() != nil:
	default:
		b.logError("auto-connect gave up; commands will retry on demand", "attempts", attempt, "error", err)
	}
}

func (b *Bridge) pruneLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		b.prune()
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (b *Bridge) prune() {
	ctx, cancel := context.WithTimeout(b.ctx, recordTimeout)
	defer cancel()

	n, err := b.history.Prune(ctx, b.cfg.HistoryRetention)
	if err != nil {
		if b.ctx.Err() == nil {
			b.logWarn("history prune failed", "error", err)
		}
		return
	}
	if n > 0 {
		b.logInfo("pruned state history", "deleted", n)
	}
}

func (b *Bridge) record(state divoom.State, source string) {
	if b.history == nil {
		return
	}
	// Recording must outlive Stop's cancellation for the final transition.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(b.ctx), recordTimeout)
	defer cancel()

	if err := b.history.Record(ctx, b.deviceID, state, source); err != nil {
		b.logWarn("failed to record state history", "error", err)
	}
}

func (b *Bridge) publishAck(ack AckMessage) {
	b.publishJSON(b.topics.Ack(b.deviceID), ack, false)
}

func (b *Bridge) publishJSON(topic string, v any, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.logError("failed to marshal message", "topic", topic, "error", err)
		return
	}
	if err := b.mqtt.Publish(topic, payload, commandQoS, retained); err != nil {
		b.logWarn("failed to publish", "topic", topic, "error", err)
		return
	}
	b.countMessage("out")
}

func (b *Bridge) countMessage(direction string) {
	if b.metrics != nil {
		b.metrics.RecordMQTTMessage(direction)
	}
}

// SetLogger sets the logger for the bridge and its health reporter.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	b.health.SetLogger(logger)
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, keysAndValues...)
	}
}
