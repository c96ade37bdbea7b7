package device

import (
	"fmt"

	"github.com/nerrad567/divoom-bridge/internal/bluetooth"
	"github.com/nerrad567/divoom-bridge/internal/divoom"
	"github.com/nerrad567/divoom-bridge/internal/infrastructure/config"
)

// Logger is satisfied by *logging.Logger.
type Logger interface {
	divoom.Logger
}

// Hooks are the optional collaborators a session reports to.
type Hooks struct {
	Logger   Logger
	Recorder divoom.Recorder
	OnChange func(divoom.State)
}

// Open builds a disconnected session for the configured device.
//
// Parameters:
//   - cfg: the device section of the configuration
//   - hooks: optional logger, metrics recorder and change callback
//
// Returns:
//   - *divoom.Session: ready to Connect
//   - error: if the transport or device settings are invalid
func Open(cfg config.DeviceConfig, hooks Hooks) (*divoom.Session, error) {
	dialer, err := NewDialer(cfg, hooks.Logger)
	if err != nil {
		return nil, err
	}
	return OpenWithDialer(cfg, dialer, hooks)
}

// NewDialer returns the Bluetooth dialer selected by cfg.Transport.
func NewDialer(cfg config.DeviceConfig, logger Logger) (*bluetooth.Dialer, error) {
	if cfg.RFCOMMChannel < 0 || cfg.RFCOMMChannel > 255 {
		return nil, fmt.Errorf("device: rfcomm channel %d out of range", cfg.RFCOMMChannel)
	}

	btCfg := bluetooth.Config{
		Transport:            cfg.Transport,
		RFCOMMChannel:        uint8(cfg.RFCOMMChannel),
		ServiceUUID:          cfg.GATT.ServiceUUID,
		CharacteristicUUID:   cfg.GATT.CharacteristicUUID,
		WriteWithoutResponse: cfg.GATT.WriteWithoutResponse,
		Logger:               logger,
	}

	dialer, err := bluetooth.NewDialer(btCfg)
	if err != nil {
		return nil, fmt.Errorf("device: %w", err)
	}
	return dialer, nil
}

// OpenWithDialer is Open with an explicit dialer. Tests pass fakes here.
func OpenWithDialer(cfg config.DeviceConfig, dialer divoom.Dialer, hooks Hooks) (*divoom.Session, error) {
	deviceType := divoom.DevicePixoo
	if cfg.Type != "" {
		t, err := divoom.ParseDeviceType(cfg.Type)
		if err != nil {
			return nil, fmt.Errorf("device: %w", err)
		}
		deviceType = t
	}

	opts := divoom.Options{
		Device:           deviceType,
		EscapeFrames:     cfg.EscapeFrames,
		ConnectTimeout:   cfg.ConnectTimeout,
		WriteTimeout:     cfg.WriteTimeout,
		ReconnectTimeout: cfg.ReconnectTimeout,
		Logger:           hooks.Logger,
		Recorder:         hooks.Recorder,
		OnChange:         hooks.OnChange,
	}

	sess, err := divoom.NewSession(cfg.Address, dialer, opts)
	if err != nil {
		return nil, fmt.Errorf("device: %w", err)
	}
	return sess, nil
}
