package bluetooth

import (
	"fmt"
	"strings"
)

// Transport names accepted by Config.Transport.
const (
	TransportRFCOMM = "rfcomm"
	TransportGATT   = "gatt"
)

// Defaults for Divoom devices.
const (
	// DefaultRFCOMMChannel is the serial-port channel Pixoo panels listen on.
	DefaultRFCOMMChannel uint8 = 1

	// DefaultServiceUUID and DefaultCharacteristicUUID identify the
	// transparent-UART service BLE Divoom devices expose.
	DefaultServiceUUID        = "49535343-fe7d-4ae5-8fa9-9fafd205e455"
	DefaultCharacteristicUUID = "49535343-8841-43f4-a8d4-ecbe34729bb3"
)

// Config selects and parameterises a transport.
type Config struct {
	// Transport is "rfcomm" (default) or "gatt".
	Transport string

	// RFCOMMChannel is used by the rfcomm transport. Default: 1.
	RFCOMMChannel uint8

	// ServiceUUID and CharacteristicUUID are used by the gatt transport.
	ServiceUUID        string
	CharacteristicUUID string

	// WriteWithoutResponse uses ATT write commands instead of write requests.
	WriteWithoutResponse bool

	// Logger is optional.
	Logger Logger
}

// Logger is the logging interface transports write to.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

// NewDialer validates cfg and returns the matching divoom.Dialer.
func NewDialer(cfg Config) (*Dialer, error) {
	cfg.Transport = strings.ToLower(strings.TrimSpace(cfg.Transport))
	if cfg.Transport == "" {
		cfg.Transport = TransportRFCOMM
	}
	switch cfg.Transport {
	case TransportRFCOMM:
		if cfg.RFCOMMChannel == 0 {
			cfg.RFCOMMChannel = DefaultRFCOMMChannel
		}
		if cfg.RFCOMMChannel > 30 {
			return nil, fmt.Errorf("bluetooth: rfcomm channel %d out of range 1-30", cfg.RFCOMMChannel)
		}
	case TransportGATT:
		if cfg.ServiceUUID == "" {
			cfg.ServiceUUID = DefaultServiceUUID
		}
		if cfg.CharacteristicUUID == "" {
			cfg.CharacteristicUUID = DefaultCharacteristicUUID
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, cfg.Transport)
	}
	return &Dialer{cfg: cfg}, nil
}

// Dialer opens RFCOMM or GATT transports according to its Config.
// It satisfies divoom.Dialer.
type Dialer struct {
	cfg Config
}

// Transport returns the selected transport name.
func (d *Dialer) Transport() string { return d.cfg.Transport }

func (d *Dialer) logDebug(msg string, kv ...any) {
	if d.cfg.Logger != nil {
		d.cfg.Logger.Debug(msg, kv...)
	}
}

func (d *Dialer) logWarn(msg string, kv ...any) {
	if d.cfg.Logger != nil {
		d.cfg.Logger.Warn(msg, kv...)
	}
}
