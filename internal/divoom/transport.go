package divoom

import "context"

// Transport is an established link to one device.
//
// Write must not return before the frame was handed to the link (written to
// the RFCOMM socket, or acknowledged by the GATT server when writing with
// response), and must honour ctx's deadline.
type Transport interface {
	Write(ctx context.Context, frame []byte) error
	Close() error
}

// Dialer opens transports by Bluetooth address.
type Dialer interface {
	Dial(ctx context.Context, address string) (Transport, error)
}

// LinkWatcher is implemented by transports that can report link loss
// (for example a BLE disconnection event). The channel is closed when the
// link drops.
type LinkWatcher interface {
	Done() <-chan struct{}
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, address string) (Transport, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, address string) (Transport, error) {
	return f(ctx, address)
}

// Logger is the logging interface the session writes to.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Recorder receives operational measurements. Outcomes are "ok" or a
// Kind string.
type Recorder interface {
	RecordCommand(command, outcome string, seconds float64)
	RecordConnect(outcome string)
	RecordConnectionState(state string)
}
