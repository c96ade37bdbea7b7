// Package divoom drives a Divoom pixel display over a Bluetooth link.
//
// The centre of the package is Session: one per physical device. It owns
// the transport, serializes every command, and keeps a cache of the last
// state the device accepted (power, brightness, colour, mode, scores).
//
// # Connection lifecycle
//
// A session starts Disconnected. Connect dials through a Dialer; concurrent
// callers share a single attempt. Any failure moves the session to Failed,
// and the next command makes exactly one bounded reconnect attempt before
// giving up. Disconnect is valid from any state, always ends Disconnected,
// and cancels whatever operation is in flight.
//
// # Cache semantics
//
// The device has no read-back channel. Cached values change only after a
// frame was written successfully; a failed write leaves them untouched.
// Input is clamped rather than rejected (brightness and scores to 0–100,
// colour channels to 0–255). Unknown mode labels are rejected before any
// I/O.
//
// # Errors
//
// Every operation returns *Error carrying a Kind. Use errors.Is with
// ErrConnection, ErrCommand, ErrInvalidMode, ErrValidation or ErrCancelled:
//
//	if err := s.SetMode(ctx, "Effect 2"); errors.Is(err, divoom.ErrInvalidMode) {
//	    // unknown label, nothing was sent
//	}
//
// # Wire protocol
//
// Codec implements Pixoo framing; see protocol.go for the layout and the
// opcode table.
package divoom
