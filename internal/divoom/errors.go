package divoom

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies session failures so callers can map them onto
// acknowledgements, HTTP status codes and UI availability.
type Kind int

const (
	// KindUnknown is never produced by the session; it is what KindOf
	// reports for errors that did not originate here.
	KindUnknown Kind = iota

	// KindConnection covers dial failures and connect timeouts.
	KindConnection

	// KindCommand covers transport write failures after a connection was
	// established, including write timeouts.
	KindCommand

	// KindInvalidMode is returned for mode labels outside the closed set.
	KindInvalidMode

	// KindValidation is returned for input that cannot be clamped into range.
	KindValidation

	// KindCancelled is returned when Disconnect tears the session down
	// underneath an operation, or the caller gives up before any I/O.
	KindCancelled
)

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection_error"
	case KindCommand:
		return "command_error"
	case KindInvalidMode:
		return "invalid_mode"
	case KindValidation:
		return "validation_error"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is the structured error returned by every Session operation.
//
// Use errors.Is with the Err* kind sentinels below, or KindOf, to branch on
// the failure class. The wrapped cause stays reachable through errors.Unwrap.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := "divoom: " + e.Kind.String()
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the kind sentinel matching e.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Kind sentinels, for use with errors.Is.
var (
	ErrConnection  = &Error{Kind: KindConnection}
	ErrCommand     = &Error{Kind: KindCommand}
	ErrInvalidMode = &Error{Kind: KindInvalidMode}
	ErrValidation  = &Error{Kind: KindValidation}
	ErrCancelled   = &Error{Kind: KindCancelled}
)

// Causes wrapped inside *Error values.
var (
	// ErrSessionClosed is the cause of Cancelled errors produced by Disconnect.
	ErrSessionClosed = errors.New("divoom: session disconnected")

	// ErrUnknownMode is wrapped by InvalidMode errors.
	ErrUnknownMode = errors.New("divoom: unknown mode")

	// ErrInvalidSlot is returned for score slots other than 1 and 2.
	ErrInvalidSlot = errors.New("divoom: score slot must be 1 or 2")

	// ErrScoresNotSet is returned by PushScore before both slots were set.
	ErrScoresNotSet = errors.New("divoom: both scores must be set before pushing the scoreboard")

	// ErrInvalidAddress is returned for an empty device address.
	ErrInvalidAddress = errors.New("divoom: device address is required")

	// ErrNoDialer is returned when a session is built without a transport dialer.
	ErrNoDialer = errors.New("divoom: dialer is required")

	// ErrUnsupportedDevice is returned for device types other than pixoo.
	ErrUnsupportedDevice = errors.New("divoom: unsupported device type")

	// ErrConnectTimeout is wrapped when a connection attempt exceeds its deadline.
	ErrConnectTimeout = errors.New("divoom: connect timed out")

	// ErrWriteTimeout is wrapped when a command write exceeds its deadline.
	ErrWriteTimeout = errors.New("divoom: write timed out")

	// ErrMalformedFrame is returned by DecodeFrame.
	ErrMalformedFrame = errors.New("divoom: malformed frame")
)

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of err, or KindUnknown if err is not a session error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// timeoutCause attaches the timeout sentinel when err stems from an expired deadline.
func timeoutCause(err, sentinel error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return err
}
