package bridge

import "errors"

var (
	// ErrUnknownCommand is returned for a command name outside the vocabulary.
	ErrUnknownCommand = errors.New("bridge: unknown command")

	// ErrInvalidParameters is returned when a command parameter is missing
	// or has the wrong type.
	ErrInvalidParameters = errors.New("bridge: invalid parameters")

	// ErrDeviceNotConfigured is returned for commands addressed to another device.
	ErrDeviceNotConfigured = errors.New("bridge: device not configured")
)
