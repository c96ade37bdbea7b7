package bluetooth

import "errors"

// Domain errors for the bluetooth package.
var (
	// ErrUnsupportedPlatform is returned by Dial on platforms without a
	// transport implementation.
	ErrUnsupportedPlatform = errors.New("bluetooth: transport not supported on this platform")

	// ErrInvalidAddress is returned for malformed Bluetooth addresses.
	ErrInvalidAddress = errors.New("bluetooth: invalid address")

	// ErrUnknownTransport is returned for transport names other than rfcomm and gatt.
	ErrUnknownTransport = errors.New("bluetooth: unknown transport")

	// ErrCharacteristicNotFound is returned when the device profile lacks
	// the configured write characteristic.
	ErrCharacteristicNotFound = errors.New("bluetooth: write characteristic not found")

	// ErrClosed is returned by Write after Close or link loss.
	ErrClosed = errors.New("bluetooth: transport closed")
)
