package device

import "errors"

// Domain errors for the device package.
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when two definitions share an ID.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when a definition fails validation.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidState is returned for undecodable state payloads or values.
	ErrInvalidState = errors.New("device: invalid state")

	// ErrUnknownCommand is returned when a device has no handler for a command.
	ErrUnknownCommand = errors.New("device: unknown command")

	// ErrNoTransport is returned when a command needs a bridge but none is wired.
	ErrNoTransport = errors.New("device: no transport configured")

	// ErrCommandFailed wraps transport failures.
	ErrCommandFailed = errors.New("device: command failed")
)
