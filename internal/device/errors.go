package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when no entity owns a key.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when two devices resolve to the same key.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidPlatform is returned when a platform section is not recognised.
	ErrInvalidPlatform = errors.New("device: invalid platform")

	// ErrInvalidAddress is returned when a WHERE, zone or bus interface is malformed.
	ErrInvalidAddress = errors.New("device: invalid address")

	// ErrInvalidMAC is returned when a gateway MAC cannot be normalised.
	ErrInvalidMAC = errors.New("device: invalid mac")

	// ErrInvalidFile is returned when the device file cannot be read or parsed.
	ErrInvalidFile = errors.New("device: invalid device file")

	// ErrInvalidCommand is returned when a command is unknown to the entity
	// or its arguments are out of range.
	ErrInvalidCommand = errors.New("device: invalid command")
)
