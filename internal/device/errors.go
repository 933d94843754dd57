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
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device with an ID that already exists.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when registration input fails validation.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrMissingOwner is returned when an operation has no owner identity.
	ErrMissingOwner = errors.New("device: missing owner")

	// ErrGeolocation is returned when coordinates cannot be resolved to a place.
	ErrGeolocation = errors.New("device: geolocation failed")
)
