package mqtt

import "errors"

// Sentinel errors. Operation failures wrap the paho error.
var (
	ErrNotConnected      = errors.New("mqtt: client not connected")
	ErrConnectionFailed  = errors.New("mqtt: connection failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS is returned for QoS levels other than 0, 1 and 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned for empty topics and filters.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrInvalidFilter is returned when a sensor data filter does not hold
	// exactly one device ID wildcard.
	ErrInvalidFilter = errors.New("mqtt: invalid device topic filter")
)
