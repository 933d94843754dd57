package reading

import "errors"

var (
	// ErrQueryRejected is returned when a query cannot be executed as
	// written (missing partition key, inverted range, foreign start key).
	// Retrying the same query will not help.
	ErrQueryRejected = errors.New("reading: query rejected")

	// ErrStoreUnavailable is returned for transient storage failures.
	ErrStoreUnavailable = errors.New("reading: store unavailable")

	// ErrDuplicateReading is returned when a reading ID already exists.
	ErrDuplicateReading = errors.New("reading: duplicate id")

	// ErrNoMeasurements is returned when an upload carries no numeric fields.
	ErrNoMeasurements = errors.New("reading: payload has no numeric measurements")

	// ErrInvalidPayload is returned when an upload is not a JSON object.
	ErrInvalidPayload = errors.New("reading: invalid payload")

	// ErrInvalidDeviceID is returned when an upload has no usable device ID.
	ErrInvalidDeviceID = errors.New("reading: invalid device id")

	// ErrUnknownDevice is returned when an upload names a device that was
	// never registered.
	ErrUnknownDevice = errors.New("reading: unknown device")
)
