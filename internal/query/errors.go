package query

import (
	"errors"

	"github.com/flora-iot/flora-core/internal/auth"
)

// Errors returned by FetchReadings. Every failure wraps exactly one of
// these so callers can map it with errors.Is.
var (
	// ErrUnauthenticated is returned when the request carries no caller identity.
	ErrUnauthenticated = auth.ErrUnauthenticated

	// ErrForbidden is returned when the caller does not own the device.
	// It does not reveal whether the device exists.
	ErrForbidden = errors.New("query: forbidden")

	// ErrInvalidFilter is returned for malformed time ranges, unknown
	// range selectors and malformed page tokens.
	ErrInvalidFilter = errors.New("query: invalid filter")

	// ErrAuthorizationService is returned when the device registry lookup
	// fails, times out or answers with something unreadable. Access is denied.
	ErrAuthorizationService = errors.New("query: authorization service error")

	// ErrStoreUnavailable is a transient store failure. Safe to retry.
	ErrStoreUnavailable = errors.New("query: store unavailable")

	// ErrStoreRejectedQuery means the store refused the query as malformed.
	ErrStoreRejectedQuery = errors.New("query: store rejected query")
)
