package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flora-iot/flora-core/internal/auth"
	"github.com/flora-iot/flora-core/internal/device"
)

// DefaultAuthorizationTimeout bounds one device registry lookup.
const DefaultAuthorizationTimeout = 3 * time.Second

// DeviceLookup asks the device registry which of the caller's devices
// match deviceID. A nil slice with a nil error is treated as an
// unreadable answer, not as "no devices".
type DeviceLookup interface {
	LookupDevices(ctx context.Context, deviceID string, caller auth.Identity) ([]device.Device, error)
}

// Checker decides whether a caller may read a device's data.
// It holds no cache: every call reaches the lookup.
type Checker struct {
	lookup  DeviceLookup
	timeout time.Duration
}

// NewChecker creates a Checker. A non-positive timeout uses
// DefaultAuthorizationTimeout.
func NewChecker(lookup DeviceLookup, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = DefaultAuthorizationTimeout
	}
	return &Checker{lookup: lookup, timeout: timeout}
}

// IsAuthorized reports whether caller owns deviceID. Lookup failures,
// timeouts and unreadable answers return ErrAuthorizationService; callers
// must treat that as a denial.
func (c *Checker) IsAuthorized(ctx context.Context, caller auth.Identity, deviceID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	devices, err := c.lookup.LookupDevices(ctx, deviceID, caller)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrAuthorizationService, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, fmt.Errorf("%w: %w", ErrAuthorizationService, ctxErr)
	}
	if devices == nil {
		return false, fmt.Errorf("%w: empty lookup payload", ErrAuthorizationService)
	}
	return device.HasDevice(devices, deviceID), nil
}

// LocalLookup answers ownership questions from the in-process registry.
type LocalLookup struct {
	Registry *device.Registry
}

// LookupDevices implements DeviceLookup.
func (l LocalLookup) LookupDevices(ctx context.Context, deviceID string, caller auth.Identity) ([]device.Device, error) {
	if l.Registry == nil {
		return nil, errors.New("no device registry configured")
	}
	return l.Registry.Lookup(ctx, deviceID, caller.Subject)
}
