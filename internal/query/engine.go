package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flora-iot/flora-core/internal/auth"
	"github.com/flora-iot/flora-core/internal/reading"
)

// Logger defines the logging interface used by the Engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Authorizer decides device access for a caller. *Checker implements it.
type Authorizer interface {
	IsAuthorized(ctx context.Context, caller auth.Identity, deviceID string) (bool, error)
}

// Result is one page of readings. NextCursor is nil when nothing remains.
type Result struct {
	Items      []reading.SensorReading `json:"items"`
	NextCursor *string                 `json:"nextCursor"`
}

// Engine serves authorised, paginated reading queries.
type Engine struct {
	authz  Authorizer
	store  reading.Store
	shaper Shaper
	now    func() time.Time
	logger Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source for the recency window.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLookback sets the recency window width in seconds.
func WithLookback(seconds int64) Option {
	return func(e *Engine) { e.shaper.Lookback = seconds }
}

// WithLogger sets the engine's logger.
func WithLogger(logger Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates a query engine.
func NewEngine(authz Authorizer, store reading.Store, opts ...Option) *Engine {
	e := &Engine{
		authz:  authz,
		store:  store,
		shaper: Shaper{Lookback: DefaultLookback},
		now:    time.Now,
		logger: noopLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FetchReadings returns one page of a device's readings for the caller in ctx.
//
// The caller's identity is checked first, then device ownership, and only
// then is the filter shaped and the store queried. Any failure returns a
// nil Result.
//
// Parameters:
//   - ctx: Carries the caller identity and bounds the lookup and query
//   - f: The client's filter
//
// Returns:
//   - *Result: Items in query order (never nil) and the continuation token
//   - error: Wraps one of the query package's sentinel errors
func (e *Engine) FetchReadings(ctx context.Context, f Filter) (*Result, error) {
	caller, err := auth.IdentityFromContext(ctx)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	deviceID := strings.TrimSpace(f.DeviceID)
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device id is required", ErrInvalidFilter)
	}

	ok, err := e.authz.IsAuthorized(ctx, caller, deviceID)
	if err != nil {
		e.logger.Warn("device authorization failed", "device_id", deviceID, "user_id", caller.Subject, "error", err)
		if errors.Is(err, ErrAuthorizationService) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrAuthorizationService, err)
	}
	if !ok {
		return nil, ErrForbidden
	}

	q, err := e.shaper.Shape(f, deviceID, e.now())
	if err != nil {
		return nil, err
	}

	page, err := e.store.Query(ctx, q)
	if err != nil {
		return nil, classifyStoreError(err)
	}

	items := page.Items
	if items == nil {
		items = []reading.SensorReading{}
	}
	return &Result{Items: items, NextCursor: EncodeCursor(page.LastEvaluatedKey, q.Order)}, nil
}

func classifyStoreError(err error) error {
	if errors.Is(err, reading.ErrQueryRejected) {
		return fmt.Errorf("%w: %w", ErrStoreRejectedQuery, err)
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
