package reading

import (
	"context"
	"time"
)

// DefaultSweepInterval is how often expired readings are deleted.
const DefaultSweepInterval = time.Hour

// Sweeper enforces reading expiry by periodically deleting rows whose
// ExpireTimestamp has passed.
type Sweeper struct {
	store    Store
	interval time.Duration
	now      func() time.Time
	logger   Logger
}

// NewSweeper creates a sweeper. A non-positive interval uses DefaultSweepInterval.
func NewSweeper(store Store, interval time.Duration, logger Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Sweeper{store: store, interval: interval, now: time.Now, logger: logger}
}

// SweepOnce deletes everything that has expired as of now.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpired(ctx, s.now().Unix())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired readings deleted", "count", n)
	}
	return n, nil
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("reading expiry sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
