package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ponytojas/dht-logger/internal/logger"
	"github.com/ponytojas/dht-logger/internal/metrics"
	"github.com/ponytojas/dht-logger/internal/models"
)

// DefaultBackoff is the pause between two read attempts.
const DefaultBackoff = 100 * time.Millisecond

// Cycle reads a single snapshot. *Pipeline implements it.
type Cycle interface {
	ReadCycle(ctx context.Context) (models.Snapshot, error)
}

// Driver retries a Cycle with a fixed pause between attempts.
type Driver struct {
	cycle    Cycle
	interval time.Duration
	timer    backoff.Timer
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewDriver returns a driver pausing interval between attempts. A
// non-positive interval selects DefaultBackoff.
func NewDriver(cycle Cycle, interval time.Duration, m *metrics.Metrics, logger *slog.Logger) *Driver {
	if interval <= 0 {
		interval = DefaultBackoff
	}
	return &Driver{
		cycle:    cycle,
		interval: interval,
		metrics:  m,
		logger:   logger,
	}
}

// ReadWithRetries calls the cycle until it succeeds or maxAttempts attempts
// have failed, in which case the error of the last attempt is returned as is.
// A maxAttempts below one is treated as one.
func (d *Driver) ReadWithRetries(ctx context.Context, maxAttempts int) (models.Snapshot, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var (
		snapshot models.Snapshot
		attempt  int
	)
	op := func() error {
		attempt++
		d.metrics.ReadAttempts.Inc()
		s, err := d.cycle.ReadCycle(ctx)
		if err != nil {
			logger.Trace(ctx, d.logger, "Sensor read failed",
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", maxAttempts),
				slog.Any("error", err),
			)
			return err
		}
		snapshot = s
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(d.interval), uint64(maxAttempts-1)), ctx)
	if err := backoff.RetryNotifyWithTimer(op, b, nil, d.timer); err != nil {
		return models.Snapshot{}, err
	}
	return snapshot, nil
}
