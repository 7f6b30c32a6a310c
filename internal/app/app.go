// Package app runs the poll loop: read with retries, then dispatch.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ponytojas/dht-logger/internal/metrics"
	"github.com/ponytojas/dht-logger/internal/models"
)

// Reader produces one snapshot per call. *ingest.Driver implements it.
type Reader interface {
	ReadWithRetries(ctx context.Context, maxAttempts int) (models.Snapshot, error)
}

// Dispatcher delivers a snapshot to every sink. *dispatch.Dispatcher
// implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, s models.Snapshot)
}

// App drives poll cycles one at a time.
type App struct {
	reader     Reader
	dispatcher Dispatcher
	attempts   int
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New returns an App reading with up to attempts tries per cycle.
func New(reader Reader, dispatcher Dispatcher, attempts int, m *metrics.Metrics, logger *slog.Logger) *App {
	return &App{
		reader:     reader,
		dispatcher: dispatcher,
		attempts:   attempts,
		metrics:    m,
		logger:     logger,
	}
}

// PollOnce runs a single poll cycle. It reports whether a snapshot was
// dispatched; a cycle whose read budget is exhausted is skipped.
func (a *App) PollOnce(ctx context.Context) bool {
	start := time.Now()
	log := a.logger.With(slog.String("cycle_id", uuid.NewString()))

	s, err := a.reader.ReadWithRetries(ctx, a.attempts)
	if err != nil {
		a.metrics.Cycles.WithLabelValues("skipped").Inc()
		log.Debug("Skipping poll cycle", slog.Any("error", err))
		return false
	}

	a.dispatcher.Dispatch(ctx, s)
	a.metrics.Cycles.WithLabelValues("ok").Inc()
	log.Debug("Poll cycle complete",
		slog.Int("sensors", len(s.Data)),
		slog.Duration("took", time.Since(start)),
	)
	return true
}

// Run polls until ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	for ctx.Err() == nil {
		a.PollOnce(ctx)
	}
	a.logger.Info("Poll loop stopped")
}
