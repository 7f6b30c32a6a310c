// Package dispatch fans a completed snapshot out to the log and to every
// configured remote channel.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/ponytojas/dht-logger/internal/codec"
	"github.com/ponytojas/dht-logger/internal/logger"
	"github.com/ponytojas/dht-logger/internal/metrics"
	"github.com/ponytojas/dht-logger/internal/models"
)

// Sender delivers an encoded snapshot to one destination.
//
//go:generate mockery --name Sender --output=./mocks --filename sender.go --quiet
type Sender interface {
	// Name identifies the destination in logs and metrics.
	Name() string

	// Format is the representation the destination expects.
	Format() codec.Format

	// Send delivers one payload. It may be called concurrently with Send
	// on other senders but never concurrently on the same sender.
	Send(ctx context.Context, payload []byte) error
}

// Dispatcher delivers snapshots. Delivery failures are logged and never
// returned to the caller.
type Dispatcher struct {
	verbose bool
	senders []Sender
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New returns a dispatcher. When verbose is set snapshots are logged at info
// level, otherwise at debug level.
func New(verbose bool, senders []Sender, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		verbose: verbose,
		senders: senders,
		metrics: m,
		logger:  logger,
	}
}

// Dispatch logs the snapshot and sends it to every sender concurrently. It
// returns once every sender has finished.
func (d *Dispatcher) Dispatch(ctx context.Context, s models.Snapshot) {
	d.logSnapshot(ctx, s)
	d.metrics.Sensors.Set(float64(len(s.Data)))

	if len(d.senders) == 0 {
		return
	}

	payloads := make(map[codec.Format][]byte)
	for _, sender := range d.senders {
		f := sender.Format()
		if _, ok := payloads[f]; ok {
			continue
		}
		payload, err := codec.Marshal(f, s)
		if err != nil {
			d.logger.Warn("Failed to encode snapshot", slog.String("format", f.String()), slog.Any("error", err))
			payload = nil
		} else if f == codec.Compact {
			logger.Trace(ctx, d.logger, "Encoded compact snapshot", slog.String("payload", string(payload)))
		}
		payloads[f] = payload
	}

	var wg sync.WaitGroup
	for _, sender := range d.senders {
		payload := payloads[sender.Format()]
		if payload == nil {
			d.metrics.Deliveries.WithLabelValues(sender.Name(), "error").Inc()
			continue
		}
		wg.Add(1)
		go func(sender Sender) {
			defer wg.Done()
			d.send(ctx, sender, payload)
		}(sender)
	}
	wg.Wait()
}

func (d *Dispatcher) send(ctx context.Context, sender Sender, payload []byte) {
	if err := sender.Send(ctx, payload); err != nil {
		d.metrics.Deliveries.WithLabelValues(sender.Name(), "error").Inc()
		d.logger.Warn("Failed to deliver snapshot", slog.String("channel", sender.Name()), slog.Any("error", err))
		return
	}
	d.metrics.Deliveries.WithLabelValues(sender.Name(), "ok").Inc()
	logger.Trace(ctx, d.logger, "Snapshot delivered", slog.String("channel", sender.Name()), slog.Int("bytes", len(payload)))
}

func (d *Dispatcher) logSnapshot(ctx context.Context, s models.Snapshot) {
	level := slog.LevelDebug
	if d.verbose {
		level = slog.LevelInfo
	}
	if !d.logger.Enabled(ctx, level) {
		return
	}

	pretty, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		d.logger.Warn("Failed to format snapshot", slog.Any("error", err))
		return
	}
	d.logger.Log(ctx, level, "Received measurement:\n"+string(pretty))
}

// Close closes every sender that holds a connection.
func (d *Dispatcher) Close() error {
	var errs []error
	for _, sender := range d.senders {
		if c, ok := sender.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
