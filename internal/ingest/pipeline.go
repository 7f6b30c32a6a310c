// Package ingest reads raw sensor payloads from a source and turns them into
// snapshots.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ponytojas/dht-logger/internal/metrics"
	"github.com/ponytojas/dht-logger/internal/models"
)

// DefaultErrorKey is the entry key a sensor uses to report an error.
const DefaultErrorKey = "error"

// Raw field names of a measurement entry.
const (
	fieldTemperature = "t"
	fieldHumidity    = "h"
	fieldHeatIndex   = "hi"
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock replaces the clock used to timestamp snapshots.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// Pipeline reads one payload per cycle and classifies every sensor entry.
type Pipeline struct {
	source   Source
	errorKey string
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewPipeline returns a pipeline reading from src. Entries carrying errorKey
// are sensor errors; an empty errorKey selects DefaultErrorKey.
func NewPipeline(src Source, errorKey string, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Pipeline {
	if errorKey == "" {
		errorKey = DefaultErrorKey
	}
	p := &Pipeline{
		source:   src,
		errorKey: errorKey,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ReadCycle reads one payload and returns the snapshot of the sensors that
// reported a measurement. Sensors reporting an error are logged and left out;
// a snapshot with no entries is still a success.
func (p *Pipeline) ReadCycle(ctx context.Context) (models.Snapshot, error) {
	payload, err := p.source.Read(ctx)
	if err != nil {
		return models.Snapshot{}, err
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return models.Snapshot{}, ErrNoData
	}
	timestamp := p.now().UTC()

	readings, err := p.Parse(payload)
	if err != nil {
		return models.Snapshot{}, err
	}

	snapshot := models.NewSnapshot(timestamp)
	for label, reading := range readings {
		switch r := reading.(type) {
		case models.Measurement:
			snapshot.Data[label] = r
		case models.Failure:
			p.metrics.SensorErrors.WithLabelValues(label).Inc()
			p.logger.Warn("Error reading sensor", slog.String("sensor", label), slog.String("error", r.Message))
		}
	}

	return snapshot, nil
}

// Parse classifies every entry of a raw payload. Any entry that is neither an
// error nor a complete measurement fails the whole payload.
func (p *Pipeline) Parse(payload []byte) (map[string]models.Reading, error) {
	entries, err := decodeObject(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(entries) == 0 {
		return nil, ErrEmptyPayload
	}

	readings := make(map[string]models.Reading, len(entries))
	for label, raw := range entries {
		if label == "" {
			return nil, fmt.Errorf("%w: empty sensor label", ErrMalformedEntry)
		}
		reading, err := p.parseEntry(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: sensor %q: %v", ErrMalformedEntry, label, err)
		}
		readings[label] = reading
	}
	return readings, nil
}

func (p *Pipeline) parseEntry(raw json.RawMessage) (models.Reading, error) {
	fields, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	if rawMsg, ok := fields[p.errorKey]; ok {
		if len(fields) != 1 {
			return nil, fmt.Errorf("error entry has %d fields", len(fields))
		}
		var msg string
		if isNull(rawMsg) {
			return nil, fmt.Errorf("%q is null", p.errorKey)
		}
		if err := json.Unmarshal(rawMsg, &msg); err != nil {
			return nil, fmt.Errorf("%q: %v", p.errorKey, err)
		}
		return models.NewReading(nil, &msg), nil
	}

	if len(fields) != 3 {
		return nil, fmt.Errorf("expected fields %q, %q and %q, got %d fields", fieldTemperature, fieldHumidity, fieldHeatIndex, len(fields))
	}
	var m models.Measurement
	for name, dst := range map[string]*float32{
		fieldTemperature: &m.Temperature,
		fieldHumidity:    &m.Humidity,
		fieldHeatIndex:   &m.HeatIndex,
	} {
		v, ok := fields[name]
		if !ok {
			return nil, fmt.Errorf("missing field %q", name)
		}
		if isNull(v) {
			return nil, fmt.Errorf("%q is null", name)
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return nil, fmt.Errorf("%q: %v", name, err)
		}
	}
	return models.NewReading(&m, nil), nil
}

// decodeObject decodes a JSON object, rejecting null and any non-object value.
func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, fmt.Errorf("not a JSON mapping: %.32q", data)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
