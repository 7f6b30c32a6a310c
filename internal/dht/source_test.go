package dht

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/ponytojas/dht-logger/internal/ingest"
	"github.com/ponytojas/dht-logger/internal/metrics"
	"github.com/ponytojas/dht-logger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSensor struct {
	humidity    float64
	temperature float64
	err         error
	retries     int
}

func (s *fakeSensor) ReadRetry(maxRetries int) (float64, float64, error) {
	s.retries = maxRetries
	return s.humidity, s.temperature, s.err
}

func TestHeatIndex(t *testing.T) {
	cases := []struct {
		desc     string
		celsius  float64
		humidity float64
		expected float64
	}{
		{desc: "mild and dry", celsius: 20, humidity: 50, expected: 19.36},
		{desc: "hot and humid", celsius: 32, humidity: 70, expected: 40.4},
		{desc: "hot and very dry", celsius: 35, humidity: 10, expected: 31.9},
	}

	for _, tc := range cases {
		got := HeatIndex(tc.celsius, tc.humidity)
		assert.InDelta(t, tc.expected, got, 0.5, fmt.Sprintf("%s: expected %.2f got %.2f", tc.desc, tc.expected, got))
	}
}

func TestReadFeedsPipeline(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := newSource(&fakeSensor{humidity: 50, temperature: 20}, Config{Label: "greenhouse"}, logger)

	p := ingest.NewPipeline(s, "", metrics.NewNop(), logger)
	snap, err := p.ReadCycle(context.Background())
	require.NoError(t, err)
	require.Contains(t, snap.Data, "greenhouse")
	m := snap.Data["greenhouse"]
	assert.Equal(t, float32(20), m.Temperature)
	assert.Equal(t, float32(50), m.Humidity)
	assert.InDelta(t, 19.36, m.HeatIndex, 0.01)
}

func TestReadSensorFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fs := &fakeSensor{err: errors.New("checksum mismatch")}
	s := newSource(fs, Config{Label: "greenhouse"}, logger)

	payload, err := s.Read(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"greenhouse":{"error":"checksum mismatch"}}`, string(payload))
	assert.Equal(t, DefaultRetries, fs.retries)

	p := ingest.NewPipeline(s, "", metrics.NewNop(), logger)
	readings, err := p.Parse(payload)
	require.NoError(t, err)
	assert.Equal(t, models.Failure{Message: "checksum mismatch"}, readings["greenhouse"])
}

func TestReadCustomErrorKey(t *testing.T) {
	s := newSource(&fakeSensor{err: errors.New("timeout")}, Config{Label: "x", ErrorKey: "e"}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	payload, err := s.Read(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":{"e":"timeout"}}`, string(payload))
	assert.Equal(t, "x", s.Name())
}
