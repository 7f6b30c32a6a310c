// Package dht reads a DHT sensor wired to a local GPIO pin and renders the
// result as the same raw JSON payload a serial sensor board emits.
package dht

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/MichaelS11/go-dht"
	"github.com/ponytojas/dht-logger/internal/ingest"
)

// DefaultRetries is the number of GPIO read retries per payload.
const DefaultRetries = 11

var _ ingest.Source = (*Source)(nil)

type sensor interface {
	ReadRetry(maxRetries int) (humidity float64, temperature float64, err error)
}

// Config describes the locally attached sensor.
type Config struct {
	Pin        string
	Label      string
	SensorType string
	ErrorKey   string
}

// Source reads one local DHT sensor.
type Source struct {
	sensor   sensor
	label    string
	errorKey string
	logger   *slog.Logger
}

// Open initializes the host GPIO and the sensor on cfg.Pin.
func Open(cfg Config, logger *slog.Logger) (*Source, error) {
	if err := dht.HostInit(); err != nil {
		return nil, fmt.Errorf("failed to initialize GPIO host: %w", err)
	}
	d, err := dht.NewDHT(cfg.Pin, dht.Celsius, cfg.SensorType)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sensor on pin %s: %w", cfg.Pin, err)
	}
	logger.Info("DHT sensor initialized", slog.String("pin", cfg.Pin), slog.String("label", cfg.Label))
	return newSource(d, cfg, logger), nil
}

func newSource(s sensor, cfg Config, logger *slog.Logger) *Source {
	if cfg.ErrorKey == "" {
		cfg.ErrorKey = ingest.DefaultErrorKey
	}
	return &Source{
		sensor:   s,
		label:    cfg.Label,
		errorKey: cfg.ErrorKey,
		logger:   logger,
	}
}

// Name returns the label of the sensor.
func (s *Source) Name() string {
	return s.label
}

// Read takes one reading. A sensor failure becomes an error entry in the
// payload rather than a read error, as a sensor board would report it.
func (s *Source) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	humidity, temperature, err := s.sensor.ReadRetry(DefaultRetries)
	if err != nil {
		return json.Marshal(map[string]map[string]string{
			s.label: {s.errorKey: err.Error()},
		})
	}

	return json.Marshal(map[string]map[string]float64{
		s.label: {
			"t":  round(temperature),
			"h":  round(humidity),
			"hi": round(HeatIndex(temperature, humidity)),
		},
	})
}

// Close is a no-op; the GPIO pin needs no release.
func (s *Source) Close() error {
	return nil
}

// HeatIndex returns the apparent temperature in Celsius for a temperature in
// Celsius and a relative humidity in percent, using the NOAA regression.
func HeatIndex(celsius, humidity float64) float64 {
	t := celsius*1.8 + 32
	hi := 0.5 * (t + 61.0 + ((t - 68.0) * 1.2) + (humidity * 0.094))
	if hi > 79 {
		hi = -42.379 +
			2.04901523*t +
			10.14333127*humidity -
			0.22475541*t*humidity -
			0.00683783*t*t -
			0.05481717*humidity*humidity +
			0.00122874*t*t*humidity +
			0.00085282*t*humidity*humidity -
			0.00000199*t*t*humidity*humidity

		switch {
		case humidity < 13 && t >= 80 && t <= 112:
			hi -= ((13 - humidity) * 0.25) * math.Sqrt((17-math.Abs(t-95))*0.05882)
		case humidity > 85 && t >= 80 && t <= 87:
			hi += ((humidity - 85) * 0.1) * ((87 - t) * 0.2)
		}
	}
	return (hi - 32) / 1.8
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}
