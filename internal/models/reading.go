package models

import (
	"errors"
	"sort"
	"time"
)

// ErrIllegalReading is the panic value of NewReading when it is given both or neither variant.
var ErrIllegalReading = errors.New("exactly one of measurement or error must be set")

// Measurement holds one successful sensor reading in the sensor's native units.
type Measurement struct {
	Temperature float32 `json:"temperature"`
	Humidity    float32 `json:"humidity"`
	HeatIndex   float32 `json:"heat_index"`
}

// Failure holds the error message a sensor reported instead of a measurement.
type Failure struct {
	Message string `json:"error"`
}

// Reading is the outcome of one sensor for one poll cycle. It is either a
// Measurement or a Failure.
type Reading interface {
	reading()
}

func (Measurement) reading() {}

func (Failure) reading() {}

// NewReading builds a Reading from exactly one of m and errMsg. Passing both
// or neither is a programming error and panics.
func NewReading(m *Measurement, errMsg *string) Reading {
	if (m == nil) == (errMsg == nil) {
		panic(ErrIllegalReading)
	}
	if m != nil {
		return *m
	}
	return Failure{Message: *errMsg}
}

// Snapshot holds every successful measurement of one poll cycle, keyed by sensor label.
type Snapshot struct {
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]Measurement `json:"data"`
}

// NewSnapshot returns an empty snapshot captured at ts.
func NewSnapshot(ts time.Time) Snapshot {
	return Snapshot{
		Timestamp: ts,
		Data:      make(map[string]Measurement),
	}
}

// Labels returns the sensor labels of the snapshot in ascending order.
func (s Snapshot) Labels() []string {
	labels := make([]string, 0, len(s.Data))
	for label := range s.Data {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
