// Package codec converts snapshots between the human-readable JSON form used
// for logs and live views, and the compact parallel-array form sent to remote
// listeners.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ponytojas/dht-logger/internal/models"
)

// Format selects the representation a sink expects.
type Format int

const (
	// Human is the label-keyed JSON form of a snapshot.
	Human Format = iota
	// Compact is the parallel-array wire form of a snapshot.
	Compact
)

var (
	// ErrDecode indicates the payload is not a valid snapshot document.
	ErrDecode = errors.New("unable to decode snapshot")
	// ErrInconsistent indicates the compact sequences are not index-aligned.
	ErrInconsistent = errors.New("inconsistent compact snapshot")
	// ErrInvalidLabel indicates an empty or repeated sensor label.
	ErrInvalidLabel = errors.New("invalid sensor label")

	errUnknownFormat    = errors.New("unknown snapshot format")
	errMissingTimestamp = errors.New("missing timestamp")
)

func (f Format) String() string {
	switch f {
	case Human:
		return "human"
	case Compact:
		return "compact"
	default:
		return "unknown"
	}
}

// Wire is the compact form of a snapshot. Index i of every sequence refers to
// the same sensor.
type Wire struct {
	Timestamp   time.Time `json:"timestamp"`
	Labels      []string  `json:"labels"`
	Temperature []float32 `json:"temperature"`
	Humidity    []float32 `json:"humidity"`
	HeatIndex   []float32 `json:"heat_index"`
}

// Encode projects the snapshot into parallel sequences ordered by label.
func Encode(s models.Snapshot) Wire {
	labels := s.Labels()
	w := Wire{
		Timestamp:   s.Timestamp,
		Labels:      labels,
		Temperature: make([]float32, len(labels)),
		Humidity:    make([]float32, len(labels)),
		HeatIndex:   make([]float32, len(labels)),
	}
	for i, label := range labels {
		m := s.Data[label]
		w.Temperature[i] = m.Temperature
		w.Humidity[i] = m.Humidity
		w.HeatIndex[i] = m.HeatIndex
	}
	return w
}

// Decode zips the sequences of w back into a snapshot. Sequences of differing
// length, empty labels and repeated labels are rejected as a whole.
func Decode(w Wire) (models.Snapshot, error) {
	n := len(w.Labels)
	if len(w.Temperature) != n || len(w.Humidity) != n || len(w.HeatIndex) != n {
		return models.Snapshot{}, fmt.Errorf("%w: %d labels, %d temperatures, %d humidities, %d heat indexes",
			ErrInconsistent, n, len(w.Temperature), len(w.Humidity), len(w.HeatIndex))
	}

	data := make(map[string]models.Measurement, n)
	for i, label := range w.Labels {
		if label == "" {
			return models.Snapshot{}, fmt.Errorf("%w: empty label at index %d", ErrInvalidLabel, i)
		}
		if _, ok := data[label]; ok {
			return models.Snapshot{}, fmt.Errorf("%w: duplicate label %q", ErrInvalidLabel, label)
		}
		data[label] = models.Measurement{
			Temperature: w.Temperature[i],
			Humidity:    w.Humidity[i],
			HeatIndex:   w.HeatIndex[i],
		}
	}

	return models.Snapshot{Timestamp: w.Timestamp, Data: data}, nil
}

// Marshal serializes the snapshot in the given format.
func Marshal(f Format, s models.Snapshot) ([]byte, error) {
	switch f {
	case Human:
		if s.Data == nil {
			s.Data = map[string]models.Measurement{}
		}
		return json.Marshal(s)
	case Compact:
		return json.Marshal(Encode(s))
	default:
		return nil, fmt.Errorf("%w: %d", errUnknownFormat, f)
	}
}

// Unmarshal parses a payload produced by Marshal with the same format.
func Unmarshal(f Format, payload []byte) (models.Snapshot, error) {
	switch f {
	case Human:
		var doc struct {
			Timestamp *time.Time                     `json:"timestamp"`
			Data      map[string]*models.Measurement `json:"data"`
		}
		if err := json.Unmarshal(payload, &doc); err != nil {
			return models.Snapshot{}, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		if doc.Timestamp == nil {
			return models.Snapshot{}, fmt.Errorf("%w: %v", ErrDecode, errMissingTimestamp)
		}
		s := models.NewSnapshot(*doc.Timestamp)
		for label, m := range doc.Data {
			if label == "" {
				return models.Snapshot{}, fmt.Errorf("%w: empty label", ErrInvalidLabel)
			}
			if m == nil {
				return models.Snapshot{}, fmt.Errorf("%w: sensor %q has no measurement", ErrDecode, label)
			}
			s.Data[label] = *m
		}
		return s, nil
	case Compact:
		var doc struct {
			Wire
			Timestamp *time.Time `json:"timestamp"`
		}
		if err := json.Unmarshal(payload, &doc); err != nil {
			return models.Snapshot{}, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		if doc.Timestamp == nil {
			return models.Snapshot{}, fmt.Errorf("%w: %v", ErrDecode, errMissingTimestamp)
		}
		doc.Wire.Timestamp = *doc.Timestamp
		return Decode(doc.Wire)
	default:
		return models.Snapshot{}, fmt.Errorf("%w: %d", errUnknownFormat, f)
	}
}
