package ingest

import (
	"context"
	"errors"
)

var (
	// ErrNoData indicates the source produced nothing before its read timeout.
	ErrNoData = errors.New("no data to be read")
	// ErrEmptyPayload indicates a payload that names no sensors.
	ErrEmptyPayload = errors.New("payload contains no sensors")
	// ErrDecode indicates a payload that is not a JSON mapping of sensors.
	ErrDecode = errors.New("sensor payload must be a JSON mapping")
	// ErrMalformedEntry indicates a sensor entry that is neither an error nor a full measurement.
	ErrMalformedEntry = errors.New("malformed sensor entry")
)

// Source yields one raw sensor payload per read. Implementations block for at
// most their configured timeout and return ErrNoData when nothing arrived.
//
//go:generate mockery --name Source --output=./mocks --filename source.go --quiet
type Source interface {
	Read(ctx context.Context) ([]byte, error)
}
