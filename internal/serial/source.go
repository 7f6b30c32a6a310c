// Package serial reads newline-delimited sensor payloads from a serial port.
package serial

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ponytojas/dht-logger/internal/ingest"
	dlog "github.com/ponytojas/dht-logger/internal/logger"
	"go.bug.st/serial"
)

const (
	// DefaultBufferSize is the largest payload accepted from the port.
	DefaultBufferSize = 1024
	// DefaultTimeout bounds a single read from the port.
	DefaultTimeout = 4 * time.Second
)

// ErrFrameTooLarge indicates a payload larger than the configured buffer.
var ErrFrameTooLarge = errors.New("payload exceeds read buffer")

var _ ingest.Source = (*Source)(nil)

type port interface {
	Read(p []byte) (int, error)
	Close() error
}

// Config holds the serial link parameters.
type Config struct {
	Port       string
	Baud       int
	Timeout    time.Duration
	BufferSize int
}

// Source reads sensor payloads from a serial port. It is not safe for
// concurrent use; the poll loop owns it exclusively.
type Source struct {
	port    port
	name    string
	size    int
	chunk   []byte
	pending []byte
	logger  *slog.Logger
}

// Open opens and configures the serial port described by cfg.
func Open(cfg Config, logger *slog.Logger) (*Source, error) {
	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", cfg.Port, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if err := p.SetReadTimeout(timeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", cfg.Port, err)
	}

	ctx := context.Background()
	dlog.Trace(ctx, logger, "Serial port opened",
		slog.String("port", cfg.Port),
		slog.Int("baud", mode.BaudRate),
		slog.Int("data_bits", mode.DataBits),
		slog.Int("parity", int(mode.Parity)),
		slog.Int("stop_bits", int(mode.StopBits)),
		slog.Duration("timeout", timeout),
	)

	return newSource(p, cfg.Port, cfg.BufferSize, logger), nil
}

func newSource(p port, name string, size int, logger *slog.Logger) *Source {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Source{
		port:   p,
		name:   name,
		size:   size,
		chunk:  make([]byte, size+1),
		logger: logger,
	}
}

// Name returns the name of the serial port.
func (s *Source) Name() string {
	return s.name
}

// Read returns the next payload. A payload ends at a newline, or at the read
// timeout when the bytes received so far form a complete JSON value. A
// timeout with nothing usable returns ingest.ErrNoData and keeps any partial
// payload for the next call.
func (s *Source) Read(ctx context.Context) ([]byte, error) {
	for {
		if frame, ok := s.nextLine(); ok {
			if len(frame) == 0 {
				continue
			}
			return frame, nil
		}
		// A full buffer still leaves room for the terminating newline.
		if len(s.pending) > s.size {
			s.pending = nil
			return nil, fmt.Errorf("%w: more than %d bytes without a newline", ErrFrameTooLarge, s.size)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := s.port.Read(s.chunk[:s.size+1-len(s.pending)])
		if err != nil {
			return nil, fmt.Errorf("failed to read from %s: %w", s.name, err)
		}
		if n == 0 {
			frame := bytes.TrimSpace(s.pending)
			if len(frame) > 0 && json.Valid(frame) {
				s.pending = nil
				return frame, nil
			}
			return nil, ingest.ErrNoData
		}
		s.pending = append(s.pending, s.chunk[:n]...)
	}
}

func (s *Source) nextLine() ([]byte, bool) {
	i := bytes.IndexByte(s.pending, '\n')
	if i < 0 {
		return nil, false
	}
	frame := bytes.TrimSpace(s.pending[:i])
	out := make([]byte, len(frame))
	copy(out, frame)
	s.pending = append(s.pending[:0], s.pending[i+1:]...)
	return out, true
}

// Close closes the serial port.
func (s *Source) Close() error {
	return s.port.Close()
}
