package dispatch_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ponytojas/dht-logger/internal/codec"
	"github.com/ponytojas/dht-logger/internal/dispatch"
	"github.com/ponytojas/dht-logger/internal/dispatch/mocks"
	"github.com/ponytojas/dht-logger/internal/metrics"
	"github.com/ponytojas/dht-logger/internal/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errUnreachable = errors.New("network unreachable")

func snapshot() models.Snapshot {
	s := models.NewSnapshot(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	s.Data["s1"] = models.Measurement{Temperature: 20, Humidity: 50, HeatIndex: 20}
	s.Data["s2"] = models.Measurement{Temperature: 21, Humidity: 51, HeatIndex: 21}
	return s
}

func newSender(t *testing.T, name string, f codec.Format, err error, got *[]byte) *mocks.Sender {
	sender := mocks.NewSender(t)
	sender.On("Name").Return(name).Maybe()
	sender.On("Format").Return(f)
	sender.On("Send", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		if got != nil {
			*got = args.Get(1).([]byte)
		}
	}).Return(err).Once()
	return sender
}

func TestDispatchIsolatesFailures(t *testing.T) {
	s := snapshot()
	var first, last, human []byte
	senders := []dispatch.Sender{
		newSender(t, "udp://10.0.0.1:9000", codec.Compact, nil, &first),
		newSender(t, "udp://10.0.0.2:9000", codec.Compact, errUnreachable, nil),
		newSender(t, "mqtt", codec.Compact, nil, &last),
		newSender(t, "live", codec.Human, nil, &human),
	}
	var out bytes.Buffer
	m := metrics.NewNop()
	d := dispatch.New(false, senders, m, slog.New(slog.NewTextHandler(&out, nil)))

	d.Dispatch(context.Background(), s)

	for desc, payload := range map[string][]byte{"first": first, "last": last} {
		got, err := codec.Unmarshal(codec.Compact, payload)
		require.NoError(t, err, desc)
		assert.Equal(t, s.Data, got.Data, desc)
	}
	got, err := codec.Unmarshal(codec.Human, human)
	require.NoError(t, err)
	assert.Equal(t, s.Data, got.Data)

	assert.Contains(t, out.String(), "Failed to deliver snapshot")
	assert.Contains(t, out.String(), "udp://10.0.0.2:9000")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("udp://10.0.0.2:9000", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("mqtt", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Sensors))
}

func TestDispatchAllFail(t *testing.T) {
	senders := []dispatch.Sender{
		newSender(t, "a", codec.Compact, errUnreachable, nil),
		newSender(t, "b", codec.Compact, errUnreachable, nil),
	}
	d := dispatch.New(true, senders, metrics.NewNop(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.NotPanics(t, func() { d.Dispatch(context.Background(), snapshot()) })
}

func TestDispatchRunsSendersConcurrently(t *testing.T) {
	var inFlight, peak int32
	release := make(chan struct{})
	block := func(args mock.Arguments) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		if n == 2 {
			close(release)
		}
		select {
		case <-release:
		case <-time.After(time.Second):
		}
		atomic.AddInt32(&inFlight, -1)
	}

	var senders []dispatch.Sender
	for _, name := range []string{"slow-a", "slow-b"} {
		sender := mocks.NewSender(t)
		sender.On("Name").Return(name).Maybe()
		sender.On("Format").Return(codec.Compact)
		sender.On("Send", mock.Anything, mock.Anything).Run(block).Return(nil).Once()
		senders = append(senders, sender)
	}
	d := dispatch.New(false, senders, metrics.NewNop(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	d.Dispatch(context.Background(), snapshot())
	assert.Equal(t, int32(2), atomic.LoadInt32(&peak))
}

func TestDispatchLogLevel(t *testing.T) {
	cases := []struct {
		desc    string
		verbose bool
		level   slog.Level
		logged  bool
	}{
		{desc: "verbose at info", verbose: true, level: slog.LevelInfo, logged: true},
		{desc: "quiet at info", verbose: false, level: slog.LevelInfo, logged: false},
		{desc: "quiet at debug", verbose: false, level: slog.LevelDebug, logged: true},
	}

	for _, tc := range cases {
		var out bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: tc.level}))
		d := dispatch.New(tc.verbose, nil, metrics.NewNop(), logger)

		d.Dispatch(context.Background(), snapshot())
		assert.Equal(t, tc.logged, strings.Contains(out.String(), "Received measurement"), fmt.Sprintf("%s: got output %q", tc.desc, out.String()))
		if tc.logged {
			assert.Contains(t, out.String(), "heat_index", tc.desc)
		}
	}
}

type closingSender struct {
	*mocks.Sender
	err    error
	closed bool
}

func (c *closingSender) Close() error {
	c.closed = true
	return c.err
}

func TestClose(t *testing.T) {
	errClose := errors.New("close failed")
	a := &closingSender{Sender: mocks.NewSender(t)}
	b := &closingSender{Sender: mocks.NewSender(t), err: errClose}
	plain := mocks.NewSender(t)
	d := dispatch.New(false, []dispatch.Sender{a, plain, b}, metrics.NewNop(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := d.Close()
	assert.ErrorIs(t, err, errClose)
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}
