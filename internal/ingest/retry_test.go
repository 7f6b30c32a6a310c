package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ponytojas/dht-logger/internal/metrics"
	"github.com/ponytojas/dht-logger/internal/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTimer struct {
	c      chan time.Time
	pauses []time.Duration
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{c: make(chan time.Time, 1)}
}

func (t *fakeTimer) Start(d time.Duration) {
	t.pauses = append(t.pauses, d)
	t.c <- time.Now()
}

func (t *fakeTimer) Stop() {}

func (t *fakeTimer) C() <-chan time.Time {
	return t.c
}

type scriptedCycle struct {
	errs  []error
	calls int
}

func (c *scriptedCycle) ReadCycle(context.Context) (models.Snapshot, error) {
	c.calls++
	if c.calls <= len(c.errs) {
		return models.Snapshot{}, c.errs[c.calls-1]
	}
	s := models.NewSnapshot(time.Now())
	s.Data["s1"] = models.Measurement{Temperature: 1}
	return s, nil
}

func newTestDriver(c Cycle) (*Driver, *fakeTimer, *metrics.Metrics) {
	m := metrics.NewNop()
	d := NewDriver(c, 0, m, slog.New(slog.NewTextHandler(io.Discard, nil)))
	timer := newFakeTimer()
	d.timer = timer
	return d, timer, m
}

func TestReadWithRetriesExhausted(t *testing.T) {
	errLast := errors.New("last failure")
	cases := []struct {
		desc        string
		maxAttempts int
		attempts    int
	}{
		{desc: "zero attempts", maxAttempts: 0, attempts: 1},
		{desc: "single attempt", maxAttempts: 1, attempts: 1},
		{desc: "three attempts", maxAttempts: 3, attempts: 3},
		{desc: "ten attempts", maxAttempts: 10, attempts: 10},
	}

	for _, tc := range cases {
		errs := make([]error, 20)
		for i := range errs {
			errs[i] = ErrNoData
		}
		errs[tc.attempts-1] = errLast
		cycle := &scriptedCycle{errs: errs}
		d, timer, m := newTestDriver(cycle)

		s, err := d.ReadWithRetries(context.Background(), tc.maxAttempts)
		assert.Equal(t, errLast, err, fmt.Sprintf("%s: expected last error unchanged, got %v", tc.desc, err))
		assert.Nil(t, s.Data, tc.desc)
		assert.Equal(t, tc.attempts, cycle.calls, fmt.Sprintf("%s: expected %d attempts got %d", tc.desc, tc.attempts, cycle.calls))
		require.Len(t, timer.pauses, tc.attempts-1, tc.desc)
		for _, p := range timer.pauses {
			assert.Equal(t, DefaultBackoff, p, tc.desc)
		}
		assert.Equal(t, float64(tc.attempts), testutil.ToFloat64(m.ReadAttempts), tc.desc)
	}
}

func TestReadWithRetriesRecovers(t *testing.T) {
	cycle := &scriptedCycle{errs: []error{ErrNoData, ErrDecode}}
	d, timer, _ := newTestDriver(cycle)

	s, err := d.ReadWithRetries(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, s.Data, 1)
	assert.Equal(t, 3, cycle.calls)
	assert.Len(t, timer.pauses, 2)
}

func TestReadWithRetriesFirstSuccess(t *testing.T) {
	cycle := &scriptedCycle{}
	d, timer, _ := newTestDriver(cycle)

	_, err := d.ReadWithRetries(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, cycle.calls)
	assert.Empty(t, timer.pauses)
}

func TestReadWithRetriesRealPause(t *testing.T) {
	cycle := &scriptedCycle{errs: []error{ErrNoData, ErrNoData}}
	d := NewDriver(cycle, 20*time.Millisecond, metrics.NewNop(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	start := time.Now()
	_, err := d.ReadWithRetries(context.Background(), 2)
	assert.ErrorIs(t, err, ErrNoData)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, 2, cycle.calls)
}

func TestReadWithRetriesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cycle := &scriptedCycle{errs: []error{ErrNoData, ErrNoData, ErrNoData}}
	d := NewDriver(cycle, time.Hour, metrics.NewNop(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := d.ReadWithRetries(ctx, 3)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, cycle.calls)
}
