package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinforge/coinforge/internal/alerts"
)

func newTestScheduler(entriesAllowed func() bool) *Scheduler {
	return New(Options{
		Tick:           time.Millisecond,
		MisfireGrace:   time.Minute,
		EntriesAllowed: entriesAllowed,
	}, nil, zerolog.Nop())
}

func runFor(t *testing.T, s *Scheduler, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIntervalJobRunsRepeatedly(t *testing.T) {
	var runs atomic.Int64
	s := newTestScheduler(nil)
	require.NoError(t, s.Add(JobSpec{
		Name:  "data_collection",
		Every: 10 * time.Millisecond,
		Fn: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}))

	runFor(t, s, 100*time.Millisecond)
	assert.GreaterOrEqual(t, runs.Load(), int64(3))

	stats := s.Stats()["data_collection"]
	assert.GreaterOrEqual(t, stats.Runs, 3)
	assert.Zero(t, stats.Errors)
	assert.Equal(t, StatusIdle, stats.Status)
	assert.False(t, stats.LastRun.IsZero())
}

func TestSingleInstancePerJob(t *testing.T) {
	var concurrent, peak atomic.Int64
	s := newTestScheduler(nil)
	require.NoError(t, s.Add(JobSpec{
		Name:  "slow",
		Every: 5 * time.Millisecond,
		Fn: func(context.Context) error {
			if c := concurrent.Add(1); c > peak.Load() {
				peak.Store(c)
			}
			time.Sleep(30 * time.Millisecond)
			concurrent.Add(-1)
			return nil
		},
	}))

	runFor(t, s, 120*time.Millisecond)
	assert.Equal(t, int64(1), peak.Load())
}

func TestJobErrorIsCountedAndAlerted(t *testing.T) {
	capture := &captureAlerter{}
	s := New(Options{Tick: time.Millisecond}, alerts.NewManager(zerolog.Nop(), capture), zerolog.Nop())
	require.NoError(t, s.Add(JobSpec{
		Name:  "failing",
		Every: 10 * time.Millisecond,
		Fn: func(context.Context) error {
			return errors.New("boom")
		},
	}))

	runFor(t, s, 50*time.Millisecond)

	stats := s.Stats()["failing"]
	assert.Greater(t, stats.Errors, 0)
	assert.Equal(t, stats.Runs, stats.Errors)
	require.NotEmpty(t, capture.alerts)
	assert.Equal(t, alerts.SeverityWarning, capture.alerts[0].Severity)
}

func TestGatedJobSkippedWhileHalted(t *testing.T) {
	var buyRuns, riskRuns atomic.Int64
	s := newTestScheduler(func() bool { return false })
	require.NoError(t, s.Add(JobSpec{
		Name:  "buy_execution",
		Every: 10 * time.Millisecond,
		Gated: true,
		Fn: func(context.Context) error {
			buyRuns.Add(1)
			return nil
		},
	}))
	require.NoError(t, s.Add(JobSpec{
		Name:  "risk_check",
		Every: 10 * time.Millisecond,
		Fn: func(context.Context) error {
			riskRuns.Add(1)
			return nil
		},
	}))

	runFor(t, s, 80*time.Millisecond)
	assert.Zero(t, buyRuns.Load(), "gated job must not run while halted")
	assert.Greater(t, riskRuns.Load(), int64(0), "ungated jobs keep running")
}

func TestMisfireBeyondGraceIsSkipped(t *testing.T) {
	var runs atomic.Int64
	s := New(Options{
		Tick:         time.Millisecond,
		MisfireGrace: time.Minute,
	}, nil, zerolog.Nop())
	require.NoError(t, s.Add(JobSpec{
		Name:  "late",
		Every: time.Hour,
		Fn: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}))

	// Deadline missed by more than the grace: the run is skipped and the
	// next deadline lands in the future
	now := time.Now()
	s.jobs[0].nextRun = now.Add(-5 * time.Minute)
	s.step(context.Background())
	s.wg.Wait()

	assert.Zero(t, runs.Load())
	assert.True(t, s.jobs[0].nextRun.After(now))

	// Missed within the grace: the single make-up run dispatches
	s.jobs[0].nextRun = now.Add(-30 * time.Second)
	s.step(context.Background())
	s.wg.Wait()

	assert.Equal(t, int64(1), runs.Load())
}

func TestAddRejectsBadClock(t *testing.T) {
	s := newTestScheduler(nil)
	err := s.Add(JobSpec{Name: "daily", DailyAt: "25:99"})
	assert.Error(t, err)
}

func TestNextDaily(t *testing.T) {
	loc := time.UTC
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, loc)

	next := nextDaily(now, 0, 30)
	assert.Equal(t, time.Date(2025, 6, 2, 0, 30, 0, 0, loc), next)

	next = nextDaily(now, 23, 0)
	assert.Equal(t, time.Date(2025, 6, 1, 23, 0, 0, 0, loc), next)
}

type captureAlerter struct {
	alerts []alerts.Alert
}

func (c *captureAlerter) Send(_ context.Context, alert alerts.Alert) error {
	c.alerts = append(c.alerts, alert)
	return nil
}
