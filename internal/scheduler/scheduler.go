// Package scheduler drives the engine's periodic jobs from a single
// cooperative loop: at most one instance of a job runs at a time, missed
// runs coalesce into a single make-up, and runs later than the misfire
// grace are skipped entirely.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coinforge/coinforge/internal/alerts"
	"github.com/coinforge/coinforge/internal/config"
	"github.com/coinforge/coinforge/internal/metrics"
)

// JobStatus is the lifecycle state shown in job statistics.
type JobStatus string

const (
	StatusIdle    JobStatus = "idle"
	StatusRunning JobStatus = "running"
)

// JobSpec declares one scheduled job. Exactly one of Every or DailyAt
// must be set.
type JobSpec struct {
	Name    string
	Every   time.Duration // interval jobs, wall-clock
	DailyAt string        // "HH:MM" in the scheduler's location
	Gated   bool          // skipped while entries are halted or paused
	Fn      func(ctx context.Context) error
}

// JobStats is the per-job execution record.
type JobStats struct {
	Runs    int       `json:"runs"`
	Errors  int       `json:"errors"`
	LastRun time.Time `json:"last_run"`
	NextRun time.Time `json:"next_run"`
	Status  JobStatus `json:"status"`
}

type job struct {
	spec    JobSpec
	dailyH  int
	dailyM  int
	nextRun time.Time
	running bool
	stats   JobStats
}

// Options configure the scheduler.
type Options struct {
	Location     *time.Location
	MisfireGrace time.Duration
	Tick         time.Duration // loop step, defaults to 1s
	// EntriesAllowed gates Gated jobs; nil means always allowed.
	EntriesAllowed func() bool
}

// Scheduler dispatches registered jobs from its Run loop.
type Scheduler struct {
	mu     sync.Mutex
	jobs   []*job
	opts   Options
	alerts *alerts.Manager
	logger zerolog.Logger
	wg     sync.WaitGroup

	now func() time.Time
}

// New creates a scheduler.
func New(opts Options, alertMgr *alerts.Manager, logger zerolog.Logger) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.MisfireGrace <= 0 {
		opts.MisfireGrace = time.Minute
	}
	return &Scheduler{
		opts:   opts,
		alerts: alertMgr,
		logger: logger.With().Str("component", "scheduler").Logger(),
		now:    time.Now,
	}
}

// Add registers a job. Interval jobs first fire one interval after Run
// starts; daily jobs fire at their next local occurrence.
func (s *Scheduler) Add(spec JobSpec) error {
	j := &job{spec: spec, stats: JobStats{Status: StatusIdle}}
	if spec.DailyAt != "" {
		h, m, err := config.ParseClock(spec.DailyAt)
		if err != nil {
			return err
		}
		j.dailyH, j.dailyM = h, m
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, j)
	return nil
}

// Run steps the dispatch loop until the context is cancelled, then waits
// for in-flight jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	now := s.now()
	s.mu.Lock()
	for _, j := range s.jobs {
		j.nextRun = s.firstDeadline(j, now)
		j.stats.NextRun = j.nextRun
	}
	s.mu.Unlock()

	s.logger.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")

	ticker := time.NewTicker(s.opts.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Scheduler stopping, waiting for running jobs")
			s.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			s.step(ctx)
		}
	}
}

// Stats returns a copy of every job's statistics.
func (s *Scheduler) Stats() map[string]JobStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]JobStats, len(s.jobs))
	for _, j := range s.jobs {
		out[j.spec.Name] = j.stats
	}
	return out
}

func (s *Scheduler) step(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if j.running || now.Before(j.nextRun) {
			continue
		}

		lateness := now.Sub(j.nextRun)
		j.nextRun = s.nextDeadline(j, now)
		j.stats.NextRun = j.nextRun

		if lateness > s.opts.MisfireGrace {
			s.logger.Warn().
				Str("job", j.spec.Name).
				Dur("late_by", lateness).
				Msg("Job missed its window beyond the misfire grace, skipping")
			continue
		}

		if j.spec.Gated && s.opts.EntriesAllowed != nil && !s.opts.EntriesAllowed() {
			s.logger.Debug().Str("job", j.spec.Name).Msg("Entries halted, skipping gated job")
			continue
		}

		j.running = true
		j.stats.Status = StatusRunning
		s.wg.Add(1)
		go s.execute(ctx, j)
	}
}

func (s *Scheduler) execute(ctx context.Context, j *job) {
	defer s.wg.Done()

	started := s.now()
	err := j.spec.Fn(ctx)
	elapsed := s.now().Sub(started)

	metrics.JobRunsTotal.WithLabelValues(j.spec.Name).Inc()
	metrics.JobDuration.WithLabelValues(j.spec.Name).Observe(elapsed.Seconds())

	s.mu.Lock()
	j.running = false
	j.stats.Status = StatusIdle
	j.stats.Runs++
	j.stats.LastRun = started
	if err != nil {
		j.stats.Errors++
	}
	s.mu.Unlock()

	if err != nil {
		metrics.JobErrorsTotal.WithLabelValues(j.spec.Name).Inc()
		s.logger.Error().Err(err).Str("job", j.spec.Name).Msg("Job failed")
		if s.alerts != nil {
			s.alerts.SendWarning(ctx, "job failed",
				j.spec.Name+": "+err.Error(),
				map[string]interface{}{"job": j.spec.Name})
		}
		return
	}

	s.logger.Debug().
		Str("job", j.spec.Name).
		Dur("elapsed", elapsed).
		Msg("Job completed")
}

func (s *Scheduler) firstDeadline(j *job, now time.Time) time.Time {
	if j.spec.DailyAt != "" {
		return nextDaily(now.In(s.opts.Location), j.dailyH, j.dailyM)
	}
	return now.Add(j.spec.Every)
}

// nextDeadline advances past now so missed runs collapse into the single
// make-up that already dispatched.
func (s *Scheduler) nextDeadline(j *job, now time.Time) time.Time {
	if j.spec.DailyAt != "" {
		return nextDaily(now.In(s.opts.Location), j.dailyH, j.dailyM)
	}
	next := j.nextRun.Add(j.spec.Every)
	for !next.After(now) {
		next = next.Add(j.spec.Every)
	}
	return next
}

func nextDaily(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
