// Package scheduler runs the periodic collection and reporting jobs.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Job is one periodic task. A run error is logged and the loop keeps
// ticking.
type Job struct {
	Name     string
	Interval time.Duration // zero or negative disables the job
	Run      func(ctx context.Context) error
}

// Scheduler drives a set of jobs on independent tickers.
type Scheduler struct {
	jobs []Job
}

// New creates a scheduler with the given jobs.
func New(jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs}
}

// Start launches one goroutine per enabled job. The goroutines stop when
// ctx is cancelled. Jobs do not fire immediately on start; the first run
// happens after one interval.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		if job.Interval <= 0 {
			slog.Info("scheduled job disabled", "job", job.Name)
			continue
		}
		go s.loop(ctx, job)
	}
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	slog.Info("scheduled job started", "job", job.Name, "interval", job.Interval)
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduled job stopped", "job", job.Name)
			return
		case <-ticker.C:
			start := time.Now()
			if err := job.Run(ctx); err != nil {
				slog.Error("scheduled job failed", "job", job.Name, "err", err)
				continue
			}
			slog.Info("scheduled job finished", "job", job.Name, "elapsed", time.Since(start))
		}
	}
}
