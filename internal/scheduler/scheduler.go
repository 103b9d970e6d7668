// Package scheduler runs the periodic "apply changes" batch job.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one batch run. The context is cancelled when the scheduler stops.
type Job func(ctx context.Context) error

// Scheduler runs a Job on a cron schedule. Runs never overlap: a tick that arrives while
// the previous run is still going is skipped.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// New parses schedule (five fields or a descriptor such as "@hourly") and registers job.
func New(schedule string, job Job, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{ctx: ctx, cancel: cancel, logger: logger}

	cronLogger := slogAdapter{logger}
	s.cron = cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	if _, err := s.cron.AddFunc(schedule, func() { s.run(job) }); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) run(job Job) {
	started := time.Now()
	s.logger.Info("scheduled run started")
	if err := job(s.ctx); err != nil {
		s.logger.Error("scheduled run failed", "error", err, "duration", time.Since(started))
		return
	}
	s.logger.Info("scheduled run finished", "duration", time.Since(started))
}

// Start begins running the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule, cancels a running job and waits for it to return or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// slogAdapter satisfies cron.Logger
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Info(msg string, keysAndValues ...any) {
	a.logger.Debug("cron: "+msg, keysAndValues...)
}

func (a slogAdapter) Error(err error, msg string, keysAndValues ...any) {
	a.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
