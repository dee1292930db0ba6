package sched

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a unit of periodic work.
type Job interface {
	Name() string
	RunOnce(ctx context.Context) error
}

// Scheduler runs jobs on cron schedules. Panics inside a job are recovered and
// logged; runs of the same job never overlap.
type Scheduler struct {
	cron       *cron.Cron
	ctx        context.Context
	cancel     context.CancelFunc
	jobTimeout time.Duration
	log        *zerolog.Logger
}

func NewScheduler(jobTimeout time.Duration, logger *zerolog.Logger) *Scheduler {
	l := logger.With().Str("component", "Scheduler").Logger()
	if jobTimeout <= 0 {
		jobTimeout = 5 * time.Minute
	}
	cl := cronLogger{log: &l}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)), cron.WithLogger(cl)),
		ctx:        ctx,
		cancel:     cancel,
		jobTimeout: jobTimeout,
		log:        &l,
	}
}

// Add registers job under a cron expression. Standard 5-field expressions and
// descriptors such as "@every 5m" are accepted.
func (s *Scheduler) Add(expr string, job Job) error {
	if _, err := s.cron.AddFunc(expr, func() { s.run(job) }); err != nil {
		return fmt.Errorf("schedule %s %q: %w", job.Name(), expr, err)
	}
	s.log.Info().Str("job", job.Name()).Str("schedule", expr).Msg("job scheduled")
	return nil
}

func (s *Scheduler) run(job Job) {
	ctx, cancel := context.WithTimeout(s.ctx, s.jobTimeout)
	defer cancel()
	start := time.Now()
	err := job.RunOnce(ctx)
	ev := s.log.Debug()
	if err != nil {
		ev = s.log.Error().Err(err)
	}
	ev.Str("job", job.Name()).Dur("duration", time.Since(start)).Msg("job finished")
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop cancels in-flight jobs and waits for them to return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{ log *zerolog.Logger }

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.log.Debug().Fields(kv).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.log.Error().Err(err).Fields(kv).Msg(msg)
}
