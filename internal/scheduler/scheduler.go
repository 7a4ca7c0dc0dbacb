// Package scheduler runs discovery and digest jobs on cron schedules inside
// the serve process.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Job is one scheduled invocation.
type Job func(ctx context.Context) error

// Scheduler wraps robfig/cron. A job that is still running when its next tick
// fires is skipped for that tick.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
}

// New creates a Scheduler whose jobs run with ctx.
func New(ctx context.Context) *Scheduler {
	logger := zapLogger{log: zap.L().Sugar().With("component", "scheduler")}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		ctx: ctx,
	}
}

// Add registers job under name with a standard cron spec or descriptor
// ("@daily", "@every 6h"). An empty spec registers nothing and returns false.
func (s *Scheduler) Add(name, spec string, job Job) (bool, error) {
	if spec == "" {
		return false, nil
	}
	_, err := s.cron.AddFunc(spec, func() { s.run(name, job) })
	if err != nil {
		return false, eris.Wrapf(err, "scheduler: add %s (%q)", name, spec)
	}
	zap.L().Info("scheduler: job registered", zap.String("job", name), zap.String("spec", spec))
	return true, nil
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits up to timeout for running jobs to finish.
func (s *Scheduler) Stop(timeout time.Duration) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-time.After(timeout):
		zap.L().Warn("scheduler: timed out waiting for running jobs")
	}
}

func (s *Scheduler) run(name string, job Job) {
	log := zap.L().With(zap.String("job", name))
	start := time.Now()
	log.Info("scheduler: job started")
	if err := job(s.ctx); err != nil {
		log.Error("scheduler: job failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return
	}
	log.Info("scheduler: job complete", zap.Duration("elapsed", time.Since(start)))
}

// zapLogger adapts zap to cron.Logger.
type zapLogger struct {
	log *zap.SugaredLogger
}

func (l zapLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l zapLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
