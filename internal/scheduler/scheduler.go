// Package scheduler runs periodic maintenance jobs on a cron schedule.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job is a unit of scheduled work.
type Job interface {
	Run(ctx context.Context) error
	Name() string
}

// Scheduler manages background jobs
type Scheduler struct {
	cron    *cron.Cron
	log     *logrus.Entry
	timeout time.Duration
}

// New creates a scheduler. Each job run gets its own context bounded by
// timeout.
func New(log *logrus.Logger, timeout time.Duration) *Scheduler {
	entry := log.WithField("component", "scheduler")
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger{entry}),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{entry})),
		),
		log:     entry,
		timeout: timeout,
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("Scheduler started")
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("Scheduler stopped")
}

// AddJob registers a job. Schedules use the standard five-field cron syntax
// or descriptors such as "@daily" and "@every 10m".
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if err := s.RunNow(job); err != nil {
			s.log.WithError(err).WithField("job", job.Name()).Error("Job failed")
		}
	})
	if err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"schedule": schedule,
		"job":      job.Name(),
	}).Info("Job registered")
	return nil
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(job Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	s.log.WithField("job", job.Name()).Debug("Running job")
	if err := job.Run(ctx); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"job":      job.Name(),
		"duration": time.Since(start).String(),
	}).Debug("Job completed")
	return nil
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct {
	entry *logrus.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithError(err).WithFields(fields(keysAndValues)).Error(msg)
}

func fields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			f[k] = kv[i+1]
		}
	}
	return f
}
