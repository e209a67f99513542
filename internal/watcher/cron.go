package watcher

import (
	"context"

	"github.com/mickyco94/automate/internal/config"
	internal "github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Cron is a decorator of the cron lib
// this allows the `HandleFunc(watch, handler)` pattern shared by the file
// sources to be used for scheduled triggers
type Cron struct {
	inner *internal.Cron
}

// NewCron constructs a new cron schedule watcher
func NewCron(logger logrus.FieldLogger) *Cron {
	return &Cron{
		inner: internal.New(
			internal.WithParser(config.ScheduleParser),
			internal.WithLogger(cronLogger{logger}),
		),
	}
}

// HandleFunc registers handler to be called on the watch's schedule.
// Watches without a schedule are ignored.
func (cron *Cron) HandleFunc(watch *config.Watch, handler func(path string)) error {
	if watch.Schedule == "" {
		return nil
	}

	schedule := watch.Schedule
	_, err := cron.inner.AddFunc(schedule, func() { handler("schedule " + schedule) })
	return err
}

// Run runs the scheduler on the calling goroutine until Stop is called
func (cron *Cron) Run() error {
	cron.inner.Run()
	return nil
}

// Stop shuts down the cron watcher and attempts to wait for any currently
// running functions attached to the scheduler to exit before the provided
// context is done.
func (cron *Cron) Stop(ctx context.Context) error {
	runningJobsCtx := cron.inner.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-runningJobsCtx.Done():
		return nil
	}
}

// cronLogger routes scheduler diagnostics to logrus
type cronLogger struct {
	logger logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithError(err).WithFields(fields(keysAndValues)).Error(msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		f[key] = keysAndValues[i+1]
	}
	return f
}
