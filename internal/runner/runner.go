// Package runner assembles the watches of a configuration into a running
// tool and owns its lifecycle.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mickyco94/automate/internal/config"
	"github.com/mickyco94/automate/internal/console"
	"github.com/mickyco94/automate/internal/executor"
	"github.com/mickyco94/automate/internal/lock"
	"github.com/mickyco94/automate/internal/supervisor"
	"github.com/mickyco94/automate/internal/watcher"
	"github.com/sirupsen/logrus"
)

var shutdownDelay = time.Second * 5

// Options are the process level collaborators of a Runner
type Options struct {
	// Out receives the console, stdout if nil
	Out io.Writer
	// LockDir holds the lock files, the OS temp directory if empty
	LockDir string
}

type Runner struct {
	cfg     *config.Raw
	console *console.Console
	logger  logrus.FieldLogger

	supervisor *supervisor.Supervisor
	file       watcher.Source
	cron       *watcher.Cron
}

// New builds every component for cfg, which must already be validated
func New(cfg *config.Raw, opts Options) (*Runner, error) {
	reporter := console.New(console.Options{
		Out:        opts.Out,
		Trace:      cfg.TraceFlag,
		ShowInfo:   cfg.ShowInfo,
		ClearAfter: cfg.ClearAfter(),
	})
	logger := reporter.Logger()

	serial := executor.NewSerial(
		lock.New(logger, opts.LockDir, cfg.LockName),
		executor.NewProcess(reporter, executor.NewExpander()),
		reporter,
		cfg.LockWait(),
	)

	sup, err := supervisor.New(cfg.Watches, serial, reporter, supervisor.Options{
		Strategy:    cfg.Strategy,
		Quiet:       cfg.Quiet(),
		MinInterval: cfg.Interval(),
	})
	if err != nil {
		return nil, err
	}

	file, err := watcher.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("cannot create file watcher: %w", err)
	}

	return &Runner{
		cfg:        cfg,
		console:    reporter,
		logger:     logger,
		supervisor: sup,
		file:       file,
		cron:       watcher.NewCron(logger),
	}, nil
}

// Run watches until quit is read from in, SIGINT/SIGTERM is received or ctx
// is done. Running commands are cancelled on the way out.
func (runner *Runner) Run(ctx context.Context, in io.Reader) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner.register()

	fileFailed := make(chan error, 1)
	go func() {
		err := runner.file.Run()
		if err != nil {
			fileFailed <- err
		}
	}()

	go func() {
		_ = runner.cron.Run()
	}()

	superCtx, cancelSuper := context.WithCancel(context.Background())
	superDone := make(chan struct{})
	go func() {
		defer close(superDone)
		err := runner.supervisor.Run(superCtx)
		if err != nil {
			runner.logger.WithError(err).Error("Supervisor failed")
		}
	}()

	quit := make(chan struct{})
	go func() {
		err := runner.supervisor.Control(ctx, in)
		switch {
		case err == nil:
			if ctx.Err() == nil {
				close(quit)
			}
		case errors.Is(err, io.EOF):
			runner.logger.Debug("Console input closed, waiting for a signal to quit")
		default:
			runner.logger.WithError(err).Warn("Cannot read console input")
		}
	}()

	runner.supervisor.TriggerAll()

	var err error
	select {
	case <-ctx.Done():
		runner.logger.Debug("Received signal, shutting down")
	case <-quit:
		runner.logger.Debug("Quit requested, shutting down")
	case err = <-fileFailed:
		runner.logger.WithError(err).Error("File watcher failed unexpectedly, shutting down")
	}

	cancelSuper()
	runner.shutdown(superDone)

	return err
}

// register subscribes every watch to the notification sources. A watch whose
// paths cannot be observed is reported and the others carry on.
func (runner *Runner) register() {
	for i := range runner.cfg.Watches {
		watch := &runner.cfg.Watches[i]
		log := runner.logger.WithField("watch", watch.Name)

		notify := func(path string) {
			runner.console.Message(console.LevelTrace, 0,
				fmt.Sprintf("%s '%s' changed.", watch.Name, path))
			runner.supervisor.Notify(i)
		}

		err := runner.file.HandleFunc(watch, notify)
		if err != nil {
			runner.console.Message(console.LevelError, 0,
				fmt.Sprintf("%s: %v", watch.Name, err))
		}

		err = runner.cron.HandleFunc(watch, notify)
		if err != nil {
			log.WithError(err).Error("Cannot schedule watch")
		}

		log.WithField("paths", watch.Paths).Debug("Watch registered")
	}

	runner.supervisor.Menu()
}

func (runner *Runner) shutdown(superDone <-chan struct{}) {
	wg := &sync.WaitGroup{}
	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownDelay)
	defer done()

	wg.Add(1)
	go func() {
		defer wg.Done()

		err := runner.file.Stop(shutdownCtx)
		if err != nil && !errors.Is(err, watcher.ErrNotRunning) {
			runner.logger.WithError(err).Error("File watcher failed to shutdown")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

		err := runner.cron.Stop(shutdownCtx)
		if err != nil {
			runner.logger.WithError(err).Error("Cron failed to shutdown")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

		select {
		case <-superDone:
		case <-shutdownCtx.Done():
			runner.logger.Error("Running commands failed to shutdown")
		}
	}()

	wg.Wait()
}
