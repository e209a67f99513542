// Package supervisor owns the configured watches and decides when each of
// them runs, from file notifications, schedules or console commands.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mickyco94/automate/internal/config"
	"github.com/mickyco94/automate/internal/console"
	"github.com/mickyco94/automate/internal/debounce"
	"github.com/mickyco94/automate/internal/executor"
)

// DefaultMinInterval is the shortest time between two runs of the same
// watch under the shared strategy
const DefaultMinInterval = time.Second

var (
	ErrNoSuchWatch    = errors.New("no such watch")
	ErrAlreadyRunning = errors.New("supervisor already running")
)

// Options configures a Supervisor
type Options struct {
	Strategy    config.Strategy
	Quiet       time.Duration
	MinInterval time.Duration
}

// scheduler is the strategy deciding which watch runs next
type scheduler interface {
	// notify marks watch i pending and wakes whoever waits for it
	notify(i int)
	// run blocks scheduling watches until ctx is done
	run(ctx context.Context)
}

// Supervisor routes triggers to the watches and runs them on the executor
type Supervisor struct {
	watches  []*config.Watch
	executor executor.Executor
	reporter console.Reporter

	scheduler scheduler
	running   atomic.Bool
}

// New creates a supervisor for watches, in registration order
func New(
	watches []config.Watch,
	exec executor.Executor,
	reporter console.Reporter,
	opts Options) (*Supervisor, error) {

	if len(watches) == 0 {
		return nil, config.ErrInvalid.New("no watches defined")
	}

	if opts.Quiet <= 0 {
		opts.Quiet = debounce.DefaultQuiet
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultMinInterval
	}

	s := &Supervisor{
		executor: exec,
		reporter: reporter,
	}
	for i := range watches {
		s.watches = append(s.watches, &watches[i])
	}

	switch opts.Strategy {
	case config.Shared:
		s.scheduler = newShared(s, opts.Quiet, opts.MinInterval)
	case config.Independent, "":
		s.scheduler = newIndependent(s, opts.Quiet)
	default:
		return nil, config.ErrInvalid.New("unknown strategy %q", opts.Strategy)
	}

	return s, nil
}

// Len returns the number of watches
func (s *Supervisor) Len() int { return len(s.watches) }

// Notify marks the watch at the 0-based index as changed. It never blocks
// and is safe to call from notification callbacks.
func (s *Supervisor) Notify(index int) {
	if index < 0 || index >= len(s.watches) {
		return
	}
	s.scheduler.notify(index)
}

// TriggerAll marks every watch as pending
func (s *Supervisor) TriggerAll() {
	for i := range s.watches {
		s.scheduler.notify(i)
	}
}

// Trigger marks the watch with the 1-based number n as pending, 0 triggers
// every watch
func (s *Supervisor) Trigger(n int) error {
	if n == 0 {
		s.TriggerAll()
		return nil
	}
	if n < 0 || n > len(s.watches) {
		return fmt.Errorf("%w: %d", ErrNoSuchWatch, n)
	}
	s.scheduler.notify(n - 1)
	return nil
}

// Run schedules the watches until ctx is done
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	s.scheduler.run(ctx)
	return nil
}

// Menu prints the console commands
func (s *Supervisor) Menu() {
	s.reporter.Message(console.LevelStatus, 0, "'q'->quit")
	s.reporter.Message(console.LevelStatus, 0, "'0' or enter->run all.")
	for i, w := range s.watches {
		s.reporter.Message(console.LevelStatus, 0, fmt.Sprintf("'%d' run %s", i+1, w.Name))
	}
}

// execute runs watch i, a panic is reported and never escapes the worker
func (s *Supervisor) execute(ctx context.Context, i int) {
	defer func() {
		if r := recover(); r != nil {
			s.reporter.Message(console.LevelError, 0,
				fmt.Sprintf("%s: execution failed: %v", s.watches[i].Name, r))
		}
	}()

	s.executor.Execute(ctx, s.watches[i])
}
