package executor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mickyco94/automate/internal/config"
	"github.com/mickyco94/automate/internal/console"
)

// DefaultLockTimeout bounds the wait for the exclusion lock
const DefaultLockTimeout = 60 * time.Second

// NewSerial creates an executor that holds lock while running a watch's
// commands on runner. A timeout of zero or less uses DefaultLockTimeout.
func NewSerial(
	lock Lock,
	runner Runner,
	reporter console.Reporter,
	timeout time.Duration) *Serial {

	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}

	return &Serial{
		lock:     lock,
		runner:   runner,
		reporter: reporter,
		timeout:  timeout,
	}
}

// Serial executes watches one at a time. When the lock cannot be obtained in
// time the execution goes ahead unlocked.
type Serial struct {
	lock     Lock
	runner   Runner
	reporter console.Reporter
	timeout  time.Duration

	counter atomic.Int64
}

func (s *Serial) Execute(ctx context.Context, watch *config.Watch) *Record {
	record := &Record{
		Number:  s.counter.Add(1),
		Watch:   watch.Name,
		Started: time.Now(),
	}

	locked, err := s.lock.Acquire(ctx, s.timeout)
	record.Waited = time.Since(record.Started)
	record.Locked = locked

	if !locked && ctx.Err() != nil {
		return record
	}

	if locked {
		defer func() {
			err := s.lock.Release()
			if err != nil {
				s.reporter.Message(console.LevelError, record.Number,
					fmt.Sprintf("%s: cannot release execution lock: %v", watch.Name, err))
			}
		}()
	} else {
		s.reporter.Message(console.LevelWarning, record.Number,
			fmt.Sprintf("%s: executing without lock: %v", watch.Name, err))
	}

	s.reporter.Message(console.LevelTrace, record.Number,
		fmt.Sprintf("%s: Waited %.3f seconds for access", watch.Name, record.Waited.Seconds()))

	for _, cmd := range watch.Commands {
		if ctx.Err() != nil {
			break
		}

		s.reporter.Message(console.LevelNote, record.Number,
			fmt.Sprintf("%s: Executing %s", watch.Name, cmd))

		err := s.runner.Run(ctx, record.Number, cmd)
		if err != nil {
			s.reporter.Message(console.LevelError, record.Number,
				fmt.Sprintf("%s: %v", watch.Name, err))
		}

		record.Results = append(record.Results, Result{Command: cmd, Err: err})
	}

	s.reporter.Message(console.LevelStatus, record.Number,
		fmt.Sprintf("%s: Command complete", watch.Name))

	return record
}
