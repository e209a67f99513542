package executor

import (
	"context"
	"time"

	"github.com/mickyco94/automate/internal/config"
)

// An Executor runs the full command list of a watch. Executors are invoked
// by the supervisor once the watch has been triggered and has settled.
type Executor interface {

	// Execute runs every command of the watch. Failures are reported on the
	// console and recorded, they are never returned.
	//
	// Context is used for cancellation of the running commands
	Execute(ctx context.Context, watch *config.Watch) *Record
}

// Runner spawns a single command on behalf of an execution
type Runner interface {
	Run(ctx context.Context, exec int64, cmd config.Command) error
}

// Lock is the mutual exclusion shared by every execution
type Lock interface {
	Acquire(ctx context.Context, timeout time.Duration) (bool, error)
	Release() error
}

// Result is the outcome of one command, Err is nil on exit code 0
type Result struct {
	Command config.Command
	Err     error
}

// Record describes one execution of a watch
type Record struct {
	Number  int64
	Watch   string
	Started time.Time
	Waited  time.Duration
	Locked  bool
	Results []Result
}

// Succeeded reports whether every command exited with code 0
func (r *Record) Succeeded() bool {
	for _, result := range r.Results {
		if result.Err != nil {
			return false
		}
	}
	return true
}
