// Package debounce collapses bursts of change notifications into a single
// run request once the changes have settled.
package debounce

import (
	"context"
	"time"
)

// DefaultQuiet is the idle time after the last notification before a run fires
const DefaultQuiet = time.Second

// Debouncer is the wake signal of one watch. Notify may be called from any
// goroutine; Wait must only be called by the goroutine that owns the watch.
type Debouncer struct {
	quiet  time.Duration
	signal chan struct{}

	// OnExtend is called from Wait each time a notification restarts the
	// quiet window
	OnExtend func()
}

// New creates a debouncer with the given quiet period, DefaultQuiet if it
// is not positive
func New(quiet time.Duration) *Debouncer {
	if quiet <= 0 {
		quiet = DefaultQuiet
	}

	return &Debouncer{
		quiet:  quiet,
		signal: make(chan struct{}, 1),
	}
}

// Quiet returns the configured quiet period
func (d *Debouncer) Quiet() time.Duration { return d.quiet }

// Notify marks the watch as pending. It never blocks and setting an already
// set signal is a no-op.
func (d *Debouncer) Notify() {
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// Pending reports whether a notification is waiting to be consumed
func (d *Debouncer) Pending() bool {
	return len(d.signal) > 0
}

// Wait blocks until a notification has been received and no further
// notification has arrived for the quiet period. It returns false without
// waiting further once ctx is done.
func (d *Debouncer) Wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-d.signal:
	}

	timer := time.NewTimer(d.quiet)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-d.signal:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(d.quiet)
			if d.OnExtend != nil {
				d.OnExtend()
			}
		case <-timer.C:
			return true
		}
	}
}
