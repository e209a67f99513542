package supervisor

import (
	"context"
	"sync/atomic"
	"time"
)

// shared runs every watch from a single loop. Watches are scanned in
// registration order and the first eligible one runs; the scan then restarts
// from the top.
//
// A watch is pending while its notification count is ahead of the count the
// loop last handled, so a notification arriving during a run is never lost.
type shared struct {
	s        *Supervisor
	quiet    time.Duration
	interval time.Duration
	wake     chan struct{}

	notified  []atomic.Uint64
	lastEvent []atomic.Int64

	// owned by the loop
	handled []uint64
	lastRun []time.Time
}

func newShared(s *Supervisor, quiet, interval time.Duration) *shared {
	n := len(s.watches)

	return &shared{
		s:         s,
		quiet:     quiet,
		interval:  interval,
		wake:      make(chan struct{}, 1),
		notified:  make([]atomic.Uint64, n),
		lastEvent: make([]atomic.Int64, n),
		handled:   make([]uint64, n),
		lastRun:   make([]time.Time, n),
	}
}

func (sh *shared) notify(i int) {
	sh.lastEvent[i].Store(time.Now().UnixNano())
	sh.notified[i].Add(1)

	select {
	case sh.wake <- struct{}{}:
	default:
	}
}

func (sh *shared) run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	sleep := time.Duration(-1)

	for {
		if sleep >= 0 {
			timer.Reset(sleep)
		}

		select {
		case <-ctx.Done():
			return
		case <-sh.wake:
		case <-timer.C:
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}

		ran := false
		for {
			executed, next := sh.runOne(ctx)
			if ctx.Err() != nil {
				return
			}
			if !executed {
				sleep = next
				break
			}
			ran = true
		}

		if ran && sleep < 0 {
			sh.s.Menu()
		}
	}
}

// runOne executes the first eligible watch. When none is eligible it returns
// the time until the soonest pending watch becomes eligible, or -1 when no
// watch is pending.
func (sh *shared) runOne(ctx context.Context) (bool, time.Duration) {
	next := time.Duration(-1)
	now := time.Now()

	for i := range sh.handled {
		if ctx.Err() != nil {
			return false, -1
		}

		count := sh.notified[i].Load()
		if count == sh.handled[i] {
			continue
		}

		wait := sh.remaining(i, now)
		if wait > 0 {
			if next < 0 || wait < next {
				next = wait
			}
			continue
		}

		sh.handled[i] = count
		sh.s.execute(ctx, i)
		sh.lastRun[i] = time.Now()
		return true, -1
	}

	return false, next
}

// remaining is how long watch i must still wait for both its quiet period and
// its minimum interval since the previous run to elapse
func (sh *shared) remaining(i int, now time.Time) time.Duration {
	wait := sh.quiet - now.Sub(time.Unix(0, sh.lastEvent[i].Load()))

	if !sh.lastRun[i].IsZero() {
		if r := sh.interval - now.Sub(sh.lastRun[i]); r > wait {
			wait = r
		}
	}

	return wait
}
