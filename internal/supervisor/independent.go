package supervisor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mickyco94/automate/internal/console"
	"github.com/mickyco94/automate/internal/debounce"
)

// independent gives every watch its own debounce loop. Watches only meet at
// the executor's lock.
type independent struct {
	s          *Supervisor
	debouncers []*debounce.Debouncer
	busy       atomic.Int32
}

func newIndependent(s *Supervisor, quiet time.Duration) *independent {
	in := &independent{s: s}

	for _, w := range s.watches {
		d := debounce.New(quiet)
		name := w.Name
		d.OnExtend = func() {
			s.reporter.Message(console.LevelTrace, 0,
				name+": Additional wake events received. Restarting wait")
		}
		in.debouncers = append(in.debouncers, d)
	}

	return in
}

func (in *independent) notify(i int) {
	in.debouncers[i].Notify()
}

func (in *independent) run(ctx context.Context) {
	wg := sync.WaitGroup{}

	for i := range in.debouncers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in.work(ctx, i)
		}(i)
	}

	wg.Wait()
}

// work is the Idle -> Debouncing -> Running loop of watch i
func (in *independent) work(ctx context.Context, i int) {
	for in.debouncers[i].Wait(ctx) {
		in.busy.Add(1)
		in.s.execute(ctx, i)

		if in.busy.Add(-1) == 0 && ctx.Err() == nil {
			in.s.Menu()
		}
	}
}
