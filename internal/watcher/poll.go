package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mickyco94/automate/internal/config"
	filewatcher "github.com/radovskyb/watcher"
	"github.com/sirupsen/logrus"
)

// DefaultPollInterval is how often the watched trees are scanned
const DefaultPollInterval = 100 * time.Millisecond

// NewPoll creates a source that scans the watched trees every interval
func NewPoll(logger logrus.FieldLogger, interval time.Duration) *Poll {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	watcher := filewatcher.New()
	watcher.IgnoreHiddenFiles(false)
	watcher.FilterOps(
		filewatcher.Create,
		filewatcher.Write,
		filewatcher.Remove,
		filewatcher.Rename,
		filewatcher.Move,
	)

	return &Poll{
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger,
		interval: interval,
		watcher:  watcher,
	}
}

type entry struct {
	matcher
	//name of the watch, for diagnostics
	name string
	//handler will be executed when a match is found
	handler func(path string)
}

// Poll is a Source backed by a polling watcher, which works on every
// platform and file system including network shares
type Poll struct {
	running  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}

	logger   logrus.FieldLogger
	interval time.Duration

	mu      sync.RWMutex
	entries []entry
	watcher *filewatcher.Watcher
}

func (p *Poll) HandleFunc(watch *config.Watch, handler func(path string)) error {
	var errs []error

	for _, path := range watch.Paths {
		m, err := newMatcher(path, watch.Filter)
		if err != nil {
			errs = append(errs, fmt.Errorf("cannot watch '%s': %w", path, err))
			continue
		}

		err = p.watcher.AddRecursive(m.root)
		if err != nil {
			errs = append(errs, fmt.Errorf("cannot watch '%s': %w", path, err))
			continue
		}

		p.mu.Lock()
		p.entries = append(p.entries, entry{matcher: m, name: watch.Name, handler: handler})
		p.mu.Unlock()
	}

	return errors.Join(errs...)
}

func (p *Poll) dispatch(event filewatcher.Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, entry := range p.entries {
		if entry.matches(event.Path) || (event.OldPath != "" && entry.matches(event.OldPath)) {
			entry.handler(event.Path)
		}
	}
}

func (p *Poll) Run() error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	go func() {
		defer close(p.done)

		for {
			select {
			case <-p.stop:
				return
			case <-p.watcher.Closed:
				return
			case event := <-p.watcher.Event:
				p.dispatch(event)
			case err := <-p.watcher.Error:
				p.logger.WithError(err).Warn("File watcher error")
			}
		}
	}()

	return p.watcher.Start(p.interval)
}

func (p *Poll) Stop(ctx context.Context) error {
	if !p.running.Load() {
		return ErrNotRunning
	}

	// the event loop keeps draining until Close returns, as the watcher
	// blocks on sending events
	var err error
	p.stopOnce.Do(func() {
		err = p.started(ctx)
		p.watcher.Close()
		close(p.stop)
	})
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return nil
	}
}

// started waits for the polling loop to have begun, Close is a no-op before
func (p *Poll) started(ctx context.Context) error {
	started := make(chan struct{})
	go func() {
		p.watcher.Wait()
		close(started)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-started:
		return nil
	}
}
