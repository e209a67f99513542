package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/mickyco94/automate/internal/config"
	"github.com/sirupsen/logrus"
)

// NewNative creates a source backed by the operating system notification API
func NewNative(logger logrus.FieldLogger) (*Native, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Native{
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		logger:  logger,
		watcher: watcher,
	}, nil
}

// Native is a Source using fsnotify. fsnotify is not recursive, every
// directory of a watched tree is added individually, including directories
// created after registration.
type Native struct {
	running  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}

	logger logrus.FieldLogger

	mu      sync.RWMutex
	entries []entry
	watcher *fsnotify.Watcher
}

func (n *Native) HandleFunc(watch *config.Watch, handler func(path string)) error {
	var errs []error

	for _, path := range watch.Paths {
		m, err := newMatcher(path, watch.Filter)
		if err == nil {
			err = n.addTree(m.root)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("cannot watch '%s': %w", path, err))
			continue
		}

		n.mu.Lock()
		n.entries = append(n.entries, entry{matcher: m, name: watch.Name, handler: handler})
		n.mu.Unlock()
	}

	return errors.Join(errs...)
}

// addTree watches root and every directory below it
func (n *Native) addTree(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return n.watcher.Add(root)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			n.logger.WithError(err).WithField("path", path).Debug("Skipping unreadable directory")
			return filepath.SkipDir
		}
		if !d.IsDir() {
			return nil
		}
		return n.watcher.Add(path)
	})
}

func (n *Native) dispatch(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}

	if event.Has(fsnotify.Create) {
		info, err := os.Stat(event.Name)
		if err == nil && info.IsDir() {
			err = n.addTree(event.Name)
			if err != nil {
				n.logger.WithError(err).WithField("path", event.Name).Warn("Cannot watch new directory")
			}
		}
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, entry := range n.entries {
		if entry.matches(event.Name) {
			entry.handler(event.Name)
		}
	}
}

func (n *Native) Run() error {
	if !n.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(n.done)

	for {
		select {
		case <-n.stop:
			return nil
		case event, open := <-n.watcher.Events:
			if !open {
				return nil
			}
			n.dispatch(event)
		case err, open := <-n.watcher.Errors:
			if !open {
				return nil
			}
			n.logger.WithError(err).Warn("File watcher error")
		}
	}
}

func (n *Native) Stop(ctx context.Context) error {
	if !n.running.Load() {
		return ErrNotRunning
	}

	var err error
	n.stopOnce.Do(func() {
		close(n.stop)
		err = n.watcher.Close()
	})
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-n.done:
		return nil
	}
}
