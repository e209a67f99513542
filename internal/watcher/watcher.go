// Package watcher delivers change notifications for the paths of each watch.
//
// Handlers registered with HandleFunc are invoked on the source's own
// goroutine and must not block.
package watcher

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/mickyco94/automate/internal/config"
	"github.com/sirupsen/logrus"
)

var (
	ErrAlreadyRunning = errors.New("already running")
	ErrNotRunning     = errors.New("not running")
)

// Source produces change notifications for registered watches
type Source interface {
	// HandleFunc registers handler for every path of watch. A path that
	// cannot be watched is reported in the returned error, the remaining
	// paths are still registered.
	HandleFunc(watch *config.Watch, handler func(path string)) error

	// Run blocks delivering notifications until Stop is called
	Run() error

	// Stop shuts the source down, waiting for Run to return or ctx to be done
	Stop(ctx context.Context) error
}

// New creates the file system source selected by the configuration
func New(cfg *config.Raw, logger logrus.FieldLogger) (Source, error) {
	switch cfg.Backend {
	case config.Native:
		return NewNative(logger)
	default:
		return NewPoll(logger, cfg.Polling()), nil
	}
}

// matcher decides whether a changed path is relevant to a watched root
type matcher struct {
	root   string
	filter string
}

func newMatcher(root, filter string) (matcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return matcher{}, err
	}
	return matcher{root: abs, filter: filter}, nil
}

// matches reports whether path lies under the root and satisfies the filter,
// tested against both the base name and the path relative to the root
func (m matcher) matches(path string) bool {
	rel, err := filepath.Rel(m.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}

	switch m.filter {
	case "", "*", config.MatchAll:
		return true
	}

	if ok, _ := doublestar.Match(m.filter, filepath.Base(path)); ok {
		return true
	}

	ok, _ := doublestar.Match(m.filter, filepath.ToSlash(rel))
	return ok
}
