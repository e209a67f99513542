// Package lock provides the host wide mutual exclusion lock that serializes
// command execution across watches and across instances of the tool.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/joomcode/errorx"
	"github.com/mitchellh/go-ps"
	"github.com/sirupsen/logrus"
)

// retryDelay is how often the lock file is polled while another instance holds it
var retryDelay = 50 * time.Millisecond

var ErrNotHeld = errors.New("lock is not held")

// Host is a named lock shared by every goroutine of this process and, through
// a lock file in the temp directory, by every process on the host.
// It is not reentrant.
type Host struct {
	logger logrus.FieldLogger

	name    string
	pidPath string
	file    *flock.Flock

	// slot holds a token while a goroutine of this process owns the lock
	slot chan struct{}
}

// New creates the lock called name, backed by files in dir. An empty dir
// uses the OS temp directory.
func New(logger logrus.FieldLogger, dir, name string) *Host {
	if dir == "" {
		dir = os.TempDir()
	}

	return &Host{
		logger:  logger.WithField("lock", name),
		name:    name,
		pidPath: filepath.Join(dir, name+".pid"),
		file:    flock.New(filepath.Join(dir, name+".lock")),
		slot:    make(chan struct{}, 1),
	}
}

// Acquire waits up to timeout for the lock. It returns true once held.
// When the wait elapses it returns false and an errorx.TimeoutElapsed error
// naming the current holder if known. Cancelling ctx aborts the wait.
func (h *Host) Acquire(ctx context.Context, timeout time.Duration) (bool, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case h.slot <- struct{}{}:
	case <-waitCtx.Done():
		return false, h.waitError(ctx, "another watch of this process")
	}

	locked, err := h.file.TryLockContext(waitCtx, retryDelay)
	if err != nil || !locked {
		<-h.slot
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return false, errorx.ExternalError.Wrap(err, "cannot lock %s", h.file.Path())
		}
		return false, h.waitError(ctx, h.Holder())
	}

	h.writePid()
	return true, nil
}

// Release gives up a lock obtained by Acquire
func (h *Host) Release() error {
	select {
	case <-h.slot:
	default:
		return ErrNotHeld
	}

	err := os.Remove(h.pidPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		h.logger.WithError(err).Debug("Cannot remove pid file")
	}

	return h.file.Unlock()
}

// Holder describes the process recorded as holding the lock file
func (h *Host) Holder() string {
	raw, err := os.ReadFile(h.pidPath)
	if err != nil {
		return "an unknown process"
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return "an unknown process"
	}

	process, err := ps.FindProcess(pid)
	if err != nil || process == nil {
		return fmt.Sprintf("pid %d, which is no longer running", pid)
	}

	return fmt.Sprintf("pid %d (%s)", pid, process.Executable())
}

func (h *Host) writePid() {
	err := os.WriteFile(h.pidPath, []byte(strconv.Itoa(os.Getpid())), 0644)
	if err != nil {
		h.logger.WithError(err).Debug("Cannot record lock holder")
	}
}

func (h *Host) waitError(parent context.Context, holder string) error {
	if parent.Err() != nil {
		return errorx.Interrupted.Wrap(parent.Err(), "gave up waiting for %s", h.name)
	}
	return errorx.TimeoutElapsed.New("%s is held by %s", h.name, holder)
}
