package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startPoll(t *testing.T, p *Poll) {
	go p.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		p.Stop(ctx)
	})
	time.Sleep(50 * time.Millisecond)
}

func TestPollCreate(t *testing.T) {
	basePath := setup(t)
	p := NewPoll(logrus.New(), 20*time.Millisecond)
	events := make(chan string, 64)

	err := p.HandleFunc(watchOf("*.*", basePath), collect(events))
	require.NoError(t, err)

	startPoll(t, p)

	created := createDummyFile(t, basePath, "dummy.txt")

	expectPath(t, events, created, 2*time.Second)
}

func TestPollRecursive(t *testing.T) {
	basePath := setup(t)
	nested := filepath.Join(basePath, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	p := NewPoll(logrus.New(), 20*time.Millisecond)
	events := make(chan string, 64)

	err := p.HandleFunc(watchOf("*.go", basePath), collect(events))
	require.NoError(t, err)

	startPoll(t, p)

	createDummyFile(t, nested, "ignored.txt")
	expectNoEvent(t, events, 200*time.Millisecond)

	created := createDummyFile(t, nested, "main.go")
	expectPath(t, events, created, 2*time.Second)
}

func TestPollRemoval(t *testing.T) {
	basePath := setup(t)
	filePath := createDummyFile(t, basePath, "delete_me.txt")

	p := NewPoll(logrus.New(), 20*time.Millisecond)
	events := make(chan string, 64)

	err := p.HandleFunc(watchOf("*.*", basePath), collect(events))
	require.NoError(t, err)

	startPoll(t, p)

	require.NoError(t, os.Remove(filePath))

	expectPath(t, events, filePath, 2*time.Second)
}

func TestPollMissingPath(t *testing.T) {
	basePath := setup(t)
	p := NewPoll(logrus.New(), 20*time.Millisecond)

	err := p.HandleFunc(watchOf("*.*", filepath.Join(basePath, "missing"), basePath), func(string) {})

	assert.Error(t, err)
	assert.Len(t, p.entries, 1, "valid paths are still registered")
}

func TestPollStopBeforeRun(t *testing.T) {
	p := NewPoll(logrus.New(), 0)

	assert.ErrorIs(t, p.Stop(context.Background()), ErrNotRunning)
	assert.Equal(t, DefaultPollInterval, p.interval)
}

func TestPollStopRightAfterRun(t *testing.T) {
	for i := 0; i < 20; i++ {
		p := NewPoll(logrus.New(), 20*time.Millisecond)
		require.NoError(t, p.HandleFunc(watchOf("*.*", setup(t)), func(string) {}))

		returned := make(chan error, 1)
		go func() { returned <- p.Run() }()
		require.Eventually(t, p.running.Load, time.Second, time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		require.NoError(t, p.Stop(ctx))
		cancel()

		select {
		case err := <-returned:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("polling kept running after Stop")
		}
	}
}
