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

func startNative(t *testing.T) *Native {
	n, err := NewNative(logrus.New())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		n.Stop(ctx)
	})
	return n
}

func TestNativeWrite(t *testing.T) {
	basePath := setup(t)
	n := startNative(t)
	events := make(chan string, 64)

	require.NoError(t, n.HandleFunc(watchOf("*.txt", basePath), collect(events)))
	go n.Run()

	created := createDummyFile(t, basePath, "dummy.txt")

	expectPath(t, events, created, 2*time.Second)
}

func TestNativeNewDirectoryIsWatched(t *testing.T) {
	basePath := setup(t)
	n := startNative(t)
	events := make(chan string, 64)

	require.NoError(t, n.HandleFunc(watchOf("*.go", basePath), collect(events)))
	go n.Run()

	nested := filepath.Join(basePath, "pkg")
	require.NoError(t, os.Mkdir(nested, 0755))
	// give the loop a chance to add the new directory
	time.Sleep(100 * time.Millisecond)

	created := createDummyFile(t, nested, "main.go")

	expectPath(t, events, created, 2*time.Second)
}

func TestNativeFilter(t *testing.T) {
	basePath := setup(t)
	n := startNative(t)
	events := make(chan string, 64)

	require.NoError(t, n.HandleFunc(watchOf("*.go", basePath), collect(events)))
	go n.Run()

	createDummyFile(t, basePath, "notes.md")

	expectNoEvent(t, events, 200*time.Millisecond)
}

func TestNativeMissingPath(t *testing.T) {
	basePath := setup(t)
	n := startNative(t)

	err := n.HandleFunc(watchOf("*.*", filepath.Join(basePath, "missing")), func(string) {})

	assert.Error(t, err)
	assert.Empty(t, n.entries)
}

func TestNativeStopsRun(t *testing.T) {
	n, err := NewNative(logrus.New())
	require.NoError(t, err)

	returned := make(chan error)
	go func() { returned <- n.Run() }()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, n.Stop(context.Background()))

	select {
	case err := <-returned:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
