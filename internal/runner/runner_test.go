package runner

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mickyco94/automate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for the console and the test to share
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// appendWatch builds a watch on src whose command appends a line to out
func appendWatch(name, src, out string) config.Watch {
	return config.Watch{
		Name:   name,
		Filter: config.MatchAll,
		Paths:  []string{src},
		Commands: []config.Command{{
			WorkingDir: ".",
			Path:       "sh",
			Args:       "-c 'echo " + name + " >> " + out + "'",
		}},
	}
}

func testConfig(watches ...config.Watch) *config.Raw {
	cfg := config.New()
	cfg.Watches = watches
	cfg.QuietPeriod = 100
	cfg.PollInterval = 20
	cfg.LockTimeout = 5
	cfg.ClearScreenTime = 0
	cfg.Normalize()
	return cfg
}

func lines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return strings.Fields(string(data))
}

func start(t *testing.T, cfg *config.Raw, in io.Reader) (*syncBuffer, <-chan error, context.CancelFunc) {
	t.Helper()
	require.NoError(t, cfg.Validate())

	out := &syncBuffer{}
	r, err := New(cfg, Options{Out: out, LockDir: t.TempDir()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, in) }()

	t.Cleanup(cancel)
	return out, done, cancel
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("runner did not stop")
		return nil
	}
}

func TestRunsAtStartupAndOnChange(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}

	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "out.txt")
	stdin, input := io.Pipe()
	defer input.Close()

	console, done, _ := start(t, testConfig(appendWatch("build", src, out)), stdin)

	require.Eventually(t, func() bool { return len(lines(t, out)) == 1 }, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(src, "main.go"), []byte("package main"), 0644))
	require.Eventually(t, func() bool { return len(lines(t, out)) == 2 }, 5*time.Second, 20*time.Millisecond)

	_, err := input.Write([]byte("q\n"))
	require.NoError(t, err)

	assert.NoError(t, wait(t, done))
	assert.Contains(t, console.String(), "build: Command complete")
	assert.Contains(t, console.String(), "'1' run build")
}

func TestManualTrigger(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}

	out := filepath.Join(t.TempDir(), "out.txt")
	stdin, input := io.Pipe()
	defer input.Close()

	_, done, _ := start(t, testConfig(
		appendWatch("one", t.TempDir(), out),
		appendWatch("two", t.TempDir(), out),
	), stdin)

	require.Eventually(t, func() bool { return len(lines(t, out)) == 2 }, 5*time.Second, 20*time.Millisecond)

	_, err := input.Write([]byte("2\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(lines(t, out)) == 3 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "two", lines(t, out)[2])

	_, err = input.Write([]byte("q\n"))
	require.NoError(t, err)
	assert.NoError(t, wait(t, done))
}

func TestUnwatchablePathOnlyAffectsItsWatch(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}

	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "out.txt")
	missing := filepath.Join(t.TempDir(), "missing")

	console, done, cancel := start(t, testConfig(
		appendWatch("broken", missing, out),
		appendWatch("good", src, out),
	), strings.NewReader(""))

	require.Eventually(t, func() bool { return len(lines(t, out)) == 2 }, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0644))
	require.Eventually(t, func() bool { return len(lines(t, out)) == 3 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "good", lines(t, out)[2])
	assert.Contains(t, console.String(), "broken: cannot watch")

	cancel()
	assert.NoError(t, wait(t, done))
}

func TestEndOfInputKeepsRunning(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}

	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "out.txt")

	_, done, cancel := start(t, testConfig(appendWatch("build", src, out)), strings.NewReader(""))

	require.Eventually(t, func() bool { return len(lines(t, out)) == 1 }, 5*time.Second, 20*time.Millisecond)

	select {
	case <-done:
		t.Fatal("runner stopped at end of input")
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	assert.NoError(t, wait(t, done))
}

func TestNewRejectsUnknownStrategy(t *testing.T) {
	cfg := testConfig(appendWatch("build", t.TempDir(), "out"))
	cfg.Strategy = "random"

	_, err := New(cfg, Options{Out: io.Discard, LockDir: t.TempDir()})

	assert.Error(t, err)
}
