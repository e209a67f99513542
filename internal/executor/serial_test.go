package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/joomcode/errorx"
	"github.com/mickyco94/automate/internal/config"
	"github.com/mickyco94/automate/internal/console"
	"github.com/mickyco94/automate/internal/console/consoletest"
	"github.com/mickyco94/automate/internal/lock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type span struct {
	watch      string
	start, end time.Time
}

// recordingRunner pretends to run commands, failing those whose path is "false"
type recordingRunner struct {
	mu       sync.Mutex
	duration time.Duration
	spans    []span
	ran      []string
}

func (r *recordingRunner) Run(ctx context.Context, exec int64, cmd config.Command) error {
	start := time.Now()
	time.Sleep(r.duration)

	r.mu.Lock()
	r.spans = append(r.spans, span{watch: cmd.WorkingDir, start: start, end: time.Now()})
	r.ran = append(r.ran, cmd.String())
	r.mu.Unlock()

	if cmd.Path == "false" {
		return &ExitError{Path: cmd.Path, Code: 1}
	}
	return nil
}

type stuckLock struct {
	released bool
}

func (l *stuckLock) Acquire(ctx context.Context, timeout time.Duration) (bool, error) {
	return false, errorx.TimeoutElapsed.New("AutoMate is held by pid 1 (init)")
}

func (l *stuckLock) Release() error {
	l.released = true
	return nil
}

func watch(name string, commands ...config.Command) *config.Watch {
	for i := range commands {
		commands[i].WorkingDir = name
	}
	return &config.Watch{Name: name, Filter: config.MatchAll, Paths: []string{"."}, Commands: commands}
}

func TestFailingCommandDoesNotStopList(t *testing.T) {
	reporter := &consoletest.Recorder{}
	runner := &recordingRunner{}
	serial := NewSerial(lock.New(logrus.New(), t.TempDir(), "AutoMate"), runner, reporter, time.Second)

	record := serial.Execute(context.Background(), watch("build",
		config.Command{Path: "false"},
		config.Command{Path: "echo", Args: "ok"}))

	assert.Equal(t, []string{"false", "echo ok"}, runner.ran)
	assert.False(t, record.Succeeded())
	assert.Len(t, record.Results, 2)
	assert.Error(t, record.Results[0].Err)
	assert.NoError(t, record.Results[1].Err)
	assert.True(t, record.Locked)

	assert.Equal(t, 1, reporter.Count("build: Executing false"))
	assert.Equal(t, 1, reporter.Count("build: Executing echo ok"))
	assert.Equal(t, []string{"build: Command complete"}, reporter.Messages(console.LevelStatus))
	assert.Len(t, reporter.Messages(console.LevelError), 1)
}

func TestExecutionsAreNumbered(t *testing.T) {
	reporter := &consoletest.Recorder{}
	serial := NewSerial(lock.New(logrus.New(), t.TempDir(), "AutoMate"), &recordingRunner{}, reporter, time.Second)

	first := serial.Execute(context.Background(), watch("a", config.Command{Path: "true"}))
	second := serial.Execute(context.Background(), watch("b", config.Command{Path: "true"}))

	assert.EqualValues(t, 1, first.Number)
	assert.EqualValues(t, 2, second.Number)
	for _, e := range reporter.Entries() {
		assert.NotZero(t, e.Exec)
	}
	assert.Equal(t, 2, reporter.Count("seconds for access"))
}

func TestLockTimeoutStillExecutes(t *testing.T) {
	reporter := &consoletest.Recorder{}
	runner := &recordingRunner{}
	stuck := &stuckLock{}
	serial := NewSerial(stuck, runner, reporter, time.Millisecond)

	record := serial.Execute(context.Background(), watch("build", config.Command{Path: "true"}))

	assert.Equal(t, []string{"true"}, runner.ran)
	assert.False(t, record.Locked)
	assert.False(t, stuck.released)
	require.Len(t, reporter.Messages(console.LevelWarning), 1)
	assert.Contains(t, reporter.Messages(console.LevelWarning)[0], "pid 1 (init)")
}

func TestCancelledBeforeLockSkipsRun(t *testing.T) {
	runner := &recordingRunner{}
	l := lock.New(logrus.New(), t.TempDir(), "AutoMate")
	locked, _ := l.Acquire(context.Background(), time.Second)
	require.True(t, locked)
	defer l.Release()

	serial := NewSerial(l, runner, &consoletest.Recorder{}, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	record := serial.Execute(ctx, watch("build", config.Command{Path: "true"}))

	assert.Empty(t, runner.ran)
	assert.Empty(t, record.Results)
}

func TestConcurrentWatchesNeverInterleave(t *testing.T) {
	runner := &recordingRunner{duration: 50 * time.Millisecond}
	serial := NewSerial(lock.New(logrus.New(), t.TempDir(), "AutoMate"), runner, &consoletest.Recorder{}, 10*time.Second)

	wg := sync.WaitGroup{}
	for _, name := range []string{"one", "two", "three"} {
		w := watch(name, config.Command{Path: "true"}, config.Command{Path: "true"})
		wg.Add(1)
		go func() {
			defer wg.Done()
			serial.Execute(context.Background(), w)
		}()
	}
	wg.Wait()

	require.Len(t, runner.spans, 6)
	for i := 1; i < len(runner.spans); i++ {
		assert.False(t, runner.spans[i].start.Before(runner.spans[i-1].end), "process %d started before %d finished", i, i-1)
	}
	// both commands of a watch run back to back
	for i := 0; i < len(runner.spans); i += 2 {
		assert.Equal(t, runner.spans[i].watch, runner.spans[i+1].watch)
	}
}

func TestSimultaneousTriggersAreSerialized(t *testing.T) {
	reporter := &consoletest.Recorder{}
	serial := NewSerial(
		lock.New(logrus.New(), t.TempDir(), "AutoMate"),
		NewProcess(reporter, NewExpander()),
		reporter,
		10*time.Second)

	sleep := config.Command{WorkingDir: ".", Path: "sleep", Args: "0.5"}
	start := time.Now()

	wg := sync.WaitGroup{}
	for _, name := range []string{"one", "two"} {
		w := &config.Watch{Name: name, Paths: []string{"."}, Commands: []config.Command{sleep}}
		wg.Add(1)
		go func() {
			defer wg.Done()
			record := serial.Execute(context.Background(), w)
			assert.True(t, record.Succeeded())
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestRecordSucceeded(t *testing.T) {
	assert.True(t, (&Record{}).Succeeded())
	assert.False(t, (&Record{Results: []Result{{Err: errors.New("boom")}}}).Succeeded())
}
