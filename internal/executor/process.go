package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"

	"github.com/joomcode/errorx"
	"github.com/mattn/go-shellwords"
	"github.com/mickyco94/automate/internal/config"
	"github.com/mickyco94/automate/internal/console"
	"golang.org/x/sync/errgroup"
)

// maxLine bounds a single line of command output
const maxLine = 1024 * 1024

var lineEndings = strings.NewReplacer("\r", "", "\n", "")

// ExitError is returned when a command ran but exited with a non zero code
type ExitError struct {
	Path string
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Path, e.Code)
}

// NewProcess creates a runner that reports command output on reporter and
// expands tokens with expander
func NewProcess(reporter console.Reporter, expander *Expander) *Process {
	return &Process{
		reporter: reporter,
		expander: expander,
	}
}

// Process runs a command as a child process, relaying stdout and stderr
// line by line as they are produced
type Process struct {
	reporter console.Reporter
	expander *Expander
}

// Run starts cmd and blocks until it has exited and both of its output
// streams have been drained. Stdout lines are reported with their inferred
// level, stderr lines always as errors.
func (p *Process) Run(ctx context.Context, execution int64, cmd config.Command) error {
	dir := p.expander.Expand(cmd.WorkingDir)
	path := p.expander.Expand(cmd.Path)

	args, err := splitArgs(cmd.Args, runtime.GOOS == "windows")
	if err != nil {
		return errorx.IllegalFormat.Wrap(err, "cannot parse arguments of %s", path)
	}
	for i := range args {
		args[i] = p.expander.Expand(args[i])
	}

	c := exec.CommandContext(ctx, path, args...)
	c.Dir = dir

	stdout, err := c.StdoutPipe()
	if err != nil {
		return errorx.ExternalError.Wrap(err, "cannot start %s", path)
	}
	stderr, err := c.StderrPipe()
	if err != nil {
		return errorx.ExternalError.Wrap(err, "cannot start %s", path)
	}

	err = c.Start()
	if err != nil {
		return errorx.ExternalError.Wrap(err, "cannot start %s", path)
	}

	var drains errgroup.Group
	drains.Go(func() error {
		return drain(stdout, func(line string) { p.reporter.Line(execution, line) })
	})
	drains.Go(func() error {
		return drain(stderr, func(line string) { p.reporter.Message(console.LevelError, execution, line) })
	})

	// every read must complete before Wait closes the pipes
	drainErr := drains.Wait()
	err = c.Wait()

	if drainErr != nil {
		p.reporter.Message(console.LevelWarning, execution,
			fmt.Sprintf("output of %s may be incomplete: %v", path, drainErr))
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Path: path, Code: exitErr.ExitCode()}
	}
	if err != nil {
		return errorx.ExternalError.Wrap(err, "%s failed", path)
	}

	return nil
}

// splitArgs splits an argument string with shell quoting rules. Expansion
// happens on the resulting words, so expanded values are never re-parsed.
// With literalBackslash a backslash outside single quotes is kept as is
// instead of escaping the next character.
func splitArgs(args string, literalBackslash bool) ([]string, error) {
	if literalBackslash {
		args = escapeBackslashes(args)
	}
	return shellwords.Parse(args)
}

// escapeBackslashes doubles every backslash outside single quotes
func escapeBackslashes(s string) string {
	var b strings.Builder
	single, double := false, false

	for _, r := range s {
		switch {
		case r == '\\' && !single:
			b.WriteString(`\\`)
			continue
		case r == '\'' && !double:
			single = !single
		case r == '"' && !single:
			double = !double
		}
		b.WriteRune(r)
	}

	return b.String()
}

// drain forwards every non blank line of r, stripped of line endings and
// surrounding whitespace. A line longer than maxLine is forwarded in pieces.
func drain(r io.Reader, forward func(string)) error {
	reader := bufio.NewReaderSize(r, 64*1024)
	var line []byte

	emit := func() {
		text := strings.TrimSpace(lineEndings.Replace(string(line)))
		if text != "" {
			forward(text)
		}
		line = line[:0]
	}

	for {
		chunk, isPrefix, err := reader.ReadLine()
		line = append(line, chunk...)

		if err != nil {
			emit()
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if !isPrefix || len(line) >= maxLine {
			emit()
		}
	}
}
