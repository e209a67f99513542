package console

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	kindField = "kind"
	execField = "exec"
)

// Reporter is the sink for everything the engine has to say to the user.
// exec tags a message with an execution number, zero or less for none.
type Reporter interface {
	Message(level Level, exec int64, msg string)

	// Line reports a line of command output, its level inferred from the prefix
	Line(exec int64, msg string)

	// Clear requests the screen to be cleared before the next message
	Clear()
}

// Options configures a Console
type Options struct {
	Out io.Writer

	// Trace enables LevelTrace messages and debug diagnostics
	Trace bool
	// ShowInfo enables LevelInfo messages
	ShowInfo bool
	// ClearAfter is the idle time after which the screen is cleared before the
	// next message. Zero or less disables clearing.
	ClearAfter time.Duration
}

// Console is a Reporter that renders leveled, coloured lines through logrus.
// Component diagnostics logged on Logger go through the same formatting.
type Console struct {
	logger    *logrus.Logger
	formatter *Formatter
	showInfo  bool
}

// New creates a console writing to opts.Out, stdout if unset
func New(opts Options) *Console {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	formatter := NewFormatter(out, opts.ClearAfter)

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(formatter)
	logger.SetLevel(logrus.InfoLevel)
	if opts.Trace {
		logger.SetLevel(logrus.TraceLevel)
	}

	return &Console{
		logger:    logger,
		formatter: formatter,
		showInfo:  opts.ShowInfo,
	}
}

// Logger exposes the underlying logger for component diagnostics
func (c *Console) Logger() logrus.FieldLogger {
	return c.logger
}

func (c *Console) Message(level Level, exec int64, msg string) {
	if level == LevelInfo && !c.showInfo {
		return
	}

	entry := c.logger.WithField(kindField, level)
	if exec > 0 {
		entry = entry.WithField(execField, exec)
	}

	entry.Log(level.logrus(), msg)
}

func (c *Console) Line(exec int64, msg string) {
	c.Message(Infer(msg), exec, msg)
}

func (c *Console) Clear() {
	c.formatter.ForceClear()
}
