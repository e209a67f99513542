package console

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/sirupsen/logrus"
)

var clearScreen = termenv.CSI + fmt.Sprintf(termenv.EraseDisplaySeq, 2) +
	termenv.CSI + fmt.Sprintf(termenv.CursorPositionSeq, 1, 1)

// Formatter is a logrus.Formatter that renders one coloured line per entry,
// prefixed with the execution number when present. logrus formats entries
// under the logger lock, so the idle tracking needs no locking of its own.
type Formatter struct {
	clearAfter time.Duration
	last       time.Time
	force      atomic.Bool

	prefix lipgloss.Style
	fields lipgloss.Style
	styles map[Level]lipgloss.Style
}

// NewFormatter creates a formatter whose colours are resolved against out
func NewFormatter(out io.Writer, clearAfter time.Duration) *Formatter {
	renderer := lipgloss.NewRenderer(out)
	style := func(color string) lipgloss.Style {
		s := renderer.NewStyle().TabWidth(lipgloss.NoTabConversion)
		if color != "" {
			s = s.Foreground(lipgloss.Color(color))
		}
		return s
	}

	return &Formatter{
		clearAfter: clearAfter,
		prefix:     style("8"),
		fields:     style("8"),
		styles: map[Level]lipgloss.Style{
			LevelTrace:   style("3"),
			LevelStatus:  style("8"),
			LevelPlain:   style(""),
			LevelInfo:    style(""),
			LevelNote:    style("2"),
			LevelWarning: style("3"),
			LevelError:   style("1"),
		},
	}
}

// ForceClear makes the next formatted entry start with a screen clear
func (f *Formatter) ForceClear() {
	f.force.Store(true)
}

func (f *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer

	if f.shouldClear(entry.Time) {
		b.WriteString(clearScreen)
	}

	if n, ok := entry.Data[execField].(int64); ok && n > 0 {
		b.WriteString(f.prefix.Render(fmt.Sprintf("[%d]", n)))
		b.WriteByte(' ')
	}

	level, ok := entry.Data[kindField].(Level)
	if !ok {
		level = fromLogrus(entry.Level)
	}
	b.WriteString(f.styles[level].Render(entry.Message))

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k == kindField || k == execField {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(f.fields.Render(fmt.Sprintf("%s=%v", k, entry.Data[k])))
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func (f *Formatter) shouldClear(now time.Time) bool {
	last := f.last
	f.last = now

	if f.force.Swap(false) {
		return true
	}
	if f.clearAfter <= 0 || last.IsZero() {
		return false
	}
	return now.Sub(last) > f.clearAfter
}

// fromLogrus picks a colour for diagnostics logged directly on the logger
func fromLogrus(level logrus.Level) Level {
	switch level {
	case logrus.TraceLevel, logrus.DebugLevel:
		return LevelTrace
	case logrus.WarnLevel:
		return LevelWarning
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return LevelError
	default:
		return LevelStatus
	}
}
