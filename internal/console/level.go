package console

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// Level is the severity of a console message
type Level int

const (
	// LevelTrace is diagnostic output, only shown when tracing is enabled
	LevelTrace Level = iota
	// LevelStatus is engine chatter such as menus and completion lines
	LevelStatus
	// LevelPlain is command output with no recognised prefix
	LevelPlain
	// LevelInfo is command output prefixed with INFO, hidden unless enabled
	LevelInfo
	LevelNote
	LevelWarning
	LevelError
)

var levelNames = map[Level]string{
	LevelTrace:   "trace",
	LevelStatus:  "status",
	LevelPlain:   "plain",
	LevelInfo:    "info",
	LevelNote:    "note",
	LevelWarning: "warning",
	LevelError:   "error",
}

func (l Level) String() string {
	name, ok := levelNames[l]
	if !ok {
		return "unknown"
	}
	return name
}

// logrus maps the console level onto the logger level used to emit it
func (l Level) logrus() logrus.Level {
	switch l {
	case LevelTrace:
		return logrus.TraceLevel
	case LevelWarning:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Infer derives the level of a line of command output from its prefix.
// WARNINGS: and ERRORS: are summary headers, not warnings or errors.
func Infer(line string) Level {
	upper := strings.ToUpper(strings.TrimSpace(line))

	switch {
	case strings.HasPrefix(upper, "INFO"):
		return LevelInfo
	case strings.HasPrefix(upper, "NOTE"):
		return LevelNote
	case strings.HasPrefix(upper, "WARNING") && !strings.HasPrefix(upper, "WARNINGS:"):
		return LevelWarning
	case strings.HasPrefix(upper, "ERROR") && !strings.HasPrefix(upper, "ERRORS:"):
		return LevelError
	default:
		return LevelPlain
	}
}
