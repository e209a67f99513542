package config

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/robfig/cron/v3"
)

// MatchAll is the default filter, every file under a watched path matches
const MatchAll = "*.*"

// ScheduleParser accepts standard five field cron specs with an optional
// leading seconds field, as well as descriptors such as @every 30s
var ScheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Command is a single external program to run as part of a watch
type Command struct {
	WorkingDir string `yaml:"workingDir"`
	Path       string `yaml:"cmdPath"`
	Args       string `yaml:"cmdArgs"`
}

// String renders the command line the way it is reported on the console
func (c Command) String() string {
	return strings.TrimSpace(c.Path + " " + c.Args)
}

// Watch binds one or more observed paths to an ordered list of commands
type Watch struct {
	Name   string   `yaml:"name"`
	Filter string   `yaml:"filter"`
	Paths  []string `yaml:"watchPaths"`

	// Schedule optionally triggers the watch on a cron schedule in
	// addition to file changes
	Schedule string `yaml:"schedule"`

	Commands []Command `yaml:"commands"`
}

// Validate checks the rules a single watch must satisfy
func (w *Watch) Validate() error {
	if w.Name == "" {
		return ErrInvalid.New("watch field 'name' must be set")
	}
	if len(w.Paths) == 0 {
		return ErrInvalid.New("watch %q field 'watchPaths' is not set", w.Name)
	}
	for _, p := range w.Paths {
		if strings.TrimSpace(p) == "" {
			return ErrInvalid.New("watch %q has an empty entry in 'watchPaths'", w.Name)
		}
	}
	if len(w.Commands) == 0 {
		return ErrInvalid.New("watch %q has no commands defined", w.Name)
	}
	for _, c := range w.Commands {
		if c.Path == "" {
			return ErrInvalid.New("watch %q field 'cmdPath' is not set", w.Name)
		}
	}
	if !doublestar.ValidatePattern(w.Filter) {
		return ErrInvalid.New("watch %q has an invalid filter %q", w.Name, w.Filter)
	}
	if w.Schedule != "" {
		_, err := ScheduleParser.Parse(w.Schedule)
		if err != nil {
			return ErrInvalid.Wrap(err, "watch %q has an invalid schedule", w.Name)
		}
	}

	return nil
}
