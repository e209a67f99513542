package config

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/joomcode/errorx"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file used when none is given on the command line
const DefaultPath = "automate.json"

var (
	Errors = errorx.NewNamespace("config")

	// ErrNotFound is raised when the configuration file does not exist
	ErrNotFound = Errors.NewType("not_found")
	// ErrMalformed is raised when the configuration file cannot be decoded
	ErrMalformed = Errors.NewType("malformed")
	// ErrInvalid is raised when a decoded configuration breaks a rule
	ErrInvalid = Errors.NewType("invalid")
)

// Strategy selects how the supervisor schedules watches
type Strategy string

const (
	// Independent runs one debounce loop per watch
	Independent Strategy = "independent"
	// Shared runs a single loop that round-robins over all watches
	Shared Strategy = "shared"
)

// Backend selects the file system notification source
type Backend string

const (
	// Poll scans the watched trees on an interval
	Poll Backend = "poll"
	// Native uses the operating system notification API
	Native Backend = "native"
)

// Raw is the unprocessed configuration for the automate service.
// JSON documents are accepted as they are valid YAML.
type Raw struct {
	Watches []Watch `yaml:"watchs"`

	// ClearScreenTime is the idle time in seconds after which the console is
	// cleared before the next message. Zero or less disables clearing.
	ClearScreenTime int  `yaml:"clearScreenTime"`
	TraceFlag       bool `yaml:"traceFlag"`
	ShowInfo        bool `yaml:"showInfo"`

	QuietPeriod  int      `yaml:"quietPeriod"`
	MinInterval  int      `yaml:"minInterval"`
	LockName     string   `yaml:"lockName"`
	LockTimeout  int      `yaml:"lockTimeout"`
	Strategy     Strategy `yaml:"strategy"`
	Backend      Backend  `yaml:"backend"`
	PollInterval int      `yaml:"pollInterval"`
}

// New returns a configuration with every optional field defaulted
func New() *Raw {
	return &Raw{
		ClearScreenTime: 60,
		QuietPeriod:     1000,
		MinInterval:     1000,
		LockName:        "AutoMate",
		LockTimeout:     60,
		Strategy:        Independent,
		Backend:         Poll,
		PollInterval:    100,
	}
}

// Parse reads config from the specified reader into the struct
func (r *Raw) Parse(reader io.Reader) error {
	decoder := yaml.NewDecoder(reader)
	err := decoder.Decode(r)

	if err != nil {
		if errors.Is(err, io.EOF) {
			return ErrMalformed.New("configuration is empty")
		}
		return ErrMalformed.Wrap(err, "cannot decode configuration")
	}

	return nil
}

// Load opens, decodes, defaults and validates the configuration found at path
func Load(path string) (*Raw, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound.New("options file %s not found", path)
		}
		return nil, ErrMalformed.Wrap(err, "cannot open %s", path)
	}
	defer file.Close()

	cfg := New()

	err = cfg.Parse(file)
	if err != nil {
		return nil, errorx.Decorate(err, "in %s", path)
	}

	cfg.Normalize()

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Normalize fills per watch and per command defaults that cannot be
// expressed before decoding
func (r *Raw) Normalize() {
	for i := range r.Watches {
		w := &r.Watches[i]
		if w.Filter == "" {
			w.Filter = MatchAll
		}
		for j := range w.Commands {
			if w.Commands[j].WorkingDir == "" {
				w.Commands[j].WorkingDir = "."
			}
		}
	}
}

// Validate enforces the rules every watch must satisfy before any worker starts
func (r *Raw) Validate() error {
	if len(r.Watches) == 0 {
		return ErrInvalid.New("no watches defined")
	}

	names := make(map[string]struct{}, len(r.Watches))
	for i := range r.Watches {
		w := &r.Watches[i]

		err := w.Validate()
		if err != nil {
			return err
		}

		if _, exists := names[w.Name]; exists {
			return ErrInvalid.New("watch %q is defined more than once", w.Name)
		}
		names[w.Name] = struct{}{}
	}

	switch r.Strategy {
	case Independent, Shared:
	default:
		return ErrInvalid.New("unknown strategy %q", r.Strategy)
	}

	switch r.Backend {
	case Poll, Native:
	default:
		return ErrInvalid.New("unknown backend %q", r.Backend)
	}

	if r.QuietPeriod <= 0 {
		return ErrInvalid.New("quietPeriod must be positive")
	}
	if r.MinInterval <= 0 {
		return ErrInvalid.New("minInterval must be positive")
	}
	if r.LockTimeout <= 0 {
		return ErrInvalid.New("lockTimeout must be positive")
	}
	if r.LockName == "" {
		return ErrInvalid.New("lockName must be set")
	}
	if r.Backend == Poll && r.PollInterval <= 0 {
		return ErrInvalid.New("pollInterval must be positive")
	}

	return nil
}

func (r *Raw) Quiet() time.Duration { return time.Duration(r.QuietPeriod) * time.Millisecond }

func (r *Raw) Interval() time.Duration { return time.Duration(r.MinInterval) * time.Millisecond }

func (r *Raw) LockWait() time.Duration { return time.Duration(r.LockTimeout) * time.Second }

func (r *Raw) Polling() time.Duration { return time.Duration(r.PollInterval) * time.Millisecond }

func (r *Raw) ClearAfter() time.Duration { return time.Duration(r.ClearScreenTime) * time.Second }
