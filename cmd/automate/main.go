package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mickyco94/automate/internal/config"
	"github.com/mickyco94/automate/internal/runner"
	"github.com/urfave/cli/v2"
)

var errUsage = errors.New("usage")

// launch runs the tool for a loaded configuration until it quits
var launch = func(cfg *config.Raw, in io.Reader, out io.Writer) error {
	r, err := runner.New(cfg, runner.Options{Out: out})
	if err != nil {
		return err
	}

	return r.Run(context.Background(), in)
}

func main() {
	err := newApp(os.Stdin, os.Stdout, os.Stderr).Run(os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if errors.Is(err, errUsage) {
		return 2
	}
	return 1
}

func newApp(in io.Reader, out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:      "automate",
		Usage:     "run commands when the files they depend on change",
		ArgsUsage: "[config]",
		Writer:    out,
		ErrWriter: errOut,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "trace", Usage: "show trace lines"},
			&cli.BoolFlag{Name: "show-info", Usage: "show command output lines starting with INFO"},
			&cli.StringFlag{Name: "strategy", Usage: "scheduling strategy, independent or shared"},
			&cli.StringFlag{Name: "backend", Usage: "file notification backend, poll or native"},
			&cli.IntFlag{Name: "quiet", Usage: "quiet period in milliseconds"},
			&cli.IntFlag{Name: "lock-timeout", Usage: "seconds to wait for the execution lock"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := load(c)
			if err != nil {
				return err
			}
			return launch(cfg, in, out)
		},
	}
}

// load reads the configuration named on the command line and applies the
// flags over it
func load(c *cli.Context) (*config.Raw, error) {
	if c.NArg() > 1 {
		_ = cli.ShowAppHelp(c)
		return nil, fmt.Errorf("%w: expected at most one configuration file, got %d", errUsage, c.NArg())
	}

	path := config.DefaultPath
	if c.NArg() == 1 {
		path = c.Args().First()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if c.IsSet("trace") {
		cfg.TraceFlag = c.Bool("trace")
	}
	if c.IsSet("show-info") {
		cfg.ShowInfo = c.Bool("show-info")
	}
	if c.IsSet("strategy") {
		cfg.Strategy = config.Strategy(c.String("strategy"))
	}
	if c.IsSet("backend") {
		cfg.Backend = config.Backend(c.String("backend"))
	}
	if c.IsSet("quiet") {
		cfg.QuietPeriod = c.Int("quiet")
	}
	if c.IsSet("lock-timeout") {
		cfg.LockTimeout = c.Int("lock-timeout")
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}
