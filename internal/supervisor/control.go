package supervisor

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
)

// Dispatch interprets one console command. It returns false when the command
// asks to quit.
//
//	q          quit
//	0 / empty  run every watch
//	N          run watch N
//	anything   run every watch
func (s *Supervisor) Dispatch(line string) bool {
	cmd := strings.ToLower(strings.TrimSpace(line))
	if cmd == "q" {
		return false
	}

	s.reporter.Clear()

	n, err := strconv.Atoi(cmd)
	if err != nil {
		s.TriggerAll()
		return true
	}

	if err := s.Trigger(n); err != nil {
		s.TriggerAll()
	}
	return true
}

// Control reads console commands from r until quit is requested, input ends
// or ctx is done. It returns io.EOF when input ended without a quit.
func (s *Supervisor) Control(ctx context.Context, r io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	failed := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		err := scanner.Err()
		if err == nil {
			err = io.EOF
		}
		failed <- err
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-failed:
			return err
		case line := <-lines:
			if !s.Dispatch(line) {
				return nil
			}
		}
	}
}
