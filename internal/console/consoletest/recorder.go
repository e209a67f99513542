// Package consoletest provides a console.Reporter that records messages for
// assertions in tests.
package consoletest

import (
	"strings"
	"sync"

	"github.com/mickyco94/automate/internal/console"
)

// Entry is one recorded message
type Entry struct {
	Level console.Level
	Exec  int64
	Msg   string
}

// Recorder is a console.Reporter that keeps every message in memory
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
	clears  int
}

func (r *Recorder) Message(level console.Level, exec int64, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Level: level, Exec: exec, Msg: msg})
}

func (r *Recorder) Line(exec int64, msg string) {
	r.Message(console.Infer(msg), exec, msg)
}

func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clears++
}

// Entries returns a copy of everything recorded so far
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Messages returns the text of every entry recorded at level
func (r *Recorder) Messages(level console.Level) []string {
	var msgs []string
	for _, e := range r.Entries() {
		if e.Level == level {
			msgs = append(msgs, e.Msg)
		}
	}
	return msgs
}

// Count returns the number of entries containing substr
func (r *Recorder) Count(substr string) int {
	n := 0
	for _, e := range r.Entries() {
		if strings.Contains(e.Msg, substr) {
			n++
		}
	}
	return n
}

// Clears returns how many times Clear was called
func (r *Recorder) Clears() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clears
}
