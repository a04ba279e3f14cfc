// Package shelltest provides a fake shell.Runner for tests.
package shelltest

import (
	"context"
	"strings"
	"sync"

	"github.com/jbweber/vmbuilder/internal/shell"
)

// Handler produces the result of a recorded command.
type Handler func(args []string) ([]byte, error)

// Recorder is a shell.Runner that records every command instead of running
// it. Commands succeed with empty output unless a Handler is registered for
// the command name.
type Recorder struct {
	mu       sync.Mutex
	handlers map[string]Handler
	calls    []string
}

var _ shell.Runner = (*Recorder)(nil)

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{handlers: make(map[string]Handler)}
}

// Handle registers h for commands named name.
func (r *Recorder) Handle(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[name] = h
}

// Run implements shell.Runner.
func (r *Recorder) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, shell.CommandLine(name, args...))
	h := r.handlers[name]
	r.mu.Unlock()

	if h == nil {
		return nil, nil
	}
	return h(args)
}

// Calls returns every recorded command line.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.calls...)
}

// CallsTo returns the recorded command lines starting with name.
func (r *Recorder) CallsTo(name string) []string {
	var out []string
	for _, c := range r.Calls() {
		if c == name || strings.HasPrefix(c, name+" ") {
			out = append(out, c)
		}
	}
	return out
}
