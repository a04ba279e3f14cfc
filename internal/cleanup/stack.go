package cleanup

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Guard releases a single resource.
type Guard interface {
	// Release frees the resource.
	Release(ctx context.Context) error

	// Ignorable reports whether a failing Release may be dropped.
	Ignorable() bool

	// String describes the guard for logging.
	String() string
}

// Stack holds guards in reverse order of registration.
type Stack struct {
	mu     sync.Mutex
	guards []Guard
	log    logrus.FieldLogger
}

// NewStack returns an empty Stack. A nil logger uses the logrus standard logger.
func NewStack(log logrus.FieldLogger) *Stack {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Stack{log: log}
}

// Push registers g to be released before everything pushed earlier.
func (s *Stack) Push(g Guard) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.guards = append(s.guards, g)
}

// Len returns the number of pending guards.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.guards)
}

// Pending returns the pending guards in release order.
func (s *Stack) Pending() []Guard {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Guard, 0, len(s.guards))
	for i := len(s.guards) - 1; i >= 0; i-- {
		out = append(out, s.guards[i])
	}
	return out
}

// pop removes and returns the most recently pushed guard.
func (s *Stack) pop() (Guard, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.guards) == 0 {
		return nil, false
	}

	last := len(s.guards) - 1
	g := s.guards[last]
	s.guards[last] = nil
	s.guards = s.guards[:last]
	return g, true
}

// ReleaseAll releases every pending guard, most recent first, until the
// stack is empty. A guard is removed before it runs, so each runs at most
// once and a second call finds nothing to do.
//
// The returned error joins the failures of non-ignorable guards.
func (s *Stack) ReleaseAll(ctx context.Context) error {
	if s.Len() == 0 {
		return nil
	}

	s.log.Info("Cleaning up after ourselves")

	var errs []error
	for {
		g, ok := s.pop()
		if !ok {
			break
		}

		s.log.Debugf("Releasing %s", g)
		if err := g.Release(ctx); err != nil {
			if g.Ignorable() {
				s.log.WithError(err).Warnf("Ignoring failure to release %s", g)
				continue
			}
			s.log.WithError(err).Errorf("Failed to release %s", g)
			errs = append(errs, fmt.Errorf("release %s: %w", g, err))
		}
	}

	return errors.Join(errs...)
}
