package orchestrate

import (
	"context"
	"sync"

	"github.com/kubewright/kubewright/internal/logging"
)

// CleanupStack collects teardown actions registered during an operation and
// runs them in reverse order. Run is idempotent; actions fire at most once,
// whether the run finishes normally or is interrupted.
type CleanupStack struct {
	mu      sync.Mutex
	entries []cleanupEntry
	done    bool
}

type cleanupEntry struct {
	name string
	fn   func(ctx context.Context) error
}

// Push registers an action. Later pushes run first.
func (s *CleanupStack) Push(name string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, cleanupEntry{name: name, fn: fn})
}

// Run executes all registered actions LIFO. Errors are logged, not
// returned; cleanup keeps going past a failing action.
func (s *CleanupStack) Run(ctx context.Context) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	entries := s.entries
	s.entries = nil
	s.mu.Unlock()

	log := logging.Component("cleanup")
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		log.Debug().Str("action", e.name).Msg("running cleanup")
		if err := e.fn(ctx); err != nil {
			log.Warn().Str("action", e.name).Err(err).Msg("cleanup action failed")
		}
	}
}
