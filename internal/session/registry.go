package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// ErrNotFound is returned for an unknown session id.
var ErrNotFound = errors.New("session not found")

// Registry holds the live sessions of a gateway process.
type Registry struct {
	opts Options
	deps Deps

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry. Every session it creates shares opts
// and deps.
func NewRegistry(opts Options, deps Deps) *Registry {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	return &Registry{
		opts:     opts,
		deps:     deps,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session.
func (r *Registry) Create() *Session {
	s := New(uuid.NewString(), r.opts, r.deps)
	r.mu.Lock()
	r.sessions[s.ID()] = s
	n := len(r.sessions)
	r.mu.Unlock()
	r.deps.Metrics.ActiveSessions.Set(float64(n))
	return s
}

// Get returns the session with id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete removes a session.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	r.deps.Metrics.ActiveSessions.Set(float64(n))
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// EvictIdle removes sessions unchanged for longer than maxIdle and returns how
// many were removed.
func (r *Registry) EvictIdle(maxIdle time.Duration) int {
	now := r.deps.Clock.Now()

	r.mu.Lock()
	var evicted int
	for id, s := range r.sessions {
		if now.Sub(s.UpdatedAt()) > maxIdle {
			delete(r.sessions, id)
			evicted++
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	if evicted > 0 {
		r.deps.Metrics.ActiveSessions.Set(float64(n))
		r.deps.Logger.Info("evicted idle sessions", "count", evicted, "remaining", n)
	}
	return evicted
}
