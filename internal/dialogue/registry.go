package dialogue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Factory builds a fresh session for id.
type Factory func(id string) *Session

// Registry holds live sessions keyed by id.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	factory  Factory
	now      func() time.Time
}

func NewRegistry(f Factory) *Registry {
	return &Registry{sessions: make(map[string]*Session), factory: f, now: time.Now}
}

// Create starts a new session under a random id.
func (r *Registry) Create() *Session {
	id := uuid.NewString()
	s := r.factory(id)
	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	return s
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	return s, nil
}

// GetOrCreate returns the session for id, creating a new one when id is
// empty or unknown. The bool reports whether a session was created.
func (r *Registry) GetOrCreate(id string) (*Session, bool) {
	if id != "" {
		if s, err := r.Get(id); err == nil {
			return s, false
		}
	}
	return r.Create(), true
}

// Close archives and removes a session.
func (r *Registry) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}
	s.Close(ctx)
	return nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes sessions idle for longer than idle and returns how many
// were removed.
func (r *Registry) Sweep(ctx context.Context, idle time.Duration) int {
	cutoff := r.now().Add(-idle)
	r.mu.Lock()
	var stale []*Session
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			stale = append(stale, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()
	for _, s := range stale {
		s.Close(ctx)
	}
	return len(stale)
}
