package session

import (
	"context"
	"sync"
)

// Stats is a point-in-time census of live sessions for the health surface.
type Stats struct {
	// Sessions is the number of live sessions.
	Sessions int

	// Recording is the number of sessions currently accepting audio chunks.
	Recording int
}

// Registry tracks live sessions by id, one per transport connection.
// All methods are safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	sessions map[string]*Session
}

// NewRegistry creates a registry whose sessions share cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the session for id, creating it lazily on first use.
// ctx and emitter bind a new session to its connection and are ignored when
// the session already exists.
func (r *Registry) GetOrCreate(ctx context.Context, id string, emitter Emitter) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return s
	}
	s := New(ctx, id, emitter, r.cfg)
	r.sessions[id] = s
	return s
}

// Remove tears the session down synchronously: in-flight streaming and
// synthesis are cancelled, buffers released, and the id freed. Unknown ids
// are a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		s.Close()
	}
}

// CloseAll removes and closes every live session. Used at server shutdown:
// the closed session contexts unblock the gateway read loops, which then
// release their connections.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	closing := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		closing = append(closing, s)
	}
	clear(r.sessions)
	r.mu.Unlock()

	for _, s := range closing {
		s.Close()
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Stats counts live and currently-recording sessions.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Stats{Sessions: len(r.sessions)}
	for _, s := range r.sessions {
		if s.Recording() {
			st.Recording++
		}
	}
	return st
}

// UpdateConfig swaps the template used for sessions created from now on.
// Live sessions keep the settings they were created with.
func (r *Registry) UpdateConfig(cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
}
