package client

import "sync"

// Registry enforces the single-active-session-per-target invariant. Open
// transfers ownership of the target's slot to the new session; the previous
// holder, if any, is closed first.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Open creates a session for target and starts its state machine. An
// existing session for the same target is closed and replaced: a forbidden
// session is only ever revived through an explicit re-open like this one,
// typically with new credentials.
func (r *Registry) Open(target Target) *Session {
	key := target.Key()

	r.mu.Lock()
	prev := r.sessions[key]
	var s *Session
	s = newSession(target, func() { r.release(key, s) })
	r.sessions[key] = s
	r.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	go s.run()
	return s
}

// Get returns the active session for target, if any.
func (r *Registry) Get(target Target) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[target.Key()]
	return s, ok
}

// Close destroys the active session for target.
func (r *Registry) Close(target Target) {
	r.mu.Lock()
	s := r.sessions[target.Key()]
	r.mu.Unlock()
	if s != nil {
		s.Close()
	}
}

// CloseAll destroys every active session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

// release frees the slot when a session's state machine terminates, unless
// the slot has already been handed to a replacement.
func (r *Registry) release(key string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[key]; ok && cur == s {
		delete(r.sessions, key)
	}
}
