package session

import "sync"

// Registry is the set of live sessions. It holds sessions in every state, so
// callers targeting chat must check IsBound.
// All methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[*Session]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[*Session]struct{})}
}

// Register adds s. Registering a session twice keeps one entry.
//
// Precondition: s must be non-nil.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s] = struct{}{}
}

// Unregister removes s. Removing an absent session is a no-op.
func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, s)
}

// Contains reports whether s is registered.
func (r *Registry) Contains(s *Session) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[s]
	return ok
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ForEach calls visit once for every session registered at the time of the
// call, in no particular order, until visit returns false. Sessions closed
// after the snapshot was taken are skipped. visit runs outside the lock and
// may call back into the Registry.
func (r *Registry) ForEach(visit func(*Session) bool) {
	r.mu.RLock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.mu.RUnlock()

	for _, s := range snapshot {
		if s.State() == StateClosed {
			continue
		}
		if !visit(s) {
			return
		}
	}
}
