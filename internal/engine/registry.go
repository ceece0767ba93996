package engine

import (
	"log/slog"
	"sync"
)

// Registry owns the keyed session-engine cache. The check-and-create step is
// guarded so concurrent first requests for a session never construct
// duplicate engines.
type Registry struct {
	mu      sync.Mutex
	engines map[string]*Engine
	factory func(sessionID, userID string) *Engine
}

// NewRegistry creates a registry. The factory builds an engine for a session
// on first contact.
func NewRegistry(factory func(sessionID, userID string) *Engine) *Registry {
	return &Registry{
		engines: make(map[string]*Engine),
		factory: factory,
	}
}

// Get returns the engine for the session, creating it on first request.
func (r *Registry) Get(sessionID, userID string) *Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	if eng, ok := r.engines[sessionID]; ok {
		return eng
	}
	slog.Debug("Registry.Get creating engine", "sessionID", sessionID, "userID", userID)
	eng := r.factory(sessionID, userID)
	r.engines[sessionID] = eng
	return eng
}

// Remove drops the cached engine for a session.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.engines, sessionID)
}

// Len returns the number of cached engines.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.engines)
}
