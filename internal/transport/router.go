package transport

import "sync"

// Listener receives progress events for one in-flight turn.
type Listener func(ProgressEvent)

// Router fans streaming progress events out to per-call listeners keyed by
// work-done token. Registration is overwrite: registering a token twice
// replaces the previous listener.
type Router struct {
	mu        sync.RWMutex
	listeners map[string]Listener
}

// NewRouter creates an empty progress router.
func NewRouter() *Router {
	return &Router{listeners: make(map[string]Listener)}
}

// Register installs a listener for the given token.
func (r *Router) Register(token string, fn Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[token] = fn
}

// Deregister removes the listener for the given token.
// Safe to call for tokens that were never registered.
func (r *Router) Deregister(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.listeners, token)
}

// Dispatch delivers an event to the listener registered under token.
// Events for unknown tokens are dropped; a late event from a call whose
// listener was already deregistered must not reach anyone.
func (r *Router) Dispatch(token string, event ProgressEvent) {
	r.mu.RLock()
	fn := r.listeners[token]
	r.mu.RUnlock()

	if fn != nil {
		fn(event)
	}
}

// Len returns the number of registered listeners.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}
