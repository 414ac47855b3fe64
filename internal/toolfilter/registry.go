// Package toolfilter enforces per-conversation tool allow/deny policies.
// A filter is registered when a subagent's conversation id becomes known
// and consulted before any tool call executes.
package toolfilter

import "sync"

// Filter is the tool policy for one conversation.
type Filter struct {
	// Allowed restricts the conversation to the named tools.
	// A nil slice means "allow anything not denied".
	Allowed []string
	// Disallowed tools are always denied. Deny wins over allow.
	Disallowed []string
}

// Registry holds tool filters keyed by conversation id.
// Conversations without a registered filter are unrestricted; this covers
// the lead conversation and any conversation not yet known to be a
// subagent.
type Registry struct {
	mu      sync.RWMutex
	filters map[string]Filter
}

// NewRegistry creates an empty filter registry.
func NewRegistry() *Registry {
	return &Registry{filters: make(map[string]Filter)}
}

// Register installs the filter for a conversation.
// Registration is overwrite, not additive: registering twice with the same
// filter yields identical decisions to registering once.
func (r *Registry) Register(conversationID string, f Filter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters[conversationID] = f
}

// Remove deletes the filter for a conversation.
func (r *Registry) Remove(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.filters, conversationID)
}

// Clear drops all registered filters.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters = make(map[string]Filter)
}

// IsAllowed reports whether the named tool may execute on the given
// conversation. The deny-list is checked first and always wins; otherwise
// a non-nil allow-list must contain the tool.
func (r *Registry) IsAllowed(conversationID, toolName string) bool {
	r.mu.RLock()
	f, ok := r.filters[conversationID]
	r.mu.RUnlock()

	if !ok {
		return true
	}

	for _, denied := range f.Disallowed {
		if denied == toolName {
			return false
		}
	}

	if f.Allowed == nil {
		return true
	}
	for _, allowed := range f.Allowed {
		if allowed == toolName {
			return true
		}
	}
	return false
}
