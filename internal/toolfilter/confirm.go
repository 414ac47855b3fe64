package toolfilter

import "sync"

// ConfirmationCache remembers which tools the user has approved for the
// current session, so repeated calls to the same tool do not re-prompt.
// The cache is scoped to one orchestration run and passed explicitly into
// the tool-execution path rather than held as process-wide state.
type ConfirmationCache struct {
	mu        sync.Mutex
	confirmed map[string]bool
}

// NewConfirmationCache creates an empty cache.
func NewConfirmationCache() *ConfirmationCache {
	return &ConfirmationCache{confirmed: make(map[string]bool)}
}

// Confirmed reports whether the tool was already approved this session.
func (c *ConfirmationCache) Confirmed(toolName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.confirmed[toolName]
}

// Confirm records approval for a tool.
func (c *ConfirmationCache) Confirm(toolName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confirmed[toolName] = true
}

// Reset clears all recorded approvals.
func (c *ConfirmationCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confirmed = make(map[string]bool)
}
