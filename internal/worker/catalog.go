package worker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mkarras/foreman/pkg/models"
)

// Catalog is the read-only set of worker definitions available to one
// orchestration run: user-configured entries layered over built-in presets.
type Catalog struct {
	// user maps role name to user-configured definition.
	user map[string]models.WorkerDefinition
}

// NewCatalog builds a catalog from user-configured worker definitions.
// User entries take precedence over presets with the same role name.
func NewCatalog(userWorkers []models.WorkerDefinition) *Catalog {
	user := make(map[string]models.WorkerDefinition, len(userWorkers))
	for _, w := range userWorkers {
		if w.Role == "" {
			continue
		}
		user[w.Role] = w
	}
	return &Catalog{user: user}
}

// Resolve materializes a definition for a role: user entry first, then
// built-in preset, then a synthesized generic full-tools worker.
// The bool result reports whether the role was recognized (user or preset).
func (c *Catalog) Resolve(role string) (models.WorkerDefinition, bool) {
	if def, ok := c.user[role]; ok {
		return def, true
	}
	if def, ok := PresetByRole(role); ok {
		return def, true
	}
	return GenericWorker(role), false
}

// Roles returns all known role names (user + presets), user overrides
// deduplicated, sorted for stable prompt construction.
func (c *Catalog) Roles() []string {
	seen := make(map[string]bool)
	var roles []string
	for role := range c.user {
		seen[role] = true
		roles = append(roles, role)
	}
	for _, p := range Presets() {
		if !seen[p.Role] {
			roles = append(roles, p.Role)
		}
	}
	sort.Strings(roles)
	return roles
}

// Describe renders the catalog as one line per role for the planning
// prompt, tagging restricted workers as read-only.
func (c *Catalog) Describe() string {
	var b strings.Builder
	for _, role := range c.Roles() {
		def, _ := c.Resolve(role)
		tag := "full-tools"
		if def.ReadOnly() {
			tag = "read-only"
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", def.Role, tag, def.Description)
	}
	return b.String()
}
