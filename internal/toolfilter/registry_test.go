package toolfilter

import "testing"

func TestIsAllowedNoFilter(t *testing.T) {
	registry := NewRegistry()

	// Unknown conversations are unrestricted (lead conversation default).
	if !registry.IsAllowed("conv-lead", "run_in_terminal") {
		t.Error("expected unrestricted access for conversation without a filter")
	}
}

func TestIsAllowedDenyWinsOverAllow(t *testing.T) {
	registry := NewRegistry()
	registry.Register("conv-1", Filter{
		Allowed:    []string{"read_file", "delegate_task"},
		Disallowed: []string{"delegate_task"},
	})

	if registry.IsAllowed("conv-1", "delegate_task") {
		t.Error("deny-list must win even when the tool is also allowed")
	}
	if !registry.IsAllowed("conv-1", "read_file") {
		t.Error("expected read_file to be allowed")
	}
}

func TestIsAllowedRestrictedAllowList(t *testing.T) {
	registry := NewRegistry()
	registry.Register("conv-1", Filter{
		Allowed:    []string{"read_file"},
		Disallowed: []string{"delegate_task", "create_team", "send_message", "delete_team"},
	})

	// Not denied, but absent from a non-nil allow-list: denied.
	if registry.IsAllowed("conv-1", "run_in_terminal") {
		t.Error("expected run_in_terminal to be denied: not in allow-list")
	}
	if !registry.IsAllowed("conv-1", "read_file") {
		t.Error("expected read_file to be allowed")
	}
}

func TestIsAllowedNilAllowList(t *testing.T) {
	registry := NewRegistry()
	registry.Register("conv-1", Filter{Disallowed: []string{"delete_team"}})

	if !registry.IsAllowed("conv-1", "write_file") {
		t.Error("nil allow-list should allow anything not denied")
	}
	if registry.IsAllowed("conv-1", "delete_team") {
		t.Error("expected delete_team to be denied")
	}
}

func TestRegisterIsIdempotentOverwrite(t *testing.T) {
	registry := NewRegistry()
	filter := Filter{Allowed: []string{"read_file"}, Disallowed: []string{"delegate_task"}}

	before := registry.IsAllowed("conv-1", "read_file")

	registry.Register("conv-1", filter)
	first := registry.IsAllowed("conv-1", "read_file")
	registry.Register("conv-1", filter)
	second := registry.IsAllowed("conv-1", "read_file")

	if !before {
		t.Error("expected allow before registration")
	}
	if first != second {
		t.Error("registering an equivalent filter twice must not change decisions")
	}
	if registry.IsAllowed("conv-1", "other_tool") {
		t.Error("expected other_tool denied after registration")
	}
}

func TestRemoveAndClear(t *testing.T) {
	registry := NewRegistry()
	registry.Register("conv-1", Filter{Allowed: []string{}})
	registry.Register("conv-2", Filter{Allowed: []string{}})

	if registry.IsAllowed("conv-1", "read_file") {
		t.Error("empty non-nil allow-list should deny everything not denied")
	}

	registry.Remove("conv-1")
	if !registry.IsAllowed("conv-1", "read_file") {
		t.Error("removed filter should restore unrestricted access")
	}

	registry.Clear()
	if !registry.IsAllowed("conv-2", "read_file") {
		t.Error("cleared registry should be unrestricted")
	}
}

func TestConfirmationCache(t *testing.T) {
	cache := NewConfirmationCache()

	if cache.Confirmed("run_in_terminal") {
		t.Error("expected no confirmation for fresh cache")
	}

	cache.Confirm("run_in_terminal")
	if !cache.Confirmed("run_in_terminal") {
		t.Error("expected confirmation after Confirm")
	}

	cache.Reset()
	if cache.Confirmed("run_in_terminal") {
		t.Error("expected confirmation cleared after Reset")
	}
}
