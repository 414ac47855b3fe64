package config

import (
	"strings"
	"testing"
)

func TestGetAPIKeyFromEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env-key")

	key, err := GetAPIKey(nil)
	if err != nil {
		t.Fatalf("GetAPIKey failed: %v", err)
	}
	if key != "sk-ant-env-key" {
		t.Errorf("unexpected key %q", key)
	}
}

func TestGetAPIKeyFromConfig(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg := Default()
	cfg.Anthropic.APIKey = "sk-ant-config-key"
	key, err := GetAPIKey(cfg)
	if err != nil {
		t.Fatalf("GetAPIKey failed: %v", err)
	}
	if key != "sk-ant-config-key" {
		t.Errorf("unexpected key %q", key)
	}
}

func TestGetAPIKeyMissing(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	if _, err := GetAPIKey(Default()); err != ErrNoAPIKey {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestValidateAPIKey(t *testing.T) {
	cases := []struct {
		key     string
		wantErr bool
	}{
		{"", true},
		{"sk-ant-short", true},
		{"not-a-key-at-all-really", true},
		{"sk-ant-REDACTED", false},
	}
	for _, tc := range cases {
		err := ValidateAPIKey(tc.key)
		if tc.wantErr && err == nil {
			t.Errorf("ValidateAPIKey(%q) should fail", tc.key)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("ValidateAPIKey(%q) failed: %v", tc.key, err)
		}
	}
}

func TestMaskAPIKey(t *testing.T) {
	if got := MaskAPIKey(""); got != "(not set)" {
		t.Errorf("empty key mask %q", got)
	}

	masked := MaskAPIKey("sk-ant-REDACTED")
	if !strings.HasPrefix(masked, "sk-ant-") {
		t.Errorf("mask should keep the prefix, got %q", masked)
	}
	if strings.Contains(masked, "abcdefghijkl") {
		t.Errorf("mask leaks the key body: %q", masked)
	}
}
