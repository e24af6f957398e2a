package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"triage/internal/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing config")
	}
	if cfg.Security.Mode != "deny" {
		t.Fatalf("expected default-deny mode, got %q", cfg.Security.Mode)
	}
	if cfg.Workflow.MaxRetries != 2 {
		t.Fatalf("expected default max retries 2, got %d", cfg.Workflow.MaxRetries)
	}
	if len(cfg.Security.DenyRules) == 0 {
		t.Fatal("expected default deny rules")
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	path := writeConfig(t, `
[github]
repo = "acme/widgets"

[workflow]
schedule = "*/15 * * * *"
max_retries = 5

[security]
mode = "allow"
allow_tools = ["Read"]

[[security.deny_rules]]
pattern = 'curl .*\| sh'
reason = "remote shell"
`)

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected exists=true")
	}
	if cfg.GitHub.Repo != "acme/widgets" {
		t.Fatalf("unexpected repo %q", cfg.GitHub.Repo)
	}
	if cfg.Workflow.Schedule != "*/15 * * * *" || cfg.Workflow.MaxRetries != 5 {
		t.Fatalf("unexpected workflow config: %+v", cfg.Workflow)
	}
	if cfg.Security.Mode != "allow" {
		t.Fatalf("unexpected mode %q", cfg.Security.Mode)
	}
	if len(cfg.Security.DenyRules) != 1 || cfg.Security.DenyRules[0].Reason != "remote shell" {
		t.Fatalf("unexpected deny rules: %+v", cfg.Security.DenyRules)
	}
}

func TestLoadRejectsInvalidSchedule(t *testing.T) {
	path := writeConfig(t, `
[workflow]
schedule = "every now and then"
`)
	if _, _, _, err := config.Load(path); err == nil || !strings.Contains(err.Error(), "workflow.schedule") {
		t.Fatalf("expected schedule validation error, got %v", err)
	}
}

func TestLoadRejectsInvalidDenyPattern(t *testing.T) {
	path := writeConfig(t, `
[[security.deny_rules]]
pattern = "("
reason = "broken"
`)
	if _, _, _, err := config.Load(path); err == nil || !strings.Contains(err.Error(), "deny_rules") {
		t.Fatalf("expected deny rule validation error, got %v", err)
	}
}

func TestLoadRejectsInvalidMode(t *testing.T) {
	path := writeConfig(t, `
[security]
mode = "maybe"
`)
	if _, _, _, err := config.Load(path); err == nil || !strings.Contains(err.Error(), "security.mode") {
		t.Fatalf("expected mode validation error, got %v", err)
	}
}

func TestLoadRejectsMalformedRepo(t *testing.T) {
	path := writeConfig(t, `
[github]
repo = "not-a-repo"
`)
	if _, _, _, err := config.Load(path); err == nil || !strings.Contains(err.Error(), "github.repo") {
		t.Fatalf("expected repo validation error, got %v", err)
	}
}

func TestResolvedSocketPathDefaultsUnderDataDir(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = "/tmp/triage-test"
	if got := cfg.ResolvedSocketPath(); got != "/tmp/triage-test/triaged.sock" {
		t.Fatalf("unexpected socket path %q", got)
	}
	cfg.Paths.SocketPath = "/run/custom.sock"
	if got := cfg.ResolvedSocketPath(); got != "/run/custom.sock" {
		t.Fatalf("unexpected socket path %q", got)
	}
}
