package main

import (
	"testing"
)

func TestAuditShowsRecordedEntries(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"guard", "check", "delete_repo"}, env.socketPath, env.configPath); err != nil {
		t.Fatalf("guard check: %v", err)
	}

	out, _, err := runCLI(t, []string{"audit"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	requireContains(t, out, "tool:delete_repo")
	requireContains(t, out, "deny")
}

func TestAuditEmptyLog(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"audit"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	requireContains(t, out, "No audit entries recorded")
}
