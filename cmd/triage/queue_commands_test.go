package main

import (
	"context"
	"strings"
	"testing"

	"triage/internal/queue"
	"triage/internal/testsupport"
)

// failIssue drives a pending item to terminal failure through the normal
// dequeue and completion path.
func failIssue(t *testing.T, store *queue.Store, issueNumber int64) {
	t.Helper()
	ctx := context.Background()
	for {
		item, err := store.DequeueNext(ctx)
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if item == nil || item.IssueNumber != issueNumber {
			t.Fatalf("expected issue #%d at queue head, got %+v", issueNumber, item)
		}
		updated, err := store.MarkCompleted(ctx, issueNumber, false, "agent exploded")
		if err != nil {
			t.Fatalf("mark failed: %v", err)
		}
		if updated.Status == queue.StatusFailed {
			return
		}
	}
}

func TestQueueStatusAndList(t *testing.T) {
	env := setupCLITestEnv(t)

	testsupport.Enqueue(t, env.store, 101, queue.PriorityNormal)
	testsupport.Enqueue(t, env.store, 102, queue.PriorityUrgent)
	failIssue(t, env.store, 102)

	out, _, err := runCLI(t, []string{"queue", "status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "Pending")
	requireContains(t, out, "Failed")

	out, _, err = runCLI(t, []string{"queue", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "#101")
	requireContains(t, out, "#102")

	out, _, err = runCLI(t, []string{"queue", "list", "--status", "failed"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list --status failed: %v", err)
	}
	requireContains(t, out, "#102")
	if strings.Contains(out, "#101") {
		t.Fatalf("failed filter leaked pending item: %q", out)
	}

	if _, _, err := runCLI(t, []string{"queue", "list", "--status", "bogus"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected error for unknown status filter")
	}
}

func TestQueueAddAndDescribe(t *testing.T) {
	env := setupCLITestEnv(t)
	env.issues.issues[42] = openIssue(42, "crash on startup", "urgent")

	out, _, err := runCLI(t, []string{"queue", "add", "42"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue add: %v", err)
	}
	requireContains(t, out, "Queued issue #42")
	requireContains(t, out, "urgent")

	out, _, err = runCLI(t, []string{"queue", "describe", "42"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue describe: %v", err)
	}
	requireContains(t, out, "crash on startup")
	requireContains(t, out, "Urgent")

	// Duplicate adds are rejected while the item is still queued.
	if _, _, err := runCLI(t, []string{"queue", "add", "42"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected duplicate add to fail")
	}
}

func TestQueueAddPriorityOverride(t *testing.T) {
	env := setupCLITestEnv(t)
	env.issues.issues[7] = openIssue(7, "typo in docs", "urgent")

	out, _, err := runCLI(t, []string{"queue", "add", "7", "--priority", "low"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue add: %v", err)
	}
	requireContains(t, out, "low")

	env.issues.issues[8] = openIssue(8, "another issue")
	if _, _, err := runCLI(t, []string{"queue", "add", "8", "--priority", "whenever"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected unknown priority to fail")
	}
}

func TestQueueSyncSkipsQueuedAndClosed(t *testing.T) {
	env := setupCLITestEnv(t)
	env.issues.issues[1] = openIssue(1, "first")
	env.issues.issues[2] = openIssue(2, "second")
	closed := openIssue(3, "third")
	closed.State = "closed"
	env.issues.issues[3] = closed

	testsupport.Enqueue(t, env.store, 1, queue.PriorityNormal)

	out, _, err := runCLI(t, []string{"queue", "sync"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue sync: %v", err)
	}
	requireContains(t, out, "Queued 1 issues")
}

func TestQueueRetryAndClear(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	testsupport.Enqueue(t, env.store, 55, queue.PriorityNormal)
	failIssue(t, env.store, 55)

	out, _, err := runCLI(t, []string{"queue", "retry"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "Retried 1 failed items")

	item, err := env.store.GetByIssue(ctx, 55)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if item.Status != queue.StatusPending {
		t.Fatalf("expected pending after retry, got %s", item.Status)
	}

	failIssue(t, env.store, 55)
	out, _, err = runCLI(t, []string{"queue", "clear", "--failed"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue clear --failed: %v", err)
	}
	requireContains(t, out, "Cleared 1 failed items")

	item, err = env.store.GetByIssue(ctx, 55)
	if err != nil {
		t.Fatalf("lookup after clear: %v", err)
	}
	if item != nil {
		t.Fatalf("expected item removed, got %+v", item)
	}
}

func TestQueueRemove(t *testing.T) {
	env := setupCLITestEnv(t)

	testsupport.Enqueue(t, env.store, 9, queue.PriorityNormal)

	out, _, err := runCLI(t, []string{"queue", "remove", "9"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue remove: %v", err)
	}
	requireContains(t, out, "Removed issue #9")

	out, _, err = runCLI(t, []string{"queue", "remove", "9"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue remove again: %v", err)
	}
	requireContains(t, out, "Issue #9 is not queued")
}

func TestQueueHealth(t *testing.T) {
	env := setupCLITestEnv(t)

	testsupport.Enqueue(t, env.store, 11, queue.PriorityNormal)
	testsupport.Enqueue(t, env.store, 12, queue.PriorityHigh)

	out, _, err := runCLI(t, []string{"queue", "health"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue health: %v", err)
	}
	requireContains(t, out, "Total: 2")
	requireContains(t, out, "Pending: 2")
}
