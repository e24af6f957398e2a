package queue_test

import (
	"context"
	"errors"
	"testing"

	"triage/internal/queue"
	"triage/internal/testsupport"
)

func TestEnqueueAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item, err := store.Enqueue(ctx, 42, queue.PriorityNormal, "Fix the frobnicator", "https://github.com/acme/widgets/issues/42")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if item.ID == 0 {
		t.Fatal("expected item ID to be assigned")
	}
	if item.Status != queue.StatusPending {
		t.Fatalf("expected pending status, got %s", item.Status)
	}
	if item.EnqueuedAt.IsZero() {
		t.Fatal("expected enqueue timestamp to be set")
	}
	if item.RetryCount != 0 {
		t.Fatalf("expected retry count 0, got %d", item.RetryCount)
	}

	fetched, err := store.GetByIssue(ctx, 42)
	if err != nil {
		t.Fatalf("GetByIssue failed: %v", err)
	}
	if fetched == nil || fetched.Title != "Fix the frobnicator" {
		t.Fatalf("unexpected fetched item: %#v", fetched)
	}
}

func TestEnqueueRejectsActiveDuplicate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.Enqueue(t, store, 7, queue.PriorityNormal)

	if _, err := store.Enqueue(ctx, 7, queue.PriorityHigh, "", ""); !errors.Is(err, queue.ErrDuplicateItem) {
		t.Fatalf("expected ErrDuplicateItem, got %v", err)
	}
}

func TestEnqueueReusesTerminalItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.Enqueue(t, store, 9, queue.PriorityLow)
	if _, err := store.DequeueNext(ctx); err != nil {
		t.Fatalf("DequeueNext failed: %v", err)
	}
	if _, err := store.MarkCompleted(ctx, 9, true, ""); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	item, err := store.Enqueue(ctx, 9, queue.PriorityUrgent, "", "")
	if err != nil {
		t.Fatalf("re-enqueue failed: %v", err)
	}
	if item.Status != queue.StatusPending || item.Priority != queue.PriorityUrgent {
		t.Fatalf("unexpected re-enqueued item: %+v", item)
	}
	if item.RetryCount != 0 || item.CompletedAt != nil {
		t.Fatalf("expected fresh lifecycle fields, got %+v", item)
	}
}

func TestDequeueNextPriorityOrdering(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.Enqueue(t, store, 1, queue.PriorityNormal)
	testsupport.Enqueue(t, store, 2, queue.PriorityHigh)
	testsupport.Enqueue(t, store, 3, queue.PriorityLow)
	testsupport.Enqueue(t, store, 4, queue.PriorityHigh)

	want := []int64{2, 4, 1, 3}
	for _, expected := range want {
		item, err := store.DequeueNext(ctx)
		if err != nil {
			t.Fatalf("DequeueNext failed: %v", err)
		}
		if item == nil || item.IssueNumber != expected {
			t.Fatalf("expected issue #%d next, got %#v", expected, item)
		}
		if item.StartedAt == nil {
			t.Fatal("expected StartedAt to be set on dequeue")
		}
		if _, err := store.MarkCompleted(ctx, item.IssueNumber, true, ""); err != nil {
			t.Fatalf("MarkCompleted failed: %v", err)
		}
	}

	item, err := store.DequeueNext(ctx)
	if err != nil {
		t.Fatalf("DequeueNext on empty queue failed: %v", err)
	}
	if item != nil {
		t.Fatalf("expected nil on empty queue, got %+v", item)
	}
}

func TestDequeueNextRejectsConcurrentProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.Enqueue(t, store, 1, queue.PriorityNormal)
	testsupport.Enqueue(t, store, 2, queue.PriorityNormal)

	if _, err := store.DequeueNext(ctx); err != nil {
		t.Fatalf("first DequeueNext failed: %v", err)
	}
	if _, err := store.DequeueNext(ctx); !errors.Is(err, queue.ErrConcurrentProcessing) {
		t.Fatalf("expected ErrConcurrentProcessing, got %v", err)
	}
}

func TestMarkCompletedRetryPolicy(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxRetries(2))
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.Enqueue(t, store, 3, queue.PriorityNormal)

	// Two failures re-enter the queue with incremented retry counts.
	for attempt := 1; attempt <= 2; attempt++ {
		item, err := store.DequeueNext(ctx)
		if err != nil || item == nil {
			t.Fatalf("DequeueNext attempt %d: item=%v err=%v", attempt, item, err)
		}
		updated, err := store.MarkCompleted(ctx, 3, false, "handler exploded")
		if err != nil {
			t.Fatalf("MarkCompleted attempt %d: %v", attempt, err)
		}
		if updated.Status != queue.StatusPending {
			t.Fatalf("attempt %d: expected pending, got %s", attempt, updated.Status)
		}
		if updated.RetryCount != attempt {
			t.Fatalf("attempt %d: expected retry count %d, got %d", attempt, attempt, updated.RetryCount)
		}
	}

	// Third failure exhausts retries and goes terminal.
	if _, err := store.DequeueNext(ctx); err != nil {
		t.Fatalf("final DequeueNext: %v", err)
	}
	final, err := store.MarkCompleted(ctx, 3, false, "handler exploded")
	if err != nil {
		t.Fatalf("final MarkCompleted: %v", err)
	}
	if final.Status != queue.StatusFailed {
		t.Fatalf("expected failed, got %s", final.Status)
	}
	if final.RetryCount != 2 {
		t.Fatalf("expected retry count 2, got %d", final.RetryCount)
	}
	if final.ErrorMessage != "handler exploded" {
		t.Fatalf("expected error message recorded, got %q", final.ErrorMessage)
	}
	if final.CompletedAt == nil {
		t.Fatal("expected CompletedAt on terminal failure")
	}
}

func TestRetryPreservesEnqueueTime(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxRetries(1))
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	original := testsupport.Enqueue(t, store, 5, queue.PriorityNormal)

	if _, err := store.DequeueNext(ctx); err != nil {
		t.Fatalf("DequeueNext failed: %v", err)
	}
	retried, err := store.MarkCompleted(ctx, 5, false, "boom")
	if err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	if !retried.EnqueuedAt.Equal(original.EnqueuedAt) {
		t.Fatalf("expected enqueue time preserved on retry: %v != %v", retried.EnqueuedAt, original.EnqueuedAt)
	}
}

func TestListOrdersPendingFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.Enqueue(t, store, 1, queue.PriorityLow)
	testsupport.Enqueue(t, store, 2, queue.PriorityUrgent)
	testsupport.Enqueue(t, store, 3, queue.PriorityNormal)

	// Complete issue 1 so the list mixes pending and terminal items.
	next, err := store.DequeueNext(ctx)
	if err != nil || next == nil {
		t.Fatalf("DequeueNext: item=%v err=%v", next, err)
	}
	if _, err := store.MarkCompleted(ctx, next.IssueNumber, true, ""); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	items, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	// Issue 2 (urgent) was dequeued and completed; 3 and 1 remain pending.
	if items[0].IssueNumber != 3 || items[0].Status != queue.StatusPending {
		t.Fatalf("expected pending issue #3 first, got %+v", items[0])
	}
	if items[1].IssueNumber != 1 || items[1].Status != queue.StatusPending {
		t.Fatalf("expected pending issue #1 second, got %+v", items[1])
	}
	if items[2].IssueNumber != 2 || items[2].Status != queue.StatusCompleted {
		t.Fatalf("expected completed issue #2 last, got %+v", items[2])
	}
}

func TestStatsAndHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxRetries(0))
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.Enqueue(t, store, 1, queue.PriorityNormal)
	testsupport.Enqueue(t, store, 2, queue.PriorityNormal)
	testsupport.Enqueue(t, store, 3, queue.PriorityNormal)

	if _, err := store.DequeueNext(ctx); err != nil {
		t.Fatalf("DequeueNext failed: %v", err)
	}
	if _, err := store.MarkCompleted(ctx, 1, false, "no retries configured"); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[queue.StatusPending] != 2 || stats[queue.StatusFailed] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 3 || health.Pending != 2 || health.Failed != 1 {
		t.Fatalf("unexpected health summary: %+v", health)
	}
}

func TestResetStuckProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.Enqueue(t, store, 1, queue.PriorityNormal)
	if _, err := store.DequeueNext(ctx); err != nil {
		t.Fatalf("DequeueNext failed: %v", err)
	}

	count, err := store.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetStuckProcessing failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 item reset, got %d", count)
	}

	item, err := store.GetByIssue(ctx, 1)
	if err != nil {
		t.Fatalf("GetByIssue failed: %v", err)
	}
	if item.Status != queue.StatusPending || item.StartedAt != nil {
		t.Fatalf("expected reset to pending, got %+v", item)
	}
}

func TestRetryFailedZeroesRetryCount(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxRetries(0))
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.Enqueue(t, store, 1, queue.PriorityNormal)
	if _, err := store.DequeueNext(ctx); err != nil {
		t.Fatalf("DequeueNext failed: %v", err)
	}
	if _, err := store.MarkCompleted(ctx, 1, false, "boom"); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	count, err := store.RetryFailed(ctx, 1)
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 item retried, got %d", count)
	}

	item, err := store.GetByIssue(ctx, 1)
	if err != nil {
		t.Fatalf("GetByIssue failed: %v", err)
	}
	if item.Status != queue.StatusPending || item.RetryCount != 0 || item.ErrorMessage != "" {
		t.Fatalf("expected clean pending item, got %+v", item)
	}
}

func TestClearVariants(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxRetries(0))
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.Enqueue(t, store, 1, queue.PriorityNormal)
	testsupport.Enqueue(t, store, 2, queue.PriorityNormal)
	testsupport.Enqueue(t, store, 3, queue.PriorityNormal)

	if _, err := store.DequeueNext(ctx); err != nil {
		t.Fatalf("DequeueNext failed: %v", err)
	}
	if _, err := store.MarkCompleted(ctx, 1, true, ""); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	if _, err := store.DequeueNext(ctx); err != nil {
		t.Fatalf("DequeueNext failed: %v", err)
	}
	if _, err := store.MarkCompleted(ctx, 2, false, "boom"); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	removed, err := store.ClearCompleted(ctx)
	if err != nil || removed != 1 {
		t.Fatalf("ClearCompleted: removed=%d err=%v", removed, err)
	}
	removed, err = store.ClearFailed(ctx)
	if err != nil || removed != 1 {
		t.Fatalf("ClearFailed: removed=%d err=%v", removed, err)
	}
	removed, err = store.Clear(ctx)
	if err != nil || removed != 1 {
		t.Fatalf("Clear: removed=%d err=%v", removed, err)
	}
}

func TestCheckHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	testsupport.Enqueue(t, store, 1, queue.PriorityNormal)

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.TableExists {
		t.Fatalf("unexpected health: %+v", health)
	}
	if !health.IntegrityCheck || health.TotalItems != 1 {
		t.Fatalf("unexpected health: %+v", health)
	}
}
