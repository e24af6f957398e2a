package testsupport

import (
	"context"
	"testing"

	"triage/internal/config"
	"triage/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Enqueue adds an item for tests using the provided store.
func Enqueue(t testing.TB, store *queue.Store, issueNumber int64, priority queue.Priority) *queue.Item {
	t.Helper()

	item, err := store.Enqueue(context.Background(), issueNumber, priority, "", "")
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return item
}
