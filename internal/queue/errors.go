package queue

import (
	"errors"
	"fmt"
)

// ErrDuplicateItem indicates an enqueue for an issue that is already active.
var ErrDuplicateItem = errors.New("issue already queued")

// ErrConcurrentProcessing indicates a second dequeue while an item is still
// processing. The scheduler's run lock makes this unreachable in practice; a
// hit means the single-flight invariant was violated and the run must stop.
var ErrConcurrentProcessing = errors.New("another item is already processing")

// ErrNotFound indicates the referenced issue has no queue item.
var ErrNotFound = errors.New("queue item not found")

// DuplicateItemError wraps ErrDuplicateItem with the conflicting issue state.
func duplicateItemError(issueNumber int64, status Status) error {
	return fmt.Errorf("%w: issue #%d is %s", ErrDuplicateItem, issueNumber, status)
}
