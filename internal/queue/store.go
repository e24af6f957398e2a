package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"triage/internal/config"
)

// Store manages queue persistence backed by SQLite.
type Store struct {
	db         *sql.DB
	path       string
	maxRetries int
}

// Open initializes or connects to the queue database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "queue.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, maxRetries: cfg.Workflow.MaxRetries}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the queue database location.
func (s *Store) Path() string {
	return s.path
}

// MaxRetries returns the configured retry ceiling applied on failures.
func (s *Store) MaxRetries() int {
	return s.maxRetries
}

// Enqueue inserts a new pending item for an issue. Enqueuing an issue that is
// already pending or processing fails with ErrDuplicateItem. An issue whose
// previous item reached a terminal status is re-enqueued fresh: status back to
// pending, retry count zeroed, and a new enqueue timestamp.
func (s *Store) Enqueue(ctx context.Context, issueNumber int64, priority Priority, title, url string) (*Item, error) {
	if _, ok := priorityRanks[priority]; !ok {
		return nil, fmt.Errorf("unknown priority %q", priority)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin enqueue tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existingStatus string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM queue_items WHERE issue_number = ?`, issueNumber,
	).Scan(&existingStatus)
	switch {
	case err == nil:
		if !Status(existingStatus).IsTerminal() {
			return nil, duplicateItemError(issueNumber, Status(existingStatus))
		}
		now := time.Now().UTC().Format(time.RFC3339Nano)
		_, err = tx.ExecContext(ctx,
			`UPDATE queue_items
             SET title = ?, url = ?, priority = ?, priority_rank = ?, status = ?,
                 enqueued_at = ?, started_at = NULL, completed_at = NULL,
                 updated_at = ?, retry_count = 0, error_message = NULL
             WHERE issue_number = ?`,
			nullableString(title), nullableString(url),
			priority, priority.Rank(), StatusPending,
			now, now, issueNumber,
		)
		if err != nil {
			return nil, fmt.Errorf("re-enqueue issue: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		now := time.Now().UTC().Format(time.RFC3339Nano)
		_, err = tx.ExecContext(ctx,
			`INSERT INTO queue_items (
                issue_number, title, url, priority, priority_rank, status,
                enqueued_at, updated_at, retry_count
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`,
			issueNumber, nullableString(title), nullableString(url),
			priority, priority.Rank(), StatusPending, now, now,
		)
		if err != nil {
			return nil, fmt.Errorf("insert issue: %w", err)
		}
	default:
		return nil, fmt.Errorf("check existing issue: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit enqueue: %w", err)
	}
	return s.GetByIssue(ctx, issueNumber)
}

// GetByIssue fetches a queue item by issue number. Returns nil when absent.
func (s *Store) GetByIssue(ctx context.Context, issueNumber int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE issue_number = ?`, issueNumber)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// List returns a read-only snapshot of queue items, optionally filtered by
// status. Pending items come first in dequeue order (priority rank descending,
// enqueue time ascending); everything else follows in insertion order.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + itemColumns + ` FROM queue_items`
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+` ORDER BY id`)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`) ORDER BY id`, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortForListing(items)
	return items, nil
}

// sortForListing places pending items first in dequeue order and keeps the
// remainder in insertion order.
func sortForListing(items []*Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		aPending := a.Status == StatusPending
		bPending := b.Status == StatusPending
		if aPending != bPending {
			return aPending
		}
		if !aPending {
			return a.ID < b.ID
		}
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
			return a.EnqueuedAt.Before(b.EnqueuedAt)
		}
		return a.IssueNumber < b.IssueNumber
	})
}

// Stats returns a count of items grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusProcessing:
			health.Processing += count
		case StatusCompleted:
			health.Completed += count
		case StatusFailed:
			health.Failed += count
		}
	}
	return health, nil
}

// DequeueNext selects the pending item with the highest priority (oldest
// enqueue time breaking ties), transitions it to processing, and returns it.
// Returns nil when no pending items exist. Fails with ErrConcurrentProcessing
// if another item is already processing.
func (s *Store) DequeueNext(ctx context.Context) (*Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin dequeue tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var processing int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM queue_items WHERE status = ?`, StatusProcessing,
	).Scan(&processing); err != nil {
		return nil, fmt.Errorf("count processing items: %w", err)
	}
	if processing > 0 {
		return nil, ErrConcurrentProcessing
	}

	row := tx.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM queue_items
         WHERE status = ?
         ORDER BY priority_rank DESC, enqueued_at ASC, issue_number ASC
         LIMIT 1`,
		StatusPending,
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select next pending: %w", err)
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx,
		`UPDATE queue_items SET status = ?, started_at = ?, updated_at = ? WHERE id = ?`,
		StatusProcessing, timestamp, timestamp, item.ID,
	); err != nil {
		return nil, fmt.Errorf("transition to processing: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit dequeue: %w", err)
	}

	item.Status = StatusProcessing
	item.StartedAt = &now
	item.UpdatedAt = now
	return item, nil
}

// MarkCompleted records the outcome of a processing attempt. Success moves the
// item to completed. Failure applies the retry policy: while the retry count is
// below the configured maximum the item is returned to pending with the count
// incremented and its original enqueue time preserved (so a retried item keeps
// its fairness position within its priority band); otherwise it goes terminal
// failed with the error message recorded.
func (s *Store) MarkCompleted(ctx context.Context, issueNumber int64, success bool, errMsg string) (*Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin completion tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE issue_number = ?`, issueNumber)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: issue #%d", ErrNotFound, issueNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("load item for completion: %w", err)
	}
	if item.Status != StatusProcessing {
		return nil, fmt.Errorf("issue #%d is %s, expected %s", issueNumber, item.Status, StatusProcessing)
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	switch {
	case success:
		_, err = tx.ExecContext(ctx,
			`UPDATE queue_items
             SET status = ?, completed_at = ?, updated_at = ?, error_message = NULL
             WHERE id = ?`,
			StatusCompleted, timestamp, timestamp, item.ID,
		)
		item.Status = StatusCompleted
		item.CompletedAt = &now
		item.ErrorMessage = ""
	case item.RetryCount < s.maxRetries:
		_, err = tx.ExecContext(ctx,
			`UPDATE queue_items
             SET status = ?, started_at = NULL, updated_at = ?,
                 retry_count = retry_count + 1, error_message = ?
             WHERE id = ?`,
			StatusPending, timestamp, nullableString(errMsg), item.ID,
		)
		item.Status = StatusPending
		item.StartedAt = nil
		item.RetryCount++
		item.ErrorMessage = errMsg
	default:
		_, err = tx.ExecContext(ctx,
			`UPDATE queue_items
             SET status = ?, completed_at = ?, updated_at = ?, error_message = ?
             WHERE id = ?`,
			StatusFailed, timestamp, timestamp, nullableString(errMsg), item.ID,
		)
		item.Status = StatusFailed
		item.CompletedAt = &now
		item.ErrorMessage = errMsg
	}
	if err != nil {
		return nil, fmt.Errorf("record completion: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit completion: %w", err)
	}
	item.UpdatedAt = now
	return item, nil
}

const itemColumns = "id, issue_number, title, url, priority, status, enqueued_at, started_at, completed_at, updated_at, retry_count, error_message"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id           int64
		issueNumber  int64
		title        sql.NullString
		url          sql.NullString
		priorityStr  string
		statusStr    string
		enqueuedRaw  string
		startedRaw   sql.NullString
		completedRaw sql.NullString
		updatedRaw   string
		retryCount   int
		errorMessage sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&issueNumber,
		&title,
		&url,
		&priorityStr,
		&statusStr,
		&enqueuedRaw,
		&startedRaw,
		&completedRaw,
		&updatedRaw,
		&retryCount,
		&errorMessage,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:           id,
		IssueNumber:  issueNumber,
		Title:        title.String,
		URL:          url.String,
		Priority:     Priority(priorityStr),
		Status:       Status(statusStr),
		RetryCount:   retryCount,
		ErrorMessage: errorMessage.String,
	}

	if enqueued, err := parseTimeString(enqueuedRaw); err == nil {
		item.EnqueuedAt = enqueued
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		item.UpdatedAt = updated
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			item.StartedAt = &started
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			item.CompletedAt = &completed
		}
	}
	return item, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
