package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"triage/internal/config"
	"triage/internal/logging"
)

// Result classifies the outcome recorded by an entry.
const (
	ResultAllow = "allow"
	ResultDeny  = "deny"
)

// Entry is a single security-relevant event. Entries are append-only; nothing
// in this package mutates or deletes them once written.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	Detail    string    `json:"detail"`
	Result    string    `json:"result"`
}

// Sink receives audit entries. Append must never return an error to callers;
// implementations deal with persistence failures themselves.
type Sink interface {
	Append(entry Entry)
}

// Log appends entries to a JSONL file. Write failures are logged to the
// operational logger and swallowed so audit durability can never block or
// fail the guarded operation.
type Log struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	logger *slog.Logger
}

// Open creates or appends to the audit log under the configured log directory.
func Open(cfg *config.Config, logger *slog.Logger) (*Log, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	path := filepath.Join(cfg.Paths.LogDir, "audit.jsonl")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure audit directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &Log{
		path:   path,
		file:   file,
		logger: logging.NewComponentLogger(logger, "audit"),
	}, nil
}

// Path returns the audit log file location.
func (l *Log) Path() string {
	return l.path
}

// Append writes one entry. A zero timestamp is filled with the current time.
func (l *Log) Append(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	line, err := json.Marshal(entry)
	if err != nil {
		l.logger.Error("audit entry not serializable",
			logging.Error(err),
			logging.String(logging.FieldEventType, "audit_write_failed"),
			logging.String("action", entry.Action),
		)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		l.logger.Error("audit write after close dropped",
			logging.String(logging.FieldEventType, "audit_write_failed"),
			logging.String("action", entry.Action),
		)
		return
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		l.logger.Error("audit write failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "audit_write_failed"),
			logging.String("action", entry.Action),
			logging.String(logging.FieldErrorHint, "check disk space and audit log permissions"),
		)
	}
}

// Close releases the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Recorder is an in-memory sink for tests.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// Append stores the entry in memory.
func (r *Recorder) Append(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

// Entries returns a copy of recorded entries in insertion order.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]Entry, len(r.entries))
	copy(cp, r.entries)
	return cp
}
