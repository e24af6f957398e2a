package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"triage/internal/config"
	"triage/internal/github"
	"triage/internal/logging"
	"triage/internal/notifications"
	"triage/internal/queue"
	"triage/internal/scheduler"
)

// IssueBrowser is the slice of the GitHub client the daemon needs for
// enqueue operations.
type IssueBrowser interface {
	GetIssue(ctx context.Context, number int64) (*github.Issue, error)
	ListOpenIssues(ctx context.Context, limit int) ([]*github.Issue, error)
}

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *queue.Store
	sched  *scheduler.Scheduler
	issues IssueBrowser

	lockPath string
	lock     *flock.Flock
	logPath  string

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Schedule     string
	NextRun      time.Time
	LastRun      *scheduler.RunReport
	QueueStats   map[queue.Status]int
	QueueDBPath  string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, sched *scheduler.Scheduler, issues IssueBrowser, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || sched == nil {
		return nil, errors.New("daemon requires config, store, and scheduler")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "triaged.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		sched:    sched,
		issues:   issues,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		logPath:  filepath.Join(cfg.Paths.LogDir, "triaged.log"),
	}, nil
}

// Start acquires the instance lock and launches the scheduler.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another triage daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.sched.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("start scheduler: %w", err)
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("triage daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.sched.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("triage daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// RunNow triggers an immediate drain run.
func (d *Daemon) RunNow(ctx context.Context) (scheduler.RunReport, error) {
	return d.sched.RunNow(ctx)
}

// AddIssue fetches the issue and enqueues it. The priority is derived from
// the issue labels unless override names a valid priority.
func (d *Daemon) AddIssue(ctx context.Context, issueNumber int64, override string) (*queue.Item, error) {
	if d.issues == nil {
		return nil, errors.New("github client unavailable")
	}
	issue, err := d.issues.GetIssue(ctx, issueNumber)
	if err != nil {
		return nil, err
	}
	if issue.IsPullRequest() {
		return nil, fmt.Errorf("#%d is a pull request", issueNumber)
	}
	if !strings.EqualFold(issue.State, "open") {
		return nil, fmt.Errorf("issue #%d is %s", issueNumber, issue.State)
	}

	priority := github.PriorityForLabels(issue.LabelNames())
	if override != "" {
		parsed, ok := queue.ParsePriority(override)
		if !ok {
			return nil, fmt.Errorf("unknown priority %q", override)
		}
		priority = parsed
	}

	item, err := d.store.Enqueue(ctx, issue.Number, priority, issue.Title, issue.HTMLURL)
	if err != nil {
		return nil, err
	}
	d.logger.Info("issue queued",
		logging.Int64(logging.FieldIssueNumber, item.IssueNumber),
		logging.String("priority", string(item.Priority)),
	)
	return item, nil
}

// SyncOpenIssues enqueues open issues that are not already queued. It returns
// the number of newly queued issues.
func (d *Daemon) SyncOpenIssues(ctx context.Context, limit int) (int, error) {
	if d.issues == nil {
		return 0, errors.New("github client unavailable")
	}
	issues, err := d.issues.ListOpenIssues(ctx, limit)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, issue := range issues {
		priority := github.PriorityForLabels(issue.LabelNames())
		_, err := d.store.Enqueue(ctx, issue.Number, priority, issue.Title, issue.HTMLURL)
		if err != nil {
			if errors.Is(err, queue.ErrDuplicateItem) {
				continue
			}
			return added, fmt.Errorf("enqueue issue #%d: %w", issue.Number, err)
		}
		added++
	}
	if added > 0 {
		d.logger.Info("open issues synced", logging.Int("added", added))
	}
	return added, nil
}

// ListQueue returns queue items filtered by optional statuses.
func (d *Daemon) ListQueue(ctx context.Context, statuses []queue.Status) ([]*queue.Item, error) {
	return d.store.List(ctx, statuses...)
}

// GetQueueItem returns a single queue item by issue number.
func (d *Daemon) GetQueueItem(ctx context.Context, issueNumber int64) (*queue.Item, error) {
	return d.store.GetByIssue(ctx, issueNumber)
}

// ClearQueue removes all queue items.
func (d *Daemon) ClearQueue(ctx context.Context) (int64, error) {
	return d.store.Clear(ctx)
}

// ClearCompleted removes only completed queue items.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	return d.store.ClearCompleted(ctx)
}

// ClearFailed removes only failed queue items.
func (d *Daemon) ClearFailed(ctx context.Context) (int64, error) {
	return d.store.ClearFailed(ctx)
}

// ResetStuck transitions in-flight items back to pending for retry.
func (d *Daemon) ResetStuck(ctx context.Context) (int64, error) {
	return d.store.ResetStuckProcessing(ctx)
}

// RetryFailed resets failed items (optionally a subset) back to pending.
func (d *Daemon) RetryFailed(ctx context.Context, issueNumbers []int64) (int64, error) {
	return d.store.RetryFailed(ctx, issueNumbers...)
}

// RemoveIssue deletes one queue item.
func (d *Daemon) RemoveIssue(ctx context.Context, issueNumber int64) (bool, error) {
	return d.store.Remove(ctx, issueNumber)
}

// QueueHealth returns aggregate queue diagnostics.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Schedule:     d.sched.Schedule(),
		NextRun:      d.sched.NextRun(),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
	}
	if report, ok := d.sched.LastRun(); ok {
		status.LastRun = &report
	}
	if stats, err := d.store.Stats(ctx); err == nil {
		status.QueueStats = stats
	}
	return status
}
