package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"triage/internal/config"
	"triage/internal/logging"
	"triage/internal/notifications"
	"triage/internal/queue"
)

// Run triggers recorded on reports and log lines.
const (
	TriggerCron   = "cron"
	TriggerManual = "manual"
)

// completionTimeout bounds the queue write that records an item outcome, so
// a canceled run context cannot lose a finished attempt.
const completionTimeout = 10 * time.Second

// ProcessHandler performs the actual work for one queued issue. Process must
// honor ctx cancellation; a context.Canceled return leaves the item in
// processing for reclamation on the next start.
type ProcessHandler interface {
	Process(ctx context.Context, issueNumber int64) error
}

// ProcessFunc adapts a function to ProcessHandler.
type ProcessFunc func(ctx context.Context, issueNumber int64) error

func (f ProcessFunc) Process(ctx context.Context, issueNumber int64) error {
	return f(ctx, issueNumber)
}

// RunReport summarizes one drain run.
type RunReport struct {
	RunID     string        `json:"runId"`
	Trigger   string        `json:"trigger"`
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration"`
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
}

// Scheduler coordinates cron-triggered and manual drain runs over the queue.
type Scheduler struct {
	store    *queue.Store
	notifier notifications.Service
	logger   *slog.Logger
	clock    Clock
	schedule cron.Schedule
	spec     string

	// runMu serializes drain runs across the cron and manual paths.
	runMu sync.Mutex

	mu      sync.Mutex
	handler ProcessHandler
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastRun *RunReport
}

// Option configures optional Scheduler behavior.
type Option func(*Scheduler)

// WithClock substitutes the wall clock, used by tests.
func WithClock(clock Clock) Option {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New builds a Scheduler for the configured drain schedule. The handler is
// attached separately via SetHandler so daemon wiring can construct the
// scheduler before the components the handler depends on.
func New(cfg *config.Config, store *queue.Store, notifier notifications.Service, logger *slog.Logger, opts ...Option) (*Scheduler, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	spec := cfg.Workflow.Schedule
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	s := &Scheduler{
		store:    store,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "scheduler"),
		clock:    systemClock{},
		schedule: schedule,
		spec:     spec,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SetHandler attaches the per-issue handler. Replacing it while a run is
// active is permitted and affects subsequent dequeues.
func (s *Scheduler) SetHandler(handler ProcessHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Schedule returns the configured cron expression.
func (s *Scheduler) Schedule() string {
	return s.spec
}

// NextRun reports when the cron trigger fires next.
func (s *Scheduler) NextRun() time.Time {
	return s.schedule.Next(s.clock.Now())
}

// Running reports whether the cron loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastRun returns the most recent completed run, if any.
func (s *Scheduler) LastRun() (RunReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun == nil {
		return RunReport{}, false
	}
	return *s.lastRun, true
}

// Start reclaims items stranded in processing by a previous shutdown and
// launches the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	if s.handler == nil {
		s.mu.Unlock()
		return errors.New("scheduler handler not configured")
	}

	reclaimed, err := s.store.ResetStuckProcessing(ctx)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("reset stuck processing: %w", err)
	}
	if reclaimed > 0 {
		s.logger.Warn("reclaimed items stuck in processing",
			logging.Int64("count", reclaimed),
			logging.String(logging.FieldEventType, "stuck_items_reclaimed"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.wg.Add(1)
	s.mu.Unlock()

	go s.loop(runCtx)

	s.logger.Info("scheduler started",
		logging.String("schedule", s.spec),
		logging.Time("next_run", s.NextRun()),
	)
	return nil
}

// Stop cancels the cron loop and waits for it to exit. Cancellation is
// cooperative: an in-flight item finishes processing before the loop winds
// down, and only then does the run stop dequeuing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// RunNow drains the queue immediately. A run already in flight is joined:
// RunNow waits for it to finish, then drains whatever remains.
func (s *Scheduler) RunNow(ctx context.Context) (RunReport, error) {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	if handler == nil {
		return RunReport{}, errors.New("scheduler handler not configured")
	}
	return s.drain(ctx, TriggerManual)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	for {
		now := s.clock.Now()
		next := s.schedule.Next(now)
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(next.Sub(now)):
		}

		if _, err := s.drain(ctx, TriggerCron); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error("scheduled run failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "run_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
			if nerr := s.notifier.NotifyError(ctx, err, "scheduled run"); nerr != nil {
				s.logger.Warn("error notification failed", logging.Error(nerr))
			}
		}
	}
}

// drain processes pending items one at a time until the queue is empty, the
// context is canceled, or the store reports a violation.
func (s *Scheduler) drain(ctx context.Context, trigger string) (RunReport, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	report := RunReport{
		RunID:   uuid.NewString(),
		Trigger: trigger,
		Started: s.clock.Now(),
	}
	logger := s.logger.With(
		logging.String(logging.FieldRunID, report.RunID),
		logging.String("trigger", trigger),
	)

	stats, err := s.store.Stats(ctx)
	if err != nil {
		return report, fmt.Errorf("queue stats: %w", err)
	}
	pending := stats[queue.StatusPending]
	if pending == 0 {
		logger.Debug("queue empty, nothing to drain")
		s.recordRun(report)
		return report, nil
	}

	logger.Info("drain run started", logging.Int("pending", pending))
	if err := s.notifier.NotifyQueueStarted(ctx, pending); err != nil {
		logger.Warn("run-start notification failed", logging.Error(err))
	}

	for {
		if err := ctx.Err(); err != nil {
			report.Duration = s.clock.Now().Sub(report.Started)
			s.recordRun(report)
			return report, err
		}

		item, err := s.store.DequeueNext(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrConcurrentProcessing) {
				logger.Error("another item is already processing, aborting run",
					logging.Error(err),
					logging.String(logging.FieldEventType, "run_aborted"),
					logging.String(logging.FieldErrorHint, "run 'triage queue reset' if a previous run crashed"),
				)
			}
			report.Duration = s.clock.Now().Sub(report.Started)
			s.recordRun(report)
			return report, err
		}
		if item == nil {
			break
		}

		itemLogger := logger.With(logging.Int64(logging.FieldIssueNumber, item.IssueNumber))
		itemLogger.Info("processing issue",
			logging.String("title", item.Title),
			logging.String("priority", string(item.Priority)),
			logging.Int("attempt", item.RetryCount+1),
		)

		// Re-read the handler each iteration: a replacement installed during
		// the run takes effect on the next dequeue.
		s.mu.Lock()
		handler := s.handler
		s.mu.Unlock()

		// The handler always runs to completion; Stop only takes effect
		// between items, at the ctx.Err check above.
		perr := handler.Process(context.WithoutCancel(ctx), item.IssueNumber)
		if perr != nil && errors.Is(perr, context.Canceled) {
			itemLogger.Warn("processing interrupted, item will be reclaimed on next start",
				logging.String(logging.FieldEventType, "run_interrupted"),
			)
			report.Duration = s.clock.Now().Sub(report.Started)
			s.recordRun(report)
			return report, perr
		}

		// Record the outcome on a fresh context so a dying run context
		// cannot lose a finished attempt.
		markCtx, cancel := context.WithTimeout(context.Background(), completionTimeout)
		updated, merr := s.store.MarkCompleted(markCtx, item.IssueNumber, perr == nil, errText(perr))
		cancel()
		if merr != nil {
			report.Duration = s.clock.Now().Sub(report.Started)
			s.recordRun(report)
			return report, fmt.Errorf("record outcome for issue #%d: %w", item.IssueNumber, merr)
		}

		switch updated.Status {
		case queue.StatusCompleted:
			report.Processed++
			itemLogger.Info("issue completed")
			if err := s.notifier.NotifyIssueCompleted(ctx, item.IssueNumber, item.Title); err != nil {
				itemLogger.Warn("completion notification failed", logging.Error(err))
			}
		case queue.StatusPending:
			itemLogger.Warn("attempt failed, retrying",
				logging.Error(perr),
				logging.Int("retry_count", updated.RetryCount),
			)
		case queue.StatusFailed:
			report.Failed++
			itemLogger.Error("issue failed permanently",
				logging.Error(perr),
				logging.Int("retry_count", updated.RetryCount),
				logging.String(logging.FieldEventType, "issue_failed"),
			)
			if err := s.notifier.NotifyIssueFailed(ctx, item.IssueNumber, item.Title, errText(perr)); err != nil {
				itemLogger.Warn("failure notification failed", logging.Error(err))
			}
		}
	}

	report.Duration = s.clock.Now().Sub(report.Started)
	logger.Info("drain run complete",
		logging.Int("processed", report.Processed),
		logging.Int("failed", report.Failed),
		logging.Duration("duration", report.Duration),
	)
	if err := s.notifier.NotifyQueueCompleted(ctx, report.Processed, report.Failed, report.Duration); err != nil {
		logger.Warn("run-complete notification failed", logging.Error(err))
	}
	s.recordRun(report)
	return report, nil
}

func (s *Scheduler) recordRun(report RunReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun = &report
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
