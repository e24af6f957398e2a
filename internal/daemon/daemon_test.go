package daemon_test

import (
	"context"
	"errors"
	"testing"

	"triage/internal/daemon"
	"triage/internal/github"
	"triage/internal/queue"
	"triage/internal/scheduler"
	"triage/internal/testsupport"
)

type fakeIssues struct {
	issues map[int64]*github.Issue
}

func (f *fakeIssues) GetIssue(_ context.Context, number int64) (*github.Issue, error) {
	issue, ok := f.issues[number]
	if !ok {
		return nil, errors.New("issue not found")
	}
	return issue, nil
}

func (f *fakeIssues) ListOpenIssues(context.Context, int) ([]*github.Issue, error) {
	open := make([]*github.Issue, 0, len(f.issues))
	for _, issue := range f.issues {
		if issue.State == "open" {
			open = append(open, issue)
		}
	}
	return open, nil
}

func openIssue(number int64, title string, labels ...string) *github.Issue {
	issue := &github.Issue{Number: number, Title: title, State: "open"}
	for _, label := range labels {
		issue.Labels = append(issue.Labels, struct {
			Name string `json:"name"`
		}{Name: label})
	}
	return issue
}

func newDaemon(t *testing.T, issues daemon.IssueBrowser) (*daemon.Daemon, *queue.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	sched, err := scheduler.New(cfg, store, nil, nil)
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	sched.SetHandler(scheduler.ProcessFunc(func(context.Context, int64) error { return nil }))

	d, err := daemon.New(cfg, store, sched, issues, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Stop()
	})
	return d, store
}

func TestDaemonStartStop(t *testing.T) {
	d, _ := newDaemon(t, &fakeIssues{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.Schedule == "" {
		t.Fatal("expected schedule in status")
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestAddIssueUsesLabelPriority(t *testing.T) {
	issues := &fakeIssues{issues: map[int64]*github.Issue{
		42: openIssue(42, "panic in parser", "P0"),
	}}
	d, _ := newDaemon(t, issues)

	item, err := d.AddIssue(context.Background(), 42, "")
	if err != nil {
		t.Fatalf("AddIssue: %v", err)
	}
	if item.Priority != queue.PriorityUrgent {
		t.Fatalf("priority = %s, want urgent from P0 label", item.Priority)
	}
}

func TestAddIssueHonorsOverride(t *testing.T) {
	issues := &fakeIssues{issues: map[int64]*github.Issue{
		7: openIssue(7, "typo in docs", "P0"),
	}}
	d, _ := newDaemon(t, issues)

	item, err := d.AddIssue(context.Background(), 7, "low")
	if err != nil {
		t.Fatalf("AddIssue: %v", err)
	}
	if item.Priority != queue.PriorityLow {
		t.Fatalf("priority = %s, want low override", item.Priority)
	}

	if _, err := d.AddIssue(context.Background(), 7, "bogus"); err == nil {
		t.Fatal("expected error for unknown priority override")
	}
}

func TestAddIssueRejectsClosedIssues(t *testing.T) {
	issues := &fakeIssues{issues: map[int64]*github.Issue{
		9: {Number: 9, Title: "already fixed", State: "closed"},
	}}
	d, _ := newDaemon(t, issues)

	if _, err := d.AddIssue(context.Background(), 9, ""); err == nil {
		t.Fatal("expected error for closed issue")
	}
}

func TestSyncOpenIssuesSkipsQueued(t *testing.T) {
	issues := &fakeIssues{issues: map[int64]*github.Issue{
		1: openIssue(1, "first"),
		2: openIssue(2, "second", "high"),
		3: {Number: 3, Title: "closed one", State: "closed"},
	}}
	d, store := newDaemon(t, issues)
	testsupport.Enqueue(t, store, 1, queue.PriorityNormal)

	added, err := d.SyncOpenIssues(context.Background(), 50)
	if err != nil {
		t.Fatalf("SyncOpenIssues: %v", err)
	}
	if added != 1 {
		t.Fatalf("added = %d, want 1 (issue 1 already queued, issue 3 closed)", added)
	}

	item, err := store.GetByIssue(context.Background(), 2)
	if err != nil {
		t.Fatalf("GetByIssue: %v", err)
	}
	if item.Priority != queue.PriorityHigh {
		t.Fatalf("priority = %s, want high", item.Priority)
	}
}

func TestRunNowDrainsQueue(t *testing.T) {
	d, store := newDaemon(t, &fakeIssues{})
	testsupport.Enqueue(t, store, 5, queue.PriorityNormal)

	report, err := d.RunNow(context.Background())
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if report.Processed != 1 {
		t.Fatalf("processed = %d, want 1", report.Processed)
	}

	status := d.Status(context.Background())
	if status.LastRun == nil || status.LastRun.RunID != report.RunID {
		t.Fatalf("status should surface the last run, got %+v", status.LastRun)
	}
}
