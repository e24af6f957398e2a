package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"triage/internal/config"
	"triage/internal/daemon"
	"triage/internal/github"
	"triage/internal/ipc"
	"triage/internal/logging"
	"triage/internal/notifications"
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
		return nil, fmt.Errorf("issue #%d not found", number)
	}
	return issue, nil
}

func (f *fakeIssues) ListOpenIssues(_ context.Context, _ int) ([]*github.Issue, error) {
	open := make([]*github.Issue, 0, len(f.issues))
	for _, issue := range f.issues {
		if strings.EqualFold(issue.State, "open") {
			open = append(open, issue)
		}
	}
	return open, nil
}

type cliTestEnv struct {
	cfg        *config.Config
	store      *queue.Store
	daemon     *daemon.Daemon
	server     *ipc.Server
	issues     *fakeIssues
	socketPath string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	configPath := filepath.Join(cfg.Paths.DataDir, "config.toml")
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	sched, err := scheduler.New(cfg, store, notifications.NewService(cfg), logger)
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	sched.SetHandler(scheduler.ProcessFunc(func(context.Context, int64) error { return nil }))

	issues := &fakeIssues{issues: map[int64]*github.Issue{}}
	d, err := daemon.New(cfg, store, sched, issues, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := filepath.Join(cfg.Paths.DataDir, "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		daemon:     d,
		server:     srv,
		issues:     issues,
		socketPath: socketPath,
		configPath: configPath,
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\ndata_dir = %q\nlog_dir = %q\n\n[github]\nrepo = %q\ntoken = %q\n\n[workflow]\nschedule = %q\n",
		cfg.Paths.DataDir,
		cfg.Paths.LogDir,
		cfg.GitHub.Repo,
		cfg.GitHub.Token,
		cfg.Workflow.Schedule,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
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

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
