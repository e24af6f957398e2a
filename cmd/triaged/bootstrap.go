package main

import (
	"log/slog"

	"triage/internal/agent"
	"triage/internal/audit"
	"triage/internal/config"
	"triage/internal/daemon"
	"triage/internal/github"
	"triage/internal/notifications"
	"triage/internal/queue"
	"triage/internal/scheduler"
	"triage/internal/toolguard"
)

// runtime bundles the wired daemon components so main can start and tear them
// down in order.
type runtime struct {
	store    *queue.Store
	auditLog *audit.Log
	daemon   *daemon.Daemon
}

func buildRuntime(cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	store, err := queue.Open(cfg)
	if err != nil {
		return nil, err
	}

	auditLog, err := audit.Open(cfg, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	guard, err := toolguard.New(cfg.Security, auditLog, logger)
	if err != nil {
		auditLog.Close()
		store.Close()
		return nil, err
	}

	issues, err := github.NewClient(cfg)
	if err != nil {
		auditLog.Close()
		store.Close()
		return nil, err
	}

	notifier := notifications.NewService(cfg)

	sched, err := scheduler.New(cfg, store, notifier, logger)
	if err != nil {
		auditLog.Close()
		store.Close()
		return nil, err
	}
	sched.SetHandler(agent.New(cfg, issues, guard, logger))

	d, err := daemon.New(cfg, store, sched, issues, logger)
	if err != nil {
		auditLog.Close()
		store.Close()
		return nil, err
	}

	return &runtime{store: store, auditLog: auditLog, daemon: d}, nil
}

// close tears down in reverse dependency order. The daemon owns the store.
func (r *runtime) close() {
	r.daemon.Close()
	r.auditLog.Close()
}
