package testsupport

import (
	"path/filepath"
	"testing"

	"triage/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.GitHub.Repo = "acme/widgets"
	cfg.GitHub.Token = "test-token"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithMaxRetries overrides the workflow retry ceiling on the test config.
func WithMaxRetries(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.MaxRetries = n
	}
}

// WithSchedule overrides the cron schedule on the test config.
func WithSchedule(expr string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.Schedule = expr
	}
}
