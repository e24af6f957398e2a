package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"triage/internal/config"
	"triage/internal/github"
	"triage/internal/logging"
	"triage/internal/toolguard"
)

var commandContext = exec.CommandContext

const stderrTailLimit = 4096

// IssueService is the subset of the GitHub client the handler needs.
type IssueService interface {
	GetIssue(ctx context.Context, number int64) (*github.Issue, error)
	CreateComment(ctx context.Context, number int64, body string) error
	AddLabels(ctx context.Context, number int64, labels ...string) error
}

// ToolGate evaluates tool requests. Satisfied by *toolguard.Guard.
type ToolGate interface {
	Evaluate(toolName string, input any) toolguard.Decision
}

// Handler processes one queued issue by driving the configured agent CLI.
type Handler struct {
	command string
	args    []string
	workDir string
	timeout time.Duration
	repo    string

	issues IssueService
	guard  ToolGate
	logger *slog.Logger
}

// New constructs a Handler from the agent section of the configuration.
func New(cfg *config.Config, issues IssueService, guard ToolGate, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		command: strings.TrimSpace(cfg.Agent.Command),
		args:    append([]string(nil), cfg.Agent.Args...),
		workDir: cfg.Agent.WorkDir,
		timeout: time.Duration(cfg.Agent.TimeoutSeconds) * time.Second,
		repo:    cfg.GitHub.Repo,
		issues:  issues,
		guard:   guard,
		logger:  logging.NewComponentLogger(logger, "agent"),
	}
}

// Process fetches the issue and runs the agent against it. A nil return means
// the issue was triaged (or needed no work); any error counts as a failed
// attempt subject to the queue retry policy.
func (h *Handler) Process(ctx context.Context, issueNumber int64) error {
	if h.command == "" {
		return errors.New("agent command not configured")
	}

	logger := h.logger.With(logging.Int64(logging.FieldIssueNumber, issueNumber))

	issue, err := h.issues.GetIssue(ctx, issueNumber)
	if err != nil {
		return fmt.Errorf("fetch issue: %w", err)
	}
	if issue.IsPullRequest() {
		logger.Warn("queued item is a pull request, skipping")
		return nil
	}
	if !strings.EqualFold(issue.State, "open") {
		logger.Info("issue no longer open, skipping", logging.String("state", issue.State))
		return nil
	}

	runCtx := ctx
	if h.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	result, err := h.run(runCtx, logger, issue)
	if err != nil {
		// Parent cancellation wins over the per-issue timeout so the
		// scheduler can tell a shutdown from a slow agent.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("agent timed out after %s", h.timeout)
		}
		return err
	}
	if !result.Success {
		summary := strings.TrimSpace(result.Summary)
		if summary == "" {
			summary = "agent reported failure"
		}
		return errors.New(summary)
	}

	logger.Info("agent finished", logging.String("summary", result.Summary))
	return nil
}

func (h *Handler) run(ctx context.Context, logger *slog.Logger, issue *github.Issue) (message, error) {
	var result message

	cmd := commandContext(ctx, h.command, h.args...) //nolint:gosec
	if h.workDir != "" {
		cmd.Dir = h.workDir
	}
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("TRIAGE_ISSUE_NUMBER=%d", issue.Number),
		"TRIAGE_REPO="+h.repo,
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return result, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return result, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr := &tailBuffer{limit: stderrTailLimit}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return result, fmt.Errorf("start agent %q: %w", h.command, err)
	}

	encoder := json.NewEncoder(stdin)
	if err := encoder.Encode(issuePayload{
		Type:   "issue",
		Number: issue.Number,
		Title:  issue.Title,
		Body:   issue.Body,
		URL:    issue.HTMLURL,
		Author: issue.User.Login,
		Labels: issue.LabelNames(),
	}); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return result, fmt.Errorf("send issue payload: %w", err)
	}

	gotResult := false
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var msg message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			logger.Debug("unparseable agent output", logging.String("line", truncate(line, 200)))
			continue
		}

		switch msg.Type {
		case messageTool:
			decision := h.guard.Evaluate(msg.Tool, msg.Input)
			if err := encoder.Encode(verdict{
				Type:    "verdict",
				ID:      msg.ID,
				Allowed: decision.Allowed,
				Reason:  decision.Reason,
			}); err != nil {
				_ = cmd.Process.Kill()
				_ = cmd.Wait()
				return result, fmt.Errorf("send verdict: %w", err)
			}
		case messageComment:
			if err := h.issues.CreateComment(ctx, issue.Number, msg.Body); err != nil {
				logger.Warn("posting agent comment failed", logging.Error(err))
			}
		case messageLabels:
			if err := h.issues.AddLabels(ctx, issue.Number, msg.Labels...); err != nil {
				logger.Warn("labeling issue failed", logging.Error(err))
			}
		case messageLog:
			logger.Info("agent log", logging.String("message", msg.Message))
		case messageResult:
			result = msg
			gotResult = true
		default:
			logger.Debug("unknown agent message type", logging.String("message_type", msg.Type))
		}
	}
	scanErr := scanner.Err()
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		return result, fmt.Errorf("agent exited: %w%s", err, stderr.suffix())
	}
	if scanErr != nil {
		return result, fmt.Errorf("read agent output: %w", scanErr)
	}
	if !gotResult {
		return result, errors.New("agent produced no result message")
	}
	return result, nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	data  []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	if len(b.data) > b.limit {
		b.data = b.data[len(b.data)-b.limit:]
	}
	return len(p), nil
}

func (b *tailBuffer) suffix() string {
	text := strings.TrimSpace(string(b.data))
	if text == "" {
		return ""
	}
	return "\nstderr: " + text
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

var _ io.Writer = (*tailBuffer)(nil)
