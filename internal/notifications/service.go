package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"triage/internal/config"
)

const userAgent = "Triage-Go/0.1.0"

// Service defines the notification surface exposed to scheduler and daemon
// components.
type Service interface {
	NotifyQueueStarted(ctx context.Context, count int) error
	NotifyQueueCompleted(ctx context.Context, processed, failed int, duration time.Duration) error
	NotifyIssueCompleted(ctx context.Context, issueNumber int64, title string) error
	NotifyIssueFailed(ctx context.Context, issueNumber int64, title, errMsg string) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		queueEvents: cfg.Notifications.Queue,
		issueEvents: cfg.Notifications.Issues,
		errorEvents: cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	queueEvents bool
	issueEvents bool
	errorEvents bool
}

func (n *ntfyService) NotifyQueueStarted(ctx context.Context, count int) error {
	if !n.queueEvents {
		return nil
	}
	data := payload{
		title:   "Triage - Run Started",
		message: fmt.Sprintf("Started processing queue with %d items", count),
		tags:    []string{"triage", "queue", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyQueueCompleted(ctx context.Context, processed, failed int, duration time.Duration) error {
	if !n.queueEvents {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	durationText := duration.String()
	if duration == 0 {
		durationText = "0s"
	}

	var title string
	var message string
	if failed == 0 {
		title = "Triage - Run Complete"
		message = fmt.Sprintf("Run complete: %d issues processed in %s", processed, durationText)
	} else {
		title = "Triage - Run Complete (with errors)"
		message = fmt.Sprintf("Run complete: %d succeeded, %d failed in %s", processed, failed, durationText)
	}

	data := payload{
		title:   title,
		message: message,
		tags:    []string{"triage", "queue", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyIssueCompleted(ctx context.Context, issueNumber int64, title string) error {
	if !n.issueEvents {
		return nil
	}
	title = strings.TrimSpace(title)
	message := fmt.Sprintf("Issue #%d triaged", issueNumber)
	if title != "" {
		message = fmt.Sprintf("Issue #%d triaged: %s", issueNumber, title)
	}
	data := payload{
		title:   "Triage - Issue Complete",
		message: message,
		tags:    []string{"triage", "issue", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyIssueFailed(ctx context.Context, issueNumber int64, title, errMsg string) error {
	if !n.issueEvents {
		return nil
	}
	title = strings.TrimSpace(title)
	errMsg = strings.TrimSpace(errMsg)
	message := fmt.Sprintf("Issue #%d failed", issueNumber)
	if title != "" {
		message = fmt.Sprintf("Issue #%d failed: %s", issueNumber, title)
	}
	if errMsg != "" {
		message = fmt.Sprintf("%s\n%s", message, errMsg)
	}
	data := payload{
		title:    "Triage - Issue Failed",
		message:  message,
		tags:     []string{"triage", "issue", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errorEvents {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Triage - Error",
		message:  builder.String(),
		tags:     []string{"triage", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Triage - Test",
		message:  "Notification system test",
		tags:     []string{"triage", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyQueueStarted(context.Context, int) error                       { return nil }
func (noopService) NotifyQueueCompleted(context.Context, int, int, time.Duration) error { return nil }
func (noopService) NotifyIssueCompleted(context.Context, int64, string) error           { return nil }
func (noopService) NotifyIssueFailed(context.Context, int64, string, string) error      { return nil }
func (noopService) NotifyError(context.Context, error, string) error                    { return nil }
func (noopService) TestNotification(context.Context) error                              { return nil }
