package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"triage/internal/config"
)

const (
	defaultBaseURL     = "https://api.github.com"
	apiVersion         = "2022-11-28"
	defaultHTTPTimeout = 30 * time.Second
)

// Client wraps the GitHub issues REST API for a single repository.
type Client struct {
	owner      string
	repo       string
	token      string
	baseURL    string
	httpClient *http.Client
}

// Option customizes the GitHub client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the default API base (useful for tests/mocks).
func WithBaseURL(base string) Option {
	return func(c *Client) {
		base = strings.TrimSpace(base)
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// NewClient constructs a client for the repository configured in cfg.GitHub.
func NewClient(cfg *config.Config, opts ...Option) (*Client, error) {
	owner, repo, ok := strings.Cut(strings.TrimSpace(cfg.GitHub.Repo), "/")
	if !ok || owner == "" || repo == "" {
		return nil, fmt.Errorf("invalid repository %q, expected owner/name", cfg.GitHub.Repo)
	}

	timeout := time.Duration(cfg.GitHub.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	client := &Client{
		owner:      owner,
		repo:       repo,
		token:      strings.TrimSpace(cfg.GitHub.Token),
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
	if base := strings.TrimSpace(cfg.GitHub.BaseURL); base != "" {
		client.baseURL = strings.TrimRight(base, "/")
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Repo returns the owner/name the client operates on.
func (c *Client) Repo() string {
	return c.owner + "/" + c.repo
}

// Issue is the subset of the GitHub issue payload triage consumes.
type Issue struct {
	Number    int64     `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	State     string    `json:"state"`
	HTMLURL   string    `json:"html_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	User      struct {
		Login string `json:"login"`
	} `json:"user"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	PullRequest *struct{} `json:"pull_request,omitempty"`
}

// LabelNames flattens the issue labels.
func (i *Issue) LabelNames() []string {
	names := make([]string, 0, len(i.Labels))
	for _, label := range i.Labels {
		names = append(names, label.Name)
	}
	return names
}

// IsPullRequest reports whether the issue payload is actually a pull request.
// The issues API returns both.
func (i *Issue) IsPullRequest() bool {
	return i.PullRequest != nil
}

// GetIssue fetches a single issue by number.
func (c *Client) GetIssue(ctx context.Context, number int64) (*Issue, error) {
	var issue Issue
	path := fmt.Sprintf("/repos/%s/%s/issues/%d", c.owner, c.repo, number)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &issue); err != nil {
		return nil, fmt.Errorf("fetch issue #%d: %w", number, err)
	}
	return &issue, nil
}

// ListOpenIssues returns open issues, newest first, up to limit (max 100).
// Pull requests are filtered out.
func (c *Client) ListOpenIssues(ctx context.Context, limit int) ([]*Issue, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	query := url.Values{
		"state":     {"open"},
		"sort":      {"created"},
		"direction": {"desc"},
		"per_page":  {fmt.Sprintf("%d", limit)},
	}

	var issues []*Issue
	path := fmt.Sprintf("/repos/%s/%s/issues", c.owner, c.repo)
	if err := c.do(ctx, http.MethodGet, path, query, nil, &issues); err != nil {
		return nil, fmt.Errorf("list open issues: %w", err)
	}

	filtered := issues[:0]
	for _, issue := range issues {
		if issue.IsPullRequest() {
			continue
		}
		filtered = append(filtered, issue)
	}
	return filtered, nil
}

// CreateComment posts a comment on the issue.
func (c *Client) CreateComment(ctx context.Context, number int64, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return errors.New("comment body required")
	}
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", c.owner, c.repo, number)
	payload := map[string]string{"body": body}
	if err := c.do(ctx, http.MethodPost, path, nil, payload, nil); err != nil {
		return fmt.Errorf("comment on issue #%d: %w", number, err)
	}
	return nil
}

// AddLabels attaches labels to the issue, creating them repo-side if needed.
func (c *Client) AddLabels(ctx context.Context, number int64, labels ...string) error {
	cleaned := make([]string, 0, len(labels))
	for _, label := range labels {
		if label = strings.TrimSpace(label); label != "" {
			cleaned = append(cleaned, label)
		}
	}
	if len(cleaned) == 0 {
		return nil
	}
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/labels", c.owner, c.repo, number)
	payload := map[string][]string{"labels": cleaned}
	if err := c.do(ctx, http.MethodPost, path, nil, payload, nil); err != nil {
		return fmt.Errorf("label issue #%d: %w", number, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("github returned %d: %s", resp.StatusCode, apiErrorMessage(raw))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func apiErrorMessage(raw []byte) string {
	var apiErr struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Message != "" {
		return apiErr.Message
	}
	text := strings.TrimSpace(string(raw))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
