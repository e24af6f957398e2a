package config

import (
	"os"
	"strings"
)

// normalize expands paths, applies environment fallbacks, and trims
// user-provided values before validation runs.
func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if strings.TrimSpace(c.Paths.SocketPath) != "" {
		if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
			return err
		}
	}
	if strings.TrimSpace(c.Agent.WorkDir) != "" {
		if c.Agent.WorkDir, err = expandPath(c.Agent.WorkDir); err != nil {
			return err
		}
	}

	c.GitHub.Repo = strings.TrimSpace(c.GitHub.Repo)
	c.GitHub.Token = strings.TrimSpace(c.GitHub.Token)
	if c.GitHub.Token == "" {
		c.GitHub.Token = strings.TrimSpace(os.Getenv("GITHUB_TOKEN"))
	}
	c.GitHub.BaseURL = strings.TrimRight(strings.TrimSpace(c.GitHub.BaseURL), "/")
	if c.GitHub.BaseURL == "" {
		c.GitHub.BaseURL = defaultGitHubBaseURL
	}
	if c.GitHub.RequestTimeout <= 0 {
		c.GitHub.RequestTimeout = defaultGitHubTimeout
	}

	c.Agent.Command = strings.TrimSpace(c.Agent.Command)
	if c.Agent.TimeoutSeconds <= 0 {
		c.Agent.TimeoutSeconds = defaultAgentTimeout
	}

	c.Workflow.Schedule = strings.TrimSpace(c.Workflow.Schedule)
	if c.Workflow.Schedule == "" {
		c.Workflow.Schedule = defaultSchedule
	}
	if c.Workflow.MaxRetries < 0 {
		c.Workflow.MaxRetries = 0
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}

	c.Security.Mode = strings.ToLower(strings.TrimSpace(c.Security.Mode))
	if c.Security.Mode == "" {
		c.Security.Mode = defaultSecurityMode
	}
	if c.Security.MaxAuditDetail <= 0 {
		c.Security.MaxAuditDetail = defaultMaxAuditDetail
	}
	c.Security.AllowTools = trimAll(c.Security.AllowTools)
	c.Security.AuditedTools = trimAll(c.Security.AuditedTools)
	for i := range c.Security.DenyRules {
		c.Security.DenyRules[i].Pattern = strings.TrimSpace(c.Security.DenyRules[i].Pattern)
		c.Security.DenyRules[i].Reason = strings.TrimSpace(c.Security.DenyRules[i].Reason)
	}

	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyTimeout
	}

	return nil
}

func trimAll(values []string) []string {
	out := values[:0]
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
