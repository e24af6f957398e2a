package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateGitHub(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateGitHub() error {
	if c.GitHub.Repo == "" {
		return nil
	}
	if !strings.Contains(c.GitHub.Repo, "/") {
		return fmt.Errorf("github.repo must be owner/name, got %q", c.GitHub.Repo)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if _, err := cron.ParseStandard(c.Workflow.Schedule); err != nil {
		return fmt.Errorf("workflow.schedule: invalid cron expression %q: %w", c.Workflow.Schedule, err)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	switch c.Security.Mode {
	case "deny", "allow":
	default:
		return fmt.Errorf("security.mode must be \"deny\" or \"allow\", got %q", c.Security.Mode)
	}
	for i, rule := range c.Security.DenyRules {
		if rule.Pattern == "" {
			return fmt.Errorf("security.deny_rules[%d]: pattern must be set", i)
		}
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			return fmt.Errorf("security.deny_rules[%d]: invalid pattern %q: %w", i, rule.Pattern, err)
		}
	}
	return nil
}
