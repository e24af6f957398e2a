package config

const (
	defaultDataDir            = "~/.local/share/triage"
	defaultLogDir             = "~/.local/share/triage/logs"
	defaultGitHubBaseURL      = "https://api.github.com"
	defaultGitHubTimeout      = 30
	defaultAgentCommand       = "claude"
	defaultAgentTimeout       = 1800
	defaultSchedule           = "0 * * * *"
	defaultMaxRetries         = 2
	defaultErrorRetryInterval = 30
	defaultSecurityMode       = "deny"
	defaultMaxAuditDetail     = 512
	defaultNtfyTimeout        = 10
	defaultLogFormat          = "text"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults. The security
// section ships with a conservative denylist and the small allowlist of tools
// the agent needs for read-only triage work.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		GitHub: GitHub{
			BaseURL:        defaultGitHubBaseURL,
			RequestTimeout: defaultGitHubTimeout,
		},
		Agent: Agent{
			Command:        defaultAgentCommand,
			TimeoutSeconds: defaultAgentTimeout,
		},
		Workflow: Workflow{
			Schedule:           defaultSchedule,
			MaxRetries:         defaultMaxRetries,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Security: Security{
			Mode: defaultSecurityMode,
			DenyRules: []DenyRule{
				{Pattern: `rm\s+-rf\s+/`, Reason: "recursive delete of filesystem root"},
				{Pattern: `curl[^|]*\|\s*(ba)?sh`, Reason: "piping remote content into a shell"},
				{Pattern: `wget[^|]*\|\s*(ba)?sh`, Reason: "piping remote content into a shell"},
				{Pattern: `git\s+push\s+.*--force`, Reason: "force push"},
				{Pattern: `(?i)(api[_-]?key|secret|token)\s*=`, Reason: "credential material in tool input"},
			},
			AllowTools:     []string{"Read", "Grep", "Glob", "Edit", "Write", "Bash"},
			AuditedTools:   []string{"Bash", "Write", "Edit"},
			MaxAuditDetail: defaultMaxAuditDetail,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
			Queue:          true,
			Issues:         true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
