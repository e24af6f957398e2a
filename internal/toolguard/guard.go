package toolguard

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"triage/internal/audit"
	"triage/internal/config"
	"triage/internal/logging"
)

// Guard actor recorded on audit entries for agent-initiated tool requests.
const actorAgent = "agent"

const defaultMaxDetail = 512

// Decision is the verdict for a single tool invocation.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

type denyRule struct {
	re     *regexp.Regexp
	reason string
}

// Guard evaluates tool requests against the configured security policy.
// Deny rules run before the allowlist; tools matched by neither fall through
// to the default mode.
type Guard struct {
	rules        []denyRule
	allowed      map[string]struct{}
	audited      map[string]struct{}
	defaultAllow bool
	maxDetail    int
	sink         audit.Sink
	logger       *slog.Logger
}

// New compiles the security policy into a Guard. Rule patterns are matched
// against both the tool name and the serialized input.
func New(sec config.Security, sink audit.Sink, logger *slog.Logger) (*Guard, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	rules := make([]denyRule, 0, len(sec.DenyRules))
	for _, rule := range sec.DenyRules {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile deny pattern %q: %w", rule.Pattern, err)
		}
		reason := strings.TrimSpace(rule.Reason)
		if reason == "" {
			reason = fmt.Sprintf("matched deny pattern %q", rule.Pattern)
		}
		rules = append(rules, denyRule{re: re, reason: reason})
	}

	maxDetail := sec.MaxAuditDetail
	if maxDetail <= 0 {
		maxDetail = defaultMaxDetail
	}

	return &Guard{
		rules:        rules,
		allowed:      toSet(sec.AllowTools),
		audited:      toSet(sec.AuditedTools),
		defaultAllow: strings.EqualFold(sec.Mode, "allow"),
		maxDetail:    maxDetail,
		sink:         sink,
		logger:       logging.NewComponentLogger(logger, "toolguard"),
	}, nil
}

// Evaluate decides whether a single tool invocation may proceed. It never
// returns an error: unserializable input is denied, and every deny is
// audited. Allowed invocations of audited tools are audited as well.
func (g *Guard) Evaluate(toolName string, input any) Decision {
	payload, err := json.Marshal(input)
	if err != nil {
		decision := Decision{Allowed: false, Reason: "malformed tool input"}
		g.record(toolName, decision, fmt.Sprintf("serialize input: %v", err))
		return decision
	}
	serialized := string(payload)

	for _, rule := range g.rules {
		if rule.re.MatchString(toolName) || rule.re.MatchString(serialized) {
			decision := Decision{Allowed: false, Reason: rule.reason}
			g.record(toolName, decision, g.detail(serialized))
			return decision
		}
	}

	if _, ok := g.allowed[toolName]; ok {
		decision := Decision{Allowed: true, Reason: "tool allowlisted"}
		if _, audited := g.audited[toolName]; audited {
			g.record(toolName, decision, g.detail(serialized))
		}
		return decision
	}

	if g.defaultAllow {
		decision := Decision{Allowed: true, Reason: "default allow"}
		if _, audited := g.audited[toolName]; audited {
			g.record(toolName, decision, g.detail(serialized))
		}
		return decision
	}

	decision := Decision{Allowed: false, Reason: "tool not allowlisted"}
	g.record(toolName, decision, g.detail(serialized))
	return decision
}

// detail builds the audit detail string: a short content digest followed by
// the serialized input truncated to the configured bound. The cut backs off
// to a rune boundary so the detail never carries a split UTF-8 sequence.
func (g *Guard) detail(serialized string) string {
	sum := sha256.Sum256([]byte(serialized))
	digest := hex.EncodeToString(sum[:6])
	if len(serialized) > g.maxDetail {
		cut := g.maxDetail
		for cut > 0 && !utf8.RuneStart(serialized[cut]) {
			cut--
		}
		serialized = serialized[:cut] + "...(truncated)"
	}
	return fmt.Sprintf("sha256=%s input=%s", digest, serialized)
}

func (g *Guard) record(toolName string, decision Decision, detail string) {
	result := audit.ResultDeny
	if decision.Allowed {
		result = audit.ResultAllow
	} else {
		g.logger.Warn("tool request denied",
			logging.String(logging.FieldTool, toolName),
			logging.String("reason", decision.Reason),
			logging.String(logging.FieldEventType, "tool_denied"),
		)
	}
	if g.sink == nil {
		return
	}
	g.sink.Append(audit.Entry{
		Action: "tool:" + toolName,
		Actor:  actorAgent,
		Detail: decision.Reason + "; " + detail,
		Result: result,
	})
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		set[name] = struct{}{}
	}
	return set
}
