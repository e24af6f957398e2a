package logging

// Standardized attribute keys shared across components so log consumers can
// filter on stable names.
const (
	FieldComponent   = "component"
	FieldEventType   = "event_type"
	FieldErrorHint   = "error_hint"
	FieldIssueNumber = "issue_number"
	FieldRunID       = "run_id"
	FieldTool        = "tool"
)
