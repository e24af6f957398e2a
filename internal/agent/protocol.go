package agent

import "encoding/json"

// Message types the agent may emit on stdout.
const (
	messageTool    = "tool"
	messageComment = "comment"
	messageLabels  = "labels"
	messageLog     = "log"
	messageResult  = "result"
)

// message is one line of agent stdout. Fields are populated per Type.
type message struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Tool    string          `json:"tool,omitempty"`
	Input   json.RawMessage `json:"input,omitempty"`
	Body    string          `json:"body,omitempty"`
	Labels  []string        `json:"labels,omitempty"`
	Message string          `json:"message,omitempty"`
	Summary string          `json:"summary,omitempty"`
	Success bool            `json:"success,omitempty"`
}

// issuePayload is the first line written to the agent on stdin.
type issuePayload struct {
	Type   string   `json:"type"`
	Number int64    `json:"number"`
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	URL    string   `json:"url"`
	Author string   `json:"author"`
	Labels []string `json:"labels"`
}

// verdict answers a tool request on stdin.
type verdict struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}
