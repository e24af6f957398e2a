package ipc

import "triage/internal/queue"

// QueueItem describes a queue entry in a transport-friendly format.
type QueueItem struct {
	IssueNumber  int64  `json:"issueNumber"`
	Title        string `json:"title"`
	URL          string `json:"url"`
	Priority     string `json:"priority"`
	Status       string `json:"status"`
	EnqueuedAt   string `json:"enqueuedAt"`
	StartedAt    string `json:"startedAt,omitempty"`
	CompletedAt  string `json:"completedAt,omitempty"`
	RetryCount   int    `json:"retryCount"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// FromQueueItem converts a queue item into its wire representation.
func FromQueueItem(item *queue.Item) QueueItem {
	dto := QueueItem{
		IssueNumber:  item.IssueNumber,
		Title:        item.Title,
		URL:          item.URL,
		Priority:     string(item.Priority),
		Status:       string(item.Status),
		EnqueuedAt:   item.EnqueuedAt.Format(timeFormat),
		RetryCount:   item.RetryCount,
		ErrorMessage: item.ErrorMessage,
	}
	if item.StartedAt != nil {
		dto.StartedAt = item.StartedAt.Format(timeFormat)
	}
	if item.CompletedAt != nil {
		dto.CompletedAt = item.CompletedAt.Format(timeFormat)
	}
	return dto
}

const timeFormat = "2006-01-02T15:04:05Z07:00"

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// RunSummary mirrors the scheduler run report for IPC callers.
type RunSummary struct {
	RunID      string `json:"runId"`
	Trigger    string `json:"trigger"`
	Started    string `json:"started"`
	DurationMS int64  `json:"durationMs"`
	Processed  int    `json:"processed"`
	Failed     int    `json:"failed"`
}

// StatusResponse represents combined daemon/scheduler status information.
type StatusResponse struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	Schedule     string         `json:"schedule"`
	NextRun      string         `json:"next_run"`
	LastRun      *RunSummary    `json:"last_run,omitempty"`
	QueueStats   map[string]int `json:"queue_stats"`
	QueueDBPath  string         `json:"queue_db_path"`
	LockPath     string         `json:"lock_path"`
}

// RunNowRequest triggers an immediate drain run.
type RunNowRequest struct{}

// RunNowResponse reports the completed run.
type RunNowResponse struct {
	Run RunSummary `json:"run"`
}

// StopRequest asks the daemon process to shut down.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// QueueAddRequest enqueues one issue by number.
type QueueAddRequest struct {
	IssueNumber int64  `json:"issue_number"`
	Priority    string `json:"priority"`
}

// QueueAddResponse contains the queued entry.
type QueueAddResponse struct {
	Item QueueItem `json:"item"`
}

// QueueSyncRequest enqueues open repository issues not already queued.
type QueueSyncRequest struct {
	Limit int `json:"limit"`
}

// QueueSyncResponse reports how many issues were queued.
type QueueSyncResponse struct {
	Added int `json:"added"`
}

// QueueListRequest filters queue listing by status.
type QueueListRequest struct {
	Statuses []string `json:"statuses"`
}

// QueueListResponse contains queue entries.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// QueueDescribeRequest fetches a single queue item by issue number.
type QueueDescribeRequest struct {
	IssueNumber int64 `json:"issue_number"`
}

// QueueDescribeResponse contains a single queue entry.
type QueueDescribeResponse struct {
	Item QueueItem `json:"item"`
}

// QueueClearRequest removes all items.
type QueueClearRequest struct{}

// QueueClearResponse reports number of removed entries.
type QueueClearResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearCompletedRequest removes completed items.
type QueueClearCompletedRequest struct{}

// QueueClearCompletedResponse reports number of removed entries.
type QueueClearCompletedResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearFailedRequest removes failed items.
type QueueClearFailedRequest struct{}

// QueueClearFailedResponse reports number of removed entries.
type QueueClearFailedResponse struct {
	Removed int64 `json:"removed"`
}

// QueueResetRequest resets in-flight items.
type QueueResetRequest struct{}

// QueueResetResponse reports number of items reset.
type QueueResetResponse struct {
	Updated int64 `json:"updated"`
}

// QueueRetryRequest retries failed items. Empty list means all failed items.
type QueueRetryRequest struct {
	IssueNumbers []int64 `json:"issue_numbers"`
}

// QueueRetryResponse reports number of retried items.
type QueueRetryResponse struct {
	Updated int64 `json:"updated"`
}

// QueueRemoveRequest removes a specific item by issue number.
type QueueRemoveRequest struct {
	IssueNumber int64 `json:"issue_number"`
}

// QueueRemoveResponse reports whether the entry was removed.
type QueueRemoveResponse struct {
	Removed bool `json:"removed"`
}

// QueueHealthRequest fetches aggregate diagnostics.
type QueueHealthRequest struct{}

// QueueHealthResponse reports queue health information.
type QueueHealthResponse struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Failed     int `json:"failed"`
	Completed  int `json:"completed"`
}

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health information.
type DatabaseHealthResponse struct {
	DBPath           string `json:"db_path"`
	DatabaseExists   bool   `json:"database_exists"`
	DatabaseReadable bool   `json:"database_readable"`
	TableExists      bool   `json:"table_exists"`
	IntegrityCheck   bool   `json:"integrity_check"`
	TotalItems       int    `json:"total_items"`
	Error            string `json:"error"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
