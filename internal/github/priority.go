package github

import (
	"strings"

	"triage/internal/queue"
)

var labelPriorities = map[string]queue.Priority{
	"urgent":          queue.PriorityUrgent,
	"critical":        queue.PriorityUrgent,
	"p0":              queue.PriorityUrgent,
	"priority:urgent": queue.PriorityUrgent,
	"security":        queue.PriorityUrgent,
	"high":            queue.PriorityHigh,
	"p1":              queue.PriorityHigh,
	"priority:high":   queue.PriorityHigh,
	"regression":      queue.PriorityHigh,
	"low":             queue.PriorityLow,
	"p3":              queue.PriorityLow,
	"priority:low":    queue.PriorityLow,
	"chore":           queue.PriorityLow,
	"documentation":   queue.PriorityLow,
}

// PriorityForLabels maps repository labels onto a queue priority. The highest
// priority among the matched labels wins; unlabeled issues are normal.
func PriorityForLabels(labels []string) queue.Priority {
	best := queue.PriorityNormal
	matched := false
	for _, label := range labels {
		normalized := strings.ToLower(strings.TrimSpace(label))
		priority, ok := labelPriorities[normalized]
		if !ok {
			continue
		}
		if !matched || priority.Rank() > best.Rank() {
			best = priority
			matched = true
		}
	}
	return best
}
