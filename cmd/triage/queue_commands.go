package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"triage/internal/github"
	"triage/internal/ipc"
	"triage/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the triage queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueDescribeCommand(ctx))
	queueCmd.AddCommand(newQueueAddCommand(ctx))
	queueCmd.AddCommand(newQueueSyncCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueClearFailedCommand(ctx))
	queueCmd.AddCommand(newQueueResetCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				stats := make(map[string]int)
				if client != nil {
					status, err := client.Status()
					if err != nil {
						return err
					}
					stats = status.QueueStats
				} else {
					raw, err := store.Stats(cmd.Context())
					if err != nil {
						return err
					}
					for status, count := range raw {
						stats[string(status)] = count
					}
				}

				rows := buildQueueStatusRows(stats)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func buildQueueStatusRows(stats map[string]int) [][]string {
	order := []string{"pending", "processing", "completed", "failed"}
	rows := make([][]string, 0, len(stats))
	seen := make(map[string]bool, len(order))
	for _, status := range order {
		seen[status] = true
		if count, ok := stats[status]; ok && count > 0 {
			rows = append(rows, []string{displayCase(status), strconv.Itoa(count)})
		}
	}
	extras := make([]string, 0)
	for status, count := range stats {
		if !seen[status] && count > 0 {
			extras = append(extras, status)
		}
	}
	sort.Strings(extras)
	for _, status := range extras {
		rows = append(rows, []string{displayCase(status), strconv.Itoa(stats[status])})
	}
	return rows
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var items []ipc.QueueItem
				if client != nil {
					resp, err := client.QueueList(listStatuses)
					if err != nil {
						return err
					}
					items = resp.Items
				} else {
					statuses := make([]queue.Status, 0, len(listStatuses))
					for _, raw := range listStatuses {
						parsed, ok := queue.ParseStatus(raw)
						if !ok {
							return fmt.Errorf("unknown status %q", raw)
						}
						statuses = append(statuses, parsed)
					}
					stored, err := store.List(cmd.Context(), statuses...)
					if err != nil {
						return err
					}
					items = make([]ipc.QueueItem, 0, len(stored))
					for _, item := range stored {
						items = append(items, ipc.FromQueueItem(item))
					}
				}

				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				table := renderTable(
					[]string{"Issue", "Title", "Priority", "Status", "Retries", "Enqueued"},
					buildQueueListRows(items),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by queue status (repeatable)")
	return cmd
}

func buildQueueListRows(items []ipc.QueueItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		title := item.Title
		if len(title) > 48 {
			title = title[:45] + "..."
		}
		rows = append(rows, []string{
			fmt.Sprintf("#%d", item.IssueNumber),
			title,
			displayCase(item.Priority),
			displayCase(item.Status),
			strconv.Itoa(item.RetryCount),
			formatTimestamp(item.EnqueuedAt),
		})
	}
	return rows
}

func formatTimestamp(raw string) string {
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}
	return parsed.Local().Format("2006-01-02 15:04")
}

func newQueueDescribeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <issue-number>",
		Short: "Show details for one queue item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			issueNumber, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
			if err != nil || issueNumber <= 0 {
				return fmt.Errorf("invalid issue number %q", args[0])
			}

			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var item ipc.QueueItem
				if client != nil {
					resp, err := client.QueueDescribe(issueNumber)
					if err != nil {
						return err
					}
					item = resp.Item
				} else {
					stored, err := store.GetByIssue(cmd.Context(), issueNumber)
					if err != nil {
						return err
					}
					if stored == nil {
						return fmt.Errorf("issue #%d is not queued", issueNumber)
					}
					item = ipc.FromQueueItem(stored)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Issue: #%d\n", item.IssueNumber)
				fmt.Fprintf(out, "Title: %s\n", item.Title)
				fmt.Fprintf(out, "URL: %s\n", item.URL)
				fmt.Fprintf(out, "Priority: %s\n", displayCase(item.Priority))
				fmt.Fprintf(out, "Status: %s\n", displayCase(item.Status))
				fmt.Fprintf(out, "Enqueued: %s\n", formatTimestamp(item.EnqueuedAt))
				if item.StartedAt != "" {
					fmt.Fprintf(out, "Started: %s\n", formatTimestamp(item.StartedAt))
				}
				if item.CompletedAt != "" {
					fmt.Fprintf(out, "Completed: %s\n", formatTimestamp(item.CompletedAt))
				}
				fmt.Fprintf(out, "Retries: %d\n", item.RetryCount)
				if item.ErrorMessage != "" {
					fmt.Fprintf(out, "Error: %s\n", item.ErrorMessage)
				}
				return nil
			})
		},
	}
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	var priority string

	cmd := &cobra.Command{
		Use:   "add <issue-number>",
		Short: "Queue a repository issue for triage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			issueNumber, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
			if err != nil || issueNumber <= 0 {
				return fmt.Errorf("invalid issue number %q", args[0])
			}

			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				out := cmd.OutOrStdout()
				if client != nil {
					resp, err := client.QueueAdd(issueNumber, priority)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Queued issue #%d (%s priority)\n", resp.Item.IssueNumber, resp.Item.Priority)
					return nil
				}

				cfg := ctx.configValue()
				gh, err := github.NewClient(cfg)
				if err != nil {
					return err
				}
				issue, err := gh.GetIssue(cmd.Context(), issueNumber)
				if err != nil {
					return err
				}
				if !strings.EqualFold(issue.State, "open") {
					return fmt.Errorf("issue #%d is %s", issueNumber, issue.State)
				}
				itemPriority := github.PriorityForLabels(issue.LabelNames())
				if priority != "" {
					parsed, ok := queue.ParsePriority(priority)
					if !ok {
						return fmt.Errorf("unknown priority %q", priority)
					}
					itemPriority = parsed
				}
				item, err := store.Enqueue(cmd.Context(), issue.Number, itemPriority, issue.Title, issue.HTMLURL)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Queued issue #%d (%s priority)\n", item.IssueNumber, item.Priority)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&priority, "priority", "p", "", "Override the label-derived priority (urgent, high, normal, low)")
	return cmd
}

func newQueueSyncCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Queue open repository issues that are not already queued",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				out := cmd.OutOrStdout()
				if client != nil {
					resp, err := client.QueueSync(limit)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Queued %d issues\n", resp.Added)
					return nil
				}

				cfg := ctx.configValue()
				gh, err := github.NewClient(cfg)
				if err != nil {
					return err
				}
				issues, err := gh.ListOpenIssues(cmd.Context(), limit)
				if err != nil {
					return err
				}
				added := 0
				for _, issue := range issues {
					_, err := store.Enqueue(cmd.Context(), issue.Number, github.PriorityForLabels(issue.LabelNames()), issue.Title, issue.HTMLURL)
					if err != nil {
						if errors.Is(err, queue.ErrDuplicateItem) {
							continue
						}
						return err
					}
					added++
				}
				fmt.Fprintf(out, "Queued %d issues\n", added)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of open issues to fetch")
	return cmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearCompleted && clearFailed {
				return errors.New("specify only one of --completed or --failed")
			}
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				out := cmd.OutOrStdout()
				var removed int64
				var err error
				var label string

				switch {
				case clearCompleted:
					label = "completed items"
					if client != nil {
						var resp *ipc.QueueClearCompletedResponse
						if resp, err = client.QueueClearCompleted(); err == nil {
							removed = resp.Removed
						}
					} else {
						removed, err = store.ClearCompleted(cmd.Context())
					}
				case clearFailed:
					label = "failed items"
					if client != nil {
						var resp *ipc.QueueClearFailedResponse
						if resp, err = client.QueueClearFailed(); err == nil {
							removed = resp.Removed
						}
					} else {
						removed, err = store.ClearFailed(cmd.Context())
					}
				default:
					label = "queue items"
					if client != nil {
						var resp *ipc.QueueClearResponse
						if resp, err = client.QueueClear(); err == nil {
							removed = resp.Removed
						}
					} else {
						removed, err = store.Clear(cmd.Context())
					}
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Cleared %d %s\n", removed, label)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove only completed items")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove only failed items")
	return cmd
}

func newQueueClearFailedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-failed",
		Short: "Remove failed queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var removed int64
				var err error
				if client != nil {
					var resp *ipc.QueueClearFailedResponse
					if resp, err = client.QueueClearFailed(); err == nil {
						removed = resp.Removed
					}
				} else {
					removed, err = store.ClearFailed(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d failed items\n", removed)
				return nil
			})
		},
	}
}

func newQueueResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Return in-flight items to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var updated int64
				var err error
				if client != nil {
					var resp *ipc.QueueResetResponse
					if resp, err = client.QueueReset(); err == nil {
						updated = resp.Updated
					}
				} else {
					updated, err = store.ResetStuckProcessing(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d items\n", updated)
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [issue-number...]",
		Short: "Retry failed queue items",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			issueNumbers := make([]int64, 0, len(args))
			for _, arg := range args {
				number, err := strconv.ParseInt(strings.TrimPrefix(arg, "#"), 10, 64)
				if err != nil {
					return fmt.Errorf("invalid issue number %q", arg)
				}
				issueNumbers = append(issueNumbers, number)
			}

			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var updated int64
				var err error
				if client != nil {
					var resp *ipc.QueueRetryResponse
					if resp, err = client.QueueRetry(issueNumbers); err == nil {
						updated = resp.Updated
					}
				} else {
					updated, err = store.RetryFailed(cmd.Context(), issueNumbers...)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retried %d failed items\n", updated)
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <issue-number>",
		Short: "Remove one queue item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			issueNumber, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
			if err != nil || issueNumber <= 0 {
				return fmt.Errorf("invalid issue number %q", args[0])
			}

			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var removed bool
				var err error
				if client != nil {
					var resp *ipc.QueueRemoveResponse
					if resp, err = client.QueueRemove(issueNumber); err == nil {
						removed = resp.Removed
					}
				} else {
					removed, err = store.Remove(cmd.Context(), issueNumber)
				}
				if err != nil {
					return err
				}
				if removed {
					fmt.Fprintf(cmd.OutOrStdout(), "Removed issue #%d from the queue\n", issueNumber)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Issue #%d is not queued\n", issueNumber)
				}
				return nil
			})
		},
	}
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show queue health summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				out := cmd.OutOrStdout()
				if client != nil {
					health, err := client.QueueHealth()
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Total: %d\nPending: %d\nProcessing: %d\nFailed: %d\nCompleted: %d\n",
						health.Total, health.Pending, health.Processing, health.Failed, health.Completed)
					return nil
				}
				health, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Total: %d\nPending: %d\nProcessing: %d\nFailed: %d\nCompleted: %d\n",
					health.Total, health.Pending, health.Processing, health.Failed, health.Completed)
				return nil
			})
		},
	}
}
