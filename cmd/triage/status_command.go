package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"triage/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, scheduler, and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			client, err := ctx.dialClient()
			if err != nil {
				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "not running", colorize))
				fmt.Fprintln(out, renderStatusLine("Socket", statusInfo, ctx.socketPath(), colorize))
				return nil
			}
			defer client.Close()

			status, err := client.Status()
			if err != nil {
				return err
			}
			printDaemonStatus(cmd, status, colorize)
			return nil
		},
	}
}

func printDaemonStatus(cmd *cobra.Command, status *ipc.StatusResponse, colorize bool) {
	out := cmd.OutOrStdout()

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	if status.Running {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", status.PID), colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "not running", colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Schedule", statusInfo, status.Schedule, colorize))
	if status.NextRun != "" {
		fmt.Fprintln(out, renderStatusLine("Next run", statusInfo, formatTimestamp(status.NextRun), colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Queue DB", statusInfo, status.QueueDBPath, colorize))
	fmt.Fprintln(out, renderStatusLine("Lock file", statusInfo, status.LockPath, colorize))

	if status.LastRun != nil {
		fmt.Fprintln(out)
		for _, line := range renderSectionHeader("Last run", colorize) {
			fmt.Fprintln(out, line)
		}
		run := status.LastRun
		kind := statusOK
		if run.Failed > 0 {
			kind = statusWarn
		}
		duration := time.Duration(run.DurationMS) * time.Millisecond
		fmt.Fprintln(out, renderStatusLine("Outcome", kind,
			fmt.Sprintf("%d processed, %d failed in %s", run.Processed, run.Failed, duration.Round(time.Second)), colorize))
		fmt.Fprintln(out, renderStatusLine("Trigger", statusInfo, run.Trigger, colorize))
		fmt.Fprintln(out, renderStatusLine("Started", statusInfo, formatTimestamp(run.Started), colorize))
	}

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Queue", colorize) {
		fmt.Fprintln(out, line)
	}
	if len(status.QueueStats) == 0 {
		fmt.Fprintln(out, renderStatusLine("Queue", statusInfo, "empty", colorize))
		return
	}
	statuses := make([]string, 0, len(status.QueueStats))
	for name := range status.QueueStats {
		statuses = append(statuses, name)
	}
	sort.Strings(statuses)
	parts := make([]string, 0, len(statuses))
	for _, name := range statuses {
		parts = append(parts, fmt.Sprintf("%d %s", status.QueueStats[name], name))
	}
	fmt.Fprintln(out, renderStatusLine("Items", statusInfo, strings.Join(parts, ", "), colorize))
}
