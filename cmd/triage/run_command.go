package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"triage/internal/ipc"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Drain the queue immediately",
		Long:  "Triggers a drain run on the daemon and waits for it to finish.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RunNow()
				if err != nil {
					return err
				}
				printRunSummary(cmd, resp.Run)
				return nil
			})
		},
	}
}

func printRunSummary(cmd *cobra.Command, run ipc.RunSummary) {
	out := cmd.OutOrStdout()
	duration := time.Duration(run.DurationMS) * time.Millisecond
	fmt.Fprintf(out, "Run %s finished in %s\n", run.RunID, duration.Round(time.Millisecond))
	fmt.Fprintf(out, "Processed: %d\n", run.Processed)
	fmt.Fprintf(out, "Failed: %d\n", run.Failed)
}
