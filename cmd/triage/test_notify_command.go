package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"triage/internal/notifications"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test push notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			client, err := ctx.dialClient()
			if err == nil {
				defer client.Close()
				resp, rpcErr := client.TestNotification()
				if rpcErr != nil {
					return rpcErr
				}
				if !resp.Sent {
					return errors.New(resp.Message)
				}
				fmt.Fprintln(out, "Test notification sent")
				return nil
			}

			cfg := ctx.configValue()
			if cfg.Notifications.NtfyTopic == "" {
				return errors.New("ntfy topic not configured")
			}
			service := notifications.NewService(cfg)
			if err := service.TestNotification(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(out, "Test notification sent")
			return nil
		},
	}
}
