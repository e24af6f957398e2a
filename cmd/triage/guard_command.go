package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"triage/internal/audit"
	"triage/internal/logging"
	"triage/internal/toolguard"
)

func newGuardCommand(ctx *commandContext) *cobra.Command {
	guardCmd := &cobra.Command{
		Use:   "guard",
		Short: "Evaluate the tool-use policy",
	}
	guardCmd.AddCommand(newGuardCheckCommand(ctx))
	return guardCmd
}

func newGuardCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check <tool-name> [json-input]",
		Short: "Check whether a tool invocation would be allowed",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			logger := logging.NewNop()

			auditLog, err := audit.Open(cfg, logger)
			if err != nil {
				return err
			}
			defer auditLog.Close()

			guard, err := toolguard.New(cfg.Security, auditLog, logger)
			if err != nil {
				return err
			}

			var input any
			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &input); err != nil {
					return fmt.Errorf("parse tool input: %w", err)
				}
			}

			decision := guard.Evaluate(args[0], input)
			out := cmd.OutOrStdout()
			if decision.Allowed {
				fmt.Fprintf(out, "allow: %s\n", args[0])
				return nil
			}
			fmt.Fprintf(out, "deny: %s (%s)\n", args[0], decision.Reason)
			return nil
		},
	}
}
