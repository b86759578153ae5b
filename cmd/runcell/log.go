// SPDX-License-Identifier: EPL-2.0

package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Inspect the execution log",
}

var logTailCmd = &cobra.Command{
	Use:   "tail <block-id>",
	Short: "Show a block's most recent execution time",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogTail,
}

func init() {
	logCmd.AddCommand(logTailCmd)
}

func runLogTail(cmd *cobra.Command, args []string) error {
	blockID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid block id %q: %w", args[0], err)
	}

	rt, err := newRuntime(currentConfig())
	if err != nil {
		return err
	}
	defer rt.Close()

	last, err := rt.ExecLog.GetLastExecutionTime(cmd.Context(), blockID)
	if err != nil {
		return fmt.Errorf("look up last execution: %w", err)
	}
	if last.IsZero() {
		fmt.Fprintln(cmd.OutOrStdout(), SubtitleStyle.Render("no recorded executions"))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), last.Format("2006-01-02T15:04:05Z07:00"))
	return nil
}
