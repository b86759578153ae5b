// SPDX-License-Identifier: EPL-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"runcell/internal/serial"
	"runcell/pkg/mdrb"
)

var serialStartIdx int

var serialCmd = &cobra.Command{
	Use:   "serial <runbook.mdrb>",
	Short: "Run every executable block in a runbook, in document order",
	Args:  cobra.ExactArgs(1),
	RunE:  runSerial,
}

func init() {
	serialCmd.Flags().IntVar(&serialStartIdx, "start", 0, "document index to start from (for resuming after a pause)")
}

func runSerial(cmd *cobra.Command, args []string) error {
	path := args[0]

	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := mdrb.Import(string(src))
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	rt, err := newRuntime(currentConfig())
	if err != nil {
		return err
	}
	defer rt.Close()

	driver := serial.New(rt.Engine, rt.Bus)
	result := driver.Run(cmd.Context(), doc, serialStartIdx)

	switch result.Reason {
	case serial.StopCompleted:
		fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("runbook completed"))
	case serial.StopPaused:
		fmt.Fprintf(cmd.OutOrStdout(), "%s at index %d (block %s) — resume with --start %d\n",
			WarningStyle.Render("paused"), result.StoppedIdx, result.StoppedAt, result.StoppedIdx+1)
	case serial.StopCancelled:
		fmt.Fprintf(cmd.OutOrStdout(), "%s at index %d (block %s)\n", WarningStyle.Render("cancelled"), result.StoppedIdx, result.StoppedAt)
	case serial.StopFailed:
		return fmt.Errorf("failed at index %d (block %s): %w", result.StoppedIdx, result.StoppedAt, result.Err)
	}
	return nil
}
