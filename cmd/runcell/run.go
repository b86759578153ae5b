// SPDX-License-Identifier: EPL-2.0

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"runcell/internal/engine"
	"runcell/internal/eventbus"
	"runcell/pkg/mdrb"
)

var runCmd = &cobra.Command{
	Use:   "run <runbook.mdrb> <block-id>",
	Short: "Execute a single block from a runbook",
	Args:  cobra.ExactArgs(2),
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	path, blockIDStr := args[0], args[1]

	blockID, err := uuid.Parse(blockIDStr)
	if err != nil {
		return fmt.Errorf("invalid block id %q: %w", blockIDStr, err)
	}

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

	start := time.Now()
	executionID, output, err := rt.Engine.ExecuteBlock(cmd.Context(), doc, blockID)
	if err != nil {
		return fmt.Errorf("execute block %s: %w", blockID, err)
	}

	for frame := range output.Frames() {
		printFrame(cmd, frame)
	}

	handle, ok := rt.Engine.Handle(executionID)
	if !ok {
		return fmt.Errorf("execution %s vanished", executionID)
	}
	outcome := handle.Wait()

	fmt.Fprintf(cmd.OutOrStdout(), "\n%s (%s, %s)\n", statusStyle(outcome.Status), outcome.Status, time.Since(start).Round(time.Millisecond))
	if outcome.Status == engine.StatusFailed {
		return fmt.Errorf("block %s failed: %s", blockID, outcome.Message)
	}
	return nil
}

func printFrame(cmd *cobra.Command, f eventbus.BlockOutput) {
	switch {
	case f.Stdout != "":
		fmt.Fprint(cmd.OutOrStdout(), f.Stdout)
	case f.Stderr != "":
		fmt.Fprint(cmd.ErrOrStderr(), ErrorStyle.Render(f.Stderr))
	case f.Object != nil:
		fmt.Fprintf(cmd.OutOrStdout(), "%v\n", f.Object)
	case f.Lifecycle != nil:
		if verbose {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s\n", SubtitleStyle.Render(string(f.Lifecycle.Kind)))
		}
	case f.Prompt != nil:
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", CmdStyle.Render(f.Prompt.Prompt))
	}
}

func statusStyle(status engine.Status) string {
	switch status {
	case engine.StatusSuccess:
		return SuccessStyle.Render("ok")
	case engine.StatusFailed:
		return ErrorStyle.Render("failed")
	case engine.StatusCancelled:
		return WarningStyle.Render("cancelled")
	default:
		return status.String()
	}
}
