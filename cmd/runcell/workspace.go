// SPDX-License-Identifier: EPL-2.0

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"runcell/pkg/workspace"
)

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Inspect runbook workspaces",
}

var workspaceIndexCmd = &cobra.Command{
	Use:   "index <dir>",
	Short: "Index a workspace directory's atuin.toml and *.atrb runbook headers",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspaceIndex,
}

func init() {
	workspaceCmd.AddCommand(workspaceIndexCmd)
}

func runWorkspaceIndex(cmd *cobra.Command, args []string) error {
	idx, err := workspace.Scan(args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(idx); err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	return nil
}
