// SPDX-License-Identifier: EPL-2.0

// runcell is a thin cobra tree that exercises the engine (run, serial,
// workspace, log, serve-metrics), in the style of the teacher's
// cmd/invowk/root.go: fang for styled help/errors, lipgloss for output,
// config loaded once via cobra.OnInitialize.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"runcell/internal/config"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

var (
	verbose    bool
	cfgFile    string
	loadedConf *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "runcell",
	Short: "Run notebook-style runbooks of shell, terminal, query, and context blocks",
	Long: TitleStyle.Render("runcell") + SubtitleStyle.Render(" - a local runbook execution runtime") + `

runcell executes runbook documents: ordered blocks of shell scripts,
interactive terminals, database/HTTP/Kubernetes queries, SSH connections,
and context setters (variables, working directory, environment).

` + SubtitleStyle.Render("Examples:") + `
  runcell run book.mdrb <block-id>     Execute a single block
  runcell serial book.mdrb             Run every block in document order
  runcell workspace index .            Index a workspace directory
  runcell log tail <block-id>          Show a block's last execution time
  runcell serve-metrics                Serve Prometheus metrics over HTTP`,
}

func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute adds all child commands to the root command and runs it. Called
// once by main.main.
func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (ignored: config is loaded from the runcell config dir or the working directory)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serialCmd)
	rootCmd.AddCommand(workspaceCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(serveMetricsCmd)
	rootCmd.AddCommand(showCmd)
}

func initConfig() {
	cfg, err := config.Load()
	if err != nil {
		if verbose {
			fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: ")+fmt.Sprintf("failed to load config: %v", err))
		}
		cfg = config.DefaultConfig()
	}
	if !verbose {
		verbose = cfg.UI.Verbose
	}
	loadedConf = cfg
}

// currentConfig returns the config loaded by initConfig, falling back to
// defaults for commands run without going through cobra's init chain
// (e.g. unit tests that call a command's RunE directly).
func currentConfig() *config.Config {
	if loadedConf == nil {
		return config.DefaultConfig()
	}
	return loadedConf
}
