// SPDX-License-Identifier: EPL-2.0

package main

import (
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"runcell/internal/metrics"
)

var serveMetricsAddr string

var serveMetricsCmd = &cobra.Command{
	Use:   "serve-metrics",
	Short: "Serve block execution metrics in the Prometheus exposition format",
	RunE:  runServeMetrics,
}

func init() {
	serveMetricsCmd.Flags().StringVar(&serveMetricsAddr, "addr", ":9090", "listen address")
}

func runServeMetrics(cmd *cobra.Command, args []string) error {
	logger := log.NewWithOptions(cmd.ErrOrStderr(), log.Options{Prefix: "serve-metrics"})

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	logger.Info("listening", "addr", serveMetricsAddr)
	if err := http.ListenAndServe(serveMetricsAddr, mux); err != nil {
		return fmt.Errorf("serve-metrics: %w", err)
	}
	return nil
}
