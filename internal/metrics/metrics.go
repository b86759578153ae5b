// SPDX-License-Identifier: EPL-2.0

// Package metrics exposes the engine's block execution counters and
// duration histogram as a Prometheus registry, grounded on
// cuemby-warren's pkg/metrics package.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BlocksStarted counts block executions that have begun, by block type.
	BlocksStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runcell_blocks_started_total",
			Help: "Total number of block executions started, by block type",
		},
		[]string{"block_type"},
	)

	// BlocksFinished counts block executions that reached a success outcome.
	BlocksFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runcell_blocks_finished_total",
			Help: "Total number of block executions that finished successfully, by block type",
		},
		[]string{"block_type"},
	)

	// BlocksFailed counts block executions that reached a failure outcome.
	BlocksFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runcell_blocks_failed_total",
			Help: "Total number of block executions that failed, by block type",
		},
		[]string{"block_type"},
	)

	// BlocksCancelled counts block executions stopped by cancellation.
	BlocksCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runcell_blocks_cancelled_total",
			Help: "Total number of block executions cancelled, by block type",
		},
		[]string{"block_type"},
	)

	// ExecutionDuration observes wall-clock execution time per block type.
	ExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "runcell_block_execution_duration_seconds",
			Help:    "Block execution duration in seconds, by block type",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"block_type"},
	)
)

// Registry is the process-wide registry these metrics are registered on,
// kept separate from the default registry so cmd/runcell can serve it
// without picking up Go runtime metrics unintentionally registered
// elsewhere in the process.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(BlocksStarted)
	Registry.MustRegister(BlocksFinished)
	Registry.MustRegister(BlocksFailed)
	Registry.MustRegister(BlocksCancelled)
	Registry.MustRegister(ExecutionDuration)
}

// Handler returns the HTTP handler serving this package's registry in the
// Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Timer is a helper for timing an execution and recording it to
// ExecutionDuration once it completes.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveBlockType records the elapsed time against ExecutionDuration for
// blockType.
func (t *Timer) ObserveBlockType(blockType string) {
	ExecutionDuration.WithLabelValues(blockType).Observe(time.Since(t.start).Seconds())
}
