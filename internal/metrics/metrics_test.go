// SPDX-License-Identifier: EPL-2.0

package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandlerServesCounters(t *testing.T) {
	BlocksStarted.WithLabelValues("script").Inc()
	BlocksFinished.WithLabelValues("script").Inc()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "runcell_blocks_started_total")
	require.Contains(t, body, `block_type="script"`)
}

func TestTimerObservesDuration(t *testing.T) {
	timer := NewTimer()
	timer.ObserveBlockType("terminal")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	require.True(t, strings.Contains(body, "runcell_block_execution_duration_seconds"))
}
