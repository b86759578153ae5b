// SPDX-License-Identifier: EPL-2.0

package execlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	path := filepath.Join(t.TempDir(), "exec_log.db")
	l, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(l.Close)
	return l
}

func TestGetOrCreateBlockIsIdempotent(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()
	blockID := uuid.New()

	id1, err := l.GetOrCreateBlock(ctx, blockID)
	require.NoError(t, err)

	id2, err := l.GetOrCreateBlock(ctx, blockID)
	require.NoError(t, err)
	require.Equal(t, id1, id2)
}

func TestLogExecutionThenGetLastExecutionTime(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()
	blockID := uuid.New()

	before, err := l.GetLastExecutionTime(ctx, blockID)
	require.NoError(t, err)
	require.True(t, before.IsZero())

	start := time.Now().Add(-time.Second).UnixNano()
	end := time.Now().UnixNano()
	require.NoError(t, l.LogExecution(ctx, blockID, start, end, "ok"))

	last, err := l.GetLastExecutionTime(ctx, blockID)
	require.NoError(t, err)
	require.Equal(t, end, last.UnixNano())
}

func TestGetLastExecutionTimeReturnsMostRecent(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()
	blockID := uuid.New()

	now := time.Now()
	require.NoError(t, l.LogExecution(ctx, blockID, now.Add(-2*time.Hour).UnixNano(), now.Add(-time.Hour).UnixNano(), "first"))
	require.NoError(t, l.LogExecution(ctx, blockID, now.Add(-time.Minute).UnixNano(), now.UnixNano(), "second"))

	last, err := l.GetLastExecutionTime(ctx, blockID)
	require.NoError(t, err)
	require.WithinDuration(t, now, last, time.Second)
}
