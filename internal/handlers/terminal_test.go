// SPDX-License-Identifier: EPL-2.0

package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"runcell/internal/engine"
	"runcell/internal/eventbus"
	"runcell/internal/ptystore"
	"runcell/internal/sshpool"
	"runcell/pkg/document"
)

// TestTerminalCancelRemovesPtyFromStore covers spec.md §8 scenario 4: a
// terminal block's local PTY is registered in the store while running and
// removed once its execution is cancelled (the same registry both the local
// and SSH paths now share, per the terminal.rs-grounded fix in terminal.go).
func TestTerminalCancelRemovesPtyFromStore(t *testing.T) {
	pts := ptystore.New()
	t.Cleanup(pts.Close)

	registry := engine.Registry{document.BlockTerminal: Terminal{}}
	eng := engine.New(registry, eventbus.NewBus(), pts, sshpool.New(), document.NewMemoryLocalValues())

	blockID := uuid.New()
	doc := document.NewDocument("test")
	doc.Blocks = []document.Block{
		&document.TerminalBlock{Base: document.Base{ID: blockID, Type: document.BlockTerminal}, Code: "sleep 30"},
	}

	executionID, output, err := eng.ExecuteBlock(context.Background(), doc, blockID)
	require.NoError(t, err)

	// Drain frames in the background so the handler's Binary/lifecycle sends
	// never block on a full channel while we wait for the PTY to register.
	go func() {
		for range output.Frames() {
		}
	}()

	require.Eventually(t, func() bool { return pts.Has(blockID) }, 2*time.Second, 10*time.Millisecond,
		"expected the running terminal's PTY to be registered in the store")

	eng.CancelExecution(executionID)

	handle, ok := eng.Handle(executionID)
	require.True(t, ok)
	select {
	case <-handle.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("terminal block never finished after cancellation")
	}
	require.Equal(t, engine.StatusCancelled, handle.Wait().Status)

	require.Eventually(t, func() bool { return !pts.Has(blockID) }, 2*time.Second, 10*time.Millisecond,
		"expected cancellation to remove the PTY from the store")
}
