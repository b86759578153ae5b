// SPDX-License-Identifier: EPL-2.0

package serial

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"runcell/internal/engine"
	"runcell/internal/eventbus"
	"runcell/internal/handlers"
	"runcell/internal/ptystore"
	"runcell/internal/sshpool"
	"runcell/pkg/document"
)

func scriptBlock(code string) *document.ScriptBlock {
	return &document.ScriptBlock{
		Base:        document.Base{ID: uuid.New(), Type: document.BlockScript},
		Interpreter: "sh",
		Code:        code,
	}
}

func newTestEngine() (*engine.Engine, *eventbus.Bus) {
	bus := eventbus.NewBus()
	registry := engine.Registry{
		document.BlockScript: handlers.Script{},
		document.BlockPause:  handlers.Pause{},
	}
	eng := engine.New(registry, bus, ptystore.New(), sshpool.New(), document.NewMemoryLocalValues())
	return eng, bus
}

func docWithBlocks(blocks ...document.Block) *document.Document {
	doc := document.NewDocument("test")
	doc.Blocks = blocks
	return doc
}

func TestRunCompletesAllBlocks(t *testing.T) {
	eng, bus := newTestEngine()
	doc := docWithBlocks(scriptBlock("exit 0"), scriptBlock("exit 0"))

	result := New(eng, bus).Run(context.Background(), doc, 0)
	require.Equal(t, StopCompleted, result.Reason)
	require.Equal(t, -1, result.StoppedIdx)
}

func TestRunStopsOnFailure(t *testing.T) {
	eng, bus := newTestEngine()
	doc := docWithBlocks(scriptBlock("exit 0"), scriptBlock("exit 1"), scriptBlock("exit 0"))

	result := New(eng, bus).Run(context.Background(), doc, 0)
	require.Equal(t, StopFailed, result.Reason)
	require.Equal(t, 1, result.StoppedIdx)
}

func TestRunStopsAndPublishesOnPause(t *testing.T) {
	eng, bus := newTestEngine()
	pause := &document.PauseBlock{Base: document.Base{ID: uuid.New(), Type: document.BlockPause}}
	doc := docWithBlocks(scriptBlock("exit 0"), pause, scriptBlock("exit 0"))

	sub := bus.Subscribe(4)
	defer sub.Unsubscribe()

	result := New(eng, bus).Run(context.Background(), doc, 0)
	require.Equal(t, StopPaused, result.Reason)
	require.Equal(t, 1, result.StoppedIdx)

	// The bus also carries the blocks' own lifecycle events, so look through
	// everything buffered rather than only the first event.
	var kinds []eventbus.GrandCentralEventKind
	for len(sub.Events) > 0 {
		kinds = append(kinds, (<-sub.Events).Kind)
	}
	if len(kinds) == 0 {
		t.Fatal("expected a paused event on the bus")
	}
	require.Contains(t, kinds, eventbus.EventSerialExecutionPaused)
}

func TestRunSkipsDisplayOnlyBlocks(t *testing.T) {
	eng, bus := newTestEngine()
	display := &document.EditorBlock{Base: document.Base{ID: uuid.New(), Type: document.BlockEditor}, Content: "# notes"}
	doc := docWithBlocks(display, scriptBlock("exit 0"))

	result := New(eng, bus).Run(context.Background(), doc, 0)
	require.Equal(t, StopCompleted, result.Reason)
}

func TestRunResumesFromStartIndex(t *testing.T) {
	eng, bus := newTestEngine()
	doc := docWithBlocks(scriptBlock("exit 1"), scriptBlock("exit 0"))

	result := New(eng, bus).Run(context.Background(), doc, 1)
	require.Equal(t, StopCompleted, result.Reason)
}
