// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"runcell/internal/eventbus"
	"runcell/internal/ptystore"
	"runcell/internal/sshpool"
	"runcell/pkg/document"
)

func newDocWithScript(code string) (*document.Document, uuid.UUID) {
	id := uuid.New()
	doc := document.NewDocument("test")
	doc.Blocks = []document.Block{
		&document.ScriptBlock{Base: document.Base{ID: id, Type: document.BlockScript}, Interpreter: "sh", Code: code},
	}
	return doc, id
}

func newTestEngine(registry Registry) *Engine {
	return New(registry, eventbus.NewBus(), ptystore.New(), sshpool.New(), document.NewMemoryLocalValues())
}

func TestExecuteBlockRunsRegisteredHandlerToSuccess(t *testing.T) {
	eng := newTestEngine(Registry{document.BlockScript: scriptHandlerStub{}})
	doc, blockID := newDocWithScript("exit 0")

	executionID, output, err := eng.ExecuteBlock(context.Background(), doc, blockID)
	require.NoError(t, err)

	for range output.Frames() {
	}

	handle, ok := eng.Handle(executionID)
	require.True(t, ok)
	outcome := handle.Wait()
	require.Equal(t, StatusSuccess, outcome.Status)
}

func TestExecuteBlockUnknownBlockErrors(t *testing.T) {
	eng := newTestEngine(Registry{document.BlockScript: scriptHandlerStub{}})
	doc, _ := newDocWithScript("exit 0")

	_, _, err := eng.ExecuteBlock(context.Background(), doc, uuid.New())
	require.Error(t, err)
}

func TestExecuteBlockDisplayOnlyErrors(t *testing.T) {
	eng := newTestEngine(Registry{})
	id := uuid.New()
	doc := document.NewDocument("test")
	doc.Blocks = []document.Block{&document.EditorBlock{Base: document.Base{ID: id, Type: document.BlockEditor}, Content: "# hi"}}

	_, _, err := eng.ExecuteBlock(context.Background(), doc, id)
	require.Error(t, err)
}

func TestExecuteBlockNoHandlerErrors(t *testing.T) {
	eng := newTestEngine(Registry{})
	doc, blockID := newDocWithScript("exit 0")

	_, _, err := eng.ExecuteBlock(context.Background(), doc, blockID)
	require.Error(t, err)
}

func TestCancelExecutionIsIdempotentForUnknownID(t *testing.T) {
	eng := newTestEngine(Registry{})
	require.NotPanics(t, func() { eng.CancelExecution(uuid.New()) })
}

func TestHandlerThatNeverFinishesIsMarkedFailedDefensively(t *testing.T) {
	eng := newTestEngine(Registry{document.BlockScript: silentHandlerStub{}})
	doc, blockID := newDocWithScript("exit 0")

	executionID, output, err := eng.ExecuteBlock(context.Background(), doc, blockID)
	require.NoError(t, err)
	for range output.Frames() {
	}

	handle, ok := eng.Handle(executionID)
	require.True(t, ok)

	select {
	case <-handle.Done():
	case <-time.After(time.Second):
		t.Fatal("expected handle to finish defensively")
	}
	require.Equal(t, StatusFailed, handle.Status())
}

// scriptHandlerStub emits the lifecycle a well-behaved handler must, without
// shelling out, so engine dispatch can be tested in isolation from exec.
type scriptHandlerStub struct{}

func (scriptHandlerStub) Execute(ec *ExecutionContext) {
	ec.Handle.Finish(Outcome{Status: StatusSuccess})
}

// silentHandlerStub returns without driving the lifecycle to a terminal
// state, exercising the engine's defensive fallback.
type silentHandlerStub struct{}

func (silentHandlerStub) Execute(ec *ExecutionContext) {}
