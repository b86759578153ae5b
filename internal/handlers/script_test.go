// SPDX-License-Identifier: EPL-2.0

package handlers

import (
	"context"
	"path/filepath"
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

func newScriptTestEngine() *engine.Engine {
	registry := engine.Registry{document.BlockScript: Script{}}
	return engine.New(registry, eventbus.NewBus(), ptystore.New(), sshpool.New(), document.NewMemoryLocalValues())
}

func drainOutput(ch *eventbus.OutputChannel) []eventbus.BlockOutput {
	var frames []eventbus.BlockOutput
	for f := range ch.Frames() {
		frames = append(frames, f)
	}
	return frames
}

func runScriptBlock(t *testing.T, doc *document.Document, blockID uuid.UUID) ([]eventbus.BlockOutput, engine.Outcome) {
	t.Helper()
	eng := newScriptTestEngine()
	executionID, output, err := eng.ExecuteBlock(context.Background(), doc, blockID)
	require.NoError(t, err)

	frames := drainOutput(output)

	handle, ok := eng.Handle(executionID)
	require.True(t, ok)

	select {
	case <-handle.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("script block never finished")
	}
	return frames, handle.Wait()
}

// TestScriptCapturesStdout covers spec.md §8 scenario 1: an echo script's
// stdout content reaches the output channel verbatim.
func TestScriptCapturesStdout(t *testing.T) {
	id := uuid.New()
	doc := document.NewDocument("test")
	doc.Blocks = []document.Block{
		&document.ScriptBlock{
			Base:        document.Base{ID: id, Type: document.BlockScript},
			Interpreter: "sh",
			Code:        "echo hello-runcell",
		},
	}

	frames, outcome := runScriptBlock(t, doc, id)
	require.Equal(t, engine.StatusSuccess, outcome.Status)

	var stdout string
	for _, f := range frames {
		stdout += f.Stdout
	}
	require.Contains(t, stdout, "hello-runcell")
}

// TestScriptDirectoryOverrideAffectsCwd covers spec.md §8 scenario 2: a
// preceding directory block's cwd override is visible to a later script's
// `pwd`.
func TestScriptDirectoryOverrideAffectsCwd(t *testing.T) {
	dir := t.TempDir()
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	dirID := uuid.New()
	scriptID := uuid.New()
	doc := document.NewDocument("test")
	doc.Blocks = []document.Block{
		&document.DirectoryBlock{Base: document.Base{ID: dirID, Type: document.BlockDirectory}, Path: resolved},
		&document.ScriptBlock{
			Base:        document.Base{ID: scriptID, Type: document.BlockScript},
			Interpreter: "sh",
			Code:        "pwd",
		},
	}

	frames, outcome := runScriptBlock(t, doc, scriptID)
	require.Equal(t, engine.StatusSuccess, outcome.Status)

	var stdout string
	for _, f := range frames {
		stdout += f.Stdout
	}
	require.Contains(t, stdout, resolved)
}

// TestScriptOutputVariableChainsIntoLaterBlock covers spec.md §8 scenario 3:
// a script's output_variable becomes an active context var visible to a
// later block's template rendering.
func TestScriptOutputVariableChainsIntoLaterBlock(t *testing.T) {
	eng := newScriptTestEngine()
	producerID := uuid.New()
	consumerID := uuid.New()

	doc := document.NewDocument("test")
	doc.Blocks = []document.Block{
		&document.ScriptBlock{
			Base:           document.Base{ID: producerID, Type: document.BlockScript},
			Interpreter:    "sh",
			Code:           "echo captured-value",
			OutputVariable: "greeting",
		},
		&document.ScriptBlock{
			Base:        document.Base{ID: consumerID, Type: document.BlockScript},
			Interpreter: "sh",
			Code:        "echo {{ var.greeting }}",
		},
	}

	executionID, output, err := eng.ExecuteBlock(context.Background(), doc, producerID)
	require.NoError(t, err)
	for range output.Frames() {
	}
	handle, ok := eng.Handle(executionID)
	require.True(t, ok)
	require.Equal(t, engine.StatusSuccess, handle.Wait().Status)

	resolver, err := eng.ResolveUpTo(doc, consumerID)
	require.NoError(t, err)
	entry, ok := resolver.Vars()["greeting"]
	require.True(t, ok)
	require.Equal(t, "captured-value", entry.Value)
	require.Equal(t, document.VarSourceScriptOutput, entry.Source)
}
