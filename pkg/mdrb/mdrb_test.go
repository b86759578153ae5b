// SPDX-License-Identifier: EPL-2.0

package mdrb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"runcell/pkg/document"
)

const sample = `---
id: 11111111-1111-1111-1111-111111111111
name: deploy runbook
version: 2
---

# Deploy steps

Run the build then ship it.

` + "```@script" + `
---
interpreter: bash
---
echo hello
` + "```" + `
`

func TestImportParsesFrontMatterAndBlocks(t *testing.T) {
	doc, err := Import(sample)
	require.NoError(t, err)
	require.Equal(t, "deploy runbook", doc.Name)
	require.Equal(t, 2, doc.Version)
	require.Equal(t, "11111111-1111-1111-1111-111111111111", doc.ID.String())

	require.Len(t, doc.Blocks, 3)

	heading, ok := doc.Blocks[0].(*document.EditorBlock)
	require.True(t, ok)
	require.Equal(t, "# Deploy steps", heading.Content)

	paragraph, ok := doc.Blocks[1].(*document.EditorBlock)
	require.True(t, ok)
	require.Equal(t, "Run the build then ship it.", paragraph.Content)

	script, ok := doc.Blocks[2].(*document.ScriptBlock)
	require.True(t, ok)
	require.Equal(t, document.BlockScript, script.BlockType())
	require.Equal(t, "bash", script.Interpreter)
	require.Equal(t, "echo hello", script.Code)
}

func TestExportProducesTypedFenceForScriptBlock(t *testing.T) {
	doc := document.NewDocument("roundtrip")
	doc.Blocks = []document.Block{
		&document.ScriptBlock{
			Base:        document.Base{ID: newID(), Type: document.BlockScript},
			Interpreter: "bash",
			Code:        "echo hi",
		},
	}

	out, err := Export(doc)
	require.NoError(t, err)
	require.Contains(t, out, "```@script")
	require.Contains(t, out, "echo hi")
	require.Contains(t, out, "interpreter: bash")
}

func TestImportExportPreservesBlockSemantics(t *testing.T) {
	doc, err := Import(sample)
	require.NoError(t, err)

	out, err := Export(doc)
	require.NoError(t, err)

	reimported, err := Import(out)
	require.NoError(t, err)
	require.Len(t, reimported.Blocks, len(doc.Blocks))

	script, ok := reimported.Blocks[2].(*document.ScriptBlock)
	require.True(t, ok)
	require.Equal(t, "bash", script.Interpreter)
	require.Equal(t, "echo hello", script.Code)
}
