// SPDX-License-Identifier: EPL-2.0

package document

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// identityResolver renders every template to itself, for tests that don't
// care about template expansion.
type identityResolver struct{}

func (identityResolver) Render(template string) (string, error) { return template, nil }

func TestParseBlockDispatchesOnType(t *testing.T) {
	id := uuid.New()
	raw, err := json.Marshal(map[string]any{
		"id":          id,
		"type":        string(BlockScript),
		"interpreter": "bash",
		"code":        "echo hi",
	})
	require.NoError(t, err)

	b, err := ParseBlock(raw)
	require.NoError(t, err)
	require.Equal(t, BlockScript, b.BlockType())
	require.Equal(t, id, b.BlockID())

	script, ok := b.(*ScriptBlock)
	require.True(t, ok)
	require.Equal(t, "bash", script.Interpreter)
	require.Equal(t, "echo hi", script.Code)
}

func TestParseBlockUnknownTypeErrors(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{"id": uuid.New(), "type": "not-a-real-type"})
	_, err := ParseBlock(raw)
	require.Error(t, err)
}

func TestParseBlockQueryFamilySharesQueryBlock(t *testing.T) {
	for _, qt := range []BlockType{BlockPostgres, BlockMySQL, BlockSQLite, BlockClickHouse, BlockHTTP, BlockPrometheus, BlockKubernetes} {
		raw, _ := json.Marshal(map[string]any{"id": uuid.New(), "type": string(qt), "query": "select 1"})
		b, err := ParseBlock(raw)
		require.NoError(t, err)
		_, ok := b.(*QueryBlock)
		require.True(t, ok, "block type %s should decode to *QueryBlock", qt)
	}
}

func TestIsDisplayOnly(t *testing.T) {
	require.True(t, IsDisplayOnly(BlockEditor))
	require.True(t, IsDisplayOnly(BlockVarDisplay))
	require.True(t, IsDisplayOnly(BlockMarkdownRender))
	require.False(t, IsDisplayOnly(BlockScript))
}

func TestIsQueryBlock(t *testing.T) {
	require.True(t, IsQueryBlock(BlockPostgres))
	require.True(t, IsQueryBlock(BlockKubernetes))
	require.False(t, IsQueryBlock(BlockScript))
	require.False(t, IsQueryBlock(BlockPause))
}

func TestValidateVarName(t *testing.T) {
	require.NoError(t, ValidateVarName("foo_bar123"))
	require.Error(t, ValidateVarName(""))
	require.Error(t, ValidateVarName("has space"))
	require.Error(t, ValidateVarName("has-dash"))
}

func TestValidateEnvName(t *testing.T) {
	require.NoError(t, ValidateEnvName("PATH"))
	require.Error(t, ValidateEnvName(""))
	require.Error(t, ValidateEnvName("FOO=BAR"))
}

func TestDirectoryBlockPassiveContext(t *testing.T) {
	b := DirectoryBlock{Base: Base{ID: uuid.New(), Type: BlockDirectory}, Path: "/tmp/work"}
	item, ok, err := b.PassiveContext(identityResolver{}, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, DocumentCwd{Path: "/tmp/work"}, item)
}

func TestVarBlockRejectsInvalidName(t *testing.T) {
	b := VarBlock{Base: Base{ID: uuid.New(), Type: BlockVar}, Name: "bad name", Value: "x"}
	_, _, err := b.PassiveContext(identityResolver{}, nil)
	require.Error(t, err)
}

func TestHostSelectLocalResolvesToNilHost(t *testing.T) {
	b := HostSelectBlock{Base: Base{ID: uuid.New(), Type: BlockHostSelect}, Value: "local"}
	item, ok, err := b.PassiveContext(identityResolver{}, nil)
	require.NoError(t, err)
	require.True(t, ok)
	sshHost, ok := item.(DocumentSshHost)
	require.True(t, ok)
	require.Nil(t, sshHost.Host)
}
