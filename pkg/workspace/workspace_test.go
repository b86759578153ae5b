// SPDX-License-Identifier: EPL-2.0

package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScanIndexesManifestAndRunbooks(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "atuin.toml"), "[workspace]\nid = \"ws-1\"\nname = \"ops\"\n")
	writeFile(t, filepath.Join(dir, "deploy.atrb"),
		`{"id":"11111111-1111-1111-1111-111111111111","name":"deploy","version":3,"content":[{"huge":"payload"}]}`)
	writeFile(t, filepath.Join(dir, "nested", "rollback.atrb"),
		`{"name":"rollback","id":"22222222-2222-2222-2222-222222222222","version":1,"content":[]}`)
	writeFile(t, filepath.Join(dir, "notes.txt"), "not a runbook")

	idx, err := Scan(dir)
	require.NoError(t, err)
	require.Equal(t, "ops", idx.Manifest.Workspace.Name)
	require.Len(t, idx.Runbooks, 2)

	byName := map[string]RunbookHeader{}
	for _, h := range idx.Runbooks {
		byName[h.Name] = h
	}
	require.Equal(t, 3, byName["deploy"].Version)
	require.Equal(t, "11111111-1111-1111-1111-111111111111", byName["deploy"].ID.String())
	require.Equal(t, 1, byName["rollback"].Version)
}

func TestReadRunbookHeaderRejectsInvalidID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.atrb")
	writeFile(t, path, `{"id":"not-a-uuid","name":"bad","version":1,"content":[]}`)

	_, err := ReadRunbookHeader(path)
	require.Error(t, err)
}
