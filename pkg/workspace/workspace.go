// SPDX-License-Identifier: EPL-2.0

// Package workspace implements the runbook workspace indexer from
// spec.md §6: a directory containing atuin.toml (workspace id/name) plus
// an arbitrary tree of .atrb runbook files, indexed incrementally to
// extract {id, name, version} without unmarshaling each file's full
// content array.
package workspace

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
)

// Manifest is atuin.toml's [workspace] table.
type Manifest struct {
	Workspace struct {
		ID   string `toml:"id"`
		Name string `toml:"name"`
	} `toml:"workspace"`
}

// RunbookHeader is the {id, name, version} header extracted from a .atrb
// file without reading its content array.
type RunbookHeader struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Version int       `json:"version"`
	Path    string    `json:"-"`
}

// Index is the result of scanning a workspace directory: its manifest plus
// every .atrb file's header.
type Index struct {
	Manifest Manifest
	Runbooks []RunbookHeader
}

// LoadManifest reads and parses atuin.toml from dir.
func LoadManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, "atuin.toml"))
	if err != nil {
		return m, fmt.Errorf("workspace: read atuin.toml: %w", err)
	}
	if err := toml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("workspace: parse atuin.toml: %w", err)
	}
	return m, nil
}

// ReadRunbookHeader extracts {id, name, version} from a .atrb file by
// token-streaming the top-level JSON object, so the (potentially large)
// "content" array is skipped rather than unmarshaled.
func ReadRunbookHeader(path string) (RunbookHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return RunbookHeader{}, fmt.Errorf("workspace: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	header, err := decodeHeader(f)
	if err != nil {
		return RunbookHeader{}, fmt.Errorf("workspace: parse %s: %w", path, err)
	}
	header.Path = path
	return header, nil
}

func decodeHeader(r io.Reader) (RunbookHeader, error) {
	dec := json.NewDecoder(r)

	if _, err := dec.Token(); err != nil { // consume '{'
		return RunbookHeader{}, err
	}

	var header RunbookHeader
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return RunbookHeader{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return RunbookHeader{}, fmt.Errorf("unexpected token %v", tok)
		}

		switch key {
		case "id":
			var id string
			if err := dec.Decode(&id); err != nil {
				return RunbookHeader{}, err
			}
			parsed, err := uuid.Parse(id)
			if err != nil {
				return RunbookHeader{}, fmt.Errorf("invalid id %q: %w", id, err)
			}
			header.ID = parsed
		case "name":
			if err := dec.Decode(&header.Name); err != nil {
				return RunbookHeader{}, err
			}
		case "version":
			if err := dec.Decode(&header.Version); err != nil {
				return RunbookHeader{}, err
			}
		default:
			// Skip this field's value (including "content") without
			// unmarshaling it — a raw json.RawMessage still materializes
			// the bytes but never decodes them into Go values.
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return RunbookHeader{}, err
			}
		}

		// Once all three header fields are known, stop parsing — the rest
		// of the object (typically "content") is never touched.
		if header.ID != uuid.Nil && header.Name != "" && header.Version != 0 {
			return header, nil
		}
	}
	return header, nil
}

// Scan walks dir for atuin.toml and every *.atrb file beneath it, reading
// only each file's header.
func Scan(dir string) (Index, error) {
	idx := Index{}

	manifest, err := LoadManifest(dir)
	if err != nil {
		return idx, err
	}
	idx.Manifest = manifest

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".atrb" {
			return nil
		}
		header, err := ReadRunbookHeader(path)
		if err != nil {
			return err
		}
		idx.Runbooks = append(idx.Runbooks, header)
		return nil
	})
	if err != nil {
		return idx, fmt.Errorf("workspace: scan %s: %w", dir, err)
	}
	return idx, nil
}
