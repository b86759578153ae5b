// SPDX-License-Identifier: EPL-2.0

package document

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// BlockType is the closed set of block type tags a document may contain.
type BlockType string

const (
	BlockTerminal        BlockType = "terminal"
	BlockScript          BlockType = "script"
	BlockPostgres        BlockType = "postgres"
	BlockMySQL           BlockType = "mysql"
	BlockSQLite          BlockType = "sqlite"
	BlockClickHouse      BlockType = "clickhouse"
	BlockHTTP            BlockType = "http"
	BlockPrometheus      BlockType = "prometheus"
	BlockKubernetes      BlockType = "kubernetes"
	BlockDropdown        BlockType = "dropdown"
	BlockEditor          BlockType = "editor"
	BlockVar             BlockType = "var"
	BlockLocalVar        BlockType = "local-var"
	BlockEnv             BlockType = "env"
	BlockDirectory       BlockType = "directory"
	BlockLocalDirectory  BlockType = "local-directory"
	BlockHostSelect      BlockType = "host-select"
	BlockSSHConnect      BlockType = "ssh-connect"
	BlockVarDisplay      BlockType = "var_display"
	BlockMarkdownRender  BlockType = "markdown_render"
	BlockPause           BlockType = "pause"
)

var varNameRegex = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidateVarName enforces the document-wide variable naming rule:
// non-empty, matching [A-Za-z0-9_]+.
func ValidateVarName(name string) error {
	if name == "" || !varNameRegex.MatchString(name) {
		return fmt.Errorf("invalid variable name %q: must match [A-Za-z0-9_]+", name)
	}
	return nil
}

// ValidateEnvName enforces the document-wide environment variable naming
// rule: may not contain '=' or NUL.
func ValidateEnvName(name string) error {
	if name == "" {
		return fmt.Errorf("environment variable name must not be empty")
	}
	if strings.ContainsAny(name, "=\x00") {
		return fmt.Errorf("invalid environment variable name %q: must not contain '=' or NUL", name)
	}
	return nil
}

// Resolver is the minimal template-rendering capability a block needs to
// compute its passive or active context. The concrete implementation lives
// in package context; this interface exists here to avoid an import cycle.
type Resolver interface {
	Render(template string) (string, error)
}

// LocalValueOracle answers queries for block-local values that are not part
// of the document itself (e.g. local-directory's path, local-var's value).
type LocalValueOracle interface {
	GetBlockLocalValue(blockID uuid.UUID, key string) (string, bool)
}

// Block is the common capability of every block in a document.
type Block interface {
	BlockID() uuid.UUID
	BlockType() BlockType
}

// PassiveContextProvider is implemented by blocks that contribute a context
// item purely from their fields, without executing.
type PassiveContextProvider interface {
	PassiveContext(r Resolver, oracle LocalValueOracle) (ContextItem, bool, error)
}

// Base carries the fields common to every block.
type Base struct {
	ID   uuid.UUID `json:"id"`
	Type BlockType `json:"type"`
}

func (b Base) BlockID() uuid.UUID    { return b.ID }
func (b Base) BlockType() BlockType  { return b.Type }

// --- Context-setting blocks ---

type DirectoryBlock struct {
	Base
	Path string `json:"path"`
}

func (b DirectoryBlock) PassiveContext(r Resolver, _ LocalValueOracle) (ContextItem, bool, error) {
	resolved, err := r.Render(b.Path)
	if err != nil {
		return nil, false, fmt.Errorf("directory block %s: %w", b.ID, err)
	}
	return DocumentCwd{Path: resolved}, true, nil
}

type LocalDirectoryBlock struct {
	Base
}

func (b LocalDirectoryBlock) PassiveContext(r Resolver, oracle LocalValueOracle) (ContextItem, bool, error) {
	path, ok := oracle.GetBlockLocalValue(b.ID, "path")
	if !ok {
		return nil, false, nil
	}
	resolved, err := r.Render(path)
	if err != nil {
		return nil, false, fmt.Errorf("local-directory block %s: %w", b.ID, err)
	}
	return DocumentCwd{Path: resolved}, true, nil
}

type EnvironmentBlock struct {
	Base
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (b EnvironmentBlock) PassiveContext(r Resolver, _ LocalValueOracle) (ContextItem, bool, error) {
	name, err := r.Render(b.Name)
	if err != nil {
		return nil, false, fmt.Errorf("env block %s: %w", b.ID, err)
	}
	if err := ValidateEnvName(name); err != nil {
		return nil, false, fmt.Errorf("env block %s: %w", b.ID, err)
	}
	value, err := r.Render(b.Value)
	if err != nil {
		return nil, false, fmt.Errorf("env block %s: %w", b.ID, err)
	}
	return DocumentEnvVar{Name: name, Value: value}, true, nil
}

type SSHConnectBlock struct {
	Base
	UserHost string `json:"user_host"`
}

func (b SSHConnectBlock) PassiveContext(r Resolver, _ LocalValueOracle) (ContextItem, bool, error) {
	if strings.TrimSpace(b.UserHost) == "" {
		return nil, false, fmt.Errorf("ssh-connect block %s: user_host must not be empty", b.ID)
	}
	resolved, err := r.Render(b.UserHost)
	if err != nil {
		return nil, false, fmt.Errorf("ssh-connect block %s: %w", b.ID, err)
	}
	h := resolved
	return DocumentSshHost{Host: &h}, true, nil
}

type HostSelectBlock struct {
	Base
	Value string `json:"value"`
}

func (b HostSelectBlock) PassiveContext(r Resolver, _ LocalValueOracle) (ContextItem, bool, error) {
	resolved, err := r.Render(b.Value)
	if err != nil {
		return nil, false, fmt.Errorf("host-select block %s: %w", b.ID, err)
	}
	switch strings.ToLower(strings.TrimSpace(resolved)) {
	case "", "local", "localhost":
		return DocumentSshHost{Host: nil}, true, nil
	default:
		h := resolved
		return DocumentSshHost{Host: &h}, true, nil
	}
}

type VarBlock struct {
	Base
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (b VarBlock) PassiveContext(r Resolver, _ LocalValueOracle) (ContextItem, bool, error) {
	if err := ValidateVarName(b.Name); err != nil {
		return nil, false, fmt.Errorf("var block %s: %w", b.ID, err)
	}
	resolved, err := r.Render(b.Value)
	if err != nil {
		return nil, false, fmt.Errorf("var block %s: %w", b.ID, err)
	}
	return DocumentVar{Name: b.Name, Value: resolved, Source: VarSourceUnresolved}, true, nil
}

type LocalVarBlock struct {
	Base
	Name string `json:"name"`
}

func (b LocalVarBlock) PassiveContext(r Resolver, oracle LocalValueOracle) (ContextItem, bool, error) {
	if err := ValidateVarName(b.Name); err != nil {
		return nil, false, fmt.Errorf("local-var block %s: %w", b.ID, err)
	}
	value, ok := oracle.GetBlockLocalValue(b.ID, "value")
	if !ok {
		return nil, false, nil
	}
	resolved, err := r.Render(value)
	if err != nil {
		return nil, false, fmt.Errorf("local-var block %s: %w", b.ID, err)
	}
	return DocumentVar{Name: b.Name, Value: resolved, Source: VarSourceUnresolved}, true, nil
}

// DropdownOptionSource describes where a dropdown's options come from.
type DropdownOptionSource struct {
	// Kind is one of "fixed", "variable", "command".
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

type DropdownBlock struct {
	Base
	Name        string               `json:"name"`
	Selected    string               `json:"selected"`
	Source      DropdownOptionSource `json:"source"`
	Interpreter string               `json:"interpreter"`
}

func (b DropdownBlock) PassiveContext(r Resolver, _ LocalValueOracle) (ContextItem, bool, error) {
	if err := ValidateVarName(b.Name); err != nil {
		return nil, false, fmt.Errorf("dropdown block %s: %w", b.ID, err)
	}
	resolved, err := r.Render(b.Selected)
	if err != nil {
		return nil, false, fmt.Errorf("dropdown block %s: %w", b.ID, err)
	}
	return DocumentVar{Name: b.Name, Value: resolved, Source: VarSourceUnresolved}, true, nil
}

// --- Executable, non-context blocks ---

type ScriptBlock struct {
	Base
	Interpreter    string `json:"interpreter"`
	Code           string `json:"code"`
	OutputVariable string `json:"output_variable,omitempty"`
	FSVar          string `json:"fs_var,omitempty"`
}

type TerminalBlock struct {
	Base
	Code string `json:"code"`
}

type PauseBlock struct {
	Base
}

// --- Query blocks ---

type QueryBlock struct {
	Base
	ConnectionString string `json:"connection_string"`
	Query            string `json:"query"`
	// Method/URL/Headers/Body are only meaningful for BlockHTTP.
	Method  string            `json:"method,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
	// Namespace/Resource/Name/Action are only meaningful for BlockKubernetes.
	Namespace string `json:"namespace,omitempty"`
	Resource  string `json:"resource,omitempty"`
	Name      string `json:"name,omitempty"`
	Action    string `json:"action,omitempty"`
}

// --- Display-only blocks ---

type EditorBlock struct {
	Base
	Content string `json:"content"`
}

type VarDisplayBlock struct {
	Base
	Name string `json:"name"`
}

type MarkdownRenderBlock struct {
	Base
	Content string `json:"content"`
}

// ParseBlock decodes a single block from untyped JSON. Unknown types are an
// error — the block type set is closed.
func ParseBlock(raw json.RawMessage) (Block, error) {
	var head struct {
		ID   uuid.UUID `json:"id"`
		Type BlockType `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("parse block header: %w", err)
	}

	decode := func(v Block) (Block, error) {
		if err := json.Unmarshal(raw, v); err != nil {
			return nil, fmt.Errorf("parse %s block %s: %w", head.Type, head.ID, err)
		}
		return v, nil
	}

	switch head.Type {
	case BlockTerminal:
		return decode(&TerminalBlock{})
	case BlockScript:
		return decode(&ScriptBlock{})
	case BlockPostgres, BlockMySQL, BlockSQLite, BlockClickHouse, BlockHTTP, BlockPrometheus, BlockKubernetes:
		return decode(&QueryBlock{})
	case BlockDropdown:
		return decode(&DropdownBlock{})
	case BlockEditor:
		return decode(&EditorBlock{})
	case BlockVar:
		return decode(&VarBlock{})
	case BlockLocalVar:
		return decode(&LocalVarBlock{})
	case BlockEnv:
		return decode(&EnvironmentBlock{})
	case BlockDirectory:
		return decode(&DirectoryBlock{})
	case BlockLocalDirectory:
		return decode(&LocalDirectoryBlock{})
	case BlockHostSelect:
		return decode(&HostSelectBlock{})
	case BlockSSHConnect:
		return decode(&SSHConnectBlock{})
	case BlockVarDisplay:
		return decode(&VarDisplayBlock{})
	case BlockMarkdownRender:
		return decode(&MarkdownRenderBlock{})
	case BlockPause:
		return decode(&PauseBlock{})
	default:
		return nil, fmt.Errorf("unknown block type %q", head.Type)
	}
}

// IsDisplayOnly reports whether a block type never executes — used by the
// serial driver to skip it without emitting lifecycle events.
func IsDisplayOnly(t BlockType) bool {
	switch t {
	case BlockEditor, BlockVarDisplay, BlockMarkdownRender:
		return true
	default:
		return false
	}
}

// IsQueryBlock reports whether t is one of the query-block family sharing
// the contract in SPEC_FULL.md / spec.md §4.4.3.
func IsQueryBlock(t BlockType) bool {
	switch t {
	case BlockPostgres, BlockMySQL, BlockSQLite, BlockClickHouse, BlockHTTP, BlockPrometheus, BlockKubernetes:
		return true
	default:
		return false
	}
}
