// SPDX-License-Identifier: EPL-2.0

package document

// ContextItem is the closed set of things a block can contribute to the
// resolver, either passively (from its fields alone) or actively (as a
// result of executing). Implementers should not treat this as open
// inheritance — see design note "Context as typed map": a block
// contributes at most one of each kind per context.
type ContextItem interface {
	contextItem()
}

// VarSource records where a resolved variable's value came from, mostly
// useful for diagnostics and the var_display block.
type VarSource string

const (
	// VarSourceUnresolved marks a variable whose Source is the template
	// string before rendering (var/local-var/dropdown blocks).
	VarSourceUnresolved VarSource = "unresolved"
	// VarSourceScriptOutput marks a variable captured from a script's
	// output_variable.
	VarSourceScriptOutput VarSource = "script_output"
	// VarSourceFSVar marks a variable captured from an fs_var sink file.
	VarSourceFSVar VarSource = "fs_var"
)

// DocumentVar is a single resolved template variable.
type DocumentVar struct {
	Name   string
	Value  string
	Source VarSource
}

func (DocumentVar) contextItem() {}

// DocumentVars carries multiple variables produced at once (script output-var
// sink, fs-var sink).
type DocumentVars struct {
	Vars map[string]string
}

func (DocumentVars) contextItem() {}

// DocumentCwd overrides the working directory for blocks after it.
type DocumentCwd struct {
	Path string
}

func (DocumentCwd) contextItem() {}

// DocumentEnvVar sets a single environment variable.
type DocumentEnvVar struct {
	Name  string
	Value string
}

func (DocumentEnvVar) contextItem() {}

// DocumentSshHost sets (or clears) the SSH execution target. A nil Host
// means "local".
type DocumentSshHost struct {
	Host *string
}

func (DocumentSshHost) contextItem() {}

// BlockExecutionOutput is the completed output of an executed block,
// contributed to that block's own active context.
type BlockExecutionOutput struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

func (BlockExecutionOutput) contextItem() {}

// contextKind identifies a ContextItem's semantic category, used as the map
// key in BlockContext so a block contributes at most one of each kind.
type contextKind int

const (
	kindVar contextKind = iota
	kindVars
	kindCwd
	kindEnvVar
	kindSSHHost
	kindExecOutput
)

func kindOf(item ContextItem) contextKind {
	switch item.(type) {
	case DocumentVar:
		return kindVar
	case DocumentVars:
		return kindVars
	case DocumentCwd:
		return kindCwd
	case DocumentEnvVar:
		return kindEnvVar
	case DocumentSshHost:
		return kindSSHHost
	case BlockExecutionOutput:
		return kindExecOutput
	default:
		panic("document: unknown context item kind")
	}
}

// BlockContext holds a block's passive and active context items, each keyed
// by kind so at most one instance of each type is retained. Construct it with
// NewBlockContext: a zero value has nil maps, and SetPassive/SetActive panic
// on it.
type BlockContext struct {
	passive map[contextKind]ContextItem
	active  map[contextKind]ContextItem
}

// NewBlockContext returns an empty BlockContext.
func NewBlockContext() *BlockContext {
	return &BlockContext{passive: map[contextKind]ContextItem{}, active: map[contextKind]ContextItem{}}
}

// SetPassive records a passive context item, replacing any prior item of the
// same kind.
func (c *BlockContext) SetPassive(item ContextItem) {
	c.passive[kindOf(item)] = item
}

// SetActive records an active context item, replacing any prior item of the
// same kind.
func (c *BlockContext) SetActive(item ContextItem) {
	c.active[kindOf(item)] = item
}

// Passive returns the block's passive context items in a stable order:
// var, vars, cwd, env, ssh_host, exec_output.
func (c *BlockContext) Passive() []ContextItem { return ordered(c.passive) }

// Active returns the block's active context items in the same stable order.
func (c *BlockContext) Active() []ContextItem { return ordered(c.active) }

func ordered(m map[contextKind]ContextItem) []ContextItem {
	var out []ContextItem
	for _, k := range []contextKind{kindVar, kindVars, kindCwd, kindEnvVar, kindSSHHost, kindExecOutput} {
		if item, ok := m[k]; ok {
			out = append(out, item)
		}
	}
	return out
}
