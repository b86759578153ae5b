// SPDX-License-Identifier: EPL-2.0

// Package tmpl renders the runbook templating language: Jinja2-style
// {{ var.name }} / {% if %} syntax over a `var`/`env`/`doc`/`workspace`
// namespace, backed by pongo2. A fast path short-circuits strings with no
// template markers at all, per spec.md §4.3 Property 3.
package tmpl

import (
	"fmt"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
)

func init() {
	if err := pongo2.RegisterFilter("shellquote", filterShellQuote); err != nil {
		// RegisterFilter only errors on duplicate names; a name collision here
		// is a programmer error in this package, not a runtime condition.
		panic(fmt.Sprintf("tmpl: register shellquote filter: %v", err))
	}
}

// filterShellQuote wraps its input in POSIX-safe single quotes, escaping any
// embedded single quote as '\''.
func filterShellQuote(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	s := in.String()
	escaped := strings.ReplaceAll(s, "'", `'\''`)
	return pongo2.AsValue("'" + escaped + "'"), nil
}

// BlockView is the read-only view of a block exposed to templates through
// the `doc` namespace (first, last, content[], named[name], previous).
type BlockView struct {
	BlockType string
	Content   string
	Props     map[string]any
	Output    string
}

// DocNamespace is the `doc` template namespace: a read-only snapshot of the
// document derived at render time.
type DocNamespace struct {
	First    *BlockView
	Last     *BlockView
	Content  []*BlockView
	Named    map[string]*BlockView
	Previous *BlockView
}

// Namespaces holds the extensible set of template namespaces beyond
// var/env, registered by the engine (doc, workspace, and any future
// additions) per spec.md §4.3.
type Namespaces map[string]any

// Engine compiles and caches templates and renders them against a supplied
// binding set. It is safe for concurrent use.
type Engine struct {
	mu    sync.Mutex
	cache map[string]*pongo2.Template
	set   *pongo2.TemplateSet
}

// NewEngine returns a template engine with trim-blocks enabled, matching
// spec.md §4.3.
func NewEngine() *Engine {
	set := pongo2.NewSet("runcell", pongo2.MustNewLocalFileSystemLoader(""))
	set.Options.TrimBlocks = true
	return &Engine{cache: make(map[string]*pongo2.Template), set: set}
}

// HasMarkers reports whether s contains either template delimiter. When
// false, Render must return s unchanged (the fast path).
func HasMarkers(s string) bool {
	return strings.Contains(s, "{{") || strings.Contains(s, "{%")
}

// Render renders s against vars/env plus any extra namespaces. If s has no
// template markers, it is returned verbatim without invoking the template
// engine (Property 3).
func (e *Engine) Render(s string, vars map[string]string, env map[string]string, extra Namespaces) (string, error) {
	if !HasMarkers(s) {
		return s, nil
	}

	tpl, err := e.compile(s)
	if err != nil {
		return "", fmt.Errorf("tmpl: parse: %w", err)
	}

	ctx := pongo2.Context{
		"var": stringMapToAny(vars),
		"env": stringMapToAny(env),
	}
	for name, ns := range extra {
		ctx[name] = ns
	}

	out, err := tpl.Execute(ctx)
	if err != nil {
		return "", fmt.Errorf("tmpl: render: %w", err)
	}
	return out, nil
}

func (e *Engine) compile(s string) (*pongo2.Template, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if tpl, ok := e.cache[s]; ok {
		return tpl, nil
	}
	tpl, err := e.set.FromString(s)
	if err != nil {
		return nil, err
	}
	e.cache[s] = tpl
	return tpl, nil
}

func stringMapToAny(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
