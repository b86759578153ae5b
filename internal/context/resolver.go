// SPDX-License-Identifier: EPL-2.0

// Package context implements the pure, per-block context resolver: a value
// built by folding the passive and active contexts of all preceding blocks,
// used to render templates for the current block. See spec.md §4.3.
package context

import (
	"fmt"
	"os"
	"path/filepath"

	"runcell/internal/tmpl"
	"runcell/pkg/document"
)

// VarEntry is a resolved variable together with where it came from.
type VarEntry struct {
	Value  string
	Source document.VarSource
}

// Resolver is the pure, per-block view of accumulated document state.
// Construct it with New: the zero value has nil variable and env maps.
type Resolver struct {
	vars    map[string]VarEntry
	cwd     string
	env     map[string]string
	sshHost *string

	engine *tmpl.Engine
	extra  tmpl.Namespaces
}

// New returns a resolver seeded with the process default cwd (home dir, else
// process cwd, else "/") and no variables, env, or ssh host.
func New(engine *tmpl.Engine) *Resolver {
	r := &Resolver{
		vars:   make(map[string]VarEntry),
		env:    make(map[string]string),
		engine: engine,
		extra:  tmpl.Namespaces{},
	}
	r.cwd = defaultCwd()
	return r
}

func defaultCwd() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return home
	}
	if wd, err := os.Getwd(); err == nil && wd != "" {
		return wd
	}
	return "/"
}

// Clone returns a deep-enough copy of the resolver so that mutating the copy
// never affects the original — the fold in Push must not mutate shared maps.
func (r *Resolver) Clone() *Resolver {
	clone := &Resolver{
		vars:   make(map[string]VarEntry, len(r.vars)),
		cwd:    r.cwd,
		env:    make(map[string]string, len(r.env)),
		engine: r.engine,
		extra:  r.extra,
	}
	for k, v := range r.vars {
		clone.vars[k] = v
	}
	for k, v := range r.env {
		clone.env[k] = v
	}
	if r.sshHost != nil {
		h := *r.sshHost
		clone.sshHost = &h
	}
	return clone
}

// SetNamespace registers an extensible template namespace (e.g. "doc",
// "workspace") visible to Render calls made against this resolver.
func (r *Resolver) SetNamespace(name string, value any) {
	extra := make(tmpl.Namespaces, len(r.extra)+1)
	for k, v := range r.extra {
		extra[k] = v
	}
	extra[name] = value
	r.extra = extra
}

// Render renders a template string against the resolver's current state.
// Strings without template markers are returned verbatim (Property 3).
func (r *Resolver) Render(s string) (string, error) {
	vars := make(map[string]string, len(r.vars))
	for k, v := range r.vars {
		vars[k] = v.Value
	}
	return r.engine.Render(s, vars, r.env, r.extra)
}

// Vars returns the resolver's current variable set.
func (r *Resolver) Vars() map[string]VarEntry { return r.vars }

// Cwd returns the resolver's current working directory.
func (r *Resolver) Cwd() string { return r.cwd }

// Env returns the resolver's current environment overlay (not the full
// inherited process environment — see handlers for how this overlay is
// merged with os.Environ()).
func (r *Resolver) Env() map[string]string { return r.env }

// SSHHost returns the resolver's current SSH target, or nil for local.
func (r *Resolver) SSHHost() *string { return r.sshHost }

// Push folds a block's passive then active context items into the
// resolver, returning the resulting resolver. The receiver is left
// unmodified; callers build a chain by repeatedly reassigning the result.
func (r *Resolver) Push(passive, active []document.ContextItem) (*Resolver, error) {
	next := r.Clone()
	for _, item := range passive {
		if err := next.apply(item); err != nil {
			return nil, err
		}
	}
	for _, item := range active {
		if err := next.apply(item); err != nil {
			return nil, err
		}
	}
	return next, nil
}

func (r *Resolver) apply(item document.ContextItem) error {
	switch v := item.(type) {
	case document.DocumentVar:
		resolved, err := r.Render(v.Value)
		if err != nil {
			return fmt.Errorf("resolve var %q: %w", v.Name, err)
		}
		r.vars[v.Name] = VarEntry{Value: resolved, Source: v.Source}

	case document.DocumentVars:
		for name, value := range v.Vars {
			r.vars[name] = VarEntry{Value: value, Source: document.VarSourceFSVar}
		}

	case document.DocumentCwd:
		resolved, err := r.Render(v.Path)
		if err != nil {
			return fmt.Errorf("resolve cwd: %w", err)
		}
		switch {
		case resolved == "":
			r.cwd = defaultCwd()
		case filepath.IsAbs(resolved):
			r.cwd = resolved
		default:
			r.cwd = filepath.Join(r.cwd, resolved)
		}

	case document.DocumentEnvVar:
		resolvedName, err := r.Render(v.Name)
		if err != nil {
			return fmt.Errorf("resolve env name: %w", err)
		}
		if err := document.ValidateEnvName(resolvedName); err != nil {
			return err
		}
		resolvedValue, err := r.Render(v.Value)
		if err != nil {
			return fmt.Errorf("resolve env value: %w", err)
		}
		r.env[resolvedName] = resolvedValue

	case document.DocumentSshHost:
		if v.Host == nil {
			return nil // explicit None keeps the current host
		}
		resolved, err := r.Render(*v.Host)
		if err != nil {
			return fmt.Errorf("resolve ssh host: %w", err)
		}
		switch resolved {
		case "", "localhost":
			r.sshHost = nil
		default:
			h := resolved
			r.sshHost = &h
		}

	case document.BlockExecutionOutput:
		// Exposed to templates via the doc namespace's per-block Output
		// field, not folded into vars/env/cwd/host.

	default:
		return fmt.Errorf("unknown context item %T", item)
	}
	return nil
}
