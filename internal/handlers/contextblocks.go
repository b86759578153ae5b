// SPDX-License-Identifier: EPL-2.0

// Package handlers implements one Execute per executable block type
// (spec.md §4.4), dispatched by the engine's Registry.
package handlers

import (
	"runcell/internal/engine"
	"runcell/internal/eventbus"
)

// ContextSetter handles every block type whose entire behavior is its
// passive_context contribution (directory, local-directory, environment,
// ssh-connect, host-select, var, local-var). Its own context has already
// been folded into ec.Resolver by the engine before Execute runs, so
// Execute only has to report success.
type ContextSetter struct{}

func (ContextSetter) Execute(ec *engine.ExecutionContext) {
	ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleStarted})
	ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleFinished, Success: true, ExitCode: 0})
	ec.Handle.Finish(engine.Outcome{Status: engine.StatusSuccess})
}

// DisplayOnly handles editor/var_display/markdown_render blocks, which the
// engine never dispatches to (document.IsDisplayOnly short-circuits them),
// but is kept here as the explicit, named no-op should a caller route one
// through anyway.
type DisplayOnly struct{}

func (DisplayOnly) Execute(ec *engine.ExecutionContext) {
	ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleStarted})
	ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleFinished, Success: true, ExitCode: 0})
	ec.Handle.Finish(engine.Outcome{Status: engine.StatusSuccess})
}

// Pause emits a paused lifecycle event and signals the serial driver to
// stop, per spec.md §4.4's Pause block.
type Pause struct{}

func (Pause) Execute(ec *engine.ExecutionContext) {
	ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleStarted})
	ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecyclePaused})
	ec.Handle.Finish(engine.Outcome{Status: engine.StatusSuccess})
}
