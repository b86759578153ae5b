// SPDX-License-Identifier: EPL-2.0

package main

import (
	"fmt"

	"runcell/internal/config"
	"runcell/internal/engine"
	"runcell/internal/eventbus"
	"runcell/internal/execlog"
	"runcell/internal/handlers"
	"runcell/internal/handlers/query"
	"runcell/internal/ptystore"
	"runcell/internal/sshpool"
	"runcell/pkg/document"
)

// buildRegistry wires one handler per executable block type, the
// composition root's equivalent of the teacher's NewApp dependency
// injection (cmd/invowk/app.go): every concrete handler lives in package
// handlers or handlers/query, and this is the single place they're bound to
// the block types that use them.
func buildRegistry() engine.Registry {
	contextSetter := handlers.ContextSetter{}

	return engine.Registry{
		document.BlockTerminal: handlers.Terminal{},
		document.BlockScript:   handlers.Script{},
		document.BlockDropdown: handlers.Dropdown{},
		document.BlockPause:    handlers.Pause{},

		document.BlockDirectory:      contextSetter,
		document.BlockLocalDirectory: contextSetter,
		document.BlockEnv:            contextSetter,
		document.BlockSSHConnect:     contextSetter,
		document.BlockHostSelect:     contextSetter,
		document.BlockVar:            contextSetter,
		document.BlockLocalVar:       contextSetter,

		document.BlockPostgres:   query.Handler{Driver: query.NewPostgres()},
		document.BlockMySQL:      query.Handler{Driver: query.NewMySQL()},
		document.BlockSQLite:     query.Handler{Driver: query.NewSQLite()},
		document.BlockClickHouse: query.Handler{Driver: query.NewClickHouse()},
		document.BlockHTTP:       query.Handler{Driver: query.HTTPDriver{}},
		document.BlockPrometheus: query.Handler{Driver: query.PrometheusDriver{}},
		document.BlockKubernetes: query.Handler{Driver: query.KubernetesDriver{}},
	}
}

// Runtime bundles the long-lived actors a CLI invocation needs: the engine
// plus its resource stores and the execution log. Close releases every
// actor's goroutine.
type Runtime struct {
	Engine  *engine.Engine
	Bus     *eventbus.Bus
	PTYs    *ptystore.Store
	SSH     *sshpool.Pool
	ExecLog *execlog.Log
	Locals  *document.MemoryLocalValues
}

// newRuntime constructs a Runtime from the loaded configuration.
func newRuntime(cfg *config.Config) (*Runtime, error) {
	logPath, err := config.ExecLogPath(cfg)
	if err != nil {
		return nil, fmt.Errorf("runtime: resolve exec log path: %w", err)
	}

	execLog, err := execlog.Open(logPath)
	if err != nil {
		return nil, fmt.Errorf("runtime: open exec log: %w", err)
	}

	bus := eventbus.NewBus()
	ptys := ptystore.New()
	ssh := sshpool.New()
	locals := document.NewMemoryLocalValues()

	eng := engine.New(buildRegistry(), bus, ptys, ssh, locals)

	return &Runtime{
		Engine:  eng,
		Bus:     bus,
		PTYs:    ptys,
		SSH:     ssh,
		ExecLog: execLog,
		Locals:  locals,
	}, nil
}

// Close releases the runtime's actors. Safe to call once. sshpool.Pool holds
// no background goroutine of its own (sessions are closed per-disconnect),
// so only the exec log and PTY store actors need shutting down.
func (r *Runtime) Close() {
	r.ExecLog.Close()
	r.PTYs.Close()
}
