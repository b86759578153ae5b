// SPDX-License-Identifier: EPL-2.0

package engine

import (
	gocontext "context"
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	rcontext "runcell/internal/context"
	"runcell/internal/eventbus"
	"runcell/internal/ptystore"
	"runcell/internal/sshpool"
	"runcell/internal/tmpl"
	"runcell/pkg/document"
)

// Registry maps a block type to the handler that executes it. Only block
// types with an Execute capability (spec.md §3) need an entry; display-only
// and pure-context blocks are never looked up here.
type Registry map[document.BlockType]Handler

// Engine is the runtime's execution engine: it resolves a block's context,
// builds its ExecutionContext, and dispatches to the registered handler.
type Engine struct {
	registry Registry
	tmplEng  *tmpl.Engine
	bus      *eventbus.Bus
	ptys     *ptystore.Store
	ssh      *sshpool.Pool
	locals   document.LocalValueOracle
	active   *ActiveStore

	mu      sync.RWMutex
	handles map[uuid.UUID]*Handle

	logger *log.Logger
}

// New constructs an Engine wired to its resource actors and handler
// registry.
func New(registry Registry, bus *eventbus.Bus, ptys *ptystore.Store, ssh *sshpool.Pool, locals document.LocalValueOracle) *Engine {
	return &Engine{
		registry: registry,
		tmplEng:  tmpl.NewEngine(),
		bus:      bus,
		ptys:     ptys,
		ssh:      ssh,
		locals:   locals,
		active:   NewActiveStore(),
		handles:  make(map[uuid.UUID]*Handle),
		logger:   log.NewWithOptions(os.Stderr, log.Options{Prefix: "engine"}),
	}
}

// ResolveUpTo folds the passive (and, where available, active) context of
// every block preceding target into a single resolver, per spec.md §2's
// "Data flow": "builds a context resolver from the passive contexts of all
// preceding blocks".
func (e *Engine) ResolveUpTo(doc *document.Document, target uuid.UUID) (*rcontext.Resolver, error) {
	r := rcontext.New(e.tmplEng)
	for _, b := range doc.Preceding(target) {
		bc := document.NewBlockContext()
		if provider, ok := b.(document.PassiveContextProvider); ok {
			item, present, err := provider.PassiveContext(r, e.locals)
			if err != nil {
				return nil, fmt.Errorf("resolve block %s: %w", b.BlockID(), err)
			}
			if present {
				bc.SetPassive(item)
			}
		}
		for _, item := range e.active.Get(b.BlockID()) {
			bc.SetActive(item)
		}
		next, err := r.Push(bc.Passive(), bc.Active())
		if err != nil {
			return nil, fmt.Errorf("apply block %s context: %w", b.BlockID(), err)
		}
		r = next
	}
	return r, nil
}

// ExecuteOptions configures a single ExecuteBlock call.
type ExecuteOptions struct {
	OutputCapacity int
	SSHCredentials sshpool.Credentials
}

// ExecuteBlock resolves block's context, builds its ExecutionContext, and
// runs its handler in a new goroutine. It returns immediately with the
// execution id and output channel; the caller reads lifecycle/output frames
// from the channel and may later call CancelExecution or RespondToPrompt using the
// returned execution id.
func (e *Engine) ExecuteBlock(ctx gocontext.Context, doc *document.Document, blockID uuid.UUID) (uuid.UUID, *eventbus.OutputChannel, error) {
	return e.executeBlock(ctx, doc, blockID, ExecuteOptions{})
}

func (e *Engine) executeBlock(ctx gocontext.Context, doc *document.Document, blockID uuid.UUID, opts ExecuteOptions) (uuid.UUID, *eventbus.OutputChannel, error) {
	block, ok := doc.BlockByID(blockID)
	if !ok {
		return uuid.Nil, nil, fmt.Errorf("engine: unknown block %s", blockID)
	}

	if document.IsDisplayOnly(block.BlockType()) {
		return uuid.Nil, nil, fmt.Errorf("engine: block %s is display-only and cannot be executed", blockID)
	}

	handler, ok := e.registry[block.BlockType()]
	if !ok {
		return uuid.Nil, nil, fmt.Errorf("engine: no handler registered for block type %q", block.BlockType())
	}

	resolver, err := e.ResolveUpTo(doc, blockID)
	if err != nil {
		// Configuration error: no Started lifecycle is emitted, per spec.md §7.
		return uuid.Nil, nil, err
	}

	executionID := uuid.New()
	handle := NewHandle(executionID, blockID)

	e.mu.Lock()
	e.handles[executionID] = handle
	e.mu.Unlock()

	execCtx, cancel := gocontext.WithCancel(ctx)
	go func() {
		select {
		case <-handle.Cancel.Done():
			cancel()
		case <-handle.Done():
		}
	}()

	output := eventbus.NewOutputChannel(opts.OutputCapacity)

	ec := &ExecutionContext{
		Context:        execCtx,
		Handle:         handle,
		Resolver:       resolver,
		Output:         output,
		Bus:            e.bus,
		PtyStore:       e.ptys,
		SSHPool:        e.ssh,
		Document:       doc,
		Block:          block,
		LocalValues:    e.locals,
		SSHCredentials: opts.SSHCredentials,
		active:         e.active,
	}

	go func() {
		defer cancel()
		defer output.Close()
		handler.Execute(ec)
		if handle.Status() == StatusRunning {
			// Defensive: a handler must always drive the lifecycle to a
			// terminal event (spec.md §7), but guard against one that
			// returns without doing so rather than leaking the handle.
			e.logger.Error("handler returned without a terminal lifecycle event", "block", blockID, "execution", executionID)
			handle.Finish(Outcome{Status: StatusFailed, Message: "handler did not emit a terminal event"})
		}
	}()

	return executionID, output, nil
}

// CancelExecution fires the cancellation token for executionID. Idempotent;
// unknown execution ids are a no-op (spec.md §6).
func (e *Engine) CancelExecution(executionID uuid.UUID) {
	e.mu.RLock()
	handle, ok := e.handles[executionID]
	e.mu.RUnlock()
	if ok {
		handle.Cancel.Cancel()
	}
}

// RespondToPrompt routes a client's answer back to the handler awaiting it.
func (e *Engine) RespondToPrompt(executionID, promptID uuid.UUID, result string) error {
	e.mu.RLock()
	handle, ok := e.handles[executionID]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("engine: unknown execution %s", executionID)
	}
	handle.RespondPrompt(promptID, result)
	return nil
}

// Handle returns the handle for a known execution id, used by the serial
// driver to await an outcome.
func (e *Engine) Handle(executionID uuid.UUID) (*Handle, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.handles[executionID]
	return h, ok
}
