// SPDX-License-Identifier: EPL-2.0

package engine

import (
	gocontext "context"
	"time"

	"github.com/google/uuid"

	rcontext "runcell/internal/context"
	"runcell/internal/eventbus"
	"runcell/internal/metrics"
	"runcell/internal/ptystore"
	"runcell/internal/sshpool"
	"runcell/pkg/document"
)

// ExecutionContext bundles everything a block handler needs to run: the
// engine handle, resource actor handles, the resolver snapshot, and the
// output channel. It is constructed fresh for every execution, per
// spec.md §2 "Data flow".
type ExecutionContext struct {
	Context gocontext.Context // cancelled in lockstep with Handle.Cancel

	Handle   *Handle
	Resolver *rcontext.Resolver
	Output   *eventbus.OutputChannel
	Bus      *eventbus.Bus

	PtyStore *ptystore.Store
	SSHPool  *sshpool.Pool

	Document *document.Document
	Block    document.Block

	LocalValues document.LocalValueOracle

	SSHCredentials sshpool.Credentials

	active    *ActiveStore
	startedAt time.Time
}

// SetActiveContext records the context items this block contributed by
// executing, so that later blocks' resolvers fold them in (spec.md §4.3's
// active context, e.g. a script block's output_variable/fs_var captures).
func (ec *ExecutionContext) SetActiveContext(items ...document.ContextItem) {
	ec.active.Set(ec.Block.BlockID(), items)
}

// EmitLifecycle sends a lifecycle frame on the output channel and, for the
// events the bus cares about, publishes the matching GrandCentralEvent.
// This is the single place that keeps the "Started observed before any
// output frame, terminal event is last" ordering guarantee (spec.md §5):
// callers must call this exactly once for Started and exactly once for a
// terminal kind.
func (ec *ExecutionContext) EmitLifecycle(l eventbus.Lifecycle) {
	ec.Output.TrySend(eventbus.BlockOutput{
		ExecutionID: ec.Handle.ID,
		BlockID:     ec.Block.BlockID(),
		Lifecycle:   &l,
	})

	blockType := string(ec.Block.BlockType())

	switch l.Kind {
	case eventbus.LifecycleStarted:
		ec.startedAt = time.Now()
		metrics.BlocksStarted.WithLabelValues(blockType).Inc()
		ec.Bus.Publish(eventbus.GrandCentralEvent{
			Kind: eventbus.EventBlockStarted, BlockID: ec.Block.BlockID(), ExecutionID: ec.Handle.ID,
		})
	case eventbus.LifecycleFinished:
		ec.observeDuration(blockType)
		if l.Success {
			metrics.BlocksFinished.WithLabelValues(blockType).Inc()
		} else {
			metrics.BlocksFailed.WithLabelValues(blockType).Inc()
		}
		ec.Bus.Publish(eventbus.GrandCentralEvent{
			Kind: eventbus.EventBlockFinished, BlockID: ec.Block.BlockID(), ExecutionID: ec.Handle.ID, Success: l.Success,
		})
	case eventbus.LifecycleError:
		ec.observeDuration(blockType)
		metrics.BlocksFailed.WithLabelValues(blockType).Inc()
		ec.Bus.Publish(eventbus.GrandCentralEvent{
			Kind: eventbus.EventBlockFailed, BlockID: ec.Block.BlockID(), ExecutionID: ec.Handle.ID, Error: l.Message,
		})
	case eventbus.LifecycleCancelled:
		ec.observeDuration(blockType)
		metrics.BlocksCancelled.WithLabelValues(blockType).Inc()
		ec.Bus.Publish(eventbus.GrandCentralEvent{
			Kind: eventbus.EventBlockCancelled, BlockID: ec.Block.BlockID(), ExecutionID: ec.Handle.ID,
		})
	case eventbus.LifecyclePaused:
		ec.Bus.Publish(eventbus.GrandCentralEvent{
			Kind: eventbus.EventSerialExecutionPaused, BlockID: ec.Block.BlockID(), ExecutionID: ec.Handle.ID,
		})
	}
}

func (ec *ExecutionContext) observeDuration(blockType string) {
	if ec.startedAt.IsZero() {
		return
	}
	metrics.ExecutionDuration.WithLabelValues(blockType).Observe(time.Since(ec.startedAt).Seconds())
}

// Stdout emits a stdout output frame.
func (ec *ExecutionContext) Stdout(s string) {
	ec.Output.TrySend(eventbus.BlockOutput{ExecutionID: ec.Handle.ID, BlockID: ec.Block.BlockID(), Stdout: s})
}

// Stderr emits a stderr output frame.
func (ec *ExecutionContext) Stderr(s string) {
	ec.Output.TrySend(eventbus.BlockOutput{ExecutionID: ec.Handle.ID, BlockID: ec.Block.BlockID(), Stderr: s})
}

// Binary emits a raw binary output frame (terminal blocks).
func (ec *ExecutionContext) Binary(b []byte) {
	ec.Output.TrySend(eventbus.BlockOutput{ExecutionID: ec.Handle.ID, BlockID: ec.Block.BlockID(), Binary: b})
}

// Object emits a structured object frame (query-block results).
func (ec *ExecutionContext) Object(o any) {
	ec.Output.TrySend(eventbus.BlockOutput{ExecutionID: ec.Handle.ID, BlockID: ec.Block.BlockID(), Object: o})
}

// Prompt synchronously asks the client for a value and blocks until it
// answers or the execution is cancelled.
func (ec *ExecutionContext) Prompt(prompt string) (string, bool) {
	promptID := uuid.New()
	respCh := ec.Handle.RegisterPrompt(promptID)

	ec.Output.Send(eventbus.BlockOutput{
		ExecutionID: ec.Handle.ID,
		BlockID:     ec.Block.BlockID(),
		Prompt:      &eventbus.ClientPrompt{ExecutionID: ec.Handle.ID, PromptID: promptID, Prompt: prompt},
	})

	select {
	case result := <-respCh:
		return result, true
	case <-ec.Handle.Cancel.Done():
		return "", false
	}
}

// Handler is implemented once per block type by package handlers.
type Handler interface {
	Execute(ec *ExecutionContext)
}
