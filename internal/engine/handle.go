// SPDX-License-Identifier: EPL-2.0

// Package engine implements the execution engine from spec.md §4.5/§6: a
// per-execution ExecutionContext and ExecutionHandle, cancellation tokens,
// lifecycle event emission, and client prompt plumbing.
package engine

import (
	"sync"

	"github.com/google/uuid"
)

// Status is an execution's lifecycle status.
type Status int

const (
	StatusRunning Status = iota
	StatusSuccess
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// CancellationToken is a single-shot, idempotent cancellation signal. Go's
// broadcast-on-close channel already gives every selecting handler a
// multi-consumer receiver, which satisfies the invariants spec.md §9 asks
// an implementer to preserve when substituting for a one-shot oneshot pair:
// cancel is idempotent from the sender side, and firing it mid-connect
// aborts the connect.
type CancellationToken struct {
	mu     sync.Mutex
	ch     chan struct{}
	closed bool
}

// NewCancellationToken returns an armed token.
func NewCancellationToken() *CancellationToken {
	return &CancellationToken{ch: make(chan struct{})}
}

// Cancel fires the token. Calling it more than once is a no-op.
func (t *CancellationToken) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		close(t.ch)
		t.closed = true
	}
}

// Done returns the channel handlers select on alongside their I/O.
func (t *CancellationToken) Done() <-chan struct{} { return t.ch }

// Cancelled reports whether Cancel has fired.
func (t *CancellationToken) Cancelled() bool {
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}

// Outcome is an execution's final state, delivered on the handle's watch
// channel.
type Outcome struct {
	Status   Status
	Message  string
	ExitCode int
}

// Handle is the runtime's per-execution view: status, cancellation token,
// prompt callbacks, and a completion watch. It lives from Execute() until
// the terminal lifecycle event is sent; after that it is the only
// survivor (final status and outcome).
type Handle struct {
	ID      uuid.UUID
	BlockID uuid.UUID
	Cancel  *CancellationToken

	mu      sync.Mutex
	status  Status
	done    chan struct{}
	outcome Outcome

	promptMu sync.Mutex
	prompts  map[uuid.UUID]chan string
}

// NewHandle creates a fresh, running handle for executionID/blockID.
func NewHandle(executionID, blockID uuid.UUID) *Handle {
	return &Handle{
		ID:      executionID,
		BlockID: blockID,
		Cancel:  NewCancellationToken(),
		status:  StatusRunning,
		done:    make(chan struct{}),
		prompts: make(map[uuid.UUID]chan string),
	}
}

// Status returns the handle's current status.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Finish records the terminal outcome and unblocks every Wait() caller.
// Handlers call it when they reach a terminal outcome and the engine calls
// it again defensively; only the first call takes effect, later calls are
// ignored.
func (h *Handle) Finish(outcome Outcome) {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		return // already finished; tolerate a defensive double-call
	default:
	}
	h.status = outcome.Status
	h.outcome = outcome
	close(h.done)
}

// Wait blocks until the execution reaches a terminal state and returns its
// outcome. Safe to call from multiple goroutines.
func (h *Handle) Wait() Outcome {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome
}

// Done returns the channel that closes when the execution reaches a
// terminal state.
func (h *Handle) Done() <-chan struct{} { return h.done }

// RegisterPrompt parks a one-shot response sink for promptID and returns the
// receive side for the handler to await.
func (h *Handle) RegisterPrompt(promptID uuid.UUID) <-chan string {
	ch := make(chan string, 1)
	h.promptMu.Lock()
	h.prompts[promptID] = ch
	h.promptMu.Unlock()
	return ch
}

// RespondPrompt completes the one-shot sink for promptID, if still pending.
// A response to an unknown or already-answered prompt id is a no-op
// (resource-not-found is best-effort, spec.md §7).
func (h *Handle) RespondPrompt(promptID uuid.UUID, result string) {
	h.promptMu.Lock()
	ch, ok := h.prompts[promptID]
	if ok {
		delete(h.prompts, promptID)
	}
	h.promptMu.Unlock()
	if ok {
		ch <- result
	}
}
