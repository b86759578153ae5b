// SPDX-License-Identifier: EPL-2.0

// Package eventbus implements the two event fabrics from spec.md §4.6: a
// reliable, ordered per-execution output channel (BlockOutput frames plus
// ClientPrompt messages) and a process-wide Grand Central broadcast bus for
// observers (execution log, diagnostics) with no replay for slow
// subscribers.
package eventbus

import (
	"sync"

	"github.com/google/uuid"
)

// LifecycleKind is the closed set of terminal/non-terminal lifecycle events.
type LifecycleKind string

const (
	LifecycleStarted   LifecycleKind = "started"
	LifecycleFinished  LifecycleKind = "finished"
	LifecycleError     LifecycleKind = "error"
	LifecycleCancelled LifecycleKind = "cancelled"
	LifecyclePaused    LifecycleKind = "paused"
)

// Lifecycle is the payload of a lifecycle event.
type Lifecycle struct {
	Kind     LifecycleKind
	ExitCode int    // Finished only
	Success  bool   // Finished only
	Message  string // Error only
	PromptID uuid.UUID
}

// BlockOutput is one frame on an execution's output channel. Exactly one of
// Stdout/Stderr/Binary/Object/Lifecycle/Prompt is set.
type BlockOutput struct {
	ExecutionID uuid.UUID
	BlockID     uuid.UUID
	Stdout      string
	Stderr      string
	Binary      []byte
	Object      any
	Lifecycle   *Lifecycle
	Prompt      *ClientPrompt
}

// ClientPrompt asks the client to synchronously supply a value mid-execution.
type ClientPrompt struct {
	ExecutionID uuid.UUID
	PromptID    uuid.UUID
	Prompt      string
}

// OutputChannel is the per-execution/per-subscription reliable, ordered,
// bounded stream of frames described in spec.md §4.6.
type OutputChannel struct {
	frames chan BlockOutput
}

// NewOutputChannel creates a bounded output channel (default capacity
// matches the teacher's bounded-actor-queue convention, spec.md §5).
func NewOutputChannel(capacity int) *OutputChannel {
	if capacity <= 0 {
		capacity = 64
	}
	return &OutputChannel{frames: make(chan BlockOutput, capacity)}
}

// Send delivers a frame, blocking (back-pressuring the producer) if the
// channel is full.
func (o *OutputChannel) Send(f BlockOutput) {
	o.frames <- f
}

// TrySend delivers a frame without blocking; returns false if the channel is
// full. Like Send, it panics if called after Close. Used by handlers for which output is best-effort once the
// channel has been dropped by the client (spec.md §5 back-pressure).
func (o *OutputChannel) TrySend(f BlockOutput) bool {
	select {
	case o.frames <- f:
		return true
	default:
		return false
	}
}

// Frames returns the receive side for consumers.
func (o *OutputChannel) Frames() <-chan BlockOutput { return o.frames }

// Close closes the channel. Safe to call once.
func (o *OutputChannel) Close() { close(o.frames) }

// GrandCentralEventKind is the closed set of bus-wide observer events.
type GrandCentralEventKind string

const (
	EventBlockStarted           GrandCentralEventKind = "block_started"
	EventBlockFinished          GrandCentralEventKind = "block_finished"
	EventBlockFailed            GrandCentralEventKind = "block_failed"
	EventBlockCancelled         GrandCentralEventKind = "block_cancelled"
	EventPtyOpened              GrandCentralEventKind = "pty_opened"
	EventPtyClosed              GrandCentralEventKind = "pty_closed"
	EventSerialExecutionPaused  GrandCentralEventKind = "serial_execution_paused"
)

// GrandCentralEvent is one process-wide observer event.
type GrandCentralEvent struct {
	Kind        GrandCentralEventKind
	BlockID     uuid.UUID
	ExecutionID uuid.UUID
	Success     bool
	Error       string
	PtyID       uuid.UUID
	PtyMeta     any
}

// Bus is the process-wide Grand Central broadcast. Publish is a no-op with
// no subscribers; subscribers that fall behind miss events (no replay), per
// spec.md §4.6.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan GrandCentralEvent
	next int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan GrandCentralEvent)}
}

// Subscription is a live bus subscription. Call Unsubscribe when done.
type Subscription struct {
	id     int
	bus    *Bus
	Events <-chan GrandCentralEvent
}

// Unsubscribe removes and closes the subscription's channel.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if ch, ok := s.bus.subs[s.id]; ok {
		delete(s.bus.subs, s.id)
		close(ch)
	}
}

// Subscribe registers a new observer with a bounded mailbox.
func (b *Bus) Subscribe(capacity int) *Subscription {
	if capacity <= 0 {
		capacity = 32
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan GrandCentralEvent, capacity)
	b.subs[id] = ch
	return &Subscription{id: id, bus: b, Events: ch}
}

// Publish fans out an event to every subscriber. A subscriber whose mailbox
// is full misses the event rather than blocking the publisher.
func (b *Bus) Publish(e GrandCentralEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
