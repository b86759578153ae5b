// SPDX-License-Identifier: EPL-2.0

// Package ptystore implements the single-owner PTY actor described in
// spec.md §4.1: a map of local and SSH pseudo-terminal sessions keyed by block id,
// serialized through a bounded command queue.
package ptystore

import (
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/creack/pty"
	"github.com/google/uuid"
)

// Meta is a PTY's metadata, stable for the life of the session.
type Meta struct {
	PID       uuid.UUID // == block id
	Runbook   uuid.UUID
	Block     string
	CreatedAt time.Time
}

// PtyLike is the capability a PTY session exposes to the store.
type PtyLike interface {
	Metadata() Meta
	KillChild() error
	SendBytes(b []byte) error
	Resize(rows, cols uint16) error
}

// LocalPty is the PtyLike backed by creack/pty, matching the local-session
// half of the teacher's ssh server PTY helpers.
type LocalPty struct {
	meta Meta
	f    *os.File
	proc *os.Process
}

// NewLocalPty wraps an already-started pseudo-terminal f and its child
// process proc.
func NewLocalPty(meta Meta, f *os.File, proc *os.Process) *LocalPty {
	return &LocalPty{meta: meta, f: f, proc: proc}
}

func (p *LocalPty) Metadata() Meta { return p.meta }

func (p *LocalPty) KillChild() error {
	if p.proc == nil {
		return nil
	}
	return p.proc.Kill()
}

func (p *LocalPty) SendBytes(b []byte) error {
	_, err := p.f.Write(b)
	return err
}

func (p *LocalPty) Resize(rows, cols uint16) error {
	return pty.Setsize(p.f, &pty.Winsize{Rows: rows, Cols: cols})
}

type command struct {
	fn func(state map[uuid.UUID]PtyLike)
}

// Store is the PTY actor. All operations are message-passed onto a single
// goroutine so state transitions are serialized by arrival order.
type Store struct {
	cmds   chan command
	done   chan struct{}
	logger *log.Logger
}

// New creates and starts a PTY store actor with a bounded command queue.
func New() *Store {
	s := &Store{
		cmds:   make(chan command, 16),
		done:   make(chan struct{}),
		logger: log.NewWithOptions(os.Stderr, log.Options{Prefix: "ptystore"}),
	}
	go s.run()
	return s
}

// Close stops the actor. Safe to call once.
func (s *Store) Close() {
	close(s.cmds)
	<-s.done
}

func (s *Store) run() {
	defer close(s.done)
	state := make(map[uuid.UUID]PtyLike)
	for cmd := range s.cmds {
		cmd.fn(state)
	}
}

func (s *Store) do(fn func(map[uuid.UUID]PtyLike)) {
	reply := make(chan struct{})
	s.cmds <- command{fn: func(state map[uuid.UUID]PtyLike) {
		fn(state)
		close(reply)
	}}
	<-reply
}

// Add inserts pty keyed by its metadata's PID. If the key already exists,
// the prior value is dropped and implicitly killed.
func (s *Store) Add(p PtyLike) {
	s.do(func(state map[uuid.UUID]PtyLike) {
		id := p.Metadata().PID
		if prior, ok := state[id]; ok {
			if err := prior.KillChild(); err != nil {
				s.logger.Warn("kill prior pty on overwrite", "id", id, "error", err)
			}
		}
		state[id] = p
	})
}

// Remove removes the PTY and kills its child. Kill errors are logged and
// swallowed; removal always succeeds.
func (s *Store) Remove(id uuid.UUID) {
	s.do(func(state map[uuid.UUID]PtyLike) {
		p, ok := state[id]
		if !ok {
			return
		}
		delete(state, id)
		if err := p.KillChild(); err != nil {
			s.logger.Warn("kill child on remove", "id", id, "error", err)
		}
	})
}

// Write forwards bytes to the PTY. Absent keys are not an error
// (best-effort); a present PTY's write error propagates to the caller.
func (s *Store) Write(id uuid.UUID, b []byte) error {
	var writeErr error
	s.do(func(state map[uuid.UUID]PtyLike) {
		p, ok := state[id]
		if !ok {
			return
		}
		writeErr = p.SendBytes(b)
	})
	return writeErr
}

// Resize forwards a resize to the PTY. Absent keys are not an error.
func (s *Store) Resize(id uuid.UUID, rows, cols uint16) error {
	var resizeErr error
	s.do(func(state map[uuid.UUID]PtyLike) {
		p, ok := state[id]
		if !ok {
			return
		}
		resizeErr = p.Resize(rows, cols)
	})
	return resizeErr
}

// Meta returns the metadata for id, or false if absent.
func (s *Store) Meta(id uuid.UUID) (Meta, bool) {
	var m Meta
	var ok bool
	s.do(func(state map[uuid.UUID]PtyLike) {
		p, found := state[id]
		if !found {
			return
		}
		m, ok = p.Metadata(), true
	})
	return m, ok
}

// List returns the metadata of every live PTY.
func (s *Store) List() []Meta {
	var out []Meta
	s.do(func(state map[uuid.UUID]PtyLike) {
		out = make([]Meta, 0, len(state))
		for _, p := range state {
			out = append(out, p.Metadata())
		}
	})
	return out
}

// ListForRunbook returns the metadata of every live PTY belonging to rb.
func (s *Store) ListForRunbook(rb uuid.UUID) []Meta {
	var out []Meta
	s.do(func(state map[uuid.UUID]PtyLike) {
		for _, p := range state {
			if m := p.Metadata(); m.Runbook == rb {
				out = append(out, m)
			}
		}
	})
	return out
}

// Len returns the number of live PTYs.
func (s *Store) Len() int {
	var n int
	s.do(func(state map[uuid.UUID]PtyLike) { n = len(state) })
	return n
}

// Has reports whether id is present, used by tests asserting cancellation
// removed a PTY from the store.
func (s *Store) Has(id uuid.UUID) bool {
	_, ok := s.Meta(id)
	return ok
}
