// SPDX-License-Identifier: EPL-2.0

package handlers

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"

	"runcell/internal/engine"
	"runcell/internal/eventbus"
	"runcell/internal/ptystore"
	"runcell/internal/sshpool"
	"runcell/pkg/document"
)

// sshPty adapts a pool-driven SSH PTY session into ptystore.PtyLike, the way
// original_source/backend/src/runtime/ssh_pool.rs's SshPty wraps a PTY
// channel so the store is the single registry for both local and remote
// sessions (original_source/.../handlers/terminal.rs:210-322).
type sshPty struct {
	meta      ptystore.Meta
	pool      *sshpool.Pool
	channelID uuid.UUID
	stdin     chan<- []byte
	resize    chan<- sshpool.Resize
}

func (p *sshPty) Metadata() ptystore.Meta { return p.meta }

func (p *sshPty) KillChild() error {
	p.pool.ClosePty(p.channelID)
	return nil
}

func (p *sshPty) SendBytes(b []byte) error {
	p.stdin <- b
	return nil
}

func (p *sshPty) Resize(rows, cols uint16) error {
	p.resize <- sshpool.Resize{Width: cols, Height: rows}
	return nil
}

// Terminal implements the interactive terminal block (spec.md §4.4.2):
// a long-lived PTY, local or via the SSH pool, registered in the PTY store
// and driven until its cancellation token fires.
type Terminal struct{}

func (h Terminal) Execute(ec *engine.ExecutionContext) {
	block, ok := ec.Block.(*document.TerminalBlock)
	if !ok {
		ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleStarted})
		ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleError, Message: "terminal handler received a non-terminal block"})
		ec.Handle.Finish(engine.Outcome{Status: engine.StatusFailed})
		return
	}

	code, err := ec.Resolver.Render(block.Code)
	if err != nil {
		ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleStarted})
		ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleError, Message: err.Error()})
		ec.Handle.Finish(engine.Outcome{Status: engine.StatusFailed})
		return
	}
	if !strings.HasSuffix(code, "\n") {
		code += "\n"
	}

	if host := ec.Resolver.SSHHost(); host != nil {
		h.runRemote(ec, *host, code)
		return
	}
	h.runLocal(ec, code)
}

func (h Terminal) runLocal(ec *engine.ExecutionContext, code string) {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}

	cmd := exec.CommandContext(ec.Context, shell)
	cmd.Dir = ec.Resolver.Cwd()
	cmd.Env = mergeEnv(os.Environ(), ec.Resolver.Env(), "")

	f, err := pty.Start(cmd)
	if err != nil {
		ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleStarted})
		ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleError, Message: err.Error()})
		ec.Handle.Finish(engine.Outcome{Status: engine.StatusFailed})
		return
	}

	localPty := ptystore.NewLocalPty(ptystore.Meta{
		PID:       ec.Block.BlockID(),
		Runbook:   ec.Document.ID,
		Block:     string(ec.Block.BlockType()),
		CreatedAt: time.Now(),
	}, f, cmd.Process)
	ec.PtyStore.Add(localPty)

	ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleStarted})
	ec.Bus.Publish(eventbus.GrandCentralEvent{Kind: eventbus.EventPtyOpened, BlockID: ec.Block.BlockID(), PtyID: ec.Block.BlockID()})

	if _, err := f.WriteString(code); err != nil {
		ec.PtyStore.Remove(ec.Block.BlockID())
		ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleError, Message: err.Error()})
		ec.Handle.Finish(engine.Outcome{Status: engine.StatusFailed})
		return
	}

	readDone := make(chan struct{})
	readErr := make(chan error, 1)
	go func() {
		defer close(readDone)
		buf := make([]byte, 4096)
		for {
			n, err := f.Read(buf)
			if n > 0 {
				frame := make([]byte, n)
				copy(frame, buf[:n])
				ec.Binary(frame)
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	select {
	case <-ec.Handle.Cancel.Done():
		ec.PtyStore.Remove(ec.Block.BlockID())
		ec.Bus.Publish(eventbus.GrandCentralEvent{Kind: eventbus.EventPtyClosed, BlockID: ec.Block.BlockID(), PtyID: ec.Block.BlockID()})
		<-readDone
		ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleCancelled})
		ec.Handle.Finish(engine.Outcome{Status: engine.StatusCancelled})

	case err := <-readErr:
		ec.PtyStore.Remove(ec.Block.BlockID())
		ec.Bus.Publish(eventbus.GrandCentralEvent{Kind: eventbus.EventPtyClosed, BlockID: ec.Block.BlockID(), PtyID: ec.Block.BlockID()})
		if errors.Is(err, io.EOF) {
			ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleFinished, Success: true, ExitCode: 0})
			ec.Handle.Finish(engine.Outcome{Status: engine.StatusSuccess, ExitCode: 0})
			return
		}
		ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleError, Message: err.Error()})
		ec.Handle.Finish(engine.Outcome{Status: engine.StatusFailed})
	}
}

func (h Terminal) runRemote(ec *engine.ExecutionContext, userHost, code string) {
	user, host, port := sshpool.ParseUserHost(userHost)
	channelID := ec.Block.BlockID()

	outputCh := make(chan sshpool.OutputFrame, 32)
	stdin, resize, done := ec.SSHPool.OpenPty(host, user, port, ec.SSHCredentials, channelID, outputCh, 80, 24)

	remotePty := &sshPty{
		meta: ptystore.Meta{
			PID:       channelID,
			Runbook:   ec.Document.ID,
			Block:     string(ec.Block.BlockType()),
			CreatedAt: time.Now(),
		},
		pool:      ec.SSHPool,
		channelID: channelID,
		stdin:     stdin,
		resize:    resize,
	}
	ec.PtyStore.Add(remotePty)

	ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleStarted})
	ec.Bus.Publish(eventbus.GrandCentralEvent{Kind: eventbus.EventPtyOpened, BlockID: ec.Block.BlockID(), PtyID: channelID})

	stdin <- []byte(code)

	go func() {
		<-ec.Handle.Cancel.Done()
		ec.PtyStore.Remove(channelID)
	}()

	for {
		select {
		case frame, ok := <-outputCh:
			if !ok {
				continue
			}
			ec.Binary(frame.Data)

		case err := <-done:
			ec.PtyStore.Remove(channelID)
			ec.Bus.Publish(eventbus.GrandCentralEvent{Kind: eventbus.EventPtyClosed, BlockID: ec.Block.BlockID(), PtyID: channelID})
			if ec.Handle.Cancel.Cancelled() {
				ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleCancelled})
				ec.Handle.Finish(engine.Outcome{Status: engine.StatusCancelled})
				return
			}
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleFinished, Success: false, ExitCode: exitErr.ExitStatus()})
				ec.Handle.Finish(engine.Outcome{Status: engine.StatusFailed, ExitCode: exitErr.ExitStatus()})
				return
			}
			if err != nil {
				ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleError, Message: err.Error()})
				ec.Handle.Finish(engine.Outcome{Status: engine.StatusFailed})
				return
			}
			ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleFinished, Success: true, ExitCode: 0})
			ec.Handle.Finish(engine.Outcome{Status: engine.StatusSuccess, ExitCode: 0})
			return
		}
	}
}
