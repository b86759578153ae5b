// SPDX-License-Identifier: EPL-2.0

package sshpool

import (
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"
)

// Resize is a PTY window-size change.
type Resize struct {
	Width  uint16
	Height uint16
}

// OpenPty opens an xterm-256color PTY on host and starts a shell, streaming
// raw bytes to outputCh. It returns channels for stdin bytes and resize
// events; the caller drives the session by sending to those channels and
// closing them (or firing cancel via ClosePty) when done. The session loop
// runs in its own goroutine: OpenPty returns at once, and done receives the
// session's end result.
func (p *Pool) OpenPty(host, user string, port int, creds Credentials, channelID uuid.UUID, outputCh chan<- OutputFrame, width, height int) (stdin chan<- []byte, resize chan<- Resize, done <-chan error) {
	meta := p.registerChannel(channelID)

	stdinCh := make(chan []byte, 8)
	resizeCh := make(chan Resize, 4)
	doneCh := make(chan error, 1)

	go p.runPty(meta, host, user, port, creds, channelID, outputCh, stdinCh, resizeCh, doneCh, width, height)

	return stdinCh, resizeCh, doneCh
}

func (p *Pool) runPty(meta *ChannelMeta, host, user string, port int, creds Credentials, channelID uuid.UUID, outputCh chan<- OutputFrame, stdinCh <-chan []byte, resizeCh <-chan Resize, doneCh chan<- error, width, height int) {
	defer p.dropChannel(channelID)

	client, err := p.client(host, user, port, creds)
	if err != nil {
		doneCh <- err
		return
	}

	sess, err := client.NewSession()
	if err != nil {
		doneCh <- fmt.Errorf("ssh: open pty channel: %w", err)
		return
	}
	defer func() { _ = sess.Close() }()

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := sess.RequestPty("xterm-256color", height, width, modes); err != nil {
		doneCh <- fmt.Errorf("ssh: request pty: %w", err)
		return
	}

	stdout, err := sess.StdoutPipe()
	if err != nil {
		doneCh <- err
		return
	}
	stdin, err := sess.StdinPipe()
	if err != nil {
		doneCh <- err
		return
	}

	if err := sess.Shell(); err != nil {
		doneCh <- fmt.Errorf("ssh: start shell: %w", err)
		return
	}

	readDone := make(chan error, 1)
	go func() {
		buf := make([]byte, 4096)
		for {
			n, rerr := stdout.Read(buf)
			if n > 0 {
				frame := make([]byte, n)
				copy(frame, buf[:n])
				outputCh <- OutputFrame{ChannelID: channelID, Stream: "binary", Data: frame}
			}
			if rerr != nil {
				readDone <- rerr
				return
			}
		}
	}()

	waitDone := make(chan error, 1)
	go func() { waitDone <- sess.Wait() }()

	for {
		select {
		case <-meta.cancel:
			_ = stdin.Close()
			_ = sess.Close()
			doneCh <- nil
			return

		case b, ok := <-stdinCh:
			if !ok {
				_ = stdin.Close()
				continue
			}
			if _, err := stdin.Write(b); err != nil {
				doneCh <- err
				return
			}

		case r, ok := <-resizeCh:
			if !ok {
				continue
			}
			if err := sess.WindowChange(int(r.Height), int(r.Width)); err != nil {
				// Non-fatal; keep the session alive.
				continue
			}

		case err := <-readDone:
			_ = err
			doneCh <- nil
			return

		case err := <-waitDone:
			doneCh <- err
			return
		}
	}
}
