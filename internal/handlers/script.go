// SPDX-License-Identifier: EPL-2.0

package handlers

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/google/uuid"

	"runcell/internal/engine"
	"runcell/internal/eventbus"
	"runcell/internal/sshpool"
	"runcell/pkg/document"
)

// fsVarEnvName is the environment variable exposing a script's fs_var sink
// path to the running command.
const fsVarEnvName = "RUNCELL_VARS_FILE"

// Script implements the script block's execute contract (spec.md §4.4.1):
// local execution via os/exec, or remote execution through the SSH pool
// when the resolver's current context names an SSH host.
type Script struct{}

func (h Script) Execute(ec *engine.ExecutionContext) {
	ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleStarted})

	block, ok := ec.Block.(*document.ScriptBlock)
	if !ok {
		ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleError, Message: "script handler received a non-script block"})
		ec.Handle.Finish(engine.Outcome{Status: engine.StatusFailed})
		return
	}

	code, err := ec.Resolver.Render(block.Code)
	if err != nil {
		ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleError, Message: err.Error()})
		ec.Handle.Finish(engine.Outcome{Status: engine.StatusFailed})
		return
	}
	interpreter, err := ec.Resolver.Render(block.Interpreter)
	if err != nil {
		ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleError, Message: err.Error()})
		ec.Handle.Finish(engine.Outcome{Status: engine.StatusFailed})
		return
	}
	if interpreter == "" {
		interpreter = "sh"
	}

	var fsVarPath string
	if block.FSVar != "" {
		f, err := os.CreateTemp("", "runcell-fsvar-*")
		if err != nil {
			ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleError, Message: fmt.Sprintf("allocate fs_var sink: %v", err)})
			ec.Handle.Finish(engine.Outcome{Status: engine.StatusFailed})
			return
		}
		fsVarPath = f.Name()
		_ = f.Close()
		defer func() { _ = os.Remove(fsVarPath) }()
	}

	var (
		exitCode int
		stdout   strings.Builder
		runErr   error
	)

	if host := ec.Resolver.SSHHost(); host != nil {
		exitCode, runErr = h.execRemote(ec, *host, interpreter, code, fsVarPath, &stdout)
	} else {
		exitCode, runErr = h.execLocal(ec, interpreter, code, fsVarPath, &stdout)
	}

	if runErr != nil && exitCode == -1 {
		if ec.Handle.Cancel.Cancelled() {
			ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleCancelled})
			ec.Handle.Finish(engine.Outcome{Status: engine.StatusCancelled})
			return
		}
		ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleError, Message: runErr.Error()})
		ec.Handle.Finish(engine.Outcome{Status: engine.StatusFailed})
		return
	}

	h.captureOutputs(ec, block, fsVarPath, stdout.String())

	success := exitCode == 0
	ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleFinished, Success: success, ExitCode: exitCode})
	status := engine.StatusSuccess
	if !success {
		status = engine.StatusFailed
	}
	ec.Handle.Finish(engine.Outcome{Status: status, ExitCode: exitCode})
}

func (h Script) captureOutputs(ec *engine.ExecutionContext, block *document.ScriptBlock, fsVarPath, stdout string) {
	var active []document.ContextItem

	if block.OutputVariable != "" {
		value := strings.TrimRight(stdout, "\n")
		active = append(active, document.DocumentVar{
			Name: block.OutputVariable, Value: value, Source: document.VarSourceScriptOutput,
		})
		ec.Output.TrySend(eventbus.BlockOutput{
			ExecutionID: ec.Handle.ID,
			BlockID:     ec.Block.BlockID(),
			Object:      map[string]any{"context_var": map[string]string{"name": block.OutputVariable, "value": value}},
		})
	}

	if fsVarPath != "" {
		if content, err := os.ReadFile(fsVarPath); err == nil {
			vars, err := parseFSVarFile(string(content))
			if err != nil {
				ec.Stderr(fmt.Sprintf("fs_var: %v\n", err))
			} else {
				active = append(active, document.DocumentVars{Vars: vars})
				ec.Output.TrySend(eventbus.BlockOutput{
					ExecutionID: ec.Handle.ID,
					BlockID:     ec.Block.BlockID(),
					Object:      map[string]any{"context_vars": vars},
				})
			}
		}
	}

	if len(active) > 0 {
		ec.SetActiveContext(active...)
	}
}

// execLocal spawns interpreter -c code with the resolver's cwd/env overlay,
// streaming stdout/stderr as it arrives.
func (h Script) execLocal(ec *engine.ExecutionContext, interpreter, code, fsVarPath string, capture *strings.Builder) (int, error) {
	cmd := exec.CommandContext(ec.Context, interpreter, "-c", code)
	cmd.Dir = ec.Resolver.Cwd()
	cmd.Env = mergeEnv(os.Environ(), ec.Resolver.Env(), fsVarPath)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return -1, err
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return -1, err
	}

	if err := cmd.Start(); err != nil {
		return -1, err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go h.streamLocal(&wg, ec, stdoutPipe, true, capture)
	go h.streamLocal(&wg, ec, stderrPipe, false, capture)

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	select {
	case <-ec.Handle.Cancel.Done():
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		wg.Wait()
		<-waitDone
		return -1, fmt.Errorf("cancelled")
	case err := <-waitDone:
		wg.Wait()
		if err == nil {
			return 0, nil
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
}

func (h Script) streamLocal(wg *sync.WaitGroup, ec *engine.ExecutionContext, r io.Reader, isStdout bool, capture *strings.Builder) {
	defer wg.Done()
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			if isStdout {
				capture.WriteString(line)
				ec.Stdout(line)
			} else {
				ec.Stderr(line)
			}
		}
		if err != nil {
			return
		}
	}
}

func (h Script) execRemote(ec *engine.ExecutionContext, userHost, interpreter, code, fsVarPath string, capture *strings.Builder) (int, error) {
	user, host, port := sshpool.ParseUserHost(userHost)

	channelID := uuid.New()
	outputCh := make(chan sshpool.OutputFrame, 32)
	resultCh := make(chan sshpool.ExecResult, 1)

	go ec.SSHPool.Exec(host, user, port, ec.SSHCredentials, interpreter, code, channelID, outputCh, resultCh)

	go func() {
		<-ec.Handle.Cancel.Done()
		ec.SSHPool.ExecCancel(channelID)
	}()

	for {
		select {
		case frame, ok := <-outputCh:
			if !ok {
				continue
			}
			switch frame.Stream {
			case "stdout":
				capture.Write(frame.Data)
				ec.Stdout(string(frame.Data))
			case "stderr":
				ec.Stderr(string(frame.Data))
			}
		case res := <-resultCh:
			if res.Err != nil {
				return -1, res.Err
			}
			return res.ExitCode, nil
		}
	}
}

func mergeEnv(base []string, overlay map[string]string, fsVarPath string) []string {
	out := append([]string{}, base...)
	for k, v := range overlay {
		out = append(out, k+"="+v)
	}
	if fsVarPath != "" {
		out = append(out, fsVarEnvName+"="+fsVarPath)
	}
	return out
}
