// SPDX-License-Identifier: EPL-2.0

package handlers

import (
	"bufio"
	"context"
	"os/exec"
	"strings"

	"runcell/internal/engine"
	"runcell/internal/eventbus"
	"runcell/pkg/document"
)

// DropdownOption is one resolved {label,value} pair.
type DropdownOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Dropdown resolves a dropdown block's option source into a concrete
// {label,value} list and emits it as an object frame (spec.md §4.4's
// "private block state"): the frontend is the system of record for that
// state, so the runtime hands it over rather than retaining it itself.
type Dropdown struct {
	// DefaultInterpreter is used to run a "command" source when the block itself
	// didn't specify one (rare; DropdownBlock carries its own Interpreter).
	DefaultInterpreter string
}

func (h Dropdown) Execute(ec *engine.ExecutionContext) {
	ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleStarted})

	block, ok := ec.Block.(*document.DropdownBlock)
	if !ok {
		ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleError, Message: "dropdown handler received a non-dropdown block"})
		ec.Handle.Finish(engine.Outcome{Status: engine.StatusFailed})
		return
	}

	opts, err := h.resolveOptions(ec, block)
	if err != nil {
		ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleError, Message: err.Error()})
		ec.Handle.Finish(engine.Outcome{Status: engine.StatusFailed})
		return
	}

	ec.Object(opts)
	ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleFinished, Success: true, ExitCode: 0})
	ec.Handle.Finish(engine.Outcome{Status: engine.StatusSuccess})
}

func (h Dropdown) resolveOptions(ec *engine.ExecutionContext, block *document.DropdownBlock) ([]DropdownOption, error) {
	switch block.Source.Kind {
	case "fixed":
		resolved, err := ec.Resolver.Render(block.Source.Value)
		if err != nil {
			return nil, err
		}
		return parseFixedList(resolved), nil

	case "variable":
		entry, ok := ec.Resolver.Vars()[block.Source.Value]
		if !ok {
			return nil, nil
		}
		return parseFixedList(entry.Value), nil

	case "command":
		resolved, err := ec.Resolver.Render(block.Source.Value)
		if err != nil {
			return nil, err
		}
		interpreter := block.Interpreter
		if interpreter == "" {
			interpreter = h.DefaultInterpreter
		}
		if interpreter == "" {
			interpreter = "sh"
		}
		return h.runCommandSource(ec.Context, interpreter, resolved, ec.Resolver.Cwd())

	default:
		return nil, nil
	}
}

// parseFixedList accepts either a comma-separated list or a newline-
// separated list, whichever the resolved string contains.
func parseFixedList(s string) []DropdownOption {
	var fields []string
	if strings.Contains(s, "\n") {
		fields = strings.Split(s, "\n")
	} else {
		fields = strings.Split(s, ",")
	}
	var out []DropdownOption
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		out = append(out, parseOption(f))
	}
	return out
}

// parseOption splits a single field on its first colon into {label, value};
// a field with no colon is its own label and value (original_source/crates/
// atuin-desktop-runtime/src/blocks/dropdown.rs:55-71's
// DropdownOption::TryFrom<&str>).
func parseOption(field string) DropdownOption {
	if idx := strings.Index(field, ":"); idx >= 0 {
		return DropdownOption{Label: field[:idx], Value: field[idx+1:]}
	}
	return DropdownOption{Label: field, Value: field}
}

func (h Dropdown) runCommandSource(ctx context.Context, interpreter, cmd, cwd string) ([]DropdownOption, error) {
	c := exec.CommandContext(ctx, interpreter, "-c", cmd)
	c.Dir = cwd
	out, err := c.Output()
	if err != nil {
		return nil, err
	}
	var opts []DropdownOption
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		opts = append(opts, parseOption(line))
	}
	return opts, nil
}
