// SPDX-License-Identifier: EPL-2.0

// Package serial implements the serial workflow driver from spec.md §4.5:
// given a document-ordered list of block ids and a starting index, it
// executes each block in turn, awaiting its terminal outcome before
// advancing, and stops on failure, cancellation, or pause.
package serial

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"runcell/internal/engine"
	"runcell/internal/eventbus"
	"runcell/pkg/document"
)

// StopReason reports why a run ended.
type StopReason int

const (
	StopCompleted StopReason = iota
	StopFailed
	StopCancelled
	StopPaused
)

func (r StopReason) String() string {
	switch r {
	case StopCompleted:
		return "completed"
	case StopFailed:
		return "failed"
	case StopCancelled:
		return "cancelled"
	case StopPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Result summarizes a Run call: where it stopped and why.
type Result struct {
	Reason     StopReason
	StoppedAt  uuid.UUID // block id the driver stopped at, zero if it ran to completion
	StoppedIdx int       // index into doc.Flatten(), -1 if it ran to completion
	Err        error
}

// Driver runs a document's blocks in order, one at a time, through an
// engine.Engine.
type Driver struct {
	engine *engine.Engine
	bus    *eventbus.Bus
	logger *log.Logger
}

// New builds a Driver over eng, publishing pause notifications on bus.
func New(eng *engine.Engine, bus *eventbus.Bus) *Driver {
	return &Driver{
		engine: eng,
		bus:    bus,
		logger: log.NewWithOptions(os.Stderr, log.Options{Prefix: "serial"}),
	}
}

// Run executes doc's blocks in document order starting at startIdx. Blocks
// of display-only types are skipped without emitting lifecycle events, per
// spec.md §4.5. A pause block's own execution is the stop condition: once
// it has emitted Started/Paused and finished, the driver publishes
// SerialExecutionPaused and returns, so the caller can resume later with a
// new start index. A failing or cancelled block also stops the run.
func (d *Driver) Run(ctx context.Context, doc *document.Document, startIdx int) Result {
	blocks := doc.Flatten()
	if startIdx < 0 {
		startIdx = 0
	}

	for i := startIdx; i < len(blocks); i++ {
		block := blocks[i]
		if document.IsDisplayOnly(block.BlockType()) {
			continue
		}

		executionID, _, err := d.engine.ExecuteBlock(ctx, doc, block.BlockID())
		if err != nil {
			d.logger.Error("failed to start block", "block", block.BlockID(), "error", err)
			return Result{Reason: StopFailed, StoppedAt: block.BlockID(), StoppedIdx: i, Err: err}
		}

		handle, ok := d.engine.Handle(executionID)
		if !ok {
			err := fmt.Errorf("serial: execution %s vanished before completion", executionID)
			return Result{Reason: StopFailed, StoppedAt: block.BlockID(), StoppedIdx: i, Err: err}
		}

		outcome := handle.Wait()
		switch outcome.Status {
		case engine.StatusFailed:
			return Result{Reason: StopFailed, StoppedAt: block.BlockID(), StoppedIdx: i, Err: fmt.Errorf("%s", outcome.Message)}
		case engine.StatusCancelled:
			return Result{Reason: StopCancelled, StoppedAt: block.BlockID(), StoppedIdx: i}
		case engine.StatusSuccess:
			if block.BlockType() == document.BlockPause {
				d.bus.Publish(eventbus.GrandCentralEvent{
					Kind:        eventbus.EventSerialExecutionPaused,
					BlockID:     block.BlockID(),
					ExecutionID: executionID,
				})
				return Result{Reason: StopPaused, StoppedAt: block.BlockID(), StoppedIdx: i}
			}
		}
	}

	return Result{Reason: StopCompleted, StoppedIdx: -1}
}
