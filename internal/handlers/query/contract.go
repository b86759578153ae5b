// SPDX-License-Identifier: EPL-2.0

// Package query implements the shared query-block contract (spec.md
// §4.4.3) and one driver per block type: the SQL family (Postgres, MySQL,
// SQLite, ClickHouse) sharing a statement splitter, plus HTTP, Prometheus,
// and Kubernetes.
package query

import (
	"time"

	"runcell/internal/engine"
	"runcell/internal/eventbus"
	"runcell/pkg/document"
)

// ConnectTimeout bounds a query block's connect step, per spec.md §5.
const ConnectTimeout = 10 * time.Second

// Result is one statement's result frame.
type Result struct {
	Columns     []string         `json:"columns,omitempty"`
	Rows        []map[string]any `json:"rows,omitempty"`
	RowsAffected int64           `json:"rows_affected,omitempty"`
	DurationS   float64          `json:"duration_s"`
}

// Driver is implemented once per query block type. Connect/Execute/
// Disconnect are run by RunContract, which owns lifecycle emission,
// cancellation, and the finally-style disconnect.
type Driver interface {
	// Connect establishes the connection described by connStr. RunContract
	// sets no deadline; the SQL, HTTP and Prometheus drivers bound their own
	// connect by ConnectTimeout, and the Kubernetes driver sets none.
	Connect(ec *engine.ExecutionContext, connStr string) (conn any, err error)
	// Execute runs query against conn, emitting result frames via ec.
	Execute(ec *engine.ExecutionContext, conn any, query string) error
	// Disconnect releases conn. Called for every conn Connect returns, even
	// on error or cancellation.
	Disconnect(conn any)
}

// RunContract drives the five-step contract shared by every query block:
// resolve, connect-with-timeout, execute, disconnect (finally), cancel-aware
// throughout.
func RunContract(ec *engine.ExecutionContext, d Driver) {
	ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleStarted})

	block, ok := ec.Block.(*document.QueryBlock)
	if !ok {
		ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleError, Message: "query handler received a non-query block"})
		ec.Handle.Finish(engine.Outcome{Status: engine.StatusFailed})
		return
	}

	connStr, err := ec.Resolver.Render(block.ConnectionString)
	if err != nil {
		ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleError, Message: err.Error()})
		ec.Handle.Finish(engine.Outcome{Status: engine.StatusFailed})
		return
	}
	queryText, err := ec.Resolver.Render(block.Query)
	if err != nil {
		ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleError, Message: err.Error()})
		ec.Handle.Finish(engine.Outcome{Status: engine.StatusFailed})
		return
	}

	type connResult struct {
		conn any
		err  error
	}
	connCh := make(chan connResult, 1)
	go func() {
		conn, err := d.Connect(ec, connStr)
		connCh <- connResult{conn, err}
	}()

	var conn any
	select {
	case <-ec.Handle.Cancel.Done():
		go func() {
			if res := <-connCh; res.err == nil {
				d.Disconnect(res.conn)
			}
		}()
		ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleCancelled})
		ec.Handle.Finish(engine.Outcome{Status: engine.StatusCancelled})
		return
	case res := <-connCh:
		if res.err != nil {
			ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleError, Message: res.err.Error()})
			ec.Handle.Finish(engine.Outcome{Status: engine.StatusFailed})
			return
		}
		conn = res.conn
	}
	defer d.Disconnect(conn)

	ec.Object(map[string]any{"type": "connected"})

	execErr := make(chan error, 1)
	go func() { execErr <- d.Execute(ec, conn, queryText) }()

	select {
	case <-ec.Handle.Cancel.Done():
		ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleCancelled})
		ec.Handle.Finish(engine.Outcome{Status: engine.StatusCancelled})
		return
	case err := <-execErr:
		if err != nil {
			ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleError, Message: err.Error()})
			ec.Handle.Finish(engine.Outcome{Status: engine.StatusFailed})
			return
		}
		ec.EmitLifecycle(eventbus.Lifecycle{Kind: eventbus.LifecycleFinished, Success: true, ExitCode: 0})
		ec.Handle.Finish(engine.Outcome{Status: engine.StatusSuccess})
	}
}
