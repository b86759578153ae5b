// SPDX-License-Identifier: EPL-2.0

package query

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	rcontext "runcell/internal/context"
	"runcell/internal/engine"
	"runcell/internal/eventbus"
	"runcell/internal/ptystore"
	"runcell/internal/sshpool"
	"runcell/internal/tmpl"
	"runcell/pkg/document"
)

func newQueryExecutionContext(t *testing.T, block document.Block) (*engine.ExecutionContext, *eventbus.OutputChannel) {
	t.Helper()
	output := eventbus.NewOutputChannel(64)
	return &engine.ExecutionContext{
		Context:  context.Background(),
		Handle:   engine.NewHandle(uuid.New(), block.BlockID()),
		Resolver: rcontext.New(tmpl.NewEngine()),
		Output:   output,
		Bus:      eventbus.NewBus(),
		PtyStore: ptystore.New(),
		SSHPool:  sshpool.New(),
		Document: document.NewDocument("test"),
		Block:    block,
	}, output
}

// TestSQLiteQueryCountFraming covers spec.md §8 scenario 5: a multi-
// statement SQL query block emits a "queryCount" framing object before its
// per-statement results, counting every split statement.
func TestSQLiteQueryCountFraming(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "query.db")

	setup, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = setup.Exec(`CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)
	_, err = setup.Exec(`INSERT INTO items (name) VALUES ('a'), ('b')`)
	require.NoError(t, err)
	require.NoError(t, setup.Close())

	block := &document.QueryBlock{
		Base:             document.Base{ID: uuid.New(), Type: document.BlockSQLite},
		ConnectionString: dbPath,
		Query:            "SELECT * FROM items; SELECT count(*) AS n FROM items;",
	}

	ec, output := newQueryExecutionContext(t, block)

	done := make(chan struct{})
	go func() {
		defer close(done)
		RunContract(ec, NewSQLite())
	}()

	var objects []any
	drain := make(chan struct{})
	go func() {
		defer close(drain)
		for f := range output.Frames() {
			if f.Object != nil {
				objects = append(objects, f.Object)
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("query contract never finished")
	}
	output.Close()
	<-drain

	require.Equal(t, engine.StatusSuccess, ec.Handle.Wait().Status)

	require.GreaterOrEqual(t, len(objects), 2)
	counted, ok := objects[1].(map[string]any)
	require.True(t, ok, "expected a queryCount framing object")
	require.Equal(t, "queryCount", counted["type"])
	require.Equal(t, 2, counted["count"])
}
