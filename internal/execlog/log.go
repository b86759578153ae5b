// SPDX-License-Identifier: EPL-2.0

// Package execlog implements the execution log actor from spec.md §4.7: a
// SQLite-backed append-only record of block executions, serialized through
// a bounded command queue like ptystore.
package execlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type command struct {
	fn func(db *sql.DB)
}

// Log is the execution log actor. db is only ever touched from run's
// goroutine, so every exported method round-trips through the command
// queue rather than calling *sql.DB directly.
type Log struct {
	cmds   chan command
	done   chan struct{}
	logger *log.Logger
}

// Open opens (creating if needed) the SQLite file at path in WAL mode with
// normal synchronous durability and a 3s busy timeout, creates the schema
// if missing, and starts the actor goroutine.
func Open(path string) (*Log, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(3000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("execlog: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS blocks (
			id   INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT UNIQUE NOT NULL
		);
		CREATE TABLE IF NOT EXISTS exec_log (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			block_id   INTEGER NOT NULL REFERENCES blocks(id),
			start_time INTEGER NOT NULL,
			end_time   INTEGER NOT NULL,
			output     TEXT NOT NULL
		);
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("execlog: create schema: %w", err)
	}

	l := &Log{
		cmds:   make(chan command, 16),
		done:   make(chan struct{}),
		logger: log.NewWithOptions(os.Stderr, log.Options{Prefix: "execlog"}),
	}
	go l.run(db)
	return l, nil
}

// Close drains pending commands, closes the database, and stops the actor.
// Safe to call once.
func (l *Log) Close() {
	close(l.cmds)
	<-l.done
}

func (l *Log) run(db *sql.DB) {
	defer close(l.done)
	defer func() { _ = db.Close() }()
	for cmd := range l.cmds {
		cmd.fn(db)
	}
}

func (l *Log) do(fn func(db *sql.DB)) {
	reply := make(chan struct{})
	l.cmds <- command{fn: func(db *sql.DB) {
		fn(db)
		close(reply)
	}}
	<-reply
}

// GetOrCreateBlock returns the integer row id for blockUUID, inserting a
// new row the first time it's seen.
func (l *Log) GetOrCreateBlock(ctx context.Context, blockUUID uuid.UUID) (int64, error) {
	var id int64
	var outErr error
	l.do(func(db *sql.DB) {
		id, outErr = getOrCreateBlock(ctx, db, blockUUID)
	})
	return id, outErr
}

func getOrCreateBlock(ctx context.Context, db *sql.DB, blockUUID uuid.UUID) (int64, error) {
	var id int64
	err := db.QueryRowContext(ctx, `SELECT id FROM blocks WHERE uuid = ?`, blockUUID.String()).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("execlog: lookup block: %w", err)
	}
	res, err := db.ExecContext(ctx, `INSERT INTO blocks (uuid) VALUES (?)`, blockUUID.String())
	if err != nil {
		return 0, fmt.Errorf("execlog: insert block: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("execlog: last insert id: %w", err)
	}
	return id, nil
}

// LogExecution records one completed execution of blockUUID, spanning
// [startNS, endNS] (unix nanoseconds) with the given captured output.
func (l *Log) LogExecution(ctx context.Context, blockUUID uuid.UUID, startNS, endNS int64, output string) error {
	var outErr error
	l.do(func(db *sql.DB) {
		blockID, err := getOrCreateBlock(ctx, db, blockUUID)
		if err != nil {
			outErr = err
			return
		}
		_, outErr = db.ExecContext(ctx,
			`INSERT INTO exec_log (block_id, start_time, end_time, output) VALUES (?, ?, ?, ?)`,
			blockID, startNS, endNS, output)
	})
	return outErr
}

// GetLastExecutionTime returns the end_time of blockUUID's most recent
// logged execution, or the zero time if it has never executed.
func (l *Log) GetLastExecutionTime(ctx context.Context, blockUUID uuid.UUID) (time.Time, error) {
	var out time.Time
	var outErr error
	l.do(func(db *sql.DB) {
		var endNS int64
		err := db.QueryRowContext(ctx, `
			SELECT e.end_time FROM exec_log e
			JOIN blocks b ON b.id = e.block_id
			WHERE b.uuid = ?
			ORDER BY e.end_time DESC
			LIMIT 1`, blockUUID.String()).Scan(&endNS)
		if err == sql.ErrNoRows {
			return
		}
		if err != nil {
			outErr = fmt.Errorf("execlog: last execution time: %w", err)
			return
		}
		out = time.Unix(0, endNS)
	})
	return out, outErr
}
