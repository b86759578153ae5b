// SPDX-License-Identifier: EPL-2.0

package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"runcell/internal/engine"
)

// SQLDriver is the shared Driver implementation for every database/sql-
// backed query block: Postgres, MySQL, SQLite, ClickHouse. DriverName
// selects which database/sql driver Connect dials with.
type SQLDriver struct {
	DriverName string
}

func (d SQLDriver) Connect(ec *engine.ExecutionContext, connStr string) (any, error) {
	db, err := sql.Open(d.DriverName, connStr)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", d.DriverName, err)
	}
	pingCtx, cancel := context.WithTimeout(ec.Context, ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: connect: %w", d.DriverName, err)
	}
	return db, nil
}

func (d SQLDriver) Disconnect(conn any) {
	if db, ok := conn.(*sql.DB); ok {
		_ = db.Close()
	}
}

func (d SQLDriver) Execute(ec *engine.ExecutionContext, conn any, queryText string) error {
	db := conn.(*sql.DB)
	statements := SplitStatements(queryText)

	ec.Object(map[string]any{"type": "queryCount", "count": len(statements)})

	for _, stmt := range statements {
		if ec.Handle.Cancel.Cancelled() {
			return fmt.Errorf("cancelled")
		}
		started := time.Now()
		switch stmt.Kind {
		case KindQuery:
			result, err := d.runQuery(ec.Context, db, stmt.Text)
			if err != nil {
				return fmt.Errorf("%s: %w", d.DriverName, err)
			}
			result.DurationS = time.Since(started).Seconds()
			ec.Object(result)
		default:
			res, err := db.ExecContext(ec.Context, stmt.Text)
			if err != nil {
				return fmt.Errorf("%s: %w", d.DriverName, err)
			}
			affected, _ := res.RowsAffected()
			ec.Object(Result{RowsAffected: affected, DurationS: time.Since(started).Seconds()})
		}
	}
	return nil
}

func (d SQLDriver) runQuery(ctx context.Context, db *sql.DB, stmt string) (Result, error) {
	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return Result{}, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = normalizeSQLValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}

	return Result{Columns: cols, Rows: out}, nil
}

// normalizeSQLValue converts driver-returned []byte (common for TEXT/BLOB
// columns across drivers) to string so JSON-encoded object frames don't
// carry base64 noise for ordinary text data.
func normalizeSQLValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// NewPostgres returns the Postgres driver, backed by jackc/pgx/v5's
// database/sql adapter.
func NewPostgres() SQLDriver { return SQLDriver{DriverName: "pgx"} }

// NewMySQL returns the MySQL driver, backed by go-sql-driver/mysql.
func NewMySQL() SQLDriver { return SQLDriver{DriverName: "mysql"} }

// NewSQLite returns the SQLite driver, backed by the pure-Go modernc.org/sqlite.
func NewSQLite() SQLDriver { return SQLDriver{DriverName: "sqlite"} }

// NewClickHouse returns the ClickHouse driver, backed by ClickHouse/clickhouse-go/v2.
func NewClickHouse() SQLDriver { return SQLDriver{DriverName: "clickhouse"} }
