/*-------------------------------------------------------------------------
 *
 * pgEdge NL2SQL Explorer
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package executor runs approved SQL on the shared pool and materializes the
// result in memory.
package executor

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"

	"pgedge-nl2sql/internal/apperr"
	"pgedge-nl2sql/internal/database"
)

// DefaultPreviewLimit is the number of rows shown by a table preview
const DefaultPreviewLimit = 10

// Options configures an Executor
type Options struct {
	Schema       string // Schema that previewed tables live in (default: public)
	PreviewLimit int    // Rows returned by Preview (default: 10)
}

// Executor executes single queries inside read-only transactions
type Executor struct {
	db           *sql.DB
	schema       string
	previewLimit atomic.Int64
}

// New creates an executor on db
func New(db *sql.DB, opts Options) *Executor {
	if opts.Schema == "" {
		opts.Schema = "public"
	}
	e := &Executor{db: db, schema: opts.Schema}
	e.SetPreviewLimit(opts.PreviewLimit)
	return e
}

// SetPreviewLimit changes the preview row count; non-positive values reset
// it to the default
func (e *Executor) SetPreviewLimit(n int) {
	if n <= 0 {
		n = DefaultPreviewLimit
	}
	e.previewLimit.Store(int64(n))
}

// PreviewLimit returns the current preview row count
func (e *Executor) PreviewLimit() int {
	return int(e.previewLimit.Load())
}

// Run executes query exactly once and returns every row. Column names and
// type names are taken from the result description. The transaction is
// always rolled back. Failures are apperr execution errors carrying the
// driver's message.
func (e *Executor) Run(ctx context.Context, query string) (*ResultSet, error) {
	startTime := time.Now()
	database.LogQueryTrace(query, nil)

	result, err := e.run(ctx, query)
	rowCount := 0
	if result != nil {
		rowCount = len(result.Rows)
	}
	database.LogQuery(query, time.Since(startTime), rowCount, err)

	if err != nil {
		return nil, apperr.Execution(err)
	}
	return result, nil
}

func (e *Executor) run(ctx context.Context, query string) (*ResultSet, error) {
	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	result := &ResultSet{
		Columns: make([]Column, len(columnTypes)),
		Rows:    [][]any{},
	}
	for i, ct := range columnTypes {
		result.Columns[i] = Column{Name: ct.Name(), Type: ct.DatabaseTypeName()}
	}

	for rows.Next() {
		values := make([]any, len(columnTypes))
		ptrs := make([]any, len(columnTypes))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = normalizeValue(v)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Preview returns the first rows of table in the configured schema. The
// caller is responsible for checking that table exists.
func (e *Executor) Preview(ctx context.Context, table string) (*ResultSet, error) {
	return e.Run(ctx, PreviewQuery(e.schema, table, e.PreviewLimit()))
}

// PreviewQuery builds the preview statement with quoted identifiers
func PreviewQuery(schema, table string, limit int) string {
	return fmt.Sprintf("SELECT * FROM %s LIMIT %d", pgx.Identifier{schema, table}.Sanitize(), limit)
}

// normalizeValue converts driver values into JSON- and display-friendly types
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	default:
		return val
	}
}
