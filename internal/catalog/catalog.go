/*-------------------------------------------------------------------------
 *
 * pgEdge NL2SQL Explorer
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package catalog introspects the tables and columns of one database schema
// and renders them as the schema text handed to the language model.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"pgedge-nl2sql/internal/database"
	"pgedge-nl2sql/internal/logging"
)

const (
	tablesQuery = `SELECT table_name
FROM information_schema.tables
WHERE table_schema = $1
ORDER BY table_name`

	columnsQuery = `SELECT table_name, column_name, data_type
FROM information_schema.columns
WHERE table_schema = $1
ORDER BY table_name, ordinal_position`
)

// ColumnDescriptor is one column of one table
type ColumnDescriptor struct {
	TableName  string `json:"table_name"`
	ColumnName string `json:"column_name"`
	DataType   string `json:"data_type"`
}

// RefreshObserver is notified after every load attempt
type RefreshObserver interface {
	ObserveSchemaRefresh(duration time.Duration, err error)
}

// Option configures a Catalog
type Option func(*Catalog)

// WithObserver reports load attempts to o
func WithObserver(o RefreshObserver) Option {
	return func(c *Catalog) {
		c.observer = o
	}
}

// snapshot is an immutable view of one successful load
type snapshot struct {
	tables   []string
	tableSet map[string]struct{}
	columns  []ColumnDescriptor
	text     SchemaText
	loadedAt time.Time
}

// Catalog holds the most recent schema snapshot. It is safe for concurrent use.
type Catalog struct {
	db       *sql.DB
	schema   string
	observer RefreshObserver

	mu   sync.RWMutex
	snap *snapshot

	group singleflight.Group
}

// New creates a catalog for schema. Nothing is loaded until Load is called.
func New(db *sql.DB, schema string, opts ...Option) *Catalog {
	c := &Catalog{
		db:     db,
		schema: schema,
		snap:   &snapshot{tableSet: map[string]struct{}{}},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Schema returns the introspected schema name
func (c *Catalog) Schema() string {
	return c.schema
}

// Load performs the initial introspection
func (c *Catalog) Load(ctx context.Context) error {
	return c.Refresh(ctx)
}

// Refresh re-reads the schema and swaps in the new snapshot. Concurrent calls
// share one round trip. On failure the previous snapshot is kept.
func (c *Catalog) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("refresh", func() (interface{}, error) {
		return nil, c.load(ctx)
	})
	return err
}

func (c *Catalog) load(ctx context.Context) error {
	startTime := time.Now()

	snap, err := c.fetch(ctx)
	duration := time.Since(startTime)
	if c.observer != nil {
		c.observer.ObserveSchemaRefresh(duration, err)
	}
	if err != nil {
		database.LogSchemaLoad(c.schema, 0, 0, duration, err)
		return err
	}

	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()

	database.LogSchemaLoad(c.schema, len(snap.tables), len(snap.columns), duration, nil)
	if len(snap.tables) == 0 {
		logging.Warn("schema has no tables", "schema", c.schema)
	}

	return nil
}

// fetch reads the table inventory and columns inside one read-only transaction
func (c *Catalog) fetch(ctx context.Context) (*snapshot, error) {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	names, err := queryTableNames(ctx, tx, c.schema)
	if err != nil {
		return nil, err
	}

	columns, err := queryColumns(ctx, tx, c.schema)
	if err != nil {
		return nil, err
	}

	// Only tables with at least one column are listed
	withColumns := make(map[string]struct{}, len(names))
	for _, col := range columns {
		withColumns[col.TableName] = struct{}{}
	}
	tables := make([]string, 0, len(names))
	tableSet := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := withColumns[name]; !ok {
			continue
		}
		if _, dup := tableSet[name]; dup {
			continue
		}
		tables = append(tables, name)
		tableSet[name] = struct{}{}
	}

	return &snapshot{
		tables:   tables,
		tableSet: tableSet,
		columns:  columns,
		text:     RenderSchemaText(columns),
		loadedAt: time.Now(),
	}, nil
}

func queryTableNames(ctx context.Context, tx *sql.Tx, schema string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, tablesQuery, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tables: %w", err)
	}
	return names, nil
}

func queryColumns(ctx context.Context, tx *sql.Tx, schema string) ([]ColumnDescriptor, error) {
	rows, err := tx.QueryContext(ctx, columnsQuery, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var columns []ColumnDescriptor
	for rows.Next() {
		var col ColumnDescriptor
		if err := rows.Scan(&col.TableName, &col.ColumnName, &col.DataType); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	return columns, nil
}

func (c *Catalog) current() *snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// ListTables returns the table inventory in name order
func (c *Catalog) ListTables() []string {
	snap := c.current()
	out := make([]string, len(snap.tables))
	copy(out, snap.tables)
	return out
}

// ListColumns returns every column descriptor in schema text order
func (c *Catalog) ListColumns() []ColumnDescriptor {
	snap := c.current()
	out := make([]ColumnDescriptor, len(snap.columns))
	copy(out, snap.columns)
	return out
}

// SchemaText returns the rendered schema of the current snapshot
func (c *Catalog) SchemaText() SchemaText {
	return c.current().text
}

// HasTable reports whether name is in the table inventory
func (c *Catalog) HasTable(name string) bool {
	_, ok := c.current().tableSet[name]
	return ok
}

// LoadedAt returns when the current snapshot was read, or the zero time
func (c *Catalog) LoadedAt() time.Time {
	return c.current().loadedAt
}
