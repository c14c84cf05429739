/*-------------------------------------------------------------------------
 *
 * pgEdge NL2SQL Explorer
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package catalog

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func expectSchemaLoad(mock sqlmock.Sqlmock, tables []string, columns [][3]string) {
	mock.ExpectBegin()
	tableRows := sqlmock.NewRows([]string{"table_name"})
	for _, name := range tables {
		tableRows.AddRow(name)
	}
	mock.ExpectQuery(regexp.QuoteMeta(tablesQuery)).WithArgs("public").WillReturnRows(tableRows)

	columnRows := sqlmock.NewRows([]string{"table_name", "column_name", "data_type"})
	for _, col := range columns {
		columnRows.AddRow(col[0], col[1], col[2])
	}
	mock.ExpectQuery(regexp.QuoteMeta(columnsQuery)).WithArgs("public").WillReturnRows(columnRows)
	mock.ExpectRollback()
}

type countingObserver struct {
	mu     sync.Mutex
	calls  int
	errors int
}

func (o *countingObserver) ObserveSchemaRefresh(_ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if err != nil {
		o.errors++
	}
}

func TestLoadFilmSchema(t *testing.T) {
	db, mock := newSQLMock(t)
	expectSchemaLoad(mock, []string{"actor", "film"}, [][3]string{
		{"actor", "actor_id", "integer"},
		{"actor", "first_name", "text"},
		{"film", "film_id", "integer"},
		{"film", "title", "text"},
	})

	observer := &countingObserver{}
	c := New(db, "public", WithObserver(observer))
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := "actor: actor_id (integer)\nactor: first_name (text)\nfilm: film_id (integer)\nfilm: title (text)"
	if got := c.SchemaText().String(); got != want {
		t.Errorf("SchemaText() = %q, want %q", got, want)
	}

	tables := c.ListTables()
	if len(tables) != 2 || tables[0] != "actor" || tables[1] != "film" {
		t.Errorf("ListTables() = %v", tables)
	}
	if !c.HasTable("film") || c.HasTable("payment") {
		t.Error("HasTable() does not match the inventory")
	}
	if len(c.ListColumns()) != 4 {
		t.Errorf("ListColumns() returned %d columns, want 4", len(c.ListColumns()))
	}
	if c.LoadedAt().IsZero() {
		t.Error("LoadedAt() should be set after a load")
	}
	if observer.calls != 1 || observer.errors != 0 {
		t.Errorf("observer calls = %d, errors = %d", observer.calls, observer.errors)
	}
	assertSQLMock(t, mock)
}

func TestTablesWithoutColumnsAreHidden(t *testing.T) {
	db, mock := newSQLMock(t)
	expectSchemaLoad(mock, []string{"empty_table", "film"}, [][3]string{
		{"film", "film_id", "integer"},
	})

	c := New(db, "public")
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tables := c.ListTables()
	if len(tables) != 1 || tables[0] != "film" {
		t.Errorf("ListTables() = %v, want [film]", tables)
	}
	if c.HasTable("empty_table") {
		t.Error("a table with no columns must not be in the inventory")
	}
	assertSQLMock(t, mock)
}

func TestEmptySchema(t *testing.T) {
	db, mock := newSQLMock(t)
	expectSchemaLoad(mock, nil, nil)

	c := New(db, "public")
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(c.ListTables()) != 0 {
		t.Errorf("ListTables() = %v, want empty", c.ListTables())
	}
	if c.SchemaText() != "" {
		t.Errorf("SchemaText() = %q, want empty", c.SchemaText())
	}
	assertSQLMock(t, mock)
}

func TestRefreshFailureKeepsSnapshot(t *testing.T) {
	db, mock := newSQLMock(t)
	expectSchemaLoad(mock, []string{"film"}, [][3]string{{"film", "film_id", "integer"}})

	observer := &countingObserver{}
	c := New(db, "public", WithObserver(observer))
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(tablesQuery)).WithArgs("public").
		WillReturnError(errors.New("connection reset by peer"))
	mock.ExpectRollback()

	if err := c.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh() should fail")
	}
	if !c.HasTable("film") {
		t.Error("failed refresh must keep the previous inventory")
	}
	if c.SchemaText() != "film: film_id (integer)" {
		t.Errorf("SchemaText() = %q after failed refresh", c.SchemaText())
	}
	if observer.errors != 1 {
		t.Errorf("observer errors = %d, want 1", observer.errors)
	}
	assertSQLMock(t, mock)
}

func TestRefreshPicksUpNewTables(t *testing.T) {
	db, mock := newSQLMock(t)
	expectSchemaLoad(mock, []string{"film"}, [][3]string{{"film", "film_id", "integer"}})
	expectSchemaLoad(mock, []string{"film", "payment"}, [][3]string{
		{"film", "film_id", "integer"},
		{"payment", "amount", "numeric"},
	})

	c := New(db, "public")
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.HasTable("payment") {
		t.Fatal("payment should not exist before refresh")
	}
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if !c.HasTable("payment") {
		t.Error("payment should exist after refresh")
	}
	assertSQLMock(t, mock)
}

func TestBeginFailure(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	c := New(db, "public")
	err := c.Load(context.Background())
	if err == nil {
		t.Fatal("Load() should fail when the transaction cannot start")
	}
	assertSQLMock(t, mock)
}

func TestListTablesReturnsCopy(t *testing.T) {
	db, mock := newSQLMock(t)
	expectSchemaLoad(mock, []string{"film"}, [][3]string{{"film", "film_id", "integer"}})

	c := New(db, "public")
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tables := c.ListTables()
	tables[0] = "mutated"
	if c.ListTables()[0] != "film" {
		t.Error("ListTables() must not expose internal state")
	}
}
