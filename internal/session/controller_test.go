/*-------------------------------------------------------------------------
 *
 * pgEdge NL2SQL Explorer
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package session

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"pgedge-nl2sql/internal/apperr"
	"pgedge-nl2sql/internal/catalog"
	"pgedge-nl2sql/internal/executor"
	"pgedge-nl2sql/internal/history"
	"pgedge-nl2sql/internal/llm"
	"pgedge-nl2sql/internal/prompt"
	"pgedge-nl2sql/internal/safety"
)

type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	prompts []prompt.Prompt
	sql     string
	err     error
}

func (g *fakeGenerator) Generate(_ context.Context, p prompt.Prompt) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.prompts = append(g.prompts, p)
	return g.sql, g.err
}

type fakeExecutor struct {
	mu       sync.Mutex
	runs     []string
	previews []string
	result   *executor.ResultSet
	err      error
}

func (e *fakeExecutor) Run(_ context.Context, query string) (*executor.ResultSet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runs = append(e.runs, query)
	return e.result, e.err
}

func (e *fakeExecutor) Preview(_ context.Context, table string) (*executor.ResultSet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.previews = append(e.previews, table)
	return e.result, e.err
}

type fakeSchema struct {
	text   catalog.SchemaText
	tables map[string]bool
}

func (s fakeSchema) SchemaText() catalog.SchemaText { return s.text }
func (s fakeSchema) HasTable(name string) bool      { return s.tables[name] }

type fakeRecorder struct {
	mu      sync.Mutex
	entries []history.Entry
	err     error
}

func (r *fakeRecorder) Record(_ context.Context, e history.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return r.err
}

var filmSchema = fakeSchema{
	text:   "film: film_id (integer)\nfilm: title (text)",
	tables: map[string]bool{"film": true},
}

func filmRows() *executor.ResultSet {
	return &executor.ResultSet{
		Columns: []executor.Column{{Name: "title", Type: "TEXT"}},
		Rows:    [][]any{{"Academy Dinosaur"}, {"Ace Goldfinger"}},
	}
}

func newTestController(gen *fakeGenerator, exec *fakeExecutor) *Controller {
	return NewController("test", Deps{
		Generator: gen,
		Executor:  exec,
		Schema:    filmSchema,
	})
}

func TestNewControllerIsIdle(t *testing.T) {
	c := newTestController(&fakeGenerator{}, &fakeExecutor{})
	view := c.Snapshot()
	if view.State != StateIdle || view.SQL != "" || view.Result != nil || view.Preview != nil {
		t.Errorf("initial view = %+v", view)
	}
	if view.SessionID != "test" {
		t.Errorf("SessionID = %q", view.SessionID)
	}
}

func TestEmptyQuestionSkipsGeneration(t *testing.T) {
	gen := &fakeGenerator{sql: "SELECT 1"}
	c := newTestController(gen, &fakeExecutor{})

	for _, q := range []string{"", "   ", "\n\t"} {
		err := c.SubmitQuestion(context.Background(), q)
		if !errors.Is(err, prompt.ErrEmptyQuestion) {
			t.Errorf("SubmitQuestion(%q) error = %v, want ErrEmptyQuestion", q, err)
		}
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times, want 0", gen.calls)
	}
	if got := c.Snapshot().State; got != StateIdle {
		t.Errorf("State = %v, want idle", got)
	}
}

func TestSubmitQuestionStagesCandidate(t *testing.T) {
	gen := &fakeGenerator{sql: "SELECT title FROM film"}
	c := newTestController(gen, &fakeExecutor{})

	if err := c.SubmitQuestion(context.Background(), "  List all film titles "); err != nil {
		t.Fatalf("SubmitQuestion() error = %v", err)
	}

	view := c.Snapshot()
	if view.State != StateEditable {
		t.Errorf("State = %v, want editable", view.State)
	}
	if view.SQL != "SELECT title FROM film" {
		t.Errorf("SQL = %q", view.SQL)
	}
	if view.Question != "List all film titles" {
		t.Errorf("Question = %q", view.Question)
	}
	if len(gen.prompts) != 1 || !strings.Contains(string(gen.prompts[0]), "film: title (text)") {
		t.Errorf("prompt does not carry the schema: %v", gen.prompts)
	}
}

func TestGenerationFailureKeepsCandidate(t *testing.T) {
	gen := &fakeGenerator{sql: "SELECT title FROM film"}
	c := newTestController(gen, &fakeExecutor{})
	ctx := context.Background()

	if err := c.SubmitQuestion(ctx, "List all film titles"); err != nil {
		t.Fatalf("SubmitQuestion() error = %v", err)
	}

	gen.sql = "garbage"
	gen.err = apperr.Generation(errors.New("Error from OpenAI: API returned status 429: rate limited"))
	if err := c.SubmitQuestion(ctx, "Count films"); err != nil {
		t.Fatalf("SubmitQuestion() error = %v", err)
	}

	view := c.Snapshot()
	if view.SQL != "SELECT title FROM film" {
		t.Errorf("SQL = %q, want the previous candidate", view.SQL)
	}
	if !strings.Contains(view.GenerationError, "rate limited") {
		t.Errorf("GenerationError = %q", view.GenerationError)
	}
	if view.State != StateEditable {
		t.Errorf("State = %v, want editable", view.State)
	}

	gen.sql = "SELECT COUNT(*) FROM film"
	gen.err = nil
	if err := c.SubmitQuestion(ctx, "Count films"); err != nil {
		t.Fatalf("SubmitQuestion() error = %v", err)
	}
	if view := c.Snapshot(); view.GenerationError != "" || view.SQL != "SELECT COUNT(*) FROM film" {
		t.Errorf("successful retry view = %+v", view)
	}
}

func TestRunRejectedNeverReachesExecutor(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		gate Gate
		want string
	}{
		{"update", "UPDATE film SET title='x'", nil, safety.MsgNotSelect},
		{"empty", "", nil, safety.MsgNotSelect},
		{"comment first", "-- select\nDELETE FROM film", nil, safety.MsgNotSelect},
		{"chained strict", "SELECT 1; DROP TABLE film", nil, safety.MsgMultiStatements},
		{"drop in prefix mode", "DROP TABLE film", safety.NewPolicy(safety.ModePrefix), safety.MsgNotSelect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{result: filmRows()}
			c := NewController("test", Deps{
				Generator: &fakeGenerator{},
				Executor:  exec,
				Schema:    filmSchema,
				Gate:      tt.gate,
			})

			if err := c.EditSQL(tt.sql); err != nil {
				t.Fatalf("EditSQL() error = %v", err)
			}
			if err := c.Run(context.Background()); err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			if len(exec.runs) != 0 {
				t.Errorf("executor called with %v", exec.runs)
			}
			view := c.Snapshot()
			if !view.Result.IsError() || view.Result.Error != tt.want {
				t.Errorf("Result = %+v, want error %q", view.Result, tt.want)
			}
			if view.SQL != tt.sql {
				t.Errorf("SQL changed to %q", view.SQL)
			}
			if view.State != StateDisplaying {
				t.Errorf("State = %v, want displaying", view.State)
			}
		})
	}
}

func TestExecutorFailureReplacesResult(t *testing.T) {
	exec := &fakeExecutor{result: filmRows()}
	c := newTestController(&fakeGenerator{}, exec)
	ctx := context.Background()

	_ = c.EditSQL("SELECT title FROM film")
	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := c.Snapshot().Result.RowCount(); got != 2 {
		t.Fatalf("RowCount() = %d, want 2", got)
	}

	exec.result = nil
	exec.err = apperr.Execution(errors.New(`column "nope" does not exist`))
	_ = c.EditSQL("SELECT nope FROM film")
	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	result := c.Snapshot().Result
	if !result.IsError() {
		t.Fatalf("Result = %+v, want error result", result)
	}
	if len(result.Columns) != 1 || result.Columns[0].Name != executor.ErrorColumn {
		t.Errorf("Columns = %+v", result.Columns)
	}
	if len(result.Rows) != 1 || result.Rows[0][0] != `column "nope" does not exist` {
		t.Errorf("Rows = %+v", result.Rows)
	}
}

func TestSelectTable(t *testing.T) {
	exec := &fakeExecutor{result: filmRows()}
	gen := &fakeGenerator{sql: "SELECT title FROM film"}
	c := newTestController(gen, exec)
	ctx := context.Background()

	_ = c.SubmitQuestion(ctx, "List all film titles")
	before := c.Snapshot()

	if err := c.SelectTable(ctx, "film"); err != nil {
		t.Fatalf("SelectTable() error = %v", err)
	}
	view := c.Snapshot()
	if view.PreviewTable != "film" || view.Preview.RowCount() != 2 {
		t.Errorf("preview = %q %+v", view.PreviewTable, view.Preview)
	}
	if view.SQL != before.SQL || view.State != before.State {
		t.Errorf("preview changed SQL state: %+v", view)
	}

	if err := c.SelectTable(ctx, "film; DROP TABLE film"); err != nil {
		t.Fatalf("SelectTable() error = %v", err)
	}
	if len(exec.previews) != 1 {
		t.Errorf("unknown table reached the executor: %v", exec.previews)
	}
	if !c.Snapshot().Preview.IsError() {
		t.Error("unknown table should produce an error result")
	}
}

type blockingGenerator struct {
	entered chan struct{}
	release chan struct{}
}

func (g *blockingGenerator) Generate(ctx context.Context, _ prompt.Prompt) (string, error) {
	close(g.entered)
	<-g.release
	return "SELECT 1", nil
}

func TestBusyGuard(t *testing.T) {
	gen := &blockingGenerator{entered: make(chan struct{}), release: make(chan struct{})}
	exec := &fakeExecutor{result: filmRows()}
	c := NewController("test", Deps{Generator: gen, Executor: exec, Schema: filmSchema})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- c.SubmitQuestion(ctx, "anything") }()
	<-gen.entered

	if got := c.Snapshot().State; got != StateGenerating {
		t.Errorf("State = %v, want generating", got)
	}
	if err := c.SubmitQuestion(ctx, "again"); !errors.Is(err, ErrBusy) {
		t.Errorf("second SubmitQuestion() error = %v, want ErrBusy", err)
	}
	if err := c.Run(ctx); !errors.Is(err, ErrBusy) {
		t.Errorf("Run() error = %v, want ErrBusy", err)
	}
	if err := c.EditSQL("SELECT 2"); !errors.Is(err, ErrBusy) {
		t.Errorf("EditSQL() error = %v, want ErrBusy", err)
	}
	if err := c.SelectTable(ctx, "film"); err != nil {
		t.Errorf("SelectTable() should not be blocked, got %v", err)
	}

	close(gen.release)
	if err := <-done; err != nil {
		t.Fatalf("SubmitQuestion() error = %v", err)
	}
	if len(exec.runs) != 0 {
		t.Errorf("executor ran during generation: %v", exec.runs)
	}
	if c.Busy() {
		t.Error("controller still busy after generation finished")
	}
	if err := c.Run(ctx); err != nil {
		t.Errorf("Run() after generation error = %v", err)
	}
}

func TestHistoryRecording(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("disk full")}
	gen := &fakeGenerator{sql: "SELECT title FROM film"}
	exec := &fakeExecutor{result: filmRows()}
	c := NewController("s-1", Deps{Generator: gen, Executor: exec, Schema: filmSchema, History: rec})
	ctx := context.Background()

	_ = c.SubmitQuestion(ctx, "List all film titles")
	_ = c.Run(ctx)
	_ = c.EditSQL("DELETE FROM film")
	_ = c.Run(ctx)
	_ = c.SelectTable(ctx, "film")

	if len(rec.entries) != 4 {
		t.Fatalf("recorded %d entries, want 4", len(rec.entries))
	}
	want := []struct {
		kind    string
		outcome string
		rows    int
	}{
		{history.KindGenerate, "ok", 0},
		{history.KindRun, "ok", 2},
		{history.KindRun, "safety_rejection", 0},
		{history.KindPreview, "ok", 2},
	}
	for i, w := range want {
		e := rec.entries[i]
		if e.Kind != w.kind || e.Outcome != w.outcome || e.RowCount != w.rows || e.SessionID != "s-1" {
			t.Errorf("entries[%d] = %+v, want %+v", i, e, w)
		}
	}
	if rec.entries[2].Message != safety.MsgNotSelect {
		t.Errorf("rejection message = %q", rec.entries[2].Message)
	}
}

type stubCompleter struct {
	reply string
}

func (s stubCompleter) Complete(context.Context, []llm.Message, float64) (string, error) {
	return s.reply, nil
}

func (s stubCompleter) ProviderName() string { return "Stub" }

func newFilmPipeline(t *testing.T, reply string) (*Controller, sqlmock.Sqlmock, *catalog.Catalog) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectBegin()
	mock.ExpectQuery("FROM information_schema.tables").WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("film"))
	mock.ExpectQuery("FROM information_schema.columns").WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "data_type"}).
			AddRow("film", "film_id", "integer").
			AddRow("film", "title", "text"))
	mock.ExpectRollback()

	cat := catalog.New(db, "public")
	if err := cat.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	c := NewController("e2e", Deps{
		Generator: llm.NewGenerator(stubCompleter{reply: reply}),
		Executor:  executor.New(db, executor.Options{}),
		Schema:    cat,
		Gate:      safety.NewPolicy(safety.ModeStrict),
	})
	return c, mock, cat
}

func TestEndToEndFilmTitles(t *testing.T) {
	c, mock, cat := newFilmPipeline(t, "\n  SELECT title FROM film \n")
	ctx := context.Background()

	p, err := prompt.Build("List all film titles", cat.SchemaText())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !strings.Contains(string(p), "film: title (text)") || !strings.Contains(string(p), "List all film titles") {
		t.Errorf("prompt missing schema line or question:\n%s", p)
	}

	if err := c.SubmitQuestion(ctx, "List all film titles"); err != nil {
		t.Fatalf("SubmitQuestion() error = %v", err)
	}
	if got := c.Snapshot().SQL; got != "SELECT title FROM film" {
		t.Fatalf("SQL = %q", got)
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT title FROM film")).
		WillReturnRows(sqlmock.NewRows([]string{"title"}).
			AddRow("Academy Dinosaur").
			AddRow("Ace Goldfinger"))
	mock.ExpectRollback()

	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	result := c.Snapshot().Result
	if result.IsError() {
		t.Fatalf("Result error = %s", result.Error)
	}
	if got := result.ColumnNames(); len(got) != 1 || got[0] != "title" {
		t.Errorf("ColumnNames() = %v", got)
	}
	want := [][]any{{"Academy Dinosaur"}, {"Ace Goldfinger"}}
	if len(result.Rows) != len(want) {
		t.Fatalf("Rows = %v", result.Rows)
	}
	for i := range want {
		if result.Rows[i][0] != want[i][0] {
			t.Errorf("Rows[%d] = %v, want %v", i, result.Rows[i], want[i])
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sql expectations: %v", err)
	}
}

func TestEndToEndUpdateRejected(t *testing.T) {
	c, mock, _ := newFilmPipeline(t, "SELECT title FROM film")
	ctx := context.Background()

	if err := c.EditSQL("UPDATE film SET title='x'"); err != nil {
		t.Fatalf("EditSQL() error = %v", err)
	}
	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	result := c.Snapshot().Result
	if result.Error != "Only SELECT queries are allowed" {
		t.Errorf("Result.Error = %q", result.Error)
	}
	// A statement reaching the mock would have failed with an unexpected call
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected sql interaction: %v", err)
	}
}
