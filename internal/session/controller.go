/*-------------------------------------------------------------------------
 *
 * pgEdge NL2SQL Explorer
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package session implements the interaction state machine that ties user
// actions to the query pipeline.
//
// A Controller owns one session: the staged SQL, the last question, the
// last generation error, the query result and the table preview. Pipeline
// failures never escape as errors; they are stored in the presented state
// in place of the expected output. Only caller mistakes (empty question,
// overlapping actions) are returned.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pgedge-nl2sql/internal/apperr"
	"pgedge-nl2sql/internal/catalog"
	"pgedge-nl2sql/internal/executor"
	"pgedge-nl2sql/internal/history"
	"pgedge-nl2sql/internal/logging"
	"pgedge-nl2sql/internal/metrics"
	"pgedge-nl2sql/internal/prompt"
	"pgedge-nl2sql/internal/safety"
)

// ErrBusy is returned when a generate or run action is already in flight
// for the session
var ErrBusy = errors.New("another request is already in progress for this session")

// State is the position of a session in the interaction flow
type State int

const (
	StateIdle State = iota
	StateGenerating
	StateEditable
	StateExecuting
	StateDisplaying
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGenerating:
		return "generating"
	case StateEditable:
		return "editable"
	case StateExecuting:
		return "executing"
	case StateDisplaying:
		return "displaying"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Generator produces candidate SQL for a prompt
type Generator interface {
	Generate(ctx context.Context, p prompt.Prompt) (string, error)
}

// Executor runs SQL and table previews
type Executor interface {
	Run(ctx context.Context, query string) (*executor.ResultSet, error)
	Preview(ctx context.Context, table string) (*executor.ResultSet, error)
}

// Schema is the read side of the catalog
type Schema interface {
	SchemaText() catalog.SchemaText
	HasTable(name string) bool
}

// Gate decides whether SQL may reach the executor
type Gate interface {
	Check(candidate string) error
}

// Recorder persists a log of session actions
type Recorder interface {
	Record(ctx context.Context, e history.Entry) error
}

// Deps are the collaborators shared by every session. History and Metrics
// are optional; a nil Gate means the strict safety gate.
type Deps struct {
	Generator Generator
	Executor  Executor
	Schema    Schema
	Gate      Gate
	History   Recorder
	Metrics   *metrics.Metrics
}

// View is a copy of what a session presents. Result sets are shared with
// the controller and must not be modified.
type View struct {
	SessionID       string              `json:"session_id"`
	State           State               `json:"state"`
	Question        string              `json:"question,omitempty"`
	SQL             string              `json:"sql"`
	GenerationError string              `json:"generation_error,omitempty"`
	Result          *executor.ResultSet `json:"result,omitempty"`
	PreviewTable    string              `json:"preview_table,omitempty"`
	Preview         *executor.ResultSet `json:"preview,omitempty"`
}

// Controller is the state machine for one session
type Controller struct {
	id   string
	deps Deps
	now  func() time.Time

	// busy guards generate and run; previews do not take it
	busy       atomic.Bool
	lastActive atomic.Int64

	mu           sync.Mutex
	state        State
	question     string
	sql          string
	genErr       string
	result       *executor.ResultSet
	previewTable string
	preview      *executor.ResultSet
}

// NewController creates an idle session
func NewController(id string, deps Deps) *Controller {
	if deps.Gate == nil {
		deps.Gate = safety.Gate{}
	}
	c := &Controller{id: id, deps: deps, now: time.Now}
	c.touch()
	return c
}

// ID returns the session identifier
func (c *Controller) ID() string {
	return c.id
}

func (c *Controller) touch() {
	c.lastActive.Store(c.now().UnixNano())
}

// LastActive returns when the session last handled an action
func (c *Controller) LastActive() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

// Busy reports whether a generate or run action is in flight
func (c *Controller) Busy() bool {
	return c.busy.Load()
}

// SubmitQuestion generates SQL for question. An empty question returns
// prompt.ErrEmptyQuestion without calling the model or changing state. On
// success the candidate is replaced; on failure the candidate is kept and
// the failure message is stored for display.
func (c *Controller) SubmitQuestion(ctx context.Context, question string) error {
	p, err := prompt.Build(question, c.deps.Schema.SchemaText())
	if err != nil {
		return err
	}
	if !c.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer c.busy.Store(false)
	c.touch()

	question = strings.TrimSpace(question)
	c.mu.Lock()
	c.state = StateGenerating
	c.question = question
	c.mu.Unlock()

	start := time.Now()
	candidate, genErr := c.deps.Generator.Generate(ctx, p)
	elapsed := time.Since(start)

	c.mu.Lock()
	if genErr != nil {
		c.genErr = apperr.Message(genErr)
	} else {
		c.sql = candidate
		c.genErr = ""
	}
	c.state = StateEditable
	c.mu.Unlock()

	if genErr != nil {
		logging.Warn("sql_generation_failed", "session", c.id, "error", genErr)
	}
	c.deps.Metrics.ObserveGeneration(elapsed, genErr)
	c.record(ctx, history.Entry{
		Kind:       history.KindGenerate,
		Question:   question,
		SQL:        candidate,
		DurationMS: elapsed.Milliseconds(),
	}, genErr)

	return nil
}

// EditSQL replaces the staged candidate
func (c *Controller) EditSQL(sql string) error {
	if c.busy.Load() {
		return ErrBusy
	}
	c.touch()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sql = sql
	c.state = StateEditable
	return nil
}

// Run checks the staged candidate with the safety gate and executes it when
// approved. The previous result is always replaced: by the new rows, or by
// an error result for a rejection or a database failure. Rejected SQL never
// reaches the executor.
func (c *Controller) Run(ctx context.Context) error {
	if !c.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer c.busy.Store(false)
	c.touch()

	c.mu.Lock()
	candidate := c.sql
	c.state = StateExecuting
	c.mu.Unlock()

	start := time.Now()
	result, err := c.execute(ctx, candidate)
	elapsed := time.Since(start)

	c.mu.Lock()
	c.result = result
	c.state = StateDisplaying
	c.mu.Unlock()

	if err != nil {
		logging.Info("query_not_executed", "session", c.id, "kind", apperr.KindOf(err).String(), "error", err)
	}
	c.deps.Metrics.ObserveExecution(elapsed, err)
	c.record(ctx, history.Entry{
		Kind:       history.KindRun,
		SQL:        candidate,
		RowCount:   result.RowCount(),
		DurationMS: elapsed.Milliseconds(),
	}, err)

	return nil
}

func (c *Controller) execute(ctx context.Context, candidate string) (*executor.ResultSet, error) {
	if err := c.deps.Gate.Check(candidate); err != nil {
		return executor.ErrorResult(apperr.Message(err)), err
	}
	result, err := c.deps.Executor.Run(ctx, candidate)
	if err != nil {
		return executor.ErrorResult(apperr.Message(err)), err
	}
	return result, nil
}

// SelectTable shows the first rows of table. It runs independently of the
// generate/run flow and never touches the staged SQL. Tables missing from
// the inventory produce an error result without a database round trip.
func (c *Controller) SelectTable(ctx context.Context, table string) error {
	c.touch()

	var (
		result *executor.ResultSet
		err    error
	)
	start := time.Now()
	if !c.deps.Schema.HasTable(table) {
		err = apperr.Execution(fmt.Errorf("table %q is not in the schema", table))
	} else {
		result, err = c.deps.Executor.Preview(ctx, table)
	}
	if err != nil {
		result = executor.ErrorResult(apperr.Message(err))
	}
	elapsed := time.Since(start)

	c.mu.Lock()
	c.previewTable = table
	c.preview = result
	c.mu.Unlock()

	c.deps.Metrics.ObservePreview(err)
	c.record(ctx, history.Entry{
		Kind:       history.KindPreview,
		Table:      table,
		RowCount:   result.RowCount(),
		DurationMS: elapsed.Milliseconds(),
	}, err)

	return nil
}

// Snapshot returns the presented state
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{
		SessionID:       c.id,
		State:           c.state,
		Question:        c.question,
		SQL:             c.sql,
		GenerationError: c.genErr,
		Result:          c.result,
		PreviewTable:    c.previewTable,
		Preview:         c.preview,
	}
}

// record writes a history entry; failures are logged and dropped
func (c *Controller) record(ctx context.Context, e history.Entry, err error) {
	if c.deps.History == nil {
		return
	}
	e.SessionID = c.id
	e.Outcome = metrics.Outcome(err)
	if err != nil {
		e.Message = apperr.Message(err)
	}
	if recErr := c.deps.History.Record(context.WithoutCancel(ctx), e); recErr != nil {
		logging.Warn("history_record_failed", "session", c.id, "kind", e.Kind, "error", recErr)
	}
}
