/*-------------------------------------------------------------------------
 *
 * pgEdge NL2SQL Explorer - interactive shell
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package shell is a readline front end on a single session controller.
// Plain input is treated as a question; backslash commands edit, run and
// inspect the session.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"pgedge-nl2sql/internal/catalog"
	"pgedge-nl2sql/internal/history"
	"pgedge-nl2sql/internal/prompt"
	"pgedge-nl2sql/internal/session"
	"pgedge-nl2sql/internal/termui"
)

const defaultHistoryLimit = 20

// Catalog is the schema catalog as seen by the shell
type Catalog interface {
	Schema() string
	ListTables() []string
	SchemaText() catalog.SchemaText
	Refresh(ctx context.Context) error
}

// HistoryLister reads recorded session actions
type HistoryLister interface {
	List(ctx context.Context, f history.Filter) ([]history.Entry, error)
}

// Options configures a Shell
type Options struct {
	Controller  *session.Controller
	Catalog     Catalog
	History     HistoryLister // optional
	UI          *termui.UI
	HistoryFile string // readline input history; empty disables it
}

// Shell is an interactive session
type Shell struct {
	ctrl        *session.Controller
	catalog     Catalog
	history     HistoryLister
	ui          *termui.UI
	historyFile string
}

// New creates a shell
func New(opts Options) *Shell {
	return &Shell{
		ctrl:        opts.Controller,
		catalog:     opts.Catalog,
		history:     opts.History,
		ui:          opts.UI,
		historyFile: opts.HistoryFile,
	}
}

// Command is a parsed backslash command
type Command struct {
	Name string
	Arg  string
}

// ParseCommand parses a backslash command; ok is false for plain input
func ParseCommand(input string) (cmd Command, ok bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "\\") {
		return Command{}, false
	}

	name, arg, _ := strings.Cut(input[1:], " ")
	return Command{
		Name: strings.ToLower(name),
		Arg:  strings.TrimSpace(arg),
	}, true
}

// Run reads input until EOF, interrupt, \quit or ctx cancellation
func (s *Shell) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            s.ui.Prompt(),
		HistoryFile:       s.historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "\\quit",
		HistorySearchFold: true,
		AutoComplete:      s.completer(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	// Closing readline makes Readline() return
	go func() {
		<-ctx.Done()
		rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) || ctx.Err() != nil {
				fmt.Println()
				s.ui.PrintSystemMessage("Goodbye!")
				return nil
			}
			return fmt.Errorf("readline error: %w", err)
		}

		if quit := s.Execute(ctx, line); quit {
			s.ui.PrintSystemMessage("Goodbye!")
			return nil
		}
	}
}

// completer offers command names and, after \preview, table names
func (s *Shell) completer() readline.AutoCompleter {
	tables := func(string) []string {
		return s.catalog.ListTables()
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("\\sql"),
		readline.PcItem("\\run"),
		readline.PcItem("\\show"),
		readline.PcItem("\\preview", readline.PcItemDynamic(tables)),
		readline.PcItem("\\tables"),
		readline.PcItem("\\schema"),
		readline.PcItem("\\refresh"),
		readline.PcItem("\\history"),
		readline.PcItem("\\help"),
		readline.PcItem("\\quit"),
	)
}

// Execute handles one line of input and reports whether the shell should
// exit
func (s *Shell) Execute(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	cmd, isCommand := ParseCommand(input)
	if !isCommand {
		s.ask(ctx, input)
		return false
	}

	switch cmd.Name {
	case "q", "quit", "exit":
		return true
	case "h", "help", "?":
		s.ui.PrintHelp()
	case "sql", "edit":
		s.editSQL(cmd.Arg)
	case "run", "r":
		s.run(ctx)
	case "show":
		view := s.ctrl.Snapshot()
		s.ui.PrintSQL(view.SQL)
		s.ui.PrintResult(view.Result)
	case "preview", "p":
		s.preview(ctx, cmd.Arg)
	case "tables", "dt":
		s.ui.PrintTables(s.catalog.Schema(), s.catalog.ListTables())
	case "schema":
		s.ui.PrintSchema(string(s.catalog.SchemaText()))
	case "refresh":
		s.refresh(ctx)
	case "history":
		s.showHistory(ctx, cmd.Arg)
	default:
		s.ui.PrintError(fmt.Sprintf("Unknown command: \\%s (type \\help for available commands)", cmd.Name))
	}
	return false
}

func (s *Shell) ask(ctx context.Context, question string) {
	done := make(chan struct{})
	spinnerDone := make(chan struct{})
	go func() {
		s.ui.ShowThinking(ctx, done)
		close(spinnerDone)
	}()

	err := s.ctrl.SubmitQuestion(ctx, question)
	close(done)
	<-spinnerDone

	if err != nil {
		s.printControllerError(err)
		return
	}

	view := s.ctrl.Snapshot()
	if view.GenerationError != "" {
		s.ui.PrintError(view.GenerationError)
		return
	}
	s.ui.PrintSQL(view.SQL)
	s.ui.PrintSystemMessage("Use \\run to execute, or \\sql <statement> to edit.")
}

func (s *Shell) editSQL(sql string) {
	if sql == "" {
		s.ui.PrintError("Usage: \\sql <statement>")
		return
	}
	if err := s.ctrl.EditSQL(sql); err != nil {
		s.printControllerError(err)
		return
	}
	s.ui.PrintSQL(sql)
}

func (s *Shell) run(ctx context.Context) {
	if err := s.ctrl.Run(ctx); err != nil {
		s.printControllerError(err)
		return
	}
	s.ui.PrintResult(s.ctrl.Snapshot().Result)
}

func (s *Shell) preview(ctx context.Context, table string) {
	if table == "" {
		s.ui.PrintError("Usage: \\preview <table>")
		return
	}
	if err := s.ctrl.SelectTable(ctx, table); err != nil {
		s.printControllerError(err)
		return
	}
	s.ui.PrintResult(s.ctrl.Snapshot().Preview)
}

func (s *Shell) refresh(ctx context.Context) {
	if err := s.catalog.Refresh(ctx); err != nil {
		s.ui.PrintError(fmt.Sprintf("Schema refresh failed: %v", err))
		return
	}
	s.ui.PrintSystemMessage(fmt.Sprintf("Schema reloaded: %d tables", len(s.catalog.ListTables())))
}

func (s *Shell) showHistory(ctx context.Context, arg string) {
	if s.history == nil {
		s.ui.PrintError("Query history is disabled")
		return
	}

	limit := defaultHistoryLimit
	if arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			s.ui.PrintError("Usage: \\history [count]")
			return
		}
		limit = n
	}

	entries, err := s.history.List(ctx, history.Filter{SessionID: s.ctrl.ID(), Limit: limit})
	if err != nil {
		s.ui.PrintError(fmt.Sprintf("Failed to read history: %v", err))
		return
	}
	s.ui.PrintHistory(entries)
}

func (s *Shell) printControllerError(err error) {
	if errors.Is(err, prompt.ErrEmptyQuestion) {
		s.ui.PrintError("Please enter a question")
		return
	}
	s.ui.PrintError(err.Error())
}
