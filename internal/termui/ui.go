/*-------------------------------------------------------------------------
 *
 * pgEdge NL2SQL Explorer - terminal rendering
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package termui

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/term"

	"pgedge-nl2sql/internal/executor"
	"pgedge-nl2sql/internal/history"
	"pgedge-nl2sql/internal/tsv"
)

// Color codes for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
	ColorGray   = "\033[90m"
	ColorBold   = "\033[1m"
)

// maxRenderWidth caps glamour's word wrap on wide terminals
const maxRenderWidth = 120

// UI writes pipeline output to a terminal
type UI struct {
	out            io.Writer
	noColor        bool
	RenderMarkdown bool
}

// New creates a UI on out. Colors and markdown rendering are enabled only
// when out is a terminal and noColor is false.
func New(out io.Writer, noColor bool) *UI {
	tty := IsTerminal(out)
	return &UI{
		out:            out,
		noColor:        noColor || !tty,
		RenderMarkdown: tty,
	}
}

// IsTerminal reports whether w is an interactive terminal
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// colorize applies color if colors are enabled
func (ui *UI) colorize(color, text string) string {
	if ui.noColor {
		return text
	}
	return color + text + ColorReset
}

// PrintWelcome prints the shell banner
// ASCII art credit: https://ascii.co.uk/art/elephant
func (ui *UI) PrintWelcome(database, schema string, tables int) {
	elephant := `
          _
   ______/ \-.   _           pgEdge NL2SQL Explorer
.-/     (    o\_//           Ask a question, or type \help for commands
 |  ___  \_/\---'
 |_||  |_||
`
	fmt.Fprintln(ui.out, ui.colorize(ColorCyan, elephant))
	ui.PrintSystemMessage(fmt.Sprintf("Connected to %s (schema %s, %d tables)", database, schema, tables))
}

// Prompt returns the prompt string for readline
func (ui *UI) Prompt() string {
	return ui.colorize(ColorGreen+ColorBold, "nl2sql> ")
}

// PrintSQL prints a SQL statement, highlighted when markdown rendering is on
func (ui *UI) PrintSQL(sql string) {
	if strings.TrimSpace(sql) == "" {
		ui.PrintSystemMessage("No SQL staged. Ask a question or use \\sql <statement>.")
		return
	}

	if ui.RenderMarkdown {
		style := "dark"
		if ui.noColor {
			style = "notty"
		}
		width := ui.terminalWidth()
		if width > maxRenderWidth {
			width = maxRenderWidth
		}

		r, err := glamour.NewTermRenderer(
			glamour.WithStylePath(style),
			glamour.WithWordWrap(width),
		)
		if err == nil {
			rendered, err := r.Render("```sql\n" + sql + "\n```\n")
			if err == nil {
				fmt.Fprint(ui.out, rendered)
				return
			}
		}
	}

	fmt.Fprintln(ui.out, sql)
}

// PrintResult renders a result set as a table, or its message for an
// error result
func (ui *UI) PrintResult(rs *executor.ResultSet) {
	if rs == nil {
		ui.PrintSystemMessage("No results yet. Use \\run to execute the staged SQL.")
		return
	}
	if rs.IsError() {
		ui.PrintError(rs.Error)
		return
	}
	if err := RenderTable(ui.out, rs); err != nil {
		ui.PrintError(err.Error())
	}
}

// RenderTable writes rs as a box-drawn table followed by a row count
func RenderTable(w io.Writer, rs *executor.ResultSet) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(rs.Columns))
	for i, c := range rs.Columns {
		header[i] = c.Name
	}
	t.AppendHeader(header)

	for _, values := range rs.Rows {
		row := make(table.Row, len(values))
		for i, v := range values {
			row[i] = displayValue(v)
		}
		t.AppendRow(row)
	}

	t.Render()
	_, err := fmt.Fprintf(w, "(%d %s)\n", rs.RowCount(), plural(rs.RowCount(), "row", "rows"))
	return err
}

// displayValue formats a value for a table cell; NULL is shown explicitly
func displayValue(v any) string {
	if v == nil {
		return "NULL"
	}
	if s, ok := v.(string); ok {
		return s
	}
	return tsv.FormatValue(v)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// PrintTables lists the table inventory
func (ui *UI) PrintTables(schema string, tables []string) {
	if len(tables) == 0 {
		ui.PrintSystemMessage(fmt.Sprintf("No tables found in schema %s", schema))
		return
	}
	fmt.Fprintln(ui.out, ui.colorize(ColorBold, fmt.Sprintf("Tables in %s:", schema)))
	for _, name := range tables {
		fmt.Fprintln(ui.out, "  "+name)
	}
}

// PrintSchema prints the schema text sent to the language model
func (ui *UI) PrintSchema(text string) {
	if text == "" {
		ui.PrintSystemMessage("The schema has no columns")
		return
	}
	fmt.Fprintln(ui.out, text)
}

// PrintHistory renders history entries, newest first
func (ui *UI) PrintHistory(entries []history.Entry) {
	if len(entries) == 0 {
		ui.PrintSystemMessage("No history recorded yet")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(ui.out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"When", "Kind", "Outcome", "Rows", "ms", "Question / SQL"})
	for _, e := range entries {
		detail := e.SQL
		switch {
		case e.Kind == history.KindGenerate && e.Question != "":
			detail = e.Question
		case e.Kind == history.KindPreview:
			detail = e.Table
		}
		t.AppendRow(table.Row{
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			e.Kind,
			e.Outcome,
			e.RowCount,
			e.DurationMS,
			truncate(oneLine(detail), 60),
		})
	}
	t.Render()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// PrintSystemMessage prints an informational message
func (ui *UI) PrintSystemMessage(text string) {
	fmt.Fprintln(ui.out, ui.colorize(ColorYellow, "System: ")+text)
}

// PrintError prints an error message
func (ui *UI) PrintError(text string) {
	fmt.Fprintln(ui.out, ui.colorize(ColorRed, "Error: ")+text)
}

// PrintSeparator prints a separator line
func (ui *UI) PrintSeparator() {
	fmt.Fprintln(ui.out, ui.colorize(ColorGray, strings.Repeat("─", 80)))
}

// PrintHelp prints the shell commands
func (ui *UI) PrintHelp() {
	help := `
Type a question in plain English to generate SQL for it.

Commands:
  \sql <statement>   - Replace the staged SQL
  \run               - Check and run the staged SQL
  \show              - Show the staged SQL and the last result
  \preview <table>   - Show the first rows of a table
  \tables            - List tables
  \schema            - Show the schema sent to the language model
  \refresh           - Reload the schema from the database
  \history [n]       - Show recent history for this session
  \help              - Show this help message
  \quit              - Exit

History navigation:
  Up/Down   - Navigate through input history
  Ctrl+R    - Reverse search history
`
	fmt.Fprintln(ui.out, ui.colorize(ColorCyan, help))
}

// terminalWidth returns the output width, or 80 when it is unknown
func (ui *UI) terminalWidth() int {
	if f, ok := ui.out.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 2 {
			return width - 2
		}
	}
	return 80
}

// PostgreSQL/Elephant themed action words for animation
var elephantActions = []string{
	"Consulting the herd",
	"Trumpeting queries",
	"Roaming the schema",
	"Grazing on metadata",
	"Herding joins",
	"Dusting off tables",
	"Foraging for columns",
	"Pondering profoundly",
}

func (ui *UI) thinkingWidth() int {
	maxWidth := 40
	for _, action := range elephantActions {
		if width := len(action) + 5; width > maxWidth {
			maxWidth = width
		}
	}
	return maxWidth
}

// ShowThinking animates a spinner until done is closed or ctx ends. It is a
// no-op when output is not a terminal.
func (ui *UI) ShowThinking(ctx context.Context, done <-chan struct{}) {
	if !IsTerminal(ui.out) {
		<-done
		return
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	frame := 0
	action := elephantActions[rand.Intn(len(elephantActions))]
	width := ui.thinkingWidth()
	blank := "\r" + strings.Repeat(" ", width) + "\r"

	for {
		msg := ui.colorize(ColorCyan, frames[frame]) + " " + ui.colorize(ColorGray, action+"...")
		fmt.Fprint(ui.out, "\r"+msg)

		select {
		case <-done:
			fmt.Fprint(ui.out, blank)
			return
		case <-ctx.Done():
			fmt.Fprint(ui.out, blank)
			return
		case <-ticker.C:
			frame = (frame + 1) % len(frames)
			if frame == 0 {
				action = elephantActions[rand.Intn(len(elephantActions))]
			}
		}
	}
}
