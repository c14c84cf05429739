/*-------------------------------------------------------------------------
 *
 * pgEdge NL2SQL Explorer
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package executor

// ErrorColumn is the single column of an error result
const ErrorColumn = "Error"

// Column describes one result column
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ResultSet is a fully materialized query result, or an error result holding
// one "Error" column and one row with the message
type ResultSet struct {
	Columns []Column `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Error   string   `json:"error,omitempty"`
}

// ErrorResult builds the error shape of a ResultSet
func ErrorResult(message string) *ResultSet {
	return &ResultSet{
		Columns: []Column{{Name: ErrorColumn, Type: "text"}},
		Rows:    [][]any{{message}},
		Error:   message,
	}
}

// IsError reports whether the result is an error result
func (r *ResultSet) IsError() bool {
	return r != nil && r.Error != ""
}

// RowCount returns the number of rows, not counting the error row
func (r *ResultSet) RowCount() int {
	if r == nil || r.IsError() {
		return 0
	}
	return len(r.Rows)
}

// ColumnNames returns the column names in projection order
func (r *ResultSet) ColumnNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}
