/*-------------------------------------------------------------------------
 *
 * pgEdge NL2SQL Explorer
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package tsv exports result sets as tab-separated values. NULL is written
// as an empty field; backslash, tab, newline and carriage return are escaped
// the way PostgreSQL's COPY text format does.
package tsv

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"pgedge-nl2sql/internal/executor"
)

// MediaType is the Content-Type used for TSV responses
const MediaType = "text/tab-separated-values; charset=utf-8"

var escaper = strings.NewReplacer(
	"\\", "\\\\",
	"\t", "\\t",
	"\n", "\\n",
	"\r", "\\r",
)

// FormatValue converts a result value to an escaped TSV field
func FormatValue(v any) string {
	if v == nil {
		return ""
	}

	var s string
	switch val := v.(type) {
	case string:
		s = val
	case []byte:
		s = string(val)
	case time.Time:
		s = val.Format(time.RFC3339Nano)
	case bool:
		s = strconv.FormatBool(val)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		s = fmt.Sprintf("%d", val)
	case float32:
		s = strconv.FormatFloat(float64(val), 'g', -1, 32)
	case float64:
		s = strconv.FormatFloat(val, 'g', -1, 64)
	case []any, map[string]any:
		// Arrays and JSON documents
		jsonBytes, err := json.Marshal(val)
		if err != nil {
			s = fmt.Sprintf("%v", val)
		} else {
			s = string(jsonBytes)
		}
	default:
		s = fmt.Sprintf("%v", val)
	}

	return escaper.Replace(s)
}

// BuildRow joins already-formatted values into one escaped row
func BuildRow(values ...string) string {
	escaped := make([]string, len(values))
	for i, v := range values {
		escaped[i] = escaper.Replace(v)
	}
	return strings.Join(escaped, "\t")
}

// Write streams rs to w: a header row of column names, then one line per
// row. Every line ends with a newline. An error result is written as its
// single Error column.
func Write(w io.Writer, rs *executor.ResultSet) error {
	if rs == nil || len(rs.Columns) == 0 {
		return nil
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(BuildRow(rs.ColumnNames()...) + "\n"); err != nil {
		return err
	}

	fields := make([]string, len(rs.Columns))
	for _, row := range rs.Rows {
		fields = fields[:0]
		for _, val := range row {
			fields = append(fields, FormatValue(val))
		}
		if _, err := bw.WriteString(strings.Join(fields, "\t") + "\n"); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// Format renders rs as a string
func Format(rs *executor.ResultSet) string {
	var sb strings.Builder
	_ = Write(&sb, rs)
	return sb.String()
}
