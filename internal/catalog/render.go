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

import "strings"

// SchemaText is the prompt-ready rendering of a schema: one
// "table: column (type)" line per column
type SchemaText string

// RenderSchemaText renders columns in the order given. Lines are joined with
// "\n" and there is no trailing newline.
func RenderSchemaText(columns []ColumnDescriptor) SchemaText {
	var sb strings.Builder
	for i, col := range columns {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(col.TableName)
		sb.WriteString(": ")
		sb.WriteString(col.ColumnName)
		sb.WriteString(" (")
		sb.WriteString(col.DataType)
		sb.WriteString(")")
	}
	return SchemaText(sb.String())
}

// String returns the text
func (s SchemaText) String() string {
	return string(s)
}
