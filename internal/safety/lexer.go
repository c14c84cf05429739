/*-------------------------------------------------------------------------
 *
 * pgEdge NL2SQL Explorer
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package safety

import "strings"

// CountStatements returns the number of non-empty statements in sql,
// splitting on semicolons outside string literals, quoted identifiers,
// dollar-quoted bodies and comments. A statement holding only comments or
// whitespace is empty. Unterminated literals run to the end of the input.
func CountStatements(sql string) int {
	count := 0
	hasContent := false
	n := len(sql)

	for i := 0; i < n; {
		c := sql[i]
		switch {
		case c == '-' && i+1 < n && sql[i+1] == '-':
			i = skipLineComment(sql, i+2)

		case c == '/' && i+1 < n && sql[i+1] == '*':
			i = skipBlockComment(sql, i+2)

		case c == '\'':
			hasContent = true
			escapes := i > 0 && (sql[i-1] == 'e' || sql[i-1] == 'E') && !isIdentChar(sql, i-2)
			i = skipQuoted(sql, i+1, '\'', escapes)

		case c == '"':
			hasContent = true
			i = skipQuoted(sql, i+1, '"', false)

		case c == '$':
			hasContent = true
			if tag, ok := dollarTag(sql, i); ok {
				end := strings.Index(sql[i+len(tag):], tag)
				if end == -1 {
					i = n
				} else {
					i += len(tag) + end + len(tag)
				}
			} else {
				i++
			}

		case c == ';':
			if hasContent {
				count++
			}
			hasContent = false
			i++

		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			i++

		default:
			hasContent = true
			i++
		}
	}

	if hasContent {
		count++
	}
	return count
}

func skipLineComment(sql string, i int) int {
	if end := strings.IndexByte(sql[i:], '\n'); end != -1 {
		return i + end + 1
	}
	return len(sql)
}

// skipBlockComment skips a block comment; PostgreSQL block comments nest
func skipBlockComment(sql string, i int) int {
	depth := 1
	for i < len(sql) {
		switch {
		case sql[i] == '/' && i+1 < len(sql) && sql[i+1] == '*':
			depth++
			i += 2
		case sql[i] == '*' && i+1 < len(sql) && sql[i+1] == '/':
			depth--
			i += 2
			if depth == 0 {
				return i
			}
		default:
			i++
		}
	}
	return len(sql)
}

// skipQuoted skips to just past the closing quote; a doubled quote is an
// escaped quote, and with escapes a backslash escapes the next byte
func skipQuoted(sql string, i int, quote byte, escapes bool) int {
	for i < len(sql) {
		switch sql[i] {
		case '\\':
			if escapes {
				i += 2
				continue
			}
			i++
		case quote:
			if i+1 < len(sql) && sql[i+1] == quote {
				i += 2
				continue
			}
			return i + 1
		default:
			i++
		}
	}
	return len(sql)
}

// dollarTag returns the $tag$ opening at i, if any. A $ that follows an
// identifier character is part of a name or a positional parameter.
func dollarTag(sql string, i int) (string, bool) {
	if isIdentChar(sql, i-1) {
		return "", false
	}
	j := i + 1
	for j < len(sql) && sql[j] != '$' {
		c := sql[j]
		isLetter := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
		isDigit := c >= '0' && c <= '9'
		if !isLetter && !(isDigit && j > i+1) {
			return "", false
		}
		j++
	}
	if j >= len(sql) {
		return "", false
	}
	return sql[i : j+1], true
}

func isIdentChar(sql string, i int) bool {
	if i < 0 || i >= len(sql) {
		return false
	}
	c := sql[i]
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c >= 0x80
}
