/*-------------------------------------------------------------------------
 *
 * pgEdge NL2SQL Explorer
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package database

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the logging verbosity level for database operations
type LogLevel int

const (
	// LogLevelNone disables all database logging
	LogLevelNone LogLevel = iota
	// LogLevelInfo logs connections, queries and errors
	LogLevelInfo
	// LogLevelDebug adds schema loading and pool details
	LogLevelDebug
	// LogLevelTrace adds full query text and arguments
	LogLevelTrace
)

// EnvDBLogLevel selects the database log level: none, info, debug or trace
const EnvDBLogLevel = "PGEDGE_NL2SQL_DB_LOG_LEVEL"

// Logger handles logging for database operations
type Logger struct {
	mu     sync.RWMutex
	level  LogLevel
	logger *log.Logger
}

var globalLogger *Logger

func init() {
	globalLogger = &Logger{
		level:  ParseLogLevel(os.Getenv(EnvDBLogLevel)),
		logger: log.New(os.Stderr, "[DATABASE] ", log.LstdFlags),
	}
}

// ParseLogLevel converts a level name; unknown values disable logging
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return LogLevelInfo
	case "debug":
		return LogLevelDebug
	case "trace":
		return LogLevelTrace
	default:
		return LogLevelNone
	}
}

// SetLogLevel sets the global database log level
func SetLogLevel(level LogLevel) {
	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()
	globalLogger.level = level
}

// GetLogLevel returns the current log level
func GetLogLevel() LogLevel {
	globalLogger.mu.RLock()
	defer globalLogger.mu.RUnlock()
	return globalLogger.level
}

// SetLogOutput redirects database log output
func SetLogOutput(w io.Writer) {
	globalLogger.logger.SetOutput(w)
}

func (l *Logger) logf(min LogLevel, tag, format string, args ...interface{}) {
	if GetLogLevel() < min {
		return
	}
	l.logger.Printf(tag+" "+format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.logf(LogLevelInfo, "[INFO]", format, args...)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.logf(LogLevelDebug, "[DEBUG]", format, args...)
}

// Trace logs a trace message
func (l *Logger) Trace(format string, args ...interface{}) {
	l.logf(LogLevelTrace, "[TRACE]", format, args...)
}

// LogConnection logs a database connection attempt
func LogConnection(connStr string, duration time.Duration, err error) {
	sanitized := sanitizeConnStr(connStr)
	if err != nil {
		globalLogger.Info("Connection failed: connection=%s, duration=%s, error=%v",
			sanitized, duration, err)
	} else {
		globalLogger.Info("Connection succeeded: connection=%s, duration=%s",
			sanitized, duration)
	}
}

// LogConnectionDetails logs pool settings in key order
func LogConnectionDetails(connStr string, poolConfig map[string]interface{}) {
	keys := make([]string, 0, len(poolConfig))
	for k := range poolConfig {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, poolConfig[k]))
	}
	globalLogger.Debug("Connection details: connection=%s, pool_config=%s",
		sanitizeConnStr(connStr), strings.Join(parts, " "))
}

// LogSchemaLoad logs a schema catalog load
func LogSchemaLoad(schema string, tableCount, columnCount int, duration time.Duration, err error) {
	if err != nil {
		globalLogger.Info("Schema load failed: schema=%s, duration=%s, error=%v",
			schema, duration, err)
		return
	}
	globalLogger.Info("Schema loaded: schema=%s, table_count=%d, duration=%s",
		schema, tableCount, duration)
	globalLogger.Debug("Schema details: schema=%s, table_count=%d, column_count=%d",
		schema, tableCount, columnCount)
}

// LogQuery logs a query execution
func LogQuery(query string, duration time.Duration, rowCount int, err error) {
	queryPreview := truncate(strings.TrimSpace(query), 100)
	if err != nil {
		globalLogger.Info("Query failed: query=%s, duration=%s, error=%v",
			queryPreview, duration, err)
	} else {
		globalLogger.Info("Query succeeded: query=%s, row_count=%d, duration=%s",
			queryPreview, rowCount, duration)
	}
}

// LogQueryTrace logs the full query text and arguments
func LogQueryTrace(query string, args []interface{}) {
	globalLogger.Trace("Query trace: query=%s, args=%v",
		strings.TrimSpace(query), args)
}

// LogPoolStats logs connection pool statistics
func LogPoolStats(connStr string, acquiredConns, idleConns, maxConns int32) {
	globalLogger.Debug("Pool stats: connection=%s, acquired=%d, idle=%d, max=%d",
		sanitizeConnStr(connStr), acquiredConns, idleConns, maxConns)
}

// sanitizeConnStr masks the password in a URL-style connection string
func sanitizeConnStr(connStr string) string {
	schemeIdx := strings.Index(connStr, "://")
	if schemeIdx == -1 {
		return sanitizeKeywordConnStr(connStr)
	}

	scheme := connStr[:schemeIdx+3]
	rest := connStr[schemeIdx+3:]

	// Passwords may contain @ or /, so prefer the last @ in the string
	end := len(rest)
	if i := strings.IndexAny(rest, "/?"); i != -1 && strings.LastIndex(rest, "@") < i {
		end = i
	}
	hostSepIdx := strings.LastIndex(rest[:end], "@")
	if hostSepIdx == -1 {
		return connStr
	}

	credentials := rest[:hostSepIdx]
	colonIdx := strings.Index(credentials, ":")
	if colonIdx == -1 {
		return connStr
	}

	return scheme + credentials[:colonIdx] + ":***@" + rest[hostSepIdx+1:]
}

// sanitizeKeywordConnStr masks password=... in key/value connection strings
func sanitizeKeywordConnStr(connStr string) string {
	fields := strings.Fields(connStr)
	for i, f := range fields {
		if strings.HasPrefix(strings.ToLower(f), "password=") {
			fields[i] = "password=***"
		}
	}
	return strings.Join(fields, " ")
}

// truncate truncates a string to maxLen characters, adding "..." if truncated
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
