/*-------------------------------------------------------------------------
 *
 * pgEdge NL2SQL Explorer
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"pgedge-nl2sql/internal/logging"
	"pgedge-nl2sql/internal/metrics"
)

// requestLogger logs one line per request
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &metrics.StatusRecorder{ResponseWriter: w, Status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		keyvals := []interface{}{
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.Status,
			"bytes", recorder.Bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		}
		if recorder.Status >= http.StatusInternalServerError {
			logging.Warn("http_request", keyvals...)
			return
		}
		logging.Info("http_request", keyvals...)
	})
}
