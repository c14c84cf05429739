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
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"pgedge-nl2sql/internal/catalog"
	"pgedge-nl2sql/internal/executor"
	"pgedge-nl2sql/internal/history"
	"pgedge-nl2sql/internal/logging"
	"pgedge-nl2sql/internal/prompt"
	"pgedge-nl2sql/internal/session"
	"pgedge-nl2sql/internal/tsv"
)

// maxBodyBytes caps JSON request bodies
const maxBodyBytes = 1 << 20

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
	Tables   int    `json:"tables"`
	Sessions int    `json:"sessions"`
}

// TablesResponse is the response for GET /api/tables
type TablesResponse struct {
	Schema   string    `json:"schema"`
	Tables   []string  `json:"tables"`
	LoadedAt time.Time `json:"loaded_at"`
}

// SchemaResponse is the response for GET /api/schema
type SchemaResponse struct {
	Schema     string                     `json:"schema"`
	SchemaText string                     `json:"schema_text"`
	Columns    []catalog.ColumnDescriptor `json:"columns"`
}

// QuestionRequest is the request body for POST /api/question
type QuestionRequest struct {
	Question string `json:"question"`
}

// SQLRequest is the request body for PUT /api/sql
type SQLRequest struct {
	SQL string `json:"sql"`
}

// PreviewResponse is the response for GET /api/tables/{table}/preview
type PreviewResponse struct {
	Table  string              `json:"table"`
	Result *executor.ResultSet `json:"result"`
}

// HistoryResponse is the response for GET /api/history
type HistoryResponse struct {
	Entries []history.Entry `json:"entries"`
}

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "ok",
		Tables:   len(s.cfg.Catalog.ListTables()),
		Sessions: s.cfg.Sessions.Len(),
	}
	status := http.StatusOK
	if s.cfg.Database != nil {
		if err := s.cfg.Database.Ping(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Database = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			resp.Database = "ok"
		}
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tablesResponse())
}

func (s *Server) tablesResponse() TablesResponse {
	return TablesResponse{
		Schema:   s.cfg.Catalog.Schema(),
		Tables:   s.cfg.Catalog.ListTables(),
		LoadedAt: s.cfg.Catalog.LoadedAt(),
	}
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SchemaResponse{
		Schema:     s.cfg.Catalog.Schema(),
		SchemaText: string(s.cfg.Catalog.SchemaText()),
		Columns:    s.cfg.Catalog.ListColumns(),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Catalog.Refresh(r.Context()); err != nil {
		logging.Error("schema_refresh_failed", "error", err)
		writeError(w, http.StatusBadGateway, "schema refresh failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.tablesResponse())
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controller(w, r)
	table := chi.URLParam(r, "table")

	// SelectTable only fails on caller errors; pipeline failures are in the view
	if err := ctrl.SelectTable(r.Context(), table); err != nil {
		writeControllerError(w, err)
		return
	}

	view := ctrl.Snapshot()
	if wantsTSV(r) {
		writeTSV(w, view.Preview)
		return
	}
	writeJSON(w, http.StatusOK, PreviewResponse{Table: view.PreviewTable, Result: view.Preview})
}

func (s *Server) handleQuestion(w http.ResponseWriter, r *http.Request) {
	var req QuestionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctrl := s.controller(w, r)
	if err := ctrl.SubmitQuestion(r.Context(), req.Question); err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Snapshot())
}

func (s *Server) handleEditSQL(w http.ResponseWriter, r *http.Request) {
	var req SQLRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctrl := s.controller(w, r)
	if err := ctrl.EditSQL(req.SQL); err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Snapshot())
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controller(w, r)
	if err := ctrl.Run(r.Context()); err != nil {
		writeControllerError(w, err)
		return
	}

	view := ctrl.Snapshot()
	if wantsTSV(r) {
		writeTSV(w, view.Result)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	view := s.controller(w, r).Snapshot()
	if wantsTSV(r) {
		writeTSV(w, view.Result)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.cfg.History == nil {
		writeError(w, http.StatusNotFound, "query history is disabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	ctrl := s.controller(w, r)
	entries, err := s.cfg.History.List(r.Context(), history.Filter{
		SessionID: ctrl.ID(),
		Limit:     limit,
	})
	if err != nil {
		logging.Error("history_list_failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Entries: entries})
}

// controller returns the caller's session, issuing a cookie for new ones.
// It must run before anything is written to w.
func (s *Server) controller(w http.ResponseWriter, r *http.Request) *session.Controller {
	// A cookie that fails to decode (e.g. after a secret change) yields a
	// fresh session
	sess, _ := s.sessionStore.Get(r, cookieName)
	id, _ := sess.Values[sessionIDKey].(string)

	ctrl := s.cfg.Sessions.GetOrCreate(id)
	if ctrl.ID() != id {
		sess.Values[sessionIDKey] = ctrl.ID()
		if err := sess.Save(r, w); err != nil {
			logging.Warn("session_cookie_save_failed", "error", err)
		}
	}
	return ctrl
}

func wantsTSV(r *http.Request) bool {
	return r.URL.Query().Get("format") == "tsv"
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func writeControllerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, prompt.ErrEmptyQuestion):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("response_encode_failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeTSV(w http.ResponseWriter, rs *executor.ResultSet) {
	w.Header().Set("Content-Type", tsv.MediaType)
	w.WriteHeader(http.StatusOK)
	if err := tsv.Write(w, rs); err != nil {
		logging.Warn("response_encode_failed", "format", "tsv", "error", err)
	}
}
