/*-------------------------------------------------------------------------
 *
 * pgEdge NL2SQL Explorer
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package api exposes the query pipeline over a small JSON HTTP API.
//
// The browser holds only a signed cookie with the session ID; the
// controller for that ID lives in a session.Manager on the server.
package api

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"golang.org/x/sync/errgroup"

	"pgedge-nl2sql/internal/catalog"
	"pgedge-nl2sql/internal/config"
	"pgedge-nl2sql/internal/history"
	"pgedge-nl2sql/internal/logging"
	"pgedge-nl2sql/internal/metrics"
	"pgedge-nl2sql/internal/session"
)

const (
	// cookieName is the name of the session cookie
	cookieName = "pgedge_nl2sql"
	// sessionIDKey is the cookie value holding the session ID
	sessionIDKey = "id"

	shutdownTimeout = 10 * time.Second
)

// SchemaCatalog is the part of the catalog the API reads and refreshes
type SchemaCatalog interface {
	Schema() string
	ListTables() []string
	ListColumns() []catalog.ColumnDescriptor
	SchemaText() catalog.SchemaText
	LoadedAt() time.Time
	Refresh(ctx context.Context) error
}

// HistoryLister reads recorded session actions
type HistoryLister interface {
	List(ctx context.Context, f history.Filter) ([]history.Entry, error)
}

// Pinger checks database connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config wires the server to the pipeline
type Config struct {
	HTTP     config.HTTPConfig
	Sessions *session.Manager
	Catalog  SchemaCatalog
	History  HistoryLister    // optional
	Database Pinger           // optional
	Metrics  *metrics.Metrics // optional
}

// Server serves the HTTP API
type Server struct {
	cfg          Config
	sessionStore *sessions.CookieStore
	router       chi.Router
}

// NewServer creates the server and its routes
func NewServer(cfg Config) (*Server, error) {
	if cfg.Sessions == nil || cfg.Catalog == nil {
		return nil, fmt.Errorf("session manager and catalog are required")
	}

	secret := []byte(cfg.HTTP.SessionSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
	}

	sessionStore := sessions.NewCookieStore(secret)
	sessionStore.Options.Path = "/"
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.SameSite = http.SameSiteLaxMode
	sessionStore.Options.Secure = cfg.HTTP.TLS.Enabled
	// Browser-session cookie; the server side is evicted on idle
	sessionStore.Options.MaxAge = 0

	s := &Server{
		cfg:          cfg,
		sessionStore: sessionStore,
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger,
		s.cfg.Metrics.Middleware(routePattern),
		middleware.Recoverer,
	)

	r.Get("/health", s.handleHealth)
	if s.cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.cfg.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/tables", s.handleTables)
		r.Get("/tables/{table}/preview", s.handlePreview)
		r.Get("/schema", s.handleSchema)
		r.Post("/schema/refresh", s.handleRefresh)
		r.Post("/question", s.handleQuestion)
		r.Put("/sql", s.handleEditSQL)
		r.Post("/run", s.handleRun)
		r.Get("/session", s.handleSession)
		r.Get("/history", s.handleHistory)
	})

	return r
}

// routePattern returns the matched chi pattern for metrics labels
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

// Serve listens on the configured address until ctx is cancelled, then
// shuts down gracefully
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.HTTP.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.HTTP.Address, err)
	}
	return s.ServeListener(ctx, listener)
}

// ServeListener serves on an existing listener
func (s *Server) ServeListener(ctx context.Context, listener net.Listener) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.router,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	tlsCfg := s.cfg.HTTP.TLS
	if tlsCfg.Enabled {
		tlsConfig, err := LoadTLSConfig(tlsCfg.CertFile, tlsCfg.KeyFile, tlsCfg.ChainFile)
		if err != nil {
			_ = listener.Close()
			return fmt.Errorf("failed to load TLS config: %w", err)
		}
		srv.TLSConfig = tlsConfig
		listener = tls.NewListener(listener, tlsConfig)
	}

	eg.Go(func() error {
		logging.Info("http_server_started",
			"address", listener.Addr().String(),
			"tls", tlsCfg.Enabled,
		)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		logging.Info("http_server_stopping")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// LoadTLSConfig loads the certificate, key and optional chain file
func LoadTLSConfig(certFile, keyFile, chainFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate and key: %w", err)
	}

	if chainFile != "" {
		chainData, err := os.ReadFile(chainFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read certificate chain: %w", err)
		}
		added := 0
		for rest := chainData; ; {
			var block *pem.Block
			block, rest = pem.Decode(rest)
			if block == nil {
				break
			}
			if block.Type == "CERTIFICATE" {
				cert.Certificate = append(cert.Certificate, block.Bytes)
				added++
			}
		}
		if added == 0 {
			return nil, fmt.Errorf("no certificates found in chain file %s", chainFile)
		}
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
