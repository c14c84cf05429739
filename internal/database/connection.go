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
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"pgedge-nl2sql/internal/config"
)

// ApplicationName is reported to the server unless the connection string sets one
const ApplicationName = "pgEdge NL2SQL Explorer"

// ErrNotConnected is returned when the pool is used before Connect
var ErrNotConnected = errors.New("database client is not connected")

// Client owns the read-only connection pool shared by the schema catalog and
// the query executor
type Client struct {
	cfg     *config.DatabaseConfig
	connStr string

	mu   sync.RWMutex
	pool *pgxpool.Pool
	db   *sql.DB
}

// NewClient creates a database client for the given configuration
func NewClient(cfg *config.DatabaseConfig) *Client {
	return &Client{
		cfg:     cfg,
		connStr: cfg.BuildConnectionString(),
	}
}

// Connect creates the pool and verifies the server is reachable
func (c *Client) Connect(ctx context.Context) error {
	startTime := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pool != nil {
		return nil
	}

	poolConfig, err := buildPoolConfig(c.connStr, c.cfg)
	if err != nil {
		return err
	}

	if GetLogLevel() >= LogLevelDebug {
		LogConnectionDetails(c.connStr, map[string]interface{}{
			"max_conns":          poolConfig.MaxConns,
			"min_conns":          poolConfig.MinConns,
			"max_conn_idle_time": poolConfig.MaxConnIdleTime,
			"statement_timeout":  poolConfig.ConnConfig.RuntimeParams["statement_timeout"],
		})
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		LogConnection(c.connStr, time.Since(startTime), err)
		return fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		LogConnection(c.connStr, time.Since(startTime), err)
		return fmt.Errorf("unable to ping database: %w", err)
	}

	c.pool = pool
	c.db = stdlib.OpenDBFromPool(pool)

	LogConnection(c.connStr, time.Since(startTime), nil)
	stat := pool.Stat()
	LogPoolStats(c.connStr, stat.AcquiredConns(), stat.IdleConns(), stat.MaxConns())

	return nil
}

// buildPoolConfig parses the connection string and applies pool limits and
// the session parameters every connection carries
func buildPoolConfig(connStr string, cfg *config.DatabaseConfig) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	if cfg != nil {
		if cfg.PoolMaxConns > 0 {
			poolConfig.MaxConns = int32(cfg.PoolMaxConns)
		}
		if cfg.PoolMinConns > 0 {
			poolConfig.MinConns = int32(cfg.PoolMinConns)
		}
		if cfg.PoolMaxConnIdleTime != "" {
			idleTime, err := time.ParseDuration(cfg.PoolMaxConnIdleTime)
			if err != nil {
				return nil, fmt.Errorf("invalid pool_max_conn_idle_time: %w", err)
			}
			poolConfig.MaxConnIdleTime = idleTime
		}
	}

	params := poolConfig.ConnConfig.RuntimeParams
	if params == nil {
		params = make(map[string]string)
		poolConfig.ConnConfig.RuntimeParams = params
	}

	// Every transaction on every pooled session is read-only
	params["default_transaction_read_only"] = "on"

	if params["application_name"] == "" {
		params["application_name"] = ApplicationName
	}

	if cfg != nil {
		if timeout := cfg.StatementTimeoutDuration(); timeout > 0 {
			params["statement_timeout"] = strconv.FormatInt(timeout.Milliseconds(), 10)
		}
	}

	return poolConfig, nil
}

// DB returns a database/sql handle backed by the pool
func (c *Client) DB() (*sql.DB, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.db == nil {
		return nil, ErrNotConnected
	}
	return c.db, nil
}

// Ping checks that the server is still reachable
func (c *Client) Ping(ctx context.Context) error {
	c.mu.RLock()
	pool := c.pool
	c.mu.RUnlock()
	if pool == nil {
		return ErrNotConnected
	}
	return pool.Ping(ctx)
}

// ConnString returns the connection string with the password masked
func (c *Client) ConnString() string {
	return sanitizeConnStr(c.connStr)
}

// Close closes the pool
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		c.db.Close()
		c.db = nil
	}
	if c.pool != nil {
		c.pool.Close()
		c.pool = nil
	}
}
