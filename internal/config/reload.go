/*-------------------------------------------------------------------------
 *
 * pgEdge NL2SQL Explorer
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package config

import (
	"fmt"
	"sync"

	"pgedge-nl2sql/internal/logging"
)

// ReloadableConfig wraps a Config with thread-safe access and reload capability
type ReloadableConfig struct {
	mu       sync.RWMutex
	config   *Config
	path     string
	cliFlags CLIFlags
	onReload []func(*Config)
}

// NewReloadableConfig creates a new reloadable configuration
func NewReloadableConfig(config *Config, path string, cliFlags CLIFlags) *ReloadableConfig {
	return &ReloadableConfig{
		config:   config,
		path:     path,
		cliFlags: cliFlags,
		onReload: make([]func(*Config), 0),
	}
}

// Get returns the current configuration (read-only access)
func (rc *ReloadableConfig) Get() *Config {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.config
}

// Reload reloads the configuration from the file.
// Returns an error if the reload fails, but keeps the old config.
func (rc *ReloadableConfig) Reload() error {
	rc.mu.Lock()

	if rc.path == "" {
		rc.mu.Unlock()
		return fmt.Errorf("no configuration file path set")
	}

	// LoadConfig validates and applies CLI flags internally
	newConfig, err := LoadConfig(rc.path, rc.cliFlags)
	if err != nil {
		rc.mu.Unlock()
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logRestartRequiredSettings(rc.config, newConfig)

	rc.config = newConfig
	callbacks := make([]func(*Config), len(rc.onReload))
	copy(callbacks, rc.onReload)
	rc.mu.Unlock()

	for _, callback := range callbacks {
		callback(newConfig)
	}

	logging.Info("configuration reloaded",
		"path", rc.path,
		"llm_provider", newConfig.LLM.Provider,
		"llm_model", newConfig.LLM.Model,
		"safety_mode", newConfig.Safety.Mode,
	)

	return nil
}

// logRestartRequiredSettings logs settings that changed but only take
// effect after a restart
func logRestartRequiredSettings(old, newConfig *Config) {
	if old.HTTP.Address != newConfig.HTTP.Address {
		logging.Warn("http.address changed - requires restart")
	}
	if old.HTTP.TLS != newConfig.HTTP.TLS {
		logging.Warn("http.tls changed - requires restart")
	}
	if old.Database.BuildConnectionString() != newConfig.Database.BuildConnectionString() {
		logging.Warn("database connection settings changed - requires restart")
	}
	if old.Database.Schema != newConfig.Database.Schema {
		logging.Warn("database.schema changed - requires restart")
	}
	if old.History != newConfig.History {
		logging.Warn("history settings changed - requires restart")
	}
}

// OnReload registers a callback to be called when configuration is reloaded.
// The callback receives the new configuration.
func (rc *ReloadableConfig) OnReload(fn func(*Config)) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.onReload = append(rc.onReload, fn)
}

// GetPath returns the configuration file path
func (rc *ReloadableConfig) GetPath() string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.path
}
