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
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Supported language model providers
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// Safety gate modes
const (
	SafetyModeStrict = "strict"
	SafetyModePrefix = "prefix"
)

// Config represents the complete application configuration
type Config struct {
	// HTTP server configuration
	HTTP HTTPConfig `yaml:"http"`

	// Database connection configuration
	Database DatabaseConfig `yaml:"database"`

	// Language model configuration
	LLM LLMConfig `yaml:"llm"`

	// Read-only gate configuration
	Safety SafetyConfig `yaml:"safety"`

	// Query execution settings
	Query QueryConfig `yaml:"query"`

	// Interactive session settings
	Session SessionConfig `yaml:"session"`

	// Query history settings
	History HistoryConfig `yaml:"history"`

	// Path to a .env file loaded before environment variables are applied
	EnvFile string `yaml:"env_file"`
}

// HTTPConfig holds HTTP/HTTPS server settings
type HTTPConfig struct {
	Address       string    `yaml:"address"`
	TLS           TLSConfig `yaml:"tls"`
	SessionSecret string    `yaml:"session_secret"` // Cookie signing key (random per process when empty)
}

// TLSConfig holds TLS/HTTPS settings
type TLSConfig struct {
	Enabled   bool   `yaml:"enabled"`
	CertFile  string `yaml:"cert_file"`
	KeyFile   string `yaml:"key_file"`
	ChainFile string `yaml:"chain_file"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`      // Full connection string (overrides the discrete fields)
	Host     string `yaml:"host"`     // Database host (default: localhost)
	Port     int    `yaml:"port"`     // Database port (default: 5432)
	Database string `yaml:"database"` // Database name (default: postgres)
	User     string `yaml:"user"`     // Database user
	Password string `yaml:"password"` // Database password (optional, .pgpass is used when empty)
	SSLMode  string `yaml:"sslmode"`  // SSL mode: disable, prefer, require, verify-ca, verify-full
	Schema   string `yaml:"schema"`   // Schema that is introspected and previewed (default: public)

	// Connection pool settings
	PoolMaxConns        int    `yaml:"pool_max_conns"`          // Maximum number of connections (default: 4)
	PoolMinConns        int    `yaml:"pool_min_conns"`          // Minimum number of connections (default: 0)
	PoolMaxConnIdleTime string `yaml:"pool_max_conn_idle_time"` // Max idle time before a connection is closed (default: 30m)

	// Server-side statement timeout applied to every session (empty or 0 disables)
	StatementTimeout string `yaml:"statement_timeout"`
}

// LLMConfig holds language model settings
type LLMConfig struct {
	Provider            string `yaml:"provider"`               // "openai", "anthropic", or "ollama"
	Model               string `yaml:"model"`                  // Provider-specific model name (provider default when empty)
	BaseURL             string `yaml:"base_url"`               // API base URL (provider default when empty)
	OpenAIAPIKey        string `yaml:"openai_api_key"`         // API key for OpenAI (direct - discouraged, use api_key_file or env var)
	OpenAIAPIKeyFile    string `yaml:"openai_api_key_file"`    // Path to file containing OpenAI API key
	AnthropicAPIKey     string `yaml:"anthropic_api_key"`      // API key for Anthropic (direct - discouraged)
	AnthropicAPIKeyFile string `yaml:"anthropic_api_key_file"` // Path to file containing Anthropic API key
	Timeout             string `yaml:"timeout"`                // HTTP timeout for a single completion (default: 60s)
	MaxTokens           int    `yaml:"max_tokens"`             // Maximum tokens in a completion (default: 1024)
}

// SafetyConfig holds the read-only gate settings
type SafetyConfig struct {
	Mode string `yaml:"mode"` // "strict" (single SELECT statement) or "prefix" (leading keyword only)
}

// QueryConfig holds execution settings
type QueryConfig struct {
	PreviewLimit int `yaml:"preview_limit"` // Rows returned by a table preview (default: 10)
}

// SessionConfig holds interactive session settings
type SessionConfig struct {
	IdleTimeout string `yaml:"idle_timeout"` // Sessions idle longer than this are evicted (default: 30m)
}

// HistoryConfig holds query history settings
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // SQLite file (default: <user config dir>/pgedge-nl2sql/history.db)
}

// CLIFlags represents command line flag values and whether they were explicitly set
type CLIFlags struct {
	ConfigFileSet bool
	ConfigFile    string

	EnvFile    string
	EnvFileSet bool

	// HTTP flags
	HTTPAddr    string
	HTTPAddrSet bool

	// Database flags
	DBDSN       string
	DBDSNSet    bool
	DBHost      string
	DBHostSet   bool
	DBPort      int
	DBPortSet   bool
	DBName      string
	DBNameSet   bool
	DBUser      string
	DBUserSet   bool
	DBPassword  string
	DBPassSet   bool
	DBSSLMode   string
	DBSSLSet    bool
	DBSchema    string
	DBSchemaSet bool

	// LLM flags
	LLMProvider    string
	LLMProviderSet bool
	LLMModel       string
	LLMModelSet    bool

	// Safety flags
	SafetyMode    string
	SafetyModeSet bool
}

// LoadConfig loads configuration with proper priority:
// 1. Command line flags (highest priority)
// 2. Environment variables (including those loaded from a .env file)
// 3. Configuration file
// 4. Hard-coded defaults (lowest priority)
func LoadConfig(configPath string, cliFlags CLIFlags) (*Config, error) {
	cfg := defaultConfig()

	if configPath != "" {
		if err := loadConfigFile(configPath, cfg); err != nil {
			// If file was explicitly specified, error out
			if cliFlags.ConfigFileSet || !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	if cliFlags.EnvFileSet {
		cfg.EnvFile = cliFlags.EnvFile
	}
	if err := loadEnvFile(cfg.EnvFile, cliFlags.EnvFileSet); err != nil {
		return nil, err
	}

	applyEnvironmentVariables(cfg)
	applyCLIFlags(cfg, cliFlags)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns configuration with hard-coded defaults
func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address: ":8000",
			TLS: TLSConfig{
				Enabled:   false,
				CertFile:  "./server.crt",
				KeyFile:   "./server.key",
				ChainFile: "",
			},
		},
		Database: DatabaseConfig{
			Host:                "localhost",
			Port:                5432,
			Database:            "postgres",
			SSLMode:             "prefer",
			Schema:              "public",
			PoolMaxConns:        4,
			PoolMinConns:        0,
			PoolMaxConnIdleTime: "30m",
			StatementTimeout:    "30s",
		},
		LLM: LLMConfig{
			Provider:  ProviderOpenAI,
			Model:     "",
			Timeout:   "60s",
			MaxTokens: 1024,
		},
		Safety: SafetyConfig{
			Mode: SafetyModeStrict,
		},
		Query: QueryConfig{
			PreviewLimit: 10,
		},
		Session: SessionConfig{
			IdleTimeout: "30m",
		},
		History: HistoryConfig{
			Enabled: true,
		},
		EnvFile: ".env",
	}
}

// loadConfigFile overlays a YAML file onto cfg; keys absent from the file
// keep their current values
func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadEnvFile loads variables from a .env file without overriding variables
// that are already set. A missing default file is not an error.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if explicit {
			return fmt.Errorf("env file %s: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// setStringFromEnv sets a string config value from an environment variable if it exists
func setStringFromEnv(dest *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dest = val
	}
}

// setStringFromEnvWithFallback sets a string config value from an environment variable,
// checking multiple environment variable names in priority order
func setStringFromEnvWithFallback(dest *string, keys ...string) {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			*dest = val
			return
		}
	}
}

// setBoolFromEnv sets a boolean config value from an environment variable if it exists
// Accepts "true", "1", or "yes" as true values
func setBoolFromEnv(dest *bool, key string) {
	if val := os.Getenv(key); val != "" {
		*dest = val == "true" || val == "1" || val == "yes"
	}
}

// setIntFromEnvWithFallback sets an integer config value from the first
// environment variable that holds a valid integer
func setIntFromEnvWithFallback(dest *int, keys ...string) {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			if intVal, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
				*dest = intVal
				return
			}
		}
	}
}

// applyEnvironmentVariables overrides config with environment variables if they exist.
// PGEDGE_NL2SQL_ variables win over the short names used by earlier deployments
// (DB_HOST, OPENAI_API_KEY, PORT, ...), which win over libpq's PG* variables.
func applyEnvironmentVariables(cfg *Config) {
	// HTTP
	if port := os.Getenv("PORT"); port != "" {
		cfg.HTTP.Address = ":" + port
	}
	setStringFromEnv(&cfg.HTTP.Address, "PGEDGE_NL2SQL_HTTP_ADDRESS")
	setBoolFromEnv(&cfg.HTTP.TLS.Enabled, "PGEDGE_NL2SQL_TLS_ENABLED")
	setStringFromEnv(&cfg.HTTP.TLS.CertFile, "PGEDGE_NL2SQL_TLS_CERT_FILE")
	setStringFromEnv(&cfg.HTTP.TLS.KeyFile, "PGEDGE_NL2SQL_TLS_KEY_FILE")
	setStringFromEnv(&cfg.HTTP.TLS.ChainFile, "PGEDGE_NL2SQL_TLS_CHAIN_FILE")
	setStringFromEnv(&cfg.HTTP.SessionSecret, "PGEDGE_NL2SQL_SESSION_SECRET")

	// Database
	setStringFromEnvWithFallback(&cfg.Database.DSN, "PGEDGE_NL2SQL_DB_DSN", "DATABASE_URL")
	setStringFromEnvWithFallback(&cfg.Database.Host, "PGEDGE_NL2SQL_DB_HOST", "DB_HOST")
	setIntFromEnvWithFallback(&cfg.Database.Port, "PGEDGE_NL2SQL_DB_PORT", "DB_PORT")
	setStringFromEnvWithFallback(&cfg.Database.Database, "PGEDGE_NL2SQL_DB_NAME", "DB_NAME")
	setStringFromEnvWithFallback(&cfg.Database.User, "PGEDGE_NL2SQL_DB_USER", "DB_USER")
	setStringFromEnvWithFallback(&cfg.Database.Password, "PGEDGE_NL2SQL_DB_PASSWORD", "DB_PASSWORD")
	setStringFromEnv(&cfg.Database.SSLMode, "PGEDGE_NL2SQL_DB_SSLMODE")
	setStringFromEnv(&cfg.Database.Schema, "PGEDGE_NL2SQL_DB_SCHEMA")
	setIntFromEnvWithFallback(&cfg.Database.PoolMaxConns, "PGEDGE_NL2SQL_DB_POOL_MAX_CONNS")
	setStringFromEnv(&cfg.Database.StatementTimeout, "PGEDGE_NL2SQL_DB_STATEMENT_TIMEOUT")

	// Also support standard PostgreSQL environment variables for convenience
	if cfg.Database.Host == "localhost" {
		setStringFromEnv(&cfg.Database.Host, "PGHOST")
	}
	if cfg.Database.Port == 5432 {
		setIntFromEnvWithFallback(&cfg.Database.Port, "PGPORT")
	}
	if cfg.Database.Database == "postgres" {
		setStringFromEnv(&cfg.Database.Database, "PGDATABASE")
	}
	if cfg.Database.User == "" {
		setStringFromEnv(&cfg.Database.User, "PGUSER")
	}
	if cfg.Database.Password == "" {
		setStringFromEnv(&cfg.Database.Password, "PGPASSWORD")
	}
	if cfg.Database.SSLMode == "prefer" {
		setStringFromEnv(&cfg.Database.SSLMode, "PGSSLMODE")
	}

	// LLM
	setStringFromEnv(&cfg.LLM.Provider, "PGEDGE_NL2SQL_LLM_PROVIDER")
	setStringFromEnv(&cfg.LLM.Model, "PGEDGE_NL2SQL_LLM_MODEL")
	setStringFromEnv(&cfg.LLM.BaseURL, "PGEDGE_NL2SQL_LLM_BASE_URL")
	setStringFromEnv(&cfg.LLM.Timeout, "PGEDGE_NL2SQL_LLM_TIMEOUT")
	setIntFromEnvWithFallback(&cfg.LLM.MaxTokens, "PGEDGE_NL2SQL_LLM_MAX_TOKENS")
	// API key loading priority: env vars > api_key_file > direct config value
	setStringFromEnvWithFallback(&cfg.LLM.OpenAIAPIKey, "PGEDGE_NL2SQL_OPENAI_API_KEY", "OPENAI_API_KEY")
	setStringFromEnvWithFallback(&cfg.LLM.AnthropicAPIKey, "PGEDGE_NL2SQL_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	if os.Getenv("PGEDGE_NL2SQL_OPENAI_API_KEY") == "" && os.Getenv("OPENAI_API_KEY") == "" && cfg.LLM.OpenAIAPIKeyFile != "" {
		if key, err := readAPIKeyFromFile(cfg.LLM.OpenAIAPIKeyFile); err == nil && key != "" {
			cfg.LLM.OpenAIAPIKey = key
		}
	}
	if os.Getenv("PGEDGE_NL2SQL_ANTHROPIC_API_KEY") == "" && os.Getenv("ANTHROPIC_API_KEY") == "" && cfg.LLM.AnthropicAPIKeyFile != "" {
		if key, err := readAPIKeyFromFile(cfg.LLM.AnthropicAPIKeyFile); err == nil && key != "" {
			cfg.LLM.AnthropicAPIKey = key
		}
	}

	// Safety, query, session, history
	setStringFromEnv(&cfg.Safety.Mode, "PGEDGE_NL2SQL_SAFETY_MODE")
	setIntFromEnvWithFallback(&cfg.Query.PreviewLimit, "PGEDGE_NL2SQL_PREVIEW_LIMIT")
	setStringFromEnv(&cfg.Session.IdleTimeout, "PGEDGE_NL2SQL_SESSION_IDLE_TIMEOUT")
	setBoolFromEnv(&cfg.History.Enabled, "PGEDGE_NL2SQL_HISTORY_ENABLED")
	setStringFromEnv(&cfg.History.Path, "PGEDGE_NL2SQL_HISTORY_PATH")
}

// applyCLIFlags overrides config with CLI flags if they were explicitly set
func applyCLIFlags(cfg *Config, flags CLIFlags) {
	if flags.HTTPAddrSet {
		cfg.HTTP.Address = flags.HTTPAddr
	}

	// Database
	if flags.DBDSNSet {
		cfg.Database.DSN = flags.DBDSN
	}
	if flags.DBHostSet {
		cfg.Database.Host = flags.DBHost
	}
	if flags.DBPortSet {
		cfg.Database.Port = flags.DBPort
	}
	if flags.DBNameSet {
		cfg.Database.Database = flags.DBName
	}
	if flags.DBUserSet {
		cfg.Database.User = flags.DBUser
	}
	if flags.DBPassSet {
		cfg.Database.Password = flags.DBPassword
	}
	if flags.DBSSLSet {
		cfg.Database.SSLMode = flags.DBSSLMode
	}
	if flags.DBSchemaSet {
		cfg.Database.Schema = flags.DBSchema
	}

	// LLM
	if flags.LLMProviderSet {
		cfg.LLM.Provider = flags.LLMProvider
	}
	if flags.LLMModelSet {
		cfg.LLM.Model = flags.LLMModel
	}

	if flags.SafetyModeSet {
		cfg.Safety.Mode = flags.SafetyMode
	}
}

// validateConfig checks if the configuration is valid
func validateConfig(cfg *Config) error {
	switch cfg.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderOllama:
	default:
		return fmt.Errorf("unsupported LLM provider %q (expected openai, anthropic, or ollama)", cfg.LLM.Provider)
	}

	switch cfg.Safety.Mode {
	case SafetyModeStrict, SafetyModePrefix:
	default:
		return fmt.Errorf("unsupported safety mode %q (expected strict or prefix)", cfg.Safety.Mode)
	}

	if cfg.HTTP.TLS.Enabled {
		if cfg.HTTP.TLS.CertFile == "" {
			return fmt.Errorf("TLS certificate file is required when HTTPS is enabled")
		}
		if cfg.HTTP.TLS.KeyFile == "" {
			return fmt.Errorf("TLS key file is required when HTTPS is enabled")
		}
	}

	if cfg.Query.PreviewLimit <= 0 {
		return fmt.Errorf("query.preview_limit must be positive, got %d", cfg.Query.PreviewLimit)
	}
	if cfg.Database.Schema == "" {
		return fmt.Errorf("database.schema must not be empty")
	}
	if cfg.Database.PoolMaxConns < 0 || cfg.Database.PoolMinConns < 0 {
		return fmt.Errorf("database pool sizes must not be negative")
	}

	durations := map[string]string{
		"database.pool_max_conn_idle_time": cfg.Database.PoolMaxConnIdleTime,
		"database.statement_timeout":       cfg.Database.StatementTimeout,
		"llm.timeout":                      cfg.LLM.Timeout,
		"session.idle_timeout":             cfg.Session.IdleTimeout,
	}
	for name, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	return nil
}

// RequireDatabase reports whether enough settings exist to open a connection
func (cfg *DatabaseConfig) RequireDatabase() error {
	if cfg.DSN == "" && cfg.User == "" {
		return fmt.Errorf("database user is required (set via --db-user, PGEDGE_NL2SQL_DB_USER, DB_USER, PGUSER, or config file) or provide a full DSN")
	}
	return nil
}

// APIKey returns the credential for the configured provider
func (cfg *LLMConfig) APIKey() string {
	switch cfg.Provider {
	case ProviderOpenAI:
		return cfg.OpenAIAPIKey
	case ProviderAnthropic:
		return cfg.AnthropicAPIKey
	default:
		return ""
	}
}

// RequireCredential fails when the provider needs an API key that is missing
func (cfg *LLMConfig) RequireCredential() error {
	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return fmt.Errorf("OpenAI API key is not set (use OPENAI_API_KEY, PGEDGE_NL2SQL_OPENAI_API_KEY, or llm.openai_api_key_file)")
		}
	case ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return fmt.Errorf("Anthropic API key is not set (use ANTHROPIC_API_KEY, PGEDGE_NL2SQL_ANTHROPIC_API_KEY, or llm.anthropic_api_key_file)")
		}
	}
	return nil
}

// TimeoutDuration returns the completion timeout
func (cfg *LLMConfig) TimeoutDuration() time.Duration {
	return parseDurationOr(cfg.Timeout, 60*time.Second)
}

// IdleTimeoutDuration returns the session idle timeout
func (cfg *SessionConfig) IdleTimeoutDuration() time.Duration {
	return parseDurationOr(cfg.IdleTimeout, 30*time.Minute)
}

// StatementTimeoutDuration returns the server-side statement timeout, or 0
func (cfg *DatabaseConfig) StatementTimeoutDuration() time.Duration {
	return parseDurationOr(cfg.StatementTimeout, 0)
}

// ResolvePath returns the history database path, falling back to the user
// configuration directory
func (cfg *HistoryConfig) ResolvePath() (string, error) {
	if cfg.Path != "" {
		return expandHome(cfg.Path)
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config directory: %w", err)
	}
	return filepath.Join(dir, "pgedge-nl2sql", "history.db"), nil
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func expandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, path[1:]), nil
}

// readAPIKeyFromFile reads an API key from a file
// Returns the key with whitespace trimmed, or empty string if file doesn't exist or is empty
func readAPIKeyFromFile(filePath string) (string, error) {
	if filePath == "" {
		return "", nil
	}

	filePath, err := expandHome(filePath)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return "", nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read API key file %s: %w", filePath, err)
	}

	return strings.TrimSpace(string(data)), nil
}

// GetDefaultConfigPath returns the default config file path
// Searches /etc/pgedge/nl2sql/ first, then the binary directory
func GetDefaultConfigPath(binaryPath string) string {
	systemPath := "/etc/pgedge/nl2sql/pgedge-nl2sql.yaml"
	if _, err := os.Stat(systemPath); err == nil {
		return systemPath
	}

	dir := filepath.Dir(binaryPath)
	return filepath.Join(dir, "pgedge-nl2sql.yaml")
}

// BuildConnectionString creates a PostgreSQL connection string from DatabaseConfig.
// A configured DSN is returned unchanged. If password is not set, pgx will
// look it up from the .pgpass file.
func (cfg *DatabaseConfig) BuildConnectionString() string {
	if cfg.DSN != "" {
		return cfg.DSN
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   "/" + cfg.Database,
	}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else {
		u.User = url.User(cfg.User)
	}
	if cfg.SSLMode != "" {
		u.RawQuery = "sslmode=" + url.QueryEscape(cfg.SSLMode)
	}

	return u.String()
}

// ConfigFileExists checks if a config file exists at the given path
func ConfigFileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
