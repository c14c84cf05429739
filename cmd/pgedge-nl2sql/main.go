/*-------------------------------------------------------------------------
 *
 * pgEdge NL2SQL Explorer
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pgedge-nl2sql/internal/config"
	"pgedge-nl2sql/internal/logging"
)

var (
	configFile string
	envFile    string
	noColor    bool
	debug      bool

	httpAddr    string
	dbDSN       string
	dbHost      string
	dbPort      int
	dbName      string
	dbUser      string
	dbPassword  string
	dbSSLMode   string
	dbSchema    string
	llmProvider string
	llmModel    string
	safetyMode  string
)

var rootCmd = &cobra.Command{
	Use:   "pgedge-nl2sql",
	Short: "pgEdge NL2SQL Explorer - ask PostgreSQL questions in plain English",
	Long: `pgedge-nl2sql turns natural-language questions into read-only SQL using a
language model that is given the live database schema. Generated SQL can be
inspected and edited before it is run; only single SELECT statements are ever
sent to the database, inside read-only transactions.

Use "serve" for the HTTP API, "shell" for an interactive session, or "ask"
for a one-shot question.`,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debug {
			logging.SetLevel(logging.LevelDebug)
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "Path to configuration file (default: /etc/pgedge/nl2sql/pgedge-nl2sql.yaml or next to the binary)")
	flags.StringVar(&envFile, "env-file", "", "Path to a .env file (default: .env)")
	flags.BoolVar(&noColor, "no-color", false, "Disable colored output")
	flags.BoolVar(&debug, "debug", false, "Enable debug logging")

	flags.StringVar(&dbDSN, "db-dsn", "", "Full PostgreSQL connection string")
	flags.StringVar(&dbHost, "db-host", "", "Database host")
	flags.IntVar(&dbPort, "db-port", 0, "Database port")
	flags.StringVar(&dbName, "db-name", "", "Database name")
	flags.StringVar(&dbUser, "db-user", "", "Database user")
	flags.StringVar(&dbPassword, "db-password", "", "Database password")
	flags.StringVar(&dbSSLMode, "db-sslmode", "", "SSL mode (disable, prefer, require, ...)")
	flags.StringVar(&dbSchema, "db-schema", "", "Schema to introspect (default: public)")
	flags.StringVar(&llmProvider, "llm-provider", "", "Language model provider: openai, anthropic or ollama")
	flags.StringVar(&llmModel, "llm-model", "", "Language model name")
	flags.StringVar(&safetyMode, "safety-mode", "", "Safety gate mode: strict or prefix")

	serveCmd.Flags().StringVar(&httpAddr, "addr", "", "HTTP listen address (default: :8000)")

	rootCmd.AddCommand(serveCmd, shellCmd, askCmd, schemaCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

// cliFlags collects the flags the user set explicitly
func cliFlags(cmd *cobra.Command) config.CLIFlags {
	changed := func(name string) bool {
		f := cmd.Flag(name)
		return f != nil && f.Changed
	}

	return config.CLIFlags{
		ConfigFileSet: changed("config"),
		ConfigFile:    configFile,
		EnvFile:       envFile,
		EnvFileSet:    changed("env-file"),

		HTTPAddr:    httpAddr,
		HTTPAddrSet: changed("addr"),

		DBDSN:       dbDSN,
		DBDSNSet:    changed("db-dsn"),
		DBHost:      dbHost,
		DBHostSet:   changed("db-host"),
		DBPort:      dbPort,
		DBPortSet:   changed("db-port"),
		DBName:      dbName,
		DBNameSet:   changed("db-name"),
		DBUser:      dbUser,
		DBUserSet:   changed("db-user"),
		DBPassword:  dbPassword,
		DBPassSet:   changed("db-password"),
		DBSSLMode:   dbSSLMode,
		DBSSLSet:    changed("db-sslmode"),
		DBSchema:    dbSchema,
		DBSchemaSet: changed("db-schema"),

		LLMProvider:    llmProvider,
		LLMProviderSet: changed("llm-provider"),
		LLMModel:       llmModel,
		LLMModelSet:    changed("llm-model"),

		SafetyMode:    safetyMode,
		SafetyModeSet: changed("safety-mode"),
	}
}

// loadConfig resolves the config file path and loads the layered
// configuration
func loadConfig(cmd *cobra.Command) (*config.Config, string, config.CLIFlags, error) {
	flags := cliFlags(cmd)

	path := configFile
	if path == "" {
		execPath, err := os.Executable()
		if err != nil {
			return nil, "", flags, fmt.Errorf("failed to get executable path: %w", err)
		}
		path = config.GetDefaultConfigPath(execPath)
	}

	cfg, err := config.LoadConfig(path, flags)
	if err != nil {
		return nil, "", flags, err
	}
	return cfg, path, flags, nil
}
