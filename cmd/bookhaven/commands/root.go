package commands

import (
	"fmt"
	"log/slog"
	"os"

	"bookhaven/pkg/config"
	"bookhaven/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	// Global flags, each overriding its environment variable when set.
	flagEnv        string
	flagLogLevel   string
	flagStore      string
	flagSQLitePath string
)

var rootCmd = &cobra.Command{
	Use:   "bookhaven",
	Short: "BookHaven library lending service",
	Long: `BookHaven serves the library catalog, borrowing and review API.

Configuration is read from the environment (STORE_DRIVER, DB_HOST, LOAN_PERIOD, ...)
and may be overridden with the flags below.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagEnv, "env", "", "Environment name (production enables JSON logs)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagStore, "store", "", "Store driver: memory, sqlite or postgres")
	rootCmd.PersistentFlags().StringVar(&flagSQLitePath, "sqlite-path", "", "SQLite database file")
}

// loadConfig reads the environment, applies flag overrides and builds the logger.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	overrideString(cmd, "env", &cfg.Env, flagEnv)
	overrideString(cmd, "log-level", &cfg.LogLevel, flagLogLevel)
	overrideString(cmd, "store", &cfg.Store.Driver, flagStore)
	overrideString(cmd, "sqlite-path", &cfg.Store.SQLitePath, flagSQLitePath)

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, logger.New(os.Stdout, cfg.Env, cfg.LogLevel), nil
}

func overrideString(cmd *cobra.Command, name string, dst *string, value string) {
	if f := cmd.Flag(name); f != nil && f.Changed {
		*dst = value
	}
}
