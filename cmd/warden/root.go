// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/wardenauth/warden/internal/config"
	"github.com/wardenauth/warden/internal/logging"
	"github.com/wardenauth/warden/internal/xdg"
)

const serviceName = "warden"

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the warden CLI.
func NewRootCmd() *cobra.Command {
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "warden",
		Short: "Warden - session and credential service",
		Long: `Warden issues and validates session tokens backed by a revocable
session store, and manages the password credentials they are issued for.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/warden/config.yaml if present)")
	cmd.PersistentFlags().String("log-format", defaults.Log.Format, "log format (json or text)")
	cmd.PersistentFlags().String("log-level", defaults.Log.Level, "log level (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newSweepCmd())
	cmd.AddCommand(newHashCmd())
	cmd.AddCommand(newSubjectCmd())
	cmd.AddCommand(newSessionsCmd())
	cmd.AddCommand(newCertsCmd())

	return cmd
}

// addStoreFlags registers the flags that select and reach the store.
func addStoreFlags(flags *pflag.FlagSet) {
	defaults := config.Default()
	flags.String("store", defaults.Store.Backend, "session store backend (postgres, redis or memory)")
	flags.String("database-url", "", "PostgreSQL URL (default: $DATABASE_URL)")
	flags.String("redis-addr", defaults.Store.RedisAddr, "Redis address for the redis backend")
}

// loadConfig reads the config file, environment and the command's flags.
// Without --config the XDG config file is used when it exists.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configFile
	if path == "" {
		found, err := xdg.FindConfigFile()
		if err != nil {
			return nil, err //nolint:wrapcheck // xdg errors already carry codes
		}
		path = found
	}
	//nolint:wrapcheck // config errors already carry codes
	return config.Load(path, cmd.Flags())
}

// setupLogger installs the default logger writing to the command's stderr.
func setupLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	//nolint:wrapcheck // logging errors already carry codes
	return logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Writer:  cmd.ErrOrStderr(),
	})
}
