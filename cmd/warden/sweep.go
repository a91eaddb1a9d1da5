// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/wardenauth/warden/internal/auth"
	"github.com/wardenauth/warden/internal/config"
)

func newSweepCmd() *cobra.Command {
	return newSweepCmdWithOpener(openBackend)
}

func newSweepCmdWithOpener(opener BackendOpener) *cobra.Command {
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired sessions once",
		Long: `Delete sessions that expired more than the retention period ago, then
exit. Use this when the server's own sweeper is disabled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runSweep(cmd, cfg, opener)
		},
	}

	cmd.Flags().Duration("sweep-retention", defaults.Session.SweepRetention, "how long expired sessions are kept")
	addStoreFlags(cmd.Flags())
	return cmd
}

func runSweep(cmd *cobra.Command, cfg *config.Config, opener BackendOpener) error {
	if err := cfg.ValidateStore(); err != nil {
		return err //nolint:wrapcheck // config errors already carry codes
	}
	logger, err := setupLogger(cmd, cfg)
	if err != nil {
		return err
	}

	backend, err := opener(cmd.Context(), cfg, logger)
	if err != nil {
		return oops.With("store", cfg.Store.Backend).Wrapf(err, "open store")
	}
	defer backend.Close()

	sweeper, err := auth.NewSweeper(backend.Sessions, auth.SweeperConfig{
		Retention: cfg.Session.SweepRetention,
		Logger:    logger,
	})
	if err != nil {
		return err //nolint:wrapcheck // auth errors already carry codes
	}

	purged, err := sweeper.RunOnce(cmd.Context())
	if err != nil {
		return err //nolint:wrapcheck // auth errors already carry codes
	}
	cmd.Printf("Purged %d expired sessions\n", purged)
	return nil
}
