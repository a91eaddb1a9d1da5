// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package main

import (
	"context"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/wardenauth/warden/internal/auth"
	"github.com/wardenauth/warden/internal/auth/postgres"
	"github.com/wardenauth/warden/internal/config"
	"github.com/wardenauth/warden/internal/store"
)

// SubjectCreator stores new subjects.
type SubjectCreator interface {
	Create(ctx context.Context, login, credential string) (*auth.Subject, error)
}

// SubjectCreatorFactory opens a SubjectCreator; the returned func releases it.
type SubjectCreatorFactory func(ctx context.Context, cfg *config.Config) (SubjectCreator, func(), error)

func postgresSubjectCreator(ctx context.Context, cfg *config.Config) (SubjectCreator, func(), error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, nil, oops.Code(auth.CodeConfigInvalid).
			Errorf("database URL is required: set --database-url, store.database_url or DATABASE_URL")
	}
	pool, err := store.Connect(ctx, cfg.Store.DatabaseURL, store.ConnectConfig{
		MaxConns: 1,
		Attempts: cfg.Store.ConnectRetries,
	})
	if err != nil {
		return nil, nil, err //nolint:wrapcheck // store errors already carry codes
	}
	return postgres.NewSubjectStore(pool), pool.Close, nil
}

func newSubjectCmd() *cobra.Command {
	return newSubjectCmdWithFactory(postgresSubjectCreator)
}

func newSubjectCmdWithFactory(factory SubjectCreatorFactory) *cobra.Command {
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "subject",
		Short: "Manage subjects",
	}

	add := &cobra.Command{
		Use:   "add LOGIN",
		Short: "Create a subject with a password read from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			credential, err := hashPassword(cfg, password)
			if err != nil {
				return err
			}

			creator, release, err := factory(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer release()

			subject, err := creator.Create(cmd.Context(), args[0], credential)
			if err != nil {
				return oops.With("login", args[0]).Wrapf(err, "create subject")
			}
			cmd.Printf("Created subject %s (%s)\n", subject.ID, subject.Login)
			return nil
		},
	}
	add.Flags().String("database-url", "", "PostgreSQL URL (default: $DATABASE_URL)")
	add.Flags().Int("iterations", defaults.Hashing.Iterations, "PBKDF2 iteration count")
	cmd.AddCommand(add)

	return cmd
}
