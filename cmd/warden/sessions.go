// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/wardenauth/warden/internal/auth"
)

func newSessionsCmd() *cobra.Command {
	return newSessionsCmdWithOpener(openBackend)
}

func newSessionsCmdWithOpener(opener BackendOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and revoke a subject's sessions",
	}
	addStoreFlags(cmd.PersistentFlags())

	cmd.AddCommand(&cobra.Command{
		Use:   "list LOGIN",
		Short: "List the active sessions of a subject, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSubjectService(cmd, opener, args[0], func(service *auth.Service, subject *auth.Subject) error {
				sessions, err := service.ListActiveSessions(cmd.Context(), subject.ID)
				if err != nil {
					return err //nolint:wrapcheck // auth errors already carry codes
				}
				return writeSessionTable(cmd.OutOrStdout(), sessions)
			})
		},
	})

	var all bool
	revoke := &cobra.Command{
		Use:   "revoke LOGIN [SESSION_ID]",
		Short: "Revoke one session, or every session with --all",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 2) {
				return oops.Code("INVALID_ARGUMENTS").Errorf("give either a SESSION_ID or --all")
			}
			return withSubjectService(cmd, opener, args[0], func(service *auth.Service, subject *auth.Subject) error {
				if all {
					n, err := service.LogoutAllOthers(cmd.Context(), subject.ID, "")
					if err != nil {
						return err //nolint:wrapcheck // auth errors already carry codes
					}
					cmd.Printf("Revoked %d sessions\n", n)
					return nil
				}
				if err := service.RevokeSession(cmd.Context(), subject.ID, args[1]); err != nil {
					return err //nolint:wrapcheck // auth errors already carry codes
				}
				cmd.Println("Session revoked")
				return nil
			})
		},
	}
	revoke.Flags().BoolVar(&all, "all", false, "revoke every session of the subject")
	cmd.AddCommand(revoke)

	return cmd
}

// withSubjectService opens the stores, builds the service and resolves
// login before calling fn.
func withSubjectService(cmd *cobra.Command, opener BackendOpener, login string, fn func(*auth.Service, *auth.Subject) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
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

	service, err := newService(cfg, backend, auth.NewMetrics(prometheus.NewRegistry()), logger)
	if err != nil {
		return err
	}

	subject, err := backend.Subjects.FindByLogin(cmd.Context(), login)
	switch {
	case errors.Is(err, auth.ErrNotFound):
		return oops.Code(auth.CodeSubjectNotFound).With("login", login).Wrap(auth.ErrSubjectNotFound)
	case err != nil:
		return oops.Code(auth.CodeStoreUnavailable).
			With("operation", "find subject by login").
			With("login", login).
			Wrap(auth.Unavailable(err))
	}
	logger.Debug("resolved subject", slog.String("subject_id", subject.ID))
	return fn(service, subject)
}

func writeSessionTable(w io.Writer, sessions []auth.SessionSummary) error {
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, "No active sessions")
		return err //nolint:wrapcheck // output write error
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tISSUED\tLAST ACTIVE\tEXPIRES\tSOURCE\tDEVICE")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.SessionID,
			s.IssuedAt.Format(time.RFC3339),
			s.LastActivityAt.Format(time.RFC3339),
			s.ExpiresAt.Format(time.RFC3339),
			orDash(s.SourceAddress),
			orDash(s.DeviceInfo),
		)
	}
	return tw.Flush() //nolint:wrapcheck // output write error
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
