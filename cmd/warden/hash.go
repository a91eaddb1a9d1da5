// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package main

import (
	"bufio"
	"io"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/wardenauth/warden/internal/auth"
	"github.com/wardenauth/warden/internal/config"
)

func newHashCmd() *cobra.Command {
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Hash a password read from stdin",
		Long: `Read a password from the first line of stdin and print its encoded
credential, for seeding subjects by hand.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runHash(cmd, cfg)
		},
	}

	cmd.Flags().String("scheme", defaults.Hashing.Scheme, "hashing scheme (pbkdf2-sha256 or argon2id)")
	cmd.Flags().Int("iterations", defaults.Hashing.Iterations, "PBKDF2 iteration count")
	return cmd
}

func runHash(cmd *cobra.Command, cfg *config.Config) error {
	password, err := readPassword(cmd.InOrStdin())
	if err != nil {
		return err
	}
	credential, err := hashPassword(cfg, password)
	if err != nil {
		return err
	}
	cmd.Println(credential)
	return nil
}

func hashPassword(cfg *config.Config, password string) (string, error) {
	hasher, err := auth.NewHasher(cfg.HasherConfig())
	if err != nil {
		return "", err //nolint:wrapcheck // auth errors already carry codes
	}
	return hasher.Hash(password) //nolint:wrapcheck // auth errors already carry codes
}

// readPassword returns the first line of r without its line ending.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", oops.Code(auth.CodeEmptyPassword).Wrap(auth.ErrEmptyPassword)
	}
	return password, nil
}
