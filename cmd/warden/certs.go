// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package main

import (
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	tlscerts "github.com/wardenauth/warden/internal/tls"
	"github.com/wardenauth/warden/internal/xdg"
)

func newCertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "certs",
		Short: "Manage development TLS certificates",
	}

	var (
		dir   string
		hosts []string
		name  string
	)
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Create a CA and a gRPC server certificate",
		Long: `Create a server certificate for the gRPC listener, signed by a local CA.
An existing CA in the directory is reused so clients keep trusting it.
Intended for development; production deployments should use their own PKI.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				certsDir, err := xdg.CertsDir()
				if err != nil {
					return err //nolint:wrapcheck // xdg errors already carry codes
				}
				dir = certsDir
			}
			return runCertsGenerate(cmd, dir, name, hosts)
		},
	}
	generate.Flags().StringVar(&dir, "dir", "", "output directory (default: $XDG_CONFIG_HOME/warden/certs)")
	generate.Flags().StringSliceVar(&hosts, "host", nil, "extra DNS name or IP for the server certificate (repeatable)")
	generate.Flags().StringVar(&name, "name", serviceName, "name embedded in a new CA")
	cmd.AddCommand(generate)

	return cmd
}

func runCertsGenerate(cmd *cobra.Command, dir, name string, hosts []string) error {
	if err := xdg.EnsureDir(dir); err != nil {
		return err //nolint:wrapcheck // xdg errors already carry codes
	}

	ca, err := tlscerts.LoadCA(dir)
	switch {
	case err == nil:
		cmd.Printf("Reusing CA in %s\n", dir)
	case errors.Is(err, fs.ErrNotExist):
		ca, err = tlscerts.GenerateCA(name)
		if err != nil {
			return err //nolint:wrapcheck // tls errors already carry codes
		}
	default:
		return oops.With("dir", dir).Wrapf(err, "load existing CA")
	}

	server, err := tlscerts.GenerateServerCert(ca, hosts)
	if err != nil {
		return err //nolint:wrapcheck // tls errors already carry codes
	}
	if err := tlscerts.SaveCertificates(dir, ca, server); err != nil {
		return err //nolint:wrapcheck // tls errors already carry codes
	}

	cmd.Printf("Wrote %s, %s, %s and %s to %s\n",
		tlscerts.CACertFile, tlscerts.CAKeyFile, tlscerts.ServerCertFile, tlscerts.ServerKeyFile, dir)
	cmd.Printf("Serve with --tls-cert %s --tls-key %s\n",
		filepath.Join(dir, tlscerts.ServerCertFile), filepath.Join(dir, tlscerts.ServerKeyFile))
	return nil
}
