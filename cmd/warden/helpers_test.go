// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/wardenauth/warden/internal/auth/memstore"
	"github.com/wardenauth/warden/internal/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// fastHashing keeps service construction cheap in tests.
func fastHashing(t *testing.T) {
	t.Helper()
	t.Setenv("WARDEN_HASHING__ITERATIONS", "10000")
}

func memoryOpener(sessions *memstore.SessionStore, subjects *memstore.SubjectDirectory) BackendOpener {
	return func(context.Context, *config.Config, *slog.Logger) (*Backend, error) {
		return &Backend{
			Sessions: sessions,
			Subjects: subjects,
			Ready:    func(context.Context) error { return nil },
			Close:    func() {},
		}, nil
	}
}

// execute runs cmd with args and stdin and returns what it printed.
func execute(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()

	configFile = ""
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	err := cmd.Execute()
	return out.String(), err
}
