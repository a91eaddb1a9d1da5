// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenauth/warden/internal/auth"
	"github.com/wardenauth/warden/internal/auth/memstore"
	"github.com/wardenauth/warden/internal/config"
	"github.com/wardenauth/warden/pkg/errutil"
)

type sessionsFixture struct {
	sessions *memstore.SessionStore
	subjects *memstore.SubjectDirectory
	alice    *auth.Subject
}

func newSessionsFixture(t *testing.T) *sessionsFixture {
	t.Helper()
	t.Setenv("WARDEN_TOKEN__SECRET", testSecret)
	fastHashing(t)

	hasher, err := auth.NewHasher(auth.HasherConfig{Iterations: auth.MinIterations})
	require.NoError(t, err)
	credential, err := hasher.Hash("correct horse battery staple")
	require.NoError(t, err)

	subjects := memstore.NewSubjectDirectory()
	alice, err := subjects.Add("alice", credential)
	require.NoError(t, err)

	return &sessionsFixture{
		sessions: memstore.NewSessionStore(),
		subjects: subjects,
		alice:    alice,
	}
}

func (f *sessionsFixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newSessionsCmdWithOpener(memoryOpener(f.sessions, f.subjects))
	return execute(t, cmd, "", append(args, "--store", "memory")...)
}

func (f *sessionsFixture) isActive(t *testing.T, sessionID string) bool {
	t.Helper()
	_, err := f.sessions.FindActive(context.Background(), sessionID, time.Now())
	return err == nil
}

func TestSessionsList(t *testing.T) {
	f := newSessionsFixture(t)

	output, err := f.run(t, "list", "alice")
	require.NoError(t, err)
	assert.Equal(t, "No active sessions\n", output)

	now := time.Now()
	older := addSession(t, f.sessions, f.alice.ID, time.Hour, now.Add(-10*time.Minute))
	newer := addSession(t, f.sessions, f.alice.ID, time.Hour, now)
	addSession(t, f.sessions, f.alice.ID, time.Hour, now.Add(-2*time.Hour))
	addSession(t, f.sessions, "01JOTHER", time.Hour, now)

	output, err = f.run(t, "list", "alice")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(output), "\n")
	require.Len(t, lines, 3, "header plus the two active sessions")
	assert.True(t, strings.HasPrefix(lines[0], "SESSION"))
	assert.True(t, strings.HasPrefix(lines[1], newer.ID), "newest first")
	assert.True(t, strings.HasPrefix(lines[2], older.ID))
	assert.Contains(t, lines[1], "203.0.113.7")
	assert.True(t, strings.HasSuffix(lines[1], "-"), "empty device shown as a dash")
}

func TestSessionsRevoke(t *testing.T) {
	t.Run("one session", func(t *testing.T) {
		f := newSessionsFixture(t)
		target := addSession(t, f.sessions, f.alice.ID, time.Hour, time.Now())
		other := addSession(t, f.sessions, f.alice.ID, time.Hour, time.Now())

		output, err := f.run(t, "revoke", "alice", target.ID)
		require.NoError(t, err)
		assert.Equal(t, "Session revoked\n", output)
		assert.False(t, f.isActive(t, target.ID))
		assert.True(t, f.isActive(t, other.ID))
	})

	t.Run("another subject's session is untouched", func(t *testing.T) {
		f := newSessionsFixture(t)
		foreign := addSession(t, f.sessions, "01JOTHER", time.Hour, time.Now())

		_, err := f.run(t, "revoke", "alice", foreign.ID)
		require.NoError(t, err)
		assert.True(t, f.isActive(t, foreign.ID))
	})

	t.Run("all", func(t *testing.T) {
		f := newSessionsFixture(t)
		first := addSession(t, f.sessions, f.alice.ID, time.Hour, time.Now())
		second := addSession(t, f.sessions, f.alice.ID, time.Hour, time.Now())

		output, err := f.run(t, "revoke", "alice", "--all")
		require.NoError(t, err)
		assert.Equal(t, "Revoked 2 sessions\n", output)
		assert.False(t, f.isActive(t, first.ID))
		assert.False(t, f.isActive(t, second.ID))
	})
}

func TestSessions_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code string
	}{
		{name: "unknown login", args: []string{"list", "mallory"}, code: auth.CodeSubjectNotFound},
		{name: "unknown login on revoke", args: []string{"revoke", "mallory", "--all"}, code: auth.CodeSubjectNotFound},
		{name: "neither id nor all", args: []string{"revoke", "alice"}, code: "INVALID_ARGUMENTS"},
		{name: "both id and all", args: []string{"revoke", "alice", "some-id", "--all"}, code: "INVALID_ARGUMENTS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSessionsFixture(t)
			_, err := f.run(t, tt.args...)
			errutil.AssertErrorCode(t, err, tt.code)
		})
	}

	t.Run("directory outage", func(t *testing.T) {
		f := newSessionsFixture(t)
		subjects := &unreachableDirectory{SubjectDirectory: f.subjects}
		cmd := newSessionsCmdWithOpener(func(context.Context, *config.Config, *slog.Logger) (*Backend, error) {
			return &Backend{Sessions: f.sessions, Subjects: subjects, Close: func() {}}, nil
		})

		_, err := execute(t, cmd, "", "list", "alice", "--store", "memory")
		require.ErrorIs(t, err, auth.ErrStoreUnavailable)
		assert.False(t, errors.Is(err, auth.ErrSubjectNotFound))
		errutil.AssertErrorCode(t, err, auth.CodeStoreUnavailable)
		errutil.AssertErrorContext(t, err, "login", "alice")
	})

	t.Run("missing secret", func(t *testing.T) {
		f := newSessionsFixture(t)
		t.Setenv("WARDEN_TOKEN__SECRET", "")
		_, err := f.run(t, "list", "alice")
		require.ErrorIs(t, err, auth.ErrConfiguration)
	})
}

// unreachableDirectory fails every login lookup as a down database would.
type unreachableDirectory struct {
	*memstore.SubjectDirectory
}

func (d *unreachableDirectory) FindByLogin(context.Context, string) (*auth.Subject, error) {
	return nil, errors.New("dial tcp 10.0.0.5:5432: connect: connection refused")
}
