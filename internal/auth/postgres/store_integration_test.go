// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenauth/warden/internal/auth"
	"github.com/wardenauth/warden/internal/auth/authtest"
	"github.com/wardenauth/warden/internal/auth/postgres"
)

// createSubject inserts a subject and removes it, with its sessions, when
// the test ends.
func createSubject(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	subject, err := postgres.NewSubjectStore(testPool).Create(ctx, "user-"+ulid.Make().String(), "cred")
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = testPool.Exec(ctx, `DELETE FROM subjects WHERE id = $1`, subject.ID)
	})
	return subject.ID
}

func TestSessionStore_Integration(t *testing.T) {
	authtest.RunSessionStoreTests(t, func(t *testing.T) authtest.Harness {
		return authtest.Harness{
			Sessions:   postgres.NewSessionStore(testPool),
			NewSubject: createSubject,
		}
	})
}

func TestSessionStore_RevokedAtIsKept(t *testing.T) {
	ctx := context.Background()
	store := postgres.NewSessionStore(testPool)
	now := time.Now().UTC().Truncate(time.Second)

	session, err := auth.NewSession(createSubject(t), time.Hour, auth.ClientInfo{}, now)
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, session))

	require.NoError(t, store.Revoke(ctx, session.ID, now))
	require.NoError(t, store.Revoke(ctx, session.ID, now.Add(time.Hour)))

	var revokedAt time.Time
	err = testPool.QueryRow(ctx, `SELECT revoked_at FROM sessions WHERE id = $1`, session.ID).Scan(&revokedAt)
	require.NoError(t, err)
	assert.True(t, now.Equal(revokedAt), "second revoke must not move revoked_at")
}

func TestSubjectStore_Integration(t *testing.T) {
	ctx := context.Background()
	subjects := postgres.NewSubjectStore(testPool)
	login := "Mixed-" + ulid.Make().String()

	subject, err := subjects.Create(ctx, login, "cred-1")
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = testPool.Exec(ctx, `DELETE FROM subjects WHERE id = $1`, subject.ID)
	})

	_, err = subjects.Create(ctx, login, "cred-2")
	assert.ErrorIs(t, err, postgres.ErrLoginTaken)

	found, err := subjects.FindByLogin(ctx, "mixed-"+login[len("Mixed-"):])
	require.NoError(t, err)
	assert.Equal(t, subject.ID, found.ID)
	assert.Nil(t, found.LastLoginAt)

	require.NoError(t, subjects.UpdateCredential(ctx, subject.ID, "cred-3"))
	at := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, subjects.RecordLogin(ctx, subject.ID, at))

	got, err := subjects.Get(ctx, subject.ID)
	require.NoError(t, err)
	assert.Equal(t, "cred-3", got.Credential)
	require.NotNil(t, got.LastLoginAt)
	assert.True(t, at.Equal(*got.LastLoginAt))

	_, err = subjects.Get(ctx, ulid.Make().String())
	assert.ErrorIs(t, err, auth.ErrNotFound)
}
