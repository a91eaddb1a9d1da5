// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

// Package authtest provides a behavioural test suite shared by every
// auth.SessionStore implementation.
package authtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenauth/warden/internal/auth"
)

// Harness is what a store implementation hands to the suite.
type Harness struct {
	Sessions auth.SessionStore
	// NewSubject returns the ID of a subject that sessions may reference.
	NewSubject func(t *testing.T) string
}

// RunSessionStoreTests exercises store semantics against a fresh harness
// per subtest. Times are anchored to the wall clock so stores with native
// expiry behave.
func RunSessionStoreTests(t *testing.T, setup func(t *testing.T) Harness) {
	t.Helper()

	base := time.Now().UTC().Truncate(time.Second)
	client := auth.ClientInfo{DeviceInfo: "authtest/1.0", SourceAddress: "203.0.113.9"}

	newSession := func(t *testing.T, subjectID string, issuedAt time.Time, ttl time.Duration) *auth.Session {
		t.Helper()
		s, err := auth.NewSession(subjectID, ttl, client, issuedAt)
		require.NoError(t, err)
		return s
	}

	t.Run("create then find", func(t *testing.T) {
		ctx := context.Background()
		h := setup(t)
		subject := h.NewSubject(t)
		session := newSession(t, subject, base, time.Hour)

		require.NoError(t, h.Sessions.Create(ctx, session))

		found, err := h.Sessions.FindActive(ctx, session.ID, base.Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, session.ID, found.ID)
		assert.Equal(t, subject, found.SubjectID)
		assert.True(t, session.IssuedAt.Equal(found.IssuedAt))
		assert.True(t, session.ExpiresAt.Equal(found.ExpiresAt))
		assert.True(t, session.LastActivityAt.Equal(found.LastActivityAt))
		assert.Nil(t, found.RevokedAt)
		assert.Equal(t, client.DeviceInfo, found.DeviceInfo)
		assert.Equal(t, client.SourceAddress, found.SourceAddress)
	})

	t.Run("duplicate id conflicts", func(t *testing.T) {
		ctx := context.Background()
		h := setup(t)
		session := newSession(t, h.NewSubject(t), base, time.Hour)

		require.NoError(t, h.Sessions.Create(ctx, session))
		err := h.Sessions.Create(ctx, session)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrSessionConflict)
	})

	t.Run("find active boundaries", func(t *testing.T) {
		ctx := context.Background()
		h := setup(t)
		session := newSession(t, h.NewSubject(t), base, time.Hour)
		require.NoError(t, h.Sessions.Create(ctx, session))

		_, err := h.Sessions.FindActive(ctx, session.ID, session.ExpiresAt.Add(-time.Second))
		require.NoError(t, err)

		_, err = h.Sessions.FindActive(ctx, session.ID, session.ExpiresAt)
		assert.ErrorIs(t, err, auth.ErrNotFound, "a session is expired at its expiry instant")

		_, err = h.Sessions.FindActive(ctx, "no-such-session", base)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("revoke is idempotent", func(t *testing.T) {
		ctx := context.Background()
		h := setup(t)
		session := newSession(t, h.NewSubject(t), base, time.Hour)
		require.NoError(t, h.Sessions.Create(ctx, session))

		require.NoError(t, h.Sessions.Revoke(ctx, session.ID, base))
		require.NoError(t, h.Sessions.Revoke(ctx, session.ID, base.Add(time.Minute)))
		require.NoError(t, h.Sessions.Revoke(ctx, "no-such-session", base))

		_, err := h.Sessions.FindActive(ctx, session.ID, base)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		assert.ErrorIs(t, h.Sessions.TouchActivity(ctx, session.ID, base), auth.ErrNotFound)
	})

	t.Run("touch activity", func(t *testing.T) {
		ctx := context.Background()
		h := setup(t)
		session := newSession(t, h.NewSubject(t), base, time.Hour)
		require.NoError(t, h.Sessions.Create(ctx, session))

		later := base.Add(5 * time.Minute)
		require.NoError(t, h.Sessions.TouchActivity(ctx, session.ID, later))
		require.NoError(t, h.Sessions.TouchActivity(ctx, session.ID, base.Add(time.Minute)))

		found, err := h.Sessions.FindActive(ctx, session.ID, later)
		require.NoError(t, err)
		assert.True(t, later.Equal(found.LastActivityAt), "activity never moves backwards")

		assert.ErrorIs(t, h.Sessions.TouchActivity(ctx, "no-such-session", later), auth.ErrNotFound)
	})

	t.Run("revoke all except one", func(t *testing.T) {
		ctx := context.Background()
		h := setup(t)
		subject := h.NewSubject(t)
		other := h.NewSubject(t)

		keep := newSession(t, subject, base, time.Hour)
		drop := []*auth.Session{newSession(t, subject, base, time.Hour), newSession(t, subject, base, time.Hour)}
		foreign := newSession(t, other, base, time.Hour)
		for _, s := range append([]*auth.Session{keep, foreign}, drop...) {
			require.NoError(t, h.Sessions.Create(ctx, s))
		}

		n, err := h.Sessions.RevokeAllForSubject(ctx, subject, keep.ID, base)
		require.NoError(t, err)
		assert.Equal(t, int64(len(drop)), n)

		_, err = h.Sessions.FindActive(ctx, keep.ID, base)
		require.NoError(t, err)
		_, err = h.Sessions.FindActive(ctx, foreign.ID, base)
		require.NoError(t, err)
		for _, s := range drop {
			_, err := h.Sessions.FindActive(ctx, s.ID, base)
			assert.ErrorIs(t, err, auth.ErrNotFound)
		}

		n, err = h.Sessions.RevokeAllForSubject(ctx, subject, "", base)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("list active newest first", func(t *testing.T) {
		ctx := context.Background()
		h := setup(t)
		subject := h.NewSubject(t)

		oldest := newSession(t, subject, base.Add(-2*time.Minute), time.Hour)
		revoked := newSession(t, subject, base.Add(-time.Minute), time.Hour)
		newest := newSession(t, subject, base, time.Hour)
		expired := newSession(t, subject, base.Add(-2*time.Hour), time.Hour)
		for _, s := range []*auth.Session{oldest, revoked, newest, expired} {
			require.NoError(t, h.Sessions.Create(ctx, s))
		}
		require.NoError(t, h.Sessions.Revoke(ctx, revoked.ID, base))

		active, err := h.Sessions.ListActiveForSubject(ctx, subject, base)
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Equal(t, newest.ID, active[0].ID)
		assert.Equal(t, oldest.ID, active[1].ID)

		none, err := h.Sessions.ListActiveForSubject(ctx, h.NewSubject(t), base)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("purge expired", func(t *testing.T) {
		ctx := context.Background()
		h := setup(t)
		subject := h.NewSubject(t)

		stale := newSession(t, subject, base.Add(-10*time.Hour), time.Hour)
		live := newSession(t, subject, base, time.Hour)
		require.NoError(t, h.Sessions.Create(ctx, stale))
		require.NoError(t, h.Sessions.Create(ctx, live))

		cutoff := base.Add(-8 * time.Hour)
		n, err := h.Sessions.PurgeExpired(ctx, cutoff)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))

		n, err = h.Sessions.PurgeExpired(ctx, cutoff)
		require.NoError(t, err)
		assert.Zero(t, n, "second purge finds nothing")

		_, err = h.Sessions.FindActive(ctx, live.ID, base)
		assert.NoError(t, err, "unexpired sessions survive")
	})
}
