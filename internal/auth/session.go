// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/samber/oops"
)

// SessionIDBytes is the entropy of a session identifier.
const SessionIDBytes = 32

// DefaultSessionTTL is used when no TTL is configured.
const DefaultSessionTTL = 24 * time.Hour

// ClientInfo describes the client a session was issued to. Both fields are
// optional.
type ClientInfo struct {
	DeviceInfo    string
	SourceAddress string
}

// Session is the persisted record behind a bearer token.
type Session struct {
	ID             string
	SubjectID      string
	IssuedAt       time.Time
	ExpiresAt      time.Time
	LastActivityAt time.Time
	RevokedAt      *time.Time // nil while not revoked
	DeviceInfo     string
	SourceAddress  string
}

// NewSession creates a validated Session with a fresh random ID.
// Timestamps are truncated to whole seconds so the record and the token
// minted from it carry the same expiry.
func NewSession(subjectID string, ttl time.Duration, client ClientInfo, now time.Time) (*Session, error) {
	if subjectID == "" {
		return nil, oops.Code(CodeSessionInvalid).Errorf("subject ID cannot be empty")
	}
	if ttl < time.Second {
		return nil, oops.Code(CodeSessionInvalid).
			With("ttl", ttl.String()).
			Errorf("session TTL must be at least one second")
	}
	if now.IsZero() {
		return nil, oops.Code(CodeSessionInvalid).Errorf("issue time cannot be zero")
	}

	id, err := GenerateSessionID()
	if err != nil {
		return nil, err
	}

	issued := now.UTC().Truncate(time.Second)
	return &Session{
		ID:             id,
		SubjectID:      subjectID,
		IssuedAt:       issued,
		ExpiresAt:      issued.Add(ttl.Truncate(time.Second)),
		LastActivityAt: issued,
		DeviceInfo:     client.DeviceInfo,
		SourceAddress:  client.SourceAddress,
	}, nil
}

// GenerateSessionID returns a URL-safe encoding of SessionIDBytes random bytes.
func GenerateSessionID() (string, error) {
	b := make([]byte, SessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("SESSION_ID_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SessionIDBytes).
			Wrap(err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// IsRevoked reports whether the session has been revoked.
func (s *Session) IsRevoked() bool {
	return s.RevokedAt != nil
}

// IsExpiredAt reports whether the session is expired at t.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// IsActiveAt reports whether the session is neither revoked nor expired at t.
func (s *Session) IsActiveAt(t time.Time) bool {
	return !s.IsRevoked() && !s.IsExpiredAt(t)
}

// Summary returns the account-management view of the session.
func (s *Session) Summary() SessionSummary {
	return SessionSummary{
		SessionID:      s.ID,
		IssuedAt:       s.IssuedAt,
		ExpiresAt:      s.ExpiresAt,
		LastActivityAt: s.LastActivityAt,
		DeviceInfo:     s.DeviceInfo,
		SourceAddress:  s.SourceAddress,
	}
}

// SessionSummary is the read model used by account-management screens.
type SessionSummary struct {
	SessionID      string
	IssuedAt       time.Time
	ExpiresAt      time.Time
	LastActivityAt time.Time
	DeviceInfo     string
	SourceAddress  string
}

// SessionStore persists sessions. It is the single source of truth for
// session validity; implementations must make a completed Revoke visible to
// every FindActive that starts after it.
type SessionStore interface {
	// Create stores a new session. Returns ErrSessionConflict if the ID is taken.
	Create(ctx context.Context, session *Session) error

	// FindActive returns the session if it is active at now.
	// Returns ErrNotFound if it is missing, revoked, or expired.
	FindActive(ctx context.Context, sessionID string, now time.Time) (*Session, error)

	// TouchActivity records activity on an unrevoked session.
	TouchActivity(ctx context.Context, sessionID string, at time.Time) error

	// Revoke marks a session revoked. Revoking an unknown or already
	// revoked session succeeds.
	Revoke(ctx context.Context, sessionID string, at time.Time) error

	// RevokeAllForSubject revokes every unrevoked session of the subject
	// except exceptSessionID (empty revokes all) and returns the count.
	RevokeAllForSubject(ctx context.Context, subjectID, exceptSessionID string, at time.Time) (int64, error)

	// ListActiveForSubject returns the subject's active sessions, newest first.
	ListActiveForSubject(ctx context.Context, subjectID string, now time.Time) ([]*Session, error)

	// PurgeExpired deletes sessions that expired before olderThan and
	// returns the count of deleted records.
	PurgeExpired(ctx context.Context, olderThan time.Time) (int64, error)
}
