// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

// Package postgres implements the auth stores on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/wardenauth/warden/internal/auth"
)

// poolIface is the subset of *pgxpool.Pool used by the stores.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const sessionColumns = `id, subject_id, issued_at, expires_at, last_activity_at, revoked_at, device_info, source_address`

// SessionStore implements auth.SessionStore.
type SessionStore struct {
	pool poolIface
}

// NewSessionStore creates a SessionStore.
func NewSessionStore(pool poolIface) *SessionStore {
	return &SessionStore{pool: pool}
}

// Create inserts a session. A duplicate ID returns auth.ErrSessionConflict.
func (s *SessionStore) Create(ctx context.Context, session *auth.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		session.ID,
		session.SubjectID,
		session.IssuedAt,
		session.ExpiresAt,
		session.LastActivityAt,
		session.RevokedAt,
		session.DeviceInfo,
		session.SourceAddress,
	)
	if isUniqueViolation(err) {
		return oops.Code(auth.CodeSessionConflict).
			With("subject_id", session.SubjectID).
			Wrap(auth.ErrSessionConflict)
	}
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("subject_id", session.SubjectID).
			Wrap(err)
	}
	return nil
}

// FindActive returns the session if it is unrevoked and unexpired at now.
func (s *SessionStore) FindActive(ctx context.Context, sessionID string, now time.Time) (*auth.Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE id = $1 AND revoked_at IS NULL AND expires_at > $2
	`, sessionID, now)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_FIND_FAILED").
			With("operation", "find active session").
			Wrap(err)
	}
	return session, nil
}

// TouchActivity moves last_activity_at forward on an unrevoked session.
func (s *SessionStore) TouchActivity(ctx context.Context, sessionID string, at time.Time) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE sessions SET last_activity_at = GREATEST(last_activity_at, $2)
		WHERE id = $1 AND revoked_at IS NULL
	`, sessionID, at)
	if err != nil {
		return oops.Code("SESSION_TOUCH_FAILED").
			With("operation", "update last_activity_at").
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return nil
}

// Revoke sets revoked_at unless the session is already revoked. Unknown
// IDs are not an error.
func (s *SessionStore) Revoke(ctx context.Context, sessionID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sessions SET revoked_at = COALESCE(revoked_at, $2)
		WHERE id = $1
	`, sessionID, at)
	if err != nil {
		return oops.Code("SESSION_REVOKE_FAILED").
			With("operation", "revoke session").
			Wrap(err)
	}
	return nil
}

// RevokeAllForSubject revokes the subject's unrevoked sessions other than
// exceptSessionID in one statement.
func (s *SessionStore) RevokeAllForSubject(ctx context.Context, subjectID, exceptSessionID string, at time.Time) (int64, error) {
	result, err := s.pool.Exec(ctx, `
		UPDATE sessions SET revoked_at = $3
		WHERE subject_id = $1 AND id <> $2 AND revoked_at IS NULL
	`, subjectID, exceptSessionID, at)
	if err != nil {
		return 0, oops.Code("SESSION_REVOKE_ALL_FAILED").
			With("operation", "revoke subject sessions").
			With("subject_id", subjectID).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// ListActiveForSubject returns the subject's active sessions, newest first.
func (s *SessionStore) ListActiveForSubject(ctx context.Context, subjectID string, now time.Time) ([]*auth.Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE subject_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY issued_at DESC, id
	`, subjectID, now)
	if err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").
			With("operation", "list active sessions").
			With("subject_id", subjectID).
			Wrap(err)
	}
	defer rows.Close()

	var sessions []*auth.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, oops.Code("SESSION_SCAN_FAILED").
				With("operation", "scan session row").
				Wrap(err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("SESSION_ROWS_ERROR").
			With("operation", "iterate session rows").
			Wrap(err)
	}
	return sessions, nil
}

// PurgeExpired deletes sessions whose expiry is before olderThan.
func (s *SessionStore) PurgeExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, olderThan)
	if err != nil {
		return 0, oops.Code("SESSION_PURGE_FAILED").
			With("operation", "delete expired sessions").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanSession reads one row in sessionColumns order. pgx.ErrNoRows is
// returned unwrapped.
func scanSession(row pgx.Row) (*auth.Session, error) {
	var (
		s         auth.Session
		revokedAt *time.Time
	)
	err := row.Scan(
		&s.ID,
		&s.SubjectID,
		&s.IssuedAt,
		&s.ExpiresAt,
		&s.LastActivityAt,
		&revokedAt,
		&s.DeviceInfo,
		&s.SourceAddress,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context
	}

	s.IssuedAt = s.IssuedAt.UTC()
	s.ExpiresAt = s.ExpiresAt.UTC()
	s.LastActivityAt = s.LastActivityAt.UTC()
	if revokedAt != nil {
		t := revokedAt.UTC()
		s.RevokedAt = &t
	}
	return &s, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// Compile-time interface check.
var _ auth.SessionStore = (*SessionStore)(nil)
