// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/wardenauth/warden/internal/auth"
)

// ErrLoginTaken is returned by SubjectStore.Create for a duplicate login.
var ErrLoginTaken = errors.New("login already registered")

// SubjectStore implements auth.SubjectDirectory. Logins are unique and
// matched case-insensitively.
type SubjectStore struct {
	pool  poolIface
	clock func() time.Time
}

// NewSubjectStore creates a SubjectStore.
func NewSubjectStore(pool poolIface) *SubjectStore {
	return &SubjectStore{pool: pool, clock: time.Now}
}

// Create registers a subject with a new ULID.
func (s *SubjectStore) Create(ctx context.Context, login, credential string) (*auth.Subject, error) {
	if strings.TrimSpace(login) == "" {
		return nil, oops.Code("SUBJECT_INVALID_LOGIN").Errorf("login cannot be empty")
	}

	subject := &auth.Subject{ID: ulid.Make().String(), Login: login, Credential: credential}
	now := s.clock()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subjects (id, login, credential, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`, subject.ID, subject.Login, subject.Credential, now)
	if isUniqueViolation(err) {
		return nil, oops.Code("SUBJECT_LOGIN_TAKEN").With("login", login).Wrap(ErrLoginTaken)
	}
	if err != nil {
		return nil, oops.Code("SUBJECT_CREATE_FAILED").
			With("operation", "insert subject").
			With("login", login).
			Wrap(err)
	}
	return subject, nil
}

// FindByLogin returns the subject registered under login.
func (s *SubjectStore) FindByLogin(ctx context.Context, login string) (*auth.Subject, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, login, credential, last_login_at
		FROM subjects
		WHERE lower(login) = lower($1)
	`, login)

	subject, err := scanSubject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SUBJECT_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SUBJECT_FIND_FAILED").
			With("operation", "find subject by login").
			Wrap(err)
	}
	return subject, nil
}

// Get returns the subject with the given ID.
func (s *SubjectStore) Get(ctx context.Context, subjectID string) (*auth.Subject, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, login, credential, last_login_at
		FROM subjects
		WHERE id = $1
	`, subjectID)

	subject, err := scanSubject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SUBJECT_NOT_FOUND").With("subject_id", subjectID).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SUBJECT_GET_FAILED").
			With("operation", "get subject").
			With("subject_id", subjectID).
			Wrap(err)
	}
	return subject, nil
}

// UpdateCredential replaces the stored credential.
func (s *SubjectStore) UpdateCredential(ctx context.Context, subjectID, credential string) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE subjects SET credential = $2, updated_at = $3
		WHERE id = $1
	`, subjectID, credential, s.clock())
	if err != nil {
		return oops.Code("SUBJECT_UPDATE_CREDENTIAL_FAILED").
			With("operation", "update credential").
			With("subject_id", subjectID).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SUBJECT_NOT_FOUND").With("subject_id", subjectID).Wrap(auth.ErrNotFound)
	}
	return nil
}

// RecordLogin stores the time of the latest successful login.
func (s *SubjectStore) RecordLogin(ctx context.Context, subjectID string, at time.Time) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE subjects SET last_login_at = $2
		WHERE id = $1
	`, subjectID, at)
	if err != nil {
		return oops.Code("SUBJECT_RECORD_LOGIN_FAILED").
			With("operation", "update last_login_at").
			With("subject_id", subjectID).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SUBJECT_NOT_FOUND").With("subject_id", subjectID).Wrap(auth.ErrNotFound)
	}
	return nil
}

func scanSubject(row pgx.Row) (*auth.Subject, error) {
	var (
		subject     auth.Subject
		lastLoginAt *time.Time
	)
	if err := row.Scan(&subject.ID, &subject.Login, &subject.Credential, &lastLoginAt); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context
	}
	if lastLoginAt != nil {
		t := lastLoginAt.UTC()
		subject.LastLoginAt = &t
	}
	return &subject, nil
}

var _ auth.SubjectDirectory = (*SubjectStore)(nil)
