// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

// Package memstore provides in-process implementations of the auth stores
// for tests and single-node development servers. State is lost on restart.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/wardenauth/warden/internal/auth"
)

// SessionStore implements auth.SessionStore with a mutex-guarded map.
type SessionStore struct {
	mu        sync.RWMutex
	sessions  map[string]*auth.Session
	bySubject map[string]map[string]struct{}
}

// NewSessionStore creates an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:  make(map[string]*auth.Session),
		bySubject: make(map[string]map[string]struct{}),
	}
}

// Create stores a copy of session.
func (s *SessionStore) Create(ctx context.Context, session *auth.Session) error {
	if err := ctx.Err(); err != nil {
		return err //nolint:wrapcheck // context errors are passed through
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return oops.Code(auth.CodeSessionConflict).Wrap(auth.ErrSessionConflict)
	}
	s.sessions[session.ID] = clone(session)
	ids, ok := s.bySubject[session.SubjectID]
	if !ok {
		ids = make(map[string]struct{})
		s.bySubject[session.SubjectID] = ids
	}
	ids[session.ID] = struct{}{}
	return nil
}

// FindActive returns a copy of the session if it is active at now.
func (s *SessionStore) FindActive(ctx context.Context, sessionID string, now time.Time) (*auth.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err //nolint:wrapcheck // context errors are passed through
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok || !session.IsActiveAt(now) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return clone(session), nil
}

// TouchActivity updates LastActivityAt of an unrevoked session.
func (s *SessionStore) TouchActivity(_ context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok || session.IsRevoked() {
		return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if at.After(session.LastActivityAt) {
		session.LastActivityAt = at
	}
	return nil
}

// Revoke marks the session revoked; already revoked or unknown sessions
// are left as they are.
func (s *SessionStore) Revoke(ctx context.Context, sessionID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err //nolint:wrapcheck // context errors are passed through
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[sessionID]; ok && !session.IsRevoked() {
		revokedAt := at
		session.RevokedAt = &revokedAt
	}
	return nil
}

// RevokeAllForSubject revokes the subject's sessions except exceptSessionID.
func (s *SessionStore) RevokeAllForSubject(ctx context.Context, subjectID, exceptSessionID string, at time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err //nolint:wrapcheck // context errors are passed through
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id := range s.bySubject[subjectID] {
		session := s.sessions[id]
		if id == exceptSessionID || session.IsRevoked() {
			continue
		}
		revokedAt := at
		session.RevokedAt = &revokedAt
		n++
	}
	return n, nil
}

// ListActiveForSubject returns copies of the subject's active sessions,
// newest first.
func (s *SessionStore) ListActiveForSubject(ctx context.Context, subjectID string, now time.Time) ([]*auth.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err //nolint:wrapcheck // context errors are passed through
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*auth.Session
	for id := range s.bySubject[subjectID] {
		if session := s.sessions[id]; session.IsActiveAt(now) {
			active = append(active, clone(session))
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].IssuedAt.Equal(active[j].IssuedAt) {
			return active[i].ID < active[j].ID
		}
		return active[i].IssuedAt.After(active[j].IssuedAt)
	})
	return active, nil
}

// PurgeExpired deletes sessions that expired before olderThan.
func (s *SessionStore) PurgeExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err //nolint:wrapcheck // context errors are passed through
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, session := range s.sessions {
		if !session.ExpiresAt.Before(olderThan) {
			continue
		}
		delete(s.sessions, id)
		if ids := s.bySubject[session.SubjectID]; ids != nil {
			delete(ids, id)
			if len(ids) == 0 {
				delete(s.bySubject, session.SubjectID)
			}
		}
		n++
	}
	return n, nil
}

// Len returns the number of stored sessions, including revoked ones.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func clone(session *auth.Session) *auth.Session {
	c := *session
	if session.RevokedAt != nil {
		t := *session.RevokedAt
		c.RevokedAt = &t
	}
	return &c
}

// SubjectDirectory implements auth.SubjectDirectory in memory. Logins are
// matched case-insensitively.
type SubjectDirectory struct {
	mu       sync.RWMutex
	subjects map[string]*auth.Subject
	byLogin  map[string]string
}

// NewSubjectDirectory creates an empty SubjectDirectory.
func NewSubjectDirectory() *SubjectDirectory {
	return &SubjectDirectory{
		subjects: make(map[string]*auth.Subject),
		byLogin:  make(map[string]string),
	}
}

// Add registers a subject with a ULID and returns it.
func (d *SubjectDirectory) Add(login, credential string) (*auth.Subject, error) {
	key := strings.ToLower(login)
	if key == "" {
		return nil, oops.Code("SUBJECT_INVALID_LOGIN").Errorf("login cannot be empty")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.byLogin[key]; exists {
		return nil, oops.Code("SUBJECT_LOGIN_TAKEN").With("login", login).Errorf("login already registered")
	}
	subject := &auth.Subject{ID: ulid.Make().String(), Login: login, Credential: credential}
	d.subjects[subject.ID] = subject
	d.byLogin[key] = subject.ID

	c := *subject
	return &c, nil
}

// FindByLogin returns the subject registered under login.
func (d *SubjectDirectory) FindByLogin(_ context.Context, login string) (*auth.Subject, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byLogin[strings.ToLower(login)]
	if !ok {
		return nil, oops.Code("SUBJECT_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	c := *d.subjects[id]
	return &c, nil
}

// Get returns the subject with the given ID.
func (d *SubjectDirectory) Get(_ context.Context, subjectID string) (*auth.Subject, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	subject, ok := d.subjects[subjectID]
	if !ok {
		return nil, oops.Code("SUBJECT_NOT_FOUND").With("subject_id", subjectID).Wrap(auth.ErrNotFound)
	}
	c := *subject
	return &c, nil
}

// UpdateCredential replaces the subject's credential.
func (d *SubjectDirectory) UpdateCredential(_ context.Context, subjectID, credential string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	subject, ok := d.subjects[subjectID]
	if !ok {
		return oops.Code("SUBJECT_NOT_FOUND").With("subject_id", subjectID).Wrap(auth.ErrNotFound)
	}
	subject.Credential = credential
	return nil
}

// RecordLogin stores the last login time.
func (d *SubjectDirectory) RecordLogin(_ context.Context, subjectID string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	subject, ok := d.subjects[subjectID]
	if !ok {
		return oops.Code("SUBJECT_NOT_FOUND").With("subject_id", subjectID).Wrap(auth.ErrNotFound)
	}
	t := at
	subject.LastLoginAt = &t
	return nil
}

// Compile-time interface checks.
var (
	_ auth.SessionStore     = (*SessionStore)(nil)
	_ auth.SubjectDirectory = (*SubjectDirectory)(nil)
)
