// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/wardenauth/warden/internal/auth"
)

// MockSessionStore is a mock implementation of auth.SessionStore.
type MockSessionStore struct {
	mock.Mock
}

// NewMockSessionStore creates a MockSessionStore bound to t.
func NewMockSessionStore(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockSessionStore {
	m := &MockSessionStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Create provides a mock function.
func (m *MockSessionStore) Create(ctx context.Context, session *auth.Session) error {
	ret := m.Called(ctx, session)
	if fn, ok := ret.Get(0).(func(context.Context, *auth.Session) error); ok {
		return fn(ctx, session)
	}
	return ret.Error(0)
}

// FindActive provides a mock function.
func (m *MockSessionStore) FindActive(ctx context.Context, sessionID string, now time.Time) (*auth.Session, error) {
	ret := m.Called(ctx, sessionID, now)
	var session *auth.Session
	if v := ret.Get(0); v != nil {
		session = v.(*auth.Session)
	}
	return session, ret.Error(1)
}

// TouchActivity provides a mock function.
func (m *MockSessionStore) TouchActivity(ctx context.Context, sessionID string, at time.Time) error {
	return m.Called(ctx, sessionID, at).Error(0)
}

// Revoke provides a mock function.
func (m *MockSessionStore) Revoke(ctx context.Context, sessionID string, at time.Time) error {
	return m.Called(ctx, sessionID, at).Error(0)
}

// RevokeAllForSubject provides a mock function.
func (m *MockSessionStore) RevokeAllForSubject(ctx context.Context, subjectID, exceptSessionID string, at time.Time) (int64, error) {
	ret := m.Called(ctx, subjectID, exceptSessionID, at)
	return ret.Get(0).(int64), ret.Error(1)
}

// ListActiveForSubject provides a mock function.
func (m *MockSessionStore) ListActiveForSubject(ctx context.Context, subjectID string, now time.Time) ([]*auth.Session, error) {
	ret := m.Called(ctx, subjectID, now)
	var sessions []*auth.Session
	if v := ret.Get(0); v != nil {
		sessions = v.([]*auth.Session)
	}
	return sessions, ret.Error(1)
}

// PurgeExpired provides a mock function.
func (m *MockSessionStore) PurgeExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	ret := m.Called(ctx, olderThan)
	return ret.Get(0).(int64), ret.Error(1)
}

var _ auth.SessionStore = (*MockSessionStore)(nil)
