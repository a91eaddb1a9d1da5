// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/wardenauth/warden/internal/auth"
)

// MockSubjectDirectory is a mock implementation of auth.SubjectDirectory.
type MockSubjectDirectory struct {
	mock.Mock
}

// NewMockSubjectDirectory creates a MockSubjectDirectory bound to t.
func NewMockSubjectDirectory(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockSubjectDirectory {
	m := &MockSubjectDirectory{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// FindByLogin provides a mock function.
func (m *MockSubjectDirectory) FindByLogin(ctx context.Context, login string) (*auth.Subject, error) {
	ret := m.Called(ctx, login)
	var subject *auth.Subject
	if v := ret.Get(0); v != nil {
		subject = v.(*auth.Subject)
	}
	return subject, ret.Error(1)
}

// Get provides a mock function.
func (m *MockSubjectDirectory) Get(ctx context.Context, subjectID string) (*auth.Subject, error) {
	ret := m.Called(ctx, subjectID)
	var subject *auth.Subject
	if v := ret.Get(0); v != nil {
		subject = v.(*auth.Subject)
	}
	return subject, ret.Error(1)
}

// UpdateCredential provides a mock function.
func (m *MockSubjectDirectory) UpdateCredential(ctx context.Context, subjectID, credential string) error {
	return m.Called(ctx, subjectID, credential).Error(0)
}

// RecordLogin provides a mock function.
func (m *MockSubjectDirectory) RecordLogin(ctx context.Context, subjectID string, at time.Time) error {
	return m.Called(ctx, subjectID, at).Error(0)
}

var _ auth.SubjectDirectory = (*MockSubjectDirectory)(nil)
