// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/wardenauth/warden/internal/auth"
)

// MockCredentialHasher is a mock implementation of auth.CredentialHasher.
type MockCredentialHasher struct {
	mock.Mock
}

// NewMockCredentialHasher creates a MockCredentialHasher bound to t.
func NewMockCredentialHasher(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockCredentialHasher {
	m := &MockCredentialHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Hash provides a mock function.
func (m *MockCredentialHasher) Hash(plaintext string) (string, error) {
	ret := m.Called(plaintext)
	return ret.String(0), ret.Error(1)
}

// Verify provides a mock function.
func (m *MockCredentialHasher) Verify(plaintext, encoded string) bool {
	return m.Called(plaintext, encoded).Bool(0)
}

// NeedsRehash provides a mock function.
func (m *MockCredentialHasher) NeedsRehash(encoded string) bool {
	return m.Called(encoded).Bool(0)
}

// MockTokenCodec is a mock implementation of auth.TokenCodec.
type MockTokenCodec struct {
	mock.Mock
}

// NewMockTokenCodec creates a MockTokenCodec bound to t.
func NewMockTokenCodec(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockTokenCodec {
	m := &MockTokenCodec{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Encode provides a mock function.
func (m *MockTokenCodec) Encode(session *auth.Session) (string, error) {
	ret := m.Called(session)
	return ret.String(0), ret.Error(1)
}

// Decode provides a mock function.
func (m *MockTokenCodec) Decode(token string) (*auth.Claims, error) {
	ret := m.Called(token)
	var claims *auth.Claims
	if v := ret.Get(0); v != nil {
		claims = v.(*auth.Claims)
	}
	return claims, ret.Error(1)
}

// DecodeIgnoringExpiry provides a mock function.
func (m *MockTokenCodec) DecodeIgnoringExpiry(token string) (*auth.Claims, error) {
	ret := m.Called(token)
	var claims *auth.Claims
	if v := ret.Get(0); v != nil {
		claims = v.(*auth.Claims)
	}
	return claims, ret.Error(1)
}

var (
	_ auth.CredentialHasher = (*MockCredentialHasher)(nil)
	_ auth.TokenCodec       = (*MockTokenCodec)(nil)
)
