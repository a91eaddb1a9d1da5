// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import (
	"context"
	"time"
)

// Subject is the identity a session is issued to. Credential holds the
// encoded password hash and must never be logged.
type Subject struct {
	ID          string
	Login       string
	Credential  string
	LastLoginAt *time.Time
}

// SubjectDirectory resolves subjects and stores their credentials.
type SubjectDirectory interface {
	// FindByLogin returns the subject with the given login.
	// Returns ErrNotFound if no subject matches.
	FindByLogin(ctx context.Context, login string) (*Subject, error)

	// Get returns the subject with the given ID.
	// Returns ErrNotFound if no subject matches.
	Get(ctx context.Context, subjectID string) (*Subject, error)

	// UpdateCredential replaces the subject's encoded credential.
	UpdateCredential(ctx context.Context, subjectID, credential string) error

	// RecordLogin stores the time of the subject's last successful login.
	RecordLogin(ctx context.Context, subjectID string, at time.Time) error
}
