// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/wardenauth/warden/internal/auth")

// Revocation reasons recorded in metrics and logs.
const (
	reasonLogout         = "logout"
	reasonPasswordChange = "password_change"
	reasonLogoutOthers   = "logout_others"
	reasonDevice         = "device"
)

// ServiceConfig holds the tunables of a Service.
type ServiceConfig struct {
	SessionTTL time.Duration    // defaults to DefaultSessionTTL
	Clock      func() time.Time // defaults to time.Now
	Metrics    *Metrics         // optional
}

// Issued is the result of a successful authentication.
type Issued struct {
	Token     string
	SessionID string
	SubjectID string
	ExpiresAt time.Time
}

// Service orchestrates credential checks, session issuance and validation.
type Service struct {
	subjects SubjectDirectory
	sessions SessionStore
	hasher   CredentialHasher
	codec    TokenCodec
	ttl      time.Duration
	clock    func() time.Time
	metrics  *Metrics
	logger   *slog.Logger

	// dummyCredential is verified for unknown logins so both rejection
	// paths cost one full hash.
	dummyCredential string
}

// NewService creates a Service that logs to slog.Default().
func NewService(
	subjects SubjectDirectory,
	sessions SessionStore,
	hasher CredentialHasher,
	codec TokenCodec,
	cfg ServiceConfig,
) (*Service, error) {
	return NewServiceWithLogger(subjects, sessions, hasher, codec, cfg, slog.Default())
}

// NewServiceWithLogger creates a Service with an explicit logger.
func NewServiceWithLogger(
	subjects SubjectDirectory,
	sessions SessionStore,
	hasher CredentialHasher,
	codec TokenCodec,
	cfg ServiceConfig,
	logger *slog.Logger,
) (*Service, error) {
	switch {
	case subjects == nil:
		return nil, oops.Code(CodeConfigInvalid).Wrapf(ErrConfiguration, "subject directory is required")
	case sessions == nil:
		return nil, oops.Code(CodeConfigInvalid).Wrapf(ErrConfiguration, "session store is required")
	case hasher == nil:
		return nil, oops.Code(CodeConfigInvalid).Wrapf(ErrConfiguration, "credential hasher is required")
	case codec == nil:
		return nil, oops.Code(CodeConfigInvalid).Wrapf(ErrConfiguration, "token codec is required")
	case logger == nil:
		return nil, oops.Code(CodeConfigInvalid).Wrapf(ErrConfiguration, "logger is required")
	}

	ttl := cfg.SessionTTL
	if ttl == 0 {
		ttl = DefaultSessionTTL
	}
	if ttl < time.Second {
		return nil, oops.Code(CodeConfigInvalid).
			With("ttl", ttl.String()).
			Wrapf(ErrConfiguration, "session TTL must be at least one second")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	secret, err := GenerateSessionID()
	if err != nil {
		return nil, err
	}
	dummy, err := hasher.Hash(secret)
	if err != nil {
		return nil, oops.Code(CodeHashFailed).With("operation", "hash dummy credential").Wrap(err)
	}

	return &Service{
		subjects:        subjects,
		sessions:        sessions,
		hasher:          hasher,
		codec:           codec,
		ttl:             ttl,
		clock:           clock,
		metrics:         cfg.Metrics,
		logger:          logger,
		dummyCredential: dummy,
	}, nil
}

// Authenticate verifies login and password and issues a new session token.
// Unknown logins and wrong passwords both return ErrInvalidCredentials.
// The session write is the last fallible step: on any error no session
// exists.
func (s *Service) Authenticate(ctx context.Context, login, password string, client ClientInfo) (_ *Issued, err error) {
	ctx, span := tracer.Start(ctx, "auth.Authenticate")
	defer func() { endSpan(span, err) }()

	subject, lookupErr := s.subjects.FindByLogin(ctx, login)
	target := s.dummyCredential
	switch {
	case lookupErr == nil:
		target = subject.Credential
	case errors.Is(lookupErr, ErrNotFound):
		subject = nil
	default:
		s.metrics.authentication(outcomeError)
		return nil, oops.Code(CodeStoreUnavailable).
			With("operation", "find subject by login").
			Wrap(Unavailable(lookupErr))
	}

	// Always verify, even for unknown logins, to keep timing uniform.
	started := time.Now()
	valid := s.hasher.Verify(password, target)
	s.metrics.observeVerify(time.Since(started))

	if subject == nil || !valid {
		reason := "wrong_password"
		if subject == nil {
			reason = "unknown_login"
		}
		s.logger.InfoContext(ctx, "authentication rejected", "reason", reason, "login", login)
		s.metrics.authentication(outcomeInvalidCredentials)
		return nil, oops.Code(CodeInvalidCredentials).Wrap(ErrInvalidCredentials)
	}

	if s.hasher.NeedsRehash(subject.Credential) {
		s.upgradeCredential(ctx, subject.ID, password)
	}

	// Read after verification so the session starts when it is issued.
	now := s.clock()
	issued, err := s.issue(ctx, subject.ID, client, now)
	if err != nil {
		s.metrics.authentication(outcomeError)
		return nil, err
	}

	if err := s.subjects.RecordLogin(ctx, subject.ID, now); err != nil {
		s.logBestEffort(ctx, "record_login", err, "subject_id", subject.ID)
	}

	span.SetAttributes(attribute.String("subject_id", subject.ID))
	s.metrics.authentication(outcomeSuccess)
	return issued, nil
}

// Validate checks the token's signature and expiry and that its session is
// still active, then records activity on the session.
func (s *Service) Validate(ctx context.Context, token string) (_ *Claims, err error) {
	ctx, span := tracer.Start(ctx, "auth.Validate")
	defer func() { endSpan(span, err) }()

	claims, err := s.codec.Decode(token)
	if err != nil {
		outcome := outcomeInvalidToken
		if errors.Is(err, ErrTokenExpired) {
			outcome = outcomeExpired
		}
		s.logger.DebugContext(ctx, "token rejected", "reason", outcome, "error", err)
		s.metrics.validation(outcome)
		return nil, oops.With("operation", "decode token").Wrap(err)
	}

	now := s.clock()
	session, err := s.sessions.FindActive(ctx, claims.SessionID, now)
	if err != nil {
		if errors.Is(err, ErrNotFound) && !now.Before(claims.ExpiresAt) {
			// Accepted by the codec's leeway but already past the stored expiry.
			s.logger.DebugContext(ctx, "token rejected", "reason", outcomeExpired, "session_id", claims.SessionID)
			s.metrics.validation(outcomeExpired)
			return nil, oops.Code(CodeTokenExpired).
				With("session_id", claims.SessionID).
				Wrap(ErrTokenExpired)
		}
		if errors.Is(err, ErrNotFound) {
			s.logger.DebugContext(ctx, "token rejected", "reason", outcomeRevoked, "session_id", claims.SessionID)
			s.metrics.validation(outcomeRevoked)
			return nil, oops.Code(CodeSessionRevoked).
				With("session_id", claims.SessionID).
				Wrap(ErrSessionRevoked)
		}
		s.metrics.validation(outcomeError)
		return nil, oops.Code(CodeStoreUnavailable).
			With("operation", "find active session").
			With("session_id", claims.SessionID).
			Wrap(Unavailable(err))
	}

	if session.SubjectID != claims.SubjectID {
		s.logger.WarnContext(ctx, "token subject does not match session",
			"session_id", claims.SessionID,
			"token_subject_id", claims.SubjectID,
			"session_subject_id", session.SubjectID)
		s.metrics.validation(outcomeInvalidToken)
		return nil, oops.Code(CodeInvalidToken).
			With("session_id", claims.SessionID).
			Wrap(ErrInvalidToken)
	}

	if err := s.sessions.TouchActivity(ctx, claims.SessionID, now); err != nil {
		s.logBestEffort(ctx, "touch_activity", err, "session_id", claims.SessionID)
	}

	span.SetAttributes(attribute.String("subject_id", claims.SubjectID))
	s.metrics.validation(outcomeSuccess)
	return claims, nil
}

// Logout revokes the token's session. Tokens that are expired but validly
// signed still revoke their session. Unparseable or forged tokens are a
// no-op, so Logout only fails when the store does.
func (s *Service) Logout(ctx context.Context, token string) (err error) {
	ctx, span := tracer.Start(ctx, "auth.Logout")
	defer func() { endSpan(span, err) }()

	claims, decodeErr := s.codec.DecodeIgnoringExpiry(token)
	if decodeErr != nil {
		s.logger.DebugContext(ctx, "logout with unusable token", "error", decodeErr)
		return nil
	}

	if err := s.sessions.Revoke(ctx, claims.SessionID, s.clock()); err != nil {
		return oops.Code(CodeStoreUnavailable).
			With("operation", "revoke session").
			With("session_id", claims.SessionID).
			Wrap(Unavailable(err))
	}

	s.metrics.revoked(reasonLogout, 1)
	return nil
}

// ChangePassword replaces the subject's credential and then revokes every
// session of the subject. The revocation runs even when persisting the new
// credential fails, and a revocation failure is always returned.
func (s *Service) ChangePassword(ctx context.Context, subjectID, oldPassword, newPassword string) (err error) {
	ctx, span := tracer.Start(ctx, "auth.ChangePassword", trace.WithAttributes(attribute.String("subject_id", subjectID)))
	defer func() { endSpan(span, err) }()

	if newPassword == "" {
		return oops.Code(CodeEmptyPassword).Wrap(ErrEmptyPassword)
	}

	subject, err := s.subjects.Get(ctx, subjectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeSubjectNotFound).
				With("subject_id", subjectID).
				Wrap(ErrSubjectNotFound)
		}
		return oops.Code(CodeStoreUnavailable).
			With("operation", "get subject").
			With("subject_id", subjectID).
			Wrap(Unavailable(err))
	}

	if !s.hasher.Verify(oldPassword, subject.Credential) {
		s.logger.InfoContext(ctx, "password change rejected", "reason", "wrong_password", "subject_id", subjectID)
		return oops.Code(CodeInvalidCredentials).Wrap(ErrInvalidCredentials)
	}

	credential, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code(CodeHashFailed).
			With("operation", "hash new password").
			With("subject_id", subjectID).
			Wrap(err)
	}

	persistErr := s.subjects.UpdateCredential(ctx, subjectID, credential)
	if persistErr != nil {
		s.logger.ErrorContext(ctx, "persist new credential failed, revoking sessions anyway",
			"subject_id", subjectID, "error", persistErr)
	}

	revoked, revokeErr := s.sessions.RevokeAllForSubject(ctx, subjectID, "", s.clock())
	if revokeErr != nil {
		s.logger.ErrorContext(ctx, "revoke sessions after password change failed",
			"subject_id", subjectID, "error", revokeErr)
	} else {
		s.metrics.revoked(reasonPasswordChange, revoked)
	}

	if persistErr != nil || revokeErr != nil {
		return oops.Code(CodeStoreUnavailable).
			With("operation", "change password").
			With("subject_id", subjectID).
			With("credential_persisted", persistErr == nil).
			With("sessions_revoked", revokeErr == nil).
			Wrap(Unavailable(errors.Join(persistErr, revokeErr)))
	}
	return nil
}

// LogoutAllOthers revokes every session of the subject except
// currentSessionID and returns the number revoked.
func (s *Service) LogoutAllOthers(ctx context.Context, subjectID, currentSessionID string) (_ int64, err error) {
	ctx, span := tracer.Start(ctx, "auth.LogoutAllOthers", trace.WithAttributes(attribute.String("subject_id", subjectID)))
	defer func() { endSpan(span, err) }()

	n, err := s.sessions.RevokeAllForSubject(ctx, subjectID, currentSessionID, s.clock())
	if err != nil {
		return 0, oops.Code(CodeStoreUnavailable).
			With("operation", "revoke other sessions").
			With("subject_id", subjectID).
			Wrap(Unavailable(err))
	}
	s.metrics.revoked(reasonLogoutOthers, n)
	return n, nil
}

// ListActiveSessions returns the subject's active sessions, newest first.
func (s *Service) ListActiveSessions(ctx context.Context, subjectID string) (_ []SessionSummary, err error) {
	ctx, span := tracer.Start(ctx, "auth.ListActiveSessions", trace.WithAttributes(attribute.String("subject_id", subjectID)))
	defer func() { endSpan(span, err) }()

	sessions, err := s.sessions.ListActiveForSubject(ctx, subjectID, s.clock())
	if err != nil {
		return nil, oops.Code(CodeStoreUnavailable).
			With("operation", "list active sessions").
			With("subject_id", subjectID).
			Wrap(Unavailable(err))
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		summaries = append(summaries, session.Summary())
	}
	return summaries, nil
}

// RevokeSession revokes one of the subject's own sessions. Sessions that
// are gone or belong to another subject are left untouched and reported as
// success.
func (s *Service) RevokeSession(ctx context.Context, subjectID, sessionID string) (err error) {
	ctx, span := tracer.Start(ctx, "auth.RevokeSession", trace.WithAttributes(attribute.String("subject_id", subjectID)))
	defer func() { endSpan(span, err) }()

	now := s.clock()
	session, err := s.sessions.FindActive(ctx, sessionID, now)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code(CodeStoreUnavailable).
			With("operation", "find session").
			With("session_id", sessionID).
			Wrap(Unavailable(err))
	}
	if session.SubjectID != subjectID {
		s.logger.WarnContext(ctx, "refusing to revoke session of another subject",
			"subject_id", subjectID, "session_id", sessionID)
		return nil
	}

	if err := s.sessions.Revoke(ctx, sessionID, now); err != nil {
		return oops.Code(CodeStoreUnavailable).
			With("operation", "revoke session").
			With("session_id", sessionID).
			Wrap(Unavailable(err))
	}
	s.metrics.revoked(reasonDevice, 1)
	return nil
}

// issue mints a token and then persists its session. A session ID
// collision is retried once with a fresh ID.
func (s *Service) issue(ctx context.Context, subjectID string, client ClientInfo, now time.Time) (*Issued, error) {
	for attempt := 0; ; attempt++ {
		session, err := NewSession(subjectID, s.ttl, client, now)
		if err != nil {
			return nil, oops.With("operation", "new session").Wrap(err)
		}

		token, err := s.codec.Encode(session)
		if err != nil {
			return nil, oops.With("operation", "encode token").Wrap(err)
		}

		err = s.sessions.Create(ctx, session)
		if err == nil {
			return &Issued{
				Token:     token,
				SessionID: session.ID,
				SubjectID: subjectID,
				ExpiresAt: session.ExpiresAt,
			}, nil
		}
		if errors.Is(err, ErrSessionConflict) && attempt == 0 {
			s.logger.WarnContext(ctx, "session id collision, retrying", "subject_id", subjectID)
			continue
		}
		return nil, oops.Code(CodeStoreUnavailable).
			With("operation", "create session").
			With("subject_id", subjectID).
			Wrap(Unavailable(err))
	}
}

// upgradeCredential rehashes a legacy or weak credential after a
// successful login.
func (s *Service) upgradeCredential(ctx context.Context, subjectID, password string) {
	credential, err := s.hasher.Hash(password)
	if err != nil {
		s.logBestEffort(ctx, "rehash_credential", err, "subject_id", subjectID)
		return
	}
	if err := s.subjects.UpdateCredential(ctx, subjectID, credential); err != nil {
		s.logBestEffort(ctx, "rehash_credential", err, "subject_id", subjectID)
	}
}

func (s *Service) logBestEffort(ctx context.Context, operation string, err error, attrs ...any) {
	args := append([]any{"operation", operation, "error", err}, attrs...)
	s.logger.WarnContext(ctx, "best-effort operation failed", args...)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
