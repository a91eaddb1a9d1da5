// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token configuration bounds.
const (
	MinSecretBytes = 32
	MaxLeeway      = 30 * time.Second
)

// Claims are the fields carried by a session token.
type Claims struct {
	SubjectID string
	SessionID string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenCodec mints and verifies session tokens.
type TokenCodec interface {
	// Encode returns a signed token for the session.
	Encode(session *Session) (string, error)

	// Decode verifies the signature, then the expiry, then issuer and
	// audience. Signature and format failures wrap ErrInvalidToken;
	// an elapsed expiry returns ErrTokenExpired.
	Decode(token string) (*Claims, error)

	// DecodeIgnoringExpiry verifies the signature but skips all time and
	// audience checks.
	DecodeIgnoringExpiry(token string) (*Claims, error)
}

// TokenConfig configures a JWTCodec.
type TokenConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	Leeway   time.Duration
	Clock    func() time.Time // defaults to time.Now
}

// sessionClaims is the JWT payload.
type sessionClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

// JWTCodec implements TokenCodec with HS256-signed JWTs. It is safe for
// concurrent use; the secret is copied at construction and never mutated.
type JWTCodec struct {
	secret   []byte
	issuer   string
	audience string
	strict   *jwt.Parser
	lenient  *jwt.Parser
}

// NewJWTCodec creates a JWTCodec. The secret must be at least
// MinSecretBytes long and the leeway within [0, MaxLeeway].
func NewJWTCodec(cfg TokenConfig) (*JWTCodec, error) {
	if len(cfg.Secret) < MinSecretBytes {
		return nil, oops.Code(CodeConfigInvalid).
			With("min_bytes", MinSecretBytes).
			Wrapf(ErrConfiguration, "signing secret too short")
	}
	if cfg.Leeway < 0 || cfg.Leeway > MaxLeeway {
		return nil, oops.Code(CodeConfigInvalid).
			With("leeway", cfg.Leeway.String()).
			Wrapf(ErrConfiguration, "token leeway out of range")
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, oops.Code(CodeConfigInvalid).Wrapf(ErrConfiguration, "token issuer and audience are required")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	methods := jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})
	return &JWTCodec{
		secret:   secret,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		strict: jwt.NewParser(
			methods,
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithAudience(cfg.Audience),
			jwt.WithLeeway(cfg.Leeway),
			jwt.WithTimeFunc(clock),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
		),
		lenient: jwt.NewParser(methods, jwt.WithoutClaimsValidation()),
	}, nil
}

// Encode returns a signed token whose expiry equals the session's.
func (c *JWTCodec) Encode(session *Session) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			Subject:   session.SubjectID,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
		SessionID: session.ID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", oops.Code(CodeTokenSignFailed).
			With("session_id", session.ID).
			Wrap(err)
	}
	return signed, nil
}

// Decode fully validates token.
func (c *JWTCodec) Decode(token string) (*Claims, error) {
	return c.parse(c.strict, token)
}

// DecodeIgnoringExpiry validates only the token's signature and structure.
func (c *JWTCodec) DecodeIgnoringExpiry(token string) (*Claims, error) {
	return c.parse(c.lenient, token)
}

func (c *JWTCodec) parse(parser *jwt.Parser, token string) (*Claims, error) {
	if token == "" {
		return nil, oops.Code(CodeInvalidToken).Wrapf(ErrMalformedToken, "empty token")
	}

	var claims sessionClaims
	if _, err := parser.ParseWithClaims(token, &claims, c.key); err != nil {
		return nil, classifyJWTError(err)
	}

	if claims.Subject == "" || claims.SessionID == "" {
		return nil, oops.Code(CodeInvalidToken).Wrapf(ErrMalformedToken, "token lacks subject or session")
	}

	out := &Claims{
		SubjectID: claims.Subject,
		SessionID: claims.SessionID,
		TokenID:   claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

func (c *JWTCodec) key(*jwt.Token) (any, error) {
	return c.secret, nil
}

// classifyJWTError maps jwt errors onto the token taxonomy. The parser
// verifies the signature before any claim, so an expired token here always
// carries a valid signature.
func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return oops.Code(CodeInvalidToken).With("cause", err.Error()).Wrap(ErrMalformedToken)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return oops.Code(CodeInvalidToken).With("cause", err.Error()).Wrap(ErrInvalidSignature)
	case errors.Is(err, jwt.ErrTokenExpired):
		return oops.Code(CodeTokenExpired).Wrap(ErrTokenExpired)
	default:
		return oops.Code(CodeInvalidToken).With("cause", err.Error()).Wrap(ErrInvalidToken)
	}
}

// Compile-time interface check.
var _ TokenCodec = (*JWTCodec)(nil)
