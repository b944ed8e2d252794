package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"tt360.co/crm/internal/obs"
)

const (
	// DefaultTokenLifetime applies when no lifetime is configured.
	DefaultTokenLifetime = 24 * time.Hour

	minKeyBytes = 32
)

// Failure kinds reported when a token is rejected.
const (
	FailureMalformed    = "malformed"
	FailureExpired      = "expired"
	FailureUnsupported  = "unsupported"
	FailureBadArgument  = "bad_argument"
	FailureBadSignature = "bad_signature"
)

var (
	errEmptyToken     = errors.New("token is empty")
	errUnsupportedAlg = errors.New("unsupported signing algorithm")
	errMissingSubject = errors.New("subject missing")
)

// Claims are the registered claims carried by access tokens.
type Claims struct {
	jwt.RegisteredClaims
}

// Token is a signed access token.
type Token struct {
	Value     string
	ID        string
	ExpiresAt time.Time
}

// TokenService issues and verifies HS256 access tokens. It is immutable after
// construction and safe for concurrent use.
type TokenService struct {
	key      []byte
	lifetime time.Duration
	now      func() time.Time
	parser   *jwt.Parser
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithTokenClock overrides the time source.
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// DecodeSecret decodes a base64url secret (padding optional) into an HMAC key.
func DecodeSecret(secret string) ([]byte, error) {
	secret = strings.TrimRight(strings.TrimSpace(secret), "=")
	if secret == "" {
		return nil, errors.New("auth: token secret is empty")
	}
	key, err := base64.RawURLEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("auth: token secret is not base64url: %w", err)
	}
	if len(key) < minKeyBytes {
		return nil, fmt.Errorf("auth: token secret must decode to at least %d bytes, got %d", minKeyBytes, len(key))
	}
	return key, nil
}

// NewTokenService builds a token service from a base64url secret. A non-positive
// lifetime selects DefaultTokenLifetime.
func NewTokenService(secret string, lifetime time.Duration, opts ...TokenOption) (*TokenService, error) {
	key, err := DecodeSecret(secret)
	if err != nil {
		return nil, err
	}
	if lifetime <= 0 {
		lifetime = DefaultTokenLifetime
	}
	s := &TokenService{
		key:      key,
		lifetime: lifetime,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.parser = jwt.NewParser(
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	return s, nil
}

// Lifetime reports the configured token lifetime.
func (s *TokenService) Lifetime() time.Duration { return s.lifetime }

// Issue signs a token whose subject is the principal identifier.
func (s *TokenService) Issue(subject string) (Token, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return Token{}, errors.New("auth: token subject is required")
	}
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{Value: signed, ID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Validate reports whether the token is well formed, correctly signed and unexpired.
// The failure kind is logged and counted but never returned.
func (s *TokenService) Validate(token string) bool {
	if _, err := s.parse(token); err != nil {
		kind := classifyTokenError(err)
		obs.Logger().Info("bearer token rejected", zap.String("kind", kind), zap.Error(err))
		obs.ObserveTokenFailure(kind)
		return false
	}
	return true
}

// SubjectOf returns the subject of a token. Callers validate the token first.
func (s *TokenService) SubjectOf(token string) (string, error) {
	claims, err := s.parse(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Claims returns the verified claims of a token.
func (s *TokenService) Claims(token string) (*Claims, error) {
	return s.parse(token)
}

func (s *TokenService) parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errEmptyToken
	}
	claims := &Claims{}
	_, err := s.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errUnsupportedAlg
		}
		return s.key, nil
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errMissingSubject
	}
	return claims, nil
}

func classifyTokenError(err error) string {
	switch {
	case errors.Is(err, errEmptyToken):
		return FailureBadArgument
	case errors.Is(err, errUnsupportedAlg):
		return FailureUnsupported
	case errors.Is(err, jwt.ErrTokenExpired):
		return FailureExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return FailureBadSignature
	default:
		return FailureMalformed
	}
}
