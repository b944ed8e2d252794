package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"tt360.co/crm/internal/errs"
	"tt360.co/crm/internal/limiter"
	"tt360.co/crm/internal/obs"
)

// PrincipalStore resolves a login identifier to a user with its role and permissions.
type PrincipalStore interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
}

// Denylist records revoked token ids until they would have expired anyway.
type Denylist interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Login outcomes counted in crm_auth_login_attempts_total.
const (
	outcomeSuccess  = "success"
	outcomeInvalid  = "invalid_credentials"
	outcomeDisabled = "disabled"
	outcomeLocked   = "locked"
	outcomeError    = "error"
)

var errInvalidCredentials = errs.Unauthenticated("invalid credentials")

// Service verifies credentials, issues tokens and resolves bearer tokens to principals.
type Service struct {
	store    PrincipalStore
	tokens   *TokenService
	limiter  limiter.Limiter
	denylist Denylist
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithLimiter enables failed-login lockout.
func WithLimiter(l limiter.Limiter) ServiceOption {
	return func(s *Service) error {
		s.limiter = l
		return nil
	}
}

// WithDenylist enables token revocation.
func WithDenylist(d Denylist) ServiceOption {
	return func(s *Service) error {
		s.denylist = d
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(store PrincipalStore, tokens *TokenService, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: principal store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	svc := &Service{store: store, tokens: tokens}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Tokens exposes the token service used by the request authenticator.
func (s *Service) Tokens() *TokenService { return s.tokens }

// LoginResult is returned on successful login.
type LoginResult struct {
	Token     Token
	Principal Principal
}

// NormalizeEmail is the canonical form of a login identifier.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login verifies email and password and issues an access token. Unknown emails and wrong
// passwords fail identically.
func (s *Service) Login(ctx context.Context, email, password, remoteIP string) (LoginResult, error) {
	email = NormalizeEmail(email)
	ipHash := limiter.HashIP(remoteIP)

	if s.limiter != nil {
		ok, wait, err := s.limiter.Allow(ctx, email, ipHash)
		if err != nil {
			obs.ObserveLogin(outcomeError)
			return LoginResult{}, fmt.Errorf("login limiter: %w", err)
		}
		if !ok {
			obs.ObserveLogin(outcomeLocked)
			return LoginResult{}, errs.RateLimited(wait)
		}
	}

	user, err := s.store.FindUserByEmail(ctx, email)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		burnPasswordCheck(password)
		return LoginResult{}, s.loginFailed(ctx, email, ipHash)
	case err != nil:
		obs.ObserveLogin(outcomeError)
		return LoginResult{}, fmt.Errorf("find user: %w", err)
	}

	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return LoginResult{}, s.loginFailed(ctx, email, ipHash)
	}
	if !user.Active {
		obs.ObserveLogin(outcomeDisabled)
		return LoginResult{}, errs.Unauthenticated("account is disabled")
	}

	if s.limiter != nil {
		if err := s.limiter.Success(ctx, email, ipHash); err != nil {
			obs.Logger().Warn("login limiter reset failed", zap.String("email", email), zap.Error(err))
		}
	}

	tok, err := s.tokens.Issue(user.Email)
	if err != nil {
		obs.ObserveLogin(outcomeError)
		return LoginResult{}, err
	}
	obs.ObserveLogin(outcomeSuccess)
	return LoginResult{Token: tok, Principal: NewPrincipal(user)}, nil
}

func (s *Service) loginFailed(ctx context.Context, email string, ipHash []byte) error {
	obs.ObserveLogin(outcomeInvalid)
	if s.limiter == nil {
		return errInvalidCredentials
	}
	locked, wait, err := s.limiter.Failure(ctx, email, ipHash)
	if err != nil {
		obs.Logger().Warn("login limiter update failed", zap.String("email", email), zap.Error(err))
		return errInvalidCredentials
	}
	if locked {
		obs.Logger().Info("login locked", zap.String("email", email), zap.Duration("lock_for", wait))
	}
	return errInvalidCredentials
}

// LoadPrincipal resolves an identifier to a principal. Disabled users are reported as
// unauthenticated.
func (s *Service) LoadPrincipal(ctx context.Context, email string) (Principal, error) {
	user, err := s.store.FindUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return Principal{}, err
	}
	if !user.Active {
		return Principal{}, errs.Unauthenticated("account is disabled")
	}
	return NewPrincipal(user), nil
}

// ResolveToken validates a bearer token and loads its principal. ok is false when the
// token is invalid or revoked; err reports lookup failures.
func (s *Service) ResolveToken(ctx context.Context, token string) (Principal, bool, error) {
	if !s.tokens.Validate(token) {
		return Principal{}, false, nil
	}
	claims, err := s.tokens.Claims(token)
	if err != nil {
		return Principal{}, false, nil
	}
	if s.denylist != nil && claims.ID != "" {
		revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
		if err != nil {
			return Principal{}, false, fmt.Errorf("denylist lookup: %w", err)
		}
		if revoked {
			obs.ObserveTokenFailure("revoked")
			return Principal{}, false, nil
		}
	}
	p, err := s.LoadPrincipal(ctx, claims.Subject)
	if err != nil {
		return Principal{}, false, err
	}
	return p, true, nil
}

// Logout revokes the token until its natural expiry. Without a denylist it is a no-op,
// tokens stay valid until they expire.
func (s *Service) Logout(ctx context.Context, token string) error {
	if s.denylist == nil {
		return nil
	}
	claims, err := s.tokens.Claims(token)
	if err != nil {
		return errs.Unauthenticated("invalid token")
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		return nil
	}
	return s.denylist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}

// Revocable reports whether Logout has any effect.
func (s *Service) Revocable() bool { return s.denylist != nil }
