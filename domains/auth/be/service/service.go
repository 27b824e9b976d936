// Package service orchestrates login: tenant resolution, session minting,
// and the translation of precise internal failures into the two coarse
// conditions a client is allowed to see.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/vendapro/vendapro-saas/domains/auth/be/repo"
	platformauth "github.com/vendapro/vendapro-saas/platform/go/auth"
	"github.com/vendapro/vendapro-saas/platform/go/tenant/resolver"
)

var (
	// ErrInvalidLogin covers unknown tenant, suspended tenant, and bad
	// credentials alike; distinguishing them externally would let a caller
	// enumerate tenants.
	ErrInvalidLogin = errors.New("auth: invalid credentials")
	// ErrTemporarilyUnavailable covers registry and tenant-database
	// infrastructure failures; clients may retry with backoff.
	ErrTemporarilyUnavailable = errors.New("auth: service temporarily unavailable")
)

type Service struct {
	resolver *resolver.Resolver
	sessions *platformauth.Manager
	timeout  time.Duration
	logger   *zap.Logger
}

func New(res *resolver.Resolver, sessions *platformauth.Manager, timeout time.Duration, logger *zap.Logger) *Service {
	if res == nil || sessions == nil {
		panic("auth service: resolver and session manager are required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{resolver: res, sessions: sessions, timeout: timeout, logger: logger}
}

type LoginInput struct {
	TaxID    string
	Username string
	Password string
}

type LoginOutput struct {
	Token       string
	ExpiresAt   time.Time
	DisplayName string
	UserName    string
	IsAdmin     bool
	IsManager   bool
}

// Login resolves the tenant and mints a session token. The resolution runs
// under a bounded timeout so an unreachable registry or tenant database
// fails fast instead of hanging the login.
func (s *Service) Login(ctx context.Context, in LoginInput) (LoginOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	session, err := s.resolver.Resolve(ctx, in.TaxID, in.Username, in.Password)
	if err != nil {
		var f *resolver.Failure
		if errors.As(err, &f) && f.Retryable() {
			return LoginOutput{}, ErrTemporarilyUnavailable
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return LoginOutput{}, ErrTemporarilyUnavailable
		}
		// The resolver already logged the precise reason.
		return LoginOutput{}, ErrInvalidLogin
	}

	token, expiresAt, err := s.sessions.Create(session)
	if err != nil {
		s.logger.Error("mint session token", zap.Error(err))
		return LoginOutput{}, ErrTemporarilyUnavailable
	}

	return LoginOutput{
		Token:       token,
		ExpiresAt:   expiresAt,
		DisplayName: session.DisplayName,
		UserName:    session.User.Name,
		IsAdmin:     session.User.IsAdmin,
		IsManager:   session.User.IsManager,
	}, nil
}

// Logout revokes the presented token; a token that never resolved is a no-op.
func (s *Service) Logout(token string) {
	s.sessions.Revoke(token)
}

// Profile loads the session user's row through the schema-scoped executor.
func (s *Service) Profile(ctx context.Context, session *resolver.Session) (repo.Profile, error) {
	return repo.FindProfile(ctx, session)
}
