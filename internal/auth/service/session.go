package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/crm/internal/auth/domain"
	"github.com/aussiebroadwan/crm/internal/auth/metrics"
	"github.com/aussiebroadwan/crm/internal/auth/store"
	"github.com/aussiebroadwan/crm/pkg/cryptox"
	"github.com/aussiebroadwan/crm/pkg/jwtx"
	"github.com/aussiebroadwan/crm/pkg/slogx"
)

// Outcome labels recorded by the session metrics.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeExpired            = "expired"
	OutcomeNotFound           = "not_found"
	OutcomeInactive           = "inactive"
	OutcomeError              = "error"
)

type LoginInput struct {
	Email      string
	Password   string
	RememberMe bool
}

// Session is what a successful login hands back to the transport layer.
type Session struct {
	AccessToken     string
	AccessExpiresAt time.Time

	RefreshSecret    string
	RefreshExpiresAt time.Time

	User domain.User
}

// RefreshedAccess is the result of exchanging a refresh credential.
type RefreshedAccess struct {
	AccessToken     string
	AccessExpiresAt time.Time
	User            domain.User
}

type SessionService struct {
	Store       store.Store
	Credentials *RefreshService
	Tokens      jwtx.Issuer

	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	RememberMeTTL time.Duration

	Activity ActivitySink
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

func (s *SessionService) accessTTL() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return jwtx.DefaultAccessTokenTTL
}

func (s *SessionService) refreshTTL(rememberMe bool) time.Duration {
	if rememberMe {
		if s.RememberMeTTL > 0 {
			return s.RememberMeTTL
		}
		return jwtx.DefaultRememberMeTTL
	}
	if s.RefreshTTL > 0 {
		return s.RefreshTTL
	}
	return jwtx.DefaultRefreshTokenTTL
}

// loginVerifyBudget is the number of password hashes every failed login
// pays for, so the response time does not reveal how many tenants share an
// email. Emails held in more tenants than this cost one verify per account.
const loginVerifyBudget = 3

// Login verifies email and password and opens a session. Every failure that
// depends on the account (unknown email, wrong password, inactive user) is
// reported as ErrInvalidCredentials after the same number of password hashes.
// When the email exists in several tenants, the first active account whose
// password matches wins; an inactive match never shadows an active one.
func (s *SessionService) Login(ctx context.Context, in LoginInput) (Session, error) {
	l := slogx.FromContext(ctx)
	email := domain.NormalizeEmail(in.Email)

	if email == "" || in.Password == "" {
		padVerifies(in.Password, 0)
		s.Metrics.LoginAttempt(OutcomeInvalidCredentials)
		return Session{}, ErrInvalidCredentials
	}

	candidates, err := s.Store.Users().FindUsersByEmail(ctx, email)
	if err != nil {
		s.Metrics.LoginAttempt(OutcomeError)
		return Session{}, transient(err)
	}
	if len(candidates) == 0 {
		padVerifies(in.Password, 0)
		s.failLogin(ctx, "", "unknown_email")
		return Session{}, ErrInvalidCredentials
	}

	var (
		user           domain.User
		matched        bool
		inactiveTenant string
		verified       int
	)
	for _, c := range candidates {
		verified++
		if cryptox.VerifyPassword(in.Password, c.PasswordHash) != nil {
			continue
		}
		if !c.Active {
			if inactiveTenant == "" {
				inactiveTenant = c.TenantID
			}
			continue
		}
		user, matched = c, true
		break
	}
	if !matched {
		padVerifies(in.Password, verified)
		if inactiveTenant != "" {
			s.failLogin(ctx, inactiveTenant, "inactive")
		} else {
			s.failLogin(ctx, candidates[0].TenantID, "password_mismatch")
		}
		return Session{}, ErrInvalidCredentials
	}

	access, accessExp, err := s.Tokens.IssueWithExpiry(jwtx.NewAccessClaims(user.ID, user.TenantID, string(user.Role)), s.accessTTL())
	if err != nil {
		s.Metrics.LoginAttempt(OutcomeError)
		return Session{}, err
	}

	secret, rec, err := s.Credentials.Issue(ctx, user.ID, s.refreshTTL(in.RememberMe))
	if err != nil {
		s.Metrics.LoginAttempt(OutcomeError)
		return Session{}, err
	}

	now := clock(s.Now)
	l.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("tenant_id", user.TenantID),
		slog.Bool("remember_me", in.RememberMe),
	)
	s.Metrics.LoginAttempt(OutcomeSuccess)
	record(ctx, s.Activity, domain.ActivityEvent{
		Type:     domain.ActivityLoginSucceeded,
		TenantID: user.TenantID,
		ActorID:  user.ID,
		TargetID: user.ID,
		At:       now,
	})

	return Session{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshSecret:    secret,
		RefreshExpiresAt: rec.ExpiresAt,
		User:             user.Sanitized(),
	}, nil
}

// padVerifies burns dummy hashes until loginVerifyBudget is spent.
func padVerifies(password string, spent int) {
	for ; spent < loginVerifyBudget; spent++ {
		cryptox.DummyVerify(password)
	}
}

func (s *SessionService) failLogin(ctx context.Context, tenantID, reason string) {
	slogx.FromContext(ctx).Info("login failed", slog.String("reason", reason))
	s.Metrics.LoginAttempt(OutcomeInvalidCredentials)
	record(ctx, s.Activity, domain.ActivityEvent{
		Type:     domain.ActivityLoginFailed,
		TenantID: tenantID,
		At:       clock(s.Now),
		Detail:   map[string]string{"reason": reason},
	})
}

// Refresh exchanges a refresh secret for a new access token. The refresh
// credential itself is left in place. The token carries the user's current
// role, so a demotion takes effect at the next refresh.
func (s *SessionService) Refresh(ctx context.Context, secret string) (RefreshedAccess, error) {
	l := slogx.FromContext(ctx)

	rec, err := s.Credentials.Redeem(ctx, secret)
	switch {
	case errors.Is(err, ErrRefreshExpired):
		s.Metrics.Refresh(OutcomeExpired)
		return RefreshedAccess{}, err
	case errors.Is(err, ErrRefreshNotFound):
		s.Metrics.Refresh(OutcomeNotFound)
		return RefreshedAccess{}, err
	case err != nil:
		s.Metrics.Refresh(OutcomeError)
		return RefreshedAccess{}, err
	}

	user, err := s.Store.Users().LookupUser(ctx, rec.UserID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.Metrics.Refresh(OutcomeError)
		return RefreshedAccess{}, transient(err)
	}
	if err != nil || !user.Active {
		l.Info("refresh credential belongs to a missing or inactive user", slog.String("user_id", rec.UserID))
		if rerr := s.Credentials.Revoke(ctx, rec.ID); rerr != nil {
			l.Warn("failed to revoke refresh credential", slog.Any("error", rerr))
		}
		s.Metrics.Refresh(OutcomeInactive)
		return RefreshedAccess{}, ErrUnauthenticated
	}

	access, accessExp, err := s.Tokens.IssueWithExpiry(jwtx.NewAccessClaims(user.ID, user.TenantID, string(user.Role)), s.accessTTL())
	if err != nil {
		s.Metrics.Refresh(OutcomeError)
		return RefreshedAccess{}, err
	}

	now := clock(s.Now)
	s.Metrics.Refresh(OutcomeSuccess)
	record(ctx, s.Activity, domain.ActivityEvent{
		Type:     domain.ActivitySessionRefresh,
		TenantID: user.TenantID,
		ActorID:  user.ID,
		TargetID: user.ID,
		At:       now,
	})

	return RefreshedAccess{
		AccessToken:     access,
		AccessExpiresAt: accessExp,
		User:            user.Sanitized(),
	}, nil
}

// Logout revokes the refresh credential behind secret if it can be found.
// An unknown or expired secret is not an error; only storage failures are
// returned, and callers clear client state regardless.
func (s *SessionService) Logout(ctx context.Context, secret string) error {
	s.Metrics.Logout()
	if secret == "" {
		return nil
	}

	rec, err := s.Credentials.Redeem(ctx, secret)
	if errors.Is(err, ErrRefreshNotFound) || errors.Is(err, ErrRefreshExpired) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.Credentials.Revoke(ctx, rec.ID); err != nil {
		return err
	}

	record(ctx, s.Activity, domain.ActivityEvent{
		Type:     domain.ActivitySessionLogout,
		ActorID:  rec.UserID,
		TargetID: rec.UserID,
		At:       clock(s.Now),
	})
	return nil
}

// Whoami returns the sanitized record of the authenticated user. A user that
// has since been removed or deactivated is reported as ErrUnauthenticated.
func (s *SessionService) Whoami(ctx context.Context, tenantID, userID string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, tenantID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUnauthenticated
	}
	if err != nil {
		return domain.User{}, transient(err)
	}
	if !u.Active {
		return domain.User{}, ErrUnauthenticated
	}
	return u.Sanitized(), nil
}
