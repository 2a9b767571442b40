package service

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/crm/internal/auth/domain"
	"github.com/aussiebroadwan/crm/internal/auth/store"
	"github.com/aussiebroadwan/crm/pkg/idx"
	"github.com/aussiebroadwan/crm/pkg/slogx"
)

// BootstrapService creates the first tenant and its administrator.
type BootstrapService struct {
	Store store.Store
	Token string // pre-configured bootstrap token; empty disables the HTTP route
	Now   func() time.Time
}

// IsBootstrapped reports whether any tenant exists.
func (s *BootstrapService) IsBootstrapped(ctx context.Context) (bool, error) {
	empty, err := s.Store.Tenants().IsEmpty(ctx)
	if err != nil {
		return false, transient(err)
	}
	return !empty, nil
}

// Bootstrap checks the bootstrap token and then seeds the system.
func (s *BootstrapService) Bootstrap(ctx context.Context, token string, req domain.BootstrapData) (domain.BootstrapResult, error) {
	l := slogx.FromContext(ctx)

	if bootstrapped, err := s.IsBootstrapped(ctx); err != nil {
		return domain.BootstrapResult{}, err
	} else if bootstrapped {
		l.Warn("attempted bootstrap on already-bootstrapped system")
		return domain.BootstrapResult{}, ErrBootstrapAlready
	}

	if s.Token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.Token)) != 1 {
		l.Warn("unauthorized bootstrap attempt")
		return domain.BootstrapResult{}, ErrBootstrapUnauthorized
	}

	return s.Seed(ctx, req)
}

// Seed creates the tenant and its administrator in one transaction without a
// token check. Operator tooling with direct database access calls it.
func (s *BootstrapService) Seed(ctx context.Context, req domain.BootstrapData) (domain.BootstrapResult, error) {
	l := slogx.FromContext(ctx)

	name := strings.TrimSpace(req.TenantName)
	if name == "" {
		return domain.BootstrapResult{}, invalid("tenant_name", "is required")
	}

	users := &UserService{Now: s.Now}
	now := clock(s.Now)
	tenant := domain.Tenant{ID: idx.NewAt(now).String(), Name: name, CreatedAt: now}

	admin, err := users.newUser(tenant.ID, CreateUserInput{
		Email:     req.AdminEmail,
		Password:  req.AdminPassword,
		FirstName: req.AdminFirstName,
		LastName:  req.AdminLastName,
		Role:      domain.RoleAdmin,
	})
	if err != nil {
		return domain.BootstrapResult{}, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		empty, err := tx.Tenants().IsEmpty(ctx)
		if err != nil {
			return transient(err)
		}
		if !empty {
			return ErrBootstrapAlready
		}
		if err := tx.Tenants().CreateTenant(ctx, tenant); err != nil {
			return storeErr(err)
		}
		return storeErr(tx.Users().CreateUser(ctx, admin))
	})
	if err != nil {
		return domain.BootstrapResult{}, err
	}

	l.Info("successfully bootstrapped system",
		slog.String("tenant_id", tenant.ID),
		slog.String("admin_user_id", admin.ID),
	)
	return domain.BootstrapResult{TenantID: tenant.ID, AdminUserID: admin.ID}, nil
}
