package service

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/aussiebroadwan/crm/internal/auth/domain"
	"github.com/aussiebroadwan/crm/internal/auth/metrics"
	"github.com/aussiebroadwan/crm/internal/auth/store"
	"github.com/aussiebroadwan/crm/pkg/cryptox"
	"github.com/aussiebroadwan/crm/pkg/idx"
	"github.com/aussiebroadwan/crm/pkg/slogx"
)

// ErrConflict is returned when an email is already taken within the tenant.
var ErrConflict = errors.New("conflict")

type CreateUserInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	AvatarURL string
	Role      domain.Role
}

// UserService manages the users of a tenant. Every operation is scoped to
// the actor's tenant; users of other tenants are reported as not found.
type UserService struct {
	Store       store.Store
	Credentials *RefreshService
	Activity    ActivitySink
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

// List returns the users of the actor's tenant. Administrators only.
func (s *UserService) List(ctx context.Context, actor Actor) ([]domain.User, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	users, err := s.Store.Users().ListUsers(ctx, actor.TenantID)
	if err != nil {
		return nil, transient(err)
	}
	for i := range users {
		users[i] = users[i].Sanitized()
	}
	return users, nil
}

// Get returns one user. Members may only read their own record.
func (s *UserService) Get(ctx context.Context, actor Actor, id string) (domain.User, error) {
	if !actor.IsAdmin() && actor.UserID != id {
		return domain.User{}, ErrForbidden
	}
	u, err := s.Store.Users().GetUserByID(ctx, actor.TenantID, id)
	if err != nil {
		return domain.User{}, storeErr(err)
	}
	return u.Sanitized(), nil
}

// Create adds a user to the actor's tenant. Administrators only.
func (s *UserService) Create(ctx context.Context, actor Actor, in CreateUserInput) (domain.User, error) {
	if !actor.IsAdmin() {
		return domain.User{}, ErrForbidden
	}

	u, err := s.newUser(actor.TenantID, in)
	if err != nil {
		return domain.User{}, err
	}
	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		return domain.User{}, storeErr(err)
	}

	slogx.FromContext(ctx).Info("user created",
		slog.String("user_id", u.ID),
		slog.String("role", string(u.Role)),
	)
	record(ctx, s.Activity, domain.ActivityEvent{
		Type:     domain.ActivityUserCreated,
		TenantID: u.TenantID,
		ActorID:  actor.UserID,
		TargetID: u.ID,
		At:       u.CreatedAt,
		Detail:   map[string]string{"role": string(u.Role)},
	})
	return u.Sanitized(), nil
}

func (s *UserService) newUser(tenantID string, in CreateUserInput) (domain.User, error) {
	email, err := validEmail(in.Email)
	if err != nil {
		return domain.User{}, err
	}
	if len(in.Password) < domain.MinPasswordLength {
		return domain.User{}, invalid("password", "must be at least 8 characters")
	}
	role := in.Role
	if role == "" {
		role = domain.RoleMember
	}
	if !role.Valid() {
		return domain.User{}, invalid("role", "must be admin or member")
	}

	hash, err := cryptox.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, err
	}

	now := clock(s.Now)
	return domain.User{
		ID:           idx.NewAt(now).String(),
		TenantID:     tenantID,
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		AvatarURL:    strings.TrimSpace(in.AvatarURL),
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// UpdateSelf applies a profile change to the actor's own record. Role and
// active flag cannot be changed this way.
func (s *UserService) UpdateSelf(ctx context.Context, actor Actor, p domain.UserProfile) (domain.User, error) {
	var updated domain.User
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		u, err := tx.Users().GetUserByID(ctx, actor.TenantID, actor.UserID)
		if err != nil {
			return storeErr(err)
		}
		if err := applyProfile(&u, p); err != nil {
			return err
		}
		u.UpdatedAt = clock(s.Now)
		if err := tx.Users().UpdateUser(ctx, u); err != nil {
			return storeErr(err)
		}
		updated = u
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}

	record(ctx, s.Activity, domain.ActivityEvent{
		Type:     domain.ActivityUserUpdated,
		TenantID: updated.TenantID,
		ActorID:  actor.UserID,
		TargetID: updated.ID,
		At:       updated.UpdatedAt,
	})
	return updated.Sanitized(), nil
}

// AdminUpdate lets an administrator change any user of their tenant. Role
// and status changes pass through CheckPrivilegeChange inside the same
// transaction that writes them. Deactivating a user revokes all of their
// refresh credentials.
func (s *UserService) AdminUpdate(ctx context.Context, actor Actor, id string, upd domain.UserAdminUpdate) (domain.User, error) {
	if !actor.IsAdmin() {
		return domain.User{}, ErrForbidden
	}
	if upd.Role != nil && !upd.Role.Valid() {
		return domain.User{}, invalid("role", "must be admin or member")
	}

	var before, after domain.User
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		u, err := tx.Users().GetUserByID(ctx, actor.TenantID, id)
		if err != nil {
			return storeErr(err)
		}
		before = u

		if upd.ChangesPrivileges() {
			if err := CheckPrivilegeChange(ctx, tx.Users(), actor, u, upd); err != nil {
				return err
			}
		}

		if err := applyProfile(&u, upd.UserProfile); err != nil {
			return err
		}
		if upd.Role != nil {
			u.Role = *upd.Role
		}
		if upd.Active != nil {
			u.Active = *upd.Active
		}
		u.UpdatedAt = clock(s.Now)

		if err := tx.Users().UpdateUser(ctx, u); err != nil {
			return storeErr(err)
		}
		after = u
		return nil
	})
	if err != nil {
		var ge *GuardError
		if errors.As(err, &ge) {
			s.Metrics.GuardRejection(ge.Rule)
			slogx.FromContext(ctx).Info("privilege change rejected",
				slog.String("target_id", id),
				slog.String("rule", ge.Rule),
			)
		}
		return domain.User{}, err
	}

	if before.Active && !after.Active && s.Credentials != nil {
		n, err := s.Credentials.RevokeAllForUser(ctx, after.ID)
		if err != nil {
			slogx.FromContext(ctx).Warn("failed to revoke refresh credentials of deactivated user",
				slog.String("user_id", after.ID),
				slog.Any("error", err),
			)
		} else {
			slogx.FromContext(ctx).Info("revoked refresh credentials",
				slog.String("user_id", after.ID),
				slog.Int64("count", n),
			)
		}
	}

	s.emitAdminUpdate(ctx, actor, before, after)
	return after.Sanitized(), nil
}

func (s *UserService) emitAdminUpdate(ctx context.Context, actor Actor, before, after domain.User) {
	ev := domain.ActivityEvent{
		TenantID: after.TenantID,
		ActorID:  actor.UserID,
		TargetID: after.ID,
		At:       after.UpdatedAt,
	}

	switch {
	case before.Active && !after.Active:
		ev.Type = domain.ActivityUserDeactivated
	case !before.Active && after.Active:
		ev.Type = domain.ActivityUserReactivated
	case before.Role != after.Role:
		ev.Type = domain.ActivityUserRoleChanged
		ev.Detail = map[string]string{"from": string(before.Role), "to": string(after.Role)}
	default:
		ev.Type = domain.ActivityUserUpdated
	}
	record(ctx, s.Activity, ev)
}

// SetPassword replaces a user's password. It is used by operator tooling,
// not exposed over HTTP.
func (s *UserService) SetPassword(ctx context.Context, tenantID, userID, password string) error {
	if len(password) < domain.MinPasswordLength {
		return invalid("password", "must be at least 8 characters")
	}
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return err
	}
	return storeErr(s.Store.Users().UpdatePasswordHash(ctx, tenantID, userID, hash))
}

func applyProfile(u *domain.User, p domain.UserProfile) error {
	if p.Email != nil {
		email, err := validEmail(*p.Email)
		if err != nil {
			return err
		}
		u.Email = email
	}
	if p.FirstName != nil {
		u.FirstName = strings.TrimSpace(*p.FirstName)
	}
	if p.LastName != nil {
		u.LastName = strings.TrimSpace(*p.LastName)
	}
	if p.AvatarURL != nil {
		u.AvatarURL = strings.TrimSpace(*p.AvatarURL)
	}
	return nil
}

func validEmail(raw string) (string, error) {
	email := domain.NormalizeEmail(raw)
	if email == "" {
		return "", invalid("email", "is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalid("email", "is not a valid address")
	}
	return email, nil
}

// storeErr translates store sentinels into service errors. Anything else is
// treated as a transient storage failure.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return err
	case errors.Is(err, store.ErrAlreadyExists):
		return ErrConflict
	default:
		return transient(err)
	}
}
