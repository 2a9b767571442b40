package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/crm/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers implement it and
// expose sub-repositories so a transaction can hand out the same repos bound
// to the transaction.
type Store interface {
	Tenants() Tenants
	Users() Users
	RefreshCredentials() RefreshCredentials

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. It commits when fn returns nil
	// and rolls back otherwise. Read-check-write sequences such as the
	// privilege-safety guard must run inside WithTx.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Tenants interface {
	CreateTenant(ctx context.Context, t domain.Tenant) error
	GetTenantByID(ctx context.Context, id string) (domain.Tenant, error)

	// IsEmpty returns true if no tenant has been created yet.
	IsEmpty(ctx context.Context) (bool, error)
}

type Users interface {
	// GetUserByID returns a user scoped to tenantID. A user of another tenant
	// is reported as ErrNotFound.
	GetUserByID(ctx context.Context, tenantID, id string) (domain.User, error)

	// LookupUser returns a user by id regardless of tenant. Only session
	// refresh uses it, to resolve the subject of a refresh credential.
	LookupUser(ctx context.Context, id string) (domain.User, error)

	// FindUsersByEmail returns every user with this email across all tenants.
	// Login uses it because the caller has not named a tenant yet.
	FindUsersByEmail(ctx context.Context, email string) ([]domain.User, error)

	// ListUsers returns all users of a tenant ordered by creation.
	ListUsers(ctx context.Context, tenantID string) ([]domain.User, error)

	// CreateUser inserts a new user. A duplicate email within the tenant
	// yields ErrAlreadyExists.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateUser writes profile, role and active fields of an existing user
	// and bumps updated_at.
	UpdateUser(ctx context.Context, u domain.User) error

	// UpdatePasswordHash replaces the argon2 password hash of a user.
	UpdatePasswordHash(ctx context.Context, tenantID, userID, hash string) error

	// CountActiveAdmins returns the number of active administrators of a tenant.
	CountActiveAdmins(ctx context.Context, tenantID string) (int, error)
}

type RefreshCredentials interface {
	CreateRefreshCredential(ctx context.Context, c domain.RefreshCredential) error

	// ListRefreshCredentials returns every stored record, expired ones
	// included, so redemption can delete an expired match on encounter.
	ListRefreshCredentials(ctx context.Context) ([]domain.RefreshCredential, error)

	// DeleteRefreshCredential removes a record by id. Deleting a missing id
	// is not an error.
	DeleteRefreshCredential(ctx context.Context, id string) error

	// DeleteUserRefreshCredentials removes every record of a user.
	DeleteUserRefreshCredentials(ctx context.Context, userID string) (int64, error)

	// DeleteExpiredRefreshCredentials is housekeeping.
	DeleteExpiredRefreshCredentials(ctx context.Context, now time.Time) (int64, error)
}
