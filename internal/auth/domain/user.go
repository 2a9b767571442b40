package domain

import (
	"strings"
	"time"
)

// Role is a user's authorization level within their tenant.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleAdmin || r == RoleMember }

// MinPasswordLength is the only password policy enforced.
const MinPasswordLength = 8

type User struct {
	ID           string
	TenantID     string
	Email        string // unique within tenant, stored lower-cased
	PasswordHash string // argon2 encoded, cleared by Sanitized
	FirstName    string
	LastName     string
	AvatarURL    string
	Role         Role
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Sanitized returns a copy of u safe to hand to callers.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	return u
}

// IsActiveAdmin reports whether u counts towards the tenant's active
// administrators.
func (u User) IsActiveAdmin() bool { return u.Active && u.Role == RoleAdmin }

// NormalizeEmail lower-cases and trims an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserProfile holds the fields a user may change on their own record. Nil
// fields are left untouched.
type UserProfile struct {
	FirstName *string
	LastName  *string
	Email     *string
	AvatarURL *string
}

// UserAdminUpdate is what an administrator may change on any user of their
// tenant. Role and Active go through the privilege-safety guard.
type UserAdminUpdate struct {
	UserProfile

	Role   *Role
	Active *bool
}

// ChangesPrivileges reports whether the update touches role or active flag.
func (u UserAdminUpdate) ChangesPrivileges() bool {
	return u.Role != nil || u.Active != nil
}
