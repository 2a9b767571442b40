package authsdk

import "time"

// ============================================================================
// Error Response Types
// ============================================================================

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	// Error is the error code (e.g., "unauthenticated", "forbidden")
	Error string `json:"error"`

	// ErrorDescription is a human-readable description of the error
	ErrorDescription string `json:"error_description"`
}

// ValidationErrorResponse is returned when request fields fail validation.
type ValidationErrorResponse struct {
	// Code is always "validation_error"
	Code string `json:"code"`

	// Message is a human-readable error message
	Message string `json:"message"`

	// Details contains field-specific validation errors (field name: error message)
	Details map[string]string `json:"details,omitempty"`
}

// ============================================================================
// Session Types
// ============================================================================

// LoginRequest is the body of POST /v1/auth/login.
type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me,omitempty"`
}

// SessionResponse is returned by login and refresh. The credentials
// themselves travel in HTTP-only cookies.
type SessionResponse struct {
	User User `json:"user"`

	// AccessExpiresAt is when the access cookie's token stops verifying
	AccessExpiresAt time.Time `json:"access_expires_at"`
}

// ============================================================================
// User Types
// ============================================================================

// User is the sanitized user record.
type User struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListUsersResponse is returned by GET /v1/users.
type ListUsersResponse struct {
	Users []User `json:"users"`
}

// CreateUserRequest is the body of POST /v1/users.
type CreateUserRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`

	// Role is "admin" or "member" (default)
	Role string `json:"role,omitempty"`
}

// UpdateProfileRequest is the body of PATCH /v1/users/me. Omitted fields
// are left unchanged.
type UpdateProfileRequest struct {
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// UpdateUserRequest is the body of PATCH /v1/users/{id}. Role and Active
// changes are subject to the last-administrator rules.
type UpdateUserRequest struct {
	UpdateProfileRequest

	Role   *string `json:"role,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

// ============================================================================
// Bootstrap Types
// ============================================================================

// BootstrapRequest creates the first tenant and its administrator.
type BootstrapRequest struct {
	TenantName     string `json:"tenant_name"`
	AdminEmail     string `json:"admin_email"`
	AdminPassword  string `json:"admin_password"`
	AdminFirstName string `json:"admin_first_name,omitempty"`
	AdminLastName  string `json:"admin_last_name,omitempty"`
}

// BootstrapResponse carries the identifiers created by bootstrap.
type BootstrapResponse struct {
	TenantID    string `json:"tenant_id"`
	AdminUserID string `json:"admin_user_id"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse is returned by /livez and /readyz (readyz adds Checks).
type HealthResponse struct {
	// Status indicates the overall health status (e.g., "ok")
	Status string `json:"status"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	// Version is the service version string
	Version string `json:"version,omitempty"`

	// Checks contains readiness check results (only for /readyz)
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports the status of critical dependencies.
type HealthChecks struct {
	// Database indicates the database connection status
	Database string `json:"database"`

	// Signer indicates whether a signing secret is configured
	Signer string `json:"signer"`
}
