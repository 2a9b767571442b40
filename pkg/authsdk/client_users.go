package authsdk

import (
	"context"
	"net/http"
	"net/url"
)

// ListUsers returns the users of the caller's tenant. Administrators only.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var out ListUsersResponse
	if err := c.authorized(ctx, http.MethodGet, "/v1/users", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// GetUser returns one user of the caller's tenant.
func (c *Client) GetUser(ctx context.Context, id string) (*User, error) {
	var out User
	if err := c.authorized(ctx, http.MethodGet, "/v1/users/"+url.PathEscape(id), nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateUser adds a user to the caller's tenant. Administrators only.
func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	var out User
	if err := c.authorized(ctx, http.MethodPost, "/v1/users", req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateMe changes the caller's own profile.
func (c *Client) UpdateMe(ctx context.Context, req UpdateProfileRequest) (*User, error) {
	var out User
	if err := c.authorized(ctx, http.MethodPatch, "/v1/users/me", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateUser changes another user's profile, role or status.
// Administrators only.
func (c *Client) UpdateUser(ctx context.Context, id string, req UpdateUserRequest) (*User, error) {
	var out User
	if err := c.authorized(ctx, http.MethodPatch, "/v1/users/"+url.PathEscape(id), req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}
