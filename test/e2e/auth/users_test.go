package auth_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/aussiebroadwan/crm/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestE2E_AdminRoutesForbiddenToMembers(t *testing.T) {
	baseURL := setupAuthContainer(t, relaxedLimits)
	admin, _ := bootstrapTenant(t, baseURL)
	member, _ := createMember(t, baseURL, admin)
	ctx := context.Background()

	users, err := admin.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)

	_, err = member.ListUsers(ctx)
	requireAPIError(t, err, http.StatusForbidden, authsdk.ErrorCodeForbidden)

	_, err = member.CreateUser(ctx, authsdk.CreateUserRequest{Email: "x@acme.test", Password: "long-enough"})
	requireAPIError(t, err, http.StatusForbidden, authsdk.ErrorCodeForbidden)

	me, err := member.UpdateMe(ctx, authsdk.UpdateProfileRequest{FirstName: ptr("Maxine")})
	require.NoError(t, err)
	require.Equal(t, "Maxine", me.FirstName)
}

func TestE2E_PrivilegeGuard(t *testing.T) {
	baseURL := setupAuthContainer(t, relaxedLimits)
	admin, boot := bootstrapTenant(t, baseURL)
	member, memberUser := createMember(t, baseURL, admin)
	ctx := context.Background()

	// The only admin cannot demote or deactivate themselves.
	_, err := admin.UpdateUser(ctx, boot.AdminUserID, authsdk.UpdateUserRequest{Role: ptr("member")})
	requireAPIError(t, err, http.StatusForbidden, authsdk.ErrorCodeForbidden)
	_, err = admin.UpdateUser(ctx, boot.AdminUserID, authsdk.UpdateUserRequest{Active: ptr(false)})
	requireAPIError(t, err, http.StatusForbidden, authsdk.ErrorCodeForbidden)

	// Promote the member, who can then demote the original admin.
	promoted, err := admin.UpdateUser(ctx, memberUser.ID, authsdk.UpdateUserRequest{Role: ptr("admin")})
	require.NoError(t, err)
	require.Equal(t, "admin", promoted.Role)

	// The member's access token still says "member" until refreshed, so sign
	// in again to pick up the new role.
	member = loginClient(t, baseURL, memberEmail, memberPassword)
	_, err = member.UpdateUser(ctx, boot.AdminUserID, authsdk.UpdateUserRequest{Role: ptr("member")})
	require.NoError(t, err)

	// The original admin's token still claims the admin role, but the
	// promoted member is now the only active administrator.
	_, err = admin.UpdateUser(ctx, memberUser.ID, authsdk.UpdateUserRequest{Active: ptr(false)})
	requireAPIError(t, err, http.StatusForbidden, authsdk.ErrorCodeForbidden)
	require.Contains(t, err.Error(), "only active administrator")
}

func TestE2E_DeactivationEndsSessions(t *testing.T) {
	baseURL := setupAuthContainer(t, relaxedLimits)
	admin, _ := bootstrapTenant(t, baseURL)
	member, memberUser := createMember(t, baseURL, admin)
	ctx := context.Background()

	_, err := admin.UpdateUser(ctx, memberUser.ID, authsdk.UpdateUserRequest{Active: ptr(false)})
	require.NoError(t, err)

	// The access token is still valid but the account is gone.
	_, err = member.Me(ctx)
	require.Error(t, err)

	_, err = authsdk.NewClient(baseURL).Login(ctx, authsdk.LoginRequest{Email: memberEmail, Password: memberPassword})
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials)
}
