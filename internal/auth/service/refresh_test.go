package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/crm/internal/auth/service"
	"github.com/stretchr/testify/require"
)

func TestRefresh_IssueStoresOnlyHash(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	secret, rec, err := f.refresh.Issue(ctx, "user-1", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, secret)
	require.NotContains(t, rec.SecretHash, secret)
	require.Equal(t, f.clock.Now().Add(time.Hour), rec.ExpiresAt)

	stored, err := f.store.RefreshCredentials().ListRefreshCredentials(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, rec.ID, stored[0].ID)
	require.NotEqual(t, secret, stored[0].SecretHash)
}

func TestRefresh_RedeemFindsMatchAmongMany(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var want string
	for i := 0; i < 5; i++ {
		secret, rec, err := f.refresh.Issue(ctx, "user-x", time.Hour)
		require.NoError(t, err)
		if i == 3 {
			got, err := f.refresh.Redeem(ctx, secret)
			require.NoError(t, err)
			want = rec.ID
			require.Equal(t, want, got.ID)
			require.Equal(t, "user-x", got.UserID)
		}
	}
	require.NotEmpty(t, want)
}

func TestRefresh_RedeemUnknownSecret(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, _, err := f.refresh.Issue(ctx, "user-1", time.Hour)
	require.NoError(t, err)

	_, err = f.refresh.Redeem(ctx, "not-a-real-secret")
	require.ErrorIs(t, err, service.ErrRefreshNotFound)

	_, err = f.refresh.Redeem(ctx, "")
	require.ErrorIs(t, err, service.ErrRefreshNotFound)
}

func TestRefresh_RedeemExpiredDeletesRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	secret, _, err := f.refresh.Issue(ctx, "user-1", time.Hour)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = f.refresh.Redeem(ctx, secret)
	require.ErrorIs(t, err, service.ErrRefreshExpired)

	stored, err := f.store.RefreshCredentials().ListRefreshCredentials(ctx)
	require.NoError(t, err)
	require.Empty(t, stored, "expired record must be removed on encounter")

	_, err = f.refresh.Redeem(ctx, secret)
	require.ErrorIs(t, err, service.ErrRefreshNotFound)
}

func TestRefresh_RevokeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	secret, rec, err := f.refresh.Issue(ctx, "user-1", time.Hour)
	require.NoError(t, err)

	require.NoError(t, f.refresh.Revoke(ctx, rec.ID))
	require.NoError(t, f.refresh.Revoke(ctx, rec.ID))
	require.NoError(t, f.refresh.Revoke(ctx, "never-existed"))

	_, err = f.refresh.Redeem(ctx, secret)
	require.ErrorIs(t, err, service.ErrRefreshNotFound)
}

func TestRefresh_RevokeAllForUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		_, _, err := f.refresh.Issue(ctx, "user-1", time.Hour)
		require.NoError(t, err)
	}
	keep, _, err := f.refresh.Issue(ctx, "user-2", time.Hour)
	require.NoError(t, err)

	n, err := f.refresh.RevokeAllForUser(ctx, "user-1")
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	_, err = f.refresh.Redeem(ctx, keep)
	require.NoError(t, err)
}

func TestRefresh_IssueRejectsNonPositiveTTL(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.refresh.Issue(context.Background(), "user-1", 0)
	require.Error(t, err)
}
