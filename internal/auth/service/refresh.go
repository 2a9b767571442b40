package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/crm/internal/auth/domain"
	"github.com/aussiebroadwan/crm/internal/auth/store"
	"github.com/aussiebroadwan/crm/pkg/cryptox"
	"github.com/aussiebroadwan/crm/pkg/idx"
	"github.com/aussiebroadwan/crm/pkg/slogx"
)

// RefreshService manages refresh credentials. Only a salted hash of each
// secret is stored; the plaintext leaves the service once, from Issue.
type RefreshService struct {
	Store store.Store
	Now   func() time.Time
}

// Issue creates a refresh credential for userID that lives for ttl and
// returns the plaintext secret together with the stored record.
func (s *RefreshService) Issue(ctx context.Context, userID string, ttl time.Duration) (string, domain.RefreshCredential, error) {
	if ttl <= 0 {
		return "", domain.RefreshCredential{}, errors.New("refresh: ttl must be positive")
	}

	secret, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", domain.RefreshCredential{}, err
	}
	hash, err := cryptox.HashSecret(secret)
	if err != nil {
		return "", domain.RefreshCredential{}, err
	}

	now := clock(s.Now)
	rec := domain.RefreshCredential{
		ID:         idx.NewAt(now).String(),
		UserID:     userID,
		SecretHash: hash,
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
	}
	if err := s.Store.RefreshCredentials().CreateRefreshCredential(ctx, rec); err != nil {
		return "", domain.RefreshCredential{}, transient(err)
	}
	return secret, rec, nil
}

// Redeem finds the record whose hash matches secret. The secret carries no
// record identifier, so every stored hash is compared in turn; this is linear
// in the number of stored credentials. A matching record past its expiry is
// deleted and reported as ErrRefreshExpired.
func (s *RefreshService) Redeem(ctx context.Context, secret string) (domain.RefreshCredential, error) {
	if secret == "" {
		return domain.RefreshCredential{}, ErrRefreshNotFound
	}

	recs, err := s.Store.RefreshCredentials().ListRefreshCredentials(ctx)
	if err != nil {
		return domain.RefreshCredential{}, transient(err)
	}

	for _, rec := range recs {
		if cryptox.VerifySecret(secret, rec.SecretHash) != nil {
			continue
		}

		if rec.Expired(clock(s.Now)) {
			if err := s.Store.RefreshCredentials().DeleteRefreshCredential(ctx, rec.ID); err != nil {
				slogx.FromContext(ctx).Warn("failed to delete expired refresh credential",
					slog.String("credential_id", rec.ID),
					slog.Any("error", err),
				)
			}
			return domain.RefreshCredential{}, ErrRefreshExpired
		}
		return rec, nil
	}
	return domain.RefreshCredential{}, ErrRefreshNotFound
}

// Revoke deletes a record by id. Revoking an unknown id is a no-op.
func (s *RefreshService) Revoke(ctx context.Context, id string) error {
	return transient(s.Store.RefreshCredentials().DeleteRefreshCredential(ctx, id))
}

// RevokeAllForUser deletes every refresh credential of a user.
func (s *RefreshService) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	n, err := s.Store.RefreshCredentials().DeleteUserRefreshCredentials(ctx, userID)
	return n, transient(err)
}
