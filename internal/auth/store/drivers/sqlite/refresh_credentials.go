package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/crm/internal/auth/domain"
)

type refreshCredentialsRepo struct {
	db dbtx
}

func (r *refreshCredentialsRepo) CreateRefreshCredential(ctx context.Context, c domain.RefreshCredential) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_credentials (id, user_id, secret_hash, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.SecretHash, toMillis(c.ExpiresAt), toMillis(c.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *refreshCredentialsRepo) ListRefreshCredentials(ctx context.Context) ([]domain.RefreshCredential, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, secret_hash, expires_at, created_at
		FROM refresh_credentials ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RefreshCredential
	for rows.Next() {
		var (
			c                domain.RefreshCredential
			expires, created int64
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.SecretHash, &expires, &created); err != nil {
			return nil, err
		}
		c.ExpiresAt = fromMillis(expires)
		c.CreatedAt = fromMillis(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *refreshCredentialsRepo) DeleteRefreshCredential(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM refresh_credentials WHERE id = ?`, id)
	return err
}

func (r *refreshCredentialsRepo) DeleteUserRefreshCredentials(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_credentials WHERE user_id = ?`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *refreshCredentialsRepo) DeleteExpiredRefreshCredentials(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_credentials WHERE expires_at <= ?`, toMillis(now),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
