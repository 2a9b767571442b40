package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/crm/internal/auth/domain"
)

const userColumns = `id, tenant_id, email, password_hash, first_name, last_name,
	avatar_url, role, active, created_at, updated_at`

type usersRepo struct {
	db dbtx
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u                domain.User
		role             string
		created, updated int64
	)
	err := row.Scan(
		&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.AvatarURL, &role, &u.Active, &created, &updated,
	)
	if err != nil {
		return domain.User{}, err
	}
	u.Role = domain.Role(role)
	u.CreatedAt = fromMillis(created)
	u.UpdatedAt = fromMillis(updated)
	return u, nil
}

func collectUsers(rows *sql.Rows) ([]domain.User, error) {
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *usersRepo) GetUserByID(ctx context.Context, tenantID, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = ? AND id = ?`,
		tenantID, id,
	)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) LookupUser(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) FindUsersByEmail(ctx context.Context, email string) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? ORDER BY created_at, id`,
		email,
	)
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

func (r *usersRepo) ListUsers(ctx context.Context, tenantID string) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = ? ORDER BY created_at, id`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.TenantID, u.Email, u.PasswordHash, u.FirstName, u.LastName,
		u.AvatarURL, string(u.Role), u.Active, toMillis(u.CreatedAt), toMillis(u.UpdatedAt),
	)
	return mapConstraint(err)
}

func (r *usersRepo) UpdateUser(ctx context.Context, u domain.User) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users
		SET email = ?, first_name = ?, last_name = ?, avatar_url = ?, role = ?, active = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?`,
		u.Email, u.FirstName, u.LastName, u.AvatarURL, string(u.Role), u.Active, toMillis(u.UpdatedAt),
		u.TenantID, u.ID,
	)
	if err != nil {
		return mapConstraint(err)
	}
	return affectedOrNotFound(res)
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, tenantID, userID, hash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE tenant_id = ? AND id = ?`,
		hash, tenantID, userID,
	)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (r *usersRepo) CountActiveAdmins(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE tenant_id = ? AND role = 'admin' AND active = 1`,
		tenantID,
	).Scan(&count)
	return count, err
}
