package sqlite

import (
	"context"

	"github.com/aussiebroadwan/crm/internal/auth/domain"
)

type tenantsRepo struct {
	db dbtx
}

func (r *tenantsRepo) CreateTenant(ctx context.Context, t domain.Tenant) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, created_at) VALUES (?, ?, ?)`,
		t.ID, t.Name, toMillis(t.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *tenantsRepo) GetTenantByID(ctx context.Context, id string) (domain.Tenant, error) {
	var (
		t       domain.Tenant
		created int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM tenants WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &created)
	if err != nil {
		return domain.Tenant{}, mapNotFound(err)
	}
	t.CreatedAt = fromMillis(created)
	return t, nil
}

func (r *tenantsRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tenants`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}
