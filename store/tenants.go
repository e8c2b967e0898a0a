package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/juniorbasecompany/turna/domain"
)

const tenantColumns = `id, name, label, timezone, locale, currency, created_at, updated_at`

func scanTenant(row pgx.Row) (*domain.Tenant, error) {
	var t domain.Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Label, &t.Timezone, &t.Locale, &t.Currency, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) CreateTenant(ctx context.Context, t *domain.Tenant) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO tenant (id, name, label, timezone, locale, currency, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.Name, t.Label, t.Timezone, t.Locale, t.Currency, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return mapPgError("create tenant", err)
	}
	return nil
}

func (s *Store) GetTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	t, err := scanTenant(s.db.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenant WHERE id = $1`, id))
	if err != nil {
		return nil, mapPgError("get tenant", err)
	}
	return t, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]*domain.Tenant, error) {
	rows, err := s.db.Query(ctx, `SELECT `+tenantColumns+` FROM tenant ORDER BY name`)
	if err != nil {
		return nil, mapPgError("list tenants", err)
	}
	defer rows.Close()

	var out []*domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, mapPgError("list tenants", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
