package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/juniorbasecompany/turna/domain"
)

const hospitalColumns = `id, tenant_id, name, label, prompt, color, created_at, updated_at`

func scanHospital(row pgx.Row) (*domain.Hospital, error) {
	var h domain.Hospital
	err := row.Scan(&h.ID, &h.TenantID, &h.Name, &h.Label, &h.Prompt, &h.Color, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (s *Store) CreateHospital(ctx context.Context, h *domain.Hospital) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO hospital (id, tenant_id, name, label, prompt, color, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		h.ID, h.TenantID, h.Name, h.Label, h.Prompt, h.Color, h.CreatedAt, h.UpdatedAt)
	if err != nil {
		return mapPgError("create hospital", err)
	}
	return nil
}

func (s *Store) GetHospital(ctx context.Context, id string) (*domain.Hospital, error) {
	h, err := scanHospital(s.db.QueryRow(ctx,
		`SELECT `+hospitalColumns+` FROM hospital WHERE id = $1`, id))
	if err != nil {
		return nil, mapPgError("get hospital", err)
	}
	return h, nil
}

func (s *Store) ListHospitals(ctx context.Context, tenantID string) ([]*domain.Hospital, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+hospitalColumns+` FROM hospital WHERE tenant_id = $1 ORDER BY name`, tenantID)
	if err != nil {
		return nil, mapPgError("list hospitals", err)
	}
	defer rows.Close()

	var out []*domain.Hospital
	for rows.Next() {
		h, err := scanHospital(rows)
		if err != nil {
			return nil, mapPgError("list hospitals", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
