package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/juniorbasecompany/turna/domain"
)

const fileColumns = `id, tenant_id, hospital_id, filename, content_type, blob_key, file_size, created_at`

func scanFile(row pgx.Row) (*domain.File, error) {
	var f domain.File
	err := row.Scan(&f.ID, &f.TenantID, &f.HospitalID, &f.Filename, &f.ContentType, &f.BlobKey, &f.FileSize, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *Store) CreateFile(ctx context.Context, f *domain.File) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO file (id, tenant_id, hospital_id, filename, content_type, blob_key, file_size, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		f.ID, f.TenantID, f.HospitalID, f.Filename, f.ContentType, f.BlobKey, f.FileSize, f.CreatedAt)
	if err != nil {
		return mapPgError("create file", err)
	}
	return nil
}

func (s *Store) GetFile(ctx context.Context, id string) (*domain.File, error) {
	f, err := scanFile(s.db.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM file WHERE id = $1`, id))
	if err != nil {
		return nil, mapPgError("get file", err)
	}
	return f, nil
}

func (s *Store) ListFiles(ctx context.Context, tenantID string, limit, offset int) ([]*domain.File, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+fileColumns+` FROM file WHERE tenant_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		tenantID, limit, offset)
	if err != nil {
		return nil, mapPgError("list files", err)
	}
	defer rows.Close()

	var out []*domain.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, mapPgError("list files", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) DeleteFile(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM file WHERE id = $1`, id)
	if err != nil {
		return mapPgError("delete file", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("file not found")
	}
	return nil
}
