package store

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/juniorbasecompany/turna/domain"
)

const accountColumns = `id, email, name, auth_provider, role, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.AuthProvider, &a.Role, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) CreateAccount(ctx context.Context, a *domain.Account) error {
	a.Email = strings.ToLower(a.Email)
	_, err := s.db.Exec(ctx,
		`INSERT INTO account (id, email, name, auth_provider, role, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.Email, a.Name, a.AuthProvider, a.Role, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return mapPgError("create account", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	a, err := scanAccount(s.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM account WHERE id = $1`, id))
	if err != nil {
		return nil, mapPgError("get account", err)
	}
	return a, nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	a, err := scanAccount(s.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM account WHERE email = $1`, strings.ToLower(email)))
	if err != nil {
		return nil, mapPgError("get account by email", err)
	}
	return a, nil
}
