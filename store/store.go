package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/juniorbasecompany/turna/domain"
)

// DBTX is the subset of pgx shared by pools and transactions, so every
// query method works unchanged inside WithTx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the sole mutator of persistent state. Solvers and extractors
// are pure computations that hand results back through it.
type Store struct {
	db   DBTX
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// Open connects the pool, verifies connectivity, and applies the schema.
func Open(ctx context.Context, databaseURL string, log zerolog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, domain.Wrap(domain.KindUnavailable, "invalid DATABASE_URL", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, domain.Wrap(domain.KindUnavailable, "database unreachable", err)
	}
	s := &Store{db: pool, pool: pool, log: log.With().Str("component", "store").Logger()}
	if err := s.applySchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// WithTx runs fn against a Store bound to one transaction. Nested calls
// reuse the ambient transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Wrap(domain.KindUnavailable, "begin transaction", err)
	}
	txStore := &Store{db: tx, log: s.log}
	if err := fn(txStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Wrap(domain.KindUnavailable, "commit transaction", err)
	}
	return nil
}

// mapPgError translates driver errors into domain kinds. Unique-constraint
// violations surface as Conflict so callers can report collisions without
// parsing SQLSTATE themselves.
func mapPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.Wrap(domain.KindConflict, op+": duplicate", err)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NotFound("%s: not found", op)
	}
	return domain.Wrap(domain.KindInternal, op, err)
}

// jsonArg marshals a JSON-shaped value for a jsonb parameter; nil maps to
// SQL NULL.
func jsonArg(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return nil, nil
		}
	case []string:
		if t == nil {
			return nil, nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, "encode json column", err)
	}
	return raw, nil
}

func unmarshalMap(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func unmarshalStrings(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func unmarshalVacation(raw []byte) []domain.VacationSpan {
	if len(raw) == 0 {
		return nil
	}
	var out []domain.VacationSpan
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
