package store

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/juniorbasecompany/turna/domain"
)

const memberColumns = `id, tenant_id, account_id, email, role, status, name, can_peds, sequence, vacation, attribute, created_at, updated_at`

func scanMember(row pgx.Row) (*domain.Member, error) {
	var m domain.Member
	var vacation, attribute []byte
	err := row.Scan(&m.ID, &m.TenantID, &m.AccountID, &m.Email, &m.Role, &m.Status,
		&m.Name, &m.CanPeds, &m.Sequence, &vacation, &attribute, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Vacation = unmarshalVacation(vacation)
	m.Attribute = unmarshalMap(attribute)
	return &m, nil
}

func (s *Store) CreateMember(ctx context.Context, m *domain.Member) error {
	vacation, err := jsonArg(m.Vacation)
	if err != nil {
		return err
	}
	attribute, err := jsonArg(m.Attribute)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO member (id, tenant_id, account_id, email, role, status, name, can_peds, sequence, vacation, attribute, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		m.ID, m.TenantID, m.AccountID, m.Email, m.Role, m.Status, m.Name,
		m.CanPeds, m.Sequence, vacation, attribute, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return mapPgError("create member", err)
	}
	return nil
}

func (s *Store) GetMember(ctx context.Context, id string) (*domain.Member, error) {
	m, err := scanMember(s.db.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM member WHERE id = $1`, id))
	if err != nil {
		return nil, mapPgError("get member", err)
	}
	return m, nil
}

// FindMemberByTenantAccount resolves the (tenant, account) edge regardless
// of status.
func (s *Store) FindMemberByTenantAccount(ctx context.Context, tenantID, accountID string) (*domain.Member, error) {
	m, err := scanMember(s.db.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM member WHERE tenant_id = $1 AND account_id = $2`,
		tenantID, accountID))
	if err != nil {
		return nil, mapPgError("find member by account", err)
	}
	return m, nil
}

// FindUnboundMemberByTenantEmail resolves an invite that has no account yet.
func (s *Store) FindUnboundMemberByTenantEmail(ctx context.Context, tenantID, email string) (*domain.Member, error) {
	m, err := scanMember(s.db.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM member
		 WHERE tenant_id = $1 AND email = $2 AND account_id IS NULL`,
		tenantID, strings.ToLower(email)))
	if err != nil {
		return nil, mapPgError("find member by email", err)
	}
	return m, nil
}

// GetActiveMember returns the ACTIVE member for (account, tenant), if any.
func (s *Store) GetActiveMember(ctx context.Context, accountID, tenantID string) (*domain.Member, error) {
	m, err := scanMember(s.db.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM member
		 WHERE account_id = $1 AND tenant_id = $2 AND status = 'ACTIVE'`,
		accountID, tenantID))
	if err != nil {
		return nil, mapPgError("get active member", err)
	}
	return m, nil
}

// GetPendingMemberForAccount finds a PENDING invite addressed to the
// account, either bound by account_id or keyed by email.
func (s *Store) GetPendingMemberForAccount(ctx context.Context, accountID, email, tenantID string) (*domain.Member, error) {
	m, err := scanMember(s.db.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM member
		 WHERE tenant_id = $1 AND status = 'PENDING'
		   AND (account_id = $2 OR (account_id IS NULL AND email = $3))`,
		tenantID, accountID, strings.ToLower(email)))
	if err != nil {
		return nil, mapPgError("get pending member", err)
	}
	return m, nil
}

// UpdateMember rewrites the mutable columns of an existing member row.
func (s *Store) UpdateMember(ctx context.Context, m *domain.Member) error {
	vacation, err := jsonArg(m.Vacation)
	if err != nil {
		return err
	}
	attribute, err := jsonArg(m.Attribute)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE member
		 SET account_id = $2, email = $3, role = $4, status = $5, name = $6,
		     can_peds = $7, sequence = $8, vacation = $9, attribute = $10, updated_at = $11
		 WHERE id = $1`,
		m.ID, m.AccountID, m.Email, m.Role, m.Status, m.Name,
		m.CanPeds, m.Sequence, vacation, attribute, m.UpdatedAt)
	if err != nil {
		return mapPgError("update member", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("member not found")
	}
	return nil
}

// UpdateMemberStatusCAS flips status only when the row still holds the
// expected value: of concurrent transitions from the same status, the
// first to commit applies and the others report false.
func (s *Store) UpdateMemberStatusCAS(ctx context.Context, id string, from, to domain.MemberStatus, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE member SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`,
		id, from, to, now)
	if err != nil {
		return false, mapPgError("member status transition", err)
	}
	return tag.RowsAffected() == 1, nil
}

// BindMemberAccount attaches an account to an unbound invite, filling name
// and email only when empty.
func (s *Store) BindMemberAccount(ctx context.Context, id, accountID, name, email string, now time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE member
		 SET account_id = $2,
		     name = COALESCE(NULLIF(name, ''), NULLIF($3, '')),
		     email = COALESCE(NULLIF(email, ''), NULLIF($4, '')),
		     updated_at = $5
		 WHERE id = $1 AND account_id IS NULL`,
		id, accountID, name, strings.ToLower(email), now)
	if err != nil {
		return mapPgError("bind member account", err)
	}
	return nil
}

// BindPendingInvites attaches every pending invite keyed by email to the
// given account. Returns the number of invites bound.
func (s *Store) BindPendingInvites(ctx context.Context, accountID, email string, now time.Time) (int, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE member SET account_id = $1, updated_at = $3
		 WHERE account_id IS NULL AND email = $2 AND status = 'PENDING'`,
		accountID, strings.ToLower(email), now)
	if err != nil {
		return 0, mapPgError("bind pending invites", err)
	}
	return int(tag.RowsAffected()), nil
}

// CountActiveMembers counts the account's ACTIVE memberships across all
// tenants. The last-foothold rule forbids dropping this to zero.
func (s *Store) CountActiveMembers(ctx context.Context, accountID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM member WHERE account_id = $1 AND status = 'ACTIVE'`,
		accountID).Scan(&n)
	if err != nil {
		return 0, mapPgError("count active members", err)
	}
	return n, nil
}

// ListActiveTenants enumerates the tenants where the account holds an
// ACTIVE membership, for session selection.
func (s *Store) ListActiveTenants(ctx context.Context, accountID string) ([]*domain.Tenant, error) {
	rows, err := s.db.Query(ctx,
		`SELECT t.`+strings.ReplaceAll(tenantColumns, ", ", ", t.")+`
		 FROM tenant t JOIN member m ON m.tenant_id = t.id
		 WHERE m.account_id = $1 AND m.status = 'ACTIVE'
		 ORDER BY t.name`, accountID)
	if err != nil {
		return nil, mapPgError("list active tenants", err)
	}
	defer rows.Close()

	var out []*domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, mapPgError("list active tenants", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// PendingInvite pairs an invite with the tenant it opens.
type PendingInvite struct {
	Member domain.Member
	Tenant domain.Tenant
}

// ListPendingInvites enumerates PENDING invites addressed to the account,
// bound by account_id or keyed by email.
func (s *Store) ListPendingInvites(ctx context.Context, accountID, email string) ([]PendingInvite, error) {
	rows, err := s.db.Query(ctx,
		`SELECT m.`+strings.ReplaceAll(memberColumns, ", ", ", m.")+`,
		        t.`+strings.ReplaceAll(tenantColumns, ", ", ", t.")+`
		 FROM member m JOIN tenant t ON t.id = m.tenant_id
		 WHERE m.status = 'PENDING'
		   AND (m.account_id = $1 OR (m.account_id IS NULL AND m.email = $2))
		 ORDER BY m.created_at`,
		accountID, strings.ToLower(email))
	if err != nil {
		return nil, mapPgError("list pending invites", err)
	}
	defer rows.Close()

	var out []PendingInvite
	for rows.Next() {
		var m domain.Member
		var t domain.Tenant
		var vacation, attribute []byte
		err := rows.Scan(&m.ID, &m.TenantID, &m.AccountID, &m.Email, &m.Role, &m.Status,
			&m.Name, &m.CanPeds, &m.Sequence, &vacation, &attribute, &m.CreatedAt, &m.UpdatedAt,
			&t.ID, &t.Name, &t.Label, &t.Timezone, &t.Locale, &t.Currency, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return nil, mapPgError("list pending invites", err)
		}
		m.Vacation = unmarshalVacation(vacation)
		m.Attribute = unmarshalMap(attribute)
		out = append(out, PendingInvite{Member: m, Tenant: t})
	}
	return out, rows.Err()
}

// ListActivePros returns the tenant's schedulable professionals: ACTIVE
// members with a priority order, sorted by sequence.
func (s *Store) ListActivePros(ctx context.Context, tenantID string) ([]*domain.Member, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+memberColumns+` FROM member
		 WHERE tenant_id = $1 AND status = 'ACTIVE' AND sequence > 0
		 ORDER BY sequence`, tenantID)
	if err != nil {
		return nil, mapPgError("list active pros", err)
	}
	defer rows.Close()

	var out []*domain.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, mapPgError("list active pros", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
