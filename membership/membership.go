package membership

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/juniorbasecompany/turna/audit"
	"github.com/juniorbasecompany/turna/authz"
	"github.com/juniorbasecompany/turna/clock"
	"github.com/juniorbasecompany/turna/domain"
	"github.com/juniorbasecompany/turna/store"
)

// Store is the persistence surface the membership service needs.
type Store interface {
	GetTenant(ctx context.Context, id string) (*domain.Tenant, error)
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error)
	CreateAccount(ctx context.Context, a *domain.Account) error
	GetMember(ctx context.Context, id string) (*domain.Member, error)
	CreateMember(ctx context.Context, m *domain.Member) error
	UpdateMember(ctx context.Context, m *domain.Member) error
	UpdateMemberStatusCAS(ctx context.Context, id string, from, to domain.MemberStatus, now time.Time) (bool, error)
	BindMemberAccount(ctx context.Context, id, accountID, name, email string, now time.Time) error
	BindPendingInvites(ctx context.Context, accountID, email string, now time.Time) (int, error)
	FindMemberByTenantAccount(ctx context.Context, tenantID, accountID string) (*domain.Member, error)
	FindUnboundMemberByTenantEmail(ctx context.Context, tenantID, email string) (*domain.Member, error)
	GetActiveMember(ctx context.Context, accountID, tenantID string) (*domain.Member, error)
	GetPendingMemberForAccount(ctx context.Context, accountID, email, tenantID string) (*domain.Member, error)
	CountActiveMembers(ctx context.Context, accountID string) (int, error)
	ListActiveTenants(ctx context.Context, accountID string) ([]*domain.Tenant, error)
	ListPendingInvites(ctx context.Context, accountID, email string) ([]store.PendingInvite, error)
}

var _ Store = (*store.Store)(nil)

// Service implements the membership operations: invite lifecycle, tenant
// selection, and account binding at first sign-in.
type Service struct {
	store  Store
	audit  *audit.Recorder
	tokens *authz.TokenIssuer
	clock  clock.Clock
	log    zerolog.Logger
}

func NewService(st Store, auditRec *audit.Recorder, tokens *authz.TokenIssuer, clk clock.Clock, log zerolog.Logger) *Service {
	return &Service{
		store:  st,
		audit:  auditRec,
		tokens: tokens,
		clock:  clk,
		log:    log.With().Str("component", "membership").Logger(),
	}
}

// InviteResult reports the invite's state after the operation.
type InviteResult struct {
	MemberID string              `json:"member_id"`
	Email    string              `json:"email"`
	Status   domain.MemberStatus `json:"status"`
	Role     domain.MemberRole   `json:"role"`
}

// Invite creates or reactivates a PENDING membership for an email.
// Admin-only and idempotent on (tenant, email-or-account): an existing
// ACTIVE member is returned unchanged, a REJECTED or REMOVED one is
// reinvited to PENDING with the new role. No Account is created here;
// pending invites with no account are keyed by email and bound at first
// sign-in.
func (s *Service) Invite(ctx context.Context, caller authz.Caller, tenantID, email string, role domain.MemberRole, displayName string) (*InviteResult, error) {
	if err := caller.RequireAdmin(); err != nil {
		return nil, err
	}
	if err := caller.SameTenant(tenantID); err != nil {
		return nil, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, domain.BadRequest("email is required")
	}
	if role != domain.RoleAdmin && role != domain.RoleAccount {
		return nil, domain.BadRequest("invalid role %q (expected: admin|account)", string(role))
	}
	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	// The target may already hold an account (created by another tenant's
	// invite or an earlier sign-in); then the membership edge is keyed by
	// account, not by email.
	var account *domain.Account
	if acc, err := s.store.GetAccountByEmail(ctx, email); err == nil {
		account = acc
	} else if !domain.IsNotFound(err) {
		return nil, err
	}

	var existing *domain.Member
	if account != nil {
		existing, err = s.store.FindMemberByTenantAccount(ctx, tenant.ID, account.ID)
	} else {
		existing, err = s.store.FindUnboundMemberByTenantEmail(ctx, tenant.ID, email)
	}
	if err != nil && !domain.IsNotFound(err) {
		return nil, err
	}

	now := s.clock.Now()
	if existing != nil {
		prevStatus, prevRole := existing.Status, existing.Role
		if existing.Status == domain.MemberRejected || existing.Status == domain.MemberRemoved {
			existing.Status = domain.MemberPending
		}
		if existing.Status == domain.MemberPending {
			existing.Role = role
		}
		if displayName != "" && (existing.Name == nil || *existing.Name == "") {
			existing.Name = &displayName
		}
		existing.UpdatedAt = now
		if err := s.store.UpdateMember(ctx, existing); err != nil {
			return nil, err
		}
		if prevStatus != existing.Status || prevRole != existing.Role {
			s.recordStatusChange(caller, existing, "member_invited", map[string]any{
				"email":       email,
				"from_status": string(prevStatus),
				"to_status":   string(existing.Status),
				"from_role":   string(prevRole),
				"to_role":     string(existing.Role),
			})
		}
		return inviteResult(existing, email), nil
	}

	member := &domain.Member{
		ID:        uuid.NewString(),
		TenantID:  tenant.ID,
		Role:      role,
		Status:    domain.MemberPending,
		Email:     &email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if account != nil {
		member.AccountID = &account.ID
	}
	if displayName != "" {
		member.Name = &displayName
	}
	if err := s.store.CreateMember(ctx, member); err != nil {
		if domain.IsConflict(err) {
			return nil, domain.Conflict("a membership for this email already exists in the tenant")
		}
		return nil, err
	}
	s.recordStatusChange(caller, member, "member_invited", map[string]any{
		"email":     email,
		"to_status": string(member.Status),
		"to_role":   string(member.Role),
	})
	return inviteResult(member, email), nil
}

func inviteResult(m *domain.Member, email string) *InviteResult {
	if m.Email != nil && *m.Email != "" {
		email = *m.Email
	}
	return &InviteResult{MemberID: m.ID, Email: email, Status: m.Status, Role: m.Role}
}

// Accept transitions a PENDING invite to ACTIVE. The caller must own the
// member by account_id or, for unbound invites, by email — the binding
// moment. The transition is a CAS on PENDING; a concurrently resolved
// invite surfaces as BadRequest.
func (s *Service) Accept(ctx context.Context, accountID, memberID string) (*domain.Member, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	member, err := s.store.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if member.AccountID != nil {
		if *member.AccountID != account.ID {
			return nil, domain.Forbidden("access denied")
		}
	} else {
		if member.Email == nil || !strings.EqualFold(*member.Email, account.Email) {
			return nil, domain.Forbidden("access denied")
		}
		if err := s.store.BindMemberAccount(ctx, member.ID, account.ID, account.Name, account.Email, now); err != nil {
			return nil, err
		}
	}

	if member.Status != domain.MemberPending {
		return nil, domain.BadRequest("invite is not PENDING")
	}
	ok, err := s.store.UpdateMemberStatusCAS(ctx, member.ID, domain.MemberPending, domain.MemberActive, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.BadRequest("invite is not PENDING")
	}

	updated, err := s.store.GetMember(ctx, member.ID)
	if err != nil {
		return nil, err
	}
	s.recordStatusChange(authz.Caller{AccountID: account.ID, TenantID: member.TenantID}, updated,
		"member_status_changed", map[string]any{
			"from_status": string(domain.MemberPending),
			"to_status":   string(domain.MemberActive),
		})
	return updated, nil
}

// Reject transitions a PENDING invite to REJECTED.
func (s *Service) Reject(ctx context.Context, accountID, memberID string) (*domain.Member, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	member, err := s.store.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	owned := member.AccountID != nil && *member.AccountID == account.ID
	if !owned && member.AccountID == nil {
		owned = member.Email != nil && strings.EqualFold(*member.Email, account.Email)
	}
	if !owned {
		return nil, domain.Forbidden("access denied")
	}
	if member.Status != domain.MemberPending {
		return nil, domain.BadRequest("invite is not PENDING")
	}
	ok, err := s.store.UpdateMemberStatusCAS(ctx, member.ID, domain.MemberPending, domain.MemberRejected, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.BadRequest("invite is not PENDING")
	}
	updated, err := s.store.GetMember(ctx, member.ID)
	if err != nil {
		return nil, err
	}
	s.recordStatusChange(authz.Caller{AccountID: account.ID, TenantID: member.TenantID}, updated,
		"member_status_changed", map[string]any{
			"from_status": string(domain.MemberPending),
			"to_status":   string(domain.MemberRejected),
		})
	return updated, nil
}

// Remove soft-deletes a member (status → REMOVED). Admin-only, same
// tenant, and subject to the last-foothold rule: an account's final
// ACTIVE membership cannot be removed — callers must secure another
// access first.
func (s *Service) Remove(ctx context.Context, caller authz.Caller, memberID string) (*domain.Member, error) {
	if err := caller.RequireAdmin(); err != nil {
		return nil, err
	}
	member, err := s.store.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if err := caller.SameTenant(member.TenantID); err != nil {
		return nil, err
	}

	if member.Status == domain.MemberActive && member.AccountID != nil {
		active, err := s.store.CountActiveMembers(ctx, *member.AccountID)
		if err != nil {
			return nil, err
		}
		if active <= 1 {
			return nil, domain.Conflict("cannot remove the account's last ACTIVE membership; grant another access first")
		}
	}

	prevStatus := member.Status
	ok, err := s.store.UpdateMemberStatusCAS(ctx, member.ID, prevStatus, domain.MemberRemoved, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.Conflict("member status changed concurrently; retry")
	}
	updated, err := s.store.GetMember(ctx, member.ID)
	if err != nil {
		return nil, err
	}
	s.recordStatusChange(caller, updated, "member_status_changed", map[string]any{
		"from_status": string(prevStatus),
		"to_status":   string(domain.MemberRemoved),
	})
	return updated, nil
}

// ListActiveTenants enumerates the tenants available for session
// selection.
func (s *Service) ListActiveTenants(ctx context.Context, accountID string) ([]*domain.Tenant, error) {
	return s.store.ListActiveTenants(ctx, accountID)
}

// ListPendingInvites enumerates the account's open invites, including
// unbound ones keyed by its email.
func (s *Service) ListPendingInvites(ctx context.Context, accountID string) ([]store.PendingInvite, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.store.ListPendingInvites(ctx, accountID, account.Email)
}

// SelectTenant issues a session token scoped to the chosen tenant. An
// ACTIVE membership yields a full token; a PENDING invite yields a
// limited token sufficient only to accept or reject it.
func (s *Service) SelectTenant(ctx context.Context, accountID, tenantID string) (token string, limited bool, err error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return "", false, err
	}

	member, err := s.store.GetActiveMember(ctx, accountID, tenantID)
	if err == nil {
		tok, err := s.tokens.Issue(authz.Caller{
			AccountID: account.ID,
			TenantID:  tenantID,
			MemberID:  member.ID,
			Role:      member.Role,
		})
		return tok, false, err
	}
	if !domain.IsNotFound(err) {
		return "", false, err
	}

	pending, err := s.store.GetPendingMemberForAccount(ctx, accountID, account.Email, tenantID)
	if err != nil {
		if domain.IsNotFound(err) {
			return "", false, domain.Forbidden("no ACTIVE membership or PENDING invite for this tenant")
		}
		return "", false, err
	}
	if pending.AccountID == nil {
		if err := s.store.BindMemberAccount(ctx, pending.ID, account.ID, account.Name, account.Email, s.clock.Now()); err != nil {
			return "", false, err
		}
	}
	tok, err := s.tokens.Issue(authz.Caller{
		AccountID: account.ID,
		TenantID:  tenantID,
		MemberID:  pending.ID,
		Role:      pending.Role,
		Limited:   true,
	})
	return tok, true, err
}

// EnsureAccount resolves (or creates) the account for an authenticated
// identity and binds every pending invite keyed by its email, so
// acceptInvite works from the first session.
func (s *Service) EnsureAccount(ctx context.Context, email, name, provider string) (*domain.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, domain.BadRequest("email is required")
	}
	account, err := s.store.GetAccountByEmail(ctx, email)
	if err != nil && !domain.IsNotFound(err) {
		return nil, err
	}
	now := s.clock.Now()
	if account == nil {
		account = &domain.Account{
			ID:           uuid.NewString(),
			Email:        email,
			Name:         name,
			AuthProvider: provider,
			Role:         string(domain.RoleAccount),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.store.CreateAccount(ctx, account); err != nil {
			if !domain.IsConflict(err) {
				return nil, err
			}
			// Concurrent first sign-in; the other writer won.
			account, err = s.store.GetAccountByEmail(ctx, email)
			if err != nil {
				return nil, err
			}
		}
	}
	bound, err := s.store.BindPendingInvites(ctx, account.ID, email, now)
	if err != nil {
		return nil, err
	}
	if bound > 0 {
		s.log.Info().Str("account_id", account.ID).Int("invites_bound", bound).
			Msg("pending invites bound to account")
	}
	return account, nil
}

func (s *Service) recordStatusChange(caller authz.Caller, member *domain.Member, eventType string, data map[string]any) {
	if s.audit == nil {
		return
	}
	tenantID := member.TenantID
	memberID := member.ID
	s.audit.Record(audit.Event{
		TenantID:  &tenantID,
		AccountID: caller.AccountID,
		MemberID:  &memberID,
		Type:      eventType,
		Data:      data,
		CreatedAt: s.clock.Now(),
	})
}
