package authz

import (
	"context"

	"github.com/juniorbasecompany/turna/domain"
)

type contextKey string

const callerContextKey contextKey = "caller"

// Caller is the authenticated principal attached to every core operation:
// the (account, tenant) pair plus the member role resolved at token time.
// Limited callers hold a PENDING-invite token and may only accept or
// reject that tenant's invite.
type Caller struct {
	AccountID string
	TenantID  string
	MemberID  string
	Role      domain.MemberRole
	Limited   bool
}

// SameTenant enforces tenant isolation. The error deliberately does not
// reveal whether the resource exists.
func (c Caller) SameTenant(tenantID string) error {
	if c.TenantID != tenantID {
		return domain.Forbidden("access denied")
	}
	return nil
}

// RequireAdmin gates tenant-admin operations.
func (c Caller) RequireAdmin() error {
	if err := c.RequireFull(); err != nil {
		return err
	}
	if c.Role != domain.RoleAdmin {
		return domain.Forbidden("admin role required")
	}
	return nil
}

// RequireFull rejects limited (invite-only) tokens.
func (c Caller) RequireFull() error {
	if c.Limited {
		return domain.Forbidden("token only authorizes invite acceptance")
	}
	return nil
}

// WithCaller stores the caller in the request context.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerContextKey, c)
}

// CallerFrom extracts the caller from the request context.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerContextKey).(Caller)
	return c, ok
}
