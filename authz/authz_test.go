package authz

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/juniorbasecompany/turna/clock"
	"github.com/juniorbasecompany/turna/domain"
)

func TestCallerTenantScoping(t *testing.T) {
	c := Caller{AccountID: "a1", TenantID: "t1", Role: domain.RoleAccount}
	if err := c.SameTenant("t1"); err != nil {
		t.Fatalf("same tenant rejected: %v", err)
	}
	if err := c.SameTenant("t2"); !domain.IsForbidden(err) {
		t.Fatalf("cross-tenant access = %v, want Forbidden", err)
	}
}

func TestCallerRoleChecks(t *testing.T) {
	admin := Caller{AccountID: "a1", TenantID: "t1", Role: domain.RoleAdmin}
	if err := admin.RequireAdmin(); err != nil {
		t.Fatalf("admin rejected: %v", err)
	}
	regular := Caller{AccountID: "a1", TenantID: "t1", Role: domain.RoleAccount}
	if err := regular.RequireAdmin(); !domain.IsForbidden(err) {
		t.Fatalf("non-admin RequireAdmin = %v, want Forbidden", err)
	}
	limited := Caller{AccountID: "a1", TenantID: "t1", Role: domain.RoleAdmin, Limited: true}
	if err := limited.RequireFull(); !domain.IsForbidden(err) {
		t.Fatalf("limited RequireFull = %v, want Forbidden", err)
	}
	// A limited token never passes the admin gate either.
	if err := limited.RequireAdmin(); !domain.IsForbidden(err) {
		t.Fatalf("limited RequireAdmin = %v, want Forbidden", err)
	}
}

func TestCallerContextRoundTrip(t *testing.T) {
	c := Caller{AccountID: "a1", TenantID: "t1", MemberID: "m1", Role: domain.RoleAdmin}
	ctx := WithCaller(context.Background(), c)
	got, ok := CallerFrom(ctx)
	if !ok || got != c {
		t.Fatalf("CallerFrom = %+v/%v, want %+v", got, ok, c)
	}
	if _, ok := CallerFrom(context.Background()); ok {
		t.Fatal("empty context should carry no caller")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	ti := NewTokenIssuer("secret", time.Hour, clk)

	c := Caller{AccountID: "a1", TenantID: "t1", MemberID: "m1", Role: domain.RoleAdmin, Limited: true}
	token, err := ti.Issue(c)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	got, err := ti.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got != c {
		t.Fatalf("round trip = %+v, want %+v", got, c)
	}
}

func TestTokenTamperAndExpiry(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	ti := NewTokenIssuer("secret", time.Hour, clk)
	token, err := ti.Issue(Caller{AccountID: "a1", TenantID: "t1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Signature from another secret is rejected.
	other := NewTokenIssuer("other-secret", time.Hour, clk)
	if _, err := other.Verify(token); !domain.IsForbidden(err) {
		t.Fatalf("foreign-secret Verify = %v, want Forbidden", err)
	}

	// A flipped payload byte is rejected.
	tampered := token
	if i := strings.IndexByte(tampered, '.'); i > 0 {
		tampered = "x" + tampered[1:]
	}
	if _, err := ti.Verify(tampered); !domain.IsForbidden(err) {
		t.Fatalf("tampered Verify = %v, want Forbidden", err)
	}

	// Past the TTL the token expires.
	clk.Advance(2 * time.Hour)
	if _, err := ti.Verify(token); !domain.IsForbidden(err) {
		t.Fatalf("expired Verify = %v, want Forbidden", err)
	}
}
