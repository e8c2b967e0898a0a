package authz

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/juniorbasecompany/turna/clock"
	"github.com/juniorbasecompany/turna/domain"
)

// TokenIssuer mints and verifies the opaque session tokens returned by
// tenant selection. JWT/OAuth verification of the upstream identity is an
// external concern; these tokens only scope an already-authenticated
// account to one tenant.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

func NewTokenIssuer(secret string, ttl time.Duration, clk clock.Clock) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, clock: clk}
}

type tokenClaims struct {
	AccountID string            `json:"account_id"`
	TenantID  string            `json:"tenant_id"`
	MemberID  string            `json:"member_id,omitempty"`
	Role      domain.MemberRole `json:"role,omitempty"`
	Limited   bool              `json:"limited,omitempty"`
	ExpiresAt int64             `json:"exp"`
}

// Issue returns a signed token for the caller.
func (ti *TokenIssuer) Issue(c Caller) (string, error) {
	claims := tokenClaims{
		AccountID: c.AccountID,
		TenantID:  c.TenantID,
		MemberID:  c.MemberID,
		Role:      c.Role,
		Limited:   c.Limited,
		ExpiresAt: ti.clock.Now().Add(ti.ttl).Unix(),
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", domain.Wrap(domain.KindInternal, "encode token", err)
	}
	body := base64.RawURLEncoding.EncodeToString(payload)
	return body + "." + ti.sign(body), nil
}

// Verify checks signature and expiry and rebuilds the caller.
func (ti *TokenIssuer) Verify(token string) (Caller, error) {
	body, sig, ok := strings.Cut(token, ".")
	if !ok || !hmac.Equal([]byte(sig), []byte(ti.sign(body))) {
		return Caller{}, domain.Forbidden("invalid token")
	}
	payload, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return Caller{}, domain.Forbidden("invalid token")
	}
	var claims tokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Caller{}, domain.Forbidden("invalid token")
	}
	if ti.clock.Now().Unix() >= claims.ExpiresAt {
		return Caller{}, domain.Forbidden("token expired")
	}
	return Caller{
		AccountID: claims.AccountID,
		TenantID:  claims.TenantID,
		MemberID:  claims.MemberID,
		Role:      claims.Role,
		Limited:   claims.Limited,
	}, nil
}

func (ti *TokenIssuer) sign(body string) string {
	mac := hmac.New(sha256.New, ti.secret)
	mac.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
