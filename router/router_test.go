package router

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/juniorbasecompany/turna/authz"
	"github.com/juniorbasecompany/turna/clock"
	"github.com/juniorbasecompany/turna/config"
	"github.com/juniorbasecompany/turna/domain"
)

func testSetup() (http.Handler, *authz.TokenIssuer) {
	cfg := &config.Config{
		Addr: ":0",
		Env:  "test",
	}
	log := zerolog.New(io.Discard).With().Timestamp().Logger()
	tokens := authz.NewTokenIssuer("test-secret", time.Hour, clock.Real())
	r := NewRouter(Deps{Cfg: cfg, Log: log, Tokens: tokens})
	return r, tokens
}

func TestHealthEndpoints(t *testing.T) {
	r, _ := testSetup()

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"healthz", "/healthz", http.StatusOK},
		{"ready", "/ready", http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			rw := httptest.NewRecorder()
			r.ServeHTTP(rw, req)
			if rw.Result().StatusCode != tc.status {
				t.Fatalf("expected %d for %s, got %d", tc.status, tc.path, rw.Result().StatusCode)
			}
		})
	}
}

func TestUnauthenticatedRouteReturns401(t *testing.T) {
	r, _ := testSetup()

	// Authenticated routes require a bearer token.
	req := httptest.NewRequest(http.MethodGet, "/job/list", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	if rw.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unauthenticated /job/list, got %d", rw.Result().StatusCode)
	}
}

func TestMalformedTokenReturns401(t *testing.T) {
	r, _ := testSetup()

	req := httptest.NewRequest(http.MethodGet, "/job/list", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	if rw.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for malformed token, got %d", rw.Result().StatusCode)
	}
}

func TestDevTokenRouteAbsentOutsideDevelopment(t *testing.T) {
	r, _ := testSetup()

	req := httptest.NewRequest(http.MethodPost, "/auth/dev-token", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	if rw.Result().StatusCode == http.StatusOK {
		t.Fatal("dev-token route must not be mounted outside development")
	}
}

func TestWriteErrorStatusMapping(t *testing.T) {
	h := &handlers{Deps: Deps{Log: zerolog.New(io.Discard)}}
	tests := []struct {
		err    error
		status int
	}{
		{domain.NotFound("x"), http.StatusNotFound},
		{domain.Forbidden("x"), http.StatusForbidden},
		{domain.BadRequest("x"), http.StatusBadRequest},
		{domain.Conflict("x"), http.StatusConflict},
		{domain.Unavailable("x"), http.StatusServiceUnavailable},
		{domain.Internal("secret detail"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		rw := httptest.NewRecorder()
		h.writeError(rw, tc.err)
		if rw.Result().StatusCode != tc.status {
			t.Fatalf("writeError(%v) status = %d, want %d", tc.err, rw.Result().StatusCode, tc.status)
		}
	}

	// Internal details never reach the body.
	rw := httptest.NewRecorder()
	h.writeError(rw, domain.Internal("pq: SELECT * FROM secret"))
	body, _ := io.ReadAll(rw.Result().Body)
	if string(body) == "" || strings.Contains(string(body), "SELECT") || strings.Contains(string(body), "pq:") {
		t.Fatalf("internal error body leaks detail: %s", body)
	}
}
