package router

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/juniorbasecompany/turna/authz"
	"github.com/juniorbasecompany/turna/config"
	"github.com/juniorbasecompany/turna/files"
	"github.com/juniorbasecompany/turna/jobengine"
	"github.com/juniorbasecompany/turna/membership"
	"github.com/juniorbasecompany/turna/schedule"
)

// Deps carries the services the adapter exposes. Routing stays thin:
// request parsing and status-code mapping only; every rule lives in the
// services behind it.
type Deps struct {
	Cfg        *config.Config
	Log        zerolog.Logger
	Tokens     *authz.TokenIssuer
	Membership *membership.Service
	Engine     *jobengine.Engine
	Schedules  *schedule.Materializer
	Files      *files.Service
}

// NewRouter returns a configured chi Router with the middleware chain and
// the operation surface mounted.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	h := &handlers{Deps: d}

	// --- Middleware chain (order matters) ---
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(mwRequestLogger(d.Log))

	// --- Health endpoints (no auth required) ---
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"turna"}`))
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready","service":"turna"}`))
	})

	// Development-only token mint; production identity arrives through the
	// upstream auth layer.
	if d.Cfg.IsDevelopment() {
		r.Post("/auth/dev-token", h.devToken)
	}

	// --- Authenticated routes ---
	r.Group(func(r chi.Router) {
		r.Use(h.mwAuth)

		r.Get("/tenant/list", h.listTenants)
		r.Post("/auth/select-tenant", h.selectTenant)

		r.Post("/tenant/{tenantID}/members/invite", h.inviteMember)
		r.Post("/members/{memberID}/accept", h.acceptInvite)
		r.Post("/members/{memberID}/reject", h.rejectInvite)
		r.Post("/tenant/{tenantID}/members/{memberID}/remove", h.removeMember)

		r.Post("/job/ping", h.createPingJob)
		r.Post("/job/extract", h.createExtractJob)
		r.Get("/job/list", h.listJobs)
		r.Get("/job/{jobID}", h.getJob)
		r.Get("/job/{jobID}/stream", h.streamJob)
		r.Post("/job/{jobID}/cancel", h.cancelJob)
		r.Post("/job/{jobID}/requeue", h.requeueJob)
		r.Delete("/job/{jobID}", h.deleteJob)

		r.Post("/schedule/generate", h.generateSchedule)
		r.Post("/schedule/{demandID}/publish", h.publishSchedule)
		r.Post("/schedule/{demandID}/archive", h.archiveSchedule)
		r.Delete("/schedule/{demandID}", h.deleteSchedule)

		r.Post("/file", h.uploadFile)
		r.Get("/file/list", h.listFiles)
		r.Get("/file/{fileID}", h.getFile)
		r.Get("/file/{fileID}/download", h.downloadFile)
		r.Delete("/file/{fileID}", h.deleteFile)
	})

	return r
}

// mwAuth resolves the bearer token into the request's Caller.
func (h *handlers) mwAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			http.Error(w, `{"error":"missing authentication","message":"Authorization header required"}`, http.StatusUnauthorized)
			return
		}
		token := header
		if strings.HasPrefix(strings.ToLower(header), "bearer ") {
			token = header[7:]
		}
		caller, err := h.Tokens.Verify(token)
		if err != nil {
			http.Error(w, `{"error":"invalid authentication","message":"token rejected"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(authz.WithCaller(r.Context(), caller)))
	})
}

func mwRequestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("elapsed", time.Since(start)).
				Msg("request")
		})
	}
}
