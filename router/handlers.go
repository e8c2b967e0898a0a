package router

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/juniorbasecompany/turna/authz"
	"github.com/juniorbasecompany/turna/domain"
	"github.com/juniorbasecompany/turna/store"
)

type handlers struct {
	Deps
}

func (h *handlers) caller(r *http.Request) (authz.Caller, bool) {
	return authz.CallerFrom(r.Context())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps error kinds to HTTP statuses; internals are collapsed
// so driver and stack details never leave the service.
func (h *handlers) writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindForbidden:
		status = http.StatusForbidden
	case domain.KindBadRequest:
		status = http.StatusBadRequest
	case domain.KindConflict:
		status = http.StatusConflict
	case domain.KindUnavailable:
		status = http.StatusServiceUnavailable
	}
	msg := "unexpected error"
	var de *domain.Error
	if errors.As(err, &de) && kind != domain.KindInternal {
		msg = de.Msg
	}
	if status == http.StatusInternalServerError {
		h.Log.Error().Err(err).Msg("internal error")
	}
	writeJSON(w, status, map[string]any{"error": string(kind), "message": msg})
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.BadRequest("malformed JSON body")
	}
	return nil
}

// ─── Auth & membership ─────────────────────────────────────

func (h *handlers) devToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	account, err := h.Membership.EnsureAccount(r.Context(), body.Email, body.Name, "dev")
	if err != nil {
		h.writeError(w, err)
		return
	}
	token, err := h.Tokens.Issue(authz.Caller{AccountID: account.ID})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"access_token": token, "account_id": account.ID})
}

func (h *handlers) listTenants(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(r)
	if !ok {
		h.writeError(w, domain.Forbidden("access denied"))
		return
	}
	tenants, err := h.Membership.ListActiveTenants(r.Context(), caller.AccountID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	invites, err := h.Membership.ListPendingInvites(r.Context(), caller.AccountID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	type tenantOption struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	type inviteOption struct {
		MemberID   string `json:"member_id"`
		TenantID   string `json:"tenant_id"`
		TenantName string `json:"tenant_name"`
		Role       string `json:"role"`
	}
	resp := struct {
		Tenants []tenantOption `json:"tenants"`
		Invites []inviteOption `json:"invites"`
	}{Tenants: []tenantOption{}, Invites: []inviteOption{}}
	for _, t := range tenants {
		resp.Tenants = append(resp.Tenants, tenantOption{ID: t.ID, Name: t.Name})
	}
	for _, inv := range invites {
		resp.Invites = append(resp.Invites, inviteOption{
			MemberID:   inv.Member.ID,
			TenantID:   inv.Tenant.ID,
			TenantName: inv.Tenant.Name,
			Role:       string(inv.Member.Role),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) selectTenant(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(r)
	if !ok {
		h.writeError(w, domain.Forbidden("access denied"))
		return
	}
	var body struct {
		TenantID string `json:"tenant_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	token, limited, err := h.Membership.SelectTenant(r.Context(), caller.AccountID, body.TenantID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"access_token": token, "limited": limited})
}

func (h *handlers) inviteMember(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(r)
	if !ok {
		h.writeError(w, domain.Forbidden("access denied"))
		return
	}
	var body struct {
		Email string `json:"email"`
		Role  string `json:"role"`
		Name  string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	role, err := domain.ParseMemberRole(body.Role)
	if err != nil {
		h.writeError(w, err)
		return
	}
	result, err := h.Membership.Invite(r.Context(), caller, chi.URLParam(r, "tenantID"), body.Email, role, body.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) acceptInvite(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(r)
	if !ok {
		h.writeError(w, domain.Forbidden("access denied"))
		return
	}
	member, err := h.Membership.Accept(r.Context(), caller.AccountID, chi.URLParam(r, "memberID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"member_id": member.ID,
		"tenant_id": member.TenantID,
		"status":    member.Status,
	})
}

func (h *handlers) rejectInvite(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(r)
	if !ok {
		h.writeError(w, domain.Forbidden("access denied"))
		return
	}
	member, err := h.Membership.Reject(r.Context(), caller.AccountID, chi.URLParam(r, "memberID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"member_id": member.ID,
		"tenant_id": member.TenantID,
		"status":    member.Status,
	})
}

func (h *handlers) removeMember(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(r)
	if !ok {
		h.writeError(w, domain.Forbidden("access denied"))
		return
	}
	if err := caller.SameTenant(chi.URLParam(r, "tenantID")); err != nil {
		h.writeError(w, err)
		return
	}
	member, err := h.Membership.Remove(r.Context(), caller, chi.URLParam(r, "memberID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"member_id": member.ID, "status": member.Status})
}

// ─── Jobs ───────────────────────────────────────────────────

func (h *handlers) createPingJob(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(r)
	if !ok {
		h.writeError(w, domain.Forbidden("access denied"))
		return
	}
	job, err := h.Engine.Enqueue(r.Context(), caller, domain.JobPing, map[string]any{"ping": true})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"job_id": job.ID})
}

func (h *handlers) createExtractJob(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(r)
	if !ok {
		h.writeError(w, domain.Forbidden("access denied"))
		return
	}
	var body struct {
		FileID string `json:"file_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	// Validate the file before enqueueing so a bad reference fails fast.
	if _, err := h.Files.Get(r.Context(), caller, body.FileID); err != nil {
		h.writeError(w, err)
		return
	}
	job, err := h.Engine.Enqueue(r.Context(), caller, domain.JobExtractDemand, map[string]any{"file_id": body.FileID})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"job_id": job.ID})
}

type jobResponse struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	Kind        string         `json:"kind"`
	Status      string         `json:"status"`
	Input       map[string]any `json:"input,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Error       *string        `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

func toJobResponse(j *domain.Job) jobResponse {
	return jobResponse{
		ID:          j.ID,
		TenantID:    j.TenantID,
		Kind:        string(j.Kind),
		Status:      string(j.Status),
		Input:       j.Input,
		Result:      j.Result,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}

func (h *handlers) getJob(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(r)
	if !ok {
		h.writeError(w, domain.Forbidden("access denied"))
		return
	}
	job, err := h.Engine.Get(r.Context(), caller, chi.URLParam(r, "jobID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (h *handlers) listJobs(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(r)
	if !ok {
		h.writeError(w, domain.Forbidden("access denied"))
		return
	}
	filter := store.JobFilter{}
	q := r.URL.Query()
	if v := q.Get("kind"); v != "" {
		kind, err := domain.ParseJobKind(v)
		if err != nil {
			h.writeError(w, err)
			return
		}
		filter.Kind = kind
	}
	if v := q.Get("status"); v != "" {
		status, err := domain.ParseJobStatus(v)
		if err != nil {
			h.writeError(w, err)
			return
		}
		filter.Status = status
	}
	if v := q.Get("started_at_from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeError(w, domain.BadRequest("invalid started_at_from"))
			return
		}
		filter.StartedAtFrom = &t
	}
	if v := q.Get("started_at_to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeError(w, domain.BadRequest("invalid started_at_to"))
			return
		}
		filter.StartedAtTo = &t
	}
	if v := q.Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}

	jobs, total, err := h.Engine.List(r.Context(), caller, filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (h *handlers) cancelJob(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(r)
	if !ok {
		h.writeError(w, domain.Forbidden("access denied"))
		return
	}
	job, err := h.Engine.Cancel(r.Context(), caller, chi.URLParam(r, "jobID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (h *handlers) requeueJob(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(r)
	if !ok {
		h.writeError(w, domain.Forbidden("access denied"))
		return
	}
	var body struct {
		Force      bool `json:"force"`
		WipeResult bool `json:"wipe_result"`
	}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &body); err != nil {
			h.writeError(w, err)
			return
		}
	}
	job, err := h.Engine.Requeue(r.Context(), caller, chi.URLParam(r, "jobID"), body.Force, body.WipeResult)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": job.ID})
}

func (h *handlers) deleteJob(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(r)
	if !ok {
		h.writeError(w, domain.Forbidden("access denied"))
		return
	}
	if err := h.Engine.Delete(r.Context(), caller, chi.URLParam(r, "jobID")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
