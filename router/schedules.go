package router

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/juniorbasecompany/turna/domain"
)

// generateSchedule validates the request and enqueues a GENERATE_SCHEDULE
// job in from_demands mode; the worker does the heavy lifting.
func (h *handlers) generateSchedule(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(r)
	if !ok {
		h.writeError(w, domain.Forbidden("access denied"))
		return
	}
	var body struct {
		PeriodStartAt  string  `json:"period_start_at"`
		PeriodEndAt    string  `json:"period_end_at"`
		Name           string  `json:"name"`
		VersionNumber  int     `json:"version_number"`
		HospitalID     *string `json:"hospital_id,omitempty"`
		AllocationMode string  `json:"allocation_mode"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err)
		return
	}

	// Timestamps must carry an explicit offset; naive local times are
	// rejected here, before anything is enqueued.
	start, err := parseInstant(body.PeriodStartAt, "period_start_at")
	if err != nil {
		h.writeError(w, err)
		return
	}
	end, err := parseInstant(body.PeriodEndAt, "period_end_at")
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !end.After(start) {
		h.writeError(w, domain.BadRequest("period_end_at must be after period_start_at"))
		return
	}

	input := map[string]any{
		"mode":            "from_demands",
		"allocation_mode": body.AllocationMode,
		"period_start_at": start.Format(time.RFC3339),
		"period_end_at":   end.Format(time.RFC3339),
		"name":            body.Name,
		"version_number":  body.VersionNumber,
	}
	if body.HospitalID != nil {
		input["filter_hospital_id"] = *body.HospitalID
	}

	job, err := h.Engine.Enqueue(r.Context(), caller, domain.JobGenerateSchedule, input)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": job.ID})
}

// parseInstant accepts RFC 3339 with an explicit UTC offset.
func parseInstant(s, field string) (time.Time, error) {
	if s == "" {
		return time.Time{}, domain.BadRequest("%s is required", field)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, domain.BadRequest("%s must be an RFC 3339 timestamp with explicit offset", field)
	}
	return t, nil
}

func (h *handlers) publishSchedule(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(r)
	if !ok {
		h.writeError(w, domain.Forbidden("access denied"))
		return
	}
	result, err := h.Schedules.Publish(r.Context(), caller, chi.URLParam(r, "demandID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(r)
	if !ok {
		h.writeError(w, domain.Forbidden("access denied"))
		return
	}
	if err := h.Schedules.Delete(r.Context(), caller, chi.URLParam(r, "demandID")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) archiveSchedule(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(r)
	if !ok {
		h.writeError(w, domain.Forbidden("access denied"))
		return
	}
	if err := h.Schedules.Archive(r.Context(), caller, chi.URLParam(r, "demandID")); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": domain.ScheduleArchived})
}

// ─── Files ──────────────────────────────────────────────────

func (h *handlers) uploadFile(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(r)
	if !ok {
		h.writeError(w, domain.Forbidden("access denied"))
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.writeError(w, domain.BadRequest("multipart form expected"))
		return
	}
	part, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, domain.BadRequest("file part is required"))
		return
	}
	defer part.Close()

	hospitalID := r.FormValue("hospital_id")
	if hospitalID == "" {
		h.writeError(w, domain.BadRequest("hospital_id is required"))
		return
	}
	contentType := header.Header.Get("Content-Type")

	file, err := h.Files.Upload(r.Context(), caller, hospitalID, header.Filename, contentType, header.Size, part)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"file_id":  file.ID,
		"filename": file.Filename,
		"blob_key": file.BlobKey,
	})
}

func (h *handlers) getFile(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(r)
	if !ok {
		h.writeError(w, domain.Forbidden("access denied"))
		return
	}
	file, err := h.Files.Get(r.Context(), caller, chi.URLParam(r, "fileID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, file)
}

func (h *handlers) listFiles(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(r)
	if !ok {
		h.writeError(w, domain.Forbidden("access denied"))
		return
	}
	q := r.URL.Query()
	limit := intQuery(q.Get("limit"), 50)
	offset := intQuery(q.Get("offset"), 0)
	items, err := h.Files.List(r.Context(), caller, limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *handlers) downloadFile(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(r)
	if !ok {
		h.writeError(w, domain.Forbidden("access denied"))
		return
	}
	url, err := h.Files.PresignDownload(r.Context(), caller, chi.URLParam(r, "fileID"), time.Hour)
	if err != nil {
		h.writeError(w, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (h *handlers) deleteFile(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(r)
	if !ok {
		h.writeError(w, domain.Forbidden("access denied"))
		return
	}
	if err := h.Files.Delete(r.Context(), caller, chi.URLParam(r, "fileID")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func intQuery(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return fallback
}
