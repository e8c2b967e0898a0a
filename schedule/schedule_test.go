package schedule

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juniorbasecompany/turna/authz"
	"github.com/juniorbasecompany/turna/blob"
	"github.com/juniorbasecompany/turna/clock"
	"github.com/juniorbasecompany/turna/domain"
	"github.com/juniorbasecompany/turna/jobengine"
	"github.com/juniorbasecompany/turna/solver"
	"github.com/juniorbasecompany/turna/store"
)

// fakeStore is an in-memory schedule store. ApplyScheduleResult mirrors
// the transactional contract: either every update lands together with the
// job's COMPLETED transition, or nothing is written.
type fakeStore struct {
	mu      sync.Mutex
	tenants map[string]*domain.Tenant
	jobs    map[string]*domain.Job
	members []*domain.Member
	demands map[string]*domain.Demand
	files   map[string]*domain.File
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tenants: map[string]*domain.Tenant{},
		jobs:    map[string]*domain.Job{},
		demands: map[string]*domain.Demand{},
		files:   map[string]*domain.File{},
	}
}

func (f *fakeStore) GetTenant(_ context.Context, id string) (*domain.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tenants[id]
	if !ok {
		return nil, domain.NotFound("tenant not found")
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStore) GetJob(_ context.Context, id string) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, domain.NotFound("job not found")
	}
	cp := *j
	return &cp, nil
}

func (f *fakeStore) ListActivePros(_ context.Context, tenantID string) ([]*domain.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Member
	for _, m := range f.members {
		if m.TenantID == tenantID && m.Status == domain.MemberActive && m.Sequence > 0 {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) ListDemandsInPeriod(_ context.Context, tenantID string, start, end time.Time, hospitalID *string) ([]*domain.Demand, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Demand
	for _, d := range f.demands {
		if d.TenantID != tenantID || d.StartTime.Before(start) || !d.StartTime.Before(end) {
			continue
		}
		if hospitalID != nil && (d.HospitalID == nil || *d.HospitalID != *hospitalID) {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStore) CountDemandsMissingHospital(_ context.Context, tenantID string, start, end time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, d := range f.demands {
		if d.TenantID == tenantID && !d.StartTime.Before(start) && d.StartTime.Before(end) && d.HospitalID == nil {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ApplyScheduleResult(_ context.Context, tenantID, jobID string, updates []store.DemandScheduleUpdate, jobResult map[string]any, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return false, domain.NotFound("job not found")
	}
	if job.Status != domain.JobRunning {
		// Cancelled mid-run: nothing is written.
		return false, nil
	}
	for _, u := range updates {
		d, ok := f.demands[u.DemandID]
		if !ok || d.TenantID != tenantID {
			return false, domain.NotFound("demand %s not found", u.DemandID)
		}
		draft := domain.ScheduleDraft
		d.ScheduleStatus = &draft
		name := u.ScheduleName
		d.ScheduleName = &name
		d.ScheduleVersionNumber = u.VersionNumber
		d.ScheduleResultData = u.ResultData
		d.MemberID = u.MemberID
		d.GeneratedAt = &now
		id := jobID
		d.JobID = &id
		d.UpdatedAt = now
	}
	job.Status = domain.JobCompleted
	job.Result = jobResult
	job.CompletedAt = &now
	job.UpdatedAt = now
	return true, nil
}

func (f *fakeStore) GetDemand(_ context.Context, id string) (*domain.Demand, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.demands[id]
	if !ok {
		return nil, domain.NotFound("demand not found")
	}
	cp := *d
	return &cp, nil
}

func (f *fakeStore) ListScheduleFragments(_ context.Context, tenantID, jobID string) ([]*domain.Demand, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Demand
	for _, d := range f.demands {
		if d.TenantID == tenantID && d.JobID != nil && *d.JobID == jobID && d.ScheduleResultData != nil {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) GetFile(_ context.Context, id string) (*domain.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok {
		return nil, domain.NotFound("file not found")
	}
	cp := *file
	return &cp, nil
}

func (f *fakeStore) CreateFile(_ context.Context, file *domain.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *file
	f.files[file.ID] = &cp
	return nil
}

func (f *fakeStore) PublishDemand(_ context.Context, id, pdfFileID string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.demands[id]
	if !ok {
		return domain.NotFound("demand not found")
	}
	published := domain.SchedulePublished
	d.ScheduleStatus = &published
	d.PdfFileID = &pdfFileID
	d.PublishedAt = &now
	d.UpdatedAt = now
	return nil
}

func (f *fakeStore) ClearDemandSchedule(_ context.Context, id string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.demands[id]
	if !ok {
		return domain.NotFound("demand not found")
	}
	d.ScheduleStatus = nil
	d.ScheduleName = nil
	d.ScheduleVersionNumber = 1
	d.ScheduleResultData = nil
	d.GeneratedAt = nil
	d.PublishedAt = nil
	d.PdfFileID = nil
	d.JobID = nil
	d.MemberID = nil
	d.UpdatedAt = now
	return nil
}

func (f *fakeStore) ArchiveDemand(_ context.Context, id string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.demands[id]
	if !ok || d.ScheduleStatus == nil || *d.ScheduleStatus != domain.SchedulePublished {
		return false, nil
	}
	archived := domain.ScheduleArchived
	d.ScheduleStatus = &archived
	d.UpdatedAt = now
	return true, nil
}

var _ Store = (*fakeStore)(nil)

type countingRenderer struct {
	calls int
}

func (r *countingRenderer) Render(sheets []DaySheet) ([]byte, error) {
	r.calls++
	return []byte("%PDF-fake"), nil
}

// ─── Fixtures ──────────────────────────────────────────────

type fixture struct {
	mat      *Materializer
	store    *fakeStore
	blobs    *blob.Memory
	renderer *countingRenderer
	clock    *clock.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := newFakeStore()
	blobs := blob.NewMemory()
	renderer := &countingRenderer{}
	clk := clock.NewFake(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	opts := solver.DefaultOptions()
	mat := NewMaterializer(st, blobs, renderer, clk, opts, zerolog.New(io.Discard))
	st.tenants["T"] = &domain.Tenant{ID: "T", Name: "Clinic", Timezone: "UTC"}
	return &fixture{mat: mat, store: st, blobs: blobs, renderer: renderer, clock: clk}
}

func (fx *fixture) addPro(id string, seq int, canPeds bool) {
	name := "Pro " + id
	fx.store.members = append(fx.store.members, &domain.Member{
		ID: id, TenantID: "T", Status: domain.MemberActive,
		Sequence: seq, CanPeds: canPeds, Name: &name,
	})
}

func (fx *fixture) addDemand(id string, hospitalID *string, start, end time.Time, pediatric bool) {
	fx.store.demands[id] = &domain.Demand{
		ID: id, TenantID: "T", HospitalID: hospitalID,
		StartTime: start, EndTime: end,
		Procedure: "proc-" + id, IsPediatric: pediatric,
		ScheduleVersionNumber: 1,
	}
}

func (fx *fixture) runningJob(input map[string]any) *domain.Job {
	now := fx.clock.Now()
	started := now
	job := &domain.Job{
		ID: uuid.NewString(), TenantID: "T", Kind: domain.JobGenerateSchedule,
		Status: domain.JobRunning, Input: input,
		CreatedAt: now, UpdatedAt: now, StartedAt: &started,
	}
	fx.store.jobs[job.ID] = job
	return job
}

func generateInput(start, end time.Time) map[string]any {
	return map[string]any{
		"mode":            "from_demands",
		"allocation_mode": "greedy",
		"name":            "Semana 23",
		"version_number":  1,
		"period_start_at": start.Format(time.RFC3339),
		"period_end_at":   end.Format(time.RFC3339),
	}
}

func caller() authz.Caller {
	return authz.Caller{AccountID: "acc", TenantID: "T", MemberID: "mem", Role: domain.RoleAccount}
}

// ─── Generate ──────────────────────────────────────────────

func TestGenerateFromDemandsWritesDrafts(t *testing.T) {
	fx := newFixture(t)
	hosp := "H1"
	start := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC)
	fx.addPro("P1", 1, false)
	fx.addPro("P2", 2, true)
	fx.addDemand("D1", &hosp, start.Add(8*time.Hour), start.Add(11*time.Hour), false)
	fx.addDemand("D2", &hosp, start.Add(9*time.Hour), start.Add(12*time.Hour), true)

	job := fx.runningJob(generateInput(start, end))
	result, err := fx.mat.Run(context.Background(), job)
	require.ErrorIs(t, err, jobengine.ErrFinalized)
	assert.Nil(t, result)

	// The job completed inside the batch transaction.
	final, err := fx.store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, final.Status)
	assert.EqualValues(t, 2, final.Result["allocation_count"])

	for _, id := range []string{"D1", "D2"} {
		d, err := fx.store.GetDemand(context.Background(), id)
		require.NoError(t, err)
		require.NotNil(t, d.ScheduleStatus, "demand %s should be scheduled", id)
		assert.Equal(t, domain.ScheduleDraft, *d.ScheduleStatus)
		require.NotNil(t, d.MemberID)
		require.NotNil(t, d.ScheduleName)
		assert.True(t, strings.HasPrefix(*d.ScheduleName, "Semana 23 - "), "name %q", *d.ScheduleName)
		assert.Contains(t, *d.ScheduleName, " - Dia 1")
		require.NotNil(t, d.JobID)
		assert.Equal(t, job.ID, *d.JobID)
		require.NotNil(t, d.ScheduleResultData)
		meta, ok := d.ScheduleResultData["metadata"].(map[string]any)
		require.True(t, ok, "allocation metadata missing")
		assert.Equal(t, "greedy", meta["allocation_mode"])
		assert.Equal(t, "from_demands", meta["mode"])
		assert.Equal(t, job.ID, meta["job_id"])
	}

	// Pediatric hard rule survived materialization.
	d2, _ := fx.store.GetDemand(context.Background(), "D2")
	assert.Equal(t, "P2", *d2.MemberID)
}

func TestGenerateRejectsMissingHospital(t *testing.T) {
	fx := newFixture(t)
	start := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC)
	fx.addPro("P1", 1, false)
	fx.addDemand("D1", nil, start.Add(8*time.Hour), start.Add(10*time.Hour), false)

	job := fx.runningJob(generateInput(start, end))
	_, err := fx.mat.Run(context.Background(), job)
	require.Error(t, err)
	assert.True(t, domain.IsBadRequest(err))
	assert.Contains(t, err.Error(), "1 demand(s)")
}

func TestGenerateCancelledRollsBack(t *testing.T) {
	fx := newFixture(t)
	hosp := "H1"
	start := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC)
	fx.addPro("P1", 1, false)
	fx.addDemand("D1", &hosp, start.Add(8*time.Hour), start.Add(10*time.Hour), false)

	job := fx.runningJob(generateInput(start, end))
	// Cancelled between claim and commit.
	fx.store.jobs[job.ID].Status = domain.JobFailed

	_, err := fx.mat.Run(context.Background(), job)
	require.ErrorIs(t, err, jobengine.ErrFinalized)

	d, err := fx.store.GetDemand(context.Background(), "D1")
	require.NoError(t, err)
	assert.Nil(t, d.ScheduleStatus, "cancelled run must not persist drafts")
	assert.Nil(t, d.MemberID)
}

func TestGenerateFromExtractIsPreviewOnly(t *testing.T) {
	fx := newFixture(t)
	start := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC)
	fx.addPro("P1", 1, false)

	extractJob := &domain.Job{
		ID: uuid.NewString(), TenantID: "T", Kind: domain.JobExtractDemand,
		Status: domain.JobCompleted,
		Result: map[string]any{
			"demands": []any{
				map[string]any{
					"room":       "OR-1",
					"start_time": start.Add(8 * time.Hour).Format(time.RFC3339),
					"end_time":   start.Add(10 * time.Hour).Format(time.RFC3339),
				},
			},
		},
	}
	fx.store.jobs[extractJob.ID] = extractJob

	input := generateInput(start, end)
	input["mode"] = "from_extract"
	input["extract_job_id"] = extractJob.ID
	job := fx.runningJob(input)

	result, err := fx.mat.Run(context.Background(), job)
	require.NoError(t, err)
	assert.EqualValues(t, 1, result["allocation_count"])

	// No demand rows were touched.
	for _, d := range fx.store.demands {
		assert.Nil(t, d.ScheduleStatus)
	}
}

func TestGenerateFromExtractTenantMismatch(t *testing.T) {
	fx := newFixture(t)
	start := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC)
	fx.addPro("P1", 1, false)

	foreign := &domain.Job{
		ID: uuid.NewString(), TenantID: "OTHER", Kind: domain.JobExtractDemand,
		Status: domain.JobCompleted, Result: map[string]any{"demands": []any{}},
	}
	fx.store.jobs[foreign.ID] = foreign

	input := generateInput(start, end)
	input["mode"] = "from_extract"
	input["extract_job_id"] = foreign.ID
	job := fx.runningJob(input)

	_, err := fx.mat.Run(context.Background(), job)
	require.Error(t, err)
	assert.True(t, domain.IsForbidden(err))
}

func TestGenerateRejectsBadInput(t *testing.T) {
	fx := newFixture(t)
	fx.addPro("P1", 1, false)
	start := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	// Inverted period.
	job := fx.runningJob(generateInput(start, start.Add(-24*time.Hour)))
	_, err := fx.mat.Run(context.Background(), job)
	assert.True(t, domain.IsBadRequest(err))

	// Unsupported allocation mode.
	input := generateInput(start, start.Add(24*time.Hour))
	input["allocation_mode"] = "simulated_annealing"
	job = fx.runningJob(input)
	_, err = fx.mat.Run(context.Background(), job)
	assert.True(t, domain.IsBadRequest(err))

	// Unsupported mode.
	input = generateInput(start, start.Add(24*time.Hour))
	input["mode"] = "from_nowhere"
	job = fx.runningJob(input)
	_, err = fx.mat.Run(context.Background(), job)
	assert.True(t, domain.IsBadRequest(err))
}

// ─── Publish / Delete / Archive ────────────────────────────

func publishedFixture(t *testing.T) (*fixture, string) {
	fx := newFixture(t)
	hosp := "H1"
	start := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC)
	fx.addPro("P1", 1, false)
	fx.addDemand("D1", &hosp, start.Add(8*time.Hour), start.Add(11*time.Hour), false)
	fx.addDemand("D2", &hosp, start.Add(26*time.Hour), start.Add(29*time.Hour), false)

	job := fx.runningJob(generateInput(start, end))
	_, err := fx.mat.Run(context.Background(), job)
	require.ErrorIs(t, err, jobengine.ErrFinalized)
	return fx, "D1"
}

func TestPublishIsIdempotent(t *testing.T) {
	fx, demandID := publishedFixture(t)
	ctx := context.Background()

	first, err := fx.mat.Publish(ctx, caller(), demandID)
	require.NoError(t, err)
	assert.Equal(t, domain.SchedulePublished, first.Status)
	assert.NotEmpty(t, first.PdfFileID)
	assert.NotEmpty(t, first.PresignedURL)
	assert.Equal(t, 1, fx.renderer.calls)

	second, err := fx.mat.Publish(ctx, caller(), demandID)
	require.NoError(t, err)
	assert.Equal(t, first.PdfFileID, second.PdfFileID, "publish must be idempotent")
	assert.Equal(t, 1, fx.renderer.calls, "no re-render on the second publish")

	d, err := fx.store.GetDemand(ctx, demandID)
	require.NoError(t, err)
	require.NotNil(t, d.PublishedAt)
	require.NotNil(t, d.PdfFileID)
	assert.Equal(t, first.PdfFileID, *d.PdfFileID)
}

func TestPublishReconstructsFromFragments(t *testing.T) {
	fx, demandID := publishedFixture(t)

	var captured []DaySheet
	fx.mat.pdf = renderCapture(func(sheets []DaySheet) { captured = sheets })

	_, err := fx.mat.Publish(context.Background(), caller(), demandID)
	require.NoError(t, err)

	// Both sibling fragments (day 1 and day 2) are reconstructed.
	require.Len(t, captured, 2)
	assert.Equal(t, 1, captured[0].DayNumber)
	assert.Equal(t, 2, captured[1].DayNumber)
	require.Len(t, captured[0].Rows, 1)
	assert.Equal(t, "P1", captured[0].Rows[0].MemberID)
}

func TestPublishTenantScoped(t *testing.T) {
	fx, demandID := publishedFixture(t)
	foreign := authz.Caller{AccountID: "acc", TenantID: "OTHER", Role: domain.RoleAccount}
	_, err := fx.mat.Publish(context.Background(), foreign, demandID)
	require.Error(t, err)
	assert.True(t, domain.IsForbidden(err))
}

func TestPublishWithoutScheduleIsNotFound(t *testing.T) {
	fx := newFixture(t)
	hosp := "H1"
	fx.addDemand("D1", &hosp, time.Now(), time.Now().Add(time.Hour), false)
	_, err := fx.mat.Publish(context.Background(), caller(), "D1")
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestDeleteOnlyDrafts(t *testing.T) {
	fx, demandID := publishedFixture(t)
	ctx := context.Background()

	// DRAFT deletes fine and resets every schedule field.
	require.NoError(t, fx.mat.Delete(ctx, caller(), demandID))
	d, err := fx.store.GetDemand(ctx, demandID)
	require.NoError(t, err)
	assert.Nil(t, d.ScheduleStatus)
	assert.Nil(t, d.ScheduleName)
	assert.Nil(t, d.MemberID)
	assert.Nil(t, d.JobID)

	// PUBLISHED refuses deletion.
	_, err = fx.mat.Publish(ctx, caller(), "D2")
	require.NoError(t, err)
	err = fx.mat.Delete(ctx, caller(), "D2")
	require.Error(t, err)
	assert.True(t, domain.IsBadRequest(err))
}

func TestArchivePublishedOnly(t *testing.T) {
	fx, demandID := publishedFixture(t)
	ctx := context.Background()

	// DRAFT cannot be archived.
	err := fx.mat.Archive(ctx, caller(), demandID)
	require.Error(t, err)
	assert.True(t, domain.IsBadRequest(err))

	_, err = fx.mat.Publish(ctx, caller(), demandID)
	require.NoError(t, err)
	require.NoError(t, fx.mat.Archive(ctx, caller(), demandID))

	d, err := fx.store.GetDemand(ctx, demandID)
	require.NoError(t, err)
	require.NotNil(t, d.ScheduleStatus)
	assert.Equal(t, domain.ScheduleArchived, *d.ScheduleStatus)
}

// renderCapture adapts a capture func to PdfRenderer.
type renderCaptureFunc func(sheets []DaySheet)

func renderCapture(fn renderCaptureFunc) PdfRenderer {
	return renderFunc(func(sheets []DaySheet) ([]byte, error) {
		fn(sheets)
		return []byte("%PDF-fake"), nil
	})
}

type renderFunc func(sheets []DaySheet) ([]byte, error)

func (f renderFunc) Render(sheets []DaySheet) ([]byte, error) { return f(sheets) }

func TestPlainRendererProducesPdf(t *testing.T) {
	out, err := NewPlainRenderer().Render([]DaySheet{
		{DayNumber: 1, Rows: []SheetRow{{Member: "Ana (Peds)", DemandToken: "OR-1", Start: 8, End: 11.5}}},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "%PDF-1.4"))
	assert.True(t, strings.HasSuffix(strings.TrimSpace(string(out)), "%%EOF"))
}

func TestPublishRendererFailureSurfacesInternal(t *testing.T) {
	fx, demandID := publishedFixture(t)
	fx.mat.pdf = renderFunc(func([]DaySheet) ([]byte, error) {
		return nil, errors.New("layout engine crashed")
	})
	_, err := fx.mat.Publish(context.Background(), caller(), demandID)
	require.Error(t, err)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
	// The raw cause is wrapped, not surfaced as the message.
	var de *domain.Error
	require.True(t, errors.As(err, &de))
	assert.NotContains(t, de.Msg, "layout engine")
}

func TestSheetsFromPerDayPayload(t *testing.T) {
	resultData := map[string]any{
		"per_day": []any{
			map[string]any{
				"day_number": 1,
				"pros_for_day": []any{
					map[string]any{"id": "P1", "name": "Ana"},
				},
				"assigned_demands_by_pro": map[string]any{
					"P1": []any{
						map[string]any{"id": "OR-1", "start": 8.0, "end": 11.0, "is_pediatric": false},
					},
				},
			},
		},
	}
	sheets, err := sheetsFromPerDay(resultData)
	require.NoError(t, err)
	require.Len(t, sheets, 1)
	require.Len(t, sheets[0].Rows, 1)
	assert.Equal(t, "Ana", sheets[0].Rows[0].Member)
	assert.Equal(t, "OR-1", sheets[0].Rows[0].DemandToken)
}

func TestFlattenAllocationsSequence(t *testing.T) {
	fx := newFixture(t)
	pros := []solver.Pro{{ID: "P1", Name: "Ana", Sequence: 1}}
	result := solver.Result{
		TotalCost: 0,
		PerDay: []solver.DayResult{
			{
				DayNumber:  1,
				ProsForDay: pros,
				AssignedDemandsByPro: map[string][]solver.Demand{
					"P1": {
						{ID: "A", Day: 1, Start: 8, End: 10, DemandRowID: "D1"},
						{ID: "B", Day: 1, Start: 11, End: 12, DemandRowID: "D2"},
					},
				},
			},
		},
	}
	allocs := fx.mat.flattenAllocations(result, pros, solver.ModeGreedy, "from_demands", "job-1", "", fx.clock.Now())
	require.Len(t, allocs, 2)
	for i, a := range allocs {
		assert.Equal(t, i+1, a.Metadata.Sequence)
		assert.Equal(t, "Ana", a.Member)
		assert.Equal(t, "job-1", a.Metadata.JobID)
		assert.Equal(t, fmt.Sprintf("D%d", i+1), a.DemandID)
	}
}
