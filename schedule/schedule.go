package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/juniorbasecompany/turna/blob"
	"github.com/juniorbasecompany/turna/clock"
	"github.com/juniorbasecompany/turna/domain"
	"github.com/juniorbasecompany/turna/jobengine"
	"github.com/juniorbasecompany/turna/solver"
	"github.com/juniorbasecompany/turna/store"
	"github.com/juniorbasecompany/turna/timemodel"
)

// Store is the persistence surface the materializer needs.
type Store interface {
	GetTenant(ctx context.Context, id string) (*domain.Tenant, error)
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	ListActivePros(ctx context.Context, tenantID string) ([]*domain.Member, error)
	ListDemandsInPeriod(ctx context.Context, tenantID string, start, end time.Time, hospitalID *string) ([]*domain.Demand, error)
	CountDemandsMissingHospital(ctx context.Context, tenantID string, start, end time.Time) (int, error)
	ApplyScheduleResult(ctx context.Context, tenantID, jobID string, updates []store.DemandScheduleUpdate, jobResult map[string]any, now time.Time) (bool, error)
	GetDemand(ctx context.Context, id string) (*domain.Demand, error)
	ListScheduleFragments(ctx context.Context, tenantID, jobID string) ([]*domain.Demand, error)
	GetFile(ctx context.Context, id string) (*domain.File, error)
	CreateFile(ctx context.Context, f *domain.File) error
	PublishDemand(ctx context.Context, id, pdfFileID string, now time.Time) error
	ClearDemandSchedule(ctx context.Context, id string, now time.Time) error
	ArchiveDemand(ctx context.Context, id string, now time.Time) (bool, error)
}

var _ Store = (*store.Store)(nil)

// Materializer applies solver output to Demand rows and manages the
// DRAFT → PUBLISHED → ARCHIVED lifecycle.
type Materializer struct {
	store  Store
	blobs  blob.Store
	pdf    PdfRenderer
	clock  clock.Clock
	solver solver.Options
	log    zerolog.Logger
}

func NewMaterializer(st Store, blobs blob.Store, pdf PdfRenderer, clk clock.Clock, solverOpts solver.Options, log zerolog.Logger) *Materializer {
	return &Materializer{
		store:  st,
		blobs:  blobs,
		pdf:    pdf,
		clock:  clk,
		solver: solverOpts,
		log:    log.With().Str("component", "schedule").Logger(),
	}
}

// GenerateInput is the GENERATE_SCHEDULE job payload.
type GenerateInput struct {
	Mode             string    `json:"mode"`
	AllocationMode   string    `json:"allocation_mode"`
	Name             string    `json:"name"`
	VersionNumber    int       `json:"version_number"`
	PeriodStartAt    time.Time `json:"period_start_at"`
	PeriodEndAt      time.Time `json:"period_end_at"`
	FilterHospitalID *string   `json:"filter_hospital_id,omitempty"`
	ExtractJobID     string    `json:"extract_job_id,omitempty"`
}

// Allocation is the persisted shape of one solver assignment, written
// into demand.schedule_result_data.
type Allocation struct {
	Member      string              `json:"member"`
	MemberID    string              `json:"member_id"`
	ID          string              `json:"id"`
	Day         int                 `json:"day"`
	Start       float64             `json:"start"`
	End         float64             `json:"end"`
	IsPediatric bool                `json:"is_pediatric"`
	DemandID    string              `json:"demand_id,omitempty"`
	HospitalID  string              `json:"hospital_id,omitempty"`
	Metadata    *AllocationMetadata `json:"metadata,omitempty"`
}

type AllocationMetadata struct {
	AllocationMode string    `json:"allocation_mode"`
	TotalCost      int       `json:"total_cost"`
	Mode           string    `json:"mode"`
	GeneratedAt    time.Time `json:"generated_at"`
	JobID          string    `json:"job_id"`
	Sequence       int       `json:"sequence"`
	ExtractJobID   string    `json:"extract_job_id,omitempty"`
}

// Run is the GENERATE_SCHEDULE job handler body.
//
// In from_demands mode every allocation is written back onto its Demand
// row and the job's COMPLETED transition joins the same transaction, so a
// cancellation observed at commit time unwinds the whole batch. In
// from_extract mode the run is a preview: no Demand rows are touched and
// only the allocation count, total cost and solver status are recorded on
// the job.
func (m *Materializer) Run(ctx context.Context, job *domain.Job) (map[string]any, error) {
	var input GenerateInput
	if err := domain.Decode(job.Input, &input); err != nil {
		return nil, err
	}
	mode := input.Mode
	if mode == "" {
		mode = "from_extract"
	}
	if mode != "from_demands" && mode != "from_extract" {
		return nil, domain.BadRequest("unsupported mode %q (expected: from_demands|from_extract)", mode)
	}
	allocMode, err := solver.ParseMode(input.AllocationMode)
	if err != nil {
		return nil, err
	}

	tenant, err := m.store.GetTenant(ctx, job.TenantID)
	if err != nil {
		return nil, err
	}
	period, err := timemodel.NewPeriod(input.PeriodStartAt, input.PeriodEndAt, tenant.Location())
	if err != nil {
		return nil, err
	}

	pros, err := m.loadPros(ctx, job.TenantID, period)
	if err != nil {
		return nil, err
	}

	var demands []solver.Demand
	var extractJobID string
	switch mode {
	case "from_demands":
		demands, err = m.demandsFromStore(ctx, job.TenantID, period, input)
	case "from_extract":
		demands, extractJobID, err = m.demandsFromExtract(ctx, job, period, input)
	}
	if err != nil {
		return nil, err
	}
	if len(demands) == 0 {
		return nil, domain.BadRequest("no demands inside the requested period")
	}

	m.log.Info().Str("job_id", job.ID).Str("mode", mode).Str("allocation_mode", string(allocMode)).
		Int("demands", len(demands)).Int("days", period.Days()).Int("pros", len(pros)).
		Msg("schedule generation starting")

	result, err := solver.Solve(ctx, allocMode, demands, pros, period.Days(), m.solver, m.log)
	if err != nil {
		return nil, err
	}
	if result.Status == solver.StatusInfeasible {
		m.log.Warn().Str("job_id", job.ID).Msg(result.Report)
	}

	now := m.clock.Now()
	baseName := input.Name
	if baseName == "" {
		baseName = "Escala Job " + job.ID
	}
	version := input.VersionNumber
	if version <= 0 {
		version = 1
	}

	allocations := m.flattenAllocations(result, pros, allocMode, mode, job.ID, extractJobID, now)

	jobResult := map[string]any{
		"allocation_count": len(allocations),
		"total_cost":       result.TotalCost,
		"solver_status":    string(result.Status),
	}

	if mode == "from_extract" {
		// Preview only: hand the result to the engine for the usual
		// COMPLETED write.
		return jobResult, nil
	}

	updates := make([]store.DemandScheduleUpdate, 0, len(allocations))
	for _, alloc := range allocations {
		if alloc.DemandID == "" {
			continue
		}
		resultData, err := domain.Encode(alloc)
		if err != nil {
			return nil, err
		}
		memberID := alloc.MemberID
		updates = append(updates, store.DemandScheduleUpdate{
			DemandID:      alloc.DemandID,
			ScheduleName:  fmt.Sprintf("%s - %s - Dia %d", baseName, alloc.Member, alloc.Day),
			VersionNumber: version,
			MemberID:      &memberID,
			ResultData:    resultData,
		})
	}

	completed, err := m.store.ApplyScheduleResult(ctx, job.TenantID, job.ID, updates, jobResult, now)
	if err != nil {
		return nil, err
	}
	if !completed {
		m.log.Warn().Str("job_id", job.ID).Msg("job cancelled during schedule generation; batch rolled back")
	} else {
		m.log.Info().Str("job_id", job.ID).Int("updated_demands", len(updates)).
			Int("total_cost", result.TotalCost).Msg("schedule generation finished")
	}
	return nil, jobengine.ErrFinalized
}

// loadPros converts the tenant's ACTIVE, sequenced members into solver
// professionals with vacations projected onto the period.
func (m *Materializer) loadPros(ctx context.Context, tenantID string, period timemodel.Period) ([]solver.Pro, error) {
	members, err := m.store.ListActivePros(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, domain.BadRequest("no active professionals with a sequence configured")
	}
	pros := make([]solver.Pro, 0, len(members))
	for _, mem := range members {
		hours, days := timemodel.SplitVacation(mem.Vacation, period)
		pros = append(pros, solver.Pro{
			ID:           mem.ID,
			Name:         mem.DisplayName(),
			Sequence:     mem.Sequence,
			CanPeds:      mem.CanPeds,
			Vacation:     hours,
			VacationDays: days,
		})
	}
	return pros, nil
}

func (m *Materializer) demandsFromStore(ctx context.Context, tenantID string, period timemodel.Period, input GenerateInput) ([]solver.Demand, error) {
	missing, err := m.store.CountDemandsMissingHospital(ctx, tenantID, period.Start, period.End)
	if err != nil {
		return nil, err
	}
	if missing > 0 {
		return nil, domain.BadRequest("%d demand(s) in the period have no hospital; every demand needs a hospital before scheduling", missing)
	}

	rows, err := m.store.ListDemandsInPeriod(ctx, tenantID, period.Start, period.End, input.FilterHospitalID)
	if err != nil {
		return nil, err
	}

	out := make([]solver.Demand, 0, len(rows))
	for i, d := range rows {
		if !d.EndTime.After(d.StartTime) {
			m.log.Warn().Str("demand_id", d.ID).Msg("skipping demand with inverted window")
			continue
		}
		day := period.DayIndex(d.StartTime)
		if day < 1 || day > period.Days() {
			m.log.Warn().Str("demand_id", d.ID).Int("day", day).Msg("skipping demand outside period")
			continue
		}
		token := d.Procedure
		if d.Room != nil && *d.Room != "" {
			token = *d.Room
		}
		if token == "" {
			token = fmt.Sprintf("D%d", i+1)
		}
		hospitalID := ""
		if d.HospitalID != nil {
			hospitalID = *d.HospitalID
		}
		out = append(out, solver.Demand{
			ID:          token,
			Day:         day,
			Start:       period.HourOf(d.StartTime),
			End:         period.HourOf(d.EndTime),
			IsPediatric: d.IsPediatric,
			DemandRowID: d.ID,
			HospitalID:  hospitalID,
		})
	}
	return out, nil
}

type extractedDemand struct {
	Room        string    `json:"room"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	IsPediatric bool      `json:"is_pediatric"`
}

func (m *Materializer) demandsFromExtract(ctx context.Context, job *domain.Job, period timemodel.Period, input GenerateInput) ([]solver.Demand, string, error) {
	if input.ExtractJobID == "" {
		return nil, "", domain.BadRequest("extract_job_id is required in from_extract mode")
	}
	extractJob, err := m.store.GetJob(ctx, input.ExtractJobID)
	if err != nil {
		return nil, "", err
	}
	if extractJob.TenantID != job.TenantID {
		return nil, "", domain.Forbidden("access denied")
	}
	if extractJob.Status != domain.JobCompleted || extractJob.Result == nil {
		return nil, "", domain.BadRequest("extract job is not COMPLETED or has no result")
	}

	var payload struct {
		Demands []extractedDemand `json:"demands"`
	}
	if err := domain.Decode(extractJob.Result, &payload); err != nil {
		return nil, "", err
	}

	var out []solver.Demand
	for i, d := range payload.Demands {
		if !d.EndTime.After(d.StartTime) {
			continue
		}
		day := period.DayIndex(d.StartTime)
		if day < 1 || day > period.Days() {
			continue
		}
		token := d.Room
		if token == "" {
			token = fmt.Sprintf("D%d", i+1)
		}
		out = append(out, solver.Demand{
			ID:          token,
			Day:         day,
			Start:       period.HourOf(d.StartTime),
			End:         period.HourOf(d.EndTime),
			IsPediatric: d.IsPediatric,
		})
	}
	return out, extractJob.ID, nil
}

// flattenAllocations converts the solver's per-day output into individual
// allocation records carrying metadata.
func (m *Materializer) flattenAllocations(result solver.Result, pros []solver.Pro, allocMode solver.Mode, mode, jobID, extractJobID string, now time.Time) []Allocation {
	nameByID := make(map[string]string, len(pros))
	for _, p := range pros {
		nameByID[p.ID] = p.Name
	}

	var out []Allocation
	for _, day := range result.PerDay {
		for _, p := range day.ProsForDay {
			for _, d := range day.AssignedDemandsByPro[p.ID] {
				meta := &AllocationMetadata{
					AllocationMode: string(allocMode),
					TotalCost:      result.TotalCost,
					Mode:           mode,
					GeneratedAt:    now,
					JobID:          jobID,
					Sequence:       len(out) + 1,
				}
				if extractJobID != "" {
					meta.ExtractJobID = extractJobID
				}
				out = append(out, Allocation{
					Member:      nameByID[p.ID],
					MemberID:    p.ID,
					ID:          d.ID,
					Day:         day.DayNumber,
					Start:       d.Start,
					End:         d.End,
					IsPediatric: d.IsPediatric,
					DemandID:    d.DemandRowID,
					HospitalID:  d.HospitalID,
					Metadata:    meta,
				})
			}
		}
	}
	return out
}
