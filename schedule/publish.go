package schedule

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/juniorbasecompany/turna/authz"
	"github.com/juniorbasecompany/turna/blob"
	"github.com/juniorbasecompany/turna/domain"
)

const presignTTL = time.Hour

// PublishResult is the outcome of Publish.
type PublishResult struct {
	DemandID     string                `json:"demand_id"`
	Status       domain.ScheduleStatus `json:"status"`
	PdfFileID    string                `json:"pdf_file_id"`
	PresignedURL string                `json:"presigned_url"`
}

// Publish renders and uploads the schedule PDF and flips the Demand to
// PUBLISHED. Idempotent: a Demand already published with a PDF only gets
// a fresh presigned URL.
func (m *Materializer) Publish(ctx context.Context, caller authz.Caller, demandID string) (*PublishResult, error) {
	d, err := m.store.GetDemand(ctx, demandID)
	if err != nil {
		return nil, err
	}
	if err := caller.SameTenant(d.TenantID); err != nil {
		return nil, err
	}
	if d.ScheduleStatus == nil {
		return nil, domain.NotFound("demand has no schedule")
	}

	if *d.ScheduleStatus == domain.SchedulePublished && d.PdfFileID != nil {
		file, err := m.store.GetFile(ctx, *d.PdfFileID)
		if err != nil {
			return nil, domain.Internal("pdf_file_id points at a missing file")
		}
		url, err := m.blobs.PresignGet(ctx, file.BlobKey, presignTTL)
		if err != nil {
			return nil, err
		}
		return &PublishResult{DemandID: d.ID, Status: *d.ScheduleStatus, PdfFileID: file.ID, PresignedURL: url}, nil
	}

	sheets, err := m.daySheets(ctx, d)
	if err != nil {
		return nil, err
	}
	pdfBytes, err := m.pdf.Render(sheets)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, "schedule PDF rendering failed", err)
	}

	name := d.ID
	if d.ScheduleName != nil && *d.ScheduleName != "" {
		name = *d.ScheduleName
	}
	now := m.clock.Now()
	key := blob.NewKey(d.TenantID, "schedule", name+".pdf")
	if err := m.blobs.Put(ctx, key, bytes.NewReader(pdfBytes), "application/pdf"); err != nil {
		return nil, err
	}

	file := &domain.File{
		ID:          uuid.NewString(),
		TenantID:    d.TenantID,
		Filename:    name + ".pdf",
		ContentType: "application/pdf",
		BlobKey:     key,
		FileSize:    int64(len(pdfBytes)),
		CreatedAt:   now,
	}
	if err := m.store.CreateFile(ctx, file); err != nil {
		return nil, err
	}
	if err := m.store.PublishDemand(ctx, d.ID, file.ID, now); err != nil {
		return nil, err
	}

	url, err := m.blobs.PresignGet(ctx, key, presignTTL)
	if err != nil {
		return nil, err
	}
	m.log.Info().Str("demand_id", d.ID).Str("pdf_file_id", file.ID).Msg("schedule published")
	return &PublishResult{DemandID: d.ID, Status: domain.SchedulePublished, PdfFileID: file.ID, PresignedURL: url}, nil
}

// Delete resets the schedule fields of a DRAFT Demand. Published
// schedules must be archived instead.
func (m *Materializer) Delete(ctx context.Context, caller authz.Caller, demandID string) error {
	d, err := m.store.GetDemand(ctx, demandID)
	if err != nil {
		return err
	}
	if err := caller.SameTenant(d.TenantID); err != nil {
		return err
	}
	if d.ScheduleStatus == nil {
		return domain.NotFound("demand has no schedule")
	}
	if *d.ScheduleStatus == domain.SchedulePublished {
		return domain.BadRequest("cannot delete a published schedule; archive it instead")
	}
	if *d.ScheduleStatus != domain.ScheduleDraft {
		return domain.BadRequest("only DRAFT schedules can be deleted (status is %s)", *d.ScheduleStatus)
	}
	return m.store.ClearDemandSchedule(ctx, d.ID, m.clock.Now())
}

// Archive moves a PUBLISHED schedule to ARCHIVED.
func (m *Materializer) Archive(ctx context.Context, caller authz.Caller, demandID string) error {
	d, err := m.store.GetDemand(ctx, demandID)
	if err != nil {
		return err
	}
	if err := caller.SameTenant(d.TenantID); err != nil {
		return err
	}
	ok, err := m.store.ArchiveDemand(ctx, d.ID, m.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		return domain.BadRequest("only published schedules can be archived")
	}
	return nil
}

// DaySheet is the render model handed to the PdfRenderer: one page per
// day, one row per allocation.
type DaySheet struct {
	DayNumber int        `json:"day_number"`
	Rows      []SheetRow `json:"rows"`
}

type SheetRow struct {
	MemberID    string  `json:"member_id"`
	Member      string  `json:"member"`
	DemandToken string  `json:"id"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	IsPediatric bool    `json:"is_pediatric"`
	HospitalID  string  `json:"hospital_id,omitempty"`
}

// daySheets rebuilds the per-day structure for rendering. Two storage
// layouts exist: a complete per_day payload on the Demand itself, or the
// fragmented layout where each sibling Demand sharing the job carries one
// allocation.
func (m *Materializer) daySheets(ctx context.Context, d *domain.Demand) ([]DaySheet, error) {
	if d.ScheduleResultData != nil {
		if _, ok := d.ScheduleResultData["per_day"]; ok {
			return sheetsFromPerDay(d.ScheduleResultData)
		}
	}
	if d.JobID == nil {
		return nil, domain.BadRequest("schedule result is not reconstructable: no per_day payload and no job reference")
	}
	fragments, err := m.store.ListScheduleFragments(ctx, d.TenantID, *d.JobID)
	if err != nil {
		return nil, err
	}
	if len(fragments) == 0 {
		return nil, domain.BadRequest("schedule result is not reconstructable: no fragments for job")
	}
	return sheetsFromFragments(fragments), nil
}

func sheetsFromPerDay(resultData map[string]any) ([]DaySheet, error) {
	var payload struct {
		PerDay []struct {
			DayNumber  int `json:"day_number"`
			ProsForDay []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"pros_for_day"`
			AssignedDemandsByPro map[string][]struct {
				ID          string  `json:"id"`
				Start       float64 `json:"start"`
				End         float64 `json:"end"`
				IsPediatric bool    `json:"is_pediatric"`
				HospitalID  string  `json:"hospital_id"`
			} `json:"assigned_demands_by_pro"`
		} `json:"per_day"`
	}
	if err := domain.Decode(resultData, &payload); err != nil {
		return nil, err
	}

	var sheets []DaySheet
	for _, day := range payload.PerDay {
		nameByID := map[string]string{}
		for _, p := range day.ProsForDay {
			nameByID[p.ID] = p.Name
		}
		sheet := DaySheet{DayNumber: day.DayNumber}
		for pid, demands := range day.AssignedDemandsByPro {
			for _, dm := range demands {
				sheet.Rows = append(sheet.Rows, SheetRow{
					MemberID:    pid,
					Member:      nameByID[pid],
					DemandToken: dm.ID,
					Start:       dm.Start,
					End:         dm.End,
					IsPediatric: dm.IsPediatric,
					HospitalID:  dm.HospitalID,
				})
			}
		}
		sortRows(sheet.Rows)
		sheets = append(sheets, sheet)
	}
	sort.Slice(sheets, func(i, j int) bool { return sheets[i].DayNumber < sheets[j].DayNumber })
	return sheets, nil
}

func sheetsFromFragments(fragments []*domain.Demand) []DaySheet {
	byDay := map[int]*DaySheet{}
	for _, frag := range fragments {
		var alloc Allocation
		if err := domain.Decode(frag.ScheduleResultData, &alloc); err != nil {
			continue
		}
		if alloc.Day <= 0 || alloc.MemberID == "" {
			continue
		}
		sheet := byDay[alloc.Day]
		if sheet == nil {
			sheet = &DaySheet{DayNumber: alloc.Day}
			byDay[alloc.Day] = sheet
		}
		hospitalID := alloc.HospitalID
		if hospitalID == "" && frag.HospitalID != nil {
			hospitalID = *frag.HospitalID
		}
		sheet.Rows = append(sheet.Rows, SheetRow{
			MemberID:    alloc.MemberID,
			Member:      alloc.Member,
			DemandToken: alloc.ID,
			Start:       alloc.Start,
			End:         alloc.End,
			IsPediatric: alloc.IsPediatric,
			HospitalID:  hospitalID,
		})
	}

	days := make([]int, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Ints(days)

	sheets := make([]DaySheet, 0, len(days))
	for _, day := range days {
		sortRows(byDay[day].Rows)
		sheets = append(sheets, *byDay[day])
	}
	return sheets
}

func sortRows(rows []SheetRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Start != rows[j].Start {
			return rows[i].Start < rows[j].Start
		}
		return rows[i].Member < rows[j].Member
	})
}
