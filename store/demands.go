package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/juniorbasecompany/turna/domain"
)

const demandColumns = `id, tenant_id, hospital_id, job_id, room, start_time, end_time, procedure,
	anesthesia_type, complexity, skills, priority, is_pediatric, notes, source,
	schedule_status, schedule_name, schedule_version_number, schedule_result_data,
	member_id, pdf_file_id, generated_at, published_at, created_at, updated_at`

func scanDemand(row pgx.Row) (*domain.Demand, error) {
	var d domain.Demand
	var skills, source, resultData []byte
	err := row.Scan(&d.ID, &d.TenantID, &d.HospitalID, &d.JobID, &d.Room, &d.StartTime, &d.EndTime,
		&d.Procedure, &d.AnesthesiaType, &d.Complexity, &skills, &d.Priority, &d.IsPediatric,
		&d.Notes, &source, &d.ScheduleStatus, &d.ScheduleName, &d.ScheduleVersionNumber,
		&resultData, &d.MemberID, &d.PdfFileID, &d.GeneratedAt, &d.PublishedAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Skills = unmarshalStrings(skills)
	d.Source = unmarshalMap(source)
	d.ScheduleResultData = unmarshalMap(resultData)
	return &d, nil
}

func (s *Store) CreateDemand(ctx context.Context, d *domain.Demand) error {
	if !d.EndTime.After(d.StartTime) {
		return domain.BadRequest("demand end_time must be after start_time")
	}
	skills, err := jsonArg(d.Skills)
	if err != nil {
		return err
	}
	source, err := jsonArg(d.Source)
	if err != nil {
		return err
	}
	resultData, err := jsonArg(d.ScheduleResultData)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO demand (id, tenant_id, hospital_id, job_id, room, start_time, end_time, procedure,
			anesthesia_type, complexity, skills, priority, is_pediatric, notes, source,
			schedule_status, schedule_name, schedule_version_number, schedule_result_data,
			member_id, pdf_file_id, generated_at, published_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25)`,
		d.ID, d.TenantID, d.HospitalID, d.JobID, d.Room, d.StartTime, d.EndTime, d.Procedure,
		d.AnesthesiaType, d.Complexity, skills, d.Priority, d.IsPediatric, d.Notes, source,
		d.ScheduleStatus, d.ScheduleName, d.ScheduleVersionNumber, resultData,
		d.MemberID, d.PdfFileID, d.GeneratedAt, d.PublishedAt, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return mapPgError("create demand", err)
	}
	return nil
}

func (s *Store) GetDemand(ctx context.Context, id string) (*domain.Demand, error) {
	d, err := scanDemand(s.db.QueryRow(ctx,
		`SELECT `+demandColumns+` FROM demand WHERE id = $1`, id))
	if err != nil {
		return nil, mapPgError("get demand", err)
	}
	return d, nil
}

// ListDemandsInPeriod returns the tenant's demands whose start_time falls
// in [start, end), optionally filtered by hospital, ordered by start_time.
func (s *Store) ListDemandsInPeriod(ctx context.Context, tenantID string, start, end time.Time, hospitalID *string) ([]*domain.Demand, error) {
	sql := `SELECT ` + demandColumns + ` FROM demand
		 WHERE tenant_id = $1 AND start_time >= $2 AND start_time < $3`
	args := []any{tenantID, start, end}
	if hospitalID != nil {
		sql += ` AND hospital_id = $4`
		args = append(args, *hospitalID)
	}
	sql += ` ORDER BY start_time`

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapPgError("list demands", err)
	}
	defer rows.Close()

	var out []*domain.Demand
	for rows.Next() {
		d, err := scanDemand(rows)
		if err != nil {
			return nil, mapPgError("list demands", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CountDemandsMissingHospital counts period demands with no hospital; a
// schedule cannot be generated over them.
func (s *Store) CountDemandsMissingHospital(ctx context.Context, tenantID string, start, end time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM demand
		 WHERE tenant_id = $1 AND start_time >= $2 AND start_time < $3 AND hospital_id IS NULL`,
		tenantID, start, end).Scan(&n)
	if err != nil {
		return 0, mapPgError("count demands missing hospital", err)
	}
	return n, nil
}

// DemandScheduleUpdate is one allocation written back onto its Demand row.
type DemandScheduleUpdate struct {
	DemandID      string
	ScheduleName  string
	VersionNumber int
	MemberID      *string
	ResultData    map[string]any
}

// ApplyScheduleResult writes every allocation and the owning job's
// COMPLETED transition in one transaction. If the job was cancelled while
// the solver ran (status no longer RUNNING), nothing is written and
// completed is false.
func (s *Store) ApplyScheduleResult(ctx context.Context, tenantID, jobID string, updates []DemandScheduleUpdate, jobResult map[string]any, now time.Time) (completed bool, err error) {
	err = s.WithTx(ctx, func(tx *Store) error {
		for _, u := range updates {
			resultData, err := jsonArg(u.ResultData)
			if err != nil {
				return err
			}
			tag, err := tx.db.Exec(ctx,
				`UPDATE demand
				 SET schedule_status = 'DRAFT', schedule_name = $3, schedule_version_number = $4,
				     schedule_result_data = $5, member_id = $6, generated_at = $7, job_id = $8, updated_at = $7
				 WHERE id = $1 AND tenant_id = $2`,
				u.DemandID, tenantID, u.ScheduleName, u.VersionNumber, resultData, u.MemberID, now, jobID)
			if err != nil {
				return mapPgError("apply allocation", err)
			}
			if tag.RowsAffected() == 0 {
				return domain.NotFound("demand %s not found for schedule write-back", u.DemandID)
			}
		}
		ok, err := tx.CompleteJob(ctx, jobID, jobResult, now)
		if err != nil {
			return err
		}
		if !ok {
			// Cancelled mid-run; unwind the batch.
			return errScheduleCancelled
		}
		completed = true
		return nil
	})
	if err == errScheduleCancelled {
		return false, nil
	}
	return completed, err
}

var errScheduleCancelled = domain.Conflict("job cancelled during schedule generation")

// ListScheduleFragments returns the sibling Demands holding one allocation
// each for a generate-schedule job, for per-day reconstruction.
func (s *Store) ListScheduleFragments(ctx context.Context, tenantID, jobID string) ([]*domain.Demand, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+demandColumns+` FROM demand
		 WHERE tenant_id = $1 AND job_id = $2 AND schedule_result_data IS NOT NULL
		 ORDER BY start_time`, tenantID, jobID)
	if err != nil {
		return nil, mapPgError("list schedule fragments", err)
	}
	defer rows.Close()

	var out []*domain.Demand
	for rows.Next() {
		d, err := scanDemand(rows)
		if err != nil {
			return nil, mapPgError("list schedule fragments", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// PublishDemand flips a scheduled Demand to PUBLISHED with its PDF file.
func (s *Store) PublishDemand(ctx context.Context, id, pdfFileID string, now time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE demand
		 SET schedule_status = 'PUBLISHED', pdf_file_id = $2, published_at = $3, updated_at = $3
		 WHERE id = $1`, id, pdfFileID, now)
	if err != nil {
		return mapPgError("publish demand", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("demand not found")
	}
	return nil
}

// ClearDemandSchedule resets every schedule field; only DRAFT rows reach
// this (the service gates PUBLISHED).
func (s *Store) ClearDemandSchedule(ctx context.Context, id string, now time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE demand
		 SET schedule_status = NULL, schedule_name = NULL, schedule_version_number = 1,
		     schedule_result_data = NULL, generated_at = NULL, published_at = NULL,
		     pdf_file_id = NULL, job_id = NULL, member_id = NULL, updated_at = $2
		 WHERE id = $1`, id, now)
	if err != nil {
		return mapPgError("clear demand schedule", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("demand not found")
	}
	return nil
}

// ArchiveDemand moves a PUBLISHED schedule to ARCHIVED.
func (s *Store) ArchiveDemand(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE demand SET schedule_status = 'ARCHIVED', updated_at = $2
		 WHERE id = $1 AND schedule_status = 'PUBLISHED'`, id, now)
	if err != nil {
		return false, mapPgError("archive demand", err)
	}
	return tag.RowsAffected() == 1, nil
}
