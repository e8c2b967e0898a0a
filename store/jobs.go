package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/juniorbasecompany/turna/domain"
)

const jobColumns = `id, tenant_id, kind, status, input, result, error, created_at, updated_at, started_at, completed_at`

func scanJob(row pgx.Row) (*domain.Job, error) {
	var j domain.Job
	var input, result []byte
	err := row.Scan(&j.ID, &j.TenantID, &j.Kind, &j.Status, &input, &result,
		&j.Error, &j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	j.Input = unmarshalMap(input)
	j.Result = unmarshalMap(result)
	return &j, nil
}

func (s *Store) CreateJob(ctx context.Context, j *domain.Job) error {
	input, err := jsonArg(j.Input)
	if err != nil {
		return err
	}
	result, err := jsonArg(j.Result)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO job (id, tenant_id, kind, status, input, result, error, created_at, updated_at, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		j.ID, j.TenantID, j.Kind, j.Status, input, result, j.Error,
		j.CreatedAt, j.UpdatedAt, j.StartedAt, j.CompletedAt)
	if err != nil {
		return mapPgError("create job", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	j, err := scanJob(s.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM job WHERE id = $1`, id))
	if err != nil {
		return nil, mapPgError("get job", err)
	}
	return j, nil
}

// JobFilter narrows ListJobs. Zero values mean "no filter".
type JobFilter struct {
	Kind          domain.JobKind
	Status        domain.JobStatus
	StartedAtFrom *time.Time
	StartedAtTo   *time.Time
	Limit         int
	Offset        int
}

func (s *Store) ListJobs(ctx context.Context, tenantID string, filter JobFilter) ([]*domain.Job, int, error) {
	args := []any{tenantID}
	where := []string{"tenant_id = $1"}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.StartedAtFrom != nil {
		args = append(args, *filter.StartedAtFrom)
		where = append(where, fmt.Sprintf("started_at >= $%d", len(args)))
	}
	if filter.StartedAtTo != nil {
		args = append(args, *filter.StartedAtTo)
		where = append(where, fmt.Sprintf("started_at <= $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM job WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, mapPgError("count jobs", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	rows, err := s.db.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM job WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
			jobColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, mapPgError("list jobs", err)
	}
	defer rows.Close()

	var out []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, mapPgError("list jobs", err)
		}
		out = append(out, j)
	}
	return out, total, rows.Err()
}

// MarkJobRunning claims a PENDING job. The CAS loses against any
// concurrent claim or cancellation.
func (s *Store) MarkJobRunning(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE job SET status = 'RUNNING', started_at = $2, updated_at = $2
		 WHERE id = $1 AND status = 'PENDING'`, id, now)
	if err != nil {
		return false, mapPgError("mark job running", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteJob commits the terminal success state. Guarded on RUNNING so a
// concurrent cancellation (already FAILED) is never overwritten.
func (s *Store) CompleteJob(ctx context.Context, id string, result map[string]any, now time.Time) (bool, error) {
	res, err := jsonArg(result)
	if err != nil {
		return false, err
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE job SET status = 'COMPLETED', result = $2, error = NULL, completed_at = $3, updated_at = $3
		 WHERE id = $1 AND status = 'RUNNING'`, id, res, now)
	if err != nil {
		return false, mapPgError("complete job", err)
	}
	return tag.RowsAffected() == 1, nil
}

// FailJobFromRunning records a handler failure, preserving any terminal
// state written concurrently.
func (s *Store) FailJobFromRunning(ctx context.Context, id, errMsg string, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE job SET status = 'FAILED', error = $2, completed_at = $3, updated_at = $3
		 WHERE id = $1 AND status = 'RUNNING'`, id, errMsg, now)
	if err != nil {
		return false, mapPgError("fail job", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CancelJob moves a non-terminal job to FAILED with a cancellation marker.
func (s *Store) CancelJob(ctx context.Context, id, errMsg string, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE job SET status = 'FAILED', error = $2, completed_at = COALESCE(completed_at, $3), updated_at = $3
		 WHERE id = $1 AND status IN ('PENDING', 'RUNNING')`, id, errMsg, now)
	if err != nil {
		return false, mapPgError("cancel job", err)
	}
	return tag.RowsAffected() == 1, nil
}

// FailOrphanJob is the reconciler's transition: only PENDING rows that
// never started are eligible.
func (s *Store) FailOrphanJob(ctx context.Context, id, errMsg string, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE job SET status = 'FAILED', error = $2, completed_at = $3, updated_at = $3
		 WHERE id = $1 AND status = 'PENDING' AND started_at IS NULL`, id, errMsg, now)
	if err != nil {
		return false, mapPgError("fail orphan job", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RequeueJob resets execution fields so the job reads as freshly enqueued.
func (s *Store) RequeueJob(ctx context.Context, id string, wipeResult bool, now time.Time) error {
	sql := `UPDATE job SET status = 'PENDING', error = NULL, started_at = NULL, completed_at = NULL, updated_at = $2 WHERE id = $1`
	if wipeResult {
		sql = `UPDATE job SET status = 'PENDING', error = NULL, result = NULL, started_at = NULL, completed_at = NULL, updated_at = $2 WHERE id = $1`
	}
	tag, err := s.db.Exec(ctx, sql, id, now)
	if err != nil {
		return mapPgError("requeue job", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("job not found")
	}
	return nil
}

// UpdateJobResult rewrites result only; used by the thin adapter.
func (s *Store) UpdateJobResult(ctx context.Context, id string, result map[string]any, now time.Time) error {
	res, err := jsonArg(result)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE job SET result = $2, updated_at = $3 WHERE id = $1`, id, res, now)
	if err != nil {
		return mapPgError("update job result", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("job not found")
	}
	return nil
}

func (s *Store) DeleteJob(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM job WHERE id = $1`, id)
	if err != nil {
		return mapPgError("delete job", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("job not found")
	}
	return nil
}

// ListOrphanPending returns PENDING jobs that never reached a worker,
// across all tenants; the reconciler decides which exceeded their window.
func (s *Store) ListOrphanPending(ctx context.Context) ([]*domain.Job, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+jobColumns+` FROM job WHERE status = 'PENDING' AND started_at IS NULL`)
	if err != nil {
		return nil, mapPgError("list orphan pending", err)
	}
	defer rows.Close()

	var out []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, mapPgError("list orphan pending", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// CompletedDurations returns run durations of the most recent COMPLETED
// jobs for (tenant, kind), newest first, for the stale-window estimate.
func (s *Store) CompletedDurations(ctx context.Context, tenantID string, kind domain.JobKind, limit int) ([]time.Duration, error) {
	rows, err := s.db.Query(ctx,
		`SELECT started_at, completed_at FROM job
		 WHERE tenant_id = $1 AND kind = $2 AND status = 'COMPLETED'
		   AND started_at IS NOT NULL AND completed_at IS NOT NULL
		 ORDER BY completed_at DESC LIMIT $3`,
		tenantID, kind, limit)
	if err != nil {
		return nil, mapPgError("completed durations", err)
	}
	defer rows.Close()

	var out []time.Duration
	for rows.Next() {
		var started, completed time.Time
		if err := rows.Scan(&started, &completed); err != nil {
			return nil, mapPgError("completed durations", err)
		}
		out = append(out, completed.Sub(started))
	}
	return out, rows.Err()
}
