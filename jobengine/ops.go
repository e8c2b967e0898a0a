package jobengine

import (
	"context"
	"time"

	"github.com/juniorbasecompany/turna/authz"
	"github.com/juniorbasecompany/turna/broker"
	"github.com/juniorbasecompany/turna/domain"
	"github.com/juniorbasecompany/turna/store"
)

const cancelledMarker = "cancelled by user"

// Get returns a tenant-scoped job.
func (e *Engine) Get(ctx context.Context, caller authz.Caller, jobID string) (*domain.Job, error) {
	if err := caller.RequireFull(); err != nil {
		return nil, err
	}
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := caller.SameTenant(job.TenantID); err != nil {
		return nil, err
	}
	return job, nil
}

// List returns the tenant's jobs with optional filters.
func (e *Engine) List(ctx context.Context, caller authz.Caller, filter store.JobFilter) ([]*domain.Job, int, error) {
	if err := caller.RequireFull(); err != nil {
		return nil, 0, err
	}
	return e.store.ListJobs(ctx, caller.TenantID, filter)
}

// Cancel moves a non-terminal job to FAILED with a cancellation marker.
// Terminal jobs are returned unchanged. Cancellation is cooperative: a
// running handler discovers it only at its commit-time status check.
func (e *Engine) Cancel(ctx context.Context, caller authz.Caller, jobID string) (*domain.Job, error) {
	job, err := e.Get(ctx, caller, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return job, nil
	}
	if _, err := e.store.CancelJob(ctx, job.ID, cancelledMarker, e.clock.Now()); err != nil {
		return nil, err
	}
	e.log.Info().Str("job_id", job.ID).Msg("job cancelled")
	return e.store.GetJob(ctx, job.ID)
}

// Delete removes a terminal job.
func (e *Engine) Delete(ctx context.Context, caller authz.Caller, jobID string) error {
	job, err := e.Get(ctx, caller, jobID)
	if err != nil {
		return err
	}
	if !job.Status.Terminal() {
		return domain.BadRequest("only COMPLETED or FAILED jobs can be deleted (status is %s)", job.Status)
	}
	return e.store.DeleteJob(ctx, job.ID)
}

// Requeue resurrects a job onto the queue. Admin-only. Without force it
// is allowed for FAILED jobs and for stale PENDING jobs that never
// started; transient kinds (PING) are never requeued without force.
func (e *Engine) Requeue(ctx context.Context, caller authz.Caller, jobID string, force, wipeResult bool) (*domain.Job, error) {
	if err := caller.RequireAdmin(); err != nil {
		return nil, err
	}
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := caller.SameTenant(job.TenantID); err != nil {
		return nil, err
	}

	if !force {
		if job.Kind == domain.JobPing {
			return nil, domain.BadRequest("transient job kind (PING) should not be requeued; cancel or expire it instead")
		}
		window, err := e.staleWindow(ctx, job.TenantID, job.Kind)
		if err != nil {
			return nil, err
		}
		isPendingStale := job.Status == domain.JobPending &&
			job.StartedAt == nil &&
			e.clock.Now().Sub(job.CreatedAt) > window
		if job.Status != domain.JobFailed && !isPendingStale {
			return nil, domain.BadRequest("requeue is only allowed for FAILED or stale PENDING jobs (use force to override)")
		}
	}

	if err := e.store.RequeueJob(ctx, job.ID, wipeResult, e.clock.Now()); err != nil {
		return nil, err
	}
	if err := e.broker.Publish(ctx, broker.Message{JobID: job.ID, Kind: string(job.Kind)}); err != nil {
		return nil, domain.Wrap(domain.KindUnavailable, "job queue unavailable", err)
	}
	e.log.Info().Str("job_id", job.ID).Bool("force", force).Bool("wipe_result", wipeResult).
		Msg("job requeued")
	return e.store.GetJob(ctx, job.ID)
}

// staleWindow estimates how long a PENDING job of this (tenant, kind) may
// reasonably wait: 10x the average duration of the last 10 COMPLETED
// runs, clamped between the configured floor and ceiling; the ceiling
// alone when there is no history.
func (e *Engine) staleWindow(ctx context.Context, tenantID string, kind domain.JobKind) (time.Duration, error) {
	durations, err := e.store.CompletedDurations(ctx, tenantID, kind, 10)
	if err != nil {
		return 0, err
	}
	if len(durations) == 0 {
		return e.cfg.StaleWindowMax, nil
	}
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	window := 10 * (total / time.Duration(len(durations)))
	if window > e.cfg.StaleWindowMax {
		window = e.cfg.StaleWindowMax
	}
	if window < e.cfg.StaleWindowFloor {
		window = e.cfg.StaleWindowFloor
	}
	return window, nil
}
