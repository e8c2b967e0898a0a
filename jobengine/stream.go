package jobengine

import (
	"context"
	"time"

	"github.com/juniorbasecompany/turna/authz"
	"github.com/juniorbasecompany/turna/domain"
)

// StatusEvent is one snapshot in a job's status stream.
type StatusEvent struct {
	Status  domain.JobStatus `json:"status"`
	Result  map[string]any   `json:"result"`
	Timeout bool             `json:"-"`
}

// StreamStatus returns a lazy, finite sequence of status snapshots: the
// current state immediately, then one event per observed transition. The
// poll interval backs off from the configured minimum to the maximum, and
// the stream ends on COMPLETED/FAILED or at the streaming ceiling (a
// final event carries Timeout=true). The channel is closed when the
// sequence ends; it is single-subscriber and not restartable.
func (e *Engine) StreamStatus(ctx context.Context, caller authz.Caller, jobID string) (<-chan StatusEvent, error) {
	job, err := e.Get(ctx, caller, jobID)
	if err != nil {
		return nil, err
	}

	events := make(chan StatusEvent, 8)
	go func() {
		defer close(events)

		send := func(ev StatusEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		lastStatus := job.Status
		if !send(StatusEvent{Status: job.Status, Result: job.Result}) {
			return
		}
		if job.Status.Terminal() {
			return
		}

		interval := e.cfg.SSEPollMin
		deadline := time.Now().Add(e.cfg.SSETimeout)
		checks := 0

		for time.Now().Before(deadline) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval):
			}

			current, err := e.store.GetJob(ctx, jobID)
			if err != nil {
				e.log.Warn().Err(err).Str("job_id", jobID).Msg("status poll failed; stream closed")
				return
			}
			if current.Status != lastStatus {
				lastStatus = current.Status
				if !send(StatusEvent{Status: current.Status, Result: current.Result}) {
					return
				}
			}
			if current.Status.Terminal() {
				return
			}

			// Backoff: widen the interval by one second every third check,
			// up to the configured cap.
			checks++
			if checks%3 == 0 && interval < e.cfg.SSEPollMax {
				interval += time.Second
				if interval > e.cfg.SSEPollMax {
					interval = e.cfg.SSEPollMax
				}
			}
		}
		send(StatusEvent{Status: lastStatus, Timeout: true})
	}()
	return events, nil
}
