package jobengine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/juniorbasecompany/turna/domain"
)

const orphanMarker = "orphan/stale: job stayed PENDING (never started) beyond its expected window; requeue manually (admin)"

// Reconciler sweeps PENDING jobs that never reached a worker — a row
// whose queue message was lost, or whose worker died before claiming it —
// and fails the ones older than their stale window. RUNNING jobs are
// never touched: no heartbeat is assumed.
type Reconciler struct {
	engine   *Engine
	interval time.Duration
	log      zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewReconciler(engine *Engine, interval time.Duration, log zerolog.Logger) *Reconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Reconciler{
		engine:   engine,
		interval: interval,
		log:      log.With().Str("component", "reconciler").Logger(),
		done:     make(chan struct{}),
	}
}

// Start launches the background sweep loop.
func (r *Reconciler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go r.loop(ctx)
	r.log.Info().Dur("interval", r.interval).Msg("stale-job reconciler started")
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (r *Reconciler) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	<-r.done
	r.log.Info().Msg("stale-job reconciler stopped")
}

func (r *Reconciler) loop(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			scanned, failed, err := r.RunOnce(ctx)
			if err != nil {
				r.log.Error().Err(err).Msg("reconcile sweep failed")
				continue
			}
			if failed > 0 {
				r.log.Warn().Int("scanned", scanned).Int("failed", failed).Msg("orphaned jobs failed")
			}
		}
	}
}

// RunOnce performs a single sweep and reports how many PENDING rows were
// scanned and how many were failed as orphans.
func (r *Reconciler) RunOnce(ctx context.Context) (scanned, failed int, err error) {
	pending, err := r.engine.store.ListOrphanPending(ctx)
	if err != nil {
		return 0, 0, err
	}

	now := r.engine.clock.Now()
	type windowKey struct {
		tenantID string
		kind     domain.JobKind
	}
	windows := map[windowKey]time.Duration{}

	for _, job := range pending {
		scanned++
		key := windowKey{job.TenantID, job.Kind}
		window, ok := windows[key]
		if !ok {
			window, err = r.engine.staleWindow(ctx, job.TenantID, job.Kind)
			if err != nil {
				return scanned, failed, err
			}
			windows[key] = window
		}
		if now.Sub(job.CreatedAt) <= window {
			continue
		}
		ok2, err := r.engine.store.FailOrphanJob(ctx, job.ID, orphanMarker, now)
		if err != nil {
			return scanned, failed, err
		}
		if ok2 {
			failed++
		}
	}
	return scanned, failed, nil
}
