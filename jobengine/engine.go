package jobengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/juniorbasecompany/turna/authz"
	"github.com/juniorbasecompany/turna/broker"
	"github.com/juniorbasecompany/turna/clock"
	"github.com/juniorbasecompany/turna/config"
	"github.com/juniorbasecompany/turna/domain"
	"github.com/juniorbasecompany/turna/store"
)

// ErrFinalized is returned by handlers that commit their own terminal job
// transition (the schedule write-back does it inside its batch
// transaction). The engine then leaves the row alone.
var ErrFinalized = errors.New("job finalized by handler")

// Handler executes one job kind. The returned map becomes job.result; an
// error marks the job FAILED with a sanitized message.
type Handler interface {
	Run(ctx context.Context, job *domain.Job) (map[string]any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *domain.Job) (map[string]any, error)

func (f HandlerFunc) Run(ctx context.Context, job *domain.Job) (map[string]any, error) {
	return f(ctx, job)
}

// Store is the persistence surface the engine needs.
type Store interface {
	CreateJob(ctx context.Context, j *domain.Job) error
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	ListJobs(ctx context.Context, tenantID string, filter store.JobFilter) ([]*domain.Job, int, error)
	DeleteJob(ctx context.Context, id string) error
	MarkJobRunning(ctx context.Context, id string, now time.Time) (bool, error)
	CompleteJob(ctx context.Context, id string, result map[string]any, now time.Time) (bool, error)
	FailJobFromRunning(ctx context.Context, id, errMsg string, now time.Time) (bool, error)
	CancelJob(ctx context.Context, id, errMsg string, now time.Time) (bool, error)
	FailOrphanJob(ctx context.Context, id, errMsg string, now time.Time) (bool, error)
	RequeueJob(ctx context.Context, id string, wipeResult bool, now time.Time) error
	ListOrphanPending(ctx context.Context) ([]*domain.Job, error)
	CompletedDurations(ctx context.Context, tenantID string, kind domain.JobKind, limit int) ([]time.Duration, error)
}

var _ Store = (*store.Store)(nil)

// Engine owns the durable work queue: enqueue, a parallel worker pool,
// cancellation, requeue and status streaming.
type Engine struct {
	store    Store
	broker   broker.Broker
	clock    clock.Clock
	cfg      *config.Config
	log      zerolog.Logger
	handlers map[domain.JobKind]Handler

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func New(st Store, br broker.Broker, clk clock.Clock, cfg *config.Config, log zerolog.Logger) *Engine {
	return &Engine{
		store:    st,
		broker:   br,
		clock:    clk,
		cfg:      cfg,
		log:      log.With().Str("component", "jobengine").Logger(),
		handlers: map[domain.JobKind]Handler{},
	}
}

// Register binds a handler to a job kind. Must happen before Start.
func (e *Engine) Register(kind domain.JobKind, h Handler) {
	e.handlers[kind] = h
}

// Start launches the worker pool.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	workers := e.cfg.WorkerCount
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker(ctx, i)
	}
	e.log.Info().Int("workers", workers).Msg("job workers started")
}

// Stop drains the worker pool.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.log.Info().Msg("job workers stopped")
}

// Enqueue creates the PENDING row, then publishes the queue message.
// A failed publish surfaces as Unavailable; the PENDING row stays behind
// where the stale reconciler can see it, so the order guarantees that no
// worker ever observes a message without its row.
func (e *Engine) Enqueue(ctx context.Context, caller authz.Caller, kind domain.JobKind, input map[string]any) (*domain.Job, error) {
	if err := caller.RequireFull(); err != nil {
		return nil, err
	}
	if _, ok := e.handlers[kind]; !ok {
		return nil, domain.BadRequest("no handler registered for job kind %s", kind)
	}

	now := e.clock.Now()
	job := &domain.Job{
		ID:        uuid.NewString(),
		TenantID:  caller.TenantID,
		Kind:      kind,
		Status:    domain.JobPending,
		Input:     input,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	if err := e.broker.Publish(ctx, broker.Message{JobID: job.ID, Kind: string(kind)}); err != nil {
		e.log.Warn().Err(err).Str("job_id", job.ID).
			Msg("queue publish failed; PENDING row left for the reconciler")
		return nil, domain.Wrap(domain.KindUnavailable, "job queue unavailable", err)
	}
	e.log.Debug().Str("job_id", job.ID).Str("kind", string(kind)).Msg("job enqueued")
	return job, nil
}

func (e *Engine) worker(ctx context.Context, id int) {
	defer e.wg.Done()
	log := e.log.With().Int("worker", id).Logger()
	for {
		msg, err := e.broker.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, broker.ErrClosed) {
				return
			}
			log.Warn().Err(err).Msg("queue consume failed; retrying")
			continue
		}
		e.process(ctx, msg, log)
	}
}

// process executes one claimed message. At-least-once delivery means the
// job may already be claimed, terminal, or gone: those are acks, not
// errors.
func (e *Engine) process(ctx context.Context, msg broker.Message, log zerolog.Logger) {
	job, err := e.store.GetJob(ctx, msg.JobID)
	if err != nil {
		if domain.IsNotFound(err) {
			log.Warn().Str("job_id", msg.JobID).Msg("queue message without job row; skipping")
		} else {
			log.Error().Err(err).Str("job_id", msg.JobID).Msg("job load failed; message dropped")
		}
		return
	}
	if job.Status != domain.JobPending {
		log.Debug().Str("job_id", job.ID).Str("status", string(job.Status)).Msg("job not pending; skipping")
		return
	}

	claimed, err := e.store.MarkJobRunning(ctx, job.ID, e.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("claim failed")
		return
	}
	if !claimed {
		log.Debug().Str("job_id", job.ID).Msg("lost claim race; skipping")
		return
	}

	result, err := e.runHandler(ctx, job, log)
	now := e.clock.Now()
	switch {
	case errors.Is(err, ErrFinalized):
		// Handler committed its own terminal transition.
	case err == nil:
		committed, cerr := e.store.CompleteJob(ctx, job.ID, result, now)
		if cerr != nil {
			log.Error().Err(cerr).Str("job_id", job.ID).Msg("completion write failed")
		} else if !committed {
			// Cancelled while running: the FAILED row wins, the result is
			// discarded.
			log.Warn().Str("job_id", job.ID).Msg("job cancelled mid-run; result discarded")
		}
	default:
		errMsg := SanitizeError(err)
		if _, ferr := e.store.FailJobFromRunning(ctx, job.ID, errMsg, now); ferr != nil {
			log.Error().Err(ferr).Str("job_id", job.ID).Msg("failure write failed")
		}
		log.Warn().Str("job_id", job.ID).Str("error", errMsg).Msg("job failed")
	}
}

func (e *Engine) runHandler(ctx context.Context, job *domain.Job, log zerolog.Logger) (result map[string]any, err error) {
	handler, ok := e.handlers[job.Kind]
	if !ok {
		return nil, domain.BadRequest("no handler registered for job kind %s", job.Kind)
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("job_id", job.ID).Interface("panic", r).Msg("handler panicked")
			err = domain.Internal("handler panic: %v", r)
		}
	}()
	start := time.Now()
	result, err = handler.Run(ctx, job)
	log.Debug().Str("job_id", job.ID).Str("kind", string(job.Kind)).
		Dur("elapsed", time.Since(start)).Msg("handler returned")
	return result, err
}

// SanitizeError reduces an error to a message safe to persist and return:
// classified errors keep their message, anything else is collapsed to its
// type with details kept in server logs only.
func SanitizeError(err error) string {
	var de *domain.Error
	if errors.As(err, &de) {
		msg := fmt.Sprintf("%s: %s", de.Kind, de.Msg)
		return truncate(msg, 500)
	}
	return truncate(fmt.Sprintf("%T", err), 500)
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
