package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/juniorbasecompany/turna/domain"
)

// Event is one audit fact. Submission is fire-and-forget: business
// transactions never wait on, or fail because of, the audit trail.
type Event struct {
	TenantID  *string
	AccountID string
	MemberID  *string
	Type      string
	Data      map[string]any
	CreatedAt time.Time
}

// Sink is the destination for audit entries (the store in production, a
// capture buffer in tests).
type Sink interface {
	// Write persists a batch of audit entries.
	Write(ctx context.Context, entries []domain.AuditLog) error
	// Close releases resources.
	Close() error
}

// RecorderConfig controls batching and backpressure behavior.
type RecorderConfig struct {
	// BufferSize is the channel buffer size.
	BufferSize int
	// BatchSize is the max entries per flush.
	BatchSize int
	// FlushInterval is the max time between flushes.
	FlushInterval time.Duration
}

// DefaultRecorderConfig returns production defaults.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		BufferSize:    4096,
		BatchSize:     64,
		FlushInterval: 2 * time.Second,
	}
}

// Recorder is the async audit writer: a buffered channel drained by a
// single background worker that batches into the sink.
type Recorder struct {
	logger zerolog.Logger
	config RecorderConfig
	sink   Sink

	ch     chan Event
	wg     sync.WaitGroup
	cancel context.CancelFunc

	received int64
	written  int64
	dropped  int64
}

// NewRecorder creates a new audit recorder.
func NewRecorder(logger zerolog.Logger, sink Sink, config ...RecorderConfig) *Recorder {
	cfg := DefaultRecorderConfig()
	if len(config) > 0 {
		cfg = config[0]
	}
	return &Recorder{
		logger: logger.With().Str("component", "audit-recorder").Logger(),
		config: cfg,
		sink:   sink,
		ch:     make(chan Event, cfg.BufferSize),
	}
}

// Start launches the background writer.
func (r *Recorder) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go r.worker(ctx)
	r.logger.Info().
		Int("buffer_size", r.config.BufferSize).
		Int("batch_size", r.config.BatchSize).
		Dur("flush_interval", r.config.FlushInterval).
		Msg("audit recorder started")
}

// Stop flushes remaining entries and shuts the recorder down.
func (r *Recorder) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.drain()
	if r.sink != nil {
		_ = r.sink.Close()
	}
	r.logger.Info().
		Int64("received", atomic.LoadInt64(&r.received)).
		Int64("written", atomic.LoadInt64(&r.written)).
		Int64("dropped", atomic.LoadInt64(&r.dropped)).
		Msg("audit recorder stopped")
}

// Record submits an event. Non-blocking: drops the event if the buffer is
// full.
func (r *Recorder) Record(ev Event) {
	select {
	case r.ch <- ev:
		atomic.AddInt64(&r.received, 1)
	default:
		atomic.AddInt64(&r.dropped, 1)
		r.logger.Warn().Str("event_type", ev.Type).Msg("audit event dropped: buffer full")
	}
}

func (r *Recorder) worker(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, r.config.BatchSize)
	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				r.flush(batch)
			}
			return
		case ev := <-r.ch:
			batch = append(batch, ev)
			if len(batch) >= r.config.BatchSize {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (r *Recorder) flush(batch []Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	entries := make([]domain.AuditLog, 0, len(batch))
	for _, ev := range batch {
		entries = append(entries, domain.AuditLog{
			ID:        uuid.NewString(),
			TenantID:  ev.TenantID,
			AccountID: ev.AccountID,
			MemberID:  ev.MemberID,
			EventType: ev.Type,
			Data:      ev.Data,
			CreatedAt: ev.CreatedAt,
		})
	}
	if err := r.sink.Write(ctx, entries); err != nil {
		// Best-effort by contract: log and move on.
		atomic.AddInt64(&r.dropped, int64(len(batch)))
		r.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("audit batch dropped")
		return
	}
	atomic.AddInt64(&r.written, int64(len(batch)))
}

func (r *Recorder) drain() {
	batch := make([]Event, 0, r.config.BatchSize)
	for {
		select {
		case ev := <-r.ch:
			batch = append(batch, ev)
			if len(batch) >= r.config.BatchSize {
				r.flush(batch)
				batch = batch[:0]
			}
		default:
			if len(batch) > 0 {
				r.flush(batch)
			}
			return
		}
	}
}
