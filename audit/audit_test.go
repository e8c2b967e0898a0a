package audit

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juniorbasecompany/turna/domain"
)

type captureSink struct {
	mu      sync.Mutex
	entries []domain.AuditLog
	fail    bool
}

func (s *captureSink) Write(_ context.Context, entries []domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return domain.Unavailable("sink down")
	}
	s.entries = append(s.entries, entries...)
	return nil
}

func (s *captureSink) Close() error { return nil }

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func TestRecorderFlushesOnStop(t *testing.T) {
	sink := &captureSink{}
	rec := NewRecorder(zerolog.New(io.Discard), sink, RecorderConfig{
		BufferSize: 16, BatchSize: 4, FlushInterval: time.Hour,
	})
	rec.Start(context.Background())

	tenant := "T"
	for i := 0; i < 6; i++ {
		rec.Record(Event{TenantID: &tenant, AccountID: "acc", Type: "member_invited", CreatedAt: time.Now().UTC()})
	}
	rec.Stop()

	require.Equal(t, 6, sink.count())
	assert.NotEmpty(t, sink.entries[0].ID, "entries get generated ids")
	assert.Equal(t, "member_invited", sink.entries[0].EventType)
}

func TestRecorderDropsWhenFull(t *testing.T) {
	sink := &captureSink{}
	rec := NewRecorder(zerolog.New(io.Discard), sink, RecorderConfig{
		BufferSize: 2, BatchSize: 2, FlushInterval: time.Hour,
	})
	// Not started: the channel fills and extra events drop silently —
	// audit is best-effort by contract.
	for i := 0; i < 10; i++ {
		rec.Record(Event{AccountID: "acc", Type: "x", CreatedAt: time.Now().UTC()})
	}
	rec.Start(context.Background())
	rec.Stop()
	assert.Equal(t, 2, sink.count())
}

func TestRecorderSinkFailureIsSwallowed(t *testing.T) {
	sink := &captureSink{fail: true}
	rec := NewRecorder(zerolog.New(io.Discard), sink, RecorderConfig{
		BufferSize: 16, BatchSize: 4, FlushInterval: time.Millisecond,
	})
	rec.Start(context.Background())
	rec.Record(Event{AccountID: "acc", Type: "x", CreatedAt: time.Now().UTC()})
	// A failing sink never propagates anywhere; Stop still returns.
	rec.Stop()
	assert.Equal(t, 0, sink.count())
}
