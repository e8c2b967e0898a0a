package audit

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/juniorbasecompany/turna/domain"
	"github.com/juniorbasecompany/turna/store"
)

// StoreSink writes audit batches into the audit_log table.
type StoreSink struct {
	store *store.Store
}

func NewStoreSink(s *store.Store) *StoreSink { return &StoreSink{store: s} }

func (s *StoreSink) Write(ctx context.Context, entries []domain.AuditLog) error {
	return s.store.InsertAuditLogs(ctx, entries)
}

func (s *StoreSink) Close() error { return nil }

// LogSink writes audit entries as structured logs (development/fallback).
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("sink", "log").Logger()}
}

func (s *LogSink) Write(_ context.Context, entries []domain.AuditLog) error {
	for _, e := range entries {
		s.logger.Debug().
			Str("event_type", e.EventType).
			Str("account_id", e.AccountID).
			Interface("data", e.Data).
			Msg("audit_event")
	}
	return nil
}

func (s *LogSink) Close() error { return nil }
