package store

import (
	"context"

	"github.com/juniorbasecompany/turna/domain"
)

// InsertAuditLogs appends a batch of audit rows. Runs in its own short
// transaction (or statement) so a failure here never surfaces into the
// business transaction being audited.
func (s *Store) InsertAuditLogs(ctx context.Context, entries []domain.AuditLog) error {
	for _, e := range entries {
		data, err := jsonArg(e.Data)
		if err != nil {
			return err
		}
		_, err = s.db.Exec(ctx,
			`INSERT INTO audit_log (id, tenant_id, account_id, member_id, event_type, data, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			e.ID, e.TenantID, e.AccountID, e.MemberID, e.EventType, data, e.CreatedAt)
		if err != nil {
			return mapPgError("insert audit log", err)
		}
	}
	return nil
}
