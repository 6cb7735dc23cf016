package store

import (
	"context"
	"database/sql"
	"fmt"
)

// AppendAuditEvent inserts one audit row. username may be empty for anonymous
// events (failed login on an unknown user). The table is append-only; the
// schema forbids UPDATE and DELETE.
func (s *Store) AppendAuditEvent(
	ctx context.Context,
	username, action, resourceType, resourceID, ipAddress, userAgent string,
	details []byte,
) error {
	const q = `
		INSERT INTO audit_log
			(username, action, resource_type, resource_id, ip_address, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, CURRENT_TIMESTAMP)`

	var user sql.NullString
	if username != "" {
		user = sql.NullString{String: username, Valid: true}
	}
	if _, err := s.db.ExecContext(ctx, q, user, action, resourceType, resourceID, ipAddress, userAgent, details); err != nil {
		return fmt.Errorf("append audit event %s: %w", action, err)
	}
	return nil
}
