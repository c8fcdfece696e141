package store

import (
	"context"
	"fmt"

	"github.com/finlens/copilot/session"
)

// ListSessions returns every session, most recently updated first.
func (s *Store) ListSessions(ctx context.Context) ([]*session.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, creation_timestamp, update_timestamp, context, messages, evidence, telemetry
		FROM sessions
		ORDER BY update_timestamp DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	return scanSessions(rows)
}
