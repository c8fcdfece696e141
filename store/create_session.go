package store

import (
	"context"
	"fmt"

	"github.com/finlens/copilot/session"
)

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, sess *session.Session) error {
	if sess == nil {
		return fmt.Errorf("session cannot be nil")
	}

	contextJSON, messagesJSON, evidenceJSON, telemetryJSON, err := marshalSessionColumns(sess)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO sessions (
    id,
    title,
    creation_timestamp,
    update_timestamp,
    context,
    messages,
    evidence,
    telemetry
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID,
		sess.Title,
		sess.CreationTimestamp,
		sess.UpdateTimestamp,
		contextJSON,
		messagesJSON,
		evidenceJSON,
		telemetryJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting into sessions table: %w", err)
	}
	return nil
}
