package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/finlens/copilot/session"
)

// UpdateSession updates the columns named by the update mask.
func (s *Store) UpdateSession(ctx context.Context, sess *session.Session, updateMask []string) error {
	if sess == nil {
		return fmt.Errorf("session cannot be nil")
	}

	// Helper to check if a field should be updated
	shouldUpdate := func(field string) bool {
		for _, f := range updateMask {
			if f == field {
				return true
			}
		}
		return false
	}

	var setClauses []string
	var args []interface{}

	if shouldUpdate("title") {
		setClauses = append(setClauses, "title = ?")
		args = append(args, sess.Title)
	}

	if shouldUpdate("context") {
		contextJSON, err := json.Marshal(sess.Context)
		if err != nil {
			return fmt.Errorf("marshaling context: %w", err)
		}
		setClauses = append(setClauses, "context = ?")
		args = append(args, string(contextJSON))
	}

	if shouldUpdate("messages") {
		messagesJSON, err := json.Marshal(sess.Messages)
		if err != nil {
			return fmt.Errorf("marshaling messages: %w", err)
		}
		setClauses = append(setClauses, "messages = ?")
		args = append(args, string(messagesJSON))
	}

	if shouldUpdate("evidence") {
		evidenceJSON, err := json.Marshal(sess.Evidence)
		if err != nil {
			return fmt.Errorf("marshaling evidence: %w", err)
		}
		setClauses = append(setClauses, "evidence = ?")
		args = append(args, string(evidenceJSON))
	}

	if shouldUpdate("telemetry") {
		telemetryJSON, err := json.Marshal(sess.Telemetry)
		if err != nil {
			return fmt.Errorf("marshaling telemetry: %w", err)
		}
		setClauses = append(setClauses, "telemetry = ?")
		args = append(args, string(telemetryJSON))
	}

	// Always update the timestamp
	setClauses = append(setClauses, "update_timestamp = ?")
	args = append(args, sess.UpdateTimestamp)

	args = append(args, sess.ID)
	query := fmt.Sprintf("UPDATE sessions SET %s WHERE id = ?", strings.Join(setClauses, ", "))
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("session not found")
	}
	return nil
}
