package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/finlens/copilot/session"
)

func marshalSessionColumns(sess *session.Session) (string, string, string, string, error) {
	contextJSON, err := json.Marshal(sess.Context)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshaling context: %w", err)
	}
	messagesJSON, err := json.Marshal(sess.Messages)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshaling messages: %w", err)
	}
	evidenceJSON, err := json.Marshal(sess.Evidence)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshaling evidence: %w", err)
	}
	telemetryJSON, err := json.Marshal(sess.Telemetry)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshaling telemetry: %w", err)
	}
	return string(contextJSON), string(messagesJSON), string(evidenceJSON), string(telemetryJSON), nil
}

func scanSession(row interface{ Scan(...interface{}) error }) (*session.Session, error) {
	sess := &session.Session{}
	var contextJSON, messagesJSON, evidenceJSON, telemetryJSON string

	if err := row.Scan(&sess.ID, &sess.Title, &sess.CreationTimestamp,
		&sess.UpdateTimestamp, &contextJSON, &messagesJSON, &evidenceJSON, &telemetryJSON); err != nil {
		return nil, fmt.Errorf("scanning session row: %w", err)
	}

	if err := json.Unmarshal([]byte(contextJSON), &sess.Context); err != nil {
		return nil, fmt.Errorf("unmarshaling context: %w", err)
	}
	if err := json.Unmarshal([]byte(messagesJSON), &sess.Messages); err != nil {
		return nil, fmt.Errorf("unmarshaling messages: %w", err)
	}
	if err := json.Unmarshal([]byte(evidenceJSON), &sess.Evidence); err != nil {
		return nil, fmt.Errorf("unmarshaling evidence: %w", err)
	}
	if err := json.Unmarshal([]byte(telemetryJSON), &sess.Telemetry); err != nil {
		return nil, fmt.Errorf("unmarshaling telemetry: %w", err)
	}

	return sess, nil
}

// scanSessions helps avoid duplicate session scanning code
func scanSessions(rows *sql.Rows) ([]*session.Session, error) {
	var sessions []*session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}
	return sessions, nil
}
