package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"dario.cat/mergo"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/finlens/copilot/evidence"
	"github.com/finlens/copilot/guardrail"
	"github.com/finlens/copilot/notify"
)

// Persistence is the storage collaborator. Sessions are persisted whole,
// messages included.
type Persistence interface {
	CreateSession(ctx context.Context, session *Session) error
	ListSessions(ctx context.Context) ([]*Session, error)
	UpdateSession(ctx context.Context, session *Session, updateMask []string) error
	DeleteSession(ctx context.Context, sessionID string) error
	DeleteAllSessions(ctx context.Context) error
}

// Store is the session store service. All operations are safe for concurrent
// use. Persistence failures are never returned from mutating operations;
// they are recorded once and surfaced through TakePersistenceError, so a
// turn in progress is not broken by a storage hiccup.
type Store struct {
	mu          sync.Mutex
	persistence Persistence
	notifier    notify.Notifier
	logger      *slog.Logger

	hydrated   bool
	sessions   []*Session
	activeID   string
	persistErr error
}

// NewStore instantiates and returns a new store.
func NewStore(persistence Persistence, notifier notify.Notifier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		persistence: persistence,
		notifier:    notifier,
		logger:      logger,
	}
}

// Hydrate loads persisted sessions. It is idempotent: only the first call
// hits storage.
func (s *Store) Hydrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hydrated {
		return nil
	}
	sessions, err := s.persistence.ListSessions(ctx)
	if err != nil {
		return errors.Wrap(err, "listing sessions")
	}
	s.sessions = sessions
	s.hydrated = true
	return nil
}

// CreateSession creates, selects and persists a new session.
func (s *Store) CreateSession(ctx context.Context, sessionContext *Context) (*Session, error) {
	session := NewSession(uuid.New().String()[:8], sessionContext)

	s.mu.Lock()
	s.sessions = append([]*Session{session}, s.sessions...)
	s.activeID = session.ID
	s.mu.Unlock()

	s.persist(func() error { return s.persistence.CreateSession(ctx, session) })
	return session, nil
}

// EnsureActiveSession returns the active session, creating one on first use.
func (s *Store) EnsureActiveSession(ctx context.Context, sessionContext *Context) (*Session, error) {
	if session := s.ActiveSession(); session != nil {
		return session, nil
	}
	return s.CreateSession(ctx, sessionContext)
}

// Sessions returns the sessions in order.
func (s *Store) Sessions() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Session{}, s.sessions...)
}

// ActiveSession returns the selected session, or nil.
func (s *Store) ActiveSession() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(s.activeID)
}

// SetActiveSession selects a session; an empty id clears the selection.
func (s *Store) SetActiveSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sessionID != "" && s.find(sessionID) == nil {
		return errors.Errorf("unknown session %q", sessionID)
	}
	s.activeID = sessionID
	return nil
}

// RenameSession sets a session's title.
func (s *Store) RenameSession(ctx context.Context, sessionID, title string) error {
	session, err := s.mutateSession(sessionID, func(session *Session) {
		session.Title = title
	})
	if err != nil {
		return err
	}
	s.persist(func() error { return s.persistence.UpdateSession(ctx, session, []string{"title"}) })
	return nil
}

// RemoveSession deletes a session. Deleting the active session selects the
// next available session, or clears the selection.
func (s *Store) RemoveSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	index := -1
	for i, session := range s.sessions {
		if session.ID == sessionID {
			index = i
			break
		}
	}
	if index < 0 {
		s.mu.Unlock()
		return errors.Errorf("unknown session %q", sessionID)
	}
	s.sessions = append(s.sessions[:index], s.sessions[index+1:]...)
	if s.activeID == sessionID {
		s.activeID = ""
		if len(s.sessions) > 0 {
			next := index
			if next >= len(s.sessions) {
				next = len(s.sessions) - 1
			}
			s.activeID = s.sessions[next].ID
		}
	}
	s.mu.Unlock()

	s.persist(func() error { return s.persistence.DeleteSession(ctx, sessionID) })
	return nil
}

// ClearSessions deletes every session and clears the selection.
func (s *Store) ClearSessions(ctx context.Context) error {
	s.mu.Lock()
	s.sessions = nil
	s.activeID = ""
	s.mu.Unlock()

	s.persist(func() error { return s.persistence.DeleteAllSessions(ctx) })
	return nil
}

// AddMessage appends a message to a session.
func (s *Store) AddMessage(ctx context.Context, sessionID string, message *Message) error {
	session, err := s.mutateSession(sessionID, func(session *Session) {
		session.Messages = append(session.Messages, message)
	})
	if err != nil {
		return err
	}
	s.persist(func() error { return s.persistence.UpdateSession(ctx, session, []string{"messages"}) })
	return nil
}

// MessagePatch describes an update to a message. Meta is merged field by
// field; ReplaceMeta swaps the whole meta record, which finalization uses to
// avoid stale fields leaking across turns.
type MessagePatch struct {
	Content     *string
	Meta        *MessageMeta
	ReplaceMeta *MessageMeta
}

// UpdateMessage applies a patch to a message. A terminal status never
// regresses: once ready/blocked/error, only an explicit reset to pending
// (retry) changes the status again.
func (s *Store) UpdateMessage(ctx context.Context, sessionID, messageID string, patch MessagePatch) error {
	var mergeErr error
	session, err := s.mutateSession(sessionID, func(session *Session) {
		message := session.message(messageID)
		if message == nil {
			mergeErr = errors.Errorf("unknown message %q", messageID)
			return
		}
		if patch.Content != nil {
			message.Content = *patch.Content
		}
		if patch.ReplaceMeta != nil {
			meta := *patch.ReplaceMeta
			if !allowTransition(message.Meta.Status, meta.Status) {
				meta.Status = message.Meta.Status
			}
			message.Meta = meta
		} else if patch.Meta != nil {
			merged := message.Meta
			if err := mergo.Merge(&merged, *patch.Meta, mergo.WithOverride); err != nil {
				mergeErr = errors.Wrap(err, "merging meta")
				return
			}
			if !allowTransition(message.Meta.Status, merged.Status) {
				merged.Status = message.Meta.Status
			}
			message.Meta = merged
		}
	})
	if err != nil {
		return err
	}
	if mergeErr != nil {
		return mergeErr
	}
	s.persist(func() error { return s.persistence.UpdateSession(ctx, session, []string{"messages"}) })
	return nil
}

// Message returns a copy of a message.
func (s *Store) Message(sessionID, messageID string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session := s.find(sessionID)
	if session == nil {
		return Message{}, false
	}
	message := session.message(messageID)
	if message == nil {
		return Message{}, false
	}
	return *message, true
}

// SetSessionEvidence replaces a session's evidence state.
func (s *Store) SetSessionEvidence(ctx context.Context, sessionID string, state evidence.State) error {
	session, err := s.mutateSession(sessionID, func(session *Session) {
		session.Evidence = state
	})
	if err != nil {
		return err
	}
	s.persist(func() error { return s.persistence.UpdateSession(ctx, session, []string{"evidence"}) })
	return nil
}

// SetSessionTelemetry replaces a session's guardrail telemetry.
func (s *Store) SetSessionTelemetry(ctx context.Context, sessionID string, telemetry guardrail.Telemetry) error {
	session, err := s.mutateSession(sessionID, func(session *Session) {
		session.Telemetry = telemetry
	})
	if err != nil {
		return err
	}
	s.persist(func() error { return s.persistence.UpdateSession(ctx, session, []string{"telemetry"}) })
	return nil
}

// TakePersistenceError returns the latest persistence failure and clears it,
// so the caller surfaces it exactly once.
func (s *Store) TakePersistenceError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.persistErr
	s.persistErr = nil
	return err
}

// find must be called with the lock held.
func (s *Store) find(sessionID string) *Session {
	if sessionID == "" {
		return nil
	}
	for _, session := range s.sessions {
		if session.ID == sessionID {
			return session
		}
	}
	return nil
}

// mutateSession applies fn to a session under the lock and bumps its update
// timestamp.
func (s *Store) mutateSession(sessionID string, fn func(*Session)) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session := s.find(sessionID)
	if session == nil {
		return nil, errors.Errorf("unknown session %q", sessionID)
	}
	fn(session)
	session.UpdateTimestamp = time.Now().UnixMicro()
	return session, nil
}

// persist runs a storage write, converting failures into the store-level
// error signal instead of returning them.
func (s *Store) persist(write func() error) {
	if err := write(); err != nil {
		s.logger.Warn("session persistence failed", "error", err)
		s.mu.Lock()
		s.persistErr = err
		s.mu.Unlock()
		if s.notifier != nil {
			s.notifier.Toast(notify.LevelWarn, "Could not save the session. Recent changes may be lost.")
		}
	}
}

// allowTransition enforces monotonic message status.
func allowTransition(from, to MessageStatus) bool {
	if from == to {
		return true
	}
	if from.Terminal() {
		return to == StatusPending
	}
	return true
}
