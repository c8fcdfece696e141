package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlens/copilot/evidence"
	"github.com/finlens/copilot/guardrail"
	"github.com/finlens/copilot/session"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedSession(id string) *session.Session {
	sess := session.NewSession(id, &session.Context{Type: session.ContextFiling, ReferenceID: "F-1"})
	sess.Title = "삼성전자 실적"
	sess.Messages = []*session.Message{
		session.NewMessage("u-1", session.RoleUser, "실적 어때?", session.MessageMeta{Status: session.StatusReady}),
		session.NewMessage("a-1", session.RoleAssistant, "영업이익이 증가했습니다.", session.MessageMeta{
			Status:  session.StatusReady,
			Model:   "finlens-pro",
			TurnID:  "turn-1",
			TraceID: "trace-1",
		}),
	}
	sess.Evidence = evidence.Ready([]evidence.Item{{ID: "ev-1", Title: "사업보고서", Snippet: "영업이익"}})
	sess.Telemetry = guardrail.Telemetry{Status: guardrail.StatusReady, Level: guardrail.LevelPass}
	return sess
}

func TestCreateAndListRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	sess := seedSession("s-1")
	require.NoError(t, store.CreateSession(ctx, sess))

	sessions, err := store.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	loaded := sessions[0]
	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, sess.Title, loaded.Title)
	require.NotNil(t, loaded.Context)
	assert.Equal(t, session.ContextFiling, loaded.Context.Type)
	assert.Equal(t, "F-1", loaded.Context.ReferenceID)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, "영업이익이 증가했습니다.", loaded.Messages[1].Content)
	assert.Equal(t, "finlens-pro", loaded.Messages[1].Meta.Model)
	assert.Equal(t, evidence.StatusReady, loaded.Evidence.Status)
	require.Len(t, loaded.Evidence.Items, 1)
	assert.Equal(t, guardrail.LevelPass, loaded.Telemetry.Level)
}

func TestCreateSessionRejectsNil(t *testing.T) {
	store := newTestStore(t)
	assert.Error(t, store.CreateSession(context.Background(), nil))
}

func TestListSessionsOrdersByUpdateTimestamp(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	old := session.NewSession("old", nil)
	old.UpdateTimestamp = 100
	recent := session.NewSession("recent", nil)
	recent.UpdateTimestamp = 200
	require.NoError(t, store.CreateSession(ctx, old))
	require.NoError(t, store.CreateSession(ctx, recent))

	sessions, err := store.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "recent", sessions[0].ID)
	assert.Equal(t, "old", sessions[1].ID)
}

func TestUpdateSessionHonorsUpdateMask(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	sess := seedSession("s-1")
	require.NoError(t, store.CreateSession(ctx, sess))

	sess.Title = "새 제목"
	sess.Messages = append(sess.Messages, session.NewMessage("a-2", session.RoleAssistant, "추가 답변", session.MessageMeta{
		Status: session.StatusReady,
	}))
	// Only the title is in the mask: the new message must not be written.
	require.NoError(t, store.UpdateSession(ctx, sess, []string{"title"}))

	sessions, err := store.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "새 제목", sessions[0].Title)
	assert.Len(t, sessions[0].Messages, 2)

	require.NoError(t, store.UpdateSession(ctx, sess, []string{"messages"}))
	sessions, err = store.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions[0].Messages, 3)
}

func TestUpdateSessionUnknownID(t *testing.T) {
	store := newTestStore(t)
	missing := session.NewSession("missing", nil)
	assert.Error(t, store.UpdateSession(context.Background(), missing, []string{"title"}))
}

func TestDeleteSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.CreateSession(ctx, seedSession("s-1")))
	require.NoError(t, store.DeleteSession(ctx, "s-1"))
	assert.Error(t, store.DeleteSession(ctx, "s-1"), "deleting twice reports not found")

	sessions, err := store.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestDeleteAllSessions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.CreateSession(ctx, seedSession("s-1")))
	require.NoError(t, store.CreateSession(ctx, seedSession("s-2")))
	require.NoError(t, store.DeleteAllSessions(ctx))

	sessions, err := store.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}
