package session

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlens/copilot/evidence"
	"github.com/finlens/copilot/guardrail"
	"github.com/finlens/copilot/notify"
)

// fakePersistence records calls and can be told to fail.
type fakePersistence struct {
	seeded    []*Session
	listCalls int
	creates   int
	updates   []string
	deletes   []string
	cleared   bool
	failWith  error
}

func (f *fakePersistence) CreateSession(_ context.Context, _ *Session) error {
	f.creates++
	return f.failWith
}

func (f *fakePersistence) ListSessions(_ context.Context) ([]*Session, error) {
	f.listCalls++
	return f.seeded, nil
}

func (f *fakePersistence) UpdateSession(_ context.Context, _ *Session, updateMask []string) error {
	f.updates = append(f.updates, updateMask...)
	return f.failWith
}

func (f *fakePersistence) DeleteSession(_ context.Context, sessionID string) error {
	f.deletes = append(f.deletes, sessionID)
	return f.failWith
}

func (f *fakePersistence) DeleteAllSessions(_ context.Context) error {
	f.cleared = true
	return f.failWith
}

func newTestStore(persistence Persistence) (*Store, *notify.Recorder) {
	recorder := &notify.Recorder{}
	return NewStore(persistence, recorder, nil), recorder
}

func TestHydrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	persistence := &fakePersistence{seeded: []*Session{NewSession("s1", nil)}}
	store, _ := newTestStore(persistence)

	require.NoError(t, store.Hydrate(ctx))
	require.NoError(t, store.Hydrate(ctx))
	assert.Equal(t, 1, persistence.listCalls)
	assert.Len(t, store.Sessions(), 1)
}

func TestCreateSessionSelectsIt(t *testing.T) {
	ctx := context.Background()
	persistence := &fakePersistence{}
	store, _ := newTestStore(persistence)

	sess, err := store.CreateSession(ctx, &Context{Type: ContextFiling, ReferenceID: "F-123"})
	require.NoError(t, err)
	assert.Equal(t, sess.ID, store.ActiveSession().ID)
	assert.Equal(t, 1, persistence.creates)
}

func TestEnsureActiveSessionCreatesOnce(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(&fakePersistence{})

	first, err := store.EnsureActiveSession(ctx, nil)
	require.NoError(t, err)
	second, err := store.EnsureActiveSession(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, store.Sessions(), 1)
}

func TestRemoveSessionSelectsNext(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(&fakePersistence{})

	first, _ := store.CreateSession(ctx, nil)
	second, _ := store.CreateSession(ctx, nil)
	third, _ := store.CreateSession(ctx, nil)
	// Sessions are prepended: order is third, second, first.
	require.NoError(t, store.SetActiveSession(second.ID))

	require.NoError(t, store.RemoveSession(ctx, second.ID))
	active := store.ActiveSession()
	require.NotNil(t, active)
	assert.Equal(t, first.ID, active.ID)

	require.NoError(t, store.RemoveSession(ctx, first.ID))
	require.NoError(t, store.RemoveSession(ctx, third.ID))
	assert.Nil(t, store.ActiveSession())
}

func TestClearSessions(t *testing.T) {
	ctx := context.Background()
	persistence := &fakePersistence{}
	store, _ := newTestStore(persistence)

	store.CreateSession(ctx, nil)
	store.CreateSession(ctx, nil)
	require.NoError(t, store.ClearSessions(ctx))
	assert.Empty(t, store.Sessions())
	assert.Nil(t, store.ActiveSession())
	assert.True(t, persistence.cleared)
}

func TestUpdateMessageMergesMeta(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(&fakePersistence{})
	sess, _ := store.CreateSession(ctx, nil)

	message := NewMessage("m1", RoleAssistant, "…", MessageMeta{
		Status:        StatusPending,
		Question:      "original question",
		UserMessageID: "u1",
	})
	require.NoError(t, store.AddMessage(ctx, sess.ID, message))

	content := "partial answer"
	require.NoError(t, store.UpdateMessage(ctx, sess.ID, "m1", MessagePatch{
		Content: &content,
		Meta:    &MessageMeta{Status: StatusStreaming},
	}))

	updated, ok := store.Message(sess.ID, "m1")
	require.True(t, ok)
	assert.Equal(t, "partial answer", updated.Content)
	assert.Equal(t, StatusStreaming, updated.Meta.Status)
	// Unspecified keys survive a merge.
	assert.Equal(t, "original question", updated.Meta.Question)
	assert.Equal(t, "u1", updated.Meta.UserMessageID)
}

func TestUpdateMessageReplaceMetaDropsStaleFields(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(&fakePersistence{})
	sess, _ := store.CreateSession(ctx, nil)

	message := NewMessage("m1", RoleAssistant, "…", MessageMeta{
		Status:       StatusStreaming,
		ErrorMessage: "stale error from a prior turn",
	})
	require.NoError(t, store.AddMessage(ctx, sess.ID, message))

	require.NoError(t, store.UpdateMessage(ctx, sess.ID, "m1", MessagePatch{
		ReplaceMeta: &MessageMeta{Status: StatusReady, Model: "finlens-mini"},
	}))

	updated, _ := store.Message(sess.ID, "m1")
	assert.Equal(t, StatusReady, updated.Meta.Status)
	assert.Equal(t, "finlens-mini", updated.Meta.Model)
	assert.Empty(t, updated.Meta.ErrorMessage)
}

func TestTerminalStatusNeverRegressesToStreaming(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(&fakePersistence{})
	sess, _ := store.CreateSession(ctx, nil)

	for _, terminal := range []MessageStatus{StatusReady, StatusBlocked, StatusError} {
		message := NewMessage("m-"+string(terminal), RoleAssistant, "done", MessageMeta{Status: terminal})
		require.NoError(t, store.AddMessage(ctx, sess.ID, message))

		// A late-arriving streaming patch must not reopen the message.
		require.NoError(t, store.UpdateMessage(ctx, sess.ID, message.ID, MessagePatch{
			Meta: &MessageMeta{Status: StatusStreaming},
		}))
		updated, _ := store.Message(sess.ID, message.ID)
		assert.Equal(t, terminal, updated.Meta.Status)

		// An explicit reset to pending (retry) is allowed.
		require.NoError(t, store.UpdateMessage(ctx, sess.ID, message.ID, MessagePatch{
			ReplaceMeta: &MessageMeta{Status: StatusPending},
		}))
		updated, _ = store.Message(sess.ID, message.ID)
		assert.Equal(t, StatusPending, updated.Meta.Status)
	}
}

func TestSetSessionEvidenceAndTelemetry(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(&fakePersistence{})
	sess, _ := store.CreateSession(ctx, nil)

	require.NoError(t, store.SetSessionEvidence(ctx, sess.ID, evidence.Loading()))
	require.NoError(t, store.SetSessionTelemetry(ctx, sess.ID, guardrail.Loading()))
	active := store.ActiveSession()
	assert.Equal(t, evidence.StatusLoading, active.Evidence.Status)
	assert.Equal(t, guardrail.StatusLoading, active.Telemetry.Status)
}

func TestPersistenceFailureIsSignaledNotReturned(t *testing.T) {
	ctx := context.Background()
	persistence := &fakePersistence{failWith: errors.New("disk full")}
	store, recorder := newTestStore(persistence)

	_, err := store.CreateSession(ctx, nil)
	assert.NoError(t, err)

	signaled := store.TakePersistenceError()
	require.Error(t, signaled)
	assert.Contains(t, signaled.Error(), "disk full")
	// The signal is one-shot.
	assert.NoError(t, store.TakePersistenceError())
	// The user saw a toast.
	require.NotEmpty(t, recorder.Toasts())
	assert.Equal(t, notify.LevelWarn, recorder.Toasts()[0].Level)
}

func TestUnknownSessionAndMessage(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(&fakePersistence{})

	assert.Error(t, store.SetActiveSession("nope"))
	assert.Error(t, store.RenameSession(ctx, "nope", "title"))
	assert.Error(t, store.RemoveSession(ctx, "nope"))

	sess, _ := store.CreateSession(ctx, nil)
	assert.Error(t, store.UpdateMessage(ctx, sess.ID, "missing", MessagePatch{}))
	_, ok := store.Message(sess.ID, "missing")
	assert.False(t, ok)
}
