package turn

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/finlens/copilot/notify"
	"github.com/finlens/copilot/session"
)

const retryRejectedToast = "This message cannot be retried. Please ask the question again."

// Retry re-issues a prior turn's question on the active session. The original
// turn id is reused when recorded, so the backend treats the request as a
// continuation; retry_of_message_id lets it apply idempotent-replace
// semantics. A message without a recorded question and user-message id is
// rejected without any network call.
func (r *Runner) Retry(ctx context.Context, messageID string) error {
	sess := r.sessions.ActiveSession()
	if sess == nil {
		return errors.New("no active session")
	}
	message, ok := r.sessions.Message(sess.ID, messageID)
	if !ok {
		return errors.Errorf("unknown message %q", messageID)
	}
	if message.Meta.Question == "" || message.Meta.UserMessageID == "" {
		r.notifier.Toast(notify.LevelWarn, retryRejectedToast)
		return errors.New("message carries no retryable question")
	}
	// The prior turn must have settled; same-message turns never overlap.
	if !message.Meta.Status.Terminal() {
		return errors.New("turn is still in progress")
	}

	turnID := message.Meta.TurnID
	if turnID == "" {
		turnID = uuid.New().String()
	}

	turn := turnContext{
		Question:           message.Meta.Question,
		SessionID:          sess.ID,
		TurnID:             turnID,
		UserMessageID:      message.Meta.UserMessageID,
		AssistantMessageID: messageID,
		RetryOfMessageID:   messageID,
	}
	if sess.Context != nil && sess.Context.Type == session.ContextFiling {
		turn.FilingID = sess.Context.ReferenceID
	}

	// Reset to pending with error fields cleared, then re-enter the runner
	// exactly as a fresh turn.
	content := pendingPlaceholder
	r.updateMessage(ctx, turn, session.MessagePatch{
		Content: &content,
		ReplaceMeta: &session.MessageMeta{
			Status:        session.StatusPending,
			Question:      turn.Question,
			UserMessageID: turn.UserMessageID,
			TurnID:        turn.TurnID,
		},
	})
	r.resetTurnState(ctx, turn)
	r.run(ctx, turn)
	return nil
}
