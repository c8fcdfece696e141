// Package turn drives one question→answer exchange against the RAG backend:
// optimistic messages, streaming consumption, blocking fallback and
// finalization, with quota exhaustion handled as a distinct outcome.
package turn

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/finlens/copilot/evidence"
	"github.com/finlens/copilot/guardrail"
	"github.com/finlens/copilot/notify"
	"github.com/finlens/copilot/quota"
	"github.com/finlens/copilot/rag"
	"github.com/finlens/copilot/session"
)

const (
	// pendingPlaceholder is the assistant content shown before any chunk.
	pendingPlaceholder = "…"
	// emptyAnswerPlaceholder substitutes a blank terminal answer; an empty
	// answer is a success, never an error.
	emptyAnswerPlaceholder = "The backend returned no answer. Please try rephrasing your question."
	// genericFailureToast is raised on transport or backend failures. Quota
	// exhaustion never raises it.
	genericFailureToast = "Analysis failed. Please try again."

	maxTitleLength = 80
)

// ToolDispatcher receives routing decisions from the stream. Tool invocation
// itself is a separate subsystem.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, decision string)
}

// Runner executes turns. Two turns targeting different assistant messages
// may run concurrently; turns targeting the same message must not overlap,
// which Retry enforces by requiring a terminal prior state.
type Runner struct {
	sessions *session.Store
	backend  rag.Client
	guard    *quota.Guard
	notifier notify.Notifier

	tools   ToolDispatcher
	logger  *slog.Logger
	tracer  trace.Tracer
	onDelta func(delta string)
}

// Option configures a Runner.
type Option func(*Runner)

// WithToolDispatcher forwards route events to the given dispatcher.
func WithToolDispatcher(tools ToolDispatcher) Option {
	return func(r *Runner) { r.tools = tools }
}

// WithLogger sets the runner's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithTracer sets the tracer used to span each turn.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) { r.tracer = tracer }
}

// WithOnDelta registers a hook invoked for every streamed chunk, so a caller
// can render incremental text without polling the store.
func WithOnDelta(onDelta func(delta string)) Option {
	return func(r *Runner) { r.onDelta = onDelta }
}

// NewRunner instantiates and returns a new runner.
func NewRunner(sessions *session.Store, backend rag.Client, guard *quota.Guard, notifier notify.Notifier, options ...Option) *Runner {
	runner := &Runner{
		sessions: sessions,
		backend:  backend,
		guard:    guard,
		notifier: notifier,
		logger:   slog.Default(),
		tracer:   noop.NewTracerProvider().Tracer("copilot"),
	}
	for _, option := range options {
		option(runner)
	}
	return runner
}

// turnContext identifies one turn. All state writes are scoped to these ids,
// so a late-arriving update cannot corrupt another session.
type turnContext struct {
	Question           string
	SessionID          string
	FilingID           string
	TurnID             string
	UserMessageID      string
	AssistantMessageID string
	RetryOfMessageID   string
}

// Ask runs one question→answer turn on the active session, creating a
// session on first use. It returns the assistant message id. Transport and
// backend failures are converted into message/evidence/telemetry state plus
// a toast; they are never returned.
func (r *Runner) Ask(ctx context.Context, question string, sessionContext *session.Context) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.New("question cannot be empty")
	}

	sess, err := r.sessions.EnsureActiveSession(ctx, sessionContext)
	if err != nil {
		return "", errors.Wrap(err, "ensuring active session")
	}
	if sess.Title == "" {
		if err := r.sessions.RenameSession(ctx, sess.ID, truncate(question, maxTitleLength)); err != nil {
			return "", errors.Wrap(err, "titling session")
		}
	}

	turn := turnContext{
		Question:           question,
		SessionID:          sess.ID,
		TurnID:             uuid.New().String(),
		UserMessageID:      uuid.New().String(),
		AssistantMessageID: uuid.New().String(),
	}
	if sess.Context != nil && sess.Context.Type == session.ContextFiling {
		turn.FilingID = sess.Context.ReferenceID
	}

	userMessage := session.NewMessage(turn.UserMessageID, session.RoleUser, question, session.MessageMeta{
		Status: session.StatusReady,
	})
	if err := r.sessions.AddMessage(ctx, sess.ID, userMessage); err != nil {
		return "", errors.Wrap(err, "adding user message")
	}

	assistantMessage := session.NewMessage(turn.AssistantMessageID, session.RoleAssistant, pendingPlaceholder, session.MessageMeta{
		Status:        session.StatusPending,
		Question:      question,
		UserMessageID: turn.UserMessageID,
		TurnID:        turn.TurnID,
	})
	if err := r.sessions.AddMessage(ctx, sess.ID, assistantMessage); err != nil {
		return "", errors.Wrap(err, "adding assistant message")
	}

	r.resetTurnState(ctx, turn)
	r.run(ctx, turn)
	return turn.AssistantMessageID, nil
}

// resetTurnState puts the session's evidence and telemetry into loading.
func (r *Runner) resetTurnState(ctx context.Context, turn turnContext) {
	if err := r.sessions.SetSessionEvidence(ctx, turn.SessionID, evidence.Loading()); err != nil {
		r.logger.Warn("resetting evidence", "session", turn.SessionID, "error", err)
	}
	if err := r.sessions.SetSessionTelemetry(ctx, turn.SessionID, guardrail.Loading()); err != nil {
		r.logger.Warn("resetting telemetry", "session", turn.SessionID, "error", err)
	}
}

// run drives the transport: stream first, blocking fallback second. Each
// request carries a fresh idempotency key while the turn id stays stable
// across retries, so the backend sees a continuation, not a new turn.
func (r *Runner) run(ctx context.Context, turn turnContext) {
	request := &rag.TurnRequest{
		Question:           turn.Question,
		SessionID:          turn.SessionID,
		TurnID:             turn.TurnID,
		UserMessageID:      turn.UserMessageID,
		AssistantMessageID: turn.AssistantMessageID,
		RetryOfMessageID:   turn.RetryOfMessageID,
		IdempotencyKey:     uuid.New().String(),
		RunSelfCheck:       true,
		FilingID:           turn.FilingID,
	}

	ctx, span := r.tracer.Start(ctx, "copilot.turn", trace.WithAttributes(
		attribute.String("turn.id", turn.TurnID),
		attribute.String("session.id", turn.SessionID),
	))
	defer span.End()

	if complete := r.consumeStream(ctx, turn, request); complete {
		return
	}

	// The stream ended without a terminal event or could not be
	// established: fall back to a single blocking call with the same
	// payload, idempotency key included.
	response, err := r.backend.RunTurn(ctx, request)
	if err != nil {
		if r.handleQuota(ctx, turn, err) {
			return
		}
		r.failTurn(ctx, turn, err)
		return
	}
	if strings.TrimSpace(response.Answer) == "" {
		response.Answer = emptyAnswerPlaceholder
	}
	r.finalize(ctx, turn, response)
}

// consumeStream reads events until a terminal event or transport failure.
// It reports whether the turn completed.
func (r *Runner) consumeStream(ctx context.Context, turn turnContext, request *rag.TurnRequest) bool {
	stream, err := r.backend.StreamTurn(ctx, request)
	if err != nil {
		if r.handleQuota(ctx, turn, err) {
			return true
		}
		r.logger.Warn("stream could not be established, falling back", "turn", turn.TurnID, "error", err)
		return false
	}
	defer stream.Close()

	var answer strings.Builder
	for {
		event, err := stream.Recv()
		if err != nil {
			if r.handleQuota(ctx, turn, err) {
				return true
			}
			// Transport closed early: not terminal, let the caller fall
			// back to the blocking call.
			r.logger.Warn("stream ended without terminal event", "turn", turn.TurnID, "error", err)
			return false
		}

		switch event.Type {
		case rag.EventRoute:
			if r.tools != nil {
				r.tools.Dispatch(ctx, event.Decision)
			}

		case rag.EventChunk:
			answer.WriteString(event.Delta)
			content := answer.String()
			r.updateMessage(ctx, turn, session.MessagePatch{
				Content: &content,
				Meta:    &session.MessageMeta{Status: session.StatusStreaming},
			})
			if r.onDelta != nil {
				r.onDelta(event.Delta)
			}

		case rag.EventMetadata:
			if patch := metaPatch(event.Meta); patch != nil {
				r.updateMessage(ctx, turn, session.MessagePatch{Meta: patch})
			}

		case rag.EventDone:
			payload := event.Payload
			if payload == nil {
				payload = &rag.TurnResponse{}
			}
			// An empty terminal answer substitutes the streamed buffer.
			if strings.TrimSpace(payload.Answer) == "" {
				payload.Answer = answer.String()
			}
			if strings.TrimSpace(payload.Answer) == "" {
				payload.Answer = emptyAnswerPlaceholder
			}
			r.finalize(ctx, turn, payload)
			return true

		case rag.EventError:
			r.failTurn(ctx, turn, errors.New(event.Message))
			return true

		default:
			r.logger.Warn("ignoring unknown stream event", "type", string(event.Type))
		}
	}
}

// failTurn ends a turn as a generic retryable error: message, evidence and
// telemetry all carry the failure, and exactly one toast is raised.
func (r *Runner) failTurn(ctx context.Context, turn turnContext, cause error) {
	message := cause.Error()
	r.logger.Warn("turn failed", "turn", turn.TurnID, "error", message)

	content := message
	r.updateMessage(ctx, turn, session.MessagePatch{
		Content: &content,
		ReplaceMeta: &session.MessageMeta{
			Status:        session.StatusError,
			Retryable:     true,
			ErrorMessage:  message,
			Question:      turn.Question,
			UserMessageID: turn.UserMessageID,
			TurnID:        turn.TurnID,
		},
	})
	r.setTurnState(ctx, turn, evidence.Errored(message), guardrail.Errored(message))
	r.notifier.Toast(notify.LevelError, genericFailureToast)
}

// handleQuota short-circuits the turn when the error is the recognized
// quota-exhaustion shape. The outcome is non-retryable and raises only the
// quota toast, never the generic failure one.
func (r *Runner) handleQuota(ctx context.Context, turn turnContext, cause error) bool {
	notice, ok := r.guard.Inspect(cause)
	if !ok {
		return false
	}
	r.logger.Info("chat quota exhausted", "turn", turn.TurnID, "plan", notice.Plan, "remaining", notice.Remaining)

	content := notice.Message
	r.updateMessage(ctx, turn, session.MessagePatch{
		Content: &content,
		ReplaceMeta: &session.MessageMeta{
			Status:        session.StatusError,
			Retryable:     false,
			ErrorMessage:  notice.Message,
			Question:      turn.Question,
			UserMessageID: turn.UserMessageID,
			TurnID:        turn.TurnID,
		},
	})
	r.setTurnState(ctx, turn, evidence.Errored(notice.Message), guardrail.Errored(notice.Message))
	r.notifier.Toast(notify.LevelError, notice.Message)
	return true
}

func (r *Runner) setTurnState(ctx context.Context, turn turnContext, evidenceState evidence.State, telemetry guardrail.Telemetry) {
	if err := r.sessions.SetSessionEvidence(ctx, turn.SessionID, evidenceState); err != nil {
		r.logger.Warn("setting evidence", "session", turn.SessionID, "error", err)
	}
	if err := r.sessions.SetSessionTelemetry(ctx, turn.SessionID, telemetry); err != nil {
		r.logger.Warn("setting telemetry", "session", turn.SessionID, "error", err)
	}
}

func (r *Runner) updateMessage(ctx context.Context, turn turnContext, patch session.MessagePatch) {
	if err := r.sessions.UpdateMessage(ctx, turn.SessionID, turn.AssistantMessageID, patch); err != nil {
		r.logger.Warn("updating message", "message", turn.AssistantMessageID, "error", err)
	}
}

// metaPatch converts a metadata event's side-channel fields into a meta
// patch. It never alters the message status.
func metaPatch(meta map[string]any) *session.MessageMeta {
	if len(meta) == 0 {
		return nil
	}
	patch := &session.MessageMeta{}
	populated := false
	if model, ok := meta["model"].(string); ok && model != "" {
		patch.Model = model
		populated = true
	}
	for _, key := range []string{"trace_id", "traceId"} {
		if traceID, ok := meta[key].(string); ok && traceID != "" {
			patch.TraceID = traceID
			populated = true
			break
		}
	}
	if !populated {
		return nil
	}
	return patch
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
