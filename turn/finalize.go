package turn

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/finlens/copilot/evidence"
	"github.com/finlens/copilot/guardrail"
	"github.com/finlens/copilot/notify"
	"github.com/finlens/copilot/rag"
	"github.com/finlens/copilot/session"
)

// Toasts raised when the backend declares it did not rely on retrieval.
const (
	ragOptionalToast = "Sources were searched but the answer does not rely on them."
	ragSkippedToast  = "The answer was generated without searching sources."
)

// finalize is shared by the streaming done event and a successful blocking
// call: it resolves blocked-vs-ready, replaces the message meta wholesale,
// rebuilds evidence and telemetry, and raises the advisory toasts.
func (r *Runner) finalize(ctx context.Context, turn turnContext, payload *rag.TurnResponse) {
	// The quota notice clears on the next successful turn.
	r.guard.Dismiss()

	judge := judgeOf(payload)
	blocked := isBlocked(judge.Decision, payload.Error)

	status := session.StatusReady
	content := payload.Answer
	if blocked {
		status = session.StatusBlocked
		if judge.Reason != "" {
			content = judge.Reason
		} else {
			content = "This answer was blocked by a compliance guardrail."
		}
	}

	// Full meta replacement: no field from a previous turn may leak.
	meta := &session.MessageMeta{
		Status:        status,
		Question:      turn.Question,
		UserMessageID: turn.UserMessageID,
		TurnID:        turn.TurnID,
		Model:         resolveModel(payload),
		Warnings:      payload.Warnings,
		Citations:     sanitizeCitations(payload.Citations),
		JudgeDecision: judge.Decision,
		JudgeReason:   judge.Reason,
		TraceID:       resolveTraceID(payload),
	}
	r.updateMessage(ctx, turn, session.MessagePatch{Content: &content, ReplaceMeta: meta})

	if meta.TraceID != "" {
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("backend.trace_id", meta.TraceID))
	}

	// Evidence goes ready even with zero items.
	items := evidence.Build(payload)
	telemetry := guardrail.Derive(payload.Warnings, payload.Error, judge.Reason)
	r.setTurnState(ctx, turn, evidence.Ready(items), telemetry)

	if telemetry.ShouldToast() {
		level := notify.LevelWarn
		if telemetry.Level == guardrail.LevelFail {
			level = notify.LevelError
		}
		r.notifier.Toast(level, telemetry.Message)
	}

	switch detectRAGMode(payload) {
	case ragModeOptional:
		r.notifier.Toast(notify.LevelInfo, ragOptionalToast)
	case ragModeNone:
		r.notifier.Toast(notify.LevelInfo, ragSkippedToast)
	}
}

// judgeOf returns the judge verdict, nil-safe.
func judgeOf(payload *rag.TurnResponse) rag.Guardrail {
	if payload.Meta == nil || payload.Meta.Guardrail == nil {
		return rag.Guardrail{}
	}
	return *payload.Meta.Guardrail
}

// isBlocked reports whether the turn ends blocked rather than ready.
func isBlocked(judgeDecision, errorCode string) bool {
	if strings.Contains(strings.ToLower(judgeDecision), "block") {
		return true
	}
	for _, prefix := range []string{"guardrail_violation", "judge_violation", "judge_block"} {
		if strings.HasPrefix(errorCode, prefix) {
			return true
		}
	}
	return false
}

// sanitizeCitations drops citation kinds whose value is not a non-empty list.
func sanitizeCitations(citations map[string][]rag.Citation) map[string][]rag.Citation {
	if len(citations) == 0 {
		return nil
	}
	sanitized := make(map[string][]rag.Citation, len(citations))
	for kind, entries := range citations {
		if len(entries) == 0 {
			continue
		}
		sanitized[kind] = entries
	}
	if len(sanitized) == 0 {
		return nil
	}
	return sanitized
}

func resolveModel(payload *rag.TurnResponse) string {
	if payload.ModelUsed != "" {
		return payload.ModelUsed
	}
	if payload.Model != "" {
		return payload.Model
	}
	if payload.Meta != nil {
		return payload.Meta.Model
	}
	return ""
}

func resolveTraceID(payload *rag.TurnResponse) string {
	if payload.TraceID != "" {
		return payload.TraceID
	}
	if payload.Meta != nil {
		return payload.Meta.TraceID
	}
	return ""
}
