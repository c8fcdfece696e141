// Package guardrail derives compliance telemetry from the heterogeneous
// warning and error codes returned by the backend.
package guardrail

import (
	"fmt"
	"strings"

	"github.com/scylladb/go-set/strset"
)

// Status of the telemetry record.
type Status string

const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// Level is the three-step severity of a ready telemetry record.
type Level string

const (
	LevelPass Level = "pass"
	LevelWarn Level = "warn"
	LevelFail Level = "fail"
)

// Telemetry is one session's guardrail state, replaced on every turn.
type Telemetry struct {
	Status  Status `json:"status"`
	Level   Level  `json:"level,omitempty"`
	Message string `json:"message,omitempty"`
}

// Loading telemetry while a turn is in flight.
func Loading() Telemetry { return Telemetry{Status: StatusLoading} }

// Errored telemetry for operational failures.
func Errored(message string) Telemetry { return Telemetry{Status: StatusError, Message: message} }

// ShouldToast reports whether the telemetry warrants a one-shot user toast.
func (t Telemetry) ShouldToast() bool {
	return t.Status == StatusReady && (t.Level == LevelWarn || t.Level == LevelFail)
}

// Backend code prefixes.
const (
	prefixIntentFilter       = "intent_filter"
	prefixMissingCitations   = "missing_citations"
	prefixGuardrailViolation = "guardrail_violation"
	prefixJudgeViolation     = "judge_violation"
	prefixJudgeBlock         = "judge_block"
	codeJudgeEvalFailed      = "judge_evaluation_failed"
)

const (
	genericComplianceMessage = "The answer was blocked by a compliance guardrail."
	judgeEvalFailedMessage   = "Answer review failed. Please try again."
)

// citationLabels translates citation-kind keys into user-facing labels.
var citationLabels = map[string]string{
	"page":     "page citations",
	"table":    "table citations",
	"footnote": "footnote citations",
	"chart":    "chart citations",
}

// Derive maps raw warning codes, the top-level error code and the judge's
// free-text reason into telemetry. It is a pure function; rules are applied
// in priority order.
func Derive(warnings []string, errorCode, judgeReason string) Telemetry {
	// Intent-filter codes are internal routing signals: they make the turn
	// clean when they are the error, and are otherwise ignored.
	if isIntentFilter(errorCode) {
		return Telemetry{Status: StatusReady, Level: LevelPass}
	}
	relevant := nonIntentWarnings(warnings)

	switch {
	case strings.HasPrefix(errorCode, prefixMissingCitations):
		return Telemetry{
			Status:  StatusReady,
			Level:   LevelWarn,
			Message: missingCitationsMessage(errorCode, relevant),
		}

	case strings.HasPrefix(errorCode, prefixGuardrailViolation) || strings.HasPrefix(errorCode, prefixJudgeViolation):
		message := genericComplianceMessage
		if judgeReason != "" {
			message = judgeReason
		}
		return Telemetry{Status: StatusReady, Level: LevelFail, Message: message}

	case strings.HasPrefix(errorCode, prefixJudgeBlock):
		message := judgeReason
		if message == "" {
			message = humanizeCode(codeSuffix(errorCode, prefixJudgeBlock))
		}
		return Telemetry{Status: StatusReady, Level: LevelFail, Message: message}

	case errorCode == codeJudgeEvalFailed:
		return Errored(judgeEvalFailedMessage)

	case errorCode != "":
		return Errored(humanizeCode(errorCode))

	case len(relevant) > 0:
		return Telemetry{
			Status:  StatusReady,
			Level:   LevelWarn,
			Message: strings.Join(translateAll(relevant), "; "),
		}
	}

	return Telemetry{Status: StatusReady, Level: LevelPass}
}

func isIntentFilter(code string) bool {
	return strings.HasPrefix(code, prefixIntentFilter)
}

// nonIntentWarnings drops intent-filter codes and duplicates, preserving
// first-seen order.
func nonIntentWarnings(warnings []string) []string {
	seen := strset.New()
	filtered := []string{}
	for _, warning := range warnings {
		if warning == "" || isIntentFilter(warning) || seen.Has(warning) {
			continue
		}
		seen.Add(warning)
		filtered = append(filtered, warning)
	}
	return filtered
}

// missingCitationsMessage lists the missing citation kinds encoded in the
// code suffix, plus any other warnings.
func missingCitationsMessage(errorCode string, warnings []string) string {
	labels := []string{}
	for _, kind := range strings.Split(codeSuffix(errorCode, prefixMissingCitations), ",") {
		kind = strings.TrimSpace(kind)
		if kind == "" {
			continue
		}
		if label, ok := citationLabels[kind]; ok {
			labels = append(labels, label)
		} else {
			labels = append(labels, kind)
		}
	}
	message := "Missing " + strings.Join(labels, ", ")
	if len(labels) == 0 {
		message = "Missing citations"
	}
	if extra := translateAll(warnings); len(extra) > 0 {
		message += "; " + strings.Join(extra, "; ")
	}
	return message
}

func translateAll(codes []string) []string {
	translated := make([]string, 0, len(codes))
	for _, code := range codes {
		translated = append(translated, humanizeCode(code))
	}
	return translated
}

// codeSuffix returns the part of a code after "prefix:", or "" when absent.
func codeSuffix(code, prefix string) string {
	rest := strings.TrimPrefix(code, prefix)
	return strings.TrimPrefix(rest, ":")
}

// humanizeCode turns a machine code into a best-effort readable message.
func humanizeCode(code string) string {
	text := strings.NewReplacer("_", " ", ".", " ", ":", ": ").Replace(code)
	if text == "" {
		return code
	}
	return fmt.Sprintf("%s%s", strings.ToUpper(text[:1]), text[1:])
}
