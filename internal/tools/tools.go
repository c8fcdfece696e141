// Package tools surfaces the backend's routing decisions while a turn
// streams, so the user sees what the copilot is doing before the first
// answer chunk arrives.
package tools

import (
	"context"
	"log/slog"

	"github.com/finlens/copilot/notify"
)

// routeLabels maps the backend's route decisions to user-facing status lines.
// Unknown decisions are logged but stay silent.
var routeLabels = map[string]string{
	"rag_search":     "Searching filings and disclosures…",
	"filing_lookup":  "Looking up the filing…",
	"fundamentals":   "Fetching fundamentals…",
	"market_data":    "Fetching market data…",
	"direct_answer":  "Answering directly…",
	"clarification":  "Preparing a clarifying question…",
	"table_analysis": "Analyzing tables…",
}

// Announcer turns route decisions into info toasts.
type Announcer struct {
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewAnnouncer instantiates and returns a new announcer.
func NewAnnouncer(notifier notify.Notifier, logger *slog.Logger) *Announcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Announcer{notifier: notifier, logger: logger}
}

// Dispatch implements the turn runner's tool dispatcher.
func (a *Announcer) Dispatch(_ context.Context, decision string) {
	label, ok := routeLabels[decision]
	if !ok {
		a.logger.Info("unrecognized route decision", "decision", decision)
		return
	}
	a.notifier.Toast(notify.LevelInfo, label)
}
