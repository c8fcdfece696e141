// Package quota detects backend-declared quota exhaustion and publishes the
// single process-wide quota notice.
package quota

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/finlens/copilot/rag"
)

// Notice describes an exhausted chat quota.
type Notice struct {
	Message   string    `json:"message"`
	Plan      string    `json:"plan"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt,omitempty"`
}

// Guard recognizes the quota-exceeded error shape and holds the single
// active notice. There is one guard per process, not per session.
type Guard struct {
	mu     sync.Mutex
	notice *Notice

	planTier   string
	dailyLimit int
}

// NewGuard instantiates and returns a new guard. The plan tier and daily
// limit serve as fallbacks when the error detail omits them.
func NewGuard(planTier string, dailyLimit int) *Guard {
	return &Guard{planTier: planTier, dailyLimit: dailyLimit}
}

// Inspect reports whether err is the recognized quota-exhaustion shape. On a
// match it builds, publishes and returns the notice.
func (g *Guard) Inspect(err error) (*Notice, bool) {
	var apiError *rag.APIError
	if !errors.As(err, &apiError) || apiError.Code != rag.CodeQuotaExceeded {
		return nil, false
	}

	notice := &Notice{
		Plan:  g.planTier,
		Limit: g.dailyLimit,
	}
	if apiError.Detail != nil && apiError.Detail.Quota != nil {
		detail := apiError.Detail.Quota
		notice.Remaining = detail.Remaining
		notice.ResetAt = detail.ResetAt
		if detail.Limit > 0 {
			notice.Limit = detail.Limit
		}
		if detail.Plan != "" {
			notice.Plan = detail.Plan
		}
	}
	notice.Message = noticeMessage(notice)

	g.mu.Lock()
	g.notice = notice
	g.mu.Unlock()
	return notice, true
}

// Active returns the current notice, or nil.
func (g *Guard) Active() *Notice {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.notice
}

// Dismiss clears the active notice. Also called on the next successful turn.
func (g *Guard) Dismiss() {
	g.mu.Lock()
	g.notice = nil
	g.mu.Unlock()
}

func noticeMessage(notice *Notice) string {
	message := fmt.Sprintf("Chat quota exhausted on the %s plan (%d per day, %d remaining).",
		notice.Plan, notice.Limit, notice.Remaining)
	if !notice.ResetAt.IsZero() {
		message += fmt.Sprintf(" Resets at %s.", notice.ResetAt.Format(time.RFC1123))
	}
	return message
}
