package rag

import (
	"bytes"
	"encoding/json"
	"time"
)

// TurnRequest is the payload sent to the backend for one question/answer turn.
// The same payload is used for the streaming call and the blocking fallback.
type TurnRequest struct {
	Question           string         `json:"question"`
	SessionID          string         `json:"session_id"`
	TurnID             string         `json:"turn_id"`
	UserMessageID      string         `json:"user_message_id"`
	AssistantMessageID string         `json:"assistant_message_id"`
	RetryOfMessageID   string         `json:"retry_of_message_id,omitempty"`
	IdempotencyKey     string         `json:"idempotency_key"`
	RunSelfCheck       bool           `json:"run_self_check"`
	FilingID           string         `json:"filing_id,omitempty"`
	Meta               map[string]any `json:"meta,omitempty"`
}

// TurnResponse is the terminal payload of a turn. It is carried by the
// streaming `done` event and returned verbatim by the blocking fallback.
type TurnResponse struct {
	Answer      string                `json:"answer"`
	Citations   map[string][]Citation `json:"citations,omitempty"`
	Warnings    []string              `json:"warnings,omitempty"`
	Evidence    []EvidenceEntry       `json:"evidence,omitempty"`
	Context     []ContextEntry        `json:"context,omitempty"`
	Highlights  []HighlightRecord     `json:"highlights,omitempty"`
	Meta        *ResponseMeta         `json:"meta,omitempty"`
	ModelUsed   string                `json:"model_used,omitempty"`
	Model       string                `json:"model,omitempty"`
	RAGMode     string                `json:"rag_mode,omitempty"`
	DocumentURL string                `json:"document_url,omitempty"`
	TraceID     string                `json:"trace_id,omitempty"`
	Error       string                `json:"error,omitempty"`
}

// ResponseMeta holds the side-channel fields of a turn response.
type ResponseMeta struct {
	Guardrail *Guardrail `json:"guardrail,omitempty"`
	Retrieval *Retrieval `json:"retrieval,omitempty"`
	RAGMode   string     `json:"rag_mode,omitempty"`
	Model     string     `json:"model,omitempty"`
	TraceID   string     `json:"trace_id,omitempty"`
}

// Guardrail carries the judge's verdict on a generated answer.
type Guardrail struct {
	Decision string `json:"decision,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Retrieval describes the retrieval strategy the backend applied.
type Retrieval struct {
	Mode string `json:"mode,omitempty"`
}

// Citation is a single citation entry. The backend emits either a bare
// string or a structured record; both forms are accepted.
type Citation struct {
	Text   string
	Fields map[string]any
}

// UnmarshalJSON accepts a JSON string or a JSON object.
func (c *Citation) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		return json.Unmarshal(trimmed, &c.Text)
	}
	return json.Unmarshal(trimmed, &c.Fields)
}

// MarshalJSON emits the form the citation was parsed from.
func (c Citation) MarshalJSON() ([]byte, error) {
	if c.Fields != nil {
		return json.Marshal(c.Fields)
	}
	return json.Marshal(c.Text)
}

// EvidenceEntry is a raw retrieval result in the modern `evidence` format.
type EvidenceEntry struct {
	ID        string         `json:"id,omitempty"`
	SourceID  string         `json:"source_id,omitempty"`
	Title     string         `json:"title,omitempty"`
	Content   string         `json:"content,omitempty"`
	URL       string         `json:"url,omitempty"`
	SourceURL string         `json:"source_url,omitempty"`
	Page      int            `json:"page,omitempty"`
	Score     float64        `json:"score,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Diff      *Diff          `json:"diff,omitempty"`
	SelfCheck *SelfCheck     `json:"self_check,omitempty"`
}

// ContextEntry is a raw retrieval result in the legacy `context` format.
type ContextEntry struct {
	ChunkID string  `json:"chunk_id,omitempty"`
	DocID   string  `json:"doc_id,omitempty"`
	Source  string  `json:"source,omitempty"`
	Title   string  `json:"title,omitempty"`
	Text    string  `json:"text,omitempty"`
	Content string  `json:"content,omitempty"`
	URL     string  `json:"url,omitempty"`
	Page    int     `json:"page,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// Diff describes how a retrieved source changed since a prior filing.
type Diff struct {
	PreviousRef   string   `json:"previous_ref,omitempty"`
	Delta         string   `json:"delta,omitempty"`
	ChangedFields []string `json:"changed_fields,omitempty"`
}

// SelfCheck is the backend's self-verification verdict for one source.
type SelfCheck struct {
	Verdict           string  `json:"verdict,omitempty"`
	Rationale         string  `json:"rationale,omitempty"`
	HallucinationRisk float64 `json:"hallucination_risk,omitempty"`
}

// HighlightRecord is the backend's page-highlight geometry for one chunk.
// Either the explicit percentage fields or the bounding box + page
// dimensions are populated, never reliably both.
type HighlightRecord struct {
	ID         string    `json:"id,omitempty"`
	ChunkID    string    `json:"chunk_id,omitempty"`
	ItemID     string    `json:"item_id,omitempty"`
	Page       int       `json:"page,omitempty"`
	XStartPct  *float64  `json:"xStartPct,omitempty"`
	XEndPct    *float64  `json:"xEndPct,omitempty"`
	YStartPct  *float64  `json:"yStartPct,omitempty"`
	YEndPct    *float64  `json:"yEndPct,omitempty"`
	BBox       []float64 `json:"bbox,omitempty"`
	PageWidth  float64   `json:"pageWidth,omitempty"`
	PageHeight float64   `json:"pageHeight,omitempty"`
}

// QuotaDetail is the structured detail attached to a quota-exhaustion error.
type QuotaDetail struct {
	Limit     int       `json:"limit,omitempty"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at,omitempty"`
	Plan      string    `json:"plan,omitempty"`
}
