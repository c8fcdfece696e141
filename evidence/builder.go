// Package evidence converts raw retrieval results into the uniform evidence
// list shown alongside an answer.
package evidence

import (
	"fmt"
	"strings"

	"github.com/finlens/copilot/highlight"
	"github.com/finlens/copilot/rag"
)

// Item is one retrieved source backing an answer.
type Item struct {
	ID        string               `json:"id"`
	Title     string               `json:"title,omitempty"`
	Snippet   string               `json:"snippet"`
	SourceURL string               `json:"sourceUrl,omitempty"`
	Page      int                  `json:"page,omitempty"`
	Score     float64              `json:"score,omitempty"`
	Diff      *rag.Diff            `json:"diff,omitempty"`
	SelfCheck *rag.SelfCheck       `json:"selfCheck,omitempty"`
	Highlight *highlight.Highlight `json:"highlight,omitempty"`
}

// Status of a session's evidence panel.
type Status string

const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// State is the evidence state of one session, replaced on every turn.
type State struct {
	Status  Status `json:"status"`
	Items   []Item `json:"items,omitempty"`
	Message string `json:"message,omitempty"`
}

// Loading state while a turn is in flight.
func Loading() State { return State{Status: StatusLoading} }

// Ready state carrying the built items. Zero items is still ready.
func Ready(items []Item) State { return State{Status: StatusReady, Items: items} }

// Errored state carrying a failure description.
func Errored(message string) State { return State{Status: StatusError, Message: message} }

// Build converts a turn response into evidence items. The modern evidence
// array wins when present and non-empty; otherwise the legacy context array
// is used. Entries with blank content never survive.
func Build(response *rag.TurnResponse) []Item {
	if response == nil {
		return []Item{}
	}
	highlights := highlight.NormalizeAll(response.Highlights)

	items := buildModern(response, highlights)
	if len(items) > 0 {
		return items
	}
	return buildLegacy(response, highlights)
}

func buildModern(response *rag.TurnResponse, highlights map[string]highlight.Highlight) []Item {
	items := []Item{}
	for i, entry := range response.Evidence {
		snippet := strings.TrimSpace(entry.Content)
		if snippet == "" {
			continue
		}
		key := resolveKey(
			metadataString(entry.Metadata, "chunk_id"),
			metadataString(entry.Metadata, "chunkId"),
			entry.SourceID,
			entry.ID,
			fmt.Sprintf("evidence-%d", i),
		)
		item := Item{
			ID:        key,
			Title:     firstNonEmpty(entry.Title, key),
			Snippet:   snippet,
			SourceURL: firstNonEmpty(entry.URL, entry.SourceURL, response.DocumentURL),
			Page:      entry.Page,
			Score:     entry.Score,
			Diff:      entry.Diff,
			SelfCheck: entry.SelfCheck,
		}
		if h, ok := highlights[key]; ok {
			item.Highlight = &h
		}
		items = append(items, item)
	}
	return items
}

func buildLegacy(response *rag.TurnResponse, highlights map[string]highlight.Highlight) []Item {
	items := []Item{}
	for i, entry := range response.Context {
		snippet := strings.TrimSpace(firstNonEmpty(entry.Text, entry.Content))
		if snippet == "" {
			continue
		}
		key := resolveKey(entry.ChunkID, entry.DocID, fmt.Sprintf("context-%d", i))
		item := Item{
			ID:        key,
			Title:     firstNonEmpty(entry.Title, entry.Source, key),
			Snippet:   snippet,
			SourceURL: firstNonEmpty(entry.URL, response.DocumentURL),
			Page:      entry.Page,
			Score:     entry.Score,
		}
		if h, ok := highlights[key]; ok {
			item.Highlight = &h
		}
		items = append(items, item)
	}
	return items
}

// resolveKey tries each candidate in order, making the precedence explicit.
func resolveKey(candidates ...string) string {
	for _, candidate := range candidates {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

func metadataString(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	if value, ok := metadata[key].(string); ok {
		return value
	}
	return ""
}

func firstNonEmpty(candidates ...string) string {
	for _, candidate := range candidates {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}
