package rag

import (
	"context"
)

// EventType tags a streaming event.
type EventType string

const (
	EventRoute    EventType = "route"
	EventChunk    EventType = "chunk"
	EventMetadata EventType = "metadata"
	EventDone     EventType = "done"
	EventError    EventType = "error"
)

// Event is one tagged event of the streaming turn protocol. A stream emits
// zero or more route/chunk/metadata events followed by exactly one of
// done/error.
type Event struct {
	Type EventType `json:"type"`

	// Route decision, set on route events.
	Decision string `json:"decision,omitempty"`
	// Incremental answer text, set on chunk events.
	Delta string `json:"delta,omitempty"`
	// Side-channel fields, set on metadata events.
	Meta map[string]any `json:"meta,omitempty"`
	// Terminal payload, set on done events.
	Payload *TurnResponse `json:"payload,omitempty"`
	// Failure description, set on error events.
	Message string `json:"message,omitempty"`
}

// Stream of turn events.
type Stream interface {
	// Recv returns the next event, or io.EOF once the transport is drained.
	Recv() (*Event, error)
	Close()
}

// Client issues turns against the RAG backend.
type Client interface {
	// StreamTurn issues a turn over the streaming transport.
	StreamTurn(ctx context.Context, request *TurnRequest) (Stream, error)
	// RunTurn issues a turn as a single blocking call. It is the fallback
	// used when the stream ends without a terminal event.
	RunTurn(ctx context.Context, request *TurnRequest) (*TurnResponse, error)
}
