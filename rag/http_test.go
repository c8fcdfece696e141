package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamTurnParsesEventsInOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/turns:stream", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		request := &TurnRequest{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(request))
		assert.Equal(t, "실적 요약해줘", request.Question)
		assert.NotEmpty(t, request.IdempotencyKey)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keep-alive comment\n\n")
		fmt.Fprint(w, `data: {"type":"route","decision":"rag_search"}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"chunk","delta":"매출이 "}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"chunk","delta":"늘었습니다"}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"metadata","meta":{"model":"finlens-pro"}}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"done","payload":{"answer":"매출이 늘었습니다","rag_mode":"required"}}`+"\n\n")
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "test-key", time.Second)
	stream, err := client.StreamTurn(context.Background(), &TurnRequest{
		Question:       "실적 요약해줘",
		IdempotencyKey: "idem-1",
	})
	require.NoError(t, err)
	defer stream.Close()

	var types []EventType
	var deltas string
	for {
		event, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		types = append(types, event.Type)
		deltas += event.Delta
		if event.Type == EventDone {
			require.NotNil(t, event.Payload)
			assert.Equal(t, "매출이 늘었습니다", event.Payload.Answer)
			assert.Equal(t, "required", event.Payload.RAGMode)
		}
	}
	assert.Equal(t, []EventType{EventRoute, EventChunk, EventChunk, EventMetadata, EventDone}, types)
	assert.Equal(t, "매출이 늘었습니다", deltas)
}

func TestStreamTurnDecodesQuotaError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"code":"plan.chat_quota_exceeded","message":"daily quota exceeded","detail":{"quota":{"limit":50,"remaining":0,"plan":"starter"}}}}`)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "", time.Second)
	_, err := client.StreamTurn(context.Background(), &TurnRequest{Question: "q"})
	require.Error(t, err)

	var apiError *APIError
	require.True(t, errors.As(err, &apiError))
	assert.Equal(t, CodeQuotaExceeded, apiError.Code)
	require.NotNil(t, apiError.Detail)
	require.NotNil(t, apiError.Detail.Quota)
	assert.Equal(t, 50, apiError.Detail.Quota.Limit)
	assert.Equal(t, "starter", apiError.Detail.Quota.Plan)
}

func TestStreamTurnNonJSONErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "upstream timed out")
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "", time.Second)
	_, err := client.StreamTurn(context.Background(), &TurnRequest{Question: "q"})
	require.Error(t, err)
	var apiError *APIError
	assert.False(t, errors.As(err, &apiError))
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream timed out")
}

func TestRunTurnRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/turns", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		request := &TurnRequest{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(request))
		assert.Equal(t, "retry-target", request.RetryOfMessageID)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"answer": "현금흐름이 안정적입니다",
			"citations": {"page": ["p.3", {"page": 3, "label": "현금흐름표"}]},
			"meta": {"guardrail": {"decision": "allow"}, "trace_id": "t-9"},
			"model_used": "finlens-pro"
		}`)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "", time.Second)
	response, err := client.RunTurn(context.Background(), &TurnRequest{
		Question:         "현금흐름 어때?",
		RetryOfMessageID: "retry-target",
	})
	require.NoError(t, err)
	assert.Equal(t, "현금흐름이 안정적입니다", response.Answer)
	assert.Equal(t, "finlens-pro", response.ModelUsed)
	require.NotNil(t, response.Meta)
	assert.Equal(t, "t-9", response.Meta.TraceID)

	// Citations accept both the bare-string and the structured form.
	citations := response.Citations["page"]
	require.Len(t, citations, 2)
	assert.Equal(t, "p.3", citations[0].Text)
	assert.Nil(t, citations[0].Fields)
	assert.Equal(t, "현금흐름표", citations[1].Fields["label"])
}

func TestRunTurnErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":"auth.invalid_key","message":"unknown api key"}}`)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "bad-key", time.Second)
	_, err := client.RunTurn(context.Background(), &TurnRequest{Question: "q"})
	require.Error(t, err)
	var apiError *APIError
	require.True(t, errors.As(err, &apiError))
	assert.Equal(t, "auth.invalid_key", apiError.Code)
	assert.Equal(t, "unknown api key", apiError.Message)
}

func TestCitationMarshalPreservesForm(t *testing.T) {
	raw := []byte(`["p.1", {"page": 2}]`)
	var citations []Citation
	require.NoError(t, json.Unmarshal(raw, &citations))
	encoded, err := json.Marshal(citations)
	require.NoError(t, err)
	assert.JSONEq(t, `["p.1", {"page": 2}]`, string(encoded))
}
