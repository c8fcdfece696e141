package rag

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	streamPath   = "/v1/turns:stream"
	blockingPath = "/v1/turns"

	ssePrefix = "data:"
)

// HTTPClient talks to the RAG backend over HTTP, with server-sent events for
// the streaming transport.
type HTTPClient struct {
	host       string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient instantiates and returns a new client. The timeout applies
// to the blocking call only; streams are bounded by the caller's context.
func NewHTTPClient(host, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		host:       strings.TrimSuffix(host, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// StreamTurn implements Client.
func (c *HTTPClient) StreamTurn(ctx context.Context, request *TurnRequest) (Stream, error) {
	httpRequest, err := c.newRequest(ctx, streamPath, request)
	if err != nil {
		return nil, err
	}
	httpRequest.Header.Set("Accept", "text/event-stream")

	// No client timeout here: a stream legitimately outlives it.
	response, err := (&http.Client{Transport: c.httpClient.Transport}).Do(httpRequest)
	if err != nil {
		return nil, errors.Wrap(err, "opening stream")
	}
	if response.StatusCode != http.StatusOK {
		defer response.Body.Close()
		return nil, decodeAPIError(response)
	}

	scanner := bufio.NewScanner(response.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &httpStream{body: response.Body, scanner: scanner}, nil
}

// RunTurn implements Client.
func (c *HTTPClient) RunTurn(ctx context.Context, request *TurnRequest) (*TurnResponse, error) {
	httpRequest, err := c.newRequest(ctx, blockingPath, request)
	if err != nil {
		return nil, err
	}

	response, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return nil, errors.Wrap(err, "calling backend")
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return nil, decodeAPIError(response)
	}

	turnResponse := &TurnResponse{}
	if err := json.NewDecoder(response.Body).Decode(turnResponse); err != nil {
		return nil, errors.Wrap(err, "decoding response")
	}
	return turnResponse, nil
}

func (c *HTTPClient) newRequest(ctx context.Context, path string, request *TurnRequest) (*http.Request, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling request")
	}
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpRequest.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return httpRequest, nil
}

// httpStream reads server-sent events off the response body.
type httpStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

// Recv returns the next event on the stream.
func (s *httpStream) Recv() (*Event, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, ssePrefix) {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, ssePrefix))
		event := &Event{}
		if err := json.Unmarshal([]byte(data), event); err != nil {
			return nil, errors.Wrap(err, "unmarshaling event")
		}
		return event, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading stream")
	}
	return nil, io.EOF
}

func (s *httpStream) Close() {
	s.body.Close()
}

func decodeAPIError(response *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(response.Body, 1024*1024))
	if err != nil {
		return errors.Wrapf(err, "backend returned status %d", response.StatusCode)
	}
	envelope := &errorEnvelope{}
	if err := json.Unmarshal(body, envelope); err == nil && envelope.Error != nil && envelope.Error.Code != "" {
		return envelope.Error
	}
	return errors.Errorf("backend returned status %d: %s", response.StatusCode, strings.TrimSpace(string(body)))
}
