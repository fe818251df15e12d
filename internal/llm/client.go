// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// Shared transport so every client reuses idle connections to the local server.
	sharedTransport = &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}

	// sharedStreamingClient has no timeout; the caller's context bounds a stream.
	sharedStreamingClient = &http.Client{Transport: sharedTransport}
)

// Client is a chat-completion client for an OpenAI-compatible server.
// A Client is safe for concurrent use once configured.
type Client struct {
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client // non-streaming requests
	streamHTTP *http.Client // streaming requests
	log        *zap.SugaredLogger
}

// NewClient creates a client for the server at baseURL. An empty baseURL
// means DefaultBaseURL. A trailing "/" or "/v1" is tolerated.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    normalizeBaseURL(baseURL),
		userAgent:  "chat-ui",
		httpClient: &http.Client{Transport: sharedTransport},
		streamHTTP: sharedStreamingClient,
		log:        zap.NewNop().Sugar(),
	}
}

// WithAPIKey sets a bearer token. LM Studio ignores it.
func (c *Client) WithAPIKey(key string) *Client {
	c.apiKey = strings.TrimSpace(key)
	return c
}

// WithTimeout bounds non-streaming requests. Zero (the default) means none.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.httpClient = &http.Client{Transport: c.httpClient.Transport, Timeout: timeout}
	return c
}

// WithHTTPClient replaces both underlying HTTP clients. Used by tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	c.streamHTTP = hc
	return c
}

// WithLogger sets the logger. nil keeps the no-op logger.
func (c *Client) WithLogger(log *zap.SugaredLogger) *Client {
	if log != nil {
		c.log = log
	}
	return c
}

// WithUserAgent overrides the User-Agent header.
func (c *Client) WithUserAgent(ua string) *Client {
	c.userAgent = ua
	return c
}

// BaseURL returns the normalized server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func normalizeBaseURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		u = DefaultBaseURL
	}
	u = strings.TrimRight(u, "/")
	u = strings.TrimSuffix(u, "/v1")
	return u
}

// =============================================================================
// NON-STREAMING
// =============================================================================

// Complete sends the conversation and returns the assistant reply in one piece.
// messages is read, never modified.
func (c *Client) Complete(ctx context.Context, model string, messages []Message, temperature float64) (string, error) {
	const op = "complete"
	if err := ctx.Err(); err != nil {
		return "", &CancelledError{Err: err}
	}

	resp, err := c.post(ctx, op, c.httpClient, newChatRequest(model, messages, temperature, false))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := readResponse(resp.Body)
	if err != nil {
		return "", classify(ctx, op, err)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(chatResp.Choices) == 0 {
		return "", &TransportError{Op: op, StatusCode: resp.StatusCode, Err: ErrEmptyResponse}
	}

	content := chatResp.Choices[0].Message.Content
	c.log.Debugw("completion finished", "model", model, "chars", len(content))
	return content, nil
}

// =============================================================================
// STREAMING
// =============================================================================

// CompleteStream sends the conversation with stream:true and calls onFragment
// for every non-empty content fragment, in order, on the calling goroutine.
// It returns nil when the server sends [DONE] or closes the stream.
func (c *Client) CompleteStream(ctx context.Context, model string, messages []Message, temperature float64, onFragment func(string)) error {
	_, err := c.stream(ctx, model, messages, temperature, onFragment)
	return err
}

// CompleteStreamWithStats is CompleteStream plus timing. Stats are returned
// even when the stream was cancelled or failed part way.
func (c *Client) CompleteStreamWithStats(ctx context.Context, model string, messages []Message, temperature float64, onFragment func(string)) (*StreamStats, error) {
	stats := &StreamStats{Model: model}
	start := time.Now()

	dec, err := c.stream(ctx, model, messages, temperature, func(fragment string) {
		if stats.FragmentCount == 0 {
			stats.FirstFragment = time.Since(start)
		}
		stats.FragmentCount++
		stats.CharacterCount += len([]rune(fragment))
		if onFragment != nil {
			onFragment(fragment)
		}
	})

	stats.TotalTime = time.Since(start)
	if dec != nil {
		stats.Skipped = dec.Skipped()
	}
	return stats, err
}

// stream performs the request and runs the decoder. The decoder is returned
// whenever one was created so callers can inspect its counters.
func (c *Client) stream(ctx context.Context, model string, messages []Message, temperature float64, onFragment func(string)) (*Decoder, error) {
	const op = "stream"
	if err := ctx.Err(); err != nil {
		return nil, &CancelledError{Err: err}
	}

	resp, err := c.post(ctx, op, c.streamHTTP, newChatRequest(model, messages, temperature, true))
	if err != nil {
		return nil, err
	}

	dec := NewDecoder(resp.Body, c.log)
	err = dec.Run(ctx, onFragment)
	c.log.Debugw("stream finished",
		"model", model,
		"state", dec.State().String(),
		"fragments", dec.Fragments(),
		"skipped", dec.Skipped())
	return dec, err
}

// =============================================================================
// MODELS
// =============================================================================

// ListModels returns the models the server offers. It never fails: on any
// error the failure is logged and FallbackModels is returned instead.
// A response without a data array yields an empty list.
func (c *Client) ListModels(ctx context.Context) []ModelInfo {
	models, err := c.FetchModels(ctx)
	if err != nil {
		c.log.Warnw("listing models failed, using fallback", "error", err)
		return FallbackModels()
	}
	return models
}

// FetchModels is ListModels without the fallback.
func (c *Client) FetchModels(ctx context.Context) ([]ModelInfo, error) {
	const op = "models"
	if err := ctx.Err(); err != nil {
		return nil, &CancelledError{Err: err}
	}

	resp, err := c.get(ctx, op, c.baseURL+modelsPath)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := readResponse(resp.Body)
	if err != nil {
		return nil, classify(ctx, op, err)
	}

	models, err := decodeModels(body)
	if err != nil {
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode models: %w", err)}
	}
	return models, nil
}

// decodeModels maps a /v1/models body. Only a "data" array is mapped; any
// other well-formed body yields an empty list. A null body or a null entry
// is an error.
func decodeModels(body []byte) ([]ModelInfo, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return nil, errors.New("null body")
	}
	if raw[0] != '{' {
		return []ModelInfo{}, nil
	}

	var mr modelsResponse
	if err := json.Unmarshal(raw, &mr); err != nil {
		return nil, err
	}
	data := bytes.TrimSpace(mr.Data)
	if len(data) == 0 || data[0] != '[' {
		return []ModelInfo{}, nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	models := make([]ModelInfo, 0, len(entries))
	for i, e := range entries {
		e = bytes.TrimSpace(e)
		if isNull(e) {
			return nil, fmt.Errorf("model %d is null", i)
		}
		var m modelEntry
		if e[0] == '{' {
			if err := json.Unmarshal(e, &m); err != nil {
				return nil, err
			}
		}
		id := rawText(m.ID)
		owner := rawText(m.OwnedBy)
		if owner == "" {
			owner = "unknown"
		}
		models = append(models, ModelInfo{
			ID:      id,
			Name:    id,
			Object:  rawText(m.Object),
			Created: rawInt(m.Created),
			OwnedBy: owner,
		})
	}
	return models, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// rawText returns a JSON string's value, or the literal text of any other
// scalar so a numeric id like 5 becomes "5".
func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

func rawInt(raw json.RawMessage) int64 {
	var f float64
	if json.Unmarshal(raw, &f) != nil {
		return 0
	}
	return int64(f)
}

// Ping reports whether the server answers on the models endpoint.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.get(ctx, "ping", c.baseURL+modelsPath)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, MaxErrorBodySize))
	return resp.Body.Close()
}

// =============================================================================
// HTTP PLUMBING
// =============================================================================

func (c *Client) post(ctx context.Context, op string, hc *http.Client, reqBody ChatRequest) (*http.Response, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatCompletionsPath, bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("build request: %w", err)}
	}
	c.setHeaders(req)
	if reqBody.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	c.log.Debugw("sending chat request",
		"op", op,
		"model", reqBody.Model,
		"messages", len(reqBody.Messages),
		"stream", reqBody.Stream)

	return c.do(ctx, op, hc, req)
}

func (c *Client) get(ctx context.Context, op, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("build request: %w", err)}
	}
	c.setHeaders(req)
	return c.do(ctx, op, c.httpClient, req)
}

// do performs exactly one exchange. Non-2xx responses are consumed, closed
// and returned as *TransportError.
func (c *Client) do(ctx context.Context, op string, hc *http.Client, req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		return nil, classify(ctx, op, err)
	}
	c.log.Debugw("server responded", "op", op, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
		return nil, handleErrorResponse(op, resp.StatusCode, body)
	}
	return resp, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// readResponse reads a body up to MaxResponseSize.
func readResponse(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeds %d bytes", MaxResponseSize)
	}
	return body, nil
}

// handleErrorResponse builds a TransportError from a non-2xx body. Servers
// use either {"error":{"message":...}} or {"error":"..."}.
func handleErrorResponse(op string, status int, body []byte) error {
	te := &TransportError{Op: op, StatusCode: status, Body: string(body)}

	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && len(envelope.Error) > 0 {
		var detailed struct {
			Message string `json:"message"`
		}
		var plain string
		switch {
		case json.Unmarshal(envelope.Error, &detailed) == nil && detailed.Message != "":
			te.Message = detailed.Message
		case json.Unmarshal(envelope.Error, &plain) == nil:
			te.Message = plain
		}
	}
	if te.Message == "" {
		te.Message = strings.TrimSpace(http.StatusText(status))
	}
	return te
}
