// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"encoding/json"
	"time"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultBaseURL is where LM Studio listens out of the box.
	DefaultBaseURL = "http://localhost:1234"

	// DefaultModel is used when neither config nor flags name a model.
	DefaultModel = "google/gemma-3-12b"

	// DefaultTemperature is the sampling temperature used when none is configured.
	DefaultTemperature = 0.7

	// UnlimitedTokens is sent as max_tokens on every request.
	UnlimitedTokens = -1

	// MaxResponseSize caps non-streaming response bodies.
	MaxResponseSize = 10 * 1024 * 1024

	// MaxErrorBodySize caps how much of a non-2xx body is kept on a TransportError.
	MaxErrorBodySize = 4 * 1024

	// MaxLineSize caps a single stream line.
	MaxLineSize = 1024 * 1024

	chatCompletionsPath = "/v1/chat/completions"
	modelsPath          = "/v1/models"
)

// Roles accepted by the completion endpoint.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// Message is one entry of the conversation history sent to the server.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// ChatRequest is the body POSTed to /v1/chat/completions.
// Temperature is never omitted so that 0 reaches the server as 0.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

func newChatRequest(model string, messages []Message, temperature float64, stream bool) ChatRequest {
	return ChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   UnlimitedTokens,
		Stream:      stream,
	}
}

// ChatResponse is a non-streaming completion response.
type ChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage,omitempty"`
}

// Usage is the token accounting some servers attach to responses.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StreamChunk is the JSON payload of one data: line.
type StreamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Role    string `json:"role,omitempty"`
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error json.RawMessage `json:"error,omitempty"`
}

// Fragment returns choices[0].delta.content, or "" when absent.
func (c *StreamChunk) Fragment() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Delta.Content
}

// Frame is one decoded stream event.
type Frame struct {
	Fragment string
	Done     bool
}

// StreamStats describes a finished (or interrupted) stream.
type StreamStats struct {
	Model          string
	FirstFragment  time.Duration // time to first non-empty fragment
	TotalTime      time.Duration
	FragmentCount  int
	CharacterCount int
	Skipped        int // undecodable lines
}

// FragmentsPerSecond is FragmentCount over the generation window
// (first fragment to end of stream).
func (s *StreamStats) FragmentsPerSecond() float64 {
	if s == nil || s.FragmentCount == 0 {
		return 0
	}
	gen := s.TotalTime - s.FirstFragment
	if gen <= 0 {
		return 0
	}
	return float64(s.FragmentCount) / gen.Seconds()
}

// =============================================================================
// MODELS
// =============================================================================

// ModelInfo describes one model offered by the server.
type ModelInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Object  string `json:"object"`
	Created int64  `json:"created,omitempty"`
	OwnedBy string `json:"owned_by"`
}

// FallbackModels is what ListModels returns when the server cannot be asked.
func FallbackModels() []ModelInfo {
	return []ModelInfo{{
		ID:      DefaultModel,
		Name:    "Gemma 3 12B",
		Object:  "model",
		OwnedBy: "google",
	}}
}

type modelsResponse struct {
	Data json.RawMessage `json:"data"`
}

// modelEntry keeps fields raw since servers disagree on their types.
type modelEntry struct {
	ID      json.RawMessage `json:"id"`
	Object  json.RawMessage `json:"object"`
	Created json.RawMessage `json:"created"`
	OwnedBy json.RawMessage `json:"owned_by"`
}
