// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/devkabir/chat-ui/internal/llm"
)

// MaxMessages is the maximum number of messages kept in a conversation.
// When exceeded, the oldest non-system messages are pruned.
const MaxMessages = 1000

// DefaultTitle is shown until the first user message names the conversation.
const DefaultTitle = "New Conversation"

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds a complete chat conversation with history and metadata.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages []*Message `json:"messages"`

	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
}

// NewConversation creates a new conversation with a generated ID.
func NewConversation() *Conversation {
	now := time.Now()
	return &Conversation{
		ID:          uuid.NewString(),
		CreatedAt:   now,
		UpdatedAt:   now,
		Messages:    make([]*Message, 0),
		Temperature: llm.DefaultTemperature,
	}
}

// NewConversationWithModel creates a new conversation with a specific model.
func NewConversationWithModel(model string) *Conversation {
	conv := NewConversation()
	conv.Model = model
	return conv
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage adds a message to the conversation.
func (c *Conversation) AddMessage(msg *Message) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()
	c.updateTitle()
	c.pruneOldMessages()
}

// AddUserMessage creates and adds a user message.
func (c *Conversation) AddUserMessage(content string) *Message {
	msg := NewUserMessage(content)
	c.AddMessage(msg)
	return msg
}

// AddAssistantMessage creates and adds a streaming assistant message.
func (c *Conversation) AddAssistantMessage() *Message {
	msg := NewAssistantMessage()
	c.AddMessage(msg)
	return msg
}

// AddNote adds a local note (shown, never sent).
func (c *Conversation) AddNote(content string) *Message {
	msg := NewNote(content)
	c.AddMessage(msg)
	return msg
}

// GetLastMessage returns the most recent message, or nil if empty.
func (c *Conversation) GetLastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// GetLastAssistantMessage returns the most recent assistant message.
func (c *Conversation) GetLastAssistantMessage() *Message {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleAssistant {
			return c.Messages[i]
		}
	}
	return nil
}

// AppendToLast appends a fragment to the last (streaming) message.
func (c *Conversation) AppendToLast(token string) {
	last := c.GetLastMessage()
	if last != nil && last.IsStreaming {
		last.AppendToken(token)
	}
}

// FinalizeLast finalizes the last streaming message with statistics.
func (c *Conversation) FinalizeLast(stats *Statistics) {
	last := c.GetLastMessage()
	if last != nil && last.IsStreaming {
		last.FinalizeStream(stats)
		c.UpdatedAt = time.Now()
	}
}

// InterruptLast ends the last streaming message early. An interrupted reply
// with no text at all is removed so it is not sent back as history.
func (c *Conversation) InterruptLast(stats *Statistics) {
	last := c.GetLastMessage()
	if last == nil || !last.IsStreaming {
		return
	}
	last.Interrupt(stats)
	if last.IsEmpty() {
		c.RemoveLast()
	}
	c.UpdatedAt = time.Now()
}

// RemoveLast drops the most recent message and returns it.
func (c *Conversation) RemoveLast() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	last := c.Messages[len(c.Messages)-1]
	c.Messages = c.Messages[:len(c.Messages)-1]
	c.UpdatedAt = time.Now()
	return last
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// =============================================================================
// WIRE CONVERSION
// =============================================================================

// ToLLMMessages builds the history sent with the next request: the system
// prompt first (if any), then every non-local message with content.
func (c *Conversation) ToLLMMessages() []llm.Message {
	messages := make([]llm.Message, 0, len(c.Messages)+1)

	if c.SystemPrompt != "" {
		messages = append(messages, llm.NewSystemMessage(c.SystemPrompt))
	}

	for _, msg := range c.Messages {
		if msg.Local {
			continue
		}
		switch msg.Role {
		case RoleUser, RoleAssistant, RoleSystem:
		default:
			continue
		}
		content := msg.GetDisplayContent()
		if content == "" {
			continue
		}
		messages = append(messages, llm.Message{Role: msg.Role.String(), Content: content})
	}

	return messages
}

// WithContext returns the wire history with an extra system message inserted
// just before the last user message. Used to attach search results to a turn
// without storing them in the conversation.
func (c *Conversation) WithContext(extra string) []llm.Message {
	messages := c.ToLLMMessages()
	if extra == "" {
		return messages
	}
	idx := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llm.RoleUser {
			idx = i
			break
		}
	}
	out := make([]llm.Message, 0, len(messages)+1)
	out = append(out, messages[:idx]...)
	out = append(out, llm.NewSystemMessage(extra))
	out = append(out, messages[idx:]...)
	return out
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// updateTitle auto-generates a title from the first user message if not set.
func (c *Conversation) updateTitle() {
	if c.Title != "" {
		return
	}
	for _, msg := range c.Messages {
		if msg.Role == RoleUser {
			c.Title = msg.Preview(50)
			return
		}
	}
}

// SetTitle manually sets the conversation title.
func (c *Conversation) SetTitle(title string) {
	c.Title = title
	c.UpdatedAt = time.Now()
}

// GetTitle returns the conversation title or a default.
func (c *Conversation) GetTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return DefaultTitle
}

// =============================================================================
// METADATA
// =============================================================================

// Preview returns a short preview of the conversation.
func (c *Conversation) Preview() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return c.Messages[i].Preview(100)
		}
	}
	if len(c.Messages) == 0 {
		return "Empty conversation"
	}
	return c.Messages[0].Preview(100)
}

// Clone creates a deep copy of the conversation. Streaming messages are
// copied with their current text as content.
func (c *Conversation) Clone() *Conversation {
	clone := &Conversation{
		ID:           c.ID,
		Title:        c.Title,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		Model:        c.Model,
		Temperature:  c.Temperature,
		SystemPrompt: c.SystemPrompt,
		Messages:     make([]*Message, len(c.Messages)),
	}
	for i, msg := range c.Messages {
		clone.Messages[i] = &Message{
			ID:              msg.ID,
			Role:            msg.Role,
			Timestamp:       msg.Timestamp,
			Content:         msg.GetDisplayContent(),
			Interrupted:     msg.Interrupted,
			Local:           msg.Local,
			TTFT:            msg.TTFT,
			TotalDuration:   msg.TotalDuration,
			FragmentCount:   msg.FragmentCount,
			FragmentsPerSec: msg.FragmentsPerSec,
		}
	}
	return clone
}

// pruneOldMessages keeps system messages and the newest MaxMessages others.
func (c *Conversation) pruneOldMessages() {
	if len(c.Messages) <= MaxMessages {
		return
	}

	var systemMessages, otherMessages []*Message
	for _, msg := range c.Messages {
		if msg.Role == RoleSystem && !msg.Local {
			systemMessages = append(systemMessages, msg)
		} else {
			otherMessages = append(otherMessages, msg)
		}
	}
	if len(otherMessages) > MaxMessages {
		otherMessages = otherMessages[len(otherMessages)-MaxMessages:]
	}

	c.Messages = make([]*Message, 0, len(systemMessages)+len(otherMessages))
	c.Messages = append(c.Messages, systemMessages...)
	c.Messages = append(c.Messages, otherMessages...)
}
