// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/devkabir/chat-ui/internal/llm"
	"github.com/devkabir/chat-ui/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// ParseRole converts a wire role into a Role. Unknown roles are returned as-is.
func ParseRole(s string) Role {
	return Role(strings.ToLower(strings.TrimSpace(s)))
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`

	// Streaming state (not persisted)
	IsStreaming   bool            `json:"-"`
	streamContent strings.Builder `json:"-"`

	// Interrupted is set when the reply was cancelled or failed part way.
	// Content then holds whatever arrived before the interruption.
	Interrupted bool `json:"interrupted,omitempty"`

	// Local marks UI-only notes (errors, search results, help) that are
	// shown in the transcript but never sent to the server.
	Local bool `json:"local,omitempty"`

	// Generation metrics (assistant messages)
	TTFT            time.Duration `json:"ttft_ns,omitempty"`
	TotalDuration   time.Duration `json:"total_duration_ns,omitempty"`
	FragmentCount   int           `json:"fragment_count,omitempty"`
	FragmentsPerSec float64       `json:"fragments_per_sec,omitempty"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) *Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates an empty assistant message ready for streaming.
func NewAssistantMessage() *Message {
	msg := NewMessage(RoleAssistant, "")
	msg.IsStreaming = true
	return msg
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) *Message {
	return NewMessage(RoleSystem, content)
}

// NewNote creates a local system note that is displayed but never sent.
func NewNote(content string) *Message {
	msg := NewMessage(RoleSystem, content)
	msg.Local = true
	return msg
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// AppendToken appends a fragment to a streaming message.
func (m *Message) AppendToken(token string) {
	if m.IsStreaming {
		m.streamContent.WriteString(token)
	}
}

// FinalizeStream completes streaming and records statistics.
func (m *Message) FinalizeStream(stats *Statistics) {
	if !m.IsStreaming {
		return
	}

	m.Content = m.streamContent.String()
	m.streamContent.Reset()
	m.IsStreaming = false

	if stats != nil {
		m.TTFT = stats.TTFT
		m.TotalDuration = stats.TotalDuration
		m.FragmentCount = stats.FragmentCount
		m.FragmentsPerSec = stats.FragmentsPerSecond
	}
}

// Interrupt ends streaming early and keeps the partial text.
func (m *Message) Interrupt(stats *Statistics) {
	if !m.IsStreaming {
		return
	}
	m.FinalizeStream(stats)
	m.Interrupted = true
}

// GetDisplayContent returns the content to display (streaming or final).
func (m *Message) GetDisplayContent() string {
	if m.IsStreaming {
		return m.streamContent.String()
	}
	return m.Content
}

// Preview returns a rune-safe truncated preview of the content.
func (m *Message) Preview(maxLen int) string {
	return util.TruncateRunes(util.SingleLine(m.GetDisplayContent()), maxLen)
}

// IsEmpty returns true if the message has no content.
func (m *Message) IsEmpty() bool {
	return len(m.Content) == 0 && m.streamContent.Len() == 0
}

// FormatStats returns a formatted string of message statistics.
func (m *Message) FormatStats() string {
	if m.Role != RoleAssistant || m.TotalDuration == 0 {
		return ""
	}
	s := Statistics{
		TTFT:               m.TTFT,
		TotalDuration:      m.TotalDuration,
		FragmentCount:      m.FragmentCount,
		FragmentsPerSecond: m.FragmentsPerSec,
	}
	return s.Format()
}

// =============================================================================
// STATISTICS TYPE
// =============================================================================

// Statistics holds timing information for one generation.
type Statistics struct {
	TTFT               time.Duration
	TotalDuration      time.Duration
	FragmentCount      int
	FragmentsPerSecond float64
}

// StatisticsFromStream converts the transport's stream stats.
func StatisticsFromStream(s *llm.StreamStats) *Statistics {
	if s == nil {
		return nil
	}
	return &Statistics{
		TTFT:               s.FirstFragment,
		TotalDuration:      s.TotalTime,
		FragmentCount:      s.FragmentCount,
		FragmentsPerSecond: s.FragmentsPerSecond(),
	}
}

// Format renders "2.5s | 128 fragments | 51.2 frag/s | TTFT 234ms".
func (s *Statistics) Format() string {
	if s == nil {
		return ""
	}
	return fmt.Sprintf("%s | %d fragments | %.1f frag/s | TTFT %dms",
		formatDuration(s.TotalDuration),
		s.FragmentCount,
		s.FragmentsPerSecond,
		s.TTFT.Milliseconds())
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
