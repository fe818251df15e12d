// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/devkabir/chat-ui/internal/llm"
)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestRole_DisplayName(t *testing.T) {
	tests := []struct {
		role Role
		want string
	}{
		{RoleUser, "You"},
		{RoleAssistant, "Assistant"},
		{RoleSystem, "System"},
		{Role("tool"), "tool"},
	}
	for _, tt := range tests {
		if got := tt.role.DisplayName(); got != tt.want {
			t.Errorf("Role(%q).DisplayName() = %q, want %q", tt.role, got, tt.want)
		}
	}
}

func TestMessage_Streaming(t *testing.T) {
	msg := NewAssistantMessage()
	if !msg.IsStreaming {
		t.Fatal("new assistant message should be streaming")
	}
	if msg.ID == "" {
		t.Error("ID should be generated")
	}

	msg.AppendToken("Hel")
	msg.AppendToken("lo")
	if got := msg.GetDisplayContent(); got != "Hello" {
		t.Errorf("GetDisplayContent() = %q, want 'Hello'", got)
	}
	if msg.Content != "" {
		t.Errorf("Content = %q before finalize, want empty", msg.Content)
	}

	msg.FinalizeStream(&Statistics{TotalDuration: 2 * time.Second, FragmentCount: 2})
	if msg.Content != "Hello" || msg.IsStreaming {
		t.Errorf("after finalize Content = %q IsStreaming = %v", msg.Content, msg.IsStreaming)
	}
	if msg.FragmentCount != 2 {
		t.Errorf("FragmentCount = %d, want 2", msg.FragmentCount)
	}

	msg.AppendToken("ignored")
	if msg.Content != "Hello" {
		t.Errorf("append after finalize changed content to %q", msg.Content)
	}
}

func TestMessage_Interrupt(t *testing.T) {
	msg := NewAssistantMessage()
	msg.AppendToken("partial")
	msg.Interrupt(nil)

	if !msg.Interrupted {
		t.Error("Interrupted = false, want true")
	}
	if msg.Content != "partial" {
		t.Errorf("Content = %q, want 'partial'", msg.Content)
	}
}

func TestMessage_Preview(t *testing.T) {
	msg := NewUserMessage("héllo   wörld\nsecond line")
	if got := msg.Preview(100); got != "héllo wörld second line" {
		t.Errorf("Preview(100) = %q", got)
	}
	if got := msg.Preview(8); got != "héllo..." {
		t.Errorf("Preview(8) = %q, want 'héllo...'", got)
	}
}

func TestStatistics_Format(t *testing.T) {
	s := &Statistics{
		TTFT:               234 * time.Millisecond,
		TotalDuration:      2500 * time.Millisecond,
		FragmentCount:      128,
		FragmentsPerSecond: 51.2,
	}
	want := "2.5s | 128 fragments | 51.2 frag/s | TTFT 234ms"
	if got := s.Format(); got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}

	var nilStats *Statistics
	if nilStats.Format() != "" {
		t.Error("nil Format() should be empty")
	}
}

func TestStatisticsFromStream(t *testing.T) {
	if StatisticsFromStream(nil) != nil {
		t.Error("StatisticsFromStream(nil) should be nil")
	}
	s := StatisticsFromStream(&llm.StreamStats{
		FirstFragment: time.Second,
		TotalTime:     2 * time.Second,
		FragmentCount: 4,
	})
	if s.TTFT != time.Second || s.TotalDuration != 2*time.Second || s.FragmentCount != 4 {
		t.Errorf("unexpected stats %+v", s)
	}
	if s.FragmentsPerSecond != 4 {
		t.Errorf("FragmentsPerSecond = %v, want 4", s.FragmentsPerSecond)
	}
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestConversation_Title(t *testing.T) {
	conv := NewConversation()
	if conv.GetTitle() != DefaultTitle {
		t.Errorf("GetTitle() = %q, want default", conv.GetTitle())
	}
	conv.AddUserMessage(strings.Repeat("a", 80))
	if got := len([]rune(conv.Title)); got != 50 {
		t.Errorf("title length = %d, want 50", got)
	}
	conv.AddUserMessage("second")
	if strings.HasPrefix(conv.Title, "second") {
		t.Error("title should come from the first user message")
	}
}

func TestConversation_ToLLMMessages(t *testing.T) {
	conv := NewConversationWithModel("m")
	conv.SystemPrompt = "be brief"
	conv.AddUserMessage("hi")
	conv.AddNote("search results shown locally")
	reply := conv.AddAssistantMessage()
	reply.AppendToken("hello")
	conv.FinalizeLast(nil)
	conv.AddAssistantMessage() // empty in-flight reply

	got := conv.ToLLMMessages()
	want := []llm.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}
	if len(got) != len(want) {
		t.Fatalf("ToLLMMessages() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestConversation_WithContext(t *testing.T) {
	conv := NewConversation()
	conv.AddUserMessage("first")
	conv.AddMessage(NewMessage(RoleAssistant, "answer"))
	conv.AddUserMessage("second")

	got := conv.WithContext("results")
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	if got[2].Role != llm.RoleSystem || got[2].Content != "results" {
		t.Errorf("context message = %+v, want system 'results' before last user turn", got[2])
	}
	if got[3].Content != "second" {
		t.Errorf("last message = %+v, want 'second'", got[3])
	}
	if len(conv.Messages) != 3 {
		t.Error("WithContext must not modify the conversation")
	}
}

func TestConversation_InterruptLast(t *testing.T) {
	conv := NewConversation()
	conv.AddUserMessage("q")
	reply := conv.AddAssistantMessage()
	reply.AppendToken("half an ans")
	conv.InterruptLast(nil)

	last := conv.GetLastMessage()
	if last != reply || !last.Interrupted || last.Content != "half an ans" {
		t.Errorf("interrupted reply = %+v", last)
	}

	conv.AddAssistantMessage()
	conv.InterruptLast(nil)
	if conv.MessageCount() != 2 {
		t.Errorf("empty interrupted reply should be dropped, have %d messages", conv.MessageCount())
	}
}

func TestConversation_Prune(t *testing.T) {
	conv := NewConversation()
	conv.AddMessage(NewSystemMessage("keep me"))
	for i := 0; i < MaxMessages+10; i++ {
		conv.AddUserMessage("x")
	}
	if conv.MessageCount() != MaxMessages+1 {
		t.Errorf("MessageCount() = %d, want %d", conv.MessageCount(), MaxMessages+1)
	}
	if conv.Messages[0].Content != "keep me" {
		t.Error("system message should survive pruning")
	}
}

func TestConversation_Clone(t *testing.T) {
	conv := NewConversation()
	conv.AddUserMessage("q")
	conv.AddAssistantMessage().AppendToken("streaming")

	clone := conv.Clone()
	clone.Messages[0].Content = "changed"
	if conv.Messages[0].Content != "q" {
		t.Error("Clone shares message pointers")
	}
	if clone.Messages[1].Content != "streaming" || clone.Messages[1].IsStreaming {
		t.Errorf("cloned streaming message = %+v", clone.Messages[1])
	}
}

// =============================================================================
// MODEL SELECTION TESTS
// =============================================================================

func TestResolveModel(t *testing.T) {
	models := []llm.ModelInfo{
		{ID: "google/gemma-3-12b"},
		{ID: "qwen2.5-7b-instruct"},
		{ID: "qwen2.5-coder-7b"},
	}

	tests := []struct {
		name    string
		query   string
		want    string
		wantErr bool
	}{
		{"index", "2", "qwen2.5-7b-instruct", false},
		{"exact", "qwen2.5-coder-7b", "qwen2.5-coder-7b", false},
		{"unique substring", "GEMMA", "google/gemma-3-12b", false},
		{"ambiguous", "qwen", "", true},
		{"unknown passes through", "mistral-7b", "mistral-7b", false},
		{"index out of range", "9", "", true},
		{"empty", "  ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveModel(models, tt.query)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveModel(%q) error = %v, wantErr %v", tt.query, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ResolveModel(%q) = %q, want %q", tt.query, got, tt.want)
			}
		})
	}

	_, err := ResolveModel(models, "qwen")
	var amb *ErrAmbiguousModel
	if !errors.As(err, &amb) || len(amb.Matches) != 2 {
		t.Errorf("ambiguous error = %v", err)
	}
}

func TestFormatModelList(t *testing.T) {
	out := FormatModelList(llm.FallbackModels(), "google/gemma-3-12b")
	if !strings.Contains(out, "*  1. google/gemma-3-12b (Gemma 3 12B) [google]") {
		t.Errorf("FormatModelList() = %q", out)
	}
	if FormatModelList(nil, "") != "No models available." {
		t.Error("empty list message missing")
	}
}
