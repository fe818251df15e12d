// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devkabir/chat-ui/internal/config"
	"github.com/devkabir/chat-ui/internal/llm"
	"github.com/devkabir/chat-ui/internal/model"
	"github.com/devkabir/chat-ui/internal/search"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeBackend struct {
	mu        sync.Mutex
	fragments []string
	err       error
	// blockUntilCancel makes the stream wait for ctx after sending fragments.
	blockUntilCancel bool
	completeText     string

	history     []llm.Message
	streamCalls int
	completes   int
}

func (f *fakeBackend) Complete(ctx context.Context, model string, messages []llm.Message, temperature float64) (string, error) {
	f.mu.Lock()
	f.completes++
	f.history = messages
	f.mu.Unlock()
	return f.completeText, f.err
}

func (f *fakeBackend) CompleteStreamWithStats(ctx context.Context, model string, messages []llm.Message, temperature float64, onFragment func(string)) (*llm.StreamStats, error) {
	f.mu.Lock()
	f.streamCalls++
	f.history = messages
	f.mu.Unlock()

	stats := &llm.StreamStats{Model: model, FirstFragment: 10 * time.Millisecond}
	for _, frag := range f.fragments {
		stats.FragmentCount++
		onFragment(frag)
	}
	if f.blockUntilCancel {
		<-ctx.Done()
		stats.TotalTime = 50 * time.Millisecond
		return stats, &llm.CancelledError{Err: ctx.Err()}
	}
	stats.TotalTime = 110 * time.Millisecond
	return stats, f.err
}

func (f *fakeBackend) ListModels(ctx context.Context) []llm.ModelInfo {
	return []llm.ModelInfo{{ID: "google/gemma-3-12b"}, {ID: "qwen/qwen3-8b"}}
}

func (f *fakeBackend) Ping(ctx context.Context) error { return nil }

func (f *fakeBackend) lastHistory() []llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history
}

type fakeStore struct {
	mu    sync.Mutex
	saved []*model.Conversation
}

func (s *fakeStore) Save(ctx context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, conv)
	return nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.UI.Theme = "notty"
	cfg.UI.RenderMarkdown = false
	return cfg
}

func newTestModel(backend Backend, store Saver) *Model {
	opts := Options{Backend: backend, Config: testConfig()}
	if store != nil {
		opts.Store = store
	}
	m := New(opts)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return m
}

// drive feeds stream events into the model until the reply finishes and
// returns the command produced by the final event.
func drive(t *testing.T, m *Model) tea.Cmd {
	t.Helper()
	for i := 0; i < 100; i++ {
		require.NotNil(t, m.stream, "no stream in flight")
		msg := m.stream.wait()()
		_, cmd := m.Update(msg)
		if _, done := msg.(streamDoneMsg); done {
			return cmd
		}
	}
	t.Fatal("stream did not finish")
	return nil
}

func keyPress(k tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: k} }

// =============================================================================
// COMMAND PARSING
// =============================================================================

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in     string
		want   Command
		wantOK bool
	}{
		{"/help", Command{Name: "help"}, true},
		{"  /Model  qwen  ", Command{Name: "model", Args: "qwen"}, true},
		{"/system be terse please", Command{Name: "system", Args: "be terse please"}, true},
		{"/", Command{}, false},
		{"/ spaced", Command{}, false},
		{"//not a command", Command{}, false},
		{"hello /help", Command{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseCommand(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParseCommand(%q) = %+v, %v; want %+v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

// =============================================================================
// STREAMING
// =============================================================================

func TestStreamFragmentsAssembleReply(t *testing.T) {
	backend := &fakeBackend{fragments: []string{"Hel", "lo"}}
	store := &fakeStore{}
	m := newTestModel(backend, store)

	m.send("hi")
	assert.Equal(t, StateStreaming, m.State())

	saveCmd := drive(t, m)
	assert.Equal(t, StateReady, m.State())

	reply := m.Conversation().GetLastMessage()
	require.NotNil(t, reply)
	assert.Equal(t, model.RoleAssistant, reply.Role)
	assert.Equal(t, "Hello", reply.Content)
	assert.False(t, reply.Interrupted)
	assert.False(t, reply.IsStreaming)
	assert.Equal(t, 2, reply.FragmentCount)
	require.NotNil(t, m.lastStats)

	history := backend.lastHistory()
	require.NotEmpty(t, history)
	assert.Equal(t, llm.NewUserMessage("hi"), history[len(history)-1])

	require.NotNil(t, saveCmd)
	saved, ok := saveCmd().(savedMsg)
	require.True(t, ok)
	assert.NoError(t, saved.err)
	require.Len(t, store.saved, 1)
	assert.Equal(t, "Hello", store.saved[0].GetLastMessage().Content)
}

func TestEscCancelsKeepingPartialReply(t *testing.T) {
	backend := &fakeBackend{fragments: []string{"partial"}, blockUntilCancel: true}
	m := newTestModel(backend, nil)

	m.send("long question")
	msg := m.stream.wait()()
	frag, ok := msg.(fragmentMsg)
	require.True(t, ok, "first event should be a fragment, got %T", msg)
	assert.Equal(t, "partial", frag.text)
	m.Update(msg)

	_, cmd := m.Update(keyPress(tea.KeyEsc))
	assert.Nil(t, cmd)
	assert.Equal(t, "Stopping...", m.status)

	drive(t, m)
	reply := m.Conversation().GetLastMessage()
	assert.Equal(t, "partial", reply.Content)
	assert.True(t, reply.Interrupted)
	assert.Equal(t, "Reply stopped.", m.status)
	assert.Equal(t, StateReady, m.State())
}

func TestCtrlCCancelsWhileStreamingAndQuitsWhenIdle(t *testing.T) {
	backend := &fakeBackend{blockUntilCancel: true}
	m := newTestModel(backend, nil)

	m.send("question")
	_, cmd := m.Update(keyPress(tea.KeyCtrlC))
	assert.Nil(t, cmd)
	assert.False(t, m.quitting)

	drive(t, m)
	// Nothing arrived, so no empty reply is left in the history.
	last := m.Conversation().GetLastMessage()
	assert.Equal(t, model.RoleUser, last.Role)

	_, cmd = m.Update(keyPress(tea.KeyCtrlC))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, m.quitting)
	assert.Empty(t, m.View())
}

func TestTransportErrorBecomesNote(t *testing.T) {
	backend := &fakeBackend{err: &llm.TransportError{Op: "stream", StatusCode: 500, Message: "model crashed"}}
	m := newTestModel(backend, nil)

	m.send("hi")
	drive(t, m)

	last := m.Conversation().GetLastMessage()
	assert.True(t, last.Local)
	assert.Contains(t, last.Content, "model crashed")
	assert.Contains(t, last.Content, "Try again", "5xx is worth retrying")
	assert.Nil(t, m.Conversation().GetLastAssistantMessage())
	assert.True(t, m.online)

	backend.err = &llm.TransportError{Op: "stream", StatusCode: 404, Message: "no such model"}
	m.send("again")
	drive(t, m)
	assert.NotContains(t, m.Conversation().GetLastMessage().Content, "Try again")
}

func TestNonStreamingMode(t *testing.T) {
	backend := &fakeBackend{completeText: "whole answer"}
	m := newTestModel(backend, nil)
	m.cfg.Chat.Stream = false

	m.send("hi")
	drive(t, m)

	assert.Equal(t, 1, backend.completes)
	assert.Zero(t, backend.streamCalls)
	assert.Equal(t, "whole answer", m.Conversation().GetLastMessage().Content)
}

func TestStaleStreamEventsIgnored(t *testing.T) {
	m := newTestModel(&fakeBackend{}, nil)
	before := m.Conversation().MessageCount()
	m.Update(fragmentMsg{id: 42, text: "ghost"})
	m.Update(streamDoneMsg{id: 42})
	assert.Equal(t, before, m.Conversation().MessageCount())
	assert.Equal(t, StateReady, m.State())
}

func TestEnterSubmitsInput(t *testing.T) {
	backend := &fakeBackend{fragments: []string{"ok"}}
	m := newTestModel(backend, nil)

	m.input.SetValue("  //literal slash  ")
	_, cmd := m.Update(keyPress(tea.KeyEnter))
	require.NotNil(t, cmd)
	assert.Empty(t, m.input.Value())
	drive(t, m)

	history := backend.lastHistory()
	assert.Equal(t, "/literal slash", history[len(history)-1].Content)
}

// =============================================================================
// SEARCH GROUNDING
// =============================================================================

func TestAutoSearchGroundsRequest(t *testing.T) {
	backend := &fakeBackend{fragments: []string{"answer"}}
	m := New(Options{Backend: backend, Config: testConfig(), Searcher: &search.Mock{}})
	require.True(t, m.autoSearch)

	m.send("golang")
	drive(t, m)

	history := backend.lastHistory()
	require.GreaterOrEqual(t, len(history), 2)
	ctxMsg := history[len(history)-2]
	assert.Equal(t, llm.RoleSystem, ctxMsg.Role)
	assert.Contains(t, ctxMsg.Content, `Web search results for "golang"`)

	msgs := m.Conversation().Messages
	require.Len(t, msgs, 3)
	assert.True(t, msgs[1].Local)
	assert.Contains(t, msgs[1].Content, "Understanding golang")
	assert.Equal(t, "answer", msgs[2].Content)
}

func TestSearchCommandAttachesToNextMessage(t *testing.T) {
	backend := &fakeBackend{fragments: []string{"ok"}}
	m := New(Options{Backend: backend, Config: testConfig(), Searcher: &search.Mock{}})
	m.autoSearch = false

	cmd := m.runCommand(Command{Name: "search", Args: "rust"})
	require.NotNil(t, cmd)
	m.Update(cmd())
	assert.NotEmpty(t, m.groundNext)

	m.send("summarize")
	drive(t, m)
	history := backend.lastHistory()
	assert.Contains(t, history[len(history)-2].Content, `"rust"`)
	assert.Empty(t, m.groundNext)

	m.runCommand(Command{Name: "search"})
	assert.True(t, m.autoSearch)
}

// =============================================================================
// COMMANDS
// =============================================================================

func lastNote(m *Model) string {
	return m.Conversation().GetLastMessage().Content
}

func TestCommands(t *testing.T) {
	m := newTestModel(&fakeBackend{}, nil)
	m.models = (&fakeBackend{}).ListModels(context.Background())

	m.runCommand(Command{Name: "temp", Args: "0.3"})
	assert.InDelta(t, 0.3, m.Conversation().Temperature, 1e-9)
	m.runCommand(Command{Name: "temp", Args: "5"})
	assert.Contains(t, lastNote(m), "between 0 and 2")
	assert.InDelta(t, 0.3, m.Conversation().Temperature, 1e-9)

	m.runCommand(Command{Name: "system", Args: "Be terse."})
	assert.Equal(t, "Be terse.", m.Conversation().SystemPrompt)

	m.runCommand(Command{Name: "model", Args: "2"})
	assert.Equal(t, "qwen/qwen3-8b", m.Conversation().Model)
	m.runCommand(Command{Name: "model", Args: "gemma"})
	assert.Equal(t, "google/gemma-3-12b", m.Conversation().Model)
	m.runCommand(Command{Name: "model", Args: "9"})
	assert.Contains(t, lastNote(m), "out of range")

	m.runCommand(Command{Name: "save"})
	assert.Contains(t, lastNote(m), "History is disabled")

	m.runCommand(Command{Name: "copy"})
	assert.Equal(t, "Nothing to copy yet.", lastNote(m))

	m.runCommand(Command{Name: "bogus"})
	assert.Contains(t, lastNote(m), "Unknown command /bogus")

	m.runCommand(Command{Name: "help"})
	assert.Contains(t, lastNote(m), "/system [text]")

	oldID := m.Conversation().ID
	m.runCommand(Command{Name: "clear"})
	assert.NotEqual(t, oldID, m.Conversation().ID)
	assert.Equal(t, "google/gemma-3-12b", m.Conversation().Model)
	assert.Equal(t, "Be terse.", m.Conversation().SystemPrompt)

	cmd := m.runCommand(Command{Name: "quit"})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestCopyMissingCodeBlock(t *testing.T) {
	m := newTestModel(&fakeBackend{fragments: []string{"no code here"}}, nil)
	m.send("hi")
	drive(t, m)

	m.runCommand(Command{Name: "copy", Args: "2"})
	assert.Contains(t, lastNote(m), "has 0")
}

func TestModelsCommandListsModels(t *testing.T) {
	m := newTestModel(&fakeBackend{}, nil)
	cmd := m.runCommand(Command{Name: "models"})
	require.NotNil(t, cmd)
	m.Update(cmd())
	assert.Len(t, m.models, 2)
	assert.Contains(t, lastNote(m), "qwen/qwen3-8b")
	assert.Contains(t, lastNote(m), "*  1. google/gemma-3-12b")
}

func TestManualSave(t *testing.T) {
	store := &fakeStore{}
	m := newTestModel(&fakeBackend{}, store)
	cmd := m.runCommand(Command{Name: "save"})
	require.NotNil(t, cmd)
	m.Update(cmd())
	assert.Equal(t, "Conversation saved.", m.status)
	assert.Len(t, store.saved, 1)
}

// =============================================================================
// CONFIG RELOAD AND VIEW
// =============================================================================

func TestConfigReload(t *testing.T) {
	updates := make(chan *config.Config, 1)
	m := New(Options{Backend: &fakeBackend{}, Config: testConfig(), ConfigUpdates: updates})

	next := testConfig()
	next.Chat.DefaultModel = "qwen/qwen3-8b"
	next.Chat.Temperature = 0.1
	updates <- next

	msg := m.waitForConfig()()
	_, cmd := m.Update(msg)
	assert.NotNil(t, cmd, "watcher should be re-armed")
	assert.Equal(t, "qwen/qwen3-8b", m.Conversation().Model)
	assert.InDelta(t, 0.1, m.Conversation().Temperature, 1e-9)
	assert.Equal(t, "Configuration reloaded.", m.status)
}

func TestViewShowsTranscriptAndStatus(t *testing.T) {
	m := newTestModel(&fakeBackend{fragments: []string{"Hello"}}, nil)
	m.Update(pingMsg{})

	view := m.View()
	assert.Contains(t, view, "chat-ui")
	assert.Contains(t, view, "online")
	assert.Contains(t, view, "google/gemma-3-12b")

	m.send("hi")
	drive(t, m)
	view = m.View()
	assert.Contains(t, view, "You")
	assert.Contains(t, view, "Hello")
	assert.True(t, strings.Contains(view, "fragments"), "stats should be shown")
}

func TestFuzzyMatch(t *testing.T) {
	_, ok := fuzzyMatch("hlp", "help")
	assert.True(t, ok)
	_, ok = fuzzyMatch("xyz", "save")
	assert.False(t, ok)

	start, _ := fuzzyMatch("sa", "save")
	middle, _ := fuzzyMatch("sa", "tsar")
	assert.Greater(t, start, middle)

	assert.Equal(t, []string{"gemma", "gemini-pro"}, fuzzyFilter("gem", []string{"qwen", "gemma", "gemini-pro"}))
}

func TestComplete(t *testing.T) {
	models := []string{"qwen2.5-7b-instruct", "google/gemma-3-12b"}
	tests := []struct {
		name       string
		input      string
		want       string
		wantOthers []string
	}{
		{"command prefix", "/mo", "/model ", []string{"models"}},
		{"exact command", "/model", "/model ", nil},
		{"fuzzy command", "/hlp", "/help ", nil},
		{"model argument", "/model gem", "/model google/gemma-3-12b", nil},
		{"no match", "/zz", "/zz", nil},
		{"plain text", "hello", "hello", nil},
		{"literal slash", "//etc", "//etc", nil},
		{"other command arguments", "/temp 0", "/temp 0", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, others := complete(tt.input, models)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOthers, others)
		})
	}
}

func TestTabCompletesInput(t *testing.T) {
	m := newTestModel(&fakeBackend{}, nil)
	m.input.SetValue("/sa")
	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, "/save ", m.input.Value())
}
