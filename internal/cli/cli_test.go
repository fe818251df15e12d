// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devkabir/chat-ui/internal/config"
	"github.com/devkabir/chat-ui/internal/llm"
	"github.com/devkabir/chat-ui/internal/logging"
	"github.com/devkabir/chat-ui/internal/model"
	"github.com/devkabir/chat-ui/internal/search"
	"github.com/devkabir/chat-ui/internal/storage"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// fakeServer is a minimal OpenAI-compatible server.
type fakeServer struct {
	mu        sync.Mutex
	fragments []string
	reply     string // non-streaming reply
	status    int
	requests  []llm.ChatRequest
	// afterFirst runs after the first fragment is flushed; when set the
	// handler then waits for the client to go away.
	afterFirst func()
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/v1/models":
		fmt.Fprint(w, `{"object":"list","data":[{"id":"alpha","object":"model"},{"id":"beta","object":"model"}]}`)
		return
	case "/v1/chat/completions":
	default:
		http.NotFound(w, r)
		return
	}

	var req llm.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.status != 0 {
		w.WriteHeader(f.status)
		fmt.Fprint(w, `{"error":{"message":"model not loaded"}}`)
		return
	}
	if !req.Stream {
		payload, _ := json.Marshal(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": f.reply}}},
		})
		w.Write(payload)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	flusher := w.(http.Flusher)
	for i, fragment := range f.fragments {
		payload, _ := json.Marshal(map[string]any{
			"choices": []any{map[string]any{"delta": map[string]any{"content": fragment}}},
		})
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
		if i == 0 && f.afterFirst != nil {
			f.afterFirst()
			<-r.Context().Done()
			return
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func (f *fakeServer) lastRequest(t *testing.T) llm.ChatRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func startServer(t *testing.T, f *fakeServer) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return srv
}

func testApp(t *testing.T, baseURL string) (*App, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Server.BaseURL = baseURL
	cfg.Search.Enabled = false
	cfg.UI.RenderMarkdown = false
	cfg.Storage.Path = filepath.Join(dir, "history.db")

	app := NewApp(cfg, logging.Nop())
	var stdout, stderr bytes.Buffer
	app.Stdout = &stdout
	app.Stderr = &stderr
	app.Stdin = strings.NewReader("")
	app.TTY = false
	app.StdinTTY = true
	app.ConfigPath = filepath.Join(dir, "config.toml")
	return app, &stdout, &stderr
}

type stubSearcher struct {
	results []search.Result
	err     string
	queries []string
}

func (s *stubSearcher) Search(ctx context.Context, query string, maxResults int) search.Response {
	s.queries = append(s.queries, query)
	return search.Response{Query: query, Results: s.results, Error: s.err, Timestamp: time.Now()}
}

func hasSystemContext(req llm.ChatRequest) bool {
	for _, m := range req.Messages {
		if m.Role == llm.RoleSystem && strings.Contains(m.Content, "Web search results for") {
			return true
		}
	}
	return false
}

// =============================================================================
// PARSING
// =============================================================================

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name     string
		argv     []string
		wantCmd  Command
		validate func(*testing.T, Args)
	}{
		{
			name:    "no args starts the TUI",
			argv:    nil,
			wantCmd: CmdTUI,
		},
		{
			name:    "ask joins the question",
			argv:    []string{"ask", "what", "is", "Go?"},
			wantCmd: CmdAsk,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "what is Go?", a.Query)
			},
		},
		{
			name:    "global flags anywhere",
			argv:    []string{"ask", "-m", "qwen", "hello", "--no-stream", "-q"},
			wantCmd: CmdAsk,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "qwen", a.Model)
				assert.Equal(t, "hello", a.Query)
				assert.True(t, a.NoStream)
				assert.True(t, a.Quiet)
			},
		},
		{
			name:    "flag=value forms",
			argv:    []string{"--model=gemma", "--temperature=0.3", "--url=http://box:1234", "chat"},
			wantCmd: CmdChat,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "gemma", a.Model)
				assert.True(t, a.TemperatureSet)
				assert.InDelta(t, 0.3, a.Temperature, 1e-9)
				assert.Equal(t, "http://box:1234", a.URL)
			},
		},
		{
			name:    "zero temperature is explicit",
			argv:    []string{"-t", "0", "ask", "x"},
			wantCmd: CmdAsk,
			validate: func(t *testing.T, a Args) {
				assert.True(t, a.TemperatureSet)
				assert.Zero(t, a.Temperature)
			},
		},
		{
			name:    "double dash stops flag parsing",
			argv:    []string{"ask", "--", "-v", "means", "verbose"},
			wantCmd: CmdAsk,
			validate: func(t *testing.T, a Args) {
				assert.False(t, a.Verbose)
				assert.Equal(t, "-v means verbose", a.Query)
			},
		},
		{
			name:    "bad temperature",
			argv:    []string{"--temperature", "hot", "ask", "x"},
			wantCmd: CmdHelp,
			validate: func(t *testing.T, a Args) {
				require.Error(t, a.Err)
				assert.Equal(t, ExitUsageError, GetExitCode(a.Err))
			},
		},
		{
			name:    "missing flag value",
			argv:    []string{"chat", "--model"},
			wantCmd: CmdHelp,
			validate: func(t *testing.T, a Args) {
				assert.ErrorContains(t, a.Err, "--model needs a value")
			},
		},
		{
			name:    "unknown command suggests",
			argv:    []string{"hsitory"},
			wantCmd: CmdHelp,
			validate: func(t *testing.T, a Args) {
				assert.ErrorContains(t, a.Err, `did you mean "history"`)
			},
		},
		{
			name:    "history defaults to list",
			argv:    []string{"history"},
			wantCmd: CmdHistory,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "list", a.Subcommand)
				assert.Equal(t, 20, a.Limit)
			},
		},
		{
			name:    "history export flags",
			argv:    []string{"history", "export", "3", "--format", "JSON", "-o", "out.json"},
			wantCmd: CmdHistory,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "export", a.Subcommand)
				assert.Equal(t, "3", a.Target)
				assert.Equal(t, "json", a.Format)
				assert.Equal(t, "out.json", a.Output)
			},
		},
		{
			name:    "history search query",
			argv:    []string{"history", "search", "sqlite", "pragmas"},
			wantCmd: CmdHistory,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "sqlite pragmas", a.Query)
			},
		},
		{
			name:    "history clear confirm",
			argv:    []string{"history", "clear", "--confirm"},
			wantCmd: CmdHistory,
			validate: func(t *testing.T, a Args) {
				assert.True(t, a.Confirm)
			},
		},
		{
			name:    "history resume opens the TUI",
			argv:    []string{"history", "resume", "2"},
			wantCmd: CmdTUI,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "2", a.Target)
			},
		},
		{
			name:    "tui resume flag",
			argv:    []string{"tui", "--resume", "abc123"},
			wantCmd: CmdTUI,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "abc123", a.Target)
			},
		},
		{
			name:    "config set keeps spaces in the value",
			argv:    []string{"config", "set", "chat.system_prompt", "be", "brief"},
			wantCmd: CmdConfig,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "set", a.Subcommand)
				assert.Equal(t, "chat.system_prompt", a.ConfigKey)
				assert.Equal(t, "be brief", a.ConfigVal)
			},
		},
		{
			name:    "config defaults to show",
			argv:    []string{"config", "--json"},
			wantCmd: CmdConfig,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "show", a.Subcommand)
				assert.True(t, a.JSON)
			},
		},
		{
			name:    "search limit",
			argv:    []string{"search", "go", "generics", "--limit", "3"},
			wantCmd: CmdSearch,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "go generics", a.Query)
				assert.Equal(t, 3, a.Limit)
			},
		},
		{name: "version", argv: []string{"version"}, wantCmd: CmdVersion},
		{name: "help flag", argv: []string{"--help"}, wantCmd: CmdHelp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args := ParseArgs(tt.argv)
			assert.Equal(t, tt.wantCmd, cmd, "command")
			if tt.validate != nil {
				tt.validate(t, args)
			} else {
				assert.NoError(t, args.Err)
			}
		})
	}
}

func TestArgParser(t *testing.T) {
	p := NewArgParser([]string{"export", "3", "--format=json", "--limit", "x", "--confirm", "-"})
	assert.Equal(t, "export", p.Subcommand())
	assert.Equal(t, "3", p.Positional(1))
	assert.Equal(t, "-", p.Positional(2))
	assert.Equal(t, "", p.Positional(9))
	assert.Equal(t, "json", p.Flag("format"))
	assert.Equal(t, "json", p.Flag("--format"))
	assert.Equal(t, 7, p.FlagIntOrDefault("limit", 7), "non-numeric falls back")
	assert.True(t, p.BoolFlag("confirm"))
	assert.False(t, p.BoolFlag("json"))
	assert.Equal(t, []string{"3", "-"}, p.PositionalFrom(1))
	assert.Nil(t, p.PositionalFrom(5))
}

func TestSuggestCommand(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"hlep", "help"},
		{"modles", "models"},
		{"serach", "search"},
		{"chta", "chat"},
		{"ask", ""},
		{"x", ""},
		{"kubernetes", ""},
		{"hélp", "help"},
		{"ÅSK", "ask"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, SuggestCommand(tt.input))
		})
	}
	assert.Equal(t, 3, levenshteinDistance("kitten", "sitting"))
	assert.Equal(t, 4, levenshteinDistance("", "chat"))
	assert.Equal(t, 1, levenshteinDistance("café", "cafe"))
}

// =============================================================================
// ERRORS
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"usage", NewUsageError("bad"), ExitUsageError},
		{"wrapped usage", NewCommandError("history", "clear", NewUsageError("bad")), ExitUsageError},
		{"cancelled", &llm.CancelledError{Err: context.Canceled}, ExitCancelled},
		{"context canceled", fmt.Errorf("x: %w", context.Canceled), ExitCancelled},
		{"transport", &llm.TransportError{Op: "stream", StatusCode: 500}, ExitGeneralError},
		{"other", errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestReport(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := report(&stdout, &stderr, errors.New("server unreachable"), CmdAsk, Args{})
		assert.Equal(t, ExitGeneralError, code)
		assert.Equal(t, "Error: server unreachable\n", stderr.String())
		assert.Empty(t, stdout.String())
	})

	t.Run("usage adds a hint", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := report(&stdout, &stderr, NewUsageError("unknown command"), CmdHelp, Args{})
		assert.Equal(t, ExitUsageError, code)
		assert.Contains(t, stderr.String(), "chat-ui help")
	})

	t.Run("cancel is quiet", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := report(&stdout, &stderr, &llm.CancelledError{Err: context.Canceled}, CmdAsk, Args{})
		assert.Equal(t, ExitCancelled, code)
		assert.Empty(t, stderr.String())
	})

	t.Run("json", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := report(&stdout, &stderr, errors.New("boom"), CmdModels, Args{JSON: true})
		assert.Equal(t, ExitGeneralError, code)
		var resp JSONResponse
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
		assert.False(t, resp.Success)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "boom", *resp.Error)
		assert.Equal(t, "models", resp.Command)
	})

	t.Run("success", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		assert.Equal(t, ExitSuccess, report(&stdout, &stderr, nil, CmdAsk, Args{}))
		assert.Empty(t, stderr.String())
	})
}

func TestApplyFlags(t *testing.T) {
	cfg := config.Default()
	err := ApplyFlags(cfg, Args{Model: "m2", Temperature: 0, TemperatureSet: true, URL: "http://gpu:8080", NoStream: true, NoSearch: true})
	require.NoError(t, err)
	assert.Equal(t, "m2", cfg.Chat.DefaultModel)
	assert.Zero(t, cfg.Chat.Temperature)
	assert.Equal(t, "http://gpu:8080", cfg.Server.BaseURL)
	assert.False(t, cfg.Chat.Stream)
	assert.False(t, cfg.Search.Enabled)

	err = ApplyFlags(config.Default(), Args{URL: "ftp://nope"})
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

// =============================================================================
// ASK
// =============================================================================

func TestHandleAsk_Streams(t *testing.T) {
	f := &fakeServer{fragments: []string{"Hel", "lo"}}
	srv := startServer(t, f)
	app, stdout, stderr := testApp(t, srv.URL)
	app.Config.Chat.Temperature = 0.2

	err := HandleAsk(context.Background(), app, Args{Query: "say hello"})
	require.NoError(t, err)
	assert.Equal(t, "Hello\n", stdout.String())
	assert.Empty(t, stderr.String())

	req := f.lastRequest(t)
	assert.True(t, req.Stream)
	assert.Equal(t, llm.DefaultModel, req.Model)
	assert.InDelta(t, 0.2, req.Temperature, 1e-9)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "say hello"}, req.Messages[0])
}

func TestHandleAsk_SystemPromptAndStdin(t *testing.T) {
	f := &fakeServer{fragments: []string{"ok"}}
	srv := startServer(t, f)
	app, stdout, _ := testApp(t, srv.URL)
	app.Config.Chat.SystemPrompt = "Be terse."
	app.Stdin = strings.NewReader("  question from a pipe \n")

	require.NoError(t, HandleAsk(context.Background(), app, Args{Query: "-"}))
	assert.Equal(t, "ok\n", stdout.String())

	req := f.lastRequest(t)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "question from a pipe", req.Messages[1].Content)
}

func TestHandleAsk_EmptyQuestion(t *testing.T) {
	app, _, _ := testApp(t, "http://127.0.0.1:1")
	err := HandleAsk(context.Background(), app, Args{})
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

func TestHandleAsk_NonStreaming(t *testing.T) {
	f := &fakeServer{reply: "all at once"}
	srv := startServer(t, f)
	app, stdout, _ := testApp(t, srv.URL)
	app.Config.Chat.Stream = false

	require.NoError(t, HandleAsk(context.Background(), app, Args{Query: "hi"}))
	assert.Equal(t, "all at once\n", stdout.String())
	assert.False(t, f.lastRequest(t).Stream)
}

func TestHandleAsk_JSON(t *testing.T) {
	f := &fakeServer{fragments: []string{"4"}}
	srv := startServer(t, f)
	app, stdout, _ := testApp(t, srv.URL)

	require.NoError(t, HandleAsk(context.Background(), app, Args{Query: "2+2", JSON: true}))

	var resp struct {
		Success bool    `json:"success"`
		Data    AskData `json:"data"`
		Command string  `json:"command"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "ask", resp.Command)
	assert.Equal(t, "4", resp.Data.Response)
	assert.Equal(t, "2+2", resp.Data.Query)
	require.NotNil(t, resp.Data.Stats)
	assert.Equal(t, 1, resp.Data.Stats.Fragments)
}

func TestHandleAsk_ServerError(t *testing.T) {
	f := &fakeServer{status: http.StatusServiceUnavailable}
	srv := startServer(t, f)
	app, stdout, _ := testApp(t, srv.URL)

	err := HandleAsk(context.Background(), app, Args{Query: "hi"})
	require.Error(t, err)
	assert.True(t, llm.IsTransport(err))
	assert.Equal(t, ExitGeneralError, GetExitCode(err))
	assert.Empty(t, stdout.String())
}

func TestHandleAsk_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := &fakeServer{fragments: []string{"partial", "never"}, afterFirst: cancel}
	srv := startServer(t, f)
	app, _, stderr := testApp(t, srv.URL)

	err := HandleAsk(ctx, app, Args{Query: "long story"})
	require.Error(t, err)
	assert.Equal(t, ExitCancelled, GetExitCode(err))
	assert.Contains(t, stderr.String(), "[Cancelled]")
}

func TestHandleAsk_SearchGrounding(t *testing.T) {
	f := &fakeServer{fragments: []string{"grounded"}}
	srv := startServer(t, f)
	app, stdout, stderr := testApp(t, srv.URL)
	app.Config.Search.Enabled = true
	stub := &stubSearcher{results: []search.Result{{Title: "Go 1.24", Snippet: "released", URL: "https://go.dev", Type: search.TypeSearch}}}
	app.SetSearcher(stub)

	require.NoError(t, HandleAsk(context.Background(), app, Args{Query: "latest Go?"}))
	assert.Equal(t, "grounded\n", stdout.String())
	assert.Equal(t, []string{"latest Go?"}, stub.queries)
	assert.Contains(t, stderr.String(), "[searched the web: 1 results]")
	assert.True(t, hasSystemContext(f.lastRequest(t)))
}

func TestHandleAsk_SearchFailureIsNotFatal(t *testing.T) {
	f := &fakeServer{fragments: []string{"anyway"}}
	srv := startServer(t, f)
	app, stdout, _ := testApp(t, srv.URL)
	app.Config.Search.Enabled = true
	app.SetSearcher(&stubSearcher{err: "rate limited: slow down"})

	require.NoError(t, HandleAsk(context.Background(), app, Args{Query: "q"}))
	assert.Equal(t, "anyway\n", stdout.String())
	assert.False(t, hasSystemContext(f.lastRequest(t)))
}

// =============================================================================
// MODELS AND SEARCH
// =============================================================================

func TestHandleModels(t *testing.T) {
	srv := startServer(t, &fakeServer{})
	app, stdout, stderr := testApp(t, srv.URL)
	app.Config.Chat.DefaultModel = "beta"

	require.NoError(t, HandleModels(context.Background(), app, Args{}))
	assert.Contains(t, stdout.String(), "1. alpha")
	assert.Contains(t, stdout.String(), "* ")
	assert.Contains(t, stdout.String(), "2. beta")
	assert.Empty(t, stderr.String())
}

func TestHandleModels_Fallback(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	app, stdout, stderr := testApp(t, srv.URL)

	require.NoError(t, HandleModels(context.Background(), app, Args{}))
	assert.Contains(t, stdout.String(), llm.DefaultModel)
	assert.Contains(t, stderr.String(), "Could not reach")
}

func TestHandleModels_JSON(t *testing.T) {
	srv := startServer(t, &fakeServer{})
	app, stdout, _ := testApp(t, srv.URL)

	require.NoError(t, HandleModels(context.Background(), app, Args{JSON: true}))
	var resp struct {
		Data ModelsData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
	assert.False(t, resp.Data.Fallback)
	require.Len(t, resp.Data.Models, 2)
	assert.Equal(t, "alpha", resp.Data.Models[0].ID)
}

func TestHandleSearch(t *testing.T) {
	app, stdout, _ := testApp(t, "http://127.0.0.1:1")
	stub := &stubSearcher{results: []search.Result{{Title: "SQLite", Snippet: "embedded db", URL: "https://sqlite.org", Type: search.TypeAbstract}}}
	app.SetSearcher(stub)

	require.NoError(t, HandleSearch(context.Background(), app, Args{Query: "sqlite"}))
	assert.Contains(t, stdout.String(), "SQLite")
	assert.Contains(t, stdout.String(), "https://sqlite.org")

	app.SetSearcher(&stubSearcher{err: "network down"})
	err := HandleSearch(context.Background(), app, Args{Query: "sqlite"})
	assert.ErrorContains(t, err, "network down")

	err = HandleSearch(context.Background(), app, Args{})
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

// =============================================================================
// HISTORY
// =============================================================================

func seedHistory(t *testing.T, app *App) (older, newer *model.Conversation) {
	t.Helper()
	ctx := context.Background()
	store, err := app.OpenStore(ctx)
	require.NoError(t, err)
	defer store.Close()

	older = model.NewConversationWithModel("alpha")
	older.AddUserMessage("How do pragmas work?")
	older.AddAssistantMessage()
	older.AppendToLast("They configure SQLite.")
	older.FinalizeLast(nil)
	older.SetTitle("Older chat")
	older.UpdatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, store.Save(ctx, older))

	newer = model.NewConversationWithModel("beta")
	newer.AddUserMessage("Explain channels")
	newer.SetTitle("Newer chat")
	newer.UpdatedAt = time.Now()
	require.NoError(t, store.Save(ctx, newer))
	return older, newer
}

func TestHandleHistory_ListAndSearch(t *testing.T) {
	app, stdout, _ := testApp(t, "http://127.0.0.1:1")
	seedHistory(t, app)

	require.NoError(t, HandleHistory(context.Background(), app, Args{Subcommand: "list", Limit: 20}))
	out := stdout.String()
	assert.Contains(t, out, "Newer chat")
	assert.Contains(t, out, "Older chat")
	assert.Less(t, strings.Index(out, "Newer chat"), strings.Index(out, "Older chat"))

	stdout.Reset()
	require.NoError(t, HandleHistory(context.Background(), app, Args{Subcommand: "search", Query: "pragmas"}))
	assert.Contains(t, stdout.String(), "Older chat")
	assert.NotContains(t, stdout.String(), "Newer chat")
}

func TestHandleHistory_ShowAndExport(t *testing.T) {
	app, stdout, _ := testApp(t, "http://127.0.0.1:1")
	older, _ := seedHistory(t, app)

	require.NoError(t, HandleHistory(context.Background(), app, Args{Subcommand: "show", Target: "2"}))
	assert.Contains(t, stdout.String(), "# Older chat")
	assert.Contains(t, stdout.String(), "They configure SQLite.")

	out := filepath.Join(t.TempDir(), "chat.json")
	args := Args{Subcommand: "export", Target: older.ID[:8], Format: "json", Output: out, Quiet: true}
	require.NoError(t, HandleHistory(context.Background(), app, args))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var exported model.Conversation
	require.NoError(t, json.Unmarshal(data, &exported))
	assert.Equal(t, older.ID, exported.ID)
	require.Len(t, exported.Messages, 2)

	err = HandleHistory(context.Background(), app, Args{Subcommand: "export", Target: "1", Format: "pdf"})
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

func TestHandleHistory_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	app, stdout, _ := testApp(t, "http://127.0.0.1:1")
	_, newer := seedHistory(t, app)

	require.NoError(t, HandleHistory(ctx, app, Args{Subcommand: "delete", Target: "1"}))
	assert.Contains(t, stdout.String(), "Deleted "+newer.ID[:8])

	err := HandleHistory(ctx, app, Args{Subcommand: "show", Target: newer.ID})
	assert.ErrorIs(t, err, storage.ErrConversationNotFound)

	err = HandleHistory(ctx, app, Args{Subcommand: "clear"})
	assert.Equal(t, ExitUsageError, GetExitCode(err))

	stdout.Reset()
	require.NoError(t, HandleHistory(ctx, app, Args{Subcommand: "clear", Confirm: true}))
	assert.Contains(t, stdout.String(), "Deleted 1 conversations.")

	stdout.Reset()
	require.NoError(t, HandleHistory(ctx, app, Args{Subcommand: "list", Limit: 20}))
	assert.Contains(t, stdout.String(), "No conversations found.")
}

func TestHandleHistory_Disabled(t *testing.T) {
	app, _, _ := testApp(t, "http://127.0.0.1:1")
	app.Config.Storage.Enabled = false
	err := HandleHistory(context.Background(), app, Args{Subcommand: "list"})
	assert.ErrorIs(t, err, ErrHistoryDisabled)
}

func TestLoadConversation(t *testing.T) {
	app, _, _ := testApp(t, "http://127.0.0.1:1")
	_, newer := seedHistory(t, app)

	conv, err := LoadConversation(context.Background(), app, "1")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, conv.ID)

	_, err = LoadConversation(context.Background(), app, "zzzz")
	assert.ErrorContains(t, err, `no saved conversation matches "zzzz"`)
}

// =============================================================================
// CONFIG
// =============================================================================

func TestHandleConfig_SetAndGet(t *testing.T) {
	app, stdout, _ := testApp(t, "http://127.0.0.1:1")

	require.NoError(t, HandleConfig(app, Args{Subcommand: "set", ConfigKey: "chat.temperature", ConfigVal: "0.2"}))
	assert.Equal(t, "chat.temperature = 0.2\n", stdout.String())

	cfg, err := config.LoadFromPath(app.ConfigPath)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, cfg.Chat.Temperature, 1e-9)

	info, err := os.Stat(app.ConfigPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	require.NoError(t, HandleConfig(app, Args{Subcommand: "set", ConfigKey: "server.api_key", ConfigVal: "sk-secret", Quiet: true}))
	app.Config, err = config.LoadFromPath(app.ConfigPath)
	require.NoError(t, err)

	stdout.Reset()
	require.NoError(t, HandleConfig(app, Args{Subcommand: "get", ConfigKey: "server.api_key"}))
	assert.Equal(t, "[REDACTED]\n", stdout.String())
}

func TestHandleConfig_Errors(t *testing.T) {
	app, _, _ := testApp(t, "http://127.0.0.1:1")

	err := HandleConfig(app, Args{Subcommand: "set", ConfigKey: "search.provider", ConfigVal: "altavista"})
	require.Error(t, err)
	_, statErr := os.Stat(app.ConfigPath)
	assert.True(t, os.IsNotExist(statErr), "invalid values are not written")

	err = HandleConfig(app, Args{Subcommand: "get", ConfigKey: "nope.nothing"})
	assert.Error(t, err)

	err = HandleConfig(app, Args{Subcommand: "frobnicate"})
	assert.Equal(t, ExitUsageError, GetExitCode(err))

	err = HandleConfig(app, Args{Subcommand: "reset"})
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

func TestHandleConfig_ShowKeysPath(t *testing.T) {
	app, stdout, _ := testApp(t, "http://127.0.0.1:1")
	app.Config.Server.APIKey = "sk-live"

	require.NoError(t, HandleConfig(app, Args{Subcommand: "show"}))
	assert.Contains(t, stdout.String(), "[chat]")
	assert.Contains(t, stdout.String(), "[REDACTED]")
	assert.NotContains(t, stdout.String(), "sk-live")

	stdout.Reset()
	require.NoError(t, HandleConfig(app, Args{Subcommand: "keys"}))
	assert.Contains(t, stdout.String(), "chat.temperature\n")

	stdout.Reset()
	require.NoError(t, HandleConfig(app, Args{Subcommand: "path"}))
	assert.Equal(t, app.ConfigPath+"\n", stdout.String())
}

// =============================================================================
// REPL
// =============================================================================

func newTestSession(t *testing.T, f *fakeServer, withStore bool) (*replSession, *bytes.Buffer, *storage.Store) {
	t.Helper()
	srv := startServer(t, f)
	app, stdout, _ := testApp(t, srv.URL)
	var store *storage.Store
	if withStore {
		var err error
		store, err = app.OpenStore(context.Background())
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
	}
	return newREPLSession(app, store, true), stdout, store
}

func TestREPL_SendStreamsAndSaves(t *testing.T) {
	ctx := context.Background()
	f := &fakeServer{fragments: []string{"Hel", "lo"}}
	s, stdout, store := newTestSession(t, f, true)

	quit, err := s.handleLine(ctx, "hi there")
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Equal(t, "Hello\n", stdout.String())

	saved, err := store.Load(ctx, s.conv.ID)
	require.NoError(t, err)
	require.Len(t, saved.Messages, 2)
	assert.Equal(t, "Hello", saved.Messages[1].Content)

	_, err = s.handleLine(ctx, "again")
	require.NoError(t, err)
	req := f.lastRequest(t)
	require.Len(t, req.Messages, 3, "history is resent")
	assert.Equal(t, "Hello", req.Messages[1].Content)
}

func TestREPL_LiteralSlashAndQuit(t *testing.T) {
	ctx := context.Background()
	f := &fakeServer{fragments: []string{"ok"}}
	s, _, _ := newTestSession(t, f, false)

	_, err := s.handleLine(ctx, "//etc/hosts is a file")
	require.NoError(t, err)
	assert.Equal(t, "/etc/hosts is a file", f.lastRequest(t).Messages[0].Content)

	for _, line := range []string{"/quit", "exit", "QUIT", "/q"} {
		quit, err := s.handleLine(ctx, line)
		require.NoError(t, err)
		assert.True(t, quit, line)
	}
	quit, err := s.handleLine(ctx, "   ")
	require.NoError(t, err)
	assert.False(t, quit)
}

func TestREPL_Commands(t *testing.T) {
	ctx := context.Background()
	s, stdout, _ := newTestSession(t, &fakeServer{fragments: []string{"x"}}, false)

	_, err := s.handleLine(ctx, "/model 2")
	require.NoError(t, err)
	assert.Equal(t, "beta", s.conv.Model)

	_, err = s.handleLine(ctx, "/temp 5")
	assert.ErrorContains(t, err, "between 0 and 2")
	_, err = s.handleLine(ctx, "/temp 0.4")
	require.NoError(t, err)
	assert.InDelta(t, 0.4, s.conv.Temperature, 1e-9)

	_, err = s.handleLine(ctx, "/system answer in French")
	require.NoError(t, err)
	assert.Equal(t, "answer in French", s.conv.SystemPrompt)

	oldID := s.conv.ID
	_, err = s.handleLine(ctx, "/clear")
	require.NoError(t, err)
	assert.NotEqual(t, oldID, s.conv.ID)
	assert.Equal(t, "beta", s.conv.Model, "settings survive /clear")
	assert.Equal(t, "answer in French", s.conv.SystemPrompt)

	stdout.Reset()
	_, err = s.handleLine(ctx, "/models")
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "alpha")

	_, err = s.handleLine(ctx, "/frobnicate")
	assert.ErrorContains(t, err, "unknown command /frobnicate")

	stdout.Reset()
	_, err = s.handleLine(ctx, "/save")
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "History is disabled.")
}

func TestREPL_SearchAttachesToNextMessage(t *testing.T) {
	ctx := context.Background()
	f := &fakeServer{fragments: []string{"ok"}}
	s, stdout, _ := newTestSession(t, f, false)
	s.app.SetSearcher(&stubSearcher{results: []search.Result{{Title: "Go", Snippet: "lang", URL: "https://go.dev"}}})

	_, err := s.handleLine(ctx, "/search go release")
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "https://go.dev")
	assert.NotEmpty(t, s.groundNext)

	_, err = s.handleLine(ctx, "summarize")
	require.NoError(t, err)
	assert.True(t, hasSystemContext(f.lastRequest(t)))
	assert.Empty(t, s.groundNext)

	_, err = s.handleLine(ctx, "and again")
	require.NoError(t, err)
	assert.False(t, hasSystemContext(f.lastRequest(t)), "context is for one message only")

	_, err = s.handleLine(ctx, "/search")
	require.NoError(t, err)
	assert.True(t, s.autoSearch)
}

func TestREPL_TransportErrorKeepsSession(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestSession(t, &fakeServer{status: http.StatusInternalServerError}, false)

	quit, err := s.handleLine(ctx, "hello")
	require.Error(t, err)
	assert.False(t, quit)
	require.Len(t, s.conv.Messages, 1, "the empty reply is dropped")
	assert.Equal(t, model.RoleUser, s.conv.Messages[0].Role)
}
