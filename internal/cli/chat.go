// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive line-mode chat.
//
// Command: chat
// Short:   Start an interactive chat session
// Aliases: repl
//
// Examples:
//   chat-ui chat                      Start interactive chat (default model)
//   chat-ui chat --model qwen2.5-7b   Use a specific model
//   chat-ui chat --search             Ground every reply with a web search
//
// Interactive Commands (during chat):
//   /help               Show available commands
//   /clear              Start a new conversation
//   /model [id|n]       Show or switch model
//   /models             List models
//   /search [query]     Search now for the next message, or toggle auto search
//   /temp [t]           Show or set the temperature
//   /system [text]      Set or clear the system prompt
//   /save               Save the conversation
//   /history            List saved conversations
//   /quit               Exit chat
//   Ctrl+C              Cancel current generation (exit when idle)
//   Ctrl+D              Exit chat
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/devkabir/chat-ui/internal/config"
	"github.com/devkabir/chat-ui/internal/model"
	"github.com/devkabir/chat-ui/internal/search"
	"github.com/devkabir/chat-ui/internal/storage"
	"github.com/devkabir/chat-ui/internal/ui/chat"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a line editor whose history persists in historyFile.
func NewChatCLI(historyFile string) *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	cli := &ChatCLI{
		line:        line,
		historyFile: historyFile,
	}
	cli.LoadHistory()
	return cli
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		_, _ = c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists command history with 0600 permissions.
func (c *ChatCLI) SaveHistory() error {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = c.line.WriteHistory(f)
	return err
}

// Close saves history and closes the liner.
func (c *ChatCLI) Close() {
	_ = c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// SESSION STATE
// =============================================================================

// replSession holds the state for an interactive chat session. It is
// driven line by line so it can be exercised without a terminal.
type replSession struct {
	app   *App
	conv  *model.Conversation
	store *storage.Store // nil when history is unavailable
	out   io.Writer
	quiet bool

	autoSearch bool
	// groundNext is search context for the next message only.
	groundNext string

	turns int
}

func newREPLSession(app *App, store *storage.Store, quiet bool) *replSession {
	return &replSession{
		app:        app,
		conv:       newConversation(app.Config),
		store:      store,
		out:        app.Stdout,
		quiet:      quiet,
		autoSearch: app.Config.Search.Enabled,
	}
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

// HandleChat runs the interactive REPL until /quit, Ctrl+D, or Ctrl+C at
// the prompt.
func HandleChat(ctx context.Context, app *App, args Args) error {
	store, err := app.OpenStore(ctx)
	switch {
	case errors.Is(err, ErrHistoryDisabled):
		store = nil
	case err != nil:
		app.Log.Warnw("history unavailable", "error", err)
		fmt.Fprintln(app.Stderr, WarningStyle.Render("Warning: conversation history unavailable: "+err.Error()))
		store = nil
	default:
		defer store.Close()
	}

	s := newREPLSession(app, store, args.Quiet)
	if !args.Quiet {
		s.printWelcome()
	}

	historyFile, err := config.HistoryPath()
	if err != nil {
		historyFile = filepath.Join(os.TempDir(), "chat-ui_history")
	}
	input := NewChatCLI(historyFile)
	defer input.Close()

	for {
		line, err := input.ReadInput(PromptStyle.Render("you> "))
		if err != nil {
			// liner.ErrPromptAborted (Ctrl+C) or io.EOF (Ctrl+D)
			fmt.Fprintln(app.Stdout)
			break
		}
		quit, err := s.handleLine(ctx, line)
		if err != nil {
			fmt.Fprintf(app.Stderr, "%s %v\n", ErrorStyle.Render("[Error]"), err)
		}
		if quit {
			break
		}
	}

	if !args.Quiet {
		s.printSummary()
	}
	return nil
}

// handleLine processes one line of input and reports whether to exit.
func (s *replSession) handleLine(ctx context.Context, line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false, nil
	case strings.EqualFold(line, "exit"), strings.EqualFold(line, "quit"):
		return true, nil
	}

	if cmd, ok := chat.ParseCommand(line); ok {
		return s.command(ctx, cmd)
	}
	if strings.HasPrefix(line, "//") {
		line = line[1:]
	}
	return false, s.send(ctx, line)
}

// send streams the reply to a user message.
func (s *replSession) send(ctx context.Context, text string) error {
	s.conv.AddUserMessage(text)

	extra := s.groundNext
	s.groundNext = ""
	t := turn{
		app:       s.app,
		out:       s.out,
		extra:     extra,
		search:    s.autoSearch,
		interrupt: true,
		onGrounded: func(resp search.Response) {
			if !s.quiet {
				fmt.Fprintln(s.out, DimStyle.Render(fmt.Sprintf("[searched the web: %d results]", len(resp.Results))))
			}
		},
	}
	res, err := t.run(ctx, s.conv)
	if res.Reply != "" && !strings.HasSuffix(res.Reply, "\n") {
		fmt.Fprintln(s.out)
	}

	if err != nil && GetExitCode(err) != ExitCancelled {
		return err
	}
	if err != nil {
		fmt.Fprintln(s.out, WarningStyle.Render("[Cancelled]"))
	} else if !s.quiet && res.Stats != nil {
		fmt.Fprintln(s.out, DimStyle.Render(res.Stats.Format()))
	}
	s.turns++
	s.save(ctx, false)
	return nil
}

// save persists the conversation; failures are logged, not fatal.
func (s *replSession) save(ctx context.Context, manual bool) {
	if s.store == nil {
		if manual {
			fmt.Fprintln(s.out, "History is disabled.")
		}
		return
	}
	if err := s.store.Save(ctx, s.conv); err != nil {
		s.app.Log.Warnw("saving conversation failed", "id", s.conv.ID, "error", err)
		fmt.Fprintln(s.out, WarningStyle.Render("Could not save conversation: "+err.Error()))
		return
	}
	if manual {
		fmt.Fprintf(s.out, "Saved as %s.\n", shortID(s.conv.ID))
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

var replHelp = [][2]string{
	{"/help", "show this help"},
	{"/clear", "start a new conversation"},
	{"/model [id|n]", "show or switch the model"},
	{"/models", "list available models"},
	{"/search [query]", "search now for the next message, or toggle auto search"},
	{"/temp [t]", "show or set the temperature (0-2)"},
	{"/system [text]", "set or clear the system prompt"},
	{"/save", "save the conversation"},
	{"/history", "list saved conversations"},
	{"/quit", "exit (also Ctrl+D)"},
}

func (s *replSession) command(ctx context.Context, cmd chat.Command) (bool, error) {
	switch cmd.Name {
	case "help", "h", "?":
		for _, h := range replHelp {
			fmt.Fprintf(s.out, "  %-16s %s\n", h[0], h[1])
		}
		fmt.Fprintln(s.out, "\nCtrl+C stops a reply. Start a message with // to send a literal slash.")

	case "clear", "new":
		next := newConversation(s.app.Config)
		next.Model = s.conv.Model
		next.Temperature = s.conv.Temperature
		next.SystemPrompt = s.conv.SystemPrompt
		s.conv = next
		s.groundNext = ""
		fmt.Fprintln(s.out, "Started a new conversation.")

	case "model":
		if cmd.Args == "" {
			fmt.Fprintf(s.out, "Model: %s\n", s.conv.Model)
			break
		}
		id, err := model.ResolveModel(s.app.Client.ListModels(ctx), cmd.Args)
		if err != nil {
			return false, err
		}
		s.conv.Model = id
		fmt.Fprintf(s.out, "Model set to %s.\n", id)

	case "models":
		fmt.Fprintln(s.out, model.FormatModelList(s.app.Client.ListModels(ctx), s.conv.Model))

	case "search":
		if cmd.Args == "" {
			s.autoSearch = !s.autoSearch
			state := "off"
			if s.autoSearch {
				state = "on"
			}
			fmt.Fprintf(s.out, "Automatic web search is %s.\n", state)
			break
		}
		resp := s.app.Searcher().Search(ctx, cmd.Args, s.app.Config.Search.MaxResults)
		fmt.Fprintln(s.out, search.FormatResults(resp))
		if resp.OK() {
			s.groundNext = search.FormatContext(resp)
			fmt.Fprintln(s.out, DimStyle.Render("These results will be sent with your next message."))
		}

	case "temp", "temperature":
		if cmd.Args == "" {
			fmt.Fprintf(s.out, "Temperature: %.2f\n", s.conv.Temperature)
			break
		}
		t, err := strconv.ParseFloat(cmd.Args, 64)
		if err != nil || t < 0 || t > 2 {
			return false, errors.New("temperature must be a number between 0 and 2")
		}
		s.conv.Temperature = t
		fmt.Fprintf(s.out, "Temperature set to %.2f.\n", t)

	case "system":
		s.conv.SystemPrompt = cmd.Args
		if cmd.Args == "" {
			fmt.Fprintln(s.out, "System prompt cleared.")
		} else {
			fmt.Fprintln(s.out, "System prompt set.")
		}

	case "save":
		s.save(ctx, true)

	case "history":
		if s.store == nil {
			fmt.Fprintln(s.out, "History is disabled.")
			break
		}
		metas, err := s.store.List(ctx, 10)
		if err != nil {
			return false, err
		}
		fmt.Fprint(s.out, storage.FormatSessionList(metas))

	case "quit", "exit", "q":
		return true, nil

	default:
		return false, fmt.Errorf("unknown command /%s, type /help for a list", cmd.Name)
	}
	return false, nil
}

// =============================================================================
// BANNERS
// =============================================================================

func (s *replSession) printWelcome() {
	fmt.Fprintln(s.out, TitleStyle.Render("chat-ui")+" "+DimStyle.Render(Version))
	fmt.Fprintf(s.out, "Model: %s  Server: %s\n", s.conv.Model, s.app.Client.BaseURL())
	fmt.Fprintln(s.out, DimStyle.Render("Type /help for commands, Ctrl+D to exit."))
	fmt.Fprintln(s.out)
}

func (s *replSession) printSummary() {
	if s.turns == 0 {
		return
	}
	fmt.Fprintf(s.out, "%d replies this session.", s.turns)
	if s.store != nil {
		fmt.Fprintf(s.out, " Saved as %s.", shortID(s.conv.ID))
	}
	fmt.Fprintln(s.out)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
