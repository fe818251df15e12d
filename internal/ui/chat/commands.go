// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/devkabir/chat-ui/internal/model"
	"github.com/devkabir/chat-ui/internal/render"
	"github.com/devkabir/chat-ui/internal/util"
)

// =============================================================================
// COMMAND PARSING
// =============================================================================

// Command is a parsed slash command.
type Command struct {
	Name string // lower case, without the slash
	Args string // rest of the line, trimmed
}

// ParseCommand splits "/name args". ok is false for input that is not a
// command, including a lone "/" and "//escaped" text.
func ParseCommand(input string) (cmd Command, ok bool) {
	input = strings.TrimSpace(input)
	if len(input) < 2 || input[0] != '/' || input[1] == '/' || input[1] == ' ' {
		return Command{}, false
	}
	name, args, _ := strings.Cut(input[1:], " ")
	return Command{Name: strings.ToLower(name), Args: strings.TrimSpace(args)}, true
}

// commandHelp lists the slash commands in display order.
var commandHelp = [][2]string{
	{"/help", "show this help"},
	{"/clear", "start a new conversation"},
	{"/model [id|n]", "show or switch the model"},
	{"/models", "list available models"},
	{"/search [query]", "search the web for the next reply, or toggle auto search"},
	{"/copy [n]", "copy the last reply, or its n-th code block"},
	{"/save", "save the conversation to history"},
	{"/temp <t>", "set the temperature (0-2)"},
	{"/system [text]", "set or clear the system prompt"},
	{"/quit", "exit"},
}

func helpText(keys KeyMap) string {
	var sb strings.Builder
	sb.WriteString("Commands:\n")
	for _, c := range commandHelp {
		fmt.Fprintf(&sb, "  %-16s %s\n", c[0], c[1])
	}
	sb.WriteString("\nKeys:\n")
	for _, group := range keys.FullHelp() {
		sb.WriteString("  " + helpLine(group) + "\n")
	}
	sb.WriteString("\nStart a message with // to send a literal slash.")
	return sb.String()
}

// =============================================================================
// COMMAND HANDLING
// =============================================================================

// runCommand executes a slash command. Results show up as local notes.
func (m *Model) runCommand(cmd Command) tea.Cmd {
	switch cmd.Name {
	case "help", "h", "?":
		m.note(helpText(m.keys))

	case "clear", "new":
		m.newConversation()
		m.note("Started a new conversation.")

	case "model":
		return m.cmdModel(cmd.Args)

	case "models":
		return m.fetchModels(true)

	case "search":
		return m.cmdSearch(cmd.Args)

	case "copy":
		m.cmdCopy(cmd.Args)

	case "save":
		if m.store == nil {
			m.note("History is disabled (storage.enabled = false).")
			return nil
		}
		return m.save(true)

	case "temp", "temperature":
		m.cmdTemp(cmd.Args)

	case "system":
		m.conv.SystemPrompt = cmd.Args
		if cmd.Args == "" {
			m.note("System prompt cleared.")
		} else {
			m.note("System prompt set.")
		}

	case "quit", "exit", "q":
		m.quitting = true
		return tea.Quit

	default:
		m.note(fmt.Sprintf("Unknown command /%s. Type /help for a list.", cmd.Name))
	}
	return nil
}

func (m *Model) cmdModel(arg string) tea.Cmd {
	if arg == "" {
		m.note("Current model: " + m.conv.Model)
		return nil
	}
	id, err := model.ResolveModel(m.models, arg)
	if err != nil {
		m.note(err.Error())
		return nil
	}
	m.conv.Model = id
	m.note("Switched to " + id + ".")
	return nil
}

func (m *Model) cmdSearch(query string) tea.Cmd {
	if m.searcher == nil {
		m.note("Search is not available.")
		return nil
	}
	if query == "" {
		m.autoSearch = !m.autoSearch
		if m.autoSearch {
			m.note("Auto search on: every message is grounded with web results.")
		} else {
			m.note("Auto search off.")
		}
		return nil
	}

	m.status = "Searching..."
	searcher, max := m.searcher, m.cfg.Search.MaxResults
	ctx := m.ctx
	return func() tea.Msg {
		return searchMsg{resp: searcher.Search(ctx, query, max)}
	}
}

func (m *Model) cmdCopy(arg string) {
	reply := m.conv.GetLastAssistantMessage()
	if reply == nil || reply.IsEmpty() {
		m.note("Nothing to copy yet.")
		return
	}
	text := reply.GetDisplayContent()
	what := "reply"

	if arg != "" {
		n, err := strconv.Atoi(arg)
		blocks := render.CodeBlocks(text)
		if err != nil || n < 1 || n > len(blocks) {
			m.note(fmt.Sprintf("No code block %q in the last reply (it has %d).", arg, len(blocks)))
			return
		}
		text = blocks[n-1].Code
		what = fmt.Sprintf("code block %d (%s)", n, blocks[n-1].Language)
	}

	if err := render.Copy(text); err != nil {
		m.note("Copy failed: " + err.Error())
		return
	}
	m.note(fmt.Sprintf("Copied %s to the clipboard (%d chars).", what, util.RuneLen(text)))
}

func (m *Model) cmdTemp(arg string) {
	if arg == "" {
		m.note(fmt.Sprintf("Temperature: %.2f", m.conv.Temperature))
		return
	}
	t, err := strconv.ParseFloat(arg, 64)
	if err != nil || t < 0 || t > 2 {
		m.note("Temperature must be a number between 0 and 2.")
		return
	}
	m.conv.Temperature = t
	m.note(fmt.Sprintf("Temperature set to %.2f.", t))
}

// fetchModels loads the model list in the background. show controls
// whether the list is printed when it arrives.
func (m *Model) fetchModels(show bool) tea.Cmd {
	backend, ctx := m.backend, m.ctx
	return func() tea.Msg {
		return modelsMsg{models: backend.ListModels(ctx), show: show}
	}
}

func (m *Model) ping() tea.Cmd {
	backend, ctx := m.backend, m.ctx
	return func() tea.Msg {
		return pingMsg{err: backend.Ping(ctx)}
	}
}

// save persists a snapshot of the conversation.
func (m *Model) save(manual bool) tea.Cmd {
	if m.store == nil || (m.conv.IsEmpty() && !manual) {
		return nil
	}
	store, snapshot, ctx := m.store, m.conv.Clone(), m.ctx
	return func() tea.Msg {
		return savedMsg{err: store.Save(ctx, snapshot), manual: manual}
	}
}

// Saver persists conversations. *storage.Store satisfies it.
type Saver interface {
	Save(ctx context.Context, conv *model.Conversation) error
}
