// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/devkabir/chat-ui/internal/llm"
	"github.com/devkabir/chat-ui/internal/model"
	"github.com/devkabir/chat-ui/internal/search"
)

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case fragmentMsg:
		if m.stream == nil || msg.id != m.stream.id {
			return m, nil
		}
		m.conv.AppendToLast(msg.text)
		m.refresh()
		return m, m.stream.wait()

	case groundedMsg:
		if m.stream == nil || msg.id != m.stream.id {
			return m, nil
		}
		m.insertGroundingNote(msg.resp)
		return m, m.stream.wait()

	case streamDoneMsg:
		if m.stream == nil || msg.id != m.stream.id {
			return m, nil
		}
		return m, m.finishStream(msg)

	case spinner.TickMsg:
		if m.state != StateStreaming {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case pingMsg:
		m.pinged = true
		m.online = msg.err == nil
		if msg.err != nil {
			m.log.Warnw("server unreachable", "error", msg.err)
		}
		return m, nil

	case modelsMsg:
		m.models = msg.models
		if msg.show {
			m.note("Models:\n" + model.FormatModelList(msg.models, m.conv.Model))
		}
		return m, nil

	case searchMsg:
		m.status = ""
		m.note(search.FormatResults(msg.resp))
		if msg.resp.OK() {
			m.groundNext = search.FormatContext(msg.resp)
			m.note("These results will be attached to your next message.")
		}
		return m, nil

	case savedMsg:
		if msg.err != nil {
			m.log.Errorw("saving conversation failed", "id", m.conv.ID, "error", msg.err)
			m.status = "Save failed: " + msg.err.Error()
		} else if msg.manual {
			m.status = "Conversation saved."
		}
		return m, nil

	case configMsg:
		m.applyConfig(msg.cfg)
		return m, m.waitForConfig()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Interrupt):
		if m.state == StateStreaming {
			m.cancelStream()
			return nil
		}
		m.quitting = true
		return tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		if m.state == StateStreaming {
			m.cancelStream()
		}
		return nil

	case key.Matches(msg, m.keys.Submit):
		if m.state == StateStreaming {
			return nil
		}
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return nil
		}
		m.input.Reset()
		return m.submit(text)

	case key.Matches(msg, m.keys.Complete):
		m.completeInput()
		return nil

	case key.Matches(msg, m.keys.Clear):
		if m.state != StateStreaming {
			m.newConversation()
			m.refresh()
		}
		return nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return nil
	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return nil
	case key.Matches(msg, m.keys.Top):
		m.viewport.GotoTop()
		return nil
	case key.Matches(msg, m.keys.Bottom):
		m.viewport.GotoBottom()
		return nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

// completeInput applies Tab completion to the input box.
func (m *Model) completeInput() {
	ids := make([]string, len(m.models))
	for i, info := range m.models {
		ids[i] = info.ID
	}
	value, rest := complete(m.input.Value(), ids)
	if value == m.input.Value() && len(rest) == 0 {
		return
	}
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.status = ""
	if len(rest) > 0 {
		const shown = 4
		if len(rest) > shown {
			rest = append(rest[:shown:shown], "...")
		}
		m.status = "Also: " + strings.Join(rest, ", ")
	}
}

// submit handles one line of input: a slash command or a chat message.
func (m *Model) submit(text string) tea.Cmd {
	if cmd, ok := ParseCommand(text); ok {
		return m.runCommand(cmd)
	}
	if strings.HasPrefix(text, "//") {
		text = text[1:]
	}
	return m.send(text)
}

// send appends the user message and starts streaming the reply.
func (m *Model) send(text string) tea.Cmd {
	m.conv.AddUserMessage(text)
	m.conv.AddAssistantMessage()

	req := streamRequest{
		model:       m.conv.Model,
		temperature: m.conv.Temperature,
		history:     m.conv.ToLLMMessages(),
		stream:      m.cfg.Chat.Stream,
	}
	if m.groundNext != "" {
		req.history = m.conv.WithContext(m.groundNext)
		m.groundNext = ""
	} else if m.autoSearch {
		snapshot := m.conv.Clone()
		req.searcher = m.searcher
		req.groundQuery = text
		req.groundMax = m.cfg.Search.MaxResults
		req.groundWith = snapshot.WithContext
	}

	m.streamID++
	m.stream = startStream(m.ctx, m.streamID, m.backend, req, m.log)
	m.state = StateStreaming
	m.status = ""
	m.refresh()
	return tea.Batch(m.spinner.Tick, m.stream.wait())
}

// cancelStream signals the in-flight reply to stop. The reply is closed
// out when its streamDoneMsg arrives.
func (m *Model) cancelStream() {
	if m.stream != nil && m.stream.cancel() {
		m.status = "Stopping..."
	}
}

// finishStream closes out the reply and saves the conversation.
func (m *Model) finishStream(msg streamDoneMsg) tea.Cmd {
	stats := model.StatisticsFromStream(msg.stats)
	m.stream = nil
	m.state = StateReady

	switch {
	case msg.err == nil:
		m.conv.FinalizeLast(stats)
		if last := m.conv.GetLastMessage(); last != nil && last.Role == model.RoleAssistant && last.IsEmpty() {
			m.conv.RemoveLast()
			m.conv.AddNote("The model returned an empty reply.")
		}
		m.status = ""
	case llm.IsCancelled(msg.err):
		m.conv.InterruptLast(stats)
		m.status = "Reply stopped."
	default:
		m.conv.InterruptLast(stats)
		note := "Error: " + msg.err.Error()
		var te *llm.TransportError
		if errors.As(msg.err, &te) && te.Temporary() {
			note += "\nThe server may be busy. Try again in a moment."
		}
		m.conv.AddNote(note)
		m.status = ""
		if llm.IsTransport(msg.err) {
			m.online = !isConnectFailure(msg.err)
		}
		m.log.Errorw("reply failed", "model", m.conv.Model, "error", msg.err)
	}
	if stats != nil && stats.FragmentCount > 0 {
		m.lastStats = stats
	}
	m.refresh()
	return m.save(false)
}

// isConnectFailure reports a transport error that never got an HTTP status.
func isConnectFailure(err error) bool {
	var te *llm.TransportError
	if !errors.As(err, &te) {
		return false
	}
	return te.StatusCode == 0
}

// insertGroundingNote shows what auto search found, above the pending reply.
func (m *Model) insertGroundingNote(resp search.Response) {
	text := "Web search found nothing useful; answering without it."
	if resp.OK() {
		text = "Grounded with web results:\n" + search.FormatResults(resp)
	}
	n := len(m.conv.Messages)
	if n == 0 {
		m.note(text)
		return
	}
	reply := m.conv.Messages[n-1]
	m.conv.Messages[n-1] = model.NewNote(text)
	m.conv.Messages = append(m.conv.Messages, reply)
	m.refresh()
}
