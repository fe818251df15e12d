// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/devkabir/chat-ui/internal/model"
	"github.com/devkabir/chat-ui/internal/ui/styles"
	"github.com/devkabir/chat-ui/internal/util"
)

const (
	headerHeight = 1
	statusHeight = 1
	inputHeight  = 3
	// inputChrome is the border around the input box.
	inputChrome = 2
)

// View renders the screen.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		m.theme.Input.Width(m.innerWidth()).Render(m.input.View()),
		m.renderStatus(),
	)
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.ready = true

	m.viewport.Width = width
	m.viewport.Height = max(height-headerHeight-statusHeight-inputHeight-inputChrome, 1)
	m.input.SetWidth(m.innerWidth() - 2)
	m.renderer.SetWidth(m.wrapWidth())
	m.refresh()
}

func (m *Model) innerWidth() int {
	if m.width <= 0 {
		return 80
	}
	return max(m.width-inputChrome, 10)
}

// wrapWidth is the text width inside the transcript.
func (m *Model) wrapWidth() int {
	w := m.viewport.Width - 4
	if m.cfg.UI.WordWrap > 0 && m.cfg.UI.WordWrap < w {
		w = m.cfg.UI.WordWrap
	}
	return max(w, 20)
}

// refresh re-renders the transcript into the viewport, keeping the view
// pinned to the bottom if it already was.
func (m *Model) refresh() {
	atBottom := m.viewport.AtBottom() || m.viewport.TotalLineCount() <= m.viewport.Height
	m.viewport.SetContent(m.renderTranscript())
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

func (m *Model) renderTranscript() string {
	if m.conv.IsEmpty() {
		return m.theme.Muted.Render(fmt.Sprintf("Chatting with %s. Type a message, or /help.", m.conv.Model))
	}
	blocks := make([]string, 0, len(m.conv.Messages))
	for _, msg := range m.conv.Messages {
		blocks = append(blocks, m.renderMessage(msg))
	}
	return strings.Join(blocks, "\n\n")
}

func (m *Model) renderMessage(msg *model.Message) string {
	width := m.wrapWidth()
	wrap := lipgloss.NewStyle().Width(width)

	if msg.Local {
		return m.theme.Note.Render(wrap.Render(msg.Content))
	}

	var label string
	switch msg.Role {
	case model.RoleUser:
		label = m.theme.UserLabel.Render(msg.Role.DisplayName())
	case model.RoleAssistant:
		label = m.theme.AssistantLabel.Render(msg.Role.DisplayName())
	default:
		label = m.theme.SystemLabel.Render(msg.Role.DisplayName())
	}

	var body string
	switch {
	case msg.IsStreaming:
		body = wrap.Render(msg.GetDisplayContent())
		if m.state == StateStreaming {
			body += " " + m.spinner.View()
		}
	case msg.Role == model.RoleAssistant:
		body = m.renderer.Render(msg.Content)
	default:
		body = wrap.Render(msg.Content)
	}

	var sb strings.Builder
	sb.WriteString(label)
	if msg.Interrupted {
		sb.WriteString(" " + m.theme.Interrupted.Render("[interrupted]"))
	}
	sb.WriteString("\n")
	sb.WriteString(m.theme.MessageBody.Render(body))
	if stats := msg.FormatStats(); stats != "" {
		sb.WriteString("\n" + m.theme.Stats.Render(stats))
	}
	return sb.String()
}

// =============================================================================
// CHROME
// =============================================================================

func (m *Model) renderHeader() string {
	title := util.TruncateWidth(m.conv.GetTitle(), max(m.innerWidth()-30, 10))
	left := m.theme.HeaderTitle.Render("chat-ui") + "  " + title
	return m.theme.Header.Width(m.innerWidth() + inputChrome).Render(left)
}

func (m *Model) renderStatus() string {
	var conn string
	switch {
	case !m.pinged:
		conn = m.theme.StatusMuted.Render("o checking")
	case m.online:
		conn = m.theme.StatusOnline.Render("* online")
	default:
		conn = m.theme.StatusOffline.Render("x offline")
	}

	parts := []string{m.conv.Model, fmt.Sprintf("t=%.2f", m.conv.Temperature)}
	if m.autoSearch {
		parts = append(parts, "search on")
	}

	switch {
	case m.state == StateStreaming:
		parts = append(parts, "generating (Esc to stop)")
	case m.status != "":
		parts = append(parts, m.status)
	case m.lastStats != nil:
		parts = append(parts, m.lastStats.Format())
	default:
		if styles.LayoutFor(m.width) != styles.LayoutNarrow {
			parts = append(parts, helpLine(m.keys.ShortHelp()))
		}
	}

	line := conn + " | " + util.TruncateWidth(strings.Join(parts, " | "), max(m.innerWidth()-13, 10))
	return m.theme.StatusBar.Width(m.innerWidth() + inputChrome).Render(line)
}
