// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/devkabir/chat-ui/internal/model"
	"github.com/devkabir/chat-ui/internal/util"
)

// =============================================================================
// SESSION LIST
// =============================================================================

// FormatSessionList formats conversation metadata as a numbered table.
// The numbers are valid references for Resolve.
func FormatSessionList(sessions []ConversationMeta) string {
	if len(sessions) == 0 {
		return "No conversations found."
	}

	var sb strings.Builder
	sb.WriteString(util.PadRight("#", 4) + " " + util.PadRight("ID", 8) + " " +
		util.PadRight("Updated", 16) + " " + util.PadRight("Msgs", 5) + " Title\n")
	sb.WriteString(strings.Repeat("-", 64) + "\n")

	for i, s := range sessions {
		id := s.ID
		if len(id) > 8 {
			id = id[:8]
		}
		title := s.Title
		if title == "" {
			title = s.Preview
		}
		sb.WriteString(util.PadRight(strconv.Itoa(i+1), 4) + " " +
			util.PadRight(id, 8) + " " +
			util.PadRight(s.UpdatedAt.Format("2006-01-02 15:04"), 16) + " " +
			util.PadRight(strconv.Itoa(s.MessageCount), 5) + " " +
			util.TruncateWidth(title, 40) + "\n")
	}
	return sb.String()
}

// =============================================================================
// EXPORT
// =============================================================================

// ExportMarkdown renders conv as Markdown with one section per message.
// Local notes are left out.
func ExportMarkdown(conv *model.Conversation) string {
	var sb strings.Builder
	sb.WriteString("# " + conv.GetTitle() + "\n\n")
	sb.WriteString("- ID: " + conv.ID + "\n")
	if conv.Model != "" {
		sb.WriteString("- Model: " + conv.Model + "\n")
	}
	sb.WriteString("- Created: " + conv.CreatedAt.Format(time.RFC3339) + "\n\n")
	if conv.SystemPrompt != "" {
		sb.WriteString("> " + strings.ReplaceAll(conv.SystemPrompt, "\n", "\n> ") + "\n\n")
	}
	sb.WriteString("---\n\n")

	for _, msg := range conv.Messages {
		if msg.Local {
			continue
		}
		sb.WriteString("**" + msg.Role.DisplayName() + "** (" + msg.Timestamp.Format("15:04") + ")")
		if msg.Interrupted {
			sb.WriteString(" _[interrupted]_")
		}
		sb.WriteString(":\n\n")
		sb.WriteString(msg.GetDisplayContent())
		sb.WriteString("\n\n---\n\n")
	}
	return sb.String()
}

// ExportJSON returns conv as indented JSON.
func ExportJSON(conv *model.Conversation) ([]byte, error) {
	return json.MarshalIndent(conv, "", "  ")
}
