// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the colors and lipgloss styles for the chat TUI.

All colors are lipgloss AdaptiveColor values so light and dark terminals
both read well. NewTheme detects the terminal's color profile and
background through termenv; ForMode pins a theme to an explicit mode
("dark", "light", "notty") from the ui.theme config key.

# Palette

  - Purple: assistant messages, brand
  - Cyan: user messages, prompts
  - Emerald: success, server reachable
  - Amber: warnings, interrupted replies
  - Rose: errors, server unreachable

# Usage

	theme := styles.ForMode(cfg.UI.Theme)
	fmt.Println(theme.AssistantLabel.Render("Assistant"))
*/
package styles
